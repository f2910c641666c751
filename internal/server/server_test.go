package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrawatch/infrawatch/internal/auth"
	"github.com/infrawatch/infrawatch/internal/events"
	"github.com/infrawatch/infrawatch/internal/hub"
	"github.com/infrawatch/infrawatch/internal/metrics"
	"github.com/infrawatch/infrawatch/internal/model"
	"github.com/infrawatch/infrawatch/internal/realtime"
	"github.com/infrawatch/infrawatch/internal/store"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type brokenStore struct {
	*store.Memory
}

func (brokenStore) Ping(context.Context) error { return errors.New("connection refused") }

func (brokenStore) ListTeams(context.Context, model.Page) ([]model.Team, error) {
	return nil, errors.New("relation \"teams\" does not exist")
}

type fixture struct {
	srv       *Server
	store     *store.Memory
	published *recordingPublisher
	metrics   *metrics.Metrics
	tokens    *auth.Tokens
	token     string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	tokens, err := auth.NewTokens(auth.Config{
		Secret:   testSecret,
		Issuer:   "infrawatch-api",
		Audience: "infrawatch",
		TTL:      time.Hour,
	})
	require.NoError(t, err)
	token, _, err := tokens.Issue("deployer@example.com", "")
	require.NoError(t, err)

	f := &fixture{
		store:     store.NewMemory(),
		published: &recordingPublisher{},
		metrics:   metrics.New(),
		tokens:    tokens,
		token:     token,
	}
	opts = append([]Option{WithPublisher(f.published), WithMetrics(f.metrics)}, opts...)
	f.srv = New(DefaultConfig(), f.store, tokens, opts...)
	return f
}

type response struct {
	Code       int
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Details    string          `json:"details"`
	Pagination *pagination     `json:"pagination"`
}

func (f *fixture) do(t *testing.T, method, path, body string) response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	resp := response{Code: rec.Code}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return resp
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func (f *fixture) createService(t *testing.T, name string) model.Service {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/v1/services",
		`{"name":"`+name+`","environment":"production","aws_region":"us-east-1"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Error+resp.Details)
	return decode[model.Service](t, resp.Data)
}

func TestUnauthenticatedRequestsNeverReachValidation(t *testing.T) {
	f := newFixture(t)

	for _, tt := range []struct {
		method, path, body string
	}{
		{http.MethodGet, "/api/v1/services?limit=0", ""},
		{http.MethodPost, "/api/v1/services", `{}`},
		{http.MethodGet, "/api/v1/services/not-a-uuid", ""},
	} {
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
		rec := httptest.NewRecorder()
		f.srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, tt.path)
		assert.JSONEq(t, `{"success":false,"error":"Unauthorized"}`, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	assert.NotContains(t, rec.Body.String(), "infrawatch_validation_rejections_total{")
}

func TestInvalidTokenRejected(t *testing.T) {
	f := newFixture(t)
	f.token = "not-a-jwt"

	resp := f.do(t, http.MethodGet, "/api/v1/services", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"database":"connected"`)

	broken := New(DefaultConfig(), brokenStore{store.NewMemory()}, f.tokens)
	rec = httptest.NewRecorder()
	broken.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestCreateService(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/services", `{
		"name": "checkout-api",
		"environment": "production",
		"aws_region": "us-east-1",
		"health_check": {"path": "/healthz"}
	}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.True(t, resp.Success)

	svc := decode[model.Service](t, resp.Data)
	assert.Equal(t, "checkout-api", svc.Name)
	assert.Equal(t, model.ServiceUnknown, svc.Status)
	require.NotNil(t, svc.HealthCheck)
	assert.Equal(t, model.DefaultHealthCheckInterval, svc.HealthCheck.IntervalSeconds)
	assert.Equal(t, model.DefaultHealthCheckStatus, svc.HealthCheck.ExpectedStatus)

	require.NoError(t, f.srv.Wait(context.Background()))
	assert.Equal(t, []string{events.ServiceCreated}, f.published.types())
}

func TestCreateService_ValidationFailure(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/services", `{"name":"x","environment":"prod"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Validation failed", resp.Error)
	assert.Equal(t,
		"environment: Invalid enum value. Expected 'development' | 'staging' | 'production', received 'prod', aws_region: Required",
		resp.Details)

	require.NoError(t, f.srv.Wait(context.Background()))
	assert.Empty(t, f.published.types())
}

func TestCreateService_MalformedJSON(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/services", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Malformed JSON body", resp.Error)
}

func TestCreateService_Conflict(t *testing.T) {
	f := newFixture(t)
	f.createService(t, "checkout")

	resp := f.do(t, http.MethodPost, "/api/v1/services",
		`{"name":"checkout","environment":"staging","aws_region":"eu-west-1"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "Already exists", resp.Error)
}

func TestListServices_Pagination(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a", "b", "c"} {
		f.createService(t, name)
	}

	resp := f.do(t, http.MethodGet, "/api/v1/services?limit=2&offset=0", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, pagination{Limit: 2, Offset: 0, Count: 2}, *resp.Pagination)
	assert.Len(t, decode[[]model.Service](t, resp.Data), 2)

	resp = f.do(t, http.MethodGet, "/api/v1/services", "")
	assert.Equal(t, pagination{Limit: model.DefaultPageLimit, Offset: 0, Count: 3}, *resp.Pagination)

	resp = f.do(t, http.MethodGet, "/api/v1/services?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "limit: Number must be greater than or equal to 1", resp.Details)
}

func TestListServices_Empty(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/services", nil)
	req.Header.Set("Authorization", "Bearer "+f.token)
	f.srv.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestServiceByID(t *testing.T) {
	f := newFixture(t)
	svc := f.createService(t, "checkout")
	path := "/api/v1/services/" + svc.ID.String()

	resp := f.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, svc.ID, decode[model.Service](t, resp.Data).ID)

	resp = f.do(t, http.MethodGet, "/api/v1/services/"+strings.ToUpper(svc.ID.String()), "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Details)
	assert.Equal(t, svc.ID, decode[model.Service](t, resp.Data).ID)

	resp = f.do(t, http.MethodGet, "/api/v1/services/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "Not found", resp.Error)

	resp = f.do(t, http.MethodGet, "/api/v1/services/123", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "id: Invalid uuid", resp.Details)
}

func TestUpdateService(t *testing.T) {
	f := newFixture(t)
	svc := f.createService(t, "checkout")
	path := "/api/v1/services/" + svc.ID.String()

	resp := f.do(t, http.MethodPut, path, `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "At least one field must be provided", resp.Details)

	resp = f.do(t, http.MethodPut, path, `{"status":"exploded"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = f.do(t, http.MethodPatch, path, `{"status":"degraded","environment":"staging"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	updated := decode[model.Service](t, resp.Data)
	assert.Equal(t, model.ServiceDegraded, updated.Status)
	assert.Equal(t, model.EnvStaging, updated.Environment)
	assert.Equal(t, "checkout", updated.Name)

	resp = f.do(t, http.MethodPut, "/api/v1/services/"+uuid.NewString(), `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	require.NoError(t, f.srv.Wait(context.Background()))
	assert.Equal(t, []string{events.ServiceCreated, events.ServiceUpdated}, f.published.types())
}

func TestDeleteService(t *testing.T) {
	f := newFixture(t)
	svc := f.createService(t, "checkout")
	path := "/api/v1/services/" + svc.ID.String()

	resp := f.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = f.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	require.NoError(t, f.srv.Wait(context.Background()))
	assert.Equal(t, []string{events.ServiceCreated, events.ServiceDeleted}, f.published.types())
}

func TestDeployments(t *testing.T) {
	f := newFixture(t)
	svc := f.createService(t, "checkout")

	resp := f.do(t, http.MethodPost, "/api/v1/deployments", `{
		"service_id": "`+svc.ID.String()+`",
		"version": "v1.4.0",
		"environment": "production",
		"commit_sha": "a1b2c3d"
	}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Details)
	d := decode[model.Deployment](t, resp.Data)
	assert.Equal(t, model.DeploymentPending, d.Status)
	require.NotNil(t, d.DeployedBy)
	assert.Equal(t, "deployer@example.com", *d.DeployedBy)

	resp = f.do(t, http.MethodPost, "/api/v1/deployments",
		`{"service_id":"`+uuid.NewString()+`","version":"v1","environment":"staging"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = f.do(t, http.MethodGet, "/api/v1/services/"+svc.ID.String()+"/deployments", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]model.Deployment](t, resp.Data), 1)

	resp = f.do(t, http.MethodGet, "/api/v1/services/"+uuid.NewString()+"/deployments", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = f.do(t, http.MethodGet, "/api/v1/deployments?status=succeeded", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[[]model.Deployment](t, resp.Data))

	resp = f.do(t, http.MethodGet, "/api/v1/deployments?status=done", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = f.do(t, http.MethodGet, "/api/v1/deployments/"+d.ID.String(), "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestResources(t *testing.T) {
	f := newFixture(t)

	body := `{"resource_type":"rds","resource_id":"db-prod-1","name":"orders","region":"eu-west-1","configuration":{"engine":"postgres"}}`
	resp := f.do(t, http.MethodPost, "/api/v1/resources", body)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Details)
	res := decode[model.InfrastructureResource](t, resp.Data)
	assert.Equal(t, "postgres", res.Configuration["engine"])

	resp = f.do(t, http.MethodPost, "/api/v1/resources", body)
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = f.do(t, http.MethodGet, "/api/v1/resources?region=eu-west-1&resource_type=rds", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]model.InfrastructureResource](t, resp.Data), 1)

	resp = f.do(t, http.MethodGet, "/api/v1/resources?region=EU-WEST-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "region: Invalid AWS region", resp.Details)

	resp = f.do(t, http.MethodDelete, "/api/v1/resources/"+res.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = f.do(t, http.MethodGet, "/api/v1/resources/"+res.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestTeams(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/teams", `{"name":"Platform","email":"platform@example.com"}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	team := decode[model.Team](t, resp.Data)

	resp = f.do(t, http.MethodGet, "/api/v1/teams/"+team.ID.String(), "")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = f.do(t, http.MethodPost, "/api/v1/services",
		`{"name":"api","environment":"production","aws_region":"us-east-1","team_id":"`+team.ID.String()+`"}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = f.do(t, http.MethodPost, "/api/v1/services",
		`{"name":"api2","environment":"production","aws_region":"us-east-1","team_id":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = f.do(t, http.MethodGet, "/api/v1/teams", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, resp.Pagination.Count)
}

func TestStoreFailureIs500(t *testing.T) {
	f := newFixture(t)
	srv := New(DefaultConfig(), brokenStore{store.NewMemory()}, f.tokens)
	f.srv = srv

	resp := f.do(t, http.MethodGet, "/api/v1/teams", "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "Internal server error", resp.Error)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/v2/services", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "Route not found", resp.Error)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/services?limit=500", "")
	f.do(t, http.MethodGet, "/api/v1/services", "")

	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `infrawatch_validation_rejections_total{source="query"} 1`)
	assert.Contains(t, body, `infrawatch_http_requests_total{code="200",method="GET",route="/api/v1/services"} 1`)
	assert.Contains(t, body, `infrawatch_http_requests_total{code="400",method="GET",route="/api/v1/services"} 1`)
}

func TestRealtimeEndpointMounted(t *testing.T) {
	f := newFixture(t)
	h := hub.New(hub.DefaultConfig(), f.tokens, f.metrics, nil)
	defer h.Close()

	srv := New(DefaultConfig(), f.store, f.tokens,
		WithMetrics(f.metrics),
		WithRealtime(h),
		WithPublisher(events.NewHubPublisher(h)),
	)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realtime?token=" + f.token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var welcome realtime.Frame
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, hub.EventConnected, welcome.Event)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/teams",
		strings.NewReader(`{"name":"SRE","email":"sre@example.com"}`))
	req.Header.Set("Authorization", "Bearer "+f.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var frame realtime.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, events.TeamCreated, frame.Event)

	var ev events.Event
	require.NoError(t, json.Unmarshal(frame.Data, &ev))
	assert.Equal(t, events.TeamCreated, ev.Type)
	assert.Equal(t, events.Source, ev.Source)
}
