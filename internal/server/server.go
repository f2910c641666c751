// Package server exposes the REST API, the health endpoint, Prometheus
// metrics and the realtime endpoint on one gorilla/mux router.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/infrawatch/infrawatch/internal/events"
	"github.com/infrawatch/infrawatch/internal/metrics"
	"github.com/infrawatch/infrawatch/internal/store"
	"github.com/infrawatch/infrawatch/internal/validation"
)

// APIPrefix is the mount point of the REST API.
const APIPrefix = "/api/v1"

// Authenticator guards the REST API.
type Authenticator interface {
	Require(next http.Handler) http.Handler
}

// Config holds router settings.
type Config struct {
	RealtimePath string        // Mount point of the realtime endpoint
	MetricsPath  string        // Empty disables /metrics
	EventTimeout time.Duration // Upper bound on publishing one change event
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RealtimePath: "/realtime",
		MetricsPath:  "/metrics",
		EventTimeout: 5 * time.Second,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithPublisher sets the change-event publisher. Defaults to discarding.
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) {
		s.events = p
	}
}

// WithRealtime mounts h at the realtime path.
func WithRealtime(h http.Handler) Option {
	return func(s *Server) {
		s.realtime = h
	}
}

// WithMetrics enables request instrumentation and the metrics endpoint.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server is the HTTP front end of infrawatch.
type Server struct {
	cfg      Config
	store    store.Store
	auth     Authenticator
	events   events.Publisher
	realtime http.Handler
	metrics  *metrics.Metrics
	logger   *slog.Logger

	router  *mux.Router
	pending sync.WaitGroup
}

// New builds the router.
func New(cfg Config, st store.Store, authn Authenticator, opts ...Option) *Server {
	def := DefaultConfig()
	if cfg.RealtimePath == "" {
		cfg.RealtimePath = def.RealtimePath
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = def.EventTimeout
	}

	s := &Server{
		cfg:    cfg,
		store:  st,
		auth:   authn,
		events: events.Discard{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Wait blocks until in-flight change events are published or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Error: "Route not found"})
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil && s.cfg.MetricsPath != "" {
		r.Handle(s.cfg.MetricsPath, s.metrics.Handler()).Methods(http.MethodGet)
	}
	if s.realtime != nil {
		r.Handle(s.cfg.RealtimePath, s.realtime)
	}

	api := r.PathPrefix(APIPrefix).Subrouter()
	api.Use(s.auth.Require)

	opts := validation.Options{
		OnError:  s.writeError,
		OnReject: s.onReject,
	}
	id := validation.Params[validation.IDParams](opts)
	page := validation.Query[validation.PaginationQuery](opts)

	api.Handle("/services", chain(s.listServices, page)).Methods(http.MethodGet)
	api.Handle("/services", chain(s.createService, validation.Body[validation.CreateServiceRequest](opts))).Methods(http.MethodPost)
	api.Handle("/services/{id}", chain(s.getService, id)).Methods(http.MethodGet)
	api.Handle("/services/{id}", chain(s.updateService, id, validation.Body[validation.UpdateServiceRequest](opts))).Methods(http.MethodPut, http.MethodPatch)
	api.Handle("/services/{id}", chain(s.deleteService, id)).Methods(http.MethodDelete)
	api.Handle("/services/{id}/deployments", chain(s.listServiceDeployments, id, page)).Methods(http.MethodGet)

	api.Handle("/deployments", chain(s.listDeployments, validation.Query[validation.DeploymentListQuery](opts))).Methods(http.MethodGet)
	api.Handle("/deployments", chain(s.createDeployment, validation.Body[validation.CreateDeploymentRequest](opts))).Methods(http.MethodPost)
	api.Handle("/deployments/{id}", chain(s.getDeployment, id)).Methods(http.MethodGet)

	api.Handle("/resources", chain(s.listResources, validation.Query[validation.ResourceListQuery](opts))).Methods(http.MethodGet)
	api.Handle("/resources", chain(s.createResource, validation.Body[validation.CreateResourceRequest](opts))).Methods(http.MethodPost)
	api.Handle("/resources/{id}", chain(s.getResource, id)).Methods(http.MethodGet)
	api.Handle("/resources/{id}", chain(s.deleteResource, id)).Methods(http.MethodDelete)

	api.Handle("/teams", chain(s.listTeams, page)).Methods(http.MethodGet)
	api.Handle("/teams", chain(s.createTeam, validation.Body[validation.CreateTeamRequest](opts))).Methods(http.MethodPost)
	api.Handle("/teams/{id}", chain(s.getTeam, id)).Methods(http.MethodGet)

	return r
}

// chain wraps h so that the first middleware runs first.
func chain(h http.HandlerFunc, mws ...func(http.Handler) http.Handler) http.Handler {
	var out http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// publish sends ev in the background so slow sinks never hold a response.
func (s *Server) publish(ev events.Event) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.EventTimeout)
		defer cancel()
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn("change event not delivered", "type", ev.Type, "subject", ev.Subject, "error", err)
		}
	}()
}

func (s *Server) onReject(r *http.Request, src validation.Source, err *validation.Error) {
	s.metrics.ValidationRejected(string(src))
	s.logger.Debug("request rejected",
		"method", r.Method,
		"path", r.URL.Path,
		"source", src,
		"details", err.Details(),
	)
}
