package validation

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestBody_ValidCallsNext(t *testing.T) {
	var got CreateServiceRequest
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		var ok bool
		got, ok = BodyFrom[CreateServiceRequest](r)
		require.True(t, ok)
		w.WriteHeader(http.StatusCreated)
	})

	body := `{"name":"checkout-api","environment":"staging","aws_region":"eu-west-1","extra":true}`
	req := httptest.NewRequest(http.MethodPost, "/services", strings.NewReader(body))
	rec := httptest.NewRecorder()

	Body[CreateServiceRequest](Options{})(next).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "checkout-api", got.Name)
	assert.Equal(t, "staging", got.Environment)
	assert.Equal(t, "eu-west-1", got.AWSRegion)
}

func TestBody_MissingFieldsReturns400(t *testing.T) {
	var rejected *Error
	opts := Options{
		OnReject: func(_ *http.Request, src Source, err *Error) {
			assert.Equal(t, SourceBody, src)
			rejected = err
		},
	}
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler must not run")
	})

	req := httptest.NewRequest(http.MethodPost, "/teams", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	Body[CreateTeamRequest](opts)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "Validation failed", resp.Error)
	assert.Equal(t, "name: Required, email: Required", resp.Details)

	require.NotNil(t, rejected)
	assert.Len(t, rejected.Fields, 2)
}

func TestBody_EmptyBodyIsEmptyObject(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/teams", nil)
	rec := httptest.NewRecorder()

	Body[CreateTeamRequest](Options{})(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name: Required, email: Required", decodeResponse(t, rec).Details)
}

func TestBody_MalformedJSONGoesToErrorHandler(t *testing.T) {
	var handled error
	opts := Options{
		OnError: func(w http.ResponseWriter, _ *http.Request, err error) {
			handled = err
			w.WriteHeader(http.StatusUnprocessableEntity)
		},
		OnReject: func(*http.Request, Source, *Error) {
			t.Fatal("malformed json is not a schema violation")
		},
	}
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler must not run")
	})

	req := httptest.NewRequest(http.MethodPost, "/teams", strings.NewReader(`{"name":`))
	rec := httptest.NewRecorder()

	Body[CreateTeamRequest](opts)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var malformed *MalformedJSONError
	assert.True(t, errors.As(handled, &malformed))
}

func TestBody_TooLarge(t *testing.T) {
	var handled error
	opts := Options{
		OnError: func(w http.ResponseWriter, _ *http.Request, err error) {
			handled = err
			w.WriteHeader(http.StatusRequestEntityTooLarge)
		},
	}

	big := `{"name":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/teams", strings.NewReader(big))
	rec := httptest.NewRecorder()

	Body[CreateTeamRequest](opts)(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.ErrorIs(t, handled, ErrBodyTooLarge)
}

func TestBody_DefaultErrorHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/teams", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()

	Body[CreateTeamRequest](Options{})(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestQuery_CoercesPagination(t *testing.T) {
	var got PaginationQuery
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = QueryFrom[PaginationQuery](r)
	})

	req := httptest.NewRequest(http.MethodGet, "/services?limit=10&offset=0", nil)
	rec := httptest.NewRecorder()

	Query[PaginationQuery](Options{})(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got.Limit)
	require.NotNil(t, got.Offset)
	assert.Equal(t, 10, *got.Limit)
	assert.Equal(t, 0, *got.Offset)
}

func TestQuery_LimitZeroRejected(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/services?limit=0", nil)
	rec := httptest.NewRecorder()

	Query[PaginationQuery](Options{})(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit: Number must be greater than or equal to 1", decodeResponse(t, rec).Details)
}

func TestParams_UUID(t *testing.T) {
	var got IDParams
	r := mux.NewRouter()
	r.Handle("/services/{id}", Params[IDParams](Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ParamsFrom[IDParams](r)
	})))

	id := uuid.NewString()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services/"+id, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, got.ID)

	upper := strings.ToUpper(id)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services/"+upper, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, upper, got.ID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "id: Invalid uuid", decodeResponse(t, rec).Details)
}

func TestSourcesAreIndependent(t *testing.T) {
	r := mux.NewRouter()
	handler := Params[IDParams](Options{})(
		Body[UpdateServiceRequest](Options{})(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				params, ok := ParamsFrom[IDParams](r)
				require.True(t, ok)
				body, ok := BodyFrom[UpdateServiceRequest](r)
				require.True(t, ok)
				_, ok = QueryFrom[PaginationQuery](r)
				assert.False(t, ok)

				assert.NotEmpty(t, params.ID)
				require.NotNil(t, body.Status)
				w.WriteHeader(http.StatusNoContent)
			})))
	r.Handle("/services/{id}", handler)

	req := httptest.NewRequest(http.MethodPut, "/services/"+uuid.NewString(), strings.NewReader(`{"status":"down"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
