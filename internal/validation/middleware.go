package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

// Source names the request slice a schema applies to.
type Source string

const (
	SourceBody   Source = "body"
	SourceQuery  Source = "query"
	SourceParams Source = "params"
)

// MaxBodyBytes bounds the JSON body read by Body middleware.
const MaxBodyBytes = 1 << 20

// ErrorHandler receives failures that are not schema violations.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Options configures the middleware.
type Options struct {
	// OnError handles non-schema failures (unreadable body, malformed JSON).
	// Defaults to a plain 500.
	OnError ErrorHandler

	// OnReject observes schema rejections after the 400 has been written.
	OnReject func(r *http.Request, src Source, err *Error)
}

// Body validates the JSON request body against T.
func Body[T any](opts Options) func(http.Handler) http.Handler {
	return middleware[T](SourceBody, opts)
}

// Query validates the URL query against T, coercing strings to field types.
func Query[T any](opts Options) func(http.Handler) http.Handler {
	return middleware[T](SourceQuery, opts)
}

// Params validates gorilla/mux path variables against T, coercing strings to field types.
func Params[T any](opts Options) func(http.Handler) http.Handler {
	return middleware[T](SourceParams, opts)
}

func middleware[T any](src Source, opts Options) func(http.Handler) http.Handler {
	onError := opts.OnError
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			input, err := extract(src, r)
			if err != nil {
				onError(w, r, err)
				return
			}

			value, err := Validate[T](input, src != SourceBody)
			if err != nil {
				var verr *Error
				if errors.As(err, &verr) {
					WriteError(w, verr)
					if opts.OnReject != nil {
						opts.OnReject(r, src, verr)
					}
					return
				}
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{src}, value)))
		})
	}
}

// Response is the 400 envelope written for schema violations.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details"`
}

// WriteError writes the validation failure envelope with status 400.
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   "Validation failed",
		Details: err.Details(),
	})
}

type ctxKey struct {
	src Source
}

// BodyFrom returns the validated body stored by Body[T].
func BodyFrom[T any](r *http.Request) (T, bool) {
	return from[T](r, SourceBody)
}

// QueryFrom returns the validated query stored by Query[T].
func QueryFrom[T any](r *http.Request) (T, bool) {
	return from[T](r, SourceQuery)
}

// ParamsFrom returns the validated path parameters stored by Params[T].
func ParamsFrom[T any](r *http.Request) (T, bool) {
	return from[T](r, SourceParams)
}

func from[T any](r *http.Request, src Source) (T, bool) {
	v, ok := r.Context().Value(ctxKey{src}).(T)
	return v, ok
}

// extract reads the raw input for src. Errors returned here are not schema
// violations.
func extract(src Source, r *http.Request) (any, error) {
	switch src {
	case SourceBody:
		return readJSON(r)
	case SourceQuery:
		q := r.URL.Query()
		out := make(map[string]any, len(q))
		for k, vs := range q {
			if len(vs) == 1 {
				out[k] = vs[0]
			} else {
				out[k] = vs
			}
		}
		return out, nil
	case SourceParams:
		vars := mux.Vars(r)
		out := make(map[string]any, len(vars))
		for k, v := range vars {
			out[k] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown validation source %q", src)
}

func readJSON(r *http.Request) (any, error) {
	if r.Body == nil {
		return map[string]any{}, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	// Downstream handlers may still want the raw bytes.
	r.Body = io.NopCloser(bytes.NewReader(data))

	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, &MalformedJSONError{Err: err}
	}
	return v, nil
}

// ErrBodyTooLarge is passed to OnError when the body exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("request body too large")

// MalformedJSONError is passed to OnError when the body is not valid JSON.
type MalformedJSONError struct {
	Err error
}

func (e *MalformedJSONError) Error() string {
	return "malformed json body: " + e.Err.Error()
}

func (e *MalformedJSONError) Unwrap() error {
	return e.Err
}
