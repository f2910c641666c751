package auth

import (
	"context"
	"encoding/json"
	"net/http"
)

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the claims stored by Require.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

type unauthorized struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Require rejects requests without a valid bearer token with 401.
func (t *Tokens) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := BearerToken(r)
		if err != nil {
			writeUnauthorized(w)
			return
		}
		claims, err := t.Verify(raw)
		if err != nil {
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="infrawatch"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(unauthorized{Success: false, Error: "Unauthorized"})
}
