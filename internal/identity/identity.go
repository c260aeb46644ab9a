// Package identity finds out which user a request is for. It only reads the
// user id the caller sends; it does not verify it.
package identity

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const keyUser ctxKey = 0

// Extractor reads the user id from a request header.
type Extractor struct {
	header string
}

// NewHeader creates an extractor for header (e.g., "X-User-ID").
func NewHeader(header string) *Extractor {
	h := header
	if h == "" {
		h = "X-User-ID"
	}
	return &Extractor{header: h}
}

func (e *Extractor) Header() string { return e.header }

// UserFor returns the trimmed header value; any non-empty string is a valid user.
func (e *Extractor) UserFor(r *http.Request) (string, bool) {
	u := strings.TrimSpace(r.Header.Get(e.header))
	return u, u != ""
}

// WithUser injects the user id into context.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, keyUser, user)
}

// UserFrom extracts the user id from context (if present).
func UserFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(keyUser)
	if v == nil {
		return "", false
	}
	u, ok := v.(string)
	return u, ok && u != ""
}

// Middleware puts the user id in the request context and writes a JSON error
// when the header is missing. It skips any path in skipPaths.
func (e *Extractor) Middleware(skipPaths map[string]struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skipPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			user, ok := e.UserFor(r)
			if !ok {
				writeJSON(w, http.StatusBadRequest, "missing_user_id", "Provide a user id in "+e.header)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, errCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":{"code":"` + errCode + `","message":"` + msg + `"}}`))
}
