package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/AlexKimmel/ratequota/internal/identity"
	"github.com/AlexKimmel/ratequota/internal/routing"
)

func withRoute(r *http.Request, upstream string) *http.Request {
	u, _ := url.Parse(upstream)
	return routing.WithRoute(r, &routing.Route{ID: "up", UpURL: u, Timeout: time.Second})
}

func TestHandler_Forwards(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Got-User", r.Header.Get("X-Forwarded-User"))
		_, _ = io.WriteString(w, r.Method+" "+r.URL.Path)
	}))
	defer upstream.Close()

	r := httptest.NewRequest(http.MethodPut, "/items/9", nil)
	r = r.WithContext(identity.WithUser(r.Context(), "erin"))
	w := httptest.NewRecorder()
	Handler(NewHTTPTransport()).ServeHTTP(w, withRoute(r, upstream.URL))

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "PUT /items/9" {
		t.Errorf("body = %q", got)
	}
	if got := w.Header().Get("X-Got-User"); got != "erin" {
		t.Errorf("X-Forwarded-User = %q, want erin", got)
	}
}

func TestHandler_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	w := httptest.NewRecorder()
	Handler(NewHTTPTransport()).ServeHTTP(w, withRoute(httptest.NewRequest(http.MethodGet, "/", nil), addr))

	if w.Code != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", w.Code)
	}
}

func TestHandler_NoRoute(t *testing.T) {
	w := httptest.NewRecorder()
	Handler(NewHTTPTransport()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", w.Code)
	}
}
