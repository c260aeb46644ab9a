package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AlexKimmel/ratequota/internal/identity"
	"github.com/AlexKimmel/ratequota/internal/ratelimit"
	"github.com/AlexKimmel/ratequota/internal/ratelimit/memory"
	"github.com/AlexKimmel/ratequota/internal/routing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestChain_Order(t *testing.T) {
	var calls []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler, mark("a"), mark("b"), mark("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := strings.Join(calls, ""); got != "abc" {
		t.Errorf("call order = %q, want abc", got)
	}
}

func TestBodyLimit(t *testing.T) {
	h := BodyLimit(4)(okHandler)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Status = %d, want 413", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny")))
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}
}

func TestRouteMatcher(t *testing.T) {
	rr := routing.New()
	rr.Add(&routing.Route{ID: "api", Prefix: "/api", Methods: map[string]struct{}{http.MethodGet: {}}})

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt, ok := routing.RouteFrom(r); ok {
			seen = rt.ID
		}
	})
	h := RouteMatcher(rr, map[string]struct{}{"/health": {}})(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	if seen != "api" {
		t.Errorf("route = %q, want api", seen)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("skipped path: Status = %d, want 200", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	policy := ratelimit.QuotaPolicy{
		Default: ratelimit.BucketConfig{Capacity: 2, RefillRate: 0.5},
		Users:   map[string]ratelimit.BucketConfig{"vip": {Capacity: 10, RefillRate: 10}},
	}
	tr, err := memory.NewTracker(policy)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	clock := time.Unix(100, 0)
	var decisions []string
	mw := RateLimit(tr, policy, func() time.Time { return clock }, func(tier string, d ratelimit.Decision) {
		decisions = append(decisions, tier)
	})
	h := mw(okHandler)

	send := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if user != "" {
			req = req.WithContext(identity.WithUser(req.Context(), user))
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	w := send("alice")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want 2", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("X-RateLimit-Remaining = %q, want 1", got)
	}

	send("alice")
	w = send("alice")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}

	clock = clock.Add(2 * time.Second)
	if w := send("alice"); w.Code != http.StatusOK {
		t.Errorf("after refill: Status = %d, want 200", w.Code)
	}

	if w := send("vip"); w.Header().Get("X-RateLimit-Limit") != "10" {
		t.Errorf("vip limit = %q, want 10", w.Header().Get("X-RateLimit-Limit"))
	}

	if w := send(""); w.Code != http.StatusBadRequest {
		t.Errorf("no user: Status = %d, want 400", w.Code)
	}

	if got := strings.Join(decisions, ","); got != "default,default,default,default,override" {
		t.Errorf("decisions = %s", got)
	}
}

func TestThrottle(t *testing.T) {
	throttled := 0
	h := Throttle(1, 2, func() { throttled++ })(okHandler)

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusServiceUnavailable && w.Header().Get("Retry-After") == "" {
			t.Error("503 without Retry-After")
		}
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusServiceUnavailable {
		t.Errorf("codes = %v, want [200 200 503]", codes)
	}
	if throttled != 1 {
		t.Errorf("throttled = %d, want 1", throttled)
	}
}

func TestThrottle_Disabled(t *testing.T) {
	h := Throttle(0, 0, nil)(okHandler)
	for range 100 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200", w.Code)
		}
	}
}
