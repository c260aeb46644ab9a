package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/AlexKimmel/ratequota/internal/ratelimit"
	"github.com/AlexKimmel/ratequota/internal/routing"
)

func TestSetupLogger_Level(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := SetupLogger(tt.in, &bytes.Buffer{}).GetLevel(); got != tt.want {
			t.Errorf("SetupLogger(%q) level = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_AccessLine(t *testing.T) {
	var buf bytes.Buffer
	h := Logger(SetupLogger("info", &buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := hlog.IDFromRequest(r); !ok {
			t.Error("no request id in handler")
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("access line is not JSON: %v (%s)", err, buf.String())
	}
	if line["path"] != "/brew" || line["status"] != float64(http.StatusTeapot) || line["message"] != "req" {
		t.Errorf("access line = %v", line)
	}
}

func TestMetrics_ObserveDecision(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveDecision("default", ratelimit.Decision{Allowed: true, Remaining: 3})
	m.ObserveDecision("default", ratelimit.Decision{Allowed: false, RetryAfter: 0.5})
	m.ObserveDecision("override", ratelimit.Decision{Allowed: true})

	if got := testutil.ToFloat64(m.Decisions.WithLabelValues("default", "ALLOW")); got != 1 {
		t.Errorf("default/ALLOW = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Decisions.WithLabelValues("default", "DENY")); got != 1 {
		t.Errorf("default/DENY = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Decisions.WithLabelValues("override", "ALLOW")); got != 1 {
		t.Errorf("override/ALLOW = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.RetryAfter); got != 1 {
		t.Errorf("retry-after series = %d, want 1", got)
	}
}

func TestMetrics_TrackBuckets(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	n := 0
	m.TrackBuckets(func() int { return n })
	n = 7

	want := `
# HELP ratequota_buckets Live per-user token buckets
# TYPE ratequota_buckets gauge
ratequota_buckets 7
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "ratequota_buckets"); err != nil {
		t.Error(err)
	}
}

func TestMetrics_MiddlewareRouteLabel(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	rt := &routing.Route{ID: "orders"}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = routing.WithRoute(r, rt)
		w.WriteHeader(http.StatusCreated)
	})
	h := m.Middleware(map[string]struct{}{"/health": {}})(inner)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/orders", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("orders", "POST", "201")); got != 1 {
		t.Errorf("orders/POST/201 = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.RequestsTotal); got != 1 {
		t.Errorf("series = %d, want 1 (skipped path must not be counted)", got)
	}
}

func TestMetrics_MiddlewareUnknownRoute(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := m.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hi"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("unknown", "GET", "200")); got != 1 {
		t.Errorf("unknown/GET/200 = %v, want 1", got)
	}
}
