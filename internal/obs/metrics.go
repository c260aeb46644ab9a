package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AlexKimmel/ratequota/internal/format"
	"github.com/AlexKimmel/ratequota/internal/gateway"
	"github.com/AlexKimmel/ratequota/internal/ratelimit"
	"github.com/AlexKimmel/ratequota/internal/routing"
)

type Metrics struct {
	reg prometheus.Registerer

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Decisions       *prometheus.CounterVec
	RetryAfter      prometheus.Histogram
	Throttled       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratequota_http_requests_total",
				Help: "Total HTTP requests handled",
			},
			[]string{"route", "method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratequota_http_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratequota_decisions_total",
				Help: "Rate limit decisions by quota tier and outcome",
			},
			[]string{"tier", "decision"},
		),
		RetryAfter: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ratequota_retry_after_seconds",
				Help:    "Retry-after handed out on denied requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		Throttled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ratequota_ingress_throttled_total",
				Help: "Requests rejected by the process-wide ingress throttle",
			},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.Decisions, m.RetryAfter, m.Throttled)
	return m
}

// TrackBuckets exports the number of live buckets as a gauge.
func (m *Metrics) TrackBuckets(count func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ratequota_buckets",
			Help: "Live per-user token buckets",
		},
		func() float64 { return float64(count()) },
	))
}

// ObserveDecision counts d under tier.
func (m *Metrics) ObserveDecision(tier string, d ratelimit.Decision) {
	if d.Allowed {
		m.Decisions.WithLabelValues(tier, format.Allow).Inc()
		return
	}
	m.Decisions.WithLabelValues(tier, format.Deny).Inc()
	m.RetryAfter.Observe(d.RetryAfter)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Middleware records per-request metrics. The route label is filled in by
// gateway.RouteMatcher further down the chain through a routing.Holder.
func (m *Metrics) Middleware(skip map[string]struct{}) gateway.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			holder := routing.NewHolder()

			next.ServeHTTP(rec, routing.WithHolder(r, holder))

			route := "unknown"
			if rt := holder.Route(); rt != nil && rt.ID != "" {
				route = rt.ID
			}

			code := rec.status
			if code == 0 {
				code = http.StatusOK
			}

			m.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(code)).Inc()
		})
	}
}
