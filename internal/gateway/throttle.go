package gateway

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/AlexKimmel/ratequota/internal/format"
)

// Throttle caps the whole process at rps requests per second with the given burst,
// before any per-user accounting. rps <= 0 disables it.
func Throttle(rps float64, burst int, onThrottled func()) Middleware {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := lim.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				if onThrottled != nil {
					onThrottled()
				}
				w.Header().Set("Retry-After", format.RetryAfterHeader(delay.Seconds()))
				writeJSON(w, http.StatusServiceUnavailable, "overloaded", "server is over capacity")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
