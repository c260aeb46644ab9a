package gateway

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/AlexKimmel/ratequota/internal/format"
	"github.com/AlexKimmel/ratequota/internal/identity"
	"github.com/AlexKimmel/ratequota/internal/ratelimit"
)

// RateLimit checks every request against lim, keyed by the user that
// identity.Middleware put in the context. policy is only used for headers and
// the tier passed to onDecision; lim holds its own copy.
func RateLimit(
	lim ratelimit.Limiter,
	policy ratelimit.QuotaPolicy,
	now func() time.Time,
	onDecision func(tier string, d ratelimit.Decision),
) Middleware {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := identity.UserFrom(r.Context())
			if !ok {
				writeJSON(w, http.StatusBadRequest, "missing_user_id", "no user id on request")
				return
			}

			dec := lim.Check(user, ratelimit.Seconds(now()))
			if onDecision != nil {
				onDecision(policy.Tier(user), dec)
			}

			cfg, _ := policy.Resolve(user)
			w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(cfg.Capacity, 'f', -1, 64))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(math.Floor(dec.Remaining))))

			if !dec.Allowed {
				hlog.FromRequest(r).Debug().
					Str("user", user).
					Float64("retry_after", dec.RetryAfter).
					Msg("rate limited")
				w.Header().Set("Retry-After", format.RetryAfterHeader(dec.RetryAfter))
				writeJSON(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
