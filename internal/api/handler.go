package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/AlexKimmel/ratequota/internal/format"
	"github.com/AlexKimmel/ratequota/internal/ratelimit"
)

// Handler serves ad-hoc decisions over HTTP against a shared limiter.
type Handler struct {
	limiter    ratelimit.Limiter
	policy     ratelimit.QuotaPolicy
	now        func() time.Time
	onDecision func(tier string, d ratelimit.Decision)
}

// NewHandler creates a handler. now defaults to time.Now and is only used
// when a request carries no time; onDecision may be nil.
func NewHandler(lim ratelimit.Limiter, policy ratelimit.QuotaPolicy, now func() time.Time, onDecision func(string, ratelimit.Decision)) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{limiter: lim, policy: policy, now: now, onDecision: onDecision}
}

// CheckRequest is the body of POST /v1/check.
type CheckRequest struct {
	User string   `json:"user"`
	Time *float64 `json:"time,omitempty"` // seconds; defaults to the server's wall clock
}

// ErrorResponse is the error body shared by every endpoint of the server.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Check handles POST /v1/check. It answers 200 on ALLOW and 429 on DENY,
// with the formatted decision as body either way.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	var req CheckRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	user := req.User
	if user == "" {
		h.sendError(w, http.StatusBadRequest, "missing_user", "user must be a non-empty string")
		return
	}

	now := ratelimit.Seconds(h.now())
	if req.Time != nil {
		now = *req.Time
	}

	d := h.limiter.Check(user, now)
	if h.onDecision != nil {
		h.onDecision(h.policy.Tier(user), d)
	}
	resp := format.NewResponse(user, now, d)

	hlog.FromRequest(r).Debug().
		Str("user", user).
		Float64("time", now).
		Str("decision", resp.Decision).
		Float64("remaining", d.Remaining).
		Msg("check")

	status := http.StatusOK
	if !d.Allowed {
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", format.RetryAfterHeader(d.RetryAfter))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{Code: errorCode, Message: message},
	})
}
