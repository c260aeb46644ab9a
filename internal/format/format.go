// Package format renders limiter decisions for people and pipes.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/AlexKimmel/ratequota/internal/ratelimit"
)

const (
	Allow = "ALLOW"
	Deny  = "DENY"
)

// Response is the external shape of one decision. RetryAfter is only set on DENY.
type Response struct {
	User       string   `json:"user"`
	Time       float64  `json:"time"`
	Decision   string   `json:"decision"`
	Remaining  float64  `json:"remaining"`
	RetryAfter *float64 `json:"retry_after,omitempty"`
}

// Round2 rounds to two decimal places, halves away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func NewResponse(user string, now float64, d ratelimit.Decision) Response {
	r := Response{
		User:      user,
		Time:      now,
		Decision:  Allow,
		Remaining: Round2(d.Remaining),
	}
	if !d.Allowed {
		r.Decision = Deny
		retry := Round2(d.RetryAfter)
		r.RetryAfter = &retry
	}
	return r
}

// Encoder writes one JSON object per line.
type Encoder struct {
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

func (e *Encoder) Encode(r Response) error {
	return e.enc.Encode(r)
}

// Line is the single-line JSON form of r, without a trailing newline.
func Line(r Response) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("format response for %q: %w", r.User, err)
	}
	return string(b), nil
}

// RetryAfterHeader renders seconds as an HTTP Retry-After value: whole
// seconds rounded up, never below 1.
func RetryAfterHeader(seconds float64) string {
	n := int(math.Ceil(seconds))
	if n < 1 {
		n = 1
	}
	return strconv.Itoa(n)
}
