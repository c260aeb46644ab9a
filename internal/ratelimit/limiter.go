package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidConfig is returned when a quota policy cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")

	ErrNonPositiveCapacity   = errors.New("capacity must be positive")
	ErrNonPositiveRefillRate = errors.New("refill rate must be positive")
	ErrInfiniteCapacity      = errors.New("capacity must be finite")
	ErrInfiniteRefillRate    = errors.New("refill rate must be finite")
)

// BucketConfig describes one class of user: burst size and refill speed.
type BucketConfig struct {
	Capacity   float64 // maximum tokens (burst)
	RefillRate float64 // tokens per second
}

func (c BucketConfig) Validate() error {
	if !(c.Capacity > 0) {
		return ErrNonPositiveCapacity
	}
	if math.IsInf(c.Capacity, 0) {
		return ErrInfiniteCapacity
	}
	if !(c.RefillRate > 0) {
		return ErrNonPositiveRefillRate
	}
	if math.IsInf(c.RefillRate, 0) {
		return ErrInfiniteRefillRate
	}
	return nil
}

// QuotaPolicy maps user ids to bucket configs. Users without an entry get Default.
type QuotaPolicy struct {
	Default BucketConfig
	Users   map[string]BucketConfig
}

func (p QuotaPolicy) Validate() error {
	if err := p.Default.Validate(); err != nil {
		return fmt.Errorf("%w: default: %w", ErrInvalidConfig, err)
	}
	for user, c := range p.Users {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: user %q: %w", ErrInvalidConfig, user, err)
		}
	}
	return nil
}

// Resolve returns the config that applies to user and whether it is a per-user override.
func (p QuotaPolicy) Resolve(user string) (BucketConfig, bool) {
	if c, ok := p.Users[user]; ok {
		return c, true
	}
	return p.Default, false
}

// Tier labels the quota class of user: "override" or "default".
func (p QuotaPolicy) Tier(user string) string {
	if _, ok := p.Users[user]; ok {
		return "override"
	}
	return "default"
}

// Clone returns a copy whose Users map is not shared with p.
func (p QuotaPolicy) Clone() QuotaPolicy {
	users := make(map[string]BucketConfig, len(p.Users))
	for k, v := range p.Users {
		users[k] = v
	}
	return QuotaPolicy{Default: p.Default, Users: users}
}

type Decision struct {
	Allowed    bool
	Remaining  float64 // tokens left after this request, full precision
	RetryAfter float64 // seconds until one token is available; 0 when allowed
}

// Limiter decides requests for a user at an explicit timestamp in seconds.
type Limiter interface {
	Check(user string, now float64) Decision
}

// Seconds converts a wall-clock time to the float timestamps limiters take.
func Seconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}
