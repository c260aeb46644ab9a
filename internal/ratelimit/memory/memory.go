package memory

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/AlexKimmel/ratequota/internal/ratelimit"
)

// Bucket is one user's token bucket. Timestamps are seconds supplied by the caller.
type Bucket struct {
	mu         sync.Mutex
	config     ratelimit.BucketConfig
	tokens     float64
	lastRefill float64
}

// NewBucket returns a full bucket whose refill clock starts at now.
func NewBucket(config ratelimit.BucketConfig, now float64) *Bucket {
	return &Bucket{
		config:     config,
		tokens:     config.Capacity,
		lastRefill: now,
	}
}

// refill must be called with b.mu held. A clock that did not advance adds nothing.
func (b *Bucket) refill(now float64) {
	elapsed := now - b.lastRefill
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.config.Capacity, b.tokens+elapsed*b.config.RefillRate)
	b.lastRefill = now
}

// TryConsume refills the bucket up to now and then takes one token if there is one.
func (b *Bucket) TryConsume(now float64) ratelimit.Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return ratelimit.Decision{Allowed: true, Remaining: b.tokens}
	}
	return ratelimit.Decision{
		Allowed:    false,
		Remaining:  b.tokens,
		RetryAfter: (1.0 - b.tokens) / b.config.RefillRate,
	}
}

// Tokens reports the token count as of the last operation, without refilling.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Tracker owns one bucket per user, created on the user's first request.
// Buckets live as long as the tracker; there is no eviction.
type Tracker struct {
	policy  ratelimit.QuotaPolicy
	buckets sync.Map // user -> *Bucket
	count   atomic.Int64
}

var _ ratelimit.Limiter = (*Tracker)(nil)

// NewTracker binds a tracker to policy. The policy is copied, so later changes
// to the caller's Users map are not seen.
func NewTracker(policy ratelimit.QuotaPolicy) (*Tracker, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("new tracker: %w", err)
	}
	return &Tracker{policy: policy.Clone()}, nil
}

// Policy is the tracker's own copy of the policy it was built with.
func (t *Tracker) Policy() ratelimit.QuotaPolicy { return t.policy }

// GetOrCreate returns the user's bucket, creating it full at now on first sight.
// Concurrent first requests for one user always end up with the same bucket.
func (t *Tracker) GetOrCreate(user string, now float64) *Bucket {
	if v, ok := t.buckets.Load(user); ok {
		return v.(*Bucket)
	}
	config, _ := t.policy.Resolve(user)
	v, loaded := t.buckets.LoadOrStore(user, NewBucket(config, now))
	if !loaded {
		t.count.Add(1)
	}
	return v.(*Bucket)
}

// Check is the decision pipeline: look up or create the bucket, then refill and consume.
func (t *Tracker) Check(user string, now float64) ratelimit.Decision {
	return t.GetOrCreate(user, now).TryConsume(now)
}

// Len is the number of live buckets.
func (t *Tracker) Len() int {
	return int(t.count.Load())
}
