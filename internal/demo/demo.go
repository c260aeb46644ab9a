// Package demo walks through the limiter's behaviour with narration.
package demo

import (
	"fmt"
	"io"
	"strings"

	"github.com/AlexKimmel/ratequota/internal/format"
	"github.com/AlexKimmel/ratequota/internal/ratelimit"
	"github.com/AlexKimmel/ratequota/internal/ratelimit/memory"
)

type narrator struct {
	w   io.Writer
	err error
}

func (n *narrator) say(msg string, args ...any) {
	if n.err != nil {
		return
	}
	_, n.err = fmt.Fprintf(n.w, msg+"\n", args...)
}

func (n *narrator) rule() { n.say("%s", strings.Repeat("=", 60)) }

func (n *narrator) heading(title string) {
	n.rule()
	n.say("%s", title)
	n.rule()
	n.say("")
}

func (n *narrator) check(tr *memory.Tracker, label, user string, now float64) ratelimit.Decision {
	d := tr.Check(user, now)
	line, err := format.Line(format.NewResponse(user, now, d))
	if err != nil {
		if n.err == nil {
			n.err = err
		}
		return d
	}
	n.say("  %s: %s", label, line)
	return d
}

// Run prints the three walk-throughs to w.
func Run(w io.Writer) error {
	n := &narrator{w: w}

	n.say("")
	n.say("Rate Limiter with Per-User Quotas -- Demo")
	n.rule()
	n.say("")

	for _, step := range []func(*narrator) error{burstAndRecovery, userIndependence, tierDifferences} {
		if err := step(n); err != nil {
			return err
		}
	}

	n.rule()
	n.say("Demo complete.")
	n.say("")
	return n.err
}

func burstAndRecovery(n *narrator) error {
	n.heading("DEMO 1: Burst and Exhaustion with Recovery")
	n.say("User 'diana' has a bucket (capacity=5, refill_rate=1/s).")
	n.say("She sends 6 rapid requests at t=0, then one more at t=2.")
	n.say("")

	tr, err := memory.NewTracker(ratelimit.QuotaPolicy{
		Default: ratelimit.BucketConfig{Capacity: 5, RefillRate: 1.0},
	})
	if err != nil {
		return err
	}
	for i := 1; i <= 6; i++ {
		n.check(tr, fmt.Sprintf("Request %d at t=0.0", i), "diana", 0)
	}

	n.say("")
	n.say("Diana is denied. She waits 2 seconds for tokens to refill...")
	n.say("")
	n.check(tr, "Request 7 at t=2.0", "diana", 2)
	n.say("")
	n.say("Recovery confirmed: after waiting, diana can make requests again.")
	n.say("")
	return n.err
}

func userIndependence(n *narrator) error {
	n.heading("DEMO 2: Per-User Independence")
	n.say("Users 'eve' and 'frank' each get independent buckets.")
	n.say("Eve exhausts hers; frank should be completely unaffected.")
	n.say("")

	tr, err := memory.NewTracker(ratelimit.QuotaPolicy{
		Default: ratelimit.BucketConfig{Capacity: 5, RefillRate: 1.0},
	})
	if err != nil {
		return err
	}
	for i := 1; i <= 5; i++ {
		n.check(tr, fmt.Sprintf("Eve request %d", i), "eve", 0)
	}
	n.check(tr, "Eve request 6 (denied)", "eve", 0)

	n.say("")
	n.say("Eve is exhausted. Now frank makes his first request:")
	n.say("")
	n.check(tr, "Frank request 1", "frank", 0)
	n.say("")
	n.say("Frank has a full bucket despite eve being exhausted.")
	n.say("")
	return n.err
}

func tierDifferences(n *narrator) error {
	n.heading("DEMO 3: Premium vs. Free Tier")
	n.say("Config: 'gold_user' gets capacity=8, refill_rate=4/s (premium).")
	n.say("        Default users get capacity=4, refill_rate=1/s (free).")
	n.say("")

	tr, err := memory.NewTracker(ratelimit.QuotaPolicy{
		Default: ratelimit.BucketConfig{Capacity: 4, RefillRate: 1.0},
		Users: map[string]ratelimit.BucketConfig{
			"gold_user": {Capacity: 8, RefillRate: 4.0},
		},
	})
	if err != nil {
		return err
	}
	i := 1
	for _, user := range []string{"gold_user", "basic_user"} {
		for range 5 {
			n.check(tr, fmt.Sprintf("Request %d", i), user, 0)
			i++
		}
	}

	n.say("")
	n.say("Gold user made 5 requests and still has 3 tokens left.")
	n.say("Basic user is denied after 4 requests (lower capacity).")
	n.say("")
	return n.err
}
