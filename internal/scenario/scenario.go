// Package scenario replays an ordered list of requests against one tracker,
// so later requests see the token state left by earlier ones.
package scenario

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/AlexKimmel/ratequota/internal/config"
	"github.com/AlexKimmel/ratequota/internal/format"
	"github.com/AlexKimmel/ratequota/internal/ratelimit"
	"github.com/AlexKimmel/ratequota/internal/ratelimit/memory"
)

// Observer is told about every decision, e.g. to update metrics.
type Observer interface {
	ObserveDecision(tier string, d ratelimit.Decision)
}

type options struct {
	logger   zerolog.Logger
	observer Observer
}

type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// Run checks every request of sc in order. It stops at the first request that
// fails validation and returns the responses produced so far with the error.
func Run(sc *config.Scenario, opts ...Option) ([]format.Response, error) {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	tracker, err := memory.NewTracker(sc.Policy)
	if err != nil {
		return nil, err
	}

	out := make([]format.Response, 0, len(sc.Requests))
	denied := 0
	for i, req := range sc.Requests {
		user, now, err := config.ValidateRequest(req)
		if err != nil {
			return out, fmt.Errorf("request %d: %w", i+1, err)
		}

		d := tracker.Check(user, now)
		if o.observer != nil {
			o.observer.ObserveDecision(sc.Policy.Tier(user), d)
		}
		o.logger.Debug().
			Int("n", i+1).
			Str("user", user).
			Float64("time", now).
			Bool("allowed", d.Allowed).
			Float64("remaining", d.Remaining).
			Float64("retry_after", d.RetryAfter).
			Msg("decision")

		if !d.Allowed {
			denied++
		}
		out = append(out, format.NewResponse(user, now, d))
	}

	if denied > 0 {
		o.logger.Warn().Int("denied", denied).Int("requests", len(out)).Msg("requests denied")
	}

	o.logger.Info().
		Int("requests", len(out)).
		Int("users", tracker.Len()).
		Msg("scenario done")
	return out, nil
}
