package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/AlexKimmel/ratequota/internal/config"
	"github.com/AlexKimmel/ratequota/internal/format"
	"github.com/AlexKimmel/ratequota/internal/ratelimit"
	"github.com/AlexKimmel/ratequota/internal/ratelimit/memory"
)

// optionalFloat is a float flag that remembers whether it was set.
type optionalFloat struct {
	v   float64
	set bool
}

func (f *optionalFloat) String() string {
	if !f.set {
		return ""
	}
	return fmt.Sprint(f.v)
}

func (f *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.New("must be a finite number")
	}
	f.v, f.set = v, true
	return nil
}

func runCheck(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("check", flag.ContinueOnError)
	flags.SetOutput(stderr)
	user := flags.String("user", "", "user identifier (required)")
	var at optionalFloat
	flags.Var(&at, "time", "timestamp in seconds (default: now)")
	policyPath := flags.String("config", "", "policy file (YAML or JSON); default capacity=5, refill_rate=1")
	level := flags.String("log-level", "warn", "log level for diagnostics on stderr")
	if err := flags.Parse(args); err != nil {
		return exitInvalid
	}
	logger := cliLogger(*level, stderr)

	u := *user
	if u == "" {
		fmt.Fprintln(stderr, "Error: user ID must be a non-empty string")
		return exitInvalid
	}

	policy := config.DefaultPolicy()
	if *policyPath != "" {
		p, err := config.LoadPolicy(*policyPath)
		if err != nil {
			return exitCode(logger, stderr, err)
		}
		policy = p
	}

	tracker, err := memory.NewTracker(policy)
	if err != nil {
		return exitCode(logger, stderr, err)
	}

	now := ratelimit.Seconds(time.Now())
	if at.set {
		now = at.v
	}
	d := tracker.Check(u, now)
	logger.Debug().Str("user", u).Float64("time", now).Bool("allowed", d.Allowed).Msg("check")

	if err := format.NewEncoder(stdout).Encode(format.NewResponse(u, now, d)); err != nil {
		return exitCode(logger, stderr, err)
	}
	return exitOK
}
