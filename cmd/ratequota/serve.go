package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/AlexKimmel/ratequota/internal/api"
	"github.com/AlexKimmel/ratequota/internal/config"
	"github.com/AlexKimmel/ratequota/internal/gateway"
	"github.com/AlexKimmel/ratequota/internal/identity"
	"github.com/AlexKimmel/ratequota/internal/obs"
	"github.com/AlexKimmel/ratequota/internal/proxy"
	"github.com/AlexKimmel/ratequota/internal/ratelimit/memory"
	"github.com/AlexKimmel/ratequota/internal/routing"
)

func runServe(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	flags.SetOutput(stderr)
	path := flags.String("config", "./config.yaml", "server config file (YAML or JSON)")
	if err := flags.Parse(args); err != nil {
		return exitInvalid
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return exitCode(cliLogger("info", stderr), stderr, err)
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel, stdout)
	logger.Info().Str("config", *path).Msg("Setup logger")

	srv, err := newServer(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return exitCode(logger, stderr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return exitCode(logger, stderr, serve(ctx, srv, logger))
}

// newServer wires the limiter, metrics and proxy chain for cfg.
func newServer(cfg *config.Root, logger zerolog.Logger, reg *prometheus.Registry) (*http.Server, error) {
	tracker, err := memory.NewTracker(cfg.Policy)
	if err != nil {
		return nil, err
	}
	router, err := routing.FromConfig(cfg.Routes)
	if err != nil {
		return nil, err
	}

	policy := tracker.Policy()
	m := obs.NewMetrics(reg)
	m.TrackBuckets(tracker.Len)

	skip := map[string]struct{}{
		"/health":                         {},
		"/version":                        {},
		cfg.Observability.PrometheusPath: {},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(version))
	})
	mux.Handle(cfg.Observability.PrometheusPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/check", api.NewHandler(tracker, policy, time.Now, m.ObserveDecision).Check)

	ident := identity.NewHeader(cfg.Identity.Header)
	mux.Handle("/", gateway.Chain(
		proxy.Handler(proxy.NewHTTPTransport()),
		gateway.RouteMatcher(router, nil),
		ident.Middleware(nil),
		gateway.RateLimit(tracker, policy, time.Now, m.ObserveDecision),
	))

	handler := gateway.Chain(
		mux,
		obs.Logger(logger),
		gateway.Throttle(cfg.Server.MaxRPS, cfg.Server.IngressBurst, m.Throttled.Inc),
		gateway.BodyLimit(cfg.Server.MaxBody()),
		m.Middleware(skip),
	)

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Int("routes", len(router.Routes())).
		Str("identity_header", ident.Header()).
		Int("overrides", len(policy.Users)).
		Float64("default_capacity", policy.Default.Capacity).
		Float64("default_refill_rate", policy.Default.RefillRate).
		Msg("configured")

	return &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
	}, nil
}

// serve runs srv until ctx is done, then shuts it down with a 10s deadline.
func serve(ctx context.Context, srv *http.Server, logger zerolog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info().Msg("bye")
	return nil
}
