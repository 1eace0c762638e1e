package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sagarc03/sigv4gate"
	"github.com/sagarc03/sigv4gate/config"
	sigv4gatehttp "github.com/sagarc03/sigv4gate/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authenticating proxy",
	Long: `Start the sigv4gate HTTP server.

Requests with a valid SigV4 signature are forwarded to --upstream with
the caller's principal in the X-Sigv4gate-Principal header. Without an
upstream, authenticated requests are answered with the caller's identity.

Admin endpoints live under /_sigv4gate: healthz, readyz and metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "HTTP server port")
	serveCmd.Flags().String("upstream", "", "base URL to proxy authenticated requests to")
	serveCmd.Flags().String("region", "", "region requests must be signed for (env: SIGV4GATE_AUTH_REGION)")
	serveCmd.Flags().String("service", "", "service name requests must be signed for (env: SIGV4GATE_AUTH_SERVICE)")
	serveCmd.Flags().String("keys-file", "", "JSON or YAML file with access keys")
	serveCmd.Flags().Bool("auto-migrate", true, "create the key table when the database key store is enabled")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openKeyStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	tp, shutdownTracing, err := setupTracing(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("flush spans", "err", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	upstream, err := newUpstream(cfg, tp)
	if err != nil {
		return err
	}

	interceptor, err := sigv4gatehttp.NewInterceptor(cfg.Auth.AuthConfig, sigv4gate.NewStoreKeyLookup(store), upstream,
		sigv4gatehttp.WithLogger(slog.Default()),
		sigv4gatehttp.WithMetrics(sigv4gatehttp.NewMetrics(reg)),
		sigv4gatehttp.WithTracer(tp),
	)
	if err != nil {
		return fmt.Errorf("create interceptor: %w", err)
	}
	slog.Debug("interceptor ready", "interceptor", interceptor.String())

	var svc sigv4gatehttp.Service = interceptor
	if cfg.Limits.RPS > 0 {
		burst := cfg.Limits.Burst
		if burst == 0 {
			burst = max(1, int(cfg.Limits.RPS))
		}
		svc = sigv4gatehttp.RateLimit(svc, rate.NewLimiter(rate.Limit(cfg.Limits.RPS), burst))
	}

	gateway := sigv4gatehttp.NewGateway(&sigv4gatehttp.GatewayConfig{
		CORS:     cfg.CORS,
		Gatherer: reg,
		Logger:   slog.Default(),
	}, svc)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(gateway.Router(), "sigv4gate", otelhttp.WithTracerProvider(tp)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr, "upstream", cfg.Server.Upstream,
			"region", cfg.Auth.Region, "service", cfg.Auth.Service)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// newUpstream returns the service authenticated requests are handed to:
// a proxy to server.upstream, optionally behind a circuit breaker, or the
// whoami handler when no upstream is configured.
func newUpstream(cfg *config.Config, tp trace.TracerProvider) (sigv4gatehttp.Service, error) {
	if cfg.Server.Upstream == "" {
		slog.Warn("no upstream configured, serving whoami for authenticated requests")
		return sigv4gatehttp.HandlerService(sigv4gatehttp.WhoAmI()), nil
	}

	target, err := url.Parse(cfg.Server.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}

	rt := otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithTracerProvider(tp))
	var svc sigv4gatehttp.Service = sigv4gatehttp.Transport(rt, target)

	if cfg.Breaker.Failures > 0 {
		failures := cfg.Breaker.Failures
		svc = sigv4gatehttp.CircuitBreaker(svc, gobreaker.Settings{
			Name:        "upstream",
			MaxRequests: cfg.Breaker.HalfOpen,
			Timeout:     cfg.Breaker.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		})
	}

	return svc, nil
}
