package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kulu-io/kulu/checks"
	"github.com/kulu-io/kulu/collector"
	"github.com/kulu-io/kulu/config"
	"github.com/kulu-io/kulu/gateway"
	"github.com/kulu-io/kulu/internal/daemon"
	"github.com/kulu-io/kulu/telemetry"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the pipeline continuously",
	Long: `Run Kulu in daemon mode: collect metrics, re-evaluate findings
and prune old samples on the configured interval.

Serves Prometheus metrics on /metrics and liveness on /healthz.
Shuts down gracefully on SIGTERM/SIGINT.`,
	Example: `  kulu daemon                     # Use config defaults
  kulu daemon -c /etc/kulu.yaml   # Explicit config file`,
	RunE: runDaemonCmd,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "kulu",
		ServiceVersion: version,
		Environment:    cfg.OTEL.Environment,
		OTELEndpoint:   cfg.OTEL.Endpoint,
		Insecure:       cfg.OTEL.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	pool := gateway.NewPool(cfg.Provider, cfg.GatewayConfig())
	coll := collector.New(store, collector.NewGatewayPool(pool), cfg.CollectorConfig())
	engine := checks.NewEngine(store, store, checks.NewDefaultRegistry(), cfg.Thresholds())

	d, err := daemon.New(coll, engine, store, store, daemon.Config{
		Interval:  cfg.Daemon.Interval.Std(),
		Retention: time.Duration(cfg.Retention.Days) * 24 * time.Hour,
		Accounts:  cfg.ProviderAccounts(),
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	log.Info().
		Str("provider", cfg.Provider).
		Int("accounts", len(cfg.Accounts)).
		Dur("interval", cfg.Daemon.Interval.Std()).
		Str("listen", cfg.Daemon.ListenAddr).
		Msg("kulu daemon starting")

	var g run.Group

	// Signal handling
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	// Pipeline loop
	loopCtx, loopCancel := context.WithCancel(ctx)
	g.Add(func() error {
		return d.Start(loopCtx)
	}, func(error) {
		loopCancel()
	})

	// Metrics and health server
	server := newHTTPServer(cfg, d)
	g.Add(func() error {
		log.Info().Str("addr", cfg.Daemon.ListenAddr).Msg("starting metrics server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	err = g.Run()
	if _, ok := err.(run.SignalError); ok {
		log.Info().Msg("shutting down")
		return nil
	}
	return err
}

func newHTTPServer(cfg *config.Config, d *daemon.Daemon) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		telemetry.PrometheusRegistry,
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/readyz", handleReadyz(d))

	return &http.Server{
		Addr:              cfg.Daemon.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz reports JSON health once the daemon object exists; a
// daemon that has never completed a cycle is still ready
func handleReadyz(d *daemon.Daemon) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(d.Health())
	}
}
