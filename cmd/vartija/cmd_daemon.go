package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/yairfalse/vartija/internal/daemon"
	"github.com/yairfalse/vartija/providers/aws"
	"github.com/yairfalse/vartija/telemetry"
)

var (
	daemonInterval    time.Duration
	daemonMetricsAddr string
	daemonRegion      string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run continuous policy scanning daemon",
	Long: `Run Vartija in daemon mode for continuous policy risk monitoring.

The daemon fetches live IAM, S3 and Lambda policies at configured
intervals, analyzes them as a batch, applies the stored whitelist, and
exports scan metrics.

Features:
- Continuous scan loop with an immediate first scan
- Prometheus metrics on /metrics endpoint
- Health checks on /health
- Graceful shutdown on SIGTERM/SIGINT`,
	Example: `  vartija daemon                         # Run with defaults
  vartija daemon --interval 15m          # Scan every 15 minutes
  vartija daemon --metrics-addr :9090    # Custom metrics address
  vartija daemon --region eu-west-1      # Specific region`,
	RunE: runDaemonCmd,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 15*time.Minute, "Scan interval")
	daemonCmd.Flags().StringVar(&daemonMetricsAddr, "metrics-addr", ":2112", "Metrics HTTP server address")
	daemonCmd.Flags().StringVar(&daemonRegion, "region", "", "AWS region (config region when empty)")
}

func runDaemonCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	region := daemonRegion
	if region == "" {
		region = cfg.Region
	}
	interval := daemonInterval
	if cfg.Daemon.ScanInterval > 0 && !cmd.Flags().Changed("interval") {
		interval = cfg.Daemon.ScanInterval
	}
	metricsAddr := daemonMetricsAddr
	if cfg.Daemon.MetricsAddr != "" && !cmd.Flags().Changed("metrics-addr") {
		metricsAddr = cfg.Daemon.MetricsAddr
	}

	fetcher, err := aws.NewFetcher(ctx, region)
	if err != nil {
		return err
	}

	orch, store, err := buildOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	opts := optionsFromConfig(cfg, "", "")
	if opts.AccountID == "" {
		if account, err := fetcher.AccountID(ctx); err == nil {
			opts.AccountID = account
		}
	}

	d, err := daemon.NewDaemon(daemon.Config{
		Interval: interval,
		Options:  opts,
	}, fetcher, orch)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	fmt.Printf("vartija daemon starting\n")
	fmt.Printf("  region:   %s\n", region)
	fmt.Printf("  interval: %s\n", interval)
	fmt.Printf("  metrics:  http://localhost%s/metrics\n", metricsAddr)

	var group run.Group

	// Scan loop.
	{
		loopCtx, cancel := context.WithCancel(ctx)
		group.Add(func() error {
			return d.Start(loopCtx)
		}, func(error) {
			cancel()
		})
	}

	// Metrics and health server.
	{
		listener, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", metricsAddr, err)
		}
		server := &http.Server{
			Handler:           metricsHandler(d),
			ReadHeaderTimeout: 5 * time.Second,
		}
		group.Add(func() error {
			return server.Serve(listener)
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		})
	}

	// Signal handler.
	group.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err = group.Run()
	if _, ok := err.(run.SignalError); ok || err == http.ErrServerClosed {
		fmt.Println("daemon stopped")
		return nil
	}
	return err
}

func metricsHandler(d *daemon.Daemon) http.Handler {
	mux := http.NewServeMux()

	if telemetry.PrometheusRegistry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(d.Health()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return mux
}
