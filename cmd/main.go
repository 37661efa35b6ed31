package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arenalab/churnsight/internal/app"
	"github.com/arenalab/churnsight/internal/config"
	"github.com/arenalab/churnsight/pkg/logger"
	"github.com/arenalab/churnsight/pkg/metrics"
)

// Metrics listener timeouts.
const (
	readHeaderTimeout = 5 * time.Second
)

func main() {
	// Optional .env for local runs; absence is not an error.
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	lg := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Apply configured log level (fallback to info on invalid input).
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		lg.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Optional metrics listener for the duration of the run.
	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, lg, cfg.MetricsAddr)
	}

	pipeline := app.New(cfg)
	summary, err := pipeline.Run(ctx)
	if err != nil {
		lg.Error(ctx, "pipeline failed", logger.Error(err))
		os.Exit(1)
	}

	ev := summary.Model.Evaluation
	lg.Info(ctx, "pipeline complete",
		logger.String("run_id", summary.RunID),
		logger.Int("players", summary.Players),
		logger.Int("qualified", summary.QualifiedPlayers),
		logger.Int64("dropped_battles", summary.DroppedBattles),
		logger.Time("horizon", summary.Horizon),
		logger.Float64("accuracy", ev.Accuracy),
		logger.Float64("roc_auc", ev.ROCAUC),
	)
	for _, row := range summary.Buckets {
		if row.FastReturnRate == nil {
			lg.Info(ctx, "tilt bucket (no qualifying entries)",
				logger.String("bucket", string(row.Bucket)))
			continue
		}
		lg.Info(ctx, "tilt bucket",
			logger.String("bucket", string(row.Bucket)),
			logger.Float64("fast_return_rate", *row.FastReturnRate),
			logger.Int("samples", row.SampleCount),
		)
	}
}

// serveMetrics exposes /metrics until the run context ends.
func serveMetrics(ctx context.Context, lg logger.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Default().Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), readHeaderTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	lg.Info(ctx, "metrics listener started", logger.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		lg.Warn(ctx, "metrics listener failed", logger.Error(err))
	}
}
