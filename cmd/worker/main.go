// Command worker consumes moderation requests from the bus, scores the
// listings, and records the terminal task transitions. It exposes its own
// metrics endpoint since it serves no API traffic.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/ad-moderation/internal/adapter/observability"
	"github.com/fairyhunter13/ad-moderation/internal/adapter/queue/kafka"
	"github.com/fairyhunter13/ad-moderation/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ad-moderation/internal/adapter/scorer"
	"github.com/fairyhunter13/ad-moderation/internal/config"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(observability.SetupLogger(cfg))
	observability.InitMetrics()

	shutdownTracing, err := observability.SetupTracing(cfg)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("postgres pool: %w", err)
	}
	defer pool.Close()

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.ModerationTopic, cfg.DLQTopic)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()

	sc, err := scorer.LoadOrInit(cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("scorer: %w", err)
	}

	handler := kafka.NewHandler(
		postgres.NewAdvertRepo(pool),
		postgres.NewTaskRepo(pool),
		sc,
		producer,
	)
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.ModerationGroupID, cfg.ModerationTopic, handler)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	defer consumer.Close()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: metricsMux}
	go func() {
		slog.Info("metrics endpoint listening", slog.Int("port", cfg.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	if cfg.TaskRetentionDays > 0 {
		cleanup := postgres.NewCleanupService(pool, cfg.TaskRetentionDays)
		go cleanup.RunPeriodic(ctx, cfg.CleanupInterval)
	}

	err = consumer.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if serr := metricsSrv.Shutdown(shutdownCtx); serr != nil {
		slog.Error("metrics shutdown failed", slog.Any("error", serr))
	}
	if shutdownTracing != nil {
		if terr := shutdownTracing(shutdownCtx); terr != nil {
			slog.Error("tracing shutdown failed", slog.Any("error", terr))
		}
	}
	return err
}
