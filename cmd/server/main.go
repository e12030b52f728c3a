// Command server runs the moderation API: the synchronous scoring
// endpoints, the entity lifecycle endpoints, and the async enqueue path.
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

	rediscache "github.com/fairyhunter13/ad-moderation/internal/adapter/cache/redis"
	"github.com/fairyhunter13/ad-moderation/internal/adapter/httpserver"
	"github.com/fairyhunter13/ad-moderation/internal/adapter/observability"
	"github.com/fairyhunter13/ad-moderation/internal/adapter/queue/kafka"
	"github.com/fairyhunter13/ad-moderation/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ad-moderation/internal/adapter/scorer"
	"github.com/fairyhunter13/ad-moderation/internal/app"
	"github.com/fairyhunter13/ad-moderation/internal/config"
	"github.com/fairyhunter13/ad-moderation/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
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

	rdb := rediscache.NewClient(cfg.RedisAddr(), cfg.RedisDB, cfg.RedisConnectTimeout, cfg.RedisReadTimeout)
	defer func() { _ = rdb.Close() }()

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.ModerationTopic, cfg.DLQTopic)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()

	sc, err := scorer.LoadOrInit(cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("scorer: %w", err)
	}

	users := postgres.NewUserRepo(pool)
	adverts := postgres.NewAdvertRepo(pool)
	tasks := postgres.NewTaskRepo(pool)
	predictions := rediscache.NewPredictionCache(rdb)
	taskCache := rediscache.NewTaskCache(rdb)

	api := httpserver.NewServer(
		usecase.NewEntityService(users, adverts, predictions, taskCache),
		usecase.NewPredictService(adverts, sc, predictions),
		usecase.NewModerationService(adverts, tasks, producer, taskCache),
	)

	ready := app.NewReadiness()
	ready.Add("postgres", func(ctx context.Context) error { return pool.Ping(ctx) })
	ready.Add("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	ready.Add("kafka", producer.Ping)

	if cfg.TaskRetentionDays > 0 {
		cleanup := postgres.NewCleanupService(pool, cfg.TaskRetentionDays)
		go cleanup.RunPeriodic(ctx, cfg.CleanupInterval)
	}

	srv := app.NewHTTPServer(cfg, app.NewRouter(cfg, api, ready), fmt.Sprintf(":%d", cfg.Port))

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", slog.Any("error", err))
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Error("tracing shutdown failed", slog.Any("error", err))
		}
	}
	return nil
}
