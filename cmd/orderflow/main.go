package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/angelmondragon/orderflow/internal/engine"
	"github.com/angelmondragon/orderflow/internal/orderlock"
	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/db"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
	"github.com/angelmondragon/orderflow/pkg/migrate"
	"github.com/angelmondragon/orderflow/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "orderflow", Output: os.Stderr})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "orderflow",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Output:      os.Stderr,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(registry)

	locker, closeLocker, err := buildLocker(cfg, logg, engineMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap order lock", err)
		os.Exit(1)
	}
	defer closeLocker()

	application, err := newApp(engine.Params{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Locker:  locker,
		Metrics: engineMetrics,
	}, os.Stdout)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"driver": cfg.DB.Driver,
	})

	runErr := application.run(ctx, os.Args[1:])
	if os.Getenv("ORDERFLOW_DUMP_METRICS") != "" {
		if err := dumpMetrics(os.Stderr, registry); err != nil {
			logg.Error(ctx, "failed to dump metrics", err)
		}
	}
	if runErr != nil {
		if !errors.Is(runErr, errUsage) {
			logg.Error(ctx, "command failed", runErr)
		}
		os.Exit(exitCode(runErr))
	}
}

// buildLocker prefers the Redis lock when Redis is configured and falls back
// to the in-process lock otherwise.
func buildLocker(cfg *config.Config, logg *logger.Logger, m *metrics.EngineMetrics) (orderlock.Locker, func(), error) {
	if !cfg.Redis.Enabled() {
		logg.Info(context.Background(), "redis not configured, using in-process order lock")
		return orderlock.NewMemoryLocker(m), func() {}, nil
	}
	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	locker, err := orderlock.NewRedisLocker(redisClient, cfg.Lock.TTL, logg, m)
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, err
	}
	return locker.WithScope(cfg.Lock.KeyPrefix), func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}, nil
}

func dumpMetrics(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return err
		}
	}
	return nil
}

func exitCode(err error) int {
	if errors.Is(err, errUsage) {
		return 2
	}
	if typed := pkgerrors.As(err); typed != nil && pkgerrors.MetadataFor(typed.Code()).Retryable {
		return 75
	}
	return 1
}
