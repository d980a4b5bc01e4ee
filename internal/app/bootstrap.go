package app

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shiftplanner/shiftplanner/internal/observability"
	"github.com/shiftplanner/shiftplanner/internal/platform/cache"
	"github.com/shiftplanner/shiftplanner/internal/platform/db"
	"github.com/shiftplanner/shiftplanner/internal/schedules"
	"github.com/shiftplanner/shiftplanner/internal/shared"
)

const lockPrefix = "shiftplanner:lock:"

// Runtime holds the connections and services shared by the planner binaries.
type Runtime struct {
	Config      *Config
	Logger      *slog.Logger
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Metrics     *observability.Metrics
	Idempotency *shared.IdempotencyStore
	Schedules   *schedules.Service
}

// Bootstrap opens Postgres and Redis and wires the schedule service.
func Bootstrap(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: int32(cfg.WorkerConcurrency) + 4})
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		pool.Close()
		return nil, err
	}

	metrics := observability.NewMetrics()
	service := schedules.NewService(
		schedules.NewRepository(pool),
		shared.NewAuditLogger(pool),
		cache.NewLocker(redisClient, lockPrefix),
		metrics,
		logger,
		schedules.ServiceConfig{LockTTL: cfg.GenerationLockTTL},
	)

	return &Runtime{
		Config:      cfg,
		Logger:      logger,
		Pool:        pool,
		Redis:       redisClient,
		Metrics:     metrics,
		Idempotency: shared.NewIdempotencyStore(pool),
		Schedules:   service,
	}, nil
}

// RedisOpts returns the asynq connection settings for the shared Redis.
func (r *Runtime) RedisOpts() asynq.RedisClientOpt {
	return RedisOpts(r.Config)
}

// RedisOpts derives asynq connection settings from cfg.
func RedisOpts(cfg *Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// ReadinessChecks pings Postgres and Redis.
func (r *Runtime) ReadinessChecks() []ReadinessCheck {
	return []ReadinessCheck{
		{Name: "postgres", Check: r.Pool.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return r.Redis.Ping(ctx).Err() }},
	}
}

// Close releases connections.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			r.Logger.Warn("close redis", slog.Any("error", err))
		}
	}
	if r.Pool != nil {
		r.Pool.Close()
	}
}
