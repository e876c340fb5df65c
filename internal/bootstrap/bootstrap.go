// Package bootstrap wires configuration into running services for the
// command binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/provider-slot-booking/internal/api"
	"github.com/hackgods/provider-slot-booking/internal/appointment"
	"github.com/hackgods/provider-slot-booking/internal/config"
	"github.com/hackgods/provider-slot-booking/internal/db"
	"github.com/hackgods/provider-slot-booking/internal/events"
	"github.com/hackgods/provider-slot-booking/internal/lock"
	"github.com/hackgods/provider-slot-booking/internal/metrics"
	redisclient "github.com/hackgods/provider-slot-booking/internal/redis"
	"github.com/hackgods/provider-slot-booking/internal/schedule"
	"github.com/hackgods/provider-slot-booking/internal/storage/memory"
)

type Runtime struct {
	Schedules    *schedule.Service
	Appointments *appointment.Service
	Metrics      *metrics.Metrics
	Registry     *prometheus.Registry
	Checks       []api.Check

	PgPool *pgxpool.Pool
	Redis  *redis.Client

	closers []func()
}

// Close releases every connection opened by Build, newest first.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// Build connects the configured storage, lock and event backends.
func Build(ctx context.Context, cfg config.Config, service string, logger zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{}

	var (
		scheduleRepo    schedule.Repository
		appointmentRepo appointment.Repository
		tx              appointment.TxManager
	)

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{
			MaxConns:         cfg.PostgresMaxConns,
			StatementTimeout: cfg.StatementTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		rt.PgPool = pool
		rt.closers = append(rt.closers, pool.Close)
		logger.Info().Msg("connected to Postgres")

		if err := db.Migrate(ctx, pool); err != nil {
			rt.Close()
			return nil, err
		}

		scheduleRepo = schedule.NewPgRepository(pool)
		appointmentRepo = appointment.NewPgRepository(pool)
		tx = db.NewTxManager(pool)
		rt.Checks = append(rt.Checks, api.Check{Name: "postgres", Critical: true, Ping: pool.Ping})
	default:
		store := memory.New()
		scheduleRepo = store
		appointmentRepo = store
		tx = store
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.LockDriver == config.LockRedis {
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		rt.Redis = rdb
		rt.closers = append(rt.closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis")
			}
		})
		logger.Info().Msg("connected to Redis")

		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait, logger)
		rt.Checks = append(rt.Checks, api.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	publisher := events.Noop()
	if cfg.AMQPURL != "" {
		p, err := events.NewRabbitPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		publisher = p
		rt.closers = append(rt.closers, func() {
			if err := p.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing rabbitmq")
			}
		})
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing appointment events to RabbitMQ")
	}

	if cfg.MetricsEnabled {
		rt.Registry = prometheus.NewRegistry()
		rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rt.Metrics = metrics.New(service, rt.Registry)
	}

	rt.Schedules = schedule.NewService(scheduleRepo, logger, schedule.WithLocation(cfg.Timezone))
	rt.Appointments = appointment.NewService(appointment.Deps{
		Repo:      appointmentRepo,
		Slots:     rt.Schedules,
		Tx:        tx,
		Locker:    locker,
		Publisher: publisher,
		Metrics:   rt.Metrics,
		Logger:    logger,
	})

	return rt, nil
}
