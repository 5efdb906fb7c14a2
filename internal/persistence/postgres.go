package persistence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"

	"github.com/helpdesk-hub/ticket-service/internal/config"
	"github.com/helpdesk-hub/ticket-service/internal/repository"
)

// ErrNoDatabase is returned by NewPostgres when no DSN is configured.
var ErrNoDatabase = errors.New("postgres: POSTGRES_DSN not set")

// Postgres owns the pool behind the ticket store.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenStore picks the backing store: Postgres when a DSN is configured, the
// in-memory store otherwise. The returned *Postgres is nil for the latter.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, *Postgres, error) {
	pg, err := NewPostgres(ctx, cfg.Postgres, cfg.Lifecycle.LockTimeout, logger)
	if errors.Is(err, ErrNoDatabase) {
		logger.Warn("POSTGRES_DSN not set; tickets are kept in memory and lost on restart")
		return repository.NewMemoryStore(), nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return pg.Store(), pg, nil
}

// NewPostgres connects and pings. Every pooled session gets lockTimeout as its
// lock_timeout, so a unit of work blocked on a row lock fails with a
// concurrent modification instead of queueing.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig, lockTimeout time.Duration, logger *zap.Logger) (*Postgres, error) {
	poolCfg, err := poolConfig(cfg, lockTimeout)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres",
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Duration("lock_timeout", lockTimeout))
	return &Postgres{pool: pool}, nil
}

func poolConfig(cfg config.PostgresConfig, lockTimeout time.Duration) (*pgxpool.Config, error) {
	if cfg.DSN == "" {
		return nil, ErrNoDatabase
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxIdleSec > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleSec) * time.Second
	}
	if cfg.ConnMaxLifeSec > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifeSec) * time.Second
	}
	if ms := lockTimeout.Milliseconds(); ms > 0 {
		poolCfg.ConnConfig.RuntimeParams["lock_timeout"] = strconv.FormatInt(ms, 10)
	}
	return poolCfg, nil
}

// Store returns the repository store running on this pool.
func (p *Postgres) Store() repository.Store {
	return repository.NewPostgresStore(p.pool)
}

// Migrate applies or rolls back the embedded schema.
func (p *Postgres) Migrate(ctx context.Context, direction migrate.MigrationDirection, logger *zap.Logger) (int, error) {
	return RunMigrations(ctx, p.pool, direction, logger)
}

// Close releases pool resources.
func (p *Postgres) Close() {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
}

// Ping verifies database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return p.pool.Ping(ctx)
}
