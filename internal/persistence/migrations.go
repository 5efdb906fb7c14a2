package persistence

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func migrationSource() *migrate.EmbedFileSystemMigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationsFS,
		Root:       "migrations",
	}
}

// RunMigrations applies the embedded SQL migrations in the given direction.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, direction migrate.MigrationDirection, logger *zap.Logger) (int, error) {
	if pool == nil {
		logger.Warn("no postgres pool available; skipping migrations")
		return 0, nil
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := migrate.Exec(db, "postgres", migrationSource(), direction)
		done <- result{n: n, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("migration timeout: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return 0, fmt.Errorf("apply migrations: %w", res.err)
		}
		logger.Info("migrations applied", zap.Int("count", res.n))
		return res.n, nil
	}
}

// MigrationNames lists the embedded migration ids in order.
func MigrationNames() ([]string, error) {
	migrations, err := migrationSource().FindMigrations()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(migrations))
	for _, m := range migrations {
		names = append(names, m.Id)
	}
	return names, nil
}
