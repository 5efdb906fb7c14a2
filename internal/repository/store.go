package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository level sentinels. Services translate them into DomainErrors.
var (
	ErrNotFound               = errors.New("repository: not found")
	ErrConcurrentModification = errors.New("repository: concurrent modification")
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories groups the per-table repositories bound to one connection or
// transaction.
type Repositories interface {
	Tickets() TicketRepository
	SubTickets() SubTicketRepository
	Approvals() ApprovalRepository
	Audit() AuditRepository
	Outbox() OutboxRepository
	Codes() CodeRepository
}

// Store hands out repositories for plain reads and runs units of work.
// Everything done through the Repositories passed to fn commits or rolls back
// together.
type Store interface {
	Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
	Ping(ctx context.Context) error
}

type queries struct {
	db DBTX
}

func (q queries) Tickets() TicketRepository       { return &ticketRepository{db: q.db} }
func (q queries) SubTickets() SubTicketRepository { return &subTicketRepository{db: q.db} }
func (q queries) Approvals() ApprovalRepository   { return &approvalRepository{db: q.db} }
func (q queries) Audit() AuditRepository          { return &auditRepository{db: q.db} }
func (q queries) Outbox() OutboxRepository        { return &outboxRepository{db: q.db} }
func (q queries) Codes() CodeRepository           { return &codeRepository{db: q.db} }

type pgStore struct {
	queries
	pool *pgxpool.Pool
}

// NewPostgresStore builds a Store on a pgx pool. A lock wait that outlasts the
// session's lock_timeout surfaces as ErrConcurrentModification.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgStore{queries: queries{db: pool}, pool: pool}
}

func (s *pgStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, queries{db: tx}); err != nil {
		return translate(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *pgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Postgres error codes that mean another writer won the race.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%w: %s", ErrConcurrentModification, pgErr.Message)
		}
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

const (
	defaultListLimit = 20
	maxPageLimit     = 200
)

// pageBounds normalises a window. A non-positive limit means "everything" and
// comes back as 0. Positive limits are capped at maxPageLimit.
func pageBounds(limit, offset int) (int, int) {
	if limit < 0 {
		limit = 0
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// listBounds is pageBounds for open-ended listings, which always get a window.
func listBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return pageBounds(limit, offset)
}

// sqlLimit renders a pageBounds limit as a LIMIT argument. LIMIT NULL is
// LIMIT ALL in Postgres.
func sqlLimit(limit int) any {
	if limit == 0 {
		return nil
	}
	return limit
}
