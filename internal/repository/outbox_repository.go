package repository

import (
	"context"
	"time"

	"github.com/helpdesk-hub/ticket-service/internal/domain"
)

// OutboxRepository stores events until the relay publishes them.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event *domain.OutboxEvent) error
	// ClaimBatch returns up to limit unpublished events with fewer than
	// maxAttempts attempts, oldest first. Inside a transaction the rows stay
	// locked and rows locked elsewhere are skipped.
	ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

type outboxRepository struct {
	db DBTX
}

func (r *outboxRepository) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	const query = `
        INSERT INTO outbox_events (id, event_type, aggregate_id, payload, created_at)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := r.db.Exec(ctx, query, event.ID, event.EventType, event.AggregateID, event.Payload, event.CreatedAt)
	return err
}

func (r *outboxRepository) ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]domain.OutboxEvent, error) {
	const query = `
        SELECT id, event_type, aggregate_id, payload, created_at, published_at, attempts, last_error
        FROM outbox_events
        WHERE published_at IS NULL AND attempts < $1
        ORDER BY created_at, id
        LIMIT $2
        FOR UPDATE SKIP LOCKED`
	rows, err := r.db.Query(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.OutboxEvent
	for rows.Next() {
		var ev domain.OutboxEvent
		if err := rows.Scan(
			&ev.ID,
			&ev.EventType,
			&ev.AggregateID,
			&ev.Payload,
			&ev.CreatedAt,
			&ev.PublishedAt,
			&ev.Attempts,
			&ev.LastError,
		); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE outbox_events SET published_at=$1, attempts=attempts+1, last_error='' WHERE id=$2`, at, id)
	return err
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := r.db.Exec(ctx, `UPDATE outbox_events SET attempts=attempts+1, last_error=$1 WHERE id=$2`, reason, id)
	return err
}
