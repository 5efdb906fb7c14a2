package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helpdesk-hub/ticket-service/internal/domain"
)

// AuditFilter selects one subject's history. A zero Limit returns the whole
// trail.
type AuditFilter struct {
	ModelName string
	ObjectID  string
	Limit     int
	Offset    int
}

// Subject identifies an audited entity.
type Subject struct {
	ModelName string
	ObjectID  string
}

// AuditRepository is append-only. ArchiveBefore is the only write that touches
// existing rows and it only sets archived_at.
type AuditRepository interface {
	Append(ctx context.Context, log *domain.AuditLog) error
	LatestForSubject(ctx context.Context, modelName, objectID string) (*domain.AuditLog, error)
	// History returns newest first: timestamp desc, then sequence desc.
	History(ctx context.Context, filter AuditFilter) ([]domain.AuditLog, error)
	// Chain returns every entry of a subject oldest first.
	Chain(ctx context.Context, modelName, objectID string) ([]domain.AuditLog, error)
	Subjects(ctx context.Context) ([]Subject, error)
	ArchiveBefore(ctx context.Context, cutoff, archivedAt time.Time) (int64, error)
}

type auditRepository struct {
	db DBTX
}

const auditColumns = `id, sequence, action_type, category, model_name, object_id, old_state, new_state, changes,
               performed_by_id, reason, ip_address, "timestamp", archived_at, checksum`

func (r *auditRepository) Append(ctx context.Context, log *domain.AuditLog) error {
	const query = `
        INSERT INTO audit_logs (id, action_type, category, model_name, object_id, old_state, new_state, changes,
            performed_by_id, reason, ip_address, "timestamp", checksum)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING sequence`
	return r.db.QueryRow(ctx, query,
		log.ID,
		log.ActionType,
		log.Category,
		log.ModelName,
		log.ObjectID,
		log.OldState,
		log.NewState,
		log.Changes,
		log.PerformedByID,
		log.Reason,
		log.IPAddress,
		log.Timestamp,
		log.Checksum,
	).Scan(&log.Sequence)
}

func (r *auditRepository) LatestForSubject(ctx context.Context, modelName, objectID string) (*domain.AuditLog, error) {
	const query = `SELECT ` + auditColumns + ` FROM audit_logs
        WHERE model_name=$1 AND object_id=$2
        ORDER BY sequence DESC LIMIT 1`
	log, err := scanAuditLog(r.db.QueryRow(ctx, query, modelName, objectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return log, err
}

func (r *auditRepository) History(ctx context.Context, filter AuditFilter) ([]domain.AuditLog, error) {
	limit, offset := pageBounds(filter.Limit, filter.Offset)
	const query = `SELECT ` + auditColumns + ` FROM audit_logs
        WHERE model_name=$1 AND object_id=$2
        ORDER BY "timestamp" DESC, sequence DESC
        LIMIT $3 OFFSET $4`
	return r.list(ctx, query, filter.ModelName, filter.ObjectID, sqlLimit(limit), offset)
}

func (r *auditRepository) Chain(ctx context.Context, modelName, objectID string) ([]domain.AuditLog, error) {
	const query = `SELECT ` + auditColumns + ` FROM audit_logs
        WHERE model_name=$1 AND object_id=$2
        ORDER BY sequence ASC`
	return r.list(ctx, query, modelName, objectID)
}

func (r *auditRepository) Subjects(ctx context.Context) ([]Subject, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT model_name, object_id FROM audit_logs ORDER BY model_name, object_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Subject
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.ModelName, &s.ObjectID); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *auditRepository) ArchiveBefore(ctx context.Context, cutoff, archivedAt time.Time) (int64, error) {
	const query = `UPDATE audit_logs SET archived_at=$1 WHERE archived_at IS NULL AND "timestamp" < $2`
	cmd, err := r.db.Exec(ctx, query, archivedAt, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *auditRepository) list(ctx context.Context, query string, args ...any) ([]domain.AuditLog, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditLog
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *log)
	}
	return result, rows.Err()
}

func scanAuditLog(row pgx.Row) (*domain.AuditLog, error) {
	var log domain.AuditLog
	if err := row.Scan(
		&log.ID,
		&log.Sequence,
		&log.ActionType,
		&log.Category,
		&log.ModelName,
		&log.ObjectID,
		&log.OldState,
		&log.NewState,
		&log.Changes,
		&log.PerformedByID,
		&log.Reason,
		&log.IPAddress,
		&log.Timestamp,
		&log.ArchivedAt,
		&log.Checksum,
	); err != nil {
		return nil, err
	}
	return &log, nil
}
