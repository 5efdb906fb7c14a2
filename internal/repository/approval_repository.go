package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helpdesk-hub/ticket-service/internal/domain"
)

// ApprovalRepository encapsulates approval persistence.
type ApprovalRepository interface {
	Create(ctx context.Context, approval *domain.Approval) error
	Update(ctx context.Context, approval *domain.Approval, expectedUpdatedAt time.Time) error
	Get(ctx context.Context, id string, includeDeleted bool) (*domain.Approval, error)
	GetForUpdate(ctx context.Context, id string, includeDeleted bool) (*domain.Approval, error)
	ListByTicket(ctx context.Context, ticketID string, includeDeleted bool) ([]domain.Approval, error)
}

type approvalRepository struct {
	db DBTX
}

const approvalColumns = `id, ticket_id, approver_id, status, reason, documents, is_deleted, deleted_at, created_at, updated_at`

func (r *approvalRepository) Create(ctx context.Context, approval *domain.Approval) error {
	const query = `
        INSERT INTO approvals (` + approvalColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.db.Exec(ctx, query,
		approval.ID,
		approval.TicketID,
		approval.ApproverID,
		approval.Status,
		approval.Reason,
		approval.Documents,
		approval.IsDeleted,
		approval.DeletedAt,
		approval.CreatedAt,
		approval.UpdatedAt,
	)
	return err
}

func (r *approvalRepository) Update(ctx context.Context, approval *domain.Approval, expectedUpdatedAt time.Time) error {
	const query = `
        UPDATE approvals SET status=$1, reason=$2, documents=$3, is_deleted=$4, deleted_at=$5, updated_at=$6
        WHERE id=$7 AND updated_at=$8`
	cmd, err := r.db.Exec(ctx, query,
		approval.Status,
		approval.Reason,
		approval.Documents,
		approval.IsDeleted,
		approval.DeletedAt,
		approval.UpdatedAt,
		approval.ID,
		expectedUpdatedAt,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (r *approvalRepository) Get(ctx context.Context, id string, includeDeleted bool) (*domain.Approval, error) {
	return r.fetchSingle(ctx, id, includeDeleted, false)
}

func (r *approvalRepository) GetForUpdate(ctx context.Context, id string, includeDeleted bool) (*domain.Approval, error) {
	return r.fetchSingle(ctx, id, includeDeleted, true)
}

func (r *approvalRepository) fetchSingle(ctx context.Context, id string, includeDeleted, forUpdate bool) (*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id=$1`
	if !includeDeleted {
		query += ` AND NOT is_deleted`
	}
	query += lockClause(forUpdate)
	approval, err := scanApproval(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return approval, nil
}

func (r *approvalRepository) ListByTicket(ctx context.Context, ticketID string, includeDeleted bool) ([]domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE ticket_id=$1`
	if !includeDeleted {
		query += ` AND NOT is_deleted`
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Approval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *approval)
	}
	return result, rows.Err()
}

func scanApproval(row pgx.Row) (*domain.Approval, error) {
	var approval domain.Approval
	if err := row.Scan(
		&approval.ID,
		&approval.TicketID,
		&approval.ApproverID,
		&approval.Status,
		&approval.Reason,
		&approval.Documents,
		&approval.IsDeleted,
		&approval.DeletedAt,
		&approval.CreatedAt,
		&approval.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &approval, nil
}
