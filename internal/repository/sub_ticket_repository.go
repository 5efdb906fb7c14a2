package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helpdesk-hub/ticket-service/internal/domain"
)

// SubTicketRepository encapsulates sub-ticket persistence. Unless
// includeDeleted is set, a sub-ticket is hidden when it or its parent is
// soft-deleted.
type SubTicketRepository interface {
	Create(ctx context.Context, sub *domain.SubTicket) error
	Update(ctx context.Context, sub *domain.SubTicket, expectedUpdatedAt time.Time) error
	Get(ctx context.Context, id string, includeDeleted bool) (*domain.SubTicket, error)
	GetForUpdate(ctx context.Context, id string, includeDeleted bool) (*domain.SubTicket, error)
	ListByParent(ctx context.Context, parentID string, includeDeleted bool) ([]domain.SubTicket, error)
}

type subTicketRepository struct {
	db DBTX
}

const subTicketColumns = `s.id, s.parent_ticket_id, s.title, s.description, s.status, s.priority, s.department_id,
               s.assignee_id, s.progress_percent, s.version, s.reopen_count, s.is_deleted, s.deleted_at,
               s.created_at, s.updated_at`

func (r *subTicketRepository) Create(ctx context.Context, sub *domain.SubTicket) error {
	const query = `
        INSERT INTO sub_tickets (id, parent_ticket_id, title, description, status, priority, department_id,
            assignee_id, progress_percent, version, reopen_count, is_deleted, deleted_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err := r.db.Exec(ctx, query,
		sub.ID,
		sub.ParentTicketID,
		sub.Title,
		sub.Description,
		sub.Status,
		sub.Priority,
		sub.DepartmentID,
		sub.AssigneeID,
		sub.ProgressPercent,
		sub.Version,
		sub.ReopenCount,
		sub.IsDeleted,
		sub.DeletedAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	return err
}

func (r *subTicketRepository) Update(ctx context.Context, sub *domain.SubTicket, expectedUpdatedAt time.Time) error {
	const query = `
        UPDATE sub_tickets SET title=$1, description=$2, status=$3, priority=$4, department_id=$5,
            assignee_id=$6, progress_percent=$7, version=$8, reopen_count=$9, is_deleted=$10,
            deleted_at=$11, updated_at=$12
        WHERE id=$13 AND updated_at=$14`
	cmd, err := r.db.Exec(ctx, query,
		sub.Title,
		sub.Description,
		sub.Status,
		sub.Priority,
		sub.DepartmentID,
		sub.AssigneeID,
		sub.ProgressPercent,
		sub.Version,
		sub.ReopenCount,
		sub.IsDeleted,
		sub.DeletedAt,
		sub.UpdatedAt,
		sub.ID,
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

func (r *subTicketRepository) Get(ctx context.Context, id string, includeDeleted bool) (*domain.SubTicket, error) {
	return r.fetchSingle(ctx, id, includeDeleted, false)
}

func (r *subTicketRepository) GetForUpdate(ctx context.Context, id string, includeDeleted bool) (*domain.SubTicket, error) {
	return r.fetchSingle(ctx, id, includeDeleted, true)
}

func (r *subTicketRepository) fetchSingle(ctx context.Context, id string, includeDeleted, forUpdate bool) (*domain.SubTicket, error) {
	query := `SELECT ` + subTicketColumns + `
        FROM sub_tickets s JOIN tickets p ON p.id = s.parent_ticket_id
        WHERE s.id=$1`
	if !includeDeleted {
		query += ` AND NOT s.is_deleted AND NOT p.is_deleted`
	}
	if forUpdate {
		query += ` FOR UPDATE OF s`
	}
	sub, err := scanSubTicket(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return sub, nil
}

func (r *subTicketRepository) ListByParent(ctx context.Context, parentID string, includeDeleted bool) ([]domain.SubTicket, error) {
	query := `SELECT ` + subTicketColumns + `
        FROM sub_tickets s JOIN tickets p ON p.id = s.parent_ticket_id
        WHERE s.parent_ticket_id=$1`
	if !includeDeleted {
		query += ` AND NOT s.is_deleted AND NOT p.is_deleted`
	}
	query += ` ORDER BY s.created_at ASC, s.id`

	rows, err := r.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SubTicket
	for rows.Next() {
		sub, err := scanSubTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sub)
	}
	return result, rows.Err()
}

func scanSubTicket(row pgx.Row) (*domain.SubTicket, error) {
	var sub domain.SubTicket
	if err := row.Scan(
		&sub.ID,
		&sub.ParentTicketID,
		&sub.Title,
		&sub.Description,
		&sub.Status,
		&sub.Priority,
		&sub.DepartmentID,
		&sub.AssigneeID,
		&sub.ProgressPercent,
		&sub.Version,
		&sub.ReopenCount,
		&sub.IsDeleted,
		&sub.DeletedAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &sub, nil
}
