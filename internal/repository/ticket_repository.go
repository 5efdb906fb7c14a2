package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helpdesk-hub/ticket-service/internal/domain"
)

// TicketFilter captures list parameters. Deleted tickets are only returned
// when IncludeDeleted is set.
type TicketFilter struct {
	RequestorID    *string
	DepartmentID   *string
	AssigneeID     *string
	Statuses       []domain.TicketStatus
	Priorities     []domain.TicketPriority
	SearchTerm     *string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes the ticket only if updated_at still equals expectedUpdatedAt.
	Update(ctx context.Context, ticket *domain.Ticket, expectedUpdatedAt time.Time) error
	Get(ctx context.Context, id string, includeDeleted bool) (*domain.Ticket, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string, includeDeleted bool) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	db DBTX
}

const ticketColumns = `id, code, title, description, status, priority, category, requestor_id,
               department_id, assignee_id, due_at, version, reopen_count, requires_approval,
               progress_percent, acknowledged_at, postponement_reason, rejection_reason,
               is_deleted, deleted_at, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (` + ticketColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`
	_, err := r.db.Exec(ctx, query,
		ticket.ID,
		ticket.Code,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		ticket.RequestorID,
		ticket.DepartmentID,
		ticket.AssigneeID,
		ticket.DueAt,
		ticket.Version,
		ticket.ReopenCount,
		ticket.RequiresApproval,
		ticket.ProgressPercent,
		ticket.AcknowledgedAt,
		ticket.PostponementReason,
		ticket.RejectionReason,
		ticket.IsDeleted,
		ticket.DeletedAt,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expectedUpdatedAt time.Time) error {
	const query = `
        UPDATE tickets SET code=$1, title=$2, description=$3, status=$4, priority=$5, category=$6,
            department_id=$7, assignee_id=$8, due_at=$9, version=$10, reopen_count=$11,
            requires_approval=$12, progress_percent=$13, acknowledged_at=$14,
            postponement_reason=$15, rejection_reason=$16, is_deleted=$17, deleted_at=$18, updated_at=$19
        WHERE id=$20 AND updated_at=$21`
	cmd, err := r.db.Exec(ctx, query,
		ticket.Code,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		ticket.DepartmentID,
		ticket.AssigneeID,
		ticket.DueAt,
		ticket.Version,
		ticket.ReopenCount,
		ticket.RequiresApproval,
		ticket.ProgressPercent,
		ticket.AcknowledgedAt,
		ticket.PostponementReason,
		ticket.RejectionReason,
		ticket.IsDeleted,
		ticket.DeletedAt,
		ticket.UpdatedAt,
		ticket.ID,
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

func (r *ticketRepository) Get(ctx context.Context, id string, includeDeleted bool) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, id, includeDeleted, false)
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, id string, includeDeleted bool) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, id, includeDeleted, true)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, id string, includeDeleted, forUpdate bool) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	if !includeDeleted {
		query += ` AND NOT is_deleted`
	}
	query += lockClause(forUpdate)

	ticket, err := scanTicket(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if !filter.IncludeDeleted {
		clauses = append(clauses, "NOT is_deleted")
	}
	if filter.RequestorID != nil {
		args = append(args, *filter.RequestorID)
		clauses = append(clauses, fmt.Sprintf("requestor_id=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s OR LOWER(COALESCE(code,'')) LIKE %s)",
			placeholder, placeholder, placeholder))
	}

	limit, offset := listBounds(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC, id LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Code,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Category,
		&ticket.RequestorID,
		&ticket.DepartmentID,
		&ticket.AssigneeID,
		&ticket.DueAt,
		&ticket.Version,
		&ticket.ReopenCount,
		&ticket.RequiresApproval,
		&ticket.ProgressPercent,
		&ticket.AcknowledgedAt,
		&ticket.PostponementReason,
		&ticket.RejectionReason,
		&ticket.IsDeleted,
		&ticket.DeletedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// CodeRepository allocates human-facing ticket codes.
type CodeRepository interface {
	// Next returns the next counter value for prefix and year, starting at 1.
	Next(ctx context.Context, prefix string, year int) (int, error)
}

type codeRepository struct {
	db DBTX
}

func (r *codeRepository) Next(ctx context.Context, prefix string, year int) (int, error) {
	const query = `
        INSERT INTO ticket_code_counters (prefix, year, last_value) VALUES ($1, $2, 1)
        ON CONFLICT (prefix, year) DO UPDATE SET last_value = ticket_code_counters.last_value + 1
        RETURNING last_value`
	var next int
	if err := r.db.QueryRow(ctx, query, prefix, year).Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

// FormatCode renders a ticket code such as HD-2026-0042.
func FormatCode(prefix string, year, n int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, n)
}
