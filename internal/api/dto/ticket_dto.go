package dto

import (
	"time"

	"github.com/helpdesk-hub/ticket-service/internal/domain"
)

// CreateTicketRequest payload. RequestorID defaults to the caller.
type CreateTicketRequest struct {
	Title            string              `json:"title" validate:"required,max=255"`
	Description      string              `json:"description"`
	RequestorID      string              `json:"requestor_id" validate:"omitempty,max=64"`
	DepartmentID     *string             `json:"department_id" validate:"omitempty,max=64"`
	Priority         string              `json:"priority" validate:"omitempty,oneof=urgent high medium low"`
	Category         string              `json:"category" validate:"max=100"`
	Status           domain.TicketStatus `json:"status"`
	RequiresApproval bool                `json:"requires_approval"`
}

// ActionRequest payload for POST /tickets/:id/actions.
type ActionRequest struct {
	Action       string  `json:"action" validate:"required"`
	Reason       string  `json:"reason"`
	AssigneeID   string  `json:"assignee_id"`
	DepartmentID *string `json:"department_id"`
}

// AssignRequest payload.
type AssignRequest struct {
	AssigneeID   string  `json:"assignee_id" validate:"required,max=64"`
	DepartmentID *string `json:"department_id" validate:"omitempty,max=64"`
}

// ConfirmReviewRequest payload.
type ConfirmReviewRequest struct {
	Title        string  `json:"title" validate:"required,max=255"`
	Description  string  `json:"description"`
	Priority     string  `json:"priority" validate:"required,oneof=urgent high medium low"`
	Category     string  `json:"category" validate:"max=100"`
	DepartmentID *string `json:"department_id" validate:"omitempty,max=64"`
	AssigneeID   string  `json:"assignee_id" validate:"required,max=64"`
}

// ProgressRequest payload.
type ProgressRequest struct {
	ProgressPercent *int `json:"progress_percent" validate:"required"`
}

// AcknowledgeRequest payload.
type AcknowledgeRequest struct {
	Notes string `json:"notes"`
}

// UpdateSLARequest payload.
type UpdateSLARequest struct {
	DueAt  *time.Time `json:"due_at" validate:"required"`
	Reason string     `json:"reason" validate:"required"`
}

// TicketResponse mirrors the persisted ticket.
type TicketResponse struct {
	ID                 string                `json:"id"`
	Code               *string               `json:"code"`
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	Status             domain.TicketStatus   `json:"status"`
	Priority           domain.TicketPriority `json:"priority"`
	Category           string                `json:"category"`
	RequestorID        string                `json:"requestor_id"`
	DepartmentID       *string               `json:"department_id"`
	AssigneeID         *string               `json:"assignee_id"`
	DueAt              *time.Time            `json:"due_at"`
	Version            int                   `json:"version"`
	ReopenCount        int                   `json:"reopen_count"`
	RequiresApproval   bool                  `json:"requires_approval"`
	ProgressPercent    int                   `json:"progress_percent"`
	AcknowledgedAt     *time.Time            `json:"acknowledged_at"`
	PostponementReason string                `json:"postponement_reason,omitempty"`
	RejectionReason    string                `json:"rejection_reason,omitempty"`
	IsDeleted          bool                  `json:"is_deleted"`
	DeletedAt          *time.Time            `json:"deleted_at,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:                 t.ID,
		Code:               t.Code,
		Title:              t.Title,
		Description:        t.Description,
		Status:             t.Status,
		Priority:           t.Priority,
		Category:           t.Category,
		RequestorID:        t.RequestorID,
		DepartmentID:       t.DepartmentID,
		AssigneeID:         t.AssigneeID,
		DueAt:              t.DueAt,
		Version:            t.Version,
		ReopenCount:        t.ReopenCount,
		RequiresApproval:   t.RequiresApproval,
		ProgressPercent:    t.ProgressPercent,
		AcknowledgedAt:     t.AcknowledgedAt,
		PostponementReason: t.PostponementReason,
		RejectionReason:    t.RejectionReason,
		IsDeleted:          t.IsDeleted,
		DeletedAt:          t.DeletedAt,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

// AuditLogResponse is one history entry.
type AuditLogResponse struct {
	ID            string                        `json:"id"`
	Sequence      int64                         `json:"sequence"`
	ActionType    domain.AuditActionType        `json:"action_type"`
	Category      domain.AuditCategory          `json:"category"`
	ModelName     string                        `json:"model_name"`
	ObjectID      string                        `json:"object_id"`
	Changes       map[string]domain.FieldChange `json:"changes"`
	OldState      map[string]any                `json:"old_state"`
	NewState      map[string]any                `json:"new_state"`
	PerformedByID *string                       `json:"performed_by_id"`
	Reason        string                        `json:"reason"`
	IPAddress     *string                       `json:"ip_address,omitempty"`
	Timestamp     time.Time                     `json:"timestamp"`
	Checksum      string                        `json:"checksum"`
}

// NewAuditLogResponses maps history entries, keeping order.
func NewAuditLogResponses(logs []domain.AuditLog) []AuditLogResponse {
	out := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, AuditLogResponse{
			ID:            l.ID,
			Sequence:      l.Sequence,
			ActionType:    l.ActionType,
			Category:      l.Category,
			ModelName:     l.ModelName,
			ObjectID:      l.ObjectID,
			Changes:       l.Changes,
			OldState:      l.OldState,
			NewState:      l.NewState,
			PerformedByID: l.PerformedByID,
			Reason:        l.Reason,
			IPAddress:     l.IPAddress,
			Timestamp:     l.Timestamp,
			Checksum:      l.Checksum,
		})
	}
	return out
}
