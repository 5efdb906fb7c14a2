package dto

import (
	"time"

	"github.com/helpdesk-hub/ticket-service/internal/domain"
)

// CreateSubTicketRequest payload.
type CreateSubTicketRequest struct {
	Title        string  `json:"title" validate:"required,max=255"`
	Description  string  `json:"description"`
	Priority     string  `json:"priority" validate:"omitempty,oneof=urgent high medium low"`
	DepartmentID string  `json:"department_id" validate:"required,max=64"`
	AssigneeID   *string `json:"assignee_id" validate:"omitempty,max=64"`
}

// SubTicketActionRequest payload.
type SubTicketActionRequest struct {
	Action string `json:"action" validate:"required"`
}

// SubTicketResponse mirrors the persisted sub-ticket.
type SubTicketResponse struct {
	ID              string                `json:"id"`
	ParentTicketID  string                `json:"parent_ticket_id"`
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	DepartmentID    string                `json:"department_id"`
	AssigneeID      *string               `json:"assignee_id"`
	ProgressPercent int                   `json:"progress_percent"`
	Version         int                   `json:"version"`
	ReopenCount     int                   `json:"reopen_count"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// NewSubTicketResponse maps a sub-ticket.
func NewSubTicketResponse(s *domain.SubTicket) SubTicketResponse {
	return SubTicketResponse{
		ID:              s.ID,
		ParentTicketID:  s.ParentTicketID,
		Title:           s.Title,
		Description:     s.Description,
		Status:          s.Status,
		Priority:        s.Priority,
		DepartmentID:    s.DepartmentID,
		AssigneeID:      s.AssigneeID,
		ProgressPercent: s.ProgressPercent,
		Version:         s.Version,
		ReopenCount:     s.ReopenCount,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// CreateApprovalRequest payload.
type CreateApprovalRequest struct {
	TicketID   string         `json:"ticket_id" validate:"required,max=64"`
	ApproverID string         `json:"approver_id" validate:"required,max=64"`
	Reason     string         `json:"reason"`
	Documents  map[string]any `json:"documents"`
}

// DecisionRequest payload for approve and reject.
type DecisionRequest struct {
	Reason string `json:"reason"`
}

// ApprovalResponse mirrors the persisted approval.
type ApprovalResponse struct {
	ID         string                `json:"id"`
	TicketID   string                `json:"ticket_id"`
	ApproverID string                `json:"approver_id"`
	Status     domain.ApprovalStatus `json:"status"`
	Reason     string                `json:"reason"`
	Documents  map[string]any        `json:"documents"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// NewApprovalResponse maps an approval.
func NewApprovalResponse(a *domain.Approval) ApprovalResponse {
	return ApprovalResponse{
		ID:         a.ID,
		TicketID:   a.TicketID,
		ApproverID: a.ApproverID,
		Status:     a.Status,
		Reason:     a.Reason,
		Documents:  a.Documents,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}
