package domain

import (
	"strings"
	"time"

	"github.com/helpdesk-hub/ticket-service/internal/workflow"
)

// ApprovalStatus enumerates approval decisions.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// ApprovalAction names an approval decision.
type ApprovalAction string

const (
	ApprovalActionApprove ApprovalAction = "approve"
	ApprovalActionReject  ApprovalAction = "reject"
)

// Approval is a sign-off request correlated with a ticket by id only.
type Approval struct {
	ID         string
	TicketID   string
	ApproverID string
	Status     ApprovalStatus
	Reason     string
	Documents  map[string]any
	IsDeleted  bool
	DeletedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewApproval builds a pending approval.
func NewApproval(id, ticketID, approverID, reason string, documents map[string]any, now time.Time) (*Approval, error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, invalidField("ticket_id", "is required")
	}
	if strings.TrimSpace(approverID) == "" {
		return nil, invalidField("approver_id", "is required")
	}
	if documents == nil {
		documents = map[string]any{}
	}
	return &Approval{
		ID:         id,
		TicketID:   ticketID,
		ApproverID: approverID,
		Status:     ApprovalStatusPending,
		Reason:     reason,
		Documents:  documents,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Decide records the approver's decision. Decisions are final. An empty reason
// keeps the one given at creation.
func (a *Approval) Decide(action ApprovalAction, reason string, now time.Time) error {
	res, err := ApprovalMachine.Apply(a.Status, action, workflow.Args{Reason: reason})
	if err != nil {
		return err
	}
	a.Status = res.To
	if strings.TrimSpace(reason) != "" {
		a.Reason = reason
	}
	a.UpdatedAt = now
	return nil
}

// Snapshot renders the audited fields.
func (a *Approval) Snapshot() map[string]any {
	return map[string]any{
		"id":          a.ID,
		"ticket_id":   a.TicketID,
		"approver_id": a.ApproverID,
		"status":      string(a.Status),
		"reason":      a.Reason,
		"is_deleted":  a.IsDeleted,
	}
}
