package domain

import (
	"strings"
	"time"

	"github.com/helpdesk-hub/ticket-service/internal/workflow"
)

// SubTicketAction names a sub-ticket transition.
type SubTicketAction string

const (
	SubActionStartProgress SubTicketAction = "start_progress"
	SubActionMarkResolved  SubTicketAction = "mark_resolved"
	SubActionClose         SubTicketAction = "close"
	SubActionReopen        SubTicketAction = "reopen"
	SubActionResume        SubTicketAction = "resume"
)

// SubTicket is a departmental slice of work owned by a parent ticket.
type SubTicket struct {
	ID              string
	ParentTicketID  string
	Title           string
	Description     string
	Status          TicketStatus
	Priority        TicketPriority
	DepartmentID    string
	AssigneeID      *string
	ProgressPercent int
	Version         int
	ReopenCount     int
	IsDeleted       bool
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewSubTicketParams carries the inputs of CreateSubTicket.
type NewSubTicketParams struct {
	ID             string
	ParentTicketID string
	Title          string
	Description    string
	Priority       string
	DepartmentID   string
	AssigneeID     *string
}

// NewSubTicket validates params. Sub-tickets start assigned.
func NewSubTicket(p NewSubTicketParams, now time.Time) (*SubTicket, error) {
	if strings.TrimSpace(p.ParentTicketID) == "" {
		return nil, invalidField("parent_ticket_id", "is required")
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, invalidField("title", "is required")
	}
	if strings.TrimSpace(p.DepartmentID) == "" {
		return nil, invalidField("department_id", "is required")
	}
	priority, err := ParsePriority(p.Priority)
	if err != nil {
		return nil, err
	}
	return &SubTicket{
		ID:             p.ID,
		ParentTicketID: p.ParentTicketID,
		Title:          strings.TrimSpace(p.Title),
		Description:    p.Description,
		Status:         TicketStatusAssigned,
		Priority:       priority,
		DepartmentID:   p.DepartmentID,
		AssigneeID:     p.AssigneeID,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *SubTicket) StartProgress(now time.Time) error {
	return s.transition(SubActionStartProgress, now)
}

func (s *SubTicket) MarkResolved(now time.Time) error {
	return s.transition(SubActionMarkResolved, now)
}

func (s *SubTicket) Close(now time.Time) error { return s.transition(SubActionClose, now) }

func (s *SubTicket) Reopen(now time.Time) error { return s.transition(SubActionReopen, now) }

func (s *SubTicket) Resume(now time.Time) error { return s.transition(SubActionResume, now) }

// Assign replaces the assignee and optionally moves the sub-ticket to another
// department. Closed sub-tickets must be reopened first.
func (s *SubTicket) Assign(assigneeID string, departmentID *string, now time.Time) error {
	if strings.TrimSpace(assigneeID) == "" {
		return invalidField("assignee_id", "is required")
	}
	if s.Status == TicketStatusClosed {
		return &workflow.TransitionError{
			Kind:    workflow.KindInvalidSourceState,
			Machine: SubTicketMachine.Name(),
			Action:  "assign",
			From:    string(s.Status),
		}
	}
	a := assigneeID
	s.AssigneeID = &a
	if departmentID != nil && strings.TrimSpace(*departmentID) != "" {
		s.DepartmentID = *departmentID
	}
	s.UpdatedAt = now
	return nil
}

// SetProgress updates progress_percent. Out-of-range values leave it intact.
func (s *SubTicket) SetProgress(percent int, now time.Time) error {
	if percent < 0 || percent > 100 {
		return invalidField("progress_percent", "must be between 0 and 100")
	}
	s.ProgressPercent = percent
	s.UpdatedAt = now
	return nil
}

// Snapshot renders the audited fields.
func (s *SubTicket) Snapshot() map[string]any {
	return map[string]any{
		"id":               s.ID,
		"parent_ticket_id": s.ParentTicketID,
		"title":            s.Title,
		"description":      s.Description,
		"status":           string(s.Status),
		"priority":         string(s.Priority),
		"department_id":    s.DepartmentID,
		"assignee_id":      derefString(s.AssigneeID),
		"progress_percent": s.ProgressPercent,
		"version":          s.Version,
		"reopen_count":     s.ReopenCount,
		"is_deleted":       s.IsDeleted,
		"deleted_at":       formatTime(s.DeletedAt),
	}
}

func (s *SubTicket) transition(action SubTicketAction, now time.Time) error {
	res, err := SubTicketMachine.Apply(s.Status, action, workflow.Args{ReopenCount: s.ReopenCount})
	if err != nil {
		return err
	}
	s.Status = res.To
	if res.Has(workflow.EffectIncrementReopen) {
		s.ReopenCount++
		s.Version++
	}
	s.UpdatedAt = now
	return nil
}
