package domain

import (
	"strings"
	"time"

	"github.com/helpdesk-hub/ticket-service/internal/workflow"
)

// TicketStatus enumerates lifecycle states for tickets and sub-tickets.
type TicketStatus string

const (
	TicketStatusDraft           TicketStatus = "draft"
	TicketStatusSubmitted       TicketStatus = "submitted"
	TicketStatusPending         TicketStatus = "pending"
	TicketStatusUnderReview     TicketStatus = "under_review"
	TicketStatusAssigned        TicketStatus = "assigned"
	TicketStatusInProgress      TicketStatus = "in_progress"
	TicketStatusWaitingApproval TicketStatus = "waiting_approval"
	TicketStatusApproved        TicketStatus = "approved"
	TicketStatusRejected        TicketStatus = "rejected"
	TicketStatusResolved        TicketStatus = "resolved"
	TicketStatusClosed          TicketStatus = "closed"
	TicketStatusReopened        TicketStatus = "reopened"
	TicketStatusPostponed       TicketStatus = "postponed"
)

var allTicketStatuses = map[TicketStatus]struct{}{
	TicketStatusDraft: {}, TicketStatusSubmitted: {}, TicketStatusPending: {},
	TicketStatusUnderReview: {}, TicketStatusAssigned: {}, TicketStatusInProgress: {},
	TicketStatusWaitingApproval: {}, TicketStatusApproved: {}, TicketStatusRejected: {},
	TicketStatusResolved: {}, TicketStatusClosed: {}, TicketStatusReopened: {},
	TicketStatusPostponed: {},
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	_, ok := allTicketStatuses[s]
	return ok
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// ParsePriority normalises a priority string. Empty input yields medium.
func ParsePriority(raw string) (TicketPriority, error) {
	p := TicketPriority(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case "":
		return TicketPriorityMedium, nil
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return p, nil
	}
	return "", invalidField("priority", "must be one of urgent, high, medium, low")
}

// TicketAction names a ticket transition.
type TicketAction string

const (
	ActionSubmit        TicketAction = "submit"
	ActionReview        TicketAction = "review"
	ActionAssign        TicketAction = "assign"
	ActionStartProgress TicketAction = "start_progress"
	ActionResolve       TicketAction = "resolve"
	ActionClose         TicketAction = "close"
	ActionReopen        TicketAction = "reopen"
	ActionPostpone      TicketAction = "postpone"
	ActionReject        TicketAction = "reject"
	ActionResume        TicketAction = "resume"
)

// RequiresReason reports whether the action needs a non-empty reason.
func (a TicketAction) RequiresReason() bool {
	return a == ActionPostpone || a == ActionReject
}

// reassignableStates accept a new assignee without a transition.
var reassignableStates = map[TicketStatus]struct{}{
	TicketStatusAssigned:        {},
	TicketStatusInProgress:      {},
	TicketStatusPostponed:       {},
	TicketStatusReopened:        {},
	TicketStatusWaitingApproval: {},
	TicketStatusApproved:        {},
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                 string
	Code               *string
	Title              string
	Description        string
	Status             TicketStatus
	Priority           TicketPriority
	Category           string
	RequestorID        string
	DepartmentID       *string
	AssigneeID         *string
	DueAt              *time.Time
	Version            int
	ReopenCount        int
	RequiresApproval   bool
	ProgressPercent    int
	AcknowledgedAt     *time.Time
	PostponementReason string
	RejectionReason    string
	IsDeleted          bool
	DeletedAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewTicketParams carries the inputs of CreateTicket.
type NewTicketParams struct {
	ID               string
	Title            string
	Description      string
	RequestorID      string
	DepartmentID     *string
	Priority         string
	Category         string
	Status           TicketStatus
	RequiresApproval bool
}

// NewTicket validates params and builds a ticket. A non-draft initial status
// allocates a code through env.NextCode.
func NewTicket(p NewTicketParams, env TransitionEnv) (*Ticket, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, invalidField("title", "is required")
	}
	if strings.TrimSpace(p.RequestorID) == "" {
		return nil, invalidField("requestor_id", "is required")
	}
	priority, err := ParsePriority(p.Priority)
	if err != nil {
		return nil, err
	}
	status := p.Status
	if status == "" {
		status = TicketStatusDraft
	}
	if !status.Valid() {
		return nil, invalidField("status", "unknown status "+string(status))
	}

	t := &Ticket{
		ID:               p.ID,
		Title:            strings.TrimSpace(p.Title),
		Description:      p.Description,
		Status:           status,
		Priority:         priority,
		Category:         p.Category,
		RequestorID:      p.RequestorID,
		DepartmentID:     p.DepartmentID,
		Version:          1,
		RequiresApproval: p.RequiresApproval,
		CreatedAt:        env.Now,
		UpdatedAt:        env.Now,
	}
	if err := t.ensureCode(env); err != nil {
		return nil, err
	}
	return t, nil
}

// Submit moves a draft to submitted.
func (t *Ticket) Submit(env TransitionEnv) error { return t.transition(ActionSubmit, "", env) }

// Review moves a submitted or pending ticket under review.
func (t *Ticket) Review(env TransitionEnv) error { return t.transition(ActionReview, "", env) }

// StartProgress begins work on an assigned ticket.
func (t *Ticket) StartProgress(env TransitionEnv) error {
	return t.transition(ActionStartProgress, "", env)
}

// Resolve marks work done.
func (t *Ticket) Resolve(env TransitionEnv) error { return t.transition(ActionResolve, "", env) }

// Close finalises a resolved ticket.
func (t *Ticket) Close(env TransitionEnv) error { return t.transition(ActionClose, "", env) }

// Reopen brings back a resolved or closed ticket, at most MaxReopens times.
func (t *Ticket) Reopen(env TransitionEnv) error { return t.transition(ActionReopen, "", env) }

// Resume returns a postponed or reopened ticket to in_progress.
func (t *Ticket) Resume(env TransitionEnv) error { return t.transition(ActionResume, "", env) }

// Postpone parks the ticket with a mandatory reason.
func (t *Ticket) Postpone(reason string, env TransitionEnv) error {
	if strings.TrimSpace(reason) == "" {
		return invalidField("reason", "is required to postpone")
	}
	return t.transition(ActionPostpone, reason, env)
}

// Reject ends the ticket with a mandatory reason.
func (t *Ticket) Reject(reason string, env TransitionEnv) error {
	if strings.TrimSpace(reason) == "" {
		return invalidField("reason", "is required to reject")
	}
	return t.transition(ActionReject, reason, env)
}

// Assign sets the assignee (and department when given). From under_review it
// performs the assign transition; from a later working state it only updates
// the fields. The bool reports whether the status changed.
func (t *Ticket) Assign(assigneeID string, departmentID *string, env TransitionEnv) (bool, error) {
	if strings.TrimSpace(assigneeID) == "" {
		return false, invalidField("assignee_id", "is required")
	}
	if t.Status == TicketStatusUnderReview {
		if err := t.transition(ActionAssign, "", env); err != nil {
			return false, err
		}
		t.setAssignment(assigneeID, departmentID)
		return true, nil
	}
	if _, ok := reassignableStates[t.Status]; !ok {
		return false, &workflow.TransitionError{
			Kind:    workflow.KindInvalidSourceState,
			Machine: TicketMachine.Name(),
			Action:  string(ActionAssign),
			From:    string(t.Status),
		}
	}
	t.setAssignment(assigneeID, departmentID)
	t.UpdatedAt = env.Now
	return false, nil
}

// HoldsAssignment reports whether Assign with these arguments would change
// nothing: the ticket is already assigned (or past it) to the same assignee
// and department.
func (t *Ticket) HoldsAssignment(assigneeID string, departmentID *string) bool {
	if _, ok := reassignableStates[t.Status]; !ok {
		return false
	}
	if t.AssigneeID == nil || *t.AssigneeID != assigneeID {
		return false
	}
	return departmentID == nil || (t.DepartmentID != nil && *t.DepartmentID == *departmentID)
}

// ReviewInput is the moderator's edit applied by ConfirmReview.
type ReviewInput struct {
	Title        string
	Description  string
	Priority     string
	Category     string
	DepartmentID *string
	AssigneeID   string
}

// ConfirmReview applies the moderator's edits, moves the ticket to assigned
// (passing through under_review when still submitted or pending) and derives
// the due date from the final priority.
func (t *Ticket) ConfirmReview(in ReviewInput, env TransitionEnv) error {
	if strings.TrimSpace(in.Title) == "" {
		return invalidField("title", "is required")
	}
	if strings.TrimSpace(in.AssigneeID) == "" {
		return invalidField("assignee_id", "is required")
	}
	priority, err := ParsePriority(in.Priority)
	if err != nil {
		return err
	}
	if env.SLA == nil {
		return invalidField("sla", "calculator is required")
	}

	from := t.Status
	if from == TicketStatusSubmitted || from == TicketStatusPending {
		if _, err := TicketMachine.Apply(from, ActionReview, workflow.Args{}); err != nil {
			return err
		}
		from = TicketStatusUnderReview
	}
	if _, err := TicketMachine.Apply(from, ActionAssign, workflow.Args{}); err != nil {
		return err
	}
	if err := t.ensureCode(env); err != nil {
		return err
	}

	t.Title = strings.TrimSpace(in.Title)
	t.Description = in.Description
	t.Priority = priority
	t.Category = in.Category
	t.Status = TicketStatusAssigned
	t.setAssignment(in.AssigneeID, in.DepartmentID)
	due := env.SLA.DueAt(string(priority), env.Now)
	t.DueAt = &due
	t.UpdatedAt = env.Now
	return nil
}

// SetProgress updates progress_percent. Out-of-range values leave it intact.
func (t *Ticket) SetProgress(percent int, now time.Time) error {
	if percent < 0 || percent > 100 {
		return invalidField("progress_percent", "must be between 0 and 100")
	}
	t.ProgressPercent = percent
	t.UpdatedAt = now
	return nil
}

// Acknowledge sets acknowledged_at once. It reports whether anything changed.
func (t *Ticket) Acknowledge(now time.Time) bool {
	if t.AcknowledgedAt != nil {
		return false
	}
	at := now
	t.AcknowledgedAt = &at
	t.UpdatedAt = now
	return true
}

// OverrideDueAt replaces the due date manually.
func (t *Ticket) OverrideDueAt(dueAt time.Time, now time.Time) error {
	if dueAt.IsZero() {
		return invalidField("due_at", "is required")
	}
	d := dueAt
	t.DueAt = &d
	t.UpdatedAt = now
	return nil
}

// SoftDelete hides the ticket from active queries.
func (t *Ticket) SoftDelete(now time.Time) bool {
	if t.IsDeleted {
		return false
	}
	at := now
	t.IsDeleted = true
	t.DeletedAt = &at
	t.UpdatedAt = now
	return true
}

// Restore undoes SoftDelete.
func (t *Ticket) Restore(now time.Time) bool {
	if !t.IsDeleted {
		return false
	}
	t.IsDeleted = false
	t.DeletedAt = nil
	t.UpdatedAt = now
	return true
}

// Snapshot renders the audited fields.
func (t *Ticket) Snapshot() map[string]any {
	return map[string]any{
		"id":                  t.ID,
		"code":                derefString(t.Code),
		"title":               t.Title,
		"description":         t.Description,
		"status":              string(t.Status),
		"priority":            string(t.Priority),
		"category":            t.Category,
		"requestor_id":        t.RequestorID,
		"department_id":       derefString(t.DepartmentID),
		"assignee_id":         derefString(t.AssigneeID),
		"due_at":              formatTime(t.DueAt),
		"version":             t.Version,
		"reopen_count":        t.ReopenCount,
		"requires_approval":   t.RequiresApproval,
		"progress_percent":    t.ProgressPercent,
		"acknowledged_at":     formatTime(t.AcknowledgedAt),
		"postponement_reason": t.PostponementReason,
		"rejection_reason":    t.RejectionReason,
		"is_deleted":          t.IsDeleted,
		"deleted_at":          formatTime(t.DeletedAt),
	}
}

func (t *Ticket) setAssignment(assigneeID string, departmentID *string) {
	a := assigneeID
	t.AssigneeID = &a
	if departmentID != nil {
		d := *departmentID
		t.DepartmentID = &d
	}
}

// ensureCode allocates the human-facing code the first time the ticket is
// outside draft.
func (t *Ticket) ensureCode(env TransitionEnv) error {
	if t.Code != nil || t.Status == TicketStatusDraft || env.NextCode == nil {
		return nil
	}
	code, err := env.NextCode()
	if err != nil {
		return err
	}
	t.Code = &code
	return nil
}

func (t *Ticket) transition(action TicketAction, reason string, env TransitionEnv) error {
	res, err := TicketMachine.Apply(t.Status, action, workflow.Args{Reason: reason, ReopenCount: t.ReopenCount})
	if err != nil {
		return err
	}

	prev := t.Status
	t.Status = res.To
	if err := t.ensureCode(env); err != nil {
		t.Status = prev
		return err
	}

	for _, effect := range res.Effects {
		switch effect {
		case workflow.EffectStartSLA:
			if t.DueAt == nil && env.SLA != nil {
				due := env.SLA.DueAt(string(t.Priority), env.Now)
				t.DueAt = &due
			}
		case workflow.EffectIncrementReopen:
			t.ReopenCount++
			t.Version++
		case workflow.EffectRecordPostponeReason:
			t.PostponementReason = reason
		case workflow.EffectRecordRejectReason:
			t.RejectionReason = reason
		case workflow.EffectClearPostponeReason:
			t.PostponementReason = ""
		}
	}
	t.UpdatedAt = env.Now
	return nil
}
