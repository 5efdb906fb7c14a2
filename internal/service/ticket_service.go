package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdesk-hub/ticket-service/internal/audit"
	"github.com/helpdesk-hub/ticket-service/internal/domain"
	"github.com/helpdesk-hub/ticket-service/internal/events"
	"github.com/helpdesk-hub/ticket-service/internal/repository"
	apperrors "github.com/helpdesk-hub/ticket-service/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	*lifecycle
}

// NewTicketService constructs the service.
func NewTicketService(deps Dependencies) *TicketService {
	return &TicketService{lifecycle: newLifecycle(deps)}
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Title            string
	Description      string
	RequestorID      string
	DepartmentID     *string
	Priority         string
	Category         string
	Status           domain.TicketStatus
	RequiresApproval bool
}

// ActionRequest names a transition and its optional payload. AssigneeID and
// DepartmentID are only read by the assign action.
type ActionRequest struct {
	Action       domain.TicketAction
	Reason       string
	AssigneeID   string
	DepartmentID *string
}

// ConfirmReviewInput is the moderator's edit.
type ConfirmReviewInput struct {
	Title        string
	Description  string
	Priority     string
	Category     string
	DepartmentID *string
	AssigneeID   string
}

// AcknowledgeResult reports the ticket and whether the acknowledgement met the
// response target of its priority.
type AcknowledgeResult struct {
	Ticket            *domain.Ticket
	WithinResponseSLA bool
}

type ticketHandler struct {
	apply func(t *domain.Ticket, req ActionRequest, env domain.TransitionEnv) error
	// noop reports that the request asks for the state the ticket already has.
	noop     func(t *domain.Ticket, req ActionRequest) bool
	describe func(t *domain.Ticket, req ActionRequest) string
}

func reachedTarget(action domain.TicketAction) func(*domain.Ticket, ActionRequest) bool {
	target, _ := domain.TicketMachine.Target(action)
	return func(t *domain.Ticket, _ ActionRequest) bool { return t.Status == target }
}

func fixed(text string) func(*domain.Ticket, ActionRequest) string {
	return func(*domain.Ticket, ActionRequest) string { return text }
}

func withReason(prefix string) func(*domain.Ticket, ActionRequest) string {
	return func(_ *domain.Ticket, req ActionRequest) string { return prefix + ": " + strings.TrimSpace(req.Reason) }
}

var ticketHandlers = map[domain.TicketAction]ticketHandler{
	domain.ActionSubmit: {
		apply:    func(t *domain.Ticket, _ ActionRequest, env domain.TransitionEnv) error { return t.Submit(env) },
		noop:     reachedTarget(domain.ActionSubmit),
		describe: fixed("ticket submitted"),
	},
	domain.ActionReview: {
		apply:    func(t *domain.Ticket, _ ActionRequest, env domain.TransitionEnv) error { return t.Review(env) },
		noop:     reachedTarget(domain.ActionReview),
		describe: fixed("ticket under review"),
	},
	domain.ActionAssign: {
		apply: func(t *domain.Ticket, req ActionRequest, env domain.TransitionEnv) error {
			_, err := t.Assign(req.AssigneeID, req.DepartmentID, env)
			return err
		},
		noop: func(t *domain.Ticket, req ActionRequest) bool {
			return t.HoldsAssignment(req.AssigneeID, req.DepartmentID)
		},
		describe: func(_ *domain.Ticket, req ActionRequest) string { return "ticket assigned to " + req.AssigneeID },
	},
	domain.ActionStartProgress: {
		apply:    func(t *domain.Ticket, _ ActionRequest, env domain.TransitionEnv) error { return t.StartProgress(env) },
		noop:     reachedTarget(domain.ActionStartProgress),
		describe: fixed("work started"),
	},
	domain.ActionResolve: {
		apply:    func(t *domain.Ticket, _ ActionRequest, env domain.TransitionEnv) error { return t.Resolve(env) },
		noop:     reachedTarget(domain.ActionResolve),
		describe: fixed("ticket resolved"),
	},
	domain.ActionClose: {
		apply:    func(t *domain.Ticket, _ ActionRequest, env domain.TransitionEnv) error { return t.Close(env) },
		noop:     reachedTarget(domain.ActionClose),
		describe: fixed("ticket closed"),
	},
	domain.ActionReopen: {
		apply:    func(t *domain.Ticket, _ ActionRequest, env domain.TransitionEnv) error { return t.Reopen(env) },
		noop:     reachedTarget(domain.ActionReopen),
		describe: fixed("ticket reopened"),
	},
	domain.ActionPostpone: {
		apply: func(t *domain.Ticket, req ActionRequest, env domain.TransitionEnv) error {
			return t.Postpone(req.Reason, env)
		},
		noop:     reachedTarget(domain.ActionPostpone),
		describe: withReason("ticket postponed"),
	},
	domain.ActionReject: {
		apply: func(t *domain.Ticket, req ActionRequest, env domain.TransitionEnv) error {
			return t.Reject(req.Reason, env)
		},
		noop:     reachedTarget(domain.ActionReject),
		describe: withReason("ticket rejected"),
	},
	domain.ActionResume: {
		apply:    func(t *domain.Ticket, _ ActionRequest, env domain.TransitionEnv) error { return t.Resume(env) },
		noop:     reachedTarget(domain.ActionResume),
		describe: fixed("work resumed"),
	},
}

// CreateTicket validates input, persists the ticket and records its creation.
func (s *TicketService) CreateTicket(ctx context.Context, input CreateTicketInput, actor Actor) (*domain.Ticket, error) {
	var created *domain.Ticket
	err := s.run(ctx, domain.SubjectTicket, "create", func(ctx context.Context, tx repository.Repositories) error {
		now := s.now()
		ticket, err := domain.NewTicket(domain.NewTicketParams{
			ID:               uuid.NewString(),
			Title:            input.Title,
			Description:      input.Description,
			RequestorID:      input.RequestorID,
			DepartmentID:     input.DepartmentID,
			Priority:         input.Priority,
			Category:         input.Category,
			Status:           input.Status,
			RequiresApproval: input.RequiresApproval,
		}, s.env(ctx, tx, now))
		if err != nil {
			return err
		}
		if err := tx.Tickets().Create(ctx, ticket); err != nil {
			return err
		}

		actorID := actor.or(ticket.RequestorID)
		event, err := events.NewEvent(events.EventTicketCreated, ticket.ID, actorID, events.TicketCreatedPayload{
			Code:        ticket.Code,
			Status:      ticket.Status,
			Priority:    ticket.Priority,
			RequestorID: ticket.RequestorID,
			Title:       ticket.Title,
		}, now)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, audit.Entry{
			ActorID:     actorID,
			Action:      domain.AuditActionCreate,
			Category:    domain.AuditCategoryTicket,
			SubjectType: domain.SubjectTicket,
			SubjectID:   ticket.ID,
			After:       ticket.Snapshot(),
			Reason:      "ticket created",
			IPAddress:   actor.IPAddress,
		}, event); err != nil {
			return err
		}
		created = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", created.ID),
		zap.String("status", string(created.Status)),
		zap.String("priority", string(created.Priority)))
	return created, nil
}

// ApplyAction runs one named transition. Asking for the state the ticket is
// already in succeeds without writing anything.
func (s *TicketService) ApplyAction(ctx context.Context, ticketID string, req ActionRequest, actor Actor) (*domain.Ticket, error) {
	handler, ok := ticketHandlers[req.Action]
	if !ok {
		return nil, apperrors.NewInvalidAction(string(req.Action))
	}
	if req.Action.RequiresReason() {
		if err := requireReason(req.Reason, "reason"); err != nil {
			return nil, err
		}
	}
	if req.Action == domain.ActionAssign && strings.TrimSpace(req.AssigneeID) == "" {
		return nil, apperrors.NewValidationError("assignee_id is required",
			map[string]any{"assignee_id": "is required"})
	}

	var (
		result *domain.Ticket
		from   domain.TicketStatus
		noop   bool
	)
	err := s.run(ctx, domain.SubjectTicket, string(req.Action), func(ctx context.Context, tx repository.Repositories) error {
		ticket, err := tx.Tickets().GetForUpdate(ctx, ticketID, false)
		if err != nil {
			return lockErr("ticket", ticketID, err)
		}
		noop = handler.noop(ticket, req)
		if noop {
			result = ticket
			return nil
		}

		before := ticket.Snapshot()
		from = ticket.Status
		expected := ticket.UpdatedAt
		now := s.now()
		if err := handler.apply(ticket, req, s.env(ctx, tx, now)); err != nil {
			return err
		}
		if err := tx.Tickets().Update(ctx, ticket, expected); err != nil {
			return err
		}

		reason := handler.describe(ticket, req)
		actorID := actor.or(ticket.RequestorID)
		event, err := s.transitionEvent(ticket, req, from, actorID, now)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, audit.Entry{
			ActorID:     actorID,
			Action:      domain.AuditActionUpdate,
			Category:    domain.AuditCategoryTicket,
			SubjectType: domain.SubjectTicket,
			SubjectID:   ticket.ID,
			Before:      before,
			After:       ticket.Snapshot(),
			Reason:      reason,
			IPAddress:   actor.IPAddress,
		}, event); err != nil {
			return err
		}
		result = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	if noop {
		s.logger.Debug("ticket action already applied",
			zap.String("ticket_id", ticketID),
			zap.String("action", string(req.Action)),
			zap.String("status", string(result.Status)))
		return result, nil
	}
	s.logger.Info("ticket transitioned",
		zap.String("ticket_id", ticketID),
		zap.String("action", string(req.Action)),
		zap.String("from", string(from)),
		zap.String("to", string(result.Status)))
	return result, nil
}

func (s *TicketService) transitionEvent(t *domain.Ticket, req ActionRequest, from domain.TicketStatus, actorID *string, now time.Time) (events.Event, error) {
	if req.Action == domain.ActionAssign {
		return events.NewEvent(events.EventTicketAssigned, t.ID, actorID, events.AssignedPayload{
			AssigneeID:   req.AssigneeID,
			DepartmentID: t.DepartmentID,
			DueAt:        t.DueAt,
			Transitioned: from != t.Status,
		}, now)
	}
	return events.NewEvent(events.EventTicketTransitioned, t.ID, actorID, events.TransitionPayload{
		Action: string(req.Action),
		From:   from,
		To:     t.Status,
		Reason: req.Reason,
	}, now)
}

// Assign sets the assignee. From under_review it moves the ticket to assigned
// and starts the SLA clock; later working states keep their status.
func (s *TicketService) Assign(ctx context.Context, ticketID, assigneeID string, departmentID *string, actor Actor) (*domain.Ticket, error) {
	return s.ApplyAction(ctx, ticketID, ActionRequest{
		Action:       domain.ActionAssign,
		AssigneeID:   assigneeID,
		DepartmentID: departmentID,
	}, actor)
}

// ConfirmReview applies the moderator's edits and assigns the ticket in one
// unit. The due date is always recomputed from the final priority.
func (s *TicketService) ConfirmReview(ctx context.Context, ticketID string, input ConfirmReviewInput, actor Actor) (*domain.Ticket, error) {
	var result *domain.Ticket
	err := s.run(ctx, domain.SubjectTicket, "confirm_review", func(ctx context.Context, tx repository.Repositories) error {
		ticket, err := tx.Tickets().GetForUpdate(ctx, ticketID, false)
		if err != nil {
			return lockErr("ticket", ticketID, err)
		}
		before := ticket.Snapshot()
		from := ticket.Status
		expected := ticket.UpdatedAt
		now := s.now()

		if err := ticket.ConfirmReview(domain.ReviewInput{
			Title:        input.Title,
			Description:  input.Description,
			Priority:     input.Priority,
			Category:     input.Category,
			DepartmentID: input.DepartmentID,
			AssigneeID:   input.AssigneeID,
		}, s.env(ctx, tx, now)); err != nil {
			return err
		}
		if err := tx.Tickets().Update(ctx, ticket, expected); err != nil {
			return err
		}

		actorID := actor.or(ticket.RequestorID)
		event, err := events.NewEvent(events.EventTicketAssigned, ticket.ID, actorID, events.AssignedPayload{
			AssigneeID:   input.AssigneeID,
			DepartmentID: ticket.DepartmentID,
			DueAt:        ticket.DueAt,
			Transitioned: from != ticket.Status,
		}, now)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, audit.Entry{
			ActorID:     actorID,
			Action:      domain.AuditActionUpdate,
			Category:    domain.AuditCategoryTicket,
			SubjectType: domain.SubjectTicket,
			SubjectID:   ticket.ID,
			Before:      before,
			After:       ticket.Snapshot(),
			Reason:      "review confirmed, ticket assigned to " + input.AssigneeID,
			IPAddress:   actor.IPAddress,
		}, event); err != nil {
			return err
		}
		result = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket review confirmed",
		zap.String("ticket_id", ticketID),
		zap.String("assignee_id", input.AssigneeID),
		zap.Timep("due_at", result.DueAt))
	return result, nil
}

// UpdateProgress sets progress_percent. Setting the current value is a no-op.
func (s *TicketService) UpdateProgress(ctx context.Context, ticketID string, percent int, actor Actor) (*domain.Ticket, error) {
	if percent < 0 || percent > 100 {
		return nil, apperrors.NewValidationError("progress_percent must be between 0 and 100",
			map[string]any{"progress_percent": percent})
	}
	return s.mutate(ctx, ticketID, "update_progress", actor, domain.AuditActionUpdate,
		func(t *domain.Ticket, now time.Time) (bool, string, error) {
			if t.ProgressPercent == percent {
				return false, "", nil
			}
			if err := t.SetProgress(percent, now); err != nil {
				return false, "", err
			}
			return true, fmt.Sprintf("progress updated to %d%%", percent), nil
		}, "progress_percent")
}

// Acknowledge stamps acknowledged_at once. Repeats succeed without writing.
func (s *TicketService) Acknowledge(ctx context.Context, ticketID, notes string, actor Actor) (*AcknowledgeResult, error) {
	ticket, err := s.mutate(ctx, ticketID, "acknowledge", actor, domain.AuditActionUpdate,
		func(t *domain.Ticket, now time.Time) (bool, string, error) {
			if !t.Acknowledge(now) {
				return false, "", nil
			}
			reason := "ticket acknowledged"
			if n := strings.TrimSpace(notes); n != "" {
				reason += ": " + n
			}
			return true, reason, nil
		}, "acknowledged_at")
	if err != nil {
		return nil, err
	}
	return &AcknowledgeResult{
		Ticket:            ticket,
		WithinResponseSLA: s.sla.WithinResponse(string(ticket.Priority), ticket.CreatedAt, *ticket.AcknowledgedAt),
	}, nil
}

// UpdateSLA overrides the due date. A reason is mandatory.
func (s *TicketService) UpdateSLA(ctx context.Context, ticketID string, dueAt time.Time, reason string, actor Actor) (*domain.Ticket, error) {
	if err := requireReason(reason, "reason"); err != nil {
		return nil, err
	}
	if dueAt.IsZero() {
		return nil, apperrors.NewValidationError("due_at is required", map[string]any{"due_at": "is required"})
	}
	due := dueAt.UTC().Truncate(time.Microsecond)
	return s.mutate(ctx, ticketID, "update_sla", actor, domain.AuditActionUpdate,
		func(t *domain.Ticket, now time.Time) (bool, string, error) {
			if err := t.OverrideDueAt(due, now); err != nil {
				return false, "", err
			}
			return true, "due date updated: " + strings.TrimSpace(reason), nil
		}, "due_at")
}

// SoftDelete hides the ticket and its sub-tickets from active queries.
func (s *TicketService) SoftDelete(ctx context.Context, ticketID, reason string, actor Actor) error {
	_, err := s.mutate(ctx, ticketID, "soft_delete", actor, domain.AuditActionSoftDelete,
		func(t *domain.Ticket, now time.Time) (bool, string, error) {
			t.SoftDelete(now)
			return true, joinReason("ticket deleted", reason), nil
		}, "is_deleted")
	return err
}

// Restore brings a soft-deleted ticket back. Restoring an active ticket is a
// no-op.
func (s *TicketService) Restore(ctx context.Context, ticketID, reason string, actor Actor) (*domain.Ticket, error) {
	return s.mutateTicket(ctx, ticketID, "restore", true, actor, domain.AuditActionRestore,
		func(t *domain.Ticket, now time.Time) (bool, string, error) {
			if !t.Restore(now) {
				return false, "", nil
			}
			return true, joinReason("ticket restored", reason), nil
		}, "is_deleted")
}

// Get loads one ticket.
func (s *TicketService) Get(ctx context.Context, ticketID string, includeDeleted bool) (*domain.Ticket, error) {
	ticket, err := s.store.Tickets().Get(ctx, ticketID, includeDeleted)
	if err != nil {
		return nil, mapError(domain.SubjectTicket, lockErr("ticket", ticketID, err))
	}
	return ticket, nil
}

// List returns tickets matching filter, most recently updated first.
func (s *TicketService) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.store.Tickets().List(ctx, filter)
	if err != nil {
		return nil, mapError(domain.SubjectTicket, err)
	}
	return tickets, nil
}

// History returns the ticket's audit trail, newest first. Deleted tickets keep
// their history readable.
func (s *TicketService) History(ctx context.Context, ticketID string, page Page) ([]domain.AuditLog, error) {
	if _, err := s.Get(ctx, ticketID, true); err != nil {
		return nil, err
	}
	return s.history(ctx, domain.SubjectTicket, ticketID, page)
}

type ticketMutation func(t *domain.Ticket, now time.Time) (changed bool, reason string, err error)

func (s *TicketService) mutate(ctx context.Context, ticketID, op string, actor Actor, action domain.AuditActionType, fn ticketMutation, fields ...string) (*domain.Ticket, error) {
	return s.mutateTicket(ctx, ticketID, op, false, actor, action, fn, fields...)
}

// mutateTicket applies a field change that is not a status transition under
// the same lock, audit and outbox rules as ApplyAction.
func (s *TicketService) mutateTicket(ctx context.Context, ticketID, op string, includeDeleted bool, actor Actor, action domain.AuditActionType, fn ticketMutation, fields ...string) (*domain.Ticket, error) {
	var result *domain.Ticket
	err := s.run(ctx, domain.SubjectTicket, op, func(ctx context.Context, tx repository.Repositories) error {
		ticket, err := tx.Tickets().GetForUpdate(ctx, ticketID, includeDeleted)
		if err != nil {
			return lockErr("ticket", ticketID, err)
		}
		before := ticket.Snapshot()
		expected := ticket.UpdatedAt
		now := s.now()

		changed, reason, err := fn(ticket, now)
		if err != nil {
			return err
		}
		result = ticket
		if !changed {
			return nil
		}
		if err := tx.Tickets().Update(ctx, ticket, expected); err != nil {
			return err
		}

		actorID := actor.or(ticket.RequestorID)
		event, err := events.NewEvent(ticketEventFor(action), ticket.ID, actorID, events.UpdatedPayload{
			Fields: fields,
			Reason: reason,
		}, now)
		if err != nil {
			return err
		}
		return s.record(ctx, tx, audit.Entry{
			ActorID:     actorID,
			Action:      action,
			Category:    domain.AuditCategoryTicket,
			SubjectType: domain.SubjectTicket,
			SubjectID:   ticket.ID,
			Before:      before,
			After:       ticket.Snapshot(),
			Reason:      reason,
			IPAddress:   actor.IPAddress,
		}, event)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("ticket updated", zap.String("ticket_id", ticketID), zap.String("op", op))
	return result, nil
}

func ticketEventFor(action domain.AuditActionType) events.EventType {
	switch action {
	case domain.AuditActionSoftDelete:
		return events.EventTicketDeleted
	case domain.AuditActionRestore:
		return events.EventTicketRestored
	default:
		return events.EventTicketUpdated
	}
}

func joinReason(base, reason string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return base + ": " + r
	}
	return base
}
