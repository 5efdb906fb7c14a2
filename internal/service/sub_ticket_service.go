package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdesk-hub/ticket-service/internal/audit"
	"github.com/helpdesk-hub/ticket-service/internal/domain"
	"github.com/helpdesk-hub/ticket-service/internal/events"
	"github.com/helpdesk-hub/ticket-service/internal/repository"
	apperrors "github.com/helpdesk-hub/ticket-service/pkg/util/errorutil"
)

// SubTicketService coordinates departmental sub-tickets.
type SubTicketService struct {
	*lifecycle
}

// NewSubTicketService constructs the service.
func NewSubTicketService(deps Dependencies) *SubTicketService {
	return &SubTicketService{lifecycle: newLifecycle(deps)}
}

// CreateSubTicketInput describes a new sub-ticket.
type CreateSubTicketInput struct {
	Title        string
	Description  string
	Priority     string
	DepartmentID string
	AssigneeID   *string
}

var subTicketHandlers = map[domain.SubTicketAction]func(s *domain.SubTicket, now time.Time) error{
	domain.SubActionStartProgress: (*domain.SubTicket).StartProgress,
	domain.SubActionMarkResolved:  (*domain.SubTicket).MarkResolved,
	domain.SubActionClose:         (*domain.SubTicket).Close,
	domain.SubActionReopen:        (*domain.SubTicket).Reopen,
	domain.SubActionResume:        (*domain.SubTicket).Resume,
}

// Create adds a sub-ticket to an active parent.
func (s *SubTicketService) Create(ctx context.Context, parentID string, input CreateSubTicketInput, actor Actor) (*domain.SubTicket, error) {
	var created *domain.SubTicket
	err := s.run(ctx, domain.SubjectSubTicket, "create", func(ctx context.Context, tx repository.Repositories) error {
		parent, err := tx.Tickets().Get(ctx, parentID, false)
		if err != nil {
			return lockErr("ticket", parentID, err)
		}
		now := s.now()
		sub, err := domain.NewSubTicket(domain.NewSubTicketParams{
			ID:             uuid.NewString(),
			ParentTicketID: parent.ID,
			Title:          input.Title,
			Description:    input.Description,
			Priority:       input.Priority,
			DepartmentID:   input.DepartmentID,
			AssigneeID:     input.AssigneeID,
		}, now)
		if err != nil {
			return err
		}
		if err := tx.SubTickets().Create(ctx, sub); err != nil {
			return err
		}

		actorID := actor.or(parent.RequestorID)
		event, err := events.NewEvent(events.EventSubTicketCreated, sub.ID, actorID, events.SubTicketCreatedPayload{
			ParentTicketID: sub.ParentTicketID,
			DepartmentID:   sub.DepartmentID,
			AssigneeID:     sub.AssigneeID,
			Title:          sub.Title,
		}, now)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, audit.Entry{
			ActorID:     actorID,
			Action:      domain.AuditActionCreate,
			Category:    domain.AuditCategorySubTicket,
			SubjectType: domain.SubjectSubTicket,
			SubjectID:   sub.ID,
			After:       sub.Snapshot(),
			Reason:      "sub-ticket created",
			IPAddress:   actor.IPAddress,
		}, event); err != nil {
			return err
		}
		created = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sub-ticket created",
		zap.String("sub_ticket_id", created.ID),
		zap.String("parent_ticket_id", created.ParentTicketID),
		zap.String("department_id", created.DepartmentID))
	return created, nil
}

// ApplyAction runs one sub-ticket transition. Asking for the current state is
// a no-op success.
func (s *SubTicketService) ApplyAction(ctx context.Context, subTicketID string, action domain.SubTicketAction, actor Actor) (*domain.SubTicket, error) {
	apply, ok := subTicketHandlers[action]
	if !ok {
		return nil, apperrors.NewInvalidAction(string(action))
	}
	target, _ := domain.SubTicketMachine.Target(action)
	return s.mutate(ctx, subTicketID, string(action), actor, events.EventSubTicketTransitioned,
		func(sub *domain.SubTicket, now time.Time) (bool, string, any, error) {
			if sub.Status == target {
				return false, "", nil, nil
			}
			from := sub.Status
			if err := apply(sub, now); err != nil {
				return false, "", nil, err
			}
			return true, fmt.Sprintf("sub-ticket %s", action), events.TransitionPayload{
				Action: string(action),
				From:   from,
				To:     sub.Status,
			}, nil
		})
}

// Assign replaces the assignee and optionally the department.
func (s *SubTicketService) Assign(ctx context.Context, subTicketID, assigneeID string, departmentID *string, actor Actor) (*domain.SubTicket, error) {
	return s.mutate(ctx, subTicketID, "assign", actor, events.EventSubTicketUpdated,
		func(sub *domain.SubTicket, now time.Time) (bool, string, any, error) {
			sameDept := departmentID == nil || *departmentID == sub.DepartmentID
			if sub.AssigneeID != nil && *sub.AssigneeID == assigneeID && sameDept && sub.Status != domain.TicketStatusClosed {
				return false, "", nil, nil
			}
			if err := sub.Assign(assigneeID, departmentID, now); err != nil {
				return false, "", nil, err
			}
			return true, "sub-ticket assigned to " + assigneeID, events.UpdatedPayload{
				Fields: []string{"assignee_id", "department_id"},
			}, nil
		})
}

// UpdateProgress sets progress_percent on the sub-ticket.
func (s *SubTicketService) UpdateProgress(ctx context.Context, subTicketID string, percent int, actor Actor) (*domain.SubTicket, error) {
	if percent < 0 || percent > 100 {
		return nil, apperrors.NewValidationError("progress_percent must be between 0 and 100",
			map[string]any{"progress_percent": percent})
	}
	return s.mutate(ctx, subTicketID, "update_progress", actor, events.EventSubTicketUpdated,
		func(sub *domain.SubTicket, now time.Time) (bool, string, any, error) {
			if sub.ProgressPercent == percent {
				return false, "", nil, nil
			}
			if err := sub.SetProgress(percent, now); err != nil {
				return false, "", nil, err
			}
			reason := fmt.Sprintf("progress updated to %d%%", percent)
			return true, reason, events.UpdatedPayload{Fields: []string{"progress_percent"}, Reason: reason}, nil
		})
}

// Get loads one sub-ticket.
func (s *SubTicketService) Get(ctx context.Context, subTicketID string, includeDeleted bool) (*domain.SubTicket, error) {
	sub, err := s.store.SubTickets().Get(ctx, subTicketID, includeDeleted)
	if err != nil {
		return nil, mapError(domain.SubjectSubTicket, lockErr("sub-ticket", subTicketID, err))
	}
	return sub, nil
}

// ListByParent returns the parent's sub-tickets, oldest first.
func (s *SubTicketService) ListByParent(ctx context.Context, parentID string, includeDeleted bool) ([]domain.SubTicket, error) {
	if _, err := s.store.Tickets().Get(ctx, parentID, includeDeleted); err != nil {
		return nil, mapError(domain.SubjectTicket, lockErr("ticket", parentID, err))
	}
	subs, err := s.store.SubTickets().ListByParent(ctx, parentID, includeDeleted)
	if err != nil {
		return nil, mapError(domain.SubjectSubTicket, err)
	}
	return subs, nil
}

// History returns the sub-ticket's audit trail, newest first.
func (s *SubTicketService) History(ctx context.Context, subTicketID string, page Page) ([]domain.AuditLog, error) {
	if _, err := s.Get(ctx, subTicketID, true); err != nil {
		return nil, err
	}
	return s.history(ctx, domain.SubjectSubTicket, subTicketID, page)
}

type subTicketMutation func(sub *domain.SubTicket, now time.Time) (changed bool, reason string, payload any, err error)

func (s *SubTicketService) mutate(ctx context.Context, subTicketID, op string, actor Actor, eventType events.EventType, fn subTicketMutation) (*domain.SubTicket, error) {
	var (
		result  *domain.SubTicket
		changed bool
	)
	err := s.run(ctx, domain.SubjectSubTicket, op, func(ctx context.Context, tx repository.Repositories) error {
		sub, err := tx.SubTickets().GetForUpdate(ctx, subTicketID, false)
		if err != nil {
			return lockErr("sub-ticket", subTicketID, err)
		}
		before := sub.Snapshot()
		expected := sub.UpdatedAt
		now := s.now()

		var (
			reason  string
			payload any
		)
		changed, reason, payload, err = fn(sub, now)
		if err != nil {
			return err
		}
		result = sub
		if !changed {
			return nil
		}
		if err := tx.SubTickets().Update(ctx, sub, expected); err != nil {
			return err
		}

		actorID := actor.ID
		if actorID == nil {
			parent, err := tx.Tickets().Get(ctx, sub.ParentTicketID, true)
			if err != nil {
				return err
			}
			actorID = actor.or(parent.RequestorID)
		}
		event, err := events.NewEvent(eventType, sub.ID, actorID, payload, now)
		if err != nil {
			return err
		}
		return s.record(ctx, tx, audit.Entry{
			ActorID:     actorID,
			Action:      domain.AuditActionUpdate,
			Category:    domain.AuditCategorySubTicket,
			SubjectType: domain.SubjectSubTicket,
			SubjectID:   sub.ID,
			Before:      before,
			After:       sub.Snapshot(),
			Reason:      reason,
			IPAddress:   actor.IPAddress,
		}, event)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info("sub-ticket updated",
			zap.String("sub_ticket_id", subTicketID),
			zap.String("op", op),
			zap.String("status", string(result.Status)))
	}
	return result, nil
}
