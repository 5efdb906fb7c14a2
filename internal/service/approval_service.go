package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdesk-hub/ticket-service/internal/audit"
	"github.com/helpdesk-hub/ticket-service/internal/domain"
	"github.com/helpdesk-hub/ticket-service/internal/events"
	"github.com/helpdesk-hub/ticket-service/internal/repository"
)

// ApprovalService records sign-off requests and decisions. Approvals do not
// gate ticket transitions.
type ApprovalService struct {
	*lifecycle
}

// NewApprovalService constructs the service.
func NewApprovalService(deps Dependencies) *ApprovalService {
	return &ApprovalService{lifecycle: newLifecycle(deps)}
}

// CreateApprovalInput describes a sign-off request.
type CreateApprovalInput struct {
	TicketID   string
	ApproverID string
	Reason     string
	Documents  map[string]any
}

// Create opens a pending approval for an existing ticket.
func (s *ApprovalService) Create(ctx context.Context, input CreateApprovalInput, actor Actor) (*domain.Approval, error) {
	var created *domain.Approval
	err := s.run(ctx, domain.SubjectApproval, "create", func(ctx context.Context, tx repository.Repositories) error {
		if input.TicketID != "" {
			if _, err := tx.Tickets().Get(ctx, input.TicketID, false); err != nil {
				return lockErr("ticket", input.TicketID, err)
			}
		}
		now := s.now()
		approval, err := domain.NewApproval(uuid.NewString(), input.TicketID, input.ApproverID, input.Reason, input.Documents, now)
		if err != nil {
			return err
		}
		if err := tx.Approvals().Create(ctx, approval); err != nil {
			return err
		}
		actorID := actor.or(approval.ApproverID)
		if err := s.recordApproval(ctx, tx, approval, nil, domain.AuditActionCreate, events.EventApprovalCreated,
			"approval requested", actorID, actor.IPAddress, now); err != nil {
			return err
		}
		created = approval
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("approval requested",
		zap.String("approval_id", created.ID),
		zap.String("ticket_id", created.TicketID),
		zap.String("approver_id", created.ApproverID))
	return created, nil
}

// Approve records a positive decision.
func (s *ApprovalService) Approve(ctx context.Context, approvalID, reason string, actor Actor) (*domain.Approval, error) {
	return s.decide(ctx, approvalID, domain.ApprovalActionApprove, reason, actor)
}

// Reject records a negative decision.
func (s *ApprovalService) Reject(ctx context.Context, approvalID, reason string, actor Actor) (*domain.Approval, error) {
	return s.decide(ctx, approvalID, domain.ApprovalActionReject, reason, actor)
}

// Get loads one approval.
func (s *ApprovalService) Get(ctx context.Context, approvalID string) (*domain.Approval, error) {
	approval, err := s.store.Approvals().Get(ctx, approvalID, false)
	if err != nil {
		return nil, mapError(domain.SubjectApproval, lockErr("approval", approvalID, err))
	}
	return approval, nil
}

// ListByTicket returns the ticket's approvals, newest first.
func (s *ApprovalService) ListByTicket(ctx context.Context, ticketID string) ([]domain.Approval, error) {
	approvals, err := s.store.Approvals().ListByTicket(ctx, ticketID, false)
	if err != nil {
		return nil, mapError(domain.SubjectApproval, err)
	}
	return approvals, nil
}

// decide is idempotent on the decision already taken; the opposite decision
// fails with InvalidSourceState.
func (s *ApprovalService) decide(ctx context.Context, approvalID string, action domain.ApprovalAction, reason string, actor Actor) (*domain.Approval, error) {
	target, _ := domain.ApprovalMachine.Target(action)
	var result *domain.Approval
	err := s.run(ctx, domain.SubjectApproval, string(action), func(ctx context.Context, tx repository.Repositories) error {
		approval, err := tx.Approvals().GetForUpdate(ctx, approvalID, false)
		if err != nil {
			return lockErr("approval", approvalID, err)
		}
		result = approval
		if approval.Status == target {
			return nil
		}

		before := approval.Snapshot()
		expected := approval.UpdatedAt
		now := s.now()
		if err := approval.Decide(action, reason, now); err != nil {
			return err
		}
		if err := tx.Approvals().Update(ctx, approval, expected); err != nil {
			return err
		}
		return s.recordApproval(ctx, tx, approval, before, domain.AuditActionUpdate, events.EventApprovalDecided,
			joinReason("approval "+string(approval.Status), reason), actor.or(approval.ApproverID), actor.IPAddress, now)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ApprovalService) recordApproval(ctx context.Context, tx repository.Repositories, approval *domain.Approval, before map[string]any, action domain.AuditActionType, eventType events.EventType, reason string, actorID, ip *string, now time.Time) error {
	event, err := events.NewEvent(eventType, approval.ID, actorID, events.ApprovalPayload{
		TicketID:   approval.TicketID,
		ApproverID: approval.ApproverID,
		Status:     approval.Status,
	}, now)
	if err != nil {
		return err
	}
	return s.record(ctx, tx, audit.Entry{
		ActorID:     actorID,
		Action:      action,
		Category:    domain.AuditCategoryApproval,
		SubjectType: domain.SubjectApproval,
		SubjectID:   approval.ID,
		Before:      before,
		After:       approval.Snapshot(),
		Reason:      reason,
		IPAddress:   ip,
	}, event)
}
