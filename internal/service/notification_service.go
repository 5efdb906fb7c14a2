package service

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/helpdesk-hub/ticket-service/internal/config"
	"github.com/helpdesk-hub/ticket-service/internal/events"
)

// NotificationService turns relayed lifecycle events into notification
// intents for the requestor and assignee.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketTransitioned, n.handleTicketTransitioned)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventApprovalCreated, n.handleApproval)
	n.dispatcher.Subscribe(events.EventApprovalDecided, n.handleApproval)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	var payload events.TicketCreatedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}
	n.logger.Info("TicketCreated",
		zap.String("ticket_id", event.AggregateID),
		zap.String("requestor_id", payload.RequestorID),
		zap.String("status", string(payload.Status)))
	n.sendEmailNotificationStub(ctx, event, payload.RequestorID)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketTransitioned(ctx context.Context, event events.Event) error {
	var payload events.TransitionPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}
	n.logger.Info("TicketTransitioned",
		zap.String("ticket_id", event.AggregateID),
		zap.String("action", payload.Action),
		zap.String("from", string(payload.From)),
		zap.String("to", string(payload.To)))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	var payload events.AssignedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}
	n.logger.Info("TicketAssigned",
		zap.String("ticket_id", event.AggregateID),
		zap.String("assignee_id", payload.AssigneeID),
		zap.Timep("due_at", payload.DueAt))
	n.sendEmailNotificationStub(ctx, event, payload.AssigneeID)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleApproval(ctx context.Context, event events.Event) error {
	var payload events.ApprovalPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}
	n.logger.Info("Approval",
		zap.String("approval_id", event.AggregateID),
		zap.String("ticket_id", payload.TicketID),
		zap.String("status", string(payload.Status)))
	n.sendEmailNotificationStub(ctx, event, payload.ApproverID)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event, recipientID string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" || recipientID == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("recipient_id", recipientID),
		zap.String("aggregate_id", event.AggregateID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("aggregate_id", event.AggregateID),
		zap.String("event_type", string(event.Type)))
}
