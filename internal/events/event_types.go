package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helpdesk-hub/ticket-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket.created"
	EventTicketTransitioned    EventType = "ticket.transitioned"
	EventTicketAssigned        EventType = "ticket.assigned"
	EventTicketUpdated         EventType = "ticket.updated"
	EventTicketDeleted         EventType = "ticket.deleted"
	EventTicketRestored        EventType = "ticket.restored"
	EventSubTicketCreated      EventType = "subticket.created"
	EventSubTicketTransitioned EventType = "subticket.transitioned"
	EventSubTicketUpdated      EventType = "subticket.updated"
	EventApprovalCreated       EventType = "approval.created"
	EventApprovalDecided       EventType = "approval.decided"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	ActorID     *string         `json:"actor_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

// NewEvent encodes payload and stamps a fresh id.
func NewEvent(eventType EventType, aggregateID string, actorID *string, payload any, now time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		ActorID:     actorID,
		Timestamp:   now,
		Payload:     raw,
	}, nil
}

// ToOutbox serializes the whole event into an outbox row.
func (e Event) ToOutbox() (*domain.OutboxEvent, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return &domain.OutboxEvent{
		ID:          e.ID,
		EventType:   string(e.Type),
		AggregateID: e.AggregateID,
		Payload:     body,
		CreatedAt:   e.Timestamp,
	}, nil
}

// FromOutbox decodes a row written by ToOutbox.
func FromOutbox(row domain.OutboxEvent) (Event, error) {
	var e Event
	if err := json.Unmarshal(row.Payload, &e); err != nil {
		return Event{}, fmt.Errorf("decode outbox event %s: %w", row.ID, err)
	}
	return e, nil
}

// TransitionPayload describes a status change.
type TransitionPayload struct {
	Action string              `json:"action"`
	From   domain.TicketStatus `json:"from"`
	To     domain.TicketStatus `json:"to"`
	Reason string              `json:"reason,omitempty"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Code        *string               `json:"code,omitempty"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	RequestorID string                `json:"requestor_id"`
	Title       string                `json:"title"`
}

// AssignedPayload payload.
type AssignedPayload struct {
	AssigneeID   string     `json:"assignee_id"`
	DepartmentID *string    `json:"department_id,omitempty"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	Transitioned bool       `json:"transitioned"`
}

// UpdatedPayload lists the fields a non-transition mutation touched.
type UpdatedPayload struct {
	Fields []string `json:"fields"`
	Reason string   `json:"reason,omitempty"`
}

// ApprovalPayload payload.
type ApprovalPayload struct {
	TicketID   string                `json:"ticket_id"`
	ApproverID string                `json:"approver_id"`
	Status     domain.ApprovalStatus `json:"status"`
}

// SubTicketCreatedPayload payload.
type SubTicketCreatedPayload struct {
	ParentTicketID string  `json:"parent_ticket_id"`
	DepartmentID   string  `json:"department_id"`
	AssigneeID     *string `json:"assignee_id,omitempty"`
	Title          string  `json:"title"`
}
