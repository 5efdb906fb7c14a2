package domain

import "time"

// OutboxEvent is a domain event persisted in the same transaction as the
// mutation that produced it, awaiting relay.
type OutboxEvent struct {
	ID          string
	EventType   string
	AggregateID string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
	Attempts    int
	LastError   string
}
