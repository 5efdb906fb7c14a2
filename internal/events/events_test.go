package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRoundTrip(t *testing.T) {
	actor := "u-1"
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	ev, err := NewEvent(EventTicketTransitioned, "t-1", &actor, TransitionPayload{Action: "submit", From: "draft", To: "submitted"}, now)
	require.NoError(t, err)

	row, err := ev.ToOutbox()
	require.NoError(t, err)
	assert.Equal(t, ev.ID, row.ID)
	assert.Equal(t, "ticket.transitioned", row.EventType)

	back, err := FromOutbox(*row)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, back.ID)
	assert.Equal(t, ev.Type, back.Type)
	assert.Equal(t, "u-1", *back.ActorID)
	assert.True(t, now.Equal(back.Timestamp))
	assert.JSONEq(t, `{"action":"submit","from":"draft","to":"submitted"}`, string(back.Payload))
}

func TestDispatcherJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")
	var seen []string

	d.SubscribeAll(func(_ context.Context, e Event) error {
		seen = append(seen, "all:"+string(e.Type))
		return nil
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		seen = append(seen, "failing")
		return boom
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		seen = append(seen, "after")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"all:ticket.created", "failing", "after"}, seen)

	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventApprovalDecided}))
}

func TestRedisPublisherChannel(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	p := NewRedisPublisher(client, "helpdesk.events")
	assert.Equal(t, "helpdesk.events.ticket.assigned", p.Channel(EventTicketAssigned))
	assert.Equal(t, "ticket.assigned", NewRedisPublisher(client, "").Channel(EventTicketAssigned))

	err := p.Handle(context.Background(), Event{ID: "e", Type: EventTicketAssigned})
	assert.Error(t, err)
}
