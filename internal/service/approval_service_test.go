package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/helpdesk-hub/ticket-service/internal/config"
	"github.com/helpdesk-hub/ticket-service/internal/domain"
	"github.com/helpdesk-hub/ticket-service/internal/events"
	apperrors "github.com/helpdesk-hub/ticket-service/pkg/util/errorutil"
)

func TestApprovalDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "medium")

	approval, err := f.approvals.Create(ctx, CreateApprovalInput{
		TicketID:   ticket.ID,
		ApproverID: "manager-1",
		Reason:     "budget over threshold",
		Documents:  map[string]any{"quote": "q-17.pdf"},
	}, Actor{})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusPending, approval.Status)

	approved, err := f.approvals.Approve(ctx, approval.ID, "", Actor{})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusApproved, approved.Status)
	assert.Equal(t, "budget over threshold", approved.Reason)

	again, err := f.approvals.Approve(ctx, approval.ID, "", Actor{})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusApproved, again.Status)

	_, err = f.approvals.Reject(ctx, approval.ID, "changed my mind", Actor{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidSourceState)

	logs := f.history(t, domain.SubjectApproval, approval.ID)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.AuditCategoryApproval, logs[0].Category)
	assert.Equal(t, "approval approved", logs[0].Reason)
	require.NotNil(t, logs[0].PerformedByID)
	assert.Equal(t, "manager-1", *logs[0].PerformedByID)

	listed, err := f.approvals.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	current, err := f.tickets.Get(ctx, ticket.ID, false)
	require.NoError(t, err)
	assert.Equal(t, ticket.Status, current.Status)
}

func TestApprovalNeedsTicketAndApprover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.approvals.Create(ctx, CreateApprovalInput{TicketID: "missing", ApproverID: "m"}, Actor{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	ticket := f.createTicket(t, "medium")
	_, err = f.approvals.Create(ctx, CreateApprovalInput{TicketID: ticket.ID}, Actor{})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.approvals.Approve(ctx, "missing", "", Actor{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAuditArchiveAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "medium")
	f.act(t, ticket.ID, domain.ActionSubmit)

	audits := NewAuditService(f.store, zaptest.NewLogger(t), func() time.Time {
		return f.clock.Now().Add(8 * 365 * 24 * time.Hour)
	})
	report, err := audits.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 1, report.Subjects)
	assert.Equal(t, 2, report.Entries)

	archived, err := audits.ArchiveExpired(ctx, 7*365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), archived)

	logs := f.history(t, domain.SubjectTicket, ticket.ID)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.NotNil(t, l.ArchivedAt)
	}
	report, err = audits.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), "archiving must not break the chain")

	require.NoError(t, f.store.Audit().Append(ctx, &domain.AuditLog{
		ID:        "forged",
		ModelName: domain.SubjectTicket,
		ObjectID:  ticket.ID,
		Timestamp: f.clock.Now(),
		Checksum:  "not-a-checksum",
	}))
	report, err = audits.Verify(ctx)
	require.NoError(t, err)
	require.Len(t, report.Broken, 1)
	assert.Equal(t, 2, report.Broken[0].Index)
	assert.Equal(t, "forged", report.Broken[0].EntryID)
}

func TestNotificationsFollowEvents(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	dispatcher := events.NewInMemoryDispatcher()
	notifier := NewNotificationService(dispatcher, zap.New(core), config.NotificationConfig{EmailFrom: "helpdesk@example.com"})
	notifier.RegisterHandlers()

	event, err := events.NewEvent(events.EventTicketAssigned, "t-1", nil, events.AssignedPayload{
		AssigneeID: "agent-1", Transitioned: true,
	}, time.Now())
	require.NoError(t, err)
	require.NoError(t, dispatcher.Publish(context.Background(), event))

	assert.Equal(t, 1, recorded.FilterMessage("TicketAssigned").Len())
	emails := recorded.FilterMessage("sendEmailNotificationStub").All()
	require.Len(t, emails, 1)
	assert.Equal(t, "agent-1", emails[0].ContextMap()["recipient_id"])
	assert.Zero(t, recorded.FilterMessage("sendWebhookNotificationStub").Len())

	bad := event
	bad.Payload = []byte("{")
	assert.Error(t, dispatcher.Publish(context.Background(), bad))
}
