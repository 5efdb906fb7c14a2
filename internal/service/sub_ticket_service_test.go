package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-hub/ticket-service/internal/domain"
	apperrors "github.com/helpdesk-hub/ticket-service/pkg/util/errorutil"
)

func (f *fixture) createSub(t *testing.T, parentID string) *domain.SubTicket {
	t.Helper()
	sub, err := f.subs.Create(context.Background(), parentID, CreateSubTicketInput{
		Title:        "Replace edge router",
		Priority:     "high",
		DepartmentID: "dept-infra",
	}, Actor{})
	require.NoError(t, err)
	return sub
}

func (f *fixture) subAct(t *testing.T, id string, action domain.SubTicketAction) *domain.SubTicket {
	t.Helper()
	sub, err := f.subs.ApplyAction(context.Background(), id, action, Actor{})
	require.NoError(t, err)
	return sub
}

func TestSubTicketLifecycle(t *testing.T) {
	f := newFixture(t)
	parent := f.createTicket(t, "medium")
	sub := f.createSub(t, parent.ID)
	assert.Equal(t, domain.TicketStatusAssigned, sub.Status)

	f.subAct(t, sub.ID, domain.SubActionStartProgress)
	f.subAct(t, sub.ID, domain.SubActionMarkResolved)
	closed := f.subAct(t, sub.ID, domain.SubActionClose)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)

	logs, err := f.subs.History(context.Background(), sub.ID, Page{})
	require.NoError(t, err)
	require.Len(t, logs, 4)
	assert.Equal(t, domain.AuditCategorySubTicket, logs[0].Category)
	assert.Equal(t, "sub-ticket close", logs[0].Reason)
	require.NotNil(t, logs[0].PerformedByID)
	assert.Equal(t, parent.RequestorID, *logs[0].PerformedByID)
}

func TestSubTicketCreateNeedsActiveParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.subs.Create(ctx, "missing", CreateSubTicketInput{Title: "x", DepartmentID: "d"}, Actor{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	parent := f.createTicket(t, "medium")
	_, err = f.subs.Create(ctx, parent.ID, CreateSubTicketInput{Title: "x"}, Actor{})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSubTicketReopenLimit(t *testing.T) {
	f := newFixture(t)
	parent := f.createTicket(t, "medium")
	sub := f.createSub(t, parent.ID)
	f.subAct(t, sub.ID, domain.SubActionStartProgress)
	f.subAct(t, sub.ID, domain.SubActionMarkResolved)

	for i := 0; i < domain.MaxReopens; i++ {
		reopened := f.subAct(t, sub.ID, domain.SubActionReopen)
		assert.Equal(t, i+1, reopened.ReopenCount)
		f.subAct(t, sub.ID, domain.SubActionResume)
		f.subAct(t, sub.ID, domain.SubActionMarkResolved)
	}
	_, err := f.subs.ApplyAction(context.Background(), sub.ID, domain.SubActionReopen, Actor{})
	assert.ErrorIs(t, err, apperrors.ErrGuardFailed)
}

func TestSubTicketActionIdempotencyAndErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.createTicket(t, "medium")
	sub := f.createSub(t, parent.ID)

	started := f.subAct(t, sub.ID, domain.SubActionStartProgress)
	again := f.subAct(t, sub.ID, domain.SubActionStartProgress)
	assert.Equal(t, started.UpdatedAt, again.UpdatedAt)

	_, err := f.subs.ApplyAction(ctx, sub.ID, domain.SubActionClose, Actor{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidSourceState)
	_, err = f.subs.ApplyAction(ctx, sub.ID, "approve", Actor{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidAction)
}

func TestSubTicketAssignAndProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.createTicket(t, "medium")
	sub := f.createSub(t, parent.ID)

	dept := "dept-net"
	assigned, err := f.subs.Assign(ctx, sub.ID, "agent-9", &dept, NewActor("lead-1", ""))
	require.NoError(t, err)
	assert.Equal(t, "agent-9", *assigned.AssigneeID)
	assert.Equal(t, "dept-net", assigned.DepartmentID)

	_, err = f.subs.UpdateProgress(ctx, sub.ID, 120, Actor{})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	progressed, err := f.subs.UpdateProgress(ctx, sub.ID, 75, Actor{})
	require.NoError(t, err)
	assert.Equal(t, 75, progressed.ProgressPercent)

	f.subAct(t, sub.ID, domain.SubActionStartProgress)
	f.subAct(t, sub.ID, domain.SubActionMarkResolved)
	f.subAct(t, sub.ID, domain.SubActionClose)
	_, err = f.subs.Assign(ctx, sub.ID, "agent-10", nil, Actor{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidSourceState)
}

func TestSubTicketsHiddenWithDeletedParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.createTicket(t, "medium")
	sub := f.createSub(t, parent.ID)
	f.createSub(t, parent.ID)

	subs, err := f.subs.ListByParent(ctx, parent.ID, false)
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	require.NoError(t, f.tickets.SoftDelete(ctx, parent.ID, "", Actor{}))
	_, err = f.subs.ListByParent(ctx, parent.ID, false)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.subs.Get(ctx, sub.ID, false)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	subs, err = f.subs.ListByParent(ctx, parent.ID, true)
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}
