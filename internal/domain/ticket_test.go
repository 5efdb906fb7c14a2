package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-hub/ticket-service/internal/sla"
	"github.com/helpdesk-hub/ticket-service/internal/workflow"
)

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func testEnv() TransitionEnv {
	n := 0
	return TransitionEnv{
		Now: testNow,
		SLA: sla.NewCalculator(nil),
		NextCode: func() (string, error) {
			n++
			return fmt.Sprintf("HD-2026-%04d", n), nil
		},
	}
}

func newDraft(t *testing.T, priority string) *Ticket {
	t.Helper()
	tk, err := NewTicket(NewTicketParams{
		ID:          "t-1",
		Title:       "Printer on fire",
		RequestorID: "u-1",
		Priority:    priority,
		Category:    "hardware",
	}, testEnv())
	require.NoError(t, err)
	return tk
}

func TestNewTicketDefaults(t *testing.T) {
	tk := newDraft(t, "")
	assert.Equal(t, TicketStatusDraft, tk.Status)
	assert.Equal(t, TicketPriorityMedium, tk.Priority)
	assert.Equal(t, 1, tk.Version)
	assert.Zero(t, tk.ReopenCount)
	assert.Nil(t, tk.Code)

	_, err := NewTicket(NewTicketParams{Title: "x", RequestorID: "u", Priority: "critical"}, testEnv())
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewTicket(NewTicketParams{RequestorID: "u"}, testEnv())
	assert.ErrorIs(t, err, ErrInvalidInput)

	tk, err = NewTicket(NewTicketParams{Title: "x", RequestorID: "u", Status: TicketStatusSubmitted}, testEnv())
	require.NoError(t, err)
	require.NotNil(t, tk.Code)
	assert.Equal(t, "HD-2026-0001", *tk.Code)
}

func TestSubmitAllocatesCodeOnce(t *testing.T) {
	env := testEnv()
	tk := newDraft(t, "high")

	require.NoError(t, tk.Submit(env))
	require.NotNil(t, tk.Code)
	code := *tk.Code

	require.NoError(t, tk.Review(env))
	assert.Equal(t, code, *tk.Code)
}

func TestCodeAllocationFailureLeavesStatus(t *testing.T) {
	env := testEnv()
	boom := errors.New("counter unavailable")
	env.NextCode = func() (string, error) { return "", boom }
	tk := newDraft(t, "high")

	err := tk.Submit(env)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, TicketStatusDraft, tk.Status)
}

func TestHappyPathAndSLA(t *testing.T) {
	env := testEnv()
	tk := newDraft(t, "high")

	require.NoError(t, tk.Submit(env))
	require.NoError(t, tk.Review(env))
	changed, err := tk.Assign("agent-1", nil, env)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, TicketStatusAssigned, tk.Status)
	require.NotNil(t, tk.DueAt)
	assert.Equal(t, testNow.Add(24*time.Hour), *tk.DueAt)

	require.NoError(t, tk.StartProgress(env))
	require.NoError(t, tk.Resolve(env))
	require.NoError(t, tk.Close(env))
	assert.Equal(t, TicketStatusClosed, tk.Status)
	assert.Equal(t, 1, tk.Version)
}

func TestAssignKeepsExistingDueDate(t *testing.T) {
	env := testEnv()
	tk := newDraft(t, "low")
	tk.Status = TicketStatusUnderReview
	fixed := testNow.Add(5 * time.Hour)
	tk.DueAt = &fixed

	_, err := tk.Assign("agent-1", nil, env)
	require.NoError(t, err)
	assert.Equal(t, fixed, *tk.DueAt)
}

func TestAssignWithoutTransition(t *testing.T) {
	env := testEnv()
	tk := newDraft(t, "medium")
	tk.Status = TicketStatusInProgress
	dept := "dept-9"

	changed, err := tk.Assign("agent-2", &dept, env)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, TicketStatusInProgress, tk.Status)
	assert.Equal(t, "agent-2", *tk.AssigneeID)
	assert.Equal(t, "dept-9", *tk.DepartmentID)

	tk.Status = TicketStatusClosed
	_, err = tk.Assign("agent-3", nil, env)
	assert.ErrorIs(t, err, workflow.ErrInvalidSourceState)
	assert.Equal(t, "agent-2", *tk.AssigneeID)

	_, err = tk.Assign("", nil, env)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHoldsAssignment(t *testing.T) {
	tk := newDraft(t, "medium")
	dept := "dept-1"
	other := "dept-2"
	agent := "agent-1"
	tk.AssigneeID = &agent
	tk.DepartmentID = &dept

	tk.Status = TicketStatusUnderReview
	assert.False(t, tk.HoldsAssignment("agent-1", nil))

	tk.Status = TicketStatusAssigned
	assert.True(t, tk.HoldsAssignment("agent-1", nil))
	assert.True(t, tk.HoldsAssignment("agent-1", &dept))
	assert.False(t, tk.HoldsAssignment("agent-1", &other))
	assert.False(t, tk.HoldsAssignment("agent-2", nil))

	tk.Status = TicketStatusClosed
	assert.False(t, tk.HoldsAssignment("agent-1", nil))
}

func TestConfirmReview(t *testing.T) {
	env := testEnv()
	tk := newDraft(t, "low")
	require.NoError(t, tk.Submit(env))

	dept := "dept-1"
	err := tk.ConfirmReview(ReviewInput{
		Title:        "Printer on fire (3rd floor)",
		Priority:     "high",
		Category:     "facilities",
		DepartmentID: &dept,
		AssigneeID:   "agent-1",
	}, env)
	require.NoError(t, err)
	assert.Equal(t, TicketStatusAssigned, tk.Status)
	assert.Equal(t, TicketPriorityHigh, tk.Priority)
	assert.Equal(t, "facilities", tk.Category)
	assert.Equal(t, testNow.Add(24*time.Hour), *tk.DueAt)

	err = tk.ConfirmReview(ReviewInput{Title: "again", AssigneeID: "agent-1"}, env)
	assert.ErrorIs(t, err, workflow.ErrInvalidSourceState)
	assert.Equal(t, "Printer on fire (3rd floor)", tk.Title)
}

func TestReopenLimit(t *testing.T) {
	env := testEnv()
	tk := newDraft(t, "medium")
	tk.Status = TicketStatusClosed
	tk.ReopenCount = 2
	tk.Version = 3

	require.NoError(t, tk.Reopen(env))
	assert.Equal(t, TicketStatusReopened, tk.Status)
	assert.Equal(t, 3, tk.ReopenCount)
	assert.Equal(t, 4, tk.Version)

	tk.Status = TicketStatusClosed
	err := tk.Reopen(env)
	assert.ErrorIs(t, err, workflow.ErrGuardFailed)
	assert.ErrorIs(t, err, ErrReopenLimit)
	assert.Equal(t, TicketStatusClosed, tk.Status)
	assert.Equal(t, 3, tk.ReopenCount)
	assert.Equal(t, 4, tk.Version)
}

func TestVersionOnlyMovesOnReopen(t *testing.T) {
	env := testEnv()
	tk := newDraft(t, "medium")
	steps := []func() error{
		func() error { return tk.Submit(env) },
		func() error { return tk.Review(env) },
		func() error { _, err := tk.Assign("a", nil, env); return err },
		func() error { return tk.StartProgress(env) },
		func() error { return tk.SetProgress(50, testNow) },
		func() error { return tk.Postpone("waiting on vendor", env) },
		func() error { return tk.Resume(env) },
		func() error { return tk.Resolve(env) },
	}
	for _, step := range steps {
		require.NoError(t, step())
		assert.Equal(t, 1, tk.Version)
	}
	require.NoError(t, tk.Reopen(env))
	assert.Equal(t, 2, tk.Version)
	require.NoError(t, tk.Resume(env))
	assert.Equal(t, 2, tk.Version)
}

func TestPostponeAndRejectReasons(t *testing.T) {
	env := testEnv()
	tk := newDraft(t, "medium")
	tk.Status = TicketStatusAssigned

	assert.ErrorIs(t, tk.Postpone("  ", env), ErrInvalidInput)
	assert.Equal(t, TicketStatusAssigned, tk.Status)

	require.NoError(t, tk.Postpone("parts on order", env))
	assert.Equal(t, "parts on order", tk.PostponementReason)

	require.NoError(t, tk.Resume(env))
	assert.Empty(t, tk.PostponementReason)

	assert.ErrorIs(t, tk.Reject("", env), ErrInvalidInput)
	require.NoError(t, tk.Reject("duplicate", env))
	assert.Equal(t, TicketStatusRejected, tk.Status)
	assert.Equal(t, "duplicate", tk.RejectionReason)

	assert.ErrorIs(t, tk.Reject("again", env), workflow.ErrInvalidSourceState)
}

func TestRejectSources(t *testing.T) {
	for status := range allTicketStatuses {
		want := status != TicketStatusClosed && status != TicketStatusRejected
		assert.Equal(t, want, TicketMachine.Can(status, ActionReject), "status %s", status)
	}
}

func TestProgressBounds(t *testing.T) {
	tk := newDraft(t, "medium")
	require.NoError(t, tk.SetProgress(40, testNow))

	for _, bad := range []int{-1, 101, 1000} {
		assert.ErrorIs(t, tk.SetProgress(bad, testNow), ErrInvalidInput)
		assert.Equal(t, 40, tk.ProgressPercent)
	}
	require.NoError(t, tk.SetProgress(0, testNow))
	require.NoError(t, tk.SetProgress(100, testNow))
}

func TestAcknowledgeIsSetOnce(t *testing.T) {
	tk := newDraft(t, "medium")
	assert.True(t, tk.Acknowledge(testNow))
	assert.False(t, tk.Acknowledge(testNow.Add(time.Hour)))
	assert.Equal(t, testNow, *tk.AcknowledgedAt)
}

func TestSoftDeleteRestore(t *testing.T) {
	tk := newDraft(t, "medium")
	assert.True(t, tk.SoftDelete(testNow))
	assert.False(t, tk.SoftDelete(testNow))
	assert.True(t, tk.IsDeleted)
	assert.True(t, tk.Restore(testNow))
	assert.Nil(t, tk.DeletedAt)
	assert.False(t, tk.Restore(testNow))
}

func TestSnapshotDereferences(t *testing.T) {
	tk := newDraft(t, "medium")
	snap := tk.Snapshot()
	assert.Nil(t, snap["code"])
	assert.Nil(t, snap["due_at"])
	assert.Equal(t, "draft", snap["status"])

	due := time.Date(2026, 5, 5, 10, 0, 0, 0, time.FixedZone("X", 3600))
	tk.DueAt = &due
	assert.Equal(t, "2026-05-05T09:00:00Z", tk.Snapshot()["due_at"])
}
