package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-hub/ticket-service/internal/workflow"
)

func TestSubTicketLifecycle(t *testing.T) {
	st, err := NewSubTicket(NewSubTicketParams{
		ID:             "s-1",
		ParentTicketID: "t-1",
		Title:          "Replace toner",
		DepartmentID:   "dept-it",
	}, testNow)
	require.NoError(t, err)
	assert.Equal(t, TicketStatusAssigned, st.Status)
	assert.Equal(t, 1, st.Version)

	require.NoError(t, st.StartProgress(testNow))
	require.NoError(t, st.MarkResolved(testNow))
	require.NoError(t, st.Close(testNow))

	for i := 0; i < MaxReopens; i++ {
		require.NoError(t, st.Reopen(testNow))
		require.NoError(t, st.Resume(testNow))
		require.NoError(t, st.MarkResolved(testNow))
	}
	assert.Equal(t, MaxReopens, st.ReopenCount)
	assert.Equal(t, 1+MaxReopens, st.Version)

	err = st.Reopen(testNow)
	assert.ErrorIs(t, err, workflow.ErrGuardFailed)
	assert.Equal(t, TicketStatusResolved, st.Status)
	assert.Equal(t, 1+MaxReopens, st.Version)
}

func TestSubTicketValidation(t *testing.T) {
	_, err := NewSubTicket(NewSubTicketParams{ParentTicketID: "t-1", Title: "x"}, testNow)
	assert.ErrorIs(t, err, ErrInvalidInput)

	st, err := NewSubTicket(NewSubTicketParams{ParentTicketID: "t-1", Title: "x", DepartmentID: "d"}, testNow)
	require.NoError(t, err)

	assert.ErrorIs(t, st.MarkResolved(testNow), workflow.ErrInvalidSourceState)
	assert.ErrorIs(t, st.SetProgress(101, testNow), ErrInvalidInput)
	assert.Zero(t, st.ProgressPercent)

	dept := "d-2"
	require.NoError(t, st.Assign("agent-1", &dept, testNow))
	assert.Equal(t, "d-2", st.DepartmentID)
	assert.Equal(t, "agent-1", *st.AssigneeID)

	st.Status = TicketStatusClosed
	assert.ErrorIs(t, st.Assign("agent-2", nil, testNow), workflow.ErrInvalidSourceState)
}

func TestApprovalDecisionsAreFinal(t *testing.T) {
	a, err := NewApproval("a-1", "t-1", "ceo", "budget", nil, testNow)
	require.NoError(t, err)
	assert.Equal(t, ApprovalStatusPending, a.Status)
	assert.NotNil(t, a.Documents)

	require.NoError(t, a.Decide(ApprovalActionApprove, "", testNow))
	assert.Equal(t, ApprovalStatusApproved, a.Status)
	assert.Equal(t, "budget", a.Reason)

	assert.ErrorIs(t, a.Decide(ApprovalActionReject, "changed my mind", testNow), workflow.ErrInvalidSourceState)
	assert.Equal(t, ApprovalStatusApproved, a.Status)

	assert.ErrorIs(t, a.Decide("escalate", "", testNow), workflow.ErrInvalidAction)

	_, err = NewApproval("a-2", "", "ceo", "", nil, testNow)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
