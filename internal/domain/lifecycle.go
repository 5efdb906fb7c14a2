package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/helpdesk-hub/ticket-service/internal/workflow"
)

// MaxReopens bounds reopen_count on tickets and sub-tickets.
const MaxReopens = 3

// ErrInvalidInput marks field-level validation failures.
var ErrInvalidInput = errors.New("invalid input")

// ErrReopenLimit is the guard failure returned once reopen_count reached MaxReopens.
var ErrReopenLimit = fmt.Errorf("maximum reopen limit of %d reached", MaxReopens)

// FieldError describes a rejected field value.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalidField(field, message string) error {
	return &FieldError{Field: field, Message: message}
}

// DueDateCalculator derives deadlines from priority.
type DueDateCalculator interface {
	DueAt(priority string, now time.Time) time.Time
}

// TransitionEnv supplies what derived-field effects need. NextCode is only
// called when a code has to be allocated.
type TransitionEnv struct {
	Now      time.Time
	SLA      DueDateCalculator
	NextCode func() (string, error)
}

func reopenGuard(args workflow.Args) error {
	if args.ReopenCount >= MaxReopens {
		return ErrReopenLimit
	}
	return nil
}

var nonTerminalTicketStates = []TicketStatus{
	TicketStatusDraft,
	TicketStatusSubmitted,
	TicketStatusPending,
	TicketStatusUnderReview,
	TicketStatusAssigned,
	TicketStatusInProgress,
	TicketStatusWaitingApproval,
	TicketStatusApproved,
	TicketStatusResolved,
	TicketStatusReopened,
	TicketStatusPostponed,
}

// TicketMachine is the ticket transition table.
var TicketMachine = workflow.New("ticket", map[TicketAction]workflow.Rule[TicketStatus]{
	ActionSubmit: {
		Sources: []TicketStatus{TicketStatusDraft},
		Target:  TicketStatusSubmitted,
	},
	ActionReview: {
		Sources: []TicketStatus{TicketStatusSubmitted, TicketStatusPending},
		Target:  TicketStatusUnderReview,
	},
	ActionAssign: {
		Sources: []TicketStatus{TicketStatusUnderReview},
		Target:  TicketStatusAssigned,
		Effects: []workflow.Effect{workflow.EffectStartSLA},
	},
	ActionStartProgress: {
		Sources: []TicketStatus{TicketStatusAssigned},
		Target:  TicketStatusInProgress,
	},
	ActionResolve: {
		Sources: []TicketStatus{TicketStatusInProgress},
		Target:  TicketStatusResolved,
	},
	ActionClose: {
		Sources: []TicketStatus{TicketStatusResolved},
		Target:  TicketStatusClosed,
	},
	ActionReopen: {
		Sources: []TicketStatus{TicketStatusClosed, TicketStatusResolved},
		Target:  TicketStatusReopened,
		Guard:   reopenGuard,
		Effects: []workflow.Effect{workflow.EffectIncrementReopen},
	},
	ActionPostpone: {
		Sources: []TicketStatus{TicketStatusAssigned, TicketStatusInProgress},
		Target:  TicketStatusPostponed,
		Effects: []workflow.Effect{workflow.EffectRecordPostponeReason},
	},
	ActionReject: {
		Sources: nonTerminalTicketStates,
		Target:  TicketStatusRejected,
		Effects: []workflow.Effect{workflow.EffectRecordRejectReason},
	},
	ActionResume: {
		Sources: []TicketStatus{TicketStatusPostponed, TicketStatusReopened},
		Target:  TicketStatusInProgress,
		Effects: []workflow.Effect{workflow.EffectClearPostponeReason},
	},
})

// SubTicketMachine is the sub-ticket transition table.
var SubTicketMachine = workflow.New("sub_ticket", map[SubTicketAction]workflow.Rule[TicketStatus]{
	SubActionStartProgress: {
		Sources: []TicketStatus{TicketStatusAssigned},
		Target:  TicketStatusInProgress,
	},
	SubActionMarkResolved: {
		Sources: []TicketStatus{TicketStatusInProgress},
		Target:  TicketStatusResolved,
	},
	SubActionClose: {
		Sources: []TicketStatus{TicketStatusResolved},
		Target:  TicketStatusClosed,
	},
	SubActionReopen: {
		Sources: []TicketStatus{TicketStatusResolved, TicketStatusClosed},
		Target:  TicketStatusReopened,
		Guard:   reopenGuard,
		Effects: []workflow.Effect{workflow.EffectIncrementReopen},
	},
	SubActionResume: {
		Sources: []TicketStatus{TicketStatusReopened},
		Target:  TicketStatusInProgress,
	},
})

// ApprovalMachine is the approval transition table. Decisions are final.
var ApprovalMachine = workflow.New("approval", map[ApprovalAction]workflow.Rule[ApprovalStatus]{
	ApprovalActionApprove: {
		Sources: []ApprovalStatus{ApprovalStatusPending},
		Target:  ApprovalStatusApproved,
	},
	ApprovalActionReject: {
		Sources: []ApprovalStatus{ApprovalStatusPending},
		Target:  ApprovalStatusRejected,
	},
})

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func derefString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
