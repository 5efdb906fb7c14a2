package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected transition.
type Kind string

const (
	KindInvalidAction      Kind = "invalid_action"
	KindInvalidSourceState Kind = "invalid_source_state"
	KindGuardFailed        Kind = "guard_failed"
)

// Sentinels matched by TransitionError.Is.
var (
	ErrInvalidAction      = errors.New("workflow: invalid action")
	ErrInvalidSourceState = errors.New("workflow: invalid source state")
	ErrGuardFailed        = errors.New("workflow: guard failed")
)

// TransitionError reports why Apply refused an action.
type TransitionError struct {
	Kind    Kind
	Machine string
	Action  string
	From    string
	Err     error
}

func (e *TransitionError) Error() string {
	switch e.Kind {
	case KindInvalidAction:
		return fmt.Sprintf("%s: unknown action %q", e.Machine, e.Action)
	case KindInvalidSourceState:
		return fmt.Sprintf("%s: action %q not allowed from %q", e.Machine, e.Action, e.From)
	case KindGuardFailed:
		return fmt.Sprintf("%s: action %q blocked from %q: %v", e.Machine, e.Action, e.From, e.Err)
	default:
		return fmt.Sprintf("%s: action %q failed", e.Machine, e.Action)
	}
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

func (e *TransitionError) Is(target error) bool {
	switch target {
	case ErrInvalidAction:
		return e.Kind == KindInvalidAction
	case ErrInvalidSourceState:
		return e.Kind == KindInvalidSourceState
	case ErrGuardFailed:
		return e.Kind == KindGuardFailed
	}
	return false
}
