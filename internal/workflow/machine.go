// Package workflow evaluates finite-state transition tables.
//
// A Machine is plain data: a set of rules keyed by action, each naming the
// states it may fire from, the state it lands in, an optional guard and the
// side effects the caller must apply. The machine never mutates anything; it
// only answers whether an action is legal and what follows from it.
package workflow

import (
	"sort"
)

// Effect names a side effect the owner of the state must apply after a
// successful transition.
type Effect string

const (
	// EffectStartSLA derives the due date from priority if none exists yet.
	EffectStartSLA Effect = "start_sla"
	// EffectIncrementReopen bumps reopen_count and version by one.
	EffectIncrementReopen Effect = "increment_reopen"
	// EffectRecordPostponeReason stores the supplied reason as the postponement reason.
	EffectRecordPostponeReason Effect = "record_postpone_reason"
	// EffectRecordRejectReason stores the supplied reason as the rejection reason.
	EffectRecordRejectReason Effect = "record_reject_reason"
	// EffectClearPostponeReason empties the postponement reason.
	EffectClearPostponeReason Effect = "clear_postpone_reason"
)

// Args carries the optional payload of an action.
type Args struct {
	Reason      string
	ReopenCount int
}

// Guard is a precondition evaluated after the source state matched. A non-nil
// return blocks the transition; the text becomes the GuardFailed detail.
type Guard func(args Args) error

// Rule describes one action.
type Rule[S ~string] struct {
	Sources []S
	Target  S
	Guard   Guard
	Effects []Effect
}

// Result is the outcome of a legal transition.
type Result[S ~string] struct {
	From    S
	To      S
	Effects []Effect
}

// Has reports whether the result carries the effect.
func (r Result[S]) Has(effect Effect) bool {
	for _, e := range r.Effects {
		if e == effect {
			return true
		}
	}
	return false
}

type edge[S ~string, A ~string] struct {
	from   S
	action A
}

// Machine is an immutable transition table.
type Machine[S ~string, A ~string] struct {
	name  string
	rules map[A]Rule[S]
	edges map[edge[S, A]]S
}

// New builds a machine from rules. It panics on an empty source list since
// that is a programming error in a static table.
func New[S ~string, A ~string](name string, rules map[A]Rule[S]) *Machine[S, A] {
	m := &Machine[S, A]{
		name:  name,
		rules: make(map[A]Rule[S], len(rules)),
		edges: make(map[edge[S, A]]S),
	}
	for action, rule := range rules {
		if len(rule.Sources) == 0 {
			panic("workflow: rule " + string(action) + " in " + name + " has no sources")
		}
		m.rules[action] = rule
		for _, src := range rule.Sources {
			m.edges[edge[S, A]{from: src, action: action}] = rule.Target
		}
	}
	return m
}

// Name returns the machine label used in errors.
func (m *Machine[S, A]) Name() string {
	return m.name
}

// Apply validates action from the given state and returns the next state and
// the effects to apply.
func (m *Machine[S, A]) Apply(from S, action A, args Args) (Result[S], error) {
	rule, ok := m.rules[action]
	if !ok {
		return Result[S]{}, &TransitionError{Kind: KindInvalidAction, Machine: m.name, Action: string(action), From: string(from)}
	}
	target, ok := m.edges[edge[S, A]{from: from, action: action}]
	if !ok {
		return Result[S]{}, &TransitionError{Kind: KindInvalidSourceState, Machine: m.name, Action: string(action), From: string(from)}
	}
	if rule.Guard != nil {
		if err := rule.Guard(args); err != nil {
			return Result[S]{}, &TransitionError{Kind: KindGuardFailed, Machine: m.name, Action: string(action), From: string(from), Err: err}
		}
	}
	effects := make([]Effect, len(rule.Effects))
	copy(effects, rule.Effects)
	return Result[S]{From: from, To: target, Effects: effects}, nil
}

// Can reports whether action is legal from the state, ignoring guards.
func (m *Machine[S, A]) Can(from S, action A) bool {
	_, ok := m.edges[edge[S, A]{from: from, action: action}]
	return ok
}

// Target returns the state an action leads to.
func (m *Machine[S, A]) Target(action A) (S, bool) {
	rule, ok := m.rules[action]
	return rule.Target, ok
}

// Sources returns the states an action may fire from.
func (m *Machine[S, A]) Sources(action A) []S {
	rule, ok := m.rules[action]
	if !ok {
		return nil
	}
	out := make([]S, len(rule.Sources))
	copy(out, rule.Sources)
	return out
}

// Actions lists every action in the table, sorted.
func (m *Machine[S, A]) Actions() []A {
	out := make([]A, 0, len(m.rules))
	for action := range m.rules {
		out = append(out, action)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Available lists the actions legal from the state, sorted.
func (m *Machine[S, A]) Available(from S) []A {
	var out []A
	for e := range m.edges {
		if e.from == from {
			out = append(out, e.action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
