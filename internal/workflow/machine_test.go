package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lightState string
type lightAction string

const (
	red    lightState = "red"
	green  lightState = "green"
	yellow lightState = "yellow"
)

var errTooMany = errors.New("too many")

func testMachine() *Machine[lightState, lightAction] {
	return New("light", map[lightAction]Rule[lightState]{
		"go":   {Sources: []lightState{red}, Target: green},
		"slow": {Sources: []lightState{green}, Target: yellow, Effects: []Effect{EffectRecordPostponeReason}},
		"stop": {Sources: []lightState{yellow, green}, Target: red, Guard: func(a Args) error {
			if a.ReopenCount >= 2 {
				return errTooMany
			}
			return nil
		}},
	})
}

func TestMachineApply(t *testing.T) {
	m := testMachine()

	res, err := m.Apply(red, "go", Args{})
	require.NoError(t, err)
	assert.Equal(t, red, res.From)
	assert.Equal(t, green, res.To)
	assert.Empty(t, res.Effects)

	res, err = m.Apply(green, "slow", Args{Reason: "traffic"})
	require.NoError(t, err)
	assert.Equal(t, yellow, res.To)
	assert.True(t, res.Has(EffectRecordPostponeReason))
	assert.False(t, res.Has(EffectIncrementReopen))
}

func TestMachineErrors(t *testing.T) {
	m := testMachine()

	cases := []struct {
		name   string
		from   lightState
		action lightAction
		args   Args
		want   error
		kind   Kind
	}{
		{"unknown action", red, "fly", Args{}, ErrInvalidAction, KindInvalidAction},
		{"wrong source", red, "slow", Args{}, ErrInvalidSourceState, KindInvalidSourceState},
		{"guard", yellow, "stop", Args{ReopenCount: 2}, ErrGuardFailed, KindGuardFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Apply(tc.from, tc.action, tc.args)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			var te *TransitionError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tc.kind, te.Kind)
			assert.Equal(t, "light", te.Machine)
		})
	}

	_, err := m.Apply(yellow, "stop", Args{ReopenCount: 5})
	assert.ErrorIs(t, err, errTooMany)
}

func TestMachineIntrospection(t *testing.T) {
	m := testMachine()

	assert.Equal(t, []lightAction{"go", "slow", "stop"}, m.Actions())
	assert.Equal(t, []lightAction{"slow", "stop"}, m.Available(green))
	assert.Empty(t, m.Available("blue"))
	assert.True(t, m.Can(yellow, "stop"))
	assert.False(t, m.Can(red, "stop"))

	target, ok := m.Target("stop")
	assert.True(t, ok)
	assert.Equal(t, red, target)
	_, ok = m.Target("fly")
	assert.False(t, ok)

	sources := m.Sources("stop")
	assert.ElementsMatch(t, []lightState{yellow, green}, sources)
	sources[0] = "mutated"
	assert.ElementsMatch(t, []lightState{yellow, green}, m.Sources("stop"))
}

func TestNewPanicsOnEmptySources(t *testing.T) {
	assert.Panics(t, func() {
		New("broken", map[lightAction]Rule[lightState]{"go": {Target: green}})
	})
}
