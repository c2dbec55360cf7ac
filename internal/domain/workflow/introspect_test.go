package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAvailableTransitions(t *testing.T) {
	engine := newTestEngine(t, reviewDefinition())

	got := engine.GetAvailableTransitions(stateSubmitted, Context{"reviewScore": 85})
	assert.Equal(t, []AvailableTransition{
		{Event: eventApprove, To: stateApproved, Auto: true, ConditionMet: true},
		{Event: eventReject, To: stateRejected, Auto: true, ConditionMet: false},
	}, got)

	manual := engine.GetAvailableTransitions(stateDraft, Context{})
	assert.Len(t, manual, 1)
	assert.True(t, manual[0].ConditionMet)
	assert.False(t, manual[0].Auto)

	assert.Empty(t, engine.GetAvailableTransitions("unknown", Context{}))
	assert.NotNil(t, engine.GetAvailableTransitions("unknown", nil))
}

func TestGetAvailableTransitions_PanickingConditionReportsUnmet(t *testing.T) {
	def := &Definition{
		InitialState: "a",
		States: map[State]*StateDefinition{
			"a": {Transitions: []Transition{{Event: "go", To: "a", Auto: true, AutoCondition: func(Context) bool { panic("x") }}}},
		},
	}
	engine := newTestEngine(t, def)

	var got []AvailableTransition
	assert.NotPanics(t, func() { got = engine.GetAvailableTransitions("a", Context{}) })
	assert.False(t, got[0].ConditionMet)
}

func TestCanTransition(t *testing.T) {
	def := reviewDefinition()
	def.States[stateApproved].Transitions = []Transition{{
		Event: "archive",
		To:    stateApproved,
		Guard: func(ctx context.Context, data Context) (bool, error) { return false, errors.New("offline") },
	}}
	def.States[stateRejected].Transitions = []Transition{{
		Event: "appeal",
		To:    stateSubmitted,
		Guard: func(ctx context.Context, data Context) (bool, error) { panic("guard panic") },
	}}
	engine := newTestEngine(t, def)
	ctx := context.Background()

	tests := []struct {
		name  string
		state State
		event Event
		data  Context
		want  bool
	}{
		{"guard passes", stateDraft, eventSubmit, Context{"documentsComplete": true}, true},
		{"guard refuses", stateDraft, eventSubmit, Context{}, false},
		{"no guard", stateSubmitted, eventApprove, Context{}, true},
		{"unknown event", stateDraft, eventApprove, Context{}, false},
		{"unknown state", "unknown", eventSubmit, Context{}, false},
		{"guard error", stateApproved, "archive", Context{}, false},
		{"guard panic", stateRejected, "appeal", Context{}, false},
		{"nil context", stateDraft, eventSubmit, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.CanTransition(ctx, tt.state, tt.event, tt.data))
		})
	}
}

func TestGetNextStates(t *testing.T) {
	def := reviewDefinition()
	def.States[stateSubmitted].Transitions = append(def.States[stateSubmitted].Transitions,
		Transition{Event: "fast_track", To: stateApproved})
	engine := newTestEngine(t, def)

	assert.Equal(t, []State{stateApproved, stateRejected}, engine.GetNextStates(stateSubmitted))
	assert.Empty(t, engine.GetNextStates(stateApproved))
	assert.Empty(t, engine.GetNextStates("unknown"))
}

func TestIsTerminalState(t *testing.T) {
	def := reviewDefinition()
	def.States[stateRejected].Transitions = []Transition{{Event: "appeal", To: stateSubmitted}}
	def.States[stateRejected].Metadata.IsTerminal = true
	engine := newTestEngine(t, def)

	tests := []struct {
		state State
		want  bool
	}{
		{stateApproved, true},
		{stateRejected, true},
		{stateDraft, false},
		{stateSubmitted, false},
		{"unknown", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.want, engine.IsTerminalState(tt.state))
		})
	}
}

func TestStateQueriesAreStable(t *testing.T) {
	engine := newTestEngine(t, reviewDefinition())

	all := engine.GetAllStates()
	terminal := engine.GetTerminalStates()
	next := engine.GetNextStates(stateSubmitted)

	for i := 0; i < 3; i++ {
		assert.Equal(t, all, engine.GetAllStates())
		assert.Equal(t, terminal, engine.GetTerminalStates())
		assert.Equal(t, next, engine.GetNextStates(stateSubmitted))
	}

	assert.Equal(t, []State{stateApproved, stateDraft, stateRejected, stateSubmitted}, all)
	assert.Equal(t, []State{stateApproved, stateRejected}, terminal)
}

func TestStateMetadata(t *testing.T) {
	def := reviewDefinition()
	def.States[stateSubmitted].Metadata = StateMetadata{Label: "Submitted to NCA", Progress: 60}
	engine := newTestEngine(t, def)

	meta, ok := engine.StateMetadata(stateSubmitted)
	assert.True(t, ok)
	assert.Equal(t, 60, meta.Progress)

	_, ok = engine.StateMetadata("unknown")
	assert.False(t, ok)
}
