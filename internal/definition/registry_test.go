package definition

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitreg/compliance-workflow/internal/domain/workflow"
)

func simpleDefinition(id string) *workflow.Definition {
	return workflow.NewBuilder(id).
		Initial("open").
		Configure("open").Permit("close", "closed", workflow.WithDescription("Close it")).
		Configure("closed").
		MustBuild()
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(WithEngineOptions(workflow.WithMaxAutoTransitions(3)))

	engine, err := r.Register(simpleDefinition("b"))
	require.NoError(t, err)
	assert.Equal(t, 3, engine.MaxAutoTransitions())

	require.NoError(t, r.RegisterAll(simpleDefinition("a")))
	assert.Equal(t, []string{"a", "b"}, r.IDs())

	got, err := r.Engine("a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID())

	def, err := r.Definition("b")
	require.NoError(t, err)
	assert.Equal(t, "b", def.ID)

	_, err = r.Engine("missing")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)

	_, err = r.Register(simpleDefinition("a"))
	assert.ErrorIs(t, err, ErrDuplicateDefinition)

	_, err = r.Register(nil)
	assert.ErrorIs(t, err, workflow.ErrNilDefinition)
}

func TestRegistry_HooksDecorator(t *testing.T) {
	var seen []string
	r := NewRegistry(WithHooksDecorator(func(def *workflow.Definition, hooks workflow.Hooks) workflow.Hooks {
		hooks.AfterTransition = func(ctx context.Context, info workflow.TransitionInfo) error {
			seen = append(seen, def.ID+":"+info.Event.String())
			return nil
		}
		return hooks
	}))

	original := simpleDefinition("doc")
	engine, err := r.Register(original)
	require.NoError(t, err)
	assert.Nil(t, original.Hooks.AfterTransition)

	res := engine.ExecuteTransition(context.Background(), "open", "close", workflow.Context{})
	require.True(t, res.Success)
	assert.Equal(t, []string{"doc:close"}, seen)
}

func TestDescribe(t *testing.T) {
	s := Describe(simpleDefinition("doc"))

	assert.Equal(t, "doc", s.ID)
	assert.Equal(t, "open", s.InitialState)
	assert.Equal(t, []string{"closed"}, s.TerminalStates)
	require.Len(t, s.States, 2)
	assert.Equal(t, "closed", s.States[0].Name)
	assert.Empty(t, s.States[0].Transitions)
	assert.Equal(t, "close", s.States[1].Transitions[0].Event)
	assert.Equal(t, "Close it", s.States[1].Transitions[0].Description)
}

func TestGraph(t *testing.T) {
	def := workflow.NewBuilder("doc").
		Initial("open").
		Configure("open").
		PermitIf("close", "closed", func(ctx context.Context, data workflow.Context) (bool, error) { return true, nil }).
		PermitAuto("expire", "closed", func(data workflow.Context) bool { return false }).
		Configure("closed").
		MustBuild()

	dot := Graph(def)
	assert.True(t, strings.HasPrefix(dot, `digraph "doc" {`))
	assert.Contains(t, dot, `"open" [shape=doublecircle];`)
	assert.Contains(t, dot, `"closed" [shape=box];`)
	assert.Contains(t, dot, `"open" -> "closed" [label="close [guard]"];`)
	assert.Contains(t, dot, `"open" -> "closed" [label="expire", style=dashed];`)
}
