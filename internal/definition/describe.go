package definition

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orbitreg/compliance-workflow/internal/domain/workflow"
)

// Summary is the JSON-friendly shape of a registered workflow
type Summary struct {
	ID             string         `json:"id"`
	Version        int            `json:"version"`
	InitialState   string         `json:"initial_state"`
	TerminalStates []string       `json:"terminal_states"`
	States         []StateSummary `json:"states"`
}

// StateSummary describes one state of a Summary
type StateSummary struct {
	Name        string              `json:"name"`
	Label       string              `json:"label,omitempty"`
	Progress    int                 `json:"progress"`
	Terminal    bool                `json:"terminal"`
	Transitions []TransitionSummary `json:"transitions"`
}

// TransitionSummary describes one outgoing transition
type TransitionSummary struct {
	Event       string `json:"event"`
	To          string `json:"to"`
	Description string `json:"description,omitempty"`
	Auto        bool   `json:"auto"`
	Guarded     bool   `json:"guarded"`
}

// Describe summarizes def, states sorted by name and transitions in order
func Describe(def *workflow.Definition) Summary {
	s := Summary{
		ID:             def.ID,
		Version:        def.Version,
		InitialState:   def.InitialState.String(),
		TerminalStates: make([]string, 0),
		States:         make([]StateSummary, 0, len(def.States)),
	}

	for _, name := range stateNames(def) {
		sd := def.States[name]
		terminal := sd.Metadata.IsTerminal || len(sd.Transitions) == 0
		if terminal {
			s.TerminalStates = append(s.TerminalStates, name.String())
		}

		ss := StateSummary{
			Name:        name.String(),
			Label:       sd.Metadata.Label,
			Progress:    sd.Metadata.Progress,
			Terminal:    terminal,
			Transitions: make([]TransitionSummary, 0, len(sd.Transitions)),
		}
		for _, t := range sd.Transitions {
			ss.Transitions = append(ss.Transitions, TransitionSummary{
				Event:       t.Event.String(),
				To:          t.To.String(),
				Description: t.Description,
				Auto:        t.Auto,
				Guarded:     t.Guard != nil,
			})
		}
		s.States = append(s.States, ss)
	}

	return s
}

// Graph renders def in Graphviz DOT. Automatic transitions are dashed,
// guarded ones carry a [guard] suffix.
func Graph(def *workflow.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", def.ID)
	b.WriteString("  rankdir=LR;\n")
	fmt.Fprintf(&b, "  %q [shape=doublecircle];\n", def.InitialState)

	for _, name := range stateNames(def) {
		sd := def.States[name]
		if name != def.InitialState && (sd.Metadata.IsTerminal || len(sd.Transitions) == 0) {
			fmt.Fprintf(&b, "  %q [shape=box];\n", name)
		}
	}

	for _, name := range stateNames(def) {
		for _, t := range def.States[name].Transitions {
			label := t.Event.String()
			if t.Guard != nil {
				label += " [guard]"
			}
			attrs := fmt.Sprintf("label=%q", label)
			if t.Auto {
				attrs += ", style=dashed"
			}
			fmt.Fprintf(&b, "  %q -> %q [%s];\n", name, t.To, attrs)
		}
	}

	b.WriteString("}\n")
	return b.String()
}

func stateNames(def *workflow.Definition) []workflow.State {
	names := make([]workflow.State, 0, len(def.States))
	for name := range def.States {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
