// Package definition loads declarative workflow definitions from YAML and
// keeps the engines built from them.
//
// A definition file looks like:
//
//	id: export_license
//	version: 1
//	initial_state: draft
//	states:
//	  draft:
//	    label: Draft
//	    transitions:
//	      - event: submit
//	        to: submitted
//	        guard: amount > 0 && applicant != nil
//	        set_now: [submitted_at]
//	  submitted:
//	    terminal: true
//
// guard and auto_condition are expr-lang expressions evaluated against the
// instance context.
package definition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/orbitreg/compliance-workflow/internal/domain/workflow"
	"github.com/orbitreg/compliance-workflow/pkg/utils"
)

// File is the YAML document describing one workflow
type File struct {
	ID           string               `yaml:"id"`
	Version      int                  `yaml:"version"`
	InitialState string               `yaml:"initial_state"`
	States       map[string]StateSpec `yaml:"states"`
}

// StateSpec describes one state
type StateSpec struct {
	Label       string           `yaml:"label"`
	Progress    int              `yaml:"progress"`
	Terminal    bool             `yaml:"terminal"`
	OnEnter     *ActionSpec      `yaml:"on_enter"`
	OnExit      *ActionSpec      `yaml:"on_exit"`
	Transitions []TransitionSpec `yaml:"transitions"`
}

// TransitionSpec describes one outgoing transition
type TransitionSpec struct {
	Event         string `yaml:"event"`
	To            string `yaml:"to"`
	Description   string `yaml:"description"`
	Guard         string `yaml:"guard"`
	Auto          bool   `yaml:"auto"`
	AutoCondition string `yaml:"auto_condition"`
	ActionSpec    `yaml:",inline"`
}

// ActionSpec assigns values into the instance context
type ActionSpec struct {
	Set    map[string]any `yaml:"set"`
	SetNow []string       `yaml:"set_now"`
}

func (a *ActionSpec) empty() bool {
	return a == nil || (len(a.Set) == 0 && len(a.SetNow) == 0)
}

// Loader converts definition files into workflow definitions
type Loader struct {
	logger *zap.Logger
	now    func() time.Time
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger used for condition evaluation failures
func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLoaderClock sets the time source used by set_now actions
func WithLoaderClock(now func() time.Time) LoaderOption {
	return func(l *Loader) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLoader creates a definition loader
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Parse decodes and validates a YAML definition
func (l *Loader) Parse(data []byte) (*workflow.Definition, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}
	return l.Build(&file)
}

// LoadFile reads and parses one definition file
func (l *Loader) LoadFile(path string) (*workflow.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	def, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadDir loads every *.yaml and *.yml file in dir, sorted by file name
func (l *Loader) LoadDir(dir string) ([]*workflow.Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	defs := make([]*workflow.Definition, 0, len(names))
	var errs []error
	for _, name := range names {
		def, err := l.LoadFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		l.logger.Info("Loaded workflow definition",
			zap.String("file", name),
			zap.String("workflow", def.ID),
			zap.Int("states", len(def.States)))
		defs = append(defs, def)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return defs, nil
}

// Build converts a decoded file into a validated definition
func (l *Loader) Build(file *File) (*workflow.Definition, error) {
	if err := utils.ValidateIdentifier("workflow id", file.ID); err != nil {
		return nil, err
	}

	def := &workflow.Definition{
		ID:           file.ID,
		Version:      file.Version,
		InitialState: workflow.State(file.InitialState),
		States:       make(map[workflow.State]*workflow.StateDefinition, len(file.States)),
	}

	var errs []error
	for name, spec := range file.States {
		if err := utils.ValidateIdentifier("state", name); err != nil {
			errs = append(errs, err)
			continue
		}

		state, err := l.buildState(name, spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		def.States[workflow.State(name)] = state
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := workflow.Validate(def); err != nil {
		return nil, err
	}
	return def, nil
}

func (l *Loader) buildState(name string, spec StateSpec) (*workflow.StateDefinition, error) {
	state := &workflow.StateDefinition{
		OnEnter: l.action(spec.OnEnter),
		OnExit:  l.action(spec.OnExit),
		Metadata: workflow.StateMetadata{
			IsTerminal: spec.Terminal,
			Label:      spec.Label,
			Progress:   spec.Progress,
		},
	}

	for i, ts := range spec.Transitions {
		if err := utils.ValidateIdentifier("event", ts.Event); err != nil {
			return nil, fmt.Errorf("state %q transition %d: %w", name, i, err)
		}

		t := workflow.Transition{
			Event:        workflow.Event(ts.Event),
			To:           workflow.State(ts.To),
			Description:  ts.Description,
			Auto:         ts.Auto,
			OnTransition: l.action(&ts.ActionSpec),
		}

		if ts.Guard != "" {
			program, err := compile(ts.Guard)
			if err != nil {
				return nil, fmt.Errorf("state %q event %q guard: %w", name, ts.Event, err)
			}
			t.Guard = guardFunc(ts.Guard, program)
		}

		if ts.AutoCondition != "" {
			if !ts.Auto {
				return nil, fmt.Errorf("state %q event %q: auto_condition requires auto: true", name, ts.Event)
			}
			program, err := compile(ts.AutoCondition)
			if err != nil {
				return nil, fmt.Errorf("state %q event %q auto_condition: %w", name, ts.Event, err)
			}
			t.AutoCondition = conditionFunc(ts.AutoCondition, program, l.logger)
		}

		state.Transitions = append(state.Transitions, t)
	}

	return state, nil
}

// action builds the hook for a set/set_now block; nil when there is nothing to do
func (l *Loader) action(spec *ActionSpec) workflow.ActionFunc {
	if spec.empty() {
		return nil
	}

	set := copyValue(spec.Set).(map[string]any)
	stamps := append([]string(nil), spec.SetNow...)

	return func(_ context.Context, data workflow.Context) error {
		for k, v := range set {
			data.Set(k, copyValue(v))
		}
		now := l.now().UTC().Format(time.RFC3339)
		for _, k := range stamps {
			data.Set(k, now)
		}
		return nil
	}
}

// copyValue deep-copies the maps and slices yaml.v3 decodes into, so that
// instances never share a nested literal
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case map[any]any:
		out := make(map[any]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
