// Package workflow coordinates workflow engines with persistence and event
// fan-out. It owns the caller-side duties the engine leaves out: serializing
// work per instance, storing state and context atomically, recording history
// and publishing events after commit.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orbitreg/compliance-workflow/internal/application/dispatcher"
	"github.com/orbitreg/compliance-workflow/internal/application/port"
	"github.com/orbitreg/compliance-workflow/internal/definition"
	"github.com/orbitreg/compliance-workflow/internal/domain/entity"
	"github.com/orbitreg/compliance-workflow/internal/domain/event"
	domainwf "github.com/orbitreg/compliance-workflow/internal/domain/workflow"
)

// ErrInstanceNotFound is returned when no instance has the requested id
var ErrInstanceNotFound = errors.New("workflow instance not found")

// Service drives workflow instances through their definitions
type Service interface {
	// Create starts an instance in the definition's initial state and, when
	// the engine auto-evaluates, applies any automatic transitions.
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)

	// Get returns an instance with its state metadata
	Get(ctx context.Context, id int64) (*InstanceView, error)

	// List returns instances newest first; definitionID may be empty
	List(ctx context.Context, definitionID string, limit, offset int) ([]*InstanceView, error)

	// Fire executes event on an instance. A failed transition returns the
	// result together with an error wrapping the engine's sentinel.
	Fire(ctx context.Context, id int64, evt domainwf.Event, req FireRequest) (*FireResult, error)

	// Evaluate runs the automatic-transition loop for one instance
	Evaluate(ctx context.Context, id int64, actor string) (*EvaluateResult, error)

	// EvaluateActive evaluates non-terminal instances of every definition
	EvaluateActive(ctx context.Context, opts SweepOptions) (*SweepResult, error)

	// Available lists the transitions of the instance's current state
	Available(ctx context.Context, id int64) ([]AvailableAction, error)

	// History returns every recorded transition attempt of an instance
	History(ctx context.Context, id int64) ([]*entity.TransitionHistory, error)

	// Definitions summarizes the registered workflows
	Definitions() []definition.Summary

	// Definition summarizes one registered workflow
	Definition(id string) (*definition.Summary, error)
}

// CreateRequest holds the input of Service.Create
type CreateRequest struct {
	DefinitionID string                 `json:"definition_id"`
	Data         map[string]interface{} `json:"data"`
	Actor        string                 `json:"actor"`
}

// FireRequest holds the input of Service.Fire. Data is merged into the
// instance context before the transition runs.
type FireRequest struct {
	Data  map[string]interface{} `json:"data"`
	Actor string                 `json:"actor"`
}

// InstanceView is an instance decorated with its current state's metadata
type InstanceView struct {
	*entity.WorkflowInstance
	Label    string `json:"label,omitempty"`
	Progress int    `json:"progress"`
	Terminal bool   `json:"terminal"`
}

// CreateResult is returned by Service.Create
type CreateResult struct {
	Instance   *InstanceView              `json:"instance"`
	Evaluation *domainwf.EvaluationResult `json:"evaluation,omitempty"`
}

// FireResult is returned by Service.Fire. Evaluation is nil unless the
// transition succeeded and the engine auto-evaluates.
type FireResult struct {
	Instance   *InstanceView              `json:"instance"`
	Transition domainwf.TransitionResult  `json:"transition"`
	Evaluation *domainwf.EvaluationResult `json:"evaluation,omitempty"`
}

// EvaluateResult is returned by Service.Evaluate
type EvaluateResult struct {
	Instance   *InstanceView             `json:"instance"`
	Evaluation domainwf.EvaluationResult `json:"evaluation"`
}

// AvailableAction is a transition of the current state plus whether its
// guard currently allows it
type AvailableAction struct {
	domainwf.AvailableTransition
	Allowed bool `json:"allowed"`
}

// serviceImpl is the concrete implementation of Service
type serviceImpl struct {
	registry   *definition.Registry
	instances  port.InstanceRepository
	history    port.HistoryRepository
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     *zap.Logger
	locks      *keyedMutex
}

// Option configures the service
type Option func(*serviceImpl)

// WithDispatcher sets the dispatcher that receives workflow events
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(s *serviceImpl) {
		s.dispatcher = d
	}
}

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *serviceImpl) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a workflow service
func NewService(
	registry *definition.Registry,
	instances port.InstanceRepository,
	history port.HistoryRepository,
	txManager port.TransactionManager,
	opts ...Option,
) Service {
	s := &serviceImpl{
		registry:  registry,
		instances: instances,
		history:   history,
		txManager: txManager,
		logger:    zap.NewNop(),
		locks:     newKeyedMutex(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Create starts a new instance
func (s *serviceImpl) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	engine, err := s.registry.Engine(req.DefinitionID)
	if err != nil {
		return nil, err
	}

	actor := actorOrDefault(req.Actor)
	instance := &entity.WorkflowInstance{
		DefinitionID: engine.ID(),
		State:        engine.InitialState().String(),
		Data:         domainwf.Context(req.Data).Clone(),
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.instances.Create(txCtx, instance)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	changes := newChangeSet(actor)
	changes.events = append(changes.events, event.NewEventWithCorrelation(
		event.TypeInstanceCreated, instance.ID, instance.DefinitionID,
		map[string]interface{}{
			event.KeyToState: instance.State,
			event.KeyActor:   actor,
		},
		changes.correlationID,
	))

	s.logger.Info("Workflow instance created",
		zap.Int64("instance_id", instance.ID),
		zap.String("definition_id", instance.DefinitionID),
		zap.String("state", instance.State))

	result := &CreateResult{}
	if engine.AutoEvaluate() {
		unlock := s.locks.Lock(instance.ID)
		defer unlock()

		data := domainwf.Context(instance.Data).Clone()
		eval := engine.EvaluateTransitions(ctx, domainwf.State(instance.State), data)
		changes.evaluation(instance, eval)

		switch {
		case !eval.Transitioned:
			if s.persistHistory(ctx, instance, changes) != nil {
				changes.events = changes.events[:1]
			}
			result.Evaluation = &eval
		case s.persist(ctx, instance, eval.FinalState, data, changes) == nil:
			result.Evaluation = &eval
		default:
			// The instance exists in its initial state; the next sweep retries.
			changes.events = changes.events[:1]
		}
	}

	s.dispatch(ctx, changes.events)
	result.Instance = s.view(engine, instance)
	return result, nil
}

// Get returns one instance
func (s *serviceImpl) Get(ctx context.Context, id int64) (*InstanceView, error) {
	instance, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	engine, _ := s.registry.Engine(instance.DefinitionID)
	return s.view(engine, instance), nil
}

// List returns a page of instances
func (s *serviceImpl) List(ctx context.Context, definitionID string, limit, offset int) ([]*InstanceView, error) {
	instances, err := s.instances.List(ctx, definitionID, limit, offset)
	if err != nil {
		return nil, err
	}

	views := make([]*InstanceView, 0, len(instances))
	for _, instance := range instances {
		engine, _ := s.registry.Engine(instance.DefinitionID)
		views = append(views, s.view(engine, instance))
	}
	return views, nil
}

// Fire executes a manual transition
func (s *serviceImpl) Fire(ctx context.Context, id int64, evt domainwf.Event, req FireRequest) (*FireResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	instance, engine, err := s.loadWithEngine(ctx, id)
	if err != nil {
		return nil, err
	}

	data := domainwf.Context(instance.Data).Clone()
	for k, v := range req.Data {
		data.Set(k, v)
	}

	changes := newChangeSet(actorOrDefault(req.Actor))
	res := engine.ExecuteTransition(ctx, domainwf.State(instance.State), evt, data)
	changes.transition(instance, res, false)

	if !res.Success {
		s.logger.Warn("Transition failed",
			zap.Int64("instance_id", id),
			zap.String("state", instance.State),
			zap.String("event", evt.String()),
			zap.String("kind", domainwf.ErrorKind(res.Err)),
			zap.Error(res.Err))

		if err := s.persistHistory(ctx, instance, changes); err != nil {
			return nil, err
		}
		s.dispatch(ctx, changes.events)

		return &FireResult{Instance: s.view(engine, instance), Transition: res},
			fmt.Errorf("fire %q on instance %d: %w", evt, id, res.Err)
	}

	result := &FireResult{Transition: res}
	final := res.CurrentState
	if engine.AutoEvaluate() {
		eval := engine.EvaluateTransitions(ctx, final, data)
		changes.evaluation(instance, eval)
		final = eval.FinalState
		result.Evaluation = &eval
	}

	if err := s.persist(ctx, instance, final, data, changes); err != nil {
		return nil, err
	}

	s.dispatch(ctx, changes.events)
	result.Instance = s.view(engine, instance)
	return result, nil
}

// Evaluate runs automatic transitions for one instance
func (s *serviceImpl) Evaluate(ctx context.Context, id int64, actor string) (*EvaluateResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	instance, engine, err := s.loadWithEngine(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := newChangeSet(actorOrDefault(actor))
	data := domainwf.Context(instance.Data).Clone()
	eval := engine.EvaluateTransitions(ctx, domainwf.State(instance.State), data)
	changes.evaluation(instance, eval)

	if eval.Transitioned {
		if err := s.persist(ctx, instance, eval.FinalState, data, changes); err != nil {
			return nil, err
		}
	} else if err := s.persistHistory(ctx, instance, changes); err != nil {
		return nil, err
	}

	s.dispatch(ctx, changes.events)
	return &EvaluateResult{Instance: s.view(engine, instance), Evaluation: eval}, nil
}

// Available lists the current state's transitions
func (s *serviceImpl) Available(ctx context.Context, id int64) ([]AvailableAction, error) {
	instance, engine, err := s.loadWithEngine(ctx, id)
	if err != nil {
		return nil, err
	}

	state := domainwf.State(instance.State)
	data := domainwf.Context(instance.Data)
	transitions := engine.GetAvailableTransitions(state, data.Clone())

	actions := make([]AvailableAction, 0, len(transitions))
	for _, t := range transitions {
		actions = append(actions, AvailableAction{
			AvailableTransition: t,
			Allowed:             engine.CanTransition(ctx, state, t.Event, data.Clone()),
		})
	}
	return actions, nil
}

// History returns the instance's recorded transition attempts
func (s *serviceImpl) History(ctx context.Context, id int64) ([]*entity.TransitionHistory, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.history.GetByInstanceID(ctx, id)
}

// Definitions summarizes every registered workflow
func (s *serviceImpl) Definitions() []definition.Summary {
	ids := s.registry.IDs()
	out := make([]definition.Summary, 0, len(ids))
	for _, id := range ids {
		if def, err := s.registry.Definition(id); err == nil {
			out = append(out, definition.Describe(def))
		}
	}
	return out
}

// Definition summarizes one workflow
func (s *serviceImpl) Definition(id string) (*definition.Summary, error) {
	def, err := s.registry.Definition(id)
	if err != nil {
		return nil, err
	}
	summary := definition.Describe(def)
	return &summary, nil
}

func (s *serviceImpl) load(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	instance, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instance: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: %d", ErrInstanceNotFound, id)
	}
	return instance, nil
}

func (s *serviceImpl) loadWithEngine(ctx context.Context, id int64) (*entity.WorkflowInstance, *domainwf.Engine, error) {
	instance, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	engine, err := s.registry.Engine(instance.DefinitionID)
	if err != nil {
		return nil, nil, err
	}
	return instance, engine, nil
}

// persist stores the new state and context together with the history rows.
// The instance is only updated in memory after the transaction commits.
func (s *serviceImpl) persist(ctx context.Context, instance *entity.WorkflowInstance, state domainwf.State, data domainwf.Context, changes *changeSet) error {
	updated := *instance
	updated.State = state.String()
	updated.Data = data

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.instances.UpdateState(txCtx, &updated); err != nil {
			return fmt.Errorf("failed to update instance state: %w", err)
		}
		return s.recordHistory(txCtx, changes.history)
	})
	if err != nil {
		s.logger.Error("Failed to persist workflow changes",
			zap.Int64("instance_id", instance.ID),
			zap.String("state", state.String()),
			zap.Error(err))
		return err
	}

	*instance = updated
	return nil
}

// persistHistory stores the history rows of attempts that left the instance
// state unchanged. It is a no-op when nothing was attempted.
func (s *serviceImpl) persistHistory(ctx context.Context, instance *entity.WorkflowInstance, changes *changeSet) error {
	if len(changes.history) == 0 {
		return nil
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.recordHistory(txCtx, changes.history)
	})
	if err != nil {
		s.logger.Error("Failed to record transition history",
			zap.Int64("instance_id", instance.ID),
			zap.Int("rows", len(changes.history)),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *serviceImpl) recordHistory(ctx context.Context, rows []*entity.TransitionHistory) error {
	for _, row := range rows {
		if err := s.history.Create(ctx, row); err != nil {
			return fmt.Errorf("failed to create history record: %w", err)
		}
	}
	return nil
}

// dispatch publishes events after commit. Handlers outlive the request.
func (s *serviceImpl) dispatch(ctx context.Context, events []*event.Event) {
	if s.dispatcher == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	for _, evt := range events {
		s.dispatcher.DispatchAsync(detached, evt)
	}
}

func (s *serviceImpl) view(engine *domainwf.Engine, instance *entity.WorkflowInstance) *InstanceView {
	v := &InstanceView{WorkflowInstance: instance}
	if engine == nil {
		return v
	}

	state := domainwf.State(instance.State)
	v.Terminal = engine.IsTerminalState(state)
	if meta, ok := engine.StateMetadata(state); ok {
		v.Label = meta.Label
		v.Progress = meta.Progress
	}
	if v.Terminal {
		v.Progress = 100
	}
	return v
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return entity.ActorSystem
	}
	return actor
}

// changeSet collects the history rows and events produced by one service
// call. All of them share a correlation id.
type changeSet struct {
	correlationID string
	actor         string
	events        []*event.Event
	history       []*entity.TransitionHistory
}

func newChangeSet(actor string) *changeSet {
	return &changeSet{correlationID: uuid.NewString(), actor: actor}
}

func (c *changeSet) transition(instance *entity.WorkflowInstance, res domainwf.TransitionResult, auto bool) {
	payload := map[string]interface{}{
		event.KeyFromState: res.PreviousState.String(),
		event.KeyEvent:     res.TransitionEvent.String(),
		event.KeyActor:     c.actor,
		event.KeyAuto:      auto,
	}

	typ := event.TypeTransitionSucceeded
	toState := ""
	if res.Success {
		toState = res.CurrentState.String()
		payload[event.KeyToState] = toState
	} else {
		typ = event.TypeTransitionFailed
		payload[event.KeyError] = res.Error
		payload[event.KeyErrorKind] = domainwf.ErrorKind(res.Err)
	}

	evt := event.NewEventWithCorrelation(typ, instance.ID, instance.DefinitionID, payload, c.correlationID)
	c.events = append(c.events, evt)
	c.history = append(c.history, &entity.TransitionHistory{
		InstanceID: instance.ID,
		EventID:    evt.ID,
		FromState:  res.PreviousState.String(),
		ToState:    toState,
		Event:      res.TransitionEvent.String(),
		Actor:      c.actor,
		Auto:       auto,
		Success:    res.Success,
		Error:      res.Error,
		Timestamp:  res.Timestamp,
	})
}

func (c *changeSet) evaluation(instance *entity.WorkflowInstance, eval domainwf.EvaluationResult) {
	from := instance.State
	for _, res := range eval.Attempts {
		c.transition(instance, res, true)
	}

	payload := map[string]interface{}{
		event.KeyFromState: from,
		event.KeyToState:   eval.FinalState.String(),
		event.KeyActor:     c.actor,
		event.KeyCount:     len(eval.Transitions),
	}
	if len(eval.Errors) > 0 {
		payload[event.KeyError] = strings.Join(eval.Errors, "; ")
	}
	c.events = append(c.events, event.NewEventWithCorrelation(
		event.TypeAutoEvaluated, instance.ID, instance.DefinitionID, payload, c.correlationID))
}
