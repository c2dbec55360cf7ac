package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/orbitreg/compliance-workflow/internal/application/dispatcher"
	"github.com/orbitreg/compliance-workflow/internal/application/port"
	"github.com/orbitreg/compliance-workflow/internal/domain/entity"
	"github.com/orbitreg/compliance-workflow/internal/domain/event"
)

// Mock implementations

type mockInstanceRepo struct {
	mu        sync.Mutex
	nextID    int64
	instances map[int64]*entity.WorkflowInstance
	updateErr error
}

func newMockInstanceRepo() *mockInstanceRepo {
	return &mockInstanceRepo{instances: make(map[int64]*entity.WorkflowInstance)}
}

func copyInstance(i *entity.WorkflowInstance) *entity.WorkflowInstance {
	cp := *i
	cp.Data = make(map[string]interface{}, len(i.Data))
	for k, v := range i.Data {
		cp.Data[k] = v
	}
	return &cp
}

func (m *mockInstanceRepo) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	instance.ID = m.nextID
	instance.Version = 1
	m.instances[instance.ID] = copyInstance(instance)
	return nil
}

func (m *mockInstanceRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	instance, exists := m.instances[id]
	if !exists {
		return nil, nil
	}
	return copyInstance(instance), nil
}

func (m *mockInstanceRepo) List(ctx context.Context, definitionID string, limit, offset int) ([]*entity.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.WorkflowInstance
	for _, i := range m.instances {
		if definitionID == "" || i.DefinitionID == definitionID {
			out = append(out, copyInstance(i))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	return out, nil
}

func (m *mockInstanceRepo) ListActive(ctx context.Context, definitionID string, terminalStates []string, afterID int64, limit int) ([]*entity.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	terminal := make(map[string]bool)
	for _, s := range terminalStates {
		terminal[s] = true
	}
	var out []*entity.WorkflowInstance
	for _, i := range m.instances {
		if i.DefinitionID == definitionID && i.ID > afterID && !terminal[i.State] {
			out = append(out, copyInstance(i))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockInstanceRepo) UpdateState(ctx context.Context, instance *entity.WorkflowInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, exists := m.instances[instance.ID]
	if !exists || stored.Version != instance.Version {
		return port.ErrVersionConflict
	}
	instance.Version++
	m.instances[instance.ID] = copyInstance(instance)
	return nil
}

func (m *mockInstanceRepo) put(instance *entity.WorkflowInstance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	instance.ID = m.nextID
	instance.Version = 1
	m.instances[instance.ID] = copyInstance(instance)
}

type mockHistoryRepo struct {
	mu        sync.Mutex
	histories []*entity.TransitionHistory
	createErr error
}

func (m *mockHistoryRepo) Create(ctx context.Context, history *entity.TransitionHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	history.ID = int64(len(m.histories) + 1)
	m.histories = append(m.histories, history)
	return nil
}

func (m *mockHistoryRepo) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.TransitionHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*entity.TransitionHistory, 0)
	for _, h := range m.histories {
		if h.InstanceID == instanceID {
			result = append(result, h)
		}
	}
	return result, nil
}

type mockTxManager struct {
	commitErr error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return m.commitErr
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, name string, handler dispatcher.Handler) {}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo {
	return nil
}

func (m *mockDispatcher) Close() error {
	return nil
}

func (m *mockDispatcher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

var errStorage = errors.New("storage unavailable")
