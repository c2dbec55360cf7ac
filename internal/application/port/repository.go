package port

import (
	"context"
	"errors"

	"github.com/orbitreg/compliance-workflow/internal/domain/entity"
)

// ErrVersionConflict is returned when an instance changed since it was loaded
var ErrVersionConflict = errors.New("instance version conflict")

// InstanceRepository defines persistence operations for WorkflowInstance.
// GetByID returns (nil, nil) when no instance exists.
type InstanceRepository interface {
	Create(ctx context.Context, instance *entity.WorkflowInstance) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error)
	List(ctx context.Context, definitionID string, limit, offset int) ([]*entity.WorkflowInstance, error)

	// ListActive returns up to limit instances with an id above afterID whose
	// state is not in terminalStates, in ascending id order
	ListActive(ctx context.Context, definitionID string, terminalStates []string, afterID int64, limit int) ([]*entity.WorkflowInstance, error)

	// UpdateState stores the new state and data, and bumps Version. It fails
	// with ErrVersionConflict when the stored version differs from instance.Version.
	UpdateState(ctx context.Context, instance *entity.WorkflowInstance) error
}

// HistoryRepository defines persistence operations for TransitionHistory
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.TransitionHistory) error
	GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.TransitionHistory, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
