package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/orbitreg/compliance-workflow/internal/application/port"
	"github.com/orbitreg/compliance-workflow/internal/domain/entity"
	"github.com/orbitreg/compliance-workflow/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, history *entity.TransitionHistory) error {
	query := `
		INSERT INTO transition_history (
			instance_id, event_id, from_state, to_state, event,
			actor, auto, success, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		history.InstanceID,
		history.EventID,
		history.FromState,
		history.ToState,
		history.Event,
		history.Actor,
		history.Auto,
		history.Success,
		history.Error,
		history.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create history record",
			zap.Int64("instance_id", history.InstanceID),
			zap.String("event", history.Event),
			zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	history.ID = id
	return nil
}

// GetByInstanceID retrieves all history records for an instance in insertion order
func (r *HistoryRepository) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.TransitionHistory, error) {
	query := `
		SELECT id, instance_id, event_id, from_state, to_state, event,
			actor, auto, success, error, created_at
		FROM transition_history
		WHERE instance_id = ?
		ORDER BY id ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to get history", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	histories := make([]*entity.TransitionHistory, 0)
	for rows.Next() {
		var h entity.TransitionHistory
		err := rows.Scan(
			&h.ID,
			&h.InstanceID,
			&h.EventID,
			&h.FromState,
			&h.ToState,
			&h.Event,
			&h.Actor,
			&h.Auto,
			&h.Success,
			&h.Error,
			&h.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		histories = append(histories, &h)
	}

	return histories, rows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *HistoryRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
