package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/orbitreg/compliance-workflow/internal/application/port"
	"github.com/orbitreg/compliance-workflow/internal/domain/entity"
	"github.com/orbitreg/compliance-workflow/internal/infrastructure/persistence/sqlite"
)

const instanceColumns = `id, definition_id, state, data, version, created_at, updated_at`

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewInstanceRepository creates a new workflow instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstanceRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new instance and fills in ID, Version and timestamps
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	data, err := instance.MarshalData()
	if err != nil {
		return err
	}

	now := r.now()
	query := `
		INSERT INTO workflow_instances (definition_id, state, data, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		instance.DefinitionID,
		instance.State,
		data,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create instance",
			zap.String("definition_id", instance.DefinitionID),
			zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	instance.ID = id
	instance.Version = 1
	instance.CreatedAt = now
	instance.UpdatedAt = now
	return nil
}

// GetByID retrieves an instance by its ID
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ?`

	instance, err := scanInstance(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return instance, nil
}

// List retrieves instances with pagination, newest first. An empty
// definitionID lists every definition.
func (r *InstanceRepository) List(ctx context.Context, definitionID string, limit, offset int) ([]*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances`
	var args []interface{}
	if definitionID != "" {
		query += ` WHERE definition_id = ?`
		args = append(args, definitionID)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	return scanInstances(rows)
}

// ListActive returns the next page of non-terminal instances of
// definitionID after the id cursor afterID
func (r *InstanceRepository) ListActive(ctx context.Context, definitionID string, terminalStates []string, afterID int64, limit int) ([]*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE definition_id = ? AND id > ?`
	args := []interface{}{definitionID, afterID}

	if len(terminalStates) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(terminalStates)), ",")
		query += ` AND state NOT IN (` + placeholders + `)`
		for _, s := range terminalStates {
			args = append(args, s)
		}
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list active instances",
			zap.String("definition_id", definitionID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list active instances: %w", err)
	}
	defer rows.Close()

	return scanInstances(rows)
}

// UpdateState persists State and Data using optimistic locking on Version
func (r *InstanceRepository) UpdateState(ctx context.Context, instance *entity.WorkflowInstance) error {
	data, err := instance.MarshalData()
	if err != nil {
		return err
	}

	now := r.now()
	query := `
		UPDATE workflow_instances
		SET state = ?, data = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		instance.State,
		data,
		now,
		instance.ID,
		instance.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update instance state",
			zap.Int64("id", instance.ID),
			zap.String("state", instance.State),
			zap.Error(err))
		return fmt.Errorf("failed to update instance state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("instance %d at version %d: %w", instance.ID, instance.Version, port.ErrVersionConflict)
	}

	instance.Version++
	instance.UpdatedAt = now
	return nil
}

// getExecutor returns appropriate executor based on context
func (r *InstanceRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*entity.WorkflowInstance, error) {
	var instance entity.WorkflowInstance
	var data string

	err := row.Scan(
		&instance.ID,
		&instance.DefinitionID,
		&instance.State,
		&data,
		&instance.Version,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := instance.UnmarshalData(data); err != nil {
		return nil, err
	}
	return &instance, nil
}

func scanInstances(rows *sql.Rows) ([]*entity.WorkflowInstance, error) {
	instances := make([]*entity.WorkflowInstance, 0)
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}
	return instances, rows.Err()
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
