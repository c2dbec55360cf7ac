package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orbitreg/compliance-workflow/internal/application/port"
	"github.com/orbitreg/compliance-workflow/internal/domain/entity"
	"github.com/orbitreg/compliance-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/orbitreg/compliance-workflow/pkg/database"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "workflow.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, zap.NewNop()).RunMigrations(database.Schema))
	return db.DB
}

func newInstance(definitionID, state string) *entity.WorkflowInstance {
	return &entity.WorkflowInstance{
		DefinitionID: definitionID,
		State:        state,
		Data:         map[string]interface{}{"title": "Cloud hosting", "documents_complete": false},
	}
}

func TestInstanceRepository_CreateAndGet(t *testing.T) {
	db := setupDB(t)
	repo := NewInstanceRepository(db, zap.NewNop())
	ctx := context.Background()

	instance := newInstance("authorization", "draft")
	require.NoError(t, repo.Create(ctx, instance))
	assert.NotZero(t, instance.ID)
	assert.Equal(t, int64(1), instance.Version)
	assert.False(t, instance.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, instance.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "authorization", got.DefinitionID)
	assert.Equal(t, "draft", got.State)
	assert.Equal(t, "Cloud hosting", got.Data["title"])
	assert.Equal(t, false, got.Data["documents_complete"])
	assert.WithinDuration(t, instance.CreatedAt, got.CreatedAt, time.Second)
}

func TestInstanceRepository_GetByIDMissing(t *testing.T) {
	repo := NewInstanceRepository(setupDB(t), nil)

	got, err := repo.GetByID(context.Background(), 42)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestInstanceRepository_UpdateState(t *testing.T) {
	db := setupDB(t)
	repo := NewInstanceRepository(db, zap.NewNop())
	ctx := context.Background()

	instance := newInstance("authorization", "draft")
	require.NoError(t, repo.Create(ctx, instance))

	stale := *instance

	instance.State = "documents_pending"
	instance.Data["documents_complete"] = true
	require.NoError(t, repo.UpdateState(ctx, instance))
	assert.Equal(t, int64(2), instance.Version)

	got, err := repo.GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "documents_pending", got.State)
	assert.Equal(t, true, got.Data["documents_complete"])
	assert.Equal(t, int64(2), got.Version)

	stale.State = "withdrawn"
	err = repo.UpdateState(ctx, &stale)
	assert.ErrorIs(t, err, port.ErrVersionConflict)
}

func TestInstanceRepository_ListAndListActive(t *testing.T) {
	db := setupDB(t)
	repo := NewInstanceRepository(db, zap.NewNop())
	ctx := context.Background()

	for _, s := range []struct{ def, state string }{
		{"authorization", "draft"},
		{"authorization", "approved"},
		{"authorization", "under_review"},
		{"incident", "detected"},
	} {
		require.NoError(t, repo.Create(ctx, newInstance(s.def, s.state)))
	}

	all, err := repo.List(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "incident", all[0].DefinitionID)

	page, err := repo.List(ctx, "authorization", 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "approved", page[0].State)

	active, err := repo.ListActive(ctx, "authorization", []string{"approved", "rejected"}, 0, 10)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "draft", active[0].State)
	assert.Equal(t, "under_review", active[1].State)

	limited, err := repo.ListActive(ctx, "authorization", nil, 0, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	next, err := repo.ListActive(ctx, "authorization", []string{"approved", "rejected"}, limited[0].ID, 1)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "under_review", next[0].State)

	rest, err := repo.ListActive(ctx, "authorization", []string{"approved", "rejected"}, next[0].ID, 1)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestHistoryRepository(t *testing.T) {
	db := setupDB(t)
	instances := NewInstanceRepository(db, zap.NewNop())
	history := NewHistoryRepository(db, zap.NewNop())
	ctx := context.Background()

	instance := newInstance("incident", "detected")
	require.NoError(t, instances.Create(ctx, instance))

	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	records := []*entity.TransitionHistory{
		{InstanceID: instance.ID, EventID: "e1", FromState: "detected", ToState: "triaged", Event: "triage", Actor: "alice", Success: true, Timestamp: ts},
		{InstanceID: instance.ID, EventID: "e2", FromState: "triaged", Event: "send_early_warning", Actor: "alice", Error: "guard rejected transition", Timestamp: ts},
		{InstanceID: instance.ID, EventID: "e3", FromState: "triaged", ToState: "early_warning_due", Event: "escalate", Actor: entity.ActorSystem, Auto: true, Success: true, Timestamp: ts},
	}
	for _, h := range records {
		require.NoError(t, history.Create(ctx, h))
		assert.NotZero(t, h.ID)
	}

	got, err := history.GetByInstanceID(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "triage", got[0].Event)
	assert.False(t, got[1].Success)
	assert.Equal(t, "guard rejected transition", got[1].Error)
	assert.True(t, got[2].Auto)
	assert.True(t, got[2].Timestamp.Equal(ts))

	empty, err := history.GetByInstanceID(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTransactionRollback(t *testing.T) {
	db := setupDB(t)
	tm := sqlite.NewDB(db, zap.NewNop())
	instances := NewInstanceRepository(db, zap.NewNop())
	history := NewHistoryRepository(db, zap.NewNop())
	ctx := context.Background()

	instance := newInstance("authorization", "draft")
	require.NoError(t, instances.Create(ctx, instance))

	boom := errors.New("boom")
	err := tm.WithTransaction(ctx, func(ctx context.Context) error {
		instance.State = "submitted"
		if err := instances.UpdateState(ctx, instance); err != nil {
			return err
		}
		if err := history.Create(ctx, &entity.TransitionHistory{
			InstanceID: instance.ID, EventID: "e1", FromState: "draft", ToState: "submitted",
			Event: "submit", Success: true, Timestamp: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := instances.GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "draft", got.State)
	assert.Equal(t, int64(1), got.Version)

	rows, err := history.GetByInstanceID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
