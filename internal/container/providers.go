package container

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/orbitreg/compliance-workflow/internal/application/dispatcher"
	"github.com/orbitreg/compliance-workflow/internal/application/port"
	"github.com/orbitreg/compliance-workflow/internal/application/workflow"
	"github.com/orbitreg/compliance-workflow/internal/compliance"
	"github.com/orbitreg/compliance-workflow/internal/config"
	"github.com/orbitreg/compliance-workflow/internal/definition"
	domainwf "github.com/orbitreg/compliance-workflow/internal/domain/workflow"
	"github.com/orbitreg/compliance-workflow/internal/infrastructure/persistence/repository"
	"github.com/orbitreg/compliance-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/orbitreg/compliance-workflow/internal/metrics"
	"github.com/orbitreg/compliance-workflow/internal/scheduler"
	"github.com/orbitreg/compliance-workflow/pkg/database"
)

// DatabaseBundle holds database-related components
type DatabaseBundle struct {
	DB        *database.DB
	TxManager *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access
type RepositoryBundle struct {
	Instance port.InstanceRepository
	History  port.HistoryRepository
}

// ProvideDatabase opens the database and applies pending migrations. An
// empty MigrationsDir applies the migrations embedded in the binary.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	var migrations fs.FS = database.Schema
	if cfg.MigrationsDir != "" {
		migrations = os.DirFS(cfg.MigrationsDir)
	}

	if err := database.NewMigrator(db, logger).RunMigrations(migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:        db,
		TxManager: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories over the bundle's connection
func ProvideRepositories(bundle *DatabaseBundle, logger *zap.Logger) *RepositoryBundle {
	db := bundle.DB.DB
	return &RepositoryBundle{
		Instance: repository.NewInstanceRepository(db, logger),
		History:  repository.NewHistoryRepository(db, logger),
	}
}

// ProvideDispatcher creates the event dispatcher
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(logger))
}

// ProvideMetrics creates a registry with process collectors and the workflow
// recorder subscribed to d
func ProvideMetrics(d dispatcher.Dispatcher) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.NewRecorder(metrics.Config{Registry: reg}).Subscribe(d)
	return reg
}

// ProvideRegistry builds engines for the built-in compliance workflows and
// every definition file in the configured directory
func ProvideRegistry(cfg *config.Config, logger *zap.Logger) (*definition.Registry, error) {
	registry := definition.NewRegistry(
		definition.WithEngineOptions(EngineOptions(&cfg.Engine, logger)...),
		definition.WithHooksDecorator(workflow.AuditHooks(logger.Named("audit"))),
	)

	if cfg.Workflows.Builtin {
		if err := registry.RegisterAll(compliance.Definitions()...); err != nil {
			return nil, err
		}
	}

	if cfg.Workflows.DefinitionsDir != "" {
		loader := definition.NewLoader(definition.WithLoaderLogger(logger))
		defs, err := loader.LoadDir(cfg.Workflows.DefinitionsDir)
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterAll(defs...); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// EngineOptions translates engine configuration into engine options
func EngineOptions(cfg *config.EngineConfig, logger *zap.Logger) []domainwf.EngineOption {
	return []domainwf.EngineOption{
		domainwf.WithMaxAutoTransitions(cfg.MaxAutoTransitions),
		domainwf.WithAutoEvaluate(cfg.AutoEvaluate),
		domainwf.WithDebug(cfg.Debug),
		domainwf.WithLogger(logger.Named("engine")),
	}
}

// ProvideService creates the workflow service
func ProvideService(
	registry *definition.Registry,
	repos *RepositoryBundle,
	db *DatabaseBundle,
	d dispatcher.Dispatcher,
	logger *zap.Logger,
) workflow.Service {
	return workflow.NewService(registry, repos.Instance, repos.History, db.TxManager,
		workflow.WithDispatcher(d),
		workflow.WithLogger(logger))
}

// ProvideScheduler creates the auto-evaluation scheduler
func ProvideScheduler(cfg *config.SchedulerConfig, sweeper scheduler.Sweeper, logger *zap.Logger) (*scheduler.Scheduler, error) {
	return scheduler.New(sweeper, scheduler.Config{
		Spec:        cfg.Cron,
		Concurrency: cfg.Concurrency,
		BatchSize:   cfg.BatchSize,
	}, logger.Named("scheduler"))
}
