// Package container provides dependency injection and lifecycle management
// for the workflow service. Components are initialized in dependency order
// and torn down in reverse.
package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/orbitreg/compliance-workflow/internal/application/dispatcher"
	"github.com/orbitreg/compliance-workflow/internal/application/workflow"
	"github.com/orbitreg/compliance-workflow/internal/config"
	"github.com/orbitreg/compliance-workflow/internal/definition"
	"github.com/orbitreg/compliance-workflow/internal/scheduler"
)

// Container manages all application dependencies and lifecycle
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	database     *DatabaseBundle
	repositories *RepositoryBundle
	metrics      *prometheus.Registry

	// Application
	dispatcher dispatcher.Dispatcher
	registry   *definition.Registry
	service    workflow.Service
	scheduler  *scheduler.Scheduler

	// Lifecycle
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components; call Start to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database and repositories
// 2. Event dispatcher and metrics
// 3. Workflow definitions
// 4. Workflow service
// 5. Scheduler
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	c.initDispatcher()
	c.logger.Info("Dispatcher and metrics initialized")

	if err := c.initRegistry(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to load workflow definitions: %w", err)
	}
	c.logger.Info("Workflow definitions registered", zap.Strings("definitions", c.registry.IDs()))

	c.service = ProvideService(c.registry, c.repositories, c.database, c.dispatcher, c.logger)

	if err := c.initScheduler(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.scheduler != nil {
		c.scheduler.Stop()
		c.scheduler = nil
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	if c.database != nil {
		if err := c.database.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.database = nil
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components
func (c *Container) Health() *HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.database == nil:
		set("database", false, "not initialized")
	default:
		if err := c.database.DB.Ping(); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	if c.registry != nil {
		set("definitions", true, fmt.Sprintf("registered: %d", len(c.registry.IDs())))
	} else {
		set("definitions", false, "not initialized")
	}

	if c.dispatcher != nil {
		set("dispatcher", true, "")
	} else {
		set("dispatcher", false, "not initialized")
	}

	if c.config.Scheduler.Enabled {
		if c.scheduler != nil {
			set("scheduler", true, c.config.Scheduler.Cron)
		} else {
			set("scheduler", false, "not running")
		}
	}

	return status
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.database = bundle
	c.repositories = ProvideRepositories(bundle, c.logger)
	return nil
}

func (c *Container) initDispatcher() {
	c.dispatcher = ProvideDispatcher(c.logger)
	c.metrics = ProvideMetrics(c.dispatcher)
}

func (c *Container) initRegistry() error {
	registry, err := ProvideRegistry(c.config, c.logger)
	if err != nil {
		return err
	}
	c.registry = registry
	return nil
}

func (c *Container) initScheduler() error {
	if !c.config.Scheduler.Enabled {
		c.logger.Info("Scheduler disabled")
		return nil
	}

	s, err := ProvideScheduler(&c.config.Scheduler, c.service, c.logger)
	if err != nil {
		return err
	}
	s.Start(c.ctx)
	c.scheduler = s
	return nil
}

// Getters for accessing container components

// Service returns the workflow service
func (c *Container) Service() workflow.Service {
	return c.service
}

// Registry returns the workflow definition registry
func (c *Container) Registry() *definition.Registry {
	return c.registry
}

// Dispatcher returns the event dispatcher
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Metrics returns the registry holding the workflow collectors
func (c *Container) Metrics() *prometheus.Registry {
	return c.metrics
}

// Scheduler returns the scheduler, nil when disabled
func (c *Container) Scheduler() *scheduler.Scheduler {
	return c.scheduler
}

// Logger returns the container's logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration
func (c *Container) Config() *config.Config {
	return c.config
}
