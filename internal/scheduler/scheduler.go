// Package scheduler periodically runs the automatic-transition sweep. The
// workflow engine never schedules anything itself; conditions that depend on
// elapsed time are re-checked here.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/orbitreg/compliance-workflow/internal/application/workflow"
)

// Sweeper evaluates the active workflow instances
type Sweeper interface {
	EvaluateActive(ctx context.Context, opts workflow.SweepOptions) (*workflow.SweepResult, error)
}

// Config holds scheduler settings
type Config struct {
	// Spec is a standard cron expression or descriptor such as "@every 1m"
	Spec        string
	Concurrency int
	BatchSize   int
}

// Scheduler runs the sweep on a cron schedule. Overlapping runs are skipped.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	sweeper  Sweeper
	config   Config
	logger   *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler; the cron expression is validated immediately
func New(sweeper Sweeper, config Config, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	schedule, err := cron.ParseStandard(config.Spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", config.Spec, err)
	}

	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		schedule: schedule,
		sweeper:  sweeper,
		config:   config,
		logger:   logger,
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.run))
	return s, nil
}

// Start begins running sweeps. Runs in flight are cancelled when ctx is done
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Scheduler started",
		zap.String("spec", s.config.Spec),
		zap.Time("next_run", s.schedule.Next(time.Now())))
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunOnce performs one sweep immediately
func (s *Scheduler) RunOnce(ctx context.Context) (*workflow.SweepResult, error) {
	return s.sweeper.EvaluateActive(ctx, workflow.SweepOptions{
		BatchSize:   s.config.BatchSize,
		Concurrency: s.config.Concurrency,
	})
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("Scheduled sweep failed", zap.Error(err))
		return
	}

	s.logger.Debug("Scheduled sweep finished",
		zap.Int("scanned", res.Scanned),
		zap.Int("transitioned", res.Transitioned),
		zap.Duration("duration", time.Since(start)))
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
