package workflow

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orbitreg/compliance-workflow/internal/domain/entity"
)

// SweepOptions bounds one EvaluateActive run
type SweepOptions struct {
	// DefinitionID restricts the sweep to one workflow; empty means all.
	DefinitionID string
	BatchSize    int
	Concurrency  int
	Actor        string
}

// SweepResult summarizes one EvaluateActive run
type SweepResult struct {
	Scanned      int `json:"scanned"`
	Transitioned int `json:"transitioned"`
	Errored      int `json:"errored"`
	Failed       int `json:"failed"`
}

const (
	defaultSweepBatchSize   = 100
	defaultSweepConcurrency = 4
)

// EvaluateActive pages through every non-terminal instance of each
// definition, BatchSize rows at a time, and evaluates them with at most
// Concurrency in flight. Per-instance failures
// are counted and logged; only listing errors and cancellation abort the run.
func (s *serviceImpl) EvaluateActive(ctx context.Context, opts SweepOptions) (*SweepResult, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultSweepConcurrency
	}
	if opts.Actor == "" {
		opts.Actor = entity.ActorScheduler
	}

	ids := s.registry.IDs()
	if opts.DefinitionID != "" {
		if _, err := s.registry.Engine(opts.DefinitionID); err != nil {
			return nil, err
		}
		ids = []string{opts.DefinitionID}
	}

	var scanned, transitioned, errored, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, id := range ids {
		engine, err := s.registry.Engine(id)
		if err != nil {
			return nil, err
		}

		terminal := engine.GetTerminalStates()
		states := make([]string, len(terminal))
		for i, st := range terminal {
			states[i] = st.String()
		}

		var afterID int64
		for {
			page, err := s.instances.ListActive(gctx, id, states, afterID, opts.BatchSize)
			if err != nil {
				_ = g.Wait()
				return nil, err
			}

			for _, instance := range page {
				instanceID := instance.ID
				scanned.Add(1)
				g.Go(func() error {
					return s.sweepOne(gctx, instanceID, opts.Actor, &transitioned, &errored, &failed)
				})
			}

			if len(page) < opts.BatchSize || gctx.Err() != nil {
				break
			}
			afterID = page[len(page)-1].ID
		}
	}

	err := g.Wait()
	result := &SweepResult{
		Scanned:      int(scanned.Load()),
		Transitioned: int(transitioned.Load()),
		Errored:      int(errored.Load()),
		Failed:       int(failed.Load()),
	}
	if err != nil {
		return result, err
	}

	s.logger.Info("Auto-evaluation sweep completed",
		zap.Int("scanned", result.Scanned),
		zap.Int("transitioned", result.Transitioned),
		zap.Int("errored", result.Errored),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *serviceImpl) sweepOne(ctx context.Context, instanceID int64, actor string, transitioned, errored, failed *atomic.Int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := s.Evaluate(ctx, instanceID, actor)
	if err != nil {
		failed.Add(1)
		s.logger.Error("Auto-evaluation failed",
			zap.Int64("instance_id", instanceID),
			zap.Error(err))
		return nil
	}

	if res.Evaluation.Transitioned {
		transitioned.Add(1)
	}
	if len(res.Evaluation.Errors) > 0 {
		errored.Add(1)
		s.logger.Warn("Auto-evaluation reported errors",
			zap.Int64("instance_id", instanceID),
			zap.Strings("errors", res.Evaluation.Errors))
	}
	return nil
}
