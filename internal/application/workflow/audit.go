package workflow

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/orbitreg/compliance-workflow/internal/definition"
	domainwf "github.com/orbitreg/compliance-workflow/internal/domain/workflow"
)

// AuditHooks returns a registry decorator that logs every applied transition
// and every hook failure of a definition, then delegates to the hooks the
// definition already had.
func AuditHooks(logger *zap.Logger) definition.HooksDecorator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(def *domainwf.Definition, base domainwf.Hooks) domainwf.Hooks {
		log := logger.With(zap.String("workflow", def.ID))

		return domainwf.Hooks{
			BeforeTransition: base.BeforeTransition,
			AfterTransition: func(ctx context.Context, info domainwf.TransitionInfo) error {
				if base.AfterTransition != nil {
					if err := base.AfterTransition(ctx, info); err != nil {
						return err
					}
				}
				log.Info("Transition applied",
					zap.String("from", info.From.String()),
					zap.String("event", info.Event.String()),
					zap.String("to", info.To.String()))
				return nil
			},
			OnError: func(ctx context.Context, err error, data domainwf.Context) {
				fields := []zap.Field{zap.String("kind", domainwf.ErrorKind(err)), zap.Error(err)}
				var hookErr *domainwf.HookError
				if errors.As(err, &hookErr) {
					fields = append(fields,
						zap.String("stage", string(hookErr.Stage)),
						zap.String("from", hookErr.From.String()),
						zap.String("event", hookErr.Event.String()))
				}
				log.Warn("Workflow hook failed", fields...)

				if base.OnError != nil {
					base.OnError(ctx, err, data)
				}
			},
		}
	}
}
