package definition

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.uber.org/zap"

	"github.com/orbitreg/compliance-workflow/internal/domain/workflow"
)

// compile parses an expression once. Variables resolve against the instance
// context at run time; missing keys evaluate to nil.
func compile(source string) (*vm.Program, error) {
	program, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", source, err)
	}
	return program, nil
}

func run(program *vm.Program, data workflow.Context) (bool, error) {
	env := map[string]any(data)
	if env == nil {
		env = map[string]any{}
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	return isTruthy(result), nil
}

// guardFunc turns a compiled expression into a guard. Evaluation errors
// surface as guard failures rather than refusals.
func guardFunc(source string, program *vm.Program) workflow.GuardFunc {
	return func(_ context.Context, data workflow.Context) (bool, error) {
		ok, err := run(program, data)
		if err != nil {
			return false, fmt.Errorf("evaluate guard %q: %w", source, err)
		}
		return ok, nil
	}
}

// conditionFunc turns a compiled expression into an auto condition. An
// expression that fails at run time is treated as not met.
func conditionFunc(source string, program *vm.Program, logger *zap.Logger) workflow.ConditionFunc {
	return func(data workflow.Context) bool {
		ok, err := run(program, data)
		if err != nil {
			logger.Warn("Auto condition evaluation failed",
				zap.String("expression", source),
				zap.Error(err))
			return false
		}
		return ok
	}
}

// isTruthy converts an expression result to a boolean
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
