package connector

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExpressionEngine evaluates CUSTOM transforms and validation rules. The
// language has no side effects and only sees the variables it is handed.
type ExpressionEngine struct {
	enabled  bool
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewExpressionEngine creates an engine; a disabled engine rejects every
// expression with a *ConfigError.
func NewExpressionEngine(enabled bool) *ExpressionEngine {
	return &ExpressionEngine{enabled: enabled, programs: make(map[string]*vm.Program)}
}

// Enabled reports whether custom expressions may run
func (e *ExpressionEngine) Enabled() bool { return e != nil && e.enabled }

// Eval runs source against env
func (e *ExpressionEngine) Eval(source string, env map[string]any) (any, error) {
	if !e.Enabled() {
		return nil, configErrorf("custom expressions are disabled")
	}
	program, err := e.compile(source)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression: %w", err)
	}
	return out, nil
}

// EvalBool runs source and requires a boolean result
func (e *ExpressionEngine) EvalBool(source string, env map[string]any) (bool, error) {
	out, err := e.Eval(source, env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, want bool", out)
	}
	return b, nil
}

func (e *ExpressionEngine) compile(source string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[source]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, configErrorf("invalid expression %q: %v", source, err)
	}
	e.mu.Lock()
	e.programs[source] = program
	e.mu.Unlock()
	return program, nil
}
