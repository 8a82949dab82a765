// Package cel provides CEL filters over ledger records.
//
// A filter sees one record as a map under a single variable, for example
// `event.type == "CertificateIssued" && event.course_id == 3` or
// `cert.validated && cert.student == "0x…"`.
package cel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
)

// Variable names bound by the ledger evaluators.
const (
	VarEvent       = "event"
	VarCertificate = "cert"
)

var (
	ErrInvalidExpression = errors.New("invalid CEL expression")
	ErrEvaluationFailed  = errors.New("CEL evaluation failed")
)

// Evaluator compiles and evaluates CEL expressions against attribute maps
// bound to one variable.
type Evaluator struct {
	env      *cel.Env
	variable string
	cache    sync.Map // map[string]cel.Program
}

// NewEvaluator creates an evaluator that exposes records as variable.
func NewEvaluator(variable string) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable(variable, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL env: %w", err)
	}
	return &Evaluator{env: env, variable: variable}, nil
}

// Variable returns the name records are bound to.
func (e *Evaluator) Variable() string { return e.variable }

// Compile parses and compiles a CEL expression. Compiled programs are cached.
func (e *Evaluator) Compile(_ context.Context, expression string) (cel.Program, error) {
	if cached, ok := e.cache.Load(expression); ok {
		if prg, ok := cached.(cel.Program); ok {
			return prg, nil
		}
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) && !ast.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", ErrInvalidExpression, ast.OutputType())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	e.cache.Store(expression, prg)
	return prg, nil
}

// Match compiles expression and evaluates it against attrs.
func (e *Evaluator) Match(ctx context.Context, expression string, attrs map[string]any) (bool, error) {
	prg, err := e.Compile(ctx, expression)
	if err != nil {
		return false, err
	}
	return e.Eval(ctx, prg, attrs)
}

// Eval evaluates a compiled program against attrs.
func (e *Evaluator) Eval(_ context.Context, prg cel.Program, attrs map[string]any) (bool, error) {
	out, _, err := prg.Eval(map[string]any{e.variable: attrs})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: expression must return bool, got %T", ErrEvaluationFailed, out.Value())
	}
	return result, nil
}

// Filter returns the items whose attributes match prg. Items that fail to
// evaluate are skipped, not reported.
func Filter[T any](ctx context.Context, e *Evaluator, prg cel.Program, items []T, attrs func(*T) map[string]any) []T {
	var matches []T
	evalErrors := 0

	for i := range items {
		ok, err := e.Eval(ctx, prg, attrs(&items[i]))
		if err != nil {
			evalErrors++
			if evalErrors <= 5 {
				slog.DebugContext(ctx, "filter eval failed", "variable", e.variable, "error", err)
			}
			continue
		}
		if ok {
			matches = append(matches, items[i])
		}
	}
	return matches
}

// ValidateExpression checks if an expression compiles.
func (e *Evaluator) ValidateExpression(ctx context.Context, expression string) error {
	_, err := e.Compile(ctx, expression)
	return err
}
