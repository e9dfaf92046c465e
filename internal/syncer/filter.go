package syncer

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/storekit/searchsync/internal/transform"
)

// Filter is a compiled CEL eligibility expression evaluated against the
// transformed document (variable "doc"). Records whose document does not
// match stay out of the index.
type Filter struct {
	expr string
	prg  cel.Program
}

// CompileFilter compiles an eligibility expression once, at startup.
func CompileFilter(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error in %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program creation error: %w", err)
	}

	return &Filter{expr: expr, prg: prg}, nil
}

// Matches evaluates the filter against one document.
func (f *Filter) Matches(doc transform.Document) (bool, error) {
	out, _, err := f.prg.Eval(map[string]any{"doc": map[string]any(doc)})
	if err != nil {
		return false, fmt.Errorf("filter %q eval failed: %w", f.expr, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned non-bool %T", f.expr, out.Value())
	}
	return matched, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}
