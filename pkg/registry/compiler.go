package registry

import (
	"fmt"
	"strings"

	"github.com/oarkflow/expr"

	"github.com/oarkflow/pipeline/pkg/contracts"
)

// ExprCompiler compiles transform sources with the expr engine. Lines
// starting with "#" are treated as directives/comments (the result-array
// marker among them) and stripped before parsing.
type ExprCompiler struct{}

func NewExprCompiler() *ExprCompiler { return &ExprCompiler{} }

func (c *ExprCompiler) Compile(source, org string) (contracts.Program, error) {
	body := stripDirectives(source)
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("transform source is empty")
	}
	program, err := expr.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("compiling transform for org %s: %w", org, err)
	}
	return contracts.ProgramFunc(func(env map[string]any) (any, error) {
		return program.Eval(env)
	}), nil
}

func stripDirectives(source string) string {
	lines := strings.Split(source, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

var _ contracts.Compiler = (*ExprCompiler)(nil)
