package guards

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"

	"github.com/poltergeist/conductor/pkg/env"
	"github.com/poltergeist/conductor/pkg/pipeline"
)

// Expression is a compiled boolean guard over context variables, e.g.
// `BRANCH_NAME == "main" && DEPLOY_TARGET != ""`. Variables that are not set
// read as the empty string.
type Expression struct {
	source  string
	program *vm.Program
	idents  []string
}

// identCollector records every identifier referenced by an expression
type identCollector struct {
	seen  map[string]struct{}
	names []string
}

func (c *identCollector) Visit(node *ast.Node) {
	ident, ok := (*node).(*ast.IdentifierNode)
	if !ok {
		return
	}
	if _, dup := c.seen[ident.Value]; dup {
		return
	}
	c.seen[ident.Value] = struct{}{}
	c.names = append(c.names, ident.Value)
}

// CompileExpression parses and type-checks src as a boolean expression
func CompileExpression(src string) (*Expression, error) {
	collector := &identCollector{seen: make(map[string]struct{})}
	program, err := expr.Compile(src,
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
		expr.Patch(collector),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", src, err)
	}
	return &Expression{source: src, program: program, idents: collector.names}, nil
}

// String returns the expression source
func (e *Expression) String() string {
	return e.source
}

// Evaluate runs the expression against a context snapshot
func (e *Expression) Evaluate(vars env.Snapshot) (bool, error) {
	data := make(map[string]interface{}, vars.Len()+len(e.idents))
	for _, name := range e.idents {
		data[name] = ""
	}
	for k, v := range vars.Map() {
		data[k] = v
	}

	out, err := expr.Run(e.program, data)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", e.source, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not return bool (got %T)", e.source, out)
	}
	return result, nil
}

// Guard adapts the expression to a stage guard. Evaluation errors count as false.
func (e *Expression) Guard() pipeline.Guard {
	return func(vars env.Snapshot) bool {
		ok, err := e.Evaluate(vars)
		return err == nil && ok
	}
}
