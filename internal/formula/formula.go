// Package formula inspects calculated-column formulas. It does not
// evaluate them; it only answers which columns a formula reads.
package formula

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// identCollector gathers bare identifiers, skipping the ones used as
// function names in call position and the names bound by let.
type identCollector struct {
	idents  map[*ast.IdentifierNode]struct{}
	callees map[*ast.IdentifierNode]struct{}
	locals  map[string]struct{}
}

func (c *identCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.idents[n] = struct{}{}
	case *ast.CallNode:
		if callee, ok := n.Callee.(*ast.IdentifierNode); ok {
			c.callees[callee] = struct{}{}
		}
	case *ast.VariableDeclaratorNode:
		c.locals[n.Name] = struct{}{}
	}
}

// References parses expression and returns the sorted, de-duplicated
// column identifiers it reads. Function names and variables declared with
// let are not included.
func References(expression string) ([]string, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse formula: %w", err)
	}

	c := &identCollector{
		idents:  make(map[*ast.IdentifierNode]struct{}),
		callees: make(map[*ast.IdentifierNode]struct{}),
		locals:  make(map[string]struct{}),
	}
	ast.Walk(&tree.Node, c)

	seen := make(map[string]struct{})
	for n := range c.idents {
		if _, isCall := c.callees[n]; isCall {
			continue
		}
		if _, isLocal := c.locals[n.Value]; isLocal {
			continue
		}
		if isLiteralIdent(n.Value) {
			continue
		}
		seen[n.Value] = struct{}{}
	}

	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs, nil
}

// MergeDependencies unions declared dependencies with the identifiers the
// formula actually reads. Order: declared first, then discovered.
func MergeDependencies(expression string, declared []string) ([]string, error) {
	refs, err := References(expression)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(declared)+len(refs))
	seen := make(map[string]struct{}, len(declared)+len(refs))
	for _, list := range [][]string{declared, refs} {
		for _, d := range list {
			if _, dup := seen[d]; dup || d == "" {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	return out, nil
}

func isLiteralIdent(v string) bool {
	switch v {
	case "nil", "null", "NULL", "true", "false":
		return true
	}
	return false
}
