// Package assign collects the values assigned to a local variable before a
// given point.
package assign

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/gnolang/closelint/internal/analysis/order"
	"github.com/gnolang/closelint/internal/analysis/program"
)

// Kind describes how a value reaches the variable.
type Kind int

const (
	// Direct is a plain initialization or assignment.
	Direct Kind = iota
	// Compound is an arithmetic assignment such as x += e.
	Compound
	// Element is an element of the ranged container Expr; Index is 0 for
	// the key and 1 for the value.
	Element
	// PointerWrite is a call receiving &x as argument Index.
	PointerWrite
)

func (k Kind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Compound:
		return "compound"
	case Element:
		return "element"
	case PointerWrite:
		return "pointer-write"
	default:
		return "unknown"
	}
}

// Value is one assignment of a variable. For Direct and Compound values
// with a tuple on the right hand side, Index selects the result.
type Value struct {
	Expr  ast.Expr
	Index int
	Kind  Kind
	// Site is the statement or call performing the assignment.
	Site ast.Node
}

// Resolve returns the values assigned to the variable ref refers to that can
// reach ref. Branch-local assignments are kept. Non-local variables and
// variables never explicitly assigned yield nil.
func Resolve(p *program.Program, ref *ast.Ident) []Value {
	return ResolveObject(p, p.ObjectOf(ref), ref)
}

// ResolveObject is Resolve for a variable object and an arbitrary point.
func ResolveObject(p *program.Program, obj types.Object, at ast.Node) []Value {
	if obj == nil || !p.IsLocal(obj) {
		return nil
	}
	if ts := p.TypeSwitchOf(obj); ts != nil {
		return typeSwitchValue(ts)
	}
	body := program.FuncBody(p.DeclaringFunc(obj))
	if body == nil {
		return nil
	}

	c := collector{p: p, obj: obj, at: at}
	ast.Inspect(body, c.visit)
	return c.values
}

type collector struct {
	p      *program.Program
	obj    types.Object
	at     ast.Node
	values []Value
}

func (c *collector) visit(n ast.Node) bool {
	switch n := n.(type) {
	case *ast.AssignStmt:
		c.assignStmt(n)
	case *ast.ValueSpec:
		c.valueSpec(n)
	case *ast.RangeStmt:
		if n.Tok == token.DEFINE || n.Tok == token.ASSIGN {
			if c.is(n.Key) {
				c.add(n, Value{Expr: n.X, Index: 0, Kind: Element, Site: n})
			}
			if c.is(n.Value) {
				c.add(n, Value{Expr: n.X, Index: 1, Kind: Element, Site: n})
			}
		}
	case *ast.CallExpr:
		for i, arg := range n.Args {
			u, ok := astutil.Unparen(arg).(*ast.UnaryExpr)
			if ok && u.Op == token.AND && c.is(u.X) {
				c.add(n, Value{Expr: n, Index: i, Kind: PointerWrite, Site: n})
			}
		}
	}
	return true
}

func (c *collector) assignStmt(stmt *ast.AssignStmt) {
	kind := Direct
	if stmt.Tok != token.ASSIGN && stmt.Tok != token.DEFINE {
		kind = Compound
	}
	for i, lhs := range stmt.Lhs {
		if !c.is(lhs) {
			continue
		}
		if len(stmt.Lhs) == len(stmt.Rhs) {
			c.add(stmt, Value{Expr: stmt.Rhs[i], Kind: kind, Site: stmt})
		} else if len(stmt.Rhs) == 1 {
			c.add(stmt, Value{Expr: stmt.Rhs[0], Index: i, Kind: kind, Site: stmt})
		}
	}
}

func (c *collector) valueSpec(spec *ast.ValueSpec) {
	if len(spec.Values) == 0 {
		return
	}
	for i, name := range spec.Names {
		if !c.is(name) {
			continue
		}
		if len(spec.Names) == len(spec.Values) {
			c.add(spec, Value{Expr: spec.Values[i], Site: spec})
		} else if len(spec.Values) == 1 {
			c.add(spec, Value{Expr: spec.Values[0], Index: i, Site: spec})
		}
	}
}

// is reports whether e names the tracked variable.
func (c *collector) is(e ast.Expr) bool {
	id, ok := astutil.Unparen(e).(*ast.Ident)
	if !ok || id.Name == "_" {
		return false
	}
	return c.p.ObjectOf(id) == c.obj
}

func (c *collector) add(site ast.Node, v Value) {
	if c.at != nil && order.Of(c.p, site, c.at) == order.After {
		return
	}
	for _, existing := range c.values {
		if existing.Expr == v.Expr && existing.Index == v.Index && existing.Kind == v.Kind {
			return
		}
	}
	c.values = append(c.values, v)
}

func typeSwitchValue(ts *ast.TypeSwitchStmt) []Value {
	var x ast.Expr
	switch assign := ts.Assign.(type) {
	case *ast.AssignStmt:
		if len(assign.Rhs) == 1 {
			x = assign.Rhs[0]
		}
	case *ast.ExprStmt:
		x = assign.X
	}
	ta, ok := astutil.Unparen(x).(*ast.TypeAssertExpr)
	if !ok {
		return nil
	}
	return []Value{{Expr: ta.X, Kind: Direct, Site: ts.Assign}}
}
