package lints

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/gnolang/closelint/internal/analysis/assign"
	"github.com/gnolang/closelint/internal/analysis/order"
	"github.com/gnolang/closelint/internal/analysis/provenance"
	tt "github.com/gnolang/closelint/internal/types"
)

const closeBeforeReassignRule = "close-before-reassign"

// DetectCloseBeforeReassign reports assignments overwriting a variable that
// still holds a resource created earlier in the function. Passing &v to a
// function that stores through the pointer overwrites v as well.
func DetectCloseBeforeReassign(rc *RuleContext, file *ast.File) ([]tt.Issue, error) {
	var issues []tt.Issue
	var err error
	report := func(v *types.Var, site ast.Node, node ast.Node) bool {
		var leaked bool
		leaked, err = rc.leaksOnReassign(v, site)
		if err != nil {
			return false
		}
		if leaked {
			issues = append(issues, rc.newIssue(closeBeforeReassignRule, node,
				fmt.Sprintf("%s is reassigned while it holds an open resource", v.Name()),
				fmt.Sprintf("Close %s before assigning a new value.", v.Name())))
		}
		return true
	}
	ast.Inspect(file, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		switch n := n.(type) {
		case *ast.AssignStmt:
			if n.Tok != token.ASSIGN {
				return true
			}
			for _, lhs := range n.Lhs {
				v, id := rc.localVar(lhs)
				if v == nil || !rc.isResource(id) {
					continue
				}
				if !report(v, n, lhs) {
					return false
				}
			}
		case *ast.CallExpr:
			for i, arg := range n.Args {
				u, ok := astutil.Unparen(arg).(*ast.UnaryExpr)
				if !ok || u.Op != token.AND {
					continue
				}
				v, id := rc.localVar(u.X)
				if v == nil || !rc.isResource(id) {
					continue
				}
				writes, werr := rc.storesThrough(n, i)
				if werr != nil {
					err = werr
					return false
				}
				if writes && !report(v, n, arg) {
					return false
				}
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return issues, nil
}

// storesThrough reports whether call assigns a value through its pointer
// argument arg. Callees without a body are assumed to only read.
func (rc *RuleContext) storesThrough(call *ast.CallExpr, arg int) (bool, error) {
	set, err := rc.Disposal.Resolver().ResolveAssigned(rc.Ctx,
		assign.Value{Expr: call, Index: arg, Kind: assign.PointerWrite, Site: call},
		provenance.RecursiveInside)
	if err != nil {
		return false, err
	}
	return set.Len() > 0 && !set.Contains(call), nil
}

func (rc *RuleContext) leaksOnReassign(v *types.Var, site ast.Node) (bool, error) {
	previous, err := rc.Disposal.CreatedAssignments(rc.Ctx, v, site)
	if err != nil || len(previous) == 0 {
		return false, err
	}
	disposed, err := rc.Disposal.IsDisposedBefore(rc.Ctx, v, site)
	if err != nil || disposed {
		return false, err
	}
	if rc.Disposal.IsCloseDeferredBefore(v, site) {
		return false, nil
	}
	for _, prev := range previous {
		if !rc.escapesBetween(v, prev, site) {
			return true, nil
		}
	}
	return false, nil
}

// escapesBetween reports whether the value assigned at prev is handed to
// someone else before site overwrites it.
func (rc *RuleContext) escapesBetween(v *types.Var, prev assign.Value, site ast.Node) bool {
	p := rc.Program
	body := p.EnclosingFunc(site)
	escaped := false
	ast.Inspect(body, func(n ast.Node) bool {
		id, ok := n.(*ast.Ident)
		if !ok || escaped || p.ObjectOf(id) != v {
			return !escaped
		}
		if order.Of(p, prev.Site, id) != order.Before || order.Of(p, id, site) != order.Before {
			return true
		}
		switch parent := p.Parent(id).(type) {
		case *ast.UnaryExpr:
			if p.Parent(parent) == site {
				// &v handed to the overwriting call itself
				return true
			}
		case *ast.SelectorExpr:
			// method calls and field reads keep ownership
			return true
		case *ast.AssignStmt:
			for _, lhs := range parent.Lhs {
				if lhs == id {
					return true
				}
			}
		case *ast.BinaryExpr:
			return true
		}
		escaped = true
		return false
	})
	return escaped
}
