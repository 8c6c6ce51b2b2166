package disposable

import (
	"context"
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/gnolang/closelint/internal/analysis/assign"
	"github.com/gnolang/closelint/internal/analysis/order"
	"github.com/gnolang/closelint/internal/analysis/program"
	"github.com/gnolang/closelint/internal/analysis/provenance"
)

// IsDisposedBefore reports whether some call that runs before point closes
// obj, and obj is not reassigned with a new resource in between. The close
// may sit in a branch; it need not run on every path to point.
func (a *Analyzer) IsDisposedBefore(ctx context.Context, obj types.Object, point ast.Node) (bool, error) {
	if obj == nil || point == nil {
		return false, nil
	}
	if a.setterReleases(point, obj) {
		return true, nil
	}
	body := program.FuncBody(a.prog.EnclosingFunc(point))
	if body == nil {
		return false, nil
	}
	for _, call := range calls(body) {
		if err := ctx.Err(); err != nil {
			return false, provenance.Abandoned(err)
		}
		if call == point || order.Of(a.prog, call, point) != order.Before {
			continue
		}
		if !a.Releases(call, obj) {
			continue
		}
		reassigned, err := a.isReassigned(ctx, obj, call, point)
		if err != nil {
			return false, err
		}
		if !reassigned {
			return true, nil
		}
	}
	return false, nil
}

// IsCloseDeferredBefore reports whether a deferred call registered before
// point closes obj unconditionally.
func (a *Analyzer) IsCloseDeferredBefore(obj types.Object, point ast.Node) bool {
	if obj == nil || point == nil {
		return false
	}
	body := program.FuncBody(a.prog.EnclosingFunc(point))
	if body == nil {
		return false
	}
	found := false
	ast.Inspect(body, func(n ast.Node) bool {
		if found {
			return false
		}
		if _, ok := n.(*ast.FuncLit); ok {
			return false
		}
		d, ok := n.(*ast.DeferStmt)
		if !ok {
			return true
		}
		if order.Of(a.prog, d, point) == order.Before && a.deferReleases(d, obj) {
			found = true
		}
		return false
	})
	return found
}

func (a *Analyzer) deferReleases(d *ast.DeferStmt, obj types.Object) bool {
	if a.Releases(d.Call, obj) {
		return true
	}
	lit, ok := astutil.Unparen(d.Call.Fun).(*ast.FuncLit)
	if !ok {
		return false
	}
	released := false
	ast.Inspect(lit.Body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.IfStmt, *ast.SwitchStmt, *ast.TypeSwitchStmt, *ast.SelectStmt,
			*ast.ForStmt, *ast.RangeStmt, *ast.FuncLit:
			// conditional closes do not count
			return false
		case *ast.CallExpr:
			if a.Releases(n, obj) {
				released = true
			}
		}
		return !released
	})
	return released
}

// Releases reports whether call closes obj, either directly or through a
// helper closing the argument bound to obj.
func (a *Analyzer) Releases(call *ast.CallExpr, obj types.Object) bool {
	return a.releases(call, obj, make(map[*ast.FuncDecl]bool))
}

func (a *Analyzer) releases(call *ast.CallExpr, obj types.Object, seen map[*ast.FuncDecl]bool) bool {
	if recv, ok := closeReceiver(call); ok {
		if a.prog.Referent(recv) == obj && a.IsResourceType(a.prog.TypeOf(recv)) {
			return true
		}
	}
	fn, ok := a.prog.Callee(call).(*types.Func)
	if !ok {
		return false
	}
	decl := a.prog.FuncDecl(fn)
	if decl == nil || seen[decl] {
		return false
	}
	seen[decl] = true
	for i, arg := range call.Args {
		if a.prog.Referent(arg) != obj {
			continue
		}
		if param := paramVar(a.prog, decl, i); param != nil && a.bodyReleases(decl.Body, param, seen) {
			return true
		}
	}
	return false
}

// setterReleases handles point being a method call that overwrites the field
// obj after closing the old value.
func (a *Analyzer) setterReleases(point ast.Node, obj types.Object) bool {
	call, ok := point.(*ast.CallExpr)
	if !ok {
		return false
	}
	v, ok := obj.(*types.Var)
	if !ok || !v.IsField() {
		return false
	}
	fn, ok := a.prog.Callee(call).(*types.Func)
	if !ok {
		return false
	}
	decl := a.prog.FuncDecl(fn)
	if decl == nil || decl.Recv == nil {
		return false
	}
	return a.bodyReleases(decl.Body, obj, map[*ast.FuncDecl]bool{decl: true})
}

func (a *Analyzer) bodyReleases(body *ast.BlockStmt, obj types.Object, seen map[*ast.FuncDecl]bool) bool {
	found := false
	ast.Inspect(body, func(n ast.Node) bool {
		if call, ok := n.(*ast.CallExpr); ok && !found {
			found = a.releases(call, obj, seen)
		}
		return !found
	})
	return found
}

// isReassigned reports whether obj receives a new resource after release
// and before point, by assignment or through &obj passed to a call.
func (a *Analyzer) isReassigned(ctx context.Context, obj types.Object, release *ast.CallExpr, point ast.Node) (bool, error) {
	body := program.FuncBody(a.prog.EnclosingFunc(point))
	releaseStmt := a.prog.EnclosingStmt(release)
	var err error
	reassigned := false
	check := func(site ast.Node, val assign.Value) bool {
		if !a.between(site, release, releaseStmt, point) {
			return false
		}
		var created bool
		created, err = a.IsCreatedBy(ctx, val)
		reassigned = err == nil && created
		return err != nil || created
	}
	ast.Inspect(body, func(n ast.Node) bool {
		if reassigned || err != nil {
			return false
		}
		switch n := n.(type) {
		case *ast.AssignStmt:
			for i, lhs := range n.Lhs {
				if a.prog.Referent(lhs) != obj {
					continue
				}
				rhs, index := rhsAt(n, i)
				if check(n, assign.Value{Expr: rhs, Index: index, Kind: assign.Direct, Site: n}) {
					return false
				}
			}
		case *ast.CallExpr:
			for i, arg := range n.Args {
				u, ok := astutil.Unparen(arg).(*ast.UnaryExpr)
				if !ok || u.Op != token.AND || a.prog.Referent(u.X) != obj {
					continue
				}
				if check(n, assign.Value{Expr: n, Index: i, Kind: assign.PointerWrite, Site: n}) {
					return false
				}
			}
		}
		return true
	})
	return reassigned, err
}

// between reports whether site runs after release and before point. A site
// sharing its parent statement with the release counts as after it.
func (a *Analyzer) between(site ast.Node, release *ast.CallExpr, releaseStmt ast.Stmt, point ast.Node) bool {
	if site == release || order.Of(a.prog, release, site) != order.Before {
		return false
	}
	switch order.Of(a.prog, site, point) {
	case order.Before:
		return true
	case order.Indeterminate:
		stmt := a.prog.EnclosingStmt(site)
		return stmt != nil && !a.prog.Contains(stmt, point) && releaseStmt != nil &&
			a.prog.Parent(stmt) == a.prog.Parent(releaseStmt)
	}
	return false
}

// closeReceiver returns x for a call x.Close().
func closeReceiver(call *ast.CallExpr) (ast.Expr, bool) {
	sel, ok := astutil.Unparen(call.Fun).(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Close" || len(call.Args) != 0 {
		return nil, false
	}
	return sel.X, true
}

func paramVar(p *program.Program, decl *ast.FuncDecl, index int) types.Object {
	i := 0
	for _, field := range decl.Type.Params.List {
		for _, name := range field.Names {
			if i == index {
				return p.ObjectOf(name)
			}
			i++
		}
		if len(field.Names) == 0 {
			i++
		}
	}
	return nil
}

// rhsAt returns the expression and tuple index assigned to lhs i.
func rhsAt(stmt *ast.AssignStmt, i int) (ast.Expr, int) {
	if len(stmt.Rhs) == 1 && len(stmt.Lhs) > 1 {
		return stmt.Rhs[0], i
	}
	if i < len(stmt.Rhs) {
		return stmt.Rhs[i], 0
	}
	return nil, 0
}

func calls(body *ast.BlockStmt) []*ast.CallExpr {
	var out []*ast.CallExpr
	ast.Inspect(body, func(n ast.Node) bool {
		if call, ok := n.(*ast.CallExpr); ok {
			out = append(out, call)
		}
		return true
	})
	return out
}
