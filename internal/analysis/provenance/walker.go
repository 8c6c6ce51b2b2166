package provenance

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/gnolang/closelint/internal/analysis/assign"
	"github.com/gnolang/closelint/internal/analysis/program"
)

// walker accumulates origins for one expression, call or function body.
type walker struct {
	q      *query
	values *Set
}

func (w *walker) prog() *program.Program {
	return w.q.prog
}

// add resolves e (result index of a tuple) into w.values.
func (w *walker) add(e ast.Expr, index int) {
	if e == nil || w.q.cancelled() {
		return
	}
	e = astutil.Unparen(e)
	switch x := e.(type) {
	case *ast.Ident:
		w.addIdent(x)
	case *ast.CallExpr:
		w.addCall(x, index)
	case *ast.TypeAssertExpr:
		if index == 0 && x.Type != nil {
			w.add(x.X, 0)
			return
		}
		w.values.Add(x)
	case *ast.UnaryExpr:
		if x.Op == token.ARROW {
			w.addReceive(x, index)
			return
		}
		w.values.Add(x)
	default:
		w.values.Add(e)
	}
}

func (w *walker) addIdent(id *ast.Ident) {
	p := w.prog()
	v, ok := p.ObjectOf(id).(*types.Var)
	if !ok || !p.IsLocal(v) {
		w.values.Add(id)
		return
	}
	if w.q.expanding[v] {
		return
	}
	w.q.expanding[v] = true
	defer delete(w.q.expanding, v)

	values := w.q.assigned(id)
	if p.IsParam(v) || len(values) == 0 {
		// the incoming or zero value
		w.values.Add(id)
	}
	for _, val := range values {
		w.addAssigned(val)
	}
}

func (w *walker) addAssigned(val assign.Value) {
	switch val.Kind {
	case assign.Direct, assign.Compound:
		w.add(val.Expr, val.Index)
	case assign.Element:
		w.addElement(val.Expr, val.Index)
	case assign.PointerWrite:
		w.addPointerWrite(val.Expr.(*ast.CallExpr), val.Index)
	}
}

// addElement resolves the key (index 0) or value (index 1) of ranging over container.
func (w *walker) addElement(container ast.Expr, index int) {
	p := w.prog()
	if t := p.TypeOf(container); t != nil {
		if _, ok := t.Underlying().(*types.Chan); ok {
			if !w.addSends(container) {
				w.values.Add(container)
			}
			return
		}
	}
	found := false
	switch c := astutil.Unparen(container).(type) {
	case *ast.CompositeLit:
		for _, elt := range c.Elts {
			if kv, ok := elt.(*ast.KeyValueExpr); ok {
				if index == 0 {
					w.add(kv.Key, 0)
				} else {
					w.add(kv.Value, 0)
				}
				found = true
				continue
			}
			if index == 1 {
				w.add(elt, 0)
				found = true
			}
		}
	case *ast.Ident:
		v, ok := p.ObjectOf(c).(*types.Var)
		if !ok || !p.IsLocal(v) || w.q.expanding[v] {
			break
		}
		w.q.expanding[v] = true
		for _, val := range w.q.assigned(c) {
			if val.Kind == assign.Direct {
				if _, ok := astutil.Unparen(val.Expr).(*ast.CompositeLit); ok {
					w.addElement(val.Expr, index)
					found = true
				}
			}
		}
		delete(w.q.expanding, v)
	}
	if !found {
		w.values.Add(container)
	}
}

func (w *walker) addCall(call *ast.CallExpr, index int) {
	p := w.prog()
	if p.IsConversion(call) {
		if len(call.Args) == 1 {
			w.add(call.Args[0], 0)
		} else {
			w.values.Add(call)
		}
		return
	}
	callee := p.Callee(call)
	if _, ok := callee.(*types.Builtin); ok {
		w.values.Add(call)
		return
	}
	if program.IsPkgFunc(callee, "cmp", "Or") {
		// the first non-zero operand wins, any of them may
		for _, arg := range call.Args {
			w.add(arg, 0)
		}
		return
	}
	if w.q.leaf != nil && w.q.leaf(call) {
		w.values.Add(call)
		return
	}
	fns := w.callees(call)
	if len(fns) == 0 {
		w.values.Add(call)
		return
	}
	for _, fn := range fns {
		nw := w.nested(guardKey{node: call, scope: fn, index: index}, func(nw *walker) {
			nw.returns(fn, index)
		})
		w.merge(nw, call, fn)
	}
}

// callees returns the bodies a call may run: a declared function or method,
// a literal invoked in place, or literals assigned to a local variable.
func (w *walker) callees(call *ast.CallExpr) []ast.Node {
	p := w.prog()
	if lit, ok := astutil.Unparen(call.Fun).(*ast.FuncLit); ok {
		return []ast.Node{lit}
	}
	switch obj := p.Callee(call).(type) {
	case *types.Func:
		if decl := p.FuncDecl(obj); decl != nil {
			return []ast.Node{decl}
		}
	case *types.Var:
		id, ok := astutil.Unparen(call.Fun).(*ast.Ident)
		if !ok || !p.IsLocal(obj) {
			return nil
		}
		var fns []ast.Node
		for _, val := range w.q.assigned(id) {
			if lit, ok := astutil.Unparen(val.Expr).(*ast.FuncLit); ok && val.Kind == assign.Direct {
				fns = append(fns, lit)
			}
		}
		return fns
	}
	return nil
}

// nested returns the walker registered for key, creating and filling it on
// first use. A walker still being filled is returned as is.
func (w *walker) nested(key guardKey, fill func(*walker)) *walker {
	if nw, ok := w.q.guard[key]; ok {
		return nw
	}
	nw := w.q.walker()
	w.q.guard[key] = nw
	fill(nw)
	return nw
}

// returns resolves the return expressions of fn without entering nested literals.
func (w *walker) returns(fn ast.Node, index int) {
	body := program.FuncBody(fn)
	if body == nil {
		return
	}
	results := program.FuncType(fn).Results.NumFields()
	ast.Inspect(body, func(n ast.Node) bool {
		if w.q.err != nil {
			return false
		}
		switch n := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.ReturnStmt:
			switch {
			case len(n.Results) == 0:
				w.addNamedResult(fn, index, n)
			case len(n.Results) == 1 && results > 1:
				w.add(n.Results[0], index)
			case index < len(n.Results):
				w.add(n.Results[index], 0)
			}
		}
		return true
	})
}

func (w *walker) addNamedResult(fn ast.Node, index int, ret *ast.ReturnStmt) {
	v := resultVar(w.prog(), fn, index)
	if v == nil || w.q.expanding[v] {
		return
	}
	w.q.expanding[v] = true
	defer delete(w.q.expanding, v)
	for _, val := range assign.ResolveObject(w.prog(), v, ret) {
		w.addAssigned(val)
	}
}

func resultVar(p *program.Program, fn ast.Node, index int) *types.Var {
	results := program.FuncType(fn).Results
	if results == nil {
		return nil
	}
	i := 0
	for _, field := range results.List {
		for _, name := range field.Names {
			if i == index {
				v, _ := p.Info.Defs[name].(*types.Var)
				return v
			}
			i++
		}
		if len(field.Names) == 0 {
			i++
		}
	}
	return nil
}

// addPointerWrite resolves the values a callee stores through its parameter
// at argument arg.
func (w *walker) addPointerWrite(call *ast.CallExpr, arg int) {
	fns := w.callees(call)
	if len(fns) == 0 {
		w.values.Add(call)
		return
	}
	for _, fn := range fns {
		nw := w.nested(guardKey{node: call, scope: fn, index: pointerSlot(arg)}, func(nw *walker) {
			nw.pointerWrites(fn, arg)
		})
		w.merge(nw, call, fn)
	}
}

func (w *walker) pointerWrites(fn ast.Node, param int) {
	p := w.prog()
	body := program.FuncBody(fn)
	if body == nil {
		return
	}
	ast.Inspect(body, func(n ast.Node) bool {
		stmt, ok := n.(*ast.AssignStmt)
		if !ok || len(stmt.Lhs) != len(stmt.Rhs) {
			return true
		}
		for i, lhs := range stmt.Lhs {
			star, ok := astutil.Unparen(lhs).(*ast.StarExpr)
			if !ok {
				continue
			}
			id, ok := astutil.Unparen(star.X).(*ast.Ident)
			if !ok {
				continue
			}
			v, ok := p.ObjectOf(id).(*types.Var)
			if !ok {
				continue
			}
			if owner, ok := p.OwnerOf(v); ok && owner.Func == fn && owner.Kind == program.Param && owner.Index == param {
				w.add(stmt.Rhs[i], 0)
			}
		}
		return true
	})
}

// merge copies the origins of a callee walker into w. Parameters and the
// receiver of the callee are replaced by the call's arguments in
// RecursiveInside mode and dropped otherwise; they never leak to the caller.
// A getter has no arguments, so only its receiver can be substituted.
func (w *walker) merge(nw *walker, call *ast.CallExpr, fn ast.Node) {
	for _, v := range nw.values.Items() {
		if id, ok := v.(*ast.Ident); ok {
			if owner, ok := w.placeholder(id, fn); ok {
				if w.q.mode == RecursiveInside {
					w.substitute(call, fn, owner)
				}
				continue
			}
		}
		w.values.Add(v)
	}
}

func (w *walker) placeholder(id *ast.Ident, fn ast.Node) (program.Owner, bool) {
	v, ok := w.prog().ObjectOf(id).(*types.Var)
	if !ok {
		return program.Owner{}, false
	}
	owner, ok := w.prog().OwnerOf(v)
	if !ok || owner.Func != fn || owner.Kind == program.Result {
		return program.Owner{}, false
	}
	return owner, true
}

// substitute adds the argument bound to a callee parameter.
func (w *walker) substitute(call *ast.CallExpr, fn ast.Node, owner program.Owner) {
	if owner.Kind == program.Receiver {
		if sel, ok := astutil.Unparen(call.Fun).(*ast.SelectorExpr); ok {
			w.add(sel.X, 0)
		}
		return
	}
	params, variadic := signature(w.prog(), fn)
	args := call.Args
	switch {
	case len(args) == 1 && params > 1:
		// f(g()) spreads a tuple over the parameters
		w.add(args[0], owner.Index)
	case variadic && owner.Index == params-1 && !call.Ellipsis.IsValid():
		for _, arg := range args[min(owner.Index, len(args)):] {
			w.add(arg, 0)
		}
	case owner.Index < len(args):
		w.add(args[owner.Index], 0)
	}
}

func signature(p *program.Program, fn ast.Node) (params int, variadic bool) {
	var t types.Type
	switch fn := fn.(type) {
	case *ast.FuncDecl:
		if obj := p.Info.Defs[fn.Name]; obj != nil {
			t = obj.Type()
		}
	case *ast.FuncLit:
		t = p.TypeOf(fn)
	}
	sig, ok := t.(*types.Signature)
	if !ok {
		return program.FuncType(fn).Params.NumFields(), false
	}
	return sig.Params().Len(), sig.Variadic()
}
