package provenance

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/gnolang/closelint/internal/analysis/assign"
	"github.com/gnolang/closelint/internal/analysis/program"
)

// addReceive resolves <-ch through the values sent on ch.
func (w *walker) addReceive(recv *ast.UnaryExpr, index int) {
	if index != 0 || !w.addSends(recv.X) {
		w.values.Add(recv)
	}
}

// addSends resolves the values sent on the channel ch evaluates to and
// reports whether the channel could be traced to its senders.
func (w *walker) addSends(ch ast.Expr) bool {
	if w.q.cancelled() {
		return true
	}
	p := w.prog()
	switch c := astutil.Unparen(ch).(type) {
	case *ast.Ident:
		v, ok := p.ObjectOf(c).(*types.Var)
		if !ok || !p.IsLocal(v) {
			return false
		}
		if w.q.expanding[v] {
			return true
		}
		w.q.expanding[v] = true
		defer delete(w.q.expanding, v)

		found := w.addSendsOn(v)
		for _, val := range w.q.assigned(c) {
			call, ok := astutil.Unparen(val.Expr).(*ast.CallExpr)
			if !ok || val.Kind != assign.Direct {
				continue
			}
			if _, builtin := p.Callee(call).(*types.Builtin); builtin {
				continue
			}
			if w.addSends(call) {
				found = true
			}
		}
		return found
	case *ast.CallExpr:
		fns := w.callees(c)
		if len(fns) == 0 {
			return false
		}
		for _, fn := range fns {
			nw := w.nested(guardKey{node: c, scope: fn, index: awaitSlot}, func(nw *walker) {
				nw.returnedSends(fn)
			})
			w.merge(nw, c, fn)
		}
		return true
	}
	return false
}

// addSendsOn collects every send on v in its declaring function, goroutines included.
func (w *walker) addSendsOn(v *types.Var) bool {
	p := w.prog()
	body := program.FuncBody(p.DeclaringFunc(v))
	if body == nil {
		return false
	}
	found := false
	ast.Inspect(body, func(n ast.Node) bool {
		send, ok := n.(*ast.SendStmt)
		if !ok {
			return true
		}
		if id, ok := astutil.Unparen(send.Chan).(*ast.Ident); ok && p.ObjectOf(id) == v {
			w.add(send.Value, 0)
			found = true
		}
		return true
	})
	return found
}

// returnedSends resolves the values sent on the channels fn returns.
func (w *walker) returnedSends(fn ast.Node) {
	body := program.FuncBody(fn)
	if body == nil {
		return
	}
	ast.Inspect(body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.ReturnStmt:
			if len(n.Results) > 0 {
				w.addSends(n.Results[0])
			}
		}
		return true
	})
}
