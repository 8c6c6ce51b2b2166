// Package order approximates execution order between two syntax nodes
// of the same function using lexical structure only.
package order

import (
	"go/ast"
	"go/token"

	"github.com/gnolang/closelint/internal/analysis/program"
)

// Relation answers "does a execute before b".
type Relation int

const (
	Indeterminate Relation = iota
	Before
	After
)

func (r Relation) String() string {
	switch r {
	case Before:
		return "Before"
	case After:
		return "After"
	default:
		return "Indeterminate"
	}
}

// Invert swaps Before and After.
func (r Relation) Invert() Relation {
	switch r {
	case Before:
		return After
	case After:
		return Before
	}
	return Indeterminate
}

// Of relates a to b. After means a is not executed before b, either because
// it runs later or because control leaves before reaching b.
func Of(p *program.Program, a, b ast.Node) Relation {
	if a == nil || b == nil {
		return Indeterminate
	}
	if a == b {
		if inLoop(p, a) {
			return Indeterminate
		}
		return After
	}

	pa, pb := p.Path(a), p.Path(b)
	ia, ib := commonAncestor(pa, pb)
	if ia < 0 {
		return Indeterminate
	}
	lca := pa[ia]
	switch lca.(type) {
	case *ast.File, *ast.GenDecl:
		return Indeterminate
	}

	if isDetached(p, pa[:ia]) || isDetached(p, pb[:ib]) {
		return Indeterminate
	}

	da, db := deferredBy(pa[:ia]), deferredBy(pb[:ib])
	switch {
	case da != nil && db != nil:
		// deferred calls run last-in first-out
		return Of(p, da, db).Invert()
	case da != nil:
		if call := literalCall(p, da, b); call != nil {
			return Of(p, call, b)
		}
		return After
	case db != nil:
		if call := literalCall(p, db, a); call != nil {
			return Of(p, a, call)
		}
		return Before
	}

	switch {
	case ia == 0:
		// a contains b
		if completesAfterParts(a) {
			return loopAdjust(p, lca, nil, nil, After)
		}
		return Indeterminate
	case ib == 0:
		// b contains a
		return Before
	}

	r := siblingOrder(p, lca, pa[ia-1], pb[ib-1])
	switch r {
	case Before:
		if exitsEarly(p, pa[:ia]) {
			return After
		}
		return Before
	case After:
		return loopAdjust(p, lca, pa[ia-1], pb[ib-1], After)
	}
	return r
}

// commonAncestor returns the indexes of the lowest common ancestor in both paths.
func commonAncestor(pa, pb []ast.Node) (int, int) {
	index := make(map[ast.Node]int, len(pb))
	for i, n := range pb {
		index[n] = i
	}
	for i, n := range pa {
		if j, ok := index[n]; ok {
			return i, j
		}
	}
	return -1, -1
}

// isDetached reports whether the lower part of a path runs outside the
// normal flow: inside a goroutine or a function literal that is not
// invoked in place.
func isDetached(p *program.Program, below []ast.Node) bool {
	for i, n := range below {
		switch n := n.(type) {
		case *ast.GoStmt:
			if i > 0 && below[i-1] == n.Call {
				if i == 1 || isCallee(n.Call, below[i-2]) {
					return true
				}
			}
		case *ast.FuncLit:
			if !isInvokedInPlace(p, n) && !isDeferredCallee(p, n) {
				return true
			}
		}
	}
	return false
}

// deferredBy returns the defer statement whose call the lower part of a path
// belongs to. Arguments and the receiver are evaluated when the defer
// statement runs, so they are not deferred.
func deferredBy(below []ast.Node) *ast.DeferStmt {
	for i, n := range below {
		d, ok := n.(*ast.DeferStmt)
		if !ok || i == 0 || below[i-1] != d.Call {
			continue
		}
		if i == 1 {
			return d
		}
		if lit, ok := d.Call.Fun.(*ast.FuncLit); ok && below[i-2] == lit {
			return d
		}
	}
	return nil
}

// literalCall returns the in-place call of the function literal registering
// d when other lies outside that literal; the deferred call then runs when
// the call returns.
func literalCall(p *program.Program, d *ast.DeferStmt, other ast.Node) ast.Node {
	lit, ok := p.EnclosingFunc(d).(*ast.FuncLit)
	if !ok || p.Contains(lit, other) {
		return nil
	}
	if call, ok := p.Parent(lit).(*ast.CallExpr); ok && call.Fun == lit {
		return call
	}
	return nil
}

func isCallee(call *ast.CallExpr, n ast.Node) bool {
	return call.Fun == n
}

func isInvokedInPlace(p *program.Program, lit *ast.FuncLit) bool {
	call, ok := p.Parent(lit).(*ast.CallExpr)
	if !ok || call.Fun != lit {
		return false
	}
	switch p.Parent(call).(type) {
	case *ast.GoStmt, *ast.DeferStmt:
		return false
	}
	return true
}

func isDeferredCallee(p *program.Program, lit *ast.FuncLit) bool {
	call, ok := p.Parent(lit).(*ast.CallExpr)
	if !ok || call.Fun != lit {
		return false
	}
	_, ok = p.Parent(call).(*ast.DeferStmt)
	return ok
}

// completesAfterParts reports whether n finishes only after all its children ran.
func completesAfterParts(n ast.Node) bool {
	switch n.(type) {
	case *ast.CallExpr, *ast.AssignStmt, *ast.ExprStmt, *ast.ReturnStmt,
		*ast.DeclStmt, *ast.ValueSpec, *ast.SendStmt, *ast.IncDecStmt:
		return true
	}
	return false
}

// siblingOrder orders two distinct children of their lowest common ancestor.
func siblingOrder(p *program.Program, lca, ca, cb ast.Node) Relation {
	if isClauseList(p, lca) {
		return Indeterminate
	}
	sa, sb := slot(lca, ca), slot(lca, cb)
	if sa < 0 || sb < 0 {
		sa, sb = int(ca.Pos()), int(cb.Pos())
	}
	switch {
	case sa < sb:
		return Before
	case sa > sb:
		return After
	}
	return Indeterminate
}

// isClauseList reports whether n is the body of a switch or select, whose
// clauses are mutually exclusive.
func isClauseList(p *program.Program, n ast.Node) bool {
	if _, ok := n.(*ast.BlockStmt); !ok {
		return false
	}
	switch p.Parent(n).(type) {
	case *ast.SwitchStmt, *ast.TypeSwitchStmt, *ast.SelectStmt:
		return true
	}
	return false
}

// slot returns the evaluation slot of child within parent. Children sharing
// a slot are alternatives. -1 means "use source order".
func slot(parent, child ast.Node) int {
	switch parent := parent.(type) {
	case *ast.BlockStmt:
		return stmtIndex(parent.List, child)
	case *ast.CaseClause:
		for i, e := range parent.List {
			if e == child {
				return i
			}
		}
		if i := stmtIndex(parent.Body, child); i >= 0 {
			return len(parent.List) + i
		}
	case *ast.CommClause:
		if parent.Comm == child {
			return 0
		}
		if i := stmtIndex(parent.Body, child); i >= 0 {
			return 1 + i
		}
	case *ast.IfStmt:
		switch child {
		case parent.Init:
			return 0
		case parent.Cond:
			return 1
		case parent.Body, parent.Else:
			return 2
		}
	case *ast.SwitchStmt:
		switch child {
		case parent.Init:
			return 0
		case parent.Tag:
			return 1
		case parent.Body:
			return 2
		}
	case *ast.TypeSwitchStmt:
		switch child {
		case parent.Init:
			return 0
		case parent.Assign:
			return 1
		case parent.Body:
			return 2
		}
	case *ast.ForStmt:
		switch child {
		case parent.Init:
			return 0
		case parent.Cond:
			return 1
		case parent.Body:
			return 2
		case parent.Post:
			return 3
		}
	case *ast.RangeStmt:
		switch child {
		case parent.X:
			return 0
		case parent.Key:
			return 1
		case parent.Value:
			return 2
		case parent.Body:
			return 3
		}
	case *ast.AssignStmt:
		for i, e := range parent.Rhs {
			if e == child {
				return i
			}
		}
		for i, e := range parent.Lhs {
			if e == child {
				return len(parent.Rhs) + i
			}
		}
	case *ast.ValueSpec:
		for i, e := range parent.Values {
			if e == child {
				return i
			}
		}
		for i, e := range parent.Names {
			if e == child {
				return len(parent.Values) + i
			}
		}
	}
	return -1
}

func stmtIndex(list []ast.Stmt, n ast.Node) int {
	for i, s := range list {
		if s == n {
			return i
		}
	}
	return -1
}

// inLoop reports whether n is repeated by an enclosing loop of its function.
func inLoop(p *program.Program, n ast.Node) bool {
	child := n
	for parent := p.Parent(n); parent != nil; child, parent = parent, p.Parent(parent) {
		switch parent := parent.(type) {
		case *ast.FuncDecl, *ast.FuncLit:
			return false
		case *ast.ForStmt:
			if child != parent.Init {
				return true
			}
		case *ast.RangeStmt:
			if child != parent.X {
				return true
			}
		}
	}
	return false
}

// loopAdjust turns After into Indeterminate when a later iteration can run
// a before b again. ca and cb are the children of lca on each path, nil for
// containment.
func loopAdjust(p *program.Program, lca, ca, cb ast.Node, r Relation) Relation {
	switch lca := lca.(type) {
	case *ast.ForStmt:
		if ca != nil && cb != nil && ca != lca.Init && cb != lca.Init {
			return Indeterminate
		}
	case *ast.RangeStmt:
		if ca != nil && cb != nil && ca != lca.X && cb != lca.X {
			return Indeterminate
		}
	}
	if inLoop(p, lca) {
		return Indeterminate
	}
	return r
}

// exitsEarly reports whether the lower part of a path leaves its function
// before the enclosing branch completes: a is followed in a nested block by
// a return, a panic or a break out of the common ancestor, or a is part of
// a return.
func exitsEarly(p *program.Program, below []ast.Node) bool {
	start := 0
	for i, n := range below {
		if _, ok := n.(*ast.FuncLit); ok {
			// returning from a literal invoked in place resumes after the call
			start = i + 1
		}
	}
	for i := start; i < len(below); i++ {
		n := below[i]
		if _, ok := n.(*ast.ReturnStmt); ok {
			return true
		}
		if i+1 >= len(below) {
			// the top of the lower path is a direct child of the common
			// ancestor; its siblings are handled by ordering
			break
		}
		for _, s := range followingStmts(below[i+1], n) {
			if terminates(p, s, below) {
				return true
			}
		}
	}
	return false
}

func followingStmts(parent, child ast.Node) []ast.Stmt {
	var list []ast.Stmt
	switch parent := parent.(type) {
	case *ast.BlockStmt:
		list = parent.List
	case *ast.CaseClause:
		list = parent.Body
	case *ast.CommClause:
		list = parent.Body
	default:
		return nil
	}
	if i := stmtIndex(list, child); i >= 0 {
		return list[i+1:]
	}
	return nil
}

// terminates reports whether s leaves the region spanned by the common
// ancestor above below: a return, a panic, a goto, or a break out of a
// statement enclosing that ancestor.
func terminates(p *program.Program, s ast.Stmt, below []ast.Node) bool {
	switch s := s.(type) {
	case *ast.ReturnStmt:
		return true
	case *ast.ExprStmt:
		call, ok := s.X.(*ast.CallExpr)
		if !ok {
			return false
		}
		id, ok := call.Fun.(*ast.Ident)
		return ok && id.Name == "panic"
	case *ast.BranchStmt:
		switch s.Tok {
		case token.GOTO:
			return true
		case token.BREAK:
			target := breakTarget(p, s)
			if target == nil {
				return false
			}
			for _, n := range below {
				if n == target {
					return false
				}
			}
			return true
		}
	}
	return false
}

// breakTarget returns the statement a break leaves.
func breakTarget(p *program.Program, s *ast.BranchStmt) ast.Node {
	for n := p.Parent(s); n != nil; n = p.Parent(n) {
		switch n := n.(type) {
		case *ast.FuncDecl, *ast.FuncLit:
			return nil
		case *ast.LabeledStmt:
			if s.Label != nil && n.Label.Name == s.Label.Name {
				return n.Stmt
			}
		case *ast.ForStmt, *ast.RangeStmt, *ast.SwitchStmt, *ast.TypeSwitchStmt, *ast.SelectStmt:
			if s.Label == nil {
				return n
			}
		}
	}
	return nil
}
