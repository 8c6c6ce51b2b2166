package lints

import (
	"fmt"
	"go/ast"

	"github.com/gnolang/closelint/internal/analysis/program"
	"github.com/gnolang/closelint/internal/disposable"
	tt "github.com/gnolang/closelint/internal/types"
)

const closeInjectedRule = "close-injected"

// DetectCloseInjected reports Close calls on values the function does not own.
// Package variables and borrowed values are never closed by their users.
// Parameters may be closed explicitly by release helpers, but deferring their
// Close ties the caller's value to this function's lifetime.
func DetectCloseInjected(rc *RuleContext, file *ast.File) ([]tt.Issue, error) {
	var issues []tt.Issue
	var err error
	ast.Inspect(file, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		var call *ast.CallExpr
		deferred := false
		switch n := n.(type) {
		case *ast.DeferStmt:
			call, deferred = n.Call, true
		case *ast.ExprStmt:
			call, _ = n.X.(*ast.CallExpr)
		case *ast.AssignStmt:
			if len(n.Rhs) == 1 {
				call, _ = n.Rhs[0].(*ast.CallExpr)
			}
		}
		if call == nil {
			return true
		}
		recv, ok := closeReceiver(call)
		if !ok || !rc.isResource(recv) {
			return true
		}
		var kind disposable.OriginKind
		kind, err = rc.injectedKind(recv)
		if err != nil {
			return false
		}
		if kind == disposable.OriginUnknown || (kind == disposable.OriginParameter && !deferred) {
			return true
		}
		issues = append(issues, rc.newIssue(closeInjectedRule, call,
			fmt.Sprintf("%s is closed here but it is a %s value owned elsewhere", program.ExprString(recv), kind),
			"Let the owner of the value close it."))
		return true
	})
	if err != nil {
		return nil, err
	}
	return issues, nil
}

// injectedKind returns the common kind when every origin of e is a
// parameter, a package variable or borrowed, and OriginUnknown otherwise.
func (rc *RuleContext) injectedKind(e ast.Expr) (disposable.OriginKind, error) {
	origins, err := rc.Disposal.Origins(rc.Ctx, e)
	if err != nil {
		return disposable.OriginUnknown, err
	}
	if len(origins) == 0 {
		return disposable.OriginUnknown, nil
	}
	kind := origins[0].Kind
	for _, o := range origins {
		switch o.Kind {
		case disposable.OriginParameter, disposable.OriginGlobal, disposable.OriginBorrowed:
		default:
			return disposable.OriginUnknown, nil
		}
		if o.Kind != kind {
			// mixed injected kinds still mean "not ours"
			kind = disposable.OriginBorrowed
		}
	}
	return kind, nil
}
