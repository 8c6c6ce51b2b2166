package lints

import (
	"fmt"
	"go/ast"
	"go/types"

	"github.com/gnolang/closelint/internal/analysis/program"
	tt "github.com/gnolang/closelint/internal/types"
)

const returnDisposedRule = "return-disposed"

// DetectReturnDisposed reports returned variables that are already closed, or
// that a deferred call closes as the function returns.
func DetectReturnDisposed(rc *RuleContext, file *ast.File) ([]tt.Issue, error) {
	var issues []tt.Issue
	var err error
	ast.Inspect(file, func(n ast.Node) bool {
		ret, ok := n.(*ast.ReturnStmt)
		if !ok || err != nil {
			return err == nil
		}
		for _, target := range rc.returnedVars(ret) {
			var issue *tt.Issue
			issue, err = rc.checkReturnedVar(ret, target)
			if err != nil {
				return false
			}
			if issue != nil {
				issues = append(issues, *issue)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return issues, nil
}

type returnedVar struct {
	v    *types.Var
	node ast.Node
}

// returnedVars lists the resource variables ret hands to the caller,
// including named results of a bare return.
func (rc *RuleContext) returnedVars(ret *ast.ReturnStmt) []returnedVar {
	var out []returnedVar
	if len(ret.Results) > 0 {
		for _, res := range ret.Results {
			if v, id := rc.localVar(res); v != nil && rc.isResource(id) {
				out = append(out, returnedVar{v: v, node: id})
			}
		}
		return out
	}
	ft := program.FuncType(rc.Program.EnclosingFunc(ret))
	if ft == nil || ft.Results == nil {
		return nil
	}
	for _, field := range ft.Results.List {
		for _, name := range field.Names {
			v, ok := rc.Program.ObjectOf(name).(*types.Var)
			if ok && rc.Disposal.IsResourceType(v.Type()) {
				out = append(out, returnedVar{v: v, node: ret})
			}
		}
	}
	return out
}

func (rc *RuleContext) checkReturnedVar(ret *ast.ReturnStmt, target returnedVar) (*tt.Issue, error) {
	disposed, err := rc.Disposal.IsDisposedBefore(rc.Ctx, target.v, ret)
	if err != nil {
		return nil, err
	}
	if disposed {
		issue := rc.newIssue(returnDisposedRule, target.node,
			fmt.Sprintf("%s is closed before it is returned", target.v.Name()),
			"Return the value before closing it, or do not return it at all.")
		return &issue, nil
	}
	if rc.Disposal.IsCloseDeferredBefore(target.v, ret) {
		issue := rc.newIssue(returnDisposedRule, target.node,
			fmt.Sprintf("%s is returned but a deferred call closes it when the function returns", target.v.Name()),
			"Remove the deferred Close, or close it only on the error path.")
		issue.Note = "The caller receives a closed value."
		return &issue, nil
	}
	return nil, nil
}
