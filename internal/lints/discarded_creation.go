package lints

import (
	"fmt"
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/gnolang/closelint/internal/analysis/program"
	tt "github.com/gnolang/closelint/internal/types"
)

const discardedCreationRule = "discarded-creation"

// DetectDiscardedCreation reports created resources nobody keeps a reference
// to: results of expression statements and values assigned to the blank
// identifier.
func DetectDiscardedCreation(rc *RuleContext, file *ast.File) ([]tt.Issue, error) {
	var issues []tt.Issue
	var err error
	report := func(e ast.Expr, index int) bool {
		var created bool
		created, err = rc.Disposal.IsCreationAt(rc.Ctx, e, index)
		if err != nil {
			return false
		}
		if created {
			issues = append(issues, rc.newIssue(discardedCreationRule, e,
				fmt.Sprintf("the resource created by %s is discarded and never closed", program.ExprString(e)),
				"Assign the result and close it when done."))
		}
		return true
	}

	ast.Inspect(file, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		switch n := n.(type) {
		case *ast.ExprStmt:
			call, ok := n.X.(*ast.CallExpr)
			if !ok {
				return true
			}
			for _, i := range rc.resourceResults(call) {
				if !report(call, i) {
					return false
				}
			}
		case *ast.AssignStmt:
			for i, lhs := range n.Lhs {
				if id, ok := lhs.(*ast.Ident); !ok || id.Name != "_" {
					continue
				}
				rhs, index := n.Rhs[0], i
				if len(n.Lhs) == len(n.Rhs) {
					rhs, index = n.Rhs[i], 0
				}
				if !isProducer(rhs) || !rc.resultIsResource(rhs, index) {
					continue
				}
				if !report(rhs, index) {
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

// resourceResults returns the result indexes of call with a closeable type.
func (rc *RuleContext) resourceResults(call *ast.CallExpr) []int {
	var out []int
	switch t := rc.Program.TypeOf(call).(type) {
	case *types.Tuple:
		for i := 0; i < t.Len(); i++ {
			if rc.Disposal.IsResourceType(t.At(i).Type()) {
				out = append(out, i)
			}
		}
	case nil:
	default:
		if rc.Disposal.IsResourceType(t) {
			out = append(out, 0)
		}
	}
	return out
}

func (rc *RuleContext) resultIsResource(e ast.Expr, index int) bool {
	if t, ok := rc.Program.TypeOf(e).(*types.Tuple); ok {
		return index < t.Len() && rc.Disposal.IsResourceType(t.At(index).Type())
	}
	return index == 0 && rc.isResource(e)
}

// isProducer reports whether e makes a value rather than naming one.
func isProducer(e ast.Expr) bool {
	switch e := astutil.Unparen(e).(type) {
	case *ast.CallExpr, *ast.CompositeLit:
		return true
	case *ast.UnaryExpr:
		_, ok := astutil.Unparen(e.X).(*ast.CompositeLit)
		return ok
	}
	return false
}
