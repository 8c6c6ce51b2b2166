package lints

import (
	"context"
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/gnolang/closelint/internal/analysis/program"
	"github.com/gnolang/closelint/internal/disposable"
	tt "github.com/gnolang/closelint/internal/types"
)

// RuleContext carries what every disposal rule needs for one file.
type RuleContext struct {
	Ctx      context.Context
	Filename string
	Program  *program.Program
	Disposal *disposable.Analyzer
	Severity tt.Severity
}

// NewRuleContext prepares the context for one file of the program a analyzes.
func NewRuleContext(ctx context.Context, filename string, a *disposable.Analyzer, severity tt.Severity) *RuleContext {
	return &RuleContext{
		Ctx:      ctx,
		Filename: filename,
		Program:  a.Program(),
		Disposal: a,
		Severity: severity,
	}
}

func (rc *RuleContext) fset() *token.FileSet {
	return rc.Program.Fset
}

func (rc *RuleContext) newIssue(rule string, node ast.Node, message, suggestion string) tt.Issue {
	return tt.Issue{
		Rule:       rule,
		Category:   "resource",
		Filename:   rc.Filename,
		Message:    message,
		Suggestion: suggestion,
		Start:      rc.fset().Position(node.Pos()),
		End:        rc.fset().Position(node.End()),
		Severity:   rc.Severity,
	}
}

// isResource reports whether e has a closeable type.
func (rc *RuleContext) isResource(e ast.Expr) bool {
	return rc.Disposal.IsResourceType(rc.Program.TypeOf(e))
}

// localVar returns the variable an identifier expression refers to.
func (rc *RuleContext) localVar(e ast.Expr) (*types.Var, *ast.Ident) {
	id, ok := astutil.Unparen(e).(*ast.Ident)
	if !ok {
		return nil, nil
	}
	v, ok := rc.Program.ObjectOf(id).(*types.Var)
	if !ok || !rc.Program.IsLocal(v) {
		return nil, nil
	}
	return v, id
}

// resultTypes returns the result types of the function node fn.
func (rc *RuleContext) resultTypes(fn ast.Node) *types.Tuple {
	var t types.Type
	switch fn := fn.(type) {
	case *ast.FuncDecl:
		if obj := rc.Program.ObjectOf(fn.Name); obj != nil {
			t = obj.Type()
		}
	case *ast.FuncLit:
		t = rc.Program.TypeOf(fn)
	}
	sig, ok := t.(*types.Signature)
	if !ok {
		return types.NewTuple()
	}
	return sig.Results()
}

// closeReceiver returns x for a call x.Close().
func closeReceiver(call *ast.CallExpr) (ast.Expr, bool) {
	sel, ok := astutil.Unparen(call.Fun).(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Close" || len(call.Args) != 0 {
		return nil, false
	}
	return sel.X, true
}

// functions visits every function declaration and literal of file.
func functions(file *ast.File, visit func(fn ast.Node)) {
	ast.Inspect(file, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncDecl:
			if n.Body != nil {
				visit(n)
			}
		case *ast.FuncLit:
			visit(n)
		}
		return true
	})
}
