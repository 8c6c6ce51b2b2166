package lints

import (
	"fmt"
	"go/ast"

	"github.com/gnolang/closelint/internal/analysis/program"
	"github.com/gnolang/closelint/internal/analysis/provenance"
	tt "github.com/gnolang/closelint/internal/types"
)

const returnCachedAndCreatedRule = "return-cached-and-created"

// DetectReturnCachedAndCreated reports functions returning a resource that
// is sometimes new and sometimes owned by someone else. Callers cannot know
// whether to close it.
func DetectReturnCachedAndCreated(rc *RuleContext, file *ast.File) ([]tt.Issue, error) {
	var issues []tt.Issue
	var err error
	functions(file, func(fn ast.Node) {
		if err != nil {
			return
		}
		results := rc.resultTypes(fn)
		for i := 0; i < results.Len(); i++ {
			if !rc.Disposal.IsResourceType(results.At(i).Type()) {
				continue
			}
			var set *provenance.Set
			set, err = rc.Disposal.Resolver().ReturnValuesAt(rc.Ctx, fn, i, provenance.RecursiveInside)
			if err != nil {
				return
			}
			if !rc.Disposal.IsAnyCreation(set) || !rc.Disposal.IsAnyCachedOrInjected(set) {
				continue
			}
			issues = append(issues, rc.newIssue(returnCachedAndCreatedRule, funcNameNode(fn),
				fmt.Sprintf("%s returns both new and cached resources", program.FuncName(fn)),
				"Return either values the caller owns or values it must not close, not both."))
		}
	})
	if err != nil {
		return nil, err
	}
	return issues, nil
}

func funcNameNode(fn ast.Node) ast.Node {
	if decl, ok := fn.(*ast.FuncDecl); ok {
		return decl.Name
	}
	return fn.(*ast.FuncLit).Type
}
