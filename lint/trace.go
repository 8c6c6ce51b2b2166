package lint

import (
	"context"
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/packages"

	"github.com/gnolang/closelint/internal/analysis/program"
	"github.com/gnolang/closelint/internal/disposable"
)

// TraceOrigin is one value a traced result may hold.
type TraceOrigin struct {
	Expr     string         `json:"expr"`
	Kind     string         `json:"kind"`
	Position token.Position `json:"position"`
}

// TraceResult explains where one resource result of a function comes from.
type TraceResult struct {
	Func           string         `json:"func"`
	Position       token.Position `json:"position"`
	Result         int            `json:"result"`
	Type           string         `json:"type"`
	Classification string         `json:"classification"`
	Origins        []TraceOrigin  `json:"origins"`
}

// Trace resolves the resource results of every function named name, as
// printed by program.FuncName ("Open" or "Pool.Get").
func Trace(ctx context.Context, pkgs []*packages.Package, name string, opts ...disposable.Option) ([]TraceResult, error) {
	var results []TraceResult
	for _, pkg := range pkgs {
		p, err := program.FromPackage(pkg)
		if err != nil {
			return nil, err
		}
		a := disposable.New(p, opts...)
		for _, f := range p.Files {
			for _, decl := range f.Decls {
				fn, ok := decl.(*ast.FuncDecl)
				if !ok || fn.Body == nil || program.FuncName(fn) != name {
					continue
				}
				traced, err := traceFunc(ctx, a, fn)
				if err != nil {
					return nil, err
				}
				results = append(results, traced...)
			}
		}
	}
	return results, nil
}

func traceFunc(ctx context.Context, a *disposable.Analyzer, fn *ast.FuncDecl) ([]TraceResult, error) {
	p := a.Program()
	obj, ok := p.ObjectOf(fn.Name).(*types.Func)
	if !ok {
		return nil, nil
	}
	sig := obj.Type().(*types.Signature)

	var results []TraceResult
	for i := 0; i < sig.Results().Len(); i++ {
		typ := sig.Results().At(i).Type()
		if !a.IsResourceType(typ) {
			continue
		}
		origins, class, err := a.ReturnOrigins(ctx, fn, i)
		if err != nil {
			return nil, err
		}
		res := TraceResult{
			Func:           program.QualifiedName(obj),
			Position:       p.Position(fn.Name),
			Result:         i,
			Type:           types.TypeString(typ, types.RelativeTo(obj.Pkg())),
			Classification: class.String(),
		}
		for _, o := range origins {
			res.Origins = append(res.Origins, TraceOrigin{
				Expr:     program.ExprString(o.Expr),
				Kind:     o.Kind.String(),
				Position: p.Position(o.Expr),
			})
		}
		results = append(results, res)
	}
	return results, nil
}
