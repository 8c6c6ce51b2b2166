package program

import (
	"go/ast"
	"go/types"
	"strings"
)

// Directive is a set of ownership annotations attached to a declaration.
type Directive uint8

const (
	// Factory marks a function whose results are new resources owned by the caller.
	Factory Directive = 1 << iota
	// Borrowed marks a function, variable or field whose resources belong to someone else.
	Borrowed
)

const directivePrefix = "//closelint:"

func (d Directive) Has(flag Directive) bool {
	return d&flag != 0
}

func (d Directive) String() string {
	var parts []string
	if d.Has(Factory) {
		parts = append(parts, "factory")
	}
	if d.Has(Borrowed) {
		parts = append(parts, "borrowed")
	}
	return strings.Join(parts, ",")
}

// DirectiveOf returns the annotations declared on obj.
func (p *Program) DirectiveOf(obj types.Object) Directive {
	if fn, ok := obj.(*types.Func); ok {
		obj = fn.Origin()
	}
	return p.directives[obj]
}

func parseDirective(groups ...*ast.CommentGroup) Directive {
	var d Directive
	for _, cg := range groups {
		if cg == nil {
			continue
		}
		for _, c := range cg.List {
			text, ok := strings.CutPrefix(c.Text, directivePrefix)
			if !ok {
				continue
			}
			switch strings.TrimSpace(text) {
			case "factory":
				d |= Factory
			case "borrowed":
				d |= Borrowed
			}
		}
	}
	return d
}

func (p *Program) parseDirectives(obj types.Object, groups ...*ast.CommentGroup) {
	if d := parseDirective(groups...); d != 0 {
		p.directives[obj] |= d
	}
}

// parseSpecDirectives handles package variables and struct fields.
func (p *Program) parseSpecDirectives(decl *ast.GenDecl) {
	for _, spec := range decl.Specs {
		switch spec := spec.(type) {
		case *ast.ValueSpec:
			groups := []*ast.CommentGroup{spec.Doc, spec.Comment}
			if len(decl.Specs) == 1 {
				groups = append(groups, decl.Doc)
			}
			for _, name := range spec.Names {
				if obj := p.Info.Defs[name]; obj != nil {
					p.parseDirectives(obj, groups...)
				}
			}
		case *ast.TypeSpec:
			st, ok := spec.Type.(*ast.StructType)
			if !ok {
				continue
			}
			for _, field := range st.Fields.List {
				for _, name := range field.Names {
					if obj := p.Info.Defs[name]; obj != nil {
						p.parseDirectives(obj, field.Doc, field.Comment)
					}
				}
			}
		}
	}
}
