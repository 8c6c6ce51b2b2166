package program

import (
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"strings"

	"golang.org/x/tools/go/ast/astutil"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/types/typeutil"
)

// Program is a read-only view over one type-checked package.
// It answers the structural questions the analyses need: parents,
// declarations behind a callee, owners of parameters.
type Program struct {
	Fset  *token.FileSet
	Files []*ast.File
	Pkg   *types.Package
	Info  *types.Info

	parents    map[ast.Node]ast.Node
	decls      map[*types.Func]*ast.FuncDecl
	defs       map[types.Object]*ast.Ident
	owners     map[*types.Var]Owner
	implicits  map[types.Object]*ast.TypeSwitchStmt
	directives map[types.Object]Directive
	inits      map[*types.Var]ast.Expr
	rebound    map[*types.Var]bool
}

// VarKind says how a variable is bound to its function.
type VarKind int

const (
	Param VarKind = iota
	Receiver
	Result
)

// Owner describes the function a parameter, receiver or named result belongs to.
type Owner struct {
	Func  ast.Node // *ast.FuncDecl or *ast.FuncLit
	Kind  VarKind
	Index int
}

// New indexes the given type-checked files.
func New(fset *token.FileSet, files []*ast.File, pkg *types.Package, info *types.Info) *Program {
	p := &Program{
		Fset:       fset,
		Files:      files,
		Pkg:        pkg,
		Info:       info,
		parents:    make(map[ast.Node]ast.Node),
		decls:      make(map[*types.Func]*ast.FuncDecl),
		defs:       make(map[types.Object]*ast.Ident, len(info.Defs)),
		owners:     make(map[*types.Var]Owner),
		implicits:  make(map[types.Object]*ast.TypeSwitchStmt),
		directives: make(map[types.Object]Directive),
		inits:      make(map[*types.Var]ast.Expr),
		rebound:    make(map[*types.Var]bool),
	}
	for id, obj := range info.Defs {
		if obj != nil {
			p.defs[obj] = id
		}
	}
	for _, f := range files {
		p.index(f)
	}
	return p
}

// FromPackage wraps a package loaded with syntax and type information.
func FromPackage(pkg *packages.Package) (*Program, error) {
	if pkg.TypesInfo == nil || pkg.Types == nil {
		return nil, fmt.Errorf("package %s has no type information", pkg.PkgPath)
	}
	return New(pkg.Fset, pkg.Syntax, pkg.Types, pkg.TypesInfo), nil
}

// FromSource parses and type-checks a single file. Type errors are
// tolerated; the analyses degrade to opaque leaves where information is missing.
func FromSource(filename, src string) (*Program, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", filename, err)
	}
	return Check(fset, []*ast.File{f})
}

// Check type-checks already parsed files of one package.
func Check(fset *token.FileSet, files []*ast.File) (*Program, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to check")
	}
	info := NewInfo()
	conf := types.Config{
		Importer: importer.Default(),
		Error:    func(error) {},
	}
	// errors are ignored since the analyses are best-effort
	pkg, _ := conf.Check(files[0].Name.Name, fset, files, info)
	return New(fset, files, pkg, info), nil
}

// NewInfo returns a types.Info with every map the analyses read.
func NewInfo() *types.Info {
	return &types.Info{
		Types:      make(map[ast.Expr]types.TypeAndValue),
		Defs:       make(map[*ast.Ident]types.Object),
		Uses:       make(map[*ast.Ident]types.Object),
		Implicits:  make(map[ast.Node]types.Object),
		Selections: make(map[*ast.SelectorExpr]*types.Selection),
		Scopes:     make(map[ast.Node]*types.Scope),
	}
}

func (p *Program) index(f *ast.File) {
	var stack []ast.Node
	ast.Inspect(f, func(n ast.Node) bool {
		if n == nil {
			stack = stack[:len(stack)-1]
			return true
		}
		if len(stack) > 0 {
			p.parents[n] = stack[len(stack)-1]
		}
		stack = append(stack, n)

		switch n := n.(type) {
		case *ast.FuncDecl:
			if fn, ok := p.Info.Defs[n.Name].(*types.Func); ok {
				p.decls[fn] = n
				p.parseDirectives(fn, n.Doc)
			}
			if n.Recv != nil {
				p.bind(n, n.Recv, Receiver)
			}
			p.bind(n, n.Type.Params, Param)
			p.bind(n, n.Type.Results, Result)
		case *ast.FuncLit:
			p.bind(n, n.Type.Params, Param)
			p.bind(n, n.Type.Results, Result)
		case *ast.TypeSwitchStmt:
			for _, stmt := range n.Body.List {
				if obj := p.Info.Implicits[stmt]; obj != nil {
					p.implicits[obj] = n
				}
			}
		case *ast.GenDecl:
			p.parseSpecDirectives(n)
		case *ast.ValueSpec:
			if len(n.Values) != len(n.Names) {
				break
			}
			for i, name := range n.Names {
				if v, ok := p.Info.Defs[name].(*types.Var); ok && IsPackageVar(v) {
					p.inits[v] = n.Values[i]
				}
			}
		case *ast.AssignStmt:
			for _, lhs := range n.Lhs {
				p.markRebound(lhs)
			}
		case *ast.UnaryExpr:
			if n.Op == token.AND {
				p.markRebound(n.X)
			}
		}
		return true
	})
}

func (p *Program) markRebound(e ast.Expr) {
	id, ok := astutil.Unparen(e).(*ast.Ident)
	if !ok {
		if sel, ok := astutil.Unparen(e).(*ast.SelectorExpr); ok && p.Info.Selections[sel] == nil {
			id = sel.Sel
		}
	}
	if id == nil {
		return
	}
	if v, ok := p.Info.Uses[id].(*types.Var); ok && IsPackageVar(v) {
		p.rebound[v] = true
	}
}

func (p *Program) bind(fn ast.Node, fields *ast.FieldList, kind VarKind) {
	if fields == nil {
		return
	}
	i := 0
	for _, field := range fields.List {
		if len(field.Names) == 0 {
			i++
			continue
		}
		for _, name := range field.Names {
			if v, ok := p.Info.Defs[name].(*types.Var); ok {
				p.owners[v] = Owner{Func: fn, Kind: kind, Index: i}
			}
			i++
		}
	}
}

// Parent returns the syntactic parent of n, or nil for a file or an unknown node.
func (p *Program) Parent(n ast.Node) ast.Node {
	return p.parents[n]
}

// Path returns n followed by its ancestors up to the file.
func (p *Program) Path(n ast.Node) []ast.Node {
	var path []ast.Node
	for ; n != nil; n = p.parents[n] {
		path = append(path, n)
	}
	return path
}

// EnclosingFunc returns the innermost *ast.FuncDecl or *ast.FuncLit strictly containing n.
func (p *Program) EnclosingFunc(n ast.Node) ast.Node {
	for n = p.parents[n]; n != nil; n = p.parents[n] {
		switch n.(type) {
		case *ast.FuncDecl, *ast.FuncLit:
			return n
		}
	}
	return nil
}

// EnclosingStmt returns the innermost statement containing n, n included.
func (p *Program) EnclosingStmt(n ast.Node) ast.Stmt {
	for ; n != nil; n = p.parents[n] {
		if stmt, ok := n.(ast.Stmt); ok {
			return stmt
		}
	}
	return nil
}

// Contains reports whether inner is outer or one of its descendants.
func (p *Program) Contains(outer, inner ast.Node) bool {
	for n := inner; n != nil; n = p.parents[n] {
		if n == outer {
			return true
		}
	}
	return false
}

// ObjectOf resolves an identifier, nil when the checker could not.
func (p *Program) ObjectOf(id *ast.Ident) types.Object {
	if id == nil {
		return nil
	}
	return p.Info.ObjectOf(id)
}

// Referent returns the variable or field an expression names, if any.
func (p *Program) Referent(e ast.Expr) types.Object {
	switch e := astutil.Unparen(e).(type) {
	case *ast.Ident:
		return p.ObjectOf(e)
	case *ast.SelectorExpr:
		if sel := p.Info.Selections[e]; sel != nil {
			if sel.Kind() == types.FieldVal {
				return sel.Obj()
			}
			return nil
		}
		// qualified identifier
		return p.ObjectOf(e.Sel)
	}
	return nil
}

// TypeOf returns the type of e, nil when unknown.
func (p *Program) TypeOf(e ast.Expr) types.Type {
	return p.Info.TypeOf(e)
}

// Callee returns the named target of a call: a function, method, builtin or variable.
func (p *Program) Callee(call *ast.CallExpr) types.Object {
	return typeutil.Callee(p.Info, call)
}

// IsConversion reports whether call is a type conversion.
func (p *Program) IsConversion(call *ast.CallExpr) bool {
	tv, ok := p.Info.Types[call.Fun]
	return ok && tv.IsType()
}

// FuncDecl returns the declaration of fn in this program, nil for functions
// declared elsewhere or without a body.
func (p *Program) FuncDecl(fn *types.Func) *ast.FuncDecl {
	if fn == nil {
		return nil
	}
	decl := p.decls[fn.Origin()]
	if decl == nil || decl.Body == nil {
		return nil
	}
	return decl
}

// Def returns the identifier declaring obj in this program.
func (p *Program) Def(obj types.Object) *ast.Ident {
	return p.defs[obj]
}

// Initializer returns the expression a package variable is declared with.
// It returns nil when the variable has no initializer or some code in the
// program assigns it again or takes its address.
func (p *Program) Initializer(v *types.Var) ast.Expr {
	if p.rebound[v] {
		return nil
	}
	return p.inits[v]
}

// OwnerOf reports the function a parameter, receiver or named result belongs to.
func (p *Program) OwnerOf(v *types.Var) (Owner, bool) {
	o, ok := p.owners[v]
	return o, ok
}

// IsParam reports whether v is a parameter or receiver of some function.
func (p *Program) IsParam(v *types.Var) bool {
	o, ok := p.owners[v]
	return ok && (o.Kind == Param || o.Kind == Receiver)
}

// TypeSwitchOf returns the type switch declaring an implicit clause variable.
func (p *Program) TypeSwitchOf(obj types.Object) *ast.TypeSwitchStmt {
	return p.implicits[obj]
}

// IsLocal reports whether obj is a variable local to a function of this program.
func (p *Program) IsLocal(obj types.Object) bool {
	v, ok := obj.(*types.Var)
	if !ok || v.IsField() || v.Pkg() == nil || v.Pkg() != p.Pkg {
		return false
	}
	if v.Parent() == nil {
		// parameters of function types in signatures have no scope
		_, owned := p.owners[v]
		return owned
	}
	return v.Parent() != p.Pkg.Scope()
}

// IsPackageVar reports whether obj is a package-level variable.
func IsPackageVar(obj types.Object) bool {
	v, ok := obj.(*types.Var)
	if !ok || v.IsField() || v.Pkg() == nil {
		return false
	}
	return v.Parent() == v.Pkg().Scope()
}

// DeclaringFunc returns the function whose body (or signature) declares obj.
func (p *Program) DeclaringFunc(obj types.Object) ast.Node {
	if v, ok := obj.(*types.Var); ok {
		if o, ok := p.owners[v]; ok {
			return o.Func
		}
	}
	if ts := p.implicits[obj]; ts != nil {
		return p.EnclosingFunc(ts)
	}
	if id := p.defs[obj]; id != nil {
		return p.EnclosingFunc(id)
	}
	return nil
}

// Position returns the position of n.
func (p *Program) Position(n ast.Node) token.Position {
	return p.Fset.Position(n.Pos())
}

// FuncBody returns the body of a *ast.FuncDecl or *ast.FuncLit.
func FuncBody(fn ast.Node) *ast.BlockStmt {
	switch fn := fn.(type) {
	case *ast.FuncDecl:
		return fn.Body
	case *ast.FuncLit:
		return fn.Body
	}
	return nil
}

// FuncType returns the signature syntax of a *ast.FuncDecl or *ast.FuncLit.
func FuncType(fn ast.Node) *ast.FuncType {
	switch fn := fn.(type) {
	case *ast.FuncDecl:
		return fn.Type
	case *ast.FuncLit:
		return fn.Type
	}
	return nil
}

// FuncName names a function node for messages.
func FuncName(fn ast.Node) string {
	switch fn := fn.(type) {
	case *ast.FuncDecl:
		if fn.Recv != nil && len(fn.Recv.List) > 0 {
			return recvTypeName(fn.Recv.List[0].Type) + "." + fn.Name.Name
		}
		return fn.Name.Name
	case *ast.FuncLit:
		return "func literal"
	}
	return ""
}

func recvTypeName(e ast.Expr) string {
	switch e := e.(type) {
	case *ast.StarExpr:
		return recvTypeName(e.X)
	case *ast.IndexExpr:
		return recvTypeName(e.X)
	case *ast.IndexListExpr:
		return recvTypeName(e.X)
	case *ast.Ident:
		return e.Name
	}
	return "?"
}

// QualifiedName returns the key used by configuration and ignore lists:
// "importpath.Name" for package members and "importpath.Type.Member" for methods.
func QualifiedName(obj types.Object) string {
	if obj == nil || obj.Pkg() == nil {
		return ""
	}
	if fn, ok := obj.(*types.Func); ok {
		if recv := fn.Type().(*types.Signature).Recv(); recv != nil {
			t := recv.Type()
			if ptr, ok := t.(*types.Pointer); ok {
				t = ptr.Elem()
			}
			if named, ok := t.(*types.Named); ok {
				return obj.Pkg().Path() + "." + named.Obj().Name() + "." + obj.Name()
			}
			return ""
		}
	}
	return obj.Pkg().Path() + "." + obj.Name()
}

// TypeName returns the qualified name of a named type, after dereferencing pointers.
func TypeName(t types.Type) string {
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	named, ok := t.(*types.Named)
	if !ok || named.Obj().Pkg() == nil {
		return ""
	}
	return named.Obj().Pkg().Path() + "." + named.Obj().Name()
}

// IsPkgFunc reports whether obj is the package-level function path.name.
func IsPkgFunc(obj types.Object, path, name string) bool {
	fn, ok := obj.(*types.Func)
	if !ok || fn.Pkg() == nil || fn.Name() != name {
		return false
	}
	return fn.Pkg().Path() == path && fn.Type().(*types.Signature).Recv() == nil
}

// ExprString renders e compactly for messages.
func ExprString(e ast.Expr) string {
	s := types.ExprString(e)
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return strings.TrimSpace(s)
}
