package disposable

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/gnolang/closelint/internal/analysis/program"
)

// OriginKind says where an origin expression gets its value from.
type OriginKind int

const (
	OriginUnknown OriginKind = iota
	OriginCreated
	OriginField
	OriginGlobal
	OriginParameter
	OriginBorrowed
	OriginNop
)

var originNames = [...]string{
	OriginUnknown:   "unknown",
	OriginCreated:   "created",
	OriginField:     "field",
	OriginGlobal:    "global",
	OriginParameter: "parameter",
	OriginBorrowed:  "borrowed",
	OriginNop:       "nop",
}

func (k OriginKind) String() string {
	if int(k) < len(originNames) {
		return originNames[k]
	}
	return "unknown"
}

// IsCachedOrInjected reports whether values of this kind are owned by someone else.
func (k OriginKind) IsCachedOrInjected() bool {
	switch k {
	case OriginField, OriginGlobal, OriginParameter, OriginBorrowed:
		return true
	}
	return false
}

// Origin is one resolved origin expression.
type Origin struct {
	Expr ast.Expr
	Kind OriginKind
}

// builtinFactories lists standard library functions returning resources the
// caller must close.
var builtinFactories = map[string]bool{
	"os.Open":                  true,
	"os.Create":                true,
	"os.OpenFile":              true,
	"os.CreateTemp":            true,
	"os.NewFile":               true,
	"net.Dial":                 true,
	"net.DialTimeout":          true,
	"net.DialTCP":              true,
	"net.DialUDP":              true,
	"net.Listen":               true,
	"net.ListenPacket":         true,
	"net.ListenTCP":            true,
	"net.ListenUDP":            true,
	"database/sql.Open":        true,
	"compress/gzip.NewReader":  true,
	"compress/gzip.NewWriter":  true,
	"archive/zip.OpenReader":   true,
	"compress/zlib.NewReader":  true,
	"compress/zlib.NewWriter":  true,
	"compress/flate.NewWriter": true,
}

var (
	nopFuncs  = map[string]bool{"io.NopCloser": true}
	nopValues = map[string]bool{"net/http.NoBody": true}
)

// KindOf classifies a single origin expression.
func (a *Analyzer) KindOf(e ast.Expr) OriginKind {
	switch x := astutil.Unparen(e).(type) {
	case *ast.Ident:
		return a.objectKind(a.prog.ObjectOf(x))
	case *ast.SelectorExpr:
		if sel := a.prog.Info.Selections[x]; sel != nil {
			if sel.Kind() != types.FieldVal {
				return OriginUnknown
			}
			if a.isBorrowed(sel.Obj()) {
				return OriginBorrowed
			}
			return OriginField
		}
		return a.objectKind(a.prog.ObjectOf(x.Sel))
	case *ast.IndexExpr:
		if k := a.KindOf(x.X); k.IsCachedOrInjected() {
			return k
		}
	case *ast.StarExpr:
		if k := a.KindOf(x.X); k.IsCachedOrInjected() {
			return k
		}
	case *ast.UnaryExpr:
		if lit, ok := astutil.Unparen(x.X).(*ast.CompositeLit); ok && x.Op == token.AND {
			if a.IsResourceType(a.prog.TypeOf(x)) || a.IsResourceType(a.prog.TypeOf(lit)) {
				return OriginCreated
			}
		}
	case *ast.CompositeLit:
		if a.IsResourceType(a.prog.TypeOf(x)) {
			return OriginCreated
		}
	case *ast.CallExpr:
		return a.callKind(x)
	}
	return OriginUnknown
}

func (a *Analyzer) objectKind(obj types.Object) OriginKind {
	switch obj := obj.(type) {
	case *types.Nil:
		return OriginNop
	case *types.Var:
		if a.ignored.Contains(obj) {
			return OriginUnknown
		}
		if nopValues[program.QualifiedName(obj)] {
			return OriginNop
		}
		if a.isBorrowed(obj) {
			return OriginBorrowed
		}
		if a.prog.IsParam(obj) {
			return OriginParameter
		}
		if program.IsPackageVar(obj) {
			if a.hasNopInit(obj) {
				return OriginNop
			}
			return OriginGlobal
		}
	}
	return OriginUnknown
}

// hasNopInit reports whether a package variable is only ever set by its
// declaration, to a value that needs no closing.
func (a *Analyzer) hasNopInit(v *types.Var) bool {
	switch init := astutil.Unparen(a.prog.Initializer(v)).(type) {
	case *ast.CallExpr:
		return a.callKind(init) == OriginNop
	case *ast.Ident, *ast.SelectorExpr:
		switch obj := a.prog.Referent(init).(type) {
		case *types.Nil:
			return true
		case *types.Var:
			return nopValues[program.QualifiedName(obj)]
		}
	}
	return false
}

func (a *Analyzer) isBorrowed(obj types.Object) bool {
	return a.prog.DirectiveOf(obj).Has(program.Borrowed) || a.borrowed[program.QualifiedName(obj)]
}

func (a *Analyzer) callKind(call *ast.CallExpr) OriginKind {
	switch fn := a.prog.Callee(call).(type) {
	case *types.Builtin:
		if fn.Name() == "new" && a.IsResourceType(a.prog.TypeOf(call)) {
			return OriginCreated
		}
	case *types.Func:
		fn = fn.Origin()
		if a.ignored.Contains(fn) {
			return OriginUnknown
		}
		name := program.QualifiedName(fn)
		if nopFuncs[name] {
			return OriginNop
		}
		if a.isBorrowed(fn) {
			return OriginBorrowed
		}
		if !a.returnsResource(fn) {
			return OriginUnknown
		}
		if a.prog.DirectiveOf(fn).Has(program.Factory) || a.factories[name] || builtinFactories[name] {
			return OriginCreated
		}
		if a.prog.FuncDecl(fn) == nil && looksLikeConstructor(fn.Name()) {
			return OriginCreated
		}
	}
	return OriginUnknown
}
