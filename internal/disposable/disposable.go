// Package disposable classifies values of closeable types by who owns them.
//
// It builds on the provenance resolver: an expression is a creation when all
// of its origins are freshly created resources, cached or injected when some
// origin is a field, a package variable, a parameter or a borrowed call, and
// a no-op when nothing needs closing at all.
package disposable

import (
	"context"
	"go/ast"
	"go/types"
	"strings"
	"sync"

	"golang.org/x/tools/go/ast/astutil"
	"golang.org/x/tools/go/types/typeutil"

	"github.com/gnolang/closelint/internal/analysis/assign"
	"github.com/gnolang/closelint/internal/analysis/order"
	"github.com/gnolang/closelint/internal/analysis/program"
	"github.com/gnolang/closelint/internal/analysis/provenance"
	"github.com/gnolang/closelint/internal/ignore"
)

// Classification is the ownership verdict for one expression.
type Classification int

const (
	Unknown Classification = iota
	Created
	CachedOrInjected
	Nop
)

func (c Classification) String() string {
	switch c {
	case Created:
		return "created"
	case CachedOrInjected:
		return "cached-or-injected"
	case Nop:
		return "nop"
	default:
		return "unknown"
	}
}

// Analyzer answers disposal questions about one program.
// It is safe for concurrent use once constructed.
type Analyzer struct {
	prog      *program.Program
	resolver  *provenance.Resolver
	ignored   *ignore.List
	factories map[string]bool
	borrowed  map[string]bool
	mu        sync.Mutex
	msets     typeutil.MethodSetCache
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithIgnoreList skips the listed functions, variables and types.
func WithIgnoreList(l *ignore.List) Option {
	return func(a *Analyzer) {
		a.ignored = l
	}
}

// WithFactories registers qualified function names returning owned resources.
func WithFactories(names ...string) Option {
	return func(a *Analyzer) {
		for _, name := range names {
			a.factories[name] = true
		}
	}
}

// WithBorrowed registers qualified names whose resources belong to someone else.
func WithBorrowed(names ...string) Option {
	return func(a *Analyzer) {
		for _, name := range names {
			a.borrowed[name] = true
		}
	}
}

func New(p *program.Program, opts ...Option) *Analyzer {
	a := &Analyzer{
		prog:      p,
		factories: make(map[string]bool),
		borrowed:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.resolver = provenance.NewResolver(p, provenance.WithLeaf(a.isAnnotatedCall))
	return a
}

func (a *Analyzer) Program() *program.Program {
	return a.prog
}

func (a *Analyzer) Resolver() *provenance.Resolver {
	return a.resolver
}

// isAnnotatedCall stops provenance at calls whose ownership is declared
// rather than inferred from the callee body.
func (a *Analyzer) isAnnotatedCall(call *ast.CallExpr) bool {
	fn, ok := a.prog.Callee(call).(*types.Func)
	if !ok {
		return false
	}
	if a.ignored.Contains(fn) {
		return true
	}
	name := program.QualifiedName(fn.Origin())
	if a.factories[name] || a.borrowed[name] || builtinFactories[name] {
		return true
	}
	return a.prog.DirectiveOf(fn) != 0
}

// IsResourceType reports whether values of t must be closed: the method set of
// t or *t has Close() with no parameters. Ignored types are never resources.
func (a *Analyzer) IsResourceType(t types.Type) bool {
	if t == nil {
		return false
	}
	if _, ok := t.(*types.Tuple); ok {
		return false
	}
	if basic, ok := t.Underlying().(*types.Basic); ok && basic.Kind() == types.UntypedNil {
		return false
	}
	if a.ignored.ContainsType(t) {
		return false
	}
	if a.hasClose(t) {
		return true
	}
	if _, ok := t.(*types.Pointer); ok || types.IsInterface(t) {
		return false
	}
	return a.hasClose(types.NewPointer(t))
}

func (a *Analyzer) hasClose(t types.Type) bool {
	// MethodSetCache is not safe for concurrent use
	a.mu.Lock()
	sel := a.msets.MethodSet(t).Lookup(nil, "Close")
	a.mu.Unlock()
	if sel == nil {
		return false
	}
	fn, ok := sel.Obj().(*types.Func)
	if !ok {
		return false
	}
	sig := fn.Type().(*types.Signature)
	return sig.Params().Len() == 0 && sig.Results().Len() <= 1
}

// returnsResource reports whether some result of fn is a resource type.
func (a *Analyzer) returnsResource(fn *types.Func) bool {
	results := fn.Type().(*types.Signature).Results()
	for i := 0; i < results.Len(); i++ {
		if a.IsResourceType(results.At(i).Type()) {
			return true
		}
	}
	return false
}

// Origins resolves e and pairs each origin with its kind.
func (a *Analyzer) Origins(ctx context.Context, e ast.Expr) ([]Origin, error) {
	return a.OriginsAt(ctx, e, 0)
}

// OriginsAt is Origins for result index of a tuple-valued expression.
func (a *Analyzer) OriginsAt(ctx context.Context, e ast.Expr, index int) ([]Origin, error) {
	set, err := a.resolver.ResolveResult(ctx, e, index, provenance.RecursiveInside)
	if err != nil {
		return nil, err
	}
	return a.origins(set), nil
}

func (a *Analyzer) origins(set *provenance.Set) []Origin {
	out := make([]Origin, 0, set.Len())
	for _, e := range set.Items() {
		out = append(out, Origin{Expr: e, Kind: a.KindOf(e)})
	}
	return out
}

// IsCreation reports whether e evaluates to a resource the caller owns.
func (a *Analyzer) IsCreation(ctx context.Context, e ast.Expr) (bool, error) {
	return a.IsCreationAt(ctx, e, 0)
}

// IsCreationAt is IsCreation for result index of a tuple-valued expression.
func (a *Analyzer) IsCreationAt(ctx context.Context, e ast.Expr, index int) (bool, error) {
	set, err := a.resolver.ResolveResult(ctx, e, index, provenance.RecursiveInside)
	if err != nil {
		return false, err
	}
	return a.ShouldDispose(set), nil
}

// IsCreatedBy reports whether the assignment val stores a resource the
// variable owns. Pointer writes resolve what the callee stores through &x.
func (a *Analyzer) IsCreatedBy(ctx context.Context, val assign.Value) (bool, error) {
	set, err := a.resolver.ResolveAssigned(ctx, val, provenance.RecursiveInside)
	if err != nil {
		return false, err
	}
	return a.ShouldDispose(set), nil
}

// IsCachedOrInjected reports whether some origin of e is owned elsewhere.
func (a *Analyzer) IsCachedOrInjected(ctx context.Context, e ast.Expr) (bool, error) {
	set, err := a.resolver.Resolve(ctx, e, provenance.RecursiveInside)
	if err != nil {
		return false, err
	}
	return a.IsAnyCachedOrInjected(set), nil
}

// IsCachedOrInjectedOnly reports whether every origin of e is owned elsewhere.
func (a *Analyzer) IsCachedOrInjectedOnly(ctx context.Context, e ast.Expr) (bool, error) {
	set, err := a.resolver.Resolve(ctx, e, provenance.RecursiveInside)
	if err != nil {
		return false, err
	}
	if set.Len() == 0 {
		return false, nil
	}
	for _, o := range set.Items() {
		if !a.KindOf(o).IsCachedOrInjected() {
			return false, nil
		}
	}
	return true, nil
}

// IsNop reports whether e certainly holds nothing that needs closing.
func (a *Analyzer) IsNop(ctx context.Context, e ast.Expr) (bool, error) {
	c, err := a.Classify(ctx, e)
	if err != nil {
		return false, err
	}
	return c == Nop, nil
}

// Classify resolves e once and returns its ownership verdict.
func (a *Analyzer) Classify(ctx context.Context, e ast.Expr) (Classification, error) {
	set, err := a.resolver.Resolve(ctx, e, provenance.RecursiveInside)
	if err != nil {
		return Unknown, err
	}
	return a.classify(set, e), nil
}

// ReturnOrigins resolves result index of every return of fn and
// classifies the union.
func (a *Analyzer) ReturnOrigins(ctx context.Context, fn ast.Node, index int) ([]Origin, Classification, error) {
	set, err := a.resolver.ReturnValuesAt(ctx, fn, index, provenance.RecursiveInside)
	if err != nil {
		return nil, Unknown, err
	}
	return a.origins(set), a.classify(set, nil), nil
}

func (a *Analyzer) classify(set *provenance.Set, e ast.Expr) Classification {
	if set.Len() == 0 {
		return Nop
	}
	var created, cached, nop int
	for _, o := range set.Items() {
		switch k := a.KindOf(o); {
		case k.IsCachedOrInjected():
			cached++
		case k == OriginCreated:
			created++
		case k == OriginNop:
			nop++
		}
	}
	switch {
	case cached > 0:
		return CachedOrInjected
	case created > 0:
		return Created
	case nop == set.Len():
		return Nop
	case isZeroValue(set, e):
		return Nop
	}
	return Unknown
}

// isZeroValue reports whether e is a variable that resolves only to itself:
// nothing was ever assigned to it. Opaque calls also resolve to themselves
// but stay Unknown.
func isZeroValue(set *provenance.Set, e ast.Expr) bool {
	id, ok := astutil.Unparen(e).(*ast.Ident)
	return ok && set.Len() == 1 && set.Contains(id)
}

// IsAnyCreation reports whether some origin in set is a creation.
func (a *Analyzer) IsAnyCreation(set *provenance.Set) bool {
	for _, o := range set.Items() {
		if a.KindOf(o) == OriginCreated {
			return true
		}
	}
	return false
}

// IsAnyCachedOrInjected reports whether some origin in set is owned elsewhere.
func (a *Analyzer) IsAnyCachedOrInjected(set *provenance.Set) bool {
	for _, o := range set.Items() {
		if a.KindOf(o).IsCachedOrInjected() {
			return true
		}
	}
	return false
}

// ShouldDispose reports whether the holder of set owns what it holds.
func (a *Analyzer) ShouldDispose(set *provenance.Set) bool {
	return a.IsAnyCreation(set) && !a.IsAnyCachedOrInjected(set)
}

// CreatedAssignments returns the assignments to obj that execute before at
// and store a creation.
func (a *Analyzer) CreatedAssignments(ctx context.Context, obj types.Object, at ast.Node) ([]assign.Value, error) {
	var out []assign.Value
	for _, val := range assign.ResolveObject(a.prog, obj, at) {
		if val.Site == at || val.Kind == assign.Element {
			continue
		}
		if order.Of(a.prog, val.Site, at) != order.Before {
			continue
		}
		created, err := a.IsCreatedBy(ctx, val)
		if err != nil {
			return nil, err
		}
		if created {
			out = append(out, val)
		}
	}
	return out, nil
}

// IsAssignedWithCreated reports whether obj holds a creation when at executes.
func (a *Analyzer) IsAssignedWithCreated(ctx context.Context, obj types.Object, at ast.Node) (bool, error) {
	vals, err := a.CreatedAssignments(ctx, obj, at)
	if err != nil {
		return false, err
	}
	return len(vals) > 0, nil
}

var constructorPrefixes = []string{"New", "Open", "Create", "Dial", "Listen", "Accept"}

// looksLikeConstructor guesses ownership for functions whose body is not
// available from their name alone.
func looksLikeConstructor(name string) bool {
	for _, prefix := range constructorPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
