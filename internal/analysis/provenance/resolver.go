package provenance

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/types"
	"sync"

	"github.com/gnolang/closelint/internal/analysis/assign"
	"github.com/gnolang/closelint/internal/analysis/program"
)

// ErrAbandoned is returned when a query stops because its context is done.
// Callers must treat it as "no answer", never as a negative answer.
var ErrAbandoned = errors.New("provenance query abandoned")

// Resolver resolves expressions of one program.
type Resolver struct {
	prog *program.Program
	leaf func(*ast.CallExpr) bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLeaf makes calls for which leaf returns true origins, even when the
// callee has a body.
func WithLeaf(leaf func(*ast.CallExpr) bool) Option {
	return func(r *Resolver) {
		r.leaf = leaf
	}
}

func NewResolver(p *program.Program, opts ...Option) *Resolver {
	r := &Resolver{prog: p}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Program() *program.Program {
	return r.prog
}

// Resolve returns the origins of expr.
func (r *Resolver) Resolve(ctx context.Context, expr ast.Expr, mode Mode) (*Set, error) {
	return r.ResolveResult(ctx, expr, 0, mode)
}

// ResolveResult returns the origins of result index of a tuple-valued expr.
func (r *Resolver) ResolveResult(ctx context.Context, expr ast.Expr, index int, mode Mode) (*Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, abandoned(err)
	}
	if expr == nil {
		return NewSet(), nil
	}
	if mode == Member {
		if lit, ok := expr.(*ast.FuncLit); ok {
			return returnExprs(lit, index), nil
		}
		return NewSet(expr), nil
	}
	return r.run(ctx, mode, func(w *walker) { w.add(expr, index) })
}

// ResolveAssigned returns the origins of one assignment collected by
// package assign, including values a callee stores through &x.
func (r *Resolver) ResolveAssigned(ctx context.Context, val assign.Value, mode Mode) (*Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, abandoned(err)
	}
	if val.Expr == nil {
		return NewSet(), nil
	}
	if mode == Member {
		return NewSet(val.Expr), nil
	}
	return r.run(ctx, mode, func(w *walker) { w.addAssigned(val) })
}

// ReturnValues returns the origins of the first result of fn, a *ast.FuncDecl
// or *ast.FuncLit. Parameters of fn itself are kept as origins.
func (r *Resolver) ReturnValues(ctx context.Context, fn ast.Node, mode Mode) (*Set, error) {
	return r.ReturnValuesAt(ctx, fn, 0, mode)
}

// ReturnValuesAt is ReturnValues for result index.
func (r *Resolver) ReturnValuesAt(ctx context.Context, fn ast.Node, index int, mode Mode) (*Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, abandoned(err)
	}
	if mode == Member {
		return returnExprs(fn, index), nil
	}
	return r.run(ctx, mode, func(w *walker) { w.returns(fn, index) })
}

func (r *Resolver) run(ctx context.Context, mode Mode, fill func(*walker)) (*Set, error) {
	q := acquire(ctx, r, mode)
	defer q.release()

	w := q.walker()
	fill(w)
	if q.err != nil {
		return nil, q.err
	}
	return w.values.Clone(), nil
}

// Abandoned wraps a context error as ErrAbandoned.
func Abandoned(err error) error {
	return abandoned(err)
}

func abandoned(err error) error {
	return fmt.Errorf("%w: %w", ErrAbandoned, err)
}

// returnExprs collects the raw return expressions of fn.
func returnExprs(fn ast.Node, index int) *Set {
	set := NewSet()
	body := program.FuncBody(fn)
	if body == nil {
		return set
	}
	results := program.FuncType(fn).Results.NumFields()
	ast.Inspect(body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.ReturnStmt:
			switch {
			case len(n.Results) == 1 && results > 1:
				set.Add(n.Results[0])
			case index < len(n.Results):
				set.Add(n.Results[index])
			}
		}
		return true
	})
	return set
}

// guard slots below zero are used for channel sends and pointer writes
const awaitSlot = -1

func pointerSlot(arg int) int {
	return -2 - arg
}

type guardKey struct {
	node  ast.Node
	scope ast.Node
	index int
}

// query is the state owned by one top-level call.
type query struct {
	ctx         context.Context
	prog        *program.Program
	leaf        func(*ast.CallExpr) bool
	mode        Mode
	guard       map[guardKey]*walker
	assignments map[*ast.Ident][]assign.Value
	expanding   map[types.Object]bool
	walkers     []*walker
	err         error
}

var queryPool = sync.Pool{
	New: func() any {
		return &query{
			guard:       make(map[guardKey]*walker),
			assignments: make(map[*ast.Ident][]assign.Value),
			expanding:   make(map[types.Object]bool),
		}
	},
}

var walkerPool = sync.Pool{
	New: func() any {
		return &walker{values: NewSet()}
	},
}

func acquire(ctx context.Context, r *Resolver, mode Mode) *query {
	q := queryPool.Get().(*query)
	q.ctx = ctx
	q.prog = r.prog
	q.leaf = r.leaf
	q.mode = mode
	return q
}

func (q *query) release() {
	for _, w := range q.walkers {
		w.q = nil
		w.values.reset()
		walkerPool.Put(w)
	}
	q.walkers = q.walkers[:0]
	clear(q.guard)
	clear(q.assignments)
	clear(q.expanding)
	q.ctx = nil
	q.prog = nil
	q.leaf = nil
	q.err = nil
	queryPool.Put(q)
}

func (q *query) walker() *walker {
	w := walkerPool.Get().(*walker)
	w.q = q
	q.walkers = append(q.walkers, w)
	return w
}

// cancelled checks the context at a descent point.
func (q *query) cancelled() bool {
	if q.err != nil {
		return true
	}
	if err := q.ctx.Err(); err != nil {
		q.err = abandoned(err)
		return true
	}
	return false
}

func (q *query) assigned(ref *ast.Ident) []assign.Value {
	if values, ok := q.assignments[ref]; ok {
		return values
	}
	values := assign.Resolve(q.prog, ref)
	q.assignments[ref] = values
	return values
}
