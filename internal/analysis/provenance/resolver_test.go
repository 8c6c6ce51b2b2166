package provenance

import (
	"context"
	"errors"
	"go/ast"
	"go/types"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/closelint/internal/analysis/program"
)

// target returns the first return expression of the function named target.
func target(t *testing.T, p *program.Program) ast.Expr {
	t.Helper()
	fn := funcDecl(t, p, "target")
	var found ast.Expr
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		if ret, ok := n.(*ast.ReturnStmt); ok && found == nil && len(ret.Results) > 0 {
			found = ret.Results[0]
		}
		return found == nil
	})
	require.NotNil(t, found, "target has no return value")
	return found
}

func funcDecl(t *testing.T, p *program.Program, name string) *ast.FuncDecl {
	t.Helper()
	for _, decl := range p.Files[0].Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Name.Name == name {
			return fn
		}
	}
	t.Fatalf("function %s not found", name)
	return nil
}

func render(s *Set) []string {
	out := []string{}
	for _, e := range s.Items() {
		out = append(out, types.ExprString(e))
	}
	return out
}

func TestResolve(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		code     string
		mode     Mode
		expected []string
	}{
		{
			name: "member keeps the expression",
			code: `package p
func f() int { return 1 }
func target() int { return f() + 2 }`,
			mode:     Member,
			expected: []string{"f() + 2"},
		},
		{
			name: "constant return",
			code: `package p
func f() int { return 1 }
func target() int { return f() }`,
			mode:     Recursive,
			expected: []string{"1"},
		},
		{
			name: "identity function inside",
			code: `package p
func f(x int) int { return x }
func target() int { return f(5) }`,
			mode:     RecursiveInside,
			expected: []string{"5"},
		},
		{
			name: "identity function drops parameters",
			code: `package p
func f(x int) int { return x }
func target() int { return f(5) }`,
			mode:     Recursive,
			expected: []string{},
		},
		{
			name: "nested parameter forwarding",
			code: `package p
func h(x int) int { return x }
func g(y int) int { return h(y) }
func target() int { return g(7) }`,
			mode:     RecursiveInside,
			expected: []string{"7"},
		},
		{
			name: "mutual recursion terminates",
			code: `package p
func f(n int) int {
	if n == 0 {
		return 0
	}
	return g(n - 1)
}
func g(n int) int {
	if n == 0 {
		return 1
	}
	return f(n - 1)
}
func target() int { return f(3) }`,
			mode:     Recursive,
			expected: []string{"0", "1"},
		},
		{
			name: "self recursion terminates",
			code: `package p
func f(n int) int {
	if n > 0 {
		return f(n - 1)
	}
	return 9
}
func target() int { return f(3) }`,
			mode:     RecursiveInside,
			expected: []string{"9"},
		},
		{
			name: "branch local assignments",
			code: `package p
func target(c bool) int {
	x := 1
	if c {
		x = 2
	}
	return x
}`,
			mode:     Recursive,
			expected: []string{"1", "2"},
		},
		{
			name: "assignment cycle",
			code: `package p
func target(c bool) int {
	a := 1
	b := a
	for c {
		a = b
		b = a
	}
	return a
}`,
			mode:     Recursive,
			expected: []string{"1"},
		},
		{
			name: "unassigned parameter is its own origin",
			code: `package p
func target(x int) int { return x }`,
			mode:     Recursive,
			expected: []string{"x"},
		},
		{
			name: "getter returns the field",
			code: `package p
type conn struct{}
type client struct{ c *conn }
func (cl *client) Conn() *conn { return cl.c }
func target(cl *client) *conn { return cl.Conn() }`,
			mode:     RecursiveInside,
			expected: []string{"cl.c"},
		},
		{
			name: "method receiver substitution",
			code: `package p
type box struct{ v int }
func (b box) self() box { return b }
func target() box { return box{v: 1}.self() }`,
			mode:     RecursiveInside,
			expected: []string{"box{v: 1}"},
		},
		{
			name: "local function literal",
			code: `package p
func target() int {
	g := func() int { return 4 }
	return g()
}`,
			mode:     Recursive,
			expected: []string{"4"},
		},
		{
			name: "literal invoked in place",
			code: `package p
func target(c bool) int {
	return func() int {
		if c {
			return 1
		}
		return 2
	}()
}`,
			mode:     Recursive,
			expected: []string{"1", "2"},
		},
		{
			name: "conversion and type assertion pass through",
			code: `package p
type id int
func target(v interface{}) id {
	n := v.(int)
	return id(n)
}`,
			mode:     Recursive,
			expected: []string{"v"},
		},
		{
			name: "named result with bare return",
			code: `package p
func f() (x int) {
	x = 3
	return
}
func target() int { return f() }`,
			mode:     Recursive,
			expected: []string{"3"},
		},
		{
			name: "tuple forwarding",
			code: `package p
func pair() (int, error) { return 1, nil }
func fwd() (int, error) { return pair() }
func target() int {
	n, _ := fwd()
	return n
}`,
			mode:     Recursive,
			expected: []string{"1"},
		},
		{
			name: "range over composite literal",
			code: `package p
func target() int {
	for _, v := range []int{1, 2} {
		return v
	}
	return 0
}`,
			mode:     Recursive,
			expected: []string{"1", "2"},
		},
		{
			name: "pointer write through callee",
			code: `package p
func fill(p *int) { *p = 7 }
func target() int {
	var m int
	fill(&m)
	return m
}`,
			mode:     Recursive,
			expected: []string{"7"},
		},
		{
			name: "receive from returned channel",
			code: `package p
type res struct{}
func open() chan *res {
	ch := make(chan *res, 1)
	ch <- &res{}
	return ch
}
func target() *res { return <-open() }`,
			mode:     Recursive,
			expected: []string{"&res{}"},
		},
		{
			name: "receive from goroutine with substitution",
			code: `package p
func start(v int) chan int {
	ch := make(chan int)
	go func() { ch <- v }()
	return ch
}
func target() int { return <-start(5) }`,
			mode:     RecursiveInside,
			expected: []string{"5"},
		},
		{
			name: "receive from local channel",
			code: `package p
func target() int {
	ch := make(chan int, 1)
	go func() { ch <- 8 }()
	return <-ch
}`,
			mode:     Recursive,
			expected: []string{"8"},
		},
		{
			name: "unknown channel is its own origin",
			code: `package p
func target(ch chan int) int { return <-ch }`,
			mode:     Recursive,
			expected: []string{"<-ch"},
		},
		{
			name: "function without body is an origin",
			code: `package p
type T struct{}
type opener interface{ Open() *T }
func target(o opener) *T { return o.Open() }`,
			mode:     Recursive,
			expected: []string{"o.Open()"},
		},
		{
			name: "fields and globals are leaves",
			code: `package p
type T struct{ n int }
var g = 4
func target(t T, c bool) int {
	x := t.n
	if c {
		x = g
	}
	return x
}`,
			mode:     Recursive,
			expected: []string{"t.n", "g"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := program.FromSource("test.go", tt.code)
			require.NoError(t, err)

			r := NewResolver(p)
			got, err := r.Resolve(context.Background(), target(t, p), tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, render(got))
		})
	}
}

func TestResolveCoalescing(t *testing.T) {
	t.Parallel()
	code := `package p
import "cmp"
func target(name string) string { return cmp.Or(name, "default") }`
	p, err := program.FromSource("test.go", code)
	require.NoError(t, err)

	got, err := NewResolver(p).Resolve(context.Background(), target(t, p), Recursive)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", `"default"`}, render(got))
}

func TestResolveResultIndex(t *testing.T) {
	t.Parallel()
	code := `package p
func pair() (int, string) { return 1, "a" }
func target() int {
	n, _ := pair()
	return n
}`
	p, err := program.FromSource("test.go", code)
	require.NoError(t, err)

	call := funcDecl(t, p, "target").Body.List[0].(*ast.AssignStmt).Rhs[0]
	r := NewResolver(p)

	first, err := r.ResolveResult(context.Background(), call, 0, Recursive)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, render(first))

	second, err := r.ResolveResult(context.Background(), call, 1, Recursive)
	require.NoError(t, err)
	assert.Equal(t, []string{`"a"`}, render(second))
}

func TestReturnValues(t *testing.T) {
	t.Parallel()
	code := `package p
type T struct{}
func make1(x *T, c bool) *T {
	if c {
		return x
	}
	return &T{}
}
func target() func() int {
	return func() int { return 3 }
}`
	p, err := program.FromSource("test.go", code)
	require.NoError(t, err)
	r := NewResolver(p)

	got, err := r.ReturnValues(context.Background(), funcDecl(t, p, "make1"), RecursiveInside)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "&T{}"}, render(got))

	lit := target(t, p)
	member, err := r.Resolve(context.Background(), lit, Member)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, render(member))
}

func TestResolveCancelled(t *testing.T) {
	t.Parallel()
	code := `package p
func f() int { return 1 }
func target() int { return f() }`
	p, err := program.FromSource("test.go", code)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := NewResolver(p).Resolve(ctx, target(t, p), Recursive)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, ErrAbandoned))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestResolveIsRepeatableAndConcurrent(t *testing.T) {
	t.Parallel()
	code := `package p
func f(n int) int {
	if n == 0 {
		return 0
	}
	x := n
	if n > 5 {
		x = f(n - 1)
	}
	return x
}
func target() int { return f(9) }`
	p, err := program.FromSource("test.go", code)
	require.NoError(t, err)
	r := NewResolver(p)
	expr := target(t, p)

	first, err := r.Resolve(context.Background(), expr, RecursiveInside)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Set, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Resolve(context.Background(), expr, RecursiveInside)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		require.NotNil(t, got)
		assert.True(t, first.Equal(got), "%s != %s", first, got)
	}
}

func TestSet(t *testing.T) {
	t.Parallel()
	a, b := ast.NewIdent("a"), ast.NewIdent("b")

	s := NewSet(a, b, a)
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.Add(b))
	assert.True(t, s.Contains(a))
	assert.False(t, s.Contains(ast.NewIdent("a")))
	assert.Equal(t, "{a, b}", s.String())
	assert.True(t, s.Equal(NewSet(b, a)))

	var empty *Set
	assert.Equal(t, 0, empty.Len())
	assert.False(t, empty.Contains(a))
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	for _, m := range []Mode{Member, Recursive, RecursiveInside} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("deep")
	assert.Error(t, err)
}

func TestResolveLeafCalls(t *testing.T) {
	t.Parallel()
	code := `package p
type T struct{}
func get() *T { return &T{} }
func target() *T { return get() }`
	p, err := program.FromSource("test.go", code)
	require.NoError(t, err)

	leaf := func(call *ast.CallExpr) bool {
		id, ok := call.Fun.(*ast.Ident)
		return ok && id.Name == "get"
	}
	got, err := NewResolver(p, WithLeaf(leaf)).Resolve(context.Background(), target(t, p), Recursive)
	require.NoError(t, err)
	assert.Equal(t, []string{"get()"}, render(got))
}
