package order

import (
	"go/ast"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/closelint/internal/analysis/program"
)

// call returns the first call of the function named name.
func call(t *testing.T, p *program.Program, name string) *ast.CallExpr {
	t.Helper()
	var found *ast.CallExpr
	ast.Inspect(p.Files[0], func(n ast.Node) bool {
		if found != nil {
			return false
		}
		if c, ok := n.(*ast.CallExpr); ok {
			if id, ok := c.Fun.(*ast.Ident); ok && id.Name == name {
				found = c
			}
		}
		return true
	})
	require.NotNil(t, found, "call %s not found", name)
	return found
}

func TestOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		code     string
		a, b     string
		expected Relation
	}{
		{
			name: "straight line",
			code: `package p
func a() {}
func b() {}
func f() {
	a()
	b()
}`,
			a: "a", b: "b", expected: Before,
		},
		{
			name: "straight line reversed",
			code: `package p
func a() {}
func b() {}
func f() {
	b()
	a()
}`,
			a: "a", b: "b", expected: After,
		},
		{
			name: "sibling branches",
			code: `package p
func a() {}
func b() {}
func f(c bool) {
	if c {
		a()
	} else {
		b()
	}
}`,
			a: "a", b: "b", expected: Indeterminate,
		},
		{
			name: "branch before join",
			code: `package p
func a() {}
func b() {}
func f(c bool) {
	if c {
		a()
	}
	b()
}`,
			a: "a", b: "b", expected: Before,
		},
		{
			name: "branch that returns",
			code: `package p
func a() {}
func b() {}
func f(c bool) {
	if c {
		a()
		return
	}
	b()
}`,
			a: "a", b: "b", expected: After,
		},
		{
			name: "branch that panics",
			code: `package p
func a() {}
func b() {}
func f(c bool) {
	if c {
		a()
		panic("x")
	}
	b()
}`,
			a: "a", b: "b", expected: After,
		},
		{
			name: "return inside literal invoked in place",
			code: `package p
func a() {}
func b() {}
func f() {
	func() {
		a()
		return
	}()
	b()
}`,
			a: "a", b: "b", expected: Before,
		},
		{
			name: "later statement in loop",
			code: `package p
func a() {}
func b() {}
func f() {
	for {
		b()
		a()
	}
}`,
			a: "a", b: "b", expected: Indeterminate,
		},
		{
			name: "earlier statement in loop",
			code: `package p
func a() {}
func b() {}
func f() {
	for i := 0; i < 3; i++ {
		a()
		b()
	}
}`,
			a: "a", b: "b", expected: Before,
		},
		{
			name: "range body",
			code: `package p
func a() []int { return nil }
func b() {}
func f() {
	for range a() {
		b()
	}
}`,
			a: "a", b: "b", expected: Before,
		},
		{
			name: "switch clauses",
			code: `package p
func a() {}
func b() {}
func f(x int) {
	switch x {
	case 1:
		a()
	case 2:
		b()
	}
}`,
			a: "a", b: "b", expected: Indeterminate,
		},
		{
			name: "deferred call runs at exit",
			code: `package p
func a() {}
func b() {}
func f() {
	defer a()
	b()
}`,
			a: "a", b: "b", expected: After,
		},
		{
			name: "deferred literal body runs at exit",
			code: `package p
func a() {}
func b() {}
func f() {
	defer func() {
		a()
	}()
	b()
}`,
			a: "a", b: "b", expected: After,
		},
		{
			name: "deferred calls are last in first out",
			code: `package p
func a() {}
func b() {}
func f() {
	defer a()
	defer b()
}`,
			a: "a", b: "b", expected: After,
		},
		{
			name: "defer inside literal invoked in place",
			code: `package p
func a() {}
func b() {}
func f() {
	func() {
		defer a()
	}()
	b()
}`,
			a: "a", b: "b", expected: Before,
		},
		{
			name: "goroutine",
			code: `package p
func a() {}
func b() {}
func f() {
	go func() {
		a()
	}()
	b()
}`,
			a: "a", b: "b", expected: Indeterminate,
		},
		{
			name: "stored literal",
			code: `package p
func a() {}
func b() {}
func f() {
	g := func() {
		a()
	}
	b()
	g()
}`,
			a: "a", b: "b", expected: Indeterminate,
		},
		{
			name: "different functions",
			code: `package p
func a() {}
func b() {}
func f() { a() }
func g() { b() }`,
			a: "a", b: "b", expected: Indeterminate,
		},
		{
			name: "argument before call",
			code: `package p
func a() int { return 0 }
func b(int) {}
func f() {
	b(a())
}`,
			a: "a", b: "b", expected: Before,
		},
		{
			name: "break out of the shared loop",
			code: `package p
func a() {}
func b() {}
func f(c bool) {
	for {
		if c {
			a()
			break
		}
		b()
	}
}`,
			a: "a", b: "b", expected: After,
		},
		{
			name: "labeled break out of the shared loop",
			code: `package p
func a() {}
func b() {}
func f(xs []int) {
outer:
	for range xs {
		for {
			if len(xs) > 0 {
				a()
				break outer
			}
			b()
			break
		}
	}
}`,
			a: "a", b: "b", expected: After,
		},
		{
			name: "break out of a nested switch",
			code: `package p
func a() {}
func b() {}
func f(n int) {
	switch n {
	case 1:
		a()
		break
	}
	b()
}`,
			a: "a", b: "b", expected: Before,
		},
		{
			name: "continue stays in the shared loop",
			code: `package p
func a() {}
func b() {}
func f(c bool) {
	for {
		if c {
			a()
			continue
		}
		b()
	}
}`,
			a: "a", b: "b", expected: Before,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := program.FromSource("test.go", tt.code)
			require.NoError(t, err)
			got := Of(p, call(t, p, tt.a), call(t, p, tt.b))
			assert.Equal(t, tt.expected, got, "got %s", got)
		})
	}
}

func TestOfSameNode(t *testing.T) {
	t.Parallel()
	code := `package p
func a() {}
func b() {}
func f() {
	a()
	for {
		b()
	}
}`
	p, err := program.FromSource("test.go", code)
	require.NoError(t, err)

	a := call(t, p, "a")
	assert.Equal(t, After, Of(p, a, a))

	b := call(t, p, "b")
	assert.Equal(t, Indeterminate, Of(p, b, b))
	assert.Equal(t, Indeterminate, Of(p, nil, b))
}

func TestOfContainment(t *testing.T) {
	t.Parallel()
	code := `package p
func g(int) int { return 0 }
func f() {
	x := 1
	x = g(x)
	_ = x
}`
	p, err := program.FromSource("test.go", code)
	require.NoError(t, err)

	fn := p.Files[0].Decls[1].(*ast.FuncDecl)
	assign := fn.Body.List[1].(*ast.AssignStmt)
	ref := assign.Rhs[0].(*ast.CallExpr).Args[0]

	assert.Equal(t, After, Of(p, assign, ref))
	assert.Equal(t, Before, Of(p, ref, assign))
}

func TestRelationString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Before", Before.String())
	assert.Equal(t, "After", After.String())
	assert.Equal(t, "Indeterminate", Indeterminate.String())
	assert.Equal(t, Before, After.Invert())
	assert.Equal(t, Indeterminate, Indeterminate.Invert())
}
