package assign

import (
	"go/ast"
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/closelint/internal/analysis/program"
)

func uses(p *program.Program, name string) []*ast.Ident {
	var found []*ast.Ident
	ast.Inspect(p.Files[0], func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && id.Name == name && p.Info.Uses[id] != nil {
			found = append(found, id)
		}
		return true
	})
	return found
}

// lastUse returns the last use of the identifier name in the file.
func lastUse(t *testing.T, p *program.Program, name string) *ast.Ident {
	t.Helper()
	found := uses(p, name)
	require.NotEmpty(t, found, "use of %s not found", name)
	return found[len(found)-1]
}

func render(values []Value) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, types.ExprString(v.Expr))
	}
	return out
}

func TestResolve(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		code     string
		ref      string
		first    bool
		expected []string
	}{
		{
			name: "declaration and reassignment",
			code: `package p
func f() int {
	x := 1
	x = 2
	return x
}`,
			ref:      "x",
			expected: []string{"1", "2"},
		},
		{
			name: "var declaration",
			code: `package p
func f() int {
	var x = 3
	return x
}`,
			ref:      "x",
			expected: []string{"3"},
		},
		{
			name: "branch local assignments are kept",
			code: `package p
func f(c bool) int {
	x := 1
	if c {
		x = 2
	} else {
		x = 3
	}
	return x
}`,
			ref:      "x",
			expected: []string{"1", "2", "3"},
		},
		{
			name: "assignments after the reference are skipped",
			code: `package p
func f() int {
	x := 1
	y := x
	x = 2
	_ = x
	return y
}`,
			ref:      "y",
			expected: []string{"x"},
		},
		{
			name: "assignment in a returning branch does not reach",
			code: `package p
func f(c bool) int {
	x := 1
	if c {
		x = 2
		return 0
	}
	return x
}`,
			ref:      "x",
			expected: []string{"1"},
		},
		{
			name: "loop assignment reaches earlier references",
			code: `package p
func f() int {
	x := 0
	for i := 0; i < 3; i++ {
		_ = x
		x = i
	}
	return 0
}`,
			ref:      "x",
			first:    true,
			expected: []string{"0", "i"},
		},
		{
			name: "compound assignment",
			code: `package p
func f() int {
	x := 1
	x += 2
	return x
}`,
			ref:      "x",
			expected: []string{"1", "2"},
		},
		{
			name: "parameter never assigned",
			code: `package p
func f(x int) int {
	return x
}`,
			ref:      "x",
			expected: []string{},
		},
		{
			name: "closure assignment",
			code: `package p
func f() int {
	x := 1
	set := func() { x = 5 }
	set()
	return x
}`,
			ref:      "x",
			expected: []string{"1", "5"},
		},
		{
			name: "package variable",
			code: `package p
var x = 1
func f() int {
	return x
}`,
			ref:      "x",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := program.FromSource("test.go", tt.code)
			require.NoError(t, err)
			ref := lastUse(t, p, tt.ref)
			if tt.first {
				ref = uses(p, tt.ref)[0]
			}
			assert.Equal(t, tt.expected, render(Resolve(p, ref)))
		})
	}
}

func TestResolveTupleAndKinds(t *testing.T) {
	t.Parallel()
	code := `package p
func pair() (int, error) { return 0, nil }
func fill(p *int) { *p = 7 }
func f(v interface{}) int {
	n, err := pair()
	_ = err
	var m int
	fill(&m)
	for _, e := range []int{1, 2} {
		m = e
	}
	switch s := v.(type) {
	case int:
		return s + n + m
	}
	return n
}`
	p, err := program.FromSource("test.go", code)
	require.NoError(t, err)

	t.Run("tuple index", func(t *testing.T) {
		got := Resolve(p, lastUse(t, p, "err"))
		require.Len(t, got, 1)
		assert.Equal(t, "pair()", types.ExprString(got[0].Expr))
		assert.Equal(t, 1, got[0].Index)
		assert.Equal(t, Direct, got[0].Kind)
	})

	t.Run("pointer write and range element", func(t *testing.T) {
		got := Resolve(p, lastUse(t, p, "m"))
		require.Len(t, got, 2)
		assert.Equal(t, PointerWrite, got[0].Kind)
		assert.Equal(t, 0, got[0].Index)
		assert.Equal(t, "e", types.ExprString(got[1].Expr))

		var e *ast.Ident
		ast.Inspect(p.Files[0], func(n ast.Node) bool {
			if id, ok := n.(*ast.Ident); ok && id.Name == "e" && p.Info.Defs[id] != nil {
				e = id
			}
			return true
		})
		require.NotNil(t, e)
		elems := ResolveObject(p, p.Info.Defs[e], got[1].Site)
		require.Len(t, elems, 1)
		assert.Equal(t, Element, elems[0].Kind)
		assert.Equal(t, 1, elems[0].Index)
	})

	t.Run("type switch value", func(t *testing.T) {
		got := Resolve(p, lastUse(t, p, "s"))
		require.Len(t, got, 1)
		assert.Equal(t, "v", types.ExprString(got[0].Expr))
	})
}

func TestKindString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "direct", Direct.String())
	assert.Equal(t, "pointer-write", PointerWrite.String())
	assert.Equal(t, "element", Element.String())
}
