package ignore

import (
	"go/types"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/closelint/internal/analysis/program"
)

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected []Entry
		wantErr  bool
	}{
		{
			name: "names, messages and comments",
			input: `// header comment
example.com/pool.Pool.Get ; returns a borrowed connection

example.com/cache.Default // trailing comment
`,
			expected: []Entry{
				{Name: "example.com/pool.Pool.Get", Message: "returns a borrowed connection", Source: "list", Line: 2},
				{Name: "example.com/cache.Default", Source: "list", Line: 4},
			},
		},
		{
			name:     "empty input",
			input:    "\n\n// only comments\n",
			expected: []Entry{},
		},
		{
			name:    "message without name",
			input:   "; lonely message",
			wantErr: true,
		},
		{
			name:    "name with spaces",
			input:   "example.com/a b",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, err := Parse(strings.NewReader(tt.input), "list")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, l.Entries())
		})
	}
}

func TestContains(t *testing.T) {
	t.Parallel()
	code := `package sample
type Pool struct{}
func (p *Pool) Get() int { return 0 }
func Open() int { return 0 }
var Default = 1
`
	p, err := program.FromSource("sample.go", code)
	require.NoError(t, err)

	l, err := Parse(strings.NewReader("sample.Pool.Get\nsample.Default ; shared\nsample.Pool\n"), "list")
	require.NoError(t, err)

	scope := p.Pkg.Scope()
	pool := scope.Lookup("Pool")
	get := lookupMethod(t, pool.Type(), "Get")

	assert.True(t, l.Contains(get))
	assert.True(t, l.Contains(scope.Lookup("Default")))
	assert.False(t, l.Contains(scope.Lookup("Open")))
	assert.True(t, l.ContainsType(pool.Type()))

	e, ok := l.Lookup(scope.Lookup("Default"))
	require.True(t, ok)
	assert.Equal(t, "shared", e.Message)

	var nilList *List
	assert.False(t, nilList.Contains(get))
	assert.Equal(t, 0, nilList.Len())
}

func TestLoadMerges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	first := filepath.Join(dir, "first.ignore")
	second := filepath.Join(dir, "second.ignore")
	require.NoError(t, os.WriteFile(first, []byte("a.B ; first\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("a.B ; second\nc.D\n"), 0o644))

	l, err := Load(first, second)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
	assert.True(t, l.ContainsName("c.D"))

	entries := l.Entries()
	assert.Equal(t, "first", entries[0].Message)

	_, err = Load(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func lookupMethod(t *testing.T, typ types.Type, name string) *types.Func {
	t.Helper()
	obj, _, _ := types.LookupFieldOrMethod(types.NewPointer(typ), false, nil, name)
	fn, ok := obj.(*types.Func)
	require.True(t, ok, "method %s not found", name)
	return fn
}
