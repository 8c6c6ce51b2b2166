package lint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"

	"github.com/gnolang/closelint/internal/analysis/program"
)

func sourcePackage(t *testing.T, src string) *packages.Package {
	t.Helper()
	p, err := program.FromSource("sample.go", src)
	require.NoError(t, err)
	return &packages.Package{
		PkgPath:   "sample",
		Fset:      p.Fset,
		Syntax:    p.Files,
		Types:     p.Pkg,
		TypesInfo: p.Info,
	}
}

func TestTrace(t *testing.T) {
	t.Parallel()
	pkg := sourcePackage(t, `package sample

import "os"

type Cache struct{ f *os.File }

func (c *Cache) Open(fresh bool) (*os.File, error) {
	if fresh {
		return os.Open("data")
	}
	return c.f, nil
}

func Open() int { return 0 }
`)

	results, err := Trace(context.Background(), []*packages.Package{pkg}, "Cache.Open")
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "sample.Cache.Open", res.Func)
	assert.Equal(t, 0, res.Result)
	assert.Equal(t, "*os.File", res.Type)
	assert.Equal(t, "cached-or-injected", res.Classification)
	require.Len(t, res.Origins, 2)
	assert.Equal(t, TraceOrigin{Expr: `os.Open("data")`, Kind: "created", Position: res.Origins[0].Position}, res.Origins[0])
	assert.Equal(t, 9, res.Origins[0].Position.Line)
	assert.Equal(t, "c.f", res.Origins[1].Expr)
	assert.Equal(t, "field", res.Origins[1].Kind)

	// functions without resource results are listed with no entries
	results, err = Trace(context.Background(), []*packages.Package{pkg}, "Open")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTraceCancelled(t *testing.T) {
	t.Parallel()
	pkg := sourcePackage(t, `package sample

import "os"

func Open() (*os.File, error) { return os.Open("data") }
`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Trace(ctx, []*packages.Package{pkg}, "Open")
	assert.Error(t, err)
}
