package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/closelint/internal/analysis/program"
	"github.com/gnolang/closelint/internal/analysis/provenance"
	"github.com/gnolang/closelint/internal/disposable"
	tt "github.com/gnolang/closelint/internal/types"
)

// createTempDir creates a temporary directory and returns its path.
// It also registers a cleanup function to remove the directory after the test.
func createTempDir(t testing.TB, prefix string) string {
	tempDir, err := os.MkdirTemp("", prefix)
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })
	return tempDir
}

const leakySource = `package sample

type R struct{}

func (*R) Close() error { return nil }

func open() *R {
	r := &R{}
	r.Close()
	return r
}

func newR() *R { return &R{} }

func use() {
	newR()
}
`

func TestNewEngine(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(createTempDir(t, "engine_test"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"close-before-reassign",
		"close-injected",
		"discarded-creation",
		"return-cached-and-created",
		"return-disposed",
	}, engine.Rules())
}

func TestEngine_ApplyRules(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(".", map[string]tt.ConfigRule{
		"discarded-creation": {Severity: tt.SeverityOff},
		"close-injected":     {Severity: tt.SeverityError},
		"no-such-rule":       {Severity: tt.SeverityError},
	})
	require.NoError(t, err)

	assert.NotContains(t, engine.Rules(), "discarded-creation")
	assert.NotContains(t, engine.Rules(), "no-such-rule")
	assert.Equal(t, tt.SeverityError, engine.findRule("close-injected").Severity())
	assert.Equal(t, tt.SeverityError, engine.findRule("return-disposed").Severity())
}

func TestEngine_IgnoreRule(t *testing.T) {
	t.Parallel()
	engine := &Engine{}
	engine.IgnoreRule("test_rule")

	assert.True(t, engine.ignoredRules["test_rule"])
}

func TestDefaultRules(t *testing.T) {
	t.Parallel()
	rules := DefaultRules()
	assert.Len(t, rules, len(allRuleConstructors))
	assert.Equal(t, tt.SeverityError, rules["return-disposed"].Severity)
	assert.Equal(t, tt.SeverityInfo, rules["discarded-creation"].Severity)
}

func TestEngine_RunSource(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(".", nil)
	require.NoError(t, err)

	issues, err := engine.RunSource(context.Background(), []byte(leakySource))
	require.NoError(t, err)
	require.Len(t, issues, 2)

	assert.Equal(t, "return-disposed", issues[0].Rule)
	assert.Equal(t, tt.SeverityError, issues[0].Severity)
	assert.Equal(t, 10, issues[0].Start.Line)
	assert.Equal(t, "discarded-creation", issues[1].Rule)
	assert.Equal(t, tt.SeverityInfo, issues[1].Severity)
}

func TestEngine_Suppressed(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(".", nil)
	require.NoError(t, err)

	source := `package sample

type R struct{}

func (*R) Close() error { return nil }

func newR() *R { return &R{} }

func use() {
	newR() //nolint:discarded-creation
	//closelint:ignore
	newR()
	newR()
}
`
	issues, err := engine.RunSource(context.Background(), []byte(source))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 13, issues[0].Start.Line)
}

func TestEngine_AnalysisOptions(t *testing.T) {
	t.Parallel()

	source := `package sample

type R struct{}

func (*R) Close() error { return nil }

type pool struct{}

func (p *pool) Take() *R { return &R{} }

func use(p *pool) {
	r := p.Take()
	r.Close()
}
`
	engine, err := NewEngine(".", nil)
	require.NoError(t, err)
	issues, err := engine.RunSource(context.Background(), []byte(source))
	require.NoError(t, err)
	assert.Empty(t, issues)

	engine, err = NewEngine(".", nil, WithAnalysisOptions(disposable.WithBorrowed("sample.pool.Take")))
	require.NoError(t, err)
	issues, err = engine.RunSource(context.Background(), []byte(source))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "close-injected", issues[0].Rule)
}

func TestEngine_Cancelled(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(".", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	issues, err := engine.RunSource(ctx, []byte(leakySource))
	assert.Nil(t, issues)
	assert.True(t, errors.Is(err, provenance.ErrAbandoned))
}

func TestEngine_IgnorePath(t *testing.T) {
	t.Parallel()

	root := createTempDir(t, "ignore_path")
	engine, err := NewEngine(root, nil)
	require.NoError(t, err)
	engine.IgnorePath("generated/")
	engine.IgnorePath("*_mock.go")

	tests := []struct {
		path    string
		ignored bool
	}{
		{filepath.Join(root, "generated", "x.go"), true},
		{filepath.Join(root, "pkg", "client_mock.go"), true},
		{filepath.Join(root, "pkg", "client.go"), false},
		{"", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.ignored, engine.isIgnoredPath(tc.path), tc.path)
	}

	p, err := program.FromSource(filepath.Join(root, "generated", "x.go"), leakySource)
	require.NoError(t, err)
	issues, err := engine.RunProgram(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestSortIssues(t *testing.T) {
	t.Parallel()
	issues := []tt.Issue{
		{Rule: "b", Filename: "b.go"},
		{Rule: "b", Filename: "a.go"},
		{Rule: "a", Filename: "a.go"},
	}
	issues[0].Start.Line = 1
	issues[1].Start.Line = 3
	issues[2].Start.Line = 3

	SortIssues(issues)
	assert.Equal(t, "a.go", issues[0].Filename)
	assert.Equal(t, "a", issues[0].Rule)
	assert.Equal(t, "b", issues[1].Rule)
	assert.Equal(t, "b.go", issues[2].Filename)
}

func TestReadSourceCode(t *testing.T) {
	t.Parallel()

	path := filepath.Join(createTempDir(t, "source"), "x.go")
	require.NoError(t, os.WriteFile(path, []byte("package x\n\nfunc f() {}\n"), 0o644))

	source, err := ReadSourceCode(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"package x", "", "func f() {}", ""}, source.Lines)
}
