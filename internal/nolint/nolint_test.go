package nolint

import (
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tt "github.com/gnolang/closelint/internal/types"
)

func parse(t *testing.T, src string) *Manager {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "test.go", src, parser.ParseComments)
	require.NoError(t, err)
	return ParseComments(f, fset)
}

func at(line int) token.Position {
	return token.Position{Filename: "test.go", Line: line, Column: 1}
}

func TestParseDirective(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text     string
		expected []string
		wantErr  bool
	}{
		{text: "//nolint", expected: []string{}},
		{text: "//nolint:return-disposed, close-injected", expected: []string{"return-disposed", "close-injected"}},
		{text: "//closelint:ignore", expected: []string{}},
		{text: "//closelint:ignore discarded-creation", expected: []string{"discarded-creation"}},
		{text: "//nolint:", wantErr: true},
		{text: "//nolintx", wantErr: true},
		{text: "// regular comment", wantErr: true},
	}

	for _, tc := range tests {
		rules, err := parseDirective(tc.text)
		if tc.wantErr {
			assert.Error(t, err, tc.text)
			continue
		}
		require.NoError(t, err, tc.text)
		assert.Len(t, rules, len(tc.expected), tc.text)
		for _, rule := range tc.expected {
			assert.Contains(t, rules, rule, tc.text)
		}
	}
}

func TestIsNolint(t *testing.T) {
	t.Parallel()
	m := parse(t, `package main

func main() {
	//nolint
	open("a")
	open("b")
	open("c") //nolint:return-disposed
	//closelint:ignore close-injected
	open("d")
}

//nolint:discarded-creation
func helper() {
	open("e")
}
`)

	tests := []struct {
		rule     string
		line     int
		expected bool
	}{
		{"anyrule", 5, true},
		{"anyrule", 6, false},
		{"return-disposed", 7, true},
		{"close-injected", 7, false},
		{"close-injected", 9, true},
		{"return-disposed", 9, false},
		{"discarded-creation", 14, true},
		{"return-disposed", 14, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, m.IsNolint(at(tc.line), tc.rule), "line %d rule %s", tc.line, tc.rule)
	}
}

func TestWholeFile(t *testing.T) {
	t.Parallel()
	m := parse(t, `//nolint:close-injected
package main

func main() {}
`)
	assert.True(t, m.IsNolint(at(4), "close-injected"))
	assert.False(t, m.IsNolint(at(4), "return-disposed"))
}

func TestFilter(t *testing.T) {
	t.Parallel()
	m := parse(t, `package main

func main() {
	open() //nolint
	open()
}
`)
	issues := []tt.Issue{
		{Rule: "discarded-creation", Filename: "test.go", Start: at(4)},
		{Rule: "discarded-creation", Filename: "test.go", Start: at(5)},
	}
	kept := m.Filter(issues)
	require.Len(t, kept, 1)
	assert.Equal(t, 5, kept[0].Start.Line)

	var none *Manager
	assert.Len(t, none.Filter(issues), 2)
}
