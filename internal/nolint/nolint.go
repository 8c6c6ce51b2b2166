// Package nolint suppresses issues marked by comments.
//
// Both the golangci-lint form and the closelint form are understood:
//
//	//nolint:return-disposed
//	//closelint:ignore close-injected,discarded-creation
//
// Without rule names every rule is suppressed. A comment before the package
// clause covers the file, an inline comment covers its statement, and a
// standalone comment covers the statement or function on the next line.
package nolint

import (
	"errors"
	"go/ast"
	"go/token"
	"strings"

	tt "github.com/gnolang/closelint/internal/types"
)

var prefixes = []struct {
	text string
	sep  byte
}{
	{"//nolint", ':'},
	{"//closelint:ignore", ' '},
}

var (
	errNotDirective = errors.New("not a suppression comment")
	errMalformed    = errors.New("malformed suppression comment")
	errNoRules      = errors.New("no rules listed after separator")
)

// Manager records the suppressed scopes of parsed files.
type Manager struct {
	// scopes maps filename to its suppressed ranges.
	scopes map[string][]scope
}

type scope struct {
	rules map[string]struct{}
	start token.Position
	end   token.Position
}

// ParseComments collects the suppression comments of f.
func ParseComments(f *ast.File, fset *token.FileSet) *Manager {
	m := &Manager{scopes: make(map[string][]scope)}
	m.Add(f, fset)
	return m
}

// Add collects the suppression comments of another file.
func (m *Manager) Add(f *ast.File, fset *token.FileSet) {
	stmts := indexStatementsByLine(f, fset)
	packageLine := fset.Position(f.Package).Line

	for _, cg := range f.Comments {
		for _, comment := range cg.List {
			s, err := parseComment(comment, f, fset, stmts, packageLine)
			if err != nil {
				continue
			}
			m.scopes[s.start.Filename] = append(m.scopes[s.start.Filename], s)
		}
	}
}

func parseComment(
	comment *ast.Comment,
	f *ast.File,
	fset *token.FileSet,
	stmts map[int]ast.Stmt,
	packageLine int,
) (scope, error) {
	var s scope
	rules, err := parseDirective(comment.Text)
	if err != nil {
		return s, err
	}
	s.rules = rules
	pos := fset.Position(comment.Slash)

	switch {
	case pos.Line < packageLine:
		s.start = fset.Position(f.Pos())
		s.end = fset.Position(f.End())
		return s, nil
	case isInlineComment(fset, pos, stmts):
		stmt := stmts[pos.Line]
		s.start = fset.Position(stmt.Pos())
		s.end = fset.Position(stmt.End())
		return s, nil
	}

	if stmt, ok := stmts[pos.Line+1]; ok {
		s.start = pos
		s.end = fset.Position(stmt.End())
		return s, nil
	}
	if decl := funcAtLine(fset, f, pos.Line+1); decl != nil {
		s.start = pos
		s.end = fset.Position(decl.End())
		return s, nil
	}

	s.start = pos
	s.end = pos
	return s, nil
}

// parseDirective returns the rules a comment suppresses; an empty set
// means all of them.
func parseDirective(text string) (map[string]struct{}, error) {
	for _, prefix := range prefixes {
		rest, ok := strings.CutPrefix(text, prefix.text)
		if !ok {
			continue
		}
		if rest == "" {
			return map[string]struct{}{}, nil
		}
		if rest[0] != prefix.sep {
			return nil, errMalformed
		}
		rest = strings.TrimSpace(rest[1:])
		if rest == "" && prefix.sep == ':' {
			return nil, errNoRules
		}
		return parseRuleNames(rest), nil
	}
	return nil, errNotDirective
}

func parseRuleNames(text string) map[string]struct{} {
	rules := make(map[string]struct{})
	for _, rule := range strings.Split(text, ",") {
		if rule = strings.TrimSpace(rule); rule != "" {
			rules[rule] = struct{}{}
		}
	}
	return rules
}

// indexStatementsByLine maps each line to the first statement starting on it.
func indexStatementsByLine(f *ast.File, fset *token.FileSet) map[int]ast.Stmt {
	stmts := make(map[int]ast.Stmt)
	ast.Inspect(f, func(n ast.Node) bool {
		if stmt, ok := n.(ast.Stmt); ok {
			line := fset.Position(stmt.Pos()).Line
			if _, exists := stmts[line]; !exists {
				stmts[line] = stmt
			}
		}
		return true
	})
	return stmts
}

func funcAtLine(fset *token.FileSet, f *ast.File, line int) *ast.FuncDecl {
	for _, decl := range f.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fset.Position(fn.Pos()).Line == line {
			return fn
		}
	}
	return nil
}

// isInlineComment reports whether the comment follows code on its line.
func isInlineComment(fset *token.FileSet, pos token.Position, stmts map[int]ast.Stmt) bool {
	stmt, ok := stmts[pos.Line]
	return ok && pos.Offset > fset.Position(stmt.Pos()).Offset
}

// IsNolint reports whether rule is suppressed at pos.
func (m *Manager) IsNolint(pos token.Position, rule string) bool {
	if m == nil {
		return false
	}
	for _, s := range m.scopes[pos.Filename] {
		if pos.Line < s.start.Line || pos.Line > s.end.Line {
			continue
		}
		if len(s.rules) == 0 {
			return true
		}
		if _, ok := s.rules[rule]; ok {
			return true
		}
	}
	return false
}

// Filter drops the suppressed issues.
func (m *Manager) Filter(issues []tt.Issue) []tt.Issue {
	if m == nil {
		return issues
	}
	kept := make([]tt.Issue, 0, len(issues))
	for _, issue := range issues {
		pos := token.Position{Filename: issue.Start.Filename, Line: issue.Start.Line}
		if pos.Filename == "" {
			pos.Filename = issue.Filename
		}
		if !m.IsNolint(pos, issue.Rule) {
			kept = append(kept, issue)
		}
	}
	return kept
}
