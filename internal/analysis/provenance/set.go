package provenance

import (
	"fmt"
	"go/ast"
	"go/types"
	"strings"
)

// Mode selects how far a query follows values.
type Mode int

const (
	Member Mode = iota
	Recursive
	RecursiveInside
)

func (m Mode) String() string {
	switch m {
	case Member:
		return "member"
	case Recursive:
		return "recursive"
	case RecursiveInside:
		return "recursive-inside"
	default:
		return "unknown"
	}
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{Member, Recursive, RecursiveInside} {
		if m.String() == s {
			return m, nil
		}
	}
	return Member, fmt.Errorf("unknown search mode %q", s)
}

// Set is an insertion-ordered set of expressions compared by node identity.
type Set struct {
	items []ast.Expr
	index map[ast.Expr]struct{}
}

// NewSet returns a set holding items.
func NewSet(items ...ast.Expr) *Set {
	s := &Set{index: make(map[ast.Expr]struct{}, len(items))}
	for _, e := range items {
		s.Add(e)
	}
	return s
}

// Add inserts e and reports whether it was absent.
func (s *Set) Add(e ast.Expr) bool {
	if e == nil {
		return false
	}
	if _, ok := s.index[e]; ok {
		return false
	}
	s.index[e] = struct{}{}
	s.items = append(s.items, e)
	return true
}

func (s *Set) Contains(e ast.Expr) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[e]
	return ok
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Items returns the expressions in insertion order.
func (s *Set) Items() []ast.Expr {
	if s == nil {
		return nil
	}
	out := make([]ast.Expr, len(s.items))
	copy(out, s.items)
	return out
}

// Equal reports whether both sets hold the same nodes, in any order.
func (s *Set) Equal(other *Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, e := range s.Items() {
		if !other.Contains(e) {
			return false
		}
	}
	return true
}

func (s *Set) Clone() *Set {
	return NewSet(s.Items()...)
}

func (s *Set) String() string {
	parts := make([]string, 0, s.Len())
	for _, e := range s.Items() {
		parts = append(parts, types.ExprString(e))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (s *Set) reset() {
	clear(s.index)
	s.items = s.items[:0]
}
