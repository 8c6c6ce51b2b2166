// Package ignore reads lists of symbols the disposal analysis must skip.
//
// A list holds one qualified name per line, optionally followed by ";" and
// an explanation. "//" starts a comment and blank lines are skipped:
//
//	// pooled connections are returned, never closed
//	example.com/pool.Pool.Get ; returns a borrowed connection
//	example.com/cache.Default
package ignore

import (
	"bufio"
	"fmt"
	"go/types"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/gnolang/closelint/internal/analysis/program"
)

// Entry is one ignored symbol.
type Entry struct {
	Name    string
	Message string
	Source  string
	Line    int
}

// List is a set of ignored symbols. The zero value and nil are empty lists.
type List struct {
	entries map[string]Entry
}

// Parse reads a list from r. source names r in entries and errors.
func Parse(r io.Reader, source string) (*List, error) {
	l := &List{entries: make(map[string]Entry)}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.Index(text, "//"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		name, message, _ := strings.Cut(text, ";")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%s:%d: missing symbol name", source, line)
		}
		if strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("%s:%d: invalid symbol name %q", source, line, name)
		}
		l.entries[name] = Entry{
			Name:    name,
			Message: strings.TrimSpace(message),
			Source:  source,
			Line:    line,
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", source, err)
	}
	return l, nil
}

// Load reads and merges the lists stored in paths.
func Load(paths ...string) (*List, error) {
	merged := &List{entries: make(map[string]Entry)}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("error opening ignore list: %w", err)
		}
		l, err := Parse(f, path)
		f.Close()
		if err != nil {
			return nil, err
		}
		merged.Merge(l)
	}
	return merged, nil
}

// Merge adds the entries of other, keeping existing ones.
func (l *List) Merge(other *List) {
	if other == nil {
		return
	}
	if l.entries == nil {
		l.entries = make(map[string]Entry, len(other.entries))
	}
	for name, e := range other.entries {
		if _, ok := l.entries[name]; !ok {
			l.entries[name] = e
		}
	}
}

// Add ignores name programmatically.
func (l *List) Add(name, message string) {
	if l.entries == nil {
		l.entries = make(map[string]Entry)
	}
	l.entries[name] = Entry{Name: name, Message: message}
}

func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// ContainsName reports whether the qualified name is ignored.
func (l *List) ContainsName(name string) bool {
	if l == nil || name == "" {
		return false
	}
	_, ok := l.entries[name]
	return ok
}

// Contains reports whether obj is ignored.
func (l *List) Contains(obj types.Object) bool {
	_, ok := l.Lookup(obj)
	return ok
}

// Lookup returns the entry ignoring obj.
func (l *List) Lookup(obj types.Object) (Entry, bool) {
	if l == nil {
		return Entry{}, false
	}
	if fn, ok := obj.(*types.Func); ok {
		obj = fn.Origin()
	}
	e, ok := l.entries[program.QualifiedName(obj)]
	return e, ok
}

// ContainsType reports whether the named type behind t is ignored.
func (l *List) ContainsType(t types.Type) bool {
	return l.ContainsName(program.TypeName(t))
}

// Entries returns the entries ordered by source and line.
func (l *List) Entries() []Entry {
	if l == nil {
		return nil
	}
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Name < out[j].Name
	})
	return out
}
