package tree

import (
	"iter"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/moyoez/codesync-go/types"
)

const DefaultSearchLimit = 100

// Query selects lines containing Text (case-sensitive). Glob, when set,
// restricts the scan to file paths matching a doublestar pattern.
type Query struct {
	Text  string
	Glob  string
	Limit int
}

// ValidGlob reports whether pattern is a usable Query.Glob.
func ValidGlob(pattern string) bool {
	return pattern == "" || doublestar.ValidatePattern(pattern)
}

// Search returns a lazy sequence of at most q.Limit matches. File contents are
// captured under the read lock when iteration starts; each range over the
// sequence is an independent scan.
func (t *Tree) Search(q Query) iter.Seq[types.SearchMatch] {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return func(yield func(types.SearchMatch) bool) {
		if q.Text == "" {
			return
		}
		t.mu.RLock()
		entries := t.entries()
		t.mu.RUnlock()

		found := 0
		for _, e := range entries {
			if e.folder {
				continue
			}
			if q.Glob != "" {
				if ok, err := doublestar.Match(q.Glob, e.path); err != nil || !ok {
					continue
				}
			}
			n := 0
			for line := range strings.Lines(e.content) {
				n++
				line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
				if !strings.Contains(line, q.Text) {
					continue
				}
				if !yield(types.SearchMatch{Path: e.path, Line: n, Content: line}) {
					return
				}
				if found++; found >= limit {
					return
				}
			}
		}
	}
}
