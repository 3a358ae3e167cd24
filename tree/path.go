package tree

import (
	"fmt"
	"strings"

	"github.com/moyoez/codesync-go/types"
)

// split normalizes p into its segments. Repeated and surrounding slashes are
// dropped, so "/src//a.js/" and "src/a.js" address the same node. The root
// is the empty path and yields no segments.
func split(p string) ([]string, error) {
	raw := strings.Split(p, "/")
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			continue
		}
		if s == "." || s == ".." {
			return nil, fmt.Errorf("path %q: relative segment: %w", p, types.ErrInvalidOperation)
		}
		segs = append(segs, s)
	}
	return segs, nil
}

func join(segs []string) string {
	return strings.Join(segs, "/")
}

// Clean returns the canonical form of p, or an error for relative segments.
func Clean(p string) (string, error) {
	segs, err := split(p)
	if err != nil {
		return "", err
	}
	return join(segs), nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return fmt.Errorf("name %q: %w", name, types.ErrInvalidOperation)
	}
	return nil
}

// isPrefix reports whether prefix is equal to or an ancestor of segs.
func isPrefix(prefix, segs []string) bool {
	if len(prefix) > len(segs) {
		return false
	}
	for i := range prefix {
		if prefix[i] != segs[i] {
			return false
		}
	}
	return true
}

// copyName returns the n-th generated duplicate name: "a copy.js", "a copy 2.js", ...
func copyName(name string, folder bool, n int) string {
	stem, ext := name, ""
	if !folder {
		if i := strings.LastIndexByte(name, '.'); i > 0 {
			stem, ext = name[:i], name[i:]
		}
	}
	if n <= 1 {
		return stem + " copy" + ext
	}
	return fmt.Sprintf("%s copy %d%s", stem, n, ext)
}
