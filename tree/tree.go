// Package tree implements the per-session virtual file tree: a path-addressed
// hierarchy of folders and files guarded by a single lock.
package tree

import (
	"fmt"
	"slices"
	"sync"

	"github.com/moyoez/codesync-go/metrics"
	"github.com/moyoez/codesync-go/types"
)

type node struct {
	name     string
	folder   bool
	content  string
	children []*node // insertion order, names unique
}

func (n *node) child(name string) (*node, int) {
	for i, c := range n.children {
		if c.name == name {
			return c, i
		}
	}
	return nil, -1
}

func (n *node) clone() *node {
	c := &node{name: n.name, folder: n.folder, content: n.content}
	if len(n.children) > 0 {
		c.children = make([]*node, len(n.children))
		for i, ch := range n.children {
			c.children[i] = ch.clone()
		}
	}
	return c
}

func (n *node) snapshot() types.TreeNode {
	out := types.TreeNode{Name: n.name}
	if !n.folder {
		content := n.content
		out.Type = types.NodeTypeFile
		out.Content = &content
		return out
	}
	out.Type = types.NodeTypeFolder
	out.Children = make([]types.TreeNode, 0, len(n.children))
	for _, c := range n.children {
		out.Children = append(out.Children, c.snapshot())
	}
	return out
}

// Tree is one session's file hierarchy. Every mutation holds the write lock
// for its whole duration, so mutations within a tree are totally ordered.
type Tree struct {
	mu      sync.RWMutex
	root    *node
	version uint64
}

func New() *Tree {
	return &Tree{root: &node{folder: true}}
}

// Version increases on every successful mutation.
func (t *Tree) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

func (t *Tree) lookup(segs []string) *node {
	n := t.root
	for _, s := range segs {
		if !n.folder {
			return nil
		}
		n, _ = n.child(s)
		if n == nil {
			return nil
		}
	}
	return n
}

// Create adds a file or folder at p. The parent must already exist as a folder.
func (t *Tree) Create(p, kind string, content *string) (err error) {
	defer func() { metrics.RecordTreeOp("create", err) }()
	if kind != types.NodeTypeFile && kind != types.NodeTypeFolder {
		return fmt.Errorf("node type %q: %w", kind, types.ErrBadRequest)
	}
	segs, err := split(p)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return fmt.Errorf("create root: %w", types.ErrInvalidOperation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	parent := t.lookup(segs[:len(segs)-1])
	if parent == nil || !parent.folder {
		return fmt.Errorf("parent of %q: %w", join(segs), types.ErrNotFound)
	}
	name := segs[len(segs)-1]
	if c, _ := parent.child(name); c != nil {
		return fmt.Errorf("%q already exists: %w", join(segs), types.ErrConflict)
	}
	n := &node{name: name, folder: kind == types.NodeTypeFolder}
	if !n.folder && content != nil {
		n.content = *content
	}
	parent.children = append(parent.children, n)
	t.version++
	return nil
}

// Read returns a deep copy of the node at p. The empty path reads the whole tree.
func (t *Tree) Read(p string) (types.TreeNode, error) {
	segs, err := split(p)
	if err != nil {
		return types.TreeNode{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.lookup(segs)
	if n == nil {
		return types.TreeNode{}, fmt.Errorf("%q: %w", join(segs), types.ErrNotFound)
	}
	return n.snapshot(), nil
}

// ReadContent returns the content of the file at p.
func (t *Tree) ReadContent(p string) (string, error) {
	segs, err := split(p)
	if err != nil {
		return "", err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.lookup(segs)
	switch {
	case n == nil:
		return "", fmt.Errorf("%q: %w", join(segs), types.ErrNotFound)
	case n.folder:
		return "", fmt.Errorf("%q: %w", join(segs), types.ErrNotAFile)
	}
	return n.content, nil
}

// Write replaces the content of the file at p. Last writer wins.
func (t *Tree) Write(p, content string) (err error) {
	defer func() { metrics.RecordTreeOp("write", err) }()
	segs, err := split(p)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.lookup(segs)
	switch {
	case n == nil:
		return fmt.Errorf("%q: %w", join(segs), types.ErrNotFound)
	case n.folder:
		return fmt.Errorf("%q: %w", join(segs), types.ErrNotAFile)
	}
	n.content = content
	t.version++
	return nil
}

// Rename changes the last segment of p and returns the new path. Descendant
// paths follow since they are derived from their ancestors.
func (t *Tree) Rename(p, newName string) (_ string, err error) {
	defer func() { metrics.RecordTreeOp("rename", err) }()
	segs, err := split(p)
	if err != nil {
		return "", err
	}
	if len(segs) == 0 {
		return "", fmt.Errorf("rename root: %w", types.ErrInvalidOperation)
	}
	if err := validName(newName); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	parent := t.lookup(segs[:len(segs)-1])
	if parent == nil {
		return "", fmt.Errorf("%q: %w", join(segs), types.ErrNotFound)
	}
	n, _ := parent.child(segs[len(segs)-1])
	if n == nil {
		return "", fmt.Errorf("%q: %w", join(segs), types.ErrNotFound)
	}
	newSegs := append(slices.Clone(segs[:len(segs)-1]), newName)
	if n.name == newName {
		return join(newSegs), nil
	}
	if c, _ := parent.child(newName); c != nil {
		return "", fmt.Errorf("%q already exists: %w", join(newSegs), types.ErrConflict)
	}
	n.name = newName
	t.version++
	return join(newSegs), nil
}

// Move relocates the node at from under the folder to and returns its new
// path. Missing folders along to are created, but only once every check has
// passed, so a failed move leaves the tree untouched.
func (t *Tree) Move(from, to string) (_ string, err error) {
	defer func() { metrics.RecordTreeOp("move", err) }()
	src, err := split(from)
	if err != nil {
		return "", err
	}
	dst, err := split(to)
	if err != nil {
		return "", err
	}
	if len(src) == 0 {
		return "", fmt.Errorf("move root: %w", types.ErrInvalidOperation)
	}
	if isPrefix(src, dst) {
		return "", fmt.Errorf("move %q into itself: %w", join(src), types.ErrInvalidOperation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	parent := t.lookup(src[:len(src)-1])
	if parent == nil {
		return "", fmt.Errorf("%q: %w", join(src), types.ErrNotFound)
	}
	n, idx := parent.child(src[len(src)-1])
	if n == nil {
		return "", fmt.Errorf("%q: %w", join(src), types.ErrNotFound)
	}

	// walk as far as the destination exists
	dest, depth := t.root, 0
	for ; depth < len(dst); depth++ {
		next, _ := dest.child(dst[depth])
		if next == nil {
			break
		}
		if !next.folder {
			return "", fmt.Errorf("%q: %w", join(dst[:depth+1]), types.ErrNotAFolder)
		}
		dest = next
	}
	newPath := join(append(slices.Clone(dst), n.name))
	if depth == len(dst) {
		if c, _ := dest.child(n.name); c != nil {
			return "", fmt.Errorf("%q already exists: %w", newPath, types.ErrConflict)
		}
	}

	for ; depth < len(dst); depth++ {
		f := &node{name: dst[depth], folder: true}
		dest.children = append(dest.children, f)
		dest = f
	}
	parent.children = slices.Delete(parent.children, idx, idx+1)
	dest.children = append(dest.children, n)
	t.version++
	return newPath, nil
}

// Delete removes p and everything below it. Deleting a missing path succeeds.
func (t *Tree) Delete(p string) (err error) {
	defer func() { metrics.RecordTreeOp("delete", err) }()
	segs, err := split(p)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return fmt.Errorf("delete root: %w", types.ErrInvalidOperation)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	parent := t.lookup(segs[:len(segs)-1])
	if parent == nil || !parent.folder {
		return nil
	}
	if _, idx := parent.child(segs[len(segs)-1]); idx >= 0 {
		parent.children = slices.Delete(parent.children, idx, idx+1)
		t.version++
	}
	return nil
}

// Duplicate deep-copies p next to itself. An empty newName picks the first
// free "<stem> copy<ext>" name. The new path is returned.
func (t *Tree) Duplicate(p, newName string) (_ string, err error) {
	defer func() { metrics.RecordTreeOp("duplicate", err) }()
	segs, err := split(p)
	if err != nil {
		return "", err
	}
	if len(segs) == 0 {
		return "", fmt.Errorf("duplicate root: %w", types.ErrInvalidOperation)
	}
	if newName != "" {
		if err := validName(newName); err != nil {
			return "", err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	parent := t.lookup(segs[:len(segs)-1])
	if parent == nil {
		return "", fmt.Errorf("%q: %w", join(segs), types.ErrNotFound)
	}
	n, idx := parent.child(segs[len(segs)-1])
	if n == nil {
		return "", fmt.Errorf("%q: %w", join(segs), types.ErrNotFound)
	}
	name := newName
	if name == "" {
		for i := 1; ; i++ {
			name = copyName(n.name, n.folder, i)
			if c, _ := parent.child(name); c == nil {
				break
			}
		}
	} else if c, _ := parent.child(name); c != nil {
		return "", fmt.Errorf("%q already exists: %w", name, types.ErrConflict)
	}
	dup := n.clone()
	dup.name = name
	parent.children = slices.Insert(parent.children, idx+1, dup)
	t.version++
	return join(append(slices.Clone(segs[:len(segs)-1]), name)), nil
}

// Snapshot returns a deep copy of the whole tree rooted at "".
func (t *Tree) Snapshot() types.TreeNode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root.snapshot()
}

// Restore replaces the tree with snap. Nodes with invalid or duplicate names are skipped.
func (t *Tree) Restore(snap types.TreeNode) {
	root := &node{folder: true}
	restoreChildren(root, snap.Children)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = root
	t.version++
}

func restoreChildren(parent *node, children []types.TreeNode) {
	for _, c := range children {
		if validName(c.Name) != nil {
			continue
		}
		if existing, _ := parent.child(c.Name); existing != nil {
			continue
		}
		n := &node{name: c.Name, folder: c.Type == types.NodeTypeFolder}
		if n.folder {
			restoreChildren(n, c.Children)
		} else if c.Content != nil {
			n.content = *c.Content
		}
		parent.children = append(parent.children, n)
	}
}

// Count returns the number of files and folders, root excluded.
func (t *Tree) Count() (files, folders int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var walk func(*node)
	walk = func(n *node) {
		for _, c := range n.children {
			if c.folder {
				folders++
				walk(c)
			} else {
				files++
			}
		}
	}
	walk(t.root)
	return files, folders
}

type entry struct {
	path    string
	folder  bool
	content string
}

// entries lists every node depth-first. Callers hold the lock.
func (t *Tree) entries() []entry {
	var out []entry
	var walk func(prefix string, n *node)
	walk = func(prefix string, n *node) {
		for _, c := range n.children {
			p := c.name
			if prefix != "" {
				p = prefix + "/" + c.name
			}
			out = append(out, entry{path: p, folder: c.folder, content: c.content})
			if c.folder {
				walk(p, c)
			}
		}
	}
	walk("", t.root)
	return out
}

// Flat projects the tree onto the legacy flat file list. Folders appear as
// "dir/" entries with no content. The list is read-only; the tree stays the
// only source of truth.
func (t *Tree) Flat() []types.FileData {
	t.mu.RLock()
	entries := t.entries()
	t.mu.RUnlock()

	files := make([]types.FileData, 0, len(entries))
	for _, e := range entries {
		if e.folder {
			files = append(files, types.FileData{Name: e.path + "/", Folder: true})
			continue
		}
		content := e.content
		files = append(files, types.FileData{Name: e.path, Content: &content})
	}
	return files
}
