package tree

import (
	"bytes"
	"fmt"
	"io"
	"slices"

	"github.com/klauspost/compress/zip"

	"github.com/moyoez/codesync-go/metrics"
	"github.com/moyoez/codesync-go/types"
)

// WriteZip streams the whole tree as a zip archive. Folders get explicit
// "dir/" entries so empty folders survive a round trip.
func (t *Tree) WriteZip(w io.Writer) error {
	t.mu.RLock()
	entries := t.entries()
	t.mu.RUnlock()

	zw := zip.NewWriter(w)
	for _, e := range entries {
		if e.folder {
			if _, err := zw.Create(e.path + "/"); err != nil {
				return fmt.Errorf("zip folder %q: %w", e.path, err)
			}
			continue
		}
		fw, err := zw.Create(e.path)
		if err != nil {
			return fmt.Errorf("zip file %q: %w", e.path, err)
		}
		if _, err := io.WriteString(fw, e.content); err != nil {
			return fmt.Errorf("zip file %q: %w", e.path, err)
		}
	}
	return zw.Close()
}

// ensureFolder walks segs from root creating missing folders.
func ensureFolder(root *node, segs []string) (*node, error) {
	n := root
	for i, s := range segs {
		next, _ := n.child(s)
		if next == nil {
			next = &node{name: s, folder: true}
			n.children = append(n.children, next)
		} else if !next.folder {
			return nil, fmt.Errorf("%q: %w", join(segs[:i+1]), types.ErrNotAFolder)
		}
		n = next
	}
	return n, nil
}

func putFile(root *node, segs []string, data []byte) error {
	parent, err := ensureFolder(root, segs[:len(segs)-1])
	if err != nil {
		return err
	}
	name := segs[len(segs)-1]
	if n, _ := parent.child(name); n != nil {
		if n.folder {
			return fmt.Errorf("%q: %w", join(segs), types.ErrNotAFile)
		}
		n.content = string(data)
		return nil
	}
	parent.children = append(parent.children, &node{name: name, content: string(data)})
	return nil
}

// ImportFile stores data as folder/name, creating folders as needed and
// overwriting an existing file. It returns the stored path.
func (t *Tree) ImportFile(folder, name string, data []byte) (_ string, err error) {
	defer func() { metrics.RecordTreeOp("upload", err) }()
	dir, err := split(folder)
	if err != nil {
		return "", err
	}
	if err := validName(name); err != nil {
		return "", err
	}
	segs := append(slices.Clone(dir), name)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := putFile(t.root, segs, data); err != nil {
		return "", err
	}
	t.version++
	return join(segs), nil
}

// ImportZip unpacks an archive under folder. Entries with relative segments
// are rejected. The archive is applied to a copy of the tree that replaces
// the live one only if every entry fits, so a failed import changes nothing.
// maxBytes bounds the total uncompressed size (0 means no bound).
func (t *Tree) ImportZip(folder string, data []byte, maxBytes int64) (_ int, err error) {
	defer func() { metrics.RecordTreeOp("upload", err) }()
	dir, err := split(folder)
	if err != nil {
		return 0, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("read archive: %v: %w", err, types.ErrBadRequest)
	}

	type item struct {
		segs   []string
		folder bool
		data   []byte
	}
	var (
		items []item
		total int64
	)
	for _, f := range zr.File {
		segs, err := split(f.Name)
		if err != nil {
			return 0, err
		}
		if len(segs) == 0 {
			continue
		}
		segs = append(slices.Clone(dir), segs...)
		if f.FileInfo().IsDir() {
			items = append(items, item{segs: segs, folder: true})
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return 0, fmt.Errorf("open %q: %v: %w", f.Name, err, types.ErrBadRequest)
		}
		r := io.Reader(rc)
		if maxBytes > 0 {
			r = io.LimitReader(rc, maxBytes-total+1)
		}
		b, err := io.ReadAll(r)
		rc.Close()
		if err != nil {
			return 0, fmt.Errorf("read %q: %v: %w", f.Name, err, types.ErrBadRequest)
		}
		total += int64(len(b))
		if maxBytes > 0 && total > maxBytes {
			return 0, fmt.Errorf("archive exceeds %d bytes: %w", maxBytes, types.ErrBadRequest)
		}
		items = append(items, item{segs: segs, data: b})
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	root := t.root.clone()
	files := 0
	for _, it := range items {
		if it.folder {
			if _, err := ensureFolder(root, it.segs); err != nil {
				return 0, err
			}
			continue
		}
		if err := putFile(root, it.segs, it.data); err != nil {
			return 0, err
		}
		files++
	}
	t.root = root
	t.version++
	return files, nil
}
