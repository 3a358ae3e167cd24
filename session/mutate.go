package session

import (
	"fmt"

	"github.com/moyoez/codesync-go/tree"
	"github.com/moyoez/codesync-go/types"
)

// TreeResult is the outcome of an applied tree command: the path the node
// ended up at and the events to broadcast.
type TreeResult struct {
	NewPath string
	Events  []types.Event
}

// ApplyTree runs one tree mutation. Content writes produce no event; editors
// exchange buffers on the code topic instead.
func (s *Session) ApplyTree(cmd types.TreeCommand) (TreeResult, error) {
	t := s.Tree
	switch cmd.Op {
	case types.TreeOpCreate:
		kind := cmd.NodeType
		if kind == "" {
			kind = types.NodeTypeFile
		}
		if err := t.Create(cmd.Path, kind, cmd.Content); err != nil {
			return TreeResult{}, err
		}
		p := clean(cmd.Path)
		res := TreeResult{NewPath: p, Events: []types.Event{types.TreeEvent{Type: types.TreeCreated, Path: p}}}
		if kind == types.NodeTypeFile {
			res.Events = append(res.Events, types.FileEvent{Type: types.FileCreated, Name: p, Content: cmd.Content})
		}
		return res, nil

	case types.TreeOpWrite:
		content := ""
		if cmd.Content != nil {
			content = *cmd.Content
		}
		if err := t.Write(cmd.Path, content); err != nil {
			return TreeResult{}, err
		}
		return TreeResult{NewPath: clean(cmd.Path)}, nil

	case types.TreeOpRename:
		p, err := t.Rename(cmd.Path, cmd.NewName)
		if err != nil {
			return TreeResult{}, err
		}
		return TreeResult{NewPath: p, Events: []types.Event{
			types.TreeEvent{Type: types.TreeRenamed, Path: clean(cmd.Path), NewPath: p},
		}}, nil

	case types.TreeOpMove:
		p, err := t.Move(cmd.Path, cmd.To)
		if err != nil {
			return TreeResult{}, err
		}
		return TreeResult{NewPath: p, Events: []types.Event{
			types.TreeEvent{Type: types.TreeMoved, Path: clean(cmd.Path), NewPath: p},
		}}, nil

	case types.TreeOpDelete:
		if err := t.Delete(cmd.Path); err != nil {
			return TreeResult{}, err
		}
		return TreeResult{Events: []types.Event{types.TreeEvent{Type: types.TreeDeleted, Path: clean(cmd.Path)}}}, nil

	case types.TreeOpDuplicate:
		p, err := t.Duplicate(cmd.Path, cmd.NewName)
		if err != nil {
			return TreeResult{}, err
		}
		return TreeResult{NewPath: p, Events: []types.Event{
			types.TreeEvent{Type: types.TreeDuplicated, Path: clean(cmd.Path), NewPath: p},
		}}, nil
	}
	return TreeResult{}, fmt.Errorf("tree op %q: %w", cmd.Op, types.ErrBadRequest)
}

// clean is only called after the tree accepted p, so it cannot fail.
func clean(p string) string {
	c, _ := tree.Clean(p)
	return c
}
