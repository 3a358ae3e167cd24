package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/codesync-go/types"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "codesync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": db,
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			u := types.User{Username: "alice", Email: "a@example.com", PasswordHash: "hash", CreatedAt: time.Now()}
			require.NoError(t, s.CreateUser(ctx, u))
			assert.ErrorIs(t, s.CreateUser(ctx, u), types.ErrConflict)

			got, err := s.GetUser(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, "a@example.com", got.Email)
			assert.Equal(t, "hash", got.PasswordHash)

			_, err = s.GetUser(ctx, "bob")
			assert.ErrorIs(t, err, types.ErrNotFound)
		})
	}
}

func TestSessionSnapshots(t *testing.T) {
	ctx := context.Background()
	content := "x=1"
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			snap := types.SessionSnapshot{
				PublicID:  "s1",
				Name:      "demo",
				CreatedAt: time.Now().Add(-time.Hour),
				Tree: types.TreeNode{Type: types.NodeTypeFolder, Children: []types.TreeNode{
					{Name: "a.js", Type: types.NodeTypeFile, Content: &content},
				}},
				Chat: []types.ChatMessage{{Username: "u", Content: "hi", Timestamp: "10:00"}},
			}
			require.NoError(t, s.SaveSession(ctx, snap))
			snap.Name = "renamed"
			require.NoError(t, s.SaveSession(ctx, snap))

			got, err := s.LoadSessions(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "renamed", got[0].Name)
			require.Len(t, got[0].Tree.Children, 1)
			assert.Equal(t, "x=1", *got[0].Tree.Children[0].Content)
			require.Len(t, got[0].Chat, 1)
			assert.Equal(t, "hi", got[0].Chat[0].Content)

			require.NoError(t, s.DeleteSession(ctx, "s1"))
			require.NoError(t, s.DeleteSession(ctx, "s1"))
			got, err = s.LoadSessions(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}
