package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/moyoez/codesync-go/types"
)

// Memory keeps everything in process memory. Used when no database path is
// configured and in tests.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]types.User
	sessions map[string]types.SessionSnapshot
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]types.User),
		sessions: make(map[string]types.SessionSnapshot),
	}
}

func (m *Memory) CreateUser(_ context.Context, u types.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Username]; ok {
		return fmt.Errorf("user %q: %w", u.Username, types.ErrConflict)
	}
	m.users[u.Username] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, username string) (types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return types.User{}, fmt.Errorf("user %q: %w", username, types.ErrNotFound)
	}
	return u, nil
}

func (m *Memory) SaveSession(_ context.Context, snap types.SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.Chat = slices.Clone(snap.Chat)
	m.sessions[snap.PublicID] = snap
	return nil
}

func (m *Memory) DeleteSession(_ context.Context, publicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, publicID)
	return nil
}

func (m *Memory) LoadSessions(_ context.Context) ([]types.SessionSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.SessionSnapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b types.SessionSnapshot) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *Memory) Close() error { return nil }
