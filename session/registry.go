// Package session owns the set of live sessions: creation, lookup, teardown,
// idle eviction and snapshot persistence.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/moyoez/codesync-go/metrics"
	"github.com/moyoez/codesync-go/store"
	"github.com/moyoez/codesync-go/terminal"
	"github.com/moyoez/codesync-go/tool"
	"github.com/moyoez/codesync-go/tree"
	"github.com/moyoez/codesync-go/types"
)

type Options struct {
	IdleTimeout   time.Duration // 0 disables eviction
	FlushInterval time.Duration
	ChatHistory   int
	Terminal      types.TerminalConfig
	// InUse, when set, keeps sessions with joined participants from being evicted.
	InUse func(publicID string) bool
}

// OptionsFromConfig builds registry options from the application config.
func OptionsFromConfig(cfg types.AppConfig) Options {
	return Options{
		IdleTimeout:   cfg.Session.IdleTimeout,
		FlushInterval: cfg.Session.FlushInterval,
		ChatHistory:   cfg.Session.ChatHistory,
		Terminal:      cfg.Terminal,
	}
}

type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	opts      Options
	pub       terminal.Publisher
	snapshots store.SnapshotStore
	teardown  []func(publicID string)
}

// NewRegistry creates an empty registry. snapshots may be nil to disable persistence.
func NewRegistry(opts Options, pub terminal.Publisher, snapshots store.SnapshotStore) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		opts:      opts,
		pub:       pub,
		snapshots: snapshots,
	}
}

// OnTeardown registers fn to run after a session is deleted or evicted.
func (r *Registry) OnTeardown(fn func(publicID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teardown = append(r.teardown, fn)
}

func (r *Registry) terminalConfig(publicID string) terminal.Config {
	root := r.opts.Terminal.WorkRoot
	if root == "" {
		root = filepath.Join(os.TempDir(), "codesync")
	}
	return terminal.Config{
		Shell:   r.opts.Terminal.Shell,
		WorkDir: filepath.Join(root, publicID),
		Cols:    r.opts.Terminal.Cols,
		Rows:    r.opts.Terminal.Rows,
	}
}

func (r *Registry) newSession(publicID, name string, createdAt time.Time) *Session {
	return &Session{
		PublicID:   publicID,
		Name:       name,
		CreatedAt:  createdAt,
		Tree:       tree.New(),
		registry:   r,
		lastActive: time.Now(),
	}
}

// Create allocates a session with a fresh random id and an empty tree.
func (r *Registry) Create(name string) *Session {
	name = strings.TrimSpace(name)
	if name == "" {
		name = tool.RandomSessionName()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := tool.GenerateRandomUUID()
	for r.sessions[id] != nil {
		id = tool.GenerateRandomUUID()
	}
	s := r.newSession(id, name, time.Now())
	// not yet saved, so the first flush persists it
	s.savedVersion = ^uint64(0)
	r.sessions[id] = s
	metrics.SetSessionsActive(len(r.sessions))
	tool.DefaultLogger.Infof("[Registry] created session %s (%s)", id, name)
	return s
}

// Get returns a live session and marks it active.
func (r *Registry) Get(publicID string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[publicID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", publicID, types.ErrNotFound)
	}
	s.Touch()
	return s, nil
}

// List returns the live sessions, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Session) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Delete tears a session down: its terminal is killed, teardown hooks release
// subscriptions and presence, and the persisted snapshot is removed.
func (r *Registry) Delete(ctx context.Context, publicID string) error {
	r.mu.Lock()
	s, ok := r.sessions[publicID]
	if ok {
		delete(r.sessions, publicID)
	}
	hooks := slices.Clone(r.teardown)
	metrics.SetSessionsActive(len(r.sessions))
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %q: %w", publicID, types.ErrNotFound)
	}

	s.closeTerminal()
	for _, fn := range hooks {
		fn(publicID)
	}
	if r.snapshots != nil {
		if err := r.snapshots.DeleteSession(ctx, publicID); err != nil {
			tool.DefaultLogger.Errorf("[Registry] delete snapshot %s: %v", publicID, err)
		}
	}
	tool.DefaultLogger.Infof("[Registry] deleted session %s", publicID)
	return nil
}

// EvictIdle deletes sessions idle for longer than the idle timeout and
// returns how many were evicted.
func (r *Registry) EvictIdle(ctx context.Context, now time.Time) int {
	if r.opts.IdleTimeout <= 0 {
		return 0
	}
	var idle []string
	for _, s := range r.List() {
		if now.Sub(s.LastActive()) < r.opts.IdleTimeout {
			continue
		}
		if r.opts.InUse != nil && r.opts.InUse(s.PublicID) {
			continue
		}
		idle = append(idle, s.PublicID)
	}
	evicted := 0
	for _, id := range idle {
		if err := r.Delete(ctx, id); err == nil {
			evicted++
			tool.DefaultLogger.Infof("[Registry] evicted idle session %s", id)
		}
	}
	return evicted
}

// Flush saves every session changed since its last save.
func (r *Registry) Flush(ctx context.Context) error {
	if r.snapshots == nil {
		return nil
	}
	var errs []error
	for _, s := range r.List() {
		v := s.version()
		s.mu.Lock()
		dirty := s.savedVersion != v
		s.mu.Unlock()
		if !dirty {
			continue
		}
		if err := r.snapshots.SaveSession(ctx, s.Snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", s.PublicID, err))
			continue
		}
		s.mu.Lock()
		s.savedVersion = v
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Restore loads persisted sessions. Sessions already live are left alone.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.snapshots == nil {
		return 0, nil
	}
	snaps, err := r.snapshots.LoadSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("load sessions: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	restored := 0
	for _, snap := range snaps {
		if _, ok := r.sessions[snap.PublicID]; ok {
			continue
		}
		s := r.newSession(snap.PublicID, snap.Name, snap.CreatedAt)
		s.Tree.Restore(snap.Tree)
		s.chat = snap.Chat
		if !snap.UpdatedAt.IsZero() && snap.UpdatedAt.Before(s.lastActive) {
			s.lastActive = snap.UpdatedAt
		}
		s.savedVersion = s.Tree.Version()
		r.sessions[snap.PublicID] = s
		restored++
	}
	metrics.SetSessionsActive(len(r.sessions))
	return restored, nil
}

// Run evicts idle sessions and flushes snapshots until ctx is done, then
// flushes one last time.
func (r *Registry) Run(ctx context.Context) {
	interval := r.opts.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := r.Flush(flushCtx); err != nil {
				tool.DefaultLogger.Errorf("[Registry] final flush: %v", err)
			}
			cancel()
			return
		case now := <-ticker.C:
			r.EvictIdle(ctx, now)
			if err := r.Flush(ctx); err != nil {
				tool.DefaultLogger.Errorf("[Registry] flush: %v", err)
			}
		}
	}
}

// Close kills every terminal without deleting sessions. Used on shutdown.
func (r *Registry) Close() {
	for _, s := range r.List() {
		s.closeTerminal()
	}
}
