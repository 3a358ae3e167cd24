package session

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/moyoez/codesync-go/terminal"
	"github.com/moyoez/codesync-go/tree"
	"github.com/moyoez/codesync-go/types"
)

// Session is one collaborative workspace. It exclusively owns its tree, its
// chat log and its (lazily started) terminal.
type Session struct {
	PublicID  string
	Name      string
	CreatedAt time.Time
	Tree      *tree.Tree

	registry *Registry

	mu           sync.Mutex
	lastActive   time.Time
	terminal     *terminal.Terminal
	closed       bool // torn down; no new terminal may be created
	chat         []types.ChatMessage
	chatSeq      uint64
	savedVersion uint64
}

// Touch marks the session as active now.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Terminal returns the session terminal, creating it (Absent) on first use.
// After teardown it fails with types.ErrNotFound.
func (s *Session) Terminal() (*terminal.Terminal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("session %q: %w", s.PublicID, types.ErrNotFound)
	}
	if s.terminal == nil {
		s.terminal = terminal.New(s.PublicID, s.registry.terminalConfig(s.PublicID), s.registry.pub)
	}
	return s.terminal, nil
}

// TerminalState reports the terminal state without creating one.
func (s *Session) TerminalState() terminal.State {
	s.mu.Lock()
	t := s.terminal
	s.mu.Unlock()
	if t == nil {
		return terminal.Absent
	}
	return t.State()
}

func (s *Session) closeTerminal() {
	s.mu.Lock()
	t := s.terminal
	s.terminal = nil
	s.closed = true
	s.mu.Unlock()
	if t != nil {
		t.Close()
	}
}

// AppendChat stamps msg, keeps it in the bounded history and returns it.
func (s *Session) AppendChat(username, content string) types.ChatMessage {
	now := time.Now()
	msg := types.ChatMessage{
		Username:  username,
		Content:   content,
		Timestamp: now.Format("15:04"),
		SentAt:    now,
	}
	limit := s.registry.opts.ChatHistory
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = append(s.chat, msg)
	if limit > 0 && len(s.chat) > limit {
		s.chat = slices.Clone(s.chat[len(s.chat)-limit:])
	}
	s.chatSeq++
	return msg
}

// Chat returns a copy of the retained chat history, oldest first.
func (s *Session) Chat() []types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ChatMessage, len(s.chat))
	copy(out, s.chat)
	return out
}

func (s *Session) version() uint64 {
	s.mu.Lock()
	seq := s.chatSeq
	s.mu.Unlock()
	return s.Tree.Version() + seq
}

// Snapshot captures the persistable state.
func (s *Session) Snapshot() types.SessionSnapshot {
	return types.SessionSnapshot{
		PublicID:  s.PublicID,
		Name:      s.Name,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.LastActive(),
		Tree:      s.Tree.Snapshot(),
		Chat:      s.Chat(),
	}
}

func (s *Session) Response(participants int) types.SessionResponse {
	return types.SessionResponse{
		PublicID:     s.PublicID,
		Name:         s.Name,
		SessionName:  s.Name,
		CreatedAt:    s.CreatedAt,
		Participants: participants,
	}
}
