// Package presence tracks who is joined to each session and broadcasts the
// full roster after every change.
package presence

import (
	"slices"
	"sync"
	"time"

	"github.com/moyoez/codesync-go/types"
)

// Publisher is the subset of the broker the tracker needs.
type Publisher interface {
	Publish(sessionID string, ev types.Event) int
}

type Participant struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Tracker keys participants by connection id so one user may hold several
// connections to the same session.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]map[string]Participant
	pub      Publisher
}

func New(pub Publisher) *Tracker {
	return &Tracker{
		sessions: make(map[string]map[string]Participant),
		pub:      pub,
	}
}

// Join adds p and publishes a JOIN roster snapshot. Rejoining with the same
// connection replaces the earlier entry.
func (t *Tracker) Join(sessionID string, p Participant) types.UserEvent {
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.sessions[sessionID]
	if !ok {
		set = make(map[string]Participant)
		t.sessions[sessionID] = set
	}
	set[p.ConnectionID] = p

	ev := types.UserEvent{
		Type:         types.UserJoin,
		UserID:       p.UserID,
		Username:     p.Username,
		Participants: rosterLocked(set),
	}
	// published under the lock so snapshots go out in the order they were taken
	t.pub.Publish(sessionID, ev)
	return ev
}

// Leave removes a connection and publishes a LEAVE snapshot. It reports
// false, publishing nothing, when the connection was not joined.
func (t *Tracker) Leave(sessionID, connectionID string) (types.UserEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.sessions[sessionID]
	p, ok := set[connectionID]
	if !ok {
		return types.UserEvent{}, false
	}
	delete(set, connectionID)
	if len(set) == 0 {
		delete(t.sessions, sessionID)
	}

	ev := types.UserEvent{
		Type:         types.UserLeave,
		UserID:       p.UserID,
		Username:     p.Username,
		Participants: rosterLocked(set),
	}
	t.pub.Publish(sessionID, ev)
	return ev, true
}

// Roster returns the sorted, de-duplicated usernames of a session.
func (t *Tracker) Roster(sessionID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return rosterLocked(t.sessions[sessionID])
}

func (t *Tracker) Participants(sessionID string) []Participant {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Participant, 0, len(t.sessions[sessionID]))
	for _, p := range t.sessions[sessionID] {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Participant) int { return a.JoinedAt.Compare(b.JoinedAt) })
	return out
}

// Count returns the number of joined connections.
func (t *Tracker) Count(sessionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions[sessionID])
}

// Drop forgets a session without publishing.
func (t *Tracker) Drop(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}

func rosterLocked(set map[string]Participant) []string {
	names := make([]string, 0, len(set))
	for _, p := range set {
		names = append(names, p.Username)
	}
	slices.Sort(names)
	return slices.Compact(names)
}
