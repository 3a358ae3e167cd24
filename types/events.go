package types

import "time"

// TopicKind is the event category of a session-scoped topic.
type TopicKind string

const (
	TopicUser     TopicKind = "user"
	TopicChat     TopicKind = "chat"
	TopicFile     TopicKind = "file"
	TopicTree     TopicKind = "tree"
	TopicTerminal TopicKind = "terminal"
	TopicCode     TopicKind = "code"
	TopicCursor   TopicKind = "cursor"
)

var topicKinds = map[string]TopicKind{
	string(TopicUser):     TopicUser,
	string(TopicChat):     TopicChat,
	string(TopicFile):     TopicFile,
	string(TopicTree):     TopicTree,
	string(TopicTerminal): TopicTerminal,
	string(TopicCode):     TopicCode,
	string(TopicCursor):   TopicCursor,
}

// ParseTopicKind returns the TopicKind named by s.
func ParseTopicKind(s string) (TopicKind, bool) {
	k, ok := topicKinds[s]
	return k, ok
}

// Destination returns the STOMP destination of the topic for one session.
func (k TopicKind) Destination(sessionID string) string {
	return "/topic/" + string(k) + "/" + sessionID
}

// Event is a payload publishable on a session topic. The set of
// implementations is closed: every event shape lives in this file and
// knows the topic it belongs to.
type Event interface {
	Topic() TopicKind
	isEvent()
}

type UserEventType string

const (
	UserJoin  UserEventType = "JOIN"
	UserLeave UserEventType = "LEAVE"
)

// UserEvent carries the full roster after a join or leave.
type UserEvent struct {
	Type         UserEventType `json:"type"`
	UserID       string        `json:"userId,omitempty"`
	Username     string        `json:"username,omitempty"`
	Participants []string      `json:"participants"`
}

// ChatMessage is one chat line. Timestamp is the "HH:mm" label shown by clients.
type ChatMessage struct {
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp string    `json:"timestamp"`
	SentAt    time.Time `json:"sentAt"`
}

type FileEventType string

const (
	FileCreated FileEventType = "CREATED"
	FileUpdated FileEventType = "UPDATED"
)

// FileEvent is the legacy flat-list notification.
type FileEvent struct {
	Type    FileEventType `json:"type"`
	Name    string        `json:"name"`
	Content *string       `json:"content,omitempty"`
}

type TreeEventType string

const (
	TreeCreated    TreeEventType = "CREATED"
	TreeUpdated    TreeEventType = "UPDATED"
	TreeDeleted    TreeEventType = "DELETED"
	TreeRenamed    TreeEventType = "RENAMED"
	TreeMoved      TreeEventType = "MOVED"
	TreeDuplicated TreeEventType = "DUPLICATED"
	TreeRefresh    TreeEventType = "REFRESH"
)

// Valid reports whether t is a known tree event type.
func (t TreeEventType) Valid() bool {
	switch t {
	case TreeCreated, TreeUpdated, TreeDeleted, TreeRenamed, TreeMoved, TreeDuplicated, TreeRefresh:
		return true
	}
	return false
}

type TreeEvent struct {
	Type    TreeEventType `json:"type"`
	Path    string        `json:"path,omitempty"`
	NewPath string        `json:"newPath,omitempty"`
}

// TerminalOutput wraps a chunk of pty output.
type TerminalOutput struct {
	Output string `json:"output"`
}

// CodeEvent relays a full editor buffer.
type CodeEvent struct {
	Content  string `json:"content"`
	FilePath string `json:"filePath"`
	UserID   string `json:"userId"`
}

// CursorEvent relays a caret position (1-based).
type CursorEvent struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	LineNumber int    `json:"lineNumber"`
	Column     int    `json:"column"`
}

func (UserEvent) Topic() TopicKind      { return TopicUser }
func (ChatMessage) Topic() TopicKind    { return TopicChat }
func (FileEvent) Topic() TopicKind      { return TopicFile }
func (TreeEvent) Topic() TopicKind      { return TopicTree }
func (TerminalOutput) Topic() TopicKind { return TopicTerminal }
func (CodeEvent) Topic() TopicKind      { return TopicCode }
func (CursorEvent) Topic() TopicKind    { return TopicCursor }

func (UserEvent) isEvent()      {}
func (ChatMessage) isEvent()    {}
func (FileEvent) isEvent()      {}
func (TreeEvent) isEvent()      {}
func (TerminalOutput) isEvent() {}
func (CodeEvent) isEvent()      {}
func (CursorEvent) isEvent()    {}
