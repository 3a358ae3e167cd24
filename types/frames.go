package types

// Bodies of inbound STOMP SEND frames, keyed by destination feature.

// JoinRequest is sent to /app/user.join/{id}
type JoinRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Type     string `json:"type"`
}

// ChatRequest is sent to /app/chat/{id}
type ChatRequest struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

// TerminalInput is sent to /app/terminal.in/{id}. Older clients use "data", newer ones "input".
type TerminalInput struct {
	Data  string `json:"data"`
	Input string `json:"input"`
}

// Text returns whichever input field is set.
func (in TerminalInput) Text() string {
	if in.Input != "" {
		return in.Input
	}
	return in.Data
}

// ResizeRequest is sent to /app/terminal.resize/{id}
type ResizeRequest struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// ExecuteRequest is sent to /app/execute/{id}. Content wins over the stored
// file when present; the command line always comes from the file extension.
type ExecuteRequest struct {
	FileName string  `json:"fileName"`
	Path     string  `json:"path"`
	Content  *string `json:"content"`
}

// Tree command ops accepted on /app/tree/{id}.
const (
	TreeOpCreate    = "create"
	TreeOpWrite     = "write"
	TreeOpRename    = "rename"
	TreeOpMove      = "move"
	TreeOpDelete    = "delete"
	TreeOpDuplicate = "duplicate"
)

// TreeCommand is sent to /app/tree/{id}. With Op set it is a mutation;
// without, it is a client notification relayed as a TreeEvent.
type TreeCommand struct {
	Op       string        `json:"op"`
	Type     TreeEventType `json:"type"`
	NodeType string        `json:"nodeType"`
	Path     string        `json:"path"`
	NewPath  string        `json:"newPath"`
	NewName  string        `json:"newName"`
	To       string        `json:"to"`
	Content  *string       `json:"content"`
}
