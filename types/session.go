package types

import "time"

// CreateSessionRequest is the body of POST /api/sessions
type CreateSessionRequest struct {
	SessionName string `json:"sessionName"`
}

// SessionResponse describes one live session.
type SessionResponse struct {
	PublicID     string    `json:"publicId"`
	Name         string    `json:"name"`
	SessionName  string    `json:"sessionName"`
	CreatedAt    time.Time `json:"createdAt"`
	Participants int       `json:"participants"`
}

// LegacySessionResponse is the flat bootstrap listing of GET /api/sessions/:id
type LegacySessionResponse struct {
	PublicID    string     `json:"publicId"`
	SessionName string     `json:"sessionName"`
	Files       []FileData `json:"files"`
}

// SessionSnapshot is the persisted form of a session.
type SessionSnapshot struct {
	PublicID  string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Tree      TreeNode
	Chat      []ChatMessage
}
