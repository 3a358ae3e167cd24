package gateway

import (
	"fmt"
	"path"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/moyoez/codesync-go/presence"
	"github.com/moyoez/codesync-go/session"
	"github.com/moyoez/codesync-go/types"
)

// handlerFunc serves one SEND frame addressed to /app/<feature>/<sessionId>.
// Errors are only logged: the sender reconciles by re-fetching state.
type handlerFunc func(c *conn, s *session.Session, body []byte) error

func (g *Gateway) dispatchTable() map[string]handlerFunc {
	return map[string]handlerFunc{
		"user.join":       g.handleJoin,
		"user.leave":      g.handleLeave,
		"chat":            g.handleChat,
		"tree":            g.handleTree,
		"terminal.start":  g.handleTerminalStart,
		"terminal.in":     g.handleTerminalInput,
		"terminal.resize": g.handleTerminalResize,
		"execute":         g.handleExecute,
		"code":            g.handleCode,
		"cursor":          g.handleCursor,
		"file":            g.handleFile,
	}
}

func decode(body []byte, v any) error {
	if len(body) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, types.ErrBadRequest)
	}
	return nil
}

func (g *Gateway) publish(sessionID string, events ...types.Event) {
	for _, ev := range events {
		g.broker.Publish(sessionID, ev)
	}
}

func (g *Gateway) handleJoin(c *conn, s *session.Session, body []byte) error {
	var req types.JoinRequest
	if err := decode(body, &req); err != nil {
		return err
	}
	username := c.username(strings.TrimSpace(req.Username))
	userID := req.UserID
	if userID == "" {
		userID = username
	}
	c.markJoined(s.PublicID, true)
	g.presence.Join(s.PublicID, presence.Participant{
		ConnectionID: c.id,
		UserID:       userID,
		Username:     username,
	})
	return nil
}

func (g *Gateway) handleLeave(c *conn, s *session.Session, _ []byte) error {
	c.markJoined(s.PublicID, false)
	g.presence.Leave(s.PublicID, c.id)
	return nil
}

func (g *Gateway) handleChat(c *conn, s *session.Session, body []byte) error {
	var req types.ChatRequest
	if err := decode(body, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("empty chat message: %w", types.ErrBadRequest)
	}
	msg := s.AppendChat(c.username(strings.TrimSpace(req.Username)), req.Content)
	g.publish(s.PublicID, msg)
	return nil
}

// handleTree applies a mutation command, or relays a client notification
// when the body carries no op.
func (g *Gateway) handleTree(_ *conn, s *session.Session, body []byte) error {
	var cmd types.TreeCommand
	if err := decode(body, &cmd); err != nil {
		return err
	}
	if cmd.Op == "" {
		if !cmd.Type.Valid() {
			return fmt.Errorf("tree event type %q: %w", cmd.Type, types.ErrBadRequest)
		}
		g.publish(s.PublicID, types.TreeEvent{Type: cmd.Type, Path: cmd.Path, NewPath: cmd.NewPath})
		return nil
	}
	res, err := s.ApplyTree(cmd)
	if err != nil {
		return err
	}
	g.publish(s.PublicID, res.Events...)
	return nil
}

func (g *Gateway) handleTerminalStart(_ *conn, s *session.Session, _ []byte) error {
	term, err := s.Terminal()
	if err != nil {
		return err
	}
	return term.Start()
}

func (g *Gateway) handleTerminalInput(_ *conn, s *session.Session, body []byte) error {
	var in types.TerminalInput
	text := ""
	if err := sonic.Unmarshal(body, &in); err == nil {
		text = in.Text()
	} else {
		// bare text frames
		text = string(body)
	}
	if text == "" {
		return nil
	}
	term, err := s.Terminal()
	if err != nil {
		return err
	}
	// ignored unless Running
	term.Write([]byte(text))
	return nil
}

func (g *Gateway) handleTerminalResize(_ *conn, s *session.Session, body []byte) error {
	var req types.ResizeRequest
	if err := decode(body, &req); err != nil {
		return err
	}
	term, err := s.Terminal()
	if err != nil {
		return err
	}
	return term.Resize(req.Cols, req.Rows)
}

// handleExecute runs a file in the session terminal. Inline content wins over
// the stored file; the command line is always derived from the extension.
func (g *Gateway) handleExecute(_ *conn, s *session.Session, body []byte) error {
	var req types.ExecuteRequest
	if err := decode(body, &req); err != nil {
		return err
	}
	fileName := req.FileName
	if fileName == "" {
		fileName = path.Base(req.Path)
	}
	if fileName == "" || fileName == "." || fileName == "/" {
		return fmt.Errorf("execute without a file name: %w", types.ErrBadRequest)
	}
	var content string
	switch {
	case req.Content != nil:
		content = *req.Content
	case req.Path != "":
		stored, err := s.Tree.ReadContent(req.Path)
		if err != nil {
			return err
		}
		content = stored
	default:
		return fmt.Errorf("execute %s without content: %w", fileName, types.ErrBadRequest)
	}
	term, err := s.Terminal()
	if err != nil {
		return err
	}
	return term.Execute(fileName, content)
}

func (g *Gateway) handleCode(c *conn, s *session.Session, body []byte) error {
	var ev types.CodeEvent
	if err := decode(body, &ev); err != nil {
		return err
	}
	if ev.UserID == "" {
		ev.UserID = c.username("")
	}
	g.publish(s.PublicID, ev)
	return nil
}

func (g *Gateway) handleCursor(c *conn, s *session.Session, body []byte) error {
	var ev types.CursorEvent
	if err := decode(body, &ev); err != nil {
		return err
	}
	ev.Username = c.username(ev.Username)
	if ev.UserID == "" {
		ev.UserID = ev.Username
	}
	g.publish(s.PublicID, ev)
	return nil
}

// handleFile relays the legacy flat-list notification.
func (g *Gateway) handleFile(_ *conn, s *session.Session, body []byte) error {
	var ev types.FileEvent
	if err := decode(body, &ev); err != nil {
		return err
	}
	if ev.Name == "" {
		return fmt.Errorf("file event without name: %w", types.ErrBadRequest)
	}
	if ev.Type == "" {
		ev.Type = types.FileCreated
	}
	g.publish(s.PublicID, ev)
	return nil
}
