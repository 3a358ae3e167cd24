// Package gateway speaks STOMP over WebSocket: it authenticates connections,
// binds their subscriptions to the broker and dispatches SEND frames to the
// session components.
package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/moyoez/codesync-go/auth"
	"github.com/moyoez/codesync-go/broker"
	"github.com/moyoez/codesync-go/metrics"
	"github.com/moyoez/codesync-go/presence"
	"github.com/moyoez/codesync-go/session"
	"github.com/moyoez/codesync-go/tool"
	"github.com/moyoez/codesync-go/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Gateway struct {
	cfg      types.WebSocketConfig
	registry *session.Registry
	broker   *broker.Broker
	presence *presence.Tracker
	auth     *auth.Auth
	upgrader websocket.Upgrader
	handlers map[string]handlerFunc
}

func New(cfg types.WebSocketConfig, registry *session.Registry, b *broker.Broker, p *presence.Tracker, a *auth.Auth) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		registry: registry,
		broker:   b,
		presence: p,
		auth:     a,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{"v12.stomp", "v11.stomp", "v10.stomp"},
			CheckOrigin: func(r *http.Request) bool {
				return true // browsers connect from the editor's origin; auth is enforced on CONNECT
			},
		},
	}
	g.handlers = g.dispatchTable()
	return g
}

// Handle upgrades the request and serves the connection until it closes.
func (g *Gateway) Handle(c *gin.Context) {
	g.serve(c, rawFraming{})
}

func (g *Gateway) serve(c *gin.Context, fr framing) {
	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		tool.DefaultLogger.Debugf("[Gateway] upgrade failed from %s: %v", c.ClientIP(), err)
		return
	}
	conn := newConn(g, ws, fr)
	metrics.ConnectionOpened()
	tool.DefaultLogger.Debugf("[Gateway] connection %s opened from %s", conn.id, c.ClientIP())
	conn.serve()
	metrics.ConnectionClosed()
	tool.DefaultLogger.Debugf("[Gateway] connection %s closed", conn.id)
}

// parseDestination splits "/<prefix>/<name>/<sessionId>".
func parseDestination(dest, prefix string) (name, sessionID string, ok bool) {
	rest, found := strings.CutPrefix(dest, prefix)
	if !found {
		return "", "", false
	}
	name, sessionID, ok = strings.Cut(rest, "/")
	if !ok || name == "" || sessionID == "" || strings.Contains(sessionID, "/") {
		return "", "", false
	}
	return name, sessionID, true
}

// negotiateVersion picks the highest STOMP version both sides accept.
func negotiateVersion(accept string) string {
	if accept == "" {
		return "1.0"
	}
	best := ""
	for _, v := range strings.Split(accept, ",") {
		switch v = strings.TrimSpace(v); v {
		case "1.0", "1.1", "1.2":
			if v > best {
				best = v
			}
		}
	}
	return best
}
