package gateway

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/moyoez/codesync-go/auth"
	"github.com/moyoez/codesync-go/broker"
	"github.com/moyoez/codesync-go/metrics"
	"github.com/moyoez/codesync-go/tool"
	"github.com/moyoez/codesync-go/types"
)

type outbound struct {
	f          *frame.Frame
	closeAfter bool
}

type topicKey struct {
	sessionID string
	kind      types.TopicKind
}

type subscription struct {
	id  string
	key topicKey
}

// conn is one STOMP connection. The serve goroutine reads and dispatches; a
// single writer goroutine owns every write to the socket.
type conn struct {
	id      string
	g       *Gateway
	ws      *websocket.Conn
	framing framing
	out     chan outbound
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter

	// set by CONNECT, read only by the serve goroutine
	connected bool
	claims    *auth.Claims

	mu      sync.Mutex
	subs    map[string]subscription // by STOMP subscription id
	byTopic map[topicKey]string
	joined  map[string]struct{} // session ids this connection joined
}

var _ broker.Subscriber = (*conn)(nil)

var errQueueFull = errors.New("outbound queue full")

func newConn(g *Gateway, ws *websocket.Conn, fr framing) *conn {
	return &conn{
		id:      tool.GenerateULID(),
		g:       g,
		ws:      ws,
		framing: fr,
		out:     make(chan outbound, g.cfg.OutboundBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(g.cfg.FrameRate), g.cfg.FrameBurst),
		subs:    make(map[string]subscription),
		byTopic: make(map[topicKey]string),
		joined:  make(map[string]struct{}),
	}
}

func (c *conn) ID() string { return c.id }

// Deliver never blocks: a full queue or a closed connection drops the event.
func (c *conn) Deliver(d broker.Delivery) bool {
	c.mu.Lock()
	subID, ok := c.byTopic[topicKey{d.SessionID, d.Topic}]
	c.mu.Unlock()
	if !ok {
		return false
	}
	f := frame.New(frame.MESSAGE,
		frame.Subscription, subID,
		frame.MessageId, tool.GenerateULID(),
		frame.Destination, d.Destination,
		frame.ContentType, "application/json",
		frame.ContentLength, strconv.Itoa(len(d.Body)),
	)
	f.Body = d.Body

	if err := c.enqueue(outbound{f: f}); err != nil {
		tool.DefaultLogger.Debugf("[Gateway] connection %s: dropped %s: %v", c.id, d.Destination, err)
		return false
	}
	return true
}

// enqueue hands a frame to the writer without blocking.
func (c *conn) enqueue(o outbound) error {
	select {
	case <-c.done:
		return types.ErrTransportClosed
	default:
	}
	select {
	case c.out <- o:
		return nil
	default:
		return errQueueFull
	}
}

// send queues a control frame, waiting for room unless the connection closes.
func (c *conn) send(f *frame.Frame, closeAfter bool) {
	select {
	case c.out <- outbound{f: f, closeAfter: closeAfter}:
	case <-c.done:
	}
}

func (c *conn) sendError(message, detail string) {
	f := frame.New(frame.ERROR, frame.Message, message, frame.ContentType, "text/plain")
	if detail != "" {
		f.Body = []byte(detail)
		f.Header.Set(frame.ContentLength, strconv.Itoa(len(f.Body)))
	}
	c.send(f, true)
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *conn) serve() {
	defer c.cleanup()
	if open := c.framing.opening(); open != nil && !c.writeText(open) {
		return
	}
	go c.writeLoop()

	c.ws.SetReadLimit(c.g.cfg.MaxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				tool.DefaultLogger.Debugf("[Gateway] connection %s read: %v", c.id, err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		payloads, err := c.framing.decode(data)
		if err != nil {
			tool.DefaultLogger.Debugf("[Gateway] connection %s: %v", c.id, err)
			c.sendError("malformed frame", err.Error())
			<-c.done
			return
		}
		for _, p := range payloads {
			if !c.consume(p) {
				<-c.done
				return
			}
		}
	}
}

// consume reads and handles every STOMP frame in payload, reporting whether
// to keep reading.
func (c *conn) consume(payload []byte) bool {
	r := frame.NewReader(bytes.NewReader(payload))
	for {
		f, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return true
			}
			tool.DefaultLogger.Debugf("[Gateway] connection %s: malformed frame: %v", c.id, err)
			c.sendError("malformed frame", err.Error())
			return false
		}
		if f == nil {
			continue // heart-beat
		}
		if !c.handleFrame(f) {
			return false
		}
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	var buf bytes.Buffer
	for {
		select {
		case o := <-c.out:
			buf.Reset()
			if err := frame.NewWriter(&buf).Write(o.f); err != nil {
				tool.DefaultLogger.Errorf("[Gateway] connection %s: encode %s: %v", c.id, o.f.Command, err)
				continue
			}
			data, err := c.framing.encode(buf.Bytes())
			if err != nil {
				tool.DefaultLogger.Errorf("[Gateway] connection %s: wrap %s: %v", c.id, o.f.Command, err)
				continue
			}
			if !c.writeText(data) {
				c.close()
				return
			}
			if o.closeAfter {
				if end := c.framing.closing(); end != nil {
					c.writeText(end)
				}
				c.close()
				return
			}
		case <-ticker.C:
			if hb := c.framing.heartbeat(); hb != nil && !c.writeText(hb) {
				c.close()
				return
			}
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *conn) writeText(data []byte) bool {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data) == nil
}

// cleanup releases everything the connection holds. In-flight mutations it
// triggered have already completed on the serve goroutine.
func (c *conn) cleanup() {
	c.close()
	c.g.broker.UnsubscribeAll(c)

	c.mu.Lock()
	joined := make([]string, 0, len(c.joined))
	for id := range c.joined {
		joined = append(joined, id)
	}
	c.joined = map[string]struct{}{}
	c.mu.Unlock()
	for _, id := range joined {
		c.g.presence.Leave(id, c.id)
	}
}

// handleFrame processes one client frame and reports whether to keep reading.
func (c *conn) handleFrame(f *frame.Frame) bool {
	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		return c.handleConnect(f)
	}
	if !c.connected {
		c.sendError("not connected", "send CONNECT first")
		return false
	}

	switch f.Command {
	case frame.SUBSCRIBE:
		c.handleSubscribe(f)
	case frame.UNSUBSCRIBE:
		c.handleUnsubscribe(f)
	case frame.SEND:
		c.handleSend(f)
	case frame.DISCONNECT:
		if receipt := f.Header.Get(frame.Receipt); receipt != "" {
			c.send(frame.New(frame.RECEIPT, frame.ReceiptId, receipt), true)
		} else {
			c.close()
		}
		return false
	case frame.ACK, frame.NACK, frame.BEGIN, frame.COMMIT, frame.ABORT:
		// auto-ack subscriptions only, no transactions
	default:
		c.sendError("unknown command", f.Command)
		return false
	}
	if receipt := f.Header.Get(frame.Receipt); receipt != "" {
		c.send(frame.New(frame.RECEIPT, frame.ReceiptId, receipt), false)
	}
	return true
}

func (c *conn) handleConnect(f *frame.Frame) bool {
	if c.connected {
		c.sendError("already connected", "")
		return false
	}
	version := negotiateVersion(f.Header.Get(frame.AcceptVersion))
	if version == "" {
		c.sendError("unsupported protocol version", "supported versions are 1.0,1.1,1.2")
		return false
	}

	token := auth.ExtractToken(f.Header.Get("Authorization"))
	if token == "" {
		token = auth.ExtractToken(f.Header.Get("authorization"))
	}
	if token == "" {
		if pass := f.Header.Get(frame.Passcode); pass != "" {
			if token = auth.ExtractToken(pass); token == "" {
				token = pass
			}
		}
	}
	if token != "" {
		claims, err := c.g.auth.Validate(token)
		if err != nil && c.g.auth.Required() {
			metrics.RecordAuthAttempt(false)
			tool.DefaultLogger.Warnf("[Gateway] connection %s rejected: %v", c.id, err)
			c.sendError("Unauthorized", err.Error())
			return false
		}
		c.claims = claims
	} else if c.g.auth.Required() {
		metrics.RecordAuthAttempt(false)
		c.sendError("Unauthorized", "missing bearer token")
		return false
	}

	c.connected = true
	connected := frame.New(frame.CONNECTED,
		frame.Version, version,
		frame.HeartBeat, "0,0",
		frame.Server, "codesync/1.0",
		frame.Session, c.id,
	)
	if c.claims != nil {
		connected.Header.Set("user-name", c.claims.Username)
	}
	c.send(connected, false)
	return true
}

func (c *conn) handleSubscribe(f *frame.Frame) {
	dest := f.Header.Get(frame.Destination)
	kindName, sessionID, ok := parseDestination(dest, "/topic/")
	if !ok {
		tool.DefaultLogger.Debugf("[Gateway] connection %s: bad subscription destination %q", c.id, dest)
		return
	}
	kind, ok := types.ParseTopicKind(kindName)
	if !ok {
		tool.DefaultLogger.Debugf("[Gateway] connection %s: unknown topic %q", c.id, kindName)
		return
	}
	if _, err := c.g.registry.Get(sessionID); err != nil {
		tool.DefaultLogger.Debugf("[Gateway] connection %s: subscribe %s: %v", c.id, dest, err)
		return
	}
	id := f.Header.Get(frame.Id)
	if id == "" {
		id = dest
	}
	key := topicKey{sessionID, kind}

	c.mu.Lock()
	var release *topicKey
	if old, ok := c.subs[id]; ok && old.key != key {
		if k, last := c.removeSubLocked(id); last {
			release = &k
		}
	}
	c.subs[id] = subscription{id: id, key: key}
	c.byTopic[key] = id
	c.mu.Unlock()
	if release != nil {
		c.g.broker.Unsubscribe(c, release.sessionID, release.kind)
	}
	c.g.broker.Subscribe(c, sessionID, kind)
}

func (c *conn) handleUnsubscribe(f *frame.Frame) {
	id := f.Header.Get(frame.Id)
	c.mu.Lock()
	_, ok := c.subs[id]
	var key topicKey
	var last bool
	if ok {
		key, last = c.removeSubLocked(id)
	}
	c.mu.Unlock()
	if last {
		c.g.broker.Unsubscribe(c, key.sessionID, key.kind)
	}
}

// removeSubLocked drops subscription id and reports whether it was the last
// one on its topic. Deliveries move to another subscription on the same
// topic when one remains. c.mu must be held and id must exist.
func (c *conn) removeSubLocked(id string) (topicKey, bool) {
	key := c.subs[id].key
	delete(c.subs, id)
	if c.byTopic[key] != id {
		return key, false
	}
	delete(c.byTopic, key)
	for other, sub := range c.subs {
		if sub.key == key {
			c.byTopic[key] = other
			return key, false
		}
	}
	return key, true
}

func (c *conn) handleSend(f *frame.Frame) {
	dest := f.Header.Get(frame.Destination)
	feature, sessionID, ok := parseDestination(dest, "/app/")
	if !ok {
		metrics.RecordInboundFrame("invalid", "unknown")
		tool.DefaultLogger.Debugf("[Gateway] connection %s: bad destination %q", c.id, dest)
		return
	}
	handler, ok := c.g.handlers[feature]
	if !ok {
		metrics.RecordInboundFrame("invalid", "unknown")
		tool.DefaultLogger.Debugf("[Gateway] connection %s: no handler for %q", c.id, dest)
		return
	}
	if !c.limiter.Allow() {
		metrics.RecordInboundFrame(feature, "dropped")
		tool.DefaultLogger.Debugf("[Gateway] connection %s: rate limited, dropping %s", c.id, dest)
		return
	}
	sess, err := c.g.registry.Get(sessionID)
	if err != nil {
		metrics.RecordInboundFrame(feature, "error")
		tool.DefaultLogger.Debugf("[Gateway] connection %s: %s: %v", c.id, dest, err)
		return
	}
	if err := handler(c, sess, f.Body); err != nil {
		metrics.RecordInboundFrame(feature, "error")
		tool.DefaultLogger.Warnf("[Gateway] connection %s: %s: %v", c.id, dest, err)
		return
	}
	metrics.RecordInboundFrame(feature, "ok")
}

func (c *conn) markJoined(sessionID string, joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if joined {
		c.joined[sessionID] = struct{}{}
	} else {
		delete(c.joined, sessionID)
	}
}

// username picks the display name: the frame's own, then the token's.
func (c *conn) username(fromFrame string) string {
	if fromFrame != "" {
		return fromFrame
	}
	if c.claims != nil && c.claims.Username != "" {
		return c.claims.Username
	}
	return "User"
}
