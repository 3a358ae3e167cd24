package gateway

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
)

// framing wraps encoded STOMP frames for one websocket transport.
type framing interface {
	// opening is written once before any frame; nil for none.
	opening() []byte
	// decode splits one websocket message into STOMP payloads.
	decode(data []byte) ([][]byte, error)
	encode(payload []byte) ([]byte, error)
	// heartbeat is written on every ping tick; nil for none.
	heartbeat() []byte
	// closing is written after the last frame; nil for none.
	closing() []byte
}

// rawFraming carries STOMP frames as bare websocket text messages.
type rawFraming struct{}

func (rawFraming) opening() []byte                      { return nil }
func (rawFraming) decode(data []byte) ([][]byte, error) { return [][]byte{data}, nil }
func (rawFraming) encode(payload []byte) ([]byte, error) { return payload, nil }
func (rawFraming) heartbeat() []byte                    { return nil }
func (rawFraming) closing() []byte                      { return nil }

// sockjsFraming is the SockJS websocket transport: the server opens with "o",
// sends frames as a["..."], beats with "h" and ends with c[code,"reason"].
// Clients send a JSON array of strings.
type sockjsFraming struct{}

const (
	sockjsCloseCode   = 3000
	sockjsCloseReason = "Go away!"
)

func (sockjsFraming) opening() []byte { return []byte("o") }

func (sockjsFraming) decode(data []byte) ([][]byte, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var msgs []string
	if data[0] == '[' {
		if err := sonic.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("sockjs message: %w", err)
		}
	} else {
		var one string
		if err := sonic.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("sockjs message: %w", err)
		}
		msgs = []string{one}
	}
	out := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, []byte(m))
	}
	return out, nil
}

func (sockjsFraming) encode(payload []byte) ([]byte, error) {
	data, err := sonic.Marshal([]string{string(payload)})
	if err != nil {
		return nil, err
	}
	return append([]byte{'a'}, data...), nil
}

func (sockjsFraming) heartbeat() []byte { return []byte("h") }

func (sockjsFraming) closing() []byte {
	return []byte(fmt.Sprintf("c[%d,%q]", sockjsCloseCode, sockjsCloseReason))
}

type sockjsInfo struct {
	Websocket    bool     `json:"websocket"`
	CookieNeeded bool     `json:"cookie_needed"`
	Origins      []string `json:"origins"`
	Entropy      uint32   `json:"entropy"`
}

// Info answers the SockJS client's transport discovery request.
func (g *Gateway) Info(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, no-transform, must-revalidate, max-age=0")
	c.JSON(http.StatusOK, sockjsInfo{
		Websocket: true,
		Origins:   []string{"*:*"},
		Entropy:   rand.Uint32(),
	})
}

// HandleSockJS serves a SockJS websocket transport session. The server and
// session path segments are chosen by the client and carry no meaning here.
func (g *Gateway) HandleSockJS(c *gin.Context) {
	g.serve(c, sockjsFraming{})
}
