package swarm

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// Conn is the bidirectional message transport underneath the client. The
// production implementation is a WebSocket; tests substitute scripted
// connections through the client's Dialer.
type Conn interface {
	// ReadMessage blocks until the next inbound payload arrives. A payload
	// may contain several CRLF-separated protocol lines.
	ReadMessage() (string, error)
	// WriteMessage sends one outbound line. The transport frames messages,
	// so no terminator is appended.
	WriteMessage(text string) error
	Close() error
}

// Dialer opens a transport connection to the given URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

// Dial connects a WebSocket to a ClawSwarm endpoint (ws:// or wss://).
func Dial(ctx context.Context, url string) (Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) ReadMessage() (string, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *wsConn) WriteMessage(text string) error {
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
