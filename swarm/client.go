package swarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/onlyflies/swarmbridge/telemetry"
)

// ConnState tracks the client through the connect/authenticate handshake.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateAwaitingWelcome
	StateAuthenticating
	StateAwaitingAuthResult
	StateReady
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingWelcome:
		return "awaiting_welcome"
	case StateAuthenticating:
		return "authenticating"
	case StateAwaitingAuthResult:
		return "awaiting_auth_result"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrHandshake reports a connect attempt that failed before reaching
	// StateReady (transport loss mid-handshake, malformed greeting).
	ErrHandshake = errors.New("handshake failed")
	// ErrNotConnected reports an action issued without a live connection.
	ErrNotConnected = errors.New("not connected")
)

// welcomeRe extracts the server-assigned name from the 001 welcome numeric.
var welcomeRe = regexp.MustCompile(`Welcome to ClawSwarm, (\S+)!`)

// HandlerID identifies one handler registration.
type HandlerID int

type registration struct {
	id HandlerID
	fn func(Event)
}

// Client is a ClawSwarm protocol client. Register handlers, Connect, then
// drive inbound traffic with Listen. Action methods (Join, Send, ...) are
// safe to call from other goroutines while Listen runs.
type Client struct {
	// Dialer opens the underlying transport. Defaults to Dial (WebSocket);
	// tests replace it with a scripted connection.
	Dialer Dialer

	url    string
	apiKey string
	logger *slog.Logger

	mu            sync.RWMutex
	conn          Conn
	state         ConnState
	identity      string
	authenticated bool
	channels      map[string]struct{}
	handlers      map[EventKind][]registration
	nextID        HandlerID

	// Serializes transport writes; the WebSocket allows only one
	// concurrent writer alongside the read loop.
	writeMu sync.Mutex
}

// NewClient returns an unconnected client for the given endpoint and API key.
func NewClient(url, apiKey string) *Client {
	return &Client{
		Dialer:   Dial,
		url:      url,
		apiKey:   apiKey,
		logger:   slog.Default().With(slog.String("component", "swarm")),
		state:    StateDisconnected,
		channels: make(map[string]struct{}),
		handlers: make(map[EventKind][]registration),
	}
}

// === Handler registration ===

// Register appends a handler for the given event kind and returns its
// registration token. Handlers for one kind run in registration order.
// Registration is append-only; there is no removal.
func (c *Client) Register(kind EventKind, fn func(Event)) HandlerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.handlers[kind] = append(c.handlers[kind], registration{id: c.nextID, fn: fn})
	return c.nextID
}

// OnMessage registers a handler for channel and direct messages.
func (c *Client) OnMessage(fn func(sender, target, body string)) HandlerID {
	return c.Register(EventMessage, func(e Event) { fn(e.Sender, e.Target, e.Body) })
}

// OnJoin registers a handler for channel joins.
func (c *Client) OnJoin(fn func(nick, channel string)) HandlerID {
	return c.Register(EventJoin, func(e Event) { fn(e.Sender, e.Channel) })
}

// OnPart registers a handler for channel parts.
func (c *Client) OnPart(fn func(nick, channel string)) HandlerID {
	return c.Register(EventPart, func(e Event) { fn(e.Sender, e.Channel) })
}

// OnQuery registers a handler for capability queries.
func (c *Client) OnQuery(fn func(sender, queryType, payload string)) HandlerID {
	return c.Register(EventQuery, func(e Event) { fn(e.Sender, e.QueryType, e.Payload) })
}

// OnCommand registers a handler for bot commands.
func (c *Client) OnCommand(fn func(sender, command, args string)) HandlerID {
	return c.Register(EventCommand, func(e Event) { fn(e.Sender, e.Command, e.Args) })
}

// OnRaw registers a handler that sees every inbound line, including lines the
// parser cannot structure and lines consumed during the handshake.
func (c *Client) OnRaw(fn func(line string)) HandlerID {
	return c.Register(EventRaw, func(e Event) { fn(e.Raw) })
}

// === Dispatch ===

// dispatch delivers one inbound line: raw handlers always fire first, then
// the handlers for the structured kind if the line parses.
func (c *Client) dispatch(line string) {
	telemetry.IncLine()
	c.invoke(EventRaw, Event{Kind: EventRaw, Raw: line})
	if ev, ok := ParseLine(line); ok {
		c.invoke(ev.Kind, ev)
	} else {
		telemetry.IncParseSkip()
	}
}

func (c *Client) invoke(kind EventKind, ev Event) {
	c.mu.RLock()
	regs := c.handlers[kind]
	c.mu.RUnlock()
	for _, reg := range regs {
		c.safeCall(reg, ev)
	}
}

// safeCall isolates a handler fault: a panicking handler is logged and
// counted, and never stops sibling handlers or the read loop.
func (c *Client) safeCall(reg registration, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.IncHandlerFault()
			c.logger.Error("event handler fault",
				slog.Int("handler", int(reg.id)),
				slog.String("kind", ev.Kind.String()),
				slog.Any("panic", r))
		}
	}()
	reg.fn(ev)
}

// === Connection lifecycle ===

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Connect dials the server and drives the handshake to StateReady: the first
// inbound message (server banner) is discarded, AUTH is sent with the API
// key, and greeting lines are consumed until the end-of-MOTD numeric (376) or
// no-MOTD numeric (422). The 001 welcome numeric carries the server-assigned
// identity. Handshake lines are not delivered to structured handlers; raw
// handlers see them like any other line.
//
// On failure the client lands in StateFailed with the transport released.
// Connect does not retry; retry policy belongs to the caller.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	conn, err := c.Dialer(ctx, c.url)
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.state = StateAwaitingWelcome
	c.mu.Unlock()

	// Server banner, discarded unconditionally.
	if _, err := conn.ReadMessage(); err != nil {
		return c.handshakeFail(conn, fmt.Errorf("%w: reading banner: %v", ErrHandshake, err))
	}

	c.setState(StateAuthenticating)
	if err := c.write("AUTH " + c.apiKey); err != nil {
		return c.handshakeFail(conn, fmt.Errorf("%w: sending auth: %v", ErrHandshake, err))
	}
	c.setState(StateAwaitingAuthResult)

	for {
		payload, err := conn.ReadMessage()
		if err != nil {
			return c.handshakeFail(conn, fmt.Errorf("%w: reading greeting: %v", ErrHandshake, err))
		}
		done := false
		for _, line := range SplitLines(payload) {
			c.invoke(EventRaw, Event{Kind: EventRaw, Raw: line})
			if strings.Contains(line, "001") {
				c.mu.Lock()
				if m := welcomeRe.FindStringSubmatch(line); m != nil && c.identity == "" {
					c.identity = m[1]
				}
				c.authenticated = true
				c.mu.Unlock()
			}
			if strings.Contains(line, "376") || strings.Contains(line, "422") {
				done = true
			}
		}
		if done {
			break
		}
	}

	c.setState(StateReady)
	c.logger.Info("handshake complete",
		slog.String("identity", c.Identity()),
		slog.Bool("authenticated", c.Authenticated()))
	return nil
}

func (c *Client) handshakeFail(conn Conn, err error) error {
	_ = conn.Close()
	c.mu.Lock()
	c.conn = nil
	c.state = StateFailed
	c.mu.Unlock()
	return err
}

// Listen pumps inbound payloads and dispatches their lines until the
// transport fails or is closed. It blocks; run it on its own goroutine and
// unblock it by calling Disconnect (typically from a context watcher).
// A transport error is returned so the caller can shut down siblings.
func (c *Client) Listen() error {
	c.mu.RLock()
	conn, state := c.conn, c.state
	c.mu.RUnlock()
	if conn == nil || state != StateReady {
		return ErrNotConnected
	}
	for {
		payload, err := conn.ReadMessage()
		if err != nil {
			c.mu.RLock()
			closed := c.conn == nil
			c.mu.RUnlock()
			if closed {
				// Disconnect was requested; not a failure.
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		for _, line := range SplitLines(payload) {
			c.dispatch(line)
		}
	}
}

// Disconnect stops the connection: further reads fail fast, a QUIT notice is
// sent best-effort, and the transport handle is released. Safe to call twice.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.authenticated = false
	c.identity = ""
	c.channels = make(map[string]struct{})
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteMessage("QUIT :Goodbye")
	c.writeMu.Unlock()
	return conn.Close()
}

// === Accessors ===

// State reports the current handshake state.
func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Identity returns the server-assigned name, empty before the handshake
// completes. The identity is immutable for the life of the connection.
func (c *Client) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// Authenticated reports whether the server accepted the API key.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// Channels returns the locally tracked channel memberships, sorted. The set
// reflects joins and parts issued by this client, not server-side state.
func (c *Client) Channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

func (c *Client) write(line string) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(line); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}
