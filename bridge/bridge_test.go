package bridge

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onlyflies/swarmbridge/platform"
	"github.com/onlyflies/swarmbridge/swarm"
)

// chanConn is a scripted swarm transport whose reads block until fed or
// closed, so the client's read loop behaves like a live connection.
type chanConn struct {
	in   chan string
	done chan struct{}

	mu        sync.Mutex
	sent      []string
	writeErr  error
	closeOnce sync.Once
}

func newChanConn(handshake bool) *chanConn {
	c := &chanConn{in: make(chan string, 16), done: make(chan struct{})}
	if handshake {
		c.in <- "banner"
		c.in <- ":server 001 bridgebot :Welcome to ClawSwarm, bridgebot!"
		c.in <- ":server 376 bridgebot :End of MOTD"
	}
	return c
}

func (c *chanConn) ReadMessage() (string, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.done:
		return "", io.EOF
	}
}

func (c *chanConn) WriteMessage(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *chanConn) setWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *chanConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *chanConn) sentLines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type sentMessage struct {
	channelID string
	text      string
}

// fakePlatform records sends and lets tests drive readiness and failure.
type fakePlatform struct {
	mu      sync.Mutex
	sent    []sentMessage
	sendErr error

	ready   func()
	message func(platform.Message)

	runErr chan error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{runErr: make(chan error, 1)}
}

func (f *fakePlatform) Name() string                        { return "Discord" }
func (f *fakePlatform) OnReady(fn func())                   { f.ready = fn }
func (f *fakePlatform) OnMessage(fn func(platform.Message)) { f.message = fn }

func (f *fakePlatform) Send(channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{channelID, text})
	return nil
}

func (f *fakePlatform) Run(ctx context.Context) error {
	if f.ready != nil {
		f.ready()
	}
	select {
	case err := <-f.runErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

func (f *fakePlatform) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func testMapping(t *testing.T) *Mapping {
	t.Helper()
	m, err := NewMapping(map[string]string{"100": "general", "200": "data"})
	if err != nil {
		t.Fatalf("NewMapping: %v", err)
	}
	return m
}

// newTestBridge wires a bridge over a scripted swarm connection, with the
// swarm handshake already completed and relaying enabled.
func newTestBridge(t *testing.T) (*Bridge, *fakePlatform, *chanConn) {
	t.Helper()
	conn := newChanConn(true)
	sc := swarm.NewClient("ws://test", "key")
	sc.Dialer = func(ctx context.Context, url string) (swarm.Conn, error) {
		return conn, nil
	}
	chat := newFakePlatform()
	b, err := New(sc, chat, testMapping(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	b.ready.Store(true)
	return b, chat, conn
}

func TestRelaySwarmToChat(t *testing.T) {
	b, chat, _ := newTestBridge(t)

	b.handleSwarmMessage(swarm.Event{
		Kind:   swarm.EventMessage,
		Sender: "alice",
		Target: "#general",
		Body:   "hi",
	})

	sent := chat.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent = %v, want exactly one forward", sent)
	}
	if sent[0].channelID != "100" {
		t.Errorf("channel = %q, want 100", sent[0].channelID)
	}
	if sent[0].text != "[Swarm/alice] hi" {
		t.Errorf("text = %q, want origin-tagged body", sent[0].text)
	}
}

func TestRelaySwarmToChatDrops(t *testing.T) {
	b, chat, _ := newTestBridge(t)

	cases := []struct {
		name string
		ev   swarm.Event
	}{
		{"unmapped channel", swarm.Event{Sender: "alice", Target: "#elsewhere", Body: "hi"}},
		{"direct message", swarm.Event{Sender: "alice", Target: "bridgebot", Body: "hi"}},
		{"self echo", swarm.Event{Sender: "bridgebot", Target: "#general", Body: "hi"}},
		{"loop tag", swarm.Event{Sender: "alice", Target: "#general", Body: "[Discord/Dave] hi"}},
	}
	for _, tc := range cases {
		tc.ev.Kind = swarm.EventMessage
		b.handleSwarmMessage(tc.ev)
		if got := chat.sentMessages(); len(got) != 0 {
			t.Errorf("%s: forwarded %v, want drop", tc.name, got)
		}
	}
}

func TestRelayChatToSwarm(t *testing.T) {
	b, _, conn := newTestBridge(t)

	b.handleChatMessage(platform.Message{
		ID:                "m1",
		AuthorDisplayName: "Dave",
		ChannelID:         "200",
		Guild:             true,
		Body:              "whale sighted",
	})

	var forwards []string
	for _, line := range conn.sentLines() {
		if strings.HasPrefix(line, "PRIVMSG") {
			forwards = append(forwards, line)
		}
	}
	if len(forwards) != 1 {
		t.Fatalf("forwards = %v, want exactly one", forwards)
	}
	if forwards[0] != "PRIVMSG #data :[Discord/Dave] whale sighted" {
		t.Errorf("forward = %q", forwards[0])
	}
}

func TestRelayChatToSwarmDrops(t *testing.T) {
	b, _, conn := newTestBridge(t)
	before := len(conn.sentLines())

	cases := []struct {
		name string
		m    platform.Message
	}{
		{"bot author", platform.Message{ID: "a", AuthorDisplayName: "bot", AuthorIsBot: true, ChannelID: "100", Guild: true, Body: "hi"}},
		{"direct message", platform.Message{ID: "b", AuthorDisplayName: "Dave", ChannelID: "100", Guild: false, Body: "hi"}},
		{"unmapped channel", platform.Message{ID: "c", AuthorDisplayName: "Dave", ChannelID: "999", Guild: true, Body: "hi"}},
		{"swarm origin tag", platform.Message{ID: "d", AuthorDisplayName: "Dave", ChannelID: "100", Guild: true, Body: "[Swarm/alice] hi"}},
	}
	for _, tc := range cases {
		b.handleChatMessage(tc.m)
		if got := conn.sentLines(); len(got) != before {
			t.Errorf("%s: forwarded %v, want drop", tc.name, got[before:])
		}
	}
}

func TestRelayLoopGuardRoundTrip(t *testing.T) {
	b, chat, conn := newTestBridge(t)

	// A swarm message crosses to the platform once...
	b.handleSwarmMessage(swarm.Event{
		Kind:   swarm.EventMessage,
		Sender: "alice",
		Target: "#general",
		Body:   "hi",
	})
	sent := chat.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent = %v", sent)
	}

	// ...and its tagged body arriving back must not be relayed again.
	before := len(conn.sentLines())
	b.handleChatMessage(platform.Message{
		ID:                "echo",
		AuthorDisplayName: "Dave",
		ChannelID:         "100",
		Guild:             true,
		Body:              sent[0].text,
	})
	if got := conn.sentLines(); len(got) != before {
		t.Errorf("loop guard failed: %v", got[before:])
	}
}

func TestRelayDuplicateSuppression(t *testing.T) {
	b, _, conn := newTestBridge(t)

	msg := platform.Message{
		ID:                "same-id",
		AuthorDisplayName: "Dave",
		ChannelID:         "100",
		Guild:             true,
		Body:              "hi",
	}
	b.handleChatMessage(msg)
	b.handleChatMessage(msg)

	var forwards int
	for _, line := range conn.sentLines() {
		if strings.HasPrefix(line, "PRIVMSG") {
			forwards++
		}
	}
	if forwards != 1 {
		t.Errorf("forwards = %d, want 1 (duplicate id suppressed)", forwards)
	}
}

func TestRelayRedeliveryAfterSendFailure(t *testing.T) {
	b, _, conn := newTestBridge(t)

	msg := platform.Message{
		ID:                "retry-id",
		AuthorDisplayName: "Dave",
		ChannelID:         "100",
		Guild:             true,
		Body:              "hi",
	}

	// First delivery fails in transit; the id must not be remembered.
	conn.setWriteErr(errors.New("write: broken pipe"))
	b.handleChatMessage(msg)

	conn.setWriteErr(nil)
	b.handleChatMessage(msg)

	var forwards int
	for _, line := range conn.sentLines() {
		if strings.HasPrefix(line, "PRIVMSG") {
			forwards++
		}
	}
	if forwards != 1 {
		t.Errorf("forwards = %d, want 1 (redelivery after failed send)", forwards)
	}

	// A third delivery of the now-relayed id is a duplicate.
	b.handleChatMessage(msg)
	forwards = 0
	for _, line := range conn.sentLines() {
		if strings.HasPrefix(line, "PRIVMSG") {
			forwards++
		}
	}
	if forwards != 1 {
		t.Errorf("forwards = %d, want duplicate suppressed after success", forwards)
	}
}

func TestPreviewKeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("é", previewLen+10)
	got := preview(long)
	if got != strings.Repeat("é", previewLen)+"..." {
		t.Errorf("preview = %q, want %d whole runes", got, previewLen)
	}
	if short := preview("héllo"); short != "héllo" {
		t.Errorf("preview = %q, want unchanged", short)
	}
}

func TestRelayGatedUntilReady(t *testing.T) {
	b, chat, _ := newTestBridge(t)
	b.ready.Store(false)

	b.handleSwarmMessage(swarm.Event{
		Kind:   swarm.EventMessage,
		Sender: "alice",
		Target: "#general",
		Body:   "hi",
	})
	if got := chat.sentMessages(); len(got) != 0 {
		t.Errorf("forwarded before ready: %v", got)
	}
}

func TestRunJointShutdownOnPlatformFailure(t *testing.T) {
	conn := newChanConn(true)
	sc := swarm.NewClient("ws://test", "key")
	sc.Dialer = func(ctx context.Context, url string) (swarm.Conn, error) {
		return conn, nil
	}
	chat := newFakePlatform()
	b, err := New(sc, chat, testMapping(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- b.Run(context.Background()) }()

	// Let the bridge come up, then kill the platform side.
	waitFor(t, func() bool { return b.Status().Ready })
	chat.runErr <- errors.New("gateway dead")

	select {
	case err := <-errc:
		if err == nil || !strings.Contains(err.Error(), "gateway dead") {
			t.Errorf("Run = %v, want platform failure", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after platform failure")
	}

	select {
	case <-conn.done:
	default:
		t.Error("swarm connection not released")
	}
}

func TestRunGracefulShutdown(t *testing.T) {
	conn := newChanConn(true)
	sc := swarm.NewClient("ws://test", "key")
	sc.Dialer = func(ctx context.Context, url string) (swarm.Conn, error) {
		return conn, nil
	}
	chat := newFakePlatform()
	b, err := New(sc, chat, testMapping(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- b.Run(ctx) }()

	waitFor(t, func() bool { return b.Status().Ready })

	// Both mapped channels are joined once ready.
	joins := 0
	for _, line := range conn.sentLines() {
		if strings.HasPrefix(line, "JOIN ") {
			joins++
		}
	}
	if joins != 2 {
		t.Errorf("joins = %d, want 2", joins)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run = %v, want nil on graceful shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	st := b.Status()
	if st.Ready {
		t.Error("still ready after shutdown")
	}
}

func TestStatusSnapshot(t *testing.T) {
	b, _, _ := newTestBridge(t)
	st := b.Status()
	if !st.Ready || st.Platform != "Discord" {
		t.Errorf("status = %+v", st)
	}
	if st.SwarmState != "ready" || st.Identity != "bridgebot" || !st.Authenticated {
		t.Errorf("status = %+v", st)
	}
	if st.MappedChannels != 2 {
		t.Errorf("mapped = %d", st.MappedChannels)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
