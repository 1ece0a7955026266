package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/onlyflies/swarmbridge/platform"
	"github.com/onlyflies/swarmbridge/swarm"
	"github.com/onlyflies/swarmbridge/telemetry"
)

// seenCacheSize bounds the recent platform message ids remembered for
// duplicate suppression.
const seenCacheSize = 512

// previewLen truncates message bodies in relay logs.
const previewLen = 50

// Bridge mirrors channel messages between a swarm client and a second chat
// platform. Messages carry an origin tag ("[Platform/author] ") that both
// labels the author on the far side and stops relayed messages from being
// forwarded back where they came from.
type Bridge struct {
	swarm   *swarm.Client
	chat    platform.Platform
	mapping *Mapping
	logger  *slog.Logger

	// ready gates relaying until both sides completed their handshakes and
	// the mapped swarm channels are joined.
	ready atomic.Bool

	// seen remembers recently relayed platform message ids; the platform
	// can deliver a message more than once across gateway reconnects.
	seen *lru.Cache[string, struct{}]

	swarmTag string // prefix on messages that originated on the swarm side
	chatTag  string // prefix on messages that originated on the platform side
}

// New wires a bridge between the two clients. Handlers are registered
// immediately but stay inert until Run brings both sides up.
func New(sc *swarm.Client, chat platform.Platform, mapping *Mapping) (*Bridge, error) {
	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, err
	}
	b := &Bridge{
		swarm:    sc,
		chat:     chat,
		mapping:  mapping,
		logger:   slog.Default().With(slog.String("component", "bridge")),
		seen:     seen,
		swarmTag: "[Swarm/",
		chatTag:  "[" + chat.Name() + "/",
	}
	sc.Register(swarm.EventMessage, b.handleSwarmMessage)
	chat.OnMessage(b.handleChatMessage)
	return b, nil
}

// === Swarm -> platform ===

func (b *Bridge) handleSwarmMessage(ev swarm.Event) {
	const dir = telemetry.DirectionSwarmToChat
	if !b.ready.Load() {
		telemetry.IncDrop(dir, "not_ready")
		return
	}
	// Direct messages stay on their own platform.
	if !strings.HasPrefix(ev.Target, "#") {
		telemetry.IncDrop(dir, "direct")
		return
	}
	// Self-echo: the server reflects our own forwards back to us.
	if ev.Sender == b.swarm.Identity() {
		telemetry.IncDrop(dir, "self")
		return
	}
	// Loop guard: a body already carrying the platform origin tag was
	// injected by this bridge and must not travel back.
	if strings.HasPrefix(ev.Body, b.chatTag) {
		telemetry.IncDrop(dir, "loop")
		return
	}
	channelID, ok := b.mapping.PlatformChannel(ev.Target)
	if !ok {
		telemetry.IncDrop(dir, "unmapped")
		return
	}

	text := b.swarmTag + ev.Sender + "] " + ev.Body
	telemetry.TimeFunc(telemetry.RelayDuration, func() {
		if err := b.chat.Send(channelID, text); err != nil {
			telemetry.IncRelayFailure(dir)
			b.logger.Error("swarm->chat send failed",
				slog.String("channel", channelID), slog.Any("err", err))
			return
		}
		telemetry.IncRelayed(dir)
		b.logger.Info("swarm->chat",
			slog.String("from", ev.Sender),
			slog.String("channel", ev.Target),
			slog.String("preview", preview(ev.Body)))
	})
}

// === Platform -> swarm ===

func (b *Bridge) handleChatMessage(m platform.Message) {
	const dir = telemetry.DirectionChatToSwarm
	if !b.ready.Load() {
		telemetry.IncDrop(dir, "not_ready")
		return
	}
	// Bot-authored messages include our own bridge account.
	if m.AuthorIsBot {
		telemetry.IncDrop(dir, "bot")
		return
	}
	if !m.Guild {
		telemetry.IncDrop(dir, "direct")
		return
	}
	// Loop guard for the opposite direction: a body starting with the swarm
	// origin tag was delivered to the platform by this bridge.
	if strings.HasPrefix(m.Body, b.swarmTag) {
		telemetry.IncDrop(dir, "loop")
		return
	}
	if m.ID != "" && b.seen.Contains(m.ID) {
		telemetry.IncDrop(dir, "duplicate")
		return
	}
	channel, ok := b.mapping.SwarmChannel(m.ChannelID)
	if !ok {
		telemetry.IncDrop(dir, "unmapped")
		return
	}

	text := b.chatTag + m.AuthorDisplayName + "] " + m.Body
	telemetry.TimeFunc(telemetry.RelayDuration, func() {
		if err := b.swarm.Send(channel, text); err != nil {
			telemetry.IncRelayFailure(dir)
			b.logger.Error("chat->swarm send failed",
				slog.String("channel", channel), slog.Any("err", err))
			return
		}
		// The id is committed only after a successful send so a platform
		// redelivery can retry a message that failed in transit.
		if m.ID != "" {
			b.seen.Add(m.ID, struct{}{})
		}
		telemetry.IncRelayed(dir)
		b.logger.Info("chat->swarm",
			slog.String("from", m.AuthorDisplayName),
			slog.String("channel", channel),
			slog.String("preview", preview(m.Body)))
	})
}

func preview(body string) string {
	runes := []rune(body)
	if len(runes) > previewLen {
		return string(runes[:previewLen]) + "..."
	}
	return body
}

// === Lifecycle ===

// Run brings up both sides and relays until ctx is canceled or either side
// fails. The swarm handshake completes first, then the platform session;
// once both are up the mapped swarm channels are joined and relaying starts.
// A fatal error on one side cancels the other, and Run returns only after
// both loops have released their connections. A nil return means clean
// shutdown via ctx.
func (b *Bridge) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := b.swarm.Connect(runCtx); err != nil {
		return fmt.Errorf("swarm connect: %w", err)
	}
	telemetry.SetSwarmConnected(true)
	defer telemetry.SetSwarmConnected(false)
	b.logger.Info("swarm connected", slog.String("identity", b.swarm.Identity()))

	chatReady := make(chan struct{})
	var readyOnce sync.Once
	b.chat.OnReady(func() {
		readyOnce.Do(func() { close(chatReady) })
	})

	errc := make(chan error, 2)
	go func() {
		err := b.chat.Run(runCtx)
		if err != nil {
			err = fmt.Errorf("%s: %w", b.chat.Name(), err)
		} else if runCtx.Err() == nil {
			err = fmt.Errorf("%s: session loop exited", b.chat.Name())
		}
		errc <- err
	}()
	go func() {
		err := b.swarm.Listen()
		if err != nil {
			err = fmt.Errorf("swarm: %w", err)
		} else if runCtx.Err() == nil {
			err = fmt.Errorf("swarm: read loop exited")
		}
		errc <- err
	}()

	// The swarm read loop only unblocks when its connection closes.
	go func() {
		<-runCtx.Done()
		if err := b.swarm.Disconnect(); err != nil {
			b.logger.Warn("swarm disconnect error", slog.Any("err", err))
		}
	}()

	var fatal error
	pending := 2
	select {
	case <-chatReady:
		b.joinMappedChannels()
		b.ready.Store(true)
		telemetry.SetBridgeReady(true)
		b.logger.Info("bridge ready",
			slog.String("platform", b.chat.Name()),
			slog.Int("channels", b.mapping.Len()))

		select {
		case fatal = <-errc:
			pending--
		case <-runCtx.Done():
		}
	case fatal = <-errc:
		pending--
	case <-runCtx.Done():
	}

	b.ready.Store(false)
	telemetry.SetBridgeReady(false)
	if fatal != nil {
		b.logger.Error("bridge loop failed, shutting down sibling", slog.Any("err", fatal))
	}
	cancel()
	for ; pending > 0; pending-- {
		if err := <-errc; err != nil && fatal == nil && ctx.Err() == nil {
			fatal = err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return fatal
}

// joinMappedChannels enters every mapped swarm channel so their traffic
// reaches the relay handlers.
func (b *Bridge) joinMappedChannels() {
	for _, channel := range b.mapping.SwarmChannels() {
		if err := b.swarm.Join(channel); err != nil {
			b.logger.Error("join failed", slog.String("channel", channel), slog.Any("err", err))
			continue
		}
		b.logger.Info("joined swarm channel", slog.String("channel", channel))
	}
}

// Status is a point-in-time snapshot for the HTTP status endpoint.
type Status struct {
	Ready          bool     `json:"ready"`
	Platform       string   `json:"platform"`
	SwarmState     string   `json:"swarm_state"`
	Identity       string   `json:"identity"`
	Authenticated  bool     `json:"authenticated"`
	JoinedChannels []string `json:"joined_channels"`
	MappedChannels int      `json:"mapped_channels"`
}

// Status reports the current bridge state.
func (b *Bridge) Status() Status {
	return Status{
		Ready:          b.ready.Load(),
		Platform:       b.chat.Name(),
		SwarmState:     b.swarm.State().String(),
		Identity:       b.swarm.Identity(),
		Authenticated:  b.swarm.Authenticated(),
		JoinedChannels: b.swarm.Channels(),
		MappedChannels: b.mapping.Len(),
	}
}
