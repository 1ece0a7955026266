package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init() // second call must not re-register

	if MessagesRelayed == nil || RelayDrops == nil || RelayDuration == nil {
		t.Fatal("metrics not initialized")
	}
}

func TestCounterHelpersNilSafeAfterInit(t *testing.T) {
	Init()
	// Helpers must accept any direction/reason without panicking.
	IncLine()
	IncParseSkip()
	IncHandlerFault()
	IncRelayed(DirectionSwarmToChat)
	IncRelayed(DirectionChatToSwarm)
	IncDrop(DirectionSwarmToChat, "unmapped")
	IncDrop(DirectionChatToSwarm, "bot")
	IncRelayFailure(DirectionSwarmToChat)
	SetSwarmConnected(true)
	SetSwarmConnected(false)
	SetBridgeReady(true)
	SetBridgeReady(false)
}

func TestTimeFunc(t *testing.T) {
	Init()
	d := TimeFunc(RelayDuration, func() { time.Sleep(10 * time.Millisecond) })
	if d < 10*time.Millisecond {
		t.Errorf("duration = %v, want >= 10ms", d)
	}
	// nil observer is tolerated
	TimeFunc(nil, func() {})
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty ctx) = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
