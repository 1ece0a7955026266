// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware logging helpers for the bridge.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay directions used as metric label values.
const (
	DirectionSwarmToChat = "swarm_to_chat"
	DirectionChatToSwarm = "chat_to_swarm"
)

var (
	once sync.Once

	// Counters
	LinesReceived   prometheus.Counter
	ParseSkips      prometheus.Counter
	HandlerFaults   prometheus.Counter
	MessagesRelayed *prometheus.CounterVec // by direction
	RelayDrops      *prometheus.CounterVec // by direction, reason
	RelayFailures   *prometheus.CounterVec // by direction

	// Histograms (seconds)
	RelayDuration prometheus.Observer

	// Gauges
	SwarmConnectedGauge prometheus.Gauge // 1=connected,0=not
	BridgeReadyGauge    prometheus.Gauge // 1=relaying,0=not
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		LinesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_swarm_lines_total", Help: "Protocol lines received from the swarm connection"})
		ParseSkips = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_swarm_parse_skips_total", Help: "Lines that produced no structured event (raw only)"})
		HandlerFaults = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_handler_faults_total", Help: "Event handler faults recovered at the dispatch boundary"})
		MessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bridge_messages_relayed_total", Help: "Messages forwarded across the bridge"}, []string{"direction"})
		RelayDrops = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bridge_relay_drops_total", Help: "Messages dropped instead of relayed"}, []string{"direction", "reason"})
		RelayFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bridge_relay_failures_total", Help: "Relay forwards whose send failed"}, []string{"direction"})
		RelayDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bridge_relay_duration_seconds", Help: "Time to forward one message across the bridge", Buckets: prometheus.DefBuckets})
		SwarmConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bridge_swarm_connected", Help: "Swarm connection up=1 down=0"})
		BridgeReadyGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bridge_ready", Help: "Bridge relaying=1 not=0"})
	})
}

// IncLine counts one inbound protocol line.
func IncLine() {
	if LinesReceived != nil {
		LinesReceived.Inc()
	}
}

// IncParseSkip counts a line outside the structured grammar.
func IncParseSkip() {
	if ParseSkips != nil {
		ParseSkips.Inc()
	}
}

// IncHandlerFault counts a recovered handler fault.
func IncHandlerFault() {
	if HandlerFaults != nil {
		HandlerFaults.Inc()
	}
}

// IncRelayed counts a forwarded message for a direction.
func IncRelayed(direction string) {
	if MessagesRelayed != nil {
		MessagesRelayed.WithLabelValues(direction).Inc()
	}
}

// IncDrop counts a silently dropped message with its reason.
func IncDrop(direction, reason string) {
	if RelayDrops != nil {
		RelayDrops.WithLabelValues(direction, reason).Inc()
	}
}

// IncRelayFailure counts a forward whose send failed.
func IncRelayFailure(direction string) {
	if RelayFailures != nil {
		RelayFailures.WithLabelValues(direction).Inc()
	}
}

// SetSwarmConnected sets the swarm connection gauge.
func SetSwarmConnected(up bool) {
	if SwarmConnectedGauge != nil {
		if up {
			SwarmConnectedGauge.Set(1)
		} else {
			SwarmConnectedGauge.Set(0)
		}
	}
}

// SetBridgeReady sets the relay readiness gauge.
func SetBridgeReady(ready bool) {
	if BridgeReadyGauge != nil {
		if ready {
			BridgeReadyGauge.Set(1)
		} else {
			BridgeReadyGauge.Set(0)
		}
	}
}

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
