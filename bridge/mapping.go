// Package bridge relays channel messages between a ClawSwarm connection and a
// second chat platform, in both directions, with loop prevention.
package bridge

import (
	"fmt"
	"sort"

	"github.com/onlyflies/swarmbridge/swarm"
)

// Mapping is the static bidirectional channel table: platform channel id on
// one side, swarm channel name (with the # sigil) on the other. It is built
// once at startup and read-only afterwards, so it needs no locking.
type Mapping struct {
	toSwarm    map[string]string // platform channel id -> swarm channel
	toPlatform map[string]string // swarm channel -> platform channel id
}

// NewMapping builds a Mapping from platform-id -> swarm-channel entries.
// Swarm channel names are normalized, so "general" and "#general" are the
// same destination. Two platform ids mapping to one swarm channel would make
// the reverse lookup ambiguous and are rejected.
func NewMapping(entries map[string]string) (*Mapping, error) {
	m := &Mapping{
		toSwarm:    make(map[string]string, len(entries)),
		toPlatform: make(map[string]string, len(entries)),
	}
	for id, channel := range entries {
		if id == "" || channel == "" {
			return nil, fmt.Errorf("empty mapping entry %q:%q", id, channel)
		}
		channel = swarm.NormalizeChannel(channel)
		if prev, ok := m.toPlatform[channel]; ok {
			return nil, fmt.Errorf("channel %s mapped from both %s and %s", channel, prev, id)
		}
		m.toSwarm[id] = channel
		m.toPlatform[channel] = id
	}
	return m, nil
}

// SwarmChannel resolves a platform channel id to its swarm channel.
func (m *Mapping) SwarmChannel(platformID string) (string, bool) {
	ch, ok := m.toSwarm[platformID]
	return ch, ok
}

// PlatformChannel resolves a swarm channel to its platform channel id.
func (m *Mapping) PlatformChannel(channel string) (string, bool) {
	id, ok := m.toPlatform[swarm.NormalizeChannel(channel)]
	return id, ok
}

// SwarmChannels returns all mapped swarm channels, sorted.
func (m *Mapping) SwarmChannels() []string {
	out := make([]string, 0, len(m.toPlatform))
	for ch := range m.toPlatform {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of channel pairs.
func (m *Mapping) Len() int {
	return len(m.toSwarm)
}
