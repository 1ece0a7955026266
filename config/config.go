// Package config loads environment variables into a typed Config for the
// bridge. Load applies defaults so the binary can start locally with minimal
// setup; Validate fails fast on missing credentials or an unusable channel
// table before any connection is attempted.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Platform selection values for BRIDGE_PLATFORM.
const (
	PlatformDiscord = "discord"
	PlatformTwitch  = "twitch"
)

// DefaultSwarmURL is the public ClawSwarm WebSocket endpoint.
const DefaultSwarmURL = "wss://onlyflies.buzz/clawswarm/ws"

type Config struct {
	// ClawSwarm
	SwarmURL    string
	SwarmAPIKey string

	// Second platform
	Platform         string
	DiscordToken     string
	TwitchUsername   string
	TwitchOAuthToken string

	// ChannelMappings maps a platform channel id (Discord snowflake or
	// Twitch channel name) to a swarm channel name.
	ChannelMappings map[string]string

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It only fails on
// values that cannot be parsed; required-but-missing values are reported by
// Validate so all problems surface at startup.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.SwarmURL = os.Getenv("SWARM_URL")
	if cfg.SwarmURL == "" {
		cfg.SwarmURL = DefaultSwarmURL
	}
	cfg.SwarmAPIKey = os.Getenv("SWARM_API_KEY")

	cfg.Platform = strings.ToLower(os.Getenv("BRIDGE_PLATFORM"))
	if cfg.Platform == "" {
		cfg.Platform = PlatformDiscord
	}
	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.TwitchUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")

	mappings, err := parseMappings(os.Getenv("BRIDGE_CHANNELS"))
	if err != nil {
		return nil, fmt.Errorf("invalid BRIDGE_CHANNELS: %w", err)
	}
	cfg.ChannelMappings = mappings

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// parseMappings parses "id:channel,id:channel" pairs, e.g.
// "1328042828462297282:general,1446073956250419344:data".
func parseMappings(raw string) (map[string]string, error) {
	mappings := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return mappings, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, channel, ok := strings.Cut(entry, ":")
		id = strings.TrimSpace(id)
		channel = strings.TrimSpace(channel)
		if !ok || id == "" || channel == "" {
			return nil, fmt.Errorf("entry %q: want <channel-id>:<swarm-channel>", entry)
		}
		if _, dup := mappings[id]; dup {
			return nil, fmt.Errorf("entry %q: channel id listed twice", entry)
		}
		mappings[id] = channel
	}
	return mappings, nil
}

// Validate checks everything the bridge needs before connecting anywhere.
func (c *Config) Validate() error {
	if c.SwarmAPIKey == "" {
		return fmt.Errorf("SWARM_API_KEY is required")
	}
	switch c.Platform {
	case PlatformDiscord:
		if c.DiscordToken == "" {
			return fmt.Errorf("DISCORD_TOKEN is required for BRIDGE_PLATFORM=discord")
		}
	case PlatformTwitch:
		if c.TwitchUsername == "" || c.TwitchOAuthToken == "" {
			return fmt.Errorf("TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN are required for BRIDGE_PLATFORM=twitch")
		}
	default:
		return fmt.Errorf("unknown BRIDGE_PLATFORM %q (want %s or %s)", c.Platform, PlatformDiscord, PlatformTwitch)
	}
	if len(c.ChannelMappings) == 0 {
		return fmt.Errorf("BRIDGE_CHANNELS is required (no channels to bridge)")
	}
	return nil
}

// PlatformChannelIDs returns the platform side of the channel table.
func (c *Config) PlatformChannelIDs() []string {
	ids := make([]string, 0, len(c.ChannelMappings))
	for id := range c.ChannelMappings {
		ids = append(ids, id)
	}
	return ids
}
