// Package platform defines the boundary to the chat service on the far side
// of the bridge. The bridge relays through this interface only; concrete
// adapters live in the subpackages (discord, twitch).
package platform

import "context"

// Message is one inbound message from the bridged platform.
type Message struct {
	// ID is the platform's message identifier, empty if the platform has
	// none. Used for duplicate suppression.
	ID string

	AuthorDisplayName string
	// AuthorIsBot marks messages authored by bot accounts, including the
	// bridge's own account.
	AuthorIsBot bool

	ChannelID string
	// Guild is false for direct messages, which are never relayed.
	Guild bool

	Body string
}

// Platform is a connected chat service able to deliver and accept channel
// messages. Send must be safe to call concurrently with the platform's own
// event delivery.
type Platform interface {
	// Name labels the platform in origin tags and logs, e.g. "Discord".
	Name() string

	// OnReady registers the callback fired once the platform session is
	// established. Register before Run.
	OnReady(fn func())

	// OnMessage registers the callback for inbound messages. Register
	// before Run.
	OnMessage(fn func(Message))

	// Send posts text to a channel by platform channel id.
	Send(channelID, text string) error

	// Run connects and blocks until ctx is canceled or the session fails.
	Run(ctx context.Context) error
}
