// Package twitch adapts a Twitch chat (IRC) client to the platform boundary.
// Twitch channels play the role of guild channels; the channel name doubles
// as the platform channel id.
package twitch

import (
	"context"
	"log/slog"
	"strings"

	twitchirc "github.com/gempir/go-twitch-irc/v4"

	"github.com/onlyflies/swarmbridge/platform"
)

// Client bridges a go-twitch-irc client to platform.Platform.
type Client struct {
	client   *twitchirc.Client
	username string
	channels []string
	logger   *slog.Logger

	ready   func()
	message func(platform.Message)
}

// New builds a Twitch chat client joined to the given channels. The oauth
// token is the usual "oauth:..." chat credential.
func New(username, oauthToken string, channels []string) *Client {
	c := &Client{
		client:   twitchirc.NewClient(username, oauthToken),
		username: strings.ToLower(username),
		channels: channels,
		logger:   slog.Default().With(slog.String("component", "twitch")),
	}

	c.client.OnConnect(func() {
		c.logger.Info("twitch chat connected", slog.Any("channels", c.channels))
		if c.ready != nil {
			c.ready()
		}
	})
	c.client.OnPrivateMessage(func(msg twitchirc.PrivateMessage) {
		if c.message == nil {
			return
		}
		c.message(platform.Message{
			ID:                msg.ID,
			AuthorDisplayName: authorName(msg),
			// The bridge's own account counts as a bot author so its
			// forwards are never re-relayed.
			AuthorIsBot: strings.ToLower(msg.User.Name) == c.username,
			ChannelID:   msg.Channel,
			Guild:       true,
			Body:        msg.Message,
		})
	})
	return c
}

func authorName(msg twitchirc.PrivateMessage) string {
	if msg.User.DisplayName != "" {
		return msg.User.DisplayName
	}
	return msg.User.Name
}

func (c *Client) Name() string { return "Twitch" }

func (c *Client) OnReady(fn func()) { c.ready = fn }

func (c *Client) OnMessage(fn func(platform.Message)) { c.message = fn }

// Send posts text to a Twitch channel.
func (c *Client) Send(channelID, text string) error {
	c.client.Say(channelID, text)
	return nil
}

// Run joins the configured channels and blocks in the IRC read loop until
// ctx is canceled or the connection fails.
func (c *Client) Run(ctx context.Context) error {
	c.client.Join(c.channels...)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := c.client.Disconnect(); err != nil {
			c.logger.Warn("twitch disconnect error", slog.Any("err", err))
		}
		close(done)
	}()

	err := c.client.Connect()
	if ctx.Err() != nil {
		<-done
		return nil
	}
	return err
}
