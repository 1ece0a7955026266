// Package discord adapts a Discord bot session to the platform boundary.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/onlyflies/swarmbridge/platform"
)

// Client bridges a discordgo session to platform.Platform.
type Client struct {
	session *discordgo.Session
	logger  *slog.Logger

	ready   func()
	message func(platform.Message)
}

// New builds a Discord client for the given bot token. The session is not
// opened until Run.
func New(token string) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	c := &Client{
		session: session,
		logger:  slog.Default().With(slog.String("component", "discord")),
	}

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		c.logger.Info("discord session ready", slog.String("user", r.User.Username))
		if c.ready != nil {
			c.ready()
		}
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if c.message == nil || m.Author == nil {
			return
		}
		c.message(platform.Message{
			ID:                m.ID,
			AuthorDisplayName: displayName(m),
			AuthorIsBot:       m.Author.Bot,
			ChannelID:         m.ChannelID,
			Guild:             m.GuildID != "",
			Body:              m.Content,
		})
	})
	return c, nil
}

// displayName prefers the guild nick, then the global display name, then the
// account username.
func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func (c *Client) Name() string { return "Discord" }

func (c *Client) OnReady(fn func()) { c.ready = fn }

func (c *Client) OnMessage(fn func(platform.Message)) { c.message = fn }

// Send posts text to a Discord channel.
func (c *Client) Send(channelID, text string) error {
	if _, err := c.session.ChannelMessageSend(channelID, text); err != nil {
		return fmt.Errorf("discord send to %s: %w", channelID, err)
	}
	return nil
}

// Run opens the gateway session and blocks until ctx is canceled. discordgo
// reconnects the gateway internally, so a returned error means the session
// could not be established at all.
func (c *Client) Run(ctx context.Context) error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	<-ctx.Done()
	if err := c.session.Close(); err != nil {
		c.logger.Warn("discord close error", slog.Any("err", err))
	}
	return nil
}
