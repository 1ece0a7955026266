package swarm

import "strings"

// NormalizeChannel prepends the '#' sigil when missing. Applied to every
// channel argument before encoding and membership bookkeeping, so "general"
// and "#general" address the same channel.
func NormalizeChannel(channel string) string {
	if !strings.HasPrefix(channel, "#") {
		return "#" + channel
	}
	return channel
}

// Join enters a channel and records the membership locally. Membership is
// updated as the action is issued, without waiting for a server ack.
func (c *Client) Join(channel string) error {
	channel = NormalizeChannel(channel)
	if err := c.write("JOIN " + channel); err != nil {
		return err
	}
	c.mu.Lock()
	c.channels[channel] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Part leaves a channel with an optional reason.
func (c *Client) Part(channel, reason string) error {
	channel = NormalizeChannel(channel)
	if err := c.write("PART " + channel + " :" + reason); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.channels, channel)
	c.mu.Unlock()
	return nil
}

// Send delivers a message to a channel ("#name") or a nick (direct message).
func (c *Client) Send(target, message string) error {
	return c.write("PRIVMSG " + target + " :" + message)
}

// Who requests the member list of a channel.
func (c *Client) Who(channel string) error {
	return c.write("WHO " + NormalizeChannel(channel))
}

// Whois requests details about a nick.
func (c *Client) Whois(nick string) error {
	return c.write("WHOIS " + nick)
}

// ListChannels requests the server's channel list.
func (c *Client) ListChannels() error {
	return c.write("LIST")
}

// Query asks another client for a capability report. "CAPABILITIES" is the
// conventional query type.
func (c *Client) Query(nick, queryType string) error {
	return c.write("QUERY " + nick + " " + queryType)
}

// RegisterCommand advertises a bot command with a description.
func (c *Client) RegisterCommand(command, description string) error {
	return c.write("REGISTER " + command + " :" + description)
}

// SetTopic sets a channel topic.
func (c *Client) SetTopic(channel, topic string) error {
	return c.write("TOPIC " + NormalizeChannel(channel) + " :" + topic)
}

// Quit sends a quit notice with the given reason. The connection itself is
// torn down by Disconnect.
func (c *Client) Quit(reason string) error {
	return c.write("QUIT :" + reason)
}
