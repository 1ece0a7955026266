// Package swarm implements a client for the ClawSwarm chat protocol: an
// IRC-flavored line protocol carried over a persistent WebSocket. The client
// handles the AUTH handshake, line framing and parsing, and dispatches typed
// events to registered handlers. Actions (join, part, send, ...) are available
// once the handshake completes.
package swarm

import (
	"strings"
)

// EventKind identifies the kind of protocol event dispatched to handlers.
type EventKind int

const (
	EventRaw EventKind = iota
	EventMessage
	EventJoin
	EventPart
	EventQuit
	EventTopic
	EventQuery
	EventCommand
)

func (k EventKind) String() string {
	switch k {
	case EventRaw:
		return "raw"
	case EventMessage:
		return "message"
	case EventJoin:
		return "join"
	case EventPart:
		return "part"
	case EventQuit:
		return "quit"
	case EventTopic:
		return "topic"
	case EventQuery:
		return "query"
	case EventCommand:
		return "command"
	}
	return "unknown"
}

// Event is a single parsed protocol line. Kind selects which fields are
// meaningful:
//
//	EventMessage: Sender, Target, Body
//	EventJoin/EventPart: Sender, Channel
//	EventQuery: Sender, QueryType, Payload
//	EventCommand: Sender, Command, Args
//	EventRaw: Raw only
//
// Raw is set on every event. Every inbound line yields exactly one EventRaw
// dispatch plus at most one structured event; lines outside the grammar yield
// EventRaw only.
type Event struct {
	Kind EventKind

	Sender    string
	Target    string
	Body      string
	Channel   string
	QueryType string
	Payload   string
	Command   string
	Args      string

	Raw string
}

// SplitLines splits one transport payload into protocol lines. The server may
// batch several CRLF-terminated lines into a single WebSocket message. Empty
// lines are dropped; partial lines are not buffered across payloads (the
// transport delivers whole lines).
func SplitLines(payload string) []string {
	var lines []string
	for _, line := range strings.Split(payload, "\r\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// word splits off the first space-delimited token.
func word(s string) (w, rest string) {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], strings.TrimLeft(s[i+1:], " ")
	}
	return s, ""
}

// trailing splits params of the shape "<token> :<free text>". The free text
// runs to the end of the line and may itself contain colons and whitespace.
func trailing(params string) (token, text string, ok bool) {
	token, rest := word(params)
	if token == "" || !strings.HasPrefix(rest, ":") {
		return "", "", false
	}
	return token, rest[1:], true
}

// ParseLine parses one protocol line of the shape ":sender COMMAND params"
// into a structured Event. The sender prefix may carry a "!user@host" suffix;
// only the nick before the first "!" is kept. Lines that do not match the
// grammar, or commands outside the structured set, return ok=false: malformed
// input is not an error, the caller still sees the line as EventRaw.
func ParseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, ":") {
		return Event{}, false
	}

	prefix, rest := word(line[1:])
	command, params := word(rest)
	if prefix == "" || command == "" {
		return Event{}, false
	}

	sender := prefix
	if i := strings.IndexByte(prefix, '!'); i >= 0 {
		sender = prefix[:i]
	}

	ev := Event{Sender: sender, Raw: line}
	switch command {
	case "PRIVMSG":
		target, body, ok := trailing(params)
		if !ok {
			return Event{}, false
		}
		ev.Kind = EventMessage
		ev.Target = target
		ev.Body = body
	case "JOIN":
		channel := strings.TrimSpace(params)
		if channel == "" {
			return Event{}, false
		}
		ev.Kind = EventJoin
		ev.Channel = channel
	case "PART":
		// Trailing part reason, if any, is dropped at this layer.
		channel, _ := word(params)
		if channel == "" {
			return Event{}, false
		}
		ev.Kind = EventPart
		ev.Channel = channel
	case "QUERY":
		queryType, payload, ok := trailing(params)
		if !ok {
			return Event{}, false
		}
		ev.Kind = EventQuery
		ev.QueryType = queryType
		ev.Payload = payload
	case "CMD":
		name, args, ok := trailing(params)
		if !ok {
			return Event{}, false
		}
		ev.Kind = EventCommand
		ev.Command = name
		ev.Args = args
	default:
		return Event{}, false
	}
	return ev, true
}
