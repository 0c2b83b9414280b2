// Package irc implements the line-oriented Twitch IRC grammar: tag block,
// source prefix, command + params, trailing payload, and the derived chat
// command. One line equals one message; callers are expected to split
// incoming frames on CRLF before parsing.
package irc

import (
	"errors"
	"strings"
)

// ErrMalformed is returned when a line cannot be split into its segments
// (e.g. a tag block or prefix with no terminating space). Callers log and
// skip the line.
var ErrMalformed = errors.New("malformed irc line")

// CommandType classifies the verbs this service acts on. Anything else
// parses as CmdUnknown with the raw verb preserved.
type CommandType int

const (
	CmdUnknown CommandType = iota
	CmdPing
	CmdPrivMsg
	CmdClearMsg
	CmdJoin
)

func (c CommandType) String() string {
	switch c {
	case CmdPing:
		return "PING"
	case CmdPrivMsg:
		return "PRIVMSG"
	case CmdClearMsg:
		return "CLEARMSG"
	case CmdJoin:
		return "JOIN"
	default:
		return "UNKNOWN"
	}
}

// Source identifies the message origin. Nick is empty for server-origin
// messages (bare host prefix).
type Source struct {
	Nick string
	Host string
}

// Command is the verb and its ordered parameter list.
type Command struct {
	Type    CommandType
	RawVerb string
	Params  []string
}

// ChatCommand is the secondary command derived from a trailing payload that
// starts with '!', e.g. "!watchtime petsgomoo".
type ChatCommand struct {
	Name string
	Args []string
}

// Message is one decoded protocol line. Immutable once returned from Parse.
type Message struct {
	Tags        RawTags
	Source      Source
	Command     Command
	Trailing    string
	HasTrailing bool
	ChatCommand *ChatCommand
}

// Parse decodes a single protocol line. Tag keys that repeat keep the last
// value seen.
func Parse(line string) (*Message, error) {
	msg := &Message{}
	rest := line

	if strings.HasPrefix(rest, "@") {
		block, after, ok := strings.Cut(rest[1:], " ")
		if !ok {
			return nil, ErrMalformed
		}
		msg.Tags = make(RawTags)
		for _, pair := range strings.Split(block, ";") {
			key, value, _ := strings.Cut(pair, "=")
			msg.Tags[key] = value
		}
		rest = after
	}

	if strings.HasPrefix(rest, ":") {
		prefix, after, ok := strings.Cut(rest[1:], " ")
		if !ok {
			return nil, ErrMalformed
		}
		msg.Source = parseSource(prefix)
		rest = after
	}

	cmdLine := rest
	if i := strings.Index(rest, ":"); i >= 0 {
		cmdLine = rest[:i]
		msg.Trailing = rest[i+1:]
		msg.HasTrailing = true
		msg.ChatCommand = parseChatCommand(msg.Trailing)
	}
	msg.Command = parseCommand(strings.TrimSpace(cmdLine))

	return msg, nil
}

func parseCommand(cmdLine string) Command {
	fields := strings.Fields(cmdLine)
	cmd := Command{Type: CmdUnknown}
	if len(fields) == 0 {
		return cmd
	}
	cmd.RawVerb = fields[0]
	cmd.Params = fields[1:]
	// Verbs are matched case-sensitively; Twitch sends them upper-case.
	switch fields[0] {
	case "PING":
		cmd.Type = CmdPing
	case "PRIVMSG":
		cmd.Type = CmdPrivMsg
	case "CLEARMSG":
		cmd.Type = CmdClearMsg
	case "JOIN":
		cmd.Type = CmdJoin
	}
	return cmd
}

func parseSource(prefix string) Source {
	if nick, host, ok := strings.Cut(prefix, "!"); ok {
		return Source{Nick: nick, Host: host}
	}
	return Source{Host: prefix}
}

func parseChatCommand(trailing string) *ChatCommand {
	if !strings.HasPrefix(trailing, "!") {
		return nil
	}
	fields := strings.Fields(trailing)
	return &ChatCommand{
		Name: strings.ToLower(strings.TrimPrefix(fields[0], "!")),
		Args: fields[1:],
	}
}
