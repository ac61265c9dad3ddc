package irc

import (
	"errors"
	"fmt"
	"strings"
)

// CRLF terminates every protocol line
const CRLF = "\r\n"

// ErrEmptyCommand is returned by ParseCommand when a line carries no verb
var ErrEmptyCommand = errors.New("irc: empty command")

// Message represents an outbound IRC message
type Message struct {
	Prefix  string
	Command string
	Params  []string
}

// String returns the string representation of the message, without CRLF
func (m *Message) String() string {
	var builder strings.Builder

	if m.Prefix != "" {
		builder.WriteString(":")
		builder.WriteString(m.Prefix)
		builder.WriteString(" ")
	}

	builder.WriteString(m.Command)

	for i, param := range m.Params {
		builder.WriteString(" ")

		// The last parameter needs a colon if it would not survive a split on spaces
		if i == len(m.Params)-1 && needsTrailingColon(param) {
			builder.WriteString(":")
		}
		builder.WriteString(param)
	}

	return builder.String()
}

func needsTrailingColon(param string) bool {
	return param == "" || strings.Contains(param, " ") || strings.HasPrefix(param, ":")
}

// Command is a parsed client line: the verb, its first argument and the
// remaining free text.
type Command struct {
	Verb   string
	Target string
	Text   string

	rest string // everything after the verb, unmodified
}

// ParseCommand splits a client line into at most three fields. This is not a
// full RFC 1459 parameter parser; the handlers only ever need a target and a
// trailing text argument.
func ParseCommand(line string) (*Command, error) {
	// A client-supplied prefix carries no information for us
	if strings.HasPrefix(line, ":") {
		parts := strings.SplitN(line[1:], " ", 2)
		if len(parts) < 2 {
			return nil, ErrEmptyCommand
		}
		line = parts[1]
	}

	split := strings.SplitN(line, " ", 3)
	verb := strings.ToUpper(split[0])
	if strings.TrimSpace(verb) == "" {
		return nil, ErrEmptyCommand
	}

	cmd := &Command{Verb: verb}
	if rest := strings.SplitN(line, " ", 2); len(rest) == 2 {
		cmd.rest = rest[1]
	}

	if len(split) > 1 {
		cmd.Target = split[1]
		if len(split) == 2 {
			cmd.Target = strings.TrimPrefix(cmd.Target, ":")
		}
	}
	if len(split) > 2 && split[2] != "" {
		cmd.Text = strings.TrimPrefix(split[2], ":")
	}

	return cmd, nil
}

// Trailing returns the last argument of the line. When the first argument
// is itself a colon-prefixed trailing parameter the whole remainder is
// returned, so "QUIT :gone for lunch" yields "gone for lunch".
func (c *Command) Trailing() string {
	if strings.HasPrefix(c.rest, ":") {
		return c.rest[1:]
	}
	if c.Text != "" {
		return c.Text
	}
	return c.Target
}

// String returns a debug representation of the command
func (c *Command) String() string {
	return fmt.Sprintf("%s target=%q text=%q", c.Verb, c.Target, c.Text)
}

// FormatHostmask formats a hostmask
func FormatHostmask(nick, user, host string) string {
	return fmt.Sprintf("%s!%s@%s", nick, user, host)
}
