package server

import (
	"strings"
	"time"

	"github.com/presbrey/authircd/irc"
)

// namesPerReply caps the nicknames carried by one NAMREPLY line
const namesPerReply = 10

// Channel represents an IRC channel. Members are kept in join order so
// fan-out is deterministic. All fields are guarded by the owning server's
// mutex; Channel has no lock of its own.
type Channel struct {
	Name      string
	CreatedAt time.Time

	members []*Session
	index   map[*Session]struct{}
}

// NewChannel creates an empty channel
func NewChannel(name string) *Channel {
	return &Channel{
		Name:      name,
		CreatedAt: time.Now(),
		index:     make(map[*Session]struct{}),
	}
}

// add appends sess, reporting false if it was already a member
func (c *Channel) add(sess *Session) bool {
	if _, ok := c.index[sess]; ok {
		return false
	}
	c.index[sess] = struct{}{}
	c.members = append(c.members, sess)
	return true
}

// remove drops sess, reporting false if it was not a member
func (c *Channel) remove(sess *Session) bool {
	if _, ok := c.index[sess]; !ok {
		return false
	}
	delete(c.index, sess)
	for i, m := range c.members {
		if m == sess {
			c.members = append(c.members[:i], c.members[i+1:]...)
			break
		}
	}
	return true
}

func (c *Channel) has(sess *Session) bool {
	_, ok := c.index[sess]
	return ok
}

// Len returns the member count
func (c *Channel) Len() int {
	return len(c.members)
}

// broadcast enqueues line for every member except the given session
func (c *Channel) broadcast(line string, except *Session) {
	for _, m := range c.members {
		if m != except {
			m.sendLine(line)
		}
	}
}

// nicks lists member nicknames in join order
func (c *Channel) nicks() []string {
	names := make([]string, 0, len(c.members))
	for _, m := range c.members {
		names = append(names, m.Nick())
	}
	return names
}

// sendNames sends the member list to sess in NAMREPLY batches
func (c *Channel) sendNames(sess *Session) {
	names := c.nicks()
	for start := 0; start < len(names); start += namesPerReply {
		end := start + namesPerReply
		if end > len(names) {
			end = len(names)
		}
		sess.numeric(irc.RPL_NAMREPLY, "@", c.Name, strings.Join(names[start:end], " "))
	}
	sess.numeric(irc.RPL_ENDOFNAMES, c.Name, "End of /NAMES list")
}

// joinChannel adds sess to the named channel, creating it on first use.
// Joining a channel twice is a no-op.
func (s *Server) joinChannel(sess *Session, name string) {
	reg := sess.Registration()

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[name]
	if !ok {
		ch = NewChannel(name)
		s.channels[name] = ch
	}
	if !ch.add(sess) {
		return
	}
	sess.channels[name] = ch

	join := (&irc.Message{Prefix: reg.Source, Command: "JOIN", Params: []string{name}}).String()
	ch.broadcast(join, nil)
	ch.sendNames(sess)
}

// partChannel removes sess from the named channel after telling every
// member, sess included. Unknown channels and non-members are ignored.
func (s *Server) partChannel(sess *Session, name string) {
	reg := sess.Registration()

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[name]
	if !ok || !ch.has(sess) {
		return
	}

	part := (&irc.Message{Prefix: reg.Source, Command: "PART", Params: []string{name}}).String()
	ch.broadcast(part, nil)
	ch.remove(sess)
	delete(sess.channels, name)
	s.reapChannel(ch)
}

// privmsgChannel relays text to every member but the sender. It reports
// false when the channel does not exist.
func (s *Server) privmsgChannel(sess *Session, name, text string) bool {
	reg := sess.Registration()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[name]
	if !ok {
		return false
	}

	msg := (&irc.Message{Prefix: reg.Nick, Command: "PRIVMSG", Params: []string{name, text}}).String()
	ch.broadcast(msg, sess)
	return true
}

// channelExists reports whether the registry holds name
func (s *Server) channelExists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[name]
	return ok
}

// channelMembers snapshots the registrations of a channel's members
func (s *Server) channelMembers(name string) ([]*Registration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[name]
	if !ok {
		return nil, false
	}
	regs := make([]*Registration, 0, ch.Len())
	for _, m := range ch.members {
		regs = append(regs, m.Registration())
	}
	return regs, true
}
