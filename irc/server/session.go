package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/presbrey/authircd/irc"
	"github.com/presbrey/authircd/irc/identity"
)

// drainTimeout bounds how long a closing session may spend flushing queued lines
const drainTimeout = 5 * time.Second

// Registration is the immutable state of a registered session. A session
// without one is Unauthenticated.
type Registration struct {
	Nick     string
	User     string
	Host     string
	RealName string
	Groups   []string
	Source   string // nick!user@host
	Identity int64
}

func newRegistration(nick string, id *identity.Identity) *Registration {
	user, host := userHost(nick, id)
	return &Registration{
		Nick:     nick,
		User:     user,
		Host:     host,
		RealName: id.DisplayName,
		Groups:   append([]string(nil), id.Groups...),
		Source:   irc.FormatHostmask(nick, user, host),
		Identity: id.ID,
	}
}

// userHost returns the identity's user and host fields, never empty so
// hostmasks and fixed-position replies keep their shape
func userHost(nick string, id *identity.Identity) (string, string) {
	user, host := id.UserName(), id.Host()
	if user == "" {
		user = nick
	}
	if host == "" {
		host = "unknown"
	}
	return user, host
}

// Session is the server side of one client connection.
//
// The reader goroutine owns the session: it parses input, runs handlers and
// performs teardown exactly once. The writer goroutine drains sendq onto the
// socket. Anyone else ends a session by closing its connection, which wakes
// the reader.
type Session struct {
	ID         string
	RemoteAddr string

	server *Server
	conn   net.Conn
	logger *slog.Logger

	reg    atomic.Pointer[Registration]
	secret string // from PASS, touched only by the reader

	channels map[string]*Channel // guarded by server.mu

	sendq  chan string
	done   chan struct{}
	reason atomic.Pointer[string]

	lastActivity atomic.Int64
	pinged       atomic.Bool
	flooded      atomic.Bool
}

func newSession(srv *Server, conn net.Conn) *Session {
	id := uuid.New().String()
	remote := conn.RemoteAddr().String()

	queue := srv.Config().Limits.SendQueue
	if queue < 1 {
		queue = 1
	}

	sess := &Session{
		ID:         id,
		RemoteAddr: remote,
		server:     srv,
		conn:       conn,
		logger:     srv.logger.With("session", id, "remote", remote),
		channels:   make(map[string]*Channel),
		sendq:      make(chan string, queue),
		done:       make(chan struct{}),
	}
	sess.touch()
	return sess
}

// Registration returns the session's registration, or nil if unauthenticated
func (s *Session) Registration() *Registration {
	return s.reg.Load()
}

// Nick returns the registered nickname or "*"
func (s *Session) Nick() string {
	if reg := s.reg.Load(); reg != nil {
		return reg.Nick
	}
	return "*"
}

// readLoop frames and dispatches input until the session ends
func (s *Session) readLoop(ctx context.Context) {
	defer s.server.wg.Done()

	reason := s.serve(ctx)
	s.setReason(reason)
	s.teardown()
}

func (s *Session) serve(ctx context.Context) string {
	framer := irc.NewFramer(s.server.Config().Limits.MaxLineLength)
	buf := make([]byte, 4096)

	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			for _, line := range framer.Feed(buf[:n]) {
				s.touch()
				s.server.metrics.LinesReceived.Inc()

				var dc *disconnectError
				if err := s.dispatch(ctx, line); errors.As(err, &dc) {
					return dc.reason
				}
			}
		}
		if err != nil {
			// The unterminated fragment, if any, is dropped with the connection
			framer.Reset()
			return "Connection closed"
		}
	}
}

// dispatch parses one line and runs the handler registered for its verb
func (s *Session) dispatch(ctx context.Context, line string) error {
	if line == "" {
		return nil
	}

	cmd, err := irc.ParseCommand(line)
	if err != nil {
		s.numeric(irc.ERR_UNKNOWNCOMMAND, "Unknown command")
		return nil
	}

	handler, ok := s.server.handlers[cmd.Verb]
	if !ok {
		s.server.metrics.Commands.WithLabelValues("unknown").Inc()
		s.logger.Debug("unhandled command", "verb", cmd.Verb)
		s.numeric(irc.ERR_UNKNOWNCOMMAND, cmd.Verb, "Unknown command")
		return nil
	}

	s.server.metrics.Commands.WithLabelValues(cmd.Verb).Inc()
	return handler(ctx, s, cmd)
}

// teardown removes the session from the server and lets the writer finish
func (s *Session) teardown() {
	reason := "Connection closed"
	if r := s.reason.Load(); r != nil {
		reason = *r
	}

	s.server.removeSession(s, reason)
	close(s.done)

	if reg := s.Registration(); reg != nil {
		s.logger.Info("disconnected", "nick", reg.Nick, "reason", reason)
	} else {
		s.logger.Debug("disconnected", "reason", reason)
	}
}

// writeLoop drains the outbound queue. It closes the connection on exit,
// which also unblocks the reader after a write failure.
func (s *Session) writeLoop() {
	defer s.server.wg.Done()
	defer s.conn.Close()

	w := bufio.NewWriter(s.conn)
	write := func(line string) bool {
		if _, err := w.WriteString(line); err != nil {
			return false
		}
		s.server.metrics.LinesSent.Inc()
		if len(s.sendq) == 0 {
			return w.Flush() == nil
		}
		return true
	}

	for {
		select {
		case line := <-s.sendq:
			if !write(line) {
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(drainTimeout))
			for {
				select {
				case line := <-s.sendq:
					if !write(line) {
						return
					}
				default:
					w.Flush()
					return
				}
			}
		}
	}
}

// Disconnect ends the session from outside its reader. The first recorded
// reason is the one broadcast to channel members. Safe to call repeatedly and
// after the session has already ended.
func (s *Session) Disconnect(reason string) {
	s.setReason(reason)
	s.conn.Close()
}

func (s *Session) setReason(reason string) {
	s.reason.CompareAndSwap(nil, &reason)
}

// sendLine enqueues one formatted line without blocking. A full queue marks
// the session flooded and drops the connection.
func (s *Session) sendLine(line string) {
	select {
	case s.sendq <- line + irc.CRLF:
	default:
		if s.flooded.CompareAndSwap(false, true) {
			s.server.metrics.SendQueueOverflows.Inc()
			s.logger.Warn("send queue full, disconnecting", "capacity", cap(s.sendq))
			s.Disconnect("SendQ exceeded")
		}
	}
}

// SendMessage sends an IRC message to the client
func (s *Session) SendMessage(prefix, command string, params ...string) {
	msg := &irc.Message{
		Prefix:  prefix,
		Command: command,
		Params:  params,
	}
	s.sendLine(msg.String())
}

// numeric sends a numeric reply addressed to this session
func (s *Session) numeric(code int, params ...string) {
	args := make([]string, 0, len(params)+1)
	args = append(args, s.Nick())
	args = append(args, params...)
	s.SendMessage(s.server.Config().Server.Name, irc.NumericCommand(code), args...)
}

// touch records client activity and re-arms the keepalive PING
func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
	s.pinged.Store(false)
}

func (s *Session) idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastActivity.Load()))
}

// channelNames lists joined channels in name order. Caller holds server.mu.
func (s *Session) channelNames() []string {
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// disconnectError ends the session after the current line
type disconnectError struct {
	reason string
}

func (e *disconnectError) Error() string {
	return "disconnect: " + e.reason
}

func disconnect(reason string) error {
	return &disconnectError{reason: reason}
}
