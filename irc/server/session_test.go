package server

import (
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/lrstanley/girc"
	"github.com/presbrey/authircd/irc/config"
	"github.com/presbrey/authircd/irc/identity"
	"github.com/presbrey/authircd/irc/logging"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newIdleServer builds a server that is never started
func newIdleServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := NewServer(cfg, newFakeProvider(), WithLogger(logging.Discard()))
	require.NoError(t, err)
	return srv
}

// pipeSession attaches a session to one end of an in-memory pipe without
// starting its goroutines. A non-empty nick registers it.
func pipeSession(t *testing.T, srv *Server, nick string) (*Session, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})

	sess := newSession(srv, local)
	srv.mu.Lock()
	srv.sessions[sess.ID] = sess
	srv.mu.Unlock()

	if nick != "" {
		reg := newRegistration(nick, &identity.Identity{ID: 1, DisplayName: nick, HostLabel: "test"})
		require.True(t, srv.registerNick(sess, reg))
	}
	return sess, remote
}

// queued drains and decodes everything waiting in the session's send queue
func queued(t *testing.T, sess *Session) []*girc.Event {
	t.Helper()
	var events []*girc.Event
	for {
		select {
		case line := <-sess.sendq:
			require.True(t, strings.HasSuffix(line, "\r\n"))
			e := girc.ParseEvent(strings.TrimSuffix(line, "\r\n"))
			require.NotNil(t, e, "unparseable line %q", line)
			events = append(events, e)
		default:
			return events
		}
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

// expectClosed requires the far end of the pipe to see the session hang up
func expectClosed(t *testing.T, remote net.Conn) {
	t.Helper()
	remote.SetReadDeadline(time.Now().Add(readTimeout))
	_, err := remote.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestNamesBatching(t *testing.T) {
	srv := newIdleServer(t, nil)

	var sessions []*Session
	for i := 0; i < 23; i++ {
		sess, _ := pipeSession(t, srv, fmt.Sprintf("u%02d", i))
		srv.joinChannel(sess, "#big")
		sessions = append(sessions, sess)
	}

	events := queued(t, sessions[22])
	require.Equal(t, []string{"JOIN", "353", "353", "353", "366"}, commands(events))

	var all []string
	for i, want := range []int{10, 10, 3} {
		e := events[i+1]
		assert.Equal(t, []string{"u22", "@", "#big"}, e.Params[:3])
		names := strings.Fields(last(e))
		assert.Len(t, names, want)
		all = append(all, names...)
	}
	assert.Equal(t, "u00", all[0])
	assert.Equal(t, "u22", all[22])

	// the first member saw every later join
	first := queued(t, sessions[0])
	joins := 0
	for _, e := range first {
		if e.Command == "JOIN" {
			joins++
		}
	}
	assert.Equal(t, 23, joins)
}

func TestChannelMembership(t *testing.T) {
	srv := newIdleServer(t, nil)
	a, _ := pipeSession(t, srv, "a")
	b, _ := pipeSession(t, srv, "b")

	ch := NewChannel("#x")
	assert.True(t, ch.add(a))
	assert.True(t, ch.add(b))
	assert.False(t, ch.add(a))
	assert.Equal(t, []string{"a", "b"}, ch.nicks())

	ch.broadcast("hello", a)
	assert.Empty(t, queued(t, a))
	require.Len(t, queued(t, b), 1)

	assert.True(t, ch.remove(a))
	assert.False(t, ch.remove(a))
	assert.False(t, ch.has(a))
	assert.Equal(t, 1, ch.Len())
}

func TestQuitReasonFromEOF(t *testing.T) {
	srv := newIdleServer(t, nil)
	a, _ := pipeSession(t, srv, "a")
	b, _ := pipeSession(t, srv, "b")
	srv.joinChannel(a, "#x")
	srv.joinChannel(b, "#x")
	queued(t, b)

	srv.removeSession(a, "Connection closed")

	events := queued(t, b)
	require.Len(t, events, 1)
	assert.Equal(t, "QUIT", events[0].Command)
	assert.Equal(t, "a", events[0].Source.Name)
	assert.Equal(t, []string{"Connection closed"}, events[0].Params)
	assert.Nil(t, srv.lookupUser("a"))
	assert.Equal(t, 1, srv.SessionCount())
}

func TestSendQueueOverflow(t *testing.T) {
	srv := newIdleServer(t, func(cfg *config.Config) {
		cfg.Limits.SendQueue = 4
	})
	sess, remote := pipeSession(t, srv, "flooder")

	for i := 0; i < 4; i++ {
		sess.SendMessage("", "NOTICE", "flooder", "filler")
	}
	assert.False(t, sess.flooded.Load())

	sess.SendMessage("", "NOTICE", "flooder", "one too many")
	sess.SendMessage("", "NOTICE", "flooder", "and another")
	assert.True(t, sess.flooded.Load())
	assert.Equal(t, 1.0, counterValue(t, srv.metrics.SendQueueOverflows))
	require.NotNil(t, sess.reason.Load())
	assert.Equal(t, "SendQ exceeded", *sess.reason.Load())

	expectClosed(t, remote)
}

func TestDisconnectKeepsFirstReason(t *testing.T) {
	srv := newIdleServer(t, nil)
	sess, remote := pipeSession(t, srv, "a")

	sess.Disconnect("Ping timeout")
	sess.Disconnect("Server shutting down")
	assert.Equal(t, "Ping timeout", *sess.reason.Load())
	expectClosed(t, remote)
}

func TestNumericFormatting(t *testing.T) {
	srv := newIdleServer(t, nil)
	anon, _ := pipeSession(t, srv, "")
	named, _ := pipeSession(t, srv, "alice")

	anon.numeric(421, "Unknown command")
	named.numeric(403, "#x", "No such channel")

	e := queued(t, anon)[0]
	assert.Equal(t, "irc.test", e.Source.Name)
	assert.Equal(t, "421", e.Command)
	assert.Equal(t, []string{"*", "Unknown command"}, e.Params)

	e = queued(t, named)[0]
	assert.Equal(t, []string{"alice", "#x", "No such channel"}, e.Params)

	// an empty trailing parameter is still sent
	named.numeric(311, "alice", "alice", "h", "*", "")
	e = queued(t, named)[0]
	assert.Equal(t, []string{"alice", "alice", "alice", "h", "*", ""}, e.Params)
}

func TestRegistrationHostmask(t *testing.T) {
	reg := newRegistration("bob", &identity.Identity{
		ID:          7,
		DisplayName: "Bob Jones",
		HostLabel:   "Acme Widgets Inc",
		Groups:      []string{"ops"},
	})
	assert.Equal(t, "Bob_Jones", reg.User)
	assert.Equal(t, "Acme.Widgets.Inc", reg.Host)
	assert.Equal(t, "Bob Jones", reg.RealName)
	assert.Equal(t, "bob!Bob_Jones@Acme.Widgets.Inc", reg.Source)
	assert.Equal(t, int64(7), reg.Identity)

	reg = newRegistration("eve", &identity.Identity{ID: 8})
	assert.Equal(t, "eve", reg.User)
	assert.Equal(t, "unknown", reg.Host)
	assert.Equal(t, "", reg.RealName)
	assert.Equal(t, "eve!eve@unknown", reg.Source)
}

func TestRegisterNickOnce(t *testing.T) {
	srv := newIdleServer(t, nil)
	sess, _ := pipeSession(t, srv, "")
	other, _ := pipeSession(t, srv, "")

	id := &identity.Identity{ID: 1, DisplayName: "A", HostLabel: "h"}
	assert.True(t, srv.registerNick(sess, newRegistration("a", id)))
	assert.False(t, srv.registerNick(sess, newRegistration("b", id)), "a session registers once")
	assert.False(t, srv.registerNick(other, newRegistration("a", id)), "nick already held")
	assert.Equal(t, 1, srv.UserCount())
	assert.Equal(t, "a", sess.Nick())
	assert.Equal(t, "*", other.Nick())
}
