package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/presbrey/authircd/irc"
	"github.com/presbrey/authircd/irc/config"
	"github.com/presbrey/authircd/irc/identity"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Server is the IRC daemon: listener, registries and keepalive supervisor.
//
// A single RWMutex guards the user registry, the channel registry, every
// channel's membership and every session's joined-channel set. Enqueueing an
// outbound line never blocks, so fan-out happens inside the same critical
// section as the membership change that triggered it.
type Server struct {
	cfg       atomic.Pointer[config.Config]
	provider  identity.Provider
	logger    *slog.Logger
	metrics   *Metrics
	startTime time.Time

	mu       sync.RWMutex
	sessions map[string]*Session // every live connection by ID
	users    map[string]*Session // registered sessions by nickname
	channels map[string]*Channel
	closed   bool

	handlers map[string]Handler

	listener net.Listener
	limiter  *rate.Limiter
	wg       sync.WaitGroup
	quit     chan struct{}
	stopOnce sync.Once
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRegistry registers the server metrics on reg instead of a private registry
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.metrics = NewMetrics(reg, s) }
}

// NewServer creates a server that authenticates users against provider
func NewServer(cfg *config.Config, provider identity.Provider, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: nil config")
	}
	if provider == nil {
		return nil, errors.New("server: nil identity provider")
	}

	srv := &Server{
		provider:  provider,
		logger:    slog.Default(),
		startTime: time.Now(),
		sessions:  make(map[string]*Session),
		users:     make(map[string]*Session),
		channels:  make(map[string]*Channel),
		handlers:  make(map[string]Handler),
		quit:      make(chan struct{}),
	}
	srv.cfg.Store(cfg)

	for _, opt := range opts {
		opt(srv)
	}
	if srv.metrics == nil {
		srv.metrics = NewMetrics(prometheus.NewRegistry(), srv)
	}

	if cfg.Limits.AcceptRate > 0 {
		burst := cfg.Limits.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		srv.limiter = rate.NewLimiter(rate.Limit(cfg.Limits.AcceptRate), burst)
	}

	srv.registerDefaultHandlers()

	return srv, nil
}

// Config returns the active configuration
func (s *Server) Config() *config.Config {
	return s.cfg.Load()
}

// Metrics returns the server's metric collectors
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start listens on the configured address and serves until ctx is cancelled
// or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	addr := s.Config().GetListenAddress()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener in the background
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.listener = listener
	s.logger.Info("listening", "addr", listener.Addr().String())

	s.wg.Add(2)
	go s.acceptConnections(ctx)
	go s.keepaliveLoop()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.quit:
		}
	}()

	return nil
}

// Addr returns the listener address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener, disconnects every session and waits for all
// connection goroutines to exit. It is safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.quit)

		if s.listener != nil {
			s.listener.Close()
		}

		s.mu.Lock()
		s.closed = true
		sessions := make([]*Session, 0, len(s.sessions))
		for _, sess := range s.sessions {
			sessions = append(sessions, sess)
		}
		s.mu.Unlock()

		for _, sess := range sessions {
			sess.Disconnect("Server shutting down")
		}

		s.wg.Wait()
		s.logger.Info("server stopped")
	})
	return nil
}

// Rehash reloads the configuration from its source, or newSource when given.
// Listener, limits and keepalive interval keep their startup values.
func (s *Server) Rehash(newSource string) error {
	next := *s.Config()
	if err := next.Reload(newSource); err != nil {
		return err
	}
	s.cfg.Store(&next)
	s.logger.Info("configuration reloaded", "source", next.Source)
	return nil
}

// acceptConnections accepts and handles new connections
func (s *Server) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("failed to accept connection", "err", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.metrics.ConnectionsTotal.Inc()
		s.handleConnection(ctx, conn)
	}
}

// handleConnection registers a session for conn and starts its goroutines
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	sess := newSession(s, conn)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	sess.logger.Debug("connected")

	s.wg.Add(2)
	go sess.writeLoop()
	go sess.readLoop(ctx)
}

// registerNick publishes reg for sess unless the nickname is already held.
// It is the single point where a session becomes Registered.
func (s *Server) registerNick(sess *Session, reg *Registration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.users[reg.Nick]; taken {
		return false
	}
	if !sess.reg.CompareAndSwap(nil, reg) {
		return false
	}
	s.users[reg.Nick] = sess
	return true
}

// nickInUse reports whether a registered session holds nick
func (s *Server) nickInUse(nick string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[nick]
	return ok
}

// lookupUser returns the registration of the online user holding nick
func (s *Server) lookupUser(nick string) *Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.users[nick]; ok {
		return sess.Registration()
	}
	return nil
}

// removeSession drops sess from every registry and channel, telling the
// remaining channel members it quit. Called once, from the session's reader.
func (s *Server) removeSession(sess *Session, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := sess.Registration()
	if reg != nil {
		quit := (&irc.Message{Prefix: reg.Source, Command: "QUIT", Params: []string{reason}}).String()
		for _, name := range sess.channelNames() {
			ch := sess.channels[name]
			ch.remove(sess)
			ch.broadcast(quit, nil)
			delete(sess.channels, name)
			s.reapChannel(ch)
		}
		if s.users[reg.Nick] == sess {
			delete(s.users, reg.Nick)
		}
	}
	delete(s.sessions, sess.ID)
}

// reapChannel removes an empty channel when configured to. Caller holds s.mu.
func (s *Server) reapChannel(ch *Channel) {
	if ch.Len() == 0 && s.Config().Channels.ReapEmpty {
		delete(s.channels, ch.Name)
	}
}

// GetUptime returns the server uptime
func (s *Server) GetUptime() time.Duration {
	return time.Since(s.startTime)
}

// Stats is a point-in-time summary of the registries
type Stats struct {
	Uptime   string `json:"uptime"`
	Sessions int    `json:"sessions"`
	Users    int    `json:"users"`
	Channels int    `json:"channels"`
}

// GetStats returns server statistics
func (s *Server) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Uptime:   s.GetUptime().Round(time.Second).String(),
		Sessions: len(s.sessions),
		Users:    len(s.users),
		Channels: len(s.channels),
	}
}

// SessionCount returns the number of live connections
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// UserCount returns the number of registered users
func (s *Server) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// ChannelCount returns the number of channels in the registry
func (s *Server) ChannelCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}

// ChannelInfo describes one channel for the status API
type ChannelInfo struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// GetChannelList returns every channel with its members in join order
func (s *Server) GetChannelList() []ChannelInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]ChannelInfo, 0, len(s.channels))
	for _, ch := range s.channels {
		list = append(list, ChannelInfo{Name: ch.Name, Members: ch.nicks()})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// UserInfo describes one registered user for the status API
type UserInfo struct {
	Nick     string   `json:"nick"`
	User     string   `json:"user"`
	Host     string   `json:"host"`
	RealName string   `json:"real_name"`
	Groups   []string `json:"groups"`
	Channels []string `json:"channels"`
	Idle     string   `json:"idle"`
}

// GetUserList returns every registered user sorted by nickname
func (s *Server) GetUserList() []UserInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	list := make([]UserInfo, 0, len(s.users))
	for _, sess := range s.users {
		reg := sess.Registration()
		list = append(list, UserInfo{
			Nick:     reg.Nick,
			User:     reg.User,
			Host:     reg.Host,
			RealName: reg.RealName,
			Groups:   reg.Groups,
			Channels: sess.channelNames(),
			Idle:     sess.idle(now).Round(time.Second).String(),
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Nick < list[j].Nick })
	return list
}
