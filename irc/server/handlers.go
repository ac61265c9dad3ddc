package server

import (
	"context"
	"strings"

	"github.com/presbrey/authircd/irc"
	"github.com/presbrey/authircd/irc/identity"
)

// Handler runs one command for a session. Returning an error produced by
// disconnect ends the session after the handler returns.
type Handler func(ctx context.Context, s *Session, cmd *irc.Command) error

// RegisterHandler installs h for verb, replacing any existing handler. It
// must be called before the server starts accepting connections.
func (s *Server) RegisterHandler(verb string, h Handler) {
	s.handlers[strings.ToUpper(verb)] = h
}

// registerDefaultHandlers builds the verb table
func (s *Server) registerDefaultHandlers() {
	s.RegisterHandler("PASS", handlePass)
	s.RegisterHandler("NICK", handleNick)
	s.RegisterHandler("USER", registered(handleUser))
	s.RegisterHandler("MODE", registered(handleMode))
	s.RegisterHandler("WHO", handleWho)
	s.RegisterHandler("WHOIS", handleWhois)
	s.RegisterHandler("JOIN", registered(handleJoin))
	s.RegisterHandler("PART", registered(handlePart))
	s.RegisterHandler("PRIVMSG", registered(handlePrivmsg))
	s.RegisterHandler("QUIT", handleQuit)
	s.RegisterHandler("PING", handlePing)
	s.RegisterHandler("PONG", handlePong)
}

// registered rejects the command with NOTREGISTERED for unauthenticated sessions
func registered(h Handler) Handler {
	return func(ctx context.Context, s *Session, cmd *irc.Command) error {
		if s.Registration() == nil {
			s.numeric(irc.ERR_NOTREGISTERED, "You have not registered")
			return nil
		}
		return h(ctx, s, cmd)
	}
}

func isChannelName(name string) bool {
	return strings.HasPrefix(name, "#")
}

// handlePass stores the secret for the upcoming NICK
func handlePass(ctx context.Context, s *Session, cmd *irc.Command) error {
	if s.Registration() != nil {
		return nil
	}
	s.secret = cmd.Target
	return nil
}

// handleNick authenticates the session under the requested nickname
func handleNick(ctx context.Context, s *Session, cmd *irc.Command) error {
	srv := s.server

	if s.Registration() != nil {
		s.numeric(irc.ERR_ERRONEUSNICKNAME, "You cannot change your nick from your auth username.")
		return nil
	}

	nick := cmd.Target
	if nick == "" {
		s.numeric(irc.ERR_NONICKNAMEGIVEN, "No nickname given")
		return nil
	}
	if s.secret == "" {
		s.numeric(irc.ERR_ERRONEUSNICKNAME, "No password specified.")
		return nil
	}
	if srv.nickInUse(nick) {
		srv.metrics.AuthAttempts.WithLabelValues("nick_in_use").Inc()
		s.numeric(irc.ERR_ERRONEUSNICKNAME, "Already a User connected")
		return disconnect("Nickname in use")
	}

	id, err := srv.provider.Authenticate(ctx, nick, s.secret)
	s.secret = ""
	if err != nil {
		reason := identity.FailureReason(err)
		srv.metrics.AuthAttempts.WithLabelValues(reason).Inc()
		if reason == "error" {
			s.logger.Error("identity provider failed", "login", nick, "err", err)
		} else {
			s.logger.Info("authentication failed", "login", nick, "reason", reason)
		}
		s.numeric(irc.ERR_ERRONEUSNICKNAME, "Invalid nick/password combination.")
		return disconnect("Authentication failed")
	}

	// The nickname may have been claimed while the provider was consulted
	reg := newRegistration(nick, id)
	if !srv.registerNick(s, reg) {
		srv.metrics.AuthAttempts.WithLabelValues("nick_in_use").Inc()
		s.numeric(irc.ERR_ERRONEUSNICKNAME, "Already a User connected")
		return disconnect("Nickname in use")
	}

	srv.metrics.AuthAttempts.WithLabelValues("ok").Inc()
	s.logger.Info("registered", "nick", nick, "identity", id.ID, "groups", reg.Groups)
	return nil
}

// handleUser sends the welcome burst and applies auto-join rules
func handleUser(ctx context.Context, s *Session, cmd *irc.Command) error {
	cfg := s.server.Config()
	name := cfg.Server.Name
	version := cfg.Server.Version

	s.numeric(irc.RPL_WELCOME, "Welcome to "+cfg.Server.Network)
	s.numeric(irc.RPL_YOURHOST, "Your host is "+name+", running version "+version)
	s.numeric(irc.RPL_CREATED, "The server was created "+cfg.Server.Created)
	s.numeric(irc.RPL_MYINFO, name+" "+version)
	s.numeric(irc.RPL_MOTDSTART, "*** Message of the day:")
	for _, line := range cfg.Server.MOTD {
		s.numeric(irc.RPL_MOTD, line)
	}
	s.numeric(irc.RPL_ENDOFMOTD, "*** End of message of the day")

	for _, channel := range cfg.AutoJoinChannels(s.Registration().Groups) {
		s.server.joinChannel(s, channel)
	}
	return nil
}

// handleMode reports fixed channel modes; setting modes is not supported
func handleMode(ctx context.Context, s *Session, cmd *irc.Command) error {
	srv := s.server
	target := cmd.Target
	if target == "" {
		s.numeric(irc.ERR_NEEDMOREPARAMS, "MODE", "Not enough parameters")
		return nil
	}

	if !isChannelName(target) {
		if target == s.Nick() {
			s.numeric(irc.ERR_UMODEUNKNOWNFLAG, "Unknown MODE flag")
		} else {
			s.numeric(irc.ERR_USERSDONTMATCH, "Cannot change mode for other users")
		}
		return nil
	}

	if !srv.channelExists(target) {
		s.numeric(irc.ERR_NOSUCHCHANNEL, target, "No such channel")
		return nil
	}

	switch cmd.Text {
	case "":
		s.numeric(irc.RPL_CHANNELMODEIS, target, "+nt")
	case "b", "+b":
		s.numeric(irc.RPL_ENDOFBANLIST, target, "End of channel ban list")
	default:
		s.numeric(irc.ERR_UNKNOWNMODE, "Setting modes is not implemented")
	}
	return nil
}

// handleWho lists the members of a channel
func handleWho(ctx context.Context, s *Session, cmd *irc.Command) error {
	srv := s.server
	target := cmd.Target
	if target == "" {
		s.numeric(irc.ERR_NEEDMOREPARAMS, "WHO", "Not enough parameters")
		return nil
	}

	members, ok := srv.channelMembers(target)
	if !ok {
		s.numeric(irc.ERR_NOSUCHCHANNEL, target, "No such channel")
		return nil
	}

	name := srv.Config().Server.Name
	for _, reg := range members {
		s.numeric(irc.RPL_WHOREPLY, target, reg.User, reg.Host, name, reg.Nick, "H", "0 "+reg.RealName)
	}
	s.numeric(irc.RPL_ENDOFWHO, target, "End of WHO list.")
	return nil
}

// handleWhois describes an online user, or an offline one known to the provider
func handleWhois(ctx context.Context, s *Session, cmd *irc.Command) error {
	srv := s.server
	target := cmd.Target
	if target == "" {
		s.numeric(irc.ERR_NONICKNAMEGIVEN, "No nickname given")
		return nil
	}

	if reg := srv.lookupUser(target); reg != nil {
		s.numeric(irc.RPL_WHOISUSER, reg.Nick, reg.User, reg.Host, "*", reg.RealName)
		s.numeric(irc.RPL_ENDOFWHOIS, "End of WHOIS list")
		return nil
	}

	id, err := srv.provider.LookupOffline(ctx, target)
	if err != nil {
		if identity.FailureReason(err) == "error" {
			s.logger.Error("offline lookup failed", "login", target, "err", err)
		}
		s.numeric(irc.ERR_WASNOSUCHNICK, "There is no user by the name "+target)
		return nil
	}

	user, host := userHost(target, id)
	s.numeric(irc.RPL_WHOWASUSER, target, user, host, "*", id.DisplayName)
	s.numeric(irc.RPL_ENDOFWHOWAS, "End of WHOWAS")
	return nil
}

// handleJoin joins one or more comma-separated channels
func handleJoin(ctx context.Context, s *Session, cmd *irc.Command) error {
	if cmd.Target == "" {
		s.numeric(irc.ERR_NEEDMOREPARAMS, "JOIN", "Not enough parameters")
		return nil
	}

	for _, name := range strings.Split(cmd.Target, ",") {
		if name == "" {
			continue
		}
		if !isChannelName(name) {
			s.numeric(irc.ERR_NOSUCHCHANNEL, name, "No such channel")
			continue
		}
		s.server.joinChannel(s, name)
	}
	return nil
}

// handlePart leaves one or more comma-separated channels
func handlePart(ctx context.Context, s *Session, cmd *irc.Command) error {
	if cmd.Target == "" {
		s.numeric(irc.ERR_NEEDMOREPARAMS, "PART", "Not enough parameters")
		return nil
	}

	for _, name := range strings.Split(cmd.Target, ",") {
		if name != "" {
			s.server.partChannel(s, name)
		}
	}
	return nil
}

// handlePrivmsg relays text to the other members of a channel
func handlePrivmsg(ctx context.Context, s *Session, cmd *irc.Command) error {
	target := cmd.Target
	if target == "" {
		s.numeric(irc.ERR_NORECIPIENT, "No recipient given (PRIVMSG)")
		return nil
	}
	if cmd.Text == "" {
		s.numeric(irc.ERR_NOTEXTTOSEND, "No text to send")
		return nil
	}

	if !s.server.privmsgChannel(s, target, cmd.Text) {
		s.numeric(irc.ERR_NOSUCHCHANNEL, target, "No such channel")
	}
	return nil
}

// handleQuit ends the session; the reason goes to every shared channel
func handleQuit(ctx context.Context, s *Session, cmd *irc.Command) error {
	reason := cmd.Trailing()
	if reason == "" {
		reason = "Client Quit"
	}
	return disconnect(reason)
}

// handlePing answers a client PING
func handlePing(ctx context.Context, s *Session, cmd *irc.Command) error {
	token := cmd.Trailing()
	name := s.server.Config().Server.Name
	if token == "" {
		token = name
	}
	s.SendMessage(name, "PONG", name, token)
	return nil
}

// handlePong needs no reply; receiving any line already refreshed activity
func handlePong(ctx context.Context, s *Session, cmd *irc.Command) error {
	return nil
}
