/*
Package irc implements the wire layer of a small, identity-backed Internet
Relay Chat daemon: line framing, command parsing, outbound message formatting
and the numeric reply codes understood by standard IRC clients.

# Features

## Framing

  - CRLF-delimited frames reassembled across arbitrary TCP read boundaries
  - Lossy UTF-8 decoding: invalid byte sequences become U+FFFD instead of errors
  - Oversized unterminated fragments are dropped rather than buffered forever

## Parsing

  - Simplified three-field split (verb, target, free text) sufficient for the
    PASS, NICK, USER, MODE, WHO, WHOIS, JOIN, PART, PRIVMSG, QUIT, PING and PONG
    commands served by the daemon
  - Verbs are matched case-insensitively; a client-supplied :prefix is ignored

## Formatting

  - Message.String renders the trailing-parameter colon rule
  - Numerics are rendered as three-digit codes

# Subpackages

  - config:   YAML/TOML/JSON configuration with IRCD_* environment overrides
  - identity: the identity provider boundary and its SQL-backed implementation
  - server:   listener, sessions, registries, dispatcher and keepalive
  - logging:  slog setup shared by the daemon and tests
  - ircd:     the daemon binary

# Usage

	cfg, err := config.Load("ircd.yaml")
	if err != nil {
	    log.Fatalf("Failed to load config: %v", err)
	}

	srv, err := server.NewServer(cfg, provider)
	if err != nil {
	    log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(ctx); err != nil {
	    log.Fatalf("Failed to start server: %v", err)
	}
*/
package irc
