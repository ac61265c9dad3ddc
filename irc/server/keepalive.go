package server

import (
	"time"
)

// keepaliveLoop periodically pings idle sessions and drops unresponsive ones
func (s *Server) keepaliveLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Config().Keepalive.Interval.Std())
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.checkTimeouts(now)
		case <-s.quit:
			return
		}
	}
}

// checkTimeouts applies the idle thresholds to every live session. A session
// gets at most one PING per idle stretch; any input re-arms it.
func (s *Server) checkTimeouts(now time.Time) {
	cfg := s.Config()
	timeout := cfg.Keepalive.Timeout.Std()
	pingAfter := cfg.Keepalive.PingAfter.Std()

	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		idle := sess.idle(now)
		switch {
		case idle >= timeout:
			s.metrics.KeepaliveTimeouts.Inc()
			sess.logger.Info("ping timeout", "idle", idle.Round(time.Second))
			sess.Disconnect("Ping timeout")
		case idle >= pingAfter:
			if sess.pinged.CompareAndSwap(false, true) {
				s.metrics.KeepalivePings.Inc()
				target := sess.Nick()
				if target == "*" {
					target = cfg.Server.Name
				}
				sess.SendMessage("", "PING", target)
			}
		}
	}
}
