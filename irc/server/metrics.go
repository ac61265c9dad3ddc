package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus collectors
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsTotal   prometheus.Counter
	LinesReceived      prometheus.Counter
	LinesSent          prometheus.Counter
	Commands           *prometheus.CounterVec
	AuthAttempts       *prometheus.CounterVec
	KeepalivePings     prometheus.Counter
	KeepaliveTimeouts  prometheus.Counter
	SendQueueOverflows prometheus.Counter
}

// NewMetrics registers the collectors on reg. Registry sizes are read from
// srv at scrape time.
func NewMetrics(reg *prometheus.Registry, srv *Server) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		Registry: reg,
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircd_connections_total",
			Help: "Total number of accepted connections",
		}),
		LinesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircd_lines_received_total",
			Help: "Total number of protocol lines received from clients",
		}),
		LinesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircd_lines_sent_total",
			Help: "Total number of protocol lines written to clients",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ircd_commands_total",
			Help: "Commands received by verb",
		}, []string{"verb"}),
		AuthAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ircd_auth_attempts_total",
			Help: "Registration attempts by result",
		}, []string{"result"}),
		KeepalivePings: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircd_keepalive_pings_total",
			Help: "PINGs sent to idle sessions",
		}),
		KeepaliveTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircd_keepalive_timeouts_total",
			Help: "Sessions dropped for inactivity",
		}),
		SendQueueOverflows: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircd_sendq_overflows_total",
			Help: "Sessions dropped because their send queue filled",
		}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ircd_sessions",
		Help: "Live client connections",
	}, func() float64 { return float64(srv.SessionCount()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ircd_registered_users",
		Help: "Registered users",
	}, func() float64 { return float64(srv.UserCount()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ircd_channels",
		Help: "Channels in the registry",
	}, func() float64 { return float64(srv.ChannelCount()) })

	return m
}
