package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// httpMetrics records status API request latency and status codes
type httpMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
}

func newHTTPMetrics(reg *prometheus.Registry) *httpMetrics {
	factory := promauto.With(reg)
	return &httpMetrics{
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ircd_http_request_duration_seconds",
			Help:    "Status API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ircd_http_requests_total",
			Help: "Status API requests by route and status code",
		}, []string{"path", "method", "code"}),
	}
}

// middleware observes every request. Routes are labelled by their pattern so
// unknown paths collapse into a single series.
func (m *httpMetrics) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
		}

		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request().Method
		m.requestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
		return err
	}
}
