package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusAPI serves health, metrics and read-only registry views over HTTP
type StatusAPI struct {
	server *Server
	echo   *echo.Echo
}

// NewStatusAPI creates the HTTP API for srv
func NewStatusAPI(srv *Server) *StatusAPI {
	api := &StatusAPI{
		server: srv,
		echo:   echo.New(),
	}
	api.echo.HideBanner = true
	api.echo.HidePort = true
	api.echo.Use(middleware.Recover())
	api.echo.Use(newHTTPMetrics(srv.metrics.Registry).middleware)

	api.echo.GET("/healthz", api.handleHealth)
	api.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(
		srv.metrics.Registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)))

	g := api.echo.Group("/api", api.requireBearer)
	g.GET("/stats", api.handleStats)
	g.GET("/channels", api.handleChannels)
	g.GET("/users", api.handleUsers)

	return api
}

// Handler exposes the router, mainly for tests
func (a *StatusAPI) Handler() http.Handler {
	return a.echo
}

// Start serves on addr until Shutdown is called
func (a *StatusAPI) Start(addr string) error {
	a.server.logger.Info("status API listening", "addr", addr)
	err := a.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully
func (a *StatusAPI) Shutdown(ctx context.Context) error {
	return a.echo.Shutdown(ctx)
}

func (a *StatusAPI) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *StatusAPI) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, a.server.GetStats())
}

func (a *StatusAPI) handleChannels(c echo.Context) error {
	return c.JSON(http.StatusOK, a.server.GetChannelList())
}

func (a *StatusAPI) handleUsers(c echo.Context) error {
	return c.JSON(http.StatusOK, a.server.GetUserList())
}

// requireBearer rejects requests without a configured bearer token. With no
// tokens configured the /api routes are closed.
func (a *StatusAPI) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !a.authenticateRequest(c.Request()) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}
		return next(c)
	}
}

// authenticateRequest authenticates a request using the bearer token
func (a *StatusAPI) authenticateRequest(req *http.Request) bool {
	authHeader := req.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")

	for _, validToken := range a.server.Config().HTTP.BearerTokens {
		if validToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(validToken)) == 1 {
			return true
		}
	}
	return false
}
