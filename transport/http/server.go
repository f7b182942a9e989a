// Package http serves the provider over HTTP: the consumer stream (SSE and
// WebSocket), the JSON-RPC command endpoint and read-only status views.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/slighter12/maya-livelink-go/commands"
	"github.com/slighter12/maya-livelink-go/config"
	"github.com/slighter12/maya-livelink-go/logger"
	"github.com/slighter12/maya-livelink-go/runtimebridge"
)

const defaultKeepAlive = 15 * time.Second

// Deps are the collaborators the server exposes.
type Deps struct {
	Hub      *Hub
	Commands *commands.Manager
	Store    *runtimebridge.Store
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type Server struct {
	config    *config.Config
	hub       *Hub
	commands  *commands.Manager
	store     *runtimebridge.Store
	gatherer  prometheus.Gatherer
	echo      *echo.Echo
	upgrader  websocket.Upgrader
	keepAlive time.Duration
	now       func() time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(cfg.Provider.Name, cfg.Provider.SubscriberBuffer, nil)
	}
	if deps.Commands == nil {
		deps.Commands = commands.NewManager()
	}
	s := &Server{
		config:   cfg,
		hub:      deps.Hub,
		commands: deps.Commands,
		store:    deps.Store,
		gatherer: deps.Gatherer,
		echo:     echo.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		keepAlive: defaultKeepAlive,
		now:       time.Now,
	}
	s.setupEcho()
	return s
}

func (s *Server) setupEcho() {
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = s.config.Server.Debug
	if s.config.Server.Debug {
		s.echo.Use(middleware.Logger())
	}
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, "Last-Event-ID"},
	}))
	RegisterRoutes(s.echo, s)
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	addr := s.config.Addr()
	logger.Info("HTTP server starting to listen", "address", addr,
		"sse", s.config.TransportEnabled(config.TransportSSE),
		"websocket", s.config.TransportEnabled(config.TransportWebSocket))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown disconnects every stream consumer and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Hub() *Hub {
	return s.hub
}
