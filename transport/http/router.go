package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slighter12/maya-livelink-go/config"
	"github.com/slighter12/maya-livelink-go/jsonrpc"
	"github.com/slighter12/maya-livelink-go/logger"
)

const maxJSONRPCBodyBytes = 1 << 20

const (
	pathRPC       = "/rpc"
	pathSubjects  = "/subjects"
	pathStatus    = "/status"
	pathStream    = "/livelink/stream"
	pathWebSocket = "/livelink/ws"
	pathMetrics   = "/metrics"
)

func RegisterRoutes(e *echo.Echo, s *Server) {
	e.GET("/", s.handleHTTPInfo)
	e.POST(pathRPC, s.handleRPC)
	e.GET(pathSubjects, s.handleSubjects)
	e.GET(pathStatus, s.handleStatus)
	if s.config.TransportEnabled(config.TransportSSE) {
		e.GET(pathStream, s.handleStream)
	}
	if s.config.TransportEnabled(config.TransportWebSocket) {
		e.GET(pathWebSocket, s.handleWebSocket)
	}
	if s.gatherer != nil {
		e.GET(pathMetrics, echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

func (s *Server) handleHTTPInfo(c echo.Context) error {
	logger.Debug("HTTP info requested", "remote_addr", c.RealIP())
	endpoints := map[string]any{
		"rpc":      pathRPC,
		"subjects": pathSubjects,
		"status":   pathStatus,
	}
	if s.config.TransportEnabled(config.TransportSSE) {
		endpoints["sse"] = pathStream
	}
	if s.config.TransportEnabled(config.TransportWebSocket) {
		endpoints["websocket"] = pathWebSocket
	}
	if s.gatherer != nil {
		endpoints["metrics"] = pathMetrics
	}
	return c.JSON(http.StatusOK, map[string]any{
		"name":      s.config.Name,
		"version":   s.config.Version,
		"provider":  s.config.Provider.Name,
		"endpoints": endpoints,
	})
}

func (s *Server) handleRPC(c echo.Context) error {
	limitedBody := http.MaxBytesReader(c.Response(), c.Request().Body, maxJSONRPCBodyBytes)
	defer limitedBody.Close()

	body, err := io.ReadAll(limitedBody)
	if err != nil {
		if _, ok := errors.AsType[*http.MaxBytesError](err); ok {
			logger.Warn("Request body too large", "limit_bytes", maxJSONRPCBodyBytes, "remote_addr", c.RealIP())
			return c.JSON(http.StatusRequestEntityTooLarge, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Request body too large", nil))
		}
		logger.Error("Failed to read request body", "error", err)
		return c.JSON(http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrParseError), "Parse error", nil))
	}

	req, rejected, err := jsonrpc.ParseFrame(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Invalid request", nil))
	}
	if rejected != nil {
		return c.JSON(http.StatusBadRequest, rejected)
	}

	logger.Debug("RPC request received", "method", req.Method, "id", req.ID)
	resp := s.commands.Dispatch(c.Request().Context(), req)
	if resp == nil {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSubjects(c echo.Context) error {
	stored, ok, reason := s.store.LatestFresh(s.now())
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"error": reason})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"subjects":   stored.Snapshot.Subjects,
		"updated_at": stored.UpdatedAt,
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	latest, has := s.store.Latest()
	_, fresh, reason := s.store.LatestFresh(s.now())

	bridge := map[string]any{
		"fresh":       fresh,
		"stale_after": s.store.StaleAfter().String(),
	}
	if reason != "" {
		bridge["reason"] = reason
	}
	if has {
		bridge["snapshot"] = latest.Snapshot
		bridge["updated_at"] = latest.UpdatedAt
	}

	return c.JSON(http.StatusOK, map[string]any{
		"provider":        s.config.Provider.Name,
		"bridge":          bridge,
		"subscribers":     s.hub.Subscribers(),
		"cached_subjects": s.hub.CachedSubjects(),
	})
}

func (s *Server) handleStream(c echo.Context) error {
	logger.Info("SSE stream requested", "remote_addr", c.RealIP())

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "streaming unsupported"})
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := NewSSEStream(c.Response().Writer, flusher)
	defer stream.Close()
	if err := stream.SendComment("stream opened"); err != nil {
		logger.Warn("Failed to write initial SSE comment", "error", err)
		return nil
	}

	// Subscribe only after the headers are out so replayed schemas are
	// the first events the consumer sees.
	sub := s.hub.Subscribe(config.TransportSSE)
	defer s.hub.Unsubscribe(sub)

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			if err := stream.Send(msg.Type, msg.Data); err != nil {
				logger.Debug("SSE consumer went away", "subscriber", sub.ID, "error", err)
				return nil
			}
		case <-keepAlive.C:
			if err := stream.SendComment("keepalive"); err != nil {
				return nil
			}
		}
	}
}
