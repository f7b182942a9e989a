package http

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/slighter12/maya-livelink-go/config"
	"github.com/slighter12/maya-livelink-go/jsonrpc"
	"github.com/slighter12/maya-livelink-go/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// handleWebSocket streams hub messages to the client and answers JSON-RPC
// requests sent over the same socket.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already replied with an HTTP error.
		logger.Warn("WebSocket upgrade failed", "remote_addr", c.RealIP(), "error", err)
		return nil
	}
	defer conn.Close()

	sub := s.hub.Subscribe(config.TransportWebSocket)
	ctx, cancel := context.WithCancel(c.Request().Context())
	replies := make(chan []byte, 16)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx, conn, sub, replies)
	}()

	s.readLoop(ctx, conn, replies)
	cancel()
	s.hub.Unsubscribe(sub)
	<-done
	return nil
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, replies chan<- []byte) {
	conn.SetReadLimit(maxJSONRPCBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("WebSocket read failed", "error", err)
			}
			return
		}

		req, resp, err := jsonrpc.ParseFrame(data)
		if err != nil {
			resp = jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Invalid request", nil)
		} else if resp == nil {
			resp = s.commands.Dispatch(ctx, req)
		}
		if resp == nil {
			continue
		}

		payload, err := json.Marshal(resp)
		if err != nil {
			logger.Error("Failed to encode RPC response", "error", err)
			continue
		}
		select {
		case replies <- payload:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop owns every write to conn.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sub *Subscriber, replies <-chan []byte) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	write := func(kind int, data []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(kind, data); err != nil {
			logger.Debug("WebSocket write failed", "subscriber", sub.ID, "error", err)
			// Unblocks the reader.
			_ = conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				_ = conn.Close()
				return
			}
			if !write(websocket.TextMessage, msg.Data) {
				return
			}
		case payload := <-replies:
			if !write(websocket.TextMessage, payload) {
				return
			}
		case <-ping.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}
