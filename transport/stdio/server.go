// Package stdio serves the command layer as newline-delimited JSON-RPC over
// a pair of streams, normally the process stdin and stdout. It is the
// channel a host UI uses when it launches the provider as a child process.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/slighter12/maya-livelink-go/commands"
	"github.com/slighter12/maya-livelink-go/jsonrpc"
	"github.com/slighter12/maya-livelink-go/logger"
)

const maxLineBytes = 1 << 20

// StdioServer answers one JSON-RPC message per input line.
type StdioServer struct {
	commands *commands.Manager
	in       io.Reader

	mu  sync.Mutex
	out *json.Encoder
}

// NewStdioServer reads requests from in and writes replies and
// notifications to out.
func NewStdioServer(manager *commands.Manager, in io.Reader, out io.Writer) *StdioServer {
	return &StdioServer{
		commands: manager,
		in:       in,
		out:      json.NewEncoder(out),
	}
}

// Serve blocks until the input ends or ctx is done.
func (s *StdioServer) Serve(ctx context.Context) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	logger.Debug("Stdio server started and waiting for messages")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			logger.Debug("Stdio EOF received, terminating server")
			return nil
		case line := <-lines:
			s.handleLine(ctx, line)
		}
	}
}

func (s *StdioServer) handleLine(ctx context.Context, line []byte) {
	req, resp, err := jsonrpc.ParseFrame(line)
	if errors.Is(err, jsonrpc.ErrEmptyFrame) {
		return
	}
	if resp == nil {
		logger.Debug("Stdio message received", "method", req.Method)
		resp = s.commands.Dispatch(ctx, req)
	}
	if resp == nil {
		return
	}
	s.write(resp)
}

// Notify writes a notification line. It matches
// runtimebridge.NotificationSender.
func (s *StdioServer) Notify(method string, params map[string]any) bool {
	return s.write(jsonrpc.NewNotification(method, params))
}

func (s *StdioServer) write(msg any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.out.Encode(msg); err != nil {
		logger.Error("Error encoding stdio message", "error", err)
		return false
	}
	return true
}
