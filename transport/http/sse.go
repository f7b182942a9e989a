package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

var errStreamClosed = errors.New("stream is closed")

// SSEStream writes server-sent events to one response.
type SSEStream struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	closed  bool
}

func NewSSEStream(w http.ResponseWriter, f http.Flusher) *SSEStream {
	return &SSEStream{writer: w, flusher: f}
}

// Send writes one event whose data is an already encoded JSON document.
func (s *SSEStream) Send(event string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStreamClosed
	}
	frame := fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
	if err := s.writeLocked(frame); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	return nil
}

// SendComment writes one SSE comment frame (":" prefixed lines).
func (s *SSEStream) SendComment(comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStreamClosed
	}
	comment = strings.ReplaceAll(comment, "\r\n", "\n")
	comment = strings.ReplaceAll(comment, "\r", "\n")
	comment = strings.ReplaceAll(comment, "\n", "\n: ")
	if err := s.writeLocked(fmt.Sprintf(": %s\n\n", comment)); err != nil {
		return fmt.Errorf("failed to write SSE comment: %w", err)
	}
	return nil
}

func (s *SSEStream) writeLocked(payload string) error {
	if _, err := s.writer.Write([]byte(payload)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *SSEStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *SSEStream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
