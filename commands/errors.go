package commands

import (
	"errors"
	"fmt"
)

const (
	SemanticKindNotFound        = "not_found"
	SemanticKindInvalidArgument = "invalid_argument"
	SemanticKindNotAvailable    = "not_available"
)

var ErrCommandNotFound = errors.New("command not found")

func IsCommandNotFound(err error) bool {
	return errors.Is(err, ErrCommandNotFound)
}

// SemanticError marks command failures the caller can act on. They map to
// structured JSON-RPC errors rather than internal errors.
type SemanticError struct {
	Kind    string
	Message string
	Data    map[string]any
}

func (e *SemanticError) Error() string {
	if e == nil {
		return "command semantic error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != "" {
		return fmt.Sprintf("command semantic error: %s", e.Kind)
	}
	return "command semantic error"
}

func NewSemanticError(kind, message string, data map[string]any) *SemanticError {
	return &SemanticError{Kind: kind, Message: message, Data: data}
}

func NewNotFoundError(message string, data map[string]any) *SemanticError {
	return NewSemanticError(SemanticKindNotFound, message, data)
}

func NewInvalidArgumentError(message string, data map[string]any) *SemanticError {
	return NewSemanticError(SemanticKindInvalidArgument, message, data)
}

func NewNotAvailableError(message string, data map[string]any) *SemanticError {
	if message == "" {
		message = "Command is temporarily unavailable"
	}
	return NewSemanticError(SemanticKindNotAvailable, message, data)
}

func AsSemanticError(err error) (*SemanticError, bool) {
	if err == nil {
		return nil, false
	}
	var semanticErr *SemanticError
	if errors.As(err, &semanticErr) {
		return semanticErr, true
	}
	return nil, false
}
