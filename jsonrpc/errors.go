package jsonrpc

import "errors"

type ErrorCode int

// JSON-RPC 2.0 error codes
const (
	ErrParseError     ErrorCode = -32700 // Invalid JSON was received by the server
	ErrInvalidRequest ErrorCode = -32600 // The JSON sent is not a valid Request object
	ErrMethodNotFound ErrorCode = -32601 // The method does not exist / is not available
	ErrInvalidParams  ErrorCode = -32602 // Invalid method parameter(s)
	ErrInternalError  ErrorCode = -32603 // Internal JSON-RPC error

	// Implementation-defined server errors (-32000 to -32099)
	ErrServerError ErrorCode = -32000
)

// JSONRPCError is an error that already knows its wire code.
type JSONRPCError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func NewJSONRPCError(code ErrorCode, message string, data any) *JSONRPCError {
	return &JSONRPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

func (e *JSONRPCError) Error() string {
	return e.Message
}

// Response builds the error response for request id.
func (e *JSONRPCError) Response(id any) *Response {
	return NewErrorResponse(id, int(e.Code), e.Message, e.Data)
}

// IsError checks if the error is a JSON-RPC error with the given code.
func IsError(err error, code ErrorCode) bool {
	var e *JSONRPCError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func IsMethodNotFound(err error) bool {
	return IsError(err, ErrMethodNotFound)
}

func IsInvalidParams(err error) bool {
	return IsError(err, ErrInvalidParams)
}
