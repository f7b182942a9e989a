package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

var ErrEmptyFrame = errors.New("empty message")

// ParseFrame decodes one request body. Malformed or batched input yields an
// error response instead of a request; the returned error is reserved for an
// empty body.
func ParseFrame(frame []byte) (*Request, *Response, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 {
		return nil, nil, ErrEmptyFrame
	}
	if trimmed[0] == '[' {
		return nil, NewErrorResponse(nil, int(ErrInvalidRequest), "Batch requests are not supported", nil), nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, NewErrorResponse(nil, int(ErrParseError), "Parse error", nil), nil
	}

	id, validID := parseID(envelope)
	if !validID {
		return nil, NewErrorResponse(nil, int(ErrInvalidRequest), "Invalid request", nil), nil
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, NewErrorResponse(id, int(ErrInvalidRequest), "Invalid request", nil), nil
	}
	req.ID = id
	if req.JSONRPC != Version || strings.TrimSpace(req.Method) == "" {
		return nil, NewErrorResponse(id, int(ErrInvalidRequest), "Invalid request", nil), nil
	}
	if raw, ok := envelope["params"]; ok && !isObject(raw) {
		return nil, NewErrorResponse(id, int(ErrInvalidParams), "Params must be an object", nil), nil
	}
	return &req, nil, nil
}

func parseID(envelope map[string]json.RawMessage) (any, bool) {
	raw, ok := envelope["id"]
	if !ok {
		return nil, true
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, false
	}

	var id any
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	if err := decoder.Decode(&id); err != nil {
		return nil, false
	}
	switch v := id.(type) {
	case string:
		return v, true
	case json.Number:
		if isInteger(v.String()) {
			return v, true
		}
	}
	return nil, false
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func isInteger(value string) bool {
	if value == "" || strings.ContainsAny(value, ".eE") {
		return false
	}
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return true
	}
	if strings.HasPrefix(value, "-") {
		return false
	}
	_, err := strconv.ParseUint(value, 10, 64)
	return err == nil
}
