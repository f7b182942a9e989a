package commands

import (
	"context"
	"encoding/json"
	"maps"
	"strings"

	"github.com/slighter12/maya-livelink-go/jsonrpc"
	"github.com/slighter12/maya-livelink-go/logger"
)

// Reserved methods; every other method name is looked up as a command.
const (
	MethodPing         = "ping"
	MethodCommandsList = "commands/list"
	MethodCommandsCall = "commands/call"
)

// Dispatch answers one JSON-RPC request. It returns nil for notifications.
func (m *Manager) Dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	resp := m.dispatch(ctx, req)
	if req.IsNotification() {
		return nil
	}
	return resp
}

func (m *Manager) dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	switch req.Method {
	case MethodPing:
		return jsonrpc.NewResponse(req.ID, map[string]any{})
	case MethodCommandsList:
		return jsonrpc.NewResponse(req.ID, map[string]any{"commands": m.List()})
	case MethodCommandsCall:
		var call struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &call); err != nil {
				return jsonrpc.NewErrorResponse(req.ID, int(jsonrpc.ErrInvalidParams), "Invalid command call payload", nil)
			}
		}
		name := strings.TrimSpace(call.Name)
		if name == "" {
			return jsonrpc.NewErrorResponse(req.ID, int(jsonrpc.ErrInvalidParams), "Command name is required", nil)
		}
		return m.call(ctx, req.ID, name, call.Arguments)
	default:
		return m.call(ctx, req.ID, req.Method, req.Params)
	}
}

func (m *Manager) call(ctx context.Context, id any, name string, args json.RawMessage) *jsonrpc.Response {
	result, err := m.Execute(ctx, name, args)
	if err != nil {
		return ErrorResponse(id, name, err)
	}
	return jsonrpc.NewResponse(id, json.RawMessage(result))
}

// ErrorResponse maps a command error to its JSON-RPC error.
func ErrorResponse(id any, name string, err error) *jsonrpc.Response {
	if IsCommandNotFound(err) {
		return jsonrpc.NewErrorResponse(id, int(jsonrpc.ErrMethodNotFound), "Method not found", map[string]any{
			"method": name,
		})
	}

	if semanticErr, ok := AsSemanticError(err); ok {
		code := jsonrpc.ErrInvalidParams
		if semanticErr.Kind == SemanticKindNotAvailable {
			code = jsonrpc.ErrServerError
		}
		data := map[string]any{"kind": semanticErr.Kind}
		maps.Copy(data, semanticErr.Data)
		return jsonrpc.NewErrorResponse(id, int(code), semanticErr.Message, data)
	}

	logger.Error("Command failed", "command", name, "error", err)
	return jsonrpc.NewErrorResponse(id, int(jsonrpc.ErrInternalError), "Internal error", nil)
}
