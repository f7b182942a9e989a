package commands

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/slighter12/maya-livelink-go/registry"
	"github.com/slighter12/maya-livelink-go/runtimebridge"
	"github.com/slighter12/maya-livelink-go/scene"
	"github.com/slighter12/maya-livelink-go/subject"
)

// Loop runs registry work on the goroutine that owns the registry.
// *runtimebridge.Bridge satisfies it.
type Loop interface {
	Do(ctx context.Context, name string, fn func(*registry.Registry) error) error
}

// Deps are the collaborators shared by the subject commands. Scene is only
// read from inside Loop callbacks.
type Deps struct {
	Loop  Loop
	Scene scene.Query
}

func (d Deps) do(ctx context.Context, name string, fn func(*registry.Registry) error) error {
	if d.Loop == nil {
		return NewNotAvailableError("Bridge loop is not configured", map[string]any{"command": name})
	}
	err := d.Loop.Do(ctx, name, fn)
	if errors.Is(err, runtimebridge.ErrBridgeStopped) || errors.Is(err, runtimebridge.ErrCommandTimeout) {
		return NewNotAvailableError(err.Error(), map[string]any{"command": name})
	}
	return err
}

func decodeArgs(command string, args json.RawMessage, dst any) error {
	if err := json.Unmarshal(args, dst); err != nil {
		return NewInvalidArgumentError("Invalid arguments", map[string]any{"command": command, "error": err.Error()})
	}
	return nil
}

func requireField(command, field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", NewInvalidArgumentError(field+" is required", map[string]any{"command": command, "field": field})
	}
	return value, nil
}

func subjectNotFound(command, path string) error {
	return NewNotFoundError("No subject is streaming "+path, map[string]any{"command": command, "path": path})
}

func findRow(rows []registry.Row, match func(registry.Row) bool) (registry.Row, bool) {
	for _, row := range rows {
		if match(row) {
			return row, true
		}
	}
	return registry.Row{}, false
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

type ListSubjectsCommand struct{ deps Deps }

func (c *ListSubjectsCommand) Name() string        { return "list-subjects" }
func (c *ListSubjectsCommand) Description() string { return "Lists the streamed subjects shown in the UI" }
func (c *ListSubjectsCommand) InputSchema() InputSchema {
	return InputSchema{Type: "object", Properties: map[string]any{}, Required: []string{}, Title: "List Subjects"}
}
func (c *ListSubjectsCommand) Execute(ctx context.Context, args json.RawMessage) ([]byte, error) {
	var rows []registry.Row
	if err := c.deps.do(ctx, c.Name(), func(reg *registry.Registry) error {
		rows = reg.Subjects()
		return nil
	}); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"subjects": rows, "count": len(rows)})
}

type AddSubjectCommand struct{ deps Deps }

func (c *AddSubjectCommand) Name() string { return "add-subject" }
func (c *AddSubjectCommand) Description() string {
	return "Starts streaming a scene node. The kind is inferred from the node when omitted"
}
func (c *AddSubjectCommand) InputSchema() InputSchema {
	return InputSchema{
		Type: "object",
		Properties: map[string]any{
			"path": stringProp("Scene path of the subject root"),
			"name": stringProp("Subject name; defaults to the node name"),
			"kind": map[string]any{
				"type":        "string",
				"description": "Subject kind",
				"enum":        []string{"Character", "Camera", "Light", "Prop"},
			},
		},
		Required: []string{"path"},
		Title:    "Add Subject",
	}
}
func (c *AddSubjectCommand) Execute(ctx context.Context, args json.RawMessage) ([]byte, error) {
	var payload struct {
		Path string `json:"path"`
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	if err := decodeArgs(c.Name(), args, &payload); err != nil {
		return nil, err
	}
	path, err := requireField(c.Name(), "path", payload.Path)
	if err != nil {
		return nil, err
	}

	var row registry.Row
	err = c.deps.do(ctx, c.Name(), func(reg *registry.Registry) error {
		q := c.deps.Scene
		if !q.IsValid(path) {
			return NewNotFoundError("Scene node not found", map[string]any{"command": c.Name(), "path": path})
		}

		kind := subject.KindForNode(q, path)
		if strings.TrimSpace(payload.Kind) != "" {
			parsed, err := subject.ParseKind(payload.Kind)
			if err != nil {
				return NewInvalidArgumentError(err.Error(), map[string]any{"command": c.Name(), "kind": payload.Kind})
			}
			kind = parsed
		}

		name := strings.TrimSpace(payload.Name)
		if name == "" {
			name = scene.BaseName(path)
			if nodeName, err := q.Name(path); err == nil {
				name = nodeName
			}
		}
		if _, exists := reg.Find(name); exists {
			return NewInvalidArgumentError("Subject name already in use", map[string]any{"command": c.Name(), "name": name})
		}

		if err := reg.AddSubject(kind, name, path); err != nil {
			return NewInvalidArgumentError(err.Error(), map[string]any{"command": c.Name(), "path": path})
		}
		row, _ = findRow(reg.Subjects(), func(r registry.Row) bool { return r.Name == name })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"subject": row})
}

type AddSelectionCommand struct{ deps Deps }

func (c *AddSelectionCommand) Name() string { return "add-selection" }
func (c *AddSelectionCommand) Description() string {
	return "Adds a subject for each selected root, or for the given paths"
}
func (c *AddSelectionCommand) InputSchema() InputSchema {
	return InputSchema{
		Type: "object",
		Properties: map[string]any{
			"paths": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Root paths; defaults to the scene selection",
			},
		},
		Required: []string{},
		Title:    "Add Selection",
	}
}
func (c *AddSelectionCommand) Execute(ctx context.Context, args json.RawMessage) ([]byte, error) {
	var payload struct {
		Paths []string `json:"paths"`
	}
	if err := decodeArgs(c.Name(), args, &payload); err != nil {
		return nil, err
	}

	var added []string
	var rows []registry.Row
	err := c.deps.do(ctx, c.Name(), func(reg *registry.Registry) error {
		roots := payload.Paths
		if len(roots) == 0 {
			roots = c.deps.Scene.Selection()
		}
		if len(roots) == 0 {
			return NewInvalidArgumentError("Nothing is selected", map[string]any{"command": c.Name()})
		}
		added = reg.AddSelection(roots)
		rows = reg.Subjects()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if added == nil {
		added = []string{}
	}
	return json.Marshal(map[string]any{"added": added, "subjects": rows})
}

type RemoveSubjectCommand struct{ deps Deps }

func (c *RemoveSubjectCommand) Name() string        { return "remove-subject" }
func (c *RemoveSubjectCommand) Description() string { return "Stops streaming the subject rooted at path" }
func (c *RemoveSubjectCommand) InputSchema() InputSchema {
	return InputSchema{Type: "object", Properties: map[string]any{"path": stringProp("Scene path of the subject root")}, Required: []string{"path"}, Title: "Remove Subject"}
}
func (c *RemoveSubjectCommand) Execute(ctx context.Context, args json.RawMessage) ([]byte, error) {
	var payload struct {
		Path string `json:"path"`
	}
	if err := decodeArgs(c.Name(), args, &payload); err != nil {
		return nil, err
	}
	path, err := requireField(c.Name(), "path", payload.Path)
	if err != nil {
		return nil, err
	}

	if err := c.deps.do(ctx, c.Name(), func(reg *registry.Registry) error {
		if !reg.RemoveSubject(path) {
			return subjectNotFound(c.Name(), path)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"removed": path})
}

type RenameSubjectCommand struct{ deps Deps }

func (c *RenameSubjectCommand) Name() string { return "rename-subject" }
func (c *RenameSubjectCommand) Description() string {
	return "Recreates the subject at path under a new name"
}
func (c *RenameSubjectCommand) InputSchema() InputSchema {
	return InputSchema{
		Type: "object",
		Properties: map[string]any{
			"path": stringProp("Scene path of the subject root"),
			"name": stringProp("New subject name"),
		},
		Required: []string{"path", "name"},
		Title:    "Rename Subject",
	}
}
func (c *RenameSubjectCommand) Execute(ctx context.Context, args json.RawMessage) ([]byte, error) {
	var payload struct {
		Path string `json:"path"`
		Name string `json:"name"`
	}
	if err := decodeArgs(c.Name(), args, &payload); err != nil {
		return nil, err
	}
	path, err := requireField(c.Name(), "path", payload.Path)
	if err != nil {
		return nil, err
	}
	name, err := requireField(c.Name(), "name", payload.Name)
	if err != nil {
		return nil, err
	}

	var row registry.Row
	err = c.deps.do(ctx, c.Name(), func(reg *registry.Registry) error {
		if existing, ok := reg.Find(name); ok && existing.Path() != path {
			return NewInvalidArgumentError("Subject name already in use", map[string]any{"command": c.Name(), "name": name})
		}
		if !reg.RenameSubject(path, name) {
			return subjectNotFound(c.Name(), path)
		}
		row, _ = findRow(reg.Subjects(), func(r registry.Row) bool { return r.Name == name })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"subject": row})
}

type ChangeStreamModeCommand struct{ deps Deps }

func (c *ChangeStreamModeCommand) Name() string        { return "change-stream-mode" }
func (c *ChangeStreamModeCommand) Description() string { return "Switches what a subject streams" }
func (c *ChangeStreamModeCommand) InputSchema() InputSchema {
	return InputSchema{
		Type: "object",
		Properties: map[string]any{
			"path": stringProp("Scene path of the subject root"),
			"mode": stringProp("Stream mode, for example \"Root Only\" or \"Full Hierarchy\""),
		},
		Required: []string{"path", "mode"},
		Title:    "Change Stream Mode",
	}
}
func (c *ChangeStreamModeCommand) Execute(ctx context.Context, args json.RawMessage) ([]byte, error) {
	var payload struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
	}
	if err := decodeArgs(c.Name(), args, &payload); err != nil {
		return nil, err
	}
	path, err := requireField(c.Name(), "path", payload.Path)
	if err != nil {
		return nil, err
	}
	mode, err := requireField(c.Name(), "mode", payload.Mode)
	if err != nil {
		return nil, err
	}

	var row registry.Row
	var changed bool
	err = c.deps.do(ctx, c.Name(), func(reg *registry.Registry) error {
		byPath := func(r registry.Row) bool { return r.Path == path }
		current, ok := findRow(reg.Subjects(), byPath)
		if !ok {
			return subjectNotFound(c.Name(), path)
		}
		label, ok := matchMode(current.Modes, mode)
		if !ok {
			return NewInvalidArgumentError("Unknown stream mode", map[string]any{
				"command": c.Name(),
				"mode":    mode,
				"modes":   current.Modes,
			})
		}
		if label == current.Role {
			row = current
			return nil
		}
		if !reg.ChangeStreamMode(path, label) {
			return NewInvalidArgumentError("Unsupported stream mode", map[string]any{
				"command": c.Name(),
				"mode":    mode,
				"modes":   current.Modes,
			})
		}
		row, _ = findRow(reg.Subjects(), byPath)
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"subject": row, "changed": changed})
}

// matchMode resolves name against a subject's mode labels. The identifier
// form without spaces ("RootOnly") matches too.
func matchMode(labels []string, name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, label := range labels {
		if strings.EqualFold(name, label) || strings.EqualFold(name, strings.ReplaceAll(label, " ", "")) {
			return label, true
		}
	}
	return "", false
}

type ConnectionStatusCommand struct{ deps Deps }

func (c *ConnectionStatusCommand) Name() string { return "connection-status" }
func (c *ConnectionStatusCommand) Description() string {
	return "Reports whether a streaming consumer is connected"
}
func (c *ConnectionStatusCommand) InputSchema() InputSchema {
	return InputSchema{Type: "object", Properties: map[string]any{}, Required: []string{}, Title: "Connection Status"}
}
func (c *ConnectionStatusCommand) Execute(ctx context.Context, args json.RawMessage) ([]byte, error) {
	var status string
	var connected bool
	if err := c.deps.do(ctx, c.Name(), func(reg *registry.Registry) error {
		status, connected = reg.ConnectionStatus()
		return nil
	}); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"status": status, "connected": connected})
}

type RebuildSubjectsCommand struct{ deps Deps }

func (c *RebuildSubjectsCommand) Name() string { return "rebuild-subjects" }
func (c *RebuildSubjectsCommand) Description() string {
	return "Prunes stale subjects and republishes every schema"
}
func (c *RebuildSubjectsCommand) InputSchema() InputSchema {
	return InputSchema{Type: "object", Properties: map[string]any{}, Required: []string{}, Title: "Rebuild Subjects"}
}
func (c *RebuildSubjectsCommand) Execute(ctx context.Context, args json.RawMessage) ([]byte, error) {
	var rows []registry.Row
	var pruned int
	if err := c.deps.do(ctx, c.Name(), func(reg *registry.Registry) error {
		before := reg.Len()
		reg.RebuildAll()
		pruned = before - reg.Len()
		rows = reg.Subjects()
		return nil
	}); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"subjects": rows, "pruned": pruned})
}

// DefaultCommands returns every subject command bound to deps.
func DefaultCommands(deps Deps) []Command {
	return []Command{
		&ListSubjectsCommand{deps: deps},
		&AddSubjectCommand{deps: deps},
		&AddSelectionCommand{deps: deps},
		&RemoveSubjectCommand{deps: deps},
		&RenameSubjectCommand{deps: deps},
		&ChangeStreamModeCommand{deps: deps},
		&ConnectionStatusCommand{deps: deps},
		&RebuildSubjectsCommand{deps: deps},
	}
}
