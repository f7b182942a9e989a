// Package commands implements the UI command surface over the subject
// registry. Every command runs its registry work on the bridge loop.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/slighter12/maya-livelink-go/logger"
)

// InputSchema is the JSON schema advertised for a command's arguments.
type InputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
	Title      string         `json:"title"`
}

// Command is one UI operation.
type Command interface {
	Name() string
	Description() string
	InputSchema() InputSchema
	Execute(ctx context.Context, args json.RawMessage) ([]byte, error)
}

// Descriptor is the listing entry for a command.
type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

type Manager struct {
	commands map[string]Command
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		commands: make(map[string]Command),
	}
}

// Register adds cmd, replacing any command with the same name.
func (m *Manager) Register(cmd Command) error {
	if cmd == nil {
		return errors.New("command cannot be nil")
	}
	name := cmd.Name()
	if name == "" {
		return errors.New("command name cannot be empty")
	}

	m.mutex.Lock()
	m.commands[name] = cmd
	m.mutex.Unlock()
	logger.Debug("Command registered", "name", name)
	return nil
}

func (m *Manager) Get(name string) (Command, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	cmd, ok := m.commands[name]
	return cmd, ok
}

// List returns the registered commands sorted by name.
func (m *Manager) List() []Descriptor {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]Descriptor, 0, len(m.commands))
	for _, cmd := range m.commands {
		out = append(out, Descriptor{
			Name:        cmd.Name(),
			Description: cmd.Description(),
			InputSchema: cmd.InputSchema(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs the named command. Empty args are treated as an empty object.
func (m *Manager) Execute(ctx context.Context, name string, args json.RawMessage) ([]byte, error) {
	cmd, ok := m.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	logger.Debug("Executing command", "name", name, "args", string(args))
	return cmd.Execute(ctx, args)
}

// RegisterDefaults registers every subject command against deps.
func (m *Manager) RegisterDefaults(deps Deps) {
	all := DefaultCommands(deps)
	for _, cmd := range all {
		if err := m.Register(cmd); err != nil {
			logger.Error("Failed to register command", "name", cmd.Name(), "error", err)
		}
	}
	logger.Info("Default commands registered", "count", len(all))
}
