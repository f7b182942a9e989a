package scene

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk scene description.
type Document struct {
	Frame        int32      `yaml:"frame"`
	ActiveCamera string     `yaml:"active_camera"`
	Viewports    []string   `yaml:"viewports"`
	Selection    []string   `yaml:"selection"`
	Nodes        []NodeSpec `yaml:"nodes"`
}

// Build creates a graph from the document.
func (d Document) Build() (*Graph, error) {
	g := NewGraph()
	for _, spec := range d.Nodes {
		if _, err := g.Add("", spec); err != nil {
			return nil, err
		}
	}
	g.frame = d.Frame
	g.activeCamera = d.ActiveCamera
	g.viewports = d.Viewports
	g.selection = d.Selection
	return g, nil
}

// Parse decodes a YAML scene document into a graph.
func Parse(data []byte) (*Graph, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode scene: %w", err)
	}
	return doc.Build()
}

// LoadFile reads and parses a YAML scene file.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}
