package runtimebridge

import (
	"time"

	"github.com/slighter12/maya-livelink-go/registry"
	"github.com/slighter12/maya-livelink-go/scene"
)

// EventKind is a host notification delivered to the bridge loop.
type EventKind int

const (
	// EventTimer is the periodic stream tick.
	EventTimer EventKind = iota
	// EventForceUpdate fires when the host time changes.
	EventForceUpdate
	// EventPostRender fires after a viewport redraw.
	EventPostRender
	// EventDAGChanged fires when the scene topology may have changed.
	EventDAGChanged
	// EventScenePreOpen fires before a different scene is opened.
	EventScenePreOpen
	// EventSceneReloaded carries a freshly parsed scene to swap in.
	EventSceneReloaded
)

var eventKindNames = [...]string{"timer", "force_update", "post_render", "dag_changed", "scene_pre_open", "scene_reloaded"}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return "unknown"
	}
	return eventKindNames[k]
}

// Event is one inbound host notification.
type Event struct {
	Kind EventKind
	// Panel names the viewport for EventPostRender.
	Panel string
	// Graph is the replacement scene for EventSceneReloaded.
	Graph *scene.Graph
}

// Snapshot is the UI-facing view of the bridge state.
type Snapshot struct {
	Subjects    []registry.Row `json:"subjects"`
	Status      string         `json:"status"`
	Connected   bool           `json:"connected"`
	Frame       int32          `json:"frame"`
	SubjectSize int            `json:"subject_count"`
	Viewports   int            `json:"viewport_hooks"`
}

// StoredSnapshot keeps snapshot metadata needed by stale checks.
type StoredSnapshot struct {
	Snapshot  Snapshot  `json:"snapshot"`
	UpdatedAt time.Time `json:"updated_at"`
}
