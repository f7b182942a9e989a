// Package subject implements the streamed subject variants: joint
// hierarchies, cameras, lights, props and the editor's active camera.
package subject

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/slighter12/maya-livelink-go/livelink"
	"github.com/slighter12/maya-livelink-go/logger"
	"github.com/slighter12/maya-livelink-go/scene"
)

// ActiveCameraID is the fixed identifier of the active-camera subject.
const ActiveCameraID = "EditorActiveCamera"

// Kind is the structural type of a subject.
type Kind int

const (
	KindJointHierarchy Kind = iota
	KindCamera
	KindLight
	KindProp
	KindActiveCamera
)

var kindNames = [...]string{"JointHierarchy", "Camera", "Light", "Prop", "ActiveCamera"}

// UI labels, as shown in the subject list.
var kindLabels = [...]string{"Character", "Camera", "Light", "Prop", "Camera"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Label is the type column shown in the UI.
func (k Kind) Label() string {
	if k < 0 || int(k) >= len(kindLabels) {
		return k.String()
	}
	return kindLabels[k]
}

// ParseKind accepts an identifier or a UI label. "Character" maps to
// KindJointHierarchy. The active camera cannot be created by name.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, "Character"), strings.EqualFold(s, "Joint"):
		return KindJointHierarchy, nil
	}
	for i, name := range kindNames[:KindActiveCamera] {
		if strings.EqualFold(name, s) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown subject kind %q", s)
}

// KindForNode infers the subject kind for a scene node from its type.
func KindForNode(q scene.Query, path string) Kind {
	switch {
	case q.HasFn(path, scene.FnJoint):
		return KindJointHierarchy
	case q.HasFn(path, scene.FnCamera):
		return KindCamera
	case q.HasFn(path, scene.FnLight):
		return KindLight
	default:
		return KindProp
	}
}

// Env is what every subject needs from its surroundings.
type Env struct {
	Scene     scene.Query
	Transport livelink.Transport
	Logger    *slog.Logger
}

func (e Env) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return logger.Component("subject")
}

// Subject is one streamed entity.
type Subject interface {
	ID() string
	Kind() Kind
	// Path is the root scene path; the active camera reports whichever
	// camera it last sampled.
	Path() string
	StreamMode() StreamMode
	Modes() []StreamMode

	ShouldListInUI() bool
	IsStillValid() bool
	// RebuildSchema publishes the schema for the current mode.
	RebuildSchema()
	SampleFrame(worldTime float64, frame int32)
	// SetStreamMode switches to the named mode and republishes the schema.
	// It reports false for an unknown or unchanged mode.
	SetStreamMode(name string) bool
	// Retract withdraws the subject from consumers.
	Retract()
}

// New builds a user subject of kind rooted at path.
func New(env Env, kind Kind, id, path string) (Subject, error) {
	switch kind {
	case KindJointHierarchy:
		return newJoint(env, id, path), nil
	case KindCamera:
		return newCamera(env, id, path), nil
	case KindLight:
		return newLight(env, id, path), nil
	case KindProp:
		return newProp(env, id, path), nil
	case KindActiveCamera:
		return nil, fmt.Errorf("subject kind %s is managed by the registry", kind)
	}
	return nil, fmt.Errorf("unknown subject kind %d", int(kind))
}

// base holds the state shared by every variant.
type base struct {
	env  Env
	id   string
	kind Kind
	path string
	mode StreamMode
}

func (b *base) ID() string             { return b.id }
func (b *base) Kind() Kind             { return b.kind }
func (b *base) Path() string           { return b.path }
func (b *base) StreamMode() StreamMode { return b.mode }
func (b *base) Modes() []StreamMode    { return ModesFor(b.kind) }
func (b *base) ShouldListInUI() bool   { return true }

func (b *base) IsStillValid() bool {
	return b.env.Scene.IsValid(b.path)
}

func (b *base) Retract() {
	b.env.Transport.RetractSubject(b.id)
}

// switchMode updates the mode and calls rebuild when name is a new option.
func (b *base) switchMode(name string, rebuild func()) bool {
	mode, ok := lookupMode(ModesFor(b.kind), name)
	if !ok || mode == b.mode {
		return false
	}
	b.mode = mode
	b.env.log().Debug("Stream mode changed", "subject", b.id, "mode", mode.Label())
	rebuild()
	return true
}

// publishSingle sends the schema of a non-joint subject in RootOnly or
// FullHierarchy mode. The full hierarchy of a non-joint node is one bone.
func (b *base) publishSingle() {
	switch b.mode {
	case ModeFullHierarchy:
		b.env.Transport.PublishSchema(b.id, livelink.RoleAnimation, livelink.StaticSchema{
			BoneNames:   []string{"root"},
			BoneParents: []int32{-1},
		})
	default:
		b.env.Transport.PublishSchema(b.id, livelink.RoleTransform, livelink.StaticSchema{})
	}
}
