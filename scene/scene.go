// Package scene defines the scene-query contract the bridge samples every
// tick, and an in-memory DAG that implements it.
package scene

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/slighter12/maya-livelink-go/xform"
)

var (
	ErrNotFound  = errors.New("scene node not found")
	ErrWrongType = errors.New("scene node has wrong type")
	ErrLocked    = errors.New("scene node attributes unreadable")
)

// Fn is a function-set capability a DAG path may support.
type Fn int

const (
	FnTransform Fn = iota
	FnJoint
	FnCamera
	FnLight
	FnSpotLight
)

// JointAttrs holds the local channels of a joint. Angles are radians.
type JointAttrs struct {
	Translation   mgl64.Vec3
	Rotation      mgl64.Vec3
	Orientation   mgl64.Vec3
	RotateAxis    mgl64.Vec3
	Scale         mgl64.Vec3
	RotationOrder xform.RotationOrder
}

// CameraAttrs is a camera sampled in world space. Angles are radians.
type CameraAttrs struct {
	Eye                   mgl64.Vec3
	Right                 mgl64.Vec3
	View                  mgl64.Vec3
	Up                    mgl64.Vec3
	HorizontalFieldOfView float64
	AspectRatio           float64
	FocalLength           float64
	Orthographic          bool
}

// LightAttrs is a light shape. Angles are radians, color channels 0..1.
type LightAttrs struct {
	Intensity     float64
	Color         mgl64.Vec3
	Spot          bool
	ConeAngle     float64
	PenumbraAngle float64
}

// Query is everything the bridge reads from the authoring tool. Paths are
// non-owning references that may dangle at any time.
type Query interface {
	IsValid(path string) bool
	HasFn(path string, fn Fn) bool
	Name(path string) (string, error)

	// WalkJoints visits joints under root depth-first. depth counts joint
	// ancestors below root, so the first joint reached is depth 0.
	WalkJoints(root string, visit func(path string, depth int)) error
	// WalkDAG visits root and its descendants in pre-order until visit
	// returns false.
	WalkDAG(root string, visit func(path string) bool) error

	LocalMatrix(path string) (mgl64.Mat4, error)
	Joint(path string) (JointAttrs, error)
	Camera(path string) (CameraAttrs, error)
	Light(path string) (LightAttrs, error)

	ActiveViewCamera() (string, bool)
	CurrentFrame() int32
	ViewportPanels() []string
	Selection() []string
}

// JoinPath appends name to a DAG path.
func JoinPath(parent, name string) string {
	return parent + "|" + name
}

// BaseName returns the last component of a DAG path.
func BaseName(path string) string {
	if i := strings.LastIndex(path, "|"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func notFound(path string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, path)
}
