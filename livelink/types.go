// Package livelink models what the bridge sends to a streaming consumer: a
// static schema per subject and a frame sample per tick.
package livelink

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/slighter12/maya-livelink-go/xform"
)

// Role selects how the consumer interprets a subject's frames.
type Role string

const (
	RoleTransform Role = "Transform"
	RoleAnimation Role = "Animation"
	RoleCamera    Role = "Camera"
	RoleLight     Role = "Light"
)

// ProjectionMode is the camera projection reported in camera frames.
type ProjectionMode string

const (
	ProjectionPerspective  ProjectionMode = "perspective"
	ProjectionOrthographic ProjectionMode = "orthographic"
)

// Transform is a consumer-space transform narrowed to single precision.
// Rotation is stored as x, y, z, w.
type Transform struct {
	Translation [3]float32 `json:"translation"`
	Rotation    [4]float32 `json:"rotation"`
	Scale       [3]float32 `json:"scale"`
}

// NewTransform narrows a double precision transform for the wire.
func NewTransform(t xform.Transform) Transform {
	return Transform{
		Translation: vec3f(t.Translation),
		Rotation: [4]float32{
			float32(t.Rotation.V[0]),
			float32(t.Rotation.V[1]),
			float32(t.Rotation.V[2]),
			float32(t.Rotation.W),
		},
		Scale: vec3f(t.Scale),
	}
}

func vec3f(v mgl64.Vec3) [3]float32 {
	return [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
}

// CameraCapabilities flags which camera fields frames will carry.
type CameraCapabilities struct {
	FieldOfView    bool `json:"field_of_view"`
	AspectRatio    bool `json:"aspect_ratio"`
	FocalLength    bool `json:"focal_length"`
	ProjectionMode bool `json:"projection_mode"`
}

// LightCapabilities flags which light fields frames will carry.
type LightCapabilities struct {
	Intensity      bool `json:"intensity"`
	Color          bool `json:"color"`
	InnerConeAngle bool `json:"inner_cone_angle"`
	OuterConeAngle bool `json:"outer_cone_angle"`
}

// StaticSchema is sent once per rebuild. Bone arrays are only set for the
// animation role; capability blocks only for camera and light roles.
type StaticSchema struct {
	BoneNames   []string            `json:"bone_names,omitempty"`
	BoneParents []int32             `json:"bone_parents,omitempty"`
	Camera      *CameraCapabilities `json:"camera,omitempty"`
	Light       *LightCapabilities  `json:"light,omitempty"`
}

// RGBA8 is an 8-bit per channel color.
type RGBA8 struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// ColorFromLinear converts 0..1 channels to RGBA8, clamping out of range
// values. Alpha is opaque.
func ColorFromLinear(c mgl64.Vec3) RGBA8 {
	return RGBA8{R: channel(c[0]), G: channel(c[1]), B: channel(c[2]), A: 255}
}

func channel(v float64) uint8 {
	v = math.Round(mgl64.Clamp(v, 0, 1) * 255)
	return uint8(v)
}

func (c RGBA8) String() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// CameraFrame carries per-frame lens data. FieldOfView is horizontal, in
// degrees; FocalLength is millimetres.
type CameraFrame struct {
	FieldOfView    float32        `json:"field_of_view"`
	AspectRatio    float32        `json:"aspect_ratio"`
	FocalLength    float32        `json:"focal_length"`
	ProjectionMode ProjectionMode `json:"projection_mode"`
}

// LightFrame carries per-frame light data. Cone angles are degrees and are
// zero for lights without a cone.
type LightFrame struct {
	Intensity      float32 `json:"intensity"`
	Color          RGBA8   `json:"color"`
	InnerConeAngle float32 `json:"inner_cone_angle,omitempty"`
	OuterConeAngle float32 `json:"outer_cone_angle,omitempty"`
}

// FrameSample is one tick of data for one subject. Transforms holds a single
// entry for every role except animation, where it is one per bone.
type FrameSample struct {
	WorldTime   float64      `json:"world_time"`
	FrameNumber int32        `json:"frame_number"`
	Transforms  []Transform  `json:"transforms"`
	Camera      *CameraFrame `json:"camera,omitempty"`
	Light       *LightFrame  `json:"light,omitempty"`
}

// Transport delivers schemas and frames to consumers. Implementations must
// not retain the slices or pointers inside a frame after the call returns;
// subjects reuse them on the next tick.
type Transport interface {
	PublishSchema(subjectID string, role Role, schema StaticSchema)
	PublishFrame(subjectID string, frame FrameSample)
	RetractSubject(subjectID string)
	IsConnected() bool
}
