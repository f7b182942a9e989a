package subject

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/slighter12/maya-livelink-go/livelink"
	"github.com/slighter12/maya-livelink-go/xform"
)

var fullCameraCapabilities = livelink.CameraCapabilities{
	FieldOfView:    true,
	AspectRatio:    true,
	FocalLength:    true,
	ProjectionMode: true,
}

type cameraSubject struct {
	base
	payload []livelink.Transform
	lens    livelink.CameraFrame
}

func newCamera(env Env, id, path string) *cameraSubject {
	return &cameraSubject{base: base{
		env:  env,
		id:   id,
		kind: KindCamera,
		path: path,
		mode: DefaultMode(KindCamera),
	}}
}

func (c *cameraSubject) RebuildSchema() {
	if c.mode != ModeCamera {
		c.publishSingle()
		return
	}
	caps := fullCameraCapabilities
	c.env.Transport.PublishSchema(c.id, livelink.RoleCamera, livelink.StaticSchema{Camera: &caps})
}

func (c *cameraSubject) SampleFrame(worldTime float64, frame int32) {
	c.streamCamera(c.path, worldTime, frame)
}

func (c *cameraSubject) SetStreamMode(name string) bool {
	return c.switchMode(name, c.RebuildSchema)
}

// streamCamera samples the camera at path from its world basis. Nothing is
// sent when the camera cannot be read.
func (c *cameraSubject) streamCamera(path string, worldTime float64, frame int32) {
	attrs, err := c.env.Scene.Camera(path)
	if err != nil {
		return
	}

	m := xform.BasisMatrix(attrs.Right, attrs.View, attrs.Up, attrs.Eye)
	t := xform.ConvertTransform(xform.RotateForConsumerUp(m))
	t.Rotation = t.Rotation.Mul(xform.CameraYawCorrection)

	c.payload = append(c.payload[:0], livelink.NewTransform(t))
	sample := livelink.FrameSample{
		WorldTime:   worldTime,
		FrameNumber: frame,
		Transforms:  c.payload,
	}

	if c.mode == ModeCamera {
		c.lens = livelink.CameraFrame{
			FieldOfView:    float32(mgl64.RadToDeg(attrs.HorizontalFieldOfView)),
			AspectRatio:    float32(attrs.AspectRatio),
			FocalLength:    float32(attrs.FocalLength),
			ProjectionMode: livelink.ProjectionPerspective,
		}
		if attrs.Orthographic {
			c.lens.ProjectionMode = livelink.ProjectionOrthographic
		}
		sample.Camera = &c.lens
	}

	c.env.Transport.PublishFrame(c.id, sample)
}

// activeCamera follows whichever camera the active view looks through.
type activeCamera struct {
	cameraSubject
}

// NewActiveCamera returns the registry-owned subject that tracks the active
// view's camera.
func NewActiveCamera(env Env) Subject {
	return &activeCamera{cameraSubject{base: base{
		env:  env,
		id:   ActiveCameraID,
		kind: KindActiveCamera,
		mode: ModeCamera,
	}}}
}

func (a *activeCamera) ShouldListInUI() bool { return false }

func (a *activeCamera) IsStillValid() bool { return true }

func (a *activeCamera) SetStreamMode(string) bool { return false }

// SampleFrame re-resolves the view camera first and keeps the last good one
// when the view has none.
func (a *activeCamera) SampleFrame(worldTime float64, frame int32) {
	if path, ok := a.env.Scene.ActiveViewCamera(); ok {
		a.path = path
	}
	if a.path == "" {
		return
	}
	a.streamCamera(a.path, worldTime, frame)
}
