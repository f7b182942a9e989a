package subject

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/slighter12/maya-livelink-go/livelink"
	"github.com/slighter12/maya-livelink-go/scene"
)

type lightSubject struct {
	base
	payload []livelink.Transform
	light   livelink.LightFrame
}

func newLight(env Env, id, path string) *lightSubject {
	return &lightSubject{base: base{
		env:  env,
		id:   id,
		kind: KindLight,
		path: path,
		mode: DefaultMode(KindLight),
	}}
}

// RebuildSchema reports cone angles as supported only for spot lights.
func (l *lightSubject) RebuildSchema() {
	if l.mode != ModeLight {
		l.publishSingle()
		return
	}
	spot := l.env.Scene.HasFn(l.path, scene.FnSpotLight)
	l.env.Transport.PublishSchema(l.id, livelink.RoleLight, livelink.StaticSchema{
		Light: &livelink.LightCapabilities{
			Intensity:      true,
			Color:          true,
			InnerConeAngle: spot,
			OuterConeAngle: spot,
		},
	})
}

func (l *lightSubject) SampleFrame(worldTime float64, frame int32) {
	l.payload = append(l.payload[:0], localTransform(l.env.Scene, l.path))
	sample := livelink.FrameSample{
		WorldTime:   worldTime,
		FrameNumber: frame,
		Transforms:  l.payload,
	}

	if l.mode == ModeLight {
		if attrs, err := l.env.Scene.Light(l.path); err == nil {
			l.light = livelink.LightFrame{
				Intensity: float32(attrs.Intensity),
				Color:     livelink.ColorFromLinear(attrs.Color),
			}
			if attrs.Spot {
				l.light.InnerConeAngle = float32(mgl64.RadToDeg(attrs.ConeAngle))
				l.light.OuterConeAngle = float32(mgl64.RadToDeg(attrs.PenumbraAngle))
			}
			sample.Light = &l.light
		}
	}

	l.env.Transport.PublishFrame(l.id, sample)
}

func (l *lightSubject) SetStreamMode(name string) bool {
	return l.switchMode(name, l.RebuildSchema)
}
