package subject

import "github.com/slighter12/maya-livelink-go/livelink"

// propSubject streams a plain transform. Props have no joints, so full
// hierarchy mode is a single root bone.
type propSubject struct {
	base
	payload []livelink.Transform
}

func newProp(env Env, id, path string) *propSubject {
	return &propSubject{base: base{
		env:  env,
		id:   id,
		kind: KindProp,
		path: path,
		mode: DefaultMode(KindProp),
	}}
}

func (p *propSubject) RebuildSchema() {
	p.publishSingle()
}

func (p *propSubject) SampleFrame(worldTime float64, frame int32) {
	p.payload = append(p.payload[:0], localTransform(p.env.Scene, p.path))
	p.env.Transport.PublishFrame(p.id, livelink.FrameSample{
		WorldTime:   worldTime,
		FrameNumber: frame,
		Transforms:  p.payload,
	})
}

func (p *propSubject) SetStreamMode(name string) bool {
	return p.switchMode(name, p.RebuildSchema)
}
