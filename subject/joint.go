package subject

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/slighter12/maya-livelink-go/hierarchy"
	"github.com/slighter12/maya-livelink-go/livelink"
	"github.com/slighter12/maya-livelink-go/scene"
	"github.com/slighter12/maya-livelink-go/xform"
)

type jointSubject struct {
	base
	nodes []hierarchy.Node

	// reused every frame
	transforms []xform.Transform
	payload    []livelink.Transform
}

func newJoint(env Env, id, path string) *jointSubject {
	return &jointSubject{base: base{
		env:  env,
		id:   id,
		kind: KindJointHierarchy,
		path: path,
		mode: DefaultMode(KindJointHierarchy),
	}}
}

// IsStillValid also reads the root transform, since a joint can resolve
// while its attributes are unreadable.
func (s *jointSubject) IsStillValid() bool {
	if !s.env.Scene.IsValid(s.path) {
		return false
	}
	_, err := s.env.Scene.LocalMatrix(s.path)
	return err == nil
}

func (s *jointSubject) RebuildSchema() {
	if s.mode != ModeFullHierarchy {
		s.nodes = nil
		s.env.Transport.PublishSchema(s.id, livelink.RoleTransform, livelink.StaticSchema{})
		return
	}

	s.nodes = hierarchy.Flatten(s.env.Scene, s.path)
	schema := livelink.StaticSchema{
		BoneNames:   make([]string, len(s.nodes)),
		BoneParents: make([]int32, len(s.nodes)),
	}
	for i, n := range s.nodes {
		schema.BoneNames[i] = n.Name
		schema.BoneParents[i] = n.ParentIndex
	}
	s.env.log().Debug("Rebuilt joint hierarchy", "subject", s.id, "bones", len(s.nodes))
	s.env.Transport.PublishSchema(s.id, livelink.RoleAnimation, schema)
}

func (s *jointSubject) SampleFrame(worldTime float64, frame int32) {
	s.payload = s.payload[:0]
	if s.mode == ModeFullHierarchy {
		s.transforms = hierarchy.ComposeWorldTransforms(s.env.Scene, s.nodes, s.transforms)
		for _, t := range s.transforms {
			s.payload = append(s.payload, livelink.NewTransform(t))
		}
	} else {
		s.payload = append(s.payload, localTransform(s.env.Scene, s.path))
	}

	s.env.Transport.PublishFrame(s.id, livelink.FrameSample{
		WorldTime:   worldTime,
		FrameNumber: frame,
		Transforms:  s.payload,
	})
}

func (s *jointSubject) SetStreamMode(name string) bool {
	return s.switchMode(name, s.RebuildSchema)
}

// Bones returns the flattened hierarchy from the last rebuild.
func (s *jointSubject) Bones() []hierarchy.Node {
	return s.nodes
}

// localTransform converts a node's own transform for root-level streaming.
// An unreadable node contributes an identity local matrix.
func localTransform(q scene.Query, path string) livelink.Transform {
	m, err := q.LocalMatrix(path)
	if err != nil {
		m = mgl64.Ident4()
	}
	return livelink.NewTransform(xform.ConvertTransform(xform.RotateForConsumerUp(m)))
}
