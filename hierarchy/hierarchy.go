// Package hierarchy flattens a joint subtree into a parent-indexed array and
// composes per-bone transforms from it.
package hierarchy

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/slighter12/maya-livelink-go/scene"
	"github.com/slighter12/maya-livelink-go/xform"
)

// Node is one flattened joint. A node's index in the slice is its bone
// index; ParentIndex is -1 for a root and otherwise below the node's own index.
type Node struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	ParentIndex int32  `json:"parent_index"`
}

// Flatten walks the joints under root depth-first and assigns indices in
// visit order. Joints whose attributes cannot be read are left out and their
// descendants attach to the nearest readable ancestor.
func Flatten(q scene.Query, root string) []Node {
	var nodes []Node
	// last index assigned at each depth
	var stack []int32

	_ = q.WalkJoints(root, func(path string, depth int) {
		for len(stack) <= depth {
			stack = append(stack, -1)
		}
		parent := int32(-1)
		if depth > 0 {
			parent = stack[depth-1]
		}

		if _, err := q.Joint(path); err != nil {
			stack[depth] = parent
			return
		}

		name, err := q.Name(path)
		if err != nil {
			name = scene.BaseName(path)
		}
		stack[depth] = int32(len(nodes))
		nodes = append(nodes, Node{Name: name, Path: path, ParentIndex: parent})
	})
	return nodes
}

// LocalMatrix composes bone i relative to its parent bone:
// T * PIS * JO * R * RA * S, where PIS undoes the parent's scale.
// An unreadable joint yields identity.
func LocalMatrix(q scene.Query, nodes []Node, i int) mgl64.Mat4 {
	attrs, err := q.Joint(nodes[i].Path)
	if err != nil {
		return mgl64.Ident4()
	}

	parentInverseScale := mgl64.Ident4()
	if p := nodes[i].ParentIndex; p >= 0 {
		if parent, err := q.Joint(nodes[p].Path); err == nil {
			s := parent.Scale
			if s[0] != 0 && s[1] != 0 && s[2] != 0 {
				parentInverseScale = mgl64.Scale3D(1/s[0], 1/s[1], 1/s[2])
			}
		}
	}

	return xform.TranslationMatrix(attrs.Translation).
		Mul4(parentInverseScale).
		Mul4(xform.EulerMatrix(attrs.Orientation, xform.OrderXYZ)).
		Mul4(xform.EulerMatrix(attrs.Rotation, attrs.RotationOrder)).
		Mul4(xform.EulerMatrix(attrs.RotateAxis, xform.OrderXYZ)).
		Mul4(xform.ScaleMatrix(attrs.Scale))
}

// LocalMatrices fills dst with LocalMatrix for every node, reusing its
// capacity.
func LocalMatrices(q scene.Query, nodes []Node, dst []mgl64.Mat4) []mgl64.Mat4 {
	dst = dst[:0]
	for i := range nodes {
		dst = append(dst, LocalMatrix(q, nodes, i))
	}
	return dst
}

// ComposeWorldTransforms produces one consumer-space transform per node,
// reusing dst's capacity. Only the first node receives the up-axis
// correction; descendants inherit it through the parent chain.
func ComposeWorldTransforms(q scene.Query, nodes []Node, dst []xform.Transform) []xform.Transform {
	dst = dst[:0]
	for i := range nodes {
		m := LocalMatrix(q, nodes, i)
		if i == 0 {
			m = xform.RotateForConsumerUp(m)
		}
		dst = append(dst, xform.ConvertTransform(m))
	}
	return dst
}

// AccumulateWorld multiplies each local matrix by its parent's accumulated
// matrix.
func AccumulateWorld(locals []mgl64.Mat4, nodes []Node) []mgl64.Mat4 {
	world := make([]mgl64.Mat4, len(locals))
	for i, local := range locals {
		if p := nodes[i].ParentIndex; p >= 0 {
			world[i] = world[p].Mul4(local)
		} else {
			world[i] = local
		}
	}
	return world
}
