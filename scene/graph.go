package scene

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/slighter12/maya-livelink-go/xform"
)

// NodeType is the concrete type of a DAG node.
type NodeType int

const (
	TypeTransform NodeType = iota
	TypeJoint
	TypeCamera
	TypeLight
	TypeSpotLight
)

var nodeTypeNames = [...]string{"transform", "joint", "camera", "light", "spotLight"}

func (t NodeType) String() string {
	if t < 0 || int(t) >= len(nodeTypeNames) {
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
	return nodeTypeNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t NodeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *NodeType) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*t = TypeTransform
		return nil
	}
	for i, name := range nodeTypeNames {
		if strings.EqualFold(name, s) {
			*t = NodeType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown node type %q", s)
}

func (t NodeType) isShape() bool {
	return t == TypeCamera || t == TypeLight || t == TypeSpotLight
}

// CameraSpec describes a camera shape.
type CameraSpec struct {
	FocalLength float64 `yaml:"focal_length"`
	// Horizontal film aperture in inches.
	HorizontalAperture float64 `yaml:"horizontal_aperture"`
	AspectRatio        float64 `yaml:"aspect_ratio"`
	Orthographic       bool    `yaml:"orthographic"`
}

// LightSpec describes a light shape. Angles are degrees.
type LightSpec struct {
	Intensity     float64     `yaml:"intensity"`
	Color         *mgl64.Vec3 `yaml:"color"`
	ConeAngle     float64     `yaml:"cone_angle"`
	PenumbraAngle float64     `yaml:"penumbra_angle"`
}

// NodeSpec describes one DAG node and its subtree. Angles are degrees.
type NodeSpec struct {
	Name        string              `yaml:"name"`
	Type        NodeType            `yaml:"type"`
	Translate   mgl64.Vec3          `yaml:"translate"`
	Rotate      mgl64.Vec3          `yaml:"rotate"`
	JointOrient mgl64.Vec3          `yaml:"joint_orient"`
	RotateAxis  mgl64.Vec3          `yaml:"rotate_axis"`
	Scale       *mgl64.Vec3         `yaml:"scale"`
	RotateOrder xform.RotationOrder `yaml:"rotate_order"`
	Camera      *CameraSpec         `yaml:"camera,omitempty"`
	Light       *LightSpec          `yaml:"light,omitempty"`
	Children    []NodeSpec          `yaml:"children,omitempty"`
}

type node struct {
	path     string
	spec     NodeSpec
	parent   *node
	children []*node
	locked   bool
}

// Graph is an in-memory DAG. It is safe for concurrent use, but the bridge
// only touches it from its event loop.
type Graph struct {
	mu           sync.RWMutex
	nodes        map[string]*node
	roots        []*node
	frame        int32
	activeCamera string
	viewports    []string
	selection    []string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// Add inserts spec and its children under parent ("" for a world root) and
// returns the new node's path.
func (g *Graph) Add(parent string, spec NodeSpec) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addLocked(parent, spec)
}

func (g *Graph) addLocked(parent string, spec NodeSpec) (string, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" || strings.Contains(name, "|") {
		return "", fmt.Errorf("invalid node name %q", spec.Name)
	}

	var parentNode *node
	if parent != "" {
		p, ok := g.nodes[parent]
		if !ok {
			return "", notFound(parent)
		}
		if p.spec.Type.isShape() {
			return "", fmt.Errorf("%w: shape %s cannot have children", ErrWrongType, parent)
		}
		parentNode = p
	}

	path := JoinPath(parent, name)
	if _, exists := g.nodes[path]; exists {
		return "", fmt.Errorf("duplicate node path %s", path)
	}

	children := spec.Children
	spec.Name = name
	spec.Children = nil
	n := &node{path: path, spec: spec, parent: parentNode}
	g.nodes[path] = n
	if parentNode == nil {
		g.roots = append(g.roots, n)
	} else {
		parentNode.children = append(parentNode.children, n)
	}

	for _, child := range children {
		if _, err := g.addLocked(path, child); err != nil {
			return "", err
		}
	}
	return path, nil
}

// Remove deletes path and its subtree.
func (g *Graph) Remove(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[path]
	if !ok {
		return false
	}
	if n.parent == nil {
		g.roots = slices.DeleteFunc(g.roots, func(c *node) bool { return c == n })
	} else {
		n.parent.children = slices.DeleteFunc(n.parent.children, func(c *node) bool { return c == n })
	}
	g.forgetLocked(n)
	return true
}

func (g *Graph) forgetLocked(n *node) {
	delete(g.nodes, n.path)
	for _, c := range n.children {
		g.forgetLocked(c)
	}
}

// Modify edits the attributes of one node. Children and name are ignored.
func (g *Graph) Modify(path string, edit func(*NodeSpec)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[path]
	if !ok {
		return notFound(path)
	}
	spec := n.spec
	edit(&spec)
	spec.Name = n.spec.Name
	spec.Children = nil
	n.spec = spec
	return nil
}

// SetLocked makes attribute reads on path fail, as the host does for nodes
// it cannot resolve mid-edit.
func (g *Graph) SetLocked(path string, locked bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[path]
	if !ok {
		return notFound(path)
	}
	n.locked = locked
	return nil
}

func (g *Graph) SetFrame(frame int32) {
	g.mu.Lock()
	g.frame = frame
	g.mu.Unlock()
}

func (g *Graph) SetActiveCamera(path string) {
	g.mu.Lock()
	g.activeCamera = path
	g.mu.Unlock()
}

func (g *Graph) SetViewportPanels(panels []string) {
	g.mu.Lock()
	g.viewports = slices.Clone(panels)
	g.mu.Unlock()
}

func (g *Graph) SetSelection(paths []string) {
	g.mu.Lock()
	g.selection = slices.Clone(paths)
	g.mu.Unlock()
}

// Replace swaps in the contents of other. other must not be used afterwards.
func (g *Graph) Replace(other *Graph) {
	other.mu.Lock()
	defer other.mu.Unlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = other.nodes
	g.roots = other.roots
	g.frame = other.frame
	g.activeCamera = other.activeCamera
	g.viewports = other.viewports
	g.selection = other.selection
}

// Paths lists every node path in pre-order.
func (g *Graph) Paths() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	var walk func(n *node)
	walk = func(n *node) {
		out = append(out, n.path)
		for _, c := range n.children {
			walk(c)
		}
	}
	for _, r := range g.roots {
		walk(r)
	}
	return out
}

func (g *Graph) IsValid(path string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[path]
	return ok
}

func (g *Graph) HasFn(path string, fn Fn) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[path]
	if !ok {
		return false
	}
	if nodeHasFn(n, fn) {
		return true
	}
	// A transform answers for the shapes directly below it.
	if fn != FnTransform && fn != FnJoint && !n.spec.Type.isShape() {
		for _, c := range n.children {
			if c.spec.Type.isShape() && nodeHasFn(c, fn) {
				return true
			}
		}
	}
	return false
}

func nodeHasFn(n *node, fn Fn) bool {
	switch fn {
	case FnTransform:
		return n.spec.Type == TypeTransform || n.spec.Type == TypeJoint
	case FnJoint:
		return n.spec.Type == TypeJoint
	case FnCamera:
		return n.spec.Type == TypeCamera
	case FnLight:
		return n.spec.Type == TypeLight || n.spec.Type == TypeSpotLight
	case FnSpotLight:
		return n.spec.Type == TypeSpotLight
	}
	return false
}

func (g *Graph) Name(path string) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[path]
	if !ok {
		return "", notFound(path)
	}
	return n.spec.Name, nil
}

func (g *Graph) WalkJoints(root string, visit func(path string, depth int)) error {
	g.mu.RLock()
	n, ok := g.nodes[root]
	if !ok {
		g.mu.RUnlock()
		return notFound(root)
	}
	type entry struct {
		path  string
		depth int
	}
	var found []entry
	var walk func(n *node, depth int)
	walk = func(n *node, depth int) {
		childDepth := depth
		if n.spec.Type == TypeJoint {
			found = append(found, entry{n.path, depth})
			childDepth = depth + 1
		}
		for _, c := range n.children {
			walk(c, childDepth)
		}
	}
	walk(n, 0)
	g.mu.RUnlock()

	// Visit outside the lock so callers may query the graph.
	for _, e := range found {
		visit(e.path, e.depth)
	}
	return nil
}

func (g *Graph) WalkDAG(root string, visit func(path string) bool) error {
	g.mu.RLock()
	n, ok := g.nodes[root]
	if !ok {
		g.mu.RUnlock()
		return notFound(root)
	}
	var order []string
	var walk func(n *node)
	walk = func(n *node) {
		order = append(order, n.path)
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(n)
	g.mu.RUnlock()

	for _, path := range order {
		if !visit(path) {
			break
		}
	}
	return nil
}

func (g *Graph) LocalMatrix(path string) (mgl64.Mat4, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[path]
	if !ok {
		return mgl64.Ident4(), notFound(path)
	}
	if n.locked {
		return mgl64.Ident4(), fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return localMatrix(n), nil
}

func localMatrix(n *node) mgl64.Mat4 {
	if n.spec.Type.isShape() {
		return mgl64.Ident4()
	}
	a := jointAttrs(n)
	return xform.TranslationMatrix(a.Translation).
		Mul4(xform.EulerMatrix(a.Orientation, xform.OrderXYZ)).
		Mul4(xform.EulerMatrix(a.Rotation, a.RotationOrder)).
		Mul4(xform.EulerMatrix(a.RotateAxis, xform.OrderXYZ)).
		Mul4(xform.ScaleMatrix(a.Scale))
}

func worldMatrix(n *node) mgl64.Mat4 {
	m := mgl64.Ident4()
	for cur := n; cur != nil; cur = cur.parent {
		m = localMatrix(cur).Mul4(m)
	}
	return m
}

func jointAttrs(n *node) JointAttrs {
	scale := mgl64.Vec3{1, 1, 1}
	if n.spec.Scale != nil {
		scale = *n.spec.Scale
	}
	return JointAttrs{
		Translation:   n.spec.Translate,
		Rotation:      degVec(n.spec.Rotate),
		Orientation:   degVec(n.spec.JointOrient),
		RotateAxis:    degVec(n.spec.RotateAxis),
		Scale:         scale,
		RotationOrder: n.spec.RotateOrder,
	}
}

func degVec(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{mgl64.DegToRad(v[0]), mgl64.DegToRad(v[1]), mgl64.DegToRad(v[2])}
}

func (g *Graph) Joint(path string) (JointAttrs, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[path]
	if !ok {
		return JointAttrs{}, notFound(path)
	}
	if n.spec.Type != TypeJoint {
		return JointAttrs{}, fmt.Errorf("%w: %s is a %s", ErrWrongType, path, n.spec.Type)
	}
	if n.locked {
		return JointAttrs{}, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return jointAttrs(n), nil
}

// shapeLocked resolves path to a shape of the wanted kind, looking one
// level down from a transform.
func (g *Graph) shapeLocked(path string, fn Fn) (*node, error) {
	n, ok := g.nodes[path]
	if !ok {
		return nil, notFound(path)
	}
	if nodeHasFn(n, fn) {
		return n, nil
	}
	for _, c := range n.children {
		if c.spec.Type.isShape() && nodeHasFn(c, fn) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrWrongType, path)
}

const defaultHorizontalAperture = 1.417

func (g *Graph) Camera(path string) (CameraAttrs, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	shape, err := g.shapeLocked(path, FnCamera)
	if err != nil {
		return CameraAttrs{}, err
	}
	if shape.locked {
		return CameraAttrs{}, fmt.Errorf("%w: %s", ErrLocked, shape.path)
	}

	spec := CameraSpec{}
	if shape.spec.Camera != nil {
		spec = *shape.spec.Camera
	}
	if spec.FocalLength <= 0 {
		spec.FocalLength = 35
	}
	if spec.HorizontalAperture <= 0 {
		spec.HorizontalAperture = defaultHorizontalAperture
	}
	if spec.AspectRatio <= 0 {
		spec.AspectRatio = 1.5
	}

	world := worldMatrix(shape)
	axis := func(v mgl64.Vec4) mgl64.Vec3 {
		out := world.Mul4x1(v).Vec3()
		if out.Len() == 0 {
			return out
		}
		return out.Normalize()
	}

	// Aperture is in inches, focal length in millimetres.
	hfov := 2 * math.Atan(spec.HorizontalAperture*25.4/(2*spec.FocalLength))

	return CameraAttrs{
		Eye:                   world.Col(3).Vec3(),
		Right:                 axis(mgl64.Vec4{1, 0, 0, 0}),
		View:                  axis(mgl64.Vec4{0, 0, -1, 0}),
		Up:                    axis(mgl64.Vec4{0, 1, 0, 0}),
		HorizontalFieldOfView: hfov,
		AspectRatio:           spec.AspectRatio,
		FocalLength:           spec.FocalLength,
		Orthographic:          spec.Orthographic,
	}, nil
}

func (g *Graph) Light(path string) (LightAttrs, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	shape, err := g.shapeLocked(path, FnLight)
	if err != nil {
		return LightAttrs{}, err
	}
	if shape.locked {
		return LightAttrs{}, fmt.Errorf("%w: %s", ErrLocked, shape.path)
	}

	spec := LightSpec{Intensity: 1}
	if shape.spec.Light != nil {
		spec = *shape.spec.Light
	}
	color := mgl64.Vec3{1, 1, 1}
	if spec.Color != nil {
		color = *spec.Color
	}

	out := LightAttrs{
		Intensity: spec.Intensity,
		Color:     color,
		Spot:      shape.spec.Type == TypeSpotLight,
	}
	if out.Spot {
		cone := spec.ConeAngle
		if cone == 0 {
			cone = 40
		}
		out.ConeAngle = mgl64.DegToRad(cone)
		out.PenumbraAngle = mgl64.DegToRad(spec.PenumbraAngle)
	}
	return out, nil
}

func (g *Graph) ActiveViewCamera() (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.activeCamera == "" {
		return "", false
	}
	if _, ok := g.nodes[g.activeCamera]; !ok {
		return "", false
	}
	return g.activeCamera, true
}

func (g *Graph) CurrentFrame() int32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frame
}

func (g *Graph) ViewportPanels() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.viewports)
}

func (g *Graph) Selection() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.selection)
}

var _ Query = (*Graph)(nil)
