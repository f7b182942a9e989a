package subject

import (
	"fmt"
	"strings"

	"github.com/slighter12/maya-livelink-go/livelink"
)

// StreamMode selects what a subject streams.
type StreamMode int

const (
	ModeRootOnly StreamMode = iota
	ModeFullHierarchy
	ModeCamera
	ModeLight
)

var (
	modeNames  = [...]string{"RootOnly", "FullHierarchy", "Camera", "Light"}
	modeLabels = [...]string{"Root Only", "Full Hierarchy", "Camera", "Light"}
	modeRoles  = [...]livelink.Role{livelink.RoleTransform, livelink.RoleAnimation, livelink.RoleCamera, livelink.RoleLight}
)

func (m StreamMode) valid() bool {
	return m >= 0 && int(m) < len(modeNames)
}

func (m StreamMode) String() string {
	if !m.valid() {
		return fmt.Sprintf("StreamMode(%d)", int(m))
	}
	return modeNames[m]
}

// Label is the mode name shown in the UI.
func (m StreamMode) Label() string {
	if !m.valid() {
		return m.String()
	}
	return modeLabels[m]
}

// Role is the consumer role the mode publishes under.
func (m StreamMode) Role() livelink.Role {
	if !m.valid() {
		return livelink.RoleTransform
	}
	return modeRoles[m]
}

var (
	jointModes       = []StreamMode{ModeRootOnly, ModeFullHierarchy}
	cameraModes      = []StreamMode{ModeRootOnly, ModeFullHierarchy, ModeCamera}
	lightModes       = []StreamMode{ModeRootOnly, ModeFullHierarchy, ModeLight}
	propModes        = []StreamMode{ModeRootOnly, ModeFullHierarchy}
	activeCameraMode = []StreamMode{ModeCamera}
)

// ModesFor lists the modes a kind offers, in UI order.
func ModesFor(kind Kind) []StreamMode {
	switch kind {
	case KindJointHierarchy:
		return jointModes
	case KindCamera:
		return cameraModes
	case KindLight:
		return lightModes
	case KindProp:
		return propModes
	case KindActiveCamera:
		return activeCameraMode
	}
	return nil
}

// DefaultMode is the mode a new subject of kind starts in.
func DefaultMode(kind Kind) StreamMode {
	switch kind {
	case KindJointHierarchy:
		return ModeFullHierarchy
	case KindCamera, KindActiveCamera:
		return ModeCamera
	case KindLight:
		return ModeLight
	}
	return ModeRootOnly
}

// lookupMode finds name among options by label ("Root Only") or
// identifier ("RootOnly").
func lookupMode(options []StreamMode, name string) (StreamMode, bool) {
	name = strings.TrimSpace(name)
	for _, m := range options {
		if name == m.Label() || name == m.String() {
			return m, true
		}
	}
	return 0, false
}
