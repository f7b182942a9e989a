package xform

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// RotationOrder names the axis application order of an Euler rotation.
// XYZ rotates about X first, then Y, then Z.
type RotationOrder int

const (
	OrderXYZ RotationOrder = iota
	OrderYZX
	OrderZXY
	OrderXZY
	OrderYXZ
	OrderZYX
)

var rotationOrderNames = [...]string{"xyz", "yzx", "zxy", "xzy", "yxz", "zyx"}

func (o RotationOrder) String() string {
	if o < 0 || int(o) >= len(rotationOrderNames) {
		return fmt.Sprintf("RotationOrder(%d)", int(o))
	}
	return rotationOrderNames[o]
}

// ParseRotationOrder accepts "xyz", "ZXY", ... An empty string is xyz.
func ParseRotationOrder(s string) (RotationOrder, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return OrderXYZ, nil
	}
	for i, name := range rotationOrderNames {
		if name == s {
			return RotationOrder(i), nil
		}
	}
	return OrderXYZ, fmt.Errorf("unknown rotation order %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (o RotationOrder) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *RotationOrder) UnmarshalText(text []byte) error {
	parsed, err := ParseRotationOrder(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// EulerMatrix builds the rotation matrix for radian angles about X, Y and Z
// applied in the given order.
func EulerMatrix(angles mgl64.Vec3, order RotationOrder) mgl64.Mat4 {
	axes := rotationOrderNames[OrderXYZ]
	if order >= 0 && int(order) < len(rotationOrderNames) {
		axes = rotationOrderNames[order]
	}

	m := mgl64.Ident4()
	for _, axis := range axes {
		var r mgl64.Mat4
		switch axis {
		case 'x':
			r = mgl64.HomogRotate3DX(angles[0])
		case 'y':
			r = mgl64.HomogRotate3DY(angles[1])
		case 'z':
			r = mgl64.HomogRotate3DZ(angles[2])
		}
		m = r.Mul4(m)
	}
	return m
}

// ScaleMatrix returns a scale matrix for s.
func ScaleMatrix(s mgl64.Vec3) mgl64.Mat4 {
	return mgl64.Scale3D(s[0], s[1], s[2])
}

// TranslationMatrix returns a translation matrix for t.
func TranslationMatrix(t mgl64.Vec3) mgl64.Mat4 {
	return mgl64.Translate3D(t[0], t[1], t[2])
}
