// Package xform converts authoring-tool transforms into the streaming
// consumer's coordinate space.
//
// Matrices are mgl64.Mat4 values in column-vector convention. A row-vector
// source matrix R is held as its transpose, so a source product A×B is
// written B.Mul4(A) here.
package xform

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Transform is a decomposed affine transform.
type Transform struct {
	Translation mgl64.Vec3
	Rotation    mgl64.Quat
	Scale       mgl64.Vec3
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		Rotation: mgl64.QuatIdent(),
		Scale:    mgl64.Vec3{1, 1, 1},
	}
}

// Mirrors the source Y axis: D = diag(1, -1, 1, 1).
var handednessFlip = mgl64.Diag4(mgl64.Vec4{1, -1, 1, 1})

// CameraYawCorrection aligns the source camera forward axis with the
// consumer's. Applied as rotation.Mul(CameraYawCorrection).
var CameraYawCorrection = mgl64.QuatRotate(mgl64.DegToRad(-90), mgl64.Vec3{0, 0, 1})

// ConvertMatrix maps a source-space matrix into consumer space.
//
// In source row-major terms the Y row has its X, Z and W components negated
// while every other row has only its Y component negated. The mapping is an
// involution and keeps the determinant sign.
func ConvertMatrix(m mgl64.Mat4) mgl64.Mat4 {
	return handednessFlip.Mul4(m).Mul4(handednessFlip)
}

// ToSourceMatrix maps a consumer-space matrix back into source space.
func ToSourceMatrix(m mgl64.Mat4) mgl64.Mat4 {
	return ConvertMatrix(m)
}

// ConvertTransform converts a source matrix and decomposes it.
func ConvertTransform(m mgl64.Mat4) Transform {
	return DecomposeMatrix(ConvertMatrix(m))
}

// RotateForConsumerUp applies the fixed +90 degree rotation about X that
// reconciles the vertical axis. Only root-level matrices get it.
func RotateForConsumerUp(m mgl64.Mat4) mgl64.Mat4 {
	return mgl64.HomogRotate3DX(math.Pi / 2).Mul4(m)
}

// DecomposeMatrix splits m into translation, unit rotation and scale.
// A negative determinant is carried by the X scale.
func DecomposeMatrix(m mgl64.Mat4) Transform {
	x := m.Col(0).Vec3()
	y := m.Col(1).Vec3()
	z := m.Col(2).Vec3()

	scale := mgl64.Vec3{x.Len(), y.Len(), z.Len()}
	if mgl64.Mat3FromCols(x, y, z).Det() < 0 {
		scale[0] = -scale[0]
	}

	out := Transform{
		Translation: m.Col(3).Vec3(),
		Rotation:    mgl64.QuatIdent(),
		Scale:       scale,
	}
	if scale[0] == 0 || scale[1] == 0 || scale[2] == 0 {
		return out
	}

	basis := mgl64.Mat4FromCols(
		x.Mul(1/scale[0]).Vec4(0),
		y.Mul(1/scale[1]).Vec4(0),
		z.Mul(1/scale[2]).Vec4(0),
		mgl64.Vec4{0, 0, 0, 1},
	)
	out.Rotation = mgl64.Mat4ToQuat(basis).Normalize()
	return out
}

// Matrix recomposes t as T * R * S.
func (t Transform) Matrix() mgl64.Mat4 {
	return mgl64.Translate3D(t.Translation[0], t.Translation[1], t.Translation[2]).
		Mul4(t.Rotation.Normalize().Mat4()).
		Mul4(mgl64.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2]))
}

// ApproxEqual compares two transforms, treating q and -q as the same rotation.
func (t Transform) ApproxEqual(other Transform, eps float64) bool {
	return t.Translation.ApproxEqualThreshold(other.Translation, eps) &&
		t.Scale.ApproxEqualThreshold(other.Scale, eps) &&
		t.Rotation.OrientationEqualThreshold(other.Rotation, eps)
}

// BasisMatrix builds a source matrix whose rows are the given axes and origin.
func BasisMatrix(right, view, up, origin mgl64.Vec3) mgl64.Mat4 {
	return mgl64.Mat4FromCols(right.Vec4(0), view.Vec4(0), up.Vec4(0), origin.Vec4(1))
}
