package bead

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Transform4 is a 4x4 homogeneous transform in row-major order:
// [m00,m01,m02,m03, m10,m11,m12,m13, m20,m21,m22,m23, m30,m31,m32,m33].
type Transform4 [16]float64

// IdentityTransform returns the identity transform.
func IdentityTransform() Transform4 {
	return Transform4{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

// Translation returns the transform moving every point by v.
func Translation(v r3.Vec) Transform4 {
	t := IdentityTransform()
	t[3] = v.X
	t[7] = v.Y
	t[11] = v.Z
	return t
}

// AxisFlips returns the transform negating the axes with a negative sign,
// e.g. AxisFlips(1, -1, -1) flips the Y and Z axes. Used to enumerate the
// principal-axis sign ambiguity and enantiomorph candidates.
func AxisFlips(sx, sy, sz float64) Transform4 {
	t := IdentityTransform()
	t[0] = sx
	t[5] = sy
	t[10] = sz
	return t
}

// EulerTransform builds the rotation for static-axis XYZ Euler angles:
// a rotation by ax about X, then ay about Y, then az about Z, all about the
// fixed frame. The resulting matrix is Rz(az)*Ry(ay)*Rx(ax).
func EulerTransform(ax, ay, az float64) Transform4 {
	ca, sa := math.Cos(ax), math.Sin(ax)
	cb, sb := math.Cos(ay), math.Sin(ay)
	cc, sc := math.Cos(az), math.Sin(az)

	return Transform4{
		cb * cc, cc*sa*sb - ca*sc, sa*sc + ca*cc*sb, 0,
		cb * sc, ca*cc + sa*sb*sc, ca*sb*sc - cc*sa, 0,
		-sb, cb * sa, ca * cb, 0,
		0, 0, 0, 1,
	}
}

// PoseTransform builds the rigid transform for a 6-parameter pose: first a
// translation by p[0:3], then a static-XYZ Euler rotation by p[3:6]. This
// is the composition order of the canonical pose (centroid to origin, then
// principal-axis rotation).
func PoseTransform(p [6]float64) Transform4 {
	return EulerTransform(p[3], p[4], p[5]).Mul(Translation(r3.Vec{X: p[0], Y: p[1], Z: p[2]}))
}

// Mul composes two transforms; t.Mul(o) applies o first, then t.
func (t Transform4) Mul(o Transform4) Transform4 {
	var out Transform4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				sum += t[i*4+k] * o[k*4+j]
			}
			out[i*4+j] = sum
		}
	}
	return out
}

// Apply maps a single point through the transform.
func (t Transform4) Apply(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: t[0]*p.X + t[1]*p.Y + t[2]*p.Z + t[3],
		Y: t[4]*p.X + t[5]*p.Y + t[6]*p.Z + t[7],
		Z: t[8]*p.X + t[9]*p.Y + t[10]*p.Z + t[11],
	}
}

// ApplyAll maps a cloud through the transform into a fresh slice.
func (t Transform4) ApplyAll(pts []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(pts))
	for i, p := range pts {
		out[i] = t.Apply(p)
	}
	return out
}

// TranslationPart returns the translation column of the transform.
func (t Transform4) TranslationPart() r3.Vec {
	return r3.Vec{X: t[3], Y: t[7], Z: t[11]}
}

// Det3 returns the determinant of the upper-left 3x3 block. Proper
// rotations have determinant +1, reflections -1.
func (t Transform4) Det3() float64 {
	return t[0]*(t[5]*t[10]-t[6]*t[9]) -
		t[1]*(t[4]*t[10]-t[6]*t[8]) +
		t[2]*(t[4]*t[9]-t[5]*t[8])
}

// Negate3 returns the transform with the affine 3x4 block negated. For an
// improper transform M this recovers the proper factor of M = -1 * P.
func (t Transform4) Negate3() Transform4 {
	out := t
	for i := 0; i < 12; i++ {
		out[i] = -t[i]
	}
	return out
}

// EulerAngles extracts static-XYZ Euler angles from the rotation block,
// inverting EulerTransform. Near the gimbal-lock singularity (|cos ay|
// close to zero) the Z angle is fixed at zero.
func (t Transform4) EulerAngles() (ax, ay, az float64) {
	cy := math.Hypot(t[0], t[4]) // cos(ay)
	if cy > 1e-8 {
		ax = math.Atan2(t[9], t[10])
		ay = math.Atan2(-t[8], cy)
		az = math.Atan2(t[4], t[0])
		return ax, ay, az
	}
	ax = math.Atan2(-t[6], t[5])
	ay = math.Atan2(-t[8], cy)
	return ax, ay, 0
}

// PoseParams decomposes a rigid transform into the 6-parameter form
// accepted by PoseTransform: translation first, rotation second. Given
// M = R*T, the translation is R^-1 applied to M's translation column.
func (t Transform4) PoseParams() [6]float64 {
	ax, ay, az := t.EulerAngles()
	// Rotation block is orthonormal, so the inverse is the transpose.
	tr := t.TranslationPart()
	inv := r3.Vec{
		X: t[0]*tr.X + t[4]*tr.Y + t[8]*tr.Z,
		Y: t[1]*tr.X + t[5]*tr.Y + t[9]*tr.Z,
		Z: t[2]*tr.X + t[6]*tr.Y + t[10]*tr.Z,
	}
	return [6]float64{inv.X, inv.Y, inv.Z, ax, ay, az}
}
