package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform: a translation and a unit-quaternion rotation.
// Poses are immutable value types; operations return new poses.
type Pose struct {
	Point       r3.Vector
	Orientation quat.Number
}

// NewPose creates a pose from a translation and an orientation.
func NewPose(p r3.Vector, o quat.Number) Pose {
	return Pose{Point: p, Orientation: o}
}

// IdentityPose returns the pose with zero translation and no rotation.
func IdentityPose() Pose {
	return Pose{Orientation: quat.Number{Real: 1}}
}

// Translated returns a copy of the pose shifted by d.
func (p Pose) Translated(d r3.Vector) Pose {
	return Pose{Point: p.Point.Add(d), Orientation: p.Orientation}
}

// Mul composes two poses: the result maps a point through o, then p.
func (p Pose) Mul(o Pose) Pose {
	return Pose{
		Point:       p.Point.Add(Rotate(p.Orientation, o.Point)),
		Orientation: quat.Mul(p.Orientation, o.Orientation),
	}
}

// Inverse returns the pose q with p.Mul(q) == identity.
func (p Pose) Inverse() Pose {
	inv := quat.Conj(p.Orientation)
	return Pose{
		Point:       Rotate(inv, p.Point.Mul(-1)),
		Orientation: inv,
	}
}

// Rotate applies a unit quaternion rotation to a vector.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	qv := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, qv), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// AxisAngle returns the unit quaternion for a rotation of theta radians
// about the given axis. The axis need not be normalized.
func AxisAngle(axis r3.Vector, theta float64) quat.Number {
	n := axis.Norm()
	if n == 0 {
		return quat.Number{Real: 1}
	}
	axis = axis.Mul(1 / n)
	s, c := math.Sincos(theta / 2)
	return quat.Number{Real: c, Imag: s * axis.X, Jmag: s * axis.Y, Kmag: s * axis.Z}
}

// Normalize rescales a quaternion to unit length, guarding drift from
// repeated composition.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// RotationLog returns the rotation vector (axis times angle) of a unit
// quaternion, the SO(3) logarithm.
func RotationLog(q quat.Number) r3.Vector {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	im := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	s := im.Norm()
	if s < 1e-12 {
		// Small angle: log(q) ~ 2*im.
		return im.Mul(2)
	}
	theta := 2 * math.Atan2(s, q.Real)
	return im.Mul(theta / s)
}

// Log returns the SE(3) logarithm of a pose as a rotation vector and a
// translation vector, the minimal twist carrying the identity to p.
func Log(p Pose) (w, v r3.Vector) {
	w = RotationLog(p.Orientation)
	theta := w.Norm()

	// v = V(w)^-1 * t with V the left Jacobian of SO(3).
	t := p.Point
	half := w.Cross(t).Mul(0.5)
	var c float64
	if theta < 1e-6 {
		c = 1.0 / 12.0
	} else {
		c = 1/(theta*theta) - (1+math.Cos(theta))/(2*theta*math.Sin(theta))
	}
	wwt := w.Cross(w.Cross(t))
	v = t.Sub(half).Add(wwt.Mul(c))
	return w, v
}

// PoseDelta returns the twist that moves pose a to pose b, expressed in the
// frame of a: log(a^-1 * b).
func PoseDelta(a, b Pose) (w, v r3.Vector) {
	return Log(a.Inverse().Mul(b))
}
