// Package kinematics implements the numerical core of IK teleoperation:
// the joint angle codec, a serial kinematic chain with forward kinematics
// and Jacobians, and a damped-least-squares inverse kinematics solver.
package kinematics

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Joint identifies one of the six SO-101 joints. The integer value is the
// joint's position in a Vector and matches servo IDs 1-6 minus one.
type Joint int

const (
	ShoulderPan Joint = iota
	ShoulderLift
	ElbowFlex
	WristFlex
	WristRoll
	Gripper
)

// NumJoints is the number of joints in the arm.
const NumJoints = 6

var jointNames = [NumJoints]string{
	"shoulder_pan",
	"shoulder_lift",
	"elbow_flex",
	"wrist_flex",
	"wrist_roll",
	"gripper",
}

func (j Joint) String() string {
	if j < 0 || j >= NumJoints {
		return fmt.Sprintf("joint(%d)", int(j))
	}
	return jointNames[j]
}

// Joints returns all joints in vector order.
func Joints() []Joint {
	return []Joint{ShoulderPan, ShoulderLift, ElbowFlex, WristFlex, WristRoll, Gripper}
}

// ParseJoint maps a joint name to its identifier.
func ParseJoint(name string) (Joint, bool) {
	for i, n := range jointNames {
		if n == name {
			return Joint(i), true
		}
	}
	return 0, false
}

// UnknownJointError is returned by the string-keyed codec entry points when
// a joint name is not in the limit table.
type UnknownJointError struct {
	Name string
}

func (e *UnknownJointError) Error() string {
	return fmt.Sprintf("unknown joint %q", e.Name)
}

// Spec holds the static per-joint limit table entry. Lower and Upper are the
// physical bounds in radians. Axis is the joint's rotation axis as published
// to visualization consumers; the solver reads axes from the chain model
// instead. Invert and Complement centralize the device sign conventions so
// they are applied exactly once, symmetrically, in encode and decode.
type Spec struct {
	Lower float64
	Upper float64
	Axis  r3.Vector

	// Invert negates the device-facing normalized value (shoulder_pan).
	Invert bool
	// Complement replaces the device-facing value v with 100-v (gripper,
	// whose device range runs 0-100 with 0 fully open).
	Complement bool
}

// Clamp restricts a radians value to the joint's limits.
func (s Spec) Clamp(rad float64) float64 {
	if rad < s.Lower {
		return s.Lower
	}
	if rad > s.Upper {
		return s.Upper
	}
	return rad
}

// Limit table for the SO-101, radians. Matches the joint bounds declared in
// the model description.
var specs = [NumJoints]Spec{
	ShoulderPan:  {Lower: -1.91986, Upper: 1.91986, Axis: r3.Vector{Z: 1}, Invert: true},
	ShoulderLift: {Lower: -1.74533, Upper: 1.74533, Axis: r3.Vector{Y: 1}},
	ElbowFlex:    {Lower: -1.69, Upper: 1.69, Axis: r3.Vector{Y: 1}},
	WristFlex:    {Lower: -1.65806, Upper: 1.65806, Axis: r3.Vector{Y: 1}},
	WristRoll:    {Lower: -2.74385, Upper: 2.84121, Axis: r3.Vector{X: 1}},
	Gripper:      {Lower: -1.74533, Upper: 0.174533, Axis: r3.Vector{Y: 1}, Complement: true},
}

// SpecFor returns the limit table entry for a joint.
func SpecFor(j Joint) Spec {
	return specs[j]
}

// Vector is a radians-domain joint vector, index-aligned with Joints().
type Vector [NumJoints]float64

// Slice returns the vector as a float64 slice for the solver.
func (v Vector) Slice() []float64 {
	return v[:]
}

// FromSlice builds a Vector from up to NumJoints values.
func FromSlice(q []float64) Vector {
	var v Vector
	copy(v[:], q)
	return v
}

// Clamped returns a copy with every joint restricted to its limits.
func (v Vector) Clamped() Vector {
	var out Vector
	for j := range out {
		out[j] = specs[j].Clamp(v[j])
	}
	return out
}

// MaxAbsDiff returns the largest per-joint absolute difference between two
// vectors and the joint where it occurs.
func (v Vector) MaxAbsDiff(o Vector) (Joint, float64) {
	var worst Joint
	var max float64
	for j := range v {
		d := v[j] - o[j]
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
			worst = Joint(j)
		}
	}
	return worst, max
}

const (
	normMin = -100.0
	normMax = 100.0
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ToRadians converts a normalized value in [-100, 100] to radians within
// the joint's limits. Out-of-range input is clamped first.
func ToRadians(norm float64, j Joint) float64 {
	norm = clamp(norm, normMin, normMax)
	s := specs[j]
	ratio := (norm - normMin) / (normMax - normMin)
	return s.Lower + ratio*(s.Upper-s.Lower)
}

// ToNormalized converts radians to a normalized value in [-100, 100].
// Input outside the joint's limits is clamped; the second return reports
// whether clamping occurred so callers can surface a diagnostic.
func ToNormalized(rad float64, j Joint) (float64, bool) {
	s := specs[j]
	clamped := rad < s.Lower || rad > s.Upper
	rad = s.Clamp(rad)
	ratio := (rad - s.Lower) / (s.Upper - s.Lower)
	return normMin + ratio*(normMax-normMin), clamped
}

// ToRadiansByName is ToRadians keyed by joint name.
func ToRadiansByName(norm float64, name string) (float64, error) {
	j, ok := ParseJoint(name)
	if !ok {
		return 0, &UnknownJointError{Name: name}
	}
	return ToRadians(norm, j), nil
}

// ToNormalizedByName is ToNormalized keyed by joint name.
func ToNormalizedByName(rad float64, name string) (float64, error) {
	j, ok := ParseJoint(name)
	if !ok {
		return 0, &UnknownJointError{Name: name}
	}
	n, _ := ToNormalized(rad, j)
	return n, nil
}

// ValidationReport describes what ValidateRadians changed or dropped.
type ValidationReport struct {
	// Clamped lists joints whose values were outside their limits,
	// with the original out-of-range value.
	Clamped map[Joint]float64
	// Dropped lists keys that did not name a known joint.
	Dropped []string
}

// ValidateRadians clamps every entry of a radians-domain mapping to its
// joint's limits and drops entries with unrecognized keys. Both conditions
// are diagnostic, not fatal; the report says what happened.
func ValidateRadians(angles map[string]float64) (map[string]float64, ValidationReport) {
	out := make(map[string]float64, len(angles))
	report := ValidationReport{Clamped: make(map[Joint]float64)}
	for name, rad := range angles {
		j, ok := ParseJoint(name)
		if !ok {
			report.Dropped = append(report.Dropped, name)
			continue
		}
		s := specs[j]
		if rad < s.Lower || rad > s.Upper {
			report.Clamped[j] = rad
			rad = s.Clamp(rad)
		}
		out[name] = rad
	}
	return out, report
}
