// Package teleop provides the IK teleoperation control loop: incremental
// pose integration from gamepad axes, the per-step safety governor, and the
// controller state machine that ties solver, codec and hardware together.
package teleop

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/gwillem/lerobot-ik/pkg/kinematics"
)

// Integrator defaults. The gains are per control cycle, not per second:
// the loop runs at a fixed, known cadence and the handling feel is tuned
// against it.
const (
	DefaultDeadzone         = 0.1
	DefaultTranslationSpeed = 0.01 // meters per cycle
	DefaultRotationSpeed    = 1.0  // degrees per cycle
)

// Axes is one gamepad poll: four continuous pose axes plus the discrete
// gripper axis, all in [-1, 1].
type Axes struct {
	LeftX   float64
	LeftY   float64
	RightX  float64
	RightY  float64
	Gripper float64
}

// PoseIntegrator accumulates gamepad axes into a target pose, ship-style:
// left stick translates in the world x/z plane, right stick pitches and
// yaws the end effector in its body frame.
type PoseIntegrator struct {
	Deadzone         float64
	TranslationSpeed float64
	RotationSpeed    float64
}

// NewPoseIntegrator returns an integrator with default gains.
func NewPoseIntegrator() *PoseIntegrator {
	return &PoseIntegrator{
		Deadzone:         DefaultDeadzone,
		TranslationSpeed: DefaultTranslationSpeed,
		RotationSpeed:    DefaultRotationSpeed,
	}
}

// deadzone zeroes an axis whose magnitude does not exceed the threshold,
// so stick drift cannot produce motion.
func (pi *PoseIntegrator) deadzone(v float64) float64 {
	if math.Abs(v) > pi.Deadzone {
		return v
	}
	return 0
}

// Filter applies the deadzone to the four pose axes. The gripper axis is
// passed through: it maps to an absolute position, not a rate.
func (pi *PoseIntegrator) Filter(a Axes) Axes {
	return Axes{
		LeftX:   pi.deadzone(a.LeftX),
		LeftY:   pi.deadzone(a.LeftY),
		RightX:  pi.deadzone(a.RightX),
		RightY:  pi.deadzone(a.RightY),
		Gripper: a.Gripper,
	}
}

// Advance integrates one cycle of filtered axes into a new target pose.
// With all pose axes inside the deadzone the input pose is returned
// unchanged.
func (pi *PoseIntegrator) Advance(position r3.Vector, orientation quat.Number, a Axes) (r3.Vector, quat.Number) {
	a = pi.Filter(a)

	// Left stick: sideways along x, forward/backward along z (stick up is
	// negative, hence the sign flip).
	newPosition := position.Add(r3.Vector{
		X: a.LeftX * pi.TranslationSpeed,
		Z: -a.LeftY * pi.TranslationSpeed,
	})

	if a.RightX == 0 && a.RightY == 0 {
		return newPosition, orientation
	}

	// Right stick: body-frame incremental pitch then yaw, right-multiplied.
	// The order is part of the handling feel and must not change.
	pitch := kinematics.AxisAngle(r3.Vector{X: 1}, a.RightX*pi.RotationSpeed*math.Pi/180)
	yaw := kinematics.AxisAngle(r3.Vector{Y: 1}, -a.RightY*pi.RotationSpeed*math.Pi/180)
	newOrientation := kinematics.Normalize(quat.Mul(quat.Mul(orientation, pitch), yaw))

	return newPosition, newOrientation
}
