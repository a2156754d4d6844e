package teleop

import (
	"fmt"

	"github.com/gwillem/lerobot-ik/pkg/kinematics"
)

// DefaultSafetyThreshold is the maximum allowed per-step joint change in
// radians. Deployments tune this to the arm's actual safe per-step
// excursion; observed working values range from 0.5 to 5 depending on
// control mode.
const DefaultSafetyThreshold = 0.5

// Decision is the outcome of one governor check. On rejection it carries
// full diagnostics: an operator must be able to tell an unsafe jump apart
// from a solver or hardware fault.
type Decision struct {
	Accepted  bool
	Joint     kinematics.Joint
	MaxDiff   float64
	Threshold float64
	Diffs     kinematics.Vector
}

// SafetyViolation is the error form of a rejecting decision. It is terminal
// for the control loop: a jump past the threshold may indicate solver
// divergence or a sensor fault whose root cause is unknown, so the process
// stops commanding the arm instead of attempting recovery.
type SafetyViolation struct {
	Decision Decision
}

func (e *SafetyViolation) Error() string {
	d := e.Decision
	return fmt.Sprintf("unsafe joint step: %s moved %.4f rad in one cycle (threshold %.4f)",
		d.Joint, d.MaxDiff, d.Threshold)
}

// Check compares a proposed joint vector against the previous accepted one.
// It is pure; Governor adds the Armed/Tripped state machine on top.
func Check(proposed, previous kinematics.Vector, threshold float64) Decision {
	var diffs kinematics.Vector
	for j := range proposed {
		d := proposed[j] - previous[j]
		if d < 0 {
			d = -d
		}
		diffs[j] = d
	}
	joint, max := proposed.MaxAbsDiff(previous)
	return Decision{
		Accepted:  max <= threshold,
		Joint:     joint,
		MaxDiff:   max,
		Threshold: threshold,
		Diffs:     diffs,
	}
}

// Governor vetoes proposed joint vectors that move too far from the last
// accepted one in a single control step. Once tripped it stays tripped for
// the rest of the process; recovery requires a fresh start.
type Governor struct {
	threshold float64
	previous  kinematics.Vector
	armed     bool
	tripped   bool
}

// NewGovernor creates a governor with the given per-step threshold. It must
// be armed with the first observed joint state before use.
func NewGovernor(threshold float64) *Governor {
	if threshold <= 0 {
		threshold = DefaultSafetyThreshold
	}
	return &Governor{threshold: threshold}
}

// Arm seeds the governor with the first observed joint state.
func (g *Governor) Arm(initial kinematics.Vector) {
	g.previous = initial
	g.armed = true
}

// Tripped reports whether the governor has rejected a step.
func (g *Governor) Tripped() bool {
	return g.tripped
}

// Previous returns the last accepted joint vector.
func (g *Governor) Previous() kinematics.Vector {
	return g.previous
}

// Check evaluates a proposed joint vector. Acceptance does not advance the
// reference state: the caller commits the vector once it has actually been
// delivered to the arm, so an undelivered command can never widen the
// window for the next step. On rejection the governor trips, terminally.
func (g *Governor) Check(proposed kinematics.Vector) Decision {
	if g.tripped {
		return Decision{Accepted: false, Threshold: g.threshold}
	}
	if !g.armed {
		// First state is the seed, never a step to judge.
		g.Arm(proposed)
		return Decision{Accepted: true, Threshold: g.threshold}
	}
	dec := Check(proposed, g.previous, g.threshold)
	if !dec.Accepted {
		g.tripped = true
	}
	return dec
}

// Commit records a delivered joint vector as the new reference state.
func (g *Governor) Commit(delivered kinematics.Vector) {
	if g.tripped {
		return
	}
	g.previous = delivered
}
