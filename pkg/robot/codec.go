package robot

import (
	"fmt"
	"strings"

	"github.com/gwillem/lerobot-ik/pkg/kinematics"
)

// deviceToLogical applies a joint's device sign convention to a normalized
// value. The transforms are self-inverse, so the same function maps both
// directions.
func deviceToLogical(j kinematics.Joint, v float64) float64 {
	s := kinematics.SpecFor(j)
	if s.Invert {
		v = -v
	}
	if s.Complement {
		v = 100 - v
	}
	return v
}

// DecodeObservation converts an observation map (joint names with the
// ".pos" suffix, normalized values) into a radians-domain joint vector.
// Sign conventions are applied before decoding. Keys without the suffix are
// ignored; a suffixed key naming an unknown joint is an error, because an
// unvalidated value must never reach the solver.
func DecodeObservation(obs map[string]float64) (kinematics.Vector, error) {
	var v kinematics.Vector
	seen := 0
	for key, norm := range obs {
		name, ok := strings.CutSuffix(key, PosSuffix)
		if !ok {
			continue
		}
		j, ok := kinematics.ParseJoint(name)
		if !ok {
			return kinematics.Vector{}, &kinematics.UnknownJointError{Name: name}
		}
		v[j] = kinematics.ToRadians(deviceToLogical(j, norm), j)
		seen++
	}
	if seen < kinematics.NumJoints {
		return kinematics.Vector{}, fmt.Errorf("observation has %d of %d joints", seen, kinematics.NumJoints)
	}
	return v, nil
}

// EncodeAction converts a radians-domain joint vector into an action map
// (joint names with the ".pos" suffix, normalized values) with the sign
// conventions applied. The returned clamped list names joints whose radians
// were outside their limits, a recoverable diagnostic.
func EncodeAction(v kinematics.Vector) (map[string]float64, []kinematics.Joint) {
	action := make(map[string]float64, kinematics.NumJoints)
	var clamped []kinematics.Joint
	for _, j := range kinematics.Joints() {
		norm, c := kinematics.ToNormalized(v[j], j)
		if c {
			clamped = append(clamped, j)
		}
		action[j.String()+PosSuffix] = deviceToLogical(j, norm)
	}
	return action, clamped
}
