package kinematics

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

//go:embed so101.json
var so101Model []byte

// ErrUnknownFrame is returned when a frame name is not in the chain model.
var ErrUnknownFrame = errors.New("unknown frame")

// UninitializedFrameError is returned when a frame placement cannot be
// computed, e.g. from an empty model or a joint vector containing NaNs.
type UninitializedFrameError struct {
	Frame  string
	Reason string
}

func (e *UninitializedFrameError) Error() string {
	return fmt.Sprintf("frame %q placement not initialized: %s", e.Frame, e.Reason)
}

// ReferenceFrame selects the coordinate frame a Jacobian is expressed in.
type ReferenceFrame int

const (
	// Local expresses the Jacobian in the target frame itself. The IK
	// solver requires this for its Newton step.
	Local ReferenceFrame = iota
	// WorldAligned expresses the Jacobian in world axes.
	WorldAligned
)

// Link is one element of the serial chain description. Origin is the fixed
// translation from the parent link's frame. Links with a joint name rotate
// about Axis by that joint's angle; links without one are fixed frames.
type Link struct {
	Name   string     `json:"name"`
	Joint  string     `json:"joint,omitempty"`
	Origin [3]float64 `json:"origin"`
	Axis   [3]float64 `json:"axis,omitempty"`
}

type modelFile struct {
	Name  string `json:"name"`
	Links []Link `json:"links"`
}

// Model is a serial kinematic chain providing forward kinematics and
// Jacobians for named frames. It is a pure function of the joint vector;
// no state persists across calls.
type Model struct {
	name   string
	links  []Link
	frames map[string]int // frame name -> index of last link included
	dof    int            // number of jointed links
}

// LoadModel parses a chain description from JSON.
func LoadModel(data []byte) (*Model, error) {
	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	if len(mf.Links) == 0 {
		return nil, fmt.Errorf("parse model: no links")
	}
	m := &Model{
		name:   mf.Name,
		links:  mf.Links,
		frames: make(map[string]int, len(mf.Links)),
	}
	for i, l := range mf.Links {
		if l.Name == "" {
			return nil, fmt.Errorf("parse model: link %d has no name", i)
		}
		if _, dup := m.frames[l.Name]; dup {
			return nil, fmt.Errorf("parse model: duplicate frame %q", l.Name)
		}
		m.frames[l.Name] = i
		if l.Joint != "" {
			m.dof++
		}
	}
	return m, nil
}

// LoadModelFile loads a chain description from a file on disk.
func LoadModelFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	return LoadModel(data)
}

// DefaultModel returns the built-in SO-101 chain.
func DefaultModel() *Model {
	m, err := LoadModel(so101Model)
	if err != nil {
		// The embedded model is validated by tests; failure here is a
		// build defect.
		panic(err)
	}
	return m
}

// Name returns the model name from the chain description.
func (m *Model) Name() string { return m.name }

// DOF returns the number of jointed links in the chain.
func (m *Model) DOF() int { return m.dof }

// Frames returns all frame names in chain order.
func (m *Model) Frames() []string {
	out := make([]string, len(m.links))
	for i, l := range m.links {
		out[i] = l.Name
	}
	return out
}

// HasFrame reports whether the model contains the named frame.
func (m *Model) HasFrame(frame string) bool {
	_, ok := m.frames[frame]
	return ok
}

// jointState is the accumulated world placement of one joint axis, used to
// build Jacobian columns.
type jointState struct {
	axis   r3.Vector // rotation axis in world coordinates
	origin r3.Vector // joint origin in world coordinates
}

// placements walks the chain up to the named frame. Joint angles are taken
// from q in joint order; joints beyond len(q) are held at zero.
func (m *Model) placements(q []float64, frame string) (Pose, []jointState, error) {
	idx, ok := m.frames[frame]
	if !ok {
		return Pose{}, nil, fmt.Errorf("%w: %q", ErrUnknownFrame, frame)
	}
	if len(m.links) == 0 {
		return Pose{}, nil, &UninitializedFrameError{Frame: frame, Reason: "empty chain"}
	}
	for _, v := range q {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Pose{}, nil, &UninitializedFrameError{Frame: frame, Reason: "joint vector is not finite"}
		}
	}

	cur := IdentityPose()
	var joints []jointState
	nj := 0
	for i := 0; i <= idx; i++ {
		l := m.links[i]
		cur = cur.Translated(Rotate(cur.Orientation, r3.Vector{X: l.Origin[0], Y: l.Origin[1], Z: l.Origin[2]}))
		if l.Joint == "" {
			continue
		}
		axis := Rotate(cur.Orientation, r3.Vector{X: l.Axis[0], Y: l.Axis[1], Z: l.Axis[2]})
		joints = append(joints, jointState{axis: axis, origin: cur.Point})
		angle := 0.0
		if nj < len(q) {
			angle = q[nj]
		}
		nj++
		cur.Orientation = Normalize(quat.Mul(cur.Orientation, AxisAngle(r3.Vector{X: l.Axis[0], Y: l.Axis[1], Z: l.Axis[2]}, angle)))
	}
	return cur, joints, nil
}

// ForwardKinematics returns the world pose of the named frame for the given
// joint vector. Joints beyond len(q) are held at zero.
func (m *Model) ForwardKinematics(q []float64, frame string) (Pose, error) {
	pose, _, err := m.placements(q, frame)
	return pose, err
}

// Jacobian returns the 6xDOF spatial Jacobian of the named frame: rows 0-2
// are angular velocity, rows 3-5 linear, expressed in the requested
// reference frame. Columns for joints that do not precede the frame are
// zero.
func (m *Model) Jacobian(q []float64, frame string, ref ReferenceFrame) (*mat.Dense, error) {
	pose, joints, err := m.placements(q, frame)
	if err != nil {
		return nil, err
	}
	invOrient := quat.Conj(pose.Orientation)

	jac := mat.NewDense(6, m.dof, nil)
	for col, js := range joints {
		w := js.axis
		v := js.axis.Cross(pose.Point.Sub(js.origin))
		if ref == Local {
			w = Rotate(invOrient, w)
			v = Rotate(invOrient, v)
		}
		jac.Set(0, col, w.X)
		jac.Set(1, col, w.Y)
		jac.Set(2, col, w.Z)
		jac.Set(3, col, v.X)
		jac.Set(4, col, v.Y)
		jac.Set(5, col, v.Z)
	}
	return jac, nil
}
