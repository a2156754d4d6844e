package kinematics

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

func TestSolve_AlreadyAtTarget(t *testing.T) {
	m := DefaultModel()
	s := NewSolver(m)

	q := []float64{0.1, -0.3, 0.5, 0.2, -0.1, 0}
	target, err := m.ForwardKinematics(q, "gripper_link")
	if err != nil {
		t.Fatalf("fk: %v", err)
	}

	res, err := s.Solve(q, target, "gripper_link")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !res.Converged {
		t.Fatal("solver did not report convergence at minimum residual")
	}
	if res.Iterations != 0 {
		t.Errorf("iterations = %d, want 0", res.Iterations)
	}
	for i := range q {
		if res.Joints[i] != q[i] {
			t.Errorf("joint %d changed: %f -> %f", i, q[i], res.Joints[i])
		}
	}
}

func TestSolve_SmallTranslation(t *testing.T) {
	m := DefaultModel()
	s := NewSolver(m)

	seed := make([]float64, 6)
	cur, err := m.ForwardKinematics(seed, "gripper_link")
	if err != nil {
		t.Fatalf("fk: %v", err)
	}
	target := cur.Translated(r3.Vector{Z: 0.001})

	res, err := s.Solve(seed, target, "gripper_link")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !res.Converged {
		t.Fatalf("no convergence: residual %f after %d iterations", res.ResidualNorm, res.Iterations)
	}
	if res.Iterations > 3 {
		t.Errorf("iterations = %d, want <= 3 for a 1mm step", res.Iterations)
	}

	got, err := m.ForwardKinematics(res.Joints, "gripper_link")
	if err != nil {
		t.Fatalf("fk: %v", err)
	}
	if posErr := got.Point.Sub(target.Point).Norm(); posErr >= 1e-3 {
		t.Errorf("position error = %f, want < 1e-3", posErr)
	}
}

func TestSolve_ReachableTarget(t *testing.T) {
	m := DefaultModel()
	s := NewSolver(m)

	seed := []float64{0.1, -0.2, 0.4, 0.1, 0.2, 0}
	goal := []float64{0.15, -0.25, 0.45, 0.05, 0.25, 0}
	target, err := m.ForwardKinematics(goal, "gripper_link")
	if err != nil {
		t.Fatalf("fk: %v", err)
	}

	res, err := s.Solve(seed, target, "gripper_link")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !res.Converged {
		t.Fatalf("no convergence: residual %f", res.ResidualNorm)
	}
	if res.Iterations >= s.MaxIters {
		t.Errorf("iterations = %d, want < %d", res.Iterations, s.MaxIters)
	}
	if res.ResidualNorm >= s.Tolerance {
		t.Errorf("residual = %f, want < %f", res.ResidualNorm, s.Tolerance)
	}
}

func TestSolve_ShortSeed(t *testing.T) {
	m := DefaultModel()
	s := NewSolver(m)

	// Five joints: the virtual gripper jaw is excluded from the solve.
	seed := []float64{0, -0.1, 0.2, 0, 0.1}
	cur, err := m.ForwardKinematics(seed, "gripper_link")
	if err != nil {
		t.Fatalf("fk: %v", err)
	}
	target := cur.Translated(r3.Vector{Z: 0.001})

	res, err := s.Solve(seed, target, "gripper_link")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if len(res.Joints) != 5 {
		t.Fatalf("result length = %d, want 5", len(res.Joints))
	}
	if !res.Converged {
		t.Errorf("no convergence with short seed: residual %f", res.ResidualNorm)
	}
}

func TestSolve_ExhaustionIsBestEffort(t *testing.T) {
	m := DefaultModel()
	s := NewSolver(m)
	s.MaxIters = 1

	seed := make([]float64, 6)
	cur, err := m.ForwardKinematics(seed, "gripper_link")
	if err != nil {
		t.Fatalf("fk: %v", err)
	}
	// Far enough that one damped step cannot close the residual.
	target := cur.Translated(r3.Vector{Z: 0.05})

	res, err := s.Solve(seed, target, "gripper_link")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Converged {
		t.Fatal("one iteration should not converge on a 5cm step")
	}
	if res.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", res.Iterations)
	}
	if res.ResidualNorm <= 0 {
		t.Error("residual norm not populated")
	}
	for _, v := range res.Joints {
		if math.IsNaN(v) {
			t.Fatal("best-effort result contains NaN")
		}
	}
}

func TestSolve_ResultStaysWithinLimits(t *testing.T) {
	m := DefaultModel()
	s := NewSolver(m)

	seed := make([]float64, 6)
	cur, err := m.ForwardKinematics(seed, "gripper_link")
	if err != nil {
		t.Fatalf("fk: %v", err)
	}
	// Unreachable target far outside the workspace.
	target := cur.Translated(r3.Vector{X: 2})

	res, err := s.Solve(seed, target, "gripper_link")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	for i, j := range Joints() {
		sp := SpecFor(j)
		if res.Joints[i] < sp.Lower-1e-12 || res.Joints[i] > sp.Upper+1e-12 {
			t.Errorf("%s = %f outside [%f, %f]", j, res.Joints[i], sp.Lower, sp.Upper)
		}
	}
}

func TestSolve_PropagatesProviderErrors(t *testing.T) {
	m := DefaultModel()
	s := NewSolver(m)

	_, err := s.Solve(make([]float64, 6), IdentityPose(), "tool_tip")
	if !errors.Is(err, ErrUnknownFrame) {
		t.Errorf("solve(unknown frame) = %v, want ErrUnknownFrame", err)
	}
}

// brokenProvider returns a Jacobian full of NaNs to force the numerical
// failure path.
type brokenProvider struct {
	*Model
}

func (b brokenProvider) Jacobian(q []float64, frame string, ref ReferenceFrame) (*mat.Dense, error) {
	jac := mat.NewDense(6, b.DOF(), nil)
	for r := 0; r < 6; r++ {
		for c := 0; c < b.DOF(); c++ {
			jac.Set(r, c, math.NaN())
		}
	}
	return jac, nil
}

func TestSolve_NumericalFailure(t *testing.T) {
	m := DefaultModel()
	s := NewSolver(brokenProvider{m})

	seed := make([]float64, 6)
	cur, err := m.ForwardKinematics(seed, "gripper_link")
	if err != nil {
		t.Fatalf("fk: %v", err)
	}
	target := cur.Translated(r3.Vector{Z: 0.01})

	_, err = s.Solve(seed, target, "gripper_link")
	var nse *NumericalSolveError
	if !errors.As(err, &nse) {
		t.Fatalf("solve = %v, want NumericalSolveError", err)
	}
}
