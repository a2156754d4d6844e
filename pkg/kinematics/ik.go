package kinematics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Solver defaults, matching the tight cadence of the control loop: a small
// fixed iteration budget, damping heavy enough to survive near-singular
// configurations at the workspace extremes.
const (
	DefaultTolerance = 1e-3
	DefaultMaxIters  = 10
	DefaultDamping   = 1e-4
)

// NumericalSolveError is returned when the damped normal system cannot be
// solved, a numerically pathological input despite the Tikhonov term.
type NumericalSolveError struct {
	Iteration int
	Err       error
}

func (e *NumericalSolveError) Error() string {
	return fmt.Sprintf("ik: damped normal system unsolvable at iteration %d: %v", e.Iteration, e.Err)
}

func (e *NumericalSolveError) Unwrap() error { return e.Err }

// Provider supplies forward kinematics and Jacobians for a kinematic chain.
// Both calls are pure functions of the joint vector. *Model satisfies it.
type Provider interface {
	ForwardKinematics(q []float64, frame string) (Pose, error)
	Jacobian(q []float64, frame string, ref ReferenceFrame) (*mat.Dense, error)
}

// Result reports the outcome of one solve. Convergence is explicit: a
// non-converged result carries the best-effort joint vector and it is the
// caller's job (the safety governor's, in the control loop) to decide
// whether it is safe to execute.
type Result struct {
	Joints       []float64
	Converged    bool
	Iterations   int
	ResidualNorm float64
}

// Solver runs damped Gauss-Newton iterations against a kinematics provider.
// Damping trades convergence speed for stability near singularities, which
// this arm hits routinely at joint limits and wrist alignment.
type Solver struct {
	Provider  Provider
	Tolerance float64
	MaxIters  int
	Damping   float64
}

// NewSolver returns a solver with default tolerance, iteration budget and
// damping.
func NewSolver(p Provider) *Solver {
	return &Solver{
		Provider:  p,
		Tolerance: DefaultTolerance,
		MaxIters:  DefaultMaxIters,
		Damping:   DefaultDamping,
	}
}

// clampToLimits restricts each estimate entry whose joint has a limit table
// entry. Entries beyond the table (none for the SO-101) pass through.
func clampToLimits(q []float64) {
	for i := range q {
		if i < NumJoints {
			q[i] = specs[i].Clamp(q[i])
		}
	}
}

// Solve drives a copy of seed toward the target pose of the named frame.
// The seed may be shorter than the chain's DOF; excluded trailing joints
// are held at zero and never updated. On iteration exhaustion the last
// estimate is returned with Converged false, not an error.
func (s *Solver) Solve(seed []float64, target Pose, frame string) (Result, error) {
	q := make([]float64, len(seed))
	copy(q, seed)
	clampToLimits(q)

	n := len(q)
	res := Result{Joints: q}
	errVec := mat.NewVecDense(6, nil)

	for iter := 0; iter < s.MaxIters; iter++ {
		res.Iterations = iter
		cur, err := s.Provider.ForwardKinematics(q, frame)
		if err != nil {
			return res, err
		}

		// Residual twist: log of the transform from current to target,
		// expressed in the current frame.
		w, v := PoseDelta(cur, target)
		errVec.SetVec(0, w.X)
		errVec.SetVec(1, w.Y)
		errVec.SetVec(2, w.Z)
		errVec.SetVec(3, v.X)
		errVec.SetVec(4, v.Y)
		errVec.SetVec(5, v.Z)
		res.ResidualNorm = mat.Norm(errVec, 2)

		if res.ResidualNorm < s.Tolerance {
			res.Converged = true
			return res, nil
		}

		jac, err := s.Provider.Jacobian(q, frame, Local)
		if err != nil {
			return res, err
		}
		// Only the columns covered by the seed take part in the step. A
		// seed longer than the chain's DOF (e.g. one carrying a virtual
		// end-effector joint) leaves the extra entries untouched.
		_, cols := jac.Dims()
		if cols < n {
			n = cols
		}
		sub := jac.Slice(0, 6, 0, n)

		// H = J^T J + damping*I; solve H dq = J^T err.
		var h mat.Dense
		h.Mul(sub.T(), sub)
		for i := 0; i < n; i++ {
			h.Set(i, i, h.At(i, i)+s.Damping)
		}
		rhs := mat.NewVecDense(n, nil)
		rhs.MulVec(sub.T(), errVec)

		dq := mat.NewVecDense(n, nil)
		if err := dq.SolveVec(&h, rhs); err != nil {
			return res, &NumericalSolveError{Iteration: iter, Err: err}
		}
		for i := 0; i < n; i++ {
			step := dq.AtVec(i)
			if math.IsNaN(step) || math.IsInf(step, 0) {
				return res, &NumericalSolveError{Iteration: iter, Err: fmt.Errorf("non-finite step")}
			}
			q[i] += step
		}
		clampToLimits(q)
	}

	res.Iterations = s.MaxIters
	return res, nil
}
