package teleop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/gwillem/lerobot-ik/pkg/kinematics"
	"github.com/gwillem/lerobot-ik/pkg/robot"
)

// DefaultHz is the control loop cadence. The integrator gains are tuned
// per cycle, so changing this changes the handling feel.
const DefaultHz = 10

// maxConsecutiveFailures is how many cycles in a row may fail on provider
// or device errors before the loop treats the fault as persistent and
// halts.
const maxConsecutiveFailures = 3

// Phase is the control loop state.
type Phase int

const (
	Initializing Phase = iota
	Running
	Halted
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Halted:
		return "halted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Device is the hardware boundary the controller drives. *robot.Arm
// satisfies it.
type Device interface {
	Observation(ctx context.Context) (map[string]float64, error)
	SendAction(ctx context.Context, action map[string]float64) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Close() error
}

// State is one cycle's outcome, published to the UI.
type State struct {
	Phase      Phase
	Positions  map[string]float64 // normalized action sent to the follower
	Joints     kinematics.Vector  // accepted joint vector, radians
	Position   r3.Vector          // target pose translation
	Converged  bool
	Iterations int
	Residual   float64
	Timestamp  time.Time
	Error      error
}

// Config holds configuration for the controller. Exactly one of Gamepad
// and Leader must be set: a gamepad integrates pose deltas, a leader arm
// supplies its own end-effector pose as the target.
type Config struct {
	Follower Device
	Gamepad  Gamepad
	Leader   Device

	Provider kinematics.Provider // nil for the built-in SO-101 chain
	Frame    string              // end-effector frame, default gripper_link

	Hz              int
	SafetyThreshold float64 // radians per step, default 0.5

	Deadzone         float64
	TranslationSpeed float64
	RotationSpeed    float64

	// LED is the optional lamp intensity channel (0-100), -1 to disable.
	LED int

	Clock clock.Clock // nil for the wall clock
}

// Controller runs the solve-and-govern loop. It is the only owner of the
// safety context and the running target pose; one Controller never runs
// two loops at once.
type Controller struct {
	follower Device
	pad      Gamepad
	leader   Device

	provider kinematics.Provider
	solver   *kinematics.Solver
	integ    *PoseIntegrator
	governor *Governor
	frame    string
	hz       int
	led      int
	clk      clock.Clock

	// Loop-owned state, touched only from the loop goroutine.
	phase       Phase
	q           kinematics.Vector // last accepted joint vector, radians
	position    r3.Vector
	orientation quat.Number
	failures    int

	mu      sync.Mutex
	running bool
	stateCh chan State
	logCh   chan string
}

// NewController creates a new teleoperation controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Follower == nil {
		return nil, fmt.Errorf("follower device is required")
	}
	if (cfg.Gamepad == nil) == (cfg.Leader == nil) {
		return nil, fmt.Errorf("exactly one of gamepad and leader must be set")
	}

	if cfg.Provider == nil {
		cfg.Provider = kinematics.DefaultModel()
	}
	if cfg.Frame == "" {
		cfg.Frame = "gripper_link"
	}
	if cfg.Hz <= 0 {
		cfg.Hz = DefaultHz
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	integ := NewPoseIntegrator()
	if cfg.Deadzone > 0 {
		integ.Deadzone = cfg.Deadzone
	}
	if cfg.TranslationSpeed > 0 {
		integ.TranslationSpeed = cfg.TranslationSpeed
	}
	if cfg.RotationSpeed > 0 {
		integ.RotationSpeed = cfg.RotationSpeed
	}

	return &Controller{
		follower: cfg.Follower,
		pad:      cfg.Gamepad,
		leader:   cfg.Leader,
		provider: cfg.Provider,
		solver:   kinematics.NewSolver(cfg.Provider),
		integ:    integ,
		governor: NewGovernor(cfg.SafetyThreshold),
		frame:    cfg.Frame,
		hz:       cfg.Hz,
		led:      cfg.LED,
		clk:      cfg.Clock,
		phase:    Initializing,
		stateCh:  make(chan State, 1),
		logCh:    make(chan string, 10),
	}, nil
}

// Close closes the controller and its devices.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	var errs []error
	if err := c.follower.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.leader != nil {
		if err := c.leader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.pad != nil {
		if err := c.pad.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() int {
	return c.hz
}

// Phase returns the loop phase as of the last completed cycle.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", c.clk.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// period is the cycle duration; cycleTimeout bounds the blocking I/O of a
// single cycle so a wedged serial link cannot stall the loop forever.
func (c *Controller) period() time.Duration {
	return time.Second / time.Duration(c.hz)
}

// Start runs the control loop until cancellation or a halt condition.
// Cancellation is cooperative: it is honored at cycle boundaries, never
// mid-cycle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()

	if err := c.initialize(ctx); err != nil {
		c.setPhase(Halted)
		return fmt.Errorf("initialize: %w", err)
	}
	ticker := c.clk.Ticker(c.period())
	defer ticker.Stop()
	c.setPhase(Running)
	c.log("Control loop started at %d Hz (threshold %.2f rad/step)", c.hz, c.governor.threshold)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.step(ctx)
			if c.Phase() == Halted {
				return nil
			}
		}
	}
}

// initialize obtains the first joint observation, seeds the governor and
// the running pose from forward kinematics, and prepares the devices.
func (c *Controller) initialize(ctx context.Context) error {
	if c.leader != nil {
		if err := c.leader.Disable(ctx); err != nil {
			c.log("Warning: failed to disable leader: %v", err)
		} else {
			c.log("Leader arm: torque disabled (passive mode)")
		}
	}
	if err := c.follower.Enable(ctx); err != nil {
		c.log("Warning: failed to enable follower: %v", err)
	} else {
		c.log("Follower arm: torque enabled")
	}

	obs, err := c.follower.Observation(ctx)
	if err != nil {
		return fmt.Errorf("read initial observation: %w", err)
	}
	q, err := robot.DecodeObservation(obs)
	if err != nil {
		return fmt.Errorf("decode initial observation: %w", err)
	}
	q = q.Clamped()

	pose, err := c.provider.ForwardKinematics(q.Slice(), c.frame)
	if err != nil {
		return fmt.Errorf("initial forward kinematics: %w", err)
	}

	c.q = q
	c.position = pose.Point
	c.orientation = pose.Orientation
	c.governor.Arm(q)
	c.log("Seeded from joint state, end effector at (%.3f, %.3f, %.3f)",
		pose.Point.X, pose.Point.Y, pose.Point.Z)
	return nil
}

// targetPose produces this cycle's target pose and the device-facing
// gripper command without committing any state. The gripper bypasses the
// solver in both modes: its joint sits past the end-effector frame, so the
// pose target cannot drive it.
func (c *Controller) targetPose(ctx context.Context) (kinematics.Pose, float64, error) {
	if c.pad != nil {
		axes, err := c.pad.Poll()
		if err != nil {
			return kinematics.Pose{}, 0, fmt.Errorf("poll gamepad: %w", err)
		}
		pos, orient := c.integ.Advance(c.position, c.orientation, axes)
		// The gripper axis maps [-1,1] -> [0,100].
		return kinematics.NewPose(pos, orient), (axes.Gripper + 1) * 50, nil
	}

	obs, err := c.leader.Observation(ctx)
	if err != nil {
		return kinematics.Pose{}, 0, fmt.Errorf("read leader: %w", err)
	}
	qL, err := robot.DecodeObservation(obs)
	if err != nil {
		return kinematics.Pose{}, 0, fmt.Errorf("decode leader: %w", err)
	}
	qc := qL.Clamped()
	pose, err := c.provider.ForwardKinematics(qc.Slice(), c.frame)
	if err != nil {
		return kinematics.Pose{}, 0, fmt.Errorf("leader forward kinematics: %w", err)
	}
	leaderAction, _ := robot.EncodeAction(qc)
	return pose, leaderAction[kinematics.Gripper.String()+robot.PosSuffix], nil
}

// transient logs a per-cycle failure and decides whether it has become
// persistent. Persistent faults halt the loop: the arm must stop being
// commanded when its kinematics or link cannot be trusted.
func (c *Controller) transient(err error) {
	c.failures++
	c.log("Cycle error (%d/%d): %v", c.failures, maxConsecutiveFailures, err)
	if c.failures >= maxConsecutiveFailures {
		c.log("Persistent failure, halting")
		c.setPhase(Halted)
	}
	c.sendState(State{Phase: c.Phase(), Error: err, Timestamp: c.clk.Now()})
}

func (c *Controller) step(ctx context.Context) {
	tctx, cancel := context.WithTimeout(ctx, 2*c.period())
	defer cancel()

	target, gripper, err := c.targetPose(tctx)
	if err != nil {
		c.transient(err)
		return
	}

	res, err := c.solver.Solve(c.q.Slice(), target, c.frame)
	if err != nil {
		// Uninitialized frames and numerical failures poison only this
		// cycle; no joint values from it may propagate.
		c.transient(err)
		return
	}
	if !res.Converged {
		c.log("IK did not converge: residual %.5f after %d iterations", res.ResidualNorm, res.Iterations)
	}

	proposed := kinematics.FromSlice(res.Joints)
	dec := c.governor.Check(proposed)
	if !dec.Accepted {
		c.log("SAFETY: %s would move %.4f rad in one step (threshold %.4f)",
			dec.Joint, dec.MaxDiff, dec.Threshold)
		for _, j := range kinematics.Joints() {
			if dec.Diffs[j] > 0 {
				c.log("  %-13s delta %.4f rad", j, dec.Diffs[j])
			}
		}
		c.holdAndHalt(tctx, dec)
		return
	}

	action, clamped := robot.EncodeAction(proposed)
	for _, j := range clamped {
		c.log("Warning: %s outside limits, clamped", j)
	}
	action[kinematics.Gripper.String()+robot.PosSuffix] = gripper
	if c.led >= 0 {
		action[robot.LEDKey] = float64(c.led)
	}

	if err := c.follower.SendAction(tctx, action); err != nil {
		c.transient(fmt.Errorf("send action: %w", err))
		return
	}

	// Delivered: only now may the safety context and the running pose
	// advance. Committing earlier would let failed sends widen the gap
	// between the reference state and the arm's true position.
	c.governor.Commit(proposed)
	c.q = proposed
	c.position = target.Point
	c.orientation = target.Orientation
	c.failures = 0

	c.sendState(State{
		Phase:      Running,
		Positions:  action,
		Joints:     c.q,
		Position:   c.position,
		Converged:  res.Converged,
		Iterations: res.Iterations,
		Residual:   res.ResidualNorm,
		Timestamp:  c.clk.Now(),
	})
}

// holdAndHalt re-sends the last delivered command once so the arm holds
// its position, then halts the loop terminally.
func (c *Controller) holdAndHalt(ctx context.Context, dec Decision) {
	action, _ := robot.EncodeAction(c.q)
	if err := c.follower.SendAction(ctx, action); err != nil {
		c.log("Warning: failed to send hold command: %v", err)
	}
	c.setPhase(Halted)
	c.sendState(State{
		Phase:     Halted,
		Joints:    c.q,
		Position:  c.position,
		Timestamp: c.clk.Now(),
		Error:     &SafetyViolation{Decision: dec},
	})
	c.log("Halted. Restart the process to resume.")
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

func (c *Controller) shutdown() {
	c.setPhase(Halted)

	ctx := context.Background()
	if err := c.follower.Disable(ctx); err != nil {
		c.log("Warning: failed to disable follower: %v", err)
	} else {
		c.log("Follower arm: torque disabled")
	}
	c.log("Teleoperation stopped")
}

// IsSafetyViolation reports whether an error is a governor rejection.
func IsSafetyViolation(err error) bool {
	var sv *SafetyViolation
	return errors.As(err, &sv)
}
