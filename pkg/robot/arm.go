// Package robot provides the hardware boundary for SO-101 arms: the serial
// servo transport, calibration, configuration, and the observation/action
// maps exchanged with the control loop.
package robot

import (
	"context"
	"fmt"
	"strings"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/lerobot-ik/pkg/kinematics"
)

// PosSuffix is appended to joint names in observation and action maps.
const PosSuffix = ".pos"

// LEDKey is the optional lamp intensity channel in action maps, 0-100.
// It is unrelated to kinematics and passes through untouched.
const LEDKey = "led.intensity"

// Arm represents a robot arm with multiple servos.
type Arm struct {
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
}

// NewArm creates and initializes an arm connection.
func NewArm(port string, cal Calibration) (*Arm, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	group := feetech.NewServoGroupByIDs(bus, cal.ServoIDs()...)

	return &Arm{
		bus:         bus,
		group:       group,
		calibration: cal,
	}, nil
}

// Close closes the arm's bus connection.
func (a *Arm) Close() error {
	return a.bus.Close()
}

// Enable enables torque on all servos.
func (a *Arm) Enable(ctx context.Context) error {
	return a.group.EnableAll(ctx)
}

// Disable disables torque on all servos.
func (a *Arm) Disable(ctx context.Context) error {
	return a.group.DisableAll(ctx)
}

// Observation reads current positions from all motors. Keys are joint names
// with the ".pos" suffix, values normalized to [-100, 100].
func (a *Arm) Observation(ctx context.Context) (map[string]float64, error) {
	rawPositions, err := a.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	obs := make(map[string]float64, len(rawPositions))
	for id, raw := range rawPositions {
		joint, cal, ok := a.calibration.ByID(id)
		if !ok {
			continue
		}
		obs[joint.String()+PosSuffix] = cal.Normalize(raw)
	}

	return obs, nil
}

// SendAction writes target positions to the motors. Keys are joint names
// with the ".pos" suffix, values normalized to [-100, 100]. Channels that
// do not address a servo (such as "led.intensity") are ignored here.
func (a *Arm) SendAction(ctx context.Context, action map[string]float64) error {
	rawPositions := make(feetech.PositionMap, len(action))
	for key, norm := range action {
		name, ok := strings.CutSuffix(key, PosSuffix)
		if !ok {
			continue
		}
		joint, ok := kinematics.ParseJoint(name)
		if !ok {
			continue
		}
		cal, ok := a.calibration[joint]
		if !ok {
			continue
		}
		rawPositions[cal.ID] = cal.Denormalize(norm)
	}

	if err := a.group.SetPositions(ctx, rawPositions); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}

	return nil
}
