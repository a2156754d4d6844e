package robot

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gwillem/lerobot-ik/pkg/kinematics"
)

// MotorCalibration holds calibration data for a single motor.
type MotorCalibration struct {
	ID           int `json:"id"`
	DriveMode    int `json:"drive_mode"`
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// Calibration holds calibration data for all motors, keyed by joint.
type Calibration map[kinematics.Joint]MotorCalibration

// MarshalJSON writes calibration keyed by joint name, the on-disk format
// shared with the Python tooling.
func (c Calibration) MarshalJSON() ([]byte, error) {
	raw := make(map[string]MotorCalibration, len(c))
	for j, mc := range c {
		raw[j.String()] = mc
	}
	return json.Marshal(raw)
}

// UnmarshalJSON reads calibration keyed by joint name. Unknown joint names
// are rejected so a typo cannot silently drop a motor.
func (c *Calibration) UnmarshalJSON(data []byte) error {
	var raw map[string]MotorCalibration
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cal := make(Calibration, len(raw))
	for name, mc := range raw {
		j, ok := kinematics.ParseJoint(name)
		if !ok {
			return &kinematics.UnknownJointError{Name: name}
		}
		cal[j] = mc
	}
	*c = cal
	return nil
}

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}
	var cal Calibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("parse calibration JSON: %w", err)
	}
	return cal, nil
}

// Normalize converts a raw servo position to a normalized value in the range [-100, 100].
func (c MotorCalibration) Normalize(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	return (float64(raw-c.RangeMin)/rangeSize)*200 - 100
}

// Denormalize converts a normalized value [-100, 100] to a raw servo position.
func (c MotorCalibration) Denormalize(norm float64) int {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int((norm+100)/200*rangeSize) + c.RangeMin
}

// ServoIDs returns the servo IDs for all motors in the calibration, in
// joint order.
func (c Calibration) ServoIDs() []int {
	ids := make([]int, 0, len(c))
	for _, j := range kinematics.Joints() {
		if mc, ok := c[j]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns the joint and calibration for a given servo ID.
func (c Calibration) ByID(id int) (kinematics.Joint, MotorCalibration, bool) {
	for j, mc := range c {
		if mc.ID == id {
			return j, mc, true
		}
	}
	return 0, MotorCalibration{}, false
}
