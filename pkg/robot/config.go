package robot

import (
	"encoding/json"
	"os"
)

const DefaultConfigFile = "lerobot.json"

// Config holds the robot configuration
type Config struct {
	Leader   ArmConfig     `json:"leader"`
	Follower ArmConfig     `json:"follower"`
	Control  ControlConfig `json:"control,omitempty"`
}

// ArmConfig holds configuration for a single arm
type ArmConfig struct {
	Port        string      `json:"port"`
	Calibration Calibration `json:"calibration,omitempty"`
}

// ControlConfig holds tuning for the IK control loop. Zero values fall back
// to the defaults in pkg/teleop.
type ControlConfig struct {
	Hz int `json:"hz,omitempty"`
	// SafetyThreshold is the maximum allowed per-step joint change in
	// radians before the governor trips.
	SafetyThreshold float64 `json:"safety_threshold,omitempty"`
	// TranslationSpeed is the gamepad translation gain in meters per cycle.
	TranslationSpeed float64 `json:"translation_speed,omitempty"`
	// RotationSpeed is the gamepad rotation gain in degrees per cycle.
	RotationSpeed float64 `json:"rotation_speed,omitempty"`
	// Deadzone is the gamepad axis deadzone threshold.
	Deadzone float64 `json:"deadzone,omitempty"`
	// ModelPath overrides the built-in kinematic chain description.
	ModelPath string `json:"model_path,omitempty"`
	// LED sets the optional lamp intensity channel (0-100); -1 or absent
	// disables it.
	LED int `json:"led,omitempty"`
	// GamepadDevice is the joystick device path, e.g. /dev/input/js0.
	GamepadDevice string `json:"gamepad_device,omitempty"`
}

// IsCalibrated returns true if the arm has calibration data
func (a *ArmConfig) IsCalibrated() bool {
	return len(a.Calibration) > 0
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
