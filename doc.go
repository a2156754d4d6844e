// Package lerobotik teleoperates an SO-101 robot arm through inverse
// kinematics.
//
// Streaming pose commands, either incremental gamepad deltas or a leader
// arm's end-effector pose, are converted to joint angles in real time with
// a damped-least-squares solver. A safety governor halts the loop when a
// single control step would move any joint further than a configured
// threshold.
//
// # Installation
//
//	go install github.com/gwillem/lerobot-ik/cmd/lerobot-ik@latest
//
// # Usage
//
// First, run setup to detect and calibrate your robot arms:
//
//	lerobot-ik setup
//
// Then start teleoperation with a gamepad:
//
//	lerobot-ik teleoperate
//
// or drive the follower from the leader arm's pose:
//
//	lerobot-ik teleoperate --leader
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/lerobot-ik: CLI with setup and teleoperate commands
//   - cmd/robot-info: bus scan diagnostics
//   - pkg/kinematics: joint codec, kinematic chain, IK solver
//   - pkg/robot: arm transport, calibration, and configuration
//   - pkg/teleop: pose integrator, safety governor, control loop
package lerobotik
