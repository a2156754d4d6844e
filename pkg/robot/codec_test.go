package robot

import (
	"errors"
	"math"
	"testing"

	"github.com/gwillem/lerobot-ik/pkg/kinematics"
)

func fullObservation(v float64) map[string]float64 {
	obs := make(map[string]float64)
	for _, j := range kinematics.Joints() {
		obs[j.String()+PosSuffix] = v
	}
	return obs
}

func TestDecodeObservation_SignConventions(t *testing.T) {
	obs := fullObservation(0)
	obs["shoulder_pan.pos"] = 40
	obs["gripper.pos"] = 30

	v, err := DecodeObservation(obs)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	// shoulder_pan is negated before decoding.
	want := kinematics.ToRadians(-40, kinematics.ShoulderPan)
	if math.Abs(v[kinematics.ShoulderPan]-want) > 1e-9 {
		t.Errorf("shoulder_pan = %f, want %f", v[kinematics.ShoulderPan], want)
	}

	// gripper is complemented: 100 - 30 = 70.
	want = kinematics.ToRadians(70, kinematics.Gripper)
	if math.Abs(v[kinematics.Gripper]-want) > 1e-9 {
		t.Errorf("gripper = %f, want %f", v[kinematics.Gripper], want)
	}
}

func TestDecodeObservation_IgnoresOtherChannels(t *testing.T) {
	obs := fullObservation(10)
	obs[LEDKey] = 55

	if _, err := DecodeObservation(obs); err != nil {
		t.Errorf("decode with led channel: %v", err)
	}
}

func TestDecodeObservation_UnknownJoint(t *testing.T) {
	obs := fullObservation(0)
	obs["shoulder_yaw.pos"] = 5

	_, err := DecodeObservation(obs)
	var uje *kinematics.UnknownJointError
	if !errors.As(err, &uje) {
		t.Fatalf("decode = %v, want UnknownJointError", err)
	}
}

func TestDecodeObservation_MissingJoints(t *testing.T) {
	obs := map[string]float64{"elbow_flex.pos": 10}
	if _, err := DecodeObservation(obs); err == nil {
		t.Error("decode of partial observation should fail")
	}
}

func TestCodec_EncodeDecodeSymmetry(t *testing.T) {
	obs := fullObservation(0)
	obs["shoulder_pan.pos"] = -25
	obs["shoulder_lift.pos"] = 60
	obs["gripper.pos"] = 80

	v, err := DecodeObservation(obs)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	action, clamped := EncodeAction(v)
	if len(clamped) != 0 {
		t.Errorf("unexpected clamping: %v", clamped)
	}
	for key, want := range obs {
		if got := action[key]; math.Abs(got-want) > 1e-6 {
			t.Errorf("%s: decode/encode round-trip %f -> %f", key, want, got)
		}
	}
}

func TestEncodeAction_ReportsClamping(t *testing.T) {
	var v kinematics.Vector
	v[kinematics.ElbowFlex] = 10 // far outside limits

	action, clamped := EncodeAction(v)
	if len(clamped) != 1 || clamped[0] != kinematics.ElbowFlex {
		t.Errorf("clamped = %v, want [elbow_flex]", clamped)
	}
	if got := action["elbow_flex.pos"]; math.Abs(got-100) > 1e-9 {
		t.Errorf("elbow_flex.pos = %f, want 100", got)
	}
}
