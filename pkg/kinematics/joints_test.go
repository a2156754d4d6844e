package kinematics

import (
	"errors"
	"math"
	"testing"
)

func TestToRadians_Bounds(t *testing.T) {
	for _, j := range Joints() {
		s := SpecFor(j)

		if got := ToRadians(-100, j); math.Abs(got-s.Lower) > 1e-9 {
			t.Errorf("%s: ToRadians(-100) = %f, want lower bound %f", j, got, s.Lower)
		}
		if got := ToRadians(100, j); math.Abs(got-s.Upper) > 1e-9 {
			t.Errorf("%s: ToRadians(100) = %f, want upper bound %f", j, got, s.Upper)
		}
		mid := (s.Lower + s.Upper) / 2
		if got := ToRadians(0, j); math.Abs(got-mid) > 1e-9 {
			t.Errorf("%s: ToRadians(0) = %f, want midpoint %f", j, got, mid)
		}
	}
}

func TestToRadians_ClampsInput(t *testing.T) {
	for _, j := range Joints() {
		if got, want := ToRadians(150, j), ToRadians(100, j); got != want {
			t.Errorf("%s: ToRadians(150) = %f, want %f", j, got, want)
		}
		if got, want := ToRadians(-150, j), ToRadians(-100, j); got != want {
			t.Errorf("%s: ToRadians(-150) = %f, want %f", j, got, want)
		}
	}
}

func TestToNormalized_ClampsAndReports(t *testing.T) {
	s := SpecFor(ElbowFlex)

	got, clamped := ToNormalized(s.Upper+1, ElbowFlex)
	if !clamped {
		t.Error("expected clamp diagnostic for out-of-range radians")
	}
	if math.Abs(got-100) > 1e-9 {
		t.Errorf("ToNormalized(upper+1) = %f, want 100", got)
	}

	_, clamped = ToNormalized((s.Lower+s.Upper)/2, ElbowFlex)
	if clamped {
		t.Error("unexpected clamp diagnostic for interior value")
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	for _, j := range Joints() {
		for v := -100.0; v <= 100.0; v += 0.5 {
			back, clamped := ToNormalized(ToRadians(v, j), j)
			if clamped {
				t.Fatalf("%s: round-trip of %f reported clamping", j, v)
			}
			if math.Abs(back-v) > 1e-6 {
				t.Errorf("%s: round-trip %f -> %f", j, v, back)
			}
		}
	}
}

func TestCodec_UnknownJoint(t *testing.T) {
	_, err := ToRadiansByName(50, "shoulder_yaw")
	var uje *UnknownJointError
	if !errors.As(err, &uje) {
		t.Fatalf("ToRadiansByName(unknown) = %v, want UnknownJointError", err)
	}
	if uje.Name != "shoulder_yaw" {
		t.Errorf("error names joint %q, want shoulder_yaw", uje.Name)
	}

	if _, err := ToNormalizedByName(0.5, "elbow_flex"); err != nil {
		t.Errorf("ToNormalizedByName(known) returned %v", err)
	}
}

func TestValidateRadians(t *testing.T) {
	in := map[string]float64{
		"shoulder_pan": 0.3,
		"elbow_flex":   5.0, // beyond upper limit
		"tail_wag":     1.0, // not a joint
	}

	out, report := ValidateRadians(in)

	if len(out) != 2 {
		t.Fatalf("got %d validated entries, want 2", len(out))
	}
	if out["shoulder_pan"] != 0.3 {
		t.Errorf("in-range value changed: %f", out["shoulder_pan"])
	}
	if want := SpecFor(ElbowFlex).Upper; out["elbow_flex"] != want {
		t.Errorf("elbow_flex = %f, want clamped %f", out["elbow_flex"], want)
	}
	if orig, ok := report.Clamped[ElbowFlex]; !ok || orig != 5.0 {
		t.Errorf("clamp report = %v, want elbow_flex with original 5.0", report.Clamped)
	}
	if len(report.Dropped) != 1 || report.Dropped[0] != "tail_wag" {
		t.Errorf("dropped = %v, want [tail_wag]", report.Dropped)
	}
}

func TestVector_MaxAbsDiff(t *testing.T) {
	prev := Vector{}
	proposed := Vector{10, 0, 0, 0, 0, 0}

	j, diff := proposed.MaxAbsDiff(prev)
	if j != ShoulderPan {
		t.Errorf("offending joint = %s, want shoulder_pan", j)
	}
	if diff != 10 {
		t.Errorf("max diff = %f, want 10", diff)
	}
}

func TestVector_Clamped(t *testing.T) {
	v := Vector{10, -10, 0.5, 0, 0, 0}
	c := v.Clamped()

	if c[ShoulderPan] != SpecFor(ShoulderPan).Upper {
		t.Errorf("shoulder_pan = %f, want upper limit", c[ShoulderPan])
	}
	if c[ShoulderLift] != SpecFor(ShoulderLift).Lower {
		t.Errorf("shoulder_lift = %f, want lower limit", c[ShoulderLift])
	}
	if c[ElbowFlex] != 0.5 {
		t.Errorf("elbow_flex = %f, want 0.5 unchanged", c[ElbowFlex])
	}
}

func TestParseJoint(t *testing.T) {
	for _, j := range Joints() {
		got, ok := ParseJoint(j.String())
		if !ok || got != j {
			t.Errorf("ParseJoint(%q) = %v, %v", j.String(), got, ok)
		}
	}
	if _, ok := ParseJoint("led"); ok {
		t.Error("ParseJoint(led) should fail")
	}
}
