package types

import (
	"errors"
	"math"
	"testing"
)

func TestIdentity(t *testing.T) {
	p := Identity()
	if p.Blur != 0 || p.Brightness != 100 || p.Noise != 0 || p.Rotation != 0 || p.Crop != 0 {
		t.Errorf("unexpected identity vector: %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("identity should be valid: %v", err)
	}
}

func TestWithReturnsCopy(t *testing.T) {
	base := Identity()

	next, err := base.With(FieldBlur, 7)
	if err != nil {
		t.Fatalf("With failed: %v", err)
	}

	if base.Blur != 0 {
		t.Errorf("original vector was mutated: %+v", base)
	}
	if next.Blur != 7 {
		t.Errorf("Expected blur 7, got %v", next.Blur)
	}
	if next.Brightness != 100 {
		t.Errorf("other fields should be kept, got %+v", next)
	}
}

func TestWithRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		field Field
		value float64
	}{
		{FieldBlur, -1},
		{FieldBlur, 15.5},
		{FieldBrightness, 201},
		{FieldNoise, 100.01},
		{FieldRotation, -181},
		{FieldRotation, 181},
		{FieldCrop, -0.1},
		{FieldCrop, math.NaN()},
		{FieldNoise, math.Inf(1)},
	}

	for _, tt := range tests {
		p, err := Identity().With(tt.field, tt.value)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("%s=%v: expected ErrOutOfRange, got %v", tt.field, tt.value, err)
		}
		if p != Identity() {
			t.Errorf("%s=%v: rejected edit must return the unchanged vector", tt.field, tt.value)
		}
	}
}

func TestWithAcceptsBounds(t *testing.T) {
	for _, f := range Fields() {
		lo, hi := f.Range()
		for _, v := range []float64{lo, hi} {
			p, err := Identity().With(f, v)
			if err != nil {
				t.Errorf("%s=%v should be accepted: %v", f, v, err)
			}
			if p.Get(f) != v {
				t.Errorf("%s: expected %v, got %v", f, v, p.Get(f))
			}
		}
	}
}

func TestValidate(t *testing.T) {
	bad := Params{Blur: 2, Brightness: 250, Noise: 0, Rotation: 0, Crop: 0}
	if err := bad.Validate(); err == nil {
		t.Error("brightness 250 should fail validation")
	}

	good := Params{Blur: 12, Brightness: 180, Noise: 70, Rotation: 160, Crop: 55}
	if err := good.Validate(); err != nil {
		t.Errorf("valid vector rejected: %v", err)
	}
}

func TestParseField(t *testing.T) {
	for _, f := range Fields() {
		got, err := ParseField(string(f))
		if err != nil || got != f {
			t.Errorf("ParseField(%q) = %q, %v", f, got, err)
		}
	}
	if _, err := ParseField("contrast"); err == nil {
		t.Error("unknown field should fail")
	}
}
