package types

import (
	"errors"
	"fmt"
	"math"
)

// Parameter ranges
const (
	BlurMin       = 0.0
	BlurMax       = 15.0
	BrightnessMin = 0.0
	BrightnessMax = 200.0
	NoiseMin      = 0.0
	NoiseMax      = 100.0
	RotationMin   = -180.0
	RotationMax   = 180.0
	CropMin       = 0.0
	CropMax       = 100.0
)

// ErrOutOfRange is returned when a parameter value falls outside its range
var ErrOutOfRange = errors.New("parameter out of range")

// Field names one of the five transformation parameters
type Field string

const (
	FieldBlur       Field = "blur"
	FieldBrightness Field = "brightness"
	FieldNoise      Field = "noise"
	FieldRotation   Field = "rotation"
	FieldCrop       Field = "crop"
)

// Fields returns every parameter field in display order
func Fields() []Field {
	return []Field{FieldBlur, FieldBrightness, FieldNoise, FieldRotation, FieldCrop}
}

// ParseField resolves a field by name
func ParseField(name string) (Field, error) {
	for _, f := range Fields() {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown parameter %q", name)
}

// Range returns the inclusive bounds of the field
func (f Field) Range() (float64, float64) {
	switch f {
	case FieldBlur:
		return BlurMin, BlurMax
	case FieldBrightness:
		return BrightnessMin, BrightnessMax
	case FieldNoise:
		return NoiseMin, NoiseMax
	case FieldRotation:
		return RotationMin, RotationMax
	case FieldCrop:
		return CropMin, CropMax
	}
	return math.NaN(), math.NaN()
}

// Params is the transformation parameter vector driving one render.
// It is a value type: edits produce a new vector through With.
type Params struct {
	Blur       float64 `json:"blur"`
	Brightness float64 `json:"brightness"`
	Noise      float64 `json:"noise"`
	Rotation   float64 `json:"rotation"`
	Crop       float64 `json:"crop"`
}

// Identity returns the vector that leaves the image unchanged
func Identity() Params {
	return Params{Blur: 0, Brightness: 100, Noise: 0, Rotation: 0, Crop: 0}
}

// Get returns the value of a single field
func (p Params) Get(f Field) float64 {
	switch f {
	case FieldBlur:
		return p.Blur
	case FieldBrightness:
		return p.Brightness
	case FieldNoise:
		return p.Noise
	case FieldRotation:
		return p.Rotation
	case FieldCrop:
		return p.Crop
	}
	return math.NaN()
}

// With returns a copy of p with one field replaced
func (p Params) With(f Field, v float64) (Params, error) {
	if err := checkRange(f, v); err != nil {
		return p, err
	}
	switch f {
	case FieldBlur:
		p.Blur = v
	case FieldBrightness:
		p.Brightness = v
	case FieldNoise:
		p.Noise = v
	case FieldRotation:
		p.Rotation = v
	case FieldCrop:
		p.Crop = v
	}
	return p, nil
}

// Validate checks every field against its range
func (p Params) Validate() error {
	for _, f := range Fields() {
		if err := checkRange(f, p.Get(f)); err != nil {
			return err
		}
	}
	return nil
}

func checkRange(f Field, v float64) error {
	lo, hi := f.Range()
	if math.IsNaN(lo) {
		return fmt.Errorf("unknown parameter %q", f)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < lo || v > hi {
		return fmt.Errorf("%w: %s=%v (allowed %v..%v)", ErrOutOfRange, f, v, lo, hi)
	}
	return nil
}

// ConfusingRegion is an oracle-reported area in percent coordinates [0,100]
type ConfusingRegion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Reason string  `json:"reason"`
}

// Verdict is the structured oracle response for one submission
type Verdict struct {
	Label            string            `json:"label"`
	Confidence       float64           `json:"confidence"`
	Reasoning        string            `json:"reasoning"`
	IsCorrect        bool              `json:"isCorrect"`
	ConfusingRegions []ConfusingRegion `json:"confusingRegions,omitempty"`
}

// PresetImage is a selectable subject with its ground-truth label
type PresetImage struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Label string `json:"label"`
}

// EdgeCaseExample is a gallery subject that already shows a hard condition
type EdgeCaseExample struct {
	PresetImage
	Description string `json:"description"`
}

// DifficultyPreset binds a parameter vector to a challenge level
type DifficultyPreset struct {
	Label       string `json:"label"`
	Config      Params `json:"config"`
	Description string `json:"description"`
}

// FieldScenario is a named real-world degradation
type FieldScenario struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Config      Params `json:"config"`
}
