package scoring

import (
	"math"

	"github.com/menta2k/edge-case-lab/pkg/types"
)

// Grade is the discrete severity class of a messiness score
type Grade string

const (
	Mild           Grade = "Mild"
	Moderate       Grade = "Moderate"
	Extreme        Grade = "Extreme"
	Unrecognizable Grade = "Unrecognizable"
)

// Exclusive upper bounds for each grade
const (
	MildBelow     = 30.0
	ModerateBelow = 80.0
	ExtremeBelow  = 150.0
)

// Assessment pairs a score with its grade
type Assessment struct {
	Score float64 `json:"score"`
	Grade Grade   `json:"grade"`
}

// Score computes the messiness of a parameter vector:
// 2*blur + |100-brightness|/2 + noise + |rotation|/1.8 + crop
func Score(p types.Params) float64 {
	return p.Blur*2 +
		math.Abs(100-p.Brightness)/2 +
		p.Noise +
		math.Abs(p.Rotation)/1.8 +
		p.Crop
}

// GradeFor classifies a score
func GradeFor(score float64) Grade {
	switch {
	case score < MildBelow:
		return Mild
	case score < ModerateBelow:
		return Moderate
	case score < ExtremeBelow:
		return Extreme
	default:
		return Unrecognizable
	}
}

// Assess scores and grades a parameter vector
func Assess(p types.Params) Assessment {
	s := Score(p)
	return Assessment{Score: s, Grade: GradeFor(s)}
}
