package pipeline

import (
	"image"
	"math"
	"math/rand/v2"
)

// RandomSource yields uniform values on [0,1).
// *rand.Rand from math/rand/v2 satisfies it but is not safe for concurrent use.
type RandomSource interface {
	Float64() float64
}

// globalRandom draws from the runtime-seeded global generator, so every
// render gets a fresh noise pattern
type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }

// noiseScale maps the noise parameter to a channel amplitude
const noiseScale = 2.55

// applyNoise adds delta = (random()-0.5)*noise*2.55 to R, G and B of every
// pixel in row-major order, one draw per pixel. Alpha is untouched.
func (r *Renderer) applyNoise(dst *image.NRGBA, noise float64) {
	if noise <= 0 {
		return
	}
	amplitude := noise * noiseScale
	w := dst.Rect.Dx() * 4
	for y := 0; y < dst.Rect.Dy(); y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for i := 0; i < len(row); i += 4 {
			delta := (r.rand.Float64() - 0.5) * amplitude
			row[i+0] = perturb(row[i+0], delta)
			row[i+1] = perturb(row[i+1], delta)
			row[i+2] = perturb(row[i+2], delta)
		}
	}
}

// perturb rounds half to even like a clamped byte array store
func perturb(c uint8, delta float64) uint8 {
	return clampChannel(math.RoundToEven(float64(c) + delta))
}
