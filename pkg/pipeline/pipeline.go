// Package pipeline renders a degraded view of a source image.
//
// A render runs four stages in a fixed order, each reading the output of the
// previous one:
//
//  1. geometry: stretch the source to the buffer, rotate clockwise about the
//     buffer center, then zoom by 1 + crop/50 about the same pivot
//  2. raster filters: gaussian blur and a brightness multiplier
//  3. noise: one random delta per pixel shared by R, G and B, in buffer space
//  4. overlay: confusing-region boxes and labels (preview only)
//
// Preview and export share Render; export simply passes no regions.
package pipeline

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/menta2k/edge-case-lab/pkg/processing"
	"github.com/menta2k/edge-case-lab/pkg/types"
)

var (
	// ErrSourceUnavailable is returned when the source is pending or failed;
	// the buffer then holds the placeholder frame.
	ErrSourceUnavailable = errors.New("source image unavailable")
	// ErrInvalidParams is returned for out-of-range parameters; the buffer is untouched.
	ErrInvalidParams = errors.New("invalid transformation parameters")
	// ErrEmptyBuffer is returned when the destination has no pixels.
	ErrEmptyBuffer = errors.New("empty destination buffer")
)

// Source yields the decoded subject image
type Source interface {
	Image() (image.Image, error)
}

type staticSource struct {
	img image.Image
}

func (s staticSource) Image() (image.Image, error) {
	if s.img == nil {
		return nil, errors.New("no image")
	}
	return s.img, nil
}

// FromImage wraps an already decoded image as a Source
func FromImage(img image.Image) Source {
	return staticSource{img: img}
}

// Renderer runs the transform pipeline.
// A Renderer is safe for concurrent use when its RandomSource is.
type Renderer struct {
	rand   RandomSource
	interp draw.Interpolator
}

// Option configures a Renderer
type Option func(*Renderer)

// WithRandom sets the noise random source
func WithRandom(src RandomSource) Option {
	return func(r *Renderer) { r.rand = src }
}

// WithInterpolator sets the resampling kernel used by the geometric stage
func WithInterpolator(interp draw.Interpolator) Option {
	return func(r *Renderer) { r.interp = interp }
}

// New creates a renderer with fresh global randomness and bilinear resampling
func New(opts ...Option) *Renderer {
	r := &Renderer{rand: globalRandom{}, interp: draw.BiLinear}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Interpolator resolves a kernel by name: nearest, approx-bilinear, bilinear or catmull-rom
func Interpolator(name string) (draw.Interpolator, error) {
	switch name {
	case "nearest":
		return draw.NearestNeighbor, nil
	case "approx-bilinear":
		return draw.ApproxBiLinear, nil
	case "bilinear", "":
		return draw.BiLinear, nil
	case "catmull-rom":
		return draw.CatmullRom, nil
	}
	return nil, fmt.Errorf("unknown interpolator %q", name)
}

// Render draws src degraded by p into dst, then the overlay for regions.
// Pass nil regions for a clean frame.
func (r *Renderer) Render(dst *image.NRGBA, src Source, p types.Params, regions []types.ConfusingRegion) error {
	if dst == nil || dst.Rect.Empty() {
		return ErrEmptyBuffer
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	img, err := src.Image()
	if err != nil {
		caption := "IMAGE UNAVAILABLE"
		if errors.Is(err, processing.ErrSourcePending) {
			caption = "LOADING"
		}
		DrawPlaceholder(dst, caption)
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	clearBuffer(dst)
	r.rasterize(dst, img, p)
	r.applyNoise(dst, p.Noise)
	DrawOverlay(dst, regions)
	return nil
}

// rasterize runs the geometric stage and the raster filters
func (r *Renderer) rasterize(dst *image.NRGBA, img image.Image, p types.Params) {
	sr := img.Bounds()
	if sr.Empty() {
		return
	}
	r.interp.Transform(dst, Geometry(dst.Rect, sr, p), img, sr, draw.Src, nil)

	if p.Blur <= 0 && p.Brightness == 100 {
		return
	}

	var layer image.Image = dst
	if p.Blur > 0 {
		layer = imaging.Blur(layer, p.Blur)
	}
	if p.Brightness != 100 {
		factor := p.Brightness / 100
		layer = imaging.AdjustFunc(layer, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{
				R: clampChannel(math.Round(float64(c.R) * factor)),
				G: clampChannel(math.Round(float64(c.G) * factor)),
				B: clampChannel(math.Round(float64(c.B) * factor)),
				A: c.A,
			}
		})
	}
	draw.Draw(dst, dst.Rect, layer, image.Point{}, draw.Src)
}

// Geometry returns the source-to-buffer affine matrix: stretch sr onto
// bounds, then rotate clockwise by p.Rotation degrees and scale by
// 1 + p.Crop/50, both about the buffer center.
func Geometry(bounds, sr image.Rectangle, p types.Params) f64.Aff3 {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	fx, fy := w/float64(sr.Dx()), h/float64(sr.Dy())
	cx := float64(bounds.Min.X) + w/2
	cy := float64(bounds.Min.Y) + h/2

	theta := p.Rotation * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)
	s := 1 + p.Crop/50

	// offset of the stretched source: u = F*q + u0
	ux := float64(bounds.Min.X) - fx*float64(sr.Min.X)
	uy := float64(bounds.Min.Y) - fy*float64(sr.Min.Y)

	return f64.Aff3{
		s * cos * fx, -s * sin * fy, cx - s*(cos*cx-sin*cy) + s*(cos*ux-sin*uy),
		s * sin * fx, s * cos * fy, cy - s*(sin*cx+cos*cy) + s*(sin*ux+cos*uy),
	}
}

func clearBuffer(dst *image.NRGBA) {
	w := dst.Rect.Dx() * 4
	for y := 0; y < dst.Rect.Dy(); y++ {
		clear(dst.Pix[y*dst.Stride : y*dst.Stride+w])
	}
}

func clampChannel(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
