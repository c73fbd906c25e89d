package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/edge-case-lab/pkg/types"
)

// Overlay styling
var (
	regionStroke = color.NRGBA{239, 68, 68, 255}
	regionFill   = color.NRGBA{239, 68, 68, 38} // 15% opacity
)

const (
	strokeWidth   = 3
	dashOn        = 8
	dashOff       = 4
	reasonRunes   = 20
	labelAbove    = 8
	labelBelow    = 15
	labelMinSpace = 20
)

// DrawOverlay draws every confusing region onto dst: dashed border,
// translucent fill and an "Area N" label
func DrawOverlay(dst *image.NRGBA, regions []types.ConfusingRegion) {
	for i, region := range regions {
		rect := RegionRect(dst.Rect, region)

		strokeDashedRect(dst, rect, regionStroke)
		draw.Draw(dst, rect, image.NewUniform(regionFill), image.Point{}, draw.Over)

		y := rect.Min.Y - labelAbove
		if rect.Min.Y-dst.Rect.Min.Y <= labelMinSpace {
			y = rect.Max.Y + labelBelow
		}
		drawLabel(dst, rect.Min.X, y, RegionLabel(i, region), regionStroke)
	}
}

// RegionRect converts a percent-coordinate region into pixels of bounds
func RegionRect(bounds image.Rectangle, r types.ConfusingRegion) image.Rectangle {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	x0 := clamp(r.X, 0, 100) / 100 * w
	y0 := clamp(r.Y, 0, 100) / 100 * h
	x1 := clamp(r.X+r.Width, 0, 100) / 100 * w
	y1 := clamp(r.Y+r.Height, 0, 100) / 100 * h
	return image.Rect(
		bounds.Min.X+int(math.Round(x0)), bounds.Min.Y+int(math.Round(y0)),
		bounds.Min.X+int(math.Round(x1)), bounds.Min.Y+int(math.Round(y1)),
	)
}

// RegionLabel formats the caption of the i-th region
func RegionLabel(i int, r types.ConfusingRegion) string {
	reason := []rune(r.Reason)
	if len(reason) > reasonRunes {
		reason = reason[:reasonRunes]
	}
	return fmt.Sprintf("Area %d: %s...", i+1, string(reason))
}

// strokeDashedRect walks the border clockwise from the top-left corner,
// keeping the dash phase continuous around corners
func strokeDashedRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	if r.Empty() {
		return
	}
	const half = strokeWidth / 2
	pos := 0
	on := func() bool {
		visible := pos%(dashOn+dashOff) < dashOn
		pos++
		return visible
	}

	for x := r.Min.X; x < r.Max.X; x++ {
		if on() {
			drawVLine(img, x, r.Min.Y-half, r.Min.Y-half+strokeWidth, c)
		}
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		if on() {
			drawHLine(img, y, r.Max.X-half, r.Max.X-half+strokeWidth, c)
		}
	}
	for x := r.Max.X; x > r.Min.X; x-- {
		if on() {
			drawVLine(img, x, r.Max.Y-half, r.Max.Y-half+strokeWidth, c)
		}
	}
	for y := r.Max.Y; y > r.Min.Y; y-- {
		if on() {
			drawHLine(img, y, r.Min.X-half, r.Min.X-half+strokeWidth, c)
		}
	}
}

func drawLabel(img *image.NRGBA, x, baseline int, text string, c color.NRGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(text)
}

// drawHLine sets pixels [x0,x1) of row y, clipped to the image
func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Rect
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0, x1 = max(x0, b.Min.X), min(x1, b.Max.X)
	if x0 >= x1 {
		return
	}
	i := img.PixOffset(x0, y)
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

// drawVLine sets pixels [y0,y1) of column x, clipped to the image
func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Rect
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0, y1 = max(y0, b.Min.Y), min(y1, b.Max.Y)
	if y0 >= y1 {
		return
	}
	i := img.PixOffset(x, y0)
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
