package pipeline

import (
	"image"
	"image/color"

	"golang.org/x/image/font/basicfont"
)

var (
	placeholderA      = color.NRGBA{255, 0, 255, 255}
	placeholderB      = color.NRGBA{24, 24, 24, 255}
	placeholderBanner = color.NRGBA{0, 0, 0, 255}
	placeholderText   = color.NRGBA{255, 255, 255, 255}
)

const placeholderCell = 25

// DrawPlaceholder fills dst with a magenta checkerboard and a centered caption.
// No source pixels are involved, so a failed load never shows a partial frame.
func DrawPlaceholder(dst *image.NRGBA, caption string) {
	b := dst.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := placeholderA
			if ((x-b.Min.X)/placeholderCell+(y-b.Min.Y)/placeholderCell)%2 == 1 {
				c = placeholderB
			}
			i := dst.PixOffset(x, y)
			dst.Pix[i+0], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = c.R, c.G, c.B, c.A
		}
	}

	if caption == "" {
		return
	}
	face := basicfont.Face7x13
	textW := len(caption) * face.Advance
	midY := b.Min.Y + b.Dy()/2
	for y := midY - face.Height; y < midY+face.Height; y++ {
		drawHLine(dst, y, b.Min.X, b.Max.X, placeholderBanner)
	}
	drawLabel(dst, b.Min.X+(b.Dx()-textW)/2, midY+face.Ascent/2, caption, placeholderText)
}
