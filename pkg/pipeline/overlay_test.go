package pipeline

import (
	"bytes"
	"image"
	"image/color"
	"math/rand/v2"
	"testing"

	"github.com/menta2k/edge-case-lab/pkg/types"
)

func TestRegionRect(t *testing.T) {
	b := image.Rect(0, 0, 500, 500)

	got := RegionRect(b, types.ConfusingRegion{X: 10, Y: 20, Width: 30, Height: 40})
	want := image.Rect(50, 100, 200, 300)
	if got != want {
		t.Errorf("RegionRect = %v, want %v", got, want)
	}

	// regions reaching past the edge are clipped to the image
	got = RegionRect(b, types.ConfusingRegion{X: 90, Y: -5, Width: 30, Height: 10})
	want = image.Rect(450, 0, 500, 25)
	if got != want {
		t.Errorf("clipped RegionRect = %v, want %v", got, want)
	}
}

func TestRegionLabel(t *testing.T) {
	tests := []struct {
		i      int
		reason string
		want   string
	}{
		{0, "blur", "Area 1: blur..."},
		{2, "heavy static hides the ears", "Area 3: heavy static hides t..."},
		{1, "äöüäöüäöüäöüäöüäöüäöüäöü", "Area 2: äöüäöüäöüäöüäöüäöüäö..."},
	}
	for _, tt := range tests {
		if got := RegionLabel(tt.i, types.ConfusingRegion{Reason: tt.reason}); got != tt.want {
			t.Errorf("RegionLabel(%d, %q) = %q, want %q", tt.i, tt.reason, got, tt.want)
		}
	}
}

func TestDrawOverlay(t *testing.T) {
	img := solidImage(100, 100, color.NRGBA{0, 0, 255, 255})
	region := types.ConfusingRegion{X: 30, Y: 30, Width: 40, Height: 40, Reason: "ears"}
	DrawOverlay(img, []types.ConfusingRegion{region})

	// interior: translucent red over blue
	c := pixel(img, 50, 50)
	if c.R == 0 || c.B == 255 || c.B == 0 {
		t.Errorf("interior should be tinted red, got %v", c)
	}

	// first dash starts at the top-left corner
	if c := pixel(img, 31, 29); c != regionStroke {
		t.Errorf("expected stroke at top edge, got %v", c)
	}
	// gap after the first 8 pixels of the top edge
	if c := pixel(img, 30+9, 29); c == regionStroke {
		t.Errorf("expected a dash gap at offset 9, got stroke")
	}

	// far corner untouched
	if c := pixel(img, 2, 98); c != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("pixels outside the region should be untouched, got %v", c)
	}
}

func TestOverlayOnlyInPreview(t *testing.T) {
	src := FromImage(createTestImage(80, 80))
	p := types.Params{Blur: 1, Brightness: 110, Noise: 20, Rotation: 10, Crop: 5}
	regions := []types.ConfusingRegion{
		{X: 10, Y: 10, Width: 20, Height: 20, Reason: "a"},
		{X: 50, Y: 50, Width: 30, Height: 10, Reason: "b"},
	}

	render := func(rs []types.ConfusingRegion) *image.NRGBA {
		dst := image.NewNRGBA(image.Rect(0, 0, 80, 80))
		r := New(WithRandom(rand.New(rand.NewPCG(7, 7))))
		if err := r.Render(dst, src, p, rs); err != nil {
			t.Fatal(err)
		}
		return dst
	}

	clean := render(nil)
	empty := render([]types.ConfusingRegion{})
	preview := render(regions)

	if !bytes.Equal(clean.Pix, empty.Pix) {
		t.Error("nil and empty region lists should render the same frame")
	}
	if bytes.Equal(clean.Pix, preview.Pix) {
		t.Error("regions should change the preview frame")
	}
}
