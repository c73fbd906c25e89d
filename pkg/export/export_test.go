package export

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/menta2k/edge-case-lab/pkg/pipeline"
	"github.com/menta2k/edge-case-lab/pkg/processing"
	"github.com/menta2k/edge-case-lab/pkg/types"
)

// createTestImage creates a simple test image with a bright subject
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}
	return img
}

func seededExporter() *Exporter {
	r := pipeline.New(pipeline.WithRandom(rand.New(rand.NewPCG(42, 1))))
	return New(r, Config{Width: 120, Height: 120, Format: "jpg", Quality: 80})
}

func TestExportProducesJPEG(t *testing.T) {
	src := pipeline.FromImage(createTestImage(200, 150))

	data, err := seededExporter().Export(src, types.Params{Blur: 2, Brightness: 115, Noise: 5, Rotation: 5, Crop: 10})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("export is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 120 || img.Bounds().Dy() != 120 {
		t.Errorf("export should match preview size, got %v", img.Bounds())
	}
}

func TestExportIgnoresRegions(t *testing.T) {
	src := pipeline.FromImage(createTestImage(200, 200))
	p := types.Params{Blur: 6, Brightness: 140, Noise: 30, Rotation: 35, Crop: 25}

	before, err := seededExporter().Export(src, p)
	if err != nil {
		t.Fatal(err)
	}

	// a preview with three regions in between must not leak into export
	preview := image.NewNRGBA(image.Rect(0, 0, 120, 120))
	regions := []types.ConfusingRegion{
		{X: 0, Y: 0, Width: 50, Height: 50, Reason: "one"},
		{X: 25, Y: 25, Width: 50, Height: 50, Reason: "two"},
		{X: 50, Y: 50, Width: 50, Height: 50, Reason: "three"},
	}
	if err := pipeline.New().Render(preview, src, p, regions); err != nil {
		t.Fatal(err)
	}

	after, err := seededExporter().Export(src, p)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(before, after) {
		t.Error("export bytes must not depend on confusing regions")
	}
}

func TestExportMatchesCleanRender(t *testing.T) {
	src := pipeline.FromImage(createTestImage(90, 90))
	p := types.Params{Blur: 1, Brightness: 90, Noise: 10, Rotation: -20, Crop: 40}

	frame, err := seededExporter().Frame(src, p)
	if err != nil {
		t.Fatal(err)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, 120, 120))
	r := pipeline.New(pipeline.WithRandom(rand.New(rand.NewPCG(42, 1))))
	if err := r.Render(dst, src, p, nil); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(frame.Pix, dst.Pix) {
		t.Error("export frame should equal the clean pipeline output")
	}
}

func TestExportNotReady(t *testing.T) {
	e := seededExporter()

	pending := processing.NewSource("cat")
	if _, err := e.Export(pending, types.Identity()); !errors.Is(err, ErrNotReady) {
		t.Errorf("pending source: expected ErrNotReady, got %v", err)
	}

	failed := processing.NewSource("cat")
	failed.Fail(errors.New("404"))
	data, err := e.Export(failed, types.Identity())
	if !errors.Is(err, ErrNotReady) || !errors.Is(err, processing.ErrSourceFailed) {
		t.Errorf("failed source: expected ErrNotReady wrapping the load failure, got %v", err)
	}
	if data != nil {
		t.Error("not-ready export must not return data")
	}
}

func TestExportInvalidParams(t *testing.T) {
	_, err := seededExporter().Export(pipeline.FromImage(createTestImage(50, 50)), types.Params{Rotation: 400, Brightness: 100})
	if !errors.Is(err, pipeline.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
	if errors.Is(err, ErrNotReady) {
		t.Error("invalid parameters are not a readiness problem")
	}
}

func TestExportFormats(t *testing.T) {
	src := pipeline.FromImage(createTestImage(60, 60))
	e := New(pipeline.New(), Config{Width: 60, Height: 60, Format: "png"})

	data, err := e.Export(src, types.Identity())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Error("expected PNG output")
	}
	if e.MimeType() != "image/png" {
		t.Errorf("unexpected mime type %s", e.MimeType())
	}
}

func TestDataURL(t *testing.T) {
	got := DataURL("image/jpeg", []byte{1, 2, 3})
	if !strings.HasPrefix(got, "data:image/jpeg;base64,") {
		t.Errorf("unexpected prefix: %s", got)
	}
	if !strings.HasSuffix(got, EncodeBase64([]byte{1, 2, 3})) {
		t.Errorf("unexpected payload: %s", got)
	}
}
