package export

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"

	"github.com/menta2k/edge-case-lab/pkg/pipeline"
	"github.com/menta2k/edge-case-lab/pkg/processing"
	"github.com/menta2k/edge-case-lab/pkg/types"
)

// ErrNotReady is returned when the source image has not finished loading or
// failed to load. Callers can retry; it is never reported as a verdict.
var ErrNotReady = errors.New("source image not ready for export")

// Config controls the clean export encoding
type Config struct {
	Width    int
	Height   int
	Format   string
	Quality  int
	Lossless bool
}

// DefaultConfig matches the 500x500 preview and JPEG quality 80
func DefaultConfig() Config {
	return Config{Width: 500, Height: 500, Format: "jpg", Quality: 80}
}

// Exporter renders overlay-free frames and encodes them for the oracle
type Exporter struct {
	renderer *pipeline.Renderer
	config   Config
}

// New creates an exporter sharing the preview renderer
func New(renderer *pipeline.Renderer, cfg Config) *Exporter {
	return &Exporter{renderer: renderer, config: cfg}
}

// Config returns the exporter configuration
func (e *Exporter) Config() Config {
	return e.config
}

// Frame renders stages 1-3 into a fresh buffer of the preview size
func (e *Exporter) Frame(src pipeline.Source, p types.Params) (*image.NRGBA, error) {
	if _, err := src.Image(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, e.config.Width, e.config.Height))
	if err := e.renderer.Render(dst, src, p, nil); err != nil {
		if errors.Is(err, pipeline.ErrSourceUnavailable) {
			return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		return nil, err
	}
	return dst, nil
}

// Export renders the clean frame and encodes it
func (e *Exporter) Export(src pipeline.Source, p types.Params) ([]byte, error) {
	frame, err := e.Frame(src, p)
	if err != nil {
		return nil, err
	}
	data, err := processing.Encode(frame, e.config.Format, e.config.Quality, e.config.Lossless)
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return data, nil
}

// MimeType returns the content type of exported data
func (e *Exporter) MimeType() string {
	return processing.MimeType(e.config.Format)
}

// EncodeBase64 returns data as standard base64
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DataURL returns data as a data: URL with the given content type
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + EncodeBase64(data)
}
