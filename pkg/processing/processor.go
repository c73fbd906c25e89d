package processing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Config holds loader and encoder settings
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	MaxDownloadBytes int64
	DownloadTimeout  time.Duration
}

// Processor loads, validates and encodes images
type Processor struct {
	config Config
	client *http.Client
}

// NewProcessor creates a new image processor with default configuration
func NewProcessor() *Processor {
	return NewProcessorWithConfig(Config{
		SupportedFormats: []string{"jpeg", "png", "gif", "webp"},
		MinImageSize:     16,
		MaxDownloadBytes: 20 << 20,
		DownloadTimeout:  30 * time.Second,
	})
}

// NewProcessorWithConfig creates a processor with custom configuration
func NewProcessorWithConfig(cfg Config) *Processor {
	return &Processor{
		config: cfg,
		client: &http.Client{Timeout: cfg.DownloadTimeout},
	}
}

// LoadImageFromURL downloads and decodes an image
func (p *Processor) LoadImageFromURL(ctx context.Context, imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Edge-Case-Lab/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") && contentType != "application/octet-stream" {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	limit := p.config.MaxDownloadBytes
	if limit <= 0 {
		limit = 20 << 20
	}
	imageData, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(imageData)) > limit {
		return nil, fmt.Errorf("image exceeds %d bytes", limit)
	}

	return p.DecodeBytes(imageData)
}

// LoadImage loads an image from a file path
func (p *Processor) LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	return p.DecodeBytes(data)
}

// LoadImageSmart loads an image from a URL, a file:// URL or a plain path
func (p *Processor) LoadImageSmart(ctx context.Context, source string) (image.Image, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return p.LoadImageFromURL(ctx, source)
	case strings.HasPrefix(source, "file://"):
		return p.LoadImage(strings.TrimPrefix(source, "file://"))
	default:
		return p.LoadImage(source)
	}
}

// DecodeBytes decodes an image with WebP fallback and validates it
func (p *Processor) DecodeBytes(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// chai2010/webp handles a few encodings the pure-Go decoder rejects
		wimg, werr := webp.Decode(bytes.NewReader(data))
		if werr != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		img, format = wimg, "webp"
	}

	if !p.isFormatSupported(format) {
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}
	if err := p.ValidateImage(img); err != nil {
		return nil, err
	}
	return img, nil
}

// ValidateImage checks if an image meets minimum requirements
func (p *Processor) ValidateImage(img image.Image) error {
	b := img.Bounds()
	if b.Dx() < p.config.MinImageSize || b.Dy() < p.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)", b.Dx(), b.Dy(), p.config.MinImageSize)
	}
	return nil
}

func (p *Processor) isFormatSupported(format string) bool {
	if len(p.config.SupportedFormats) == 0 {
		return true
	}
	for _, supported := range p.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// Encode serializes an image as jpg, png or webp
func Encode(img image.Image, format string, quality int, lossless bool) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: lossless, Quality: float32(quality)}); err != nil {
			return nil, fmt.Errorf("webp encode: %w", err)
		}
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("png encode: %w", err)
		}
	case "jpg", "jpeg", "":
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("jpeg encode: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return buf.Bytes(), nil
}

// MimeType returns the content type for an output format
func MimeType(format string) string {
	switch strings.ToLower(format) {
	case "webp":
		return "image/webp"
	case "png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}

// SaveImage writes an image to a file with the specified format and quality
func SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	data, err := Encode(img, format, quality, lossless)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
