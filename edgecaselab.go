// Package edgecaselab degrades subject images on purpose and asks a vision
// model whether it can still recognize them.
//
// A frame passes through four stages: geometry (rotation, then zoom),
// raster filters (blur and brightness), per-pixel noise, and an optional
// overlay of the regions the model found confusing. The overlay is only
// ever drawn on the preview; the frame sent to the model is clean.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		edgecaselab "github.com/menta2k/edge-case-lab"
//	)
//
//	func main() {
//		l, err := edgecaselab.New()
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer l.Close()
//
//		if _, err := l.Session.SelectDifficulty("Medium"); err != nil {
//			log.Fatal(err)
//		}
//		l.Session.Source().Wait(context.Background())
//
//		pending, err := l.Session.Submit(context.Background())
//		if err != nil {
//			log.Fatal(err)
//		}
//		verdict, _, _ := pending.Wait(context.Background())
//		fmt.Printf("%s (%.0f%%): %s\n", verdict.Label, verdict.Confidence, verdict.Reasoning)
//	}
//
// The package wires these components from a single configuration:
//
//  1. Pipeline (pkg/pipeline): the four-stage renderer
//  2. Export (pkg/export): overlay-free JPEG encoding of the frame
//  3. Oracle (pkg/oracle): vision model boundary with a fixed failure verdict
//  4. Lab (pkg/lab): presets, scenarios and the submit/verdict lifecycle
//
// Vision backends are Ollama and any OpenAI-compatible server. Verdicts can
// be cached in memory or in Redis.
package edgecaselab

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/edge-case-lab/internal/api"
	"github.com/menta2k/edge-case-lab/internal/cache"
	"github.com/menta2k/edge-case-lab/internal/config"
	"github.com/menta2k/edge-case-lab/pkg/catalog"
	"github.com/menta2k/edge-case-lab/pkg/client"
	"github.com/menta2k/edge-case-lab/pkg/export"
	"github.com/menta2k/edge-case-lab/pkg/lab"
	"github.com/menta2k/edge-case-lab/pkg/ollama"
	"github.com/menta2k/edge-case-lab/pkg/openai"
	"github.com/menta2k/edge-case-lab/pkg/oracle"
	"github.com/menta2k/edge-case-lab/pkg/pipeline"
	"github.com/menta2k/edge-case-lab/pkg/processing"
	"github.com/menta2k/edge-case-lab/pkg/scoring"
	"github.com/menta2k/edge-case-lab/pkg/types"
)

// Version of the edge-case lab
const Version = "1.0.0"

// Lab bundles a session with the components it was built from
type Lab struct {
	Session   *lab.Session
	Oracle    *oracle.Oracle
	Catalog   *catalog.Catalog
	Processor *processing.Processor
	Renderer  *pipeline.Renderer
	Config    *config.Config

	logger  *zap.Logger
	closers []func() error
}

// Option overrides a component that would otherwise be built from config
type Option func(*options)

type options struct {
	logger  *zap.Logger
	loader  lab.Loader
	vision  client.VisionClient
	random  pipeline.RandomSource
	catalog *catalog.Catalog
}

// WithLogger sets the logger for every component
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLoader replaces the network/file image loader
func WithLoader(loader lab.Loader) Option {
	return func(o *options) { o.loader = loader }
}

// WithVisionClient replaces the configured vision backend
func WithVisionClient(c client.VisionClient) Option {
	return func(o *options) { o.vision = c }
}

// WithRandom sets the noise source, e.g. a seeded generator
func WithRandom(r pipeline.RandomSource) Option {
	return func(o *options) { o.random = r }
}

// WithCatalog replaces the catalog named by the configuration
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// New creates a Lab with default configuration
func New(opts ...Option) (*Lab, error) {
	return NewWithConfig(config.Default(), opts...)
}

// NewWithConfig validates cfg and builds every component from it
func NewWithConfig(cfg *config.Config, opts ...Option) (*Lab, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	l := &Lab{Config: cfg, logger: o.logger}

	l.Catalog = o.catalog
	if l.Catalog == nil {
		cat, err := LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		l.Catalog = cat
	}

	l.Processor = processing.NewProcessorWithConfig(processing.Config{
		SupportedFormats: cfg.Loader.SupportedFormats,
		MinImageSize:     cfg.Loader.MinImageSize,
		MaxDownloadBytes: cfg.Loader.MaxDownloadBytes,
		DownloadTimeout:  cfg.LoaderTimeout(),
	})

	interp, err := pipeline.Interpolator(cfg.Canvas.Interpolation)
	if err != nil {
		return nil, err
	}
	renderOpts := []pipeline.Option{pipeline.WithInterpolator(interp)}
	if o.random != nil {
		renderOpts = append(renderOpts, pipeline.WithRandom(o.random))
	}
	l.Renderer = pipeline.New(renderOpts...)

	vision := o.vision
	if vision == nil {
		vision, err = NewVisionClient(cfg)
		if err != nil {
			return nil, err
		}
	}

	oracleOpts := []oracle.Option{
		oracle.WithLogger(o.logger.Named("oracle")),
		oracle.WithTimeout(cfg.OracleTimeout()),
	}
	verdicts, closeCache, err := NewCache(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	if verdicts != nil {
		oracleOpts = append(oracleOpts, oracle.WithCache(verdicts, cfg.CacheTTL()))
	}
	if closeCache != nil {
		l.closers = append(l.closers, closeCache)
	}
	l.Oracle = oracle.New(vision, cfg.Oracle.Model, oracleOpts...)

	var loader lab.Loader = l.Processor
	if o.loader != nil {
		loader = o.loader
	}
	l.Session = lab.New(l.Catalog, loader, l.Oracle,
		lab.WithLogger(o.logger.Named("lab")),
		lab.WithRenderer(l.Renderer),
		lab.WithTimeout(cfg.OracleTimeout()),
		lab.WithExport(ExportConfig(cfg)))

	return l, nil
}

// Close stops the session and releases the cache connection
func (l *Lab) Close() error {
	l.Session.Close()
	var firstErr error
	for _, c := range l.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Handler returns the HTTP API for the session
func (l *Lab) Handler() http.Handler {
	return api.NewRouter(l.Session, l.logger.Named("api"))
}

// Degrade renders img with p into a canvas-sized frame, outside any session.
// regions may be nil for a clean frame.
func (l *Lab) Degrade(img image.Image, p types.Params, regions []types.ConfusingRegion) (*image.NRGBA, error) {
	dst := image.NewNRGBA(image.Rect(0, 0, l.Config.Canvas.Width, l.Config.Canvas.Height))
	if err := l.Renderer.Render(dst, pipeline.FromImage(img), p, regions); err != nil {
		return nil, err
	}
	return dst, nil
}

// Assess scores a parameter vector
func Assess(p types.Params) scoring.Assessment {
	return scoring.Assess(p)
}

// ExportConfig derives the export settings from cfg
func ExportConfig(cfg *config.Config) export.Config {
	return export.Config{
		Width:    cfg.Canvas.Width,
		Height:   cfg.Canvas.Height,
		Format:   cfg.Export.Format,
		Quality:  cfg.Export.Quality,
		Lossless: cfg.Export.Lossless,
	}
}

// LoadCatalog reads the catalog at path, or returns the built-in one for ""
func LoadCatalog(path string) (*catalog.Catalog, error) {
	cat := catalog.Default()
	if path != "" {
		var err error
		if cat, err = catalog.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// NewVisionClient builds the backend named by cfg.Oracle.Backend
func NewVisionClient(cfg *config.Config) (client.VisionClient, error) {
	switch cfg.Oracle.Backend {
	case config.BackendOllama:
		c, err := ollama.NewClient(cfg.Oracle.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case config.BackendOpenAI:
		c, err := openai.NewClient(cfg.Oracle.URL, cfg.Oracle.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI-compatible client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s (use %q or %q)", cfg.Oracle.Backend, config.BackendOllama, config.BackendOpenAI)
	}
}

// NewCache builds the verdict cache. Both results are nil for the "none" backend.
func NewCache(ctx context.Context, cfg *config.Config) (oracle.Cache, func() error, error) {
	switch cfg.Cache.Backend {
	case config.CacheNone:
		return nil, nil, nil
	case config.CacheMemory:
		return cache.NewMemoryCache(), nil, nil
	case config.CacheRedis:
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rc, err := cache.DialRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return rc, rc.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
