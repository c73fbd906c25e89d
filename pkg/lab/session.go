// Package lab holds one interactive degradation session: the current
// parameter vector, the selected subject, and the last oracle verdict.
package lab

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/edge-case-lab/internal/logging"
	"github.com/menta2k/edge-case-lab/pkg/catalog"
	"github.com/menta2k/edge-case-lab/pkg/export"
	"github.com/menta2k/edge-case-lab/pkg/pipeline"
	"github.com/menta2k/edge-case-lab/pkg/processing"
	"github.com/menta2k/edge-case-lab/pkg/scoring"
	"github.com/menta2k/edge-case-lab/pkg/types"
)

// ModeManual is the state after any direct edit or reset
const ModeManual = "Manual"

var (
	// ErrAnalyzing is returned by Submit while an oracle call is outstanding
	ErrAnalyzing = errors.New("analysis already in progress")
	// ErrUnknownPreset is returned for a difficulty or scenario not in the catalog
	ErrUnknownPreset = errors.New("unknown preset")
	// ErrUnknownImage is returned for a subject id not in the catalog
	ErrUnknownImage = errors.New("unknown image")
)

// Loader fills a pending source. processing.Processor implements it.
type Loader interface {
	Load(ctx context.Context, s *processing.Source)
}

// Analyzer classifies an exported frame. oracle.Oracle implements it.
type Analyzer interface {
	Analyze(ctx context.Context, image, expectedLabel string) types.Verdict
}

// Snapshot is an immutable view of the session
type Snapshot struct {
	Params    types.Params      `json:"params"`
	Mode      string            `json:"mode"`
	Subject   types.PresetImage `json:"subject"`
	Verdict   *types.Verdict    `json:"verdict,omitempty"`
	Analyzing bool              `json:"analyzing"`
	Token     string            `json:"token,omitempty"`
}

// IsManual reports whether the vector was hand-edited or reset
func (s Snapshot) IsManual() bool {
	return s.Mode == ModeManual
}

// Session is safe for concurrent use
type Session struct {
	catalog  *catalog.Catalog
	loader   Loader
	oracle   Analyzer
	renderer *pipeline.Renderer
	exporter *export.Exporter
	logger   *zap.Logger
	timeout  time.Duration
	newToken func() string

	width, height int
	exportConfig  export.Config

	mu     sync.Mutex
	snap   Snapshot
	source *processing.Source

	// serializes renders, the renderer's random source may not be goroutine safe
	renderMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRenderer sets the renderer shared by preview and export
func WithRenderer(r *pipeline.Renderer) Option {
	return func(s *Session) {
		if r != nil {
			s.renderer = r
		}
	}
}

// WithExport sets the canvas size and export encoding
func WithExport(cfg export.Config) Option {
	return func(s *Session) {
		s.exportConfig = cfg
	}
}

// WithTimeout bounds each oracle call
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.timeout = d
	}
}

// WithTokenSource replaces the uuid request token generator
func WithTokenSource(fn func() string) Option {
	return func(s *Session) {
		if fn != nil {
			s.newToken = fn
		}
	}
}

// New starts a session on the catalog's default subject and begins loading it
func New(cat *catalog.Catalog, loader Loader, oracle Analyzer, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		catalog:      cat,
		loader:       loader,
		oracle:       oracle,
		renderer:     pipeline.New(),
		logger:       zap.NewNop(),
		timeout:      2 * time.Minute,
		newToken:     uuid.NewString,
		exportConfig: export.DefaultConfig(),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.width, s.height = s.exportConfig.Width, s.exportConfig.Height
	s.exporter = export.New(s.renderer, s.exportConfig)

	subject := cat.DefaultSubject()
	s.snap = Snapshot{Params: types.Identity(), Mode: ModeManual, Subject: subject}
	s.source = s.startLoad(subject.URL)
	return s
}

// Close cancels pending loads and waits for outstanding goroutines
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

// Snapshot returns the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Source returns the current subject source
func (s *Session) Source() *processing.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Catalog returns the preset catalog
func (s *Session) Catalog() *catalog.Catalog {
	return s.catalog
}

// SetParam edits one field. The session becomes Manual and any verdict or
// in-flight response is dropped. Out-of-range values leave state unchanged.
func (s *Session) SetParam(f types.Field, v float64) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.snap.Params.With(f, v)
	if err != nil {
		return s.snap, err
	}
	s.replaceLocked(next, ModeManual)
	return s.snap, nil
}

// SetParams replaces the whole vector as a manual edit
func (s *Session) SetParams(p types.Params) (Snapshot, error) {
	if err := p.Validate(); err != nil {
		return s.Snapshot(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(p, ModeManual)
	return s.snap, nil
}

// SelectDifficulty applies a difficulty preset. "Manual" behaves as Reset.
func (s *Session) SelectDifficulty(label string) (Snapshot, error) {
	if label == ModeManual {
		return s.Reset(), nil
	}
	preset, ok := s.catalog.Difficulty(label)
	if !ok {
		return s.Snapshot(), fmt.Errorf("%w: difficulty %q", ErrUnknownPreset, label)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(preset.Config, preset.Label)
	return s.snap, nil
}

// SelectScenario applies a field scenario
func (s *Session) SelectScenario(id string) (Snapshot, error) {
	scenario, ok := s.catalog.Scenario(id)
	if !ok {
		return s.Snapshot(), fmt.Errorf("%w: scenario %q", ErrUnknownPreset, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(scenario.Config, scenario.ID)
	return s.snap, nil
}

// Reset returns to the identity vector in Manual mode
func (s *Session) Reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(types.Identity(), ModeManual)
	return s.snap
}

// SelectImage switches to a catalog subject and starts loading it.
// The mode and parameters are kept.
func (s *Session) SelectImage(id string) (Snapshot, error) {
	subject, ok := s.catalog.Subject(id)
	if !ok {
		return s.Snapshot(), fmt.Errorf("%w: %q", ErrUnknownImage, id)
	}
	return s.UseSubject(subject), nil
}

// UseSubject switches to an arbitrary subject, e.g. a local file
func (s *Session) UseSubject(subject types.PresetImage) Snapshot {
	src := s.startLoad(subject.URL)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
	s.snap.Subject = subject
	s.snap.Verdict = nil
	s.snap.Token = ""
	return s.snap
}

// replaceLocked installs a new vector and invalidates the verdict
func (s *Session) replaceLocked(p types.Params, mode string) {
	s.snap.Params = p
	s.snap.Mode = mode
	s.snap.Verdict = nil
	s.snap.Token = ""
}

func (s *Session) startLoad(ref string) *processing.Source {
	src := processing.NewSource(ref)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loader.Load(s.ctx, src)
		if _, err := src.Image(); err != nil {
			s.logger.Warn("source image failed to load", zap.String("ref", ref), zap.Error(err))
			return
		}
		s.logger.Debug("source image loaded", zap.String("ref", ref))
	}()
	return src
}

// Assessment scores the current vector
func (s *Session) Assessment() scoring.Assessment {
	return scoring.Assess(s.Snapshot().Params)
}

// Preview renders the current frame with the verdict's confusing regions.
// If the source is not ready the returned image is the placeholder and the
// error wraps pipeline.ErrSourceUnavailable.
func (s *Session) Preview() (*image.NRGBA, error) {
	s.mu.Lock()
	snap, src := s.snap, s.source
	s.mu.Unlock()

	var regions []types.ConfusingRegion
	if snap.Verdict != nil {
		regions = snap.Verdict.ConfusingRegions
	}

	dst := image.NewNRGBA(image.Rect(0, 0, s.width, s.height))
	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	return dst, s.renderer.Render(dst, src, snap.Params, regions)
}

// Export encodes the current frame without any overlay
func (s *Session) Export() ([]byte, error) {
	s.mu.Lock()
	p, src := s.snap.Params, s.source
	s.mu.Unlock()
	return s.export(src, p)
}

// ExportMimeType returns the content type Export produces
func (s *Session) ExportMimeType() string {
	return s.exporter.MimeType()
}

func (s *Session) export(src *processing.Source, p types.Params) ([]byte, error) {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	return s.exporter.Export(src, p)
}

// Pending is an outstanding oracle call
type Pending struct {
	Token string

	done    chan struct{}
	verdict types.Verdict
	applied bool
}

// Done is closed when the oracle call returns
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the call returns. applied is false when the session
// changed during the call and the verdict was discarded.
func (p *Pending) Wait(ctx context.Context) (verdict types.Verdict, applied bool, err error) {
	select {
	case <-p.done:
		return p.verdict, p.applied, nil
	case <-ctx.Done():
		return types.Verdict{}, false, ctx.Err()
	}
}

// Submit exports the current frame and sends it to the oracle in the
// background. Only one call may be outstanding, and the previous verdict is
// cleared until it returns. A not-ready source is reported here and leaves
// the session unchanged.
func (s *Session) Submit(ctx context.Context) (*Pending, error) {
	s.mu.Lock()
	if s.snap.Analyzing {
		s.mu.Unlock()
		return nil, ErrAnalyzing
	}
	token := s.newToken()
	p, src, subject := s.snap.Params, s.source, s.snap.Subject
	prev := s.snap.Verdict
	s.snap.Analyzing = true
	s.snap.Token = token
	s.snap.Verdict = nil
	s.mu.Unlock()

	logger := logging.WithOperation(s.logger, "lab.submit", token)

	data, err := s.export(src, p)
	if err != nil {
		s.mu.Lock()
		s.snap.Analyzing = false
		if s.snap.Token == token {
			s.snap.Token = ""
			s.snap.Verdict = prev
		}
		s.mu.Unlock()
		logger.Info("export refused", zap.Error(err))
		return nil, logging.NewOperationError("lab.submit", token, err)
	}

	pending := &Pending{Token: token, done: make(chan struct{})}
	payload := export.DataURL(s.exporter.MimeType(), data)

	// the call outlives the caller's request but not the session
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	stop := context.AfterFunc(s.ctx, cancel)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stop()
		defer cancel()

		start := time.Now()
		verdict := s.oracle.Analyze(callCtx, payload, subject.Label)

		s.mu.Lock()
		s.snap.Analyzing = false
		applied := s.snap.Token == token
		if applied {
			v := verdict
			s.snap.Verdict = &v
			s.snap.Token = ""
		}
		s.mu.Unlock()

		pending.verdict, pending.applied = verdict, applied
		close(pending.done)

		logger.Info("analysis finished",
			zap.String("label", verdict.Label),
			zap.Bool("correct", verdict.IsCorrect),
			zap.Bool("applied", applied),
			zap.Duration("elapsed", time.Since(start)))
	}()

	logger.Info("analysis submitted", zap.String("expected", subject.Label), zap.Int("bytes", len(data)))
	return pending, nil
}
