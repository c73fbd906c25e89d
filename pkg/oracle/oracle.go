// Package oracle asks a vision model whether a degraded frame still shows the
// expected subject. Analyze never fails: every error becomes the sentinel
// verdict so callers can always display something.
package oracle

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/edge-case-lab/pkg/client"
	"github.com/menta2k/edge-case-lab/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

const promptTemplate = `You are simulating a computer vision object detection model.
Identify the primary object in this image.
The image might be heavily distorted (noise, blur, rotation, etc.).
- If it's clear, high confidence.
- If it's blurry/noisy, confidence drops.
- If it's very messy, you might guess incorrectly or be confused.

Compare your guess to the expected label: %q.

Also, pinpoint 1-3 specific areas (rectangular regions) that are particularly confusing or distorted, preventing a 100%% clear identification. Use coordinates in percentage (0-100) of the image dimensions.

Return JSON only:
{
  "label": "what you think you see",
  "confidence": 0,
  "reasoning": "short explanation for kids about why it was hard or easy",
  "isCorrect": false,
  "confusingRegions": [
    {"x": 0, "y": 0, "width": 0, "height": 0, "reason": "why this spot is confusing"}
  ]
}

HARD RULES
- confidence is a number from 0 to 100.
- isCorrect is true only if your guess matches the expected label.
- Region coordinates are percentages of the image (0-100), NOT pixels.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// SentinelLabel marks the verdict returned when analysis failed.
const SentinelLabel = "Error"

// Sentinel returns the fixed verdict reported for any failure.
func Sentinel() types.Verdict {
	return types.Verdict{
		Label:      SentinelLabel,
		Confidence: 0,
		Reasoning:  "The AI is too confused to respond!",
		IsCorrect:  false,
	}
}

// IsSentinel reports whether v is the failure verdict.
func IsSentinel(v types.Verdict) bool {
	s := Sentinel()
	return v.Label == s.Label && v.Reasoning == s.Reasoning && v.Confidence == 0 && !v.IsCorrect && len(v.ConfusingRegions) == 0
}

// BuildPrompt returns the classification prompt for expectedLabel
func BuildPrompt(expectedLabel string) string {
	return fmt.Sprintf(promptTemplate, expectedLabel)
}

// Cache stores serialized verdicts. Get must return an error on a miss.
type Cache interface {
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// Oracle classifies exported frames through a vision backend
type Oracle struct {
	client   client.VisionClient
	model    string
	logger   *zap.Logger
	cache    Cache
	cacheTTL time.Duration
	timeout  time.Duration
}

// Option configures an Oracle
type Option func(*Oracle)

// WithLogger sets the logger used for failure reports
func WithLogger(logger *zap.Logger) Option {
	return func(o *Oracle) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCache enables verdict caching. ttl of zero keeps entries forever.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(o *Oracle) {
		o.cache = c
		o.cacheTTL = ttl
	}
}

// WithTimeout bounds each backend call
func WithTimeout(d time.Duration) Option {
	return func(o *Oracle) {
		o.timeout = d
	}
}

// New creates an oracle for model served by c
func New(c client.VisionClient, model string, opts ...Option) *Oracle {
	o := &Oracle{
		client: c,
		model:  model,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Model returns the backend model name
func (o *Oracle) Model() string {
	return o.model
}

// Analyze classifies image, given as raw base64 or a data URL, against
// expectedLabel. It never returns an error and recovers backend panics.
func (o *Oracle) Analyze(ctx context.Context, image, expectedLabel string) (verdict types.Verdict) {
	logger := o.logger.With(zap.String("model", o.model), zap.String("expected", expectedLabel))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("oracle panicked", zap.Any("panic", r))
			verdict = Sentinel()
		}
	}()

	imgB64 := StripDataURL(image)
	imgBytes, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil || len(imgBytes) == 0 {
		logger.Warn("invalid image payload", zap.Error(err))
		return Sentinel()
	}

	key := CacheKey(imgBytes, expectedLabel)
	if v, ok := o.cached(ctx, key); ok {
		logger.Debug("verdict cache hit", zap.String("key", key))
		return v
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := o.client.ClassifyImage(ctx, o.model, BuildPrompt(expectedLabel), imgB64)
	if err != nil {
		logger.Error("vision backend failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return Sentinel()
	}

	v, err := ParseVerdict(raw)
	if err != nil {
		logger.Error("unusable model response", zap.Error(err), zap.String("raw", truncate(raw, 200)))
		return Sentinel()
	}

	logger.Info("verdict",
		zap.String("label", v.Label),
		zap.Float64("confidence", v.Confidence),
		zap.Bool("correct", v.IsCorrect),
		zap.Int("regions", len(v.ConfusingRegions)),
		zap.Duration("elapsed", time.Since(start)))

	o.store(ctx, key, v)
	return v
}

// Probe checks that the model can see images at all
func (o *Oracle) Probe(ctx context.Context, image string) (string, error) {
	return o.client.SimpleQuery(ctx, o.model, SimpleTestPrompt, StripDataURL(image))
}

func (o *Oracle) cached(ctx context.Context, key string) (types.Verdict, bool) {
	if o.cache == nil {
		return types.Verdict{}, false
	}
	raw, err := o.cache.Get(ctx, key)
	if err != nil {
		return types.Verdict{}, false
	}
	var v types.Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		o.logger.Warn("failed to decode cached verdict", zap.String("key", key), zap.Error(err))
		return types.Verdict{}, false
	}
	return v, true
}

func (o *Oracle) store(ctx context.Context, key string, v types.Verdict) {
	if o.cache == nil || IsSentinel(v) {
		return
	}
	serialized, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := o.cache.Set(ctx, key, string(serialized), o.cacheTTL); err != nil {
		o.logger.Warn("failed to cache verdict", zap.String("key", key), zap.Error(err))
	}
}

// CacheKey derives the verdict cache key from the exported bytes and label
func CacheKey(image []byte, expectedLabel string) string {
	h := sha1.New()
	h.Write(image)
	h.Write([]byte{0})
	h.Write([]byte(expectedLabel))
	return "verdict:" + hex.EncodeToString(h.Sum(nil))
}

// StripDataURL returns the base64 payload of a data: URL, or s unchanged
func StripDataURL(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
