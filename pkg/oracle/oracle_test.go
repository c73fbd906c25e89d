package oracle

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/menta2k/edge-case-lab/internal/cache"
)

// stubClient is a VisionClient with a canned reply
type stubClient struct {
	mu      sync.Mutex
	reply   string
	err     error
	panicOn bool
	calls   int
	prompt  string
	image   string
}

func (s *stubClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return "a cat", nil
}

func (s *stubClient) ClassifyImage(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.prompt = prompt
	s.image = imgB64
	if s.panicOn {
		panic("backend exploded")
	}
	return s.reply, s.err
}

var testImage = base64.StdEncoding.EncodeToString([]byte("jpeg bytes"))

const goodReply = `{"label":"cat","confidence":87,"reasoning":"Pointy ears are visible.","isCorrect":true,
"confusingRegions":[{"x":10,"y":20,"width":30,"height":40,"reason":"blurry tail"}]}`

func TestAnalyzeSuccess(t *testing.T) {
	stub := &stubClient{reply: goodReply}
	o := New(stub, "llava")

	v := o.Analyze(context.Background(), testImage, "Cat")

	if v.Label != "cat" || v.Confidence != 87 || !v.IsCorrect {
		t.Errorf("unexpected verdict %+v", v)
	}
	if len(v.ConfusingRegions) != 1 || v.ConfusingRegions[0].Reason != "blurry tail" {
		t.Errorf("unexpected regions %+v", v.ConfusingRegions)
	}
	if !strings.Contains(stub.prompt, `"Cat"`) {
		t.Error("prompt should name the expected label")
	}
	if stub.image != testImage {
		t.Error("image should be passed through as raw base64")
	}
}

func TestAnalyzeStripsDataURL(t *testing.T) {
	stub := &stubClient{reply: goodReply}
	New(stub, "llava").Analyze(context.Background(), "data:image/jpeg;base64,"+testImage, "Cat")

	if stub.image != testImage {
		t.Errorf("data URL prefix should be stripped, got %q", stub.image)
	}
}

func TestAnalyzeFailuresReturnSentinel(t *testing.T) {
	tests := []struct {
		name  string
		stub  *stubClient
		image string
	}{
		{"transport error", &stubClient{err: errors.New("connection refused")}, testImage},
		{"not json", &stubClient{reply: "I think it is a cat"}, testImage},
		{"missing isCorrect", &stubClient{reply: `{"label":"cat","confidence":50,"reasoning":"ok"}`}, testImage},
		{"wrong type", &stubClient{reply: `{"label":"cat","confidence":"high","reasoning":"ok","isCorrect":true}`}, testImage},
		{"empty label", &stubClient{reply: `{"label":" ","confidence":5,"reasoning":"ok","isCorrect":false}`}, testImage},
		{"panic", &stubClient{panicOn: true}, testImage},
		{"bad base64", &stubClient{reply: goodReply}, "%%%"},
		{"empty image", &stubClient{reply: goodReply}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(tt.stub, "llava").Analyze(context.Background(), tt.image, "Cat")
			if !IsSentinel(v) {
				t.Errorf("expected sentinel, got %+v", v)
			}
			if v.Label != "Error" || v.Reasoning != "The AI is too confused to respond!" {
				t.Errorf("sentinel has wrong content: %+v", v)
			}
		})
	}
}

func TestAnalyzeLogsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	o := New(&stubClient{err: errors.New("timeout")}, "llava", WithLogger(zap.New(core)))

	o.Analyze(context.Background(), testImage, "Cat")

	if logs.FilterMessage("vision backend failed").Len() != 1 {
		t.Errorf("expected one failure log, got %v", logs.All())
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	blocking := &blockingClient{}
	o := New(blocking, "llava", WithTimeout(20*time.Millisecond))

	v := o.Analyze(context.Background(), testImage, "Cat")
	if !IsSentinel(v) {
		t.Errorf("timed out call should return sentinel, got %+v", v)
	}
}

type blockingClient struct{}

func (blockingClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingClient) ClassifyImage(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestAnalyzeCache(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	stub := &stubClient{reply: goodReply}
	o := New(stub, "llava", WithCache(mem, time.Minute))

	first := o.Analyze(ctx, testImage, "Cat")
	second := o.Analyze(ctx, "data:image/jpeg;base64,"+testImage, "Cat")

	if stub.calls != 1 {
		t.Errorf("second call should hit the cache, backend called %d times", stub.calls)
	}
	if first.Label != second.Label || len(second.ConfusingRegions) != 1 {
		t.Errorf("cached verdict differs: %+v vs %+v", first, second)
	}

	// a different expected label is a different question
	o.Analyze(ctx, testImage, "Dog")
	if stub.calls != 2 {
		t.Errorf("label should be part of the cache key, calls=%d", stub.calls)
	}
}

func TestAnalyzeDoesNotCacheSentinel(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	stub := &stubClient{err: errors.New("down")}
	o := New(stub, "llava", WithCache(mem, 0))

	o.Analyze(ctx, testImage, "Cat")
	if mem.Len() != 0 {
		t.Error("sentinel verdicts must not be cached")
	}

	stub.err = nil
	stub.reply = goodReply
	if v := o.Analyze(ctx, testImage, "Cat"); IsSentinel(v) {
		t.Error("recovered backend should produce a real verdict")
	}
}

func TestProbe(t *testing.T) {
	got, err := New(&stubClient{}, "llava").Probe(context.Background(), testImage)
	if err != nil || got != "a cat" {
		t.Errorf("Probe = %q, %v", got, err)
	}
}

func TestCacheKey(t *testing.T) {
	a := CacheKey([]byte("img"), "Cat")
	if !strings.HasPrefix(a, "verdict:") || len(a) != len("verdict:")+40 {
		t.Errorf("unexpected key %q", a)
	}
	if a != CacheKey([]byte("img"), "Cat") {
		t.Error("key should be deterministic")
	}
	if a == CacheKey([]byte("img"), "Dog") || a == CacheKey([]byte("im"), "gCat") {
		t.Error("distinct inputs should give distinct keys")
	}
}

func TestStripDataURL(t *testing.T) {
	tests := map[string]string{
		"data:image/jpeg;base64,QUJD": "QUJD",
		"QUJD":                        "QUJD",
		" data:image/png;base64,eA== ": "eA==",
	}
	for in, want := range tests {
		if got := StripDataURL(in); got != want {
			t.Errorf("StripDataURL(%q) = %q, want %q", in, got, want)
		}
	}
}
