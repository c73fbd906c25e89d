package processing

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
)

// ErrSourcePending is returned while a source image is still loading
var ErrSourcePending = errors.New("source image is still loading")

// ErrSourceFailed is returned when a source image could not be loaded or decoded
var ErrSourceFailed = errors.New("source image failed to load")

// Source is a subject image that loads asynchronously.
// It starts pending and settles exactly once, as ready or failed.
type Source struct {
	Ref string

	mu   sync.RWMutex
	img  image.Image
	err  error
	done chan struct{}
}

// NewSource returns a pending source for ref
func NewSource(ref string) *Source {
	return &Source{Ref: ref, done: make(chan struct{})}
}

// ReadySource returns a source that is already decoded
func ReadySource(ref string, img image.Image) *Source {
	s := NewSource(ref)
	s.Resolve(img)
	return s
}

// Resolve settles the source with a decoded image
func (s *Source) Resolve(img image.Image) {
	if img == nil {
		s.Fail(errors.New("nil image"))
		return
	}
	s.settle(img, nil)
}

// Fail settles the source with a load error
func (s *Source) Fail(err error) {
	s.settle(nil, err)
}

func (s *Source) settle(img image.Image, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	s.img, s.err = img, err
	close(s.done)
}

// Image returns the decoded image, ErrSourcePending or an error wrapping ErrSourceFailed
func (s *Source) Image() (image.Image, error) {
	select {
	case <-s.done:
	default:
		return nil, ErrSourcePending
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceFailed, s.Ref, s.err)
	}
	return s.img, nil
}

// Wait blocks until the source settles or ctx ends
func (s *Source) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		_, err := s.Image()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load fills the source from ref using the processor
func (p *Processor) Load(ctx context.Context, s *Source) {
	img, err := p.LoadImageSmart(ctx, s.Ref)
	if err != nil {
		s.Fail(err)
		return
	}
	s.Resolve(img)
}
