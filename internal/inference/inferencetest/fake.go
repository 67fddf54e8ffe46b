// Package inferencetest provides an in-memory inference engine for tests.
package inferencetest

import (
	"context"
	"image"
	"sync"

	"github.com/dunamismax/cutout/internal/imaging"
	"github.com/dunamismax/cutout/internal/inference"
)

// RemoveFunc replaces the default identity behaviour of fake sessions.
type RemoveFunc func(ctx context.Context, img *image.NRGBA, opts inference.Options) (image.Image, error)

// Engine counts constructions and calls. The zero value is ready to use.
type Engine struct {
	// NewErr, when set, fails every construction.
	NewErr error
	// Remove overrides what sessions return.
	Remove RemoveFunc
	// Gate, when non-nil, blocks constructions until it is closed.
	Gate chan struct{}

	mu            sync.Mutex
	constructions map[string]int
	calls         []Call
	sessions      []*Session
}

type Call struct {
	Model   string
	Bounds  image.Rectangle
	Options inference.Options
}

func (e *Engine) NewSession(_ context.Context, model string) (inference.Session, error) {
	if e.Gate != nil {
		<-e.Gate
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.constructions == nil {
		e.constructions = make(map[string]int)
	}
	e.constructions[model]++
	if e.NewErr != nil {
		return nil, e.NewErr
	}

	s := &Session{engine: e, model: model}
	e.sessions = append(e.sessions, s)
	return s, nil
}

func (e *Engine) Constructions(model string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.constructions[model]
}

func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Session(nil), e.sessions...)
}

type Session struct {
	engine *Engine
	model  string

	mu     sync.Mutex
	closed bool
}

func (s *Session) Model() string {
	return s.model
}

func (s *Session) Remove(ctx context.Context, img *image.NRGBA, opts inference.Options) (image.Image, error) {
	s.engine.mu.Lock()
	s.engine.calls = append(s.engine.calls, Call{Model: s.model, Bounds: img.Bounds(), Options: opts})
	fn := s.engine.Remove
	s.engine.mu.Unlock()

	if fn != nil {
		return fn(ctx, img, opts)
	}
	return imaging.ToNRGBA(img), nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
