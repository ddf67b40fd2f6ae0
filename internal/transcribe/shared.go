package transcribe

import (
	"context"
	"errors"
	"sync"
)

// SharedLoader keeps one engine per tier for the lifetime of an embedding
// process. Engines it hands out ignore Close and serialize Transcribe calls;
// call (*SharedLoader).Close to release them. The command does not use it:
// by default every run loads its own engine.
type SharedLoader struct {
	loader Loader

	mu      sync.Mutex
	engines map[ModelTier]*sharedEngine
	closed  bool
}

// NewSharedLoader wraps loader so each tier is loaded at most once.
func NewSharedLoader(loader Loader) *SharedLoader {
	return &SharedLoader{
		loader:  loader,
		engines: make(map[ModelTier]*sharedEngine),
	}
}

// Load returns the cached engine for tier, loading it on first use. Failed
// loads are not cached. A zero tier shares the DefaultTier engine.
func (s *SharedLoader) Load(ctx context.Context, tier ModelTier) (Engine, error) {
	tier = tier.orDefault()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("transcribe: shared loader is closed")
	}
	if e, ok := s.engines[tier]; ok {
		return e, nil
	}

	engine, err := s.loader.Load(ctx, tier)
	if err != nil {
		return nil, err
	}
	e := &sharedEngine{engine: engine}
	s.engines[tier] = e
	return e, nil
}

// Close releases every cached engine. Further Load calls fail.
func (s *SharedLoader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	var errs []error
	for tier, e := range s.engines {
		e.mu.Lock()
		e.released = true
		if err := e.engine.Close(); err != nil {
			errs = append(errs, err)
		}
		e.mu.Unlock()
		delete(s.engines, tier)
	}
	return errors.Join(errs...)
}

// errEngineReleased is returned by handles used after their SharedLoader closed.
var errEngineReleased = errors.New("transcribe: engine released by closed shared loader")

// sharedEngine serializes calls on an engine owned by a SharedLoader.
type sharedEngine struct {
	mu       sync.Mutex
	engine   Engine
	released bool
}

func (e *sharedEngine) Transcribe(ctx context.Context, ref AudioReference, opts DecodingOptions) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return Result{}, errEngineReleased
	}
	return e.engine.Transcribe(ctx, ref, opts)
}

// Close is a no-op; the SharedLoader owns the engine.
func (e *sharedEngine) Close() error { return nil }
