package tasting

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Prediction holds the output of a quality estimation system for a batch
// of sentence pairs. Slices are indexed by pair; per-token slices are
// aligned with the whitespace tokens of the corresponding sentence.
type Prediction struct {
	// TargetTags are the predicted OK/BAD labels for each target token.
	TargetTags [][]string

	// TargetBADProbabilities are the per-token probabilities of BAD for
	// the target side.
	TargetBADProbabilities [][]float64

	// SourceTags are the predicted labels for each source token.
	// Nil when the system does not predict the source side.
	SourceTags [][]string

	// SourceBADProbabilities are the per-token probabilities of BAD for
	// the source side. Nil when not predicted.
	SourceBADProbabilities [][]float64

	// SentenceHTER are the predicted sentence-level HTER scores.
	// Nil when the system does not predict sentence scores.
	SentenceHTER []float64
}

// System is a loaded quality estimation model.
// Implementations wrap an external model runtime; this package only
// consumes predictions.
type System interface {
	// Predict estimates the quality of targetTexts as translations of
	// sourceTexts. Both slices must have the same length.
	Predict(ctx context.Context, sourceTexts, targetTexts []string) (Prediction, error)
}

// SystemLoader loads a System from a local filesystem path, typically
// one produced by Cache.Resolve.
type SystemLoader func(ctx context.Context, path string) (System, error)

// SystemStore memoizes loaded systems by artifact reference for the
// lifetime of the process. Concurrent loads of the same reference are
// collapsed into a single resolve+load. Safe for concurrent use.
type SystemStore struct {
	// cache resolves artifact references to local paths.
	cache *Cache

	// loader loads a System from a resolved path.
	loader SystemLoader

	// resolveOpts are applied to every Resolve call.
	resolveOpts []ResolveOption

	// group collapses concurrent loads of the same reference.
	group singleflight.Group

	// mu protects systems.
	mu sync.RWMutex

	// systems maps reference → loaded system.
	systems map[string]System
}

// NewSystemStore creates a SystemStore. The resolve options are applied
// to every artifact resolution; WithResume() is a sensible default for
// large model downloads.
func NewSystemStore(cache *Cache, loader SystemLoader, opts ...ResolveOption) (*SystemStore, error) {
	if cache == nil {
		return nil, errors.New("tasting: cache is required")
	}
	if loader == nil {
		return nil, errors.New("tasting: loader is required")
	}
	return &SystemStore{
		cache:       cache,
		loader:      loader,
		resolveOpts: opts,
		systems:     make(map[string]System),
	}, nil
}

// Load returns the system for the given artifact reference, resolving
// and loading it on first use. Later calls with the same reference
// return the memoized system until Invalidate or Clear.
func (s *SystemStore) Load(ctx context.Context, ref string) (System, error) {
	s.mu.RLock()
	sys, ok := s.systems[ref]
	s.mu.RUnlock()
	if ok {
		return sys, nil
	}

	v, err, _ := s.group.Do(ref, func() (any, error) {
		// Re-check under the flight: a previous flight may have stored
		// the system between our read and this call.
		s.mu.RLock()
		sys, ok := s.systems[ref]
		s.mu.RUnlock()
		if ok {
			return sys, nil
		}

		path, err := s.cache.Resolve(ctx, ref, s.resolveOpts...)
		if err != nil {
			return nil, err
		}

		loaded, err := s.loader(ctx, path)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.systems[ref] = loaded
		s.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(System), nil
}

// Invalidate drops the memoized system for a reference, forcing the next
// Load to resolve and load again.
func (s *SystemStore) Invalidate(ref string) {
	s.mu.Lock()
	delete(s.systems, ref)
	s.mu.Unlock()
}

// Clear drops all memoized systems.
func (s *SystemStore) Clear() {
	s.mu.Lock()
	s.systems = make(map[string]System)
	s.mu.Unlock()
}
