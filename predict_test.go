package tasting

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeSystem is a trivial System that tags every token OK.
type fakeSystem struct {
	path string
}

func (s *fakeSystem) Predict(ctx context.Context, sourceTexts, targetTexts []string) (Prediction, error) {
	pred := Prediction{}
	for _, target := range targetTexts {
		tokens := SplitTokens(target)
		tags := make([]string, len(tokens))
		probs := make([]float64, len(tokens))
		for i := range tokens {
			tags[i] = TagOK
		}
		pred.TargetTags = append(pred.TargetTags, tags)
		pred.TargetBADProbabilities = append(pred.TargetBADProbabilities, probs)
	}
	return pred, nil
}

func newStoreFixture(t *testing.T) (*SystemStore, string, *atomic.Int64) {
	t.Helper()

	modelPath := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(modelPath, []byte("weights"), 0644); err != nil {
		t.Fatal(err)
	}

	var loads atomic.Int64
	loader := func(ctx context.Context, path string) (System, error) {
		loads.Add(1)
		return &fakeSystem{path: path}, nil
	}

	cache := newTestCache(t, &erroringClient{})
	store, err := NewSystemStore(cache, loader)
	if err != nil {
		t.Fatalf("NewSystemStore() error = %v", err)
	}
	return store, modelPath, &loads
}

func TestSystemStoreMemoizes(t *testing.T) {
	store, modelPath, loads := newStoreFixture(t)

	first, err := store.Load(context.Background(), modelPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	second, err := store.Load(context.Background(), modelPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if first != second {
		t.Error("Load() returned different instances for the same reference")
	}
	if n := loads.Load(); n != 1 {
		t.Errorf("loader called %d times, want 1", n)
	}

	pred, err := first.Predict(context.Background(), []string{"hello"}, []string{"hallo welt"})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(pred.TargetTags[0]) != 2 {
		t.Errorf("got %d target tags, want 2", len(pred.TargetTags[0]))
	}
}

func TestSystemStoreConcurrentLoad(t *testing.T) {
	store, modelPath, loads := newStoreFixture(t)

	const workers = 16
	systems := make([]System, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sys, err := store.Load(context.Background(), modelPath)
			if err != nil {
				t.Errorf("worker %d: Load() error = %v", i, err)
				return
			}
			systems[i] = sys
		}(i)
	}
	wg.Wait()

	if n := loads.Load(); n != 1 {
		t.Errorf("loader called %d times by %d concurrent callers, want 1", n, workers)
	}
	for i := 1; i < workers; i++ {
		if systems[i] != systems[0] {
			t.Errorf("worker %d received a different instance", i)
		}
	}
}

func TestSystemStoreInvalidate(t *testing.T) {
	store, modelPath, loads := newStoreFixture(t)

	if _, err := store.Load(context.Background(), modelPath); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	store.Invalidate(modelPath)
	if _, err := store.Load(context.Background(), modelPath); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if n := loads.Load(); n != 2 {
		t.Errorf("loader called %d times after Invalidate, want 2", n)
	}

	store.Clear()
	if _, err := store.Load(context.Background(), modelPath); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if n := loads.Load(); n != 3 {
		t.Errorf("loader called %d times after Clear, want 3", n)
	}
}

func TestSystemStoreLoadError(t *testing.T) {
	cache := newTestCache(t, &erroringClient{})
	wantErr := errors.New("model runtime exploded")
	loader := func(ctx context.Context, path string) (System, error) {
		return nil, wantErr
	}
	store, err := NewSystemStore(cache, loader)
	if err != nil {
		t.Fatal(err)
	}

	modelPath := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(modelPath, []byte("weights"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load(context.Background(), modelPath); !errors.Is(err, wantErr) {
		t.Errorf("Load() error = %v, want loader error", err)
	}

	// Failed loads are not memoized.
	if _, err := store.Load(context.Background(), modelPath); !errors.Is(err, wantErr) {
		t.Errorf("second Load() error = %v, want loader error", err)
	}
}

func TestNewSystemStoreValidation(t *testing.T) {
	cache := newTestCache(t, &erroringClient{})
	loader := func(ctx context.Context, path string) (System, error) { return &fakeSystem{}, nil }

	if _, err := NewSystemStore(nil, loader); err == nil {
		t.Error("NewSystemStore(nil cache) should fail")
	}
	if _, err := NewSystemStore(cache, nil); err == nil {
		t.Error("NewSystemStore(nil loader) should fail")
	}
}
