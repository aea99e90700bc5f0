package diskstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mrengine/internal/mergesort"
)

// fileRunStore creates and reopens the run files used during one
// partition's external sort. Run files live under dir and are named
// run-<n>.tmp; Remove deletes every run file it created unless keep is
// set (the "retained only if a debug flag is set" exception in spec.md
// §4.5).
type fileRunStore[K comparable, V any] struct {
	dir  string
	keep bool

	mu    sync.Mutex
	paths []string
}

func newFileRunStore[K comparable, V any](dir string, keep bool) *fileRunStore[K, V] {
	return &fileRunStore[K, V]{dir: dir, keep: keep}
}

func (s *fileRunStore[K, V]) NewRun() (mergesort.Sink[K, V], error) {
	s.mu.Lock()
	path := filepath.Join(s.dir, fmt.Sprintf("run-%d.tmp", len(s.paths)))
	s.paths = append(s.paths, path)
	s.mu.Unlock()

	return newFileWriter[K, V](path)
}

func (s *fileRunStore[K, V]) OpenRuns() ([]mergesort.Source[K, V], error) {
	s.mu.Lock()
	paths := append([]string(nil), s.paths...)
	s.mu.Unlock()

	sources := make([]mergesort.Source[K, V], 0, len(paths))
	for _, p := range paths {
		r, err := newFileReader[K, V](p)
		if err != nil {
			for _, opened := range sources {
				opened.Close()
			}
			return nil, err
		}
		sources = append(sources, r)
	}
	return sources, nil
}

func (s *fileRunStore[K, V]) Remove() error {
	if s.keep {
		return nil
	}
	s.mu.Lock()
	paths := append([]string(nil), s.paths...)
	s.paths = nil
	s.mu.Unlock()

	var firstErr error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
