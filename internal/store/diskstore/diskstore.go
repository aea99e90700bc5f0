// Package diskstore is the disk-backed IntermediateStore variant spec.md
// §4.4 calls for: each partition spills inserts to an append-only file of
// length-prefixed records, Combine runs them through the package's
// external merge-sort (mergesort.GenerateRuns), and Shuffle k-way merges
// the resulting runs into one sorted, combined stream per partition.
package diskstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mrengine"
	"mrengine/internal/mergesort"
)

// Config configures a disk-backed Store.
type Config[K comparable, V any] struct {
	// Dir is the scratch directory the store spills and sorts into;
	// callers create and remove it around the job's lifetime (see
	// internal/platform.TempDir).
	Dir string

	NumPartitions int
	Ordering      mrengine.KeyOrdering[K]
	Hasher        mrengine.KeyHasher[K]

	// RunSize bounds how many records are sorted in memory before a run
	// is spilled, per spec.md §4.5's "run_size chosen so a run fits in a
	// per-worker memory budget".
	RunSize int

	// KeepTempFiles retains run/spill files on disk instead of deleting
	// them, the debug-flag exception in spec.md §4.5.
	KeepTempFiles bool
}

type partitionState[K comparable, V any] struct {
	mu sync.Mutex

	spillPath   string
	spillWriter *fileWriter[K, V]

	runStore   *fileRunStore[K, V]
	runsReady  bool
	shuffled   bool
	mergedPath string
	combiner   mrengine.Combiner[K, V]
}

// Store is the disk-backed IntermediateStore.
type Store[K comparable, V any] struct {
	cfg        Config[K, V]
	partitions []*partitionState[K, V]
}

// New creates a disk-backed Store, opening one spill file per partition
// under cfg.Dir.
func New[K comparable, V any](cfg Config[K, V]) (*Store[K, V], error) {
	if cfg.RunSize <= 0 {
		cfg.RunSize = 100000
	}
	parts := make([]*partitionState[K, V], cfg.NumPartitions)
	for i := range parts {
		partDir := filepath.Join(cfg.Dir, fmt.Sprintf("part-%d", i))
		if err := os.MkdirAll(partDir, 0o755); err != nil {
			return nil, fmt.Errorf("diskstore: create partition dir: %w", err)
		}
		spillPath := filepath.Join(partDir, "spill.tmp")
		w, err := newFileWriter[K, V](spillPath)
		if err != nil {
			return nil, fmt.Errorf("diskstore: open spill file: %w", err)
		}
		parts[i] = &partitionState[K, V]{
			spillPath:   spillPath,
			spillWriter: w,
			runStore:    newFileRunStore[K, V](partDir, cfg.KeepTempFiles),
		}
	}
	return &Store[K, V]{cfg: cfg, partitions: parts}, nil
}

func (s *Store[K, V]) NumPartitions() int { return len(s.partitions) }

func (s *Store[K, V]) part(i int) (*partitionState[K, V], error) {
	if i < 0 || i >= len(s.partitions) {
		return nil, fmt.Errorf("diskstore: partition %d out of range [0,%d)", i, len(s.partitions))
	}
	return s.partitions[i], nil
}

// Insert appends a record to the partition's spill file. Unlike the
// in-memory store, the disk store does not opportunistically combine on
// insert: doing so would require re-reading the file it just wrote.
// Combine is always called once, at the map/shuffle boundary.
func (s *Store[K, V]) Insert(partitionIndex int, key K, value V, _ mrengine.Combiner[K, V]) error {
	p, err := s.part(partitionIndex)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.spillWriter == nil {
		return fmt.Errorf("diskstore: partition %d inserted into after combine", partitionIndex)
	}
	return p.spillWriter.Write(mergesort.Record[K, V]{Key: key, Value: value})
}

func (s *Store[K, V]) Combine(ctx context.Context, partitionIndex int, combiner mrengine.Combiner[K, V]) error {
	p, err := s.part(partitionIndex)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.spillWriter == nil {
		return fmt.Errorf("diskstore: partition %d combined twice", partitionIndex)
	}
	if err := p.spillWriter.Close(); err != nil {
		return fmt.Errorf("diskstore: flush spill file: %w", err)
	}
	p.spillWriter = nil

	src, err := newFileReader[K, V](p.spillPath)
	if err != nil {
		return fmt.Errorf("diskstore: reopen spill file: %w", err)
	}

	_, err = mergesort.GenerateRuns[K, V](src, s.cfg.RunSize, orderingAdapter[K]{s.cfg.Ordering}, p.runStore)
	src.Close()
	if err != nil {
		return fmt.Errorf("diskstore: generate runs: %w", err)
	}

	if !s.cfg.KeepTempFiles {
		os.Remove(p.spillPath)
	}

	p.runsReady = true
	s.combinerByPartition(partitionIndex, combiner)
	return nil
}

// combinerByPartition remembers which combiner to apply while merging a
// partition's runs; Shuffle needs it and the IntermediateStore contract
// doesn't pass it again.
func (s *Store[K, V]) combinerByPartition(i int, combiner mrengine.Combiner[K, V]) {
	if combiner == nil {
		combiner = mrengine.NullCombiner[K, V]{}
	}
	s.partitions[i].combiner = combiner
}

func (s *Store[K, V]) Shuffle(ctx context.Context, partitionIndex int) error {
	p, err := s.part(partitionIndex)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.runsReady {
		return fmt.Errorf("diskstore: partition %d shuffled before combine", partitionIndex)
	}
	if p.shuffled {
		return nil
	}

	runs, err := p.runStore.OpenRuns()
	if err != nil {
		return fmt.Errorf("diskstore: open runs: %w", err)
	}

	mergedPath := filepath.Join(filepath.Dir(p.spillPath), "merged.tmp")
	dst, err := newFileWriter[K, V](mergedPath)
	if err != nil {
		return fmt.Errorf("diskstore: open merged file: %w", err)
	}

	gs := &groupingSink[K, V]{
		dst:      dst,
		ordering: s.cfg.Ordering,
		combiner: p.combiner,
	}
	if err := mergesort.KWayMerge[K, V](runs, orderingAdapter[K]{s.cfg.Ordering}, gs); err != nil {
		dst.Close()
		return fmt.Errorf("diskstore: k-way merge: %w", err)
	}
	if err := gs.Close(); err != nil {
		return fmt.Errorf("diskstore: finalize merged file: %w", err)
	}

	if err := p.runStore.Remove(); err != nil {
		return fmt.Errorf("diskstore: remove run files: %w", err)
	}

	p.mergedPath = mergedPath
	p.shuffled = true
	return nil
}

func (s *Store[K, V]) Iterate(partitionIndex int) (mrengine.GroupIterator[K, V], error) {
	p, err := s.part(partitionIndex)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.shuffled {
		return nil, fmt.Errorf("diskstore: partition %d iterated before shuffle", partitionIndex)
	}

	r, err := newFileReader[K, V](p.mergedPath)
	if err != nil {
		return nil, fmt.Errorf("diskstore: open merged file: %w", err)
	}
	return &groupReader[K, V]{r: r, ordering: s.cfg.Ordering}, nil
}

func (s *Store[K, V]) Close() error {
	var firstErr error
	for _, p := range s.partitions {
		p.mu.Lock()
		if p.spillWriter != nil {
			p.spillWriter.Close()
			p.spillWriter = nil
		}
		if !s.cfg.KeepTempFiles {
			if p.mergedPath != "" {
				os.Remove(p.mergedPath)
			}
			os.Remove(p.spillPath)
		}
		p.mu.Unlock()
	}
	return firstErr
}

// orderingAdapter lets mrengine.KeyOrdering satisfy mergesort.Ordering
// without mergesort importing mrengine.
type orderingAdapter[K comparable] struct {
	inner mrengine.KeyOrdering[K]
}

func (o orderingAdapter[K]) Compare(a, b K) int { return o.inner.Compare(a, b) }
