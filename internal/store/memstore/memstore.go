// Package memstore is the in-memory IntermediateStore variant spec.md
// §4.4 calls for: a per-partition ordered container keyed by MapKey with
// value-lists, constant-time amortized insert, and a Combine step that
// sorts and compacts.
//
// Key identity is governed by the job's KeyOrdering, not Go's built-in
// map equality: spec.md §3 requires case-insensitive equality for
// byte-slice/text keys (two keys differing only by case are the same
// group), which a plain map[K][]V keyed by Go's native comparison cannot
// express. Partitions are therefore custom hash tables: KeyHasher buckets
// a key, and within a bucket KeyOrdering.Compare resolves collisions
// (including the case-insensitive fold) to find the matching group.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"mrengine"
)

// combineThreshold is how many inserts into a partition trigger an
// opportunistic partial combine pass, per spec.md §4.4's "may invoke the
// combiner if the partition crosses a size/time threshold".
const combineThreshold = 4096

type group[K comparable, V any] struct {
	key    K
	values []V
}

type partition[K comparable, V any] struct {
	mu       sync.Mutex
	buckets  map[uint64][]*group[K, V]
	inserted int
	combined bool
	sorted   []*group[K, V]
}

// find locates key's group in the partition, creating it if create is
// set and none exists. The group's stored key text is fixed at creation
// and never updated by a later Insert that matches under ordering:
// whichever representative a caller inserts first is the one kept, so
// for key types where ordering.Compare can return 0 on unequal byte
// representations (e.g. StringOrdering's case fold), callers that need
// byte-stable output regardless of insertion order — and in particular
// regardless of which CPUParallel worker's split reaches a partition
// first — must emit an already-canonicalized representative themselves,
// the way wordcount.Task.Map lowercases every word before emitting it.
func (p *partition[K, V]) find(ordering mrengine.KeyOrdering[K], hasher mrengine.KeyHasher[K], key K, create bool) *group[K, V] {
	h := hasher.Hash(key)
	for _, g := range p.buckets[h] {
		if ordering.Compare(g.key, key) == 0 {
			return g
		}
	}
	if !create {
		return nil
	}
	g := &group[K, V]{key: key}
	p.buckets[h] = append(p.buckets[h], g)
	return g
}

// Store is the in-memory IntermediateStore.
type Store[K comparable, V any] struct {
	partitions []*partition[K, V]
	ordering   mrengine.KeyOrdering[K]
	hasher     mrengine.KeyHasher[K]
}

// New creates a Store with numPartitions partitions, ordered for Combine
// and Iterate by ordering, and bucketed for Insert by hasher.
func New[K comparable, V any](numPartitions int, ordering mrengine.KeyOrdering[K], hasher mrengine.KeyHasher[K]) *Store[K, V] {
	parts := make([]*partition[K, V], numPartitions)
	for i := range parts {
		parts[i] = &partition[K, V]{buckets: make(map[uint64][]*group[K, V])}
	}
	return &Store[K, V]{partitions: parts, ordering: ordering, hasher: hasher}
}

func (s *Store[K, V]) NumPartitions() int { return len(s.partitions) }

func (s *Store[K, V]) part(i int) (*partition[K, V], error) {
	if i < 0 || i >= len(s.partitions) {
		return nil, fmt.Errorf("memstore: partition %d out of range [0,%d)", i, len(s.partitions))
	}
	return s.partitions[i], nil
}

func (s *Store[K, V]) Insert(partitionIndex int, key K, value V, combiner mrengine.Combiner[K, V]) error {
	p, err := s.part(partitionIndex)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	g := p.find(s.ordering, s.hasher, key, true)
	g.values = append(g.values, value)
	p.inserted++

	if combiner != nil && p.inserted%combineThreshold == 0 {
		for _, bucket := range p.buckets {
			for _, g := range bucket {
				collapsed, err := combiner.Combine(g.key, g.values)
				if err != nil {
					return fmt.Errorf("memstore: opportunistic combine: %w", err)
				}
				g.values = collapsed
			}
		}
	}
	return nil
}

func (s *Store[K, V]) Combine(ctx context.Context, partitionIndex int, combiner mrengine.Combiner[K, V]) error {
	p, err := s.part(partitionIndex)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if combiner == nil {
		combiner = mrengine.NullCombiner[K, V]{}
	}

	var groups []*group[K, V]
	for _, bucket := range p.buckets {
		for _, g := range bucket {
			collapsed, err := combiner.Combine(g.key, g.values)
			if err != nil {
				return fmt.Errorf("memstore: combine: %w", err)
			}
			g.values = collapsed
			groups = append(groups, g)
		}
	}

	insertionSortGroups(groups, s.ordering)

	p.sorted = groups
	p.combined = true
	return nil
}

// Shuffle is a no-op for the in-memory store: Combine already leaves the
// partition sorted and grouped.
func (s *Store[K, V]) Shuffle(ctx context.Context, partitionIndex int) error {
	p, err := s.part(partitionIndex)
	if err != nil {
		return err
	}
	if !p.combined {
		return fmt.Errorf("memstore: partition %d shuffled before combine", partitionIndex)
	}
	return nil
}

func (s *Store[K, V]) Iterate(partitionIndex int) (mrengine.GroupIterator[K, V], error) {
	p, err := s.part(partitionIndex)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.combined {
		return nil, fmt.Errorf("memstore: partition %d iterated before combine/shuffle", partitionIndex)
	}
	return &groupIterator[K, V]{groups: p.sorted}, nil
}

func (s *Store[K, V]) Close() error {
	for _, p := range s.partitions {
		p.mu.Lock()
		p.buckets = nil
		p.sorted = nil
		p.mu.Unlock()
	}
	return nil
}

type groupIterator[K comparable, V any] struct {
	groups []*group[K, V]
	pos    int
}

func (it *groupIterator[K, V]) Next() (mrengine.KeyGroup[K, V], bool) {
	if it.pos >= len(it.groups) {
		return mrengine.KeyGroup[K, V]{}, false
	}
	g := it.groups[it.pos]
	it.pos++
	return mrengine.KeyGroup[K, V]{
		Key:    g.key,
		Values: mrengine.NewSliceValueIterator(g.values),
	}, true
}

func (it *groupIterator[K, V]) Err() error { return nil }

// insertionSortGroups sorts groups ascending by ordering, stably. Per
// partition there is one group per distinct key, which in practice keeps
// this small enough that insertion sort's simplicity outweighs needing
// sort.Slice's closure allocation here.
func insertionSortGroups[K comparable, V any](groups []*group[K, V], ordering mrengine.KeyOrdering[K]) {
	for i := 1; i < len(groups); i++ {
		j := i
		for j > 0 && ordering.Compare(groups[j-1].key, groups[j].key) > 0 {
			groups[j-1], groups[j] = groups[j], groups[j-1]
			j--
		}
	}
}
