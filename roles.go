package mrengine

import "context"

// MapTask is the user contract for the map phase (spec.md §4.2). The
// engine materializes a split's bytes into a contiguous read-only buffer
// and invokes Map once per split; Map must be pure with respect to any
// state outside of emit.
type MapTask[K comparable, V any] interface {
	Map(ctx context.Context, data []byte, emit func(K, V) error) error
}

// ReduceTask is the user contract for the reduce phase (spec.md §4.7).
// values streams the sorted, grouped values for key in sort-stable order;
// OV is the type of the values the reduce task emits.
type ReduceTask[K comparable, V any, OV any] interface {
	Reduce(ctx context.Context, key K, values ValueIterator[V], emit func(K, OV) error) error
}

// Combiner is the optional user contract for map-side pre-aggregation
// (spec.md §4.3). Combine must be associative and commutative with
// respect to the paired ReduceTask; the engine may call it zero or more
// times per key group.
type Combiner[K comparable, V any] interface {
	Combine(key K, values []V) ([]V, error)
}

// NullCombiner is the identity combiner: it satisfies the Combiner
// contract without collapsing anything, per spec.md §4.3/§4.6.
type NullCombiner[K comparable, V any] struct{}

func (NullCombiner[K, V]) Combine(_ K, values []V) ([]V, error) {
	return values, nil
}

// ValueIterator streams the values of one key group, letting a disk-backed
// IntermediateStore hand a ReduceTask a lazily-read sequence instead of an
// in-memory slice.
type ValueIterator[V any] interface {
	// Next advances to the next value and reports whether one was
	// available.
	Next() (V, bool)
	// Err returns any error encountered while streaming; callers should
	// check it once Next returns false.
	Err() error
}

// SliceValueIterator adapts an in-memory slice to ValueIterator, used by
// the in-memory IntermediateStore.
type SliceValueIterator[V any] struct {
	values []V
	pos    int
}

// NewSliceValueIterator wraps values for streaming via ValueIterator.
func NewSliceValueIterator[V any](values []V) *SliceValueIterator[V] {
	return &SliceValueIterator[V]{values: values}
}

func (it *SliceValueIterator[V]) Next() (V, bool) {
	if it.pos >= len(it.values) {
		var zero V
		return zero, false
	}
	v := it.values[it.pos]
	it.pos++
	return v, true
}

func (it *SliceValueIterator[V]) Err() error { return nil }

// Drain collects every remaining value from it into a slice. Useful in
// combiners and tests that want the whole group at once.
func Drain[V any](it ValueIterator[V]) ([]V, error) {
	var out []V
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out, it.Err()
}
