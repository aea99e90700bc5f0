package diskstore

import (
	"fmt"

	"mrengine"
	"mrengine/internal/mergesort"
)

// groupingSink wraps a raw record sink and applies combiner across runs
// of consecutive equal keys as they stream past during the k-way merge,
// per spec.md §4.4's "combiner called again at end-of-map before
// shuffle". Key identity is KeyOrdering.Compare == 0, matching the
// case-insensitive equality contract for text keys, not Go's native ==.
type groupingSink[K comparable, V any] struct {
	dst      *fileWriter[K, V]
	ordering mrengine.KeyOrdering[K]
	combiner mrengine.Combiner[K, V]

	haveKey bool
	key     K
	values  []V
}

func (g *groupingSink[K, V]) Write(rec mergesort.Record[K, V]) error {
	if g.haveKey && g.ordering.Compare(g.key, rec.Key) == 0 {
		g.values = append(g.values, rec.Value)
		return nil
	}
	if g.haveKey {
		if err := g.flush(); err != nil {
			return err
		}
	}
	g.haveKey = true
	g.key = rec.Key
	g.values = append(g.values[:0], rec.Value)
	return nil
}

func (g *groupingSink[K, V]) flush() error {
	collapsed, err := g.combiner.Combine(g.key, g.values)
	if err != nil {
		return fmt.Errorf("diskstore: combine during shuffle: %w", err)
	}
	for _, v := range collapsed {
		if err := g.dst.Write(mergesort.Record[K, V]{Key: g.key, Value: v}); err != nil {
			return err
		}
	}
	return nil
}

func (g *groupingSink[K, V]) Close() error {
	if g.haveKey {
		if err := g.flush(); err != nil {
			g.dst.Close()
			return err
		}
		g.haveKey = false
	}
	return g.dst.Close()
}

// groupReader streams KeyGroups out of an already sorted, already
// combined merged file by buffering one key group at a time: it reads
// ahead by one record to detect where a group ends.
type groupReader[K comparable, V any] struct {
	r        *fileReader[K, V]
	ordering mrengine.KeyOrdering[K]

	pending    *mergesort.Record[K, V]
	pendingErr error
}

func (g *groupReader[K, V]) Next() (mrengine.KeyGroup[K, V], bool) {
	if g.pendingErr != nil {
		return mrengine.KeyGroup[K, V]{}, false
	}

	first := g.pending
	if first == nil {
		rec, ok, err := g.r.Next()
		if err != nil {
			g.pendingErr = err
			g.r.Close()
			return mrengine.KeyGroup[K, V]{}, false
		}
		if !ok {
			g.r.Close()
			return mrengine.KeyGroup[K, V]{}, false
		}
		first = &rec
	}
	g.pending = nil

	values := []V{first.Value}
	for {
		rec, ok, err := g.r.Next()
		if err != nil {
			g.pendingErr = err
			break
		}
		if !ok {
			break
		}
		if g.ordering.Compare(first.Key, rec.Key) != 0 {
			g.pending = &rec
			break
		}
		values = append(values, rec.Value)
	}

	return mrengine.KeyGroup[K, V]{
		Key:    first.Key,
		Values: mrengine.NewSliceValueIterator(values),
	}, true
}

func (g *groupReader[K, V]) Err() error {
	return g.pendingErr
}
