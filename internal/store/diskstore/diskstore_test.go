package diskstore

import (
	"context"
	"testing"

	"mrengine"
)

func newTestStore(t *testing.T, numPartitions int) *Store[string, int] {
	t.Helper()
	s, err := New[string, int](Config[string, int]{
		Dir:           t.TempDir(),
		NumPartitions: numPartitions,
		Ordering:      mrengine.StringOrdering{},
		Hasher:        mrengine.StringHasher{},
		RunSize:       4,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertCombineShuffleIterateRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 1)
	data := []struct {
		key   string
		value int
	}{
		{"dog", 1}, {"cat", 1}, {"dog", 1}, {"bird", 1}, {"cat", 1}, {"cat", 1},
	}
	for _, kv := range data {
		if err := s.Insert(0, kv.key, kv.value, nil); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	if err := s.Combine(context.Background(), 0, mrengine.NullCombiner[string, int]{}); err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if err := s.Shuffle(context.Background(), 0); err != nil {
		t.Fatalf("Shuffle: %v", err)
	}

	it, err := s.Iterate(0)
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}

	got := map[string]int{}
	var keys []string
	for g, ok := it.Next(); ok; g, ok = it.Next() {
		values, err := mrengine.Drain(g.Values)
		if err != nil {
			t.Fatalf("Drain: %v", err)
		}
		got[g.Key] = len(values)
		keys = append(keys, g.Key)
	}

	want := map[string]int{"dog": 2, "cat": 3, "bird": 1}
	for k, n := range want {
		if got[k] != n {
			t.Errorf("group %q has %d values, want %d", k, got[k], n)
		}
	}
	for i := 1; i < len(keys); i++ {
		if (mrengine.StringOrdering{}).Compare(keys[i-1], keys[i]) > 0 {
			t.Fatalf("output not sorted: %v", keys)
		}
	}
}

func TestCombineRunsCombinerDuringShuffleMerge(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 1)
	for i := 0; i < 10; i++ {
		if err := s.Insert(0, "x", 1, nil); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	sum := sumCombiner{}
	if err := s.Combine(context.Background(), 0, sum); err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if err := s.Shuffle(context.Background(), 0); err != nil {
		t.Fatalf("Shuffle: %v", err)
	}

	it, err := s.Iterate(0)
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	g, ok := it.Next()
	if !ok {
		t.Fatal("expected one group")
	}
	values, err := mrengine.Drain(g.Values)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(values) != 1 || values[0] != 10 {
		t.Fatalf("expected combined value [10], got %v", values)
	}
}

func TestInsertAfterCombineFails(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 1)
	if err := s.Combine(context.Background(), 0, nil); err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if err := s.Insert(0, "x", 1, nil); err == nil {
		t.Error("expected error inserting after combine")
	}
}

func TestShuffleBeforeCombineFails(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 1)
	if err := s.Shuffle(context.Background(), 0); err == nil {
		t.Error("expected error shuffling before combine")
	}
}

type sumCombiner struct{}

func (sumCombiner) Combine(_ string, values []int) ([]int, error) {
	var total int
	for _, v := range values {
		total += v
	}
	return []int{total}, nil
}
