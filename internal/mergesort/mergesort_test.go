package mergesort

import (
	"math/rand"
	"testing"
)

type intOrdering struct{}

func (intOrdering) Compare(a, b int) int { return a - b }

// memSource/memSink let the external-sort tests run entirely in memory,
// independent of the disk-backed RunStore that production code pairs
// this package with.
type memSource struct {
	records []Record[int, string]
	pos     int
}

func (s *memSource) Next() (Record[int, string], bool, error) {
	if s.pos >= len(s.records) {
		return Record[int, string]{}, false, nil
	}
	r := s.records[s.pos]
	s.pos++
	return r, true, nil
}
func (s *memSource) Close() error { return nil }

type memSink struct {
	records []Record[int, string]
}

func (s *memSink) Write(r Record[int, string]) error {
	s.records = append(s.records, r)
	return nil
}
func (s *memSink) Close() error { return nil }

type memRunStore struct {
	runs []*memSink
}

func (s *memRunStore) NewRun() (Sink[int, string], error) {
	sink := &memSink{}
	s.runs = append(s.runs, sink)
	return sink, nil
}

func (s *memRunStore) OpenRuns() ([]Source[int, string], error) {
	sources := make([]Source[int, string], len(s.runs))
	for i, r := range s.runs {
		sources[i] = &memSource{records: r.records}
	}
	return sources, nil
}

func (s *memRunStore) Remove() error { return nil }

func TestGenerateRunsAndKWayMergeRoundTrip(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	var input []Record[int, string]
	for i := 0; i < 500; i++ {
		input = append(input, Record[int, string]{Key: rng.Intn(100), Value: "v"})
	}

	src := &memSource{records: input}
	store := &memRunStore{}

	runs, err := GenerateRuns[int, string](src, 37, intOrdering{}, store)
	if err != nil {
		t.Fatalf("GenerateRuns: %v", err)
	}
	if runs == 0 {
		t.Fatal("expected at least one run")
	}

	sources, err := store.OpenRuns()
	if err != nil {
		t.Fatalf("OpenRuns: %v", err)
	}

	dst := &memSink{}
	if err := KWayMerge[int, string](sources, intOrdering{}, dst); err != nil {
		t.Fatalf("KWayMerge: %v", err)
	}

	if len(dst.records) != len(input) {
		t.Fatalf("got %d merged records, want %d", len(dst.records), len(input))
	}
	for i := 1; i < len(dst.records); i++ {
		if dst.records[i-1].Key > dst.records[i].Key {
			t.Fatalf("merged output not sorted at index %d: %d > %d", i, dst.records[i-1].Key, dst.records[i].Key)
		}
	}
}

func TestGenerateRunsEmptySource(t *testing.T) {
	t.Parallel()

	store := &memRunStore{}
	runs, err := GenerateRuns[int, string](&memSource{}, 10, intOrdering{}, store)
	if err != nil {
		t.Fatalf("GenerateRuns: %v", err)
	}
	if runs != 0 {
		t.Errorf("expected 0 runs for empty source, got %d", runs)
	}
}

func TestKWayMergeClosesAllRuns(t *testing.T) {
	t.Parallel()

	closed := 0
	tracking := &closeTrackingSource{records: []Record[int, string]{{Key: 1, Value: "a"}}, closed: &closed}
	dst := &memSink{}

	if err := KWayMerge[int, string]([]Source[int, string]{tracking}, intOrdering{}, dst); err != nil {
		t.Fatalf("KWayMerge: %v", err)
	}
	if closed != 1 {
		t.Errorf("expected run to be closed exactly once, got %d", closed)
	}
}

type closeTrackingSource struct {
	records []Record[int, string]
	pos     int
	closed  *int
}

func (s *closeTrackingSource) Next() (Record[int, string], bool, error) {
	if s.pos >= len(s.records) {
		return Record[int, string]{}, false, nil
	}
	r := s.records[s.pos]
	s.pos++
	return r, true, nil
}

func (s *closeTrackingSource) Close() error {
	*s.closed++
	return nil
}
