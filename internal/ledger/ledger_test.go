package ledger

import (
	"path/filepath"
	"testing"
)

type sampleResult struct {
	JobRuntime string
	MapKeys    int
}

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndLookupRoundTrip(t *testing.T) {
	t.Parallel()

	l := openTestLedger(t)
	want := sampleResult{JobRuntime: "1.5s", MapKeys: 42}

	if err := l.Record("job-1", &want); err != nil {
		t.Fatalf("Record: %v", err)
	}

	var got sampleResult
	found, err := l.Lookup("job-1", &got)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found {
		t.Fatal("Lookup reported not found for a recorded job")
	}
	if got != want {
		t.Errorf("Lookup() = %+v, want %+v", got, want)
	}
}

func TestLookupUnknownJobReportsNotFound(t *testing.T) {
	t.Parallel()

	l := openTestLedger(t)
	var got sampleResult
	found, err := l.Lookup("does-not-exist", &got)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found {
		t.Error("Lookup reported found for a job that was never recorded")
	}
}

func TestRecordOverwritesPriorEntry(t *testing.T) {
	t.Parallel()

	l := openTestLedger(t)
	if err := l.Record("job-1", &sampleResult{MapKeys: 1}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Record("job-1", &sampleResult{MapKeys: 2}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	var got sampleResult
	if _, err := l.Lookup("job-1", &got); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.MapKeys != 2 {
		t.Errorf("MapKeys = %d, want 2 after overwrite", got.MapKeys)
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "ledger.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	if err := l.Record("job-1", &sampleResult{MapKeys: 7}); err != nil {
		t.Fatalf("Record: %v", err)
	}
}
