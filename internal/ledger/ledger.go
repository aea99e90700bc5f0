// Package ledger is the optional job-history persistence layer: it
// records a completed Job's Results, keyed by job ID, in a bbolt
// database for later inspection. It never participates in the
// map/shuffle/reduce data path — it is pure introspection, repurposing
// the teacher's bbolt-backed persistence (internal/store/storage.go,
// internal/master/persistence.go) from transporting intermediate data
// between a distributed master and workers to recording the history of
// single-process runs.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var resultsBucket = []byte("job_results")

// Ledger is a bbolt-backed store of completed job results.
type Ledger struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a bbolt database at path.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(resultsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: create bucket: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record persists a job's result payload under jobID. The caller
// supplies an already-JSON-marshalable snapshot (mrengine.Results
// satisfies this) rather than this package depending on mrengine's
// types directly, keeping the ledger reusable for any job-like result.
func (l *Ledger) Record(jobID string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("ledger: marshal result: %w", err)
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(resultsBucket).Put([]byte(jobID), payload)
	})
}

// Lookup retrieves a previously recorded result by job ID and decodes it
// into out.
func (l *Ledger) Lookup(jobID string, out any) (bool, error) {
	var found bool
	err := l.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(resultsBucket).Get([]byte(jobID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, out)
	})
	return found, err
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
