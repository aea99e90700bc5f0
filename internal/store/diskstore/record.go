package diskstore

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"mrengine/internal/mergesort"
)

// wireRecord is the on-disk shape of one key/value pair: length-prefixed
// JSON, mirroring the teacher's own choice of encoding/json for its
// bbolt-backed KeyValue records (internal/store/storage.go) rather than a
// third-party binary codec the example pack doesn't offer.
type wireRecord[K any, V any] struct {
	K K `json:"k"`
	V V `json:"v"`
}

// fileWriter appends length-prefixed JSON records to a file, used both
// for the per-partition spill file and for merge-sort run files.
type fileWriter[K comparable, V any] struct {
	f *os.File
	w *bufio.Writer
}

func newFileWriter[K comparable, V any](path string) (*fileWriter[K, V], error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &fileWriter[K, V]{f: f, w: bufio.NewWriter(f)}, nil
}

func (w *fileWriter[K, V]) Write(rec mergesort.Record[K, V]) error {
	payload, err := json.Marshal(wireRecord[K, V]{K: rec.Key, V: rec.Value})
	if err != nil {
		return fmt.Errorf("diskstore: encode record: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}
	return nil
}

func (w *fileWriter[K, V]) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// fileReader reads length-prefixed JSON records back, implementing
// mergesort.Source.
type fileReader[K comparable, V any] struct {
	f *os.File
	r *bufio.Reader
}

func newFileReader[K comparable, V any](path string) (*fileReader[K, V], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &fileReader[K, V]{f: f, r: bufio.NewReader(f)}, nil
}

func (r *fileReader[K, V]) Next() (mergesort.Record[K, V], bool, error) {
	var lenBuf [4]byte
	_, err := io.ReadFull(r.r, lenBuf[:])
	if err == io.EOF {
		return mergesort.Record[K, V]{}, false, nil
	}
	if err != nil {
		return mergesort.Record[K, V]{}, false, fmt.Errorf("diskstore: read record length: %w", err)
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return mergesort.Record[K, V]{}, false, fmt.Errorf("diskstore: read record payload: %w", err)
	}

	var wr wireRecord[K, V]
	if err := json.Unmarshal(payload, &wr); err != nil {
		return mergesort.Record[K, V]{}, false, fmt.Errorf("diskstore: decode record: %w", err)
	}
	return mergesort.Record[K, V]{Key: wr.K, Value: wr.V}, true, nil
}

func (r *fileReader[K, V]) Close() error {
	return r.f.Close()
}
