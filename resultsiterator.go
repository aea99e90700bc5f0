package mrengine

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// ResultIterator streams (key, value) pairs out of a Job's result files,
// in partition order, one result file open at a time. It is forward-only
// and restartable: BeginResults-equivalent access is just calling Job.
// Results again, since a Job keeps its OutputPaths for its lifetime.
type ResultIterator[K comparable, OV any] struct {
	paths  []string
	reader ResultReader[K, OV]

	pathIdx int
	f       *os.File
	r       *bufio.Reader

	err  error
	done bool
}

func newResultIterator[K comparable, OV any](paths []string, reader ResultReader[K, OV]) *ResultIterator[K, OV] {
	return &ResultIterator[K, OV]{paths: paths, reader: reader}
}

// Next advances to the next (key, value) pair, opening result files in
// partition order as each is exhausted. It returns false once every
// result file has been fully read or an error occurs; check Err to tell
// the two apart.
func (it *ResultIterator[K, OV]) Next() (K, OV, bool) {
	var zeroK K
	var zeroV OV

	if it.done || it.err != nil {
		return zeroK, zeroV, false
	}

	for {
		if it.r == nil {
			if it.pathIdx >= len(it.paths) {
				it.done = true
				return zeroK, zeroV, false
			}
			f, err := os.Open(it.paths[it.pathIdx])
			if err != nil {
				it.err = fmt.Errorf("mrengine: open result file %s: %w", it.paths[it.pathIdx], err)
				return zeroK, zeroV, false
			}
			it.f = f
			it.r = bufio.NewReader(f)
		}

		k, v, err := it.reader.Read(it.r)
		if err != nil {
			it.f.Close()
			it.f = nil
			it.r = nil
			it.pathIdx++
			if err == io.EOF {
				continue
			}
			it.err = fmt.Errorf("mrengine: read result file %s: %w", it.paths[it.pathIdx-1], err)
			return zeroK, zeroV, false
		}
		return k, v, true
	}
}

// Err returns any error Next encountered. Callers should check it once
// Next returns false.
func (it *ResultIterator[K, OV]) Err() error { return it.err }

// Close releases the currently open result file, if any. Safe to call
// even if Next was never called or already exhausted the iterator.
func (it *ResultIterator[K, OV]) Close() error {
	if it.f != nil {
		err := it.f.Close()
		it.f = nil
		it.r = nil
		return err
	}
	return nil
}
