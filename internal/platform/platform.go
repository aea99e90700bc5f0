// Package platform collects the handful of OS-level primitives the engine
// needs and that don't belong to any single component: file sizes, a
// scratch directory for spill/run files, and the case-insensitive byte
// comparison used to order and hash text keys.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
)

// FileSize returns the current size in bytes of the file at path.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// TempDir returns the directory under which the engine creates its spill
// and run files for a single job, creating it if necessary. Callers are
// responsible for removing it once the job finishes.
func TempDir(jobID string) (string, error) {
	dir := filepath.Join(os.TempDir(), "mrengine-"+jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// HardwareConcurrency is the process-wide read-only probe the schedule
// policies size their worker pools against.
func HardwareConcurrency() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// CompareFold compares two byte slices case-insensitively over their
// shorter common length, with length as the tiebreaker: a shorter slice
// that is a case-insensitive prefix of a longer one sorts first. This is
// the ordering contract spec'd for byte-slice/text keys.
func CompareFold(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ca, cb := foldByte(a[i]), foldByte(b[i])
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// EqualFold reports whether a and b are equal under case-insensitive
// comparison of equal-length slices. Slices of different length are never
// equal, matching the strncasecmp-based equality in the original library.
func EqualFold(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if foldByte(a[i]) != foldByte(b[i]) {
			return false
		}
	}
	return true
}

// HashFold computes a case-insensitive FNV-1a hash over the byte range,
// used to partition text keys. It folds case before hashing so that keys
// differing only by case land in the same partition, matching the
// case-insensitive equality contract above.
func HashFold(b []byte) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for _, c := range b {
		h ^= uint64(foldByte(c))
		h *= prime64
	}
	return h
}

func foldByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
