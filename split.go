package mrengine

import "os"

// Split describes a byte range of one input file, ending at a record
// boundary: DataSources extend a split forward to the next newline (or
// end of file) so a record is never cut across two splits.
type Split struct {
	FileID string // path of the originating file
	Offset int64
	Length int64
}

// Bytes materializes the split as a contiguous read-only buffer, the
// guarantee spec.md §4.2 makes to MapTask implementations.
func (s Split) Bytes() ([]byte, error) {
	f, err := os.Open(s.FileID)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, s.Length)
	if s.Length == 0 {
		return buf, nil
	}
	n, err := f.ReadAt(buf, s.Offset)
	if err != nil && n != int(s.Length) {
		return nil, err
	}
	return buf, nil
}
