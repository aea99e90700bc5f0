// Package textsource is the DataSource spec.md §4.1 describes for plain
// newline-delimited text files: it enumerates the regular files in a
// directory once and slices each into segments of at most
// MaxFileSegmentSize bytes, extended forward to the next '\n' (or EOF) so
// a split never cuts a record.
package textsource

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"

	"mrengine"
)

// SchemaVersion is what this DataSource reports via SchemaVersion(); it
// identifies the MapKey/MapValue shape ([]byte split, as a contiguous
// read-only buffer) that the text source commits to producing.
const SchemaVersion = "v1.0.0"

// Config configures a Source.
type Config struct {
	InputDirectory     string
	MaxFileSegmentSize uint64

	// Recursive opts into walking subdirectories; the default, per
	// spec.md §9 Open Question (a), is non-recursive.
	Recursive bool

	Logger *log.Logger
}

// Source enumerates InputDirectory and hands out Splits. NextSplit is
// safe for concurrent use: the split queue is built once, under a mutex,
// on first call.
type Source struct {
	cfg Config

	mu      sync.Mutex
	once    bool
	splits  []mrengine.Split
	cursor  int
	planErr error
	skipped []string
}

// New creates a Source over cfg. Planning (file enumeration and
// splitting) is deferred to the first NextSplit call so construction
// never touches the filesystem.
func New(cfg Config) *Source {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Source{cfg: cfg}
}

func (s *Source) SchemaVersion() string { return SchemaVersion }

// Skipped returns the input files plan() could not read, satisfying
// mrengine.SkipReporter so the Job can count each one as a failed map
// key even though it never produced a Split.
func (s *Source) Skipped() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

func (s *Source) NextSplit() (mrengine.Split, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.once {
		s.once = true
		s.splits, s.planErr = s.plan()
		if s.planErr == nil {
			var total uint64
			for _, sp := range s.splits {
				total += uint64(sp.Length)
			}
			s.cfg.Logger.Printf("[DATASOURCE] planned %d splits over %s from %s",
				len(s.splits), humanize.Bytes(total), s.cfg.InputDirectory)
		}
	}
	if s.planErr != nil {
		return mrengine.Split{}, false, s.planErr
	}
	if s.cursor >= len(s.splits) {
		return mrengine.Split{}, false, nil
	}
	sp := s.splits[s.cursor]
	s.cursor++
	return sp, true, nil
}

func (s *Source) plan() ([]mrengine.Split, error) {
	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}

	var splits []mrengine.Split
	for _, path := range files {
		fileSplits, err := splitFile(path, s.cfg.MaxFileSegmentSize)
		if err != nil {
			s.cfg.Logger.Printf("[DATASOURCE] skipping unreadable file %s: %v", path, err)
			s.skipped = append(s.skipped, path)
			continue
		}
		splits = append(splits, fileSplits...)
	}
	return splits, nil
}

func (s *Source) listFiles() ([]string, error) {
	var files []string
	if s.cfg.Recursive {
		err := filepath.WalkDir(s.cfg.InputDirectory, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				s.cfg.Logger.Printf("[DATASOURCE] skipping %s: %v", path, err)
				return nil
			}
			if !d.IsDir() {
				files = append(files, path)
			}
			return nil
		})
		return files, err
	}

	entries, err := os.ReadDir(s.cfg.InputDirectory)
	if err != nil {
		return nil, fmt.Errorf("textsource: read input directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(s.cfg.InputDirectory, e.Name()))
	}
	return files, nil
}

// splitFile slices one file into segments of at most maxSegmentSize
// bytes, each extended forward to the next '\n' or EOF.
func splitFile(path string, maxSegmentSize uint64) ([]mrengine.Split, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, nil
	}
	if maxSegmentSize == 0 {
		maxSegmentSize = 1048576
	}

	var splits []mrengine.Split
	r := bufio.NewReader(f)

	var offset int64
	var segLen int64
	for {
		line, err := r.ReadBytes('\n')
		segLen += int64(len(line))

		atEOF := err == io.EOF
		if err != nil && !atEOF {
			return nil, err
		}

		if segLen >= int64(maxSegmentSize) || atEOF {
			if segLen > 0 {
				splits = append(splits, mrengine.Split{FileID: path, Offset: offset, Length: segLen})
				offset += segLen
				segLen = 0
			}
		}
		if atEOF {
			break
		}
	}
	return splits, nil
}
