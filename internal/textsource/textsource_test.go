package textsource

import (
	"log"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func drainSplits(t *testing.T, s *Source) []string {
	t.Helper()
	var out []string
	for {
		sp, ok, err := s.NextSplit()
		if err != nil {
			t.Fatalf("NextSplit: %v", err)
		}
		if !ok {
			break
		}
		b, err := sp.Bytes()
		if err != nil {
			t.Fatalf("Bytes: %v", err)
		}
		out = append(out, string(b))
	}
	return out
}

func TestNextSplitRespectsRecordBoundaries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "aaaaaaaaaa\nbbbbbbbbbb\ncccccccccc\n")

	s := New(Config{InputDirectory: dir, MaxFileSegmentSize: 15, Logger: log.New(os.Stderr, "", 0)})
	splits := drainSplits(t, s)

	var rebuilt string
	for _, seg := range splits {
		rebuilt += seg
		if len(seg) > 0 && seg[len(seg)-1] != '\n' {
			t.Errorf("split does not end on a record boundary: %q", seg)
		}
	}
	want := "aaaaaaaaaa\nbbbbbbbbbb\ncccccccccc\n"
	if rebuilt != want {
		t.Errorf("reassembled splits = %q, want %q", rebuilt, want)
	}
}

func TestNextSplitExhaustedStaysExhausted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "one line\n")

	s := New(Config{InputDirectory: dir, MaxFileSegmentSize: 1024, Logger: log.New(os.Stderr, "", 0)})
	drainSplits(t, s)

	_, ok, err := s.NextSplit()
	if err != nil || ok {
		t.Errorf("NextSplit after exhaustion must keep returning (_, false, nil), got ok=%v err=%v", ok, err)
	}
}

// TestEmptyInputDirectoryYieldsNoSplits is the boundary case spec.md §8
// calls out: an empty input directory is not an error, it just produces
// zero splits.
func TestEmptyInputDirectoryYieldsNoSplits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := New(Config{InputDirectory: dir, MaxFileSegmentSize: 1024, Logger: log.New(os.Stderr, "", 0)})

	_, ok, err := s.NextSplit()
	if err != nil {
		t.Fatalf("NextSplit: %v", err)
	}
	if ok {
		t.Error("expected no splits from an empty directory")
	}
}

// TestUnreadableFileIsSkippedNotFatal covers the scenario where one file
// in the input directory cannot be opened (here: a symlink pointing at
// nothing) alongside a readable one: planning must skip it and log, not
// fail the whole enumeration.
func TestUnreadableFileIsSkippedNotFatal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "good.txt", "hello\n")
	if err := os.Symlink(filepath.Join(dir, "does-not-exist"), filepath.Join(dir, "broken.txt")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	s := New(Config{InputDirectory: dir, MaxFileSegmentSize: 1024, Logger: log.New(os.Stderr, "", 0)})
	splits := drainSplits(t, s)
	if len(splits) != 1 || splits[0] != "hello\n" {
		t.Fatalf("expected exactly the readable file's content, got %v", splits)
	}

	skipped := s.Skipped()
	if len(skipped) != 1 || skipped[0] != filepath.Join(dir, "broken.txt") {
		t.Fatalf("Skipped() = %v, want [%q]", skipped, filepath.Join(dir, "broken.txt"))
	}
}

func TestNonRecursiveByDefaultIgnoresSubdirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "top.txt", "top\n")
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	writeFile(t, sub, "nested.txt", "nested\n")

	s := New(Config{InputDirectory: dir, MaxFileSegmentSize: 1024, Logger: log.New(os.Stderr, "", 0)})
	splits := drainSplits(t, s)
	if len(splits) != 1 || splits[0] != "top\n" {
		t.Fatalf("expected only the top-level file without Recursive set, got %v", splits)
	}
}

func TestRecursiveWalksSubdirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "top.txt", "top\n")
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	writeFile(t, sub, "nested.txt", "nested\n")

	s := New(Config{InputDirectory: dir, MaxFileSegmentSize: 1024, Recursive: true, Logger: log.New(os.Stderr, "", 0)})
	splits := drainSplits(t, s)
	if len(splits) != 2 {
		t.Fatalf("expected both files walked recursively, got %v", splits)
	}
}

func TestSchemaVersion(t *testing.T) {
	t.Parallel()
	s := New(Config{InputDirectory: t.TempDir(), Logger: log.New(os.Stderr, "", 0)})
	if s.SchemaVersion() != SchemaVersion {
		t.Errorf("SchemaVersion() = %q, want %q", s.SchemaVersion(), SchemaVersion)
	}
}
