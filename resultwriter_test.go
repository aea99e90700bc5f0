package mrengine

import (
	"bufio"
	"bytes"
	"testing"
)

func TestDefaultResultWriterReaderRoundTrip(t *testing.T) {
	t.Parallel()

	w := DefaultResultWriter[string, int]()
	r := DefaultResultReader[string, int]()

	var buf bytes.Buffer
	out := bufio.NewWriter(&buf)
	pairs := []struct {
		key   string
		value int
	}{
		{"brown", 1}, {"fox", 2}, {"the", 3},
	}
	for _, p := range pairs {
		if err := w.Write(out, p.key, p.value); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := out.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if buf.String() != "brown\t1\nfox\t2\nthe\t3\n" {
		t.Fatalf("unexpected serialized output: %q", buf.String())
	}

	in := bufio.NewReader(&buf)
	for _, want := range pairs {
		k, v, err := r.Read(in)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if k != want.key || v != want.value {
			t.Fatalf("Read() = (%q, %d), want (%q, %d)", k, v, want.key, want.value)
		}
	}
}
