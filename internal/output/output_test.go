package output

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBufferKeepsOrder(t *testing.T) {
	b := NewBuffer(0)
	b.Push("a")
	b.Push("b")
	b.Push("c")

	if diff := cmp.Diff([]string{"a", "b", "c"}, b.Lines()); diff != "" {
		t.Fatalf("Lines() mismatch (-want +got):\n%s", diff)
	}
	if got := b.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
}

func TestBufferRetentionLimit(t *testing.T) {
	b := NewBuffer(2)
	for _, l := range []string{"1", "2", "3", "4"} {
		b.Push(l)
	}

	if diff := cmp.Diff([]string{"3", "4"}, b.Lines()); diff != "" {
		t.Fatalf("Lines() mismatch (-want +got):\n%s", diff)
	}
	if got := b.Len(); got != 4 {
		t.Fatalf("Len() = %d, want 4 (dropped lines still counted)", got)
	}
}

func TestBufferSince(t *testing.T) {
	b := NewBuffer(3)
	b.Push("1")
	b.Push("2")

	lines, next := b.Since(0)
	if diff := cmp.Diff([]string{"1", "2"}, lines); diff != "" {
		t.Fatalf("Since(0) mismatch (-want +got):\n%s", diff)
	}

	b.Push("3")
	b.Push("4")
	b.Push("5")

	lines, next = b.Since(next)
	if diff := cmp.Diff([]string{"3", "4", "5"}, lines); diff != "" {
		t.Fatalf("Since(2) mismatch (-want +got):\n%s", diff)
	}
	if next != 5 {
		t.Fatalf("next = %d, want 5", next)
	}

	lines, _ = b.Since(next)
	if len(lines) != 0 {
		t.Fatalf("Since(5) = %v, want nothing new", lines)
	}
}

func TestMultiAndWriterSink(t *testing.T) {
	var buf bytes.Buffer
	b := NewBuffer(0)
	sink := Multi(b, nil, NewWriterSink(&buf))

	sink.Push("hello")
	sink.Push("world")

	if got := buf.String(); got != "hello\nworld\n" {
		t.Fatalf("writer got %q", got)
	}
	if got := b.Len(); got != 2 {
		t.Fatalf("buffer Len() = %d, want 2", got)
	}
}
