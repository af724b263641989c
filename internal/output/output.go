// Package output holds the append-only line sink shared by script logging
// and scheduler failure reporting.
package output

import (
	"fmt"
	"io"
	"sync"
)

// Sink receives output lines in order.
type Sink interface {
	Push(line string)
}

// Buffer is an append-only, concurrency-safe list of lines. When a
// retention limit is set, the oldest lines are dropped but line numbering
// (as seen through Len and Since) keeps counting from the first push.
type Buffer struct {
	mu      sync.RWMutex
	lines   []string
	dropped int
	limit   int
}

// NewBuffer returns a buffer keeping at most limit lines (0 = unlimited).
func NewBuffer(limit int) *Buffer {
	if limit < 0 {
		limit = 0
	}
	return &Buffer{limit: limit}
}

// Push implements Sink.
func (b *Buffer) Push(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, line)
	if b.limit > 0 && len(b.lines) > b.limit {
		over := len(b.lines) - b.limit
		b.lines = append(b.lines[:0:0], b.lines[over:]...)
		b.dropped += over
	}
}

// Lines returns a copy of the retained lines.
func (b *Buffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Len returns the total number of lines ever pushed.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped + len(b.lines)
}

// Since returns the retained lines numbered n and above, plus the number to
// pass on the next call. Lines dropped by retention are skipped silently.
func (b *Buffer) Since(n int) ([]string, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := b.dropped + len(b.lines)
	start := n - b.dropped
	if start < 0 {
		start = 0
	}
	if start >= len(b.lines) {
		return nil, total
	}
	out := make([]string, len(b.lines)-start)
	copy(out, b.lines[start:])
	return out, total
}

// WriterSink writes every line to an io.Writer, one per line.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink wraps w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Push implements Sink. Write errors are dropped; there is nobody left to
// report them to.
func (s *WriterSink) Push(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.w, line)
}

type multi []Sink

func (m multi) Push(line string) {
	for _, s := range m {
		s.Push(line)
	}
}

// Multi fans each line out to every non-nil sink, in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Discard drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Push(string) {}
