package log

import (
	"fmt"
	"io"
	"slices"
	"sync"
)

// DefaultBufferCapacity is used when a non-positive capacity is requested.
const DefaultBufferCapacity = 200

// Buffer keeps the most recent log lines in memory. It implements
// [io.Writer] so it can sit behind a [slog.Handler], and is used to serve
// recent server logs to MCP clients that cannot see stderr.
type Buffer struct {
	lines [][]byte
	next  int
	full  bool
	mu    sync.Mutex
}

// NewBuffer creates a [Buffer] holding up to capacity lines.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}

	return &Buffer{lines: make([][]byte, capacity)}
}

// Write stores p as one line, evicting the oldest line when full.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines[b.next] = slices.Clone(p)
	b.next = (b.next + 1) % len(b.lines)
	if b.next == 0 {
		b.full = true
	}

	return len(p), nil
}

// Lines returns up to n of the most recent lines, oldest first. A
// non-positive n returns every stored line.
func (b *Buffer) Lines(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ordered [][]byte
	if b.full {
		ordered = append(ordered, b.lines[b.next:]...)
	}

	ordered = append(ordered, b.lines[:b.next]...)

	if n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}

	out := make([]string, 0, len(ordered))
	for _, line := range ordered {
		out = append(out, string(line))
	}

	return out
}

// Len returns the number of stored lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.full {
		return len(b.lines)
	}

	return b.next
}

// WriteTo writes every stored line to w, oldest first.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, line := range b.Lines(0) {
		n, err := io.WriteString(w, line)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("write log line: %w", err)
		}
	}

	return total, nil
}
