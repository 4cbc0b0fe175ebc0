package logring

import (
	"sync"
	"time"
)

// DefaultCapacity bounds how many lines a profile keeps in memory.
const DefaultCapacity = 5000

// Stream tags the origin of a captured line.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	// StreamSystem marks synthetic diagnostics emitted by the supervisor
	// itself (start/stop notices, sink failures), not child output.
	StreamSystem Stream = "system"
)

func (s Stream) String() string { return string(s) }

// Line is one captured output line.
type Line struct {
	Time   time.Time `json:"time"`
	Stream Stream    `json:"stream"`
	Text   string    `json:"text"`
}

// Ring is a bounded FIFO of recent output lines. Appends evict the oldest
// line once the capacity is reached. All methods are safe for concurrent use.
type Ring struct {
	mu    sync.Mutex
	buf   []Line
	head  int // index of oldest line
	count int
}

// New returns a Ring holding at most capacity lines. Non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]Line, capacity)}
}

// Append stores one line, evicting the oldest when full.
func (r *Ring) Append(ln Line) {
	if ln.Time.IsZero() {
		ln.Time = time.Now()
	}
	r.mu.Lock()
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = ln
		r.count++
	} else {
		r.buf[r.head] = ln
		r.head = (r.head + 1) % len(r.buf)
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of the buffered lines in append order. The copy is
// consistent: no line is torn or lost relative to appends that completed
// before the call.
func (r *Ring) Snapshot() []Line {
	r.mu.Lock()
	out := make([]Line, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.mu.Unlock()
	return out
}

// Len returns the number of buffered lines.
func (r *Ring) Len() int {
	r.mu.Lock()
	n := r.count
	r.mu.Unlock()
	return n
}

// Cap returns the configured capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Clear discards all buffered lines.
func (r *Ring) Clear() {
	r.mu.Lock()
	r.head = 0
	r.count = 0
	r.mu.Unlock()
}
