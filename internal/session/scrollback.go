package session

import "sync"

// Scrollback is an append-only ordered buffer of output chunks retained
// for history replay. Appends never truncate; readers always get a full
// copy of the chunk sequence as of the call.
type Scrollback struct {
	mu     sync.RWMutex
	chunks []string
}

// NewScrollback creates an empty scrollback buffer.
func NewScrollback() *Scrollback {
	return &Scrollback{}
}

// Append adds one chunk to the buffer.
func (sb *Scrollback) Append(chunk string) {
	sb.mu.Lock()
	sb.chunks = append(sb.chunks, chunk)
	sb.mu.Unlock()
}

// Snapshot returns a copy of all chunks in append order.
func (sb *Scrollback) Snapshot() []string {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	out := make([]string, len(sb.chunks))
	copy(out, sb.chunks)
	return out
}

// Len returns the number of buffered chunks.
func (sb *Scrollback) Len() int {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return len(sb.chunks)
}
