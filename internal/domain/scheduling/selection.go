package scheduling

import "sync"

// SelectionTracker applies availability responses in request order rather
// than arrival order. Each Select issues a sequence number; a response is
// applied only if it carries the latest number and the date still selected.
type SelectionTracker struct {
	mu      sync.Mutex
	seq     uint64
	current string
}

// Select records date as the current selection and returns its sequence.
func (t *SelectionTracker) Select(date string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.current = date
	return t.seq
}

// Accept reports whether a response for (seq, date) is still current.
func (t *SelectionTracker) Accept(seq uint64, date string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return seq == t.seq && date == t.current
}

func (t *SelectionTracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}
