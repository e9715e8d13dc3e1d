package latency

import (
	"sync"
	"time"
)

// Tracker records named checkpoints within one chunk's processing, relative to
// the tracker's creation time.
type Tracker struct {
	mu    sync.Mutex
	start time.Time
	marks map[string]time.Duration
	clock func() time.Time
}

func NewTracker() *Tracker {
	return newTracker(time.Now)
}

func newTracker(clock func() time.Time) *Tracker {
	return &Tracker{
		start: clock(),
		marks: make(map[string]time.Duration),
		clock: clock,
	}
}

// Checkpoint records elapsed time since tracker creation under name. Recording
// the same name again overwrites the earlier mark.
func (t *Tracker) Checkpoint(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marks[name] = t.clock().Sub(t.start)
}

// Duration returns the elapsed time between checkpoints a and b. It returns 0
// when either name was never recorded or when b precedes a; it never fails.
func (t *Tracker) Duration(a, b string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	ma, okA := t.marks[a]
	mb, okB := t.marks[b]
	if !okA || !okB {
		return 0
	}
	if mb < ma {
		return 0
	}
	return mb - ma
}

// Total returns elapsed time since tracker creation at call time.
func (t *Tracker) Total() time.Duration {
	return t.clock().Sub(t.start)
}
