package recording

import (
	"sync"
	"time"
)

// SessionClock establishes the session-global zero used to compute
// ttfb_ms, matching spec.md §4.5: "the first observed started_at in the
// session defines the zero of the timeline". This is Open Question
// decision 3 in DESIGN.md: the original Rust implementation instead zeros
// each request against its own start instant, which we deliberately do not
// follow.
type SessionClock struct {
	mu   sync.Mutex
	zero time.Time
	set  bool
}

// NewSessionClock returns a clock with no zero set yet.
func NewSessionClock() *SessionClock { return &SessionClock{} }

// Mark records t as the session zero if this is the first call, and
// returns the (possibly just-set) zero.
func (c *SessionClock) Mark(t time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		c.zero = t
		c.set = true
	}
	return c.zero
}

// OffsetMs returns the non-negative millisecond offset of t from the
// session zero, establishing the zero from t itself if none exists yet.
func (c *SessionClock) OffsetMs(t time.Time) int64 {
	zero := c.Mark(t)
	d := t.Sub(zero).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}
