// Package recording implements the recording engine: the correlation layer
// (C4), upstream client (C5), and the MITM/forward-proxy listener loop that
// ties them together with the normaliser (C2) and inventory store (C1).
package recording

import (
	"container/list"
	"net"
	"sync"
	"time"
)

// Descriptor is one in-flight request observed on a connection, queued
// until its response is ready to be recorded, matching spec.md §4.4.
type Descriptor struct {
	Method    string
	URL       string
	StartedAt time.Time
}

// Correlator holds one FIFO queue per client connection, keyed by the
// connection's own identity (not its remote address, which is not
// guaranteed unique across reused ephemeral ports), matching
// original_source/src/recording/hudsucker_handler.rs's
// `HashMap<SocketAddr, VecDeque<RequestInfo>>` generalised to a connection
// identity that can never collide.
type Correlator struct {
	mu     sync.Mutex
	queues map[net.Conn]*list.List
}

// NewCorrelator returns an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{queues: make(map[net.Conn]*list.List)}
}

// Push appends d to conn's queue. CONNECT requests must never be pushed
// here, per spec.md §4.4's invariant that they "do not produce a
// descriptor".
func (c *Correlator) Push(conn net.Conn, d Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[conn]
	if !ok {
		q = list.New()
		c.queues[conn] = q
	}
	q.PushBack(d)
}

// Pop removes and returns the head descriptor for conn, if any. Called
// both on successful response recording and on every upstream failure
// path, per spec.md §4.4/§7's "every error path that would leave the
// correlation layer inconsistent MUST dequeue its descriptor".
func (c *Correlator) Pop(conn net.Conn) (Descriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[conn]
	if !ok || q.Len() == 0 {
		return Descriptor{}, false
	}
	front := q.Front()
	q.Remove(front)
	return front.Value.(Descriptor), true
}

// Forget drops conn's queue entirely, called when a connection closes so
// the map does not grow unboundedly across a long recording session.
func (c *Correlator) Forget(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.queues, conn)
}

// PendingCount reports how many descriptors are queued for conn, exposed
// for tests.
func (c *Correlator) PendingCount(conn net.Conn) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[conn]
	if !ok {
		return 0
	}
	return q.Len()
}
