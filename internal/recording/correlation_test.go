package recording

import (
	"net"
	"testing"
	"time"
)

// fakeConn is a minimal net.Conn whose identity is its own pointer, enough
// to exercise the Correlator without a real socket.
type fakeConn struct{ net.Conn }

func newFakeConn() net.Conn { return &fakeConn{} }

func TestCorrelatorFIFOOrderPerConnection(t *testing.T) {
	c := NewCorrelator()
	conn := newFakeConn()

	c.Push(conn, Descriptor{Method: "GET", URL: "https://example.com/a", StartedAt: time.Now()})
	c.Push(conn, Descriptor{Method: "GET", URL: "https://example.com/b", StartedAt: time.Now()})
	c.Push(conn, Descriptor{Method: "GET", URL: "https://example.com/c", StartedAt: time.Now()})

	first, ok := c.Pop(conn)
	if !ok || first.URL != "https://example.com/a" {
		t.Fatalf("expected a first, got %+v ok=%v", first, ok)
	}
	second, ok := c.Pop(conn)
	if !ok || second.URL != "https://example.com/b" {
		t.Fatalf("expected b second, got %+v ok=%v", second, ok)
	}
	third, ok := c.Pop(conn)
	if !ok || third.URL != "https://example.com/c" {
		t.Fatalf("expected c third, got %+v ok=%v", third, ok)
	}
	if _, ok := c.Pop(conn); ok {
		t.Fatal("expected queue to be drained")
	}
}

func TestCorrelatorIndependentAcrossConnections(t *testing.T) {
	c := NewCorrelator()
	connA := newFakeConn()
	connB := newFakeConn()

	c.Push(connA, Descriptor{Method: "GET", URL: "https://a.example/1"})
	c.Push(connB, Descriptor{Method: "GET", URL: "https://b.example/1"})
	c.Push(connA, Descriptor{Method: "GET", URL: "https://a.example/2"})

	a1, _ := c.Pop(connA)
	if a1.URL != "https://a.example/1" {
		t.Fatalf("got %+v", a1)
	}
	b1, _ := c.Pop(connB)
	if b1.URL != "https://b.example/1" {
		t.Fatalf("got %+v", b1)
	}
	if c.PendingCount(connB) != 0 {
		t.Fatalf("connB should be drained")
	}
	if c.PendingCount(connA) != 1 {
		t.Fatalf("connA should still have one pending")
	}
}

func TestCorrelatorPopOnEmptyQueueIsFalse(t *testing.T) {
	c := NewCorrelator()
	conn := newFakeConn()
	if _, ok := c.Pop(conn); ok {
		t.Fatal("expected no descriptor on an untouched connection")
	}
}

func TestCorrelatorForgetClearsQueue(t *testing.T) {
	c := NewCorrelator()
	conn := newFakeConn()
	c.Push(conn, Descriptor{Method: "GET", URL: "https://example.com/"})
	c.Forget(conn)
	if c.PendingCount(conn) != 0 {
		t.Fatal("expected Forget to drop the queue")
	}
}
