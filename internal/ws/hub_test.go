package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeConn records received messages; it can be told to fail sends.
type fakeConn struct {
	mu       sync.Mutex
	received []any
	failNext bool
}

func (c *fakeConn) Send(ctx context.Context, msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		return errors.New("connection gone")
	}
	c.received = append(c.received, msg)
	return nil
}

func (c *fakeConn) messages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.received...)
}

func (c *fakeConn) setFailing(v bool) {
	c.mu.Lock()
	c.failNext = v
	c.mu.Unlock()
}

func TestHub_RegisterSendsConfirmation(t *testing.T) {
	hub := NewHub(nil)
	conn := &fakeConn{}

	id := hub.Register(conn)
	if id == "" {
		t.Fatal("expected a connection id")
	}

	msgs := conn.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	ack, ok := msgs[0].(ConnectedMessage)
	if !ok {
		t.Fatalf("expected ConnectedMessage, got %T", msgs[0])
	}
	if ack.ConnectionID != id {
		t.Errorf("ack carries wrong id: %s != %s", ack.ConnectionID, id)
	}
}

func TestHub_BroadcastFanOut(t *testing.T) {
	hub := NewHub(nil)
	a, b, other := &fakeConn{}, &fakeConn{}, &fakeConn{}

	aID := hub.Register(a)
	bID := hub.Register(b)
	otherID := hub.Register(other)

	hub.Subscribe(aID, "job:X")
	hub.Subscribe(bID, "job:X")
	hub.Subscribe(otherID, "job:Y")

	hub.Broadcast("job:X", "hello")

	if len(a.messages()) != 2 { // ack + broadcast
		t.Errorf("expected a to receive the broadcast, got %v", a.messages())
	}
	if len(b.messages()) != 2 {
		t.Errorf("expected b to receive the broadcast, got %v", b.messages())
	}
	if len(other.messages()) != 1 {
		t.Errorf("job:Y subscriber must not receive job:X broadcasts, got %v", other.messages())
	}
}

func TestHub_WildcardSubscription(t *testing.T) {
	hub := NewHub(nil)
	conn := &fakeConn{}
	id := hub.Register(conn)

	hub.Subscribe(id, "job:*")

	hub.Broadcast("job:abc", "one")
	hub.Broadcast("job:def", "two")
	hub.Broadcast("other:abc", "three")

	msgs := conn.messages()
	if len(msgs) != 3 { // ack + two job broadcasts
		t.Fatalf("expected ack plus 2 broadcasts, got %d", len(msgs))
	}
}

func TestHub_SubscribeIdempotent(t *testing.T) {
	hub := NewHub(nil)
	conn := &fakeConn{}
	id := hub.Register(conn)

	hub.Subscribe(id, "job:X")
	hub.Subscribe(id, "job:X")

	hub.Broadcast("job:X", "once")

	if len(conn.messages()) != 2 { // ack + exactly one delivery
		t.Errorf("double subscribe must not double-deliver, got %d messages", len(conn.messages()))
	}

	// Unsubscribing a non-member is a no-op, not an error.
	hub.Unsubscribe(id, "job:never-subscribed")
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(nil)
	conn := &fakeConn{}
	id := hub.Register(conn)

	hub.Subscribe(id, "job:X")
	hub.Unsubscribe(id, "job:X")

	hub.Broadcast("job:X", "silence")

	if len(conn.messages()) != 1 { // ack only
		t.Errorf("unsubscribed connection received a broadcast")
	}
}

func TestHub_FailedSendEvictsConnection(t *testing.T) {
	hub := NewHub(nil)
	healthy, broken := &fakeConn{}, &fakeConn{}

	hID := hub.Register(healthy)
	bID := hub.Register(broken)
	hub.Subscribe(hID, "job:X")
	hub.Subscribe(bID, "job:X")

	broken.setFailing(true)
	hub.Broadcast("job:X", "first")

	// The broken connection is evicted, the healthy one still got it.
	if len(healthy.messages()) != 2 {
		t.Errorf("one observer failing must not block the others")
	}
	if hub.ConnectionCount() != 1 {
		t.Errorf("expected broken connection evicted, count %d", hub.ConnectionCount())
	}

	broken.setFailing(false)
	hub.Broadcast("job:X", "second")
	if len(broken.messages()) != 1 { // ack only, nothing after eviction
		t.Errorf("evicted connection must not receive further broadcasts")
	}
}

func TestHub_Unregister(t *testing.T) {
	hub := NewHub(nil)
	conn := &fakeConn{}
	id := hub.Register(conn)
	hub.Subscribe(id, "job:X")

	hub.Unregister(id)

	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", hub.ConnectionCount())
	}
	hub.Broadcast("job:X", "gone")
	if len(conn.messages()) != 1 { // ack only
		t.Error("unregistered connection received a broadcast")
	}

	// Subscribing after unregister is ignored.
	hub.Subscribe(id, "job:X")
	hub.Broadcast("job:X", "still gone")
	if len(conn.messages()) != 1 {
		t.Error("subscription after unregister must be a no-op")
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		sub, channel string
		want         bool
	}{
		{"job:abc", "job:abc", true},
		{"job:abc", "job:def", false},
		{"job:*", "job:abc", true},
		{"job:*", "jobs:abc", false},
		{"job:*", "other:abc", false},
		{"*", "job:abc", false},
	}
	for _, c := range cases {
		if got := matches(c.sub, c.channel); got != c.want {
			t.Errorf("matches(%q, %q) = %v, want %v", c.sub, c.channel, got, c.want)
		}
	}
}
