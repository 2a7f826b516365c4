package api

import (
	"context"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
)

func newTestClient(hub *Hub, id string, buffer int) *Client {
	return &Client{id: id, hub: hub, send: make(chan *Message, buffer)}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}

		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubEvictsSlowClient(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	hub := NewHub(log, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	slow := newTestClient(hub, "slow", 1)
	hub.register <- slow

	waitFor(t, func() bool { return hub.ClientCount() == 1 })
	hub.Subscribe(slow, "ringer")

	// Fill the buffer, then broadcast once more.
	hub.Broadcast(&Message{Type: MessageTypePong})
	hub.Broadcast(&Message{Type: MessageTypePong})

	waitFor(t, func() bool { return hub.ClientCount() == 0 })

	hub.mu.RLock()
	_, subscribed := hub.subscriptions["ringer"]
	hub.mu.RUnlock()

	if subscribed {
		t.Error("evicted client kept its subscription")
	}

	// The buffered message is still delivered before the channel closes.
	if msg, ok := <-slow.send; !ok || msg.Type != MessageTypePong {
		t.Fatalf("expected buffered pong, got %v %v", msg, ok)
	}

	if _, ok := <-slow.send; ok {
		t.Fatal("expected closed send channel")
	}
}

func TestHubIgnoresSubscribeAfterEviction(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	hub := NewHub(log, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	evicted := newTestClient(hub, "evicted", 1)
	hub.register <- evicted

	hub.Broadcast(&Message{Type: MessageTypePong})
	hub.Broadcast(&Message{Type: MessageTypePong})

	waitFor(t, func() bool { return hub.ClientCount() == 0 })

	// The read pump can still deliver a subscribe after eviction.
	evicted.handleMessage(&Message{Type: MessageTypeSubscribe, Category: "ringer"})

	hub.mu.RLock()
	n := len(hub.subscriptions["ringer"])
	hub.mu.RUnlock()

	if n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}

	live := newTestClient(hub, "live", 4)
	hub.register <- live

	waitFor(t, func() bool { return hub.ClientCount() == 1 })
	hub.Subscribe(live, "ringer")

	// Category messages are handled in order, so receiving the second one
	// means the hub got through the first.
	hub.BroadcastToCategory("ringer", &Message{Type: MessageTypeSpecsSynced, Payload: "first"})
	hub.BroadcastToCategory("ringer", &Message{Type: MessageTypeSpecsSynced, Payload: "second"})

	for _, want := range []string{"first", "second"} {
		select {
		case msg := <-live.send:
			if msg.Payload != want {
				t.Errorf("expected %s, got %v", want, msg.Payload)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}
