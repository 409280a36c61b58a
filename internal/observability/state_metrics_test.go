package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/chatverse/internal/domain"
	"github.com/tbourn/chatverse/internal/store"
)

func TestStateMetrics_FollowsStores(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := store.NewBroker()
	m, err := NewStateMetrics(reg, b)
	if err != nil {
		t.Fatal(err)
	}

	rooms := store.NewRoomStore(10, b)
	feed := store.NewNotificationStore(b)
	m.Seed(rooms.Snapshot(), feed.Snapshot())
	if got := testutil.ToFloat64(m.Credits); got != 10 {
		t.Fatalf("seeded credits=%v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// wait for the subscription before mutating
	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("metrics never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	rooms.SpendCredits(3)
	feed.Push(domain.Notification{ID: "1"})
	feed.Push(domain.Notification{ID: "2"})

	for testutil.ToFloat64(m.Unread) != 2 || testutil.ToFloat64(m.Credits) != 7 {
		if time.Now().After(deadline) {
			t.Fatalf("credits=%v unread=%v", testutil.ToFloat64(m.Credits), testutil.ToFloat64(m.Unread))
		}
		time.Sleep(time.Millisecond)
	}
	if got := testutil.ToFloat64(m.Events.WithLabelValues("notifications")); got != 2 {
		t.Fatalf("notification events=%v", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestStateMetrics_RecordSendAndDuplicateRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := store.NewBroker()
	m, err := NewStateMetrics(reg, b)
	if err != nil {
		t.Fatal(err)
	}
	m.RecordSend("sent")
	m.RecordSend("sent")
	m.RecordSend("failed")
	if got := testutil.ToFloat64(m.Sends.WithLabelValues("sent")); got != 2 {
		t.Fatalf("sent=%v", got)
	}

	if _, err := NewStateMetrics(reg, b); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestStateMetrics_IgnoresRoomEventsForCredits(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, _ := NewStateMetrics(reg, store.NewBroker())
	m.Observe(store.Event{Kind: store.EventRooms, Payload: store.RoomState{Credits: 99}})
	if got := testutil.ToFloat64(m.Credits); got != 0 {
		t.Fatalf("credits=%v", got)
	}
}

func TestStateMetrics_SentEventUpdatesCredits(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, _ := NewStateMetrics(reg, store.NewBroker())
	m.Observe(store.Event{Kind: store.EventSent, Payload: store.RoomState{Credits: 41}})
	if got := testutil.ToFloat64(m.Credits); got != 41 {
		t.Fatalf("credits=%v", got)
	}
	if got := testutil.ToFloat64(m.Events.WithLabelValues("sent")); got != 1 {
		t.Fatalf("sent events=%v", got)
	}
}
