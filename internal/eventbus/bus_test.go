package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func waitCount(t *testing.T, mu *sync.Mutex, n *int, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		got := *n
		mu.Unlock()
		if got >= want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("handled %d events, want %d", got, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBus_PublishRoutesByType(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	var mu sync.Mutex
	var power, color, all int
	b.Subscribe(EventTypePower, func(Event) { mu.Lock(); power++; mu.Unlock() })
	b.Subscribe(EventTypeColor, func(Event) { mu.Lock(); color++; mu.Unlock() })
	b.SubscribeAll(func(Event) { mu.Lock(); all++; mu.Unlock() })

	b.Publish(Event{Type: EventTypePower, DeviceID: "a"})
	b.Publish(Event{Type: EventTypePower, DeviceID: "b"})
	b.Publish(Event{Type: EventTypeColor, DeviceID: "a"})
	b.Publish(Event{Type: EventTypePriority, DeviceID: "a"})

	waitCount(t, &mu, &all, 4)
	waitCount(t, &mu, &power, 2)
	waitCount(t, &mu, &color, 1)
}

func TestBus_HandlerPanicRecovered(t *testing.T) {
	b := NewWithConfig(1, 10)
	defer b.Close(context.Background())

	var mu sync.Mutex
	var handled int
	b.Subscribe(EventTypeConnection, func(ev Event) {
		if ev.DeviceID == "boom" {
			panic("boom")
		}
		mu.Lock()
		handled++
		mu.Unlock()
	})

	b.Publish(Event{Type: EventTypeConnection, DeviceID: "boom"})
	b.Publish(Event{Type: EventTypeConnection, DeviceID: "ok"})

	waitCount(t, &mu, &handled, 1)
}

func TestBus_QueueFullDrops(t *testing.T) {
	release := make(chan struct{})
	b := NewWithConfig(1, 1)

	started := make(chan struct{}, 1)
	b.Subscribe(EventTypeAction, func(Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	b.Publish(Event{Type: EventTypeAction})
	<-started
	// worker blocked, queue holds one, the rest are dropped without blocking
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(Event{Type: EventTypeAction})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish() blocked on a full queue")
	}
	close(release)
	b.Close(context.Background())
}

func TestBus_PublishAfterClose(t *testing.T) {
	b := New()
	var called bool
	b.Subscribe(EventTypePower, func(Event) { called = true })

	b.Close(context.Background())
	b.Close(context.Background())
	b.Publish(Event{Type: EventTypePower})

	if called {
		t.Error("handler called after Close")
	}
}

func TestBus_Clear(t *testing.T) {
	b := NewWithConfig(1, 10)
	var mu sync.Mutex
	var n int
	b.SubscribeAll(func(Event) { mu.Lock(); n++; mu.Unlock() })
	b.Clear()
	b.Publish(Event{Type: EventTypeColor})
	b.Close(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if n != 0 {
		t.Errorf("handled = %d after Clear, want 0", n)
	}
}
