package reconnect

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeTarget struct {
	id string

	mu        sync.Mutex
	connected bool
	succeed   bool
	attempts  int
}

func (f *fakeTarget) ID() string { return f.id }

func (f *fakeTarget) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTarget) Connect(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.succeed {
		f.connected = true
	}
	return f.connected
}

func (f *fakeTarget) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func sourceOf(targets ...*fakeTarget) Source {
	return func() []Target {
		out := make([]Target, len(targets))
		for i, t := range targets {
			out[i] = t
		}
		return out
	}
}

func TestProbe_OnlyDisconnected(t *testing.T) {
	online := &fakeTarget{id: "online", connected: true}
	offline := &fakeTarget{id: "offline", succeed: true}
	dead := &fakeTarget{id: "dead"}

	s := New(sourceOf(online, offline, dead), time.Hour)
	got := s.Probe(context.Background())

	if got != 1 {
		t.Errorf("Probe() = %d, want 1", got)
	}
	if online.Attempts() != 0 {
		t.Errorf("connected target attempts = %d, want 0", online.Attempts())
	}
	if offline.Attempts() != 1 || !offline.Connected() {
		t.Errorf("offline target attempts = %d connected = %v, want 1 true", offline.Attempts(), offline.Connected())
	}
	if dead.Attempts() != 1 {
		t.Errorf("dead target attempts = %d, want 1", dead.Attempts())
	}

	// Second pass retries only the one still offline, with no backoff.
	s.Probe(context.Background())
	if offline.Attempts() != 1 {
		t.Errorf("reconnected target attempts = %d, want 1", offline.Attempts())
	}
	if dead.Attempts() != 2 {
		t.Errorf("dead target attempts = %d, want 2", dead.Attempts())
	}
}

func TestProbe_CancelledContext(t *testing.T) {
	dead := &fakeTarget{id: "dead"}
	s := New(sourceOf(dead), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Probe(ctx)

	if dead.Attempts() != 0 {
		t.Errorf("attempts with cancelled context = %d, want 0", dead.Attempts())
	}
}

func TestProbe_DynamicSource(t *testing.T) {
	var mu sync.Mutex
	var targets []*fakeTarget
	s := New(func() []Target {
		mu.Lock()
		defer mu.Unlock()
		out := make([]Target, len(targets))
		for i, t := range targets {
			out[i] = t
		}
		return out
	}, time.Hour)

	if got := s.Probe(context.Background()); got != 0 {
		t.Errorf("Probe() with no targets = %d, want 0", got)
	}

	added := &fakeTarget{id: "added", succeed: true}
	mu.Lock()
	targets = append(targets, added)
	mu.Unlock()

	if got := s.Probe(context.Background()); got != 1 {
		t.Errorf("Probe() after add = %d, want 1", got)
	}
}

func TestProbe_PrunesRemovedTargets(t *testing.T) {
	var mu sync.Mutex
	dead := &fakeTarget{id: "dead"}
	removed := &fakeTarget{id: "removed"}
	targets := []*fakeTarget{dead, removed}
	s := New(func() []Target {
		mu.Lock()
		defer mu.Unlock()
		out := make([]Target, len(targets))
		for i, t := range targets {
			out[i] = t
		}
		return out
	}, time.Hour)

	s.Probe(context.Background())
	if n := len(s.offline); n != 2 {
		t.Fatalf("tracked offline targets = %d, want 2", n)
	}

	mu.Lock()
	targets = targets[:1]
	mu.Unlock()
	s.Probe(context.Background())

	if _, ok := s.offline["removed"]; ok {
		t.Error("removed target still tracked")
	}
	if _, ok := s.offline["dead"]; !ok {
		t.Error("offline target no longer tracked")
	}
}

func TestRun_TriggerAndStop(t *testing.T) {
	target := &fakeTarget{id: "t", succeed: true}
	s := New(sourceOf(target), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Trigger()
	s.Trigger() // coalesced

	deadline := time.Now().Add(2 * time.Second)
	for !target.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("Trigger() did not run a pass")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop on cancel")
	}
}

func TestNew_DefaultInterval(t *testing.T) {
	s := New(sourceOf(), 0)
	if s.Interval() != DefaultInterval {
		t.Errorf("Interval() = %v, want %v", s.Interval(), DefaultInterval)
	}
}
