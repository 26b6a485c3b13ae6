package collect

import (
	"sync"
	"testing"
	"time"
)

type sink struct {
	mu      sync.Mutex
	batches [][]map[string]any
}

func (s *sink) flush(events []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, events)
}

func (s *sink) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.batches))
	for i, b := range s.batches {
		out[i] = len(b)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func ev(n int) map[string]any { return map[string]any{"n": n} }

func TestImmediate(t *testing.T) {
	s := &sink{}
	c := Spec{}.New(s.flush)
	c.Add(ev(1))
	c.Add(ev(2))
	if got := s.sizes(); len(got) != 2 || got[0] != 1 || got[1] != 1 {
		t.Errorf("batches = %v, want [1 1]", got)
	}
}

func TestCount(t *testing.T) {
	s := &sink{}
	c := Count(3).New(s.flush)
	for i := 0; i < 7; i++ {
		c.Add(ev(i))
	}
	got := s.sizes()
	if len(got) != 2 || got[0] != 3 || got[1] != 3 {
		t.Fatalf("batches = %v, want [3 3]", got)
	}
	if s.batches[1][0]["n"] != 3 {
		t.Errorf("second batch starts with %v, want 3", s.batches[1][0]["n"])
	}
	c.Close()
}

func TestInterval(t *testing.T) {
	s := &sink{}
	c := Interval(20 * time.Millisecond).New(s.flush)
	defer c.Close()

	c.Add(ev(1))
	c.Add(ev(2))
	waitFor(t, func() bool { return len(s.sizes()) == 1 })
	if got := s.sizes(); got[0] != 2 {
		t.Errorf("batch size = %d, want 2", got[0])
	}

	c.Add(ev(3))
	waitFor(t, func() bool { return len(s.sizes()) == 2 })
}

func TestQuiet(t *testing.T) {
	s := &sink{}
	c := Quiet(30 * time.Millisecond).New(s.flush)
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.Add(ev(i))
		time.Sleep(5 * time.Millisecond)
	}
	waitFor(t, func() bool { return len(s.sizes()) == 1 })
	if got := s.sizes(); got[0] != 3 {
		t.Errorf("batch size = %d, want 3", got[0])
	}
}

func TestCloseDropsPending(t *testing.T) {
	s := &sink{}
	c := Interval(10 * time.Millisecond).New(s.flush)
	c.Add(ev(1))
	c.Close()
	c.Add(ev(2))

	time.Sleep(40 * time.Millisecond)
	if got := s.sizes(); len(got) != 0 {
		t.Errorf("batches after Close = %v, want none", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"immediate", Spec{}, false},
		{"quiet", Quiet(time.Second), false},
		{"quiet zero", Quiet(0), true},
		{"interval negative", Interval(-time.Second), true},
		{"count", Count(2), false},
		{"count zero", Count(0), true},
		{"unknown", Spec{Kind: "burst"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.spec.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
