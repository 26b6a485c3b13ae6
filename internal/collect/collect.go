// Package collect batches device events before they reach a handler.
package collect

import (
	"fmt"
	"sync"
	"time"
)

// FlushFunc receives a batch of events, oldest first.
type FlushFunc func(events []map[string]any)

// Collector accumulates events and flushes them according to its strategy.
type Collector interface {
	Add(event map[string]any)
	Close()
}

// Kind names a batching strategy.
type Kind string

const (
	KindImmediate Kind = ""
	KindQuiet     Kind = "quiet"
	KindCount     Kind = "count"
	KindInterval  Kind = "interval"
)

// Spec describes a collector. The zero value flushes every event on its own.
type Spec struct {
	Kind  Kind
	Wait  time.Duration // quiet period or interval
	Count int
}

// Quiet flushes once no event arrived for d.
func Quiet(d time.Duration) Spec { return Spec{Kind: KindQuiet, Wait: d} }

// Count flushes every n events.
func Count(n int) Spec { return Spec{Kind: KindCount, Count: n} }

// Interval flushes d after the first event of a batch.
func Interval(d time.Duration) Spec { return Spec{Kind: KindInterval, Wait: d} }

// Immediate reports whether events pass through unbatched.
func (s Spec) Immediate() bool {
	return s.Kind == KindImmediate
}

// Validate checks the strategy parameters.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindImmediate:
		return nil
	case KindQuiet, KindInterval:
		if s.Wait <= 0 {
			return fmt.Errorf("%s collector needs a positive duration", s.Kind)
		}
	case KindCount:
		if s.Count <= 0 {
			return fmt.Errorf("count collector needs a positive count")
		}
	default:
		return fmt.Errorf("unknown collector %q", s.Kind)
	}
	return nil
}

// New creates the collector described by s.
func (s Spec) New(onFlush FlushFunc) Collector {
	switch s.Kind {
	case KindQuiet:
		return &timed{wait: s.Wait, restart: true, onFlush: onFlush}
	case KindInterval:
		return &timed{wait: s.Wait, onFlush: onFlush}
	case KindCount:
		return &counted{target: s.Count, onFlush: onFlush}
	default:
		return immediate(onFlush)
	}
}

type immediate FlushFunc

func (f immediate) Add(event map[string]any) { f([]map[string]any{event}) }
func (f immediate) Close()                   {}

// counted flushes once target events are pending.
type counted struct {
	mu      sync.Mutex
	events  []map[string]any
	target  int
	onFlush FlushFunc
}

func (c *counted) Add(event map[string]any) {
	c.mu.Lock()
	c.events = append(c.events, event)
	var batch []map[string]any
	if len(c.events) >= c.target {
		batch, c.events = c.events, nil
	}
	c.mu.Unlock()

	if batch != nil {
		c.onFlush(batch)
	}
}

func (c *counted) Close() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

// timed flushes wait after the first pending event, or after the last one
// when restart is set.
type timed struct {
	mu      sync.Mutex
	events  []map[string]any
	wait    time.Duration
	restart bool
	timer   *time.Timer
	closed  bool
	onFlush FlushFunc
}

func (c *timed) Add(event map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.events = append(c.events, event)
	switch {
	case c.timer == nil:
		c.timer = time.AfterFunc(c.wait, c.flush)
	case c.restart:
		c.timer.Stop()
		c.timer = time.AfterFunc(c.wait, c.flush)
	}
}

func (c *timed) flush() {
	c.mu.Lock()
	batch := c.events
	c.events = nil
	c.timer = nil
	closed := c.closed
	c.mu.Unlock()

	if len(batch) > 0 && !closed {
		c.onFlush(batch)
	}
}

// Close stops the timer. Pending events are dropped.
func (c *timed) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.events = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
