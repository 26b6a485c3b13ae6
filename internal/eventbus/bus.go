package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType represents the type of event
type EventType string

const (
	EventTypeConnection EventType = "connection"
	EventTypePower      EventType = "power"
	EventTypeBrightness EventType = "brightness"
	EventTypeColor      EventType = "color"
	EventTypePriority   EventType = "priority"
	EventTypeAction     EventType = "action"
)

// Default configuration
const (
	DefaultWorkerCount = 4
	DefaultQueueSize   = 100
)

// Event is a device state change or an executed action. DeviceID is the
// device the event is about; Data carries type specific fields.
type Event struct {
	Type     EventType
	DeviceID string
	Data     map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

type work struct {
	event   Event
	handler Handler
}

// Bus provides event routing with a bounded worker pool. Handlers for one
// event run concurrently with handlers for others, so no ordering between
// events is guaranteed.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	wildcard []Handler
	closed   bool

	workQueue chan work
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a new event bus with default settings
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a new event bus with custom worker count and queue size
func NewWithConfig(workerCount, queueSize int) *Bus {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	b := &Bus{
		handlers:  make(map[EventType][]Handler),
		workQueue: make(chan work, queueSize),
	}

	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for w := range b.workQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event_type", string(w.event.Type)).
						Str("device", w.event.DeviceID).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(w.event)
		}()
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.wildcard = append(b.wildcard, handler)
}

// Publish sends an event to all subscribed handlers.
// Non-blocking: if the work queue is full or the bus is closed, events are dropped.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		log.Warn().Str("event_type", string(event.Type)).Msg("Event bus closed, dropping event")
		return
	}

	handlers := b.handlers[event.Type]
	for _, list := range [][]Handler{handlers, b.wildcard} {
		for _, handler := range list {
			select {
			case b.workQueue <- work{event: event, handler: handler}:
			default:
				log.Warn().
					Str("event_type", string(event.Type)).
					Str("device", event.DeviceID).
					Msg("Event bus queue full, dropping event")
			}
		}
	}
}

// Close stops accepting events, drains the queue and waits for workers
// until ctx expires. It is safe to call more than once.
func (b *Bus) Close(ctx context.Context) {
	b.closeOnce.Do(func() {
		// Publish holds the read lock while sending, so no send can race the close.
		b.mu.Lock()
		b.closed = true
		close(b.workQueue)
		b.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}

// Clear removes all handlers
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = make(map[EventType][]Handler)
	b.wildcard = nil
}
