// Package reconnect periodically reconnects boblight sessions that lost
// their server.
package reconnect

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultInterval is the time between two reconnect passes.
const DefaultInterval = 15 * time.Second

// Target is something the supervisor can reconnect.
type Target interface {
	ID() string
	Connected() bool
	Connect(ctx context.Context) bool
}

// Source returns the current set of targets. It is called on every pass so
// targets added or removed at runtime are picked up.
type Source func() []Target

// Supervisor probes all disconnected targets at a fixed interval. There is
// no backoff: every pass tries every disconnected target once.
type Supervisor struct {
	source   Source
	interval time.Duration
	trigger  chan struct{}

	mu      sync.Mutex
	offline map[string]*rate.Sometimes
}

// New creates a supervisor. A zero interval means DefaultInterval.
func New(source Source, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Supervisor{
		source:   source,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		offline:  make(map[string]*rate.Sometimes),
	}
}

// Interval returns the time between passes.
func (s *Supervisor) Interval() time.Duration {
	return s.interval
}

// Trigger requests an immediate pass.
func (s *Supervisor) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
		// Already triggered
	}
}

// Run probes targets until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	log.Info().Dur("interval", s.interval).Msg("Reconnect supervisor started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconnect supervisor stopping")
			return nil
		case <-s.trigger:
			s.Probe(ctx)
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Probe runs one pass and returns how many targets were reconnected.
func (s *Supervisor) Probe(ctx context.Context) int {
	targets := s.source()
	reconnected := 0

	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		if t.Connected() {
			s.forget(t.ID())
			continue
		}

		log.Debug().Str("target", t.ID()).Msg("Attempting reconnect")
		if t.Connect(ctx) {
			reconnected++
			s.forget(t.ID())
			log.Info().Str("target", t.ID()).Msg("Reconnected")
			continue
		}

		s.throttle(t.ID()).Do(func() {
			ev := log.Warn().Str("target", t.ID()).Dur("retry_in", s.interval)
			if r, ok := t.(interface{ LastError() error }); ok {
				ev = ev.Err(r.LastError())
			}
			ev.Msg("Server still offline")
		})
	}

	s.prune(targets)
	log.Debug().Int("targets", len(targets)).Int("reconnected", reconnected).Msg("Reconnect pass completed")
	return reconnected
}

// throttle returns the per-target log limiter: the first failure and then
// one in every ten is logged at warn level.
func (s *Supervisor) throttle(id string) *rate.Sometimes {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.offline[id]
	if !ok {
		st = &rate.Sometimes{First: 1, Every: 10}
		s.offline[id] = st
	}
	return st
}

// prune drops limiters of targets the source no longer returns.
func (s *Supervisor) prune(targets []Target) {
	live := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		live[t.ID()] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.offline {
		if _, ok := live[id]; !ok {
			delete(s.offline, id)
		}
	}
}

func (s *Supervisor) forget(id string) {
	s.mu.Lock()
	delete(s.offline, id)
	s.mu.Unlock()
}
