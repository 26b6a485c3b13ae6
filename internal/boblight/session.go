// Package boblight manages client sessions to boblight servers: the
// connection, per-channel color state, periodic frame sync and change
// notifications.
package boblight

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/boblightd/internal/boblight/protocol"
)

// AllChannels addresses every channel of a session.
const AllChannels = -1

// Defaults for Options.
const (
	DefaultPort           = 19333
	DefaultPriority       = 1
	DefaultConnectTimeout = 5 * time.Second
	DefaultSyncInterval   = 50 * time.Millisecond
)

// EventKind identifies what changed in a session.
type EventKind string

const (
	EventConnection EventKind = "connection"
	EventPower      EventKind = "power"
	EventBrightness EventKind = "brightness"
	EventColor      EventKind = "color"
	EventPriority   EventKind = "priority"
	// EventFrame is emitted for every interpolation step of a transition.
	EventFrame EventKind = "frame"
)

// Event is a session state change. SessionID identifies the originating
// session; the remaining fields are set according to Kind.
type Event struct {
	Kind       EventKind
	SessionID  string
	Channel    int
	Connected  bool
	Power      bool
	Brightness int
	Color      Color
	Priority   int
}

// Listener receives session events. Listeners are called without the
// session lock held, so they may call back into the session.
type Listener func(Event)

// Options configures a Session.
type Options struct {
	ID             string
	Host           string
	Port           int
	Priority       int
	DefaultColor   Color
	ConnectTimeout time.Duration
	// SyncInterval is the frame period. A negative value disables the
	// background loop; Sync must then be called by the owner.
	SyncInterval time.Duration
	Transition   time.Duration
	NewTransport func() Transport
	Now          func() time.Time
}

func (o *Options) applyDefaults() {
	if o.Host == "" {
		o.Host = "127.0.0.1"
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.ID == "" {
		o.ID = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.SyncInterval == 0 {
		o.SyncInterval = DefaultSyncInterval
	}
	if o.Transition == 0 {
		o.Transition = DefaultTransition
	}
	if o.NewTransport == nil {
		o.NewTransport = NewTCPTransport
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Session owns the connection to one boblight server and the channels it
// reports. Channels exist only while connected.
type Session struct {
	opts Options

	mu         sync.Mutex
	transport  Transport
	connected  bool
	connecting bool
	lastErr    error
	closed     bool
	priority   int
	channels   []*Channel

	stopSync context.CancelFunc
	syncDone chan struct{}

	listeners []Listener
	pending   []Event
}

// NewSession creates a disconnected session.
func NewSession(opts Options) *Session {
	opts.applyDefaults()
	return &Session{
		opts:     opts,
		priority: opts.Priority,
	}
}

// ID returns the session identity carried in every event.
func (s *Session) ID() string {
	return s.opts.ID
}

// Address returns host:port of the server.
func (s *Session) Address() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Subscribe registers a listener for session events.
func (s *Session) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Connected reports whether the session currently has a live transport.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// LastError returns the failure of the most recent connect attempt, wrapping
// ErrConnectFailure, or nil once a connect succeeded.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Priority returns the priority that is (or will be) asserted on the server.
func (s *Session) Priority() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priority
}

// LightCount returns the number of lights reported by the server, or 0
// when disconnected.
func (s *Session) LightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

// Connect opens the transport if not already connected. It blocks for at
// most the configured connect timeout and reports success; failures are
// logged and left to the caller to retry.
func (s *Session) Connect(ctx context.Context) bool {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return true
	}
	if s.closed || s.connecting {
		s.mu.Unlock()
		return false
	}
	s.connecting = true
	s.mu.Unlock()

	transport := s.opts.NewTransport()
	dialCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	err := transport.Open(dialCtx, s.opts.Host, s.opts.Port)
	cancel()

	s.mu.Lock()
	s.connecting = false

	if err == nil && s.closed {
		err = fmt.Errorf("session closed")
	}
	if err == nil {
		if perr := transport.SetPriority(s.priority); perr != nil {
			err = fmt.Errorf("set priority: %w", perr)
		}
	}
	if err != nil {
		s.lastErr = fmt.Errorf("%w: %v", ErrConnectFailure, err)
		log.Warn().
			Err(err).
			Str("session", s.opts.ID).
			Str("server", s.Address()).
			Str("transport_error", transport.LastError()).
			Msg("Failed to connect to boblight server")
		transport.Close()
		s.mu.Unlock()
		return false
	}

	s.transport = transport
	s.lastErr = nil
	count := transport.LightCount()
	s.channels = make([]*Channel, 0, count)
	for i := 0; i < count; i++ {
		ch := newChannel(i, s.opts.Transition, s.channelChanged)
		ch.SetColor(RGBA(255, 255, 255, 0))
		s.channels = append(s.channels, ch)
	}
	for _, ch := range s.channels {
		ch.SetColor(s.opts.DefaultColor)
	}

	s.connected = true
	s.startSyncLocked()
	s.queue(Event{Kind: EventConnection, Connected: true})

	ev := log.Info().
		Str("session", s.opts.ID).
		Str("server", s.Address()).
		Int("lights", count).
		Int("priority", s.priority)
	if announced, ok := transport.(interface{ Lights() []protocol.Light }); ok {
		names := make([]string, 0, count)
		for _, l := range announced.Lights() {
			names = append(names, l.Name)
		}
		ev = ev.Strs("light_names", names)
	}
	ev.Msg("Connected to boblight server")

	s.unlockAndNotify()
	return true
}

// SetPriority stores the priority and forwards it to the server when
// connected. It is re-asserted on every connect.
func (s *Session) SetPriority(priority int) error {
	s.mu.Lock()
	s.priority = priority
	var err error
	if s.connected {
		if perr := s.transport.SetPriority(priority); perr != nil {
			err = fmt.Errorf("%w: set priority: %v", ErrSyncFailure, perr)
		}
	}
	log.Debug().Str("session", s.opts.ID).Int("priority", priority).Bool("connected", s.connected).Msg("Priority set")
	s.queue(Event{Kind: EventPriority, Priority: priority})
	s.unlockAndNotify()
	return err
}

// SetColor animates a channel (or all channels) to color.
func (s *Session) SetColor(channel int, color Color) error {
	return s.apply(channel, func(Color) Color { return color })
}

// SetBrightness rescales the alpha of a channel to percent, keeping its RGB.
func (s *Session) SetBrightness(channel, percent int) error {
	alpha := BrightnessToAlpha(percent)
	return s.apply(channel, func(c Color) Color { return c.WithAlpha(alpha) })
}

// SetPower turns a channel on (alpha 255) or off (alpha 0), keeping its RGB.
func (s *Session) SetPower(channel int, on bool) error {
	alpha := 0
	if on {
		alpha = 255
	}
	return s.apply(channel, func(c Color) Color { return c.WithAlpha(alpha) })
}

// CurrentColor returns the live color of a channel.
func (s *Session) CurrentColor(channel int) (Color, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.channelLocked(channel)
	if err != nil {
		return Color{}, err
	}
	return ch.Color(), nil
}

// TargetColor returns the color a channel is transitioning to, or its live
// color when idle.
func (s *Session) TargetColor(channel int) (Color, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.channelLocked(channel)
	if err != nil {
		return Color{}, err
	}
	return ch.Target(), nil
}

// Sync advances transitions and pushes one frame to the server. A failed
// flush tears the connection down.
func (s *Session) Sync() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}

	now := s.opts.Now()
	for _, ch := range s.channels {
		ch.Tick(now)
		s.transport.AddPixel(ch.ID(), ch.Color().Scaled())
	}

	var err error
	if ferr := s.transport.Flush(); ferr != nil {
		err = fmt.Errorf("%w: %v", ErrSyncFailure, ferr)
		log.Warn().
			Err(ferr).
			Str("session", s.opts.ID).
			Str("server", s.Address()).
			Str("transport_error", s.transport.LastError()).
			Msg("Boblight connection error")
		s.teardownLocked()
		s.queue(Event{Kind: EventConnection, Connected: false})
	}
	s.unlockAndNotify()
	return err
}

// Close stops the sync loop, disposes all channels and releases the
// transport. A closed session never reconnects.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	stop, done := s.stopSync, s.syncDone
	s.stopSync, s.syncDone = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}

	s.mu.Lock()
	if s.connected {
		s.teardownLocked()
	}
	s.pending = nil
	s.mu.Unlock()

	log.Debug().Str("session", s.opts.ID).Msg("Session closed")
}

// apply computes a new target per addressed channel from its current target
// and starts the transition.
func (s *Session) apply(channel int, next func(Color) Color) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return ErrHardwareUnavailable
	}

	var targets []*Channel
	if channel == AllChannels {
		targets = s.channels
	} else {
		ch, err := s.channelLocked(channel)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		targets = []*Channel{ch}
	}

	now := s.opts.Now()
	for _, ch := range targets {
		prev := ch.Target()
		color := next(prev)
		ch.AnimateToColor(color, now)

		log.Debug().Str("session", s.opts.ID).Int("channel", ch.ID()).Stringer("color", color).Msg("Set channel color")

		if color != prev {
			s.queue(Event{Kind: EventColor, Channel: ch.ID(), Color: color})
		}
		if color.Power() != prev.Power() {
			s.queue(Event{Kind: EventPower, Channel: ch.ID(), Power: color.Power()})
		}
		if color.Brightness() != prev.Brightness() {
			s.queue(Event{Kind: EventBrightness, Channel: ch.ID(), Brightness: color.Brightness()})
		}
	}
	s.unlockAndNotify()
	return nil
}

func (s *Session) channelLocked(channel int) (*Channel, error) {
	if !s.connected {
		return nil, ErrHardwareUnavailable
	}
	if channel < 0 || channel >= len(s.channels) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	return s.channels[channel], nil
}

// channelChanged is the channel color hook; it runs with the lock held.
func (s *Session) channelChanged(id int, c Color) {
	if s.connected {
		s.queue(Event{Kind: EventFrame, Channel: id, Color: c})
	}
}

func (s *Session) startSyncLocked() {
	if s.opts.SyncInterval < 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.stopSync, s.syncDone = cancel, done
	go s.runSync(ctx, done)
}

func (s *Session) runSync(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.opts.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sync()
		}
	}
}

// teardownLocked stops the sync loop without waiting for it, so it is safe
// to call from the loop itself. The loop exits on its next tick.
func (s *Session) teardownLocked() {
	if s.stopSync != nil {
		s.stopSync()
		s.stopSync, s.syncDone = nil, nil
	}
	for _, ch := range s.channels {
		ch.dispose()
	}
	s.channels = nil
	if s.transport != nil {
		s.transport.Close()
		s.transport = nil
	}
	s.connected = false
}

func (s *Session) queue(ev Event) {
	ev.SessionID = s.opts.ID
	s.pending = append(s.pending, ev)
}

// unlockAndNotify releases the lock and delivers queued events.
func (s *Session) unlockAndNotify() {
	events := s.pending
	s.pending = nil
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, ev := range events {
		for _, l := range listeners {
			l(ev)
		}
	}
}
