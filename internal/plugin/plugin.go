// Package plugin exposes boblight servers and their lights as devices. It
// owns one Session per server device, mirrors session state into the device
// store, creates missing channel devices and routes actions to sessions.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/boblightd/internal/actions"
	"github.com/dokzlo13/boblightd/internal/boblight"
	"github.com/dokzlo13/boblightd/internal/device"
	"github.com/dokzlo13/boblightd/internal/eventbus"
	"github.com/dokzlo13/boblightd/internal/ledger"
	"github.com/dokzlo13/boblightd/internal/reconnect"
	"github.com/dokzlo13/boblightd/internal/storage"
	"github.com/dokzlo13/boblightd/internal/stores"
)

var (
	// ErrDeviceNotFound is returned for an unknown device id.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrActionTypeNotFound is returned for an action the device does not support.
	ErrActionTypeNotFound = actions.ErrActionNotFound

	// ErrInvalidParam is returned for missing or malformed action arguments.
	ErrInvalidParam = actions.ErrInvalidParam
)

// ServerSpec describes a configured boblight server.
type ServerSpec struct {
	Name     string
	Host     string
	Port     int
	Channels int
	Priority int
}

// Options are applied to every session the plugin creates.
type Options struct {
	DefaultColor   boblight.Color
	SyncInterval   time.Duration
	ConnectTimeout time.Duration
	Transition     time.Duration
	NewTransport   func() boblight.Transport
	Now            func() time.Time
}

// Command is an action invocation against a device.
type Command struct {
	DeviceID       string
	Action         string
	Args           map[string]any
	Source         string
	IdempotencyKey string
}

// Plugin manages server and channel devices.
type Plugin struct {
	opts    Options
	store   *storage.TypedStore[device.Device]
	invoker *actions.Invoker
	bus     *eventbus.Bus
	ledger  *ledger.Ledger

	mu       sync.RWMutex
	devices  map[string]*device.Device
	sessions map[string]*boblight.Session
}

// New creates a plugin. bus and l may be nil.
func New(opts Options, registry *stores.Registry, invoker *actions.Invoker, bus *eventbus.Bus, l *ledger.Ledger) *Plugin {
	return &Plugin{
		opts:     opts,
		store:    registry.Devices(),
		invoker:  invoker,
		bus:      bus,
		ledger:   l,
		devices:  make(map[string]*device.Device),
		sessions: make(map[string]*boblight.Session),
	}
}

// Load reads persisted devices. Channel devices whose server is gone are
// dropped.
func (p *Plugin) Load() error {
	all, err := p.store.GetAll()
	if err != nil {
		return fmt.Errorf("failed to load devices: %w", err)
	}

	p.mu.Lock()
	for id, d := range all {
		d := d
		d.States.Connected = false
		p.devices[id] = &d
	}
	var orphans []string
	for id, d := range p.devices {
		if !d.IsServer() {
			if parent, ok := p.devices[d.ParentID]; !ok || !parent.IsServer() {
				orphans = append(orphans, id)
			}
		}
	}
	for _, id := range orphans {
		delete(p.devices, id)
	}
	count := len(p.devices)
	p.mu.Unlock()

	if err := p.store.Delete(orphans...); err != nil {
		log.Error().Err(err).Int("orphans", len(orphans)).Msg("Failed to delete orphaned channels")
	}

	log.Info().Int("devices", count).Int("orphans_removed", len(orphans)).Msg("Loaded devices")
	return nil
}

// LoadServers sets up a server device for every spec, reusing the persisted
// device with the same host and port. Persisted servers not in specs are
// removed together with their channels.
func (p *Plugin) LoadServers(ctx context.Context, specs []ServerSpec) error {
	keep := make(map[string]bool)

	for _, spec := range specs {
		if spec.Port == 0 {
			spec.Port = boblight.DefaultPort
		}
		dev := device.Device{Class: device.ClassServer}
		if existing, ok := p.findServer(spec.Host, spec.Port); ok {
			dev = existing
		} else {
			dev.ID = uuid.NewString()
		}
		dev.Name = spec.Name
		if dev.Name == "" {
			dev.Name = fmt.Sprintf("%s:%d", spec.Host, spec.Port)
		}
		dev.Params = device.Params{
			Host:     spec.Host,
			Port:     spec.Port,
			Channels: spec.Channels,
			Priority: spec.Priority,
		}
		keep[dev.ID] = true

		if err := p.SetupServer(ctx, dev); err != nil {
			return err
		}
	}

	for _, d := range p.Devices() {
		if d.IsServer() && !keep[d.ID] {
			log.Info().Str("device", d.ID).Str("name", d.Name).Msg("Removing server no longer configured")
			p.RemoveDevice(d.ID)
		}
	}
	return nil
}

// SetupServer registers a server device, creates its session and attempts
// one connection. The server stays registered when that attempt fails so
// the reconnect supervisor can retry it.
func (p *Plugin) SetupServer(ctx context.Context, dev device.Device) error {
	if dev.ID == "" {
		dev.ID = uuid.NewString()
	}
	dev.Class = device.ClassServer
	if dev.Params.Port == 0 {
		dev.Params.Port = boblight.DefaultPort
	}
	dev.States.Connected = false
	dev.States.Priority = dev.Params.Priority

	session := boblight.NewSession(boblight.Options{
		ID:             dev.ID,
		Host:           dev.Params.Host,
		Port:           dev.Params.Port,
		Priority:       dev.Params.Priority,
		DefaultColor:   p.opts.DefaultColor,
		ConnectTimeout: p.opts.ConnectTimeout,
		SyncInterval:   p.opts.SyncInterval,
		Transition:     p.opts.Transition,
		NewTransport:   p.opts.NewTransport,
		Now:            p.opts.Now,
	})
	session.Subscribe(p.handleSessionEvent)

	p.mu.Lock()
	if _, exists := p.sessions[dev.ID]; exists {
		p.mu.Unlock()
		session.Close()
		return fmt.Errorf("server %s already set up", dev.ID)
	}
	p.devices[dev.ID] = &dev
	p.sessions[dev.ID] = session
	p.mu.Unlock()

	p.persist(dev)

	log.Info().
		Str("device", dev.ID).
		Str("name", dev.Name).
		Str("server", dev.Address()).
		Msg("Setting up boblight server")

	if !session.Connect(ctx) {
		log.Warn().Str("device", dev.ID).Str("server", dev.Address()).Msg("Boblight server unavailable, will retry")
	}
	p.discover(dev.ID)
	return nil
}

// RemoveDevice removes a device. Removing a server closes its session and
// removes its channels.
func (p *Plugin) RemoveDevice(id string) error {
	p.mu.Lock()
	dev, ok := p.devices[id]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	removed := []string{id}
	var session *boblight.Session
	if dev.IsServer() {
		session = p.sessions[id]
		delete(p.sessions, id)
		for cid, d := range p.devices {
			if d.ParentID == id {
				removed = append(removed, cid)
			}
		}
	}
	for _, rid := range removed {
		delete(p.devices, rid)
	}
	p.mu.Unlock()

	if session != nil {
		session.Close()
	}
	if err := p.store.Delete(removed...); err != nil {
		log.Error().Err(err).Str("device", id).Msg("Failed to delete device")
	}

	log.Info().Str("device", id).Int("removed", len(removed)).Msg("Device removed")
	return nil
}

// Execute runs an action against a device.
func (p *Plugin) Execute(ctx context.Context, cmd Command) error {
	p.mu.RLock()
	dev, ok := p.devices[cmd.DeviceID]
	var (
		snapshot device.Device
		session  *boblight.Session
	)
	if ok {
		snapshot = *dev
		session = p.sessions[serverOf(snapshot)]
	}
	p.mu.RUnlock()

	req := actions.Request{
		Action:         cmd.Action,
		Target:         actions.Target{DeviceID: cmd.DeviceID, Channel: boblight.AllChannels},
		Args:           cmd.Args,
		Source:         cmd.Source,
		IdempotencyKey: cmd.IdempotencyKey,
	}
	if !ok {
		return p.invoker.Reject(req, fmt.Errorf("%w: %s", ErrDeviceNotFound, cmd.DeviceID))
	}
	if !p.supports(snapshot, cmd.Action) {
		return p.invoker.Reject(req, fmt.Errorf("%w: %q for %s device", ErrActionTypeNotFound, cmd.Action, snapshot.Class))
	}
	if session == nil || !session.Connected() {
		log.Warn().Str("device", snapshot.ID).Str("action", cmd.Action).Msg("Boblight server not connected")
		return p.invoker.Reject(req, boblight.ErrHardwareUnavailable)
	}

	if !snapshot.IsServer() {
		req.Target.Channel = snapshot.Params.Channel
	}
	req.Target.Lights = session

	err := p.invoker.Invoke(ctx, req)

	data := map[string]any{
		"action": cmd.Action,
		"args":   cmd.Args,
		"source": cmd.Source,
	}
	if err != nil {
		data["error"] = err.Error()
	} else {
		p.trackTemperature(snapshot, cmd)
	}
	p.publish(eventbus.EventTypeAction, snapshot.ID, data)
	return err
}

// Devices returns all devices, each server followed by its channels.
func (p *Plugin) Devices() []device.Device {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]device.Device, 0, len(p.devices))
	for _, d := range p.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		return p.lessLocked(out[i], out[j])
	})
	return out
}

// Device returns one device.
func (p *Plugin) Device(id string) (device.Device, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	d, ok := p.devices[id]
	if !ok {
		return device.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return *d, nil
}

// Children returns the channel devices of a server ordered by index.
func (p *Plugin) Children(serverID string) []device.Device {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.childrenLocked(serverID)
}

// ActionNames returns the actions a device supports.
func (p *Plugin) ActionNames(d device.Device) []string {
	return p.invoker.Registry().NamesFor(d.Class)
}

// Ready reports whether no servers are configured or at least one is connected.
func (p *Plugin) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.sessions) == 0 {
		return true
	}
	for _, s := range p.sessions {
		if s.Connected() {
			return true
		}
	}
	return false
}

// ReconnectTargets returns the sessions for the reconnect supervisor.
func (p *Plugin) ReconnectTargets() []reconnect.Target {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]reconnect.Target, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, s)
	}
	return out
}

// Close closes all sessions. Devices stay persisted.
func (p *Plugin) Close() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*boblight.Session)
	p.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	log.Debug().Int("sessions", len(sessions)).Msg("Plugin closed")
}

func (p *Plugin) supports(d device.Device, action string) bool {
	return p.invoker.Registry().Supports(action, d.Class)
}

// trackTemperature keeps the color_temperature state, which cannot be
// derived from the session color.
func (p *Plugin) trackTemperature(d device.Device, cmd Command) {
	var mired int
	switch cmd.Action {
	case actions.ActionColorTemperature:
		mired, _ = actions.Int(cmd.Args, "mired")
	case actions.ActionColor:
	default:
		return
	}

	ids := []string{d.ID}
	if d.IsServer() {
		ids = nil
		for _, c := range p.Children(d.ID) {
			ids = append(ids, c.ID)
		}
	}
	for _, id := range ids {
		p.updateDevice(id, func(dev *device.Device) {
			dev.States.ColorTemperature = mired
		})
	}
}

func (p *Plugin) findServer(host string, port int) (device.Device, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, d := range p.devices {
		if d.IsServer() && d.Params.Host == host && d.Params.Port == port {
			return *d, true
		}
	}
	return device.Device{}, false
}

func (p *Plugin) session(id string) *boblight.Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sessions[id]
}

func (p *Plugin) childrenLocked(serverID string) []device.Device {
	var out []device.Device
	for _, d := range p.devices {
		if d.ParentID == serverID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Params.Channel < out[j].Params.Channel
	})
	return out
}

func (p *Plugin) channelDeviceLocked(serverID string, channel int) *device.Device {
	for _, d := range p.devices {
		if d.ParentID == serverID && d.Params.Channel == channel {
			return d
		}
	}
	return nil
}

// lessLocked orders servers by name, each followed by its channels by index.
func (p *Plugin) lessLocked(a, b device.Device) bool {
	sa, sb := p.serverNameLocked(a), p.serverNameLocked(b)
	if sa != sb {
		return sa < sb
	}
	if serverOf(a) != serverOf(b) {
		return serverOf(a) < serverOf(b)
	}
	if a.IsServer() != b.IsServer() {
		return a.IsServer()
	}
	return a.Params.Channel < b.Params.Channel
}

func (p *Plugin) serverNameLocked(d device.Device) string {
	if d.IsServer() {
		return d.Name
	}
	if parent, ok := p.devices[d.ParentID]; ok {
		return parent.Name
	}
	return ""
}

func (p *Plugin) updateDevice(id string, modify func(*device.Device)) (device.Device, bool) {
	p.mu.Lock()
	d, ok := p.devices[id]
	if !ok {
		p.mu.Unlock()
		return device.Device{}, false
	}
	modify(d)
	snapshot := *d
	p.mu.Unlock()

	p.persist(snapshot)
	return snapshot, true
}

func (p *Plugin) persist(d device.Device) {
	if _, err := p.store.Save(d.ID, d); err != nil {
		log.Error().Err(err).Str("device", d.ID).Msg("Failed to persist device")
	}
}

func (p *Plugin) publish(eventType eventbus.EventType, deviceID string, data map[string]any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: eventType, DeviceID: deviceID, Data: data})
}

func serverOf(d device.Device) string {
	if d.IsServer() {
		return d.ID
	}
	return d.ParentID
}
