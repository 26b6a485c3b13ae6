package plugin

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/boblightd/internal/boblight"
	"github.com/dokzlo13/boblightd/internal/device"
	"github.com/dokzlo13/boblightd/internal/eventbus"
	"github.com/dokzlo13/boblightd/internal/ledger"
)

// handleSessionEvent mirrors session changes into device states. Values
// are read back from the session, which is the source of truth.
func (p *Plugin) handleSessionEvent(ev boblight.Event) {
	switch ev.Kind {
	case boblight.EventConnection:
		p.onConnection(ev)
	case boblight.EventPriority:
		p.onPriority(ev)
	case boblight.EventPower, boblight.EventBrightness, boblight.EventColor:
		p.onChannelState(ev)
	}
}

func (p *Plugin) onConnection(ev boblight.Event) {
	p.mu.Lock()
	var changed []device.Device
	for _, d := range p.devices {
		if d.ID == ev.SessionID || d.ParentID == ev.SessionID {
			d.States.Connected = ev.Connected
			changed = append(changed, *d)
		}
	}
	p.mu.Unlock()

	for _, d := range changed {
		p.persist(d)
	}

	eventType := ledger.EventServerDisconnected
	if ev.Connected {
		eventType = ledger.EventServerConnected
	}
	if p.ledger != nil {
		if err := p.ledger.Append(ledger.Record{EventType: eventType, DeviceID: ev.SessionID}); err != nil {
			log.Error().Err(err).Str("device", ev.SessionID).Msg("Failed to record connection change")
		}
	}
	p.publish(eventbus.EventTypeConnection, ev.SessionID, map[string]any{
		"connected": ev.Connected,
	})

	if ev.Connected {
		p.discover(ev.SessionID)
		p.restore(ev.SessionID)
	}
}

func (p *Plugin) onPriority(ev boblight.Event) {
	d, ok := p.updateDevice(ev.SessionID, func(d *device.Device) {
		d.States.Priority = ev.Priority
	})
	if !ok {
		return
	}
	p.publish(eventbus.EventTypePriority, d.ID, map[string]any{
		"priority": ev.Priority,
	})
}

func (p *Plugin) onChannelState(ev boblight.Event) {
	session := p.session(ev.SessionID)
	if session == nil {
		return
	}
	target, err := session.TargetColor(ev.Channel)
	if err != nil {
		return
	}

	p.mu.Lock()
	d := p.channelDeviceLocked(ev.SessionID, ev.Channel)
	if d == nil {
		p.mu.Unlock()
		return
	}
	mirrorColor(&d.States, target)
	snapshot := *d
	p.mu.Unlock()

	p.persist(snapshot)

	var eventType eventbus.EventType
	switch ev.Kind {
	case boblight.EventPower:
		eventType = eventbus.EventTypePower
	case boblight.EventBrightness:
		eventType = eventbus.EventTypeBrightness
	default:
		eventType = eventbus.EventTypeColor
	}
	p.publish(eventType, snapshot.ID, map[string]any{
		"server_id":  ev.SessionID,
		"channel":    ev.Channel,
		"power":      snapshot.States.Power,
		"brightness": snapshot.States.Brightness,
		"color":      snapshot.States.Color,
	})
}

// discover creates channel devices for every channel index of a server that
// has none. The count comes from the server when connected and from the
// configured channels otherwise.
func (p *Plugin) discover(serverID string) {
	p.mu.Lock()
	server, ok := p.devices[serverID]
	session := p.sessions[serverID]
	if !ok || session == nil {
		p.mu.Unlock()
		return
	}

	connected := session.Connected()
	count := server.Params.Channels
	if connected {
		count = session.LightCount()
	}

	have := make(map[int]bool)
	for _, d := range p.devices {
		if d.ParentID == serverID {
			have[d.Params.Channel] = true
		}
	}

	var created []device.Device
	for i := 0; i < count; i++ {
		if have[i] {
			continue
		}
		d := device.Device{
			ID:       uuid.NewString(),
			Class:    device.ClassChannel,
			Name:     device.ChannelName(server.Name, i),
			ParentID: serverID,
			Params:   device.Params{Channel: i},
		}
		initial := p.opts.DefaultColor
		if connected {
			if c, err := session.TargetColor(i); err == nil {
				initial = c
			}
		}
		mirrorColor(&d.States, initial)
		d.States.Connected = connected

		p.devices[d.ID] = &d
		created = append(created, d)
	}
	p.mu.Unlock()

	for _, d := range created {
		p.persist(d)
		log.Info().
			Str("device", d.ID).
			Str("name", d.Name).
			Str("server", serverID).
			Int("channel", d.Params.Channel).
			Msg("Added boblight channel")
	}
}

// restore re-applies the stored color, brightness and power of every
// channel device after its server connected.
func (p *Plugin) restore(serverID string) {
	session := p.session(serverID)
	if session == nil {
		return
	}

	for _, d := range p.Children(serverID) {
		if d.States.Color == "" {
			continue
		}
		c, err := boblight.ParseColor(d.States.Color)
		if err != nil {
			log.Warn().Err(err).Str("device", d.ID).Msg("Ignoring stored channel color")
			continue
		}
		alpha := 0
		if d.States.Power {
			alpha = boblight.BrightnessToAlpha(d.States.Brightness)
		}
		if err := session.SetColor(d.Params.Channel, c.WithAlpha(alpha)); err != nil {
			log.Debug().Err(err).Str("device", d.ID).Int("channel", d.Params.Channel).Msg("Channel state not restored")
		}
	}
}

func mirrorColor(s *device.States, c boblight.Color) {
	s.Power = c.Power()
	s.Brightness = c.Brightness()
	s.Color = c.Hex()
}
