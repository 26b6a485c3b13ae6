package modules

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/boblightd/internal/actions"
	"github.com/dokzlo13/boblightd/internal/collect"
	"github.com/dokzlo13/boblightd/internal/device"
	"github.com/dokzlo13/boblightd/internal/plugin"
)

// Controller is the device surface scripts drive.
type Controller interface {
	Devices() []device.Device
	Execute(ctx context.Context, cmd plugin.Command) error
}

// BoblightModule provides device control and event hooks to Lua.
type BoblightModule struct {
	controller Controller

	mu           sync.Mutex
	onConnection []*Handler
	onState      []*Handler
}

// Handler is a registered Lua callback. A handler with a batching Spec
// receives an array of events instead of a single event.
type Handler struct {
	Fn    *lua.LFunction
	Batch collect.Spec
}

// NewBoblightModule creates a new boblight module
func NewBoblightModule(controller Controller) *BoblightModule {
	return &BoblightModule{controller: controller}
}

// Loader is the module loader for Lua
func (m *BoblightModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "devices", L.NewFunction(m.devices))
	L.SetField(mod, "power", L.NewFunction(m.power))
	L.SetField(mod, "brightness", L.NewFunction(m.brightness))
	L.SetField(mod, "color", L.NewFunction(m.color))
	L.SetField(mod, "temperature", L.NewFunction(m.temperature))
	L.SetField(mod, "priority", L.NewFunction(m.priority))
	L.SetField(mod, "on_connection", L.NewFunction(m.registerConnection))
	L.SetField(mod, "on_state", L.NewFunction(m.registerState))

	L.Push(mod)
	return 1
}

// devices() -> list of device tables
func (m *BoblightModule) devices(L *lua.LState) int {
	list := L.NewTable()
	for _, d := range m.controller.Devices() {
		list.Append(deviceTable(L, d))
	}
	L.Push(list)
	return 1
}

// power(id, on) -> true | nil, err
func (m *BoblightModule) power(L *lua.LState) int {
	id := L.CheckString(1)
	on := L.CheckBool(2)
	return m.execute(L, id, actions.ActionPower, map[string]any{"on": on})
}

// brightness(id, percent) -> true | nil, err
func (m *BoblightModule) brightness(L *lua.LState) int {
	id := L.CheckString(1)
	pct := L.CheckInt(2)
	return m.execute(L, id, actions.ActionBrightness, map[string]any{"brightness": pct})
}

// color(id, "#rrggbb") -> true | nil, err
func (m *BoblightModule) color(L *lua.LState) int {
	id := L.CheckString(1)
	hex := L.CheckString(2)
	return m.execute(L, id, actions.ActionColor, map[string]any{"color": hex})
}

// temperature(id, mired) -> true | nil, err
func (m *BoblightModule) temperature(L *lua.LState) int {
	id := L.CheckString(1)
	mired := L.CheckInt(2)
	return m.execute(L, id, actions.ActionColorTemperature, map[string]any{"mired": mired})
}

// priority(server_id, priority) -> true | nil, err
func (m *BoblightModule) priority(L *lua.LState) int {
	id := L.CheckString(1)
	p := L.CheckInt(2)
	return m.execute(L, id, actions.ActionPriority, map[string]any{"priority": p})
}

func (m *BoblightModule) execute(L *lua.LState, id, action string, args map[string]any) int {
	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	err := m.controller.Execute(ctx, plugin.Command{
		DeviceID: id,
		Action:   action,
		Args:     args,
		Source:   "lua",
	})
	if err != nil {
		log.Debug().Err(err).Str("device", id).Str("action", action).Msg("Lua action failed")
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// on_connection(fn [, batch]) - fn(event) runs when a server connects or disconnects
func (m *BoblightModule) registerConnection(L *lua.LState) int {
	h := checkHandler(L)
	m.mu.Lock()
	m.onConnection = append(m.onConnection, h)
	m.mu.Unlock()
	return 0
}

// on_state(fn [, batch]) - fn(event) runs when a channel's power, brightness or color changes
func (m *BoblightModule) registerState(L *lua.LState) int {
	h := checkHandler(L)
	m.mu.Lock()
	m.onState = append(m.onState, h)
	m.mu.Unlock()
	return 0
}

// checkHandler reads fn and the optional batch table {quiet = ms},
// {interval = ms} or {count = n}.
func checkHandler(L *lua.LState) *Handler {
	h := &Handler{Fn: L.CheckFunction(1)}
	opts := L.OptTable(2, nil)
	if opts == nil {
		return h
	}

	ms := func(key string) time.Duration {
		return time.Duration(lua.LVAsNumber(opts.RawGetString(key))) * time.Millisecond
	}
	switch {
	case opts.RawGetString("quiet") != lua.LNil:
		h.Batch = collect.Quiet(ms("quiet"))
	case opts.RawGetString("interval") != lua.LNil:
		h.Batch = collect.Interval(ms("interval"))
	case opts.RawGetString("count") != lua.LNil:
		h.Batch = collect.Count(int(lua.LVAsNumber(opts.RawGetString("count"))))
	}
	if err := h.Batch.Validate(); err != nil {
		L.ArgError(2, err.Error())
	}
	return h
}

// ConnectionHandlers returns the registered on_connection callbacks.
func (m *BoblightModule) ConnectionHandlers() []*Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Handler(nil), m.onConnection...)
}

// StateHandlers returns the registered on_state callbacks.
func (m *BoblightModule) StateHandlers() []*Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Handler(nil), m.onState...)
}

func deviceTable(L *lua.LState, d device.Device) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "id", lua.LString(d.ID))
	L.SetField(t, "name", lua.LString(d.Name))
	L.SetField(t, "class", lua.LString(d.Class))
	L.SetField(t, "connected", lua.LBool(d.States.Connected))
	if d.IsServer() {
		L.SetField(t, "host", lua.LString(d.Params.Host))
		L.SetField(t, "port", lua.LNumber(d.Params.Port))
		L.SetField(t, "priority", lua.LNumber(d.States.Priority))
		return t
	}
	L.SetField(t, "parent_id", lua.LString(d.ParentID))
	L.SetField(t, "channel", lua.LNumber(d.Params.Channel))
	L.SetField(t, "power", lua.LBool(d.States.Power))
	L.SetField(t, "brightness", lua.LNumber(d.States.Brightness))
	L.SetField(t, "color", lua.LString(d.States.Color))
	return t
}
