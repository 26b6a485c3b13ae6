package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/boblightd/internal/collect"
	"github.com/dokzlo13/boblightd/internal/eventbus"
	"github.com/dokzlo13/boblightd/internal/lua/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = fmt.Errorf("lua runtime closed")

// DefaultQueueSize is the capacity of the Lua work queue.
const DefaultQueueSize = 100

// LuaWork represents work to be executed on the Lua VM.
// All Lua execution MUST go through this to ensure thread safety
type LuaWork func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L    *lua.LState
	deps RuntimeDeps

	boblightModule *modules.BoblightModule

	collectorsMu sync.Mutex
	collectors   map[*modules.Handler]collect.Collector

	workQueue chan LuaWork

	closing   chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	done      chan struct{}
}

// NewRuntime creates a new Lua runtime and subscribes it to device events.
func NewRuntime(deps RuntimeDeps) *Runtime {
	if deps.QueueSize <= 0 {
		deps.QueueSize = DefaultQueueSize
	}

	r := &Runtime{
		L:         lua.NewState(),
		deps:      deps,
		workQueue: make(chan LuaWork, deps.QueueSize),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),

		collectors: make(map[*modules.Handler]collect.Collector),
	}

	r.registerModules()
	if deps.Bus != nil {
		deps.Bus.SubscribeAll(r.dispatch)
	}

	return r
}

func (r *Runtime) registerModules() {
	r.L.PreloadModule("log", modules.NewLogModule().Loader)

	r.boblightModule = modules.NewBoblightModule(r.deps.Controller)
	r.L.PreloadModule("boblight", r.boblightModule.Loader)
}

// Close stops the worker and closes the Lua state. Work still queued is
// drained by the worker before it exits.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)

		r.collectorsMu.Lock()
		for _, c := range r.collectors {
			c.Close()
		}
		r.collectorsMu.Unlock()

		if r.started.Load() {
			<-r.done
		}
		r.L.Close()
	})
}

// Do queues work to be executed on the Lua VM (thread-safe, non-blocking).
// Returns false if the runtime is closing, queue is full, or context is cancelled.
func (r *Runtime) Do(ctx context.Context, work LuaWork) bool {
	if r.isClosing() {
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	}
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSyncWithResult queues work, waits for space, and waits for the result.
func (r *Runtime) DoSyncWithResult(ctx context.Context, work func(context.Context) error) error {
	done := make(chan error, 1)
	wrapped := LuaWork(func(c context.Context) {
		done <- work(c)
	})

	if r.isClosing() {
		return ErrRuntimeClosed
	}
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- wrapped:
	}

	select {
	case <-r.done:
		// worker exited; the work may have run during the drain
		select {
		case err := <-done:
			return err
		default:
			return ErrRuntimeClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (r *Runtime) isClosing() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

// Run is the Lua worker; it is the ONLY goroutine that touches Lua once
// started. Exits when ctx is cancelled or the runtime is closed.
func (r *Runtime) Run(ctx context.Context) {
	r.started.Store(true)
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			r.drainQueue(ctx)
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

func (r *Runtime) executeWork(ctx context.Context, work LuaWork) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	// Modules read the context through L.Context()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript loads and executes a Lua script (must be called before Run)
func (r *Runtime) LoadScript(path string) error {
	if !filepath.IsAbs(path) && r.deps.BaseDir != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = filepath.Join(r.deps.BaseDir, path)
		}
	}

	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().
		Int("on_connection", len(r.boblightModule.ConnectionHandlers())).
		Int("on_state", len(r.boblightModule.StateHandlers())).
		Msg("Lua script loaded successfully")
	return nil
}

// dispatch hands a bus event to the matching Lua callbacks on the worker.
func (r *Runtime) dispatch(ev eventbus.Event) {
	var handlers []*modules.Handler
	switch ev.Type {
	case eventbus.EventTypeConnection:
		handlers = r.boblightModule.ConnectionHandlers()
	case eventbus.EventTypePower, eventbus.EventTypeBrightness, eventbus.EventTypeColor:
		handlers = r.boblightModule.StateHandlers()
	}
	if len(handlers) == 0 {
		return
	}

	fields := make(map[string]any, len(ev.Data)+2)
	for k, v := range ev.Data {
		fields[k] = v
	}
	fields["type"] = string(ev.Type)
	fields["device_id"] = ev.DeviceID

	for _, h := range handlers {
		if h.Batch.Immediate() {
			r.call(h.Fn, string(ev.Type), func(L *lua.LState) lua.LValue {
				return modules.MapToLuaTable(L, fields)
			})
			continue
		}
		r.collector(h).Add(fields)
	}
}

// collector returns the batching collector of a handler, creating it on
// first use. A flush calls the handler with an array of events.
func (r *Runtime) collector(h *modules.Handler) collect.Collector {
	r.collectorsMu.Lock()
	defer r.collectorsMu.Unlock()

	if c, ok := r.collectors[h]; ok {
		return c
	}
	c := h.Batch.New(func(events []map[string]any) {
		r.call(h.Fn, string(h.Batch.Kind), func(L *lua.LState) lua.LValue {
			list := L.NewTable()
			for _, e := range events {
				list.Append(modules.MapToLuaTable(L, e))
			}
			return list
		})
	})
	r.collectors[h] = c
	return c
}

// call queues fn on the worker with the argument built there.
func (r *Runtime) call(fn *lua.LFunction, label string, arg func(*lua.LState) lua.LValue) {
	r.Do(context.Background(), func(ctx context.Context) {
		if err := r.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, arg(r.L)); err != nil {
			log.Error().Err(err).Str("event", label).Msg("Lua callback failed")
		}
	})
}
