package lua

import (
	"github.com/dokzlo13/boblightd/internal/eventbus"
	"github.com/dokzlo13/boblightd/internal/lua/modules"
)

// RuntimeDeps groups all dependencies needed by Lua runtime.
type RuntimeDeps struct {
	Controller modules.Controller
	// Bus delivers device events to on_connection and on_state callbacks.
	// May be nil.
	Bus *eventbus.Bus
	// BaseDir resolves relative script paths that do not exist as given.
	BaseDir   string
	QueueSize int
}
