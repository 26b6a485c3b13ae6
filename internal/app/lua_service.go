package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/boblightd/internal/config"
	"github.com/dokzlo13/boblightd/internal/eventbus"
	luart "github.com/dokzlo13/boblightd/internal/lua"
	"github.com/dokzlo13/boblightd/internal/lua/modules"
)

// LuaService wraps the Lua runtime and provides thread-safe execution.
type LuaService struct {
	cfg     *config.Config
	Runtime *luart.Runtime
}

// NewLuaService creates a new LuaService.
func NewLuaService(cfg *config.Config, controller modules.Controller, bus *eventbus.Bus) *LuaService {
	runtime := luart.NewRuntime(luart.RuntimeDeps{
		Controller: controller,
		Bus:        bus,
		BaseDir:    cfg.Dir,
		QueueSize:  cfg.EventBus.GetQueueSize(),
	})

	return &LuaService{
		cfg:     cfg,
		Runtime: runtime,
	}
}

// LoadScript loads and executes the Lua script.
// Must be called before Start().
func (s *LuaService) LoadScript() error {
	log.Info().Str("script", s.cfg.Script).Msg("Loading Lua script")
	return s.Runtime.LoadScript(s.cfg.Script)
}

// Start begins the Lua worker goroutine.
func (s *LuaService) Start(ctx context.Context) {
	// This is the only goroutine that touches Lua after the script loaded
	go s.Runtime.Run(ctx)
}

// Close closes the Lua runtime.
func (s *LuaService) Close() {
	if s.Runtime != nil {
		s.Runtime.Close()
	}
}
