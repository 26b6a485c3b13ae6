package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/boblightd/internal/actions"
	"github.com/dokzlo13/boblightd/internal/config"
	"github.com/dokzlo13/boblightd/internal/db"
	"github.com/dokzlo13/boblightd/internal/eventbus"
	"github.com/dokzlo13/boblightd/internal/ledger"
	"github.com/dokzlo13/boblightd/internal/storage"
	"github.com/dokzlo13/boblightd/internal/stores"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Device store
	Stores *stores.Registry

	// Action system
	Registry *actions.Registry
	Invoker  *actions.Invoker

	// High-level services
	Boblight *BoblightService
	Lua      *LuaService
	API      *APIService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Ledger = ledger.New(database.DB)
	s.Stores = stores.NewRegistry(storage.NewStore(database.DB))
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	s.Registry = actions.NewRegistry()
	if err := actions.RegisterBuiltins(s.Registry); err != nil {
		s.Close()
		return nil, err
	}
	s.Invoker = actions.NewInvoker(s.Registry, s.Ledger)

	s.Boblight, err = NewBoblightService(cfg, s.Stores, s.Invoker, s.Bus, s.Ledger)
	if err != nil {
		s.Close()
		return nil, err
	}

	if cfg.Script != "" {
		s.Lua = NewLuaService(cfg, s.Boblight.Plugin, s.Bus)
	}

	s.API = NewAPIService(cfg, s.Boblight.Plugin, s.Ledger)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	if err := s.Boblight.Load(); err != nil {
		return err
	}

	// Callbacks must be registered before the first connects
	if s.Lua != nil {
		if err := s.Lua.LoadScript(); err != nil {
			return err
		}
		s.Lua.Start(ctx)
	}

	if err := s.Boblight.Start(ctx); err != nil {
		return err
	}

	s.API.Start(ctx)
	return nil
}

// ClearState removes all persisted devices.
func (s *Services) ClearState() error {
	return s.Stores.Clear()
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.Boblight != nil {
		s.Boblight.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}
}
