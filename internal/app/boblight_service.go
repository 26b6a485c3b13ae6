package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/boblightd/internal/actions"
	"github.com/dokzlo13/boblightd/internal/boblight"
	"github.com/dokzlo13/boblightd/internal/config"
	"github.com/dokzlo13/boblightd/internal/eventbus"
	"github.com/dokzlo13/boblightd/internal/ledger"
	"github.com/dokzlo13/boblightd/internal/plugin"
	"github.com/dokzlo13/boblightd/internal/reconnect"
	"github.com/dokzlo13/boblightd/internal/stores"
)

// BoblightService owns the plugin, its reconnect supervisor and the ledger
// retention loop.
type BoblightService struct {
	cfg        *config.Config
	Plugin     *plugin.Plugin
	Supervisor *reconnect.Supervisor
	ledger     *ledger.Ledger
}

// NewBoblightService creates the plugin from configuration.
func NewBoblightService(cfg *config.Config, registry *stores.Registry, invoker *actions.Invoker, bus *eventbus.Bus, l *ledger.Ledger) (*BoblightService, error) {
	defaultColor, err := boblight.ParseColor(cfg.Boblight.DefaultColor)
	if err != nil {
		return nil, fmt.Errorf("boblight.default_color: %w", err)
	}

	p := plugin.New(plugin.Options{
		DefaultColor:   defaultColor,
		SyncInterval:   cfg.Boblight.SyncInterval.Duration(),
		ConnectTimeout: cfg.Boblight.ConnectTimeout.Duration(),
		Transition:     cfg.Boblight.Transition.Duration(),
	}, registry, invoker, bus, l)

	return &BoblightService{
		cfg:        cfg,
		Plugin:     p,
		Supervisor: reconnect.New(p.ReconnectTargets, cfg.Boblight.ReconnectInterval.Duration()),
		ledger:     l,
	}, nil
}

// Load reads persisted devices.
func (s *BoblightService) Load() error {
	return s.Plugin.Load()
}

// Start makes one connection attempt per configured server and starts the
// background loops.
func (s *BoblightService) Start(ctx context.Context) error {
	if err := s.Plugin.LoadServers(ctx, serverSpecs(s.cfg)); err != nil {
		return err
	}

	go func() {
		if err := s.Supervisor.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Reconnect supervisor error")
		}
	}()

	if s.ledger != nil {
		go s.runLedgerCleanup(ctx)
	}
	return nil
}

// runLedgerCleanup periodically cleans up old ledger entries.
func (s *BoblightService) runLedgerCleanup(ctx context.Context) {
	retention := s.cfg.Ledger.Retention()
	ticker := time.NewTicker(s.cfg.Ledger.CleanupInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}

// Close closes every session.
func (s *BoblightService) Close() {
	s.Plugin.Close()
}

func serverSpecs(cfg *config.Config) []plugin.ServerSpec {
	specs := make([]plugin.ServerSpec, 0, len(cfg.Boblight.Servers))
	for _, srv := range cfg.Boblight.Servers {
		specs = append(specs, plugin.ServerSpec{
			Name:     srv.Name,
			Host:     srv.Host,
			Port:     srv.Port,
			Channels: srv.Channels,
			Priority: srv.GetPriority(),
		})
	}
	return specs
}
