package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/boblightd/internal/api"
	"github.com/dokzlo13/boblightd/internal/config"
)

// APIService serves the HTTP control API.
type APIService struct {
	cfg    *config.Config
	router *api.Router
	server *http.Server
}

// NewAPIService creates a new APIService. history may be nil.
func NewAPIService(cfg *config.Config, controller api.Controller, history api.History) *APIService {
	gin.SetMode(gin.ReleaseMode)
	return &APIService{
		cfg:    cfg,
		router: api.NewRouter(controller, history),
	}
}

// Start begins the API server if enabled.
func (s *APIService) Start(ctx context.Context) {
	if !s.cfg.API.Enabled {
		return
	}

	s.server = &http.Server{
		Addr:    s.cfg.API.Addr(),
		Handler: s.router.Handler(),
	}
	go s.run(ctx)
}

func (s *APIService) run(ctx context.Context) {
	log.Info().Str("addr", s.server.Addr).Msg("Starting API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("API server error")
	}
}
