package livesync

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoreboard/go/internal/models"
)

// Service is the live sync gateway: WebSocket connections, edit handling and
// change fan-out.
type Service struct {
	hub       *Hub
	sync      *Sync
	wsHandler *WebSocketHandler
	source    ChangeSource
}

// Config holds configuration for the live sync service
type Config struct {
	ConnectionConfig ConnectionConfig
	SyncConfig       SyncConfig
}

// DefaultConfig returns default configuration for the live sync service
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		SyncConfig:       DefaultSyncConfig(),
	}
}

// NewService wires the hub to app. source feeds external changes to clients.
func NewService(config Config, app RoundsApp, source ChangeSource) *Service {
	hub := NewHub(config.ConnectionConfig)
	sync := NewSync(app, hub, config.SyncConfig)
	hub.SetHandler(sync)

	return &Service{
		hub:       hub,
		sync:      sync,
		wsHandler: NewWebSocketHandler(hub),
		source:    source,
	}
}

// Start runs the hub and the change feed until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting live sync service")

	go s.hub.Start(ctx)

	go func() {
		if err := s.sync.Run(ctx, s.source); err != nil {
			log.Error().Err(err).Msg("change feed failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("live sync service shutting down")
	return s.Stop()
}

// Stop discards pending debounced edits
func (s *Service) Stop() error {
	s.sync.Stop()
	log.Info().Msg("live sync service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(r chi.Router) {
	s.wsHandler.RegisterRoutes(r)
	log.Info().Msg("live sync routes registered")
}

// AddTime records a time through the broadcast path, for callers outside the socket
func (s *Service) AddTime(ctx context.Context, date, name, rawTime string) (*models.Round, error) {
	return s.sync.AddTime(ctx, date, name, rawTime)
}

// GetStats returns statistics about the live sync service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.hub.GetConnectionStats()
	stats["service"] = "livesync"
	return stats
}
