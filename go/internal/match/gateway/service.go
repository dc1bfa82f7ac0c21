package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/m-maciver/split-the-g/go/internal/match/coordinator"
)

// Service wires the WebSocket transport to the coordinator
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	coordinator       *coordinator.Coordinator
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	Coordinator      coordinator.Config
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Coordinator:      coordinator.DefaultConfig(),
	}
}

// NewService creates the connection manager and coordinator and points them at each other
func NewService(config Config, opts ...coordinator.Option) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, nil)
	coord := coordinator.New(config.Coordinator, connectionManager, opts...)
	connectionManager.SetDispatcher(coord)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(coord, connectionManager),
		coordinator:       coord,
	}
}

// Start runs the coordinator until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting match gateway service")

	err := s.coordinator.Run(ctx)

	log.Info().Msg("match gateway service shutting down")
	s.Stop()
	return err
}

// Stop closes every client connection
func (s *Service) Stop() {
	s.connectionManager.CloseAll()
	log.Info().Msg("match gateway service stopped")
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("match gateway routes registered")
}

// Coordinator exposes the underlying coordinator
func (s *Service) Coordinator() *coordinator.Coordinator {
	return s.coordinator
}
