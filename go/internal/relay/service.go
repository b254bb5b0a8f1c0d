// Package relay fans bid events out to websocket subscribers, one topic per auction.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidwatch/go/internal/models"
)

// Service ties the connection manager, the websocket handler and the optional NATS consumer together
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer

	stopOnce sync.Once
}

// Config holds configuration for the relay service
type Config struct {
	ConnectionConfig ConnectionConfig
	ConsumerConfig   ConsumerConfig
	// DisableConsumer runs the relay without NATS; bids then only arrive via BroadcastToAuction.
	DisableConsumer bool
}

// DefaultConfig returns default configuration for the relay
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		ConsumerConfig:   DefaultConsumerConfig(),
	}
}

// NewService creates a new relay service
func NewService(config Config) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
	}

	if !config.DisableConsumer {
		eventConsumer, err := NewEventConsumer(connectionManager, config.ConsumerConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = eventConsumer
	}

	return s, nil
}

// Start runs the relay until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting bid relay service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("bid relay service shutting down")
	return s.Stop()
}

// Stop shuts down the NATS consumer. Subscribers are dropped when the Start context ends.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		if s.eventConsumer != nil {
			if err := s.eventConsumer.Stop(); err != nil {
				log.Error().Err(err).Msg("failed to stop event consumer")
			}
		}
		log.Info().Msg("bid relay service stopped")
	})
	return nil
}

// RegisterRoutes registers the websocket routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("bid relay routes registered")
}

// BroadcastToAuction pushes a raw bid payload to every subscriber of auctionID
func (s *Service) BroadcastToAuction(auctionID models.ID, data []byte) {
	s.connectionManager.BroadcastToAuction(auctionID, data)
}

// Stats returns statistics about connected subscribers
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

// Subscribers returns the number of subscribers for auctionID
func (s *Service) Subscribers(auctionID models.ID) int {
	return s.connectionManager.Subscribers(auctionID)
}
