package main

import (
	"github.com/mcdev12/bidwatch/go/clients/auctionapi"
	"github.com/mcdev12/bidwatch/go/internal/auctionview"
	"github.com/mcdev12/bidwatch/go/internal/config"
	"github.com/mcdev12/bidwatch/go/internal/feed"
)

type Services struct {
	Config    *config.Config
	API       *auctionapi.Client
	Transport feed.Transport
}

func setupServices(cfg *config.Config) *Services {
	// Session identity comes from config, never from ambient state.
	api := auctionapi.NewClient(cfg.API.BaseURL, cfg.API.Token)
	if cfg.API.Timeout > 0 {
		api.SetTimeout(cfg.API.Timeout)
	}
	if cfg.API.UserID != "" {
		api.SetHeader("X-User-ID", cfg.API.UserID)
	}

	return &Services{
		Config:    cfg,
		API:       api,
		Transport: setupTransport(cfg),
	}
}

func setupTransport(cfg *config.Config) feed.Transport {
	if cfg.Feed.Transport == config.FeedTransportNATS {
		return feed.NewNATSTransport(natsConfig(cfg))
	}
	return feed.NewWebSocketTransport(webSocketConfig(cfg))
}

func natsConfig(cfg *config.Config) feed.NATSConfig {
	natsConfig := feed.DefaultNATSConfig()
	natsConfig.URL = cfg.Feed.NATSURL
	natsConfig.SubjectPrefix = cfg.Feed.SubjectPrefix
	natsConfig.Token = cfg.Feed.NATSToken
	return natsConfig
}

func webSocketConfig(cfg *config.Config) feed.WebSocketConfig {
	wsConfig := feed.DefaultWebSocketConfig()
	wsConfig.URL = cfg.Feed.WebSocketURL
	wsConfig.Protocol = feed.Protocol(cfg.Feed.Protocol)
	wsConfig.TopicPrefix = cfg.Feed.TopicPrefix
	wsConfig.AuthToken = cfg.API.Token
	return wsConfig
}

func (s *Services) newView(hooks auctionview.Hooks) *auctionview.View {
	return auctionview.New(s.API, s.Transport, auctionview.Options{
		Retention:         s.Config.Ledger.Retention,
		CountdownInterval: s.Config.Countdown.Interval,
		FeedOptions: []feed.Option{
			feed.WithBackoff(feed.BackoffConfig{
				Delay:      s.Config.Feed.ReconnectDelay,
				MaxDelay:   s.Config.Feed.MaxDelay,
				Multiplier: s.Config.Feed.Multiplier,
			}),
		},
		Hooks: hooks,
	})
}
