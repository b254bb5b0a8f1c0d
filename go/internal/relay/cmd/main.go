package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidwatch/go/internal/config"
	"github.com/mcdev12/bidwatch/go/internal/relay"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	configPath := flag.String("config", os.Getenv("BIDWATCH_CONFIG"), "path to a YAML config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil && cfg.Log.Level != "" {
		zerolog.SetGlobalLevel(lvl)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	relayConfig := relay.DefaultConfig()
	relayConfig.ConsumerConfig.URL = cfg.Relay.NATSURL
	relayConfig.ConsumerConfig.SubjectFilter = cfg.Relay.SubjectFilter
	relayConfig.ConsumerConfig.StreamName = cfg.Relay.StreamName
	relayConfig.DisableConsumer = cfg.Relay.DisableConsumer

	log.Info().
		Str("nats_url", cfg.Relay.NATSURL).
		Str("subject", cfg.Relay.SubjectFilter).
		Str("stream", cfg.Relay.StreamName).
		Str("port", cfg.Relay.Port).
		Msg("starting bid relay")

	service, err := relay.NewService(relayConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create relay service")
	}

	server := relay.NewServer(fmt.Sprintf(":%s", cfg.Relay.Port), service)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := service.Start(ctx); err != nil {
			log.Error().Err(err).Msg("relay service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down bid relay")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("bid relay stopped")
}
