// Package config loads bidwatch settings from an optional YAML file and
// environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	FeedTransportWebSocket = "websocket"
	FeedTransportNATS      = "nats"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	API       APIConfig       `yaml:"api"`
	Feed      FeedConfig      `yaml:"feed"`
	Countdown CountdownConfig `yaml:"countdown"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Log       LogConfig       `yaml:"log"`
	Relay     RelayConfig     `yaml:"relay"`
}

// APIConfig describes the auction backend and the session identity used against it.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	UserID  string        `yaml:"user_id"`
	Timeout time.Duration `yaml:"timeout"`
}

type FeedConfig struct {
	Transport      string        `yaml:"transport"`
	WebSocketURL   string        `yaml:"websocket_url"`
	Protocol       string        `yaml:"protocol"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	NATSURL        string        `yaml:"nats_url"`
	NATSToken      string        `yaml:"nats_token"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	Multiplier     float64       `yaml:"multiplier"`
}

type CountdownConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type LedgerConfig struct {
	// Retention caps the displayed bids; 0 keeps everything.
	Retention int `yaml:"retention"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type RelayConfig struct {
	Port            string `yaml:"port"`
	NATSURL         string `yaml:"nats_url"`
	SubjectFilter   string `yaml:"subject_filter"`
	StreamName      string `yaml:"stream_name"`
	DisableConsumer bool   `yaml:"disable_consumer"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:9090",
			Timeout: 30 * time.Second,
		},
		Feed: FeedConfig{
			Transport:      FeedTransportWebSocket,
			WebSocketURL:   "ws://localhost:9090/ws/websocket",
			Protocol:       "stomp",
			TopicPrefix:    "/topic/bids/",
			NATSURL:        "nats://localhost:4222",
			SubjectPrefix:  "auction.bids.",
			ReconnectDelay: 5 * time.Second,
			MaxDelay:       5 * time.Second,
			Multiplier:     1,
		},
		Countdown: CountdownConfig{Interval: time.Second},
		Log:       LogConfig{Level: "info"},
		Relay: RelayConfig{
			Port:          "8081",
			NATSURL:       "nats://localhost:4222",
			SubjectFilter: "auction.bids.*",
		},
	}
}

// Load builds the config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it. When no max delay is
// set anywhere it is at least the reconnect delay.
func Load(path string) (*Config, error) {
	cfg := Default()
	defaultMaxDelay := cfg.Feed.MaxDelay
	cfg.Feed.MaxDelay = 0

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.Feed.MaxDelay == 0 {
		cfg.Feed.MaxDelay = max(defaultMaxDelay, cfg.Feed.ReconnectDelay)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.API.BaseURL = getEnv("BIDWATCH_API_URL", cfg.API.BaseURL)
	cfg.API.Token = getEnv("BIDWATCH_TOKEN", cfg.API.Token)
	cfg.API.UserID = getEnv("BIDWATCH_USER_ID", cfg.API.UserID)

	cfg.Feed.Transport = getEnv("BIDWATCH_FEED_TRANSPORT", cfg.Feed.Transport)
	cfg.Feed.WebSocketURL = getEnv("BIDWATCH_WS_URL", cfg.Feed.WebSocketURL)
	cfg.Feed.Protocol = getEnv("BIDWATCH_WS_PROTOCOL", cfg.Feed.Protocol)
	cfg.Feed.NATSURL = getEnv("NATS_URL", cfg.Feed.NATSURL)
	cfg.Feed.NATSToken = getEnv("NATS_TOKEN", cfg.Feed.NATSToken)
	cfg.Feed.SubjectPrefix = getEnv("BIDWATCH_NATS_SUBJECT_PREFIX", cfg.Feed.SubjectPrefix)
	cfg.Relay.NATSURL = getEnv("NATS_URL", cfg.Relay.NATSURL)
	cfg.Relay.Port = getEnv("RELAY_PORT", cfg.Relay.Port)
	cfg.Relay.StreamName = getEnv("RELAY_STREAM", cfg.Relay.StreamName)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	var err error
	if cfg.API.Timeout, err = getEnvAsDuration("BIDWATCH_API_TIMEOUT", cfg.API.Timeout); err != nil {
		return err
	}
	if cfg.Feed.ReconnectDelay, err = getEnvAsDuration("BIDWATCH_RECONNECT_DELAY", cfg.Feed.ReconnectDelay); err != nil {
		return err
	}
	if cfg.Feed.MaxDelay, err = getEnvAsDuration("BIDWATCH_RECONNECT_MAX_DELAY", cfg.Feed.MaxDelay); err != nil {
		return err
	}
	if cfg.Countdown.Interval, err = getEnvAsDuration("BIDWATCH_COUNTDOWN_INTERVAL", cfg.Countdown.Interval); err != nil {
		return err
	}
	if cfg.Feed.Multiplier, err = getEnvAsFloat("BIDWATCH_RECONNECT_MULTIPLIER", cfg.Feed.Multiplier); err != nil {
		return err
	}
	if cfg.Ledger.Retention, err = getEnvAsInt("BIDWATCH_LEDGER_RETENTION", cfg.Ledger.Retention); err != nil {
		return err
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.API.BaseURL == "":
		return fmt.Errorf("%w: api base url is required", ErrInvalidConfig)
	case c.Feed.Transport != FeedTransportWebSocket && c.Feed.Transport != FeedTransportNATS:
		return fmt.Errorf("%w: unknown feed transport %q", ErrInvalidConfig, c.Feed.Transport)
	case c.Feed.Transport == FeedTransportWebSocket && c.Feed.WebSocketURL == "":
		return fmt.Errorf("%w: websocket url is required", ErrInvalidConfig)
	case c.Feed.Transport == FeedTransportNATS && c.Feed.NATSURL == "":
		return fmt.Errorf("%w: nats url is required", ErrInvalidConfig)
	case c.Feed.Protocol != "plain" && c.Feed.Protocol != "stomp":
		return fmt.Errorf("%w: unknown websocket protocol %q", ErrInvalidConfig, c.Feed.Protocol)
	case c.Feed.ReconnectDelay <= 0:
		return fmt.Errorf("%w: reconnect delay must be positive", ErrInvalidConfig)
	case c.Feed.MaxDelay < c.Feed.ReconnectDelay:
		return fmt.Errorf("%w: max delay %s is below reconnect delay %s", ErrInvalidConfig, c.Feed.MaxDelay, c.Feed.ReconnectDelay)
	case c.Countdown.Interval <= 0:
		return fmt.Errorf("%w: countdown interval must be positive", ErrInvalidConfig)
	case c.Ledger.Retention < 0:
		return fmt.Errorf("%w: ledger retention cannot be negative", ErrInvalidConfig)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	return i, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	return f, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	return d, nil
}
