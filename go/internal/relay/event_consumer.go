package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidwatch/go/internal/feed"
	"github.com/mcdev12/bidwatch/go/internal/models"
)

// ConsumerConfig holds configuration for the NATS bid consumer. When
// StreamName is set bids are read through a durable JetStream consumer,
// otherwise through a plain subscription.
type ConsumerConfig struct {
	URL           string
	SubjectFilter string // e.g., "auction.bids.*"
	StreamName    string
	ConsumerName  string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConsumerConfig returns default consumer configuration
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		URL:           nats.DefaultURL,
		SubjectFilter: "auction.bids.*",
		ConsumerName:  "bid-relay",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

var errUnroutable = errors.New("cannot route bid")

// EventConsumer consumes bid events from NATS and broadcasts them to websocket subscribers
type EventConsumer struct {
	connectionManager *ConnectionManager
	nc                *nats.Conn
	js                jetstream.JetStream
	consumer          jetstream.Consumer
	config            ConsumerConfig
}

// NewEventConsumer connects to NATS and prepares the consumer
func NewEventConsumer(cm *ConnectionManager, config ConsumerConfig) (*EventConsumer, error) {
	opts := []nats.Option{
		nats.Name("bid-relay"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	ec := &EventConsumer{
		connectionManager: cm,
		nc:                nc,
		config:            config,
	}

	if config.StreamName != "" {
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		ec.js = js

		if err := ec.ensureConsumer(context.Background()); err != nil {
			nc.Close()
			return nil, fmt.Errorf("ensure consumer: %w", err)
		}
	}

	return ec, nil
}

func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          ec.config.ConsumerName,
		Durable:       ec.config.ConsumerName,
		Description:   "Bid relay websocket consumer",
		FilterSubject: ec.config.SubjectFilter,
		// Subscribers only care about bids placed while they watch.
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    ec.config.MaxDeliver,
		AckWait:       ec.config.AckWait,
		MaxAckPending: ec.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, ec.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.StreamName).
			Msg("created JetStream consumer")
	} else {
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.StreamName).
			Msg("using existing JetStream consumer")
	}

	ec.consumer = consumer
	return nil
}

// Start consumes bids until ctx is done
func (ec *EventConsumer) Start(ctx context.Context) error {
	if ec.consumer != nil {
		return ec.consumeJetStream(ctx)
	}
	return ec.consumeCore(ctx)
}

func (ec *EventConsumer) consumeCore(ctx context.Context) error {
	log.Info().Str("subject", ec.config.SubjectFilter).Msg("starting NATS bid consumer")

	sub, err := ec.nc.Subscribe(ec.config.SubjectFilter, func(msg *nats.Msg) {
		if err := ec.processMessage(msg.Subject, msg.Data); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping bid event")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ec.config.SubjectFilter, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	<-ctx.Done()
	log.Info().Msg("event consumer shutting down")
	return nil
}

func (ec *EventConsumer) consumeJetStream(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream bid consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.processMessage(msg.Subject(), msg.Data()); err != nil {
				log.Warn().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("dropping bid event")
				// Redelivery cannot fix a bad payload.
				if termErr := msg.Term(); termErr != nil {
					log.Error().Err(termErr).Msg("failed to TERM message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

// processMessage validates one bid event and fans it out to the auction topic
func (ec *EventConsumer) processMessage(subject string, data []byte) error {
	auctionID, err := auctionIDFromSubject(subject)
	if err != nil {
		return err
	}

	bid, err := feed.Decode(data, auctionID)
	if err != nil {
		return fmt.Errorf("%w: %w", errUnroutable, err)
	}

	ec.connectionManager.BroadcastToAuction(auctionID, data)

	log.Debug().
		Str("auction_id", auctionID.String()).
		Str("bid_id", bid.ID.String()).
		Str("amount", bid.Amount.String()).
		Msg("bid relayed")

	return nil
}

// auctionIDFromSubject takes the last subject token, so "auction.bids.42" routes to 42.
func auctionIDFromSubject(subject string) (models.ID, error) {
	i := strings.LastIndexByte(subject, '.')
	if i < 0 || i == len(subject)-1 {
		return "", fmt.Errorf("%w: subject %q has no auction token", errUnroutable, subject)
	}
	return models.ID(subject[i+1:]), nil
}

// Stop shuts down the consumer connection
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping event consumer")
	if ec.nc != nil {
		ec.nc.Close()
	}
	return nil
}
