package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidwatch/go/internal/models"
)

// NATSConfig holds configuration for the NATS transport.
type NATSConfig struct {
	URL           string
	SubjectPrefix string // subject is SubjectPrefix + auction id
	Name          string
	Token         string
	ConnectWait   time.Duration
	PendingLimit  int
}

// DefaultNATSConfig returns default NATS transport configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "auction.bids.",
		Name:          "bidwatch",
		ConnectWait:   5 * time.Second,
		PendingLimit:  1024,
	}
}

// NATSTransport reads bids straight off the broker subjects the relay
// consumes. Each session owns its own connection; the client library's
// reconnect is disabled so drops surface to the Subscriber.
type NATSTransport struct {
	config NATSConfig
}

// NewNATSTransport creates a NATS transport.
func NewNATSTransport(config NATSConfig) *NATSTransport {
	if config.URL == "" {
		config.URL = nats.DefaultURL
	}
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = DefaultNATSConfig().SubjectPrefix
	}
	return &NATSTransport{config: config}
}

// Subject returns the subject carrying bids for auctionID.
func (t *NATSTransport) Subject(auctionID models.ID) string {
	return t.config.SubjectPrefix + auctionID.String()
}

// Connect opens a connection and subscribes to the auction subject.
func (t *NATSTransport) Connect(ctx context.Context, auctionID models.ID) (Session, error) {
	session := &natsSession{dropped: make(chan error, 1)}

	opts := []nats.Option{
		nats.Name(t.config.Name),
		nats.NoReconnect(),
		nats.ClosedHandler(func(nc *nats.Conn) {
			session.drop(nats.ErrConnectionClosed)
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err == nil {
				err = nats.ErrConnectionClosed
			}
			session.drop(err)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("NATS error")
		}),
	}
	if t.config.ConnectWait > 0 {
		opts = append(opts, nats.Timeout(t.config.ConnectWait))
	}
	if t.config.Token != "" {
		opts = append(opts, nats.Token(t.config.Token))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nc, err := nats.Connect(t.config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	subject := t.Subject(auctionID)
	sub, err := nc.SubscribeSync(subject)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	if t.config.PendingLimit > 0 {
		_ = sub.SetPendingLimits(t.config.PendingLimit, -1)
	}

	session.nc = nc
	session.sub = sub

	log.Debug().
		Str("url", nc.ConnectedUrl()).
		Str("subject", subject).
		Msg("NATS feed connected")

	return session, nil
}

type natsSession struct {
	nc  *nats.Conn
	sub *nats.Subscription

	dropped  chan error
	dropOnce sync.Once
}

func (s *natsSession) drop(err error) {
	s.dropOnce.Do(func() { s.dropped <- err })
}

func (s *natsSession) Next(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// NextMsgWithContext does not notice a dead connection on its own.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case err := <-s.dropped:
			// Put it back for the next caller.
			s.dropped <- err
			cancel(err)
		case <-stop:
		}
	}()

	msg, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			return nil, fmt.Errorf("NATS connection lost: %w", cause)
		}
		if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
			return nil, ErrSessionClosed
		}
		return nil, err
	}
	return msg.Data, nil
}

func (s *natsSession) Close() error {
	if s.nc == nil {
		return nil
	}
	_ = s.sub.Unsubscribe()
	s.nc.Close()
	return nil
}
