// Package feed keeps one auction's live bid subscription alive.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidwatch/go/internal/clock"
	"github.com/mcdev12/bidwatch/go/internal/models"
)

var (
	ErrAlreadyOpen = errors.New("subscription already open")
	ErrClosed      = errors.New("subscription closed")
)

// State is the subscription lifecycle:
// IDLE -> CONNECTING -> CONNECTED -> (DISCONNECTED -> CONNECTING)* -> CLOSED.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// BackoffConfig controls reconnect delays. With Multiplier <= 1 the delay is
// constant; otherwise it grows per failed attempt up to MaxDelay and resets
// after a successful connect.
type BackoffConfig struct {
	Delay      time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultBackoffConfig retries every five seconds.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Delay:      5 * time.Second,
		MaxDelay:   5 * time.Second,
		Multiplier: 1,
	}
}

func (b BackoffConfig) next(current time.Duration) time.Duration {
	if b.Multiplier <= 1 {
		return b.Delay
	}
	next := time.Duration(float64(current) * b.Multiplier)
	if b.MaxDelay > 0 && next > b.MaxDelay {
		next = b.MaxDelay
	}
	return next
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithClock sets the clock used for backoff timers.
func WithClock(c clock.Clock) Option {
	return func(s *Subscriber) { s.clock = c }
}

// WithBackoff sets the reconnect policy.
func WithBackoff(cfg BackoffConfig) Option {
	return func(s *Subscriber) {
		if cfg.Delay > 0 {
			s.backoff = cfg
		}
	}
}

// WithStateHandler registers fn for every state transition except CLOSED.
func WithStateHandler(fn func(State)) Option {
	return func(s *Subscriber) { s.onState = fn }
}

// Subscriber owns one live-feed subscription for one auction. It reconnects
// after unexpected disconnects until Close is called; connectivity loss is
// only visible through state changes and gaps in delivered bids.
//
// A Subscriber is single use: once closed it cannot be reopened.
type Subscriber struct {
	transport Transport
	clock     clock.Clock
	backoff   BackoffConfig
	onState   func(State)

	mu        sync.Mutex
	state     State
	auctionID models.ID
	cancel    context.CancelFunc

	// cbMu serializes callbacks so Close can wait out one in flight.
	cbMu     sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
}

// NewSubscriber creates an idle subscriber using transport.
func NewSubscriber(transport Transport, opts ...Option) *Subscriber {
	s := &Subscriber{
		transport: transport,
		backoff:   DefaultBackoffConfig(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = clock.OrDefault(s.clock)
	return s
}

// Open starts connecting to auctionID's topic in the background and returns
// immediately. onBid is called for every decoded bid, in transport order, from
// the subscriber's goroutine. Malformed messages are logged and dropped.
func (s *Subscriber) Open(ctx context.Context, auctionID models.ID, onBid func(models.Bid)) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	case StateIdle:
	default:
		s.mu.Unlock()
		return ErrAlreadyOpen
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.auctionID = auctionID
	s.state = StateConnecting
	s.mu.Unlock()

	log.Info().Str("auction_id", auctionID.String()).Msg("opening live feed")

	go s.run(ctx, auctionID, onBid)
	return nil
}

// Close tears the subscription down, cancels any pending reconnect and waits
// for an in-flight callback to return. No callback runs after Close returns.
// It is idempotent and must not be called from inside a callback.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	previous := s.state
	s.state = StateClosed
	cancel := s.cancel
	auctionID := s.auctionID
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	} else {
		s.finish()
	}

	s.cbMu.Lock()
	s.cbMu.Unlock()

	log.Info().
		Str("auction_id", auctionID.String()).
		Str("previous_state", previous.String()).
		Msg("live feed closed")
}

// State returns the current lifecycle state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the background loop has exited.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Subscriber) run(ctx context.Context, auctionID models.ID, onBid func(models.Bid)) {
	defer s.finish()

	delay := s.backoff.Delay
	for {
		if !s.setState(StateConnecting) {
			return
		}

		session, err := s.transport.Connect(ctx, auctionID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().
				Err(err).
				Str("auction_id", auctionID.String()).
				Dur("retry_in", delay).
				Msg("live feed connect failed")
		} else {
			if ctx.Err() != nil || !s.setState(StateConnected) {
				_ = session.Close()
				return
			}
			delay = s.backoff.Delay

			err = s.consume(ctx, session, auctionID, onBid)
			_ = session.Close()
			if ctx.Err() != nil {
				return
			}
			log.Warn().
				Err(err).
				Str("auction_id", auctionID.String()).
				Dur("retry_in", delay).
				Msg("live feed disconnected")
		}

		if !s.setState(StateDisconnected) || !s.sleep(ctx, delay) {
			return
		}
		delay = s.backoff.next(delay)
	}
}

func (s *Subscriber) consume(ctx context.Context, session Session, auctionID models.ID, onBid func(models.Bid)) error {
	for {
		data, err := session.Next(ctx)
		if err != nil {
			return err
		}

		bid, err := Decode(data, auctionID)
		if err != nil {
			log.Warn().
				Err(err).
				Str("auction_id", auctionID.String()).
				Int("size", len(data)).
				Msg("dropping live feed message")
			continue
		}

		if !s.callback(func() { onBid(bid) }) {
			return ErrClosed
		}
	}
}

// sleep waits for delay on the subscriber clock. It returns false if ctx ends first.
func (s *Subscriber) sleep(ctx context.Context, delay time.Duration) bool {
	timer := s.clock.NewTimer(delay)
	defer clock.StopAndDrain(timer)

	select {
	case <-timer.Chan():
		return true
	case <-ctx.Done():
		return false
	}
}

// setState records a transition and notifies the state handler. It returns
// false once the subscriber is closed.
func (s *Subscriber) setState(state State) bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = state
	s.mu.Unlock()

	log.Debug().
		Str("auction_id", s.auctionID.String()).
		Str("state", state.String()).
		Msg("live feed state change")

	if s.onState == nil {
		return true
	}
	return s.callback(func() { s.onState(state) })
}

// callback runs fn unless the subscriber has been closed.
func (s *Subscriber) callback(fn func()) bool {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	if s.State() == StateClosed {
		return false
	}
	fn()
	return true
}
