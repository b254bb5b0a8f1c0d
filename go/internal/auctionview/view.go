// Package auctionview keeps one displayed auction consistent: snapshot, bid
// ledger, live feed, countdown and bid submission.
package auctionview

//go:generate mockgen -source=view.go -destination=mock_view_test.go -package=auctionview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mcdev12/bidwatch/go/clients/auctionapi"
	"github.com/mcdev12/bidwatch/go/internal/auction"
	"github.com/mcdev12/bidwatch/go/internal/bidding"
	"github.com/mcdev12/bidwatch/go/internal/clock"
	"github.com/mcdev12/bidwatch/go/internal/countdown"
	"github.com/mcdev12/bidwatch/go/internal/feed"
	"github.com/mcdev12/bidwatch/go/internal/ledger"
	"github.com/mcdev12/bidwatch/go/internal/models"
)

// ClosedNotice is shown once the auction can no longer take bids.
const ClosedNotice = "Auction closed. No more bids allowed."

var (
	ErrAlreadyMounted  = errors.New("view already mounted")
	ErrNotMounted      = errors.New("no auction mounted")
	ErrBidsUnavailable = errors.New("bids could not be loaded")
)

// API is the slice of the auction backend the view talks to.
type API interface {
	GetAuction(ctx context.Context, auctionID models.ID) (*models.Auction, error)
	ListBids(ctx context.Context, auctionID models.ID) ([]models.Bid, error)
	PlaceBid(ctx context.Context, auctionID models.ID, amount decimal.Decimal) error
}

// Hooks are the view's outputs. Every hook is optional. Hooks run on the
// goroutine that caused the change and must not call Mount, SwitchAuction or
// Unmount.
type Hooks struct {
	OnSnapshot     func(*models.Auction)
	OnBids         func([]models.Bid)
	OnTick         func(countdown.Tick)
	OnEnded        func()
	OnConnectivity func(feed.State)
	// OnNotice receives transient user notifications.
	OnNotice func(string)
}

type Options struct {
	Clock             clock.Clock
	Retention         int
	CountdownInterval time.Duration
	FeedOptions       []feed.Option
	Hooks             Hooks
}

// View is the auction detail view. It owns at most one mounted auction and
// releases the live feed and countdown of that auction exactly once, whichever
// way the view is left.
type View struct {
	api       API
	transport feed.Transport
	clock     clock.Clock
	opts      Options
	store     *auction.Store
	gate      *bidding.Gate

	// lifecycle serializes Mount, SwitchAuction and Unmount.
	lifecycle sync.Mutex

	mu           sync.Mutex
	mounted      *mount
	amount       string
	lastTick     countdown.Tick
	connectivity feed.State
}

// mount is everything acquired for one auction id.
type mount struct {
	auctionID  models.ID
	ledger     *ledger.Ledger
	subscriber *feed.Subscriber
	countdown  *countdown.Scheduler
}

// New creates an unmounted view.
func New(api API, transport feed.Transport, opts Options) *View {
	opts.Clock = clock.OrDefault(opts.Clock)
	return &View{
		api:       api,
		transport: transport,
		clock:     opts.Clock,
		opts:      opts,
		store:     auction.NewStore(api),
		gate:      bidding.NewGate(api),
	}
}

// Mount loads auctionID and its bids, then opens the live feed and starts the
// countdown. A fetch failure is returned and nothing is acquired.
func (v *View) Mount(ctx context.Context, auctionID models.ID) error {
	v.lifecycle.Lock()
	defer v.lifecycle.Unlock()

	v.mu.Lock()
	busy := v.mounted != nil
	v.mu.Unlock()
	if busy {
		return ErrAlreadyMounted
	}
	return v.mount(ctx, auctionID)
}

// SwitchAuction releases the current auction, if any, before mounting auctionID.
func (v *View) SwitchAuction(ctx context.Context, auctionID models.ID) error {
	v.lifecycle.Lock()
	defer v.lifecycle.Unlock()

	v.unmount()
	return v.mount(ctx, auctionID)
}

// Unmount closes the live feed and stops the countdown. It is a no-op when
// nothing is mounted.
func (v *View) Unmount() {
	v.lifecycle.Lock()
	defer v.lifecycle.Unlock()
	v.unmount()
}

func (v *View) mount(ctx context.Context, auctionID models.ID) error {
	snapshot, err := v.store.Load(ctx, auctionID)
	if err != nil {
		return err
	}

	bids, err := v.api.ListBids(ctx, auctionID)
	if err != nil {
		v.store.Clear()
		return fmt.Errorf("load bids for auction %s: %w: %w", auctionID, ErrBidsUnavailable, err)
	}

	m := &mount{
		auctionID: auctionID,
		ledger:    ledger.New(v.opts.Retention),
	}
	m.ledger.Initialize(bids)

	feedOpts := append([]feed.Option{
		feed.WithClock(v.clock),
		feed.WithStateHandler(v.handleConnectivity),
	}, v.opts.FeedOptions...)
	m.subscriber = feed.NewSubscriber(v.transport, feedOpts...)
	m.countdown = countdown.New(snapshot.EndTime.Time, countdown.Options{
		Clock:    v.clock,
		Interval: v.opts.CountdownInterval,
		OnTick:   v.handleTick,
		OnEnded:  v.handleEnded,
	})

	v.mu.Lock()
	v.mounted = m
	v.amount = ""
	v.lastTick = countdown.Tick{}
	v.connectivity = feed.StateIdle
	v.mu.Unlock()

	log.Info().
		Str("auction_id", auctionID.String()).
		Int("bids", m.ledger.Len()).
		Msg("auction view mounted")

	v.emitSnapshot()
	v.emitBids(m.ledger)

	// The ledger is seeded before the feed opens.
	if err := m.subscriber.Open(context.Background(), auctionID, func(bid models.Bid) {
		if m.ledger.Merge(bid) {
			v.emitBids(m.ledger)
		}
	}); err != nil {
		v.unmount()
		return fmt.Errorf("open live feed: %w", err)
	}
	m.countdown.Start(context.Background())

	// A past end time already produced the notice through the countdown.
	if snapshot.Status == models.AuctionStatusClosed && !m.countdown.Ended() {
		v.notice(ClosedNotice)
	}
	return nil
}

func (v *View) unmount() {
	v.mu.Lock()
	m := v.mounted
	v.mounted = nil
	v.amount = ""
	v.mu.Unlock()

	if m == nil {
		return
	}

	m.subscriber.Close()
	m.countdown.Stop()
	v.store.Clear()

	log.Info().Str("auction_id", m.auctionID.String()).Msg("auction view unmounted")
}

// SetAmount records the bid amount input.
func (v *View) SetAmount(amount string) {
	v.mu.Lock()
	v.amount = amount
	v.mu.Unlock()
}

// Amount returns the current bid amount input.
func (v *View) Amount() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.amount
}

// PlaceBid submits the current amount. On success the amount is cleared and
// the bid list is refetched; failures are also reported through OnNotice.
func (v *View) PlaceBid(ctx context.Context) error {
	v.mu.Lock()
	m := v.mounted
	amount := v.amount
	v.mu.Unlock()

	if m == nil {
		return ErrNotMounted
	}

	snapshot := v.store.Current()
	if err := v.gate.Submit(ctx, snapshot, amount, v.clock.Now()); err != nil {
		v.notice(bidding.UserMessage(err))
		return err
	}

	v.mu.Lock()
	if v.mounted == m {
		v.amount = ""
	}
	v.mu.Unlock()

	v.refreshBids(ctx, m)
	return nil
}

// refreshBids reconciles the ledger with the server after a successful
// submission. A failure is not fatal: the live feed still delivers the new bid.
func (v *View) refreshBids(ctx context.Context, m *mount) {
	bids, err := v.api.ListBids(ctx, m.auctionID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("auction_id", m.auctionID.String()).
			Msg("bid refresh failed, relying on live feed")
		return
	}

	v.mu.Lock()
	current := v.mounted == m
	v.mu.Unlock()
	if !current {
		return
	}

	m.ledger.Refresh(bids)
	v.emitBids(m.ledger)
}

// Snapshot returns a copy of the mounted auction, or nil.
func (v *View) Snapshot() *models.Auction {
	return v.store.Current()
}

// Bids returns the ledger in display order.
func (v *View) Bids() []models.Bid {
	v.mu.Lock()
	m := v.mounted
	v.mu.Unlock()
	if m == nil {
		return nil
	}
	return m.ledger.All()
}

// HighestBid returns the largest amount seen, for display only.
func (v *View) HighestBid() (decimal.Decimal, bool) {
	v.mu.Lock()
	m := v.mounted
	v.mu.Unlock()
	if m == nil {
		return decimal.Zero, false
	}
	return m.ledger.Highest()
}

// TimeLeft returns the most recent countdown text.
func (v *View) TimeLeft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastTick.Text
}

// Ended reports whether the mounted auction has been observed as ended.
func (v *View) Ended() bool {
	snapshot := v.store.Current()
	return snapshot != nil && snapshot.HasEnded(v.clock.Now())
}

// Connectivity returns the live feed state.
func (v *View) Connectivity() feed.State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connectivity
}

// AuctionID returns the mounted auction id, or "".
func (v *View) AuctionID() models.ID {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mounted == nil {
		return ""
	}
	return v.mounted.auctionID
}

func (v *View) handleTick(tick countdown.Tick) {
	v.mu.Lock()
	v.lastTick = tick
	v.mu.Unlock()

	if v.opts.Hooks.OnTick != nil {
		v.opts.Hooks.OnTick(tick)
	}
}

func (v *View) handleEnded() {
	changed, err := v.store.MarkEnded()
	if err != nil || !changed {
		return
	}

	log.Info().Msg("auction end observed locally, bidding closed")

	if v.opts.Hooks.OnEnded != nil {
		v.opts.Hooks.OnEnded()
	}
	v.emitSnapshot()
	v.notice(ClosedNotice)
}

func (v *View) handleConnectivity(state feed.State) {
	v.mu.Lock()
	v.connectivity = state
	v.mu.Unlock()

	if v.opts.Hooks.OnConnectivity != nil {
		v.opts.Hooks.OnConnectivity(state)
	}
}

func (v *View) emitSnapshot() {
	if v.opts.Hooks.OnSnapshot == nil {
		return
	}
	if snapshot := v.store.Current(); snapshot != nil {
		v.opts.Hooks.OnSnapshot(snapshot)
	}
}

func (v *View) emitBids(l *ledger.Ledger) {
	if v.opts.Hooks.OnBids != nil {
		v.opts.Hooks.OnBids(l.All())
	}
}

func (v *View) notice(msg string) {
	if v.opts.Hooks.OnNotice != nil && msg != "" {
		v.opts.Hooks.OnNotice(msg)
	}
}

// IsNotFound reports whether a Mount error means the auction does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, auction.ErrNotFound) || errors.Is(err, auctionapi.ErrNotFound)
}
