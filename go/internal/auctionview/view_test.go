package auctionview

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/bidwatch/go/clients/auctionapi"
	"github.com/mcdev12/bidwatch/go/internal/bidding"
	"github.com/mcdev12/bidwatch/go/internal/countdown"
	"github.com/mcdev12/bidwatch/go/internal/feed"
	"github.com/mcdev12/bidwatch/go/internal/models"
)

const waitTimeout = 2 * time.Second

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeSession is a live connection the test pushes raw messages into.
type fakeSession struct {
	msgs      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{msgs: make(chan []byte, 8), closed: make(chan struct{})}
}

func (s *fakeSession) Next(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.msgs:
		return data, nil
	case <-s.closed:
		return nil, feed.ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// fakeTransport hands out one fresh session per Connect and remembers them.
type fakeTransport struct {
	mu        sync.Mutex
	sessions  map[models.ID]*fakeSession
	onConnect func(models.ID)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sessions: make(map[models.ID]*fakeSession)}
}

func (f *fakeTransport) Connect(ctx context.Context, auctionID models.ID) (feed.Session, error) {
	if f.onConnect != nil {
		f.onConnect(auctionID)
	}
	s := newFakeSession()
	f.mu.Lock()
	f.sessions[auctionID] = s
	f.mu.Unlock()
	return s, nil
}

func (f *fakeTransport) session(auctionID models.ID) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[auctionID]
}

// recorder collects hook output.
type recorder struct {
	mu      sync.Mutex
	bids    [][]models.Bid
	notices []string
	ticks   []countdown.Tick
	ended   atomic.Int32
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnBids: func(bids []models.Bid) {
			r.mu.Lock()
			r.bids = append(r.bids, bids)
			r.mu.Unlock()
		},
		OnNotice: func(msg string) {
			r.mu.Lock()
			r.notices = append(r.notices, msg)
			r.mu.Unlock()
		},
		OnTick: func(tick countdown.Tick) {
			r.mu.Lock()
			r.ticks = append(r.ticks, tick)
			r.mu.Unlock()
		},
		OnEnded: func() { r.ended.Add(1) },
	}
}

func (r *recorder) bidEmits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bids)
}

func (r *recorder) lastBids() []models.Bid {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.bids) == 0 {
		return nil
	}
	return r.bids[len(r.bids)-1]
}

func (r *recorder) noticeList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notices...)
}

func testAuction(id models.ID, end time.Time) *models.Auction {
	return &models.Auction{
		ID:         id,
		Title:      "Vintage watch",
		StartTime:  models.NewTimestamp(t0.Add(-time.Hour)),
		EndTime:    models.NewTimestamp(end),
		StartPrice: decimal.NewFromInt(100),
		Status:     models.AuctionStatusActive,
	}
}

func bid(id string, amount int64) models.Bid {
	return models.Bid{ID: models.ID(id), AuctionID: "42", Amount: decimal.NewFromInt(amount), BidTime: models.NewTimestamp(t0)}
}

func bidIDs(bids []models.Bid) []models.ID {
	ids := make([]models.ID, 0, len(bids))
	for _, b := range bids {
		ids = append(ids, b.ID)
	}
	return ids
}

type fixture struct {
	api       *MockAPI
	transport *fakeTransport
	clock     *clockwork.FakeClock
	rec       *recorder
	view      *View
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		api:       NewMockAPI(ctrl),
		transport: newFakeTransport(),
		clock:     clockwork.NewFakeClockAt(t0),
		rec:       &recorder{},
	}
	f.view = New(f.api, f.transport, Options{
		Clock: f.clock,
		Hooks: f.rec.hooks(),
	})
	t.Cleanup(f.view.Unmount)
	return f
}

func (f *fixture) expectLoad(id models.ID, auction *models.Auction, bids []models.Bid) {
	gomock.InOrder(
		f.api.EXPECT().GetAuction(gomock.Any(), id).Return(auction, nil),
		f.api.EXPECT().ListBids(gomock.Any(), id).Return(bids, nil),
	)
}

func (f *fixture) waitConnected(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.view.Connectivity() == feed.StateConnected
	}, waitTimeout, 5*time.Millisecond)
}

func TestView_MountLoadsThenSubscribes(t *testing.T) {
	f := newFixture(t)

	var fetched atomic.Bool
	gomock.InOrder(
		f.api.EXPECT().GetAuction(gomock.Any(), models.ID("42")).Return(testAuction("42", t0.Add(time.Hour)), nil),
		f.api.EXPECT().ListBids(gomock.Any(), models.ID("42")).DoAndReturn(
			func(ctx context.Context, id models.ID) ([]models.Bid, error) {
				fetched.Store(true)
				return []models.Bid{bid("2", 120), bid("1", 110)}, nil
			}),
	)
	f.transport.onConnect = func(models.ID) {
		assert.True(t, fetched.Load(), "feed opened before the initial fetch settled")
	}

	require.NoError(t, f.view.Mount(context.Background(), "42"))
	require.Equal(t, models.ID("42"), f.view.AuctionID())
	require.Equal(t, "Vintage watch", f.view.Snapshot().Title)
	require.Equal(t, []models.ID{"2", "1"}, bidIDs(f.view.Bids()))
	require.Equal(t, "0d 1h 0m 0s", f.view.TimeLeft())
	require.False(t, f.view.Ended())
	f.waitConnected(t)

	highest, ok := f.view.HighestBid()
	require.True(t, ok)
	require.True(t, highest.Equal(decimal.NewFromInt(120)))
}

func TestView_LiveBidsAreMergedOnce(t *testing.T) {
	f := newFixture(t)
	f.expectLoad("42", testAuction("42", t0.Add(time.Hour)), []models.Bid{bid("1", 110)})

	require.NoError(t, f.view.Mount(context.Background(), "42"))
	f.waitConnected(t)
	emitsAfterMount := f.rec.bidEmits()

	session := f.transport.session("42")
	session.msgs <- []byte(`{"id": 2, "amount": 90, "auctionId": 42}`)
	session.msgs <- []byte(`{"id": 1, "amount": 110}`)
	session.msgs <- []byte(`garbage`)
	session.msgs <- []byte(`{"id": 2, "amount": 90}`)
	session.msgs <- []byte(`{"id": 3, "amount": 95}`)

	require.Eventually(t, func() bool { return len(f.view.Bids()) == 3 }, waitTimeout, 5*time.Millisecond)
	// Newest first regardless of amount; duplicates and garbage change nothing.
	require.Equal(t, []models.ID{"3", "2", "1"}, bidIDs(f.view.Bids()))
	require.Eventually(t, func() bool { return f.rec.bidEmits() == emitsAfterMount+2 }, waitTimeout, 5*time.Millisecond)
	require.Equal(t, []models.ID{"3", "2", "1"}, bidIDs(f.rec.lastBids()))
}

func TestView_ReconnectDoesNotDuplicateBids(t *testing.T) {
	f := newFixture(t)
	f.expectLoad("42", testAuction("42", t0.Add(time.Hour)), []models.Bid{bid("1", 110)})

	require.NoError(t, f.view.Mount(context.Background(), "42"))
	f.waitConnected(t)
	first := f.transport.session("42")
	first.msgs <- []byte(`{"id": 2, "amount": 120}`)
	require.Eventually(t, func() bool { return len(f.view.Bids()) == 2 }, waitTimeout, 5*time.Millisecond)

	// Drop the connection underneath the subscriber.
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		return f.view.Connectivity() == feed.StateDisconnected
	}, waitTimeout, 5*time.Millisecond)

	// Countdown ticker plus the reconnect timer.
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 2))
	f.clock.Advance(feed.DefaultBackoffConfig().Delay)

	require.Eventually(t, func() bool {
		s := f.transport.session("42")
		return s != nil && s != first && f.view.Connectivity() == feed.StateConnected
	}, waitTimeout, 5*time.Millisecond)

	second := f.transport.session("42")
	second.msgs <- []byte(`{"id": 2, "amount": 120}`)
	second.msgs <- []byte(`{"id": 1, "amount": 110}`)
	second.msgs <- []byte(`{"id": 3, "amount": 130}`)

	require.Eventually(t, func() bool { return len(f.view.Bids()) == 3 }, waitTimeout, 5*time.Millisecond)
	require.Equal(t, []models.ID{"3", "2", "1"}, bidIDs(f.view.Bids()))
}

func TestView_PlaceBidKeepsLiveBidsAcrossRefresh(t *testing.T) {
	f := newFixture(t)
	f.expectLoad("42", testAuction("42", t0.Add(time.Hour)), []models.Bid{bid("1", 110)})
	require.NoError(t, f.view.Mount(context.Background(), "42"))
	f.waitConnected(t)

	gomock.InOrder(
		f.api.EXPECT().PlaceBid(gomock.Any(), models.ID("42"), amountEq("150")).Return(nil),
		f.api.EXPECT().ListBids(gomock.Any(), models.ID("42")).DoAndReturn(
			func(ctx context.Context, id models.ID) ([]models.Bid, error) {
				// Another bidder's bid lands on the feed while the list is in flight.
				f.transport.session("42").msgs <- []byte(`{"id": 7, "amount": 160}`)
				assert.Eventually(t, func() bool { return len(f.view.Bids()) == 2 }, waitTimeout, 5*time.Millisecond)
				return []models.Bid{bid("5", 150), bid("1", 110)}, nil
			}),
	)

	f.view.SetAmount("150")
	require.NoError(t, f.view.PlaceBid(context.Background()))
	require.Equal(t, []models.ID{"7", "5", "1"}, bidIDs(f.view.Bids()))
	require.Equal(t, []models.ID{"7", "5", "1"}, bidIDs(f.rec.lastBids()))
}

func TestView_MountFailures(t *testing.T) {
	t.Run("auction_not_found", func(t *testing.T) {
		f := newFixture(t)
		f.api.EXPECT().GetAuction(gomock.Any(), models.ID("9")).Return(nil, auctionapi.ErrNotFound)

		err := f.view.Mount(context.Background(), "9")
		require.True(t, IsNotFound(err))
		require.Nil(t, f.view.Snapshot())
		require.Empty(t, f.view.AuctionID())
		require.Nil(t, f.transport.session("9"))
	})

	t.Run("bids_unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.api.EXPECT().GetAuction(gomock.Any(), models.ID("9")).Return(testAuction("9", t0.Add(time.Hour)), nil)
		f.api.EXPECT().ListBids(gomock.Any(), models.ID("9")).Return(nil, auctionapi.ErrNetwork)

		err := f.view.Mount(context.Background(), "9")
		require.ErrorIs(t, err, ErrBidsUnavailable)
		require.ErrorIs(t, err, auctionapi.ErrNetwork)
		require.Nil(t, f.view.Snapshot())
		require.Nil(t, f.transport.session("9"))

		// A failed mount leaves the view free for another attempt.
		f.expectLoad("9", testAuction("9", t0.Add(time.Hour)), nil)
		require.NoError(t, f.view.Mount(context.Background(), "9"))
	})
}

func TestView_UnmountReleasesEverything(t *testing.T) {
	f := newFixture(t)
	f.expectLoad("42", testAuction("42", t0.Add(time.Hour)), nil)

	require.NoError(t, f.view.Mount(context.Background(), "42"))
	require.ErrorIs(t, f.view.Mount(context.Background(), "42"), ErrAlreadyMounted)
	f.waitConnected(t)
	session := f.transport.session("42")

	f.view.Unmount()
	require.True(t, session.isClosed())
	require.Nil(t, f.view.Snapshot())
	require.Nil(t, f.view.Bids())
	require.Empty(t, f.view.AuctionID())

	f.rec.mu.Lock()
	ticks := len(f.rec.ticks)
	f.rec.mu.Unlock()

	f.clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)

	f.rec.mu.Lock()
	require.Len(t, f.rec.ticks, ticks)
	f.rec.mu.Unlock()

	f.view.Unmount()
	require.ErrorIs(t, f.view.PlaceBid(context.Background()), ErrNotMounted)
}

func TestView_SwitchAuctionReleasesBeforeAcquiring(t *testing.T) {
	f := newFixture(t)
	f.expectLoad("1", testAuction("1", t0.Add(time.Hour)), []models.Bid{bid("a", 1)})
	require.NoError(t, f.view.Mount(context.Background(), "1"))
	f.waitConnected(t)
	first := f.transport.session("1")

	f.transport.onConnect = func(id models.ID) {
		assert.Equal(t, models.ID("2"), id)
		assert.True(t, first.isClosed(), "old subscription still open")
	}
	f.expectLoad("2", testAuction("2", t0.Add(time.Hour)), []models.Bid{bid("b", 2)})

	require.NoError(t, f.view.SwitchAuction(context.Background(), "2"))
	require.Equal(t, models.ID("2"), f.view.AuctionID())
	require.Equal(t, []models.ID{"b"}, bidIDs(f.view.Bids()))
	f.waitConnected(t)
}

func TestView_CountdownLatchesEnded(t *testing.T) {
	f := newFixture(t)
	f.expectLoad("42", testAuction("42", t0.Add(2*time.Second)), nil)

	require.NoError(t, f.view.Mount(context.Background(), "42"))
	require.Equal(t, "0d 0h 0m 2s", f.view.TimeLeft())

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.view.TimeLeft() == "0d 0h 0m 1s" }, waitTimeout, 5*time.Millisecond)

	f.clock.Advance(time.Second)
	require.Eventually(t, f.view.Ended, waitTimeout, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.rec.ended.Load() == 1 }, waitTimeout, 5*time.Millisecond)
	require.Equal(t, countdown.EndedText, f.view.TimeLeft())
	require.Equal(t, models.AuctionStatusClosed, f.view.Snapshot().EffectiveStatus())
	require.Contains(t, f.rec.noticeList(), ClosedNotice)

	// No server call once the end has been observed.
	f.view.SetAmount("500")
	require.ErrorIs(t, f.view.PlaceBid(context.Background()), bidding.ErrAlreadyEnded)
	require.Contains(t, f.rec.noticeList(), "Auction already ended")

	f.clock.Advance(time.Minute)
	require.Equal(t, int32(1), f.rec.ended.Load())
}

func TestView_ClosedOnArrival(t *testing.T) {
	f := newFixture(t)
	closed := testAuction("42", t0.Add(time.Hour))
	closed.Status = models.AuctionStatusClosed
	closed.Winner = &models.Winner{ID: "7", Email: "ana@example.com"}
	f.expectLoad("42", closed, nil)

	require.NoError(t, f.view.Mount(context.Background(), "42"))
	require.Equal(t, []string{ClosedNotice}, f.rec.noticeList())
	require.Equal(t, "ana@example.com", f.view.Snapshot().WinnerName())
}

func TestView_PlaceBid(t *testing.T) {
	t.Run("success_clears_amount_and_refreshes", func(t *testing.T) {
		f := newFixture(t)
		f.expectLoad("42", testAuction("42", t0.Add(time.Hour)), []models.Bid{bid("1", 110)})
		require.NoError(t, f.view.Mount(context.Background(), "42"))
		f.waitConnected(t)

		gomock.InOrder(
			f.api.EXPECT().PlaceBid(gomock.Any(), models.ID("42"), amountEq("150.50")).Return(nil),
			f.api.EXPECT().ListBids(gomock.Any(), models.ID("42")).Return([]models.Bid{bid("5", 150), bid("1", 110)}, nil),
		)

		f.view.SetAmount("150.50")
		require.NoError(t, f.view.PlaceBid(context.Background()))
		require.Empty(t, f.view.Amount())
		require.Equal(t, []models.ID{"5", "1"}, bidIDs(f.view.Bids()))

		// The feed echo of our own bid is absorbed.
		f.transport.session("42").msgs <- []byte(`{"id": 5, "amount": 150}`)
		f.transport.session("42").msgs <- []byte(`{"id": 6, "amount": 151}`)
		require.Eventually(t, func() bool { return len(f.view.Bids()) == 3 }, waitTimeout, 5*time.Millisecond)
		require.Equal(t, []models.ID{"6", "5", "1"}, bidIDs(f.view.Bids()))
	})

	t.Run("refresh_failure_is_not_fatal", func(t *testing.T) {
		f := newFixture(t)
		f.expectLoad("42", testAuction("42", t0.Add(time.Hour)), nil)
		require.NoError(t, f.view.Mount(context.Background(), "42"))

		f.api.EXPECT().PlaceBid(gomock.Any(), models.ID("42"), amountEq("10")).Return(nil)
		f.api.EXPECT().ListBids(gomock.Any(), models.ID("42")).Return(nil, auctionapi.ErrNetwork)

		f.view.SetAmount("10")
		require.NoError(t, f.view.PlaceBid(context.Background()))
		require.Empty(t, f.view.Amount())
	})

	t.Run("server_rejection_is_shown_verbatim", func(t *testing.T) {
		f := newFixture(t)
		f.expectLoad("42", testAuction("42", t0.Add(time.Hour)), nil)
		require.NoError(t, f.view.Mount(context.Background(), "42"))

		f.api.EXPECT().PlaceBid(gomock.Any(), models.ID("42"), amountEq("10")).
			Return(&auctionapi.DomainError{StatusCode: 400, Message: "Bid must be higher than current highest bid"})

		f.view.SetAmount("10")
		err := f.view.PlaceBid(context.Background())
		var rejected *bidding.RejectedError
		require.ErrorAs(t, err, &rejected)
		require.Equal(t, []string{"Bid must be higher than current highest bid"}, f.rec.noticeList())
		require.Equal(t, "10", f.view.Amount())
	})

	t.Run("transport_failure_is_generic", func(t *testing.T) {
		f := newFixture(t)
		f.expectLoad("42", testAuction("42", t0.Add(time.Hour)), nil)
		require.NoError(t, f.view.Mount(context.Background(), "42"))

		f.api.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))

		f.view.SetAmount("10")
		require.ErrorIs(t, f.view.PlaceBid(context.Background()), bidding.ErrSubmissionFailed)
		require.Equal(t, []string{"Bid Failed"}, f.rec.noticeList())
	})

	t.Run("invalid_amount_skips_server", func(t *testing.T) {
		f := newFixture(t)
		f.expectLoad("42", testAuction("42", t0.Add(time.Hour)), nil)
		require.NoError(t, f.view.Mount(context.Background(), "42"))

		f.view.SetAmount("ten")
		require.ErrorIs(t, f.view.PlaceBid(context.Background()), bidding.ErrInvalidAmount)
	})
}

// amountEq matches a decimal argument by value.
type amountEq string

func (m amountEq) Matches(x interface{}) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(decimal.RequireFromString(string(m)))
}

func (m amountEq) String() string { return "amount " + string(m) }
