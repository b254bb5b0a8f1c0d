package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidwatch/go/internal/auction"
	"github.com/mcdev12/bidwatch/go/internal/auctionview"
	"github.com/mcdev12/bidwatch/go/internal/bidding"
	"github.com/mcdev12/bidwatch/go/internal/countdown"
	"github.com/mcdev12/bidwatch/go/internal/feed"
	"github.com/mcdev12/bidwatch/go/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

func watch(ctx context.Context, services *Services, rawID string, in io.Reader, out io.Writer) error {
	p := newPrinter(out)
	view := services.newView(auctionview.Hooks{
		OnSnapshot:     p.snapshot,
		OnBids:         p.bids,
		OnTick:         p.tick,
		OnConnectivity: p.connectivity,
		OnNotice:       p.notice,
	})

	auctionID := models.ID(rawID)
	if err := view.Mount(ctx, auctionID); err != nil {
		if auctionview.IsNotFound(err) {
			return fmt.Errorf("auction %s not found", auctionID)
		}
		return fmt.Errorf("could not load auction %s: %w", auctionID, err)
	}
	defer view.Unmount()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// Input closed; keep following the auction until interrupted.
				lines = nil
				continue
			}
			amount := strings.TrimSpace(line)
			if amount == "" {
				continue
			}
			view.SetAmount(amount)
			if err := view.PlaceBid(ctx); err == nil {
				p.printf("bid of %s placed", amount)
			}
		}
	}
}

func list(ctx context.Context, services *Services, out io.Writer) error {
	auctions, err := services.API.ListAuctions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load auctions: %w", err)
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tSTART PRICE\tENDS\tTIME LEFT\tWINNER")
	for i := range auctions {
		a := &auctions[i]
		tick := countdown.Evaluate(a.EndTime.Time, now)
		left := tick.Text
		if tick.EndingSoon {
			left += " (ending soon)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Title, a.Status, a.StartPrice.StringFixed(2),
			a.EndTime.Local().Format(timeLayout), left, a.WinnerName())
	}
	return w.Flush()
}

func placeBid(ctx context.Context, services *Services, rawID, amount string, out io.Writer) error {
	store := auction.NewStore(services.API)
	snapshot, err := store.Load(ctx, models.ID(rawID))
	if err != nil {
		if errors.Is(err, auction.ErrNotFound) {
			return fmt.Errorf("auction %s not found", rawID)
		}
		return fmt.Errorf("could not load auction %s: %w", rawID, err)
	}

	gate := bidding.NewGate(services.API)
	if err := gate.Submit(ctx, snapshot, amount, time.Now()); err != nil {
		log.Debug().Err(err).Msg("bid not placed")
		return errors.New(bidding.UserMessage(err))
	}

	fmt.Fprintf(out, "bid of %s placed on auction %s\n", strings.TrimSpace(amount), snapshot.ID)
	return nil
}

// printer renders view hooks as lines of text. Hooks arrive from several
// goroutines, so every write is serialized.
type printer struct {
	mu         sync.Mutex
	out        io.Writer
	seen       map[models.ID]bool
	tickBucket time.Duration
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, seen: make(map[models.ID]bool), tickBucket: -1}
}

func (p *printer) printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printfLocked(format, args...)
}

func (p *printer) printfLocked(format string, args ...interface{}) {
	fmt.Fprintf(p.out, "[%s] %s\n", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
}

func (p *printer) snapshot(a *models.Auction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.printfLocked("%s (#%s) %s", a.Title, a.ID, a.EffectiveStatus())
	if a.Description != "" {
		p.printfLocked("  %s", a.Description)
	}
	p.printfLocked("  starting price %s, %s to %s",
		a.StartPrice.StringFixed(2),
		a.StartTime.Local().Format(timeLayout),
		a.EndTime.Local().Format(timeLayout))
	if winner := a.WinnerName(); winner != "" {
		p.printfLocked("  winner: %s", winner)
	}
}

// bids prints records not shown before, oldest first.
func (p *printer) bids(bids []models.Bid) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := len(bids) - 1; i >= 0; i-- {
		b := bids[i]
		if p.seen[b.ID] {
			continue
		}
		p.seen[b.ID] = true
		when := ""
		if !b.BidTime.IsZero() {
			when = " at " + b.BidTime.Local().Format(timeLayout)
		}
		p.printfLocked("bid #%s: %s%s", b.ID, b.Amount.StringFixed(2), when)
	}
}

// tick prints the countdown once a minute, every ten seconds when ending soon.
func (p *printer) tick(t countdown.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()

	step := time.Minute
	if t.EndingSoon {
		step = 10 * time.Second
	}
	bucket := (t.Remaining + step - 1) / step
	if t.Ended || bucket != p.tickBucket {
		p.tickBucket = bucket
		p.printfLocked("time left: %s", t.Text)
	}
}

func (p *printer) connectivity(state feed.State) {
	switch state {
	case feed.StateConnected:
		p.printf("live updates connected")
	case feed.StateDisconnected:
		p.printf("live updates lost, reconnecting")
	}
}

func (p *printer) notice(msg string) {
	p.printf("! %s", msg)
}
