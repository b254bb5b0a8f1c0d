// Package ledger keeps the ordered, deduplicated list of bids for the auction on screen.
package ledger

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mcdev12/bidwatch/go/internal/models"
)

// Ledger is an ordered, deduplicated collection of bids for one auction.
//
// Bulk-loaded bids keep the order the server returned them in. Live bids are
// prepended, so the visible order is most recent merge first. A bid id is
// accepted at most once for the lifetime of a load, even after the bid has
// been evicted from the visible list by the retention limit.
type Ledger struct {
	mu        sync.RWMutex
	bids      []models.Bid
	seen      map[models.ID]struct{}
	retention int
}

// New creates an empty ledger. retention caps the number of visible bids; zero
// or less keeps everything.
func New(retention int) *Ledger {
	return &Ledger{
		seen:      make(map[models.ID]struct{}),
		retention: retention,
	}
}

// Initialize replaces the ledger content with records, in the order supplied.
// Duplicate ids inside records keep their first occurrence.
func (l *Ledger) Initialize(records []models.Bid) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.bids = make([]models.Bid, 0, len(records))
	l.seen = make(map[models.ID]struct{}, len(records))
	for _, r := range records {
		if _, dup := l.seen[r.ID]; dup {
			log.Debug().Str("bid_id", r.ID.String()).Msg("duplicate bid in initial load ignored")
			continue
		}
		l.seen[r.ID] = struct{}{}
		l.bids = append(l.bids, r)
	}
	l.evictLocked()
}

// Refresh reconciles the ledger with a refetched list. Records take the
// server's order; visible bids the refetch does not contain stay in front of
// them, so a live bid that raced the refetch is not lost. Seen ids are kept.
func (l *Ledger) Refresh(records []models.Bid) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fetched := make(map[models.ID]struct{}, len(records))
	for _, r := range records {
		fetched[r.ID] = struct{}{}
	}

	bids := make([]models.Bid, 0, len(l.bids)+len(records))
	for _, b := range l.bids {
		if _, ok := fetched[b.ID]; !ok {
			bids = append(bids, b)
		}
	}
	added := make(map[models.ID]struct{}, len(records))
	for _, r := range records {
		if _, dup := added[r.ID]; dup {
			continue
		}
		added[r.ID] = struct{}{}
		l.seen[r.ID] = struct{}{}
		bids = append(bids, r)
	}
	l.bids = bids
	l.evictLocked()
}

// Merge inserts record at the front and returns true, or returns false without
// changing anything if a bid with the same id is already known.
func (l *Ledger) Merge(record models.Bid) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.seen[record.ID]; dup {
		return false
	}
	l.seen[record.ID] = struct{}{}

	l.bids = append(l.bids, models.Bid{})
	copy(l.bids[1:], l.bids)
	l.bids[0] = record
	l.evictLocked()
	return true
}

// All returns a copy of the visible bids in display order.
func (l *Ledger) All() []models.Bid {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Bid(nil), l.bids...)
}

// Len is the number of visible bids.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.bids)
}

// Contains reports whether id has been accepted, visible or evicted.
func (l *Ledger) Contains(id models.ID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[id]
	return ok
}

// Highest returns the largest visible amount. It is for display only; the
// server decides whether a bid is high enough.
func (l *Ledger) Highest() (decimal.Decimal, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.bids) == 0 {
		return decimal.Zero, false
	}
	highest := l.bids[0].Amount
	for _, b := range l.bids[1:] {
		if b.Amount.GreaterThan(highest) {
			highest = b.Amount
		}
	}
	return highest, true
}

// evictLocked trims the tail of the visible list. Evicted ids stay in seen.
func (l *Ledger) evictLocked() {
	if l.retention <= 0 || len(l.bids) <= l.retention {
		return
	}
	for i := l.retention; i < len(l.bids); i++ {
		l.bids[i] = models.Bid{}
	}
	l.bids = l.bids[:l.retention]
}
