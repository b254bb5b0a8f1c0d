// Package auction holds the snapshot of the auction currently on screen.
package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidwatch/go/clients/auctionapi"
	"github.com/mcdev12/bidwatch/go/internal/models"
)

var (
	ErrNotFound   = errors.New("auction not found")
	ErrNetwork    = errors.New("auction could not be loaded")
	ErrNoSnapshot = errors.New("no auction loaded")
)

// Fetcher is what the store needs from the remote API.
type Fetcher interface {
	GetAuction(ctx context.Context, auctionID models.ID) (*models.Auction, error)
}

// Store holds the current AuctionSnapshot. Load replaces it wholesale; the only
// partial update is the local CLOSED override applied by MarkEnded.
type Store struct {
	fetcher Fetcher

	mu       sync.RWMutex
	snapshot *models.Auction
}

// NewStore creates an empty store.
func NewStore(fetcher Fetcher) *Store {
	return &Store{fetcher: fetcher}
}

// Load fetches auctionID and replaces any previously held snapshot. On failure
// the previous snapshot is discarded as well, since it belongs to a view that
// is being replaced.
func (s *Store) Load(ctx context.Context, auctionID models.ID) (*models.Auction, error) {
	s.Clear()

	snapshot, err := s.fetcher.GetAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, auctionapi.ErrNotFound) {
			return nil, fmt.Errorf("load auction %s: %w", auctionID, ErrNotFound)
		}
		return nil, fmt.Errorf("load auction %s: %w: %w", auctionID, ErrNetwork, err)
	}
	if snapshot.ID == "" {
		snapshot.ID = auctionID
	}

	s.mu.Lock()
	s.snapshot = snapshot.Clone()
	s.mu.Unlock()

	log.Debug().
		Str("auction_id", auctionID.String()).
		Str("status", string(snapshot.Status)).
		Time("end_time", snapshot.EndTime.Time).
		Msg("auction snapshot loaded")

	return snapshot, nil
}

// Current returns a copy of the held snapshot, or nil.
func (s *Store) Current() *models.Auction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Clone()
}

// MarkEnded latches the held snapshot as CLOSED. It reports whether the latch
// changed, so callers can react exactly once.
func (s *Store) MarkEnded() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot == nil {
		return false, ErrNoSnapshot
	}
	if s.snapshot.EndedLocally {
		return false, nil
	}
	s.snapshot.EndedLocally = true
	return true, nil
}

// Clear discards the held snapshot.
func (s *Store) Clear() {
	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
}
