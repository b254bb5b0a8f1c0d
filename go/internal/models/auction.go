package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle status reported by the server.
type AuctionStatus string

const (
	AuctionStatusActive AuctionStatus = "ACTIVE"
	AuctionStatusClosed AuctionStatus = "CLOSED"
)

// Winner identifies the user who won a closed auction.
type Winner struct {
	ID    ID     `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// DisplayName is the winner's name, falling back to the email address.
func (w *Winner) DisplayName() string {
	if w == nil {
		return ""
	}
	if w.Name != "" {
		return w.Name
	}
	return w.Email
}

// Auction is the client's snapshot of one auction's server-reported fields.
type Auction struct {
	ID          ID              `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	StartTime   Timestamp       `json:"startTime"`
	EndTime     Timestamp       `json:"endTime"`
	StartPrice  decimal.Decimal `json:"startPrice"`
	Status      AuctionStatus   `json:"status"`
	Winner      *Winner         `json:"winner,omitempty"`
	ImageURLs   []string        `json:"imageUrls,omitempty"`

	// EndedLocally latches once the countdown has observed now >= EndTime. It is never
	// cleared for the same snapshot.
	EndedLocally bool `json:"-"`
}

// ValidWindow reports whether EndTime is strictly after StartTime.
func (a *Auction) ValidWindow() bool {
	return a.EndTime.After(a.StartTime.Time)
}

// HasStarted reports whether now is at or after StartTime.
func (a *Auction) HasStarted(now time.Time) bool {
	return !now.Before(a.StartTime.Time)
}

// HasEnded reports whether the auction is over at now, honoring the local latch.
func (a *Auction) HasEnded(now time.Time) bool {
	return a.EndedLocally || !now.Before(a.EndTime.Time)
}

// Biddable reports whether a bid could be accepted at now from the client's point of view.
func (a *Auction) Biddable(now time.Time) bool {
	return a.ValidWindow() && a.HasStarted(now) && !a.HasEnded(now)
}

// EffectiveStatus is the server status with the local CLOSED override applied.
func (a *Auction) EffectiveStatus() AuctionStatus {
	if a.EndedLocally {
		return AuctionStatusClosed
	}
	return a.Status
}

// WinnerName returns the winner's display name for closed auctions only.
func (a *Auction) WinnerName() string {
	if a.EffectiveStatus() != AuctionStatusClosed {
		return ""
	}
	return a.Winner.DisplayName()
}

// Clone returns a copy that does not share the image slice or winner.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	c := *a
	if a.Winner != nil {
		w := *a.Winner
		c.Winner = &w
	}
	c.ImageURLs = append([]string(nil), a.ImageURLs...)
	return &c
}

// SortForListing orders auctions active first, then closed, each group newest id first.
func SortForListing(auctions []Auction) {
	sort.SliceStable(auctions, func(i, j int) bool {
		ai, aj := auctions[i].Status == AuctionStatusActive, auctions[j].Status == AuctionStatusActive
		if ai != aj {
			return ai
		}
		return auctions[j].ID.Less(auctions[i].ID)
	})
}
