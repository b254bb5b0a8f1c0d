package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Bid is a single bid record. Bids are never mutated once received.
type Bid struct {
	ID        ID              `json:"id"`
	AuctionID ID              `json:"auctionId,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	BidTime   Timestamp       `json:"bidTime"`
}

// UnmarshalJSON also accepts the backend's nested form, where the auction is
// embedded as {"auction": {"id": ...}} instead of a flat auctionId.
func (b *Bid) UnmarshalJSON(data []byte) error {
	type plain Bid
	var wire struct {
		plain
		Auction *struct {
			ID ID `json:"id"`
		} `json:"auction"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*b = Bid(wire.plain)
	if b.AuctionID == "" && wire.Auction != nil {
		b.AuctionID = wire.Auction.ID
	}
	return nil
}
