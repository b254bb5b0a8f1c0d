package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/bidwatch/go/internal/models"
)

var (
	ErrMalformedMessage = errors.New("malformed bid message")
	ErrForeignAuction   = errors.New("bid belongs to another auction")
)

// Decode parses one feed message into a bid for auctionID.
func Decode(data []byte, auctionID models.ID) (models.Bid, error) {
	var bid models.Bid
	if err := json.Unmarshal(data, &bid); err != nil {
		return models.Bid{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if bid.ID == "" {
		return models.Bid{}, fmt.Errorf("%w: missing id", ErrMalformedMessage)
	}
	if !bid.Amount.IsPositive() {
		return models.Bid{}, fmt.Errorf("%w: non-positive amount %s", ErrMalformedMessage, bid.Amount)
	}
	if bid.AuctionID != "" && bid.AuctionID != auctionID {
		return models.Bid{}, fmt.Errorf("%w: got %s, subscribed to %s", ErrForeignAuction, bid.AuctionID, auctionID)
	}
	if bid.AuctionID == "" {
		bid.AuctionID = auctionID
	}
	return bid, nil
}
