// Package bidding validates and submits bids against an auction's timing rules.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mcdev12/bidwatch/go/clients/auctionapi"
	"github.com/mcdev12/bidwatch/go/internal/models"
)

//go:generate mockgen -source=gate.go -destination=mock_gate_test.go -package=bidding

// BidPlacer is the remote half of a submission.
type BidPlacer interface {
	PlaceBid(ctx context.Context, auctionID models.ID, amount decimal.Decimal) error
}

// Gate checks a bid against the auction's window and forwards it to the server.
// It never compares the amount against other bids; sufficiency is decided
// server-side.
type Gate struct {
	placer BidPlacer
}

// NewGate creates a gate submitting through placer.
func NewGate(placer BidPlacer) *Gate {
	return &Gate{placer: placer}
}

// Validate runs the local checks in order and returns the first failure:
// configuration, not started, already ended, malformed amount.
func Validate(auction *models.Auction, amount string, now time.Time) (decimal.Decimal, error) {
	if !auction.ValidWindow() {
		return decimal.Zero, ErrInvalidConfiguration
	}
	if !auction.HasStarted(now) {
		return decimal.Zero, ErrNotStarted
	}
	if auction.HasEnded(now) {
		return decimal.Zero, ErrAlreadyEnded
	}

	parsed, err := ParseAmount(amount)
	if err != nil {
		return decimal.Zero, err
	}
	return parsed, nil
}

// ParseAmount parses a user-entered amount. It must be a positive number.
func ParseAmount(amount string) (decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is empty", ErrInvalidAmount)
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, amount)
	}
	if !parsed.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	return parsed, nil
}

// Submit validates amount against auction at now and, if it passes, places the
// bid. Server rejections come back as *RejectedError; other failures wrap
// ErrSubmissionFailed. Submissions are never retried.
func (g *Gate) Submit(ctx context.Context, auction *models.Auction, amount string, now time.Time) error {
	if auction == nil {
		return fmt.Errorf("submit bid: %w", ErrSubmissionFailed)
	}

	parsed, err := Validate(auction, amount, now)
	if err != nil {
		log.Debug().
			Err(err).
			Str("auction_id", auction.ID.String()).
			Msg("bid rejected locally")
		return err
	}

	if err := g.placer.PlaceBid(ctx, auction.ID, parsed); err != nil {
		log.Warn().
			Err(err).
			Str("auction_id", auction.ID.String()).
			Str("amount", parsed.String()).
			Msg("bid submission failed")

		var domainErr *auctionapi.DomainError
		if errors.As(err, &domainErr) && domainErr.Message != "" {
			return &RejectedError{Message: domainErr.Message}
		}
		return fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	log.Info().
		Str("auction_id", auction.ID.String()).
		Str("amount", parsed.String()).
		Msg("bid placed")
	return nil
}
