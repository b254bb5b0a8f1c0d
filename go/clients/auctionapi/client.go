// Package auctionapi is the REST client for the auction backend.
package auctionapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mcdev12/bidwatch/go/clients"
	"github.com/mcdev12/bidwatch/go/internal/models"
)

type Client struct {
	*clients.BaseClient
}

// NewClient creates a client for baseURL. token is the caller's session
// credential; an empty token sends anonymous requests.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &Client{
		BaseClient: clients.NewBaseClient(baseURL),
	}
	client.SetAuthToken(token)
	return client
}

type placeBidRequest struct {
	AuctionID models.ID   `json:"auctionId"`
	Amount    json.Number `json:"amount"`
}

// GetAuction fetches one auction snapshot.
func (c *Client) GetAuction(ctx context.Context, auctionID models.ID) (*models.Auction, error) {
	var auction models.Auction
	resp, err := c.R().
		SetContext(ctx).
		SetPathParam("auctionId", auctionID.String()).
		SetResult(&auction).
		SetError(&errorBody{}).
		Get(AuctionEndpoint)
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	return &auction, nil
}

// ListAuctions fetches every auction, active first then closed, newest first.
func (c *Client) ListAuctions(ctx context.Context) ([]models.Auction, error) {
	var auctions []models.Auction
	resp, err := c.R().
		SetContext(ctx).
		SetResult(&auctions).
		SetError(&errorBody{}).
		Get(AuctionsEndpoint)
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	models.SortForListing(auctions)
	return auctions, nil
}

// ListBids fetches the bids of an auction in server order.
func (c *Client) ListBids(ctx context.Context, auctionID models.ID) ([]models.Bid, error) {
	var bids []models.Bid
	resp, err := c.R().
		SetContext(ctx).
		SetPathParam("auctionId", auctionID.String()).
		SetResult(&bids).
		SetError(&errorBody{}).
		Get(AuctionBidsEndpoint)
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// PlaceBid submits a bid. A business-rule rejection is returned as *DomainError.
func (c *Client) PlaceBid(ctx context.Context, auctionID models.ID, amount decimal.Decimal) error {
	resp, err := c.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(placeBidRequest{AuctionID: auctionID, Amount: json.Number(amount.String())}).
		SetError(&errorBody{}).
		Post(PlaceBidEndpoint)
	if err := checkResponse(resp, err); err != nil {
		return fmt.Errorf("place bid on auction %s: %w", auctionID, err)
	}

	log.Debug().
		Str("auction_id", auctionID.String()).
		Str("amount", amount.String()).
		Msg("bid accepted by server")
	return nil
}

// checkResponse maps transport failures and non-2xx responses onto the package errors.
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	if !resp.IsError() {
		return nil
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrNotFound
	}

	domainErr := &DomainError{StatusCode: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		domainErr.Message = body.Message
	}
	if domainErr.Message == "" && resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("%w: server returned %d", ErrNetwork, resp.StatusCode())
	}
	return domainErr
}
