package auctionapi

const (
	// DefaultBaseURL is the backend used when nothing is configured.
	DefaultBaseURL = "http://localhost:9090"

	AuctionEndpoint     = "/api/auctions/{auctionId}"
	AuctionsEndpoint    = "/api/auctions/all"
	AuctionBidsEndpoint = "/api/bids/auction/{auctionId}"
	PlaceBidEndpoint    = "/api/bids/place"
)
