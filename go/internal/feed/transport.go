package feed

import (
	"context"
	"errors"

	"github.com/mcdev12/bidwatch/go/internal/models"
)

// ErrSessionClosed is returned by Session.Next after the session was closed.
var ErrSessionClosed = errors.New("feed session closed")

// Transport establishes a connection plus a topic subscription for one auction.
type Transport interface {
	Connect(ctx context.Context, auctionID models.ID) (Session, error)
}

// Session is one live connection. Next blocks until a raw message arrives, the
// connection drops, or ctx is done. Any error from Next ends the session.
type Session interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}
