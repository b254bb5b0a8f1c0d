package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/bidwatch/go/internal/config"
	"github.com/mcdev12/bidwatch/go/internal/countdown"
	"github.com/mcdev12/bidwatch/go/internal/feed"
	"github.com/mcdev12/bidwatch/go/internal/models"
)

func backend(t *testing.T, handler http.HandlerFunc) *Services {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.API.BaseURL = srv.URL
	return setupServices(cfg)
}

func respond(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestList(t *testing.T) {
	services := backend(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, `[
			{"id": 1, "title": "Old lamp", "status": "CLOSED", "startPrice": 10,
			 "startTime": "2020-01-01T10:00:00", "endTime": "2020-01-02T10:00:00",
			 "winner": {"id": 3, "name": "Ravi"}},
			{"id": 2, "title": "Bike", "status": "ACTIVE", "startPrice": 99.5,
			 "startTime": "2020-01-01T10:00:00", "endTime": "2999-01-01T10:00:00"}
		]`)
	})

	var out bytes.Buffer
	require.NoError(t, list(context.Background(), services, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[1], "2 "), lines[1])
	require.Contains(t, lines[1], "99.50")
	require.True(t, strings.HasPrefix(lines[2], "1 "), lines[2])
	require.Contains(t, lines[2], countdown.EndedText)
	require.Contains(t, lines[2], "Ravi")
}

func TestPlaceBid(t *testing.T) {
	auction := `{"id": 42, "title": "Bike", "status": "ACTIVE",
		"startTime": "2020-01-01T10:00:00", "endTime": "2999-01-01T10:00:00"}`

	t.Run("accepted", func(t *testing.T) {
		services := backend(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/auctions/42":
				respond(w, http.StatusOK, auction)
			case "/api/bids/place":
				respond(w, http.StatusOK, `{}`)
			default:
				respond(w, http.StatusNotFound, `{}`)
			}
		})

		var out bytes.Buffer
		require.NoError(t, placeBid(context.Background(), services, "42", " 250 ", &out))
		require.Equal(t, "bid of 250 placed on auction 42\n", out.String())
	})

	t.Run("rejected", func(t *testing.T) {
		services := backend(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/bids/place" {
				respond(w, http.StatusBadRequest, `{"message": "Insufficient wallet balance"}`)
				return
			}
			respond(w, http.StatusOK, auction)
		})

		err := placeBid(context.Background(), services, "42", "250", io.Discard)
		require.EqualError(t, err, "Insufficient wallet balance")
	})

	t.Run("not_started", func(t *testing.T) {
		services := backend(t, func(w http.ResponseWriter, r *http.Request) {
			respond(w, http.StatusOK, `{"id": 42, "startTime": "2999-01-01T10:00:00", "endTime": "2999-01-02T10:00:00"}`)
		})

		err := placeBid(context.Background(), services, "42", "250", io.Discard)
		require.EqualError(t, err, "Auction has not started yet")
	})

	t.Run("unknown_auction", func(t *testing.T) {
		services := backend(t, func(w http.ResponseWriter, r *http.Request) {
			respond(w, http.StatusNotFound, `{"message": "Auction not found"}`)
		})

		err := placeBid(context.Background(), services, "7", "250", io.Discard)
		require.EqualError(t, err, "auction 7 not found")
	})
}

func TestTransportConfig(t *testing.T) {
	cfg := config.Default()
	cfg.API.Token = "api-token"
	cfg.Feed.NATSURL = "nats://broker:4222"
	cfg.Feed.NATSToken = "nats-token"

	nc := natsConfig(cfg)
	require.Equal(t, "nats://broker:4222", nc.URL)
	require.Equal(t, "nats-token", nc.Token)
	require.Equal(t, "auction.bids.", nc.SubjectPrefix)

	wc := webSocketConfig(cfg)
	require.Equal(t, "ws://localhost:9090/ws/websocket", wc.URL)
	require.Equal(t, feed.ProtocolSTOMP, wc.Protocol)
	require.Equal(t, "api-token", wc.AuthToken)
}

func TestRun_Usage(t *testing.T) {
	services := setupServices(config.Default())
	for _, args := range [][]string{nil, {"watch"}, {"bid", "1"}, {"list", "extra"}, {"frobnicate"}} {
		require.ErrorIs(t, run(context.Background(), services, args), errUsage, "%v", args)
	}
}

func TestPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)

	b1 := models.Bid{ID: "1", Amount: decimal.NewFromInt(10)}
	b2 := models.Bid{ID: "2", Amount: decimal.NewFromInt(12)}
	p.bids([]models.Bid{b1})
	p.bids([]models.Bid{b2, b1})
	p.bids([]models.Bid{b2, b1})

	require.Equal(t, 1, strings.Count(out.String(), "bid #1: 10.00"))
	require.Equal(t, 1, strings.Count(out.String(), "bid #2: 12.00"))

	out.Reset()
	p.tick(countdown.Evaluate(time.Unix(3600, 0), time.Unix(0, 0)))
	p.tick(countdown.Evaluate(time.Unix(3600, 0), time.Unix(1, 0)))
	p.tick(countdown.Evaluate(time.Unix(3600, 0), time.Unix(3600, 0)))
	require.Equal(t, 1, strings.Count(out.String(), "time left: 0d 1h 0m 0s"))
	require.Equal(t, 0, strings.Count(out.String(), "0d 0h 59m 59s"))
	require.Equal(t, 1, strings.Count(out.String(), countdown.EndedText))
}
