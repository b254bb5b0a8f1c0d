package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidwatch/go/internal/models"
)

// Protocol selects how bids are framed on the websocket.
type Protocol string

const (
	// ProtocolPlain: the topic is chosen by the auction_id query parameter and
	// every text message is one bid. This is what the relay speaks.
	ProtocolPlain Protocol = "plain"
	// ProtocolSTOMP: STOMP 1.2 over the websocket, subscribing to TopicPrefix+auctionID.
	ProtocolSTOMP Protocol = "stomp"
)

// WebSocketConfig holds configuration for the websocket transport.
type WebSocketConfig struct {
	URL              string
	Protocol         Protocol
	TopicPrefix      string
	AuthToken        string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // zero disables the read deadline
	MaxMessageSize   int64
	HeartBeat        time.Duration // STOMP only; zero disables heart-beats
}

// DefaultWebSocketConfig returns default websocket transport configuration.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		URL:              "ws://localhost:9090/ws/websocket",
		Protocol:         ProtocolSTOMP,
		TopicPrefix:      "/topic/bids/",
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   64 * 1024,
		HeartBeat:        DefaultHeartBeat,
	}
}

// WebSocketTransport dials a websocket per session.
type WebSocketTransport struct {
	config WebSocketConfig
	dialer *websocket.Dialer
}

// NewWebSocketTransport creates a websocket transport.
func NewWebSocketTransport(config WebSocketConfig) *WebSocketTransport {
	if config.Protocol == "" {
		config.Protocol = ProtocolPlain
	}
	if config.TopicPrefix == "" {
		config.TopicPrefix = DefaultWebSocketConfig().TopicPrefix
	}
	return &WebSocketTransport{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
	}
}

// Connect dials the websocket and subscribes to auctionID's topic.
func (t *WebSocketTransport) Connect(ctx context.Context, auctionID models.ID) (Session, error) {
	target, err := t.endpoint(auctionID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if t.config.AuthToken != "" {
		header.Set("Authorization", "Bearer "+t.config.AuthToken)
	}

	conn, resp, err := t.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", target, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	if t.config.MaxMessageSize > 0 {
		conn.SetReadLimit(t.config.MaxMessageSize)
	}

	var session Session
	if t.config.Protocol == ProtocolSTOMP {
		host := "localhost"
		if u, err := url.Parse(target); err == nil {
			host = u.Hostname()
		}
		session, err = dialSTOMP(ctx, conn, stompOptions{
			host:             host,
			destination:      t.config.TopicPrefix + auctionID.String(),
			authToken:        t.config.AuthToken,
			heartBeat:        t.config.HeartBeat,
			handshakeTimeout: t.config.HandshakeTimeout,
			readTimeout:      t.config.ReadTimeout,
		})
		if err != nil {
			return nil, err
		}
	} else {
		plain := &webSocketSession{
			conn:        conn,
			readTimeout: t.config.ReadTimeout,
		}
		// Unblock a pending read when the caller gives up.
		plain.stopWatch = context.AfterFunc(ctx, func() { _ = conn.Close() })
		session = plain
	}

	log.Debug().
		Str("url", target).
		Str("protocol", string(t.config.Protocol)).
		Str("auction_id", auctionID.String()).
		Msg("websocket feed connected")

	return session, nil
}

func (t *WebSocketTransport) endpoint(auctionID models.ID) (string, error) {
	u, err := url.Parse(t.config.URL)
	if err != nil {
		return "", fmt.Errorf("parse websocket url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if t.config.Protocol == ProtocolPlain {
		q := u.Query()
		q.Set("auction_id", auctionID.String())
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// webSocketSession reads one bid per text message.
type webSocketSession struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	stopWatch   func() bool

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

func (s *webSocketSession) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.readTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, s.readError(ctx, err)
	}
	return data, nil
}

func (s *webSocketSession) readError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return fmt.Errorf("server closed websocket: %w", err)
	}
	return err
}

// Close sends a close frame and closes the socket. Safe to call repeatedly.
func (s *webSocketSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopWatch != nil {
			s.stopWatch()
		}
		s.mu.Lock()
		s.closed = true
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.mu.Unlock()
		err = s.conn.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}
