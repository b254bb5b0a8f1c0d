package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
)

// DefaultHeartBeat is the STOMP heart-beat offered to the broker in both directions.
const DefaultHeartBeat = 10 * time.Second

// wsStream presents a websocket as the byte stream the STOMP client expects.
// Every Write becomes one text message; Read drains messages back to back.
type wsStream struct {
	conn        *websocket.Conn
	readTimeout time.Duration

	reader io.Reader
	wmu    sync.Mutex
}

func newWSStream(conn *websocket.Conn, readTimeout time.Duration) *wsStream {
	return &wsStream{conn: conn, readTimeout: readTimeout}
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			if s.readTimeout > 0 {
				_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			}
			_, r, err := s.conn.NextReader()
			if err != nil {
				return 0, err
			}
			s.reader = r
		}

		n, err := s.reader.Read(p)
		if errors.Is(err, io.EOF) {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	err := s.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// stompSession is one STOMP connection with a single auto-ack subscription.
type stompSession struct {
	ws        *websocket.Conn
	conn      *stomp.Conn
	sub       *stomp.Subscription
	stopWatch func() bool

	closeOnce sync.Once
	closed    chan struct{}
}

type stompOptions struct {
	host             string
	destination      string
	authToken        string
	heartBeat        time.Duration
	handshakeTimeout time.Duration
	readTimeout      time.Duration
}

// dialSTOMP runs the STOMP handshake over an open websocket and subscribes to
// opts.destination. The websocket is closed on failure.
func dialSTOMP(ctx context.Context, ws *websocket.Conn, opts stompOptions) (*stompSession, error) {
	session := &stompSession{
		ws:     ws,
		closed: make(chan struct{}),
	}
	// Unblock the handshake and any pending read when the caller gives up.
	session.stopWatch = context.AfterFunc(ctx, func() { _ = ws.Close() })

	connOpts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Host(opts.host),
		stomp.ConnOpt.HeartBeat(opts.heartBeat, opts.heartBeat),
	}
	if opts.authToken != "" {
		connOpts = append(connOpts, stomp.ConnOpt.Header("Authorization", "Bearer "+opts.authToken))
	}

	if opts.handshakeTimeout > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(opts.handshakeTimeout))
	}
	conn, err := stomp.Connect(newWSStream(ws, opts.readTimeout), connOpts...)
	if err != nil {
		session.stopWatch()
		_ = ws.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("stomp connect: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})
	session.conn = conn

	sub, err := conn.Subscribe(opts.destination, stomp.AckAuto)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("stomp subscribe %s: %w", opts.destination, err)
	}
	session.sub = sub
	return session, nil
}

func (s *stompSession) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrSessionClosed
	case msg, ok := <-s.sub.C:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !ok {
			return nil, s.endedError()
		}
		if msg.Err != nil {
			return nil, fmt.Errorf("stomp error frame: %w", msg.Err)
		}
		return msg.Body, nil
	}
}

func (s *stompSession) endedError() error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
		return errors.New("stomp connection lost")
	}
}

// Close drops the connection without waiting for a DISCONNECT receipt. Safe
// to call repeatedly.
func (s *stompSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.stopWatch != nil {
			s.stopWatch()
		}
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		if s.conn != nil {
			_ = s.conn.MustDisconnect()
		}
		_ = s.ws.Close()
	})
	return nil
}
