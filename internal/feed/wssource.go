package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"niftyshort/pkg/types"
)

const (
	wsPingInterval     = 50 * time.Second
	wsReadTimeout      = 90 * time.Second
	wsMaxReconnectWait = 30 * time.Second
	wsWriteTimeout     = 10 * time.Second
	wsTickBufferSize   = 1024
)

// WSSource is a standalone tick-only WebSocket source, independent of the
// broker order gateway, used for both the primary and backup legs of
// Supervisor. Shares broker.tickStream's reconnect/backoff shape.
type WSSource struct {
	url    string
	connMu sync.Mutex
	conn   *websocket.Conn

	ticks  chan types.Tick
	logger *slog.Logger
}

// NewWSSource constructs a tick source reading from url.
func NewWSSource(url string, logger *slog.Logger) *WSSource {
	return &WSSource{
		url:    url,
		ticks:  make(chan types.Tick, wsTickBufferSize),
		logger: logger.With("component", "feed_ws"),
	}
}

func (s *WSSource) Ticks() <-chan types.Tick { return s.ticks }

// Run connects and maintains the connection with auto-reconnect. Blocks
// until ctx is cancelled.
func (s *WSSource) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("feed source disconnected, reconnecting", "url", s.url, "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > wsMaxReconnectWait {
			backoff = wsMaxReconnectWait
		}
	}
}

func (s *WSSource) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *WSSource) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.conn = nil
		s.connMu.Unlock()
	}()

	s.logger.Info("feed source connected", "url", s.url)

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go s.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		s.dispatch(msg)
	}
}

func (s *WSSource) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			s.connMu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

type wireTick struct {
	Symbol      string  `json:"symbol"`
	TsMs        int64   `json:"ts_ms"`
	LastPrice   float64 `json:"last_price"`
	VolumeDelta int64   `json:"volume_delta"`
}

func (s *WSSource) dispatch(data []byte) {
	var wt wireTick
	if err := json.Unmarshal(data, &wt); err != nil {
		s.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}
	tick := types.Tick{
		Symbol:      wt.Symbol,
		TsMs:        wt.TsMs,
		LastPrice:   decimal.NewFromFloat(wt.LastPrice),
		VolumeDelta: wt.VolumeDelta,
	}
	select {
	case s.ticks <- tick:
	default:
		s.logger.Warn("tick channel full, dropping tick", "symbol", tick.Symbol)
	}
}
