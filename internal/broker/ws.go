// ws.go implements the broker's WebSocket tick stream.
//
// It auto-reconnects with exponential backoff (1s -> 30s max) and a read
// deadline (90s) so a silent server failure is detected within roughly two
// missed pings.
package broker

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

// tickStream manages a single WebSocket connection emitting raw ticks.
type tickStream struct {
	url    string
	connMu sync.Mutex
	conn   *websocket.Conn

	ticks  chan types.Tick
	logger *slog.Logger
}

func newTickStream(url string, logger *slog.Logger) *tickStream {
	return &tickStream{
		url:    url,
		ticks:  make(chan types.Tick, wsTickBufferSize),
		logger: logger.With("component", "broker_ws"),
	}
}

// Run connects and maintains the WebSocket connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (t *tickStream) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := t.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		t.logger.Warn("tick stream disconnected, reconnecting", "error", err, "backoff", backoff)

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

func (t *tickStream) Close() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

func (t *tickStream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	defer func() {
		t.connMu.Lock()
		conn.Close()
		t.conn = nil
		t.connMu.Unlock()
	}()

	t.logger.Info("tick stream connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go t.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		t.dispatch(msg)
	}
}

func (t *tickStream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.connMu.Lock()
			conn := t.conn
			t.connMu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.logger.Warn("ping failed", "error", err)
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

func (t *tickStream) dispatch(data []byte) {
	var wt wireTick
	if err := json.Unmarshal(data, &wt); err != nil {
		t.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}
	tick := types.Tick{
		Symbol:      wt.Symbol,
		TsMs:        wt.TsMs,
		LastPrice:   decimal.NewFromFloat(wt.LastPrice),
		VolumeDelta: wt.VolumeDelta,
		Source:      "broker",
	}
	select {
	case t.ticks <- tick:
	default:
		t.logger.Warn("tick channel full, dropping tick", "symbol", tick.Symbol)
	}
}
