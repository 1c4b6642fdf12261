package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"niftyshort/internal/config"
	"niftyshort/pkg/types"
)

type fakeFeed struct {
	ticks  chan types.Tick
	active string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ticks: make(chan types.Tick, 16), active: "primary"}
}

func (f *fakeFeed) Ticks() <-chan types.Tick { return f.ticks }
func (f *fakeFeed) Run(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }
func (f *fakeFeed) Close() error { return nil }
func (f *fakeFeed) ActiveSource() string { return f.active }

type fakeBrokerClient struct{}

func (fakeBrokerClient) Place(ctx context.Context, req types.PlaceRequest) (string, error) {
	return "ORD-1", nil
}
func (fakeBrokerClient) Modify(ctx context.Context, orderID string, price, trigger *decimal.Decimal) error {
	return nil
}
func (fakeBrokerClient) Cancel(ctx context.Context, orderID string) error { return nil }
func (fakeBrokerClient) Orderbook(ctx context.Context) ([]types.BrokerOrder, error) {
	return nil, nil
}
func (fakeBrokerClient) Positionbook(ctx context.Context) ([]types.BrokerPosition, error) {
	return nil, nil
}
func (fakeBrokerClient) Ticks() <-chan types.Tick { return nil }
func (fakeBrokerClient) Run(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }
func (fakeBrokerClient) Close() error { return nil }

func testConfig(t *testing.T) config.Config {
	return config.Config{
		Mode:    "paper",
		Session: config.SessionConfig{Timezone: "UTC", CutoffTime: "23:59"},
		Risk: config.RiskConfig{
			RValue:             6500,
			LotSize:            75,
			MaxLotsPerPosition: 2,
			MaxPositions:       5,
			MaxCEPositions:     3,
			MaxPEPositions:     3,
			DailyTargetR:       5,
			DailyStopR:         -5,
			MaxSLFailureCount:  3,
		},
		Filter: config.FilterConfig{
			MinEntryPrice:   50,
			MaxEntryPrice:   250,
			MinSLPercent:    0.05,
			MaxSLPercent:    0.25,
			MinBarTickCount: 1,
		},
		Order: config.OrderConfig{
			TickSize:          0.05,
			ModThreshold:      1,
			ExitTriggerBuffer: 1,
			ExitLimitBuffer:   3,
			PlaceMaxRetries:   1,
			PlaceRetrySpacing: 10 * time.Millisecond,
		},
		Store: config.StoreConfig{DataDir: t.TempDir()},
		Timers: config.TimersConfig{
			OrderbookPollInterval:     50 * time.Millisecond,
			PositionReconcileInterval: 50 * time.Millisecond,
			RiskCheckInterval:         50 * time.Millisecond,
			HeartbeatInterval:         50 * time.Millisecond,
			DataWatchdogInterval:      50 * time.Millisecond,
			ShutdownTimeout:           time.Second,
		},
	}
}

func TestNewRejectsUnparseableSymbol(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	_, err := New(cfg, []string{"GARBAGE"}, fakeBrokerClient{}, newFakeFeed(), slog.Default())
	if err == nil {
		t.Fatalf("expected error for unparseable window symbol")
	}
}

func TestStartStopDeliversTickToFeedStatus(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	feed := newFakeFeed()
	coord, err := New(cfg, []string{"NIFTY07AUG2524500CE"}, fakeBrokerClient{}, feed, slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	coord.Start()
	defer coord.Stop()

	if status := coord.GetFeedStatus(); status.ActiveSource != "primary" {
		t.Fatalf("ActiveSource = %q, want primary", status.ActiveSource)
	}

	feed.ticks <- types.Tick{Symbol: "NIFTY07AUG2524500CE", LastPrice: decimal.NewFromInt(150), TsMs: time.Now().UnixMilli()}

	deadline := time.After(2 * time.Second)
	for {
		if len(feed.ticks) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for coordinator to process tick")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRestoresRealizedRFromSnapshot(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	feed := newFakeFeed()

	coord1, err := New(cfg, []string{"NIFTY07AUG2524500CE"}, fakeBrokerClient{}, feed, slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	coord1.tracker.RestoreRealizedR(decimal.NewFromFloat(3.25))
	coord1.persistSnapshot()

	coord2, err := New(cfg, []string{"NIFTY07AUG2524500CE"}, fakeBrokerClient{}, newFakeFeed(), slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := coord2.GetSessionR(); got != 3.25 {
		t.Fatalf("restored session R = %v, want 3.25", got)
	}
}
