package order

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"niftyshort/internal/config"
	"niftyshort/internal/filter"
	"niftyshort/pkg/types"
)

type fakeClient struct {
	mu      sync.Mutex
	orders  map[string]types.BrokerOrder
	nextID  int
	placeErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{orders: make(map[string]types.BrokerOrder)}
}

func (f *fakeClient) Place(ctx context.Context, req types.PlaceRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.nextID++
	id := "ORD-" + decimal.NewFromInt(int64(f.nextID)).String()
	f.orders[id] = types.BrokerOrder{OrderID: id, Symbol: req.Symbol, Status: types.BrokerOrderOpen}
	return id, nil
}

func (f *fakeClient) Modify(ctx context.Context, orderID string, price, trigger *decimal.Decimal) error {
	return nil
}

func (f *fakeClient) Cancel(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[orderID]
	o.Status = types.BrokerOrderCancelled
	f.orders[orderID] = o
	return nil
}

func (f *fakeClient) Orderbook(ctx context.Context) ([]types.BrokerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.BrokerOrder, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeClient) Positionbook(ctx context.Context) ([]types.BrokerPosition, error) {
	return nil, nil
}

func (f *fakeClient) Ticks() <-chan types.Tick { return nil }
func (f *fakeClient) Run(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }
func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) markComplete(orderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[orderID]
	o.Status = types.BrokerOrderComplete
	o.FilledQty = 650
	avg := decimal.NewFromInt(150)
	o.AvgPrice = &avg
	f.orders[orderID] = o
}

type openGate struct{}

func (openGate) IsHalted() bool                 { return false }
func (openGate) CanOpen(side types.Side) bool   { return true }

func testOrderConfig() config.OrderConfig {
	return config.OrderConfig{
		TickSize:          0.05,
		ModThreshold:      1.00,
		ExitTriggerBuffer: 1,
		ExitLimitBuffer:   3,
		PlaceMaxRetries:   3,
		PlaceRetrySpacing: 10 * time.Millisecond,
	}
}

func TestManagerPlacesEntryOnNewCandidate(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	mgr := New(client, testOrderConfig(), openGate{}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	candidate := types.DynamicCandidate{
		Static: types.StaticCandidate{
			Symbol:     "NIFTY07AUG2524500CE",
			Side:       types.CE,
			EntryPrice: decimal.NewFromInt(150),
		},
		Quantity:              650,
		HighestHighSinceSwing: decimal.NewFromInt(160),
	}
	mgr.Sync(ctx, filter.CurrentBest{CE: &candidate})

	waitForEvent(t, mgr, EventOrderPlaced)
}

func TestManagerHandlesFillAndArmsStop(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	mgr := New(client, testOrderConfig(), openGate{}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	candidate := types.DynamicCandidate{
		Static: types.StaticCandidate{
			Symbol:     "NIFTY07AUG2524500CE",
			Side:       types.CE,
			EntryPrice: decimal.NewFromInt(150),
		},
		Quantity:              650,
		HighestHighSinceSwing: decimal.NewFromInt(160),
	}
	mgr.Sync(ctx, filter.CurrentBest{CE: &candidate})
	placed := waitForEvent(t, mgr, EventOrderPlaced)

	client.markComplete(placed.OrderID)
	mgr.ReconcileOrders(ctx)

	waitForEvent(t, mgr, EventOrderFilled)
	opened := waitForEvent(t, mgr, EventPositionOpened)
	if opened.Position == nil || opened.Position.Qty != 650 {
		t.Fatalf("expected opened position with qty 650, got %+v", opened.Position)
	}

	// The protective stop is the second order placed with the broker.
	deadline := time.After(2 * time.Second)
	for {
		orders, _ := client.Orderbook(ctx)
		if len(orders) == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for the protective stop order, orders=%+v", orders)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func waitForEvent(t *testing.T, mgr *Manager, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-mgr.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %s", kind)
		}
	}
}
