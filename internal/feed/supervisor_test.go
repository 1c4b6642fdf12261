package feed

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"niftyshort/pkg/types"
)

type fakeSource struct {
	ticks  chan types.Tick
	closed chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{ticks: make(chan types.Tick, 16), closed: make(chan struct{})}
}

func (f *fakeSource) Ticks() <-chan types.Tick { return f.ticks }
func (f *fakeSource) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (f *fakeSource) Close() error {
	close(f.closed)
	return nil
}

func TestSupervisorForwardsOnlyActiveSource(t *testing.T) {
	t.Parallel()
	primary := newFakeSource()
	backup := newFakeSource()
	sup := New(primary, backup, 15*time.Second, 10*time.Second, nil, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	primary.ticks <- types.Tick{Symbol: "NIFTY07AUG2524500CE", LastPrice: decimal.NewFromInt(150)}
	backup.ticks <- types.Tick{Symbol: "NIFTY07AUG2524500PE", LastPrice: decimal.NewFromInt(99)}

	select {
	case got := <-sup.Ticks():
		if got.Symbol != "NIFTY07AUG2524500CE" {
			t.Fatalf("expected primary tick forwarded, got %s", got.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for forwarded tick")
	}

	select {
	case got := <-sup.Ticks():
		t.Fatalf("did not expect backup tick forwarded while primary active, got %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSupervisorFailsOverWhenPrimaryStale(t *testing.T) {
	t.Parallel()
	primary := newFakeSource()
	backup := newFakeSource()
	sup := New(primary, backup, 50*time.Millisecond, 10*time.Second, nil, slog.Default())
	sup.lastPrimaryTickTs = time.Now().Add(-time.Second)

	sup.evaluateTransitions()
	if sup.ActiveSource() != string(sourceBackup) {
		t.Fatalf("expected failover to backup, active=%s", sup.ActiveSource())
	}
}

func TestSupervisorSwitchesBackAfterStablePeriod(t *testing.T) {
	t.Parallel()
	primary := newFakeSource()
	backup := newFakeSource()
	sup := New(primary, backup, 50*time.Millisecond, 20*time.Millisecond, nil, slog.Default())
	sup.active = sourceBackup
	sup.primaryLiveSince = time.Now().Add(-time.Second)
	sup.lastPrimaryTickTs = time.Now()

	sup.evaluateTransitions()
	if sup.ActiveSource() != string(sourcePrimary) {
		t.Fatalf("expected switchback to primary, active=%s", sup.ActiveSource())
	}
}
