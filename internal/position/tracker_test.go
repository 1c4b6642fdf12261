package position

import (
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"niftyshort/pkg/types"
)

func TestOnPositionClosedComputesShortRMultiple(t *testing.T) {
	t.Parallel()
	tr := New(6500, slog.Default())

	pos := &types.Position{
		Symbol:     "NIFTY07AUG2524500CE",
		Side:       types.CE,
		Qty:        650,
		EntryPrice: decimal.NewFromInt(150),
	}
	tr.OnPositionOpened(pos)

	exit := decimal.NewFromInt(140)
	pos.ExitPrice = &exit
	r := tr.OnPositionClosed(pos)

	want := decimal.NewFromInt(10).Mul(decimal.NewFromInt(650)).Div(decimal.NewFromInt(6500))
	if !r.Equal(want) {
		t.Fatalf("r = %s, want %s", r.String(), want.String())
	}
	if !tr.RealizedR().Equal(want) {
		t.Fatalf("realized R = %s, want %s", tr.RealizedR().String(), want.String())
	}
	if tr.HasPosition(pos.Symbol) {
		t.Fatalf("expected position removed from open set after close")
	}
}

func TestOnPositionClosedLossWhenExitAboveEntry(t *testing.T) {
	t.Parallel()
	tr := New(6500, slog.Default())

	pos := &types.Position{
		Symbol:     "NIFTY07AUG2524500PE",
		Side:       types.PE,
		Qty:        650,
		EntryPrice: decimal.NewFromInt(150),
	}
	tr.OnPositionOpened(pos)

	exit := decimal.NewFromInt(160)
	pos.ExitPrice = &exit
	r := tr.OnPositionClosed(pos)

	if !r.IsNegative() {
		t.Fatalf("expected negative R on a losing short, got %s", r.String())
	}
}

func TestUnrealizedRUsesMarkPrice(t *testing.T) {
	t.Parallel()
	tr := New(6500, slog.Default())

	tr.OnPositionOpened(&types.Position{
		Symbol:     "NIFTY07AUG2524500CE",
		Side:       types.CE,
		Qty:        650,
		EntryPrice: decimal.NewFromInt(150),
	})

	marks := map[string]decimal.Decimal{"NIFTY07AUG2524500CE": decimal.NewFromInt(140)}
	r := tr.UnrealizedR(marks)

	want := decimal.NewFromInt(10).Mul(decimal.NewFromInt(650)).Div(decimal.NewFromInt(6500))
	if !r.Equal(want) {
		t.Fatalf("unrealized R = %s, want %s", r.String(), want.String())
	}
}

func TestUnrealizedRSkipsSymbolsWithoutMark(t *testing.T) {
	t.Parallel()
	tr := New(6500, slog.Default())
	tr.OnPositionOpened(&types.Position{Symbol: "NIFTY07AUG2524500CE", EntryPrice: decimal.NewFromInt(150), Qty: 650})

	r := tr.UnrealizedR(map[string]decimal.Decimal{})
	if !r.IsZero() {
		t.Fatalf("expected zero unrealized R with no marks, got %s", r.String())
	}
}

func TestCountBreaksDownBySide(t *testing.T) {
	t.Parallel()
	tr := New(6500, slog.Default())
	tr.OnPositionOpened(&types.Position{Symbol: "A", Side: types.CE, Qty: 1})
	tr.OnPositionOpened(&types.Position{Symbol: "B", Side: types.CE, Qty: 1})
	tr.OnPositionOpened(&types.Position{Symbol: "C", Side: types.PE, Qty: 1})

	total, ce, pe := tr.Count()
	if total != 3 || ce != 2 || pe != 1 {
		t.Fatalf("got total=%d ce=%d pe=%d, want 3/2/1", total, ce, pe)
	}
}

func TestRestoreRealizedRSeedsLedgerWithoutOpenPositions(t *testing.T) {
	t.Parallel()
	tr := New(6500, slog.Default())
	tr.RestoreRealizedR(decimal.NewFromFloat(2.5))

	if !tr.RealizedR().Equal(decimal.NewFromFloat(2.5)) {
		t.Fatalf("realized R = %s, want 2.5", tr.RealizedR().String())
	}
	if len(tr.Open()) != 0 {
		t.Fatalf("expected no open positions restored, got %d", len(tr.Open()))
	}
}
