package filter

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"niftyshort/internal/bar"
	"niftyshort/internal/config"
	"niftyshort/pkg/types"
)

func testConfigs() (config.FilterConfig, config.RiskConfig) {
	return config.FilterConfig{
			MinEntryPrice:   100,
			MaxEntryPrice:   300,
			MinVWAPPremium:  0.04,
			MinSLPercent:    0.02,
			MaxSLPercent:    0.10,
			TargetSLPoints:  10,
			MinBarTickCount: 5,
		}, config.RiskConfig{
			RValue:             6500,
			LotSize:            65,
			MaxLotsPerPosition: 10,
		}
}

func dd(v string) decimal.Decimal {
	dec, _ := decimal.NewFromString(v)
	return dec
}

func TestStage1RejectsOutOfRangePrice(t *testing.T) {
	t.Parallel()
	fc, rc := testConfigs()
	agg := bar.New(time.UTC, 5, slog.Default())
	e := New(fc, rc, agg, slog.Default())

	e.OnSwingEvent(types.CE, types.SwingEvent{
		Kind:      types.SwingEventNew,
		Symbol:    "NIFTY07AUG2524500CE",
		SwingKind: types.SwingLow,
		Swing:     types.Swing{Symbol: "NIFTY07AUG2524500CE", Kind: types.SwingLow, Price: dd("50"), VWAPAtFormation: dd("48")},
	})

	if _, ok := e.static["NIFTY07AUG2524500CE"]; ok {
		t.Fatalf("expected swing price 50 below MIN_ENTRY_PRICE to be rejected")
	}
}

func TestStage1RejectsLowPremium(t *testing.T) {
	t.Parallel()
	fc, rc := testConfigs()
	agg := bar.New(time.UTC, 5, slog.Default())
	e := New(fc, rc, agg, slog.Default())

	e.OnSwingEvent(types.CE, types.SwingEvent{
		Kind:      types.SwingEventNew,
		Symbol:    "NIFTY07AUG2524500CE",
		SwingKind: types.SwingLow,
		Swing:     types.Swing{Symbol: "NIFTY07AUG2524500CE", Kind: types.SwingLow, Price: dd("150"), VWAPAtFormation: dd("149")},
	})

	if _, ok := e.static["NIFTY07AUG2524500CE"]; ok {
		t.Fatalf("expected insufficient vwap premium to be rejected")
	}
}

func TestStage2SizesPositionAndQualifies(t *testing.T) {
	t.Parallel()
	fc, rc := testConfigs()
	agg := bar.New(time.UTC, 5, slog.Default())
	e := New(fc, rc, agg, slog.Default())

	symbol := "NIFTY07AUG2524500CE"
	e.OnSwingEvent(types.CE, types.SwingEvent{
		Kind:      types.SwingEventNew,
		Symbol:    symbol,
		SwingKind: types.SwingLow,
		Swing:     types.Swing{Symbol: symbol, Kind: types.SwingLow, Price: dd("150"), VWAPAtFormation: dd("140"), FormedAtBarIndex: 0},
	})

	// highest_high_since_swing = 159 (via live high) -> sl_trigger=160,
	// sl_points=10, sl_percent=10/150=0.0667, within [0.02,0.10].
	_, _ = agg.OnTick(types.Tick{Symbol: symbol, TsMs: 1_700_000_000_000, LastPrice: dd("150"), VolumeDelta: 0})
	_, _ = agg.OnTick(types.Tick{Symbol: symbol, TsMs: 1_700_000_001_000, LastPrice: dd("159"), VolumeDelta: 1})

	best := e.Evaluate()
	if best.CE == nil {
		t.Fatalf("expected a qualifying CE candidate")
	}
	if best.CE.Lots < 1 {
		t.Fatalf("expected at least 1 lot, got %d", best.CE.Lots)
	}
	wantQty := best.CE.Lots * rc.LotSize
	if best.CE.Quantity != wantQty {
		t.Fatalf("expected quantity %d, got %d", wantQty, best.CE.Quantity)
	}
}

func TestStage3PrefersRoundStrikeOnTie(t *testing.T) {
	t.Parallel()
	fc, rc := testConfigs()
	agg := bar.New(time.UTC, 5, slog.Default())
	e := New(fc, rc, agg, slog.Default())

	round := types.DynamicCandidate{
		Static:   types.StaticCandidate{Symbol: "NIFTY07AUG2524500CE", EntryPrice: dd("150")},
		SLPoints: dd("10"),
	}
	nonRound := types.DynamicCandidate{
		Static:   types.StaticCandidate{Symbol: "NIFTY07AUG2524550CE", EntryPrice: dd("150")},
		SLPoints: dd("10"),
	}

	winner, ok := e.stage3([]types.DynamicCandidate{nonRound, round})
	if !ok {
		t.Fatalf("expected a winner")
	}
	if winner.Static.Symbol != round.Static.Symbol {
		t.Fatalf("expected round strike %s to win tie, got %s", round.Static.Symbol, winner.Static.Symbol)
	}
}
