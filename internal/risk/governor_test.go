package risk

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"niftyshort/internal/config"
	"niftyshort/internal/position"
	"niftyshort/pkg/types"
)

type zeroSLFailures struct{}

func (zeroSLFailures) SLFailureStreak() int { return 0 }

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		RValue:            6500,
		MaxPositions:      5,
		MaxCEPositions:    3,
		MaxPEPositions:    3,
		DailyTargetR:      5.0,
		DailyStopR:        -5.0,
		MaxSLFailureCount: 3,
	}
}

func TestGovernorTripsOnDailyTarget(t *testing.T) {
	t.Parallel()
	tracker := position.New(6500, slog.Default())
	g, err := New(testRiskConfig(), tracker, zeroSLFailures{}, time.UTC, "15:15", slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	exit := decimal.NewFromInt(50)
	tracker.OnPositionOpened(&types.Position{Symbol: "NIFTY07AUG2524500CE", Qty: 650, EntryPrice: decimal.NewFromInt(150)})
	tracker.OnPositionClosed(&types.Position{Symbol: "NIFTY07AUG2524500CE", Qty: 650, EntryPrice: decimal.NewFromInt(150), ExitPrice: &exit})

	g.Check(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), nil)
	if !g.IsHalted() {
		t.Fatalf("expected halt after hitting daily target R")
	}
}

func TestGovernorTripsAtForceExitTime(t *testing.T) {
	t.Parallel()
	tracker := position.New(6500, slog.Default())
	g, err := New(testRiskConfig(), tracker, zeroSLFailures{}, time.UTC, "15:15", slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	g.Check(time.Date(2026, 8, 1, 15, 16, 0, 0, time.UTC), nil)
	if !g.IsHalted() {
		t.Fatalf("expected halt at/after force exit time")
	}
}

func TestGovernorSummaryReportsHaltReason(t *testing.T) {
	t.Parallel()
	tracker := position.New(6500, slog.Default())
	g, err := New(testRiskConfig(), tracker, zeroSLFailures{}, time.UTC, "15:15", slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if halted, reason := g.Summary(); halted || reason != "" {
		t.Fatalf("expected no halt before Check, got halted=%v reason=%q", halted, reason)
	}

	g.Check(time.Date(2026, 8, 1, 15, 16, 0, 0, time.UTC), nil)

	halted, reason := g.Summary()
	if !halted || reason != "force_exit_time" {
		t.Fatalf("Summary() = (%v, %q), want (true, \"force_exit_time\")", halted, reason)
	}
}

func TestGovernorCanOpenRespectsMaxCEPositions(t *testing.T) {
	t.Parallel()
	tracker := position.New(6500, slog.Default())
	cfg := testRiskConfig()
	cfg.MaxCEPositions = 1
	g, err := New(cfg, tracker, zeroSLFailures{}, time.UTC, "15:15", slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tracker.OnPositionOpened(&types.Position{Symbol: "NIFTY07AUG2524500CE", Side: types.CE, Qty: 650, EntryPrice: decimal.NewFromInt(150)})
	if g.CanOpen(types.CE) {
		t.Fatalf("expected CanOpen(CE) false once MaxCEPositions reached")
	}
	if !g.CanOpen(types.PE) {
		t.Fatalf("expected CanOpen(PE) true, PE cap not reached")
	}
}
