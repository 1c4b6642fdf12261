// Package position implements PositionTracker: the session R ledger over
// open and closed positions, generalized from the teacher's
// strategy.Inventory (which tracked YES/NO share exposure) to short-only
// option positions denominated in R multiples of a fixed unit risk.
package position

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"niftyshort/pkg/types"
)

// Tracker is the PositionTracker component.
type Tracker struct {
	rValue    decimal.Decimal
	open      map[string]*types.Position // keyed by symbol
	realizedR decimal.Decimal
	logger    *slog.Logger
}

// New constructs a Tracker. rValue is the R_VALUE unit risk denominator.
func New(rValue float64, logger *slog.Logger) *Tracker {
	return &Tracker{
		rValue: decimal.NewFromFloat(rValue),
		open:   make(map[string]*types.Position),
		logger: logger.With("component", "position"),
	}
}

// OnPositionOpened records a newly filled short position.
func (t *Tracker) OnPositionOpened(pos *types.Position) {
	t.open[pos.Symbol] = pos
}

// OnPositionClosed computes the position's realized R and folds it into the
// session total. Short position: profit when exit < entry.
func (t *Tracker) OnPositionClosed(pos *types.Position) decimal.Decimal {
	delete(t.open, pos.Symbol)

	if pos.ExitPrice == nil || t.rValue.IsZero() {
		return decimal.Zero
	}
	r := pos.EntryPrice.Sub(*pos.ExitPrice).Mul(decimal.NewFromInt(int64(pos.Qty))).Div(t.rValue)
	pos.RMultiple = &r

	pnl := pos.EntryPrice.Sub(*pos.ExitPrice).Mul(decimal.NewFromInt(int64(pos.Qty)))
	pos.RealizedPnL = &pnl

	t.realizedR = t.realizedR.Add(r)
	t.logger.Info("[EXIT] position R realized", "symbol", pos.Symbol, "r", r.String(), "session_r", t.realizedR.String())
	return r
}

// UnrealizedR sums R across open positions using the provided mark price
// per symbol (the Coordinator passes each symbol's last traded price, not a
// mid-of-bar price); symbols without a mark are skipped.
func (t *Tracker) UnrealizedR(marks map[string]decimal.Decimal) decimal.Decimal {
	if t.rValue.IsZero() {
		return decimal.Zero
	}
	sum := decimal.Zero
	for symbol, pos := range t.open {
		mark, ok := marks[symbol]
		if !ok {
			continue
		}
		r := pos.EntryPrice.Sub(mark).Mul(decimal.NewFromInt(int64(pos.Qty))).Div(t.rValue)
		sum = sum.Add(r)
	}
	return sum
}

// SessionR is realized + unrealized cumulative R, RiskGovernor's trigger input.
func (t *Tracker) SessionR(marks map[string]decimal.Decimal) decimal.Decimal {
	return t.realizedR.Add(t.UnrealizedR(marks))
}

// RealizedR returns the realized-only component.
func (t *Tracker) RealizedR() decimal.Decimal { return t.realizedR }

// RestoreRealizedR seeds the realized-R accumulator from a warm-restart
// snapshot. Open positions are not restored here; OrderManager's position
// reconciliation re-adopts them from the broker's own position book.
func (t *Tracker) RestoreRealizedR(r decimal.Decimal) {
	t.realizedR = r
}

// Count returns total open positions and the per-side breakdown, for
// RiskGovernor's MAX_POSITIONS/MAX_CE_POSITIONS/MAX_PE_POSITIONS checks.
func (t *Tracker) Count() (total, ce, pe int) {
	for _, pos := range t.open {
		total++
		if pos.Side == types.CE {
			ce++
		} else {
			pe++
		}
	}
	return total, ce, pe
}

// Open returns a defensive copy of the open-position snapshot, for the
// dashboard and journal.
func (t *Tracker) Open() []types.Position {
	out := make([]types.Position, 0, len(t.open))
	for _, pos := range t.open {
		out = append(out, *pos)
	}
	return out
}

// HasPosition reports whether symbol currently has an open position.
func (t *Tracker) HasPosition(symbol string) bool {
	_, ok := t.open[symbol]
	return ok
}
