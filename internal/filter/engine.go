// Package filter implements the three-stage continuous filter that turns
// confirmed swing lows into sized, ranked short-entry candidates.
package filter

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"niftyshort/internal/bar"
	"niftyshort/internal/config"
	"niftyshort/pkg/types"
)

// Engine is the FilterEngine component. It has exactly one caller (the
// Coordinator's event loop) and keeps no internal locking.
type Engine struct {
	filterCfg config.FilterConfig
	riskCfg   config.RiskConfig
	bars      *bar.Aggregator
	static    map[string]types.StaticCandidate
	logger    *slog.Logger
}

// New constructs a FilterEngine reading bar history/live highs from bars.
func New(filterCfg config.FilterConfig, riskCfg config.RiskConfig, bars *bar.Aggregator, logger *slog.Logger) *Engine {
	return &Engine{
		filterCfg: filterCfg,
		riskCfg:   riskCfg,
		bars:      bars,
		static:    make(map[string]types.StaticCandidate),
		logger:    logger.With("component", "filter"),
	}
}

// Stage1Decision reports a Stage-1 static-gate outcome for the Coordinator
// to journal and broadcast to the dashboard. Nil when the swing event
// didn't trigger a Stage-1 evaluation (a swing high, an update, or a
// swing-low break).
type Stage1Decision struct {
	Symbol    string
	Side      types.Side
	Qualified bool
	Reason    string
}

// OnSwingEvent folds a SwingDetector event into the static-candidate pool.
func (e *Engine) OnSwingEvent(side types.Side, ev types.SwingEvent) *Stage1Decision {
	switch ev.Kind {
	case types.SwingEventNew:
		if ev.SwingKind != types.SwingLow {
			return nil
		}
		return e.runStage1(side, ev.Swing)
	case types.SwingEventBroken:
		if ev.SwingKind != types.SwingLow {
			return nil
		}
		if _, ok := e.static[ev.Symbol]; ok {
			delete(e.static, ev.Symbol)
			e.logger.Info("candidate invalidated on swing break", "symbol", ev.Symbol)
		}
	case types.SwingEventUpdated:
		// Stage-1 is not re-run on updates; original vwap_at_formation sticks.
	}
	return nil
}

func (e *Engine) runStage1(side types.Side, swing types.Swing) *Stage1Decision {
	minPrice := decimal.NewFromFloat(e.filterCfg.MinEntryPrice)
	maxPrice := decimal.NewFromFloat(e.filterCfg.MaxEntryPrice)
	minPremium := decimal.NewFromFloat(e.filterCfg.MinVWAPPremium)

	priceOK := swing.Price.GreaterThanOrEqual(minPrice) && swing.Price.LessThanOrEqual(maxPrice)

	var premiumOK bool
	if !swing.VWAPAtFormation.IsZero() {
		premium := swing.Price.Sub(swing.VWAPAtFormation).Div(swing.VWAPAtFormation)
		premiumOK = premium.GreaterThanOrEqual(minPremium)
	}

	if priceOK && premiumOK {
		e.static[swing.Symbol] = types.StaticCandidate{
			Symbol:          swing.Symbol,
			Side:            side,
			SwingRef:        swing,
			EntryPrice:      swing.Price,
			VWAPAtFormation: swing.VWAPAtFormation,
		}
		e.logger.Info("static candidate accepted", "symbol", swing.Symbol, "entry_price", swing.Price.String())
		return &Stage1Decision{Symbol: swing.Symbol, Side: side, Qualified: true}
	}

	if _, ok := e.static[swing.Symbol]; ok {
		delete(e.static, swing.Symbol)
		e.logger.Info("static candidate invalidated by new swing low failing stage-1", "symbol", swing.Symbol)
	}

	reason := "entry_price_out_of_band"
	if priceOK {
		reason = "vwap_premium_below_minimum"
	}
	return &Stage1Decision{Symbol: swing.Symbol, Side: side, Qualified: false, Reason: reason}
}

// RemoveSymbol drops any static candidate for symbol, used at session cutoff.
func (e *Engine) RemoveSymbol(symbol string) {
	delete(e.static, symbol)
}

// CurrentBest is FilterEngine's per-tick output.
type CurrentBest struct {
	CE *types.DynamicCandidate
	PE *types.DynamicCandidate
}

// Evaluate re-derives Stage-2 for every static candidate and applies the
// Stage-3 tie-break per side. Called once per tick.
func (e *Engine) Evaluate() CurrentBest {
	var ce, pe []types.DynamicCandidate

	for symbol, sc := range e.static {
		dc, ok := e.stage2(sc)
		if !ok {
			continue
		}
		if sc.Side == types.CE {
			ce = append(ce, dc)
		} else {
			pe = append(pe, dc)
		}
		_ = symbol
	}

	best := CurrentBest{}
	if winner, ok := e.stage3(ce); ok {
		best.CE = &winner
	}
	if winner, ok := e.stage3(pe); ok {
		best.PE = &winner
	}
	return best
}

func (e *Engine) stage2(sc types.StaticCandidate) (types.DynamicCandidate, bool) {
	highestHigh := sc.SwingRef.Price
	history := e.bars.BarHistory(sc.Symbol)
	start := sc.SwingRef.FormedAtBarIndex
	if start < 0 {
		start = 0
	}
	if start < len(history) {
		for _, b := range history[start:] {
			if b.High.GreaterThan(highestHigh) {
				highestHigh = b.High
			}
		}
	}
	if liveHigh, ok := e.bars.CurrentLiveHigh(sc.Symbol); ok && liveHigh.GreaterThan(highestHigh) {
		highestHigh = liveHigh
	}

	one := decimal.NewFromInt(1)
	slTrigger := highestHigh.Add(one)
	slPoints := slTrigger.Sub(sc.EntryPrice)
	if slPoints.LessThanOrEqual(decimal.Zero) {
		return types.DynamicCandidate{}, false
	}
	slPercent := slPoints.Div(sc.EntryPrice)

	minPct := decimal.NewFromFloat(e.filterCfg.MinSLPercent)
	maxPct := decimal.NewFromFloat(e.filterCfg.MaxSLPercent)
	if slPercent.LessThan(minPct) || slPercent.GreaterThan(maxPct) {
		return types.DynamicCandidate{}, false
	}

	rValue := decimal.NewFromFloat(e.riskCfg.RValue)
	lotSize := decimal.NewFromInt(int64(e.riskCfg.LotSize))
	lotsWanted := rValue.Div(slPoints.Mul(lotSize))
	lots := int(lotsWanted.Floor().IntPart())
	if lots > e.riskCfg.MaxLotsPerPosition {
		lots = e.riskCfg.MaxLotsPerPosition
	}
	if lots < 1 {
		return types.DynamicCandidate{}, false
	}
	quantity := lots * e.riskCfg.LotSize
	actualR := slPoints.Mul(decimal.NewFromInt(int64(quantity)))

	return types.DynamicCandidate{
		Static:                sc,
		HighestHighSinceSwing: highestHigh,
		SLTrigger:             slTrigger,
		SLPoints:              slPoints,
		SLPercent:             slPercent,
		Lots:                  lots,
		Quantity:              quantity,
		ActualR:               actualR,
	}, true
}

func (e *Engine) stage3(candidates []types.DynamicCandidate) (types.DynamicCandidate, bool) {
	if len(candidates) == 0 {
		return types.DynamicCandidate{}, false
	}

	target := decimal.NewFromFloat(e.filterCfg.TargetSLPoints)
	best := candidates[0]
	bestDist := best.SLPoints.Sub(target).Abs()

	for _, c := range candidates[1:] {
		dist := c.SLPoints.Sub(target).Abs()
		switch {
		case dist.LessThan(bestDist):
			best, bestDist = c, dist
		case dist.Equal(bestDist):
			if betterTiebreak(c, best) {
				best, bestDist = c, dist
			}
		}
	}
	return best, true
}

// betterTiebreak reports whether candidate a should win over b once their
// |sl_points - target| distance already ties.
func betterTiebreak(a, b types.DynamicCandidate) bool {
	_, aStrike, _, errA := types.ParseSymbol(a.Static.Symbol)
	_, bStrike, _, errB := types.ParseSymbol(b.Static.Symbol)

	if errA == nil && errB == nil {
		aRound, bRound := types.IsRoundStrike(aStrike), types.IsRoundStrike(bStrike)
		if aRound != bRound {
			return aRound
		}
	}
	if !a.Static.EntryPrice.Equal(b.Static.EntryPrice) {
		return a.Static.EntryPrice.GreaterThan(b.Static.EntryPrice)
	}
	// Last resort: break the tie on symbol so the winner doesn't depend on
	// map iteration order.
	return a.Static.Symbol < b.Static.Symbol
}
