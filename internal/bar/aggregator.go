// Package bar folds a per-symbol tick stream into fixed one-minute OHLCV
// bars aligned to wall-clock minute boundaries, and maintains a
// session-cumulative VWAP per symbol updated at each bar close.
//
// Unlike the teacher's market.Book (guarded by an RWMutex because several
// strategy goroutines read it concurrently), Aggregator has exactly one
// caller: the Coordinator's single event loop. No internal locking is
// needed, per the single-threaded decision-layer model.
package bar

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"niftyshort/pkg/types"
)

// maxBarHistory bounds retained bars per symbol (spec lifecycle: up to
// N=400 bars, comfortably covering a trading session).
const maxBarHistory = 400

type symbolState struct {
	loc *time.Location

	currentMinute int64 // unix-minute index, 0 means "no bar open yet"
	open, high, low, close decimal.Decimal
	ticks                  int

	barStartCumVolume int64 // cumulative session volume observed at bar open
	lastCumVolume     int64 // most recent cumulative session volume observed

	cumTPVol decimal.Decimal // Σ typical_price*volume over closed bars
	cumVol   decimal.Decimal // Σ volume over closed bars
	vwap     decimal.Decimal
	hasVWAP  bool

	lastTsMs int64

	bars []types.Bar
}

// Aggregator is the BarAggregator component. One instance serves every
// symbol in the strike window.
type Aggregator struct {
	loc             *time.Location
	minTickCount    int
	states          map[string]*symbolState
	malformedCount  int
	logger          *slog.Logger
}

// New constructs an Aggregator. minTickCount is the minimum number of ticks
// a minute must accumulate before its bar is emitted (spec default 5).
func New(loc *time.Location, minTickCount int, logger *slog.Logger) *Aggregator {
	if minTickCount <= 0 {
		minTickCount = 5
	}
	return &Aggregator{
		loc:          loc,
		minTickCount: minTickCount,
		states:       make(map[string]*symbolState),
		logger:       logger.With("component", "bar"),
	}
}

// OnTick folds one tick into the aggregator's state for its symbol. It
// returns the emitted Bar and true if the tick caused a minute rollover
// with a qualifying (tick_count >= minTickCount) bar; otherwise ok is false.
// Malformed ticks (non-positive price, non-monotonic timestamp) are dropped
// and counted, never affecting state.
func (a *Aggregator) OnTick(tick types.Tick) (types.Bar, bool) {
	if !a.isWellFormed(tick) {
		a.malformedCount++
		a.logger.Debug("dropping malformed tick", "symbol", tick.Symbol, "price", tick.LastPrice.String())
		return types.Bar{}, false
	}

	st := a.stateFor(tick.Symbol)
	minute := minuteIndex(tick.TsMs, st.loc)

	var emitted types.Bar
	var ok bool

	if st.currentMinute != 0 && minute != st.currentMinute {
		if st.ticks >= a.minTickCount {
			emitted, ok = a.closeBar(tick.Symbol, st)
		} else {
			a.logger.Debug("discarding partial bar", "symbol", tick.Symbol, "ticks", st.ticks)
		}
		a.openBar(st, minute, tick)
	} else if st.currentMinute == 0 {
		a.openBar(st, minute, tick)
	} else {
		a.updateBar(st, tick)
	}

	st.lastTsMs = tick.TsMs
	return emitted, ok
}

func (a *Aggregator) isWellFormed(tick types.Tick) bool {
	if tick.LastPrice.LessThanOrEqual(decimal.Zero) {
		return false
	}
	if st, ok := a.states[tick.Symbol]; ok && st.lastTsMs != 0 {
		if tick.TsMs < st.lastTsMs {
			return false
		}
		const maxSessionGapMs = 24 * 60 * 60 * 1000
		if tick.TsMs-st.lastTsMs > maxSessionGapMs {
			return false
		}
	}
	return true
}

func (a *Aggregator) stateFor(symbol string) *symbolState {
	st, ok := a.states[symbol]
	if !ok {
		st = &symbolState{loc: a.loc, cumTPVol: decimal.Zero, cumVol: decimal.Zero}
		a.states[symbol] = st
	}
	return st
}

func (a *Aggregator) openBar(st *symbolState, minute int64, tick types.Tick) {
	st.currentMinute = minute
	st.open = tick.LastPrice
	st.high = tick.LastPrice
	st.low = tick.LastPrice
	st.close = tick.LastPrice
	st.ticks = 1
	st.barStartCumVolume = st.lastCumVolume
	st.lastCumVolume = tick.VolumeDelta
}

func (a *Aggregator) updateBar(st *symbolState, tick types.Tick) {
	if tick.LastPrice.GreaterThan(st.high) {
		st.high = tick.LastPrice
	}
	if tick.LastPrice.LessThan(st.low) {
		st.low = tick.LastPrice
	}
	st.close = tick.LastPrice
	st.lastCumVolume = tick.VolumeDelta
	st.ticks++
}

func (a *Aggregator) closeBar(symbol string, st *symbolState) (types.Bar, bool) {
	volume := st.lastCumVolume - st.barStartCumVolume
	if volume < 0 {
		volume = 0
	}

	b := types.Bar{
		Symbol:        symbol,
		MinuteStartTs: st.currentMinute * 60000,
		Open:          st.open,
		High:          st.high,
		Low:           st.low,
		Close:         st.close,
		Volume:        volume,
		TickCount:     st.ticks,
	}

	tp := b.TypicalPrice()
	volDec := decimal.NewFromInt(volume)
	st.cumTPVol = st.cumTPVol.Add(tp.Mul(volDec))
	st.cumVol = st.cumVol.Add(volDec)
	if !st.cumVol.IsZero() {
		st.vwap = st.cumTPVol.Div(st.cumVol)
		st.hasVWAP = true
	}
	b.VWAPAtClose = st.vwap

	st.bars = append(st.bars, b)
	if len(st.bars) > maxBarHistory {
		st.bars = st.bars[len(st.bars)-maxBarHistory:]
	}

	return b, true
}

// CurrentLiveHigh returns the current accumulating bar's high (tick-level
// max since the minute boundary), required by the dynamic gate.
func (a *Aggregator) CurrentLiveHigh(symbol string) (decimal.Decimal, bool) {
	st, ok := a.states[symbol]
	if !ok || st.currentMinute == 0 {
		return decimal.Zero, false
	}
	return st.high, true
}

// SessionVWAP returns the session-cumulative VWAP computed from closed bars only.
func (a *Aggregator) SessionVWAP(symbol string) (decimal.Decimal, bool) {
	st, ok := a.states[symbol]
	if !ok || !st.hasVWAP {
		return decimal.Zero, false
	}
	return st.vwap, true
}

// BarHistory returns the ordered, bounded sequence of closed bars for a symbol.
func (a *Aggregator) BarHistory(symbol string) []types.Bar {
	st, ok := a.states[symbol]
	if !ok {
		return nil
	}
	out := make([]types.Bar, len(st.bars))
	copy(out, st.bars)
	return out
}

// MalformedCount returns the running count of dropped malformed ticks,
// used by the engine's sustained-rate alerting.
func (a *Aggregator) MalformedCount() int { return a.malformedCount }

func minuteIndex(tsMs int64, loc *time.Location) int64 {
	t := time.UnixMilli(tsMs).In(loc)
	return t.Unix() / 60
}
