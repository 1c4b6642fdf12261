// Package swing implements watch-based confirmation of swing highs and
// lows per symbol, enforcing strict alternation, with in-place updates when
// a more extreme candidate appears before the next alternation.
//
// Detector holds one state machine per symbol internally (the same "one
// instance per symbol, looked up by key" shape as the teacher's
// per-market marketSlot map), rather than requiring the caller to manage
// N separate Detector values.
package swing

import (
	"log/slog"

	"niftyshort/pkg/types"
)

// confirmThreshold is the number of watch increments required to confirm
// or in-place-update a swing.
const confirmThreshold = 2

type candidate struct {
	barIndex int
	bar      types.Bar
	watch    int
}

type symbolState struct {
	barIndex          int
	lastConfirmedKind types.SwingKind // "" = None
	activeLow         *types.Swing
	activeHigh        *types.Swing
	pendingLow        *candidate
	pendingHigh       *candidate
}

// Detector is the SwingDetector component.
type Detector struct {
	states map[string]*symbolState
	logger *slog.Logger
}

// New constructs a Detector covering every symbol it sees.
func New(logger *slog.Logger) *Detector {
	return &Detector{
		states: make(map[string]*symbolState),
		logger: logger.With("component", "swing"),
	}
}

// OnBarClose processes one newly closed bar and returns the events it
// produced, in the emission order the spec guarantees: swing_updated
// events precede any new_swing of the opposite kind, which precede
// swing_broken.
func (d *Detector) OnBarClose(b types.Bar) []types.SwingEvent {
	st, ok := d.states[b.Symbol]
	if !ok {
		st = &symbolState{}
		d.states[b.Symbol] = st
	}

	idx := st.barIndex
	st.barIndex++

	var updated, created, broken []types.SwingEvent

	// 1. Update watches for the existing candidates.
	if st.pendingLow != nil && b.High.GreaterThan(st.pendingLow.bar.High) && b.Close.GreaterThan(st.pendingLow.bar.Close) {
		st.pendingLow.watch++
	}
	if st.pendingHigh != nil && b.Low.LessThan(st.pendingHigh.bar.Low) && b.Close.LessThan(st.pendingHigh.bar.Close) {
		st.pendingHigh.watch++
	}

	// 2. Candidate extremum update: re-anchor to a strictly more extreme bar.
	if st.pendingLow == nil || b.Low.LessThan(st.pendingLow.bar.Low) {
		st.pendingLow = &candidate{barIndex: idx, bar: b}
	}
	if st.pendingHigh == nil || b.High.GreaterThan(st.pendingHigh.bar.High) {
		st.pendingHigh = &candidate{barIndex: idx, bar: b}
	}

	// 3. Confirmation / in-place update for the low candidate.
	if st.pendingLow.watch >= confirmThreshold {
		switch {
		case st.lastConfirmedKind != types.SwingLow:
			swing := types.Swing{
				Symbol:           b.Symbol,
				Kind:             types.SwingLow,
				Price:            st.pendingLow.bar.Low,
				FormedAtBarIndex: st.pendingLow.barIndex,
				VWAPAtFormation:  st.pendingLow.bar.VWAPAtClose,
			}
			st.activeLow = &swing
			st.lastConfirmedKind = types.SwingLow
			st.pendingLow.watch = 0
			st.pendingHigh.watch = 0
			created = append(created, types.SwingEvent{Kind: types.SwingEventNew, Symbol: b.Symbol, SwingKind: types.SwingLow, Swing: swing})
		case st.activeLow != nil && st.pendingLow.bar.Low.LessThan(st.activeLow.Price):
			st.activeLow.Price = st.pendingLow.bar.Low
			st.pendingLow.watch = 0
			updated = append(updated, types.SwingEvent{Kind: types.SwingEventUpdated, Symbol: b.Symbol, SwingKind: types.SwingLow, Swing: *st.activeLow})
		default:
			st.pendingLow.watch = 0
		}
	}

	// 4. Confirmation / in-place update for the high candidate, symmetric.
	if st.pendingHigh.watch >= confirmThreshold {
		switch {
		case st.lastConfirmedKind != types.SwingHigh:
			swing := types.Swing{
				Symbol:           b.Symbol,
				Kind:             types.SwingHigh,
				Price:            st.pendingHigh.bar.High,
				FormedAtBarIndex: st.pendingHigh.barIndex,
				VWAPAtFormation:  st.pendingHigh.bar.VWAPAtClose,
			}
			st.activeHigh = &swing
			st.lastConfirmedKind = types.SwingHigh
			st.pendingHigh.watch = 0
			st.pendingLow.watch = 0
			created = append(created, types.SwingEvent{Kind: types.SwingEventNew, Symbol: b.Symbol, SwingKind: types.SwingHigh, Swing: swing})
		case st.activeHigh != nil && st.pendingHigh.bar.High.GreaterThan(st.activeHigh.Price):
			st.activeHigh.Price = st.pendingHigh.bar.High
			st.pendingHigh.watch = 0
			updated = append(updated, types.SwingEvent{Kind: types.SwingEventUpdated, Symbol: b.Symbol, SwingKind: types.SwingHigh, Swing: *st.activeHigh})
		default:
			st.pendingHigh.watch = 0
		}
	}

	// 5. Break detection against the (possibly just-updated) active swings.
	if st.activeLow != nil && b.Low.LessThanOrEqual(st.activeLow.Price) {
		broken = append(broken, types.SwingEvent{Kind: types.SwingEventBroken, Symbol: b.Symbol, SwingKind: types.SwingLow, Swing: *st.activeLow, BreakingBar: &b})
		st.activeLow = nil
	}
	if st.activeHigh != nil && b.High.GreaterThanOrEqual(st.activeHigh.Price) {
		broken = append(broken, types.SwingEvent{Kind: types.SwingEventBroken, Symbol: b.Symbol, SwingKind: types.SwingHigh, Swing: *st.activeHigh, BreakingBar: &b})
		st.activeHigh = nil
	}

	events := make([]types.SwingEvent, 0, len(updated)+len(created)+len(broken))
	events = append(events, updated...)
	events = append(events, created...)
	events = append(events, broken...)
	return events
}

// ActiveLow returns the currently active confirmed swing low for a symbol, if any.
func (d *Detector) ActiveLow(symbol string) (types.Swing, bool) {
	st, ok := d.states[symbol]
	if !ok || st.activeLow == nil {
		return types.Swing{}, false
	}
	return *st.activeLow, true
}
