// Package risk implements RiskGovernor: position-count caps, the daily R
// target/stop, the force-exit cutoff, and the protective-stop failure
// latch, generalized from the teacher's risk.Manager (which watched
// per-market price-movement kill switches) onto a single session-wide R
// ledger.
package risk

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"niftyshort/internal/config"
	"niftyshort/internal/position"
	"niftyshort/pkg/types"
)

// SLFailureSource reports OrderManager's consecutive protective-stop
// arming failure count.
type SLFailureSource interface {
	SLFailureStreak() int
}

// Signal is pushed to Signals() when the Governor trips a halt that
// requires the Coordinator to flatten the book.
type Signal struct {
	Reason string
}

// Governor is the RiskGovernor component. Reads are safe for concurrent
// use by OrderManager (a mutex guards the halted latch); Check is called
// only from the Coordinator's loop.
type Governor struct {
	cfg     config.RiskConfig
	tracker *position.Tracker
	slSrc   SLFailureSource

	loc           *time.Location
	cutoffHour    int
	cutoffMinute  int

	mu         sync.RWMutex
	halted     bool
	haltReason string

	signals chan Signal
	logger  *slog.Logger
}

// New constructs a Governor. cutoff is parsed as "HH:MM" in loc. slSrc may
// be nil at construction time and set later with SetSLFailureSource, since
// OrderManager (the usual SLFailureSource) itself takes a RiskGate and is
// typically constructed after the Governor.
func New(cfg config.RiskConfig, tracker *position.Tracker, slSrc SLFailureSource, loc *time.Location, cutoff string, logger *slog.Logger) (*Governor, error) {
	hour, minute, err := ParseCutoff(cutoff)
	if err != nil {
		return nil, err
	}
	return &Governor{
		cfg:          cfg,
		tracker:      tracker,
		slSrc:        slSrc,
		loc:          loc,
		cutoffHour:   hour,
		cutoffMinute: minute,
		signals:      make(chan Signal, 1),
		logger:       logger.With("component", "risk"),
	}, nil
}

// ParseCutoff parses "HH:MM" into hour/minute.
func ParseCutoff(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// Signals is drained by the Coordinator to react to a newly tripped halt.
func (g *Governor) Signals() <-chan Signal { return g.signals }

// SetSLFailureSource wires the protective-stop failure counter once its
// owner (OrderManager) has been constructed.
func (g *Governor) SetSLFailureSource(slSrc SLFailureSource) {
	g.slSrc = slSrc
}

// IsHalted satisfies order.RiskGate.
func (g *Governor) IsHalted() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.halted
}

// CanOpen satisfies order.RiskGate: rejects a new entry on this side if
// halted or if opening it would exceed any position cap.
func (g *Governor) CanOpen(side types.Side) bool {
	g.mu.RLock()
	halted := g.halted
	g.mu.RUnlock()
	if halted {
		return false
	}

	total, ce, pe := g.tracker.Count()
	if total >= g.cfg.MaxPositions {
		return false
	}
	if side == types.CE && ce >= g.cfg.MaxCEPositions {
		return false
	}
	if side == types.PE && pe >= g.cfg.MaxPEPositions {
		return false
	}
	return true
}

// Check runs RiskGovernor's periodic evaluation (spec: every RISK_CHECK
// interval, 10s). marks feeds PositionTracker's unrealized-R mark prices.
func (g *Governor) Check(now time.Time, marks map[string]decimal.Decimal) {
	if g.IsHalted() {
		return
	}

	sessionR := g.tracker.SessionR(marks)
	target := decimal.NewFromFloat(g.cfg.DailyTargetR)
	stop := decimal.NewFromFloat(g.cfg.DailyStopR)

	if sessionR.GreaterThanOrEqual(target) {
		g.trip("daily_target_r_hit")
		return
	}
	if sessionR.LessThanOrEqual(stop) {
		g.trip("daily_stop_r_hit")
		return
	}

	local := now.In(g.loc)
	if local.Hour() > g.cutoffHour || (local.Hour() == g.cutoffHour && local.Minute() >= g.cutoffMinute) {
		g.trip("force_exit_time")
		return
	}

	if g.slSrc != nil && g.slSrc.SLFailureStreak() >= g.cfg.MaxSLFailureCount {
		g.trip("sl_failure_streak")
		return
	}
}

// Summary reports the halt latch state for the session_summary journal
// record, per spec's design note confining this process-wide bookkeeping
// to RiskGovernor's private fields.
func (g *Governor) Summary() (halted bool, reason string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.halted, g.haltReason
}

func (g *Governor) trip(reason string) {
	g.mu.Lock()
	g.halted = true
	g.haltReason = reason
	g.mu.Unlock()

	g.logger.Warn("[RISK] halt latch set", "reason", reason)
	select {
	case g.signals <- Signal{Reason: reason}:
	default:
	}
}
