// Package engine is the central orchestrator of the shorting bot.
//
// It wires together every subsystem behind a single cooperative event
// loop, generalized from the teacher's per-market goroutine model
// (engine.manageMarkets + one strategy.Maker goroutine per marketSlot)
// down to one loop driving the whole strike window: ticks fold into bars,
// bars drive the swing detector, swing events feed the filter engine,
// and the filter's per-tick winner drives the order manager. Nothing
// outside OrderManager's own goroutine and FeedSupervisor/Store's
// background pumps runs concurrently with the loop.
//
// Lifecycle: New() -> Start() -> [runs until ctx cancelled] -> Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"niftyshort/internal/api"
	"niftyshort/internal/bar"
	"niftyshort/internal/broker"
	"niftyshort/internal/config"
	"niftyshort/internal/filter"
	"niftyshort/internal/notify"
	"niftyshort/internal/order"
	"niftyshort/internal/position"
	"niftyshort/internal/risk"
	"niftyshort/internal/store"
	"niftyshort/internal/swing"
	"niftyshort/pkg/types"
)

// sessionSnapshot is the warm-restart payload persisted to the store.
// Open positions are not included: OrderManager's position reconciliation
// re-adopts them directly from the broker's authoritative position book.
type sessionSnapshot struct {
	RealizedR string    `json:"realized_r"`
	SavedAt   time.Time `json:"saved_at"`
}

// Coordinator is the single event loop tying every component together.
type Coordinator struct {
	cfg config.Config
	loc *time.Location

	sideOf map[string]types.Side

	client broker.Client
	feed   feedRunner
	bars   *bar.Aggregator
	swings *swing.Detector
	filter *filter.Engine
	orders *order.Manager
	tracker *position.Tracker
	riskGov *risk.Governor
	store   *store.Store
	notifier *notify.Throttler

	dashboardEvents chan api.DashboardEvent

	lastPrice map[string]decimal.Decimal

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// feedRunner is the narrow surface Coordinator needs from FeedSupervisor.
type feedRunner interface {
	Ticks() <-chan types.Tick
	Run(ctx context.Context) error
	Close() error
	ActiveSource() string
}

// New wires every component. symbols is the full ±N strike subscription
// window; sides are derived from each symbol via types.ParseSymbol.
func New(cfg config.Config, symbols []string, client broker.Client, f feedRunner, logger *slog.Logger) (*Coordinator, error) {
	loc, err := time.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load session timezone: %w", err)
	}

	sideOf := make(map[string]types.Side, len(symbols))
	for _, sym := range symbols {
		_, _, side, err := types.ParseSymbol(sym)
		if err != nil {
			return nil, fmt.Errorf("parse window symbol %q: %w", sym, err)
		}
		sideOf[sym] = side
	}

	st, err := store.Open(cfg.Store.DataDir, logger)
	if err != nil {
		return nil, err
	}

	bars := bar.New(loc, cfg.Filter.MinBarTickCount, logger)
	swings := swing.New(logger)
	filterEng := filter.New(cfg.Filter, cfg.Risk, bars, logger)
	tracker := position.New(cfg.Risk.RValue, logger)

	var channel notify.Channel = notify.NewLogChannel(logger)
	if cfg.Notify.WebhookURL != "" {
		channel = notify.NewWebhookChannel(cfg.Notify.WebhookURL)
	}
	notifier := notify.NewThrottler(channel, logger)

	var dashEvents chan api.DashboardEvent
	if cfg.Dashboard.Enabled {
		dashEvents = make(chan api.DashboardEvent, 256)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		cfg:             cfg,
		loc:             loc,
		sideOf:          sideOf,
		client:          client,
		feed:            f,
		bars:            bars,
		swings:          swings,
		filter:          filterEng,
		tracker:         tracker,
		store:           st,
		notifier:        notifier,
		dashboardEvents: dashEvents,
		lastPrice:       make(map[string]decimal.Decimal),
		ctx:             ctx,
		cancel:          cancel,
		logger:          logger.With("component", "engine"),
	}

	riskGov, err := risk.New(cfg.Risk, tracker, nil, loc, cfg.Session.CutoffTime, logger)
	if err != nil {
		cancel()
		return nil, err
	}
	c.riskGov = riskGov
	c.orders = order.New(client, cfg.Order, riskGov, logger)
	riskGov.SetSLFailureSource(c.orders)

	var snap sessionSnapshot
	if err := st.LoadSnapshot(&snap); err == nil && snap.RealizedR != "" {
		if r, err := decimal.NewFromString(snap.RealizedR); err == nil {
			tracker.RestoreRealizedR(r)
			logger.Info("restored session R from snapshot", "realized_r", r.String())
		}
	}

	return c, nil
}

// Start launches every background goroutine and returns immediately.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go func() { defer c.wg.Done(); c.store.Run(c.ctx.Done()) }()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.feed.Run(c.ctx); err != nil && c.ctx.Err() == nil {
			c.logger.Error("feed supervisor exited", "error", err)
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.orders.Run(c.ctx); err != nil && c.ctx.Err() == nil {
			c.logger.Error("order manager exited", "error", err)
		}
	}()

	c.wg.Add(1)
	go func() { defer c.wg.Done(); c.loop() }()
}

// Stop cancels every goroutine, flattens the book, persists a final
// snapshot, and waits for a clean shutdown within SHUTDOWN_TIMEOUT.
func (c *Coordinator) Stop() {
	c.logger.Info("shutting down")

	flattenCtx, flattenCancel := context.WithTimeout(context.Background(), c.cfg.Timers.ShutdownTimeout)
	c.orders.FlattenAll(flattenCtx)
	time.Sleep(200 * time.Millisecond) // let the flatten commands drain onto the wire
	flattenCancel()

	c.persistSnapshot()
	c.recordSessionSummary()
	time.Sleep(50 * time.Millisecond) // let the store's writer goroutine drain the summary record

	c.cancel()
	c.feed.Close()

	done := make(chan struct{})
	go func() { c.wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(c.cfg.Timers.ShutdownTimeout):
		c.logger.Warn("shutdown timed out waiting for goroutines")
	}

	c.store.Close()
	c.logger.Info("shutdown complete")
}

func (c *Coordinator) persistSnapshot() {
	snap := sessionSnapshot{RealizedR: c.tracker.RealizedR().String(), SavedAt: time.Now()}
	if err := c.store.SaveSnapshot(snap); err != nil {
		c.logger.Error("failed to save session snapshot", "error", err)
	}
}

// sessionSummary is the session_summary journal record's payload, recorded
// once at shutdown.
type sessionSummary struct {
	RealizedR     string `json:"realized_r"`
	Halted        bool   `json:"halted"`
	HaltReason    string `json:"halt_reason,omitempty"`
	OpenPositions int    `json:"open_positions"`
}

func (c *Coordinator) recordSessionSummary() {
	total, _, _ := c.tracker.Count()
	halted, reason := c.riskGov.Summary()
	summary := sessionSummary{
		RealizedR:     c.tracker.RealizedR().String(),
		Halted:        halted,
		HaltReason:    reason,
		OpenPositions: total,
	}
	c.store.Record(store.EventSessionSummary, time.Now().UnixMilli(), summary)
	c.logger.Info("session summary", "realized_r", summary.RealizedR, "halted", summary.Halted, "open_positions", total)
}

// loop is the Coordinator's single cooperative event loop.
func (c *Coordinator) loop() {
	riskTicker := time.NewTicker(c.cfg.Timers.RiskCheckInterval)
	defer riskTicker.Stop()
	orderbookTicker := time.NewTicker(c.cfg.Timers.OrderbookPollInterval)
	defer orderbookTicker.Stop()
	positionTicker := time.NewTicker(c.cfg.Timers.PositionReconcileInterval)
	defer positionTicker.Stop()
	heartbeatTicker := time.NewTicker(c.cfg.Timers.HeartbeatInterval)
	defer heartbeatTicker.Stop()
	watchdogTicker := time.NewTicker(c.cfg.Timers.DataWatchdogInterval)
	defer watchdogTicker.Stop()

	lastTickAt := time.Now()

	for {
		select {
		case <-c.ctx.Done():
			return

		case tick := <-c.feed.Ticks():
			lastTickAt = time.Now()
			c.onTick(tick)

		case ev := <-c.orders.Events():
			c.onOrderEvent(ev)

		case sig := <-c.riskGov.Signals():
			c.logger.Warn("[RISK] flattening on halt signal", "reason", sig.Reason)
			c.notifier.Notify("risk_halt", sig.Reason)
			c.store.Record(store.EventRiskHalt, time.Now().UnixMilli(), sig)
			c.orders.FlattenAll(c.ctx)
			c.emitDashboard("risk", "", api.NewRiskEvent(sig.Reason, c.tracker.SessionR(c.lastPrice).InexactFloat64()))

		case <-riskTicker.C:
			c.riskGov.Check(time.Now(), c.lastPrice)

		case <-orderbookTicker.C:
			c.orders.ReconcileOrders(c.ctx)

		case <-positionTicker.C:
			c.orders.ReconcilePositions(c.ctx)

		case <-heartbeatTicker.C:
			c.persistSnapshot()
			c.logger.Info("heartbeat", "active_feed", c.feed.ActiveSource(), "session_r", c.tracker.SessionR(c.lastPrice).String())

		case <-watchdogTicker.C:
			if time.Since(lastTickAt) > c.cfg.Timers.DataWatchdogInterval {
				c.notifier.Notify("data_watchdog", "no ticks received in the last watchdog interval")
			}
			malformed := c.bars.MalformedCount()
			if malformed > 0 {
				c.logger.Debug("malformed tick count", "count", malformed)
			}
		}
	}
}

func (c *Coordinator) onTick(tick types.Tick) {
	side, known := c.sideOf[tick.Symbol]
	if !known {
		return
	}
	c.lastPrice[tick.Symbol] = tick.LastPrice

	if b, ok := c.bars.OnTick(tick); ok {
		c.onBarClose(side, b)
	}

	best := c.filter.Evaluate()
	c.orders.Sync(c.ctx, best)
}

func (c *Coordinator) onBarClose(side types.Side, b types.Bar) {
	events := c.swings.OnBarClose(b)
	for _, ev := range events {
		decision := c.filter.OnSwingEvent(side, ev)
		c.journalSwingEvent(ev)
		c.emitDashboard("swing", ev.Symbol, api.SwingEvent{
			Symbol: ev.Symbol,
			Kind:   swingEventLabel(ev.Kind),
			Side:   string(ev.SwingKind),
			Price:  ev.Swing.Price.InexactFloat64(),
		})
		if decision != nil {
			c.journalCandidateDecision(decision)
		}
	}
}

func (c *Coordinator) journalCandidateDecision(d *filter.Stage1Decision) {
	now := time.Now().UnixMilli()
	if d.Qualified {
		c.store.Record(store.EventCandidateGated, now, d)
	} else {
		c.store.Record(store.EventCandidateDisqualified, now, d)
	}
	c.emitDashboard("candidate", d.Symbol, api.NewCandidateEvent(d.Symbol, string(d.Side), d.Qualified, d.Reason))
}

func swingEventLabel(kind types.SwingEventKind) string {
	switch kind {
	case types.SwingEventNew:
		return "confirmed"
	case types.SwingEventUpdated:
		return "updated"
	case types.SwingEventBroken:
		return "broken"
	default:
		return string(kind)
	}
}

func (c *Coordinator) journalSwingEvent(ev types.SwingEvent) {
	now := time.Now().UnixMilli()
	switch ev.Kind {
	case types.SwingEventNew:
		c.store.Record(store.EventSwingConfirmed, now, ev)
	case types.SwingEventUpdated:
		c.store.Record(store.EventSwingUpdated, now, ev)
	case types.SwingEventBroken:
		c.store.Record(store.EventSwingBroken, now, ev)
	}
}

func (c *Coordinator) onOrderEvent(ev order.Event) {
	now := time.Now().UnixMilli()

	switch ev.Kind {
	case order.EventOrderPlaced:
		c.store.Record(store.EventOrderPlaced, now, ev)
	case order.EventOrderModified:
		c.store.Record(store.EventOrderModified, now, ev)
	case order.EventOrderCancelled:
		c.store.Record(store.EventOrderCancelled, now, ev)
	case order.EventOrderFilled:
		c.store.Record(store.EventOrderFilled, now, ev)
	case order.EventPositionOpened:
		if ev.Position != nil {
			c.tracker.OnPositionOpened(ev.Position)
		}
		c.store.Record(store.EventPositionOpened, now, ev)
	case order.EventPositionClosed:
		if ev.Position != nil {
			c.tracker.OnPositionClosed(ev.Position)
		}
		c.store.Record(store.EventPositionClosed, now, ev)
	case order.EventDegradedStop:
		c.notifier.Notify("degraded_stop", fmt.Sprintf("protective stop could not be armed for %s", ev.Symbol))
	}

	c.emitOrderDashboardEvent(ev)
}

func (c *Coordinator) emitOrderDashboardEvent(ev order.Event) {
	switch ev.Kind {
	case order.EventPositionOpened, order.EventPositionClosed:
		if ev.Position == nil {
			return
		}
		pos := ev.Position
		var exitPrice, rMultiple float64
		if pos.ExitPrice != nil {
			exitPrice, _ = pos.ExitPrice.Float64()
		}
		if pos.RMultiple != nil {
			rMultiple, _ = pos.RMultiple.Float64()
		}
		status := "opened"
		if ev.Kind == order.EventPositionClosed {
			status = "closed"
		}
		entry, _ := pos.EntryPrice.Float64()
		c.emitDashboard("position", pos.Symbol, api.NewPositionEvent(pos.Symbol, string(pos.Side), status, entry, exitPrice, rMultiple))
	default:
		c.emitDashboard("order", ev.Symbol, api.NewOrderEvent(ev.OrderID, ev.Symbol, string(ev.Side), string(ev.Kind), 0, 0))
	}
}

func (c *Coordinator) emitDashboard(kind, symbol string, data interface{}) {
	if c.dashboardEvents == nil {
		return
	}
	evt := api.DashboardEvent{Type: kind, Timestamp: time.Now(), Symbol: symbol, Data: data}
	select {
	case c.dashboardEvents <- evt:
	default:
		c.logger.Warn("dashboard event channel full, dropping event", "kind", kind)
	}
}

// DashboardEvents implements api.MarketSnapshotProvider.
func (c *Coordinator) DashboardEvents() <-chan api.DashboardEvent { return c.dashboardEvents }

// GetSessionR implements api.MarketSnapshotProvider.
func (c *Coordinator) GetSessionR() float64 {
	r, _ := c.tracker.SessionR(c.lastPrice).Float64()
	return r
}

// GetPositionsSnapshot implements api.MarketSnapshotProvider.
func (c *Coordinator) GetPositionsSnapshot() []api.PositionStatus {
	open := c.tracker.Open()
	out := make([]api.PositionStatus, 0, len(open))
	for _, pos := range open {
		entry, _ := pos.EntryPrice.Float64()
		status := api.PositionStatus{
			Symbol:       pos.Symbol,
			Side:         string(pos.Side),
			Status:       string(pos.Status),
			EntryPrice:   entry,
			Quantity:     pos.Qty,
			DegradedStop: pos.DegradedNoStop,
			OpenedAt:     pos.EntryTs,
		}
		if pos.ExitPrice != nil {
			status.ExitPrice, _ = pos.ExitPrice.Float64()
		}
		if pos.RMultiple != nil {
			status.RMultiple, _ = pos.RMultiple.Float64()
		}
		if trigger, ok := c.orders.StopTriggerFor(pos.Symbol); ok {
			status.StopTrigger, _ = trigger.Float64()
		}
		out = append(out, status)
	}
	return out
}

// GetRiskSnapshot implements api.MarketSnapshotProvider.
func (c *Coordinator) GetRiskSnapshot() api.RiskSnapshot {
	total, ce, pe := c.tracker.Count()
	sessionR, _ := c.tracker.SessionR(c.lastPrice).Float64()
	return api.RiskSnapshot{
		Halted:            c.riskGov.IsHalted(),
		SessionR:          sessionR,
		DailyTargetR:      c.cfg.Risk.DailyTargetR,
		DailyStopR:        c.cfg.Risk.DailyStopR,
		OpenPositions:     total,
		MaxPositions:      c.cfg.Risk.MaxPositions,
		OpenCEPositions:   ce,
		MaxCEPositions:    c.cfg.Risk.MaxCEPositions,
		OpenPEPositions:   pe,
		MaxPEPositions:    c.cfg.Risk.MaxPEPositions,
		SLFailureStreak:   c.orders.SLFailureStreak(),
		MaxSLFailureCount: c.cfg.Risk.MaxSLFailureCount,
	}
}

// GetFeedStatus implements api.MarketSnapshotProvider.
func (c *Coordinator) GetFeedStatus() api.FeedStatus {
	return api.FeedStatus{ActiveSource: c.feed.ActiveSource()}
}
