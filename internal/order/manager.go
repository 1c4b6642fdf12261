// Package order implements OrderManager: the per-side pending-entry state
// machine, fill-to-protective-stop pairing, and broker reconciliation.
//
// Manager owns a single goroutine (Run) that is the only thing allowed to
// touch its pending/position maps, so the rest of the decision pipeline can
// hand it work over a channel without any locking — the same "one owning
// goroutine per mutable state" shape the teacher uses for a market's
// per-symbol state in strategy.Maker, generalized here to the whole book
// instead of one instance per market.
package order

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"niftyshort/internal/broker"
	"niftyshort/internal/config"
	"niftyshort/internal/filter"
	"niftyshort/pkg/types"
)

// RiskGate is the one-way, read-only check OrderManager makes against
// RiskGovernor before placing a new entry.
type RiskGate interface {
	IsHalted() bool
	CanOpen(side types.Side) bool
}

// EventKind enumerates the journal-worthy events Manager emits.
type EventKind string

const (
	EventOrderPlaced    EventKind = "order_placed"
	EventOrderModified  EventKind = "order_modified"
	EventOrderCancelled EventKind = "order_cancelled"
	EventOrderFilled    EventKind = "order_filled"
	EventPositionOpened EventKind = "position_opened"
	EventPositionClosed EventKind = "position_closed"
	EventDegradedStop   EventKind = "degraded_stop"
)

// Event is pushed to Events() for the Coordinator to fold into
// PositionTracker, the journal, and the dashboard.
type Event struct {
	Kind     EventKind
	Side     types.Side
	Symbol   string
	OrderID  string
	Position *types.Position
}

type pendingSlot struct {
	entry     types.PendingEntry
	candidate types.DynamicCandidate
}

// Manager is the OrderManager component.
type Manager struct {
	client   broker.Client
	cfg      config.OrderConfig
	riskGate RiskGate

	pending       map[types.Side]*pendingSlot
	positions     map[string]*types.Position    // keyed by symbol
	stopTriggers  map[string]decimal.Decimal    // keyed by symbol, trigger used to arm each position's stop
	slFailStreak  int

	cmdCh   chan func()
	eventCh chan Event
	logger  *slog.Logger
}

// New constructs an OrderManager against a broker.Client.
func New(client broker.Client, cfg config.OrderConfig, riskGate RiskGate, logger *slog.Logger) *Manager {
	return &Manager{
		client:    client,
		cfg:       cfg,
		riskGate:  riskGate,
		pending:      make(map[types.Side]*pendingSlot),
		positions:    make(map[string]*types.Position),
		stopTriggers: make(map[string]decimal.Decimal),
		cmdCh:        make(chan func(), 256),
		eventCh:   make(chan Event, 256),
		logger:    logger.With("component", "order"),
	}
}

// Events is drained by the Coordinator once per cycle.
func (m *Manager) Events() <-chan Event { return m.eventCh }

// Run is Manager's single owning goroutine; every state mutation happens
// here, dispatched from the command queue.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-m.cmdCh:
			fn()
		}
	}
}

func (m *Manager) enqueue(fn func()) {
	select {
	case m.cmdCh <- fn:
	default:
		m.logger.Warn("order command queue saturated, dropping command")
	}
}

// Sync applies the diff table for both sides against a new CurrentBest.
func (m *Manager) Sync(ctx context.Context, best filter.CurrentBest) {
	m.enqueue(func() { m.syncSide(ctx, types.CE, best.CE) })
	m.enqueue(func() { m.syncSide(ctx, types.PE, best.PE) })
}

func (m *Manager) syncSide(ctx context.Context, side types.Side, chosen *types.DynamicCandidate) {
	if m.riskGate.IsHalted() {
		return
	}

	current := m.pending[side]

	switch {
	case current == nil && chosen == nil:
		return
	case current == nil && chosen != nil:
		if !m.riskGate.CanOpen(side) {
			return
		}
		m.place(ctx, side, *chosen)
	case current != nil && chosen == nil:
		m.cancel(ctx, side, current.entry.OrderID)
	case current.entry.Symbol == chosen.Static.Symbol:
		newLimit := chosen.Static.EntryPrice.Sub(decimal.NewFromFloat(m.cfg.TickSize))
		diff := newLimit.Sub(current.entry.LimitPrice).Abs()
		if diff.GreaterThanOrEqual(decimal.NewFromFloat(m.cfg.ModThreshold)) {
			m.modify(ctx, side, current, newLimit)
		}
	default:
		m.cancel(ctx, side, current.entry.OrderID)
		if m.riskGate.CanOpen(side) {
			m.place(ctx, side, *chosen)
		}
	}
}

func (m *Manager) place(ctx context.Context, side types.Side, candidate types.DynamicCandidate) {
	limitPrice := candidate.Static.EntryPrice.Sub(decimal.NewFromFloat(m.cfg.TickSize))
	req := types.PlaceRequest{
		Symbol:        candidate.Static.Symbol,
		Transaction:   types.TransactionSell,
		Kind:          types.OrderLimit,
		Price:         limitPrice,
		Quantity:      candidate.Quantity,
		Product:       types.ProductIntraday,
		CorrelationID: uuid.NewString(),
	}

	orderID, err := m.retryPlace(ctx, req)
	if err != nil {
		m.logger.Error("entry place failed permanently", "symbol", req.Symbol, "side", side, "error", err)
		return
	}

	m.pending[side] = &pendingSlot{
		entry: types.PendingEntry{
			Side:          side,
			Symbol:        req.Symbol,
			OrderID:       orderID,
			LimitPrice:    limitPrice,
			Quantity:      req.Quantity,
			PlacedAt:      time.Now(),
			CorrelationID: req.CorrelationID,
		},
		candidate: candidate,
	}
	m.logger.Info("[ORDER] entry placed", "symbol", req.Symbol, "side", side, "order_id", orderID, "limit_price", limitPrice.String())
	m.emit(Event{Kind: EventOrderPlaced, Side: side, Symbol: req.Symbol, OrderID: orderID})
}

func (m *Manager) modify(ctx context.Context, side types.Side, slot *pendingSlot, newLimit decimal.Decimal) {
	if err := m.client.Modify(ctx, slot.entry.OrderID, &newLimit, nil); err != nil {
		m.logger.Warn("entry modify failed", "order_id", slot.entry.OrderID, "error", err)
		return
	}
	slot.entry.LimitPrice = newLimit
	m.logger.Info("[ORDER] entry modified", "symbol", slot.entry.Symbol, "side", side, "order_id", slot.entry.OrderID, "new_limit", newLimit.String())
	m.emit(Event{Kind: EventOrderModified, Side: side, Symbol: slot.entry.Symbol, OrderID: slot.entry.OrderID})
}

func (m *Manager) cancel(ctx context.Context, side types.Side, orderID string) {
	if err := m.client.Cancel(ctx, orderID); err != nil {
		if ok, _ := m.confirmNotOpen(ctx, orderID); !ok {
			m.logger.Warn("entry cancel unresolved, keeping slot", "order_id", orderID, "error", err)
			return
		}
	}
	symbol := ""
	if slot := m.pending[side]; slot != nil {
		symbol = slot.entry.Symbol
	}
	delete(m.pending, side)
	m.logger.Info("[ORDER] entry cancelled", "side", side, "order_id", orderID)
	m.emit(Event{Kind: EventOrderCancelled, Side: side, Symbol: symbol, OrderID: orderID})
}

func (m *Manager) confirmNotOpen(ctx context.Context, orderID string) (bool, error) {
	orders, err := m.client.Orderbook(ctx)
	if err != nil {
		return false, err
	}
	for _, o := range orders {
		if o.OrderID == orderID {
			return o.Status != types.BrokerOrderOpen, nil
		}
	}
	return true, nil // missing from the book: treat as not open
}

func (m *Manager) retryPlace(ctx context.Context, req types.PlaceRequest) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.PlaceMaxRetries; attempt++ {
		orderID, err := m.client.Place(ctx, req)
		if err == nil {
			return orderID, nil
		}
		lastErr = err
		if broker.KindOf(err) != broker.KindTransient {
			return "", err
		}
		if attempt < m.cfg.PlaceMaxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(m.cfg.PlaceRetrySpacing):
			}
		}
	}
	return "", lastErr
}

// ReconcileOrders runs every ORDERBOOK_POLL_INTERVAL, comparing broker
// status for every pending entry and every active position's protective
// stop against internal state.
func (m *Manager) ReconcileOrders(ctx context.Context) {
	m.enqueue(func() { m.reconcileOrdersLocked(ctx) })
}

func (m *Manager) reconcileOrdersLocked(ctx context.Context) {
	orders, err := m.client.Orderbook(ctx)
	if err != nil {
		m.logger.Warn("[RECONCILE] orderbook poll failed", "error", err)
		return
	}
	byID := make(map[string]types.BrokerOrder, len(orders))
	for _, o := range orders {
		byID[o.OrderID] = o
	}

	for side, slot := range m.pending {
		bo, ok := byID[slot.entry.OrderID]
		switch {
		case !ok:
			m.logger.Warn("[RECONCILE] pending entry missing from orderbook, clearing", "order_id", slot.entry.OrderID)
			delete(m.pending, side)
		case bo.Status == types.BrokerOrderComplete:
			m.handleFill(ctx, side, slot, bo)
		case bo.Status == types.BrokerOrderRejected || bo.Status == types.BrokerOrderCancelled:
			delete(m.pending, side)
		}
	}

	for symbol, pos := range m.positions {
		if pos.Status != types.PositionActive || pos.ExitSLOrderID == "" {
			continue
		}
		bo, ok := byID[pos.ExitSLOrderID]
		switch {
		case !ok:
			m.logger.Error("[EXIT] protective stop missing from orderbook, re-arming", "symbol", symbol)
			m.armProtectiveStop(ctx, pos)
		case bo.Status == types.BrokerOrderComplete:
			m.handleExit(pos, bo)
		}
	}
}

func (m *Manager) handleFill(ctx context.Context, side types.Side, slot *pendingSlot, bo types.BrokerOrder) {
	delete(m.pending, side)

	fillPrice := slot.entry.LimitPrice
	if bo.AvgPrice != nil {
		fillPrice = *bo.AvgPrice
	}

	pos := &types.Position{
		Symbol:     slot.entry.Symbol,
		Side:       side,
		Qty:        slot.entry.Quantity,
		EntryPrice: fillPrice,
		EntryTs:    time.Now(),
		Status:     types.PositionActive,
	}
	m.positions[pos.Symbol] = pos
	m.logger.Info("[FILL] entry filled", "symbol", pos.Symbol, "side", side, "qty", pos.Qty, "price", fillPrice.String())
	m.emit(Event{Kind: EventOrderFilled, Side: side, Symbol: pos.Symbol, OrderID: bo.OrderID})
	m.emit(Event{Kind: EventPositionOpened, Side: side, Symbol: pos.Symbol, Position: pos})

	m.stopTriggers[pos.Symbol] = slot.candidate.HighestHighSinceSwing.Add(decimal.NewFromFloat(m.cfg.ExitTriggerBuffer))
	m.armProtectiveStop(ctx, pos)
}

func (m *Manager) armProtectiveStop(ctx context.Context, pos *types.Position) {
	trigger := m.stopTriggers[pos.Symbol]
	limit := trigger.Add(decimal.NewFromFloat(m.cfg.ExitLimitBuffer))

	req := types.PlaceRequest{
		Symbol:        pos.Symbol,
		Transaction:   types.TransactionBuy,
		Kind:          types.OrderStopLimit,
		Price:         limit,
		Trigger:       &trigger,
		Quantity:      pos.Qty,
		Product:       types.ProductIntraday,
		CorrelationID: uuid.NewString(),
	}

	orderID, err := m.retryPlace(ctx, req)
	if err != nil {
		m.slFailStreak++
		pos.DegradedNoStop = true
		m.logger.Error("[RISK] protective stop could not be armed", "symbol", pos.Symbol, "error", err, "consecutive_failures", m.slFailStreak)
		m.emit(Event{Kind: EventDegradedStop, Symbol: pos.Symbol, Position: pos})
		return
	}

	m.slFailStreak = 0
	pos.ExitSLOrderID = orderID
	pos.DegradedNoStop = false
	m.logger.Info("[ORDER] protective stop armed", "symbol", pos.Symbol, "order_id", orderID, "trigger", trigger.String(), "limit", limit.String())
}

func (m *Manager) handleExit(pos *types.Position, bo types.BrokerOrder) {
	exitPrice := m.stopTriggers[pos.Symbol]
	if bo.AvgPrice != nil {
		exitPrice = *bo.AvgPrice
	}
	pos.ExitPrice = &exitPrice
	pos.Status = types.PositionClosed
	delete(m.positions, pos.Symbol)
	delete(m.stopTriggers, pos.Symbol)
	m.logger.Info("[EXIT] position closed", "symbol", pos.Symbol, "exit_price", exitPrice.String())
	m.emit(Event{Kind: EventPositionClosed, Symbol: pos.Symbol, Position: pos})
}

// ReconcilePositions runs every 60s against the broker's position book.
func (m *Manager) ReconcilePositions(ctx context.Context) {
	m.enqueue(func() { m.reconcilePositionsLocked(ctx) })
}

func (m *Manager) reconcilePositionsLocked(ctx context.Context) {
	brokerPositions, err := m.client.Positionbook(ctx)
	if err != nil {
		m.logger.Warn("[RECONCILE] position book poll failed", "error", err)
		return
	}
	bySymbol := make(map[string]types.BrokerPosition, len(brokerPositions))
	for _, bp := range brokerPositions {
		bySymbol[bp.Symbol] = bp
	}

	for symbol, pos := range m.positions {
		if _, ok := bySymbol[symbol]; !ok {
			m.logger.Warn("[RECONCILE] internal position missing from broker book, closing", "symbol", symbol)
			exitPrice := pos.EntryPrice
			pos.ExitPrice = &exitPrice
			pos.Status = types.PositionClosed
			delete(m.positions, symbol)
			delete(m.stopTriggers, symbol)
			m.emit(Event{Kind: EventPositionClosed, Symbol: symbol, Position: pos})
		}
	}

	for symbol, bp := range bySymbol {
		if bp.Qty == 0 {
			continue
		}
		if _, ok := m.positions[symbol]; ok {
			continue
		}
		_, _, side, err := types.ParseSymbol(symbol)
		if err != nil {
			m.logger.Warn("[RECONCILE] adopted position has unparseable symbol", "symbol", symbol)
			continue
		}
		pos := &types.Position{
			Symbol:     symbol,
			Side:       side,
			Qty:        bp.Qty,
			EntryPrice: bp.AvgPrice,
			EntryTs:    time.Now(),
			Status:     types.PositionActive,
		}
		m.positions[symbol] = pos
		m.logger.Warn("[RECONCILE] adopted untracked broker position", "symbol", symbol, "qty", bp.Qty)
		m.emit(Event{Kind: EventPositionOpened, Symbol: symbol, Position: pos})
		m.stopTriggers[symbol] = bp.AvgPrice
		m.armProtectiveStop(ctx, pos)
	}
}

// FlattenAll cancels every pending entry and submits market covers for
// every open position. Called by the Coordinator on a RiskGovernor halt,
// FORCE_EXIT_TIME, or shutdown.
func (m *Manager) FlattenAll(ctx context.Context) {
	m.enqueue(func() {
		for side, slot := range m.pending {
			m.cancel(ctx, side, slot.entry.OrderID)
		}
		for symbol, pos := range m.positions {
			if pos.Status != types.PositionActive {
				continue
			}
			req := types.PlaceRequest{
				Symbol:      symbol,
				Transaction: types.TransactionBuy,
				Kind:        types.OrderMarket,
				Quantity:    pos.Qty,
				Product:     types.ProductIntraday,
			}
			orderID, err := m.client.Place(ctx, req)
			if err != nil {
				m.logger.Error("[RISK] flatten cover failed", "symbol", symbol, "error", err)
				continue
			}
			m.logger.Warn("[RISK] flatten cover placed", "symbol", symbol, "order_id", orderID)
			if pos.ExitSLOrderID != "" {
				_ = m.client.Cancel(ctx, pos.ExitSLOrderID)
			}
		}
	})
}

// SLFailureStreak reports the consecutive protective-stop arming failure
// count for RiskGovernor's MAX_SL_FAILURE_COUNT check.
func (m *Manager) SLFailureStreak() int { return m.slFailStreak }

// StopTriggerFor reports the protective-stop trigger price armed for an
// open position's symbol, for the dashboard snapshot.
func (m *Manager) StopTriggerFor(symbol string) (decimal.Decimal, bool) {
	trigger, ok := m.stopTriggers[symbol]
	return trigger, ok
}

func (m *Manager) emit(ev Event) {
	select {
	case m.eventCh <- ev:
	default:
		m.logger.Warn("order event channel saturated, dropping event", "kind", ev.Kind)
	}
}
