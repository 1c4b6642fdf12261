package api

import "time"

// DashboardEvent is the envelope for every event pushed to the dashboard.
type DashboardEvent struct {
	Type      string      `json:"type"` // "snapshot", "swing", "candidate", "order", "fill", "position", "risk"
	Timestamp time.Time   `json:"timestamp"`
	Symbol    string      `json:"symbol,omitempty"`
	Data      interface{} `json:"data"`
}

// SwingEvent reports a swing confirmation, update, or break.
type SwingEvent struct {
	Symbol string  `json:"symbol"`
	Kind   string  `json:"kind"` // "confirmed", "updated", "broken"
	Side   string  `json:"side"` // "High" or "Low"
	Price  float64 `json:"price"`
}

// CandidateEvent reports a static or dynamic candidate gating decision.
type CandidateEvent struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Qualified bool    `json:"qualified"`
	Reason    string  `json:"reason,omitempty"`
	SLPercent float64 `json:"sl_percent,omitempty"`
}

// NewCandidateEvent builds a CandidateEvent from a Stage-1 gating decision.
func NewCandidateEvent(symbol, side string, qualified bool, reason string) CandidateEvent {
	return CandidateEvent{Symbol: symbol, Side: side, Qualified: qualified, Reason: reason}
}

// OrderEvent reports an order lifecycle transition.
type OrderEvent struct {
	OrderID string  `json:"order_id"`
	Symbol  string  `json:"symbol"`
	Side    string  `json:"side"`
	Status  string  `json:"status"` // "order_placed", "order_modified", "order_cancelled", "order_filled", "degraded_stop"
	Price   float64 `json:"price"`
	Qty     int     `json:"qty"`
}

// PositionEvent reports a position opening or closing.
type PositionEvent struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Status     string  `json:"status"` // "opened", "closed"
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price,omitempty"`
	RMultiple  float64 `json:"r_multiple,omitempty"`
}

// RiskEvent reports a session halt latch trip.
type RiskEvent struct {
	Reason   string  `json:"reason"`
	SessionR float64 `json:"session_r"`
}

// NewOrderEvent builds an order lifecycle event.
func NewOrderEvent(orderID, symbol, side, status string, price float64, qty int) OrderEvent {
	return OrderEvent{OrderID: orderID, Symbol: symbol, Side: side, Status: status, Price: price, Qty: qty}
}

// NewPositionEvent builds a position lifecycle event.
func NewPositionEvent(symbol, side, status string, entryPrice, exitPrice, rMultiple float64) PositionEvent {
	return PositionEvent{Symbol: symbol, Side: side, Status: status, EntryPrice: entryPrice, ExitPrice: exitPrice, RMultiple: rMultiple}
}

// NewRiskEvent builds a risk halt event.
func NewRiskEvent(reason string, sessionR float64) RiskEvent {
	return RiskEvent{Reason: reason, SessionR: sessionR}
}
