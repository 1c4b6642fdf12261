// Package types defines the wire and domain types shared across the shorting
// engine: ticks and bars ingested from the feed, swings and candidates
// produced by the decision pipeline, and the broker wire shapes consumed by
// internal/broker.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies a NIFTY option contract side.
type Side string

const (
	CE Side = "CE" // call
	PE Side = "PE" // put
)

func (s Side) Opposite() Side {
	if s == CE {
		return PE
	}
	return CE
}

// Tick is a single trade/quote update for one symbol.
type Tick struct {
	Symbol      string
	TsMs        int64
	LastPrice   decimal.Decimal
	VolumeDelta int64 // cumulative-session volume as reported by the source
	Source      string
}

// Bar is an immutable one-minute OHLCV candle, emitted on minute rollover.
type Bar struct {
	Symbol        string
	MinuteStartTs int64
	Open          decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Close         decimal.Decimal
	Volume        int64
	VWAPAtClose   decimal.Decimal
	TickCount     int
}

// TypicalPrice is (high+low+close)/3, used for session VWAP accumulation.
func (b Bar) TypicalPrice() decimal.Decimal {
	return b.High.Add(b.Low).Add(b.Close).Div(decimal.NewFromInt(3))
}

// SwingKind distinguishes confirmed swing highs from swing lows.
type SwingKind string

const (
	SwingHigh SwingKind = "High"
	SwingLow  SwingKind = "Low"
)

// Swing is a confirmed local extremum. VWAPAtFormation is frozen the moment
// the swing is first confirmed and is never touched by later in-place
// updates to Price.
type Swing struct {
	Symbol           string
	Kind             SwingKind
	Price            decimal.Decimal
	FormedAtBarIndex int
	VWAPAtFormation  decimal.Decimal
}

// SwingEventKind enumerates the three events SwingDetector can emit for a
// single closed bar.
type SwingEventKind string

const (
	SwingEventNew     SwingEventKind = "new_swing"
	SwingEventUpdated SwingEventKind = "swing_updated"
	SwingEventBroken  SwingEventKind = "swing_broken"
)

// SwingEvent is emitted by SwingDetector.OnBarClose.
type SwingEvent struct {
	Kind        SwingEventKind
	Symbol      string
	SwingKind   SwingKind
	Swing       Swing
	BreakingBar *Bar
}

// StaticCandidate is produced once a swing low passes the Stage-1 static
// gate. Side, EntryPrice and VWAPAtFormation never change for the lifetime
// of the candidate, even across in-place updates of the underlying swing.
type StaticCandidate struct {
	Symbol          string
	Side            Side
	SwingRef        Swing
	EntryPrice      decimal.Decimal
	VWAPAtFormation decimal.Decimal
}

// DynamicCandidate is the re-derived, per-tick evaluation of a
// StaticCandidate through the Stage-2 gate.
type DynamicCandidate struct {
	Static                StaticCandidate
	HighestHighSinceSwing decimal.Decimal
	SLTrigger             decimal.Decimal
	SLPoints              decimal.Decimal
	SLPercent             decimal.Decimal
	Lots                  int
	Quantity              int
	ActualR               decimal.Decimal
}

func (d DynamicCandidate) Symbol() string { return d.Static.Symbol }
func (d DynamicCandidate) Side() Side     { return d.Static.Side }

// PendingEntry is an entry order resting with the broker, at most one per
// side at any moment.
type PendingEntry struct {
	Side          Side
	Symbol        string
	OrderID       string
	LimitPrice    decimal.Decimal
	TriggerPrice  decimal.Decimal
	Quantity      int
	PlacedAt      time.Time
	CorrelationID string
}

// PositionStatus tracks a position through its exit.
type PositionStatus string

const (
	PositionActive  PositionStatus = "Active"
	PositionClosing PositionStatus = "Closing"
	PositionClosed  PositionStatus = "Closed"
)

// Position is a filled short entry, carried until its protective stop (or a
// risk-triggered cover) closes it.
type Position struct {
	Symbol         string
	Side           Side
	Qty            int
	EntryPrice     decimal.Decimal
	EntryTs        time.Time
	ExitSLOrderID  string
	ExitPrice      *decimal.Decimal
	RealizedPnL    *decimal.Decimal
	RMultiple      *decimal.Decimal
	Status         PositionStatus
	DegradedNoStop bool // protective stop could not be armed after retries
}

// OrderKind is the broker order type.
type OrderKind string

const (
	OrderLimit     OrderKind = "limit"
	OrderStopLimit OrderKind = "stop_limit"
	OrderMarket    OrderKind = "market"
)

// OrderTransaction is the broker transaction direction.
type OrderTransaction string

const (
	TransactionSell OrderTransaction = "SELL"
	TransactionBuy  OrderTransaction = "BUY"
)

// Product is the broker product/margin type. The engine only ever trades
// intraday (auto square-off) product.
type Product string

const ProductIntraday Product = "MIS"

// BrokerOrderStatus mirrors the broker's order lifecycle states.
type BrokerOrderStatus string

const (
	BrokerOrderOpen      BrokerOrderStatus = "OPEN"
	BrokerOrderComplete  BrokerOrderStatus = "COMPLETE"
	BrokerOrderRejected  BrokerOrderStatus = "REJECTED"
	BrokerOrderCancelled BrokerOrderStatus = "CANCELLED"
)

// BrokerOrder is a single row of the broker's order book.
type BrokerOrder struct {
	OrderID   string
	Symbol    string
	Status    BrokerOrderStatus
	FilledQty int
	AvgPrice  *decimal.Decimal
}

// BrokerPosition is a single row of the broker's position book.
type BrokerPosition struct {
	Symbol   string
	Qty      int
	AvgPrice decimal.Decimal
}

// PlaceRequest is the broker adapter's place() argument set.
type PlaceRequest struct {
	Symbol        string
	Transaction   OrderTransaction
	Kind          OrderKind
	Price         decimal.Decimal
	Trigger       *decimal.Decimal
	Quantity      int
	Product       Product
	CorrelationID string
}
