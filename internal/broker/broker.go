// Package broker adapts the decision pipeline to a broker gateway over
// REST+WebSocket. Client is the interface the rest of the engine consumes;
// Live implements it against a real broker, Paper simulates fills in
// memory for dry runs.
package broker

import (
	"context"

	"github.com/shopspring/decimal"

	"niftyshort/pkg/types"
)

// Client is the contract the decision pipeline consumes (spec'd external
// interface). One order_id is always returned from Place; Modify/Cancel
// operate on it.
type Client interface {
	Place(ctx context.Context, req types.PlaceRequest) (orderID string, err error)
	Modify(ctx context.Context, orderID string, price, trigger *decimal.Decimal) error
	Cancel(ctx context.Context, orderID string) error
	Orderbook(ctx context.Context) ([]types.BrokerOrder, error)
	Positionbook(ctx context.Context) ([]types.BrokerPosition, error)
	// Ticks returns this client's tick stream, usable as one of
	// FeedSupervisor's two independent sources.
	Ticks() <-chan types.Tick
	Run(ctx context.Context) error
	Close() error
}
