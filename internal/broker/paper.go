// paper.go is an in-memory fill simulator used for dry runs. It implements
// the same Client interface as Live, generalized from the teacher's DryRun
// short-circuit branches into a full standalone implementation: resting
// orders are matched against ticks fed in by the Coordinator via Ingest.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"niftyshort/pkg/types"
)

type paperOrder struct {
	order     types.BrokerOrder
	req       types.PlaceRequest
	price     decimal.Decimal
	trigger   *decimal.Decimal
	triggered bool
}

// Paper is a broker.Client that never touches the network.
type Paper struct {
	mu        sync.Mutex
	orders    map[string]*paperOrder
	positions map[string]*types.BrokerPosition
	nextID    int
	ticks     chan types.Tick
	logger    *slog.Logger
}

// NewPaper constructs a fresh paper broker with no resting orders or positions.
func NewPaper(logger *slog.Logger) *Paper {
	return &Paper{
		orders:    make(map[string]*paperOrder),
		positions: make(map[string]*types.BrokerPosition),
		ticks:     make(chan types.Tick),
		logger:    logger.With("component", "broker_paper"),
	}
}

func (p *Paper) Place(ctx context.Context, req types.PlaceRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := fmt.Sprintf("PAPER-%d", p.nextID)

	o := &paperOrder{
		order: types.BrokerOrder{
			OrderID: id,
			Symbol:  req.Symbol,
			Status:  types.BrokerOrderOpen,
		},
		req:     req,
		price:   req.Price,
		trigger: req.Trigger,
	}

	if req.Kind == types.OrderMarket {
		o.order.Status = types.BrokerOrderComplete
		o.order.FilledQty = req.Quantity
		avg := req.Price
		o.order.AvgPrice = &avg
		p.applyFillLocked(req, req.Price)
	}

	p.orders[id] = o
	p.logger.Info("paper order placed", "order_id", id, "symbol", req.Symbol, "kind", req.Kind, "price", req.Price.String())
	return id, nil
}

func (p *Paper) Modify(ctx context.Context, orderID string, price, trigger *decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return NewError(KindPermanent, "modify", fmt.Errorf("unknown order %s", orderID))
	}
	if o.order.Status != types.BrokerOrderOpen {
		return NewError(KindPermanent, "modify", fmt.Errorf("order %s not open", orderID))
	}
	if price != nil {
		o.price = *price
	}
	if trigger != nil {
		o.trigger = trigger
	}
	return nil
}

func (p *Paper) Cancel(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return NewError(KindPermanent, "cancel", fmt.Errorf("unknown order %s", orderID))
	}
	if o.order.Status == types.BrokerOrderOpen {
		o.order.Status = types.BrokerOrderCancelled
	}
	return nil
}

func (p *Paper) Orderbook(ctx context.Context) ([]types.BrokerOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]types.BrokerOrder, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, o.order)
	}
	return out, nil
}

func (p *Paper) Positionbook(ctx context.Context) ([]types.BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]types.BrokerPosition, 0, len(p.positions))
	for _, pos := range p.positions {
		if pos.Qty != 0 {
			out = append(out, *pos)
		}
	}
	return out, nil
}

func (p *Paper) Ticks() <-chan types.Tick { return p.ticks }

// Run blocks until ctx is cancelled. Paper mode still sources real ticks
// through FeedSupervisor's two configured sources; this stream is unused
// but present to satisfy the Client interface.
func (p *Paper) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *Paper) Close() error { return nil }

// Ingest feeds a live tick to the simulator so resting orders can be
// matched. Called by the Coordinator once per tick when running in paper
// mode.
func (p *Paper) Ingest(tick types.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, o := range p.orders {
		if o.order.Symbol != tick.Symbol || o.order.Status != types.BrokerOrderOpen {
			continue
		}

		switch o.req.Kind {
		case types.OrderLimit:
			if o.req.Transaction == types.TransactionSell && tick.LastPrice.LessThanOrEqual(o.price) {
				p.fillLocked(o, o.price)
			}
		case types.OrderStopLimit:
			if !o.triggered && o.trigger != nil {
				if o.req.Transaction == types.TransactionBuy && tick.LastPrice.GreaterThanOrEqual(*o.trigger) {
					o.triggered = true
				}
			}
			if o.triggered {
				p.fillLocked(o, o.price)
			}
		}
	}
}

func (p *Paper) fillLocked(o *paperOrder, fillPrice decimal.Decimal) {
	o.order.Status = types.BrokerOrderComplete
	o.order.FilledQty = o.req.Quantity
	avg := fillPrice
	o.order.AvgPrice = &avg
	p.applyFillLocked(o.req, fillPrice)
	p.logger.Info("paper order filled", "order_id", o.order.OrderID, "symbol", o.order.Symbol, "price", fillPrice.String())
}

func (p *Paper) applyFillLocked(req types.PlaceRequest, fillPrice decimal.Decimal) {
	pos, ok := p.positions[req.Symbol]
	if !ok {
		pos = &types.BrokerPosition{Symbol: req.Symbol}
		p.positions[req.Symbol] = pos
	}
	switch req.Transaction {
	case types.TransactionSell:
		totalCost := pos.AvgPrice.Mul(decimal.NewFromInt(int64(pos.Qty))).Add(fillPrice.Mul(decimal.NewFromInt(int64(req.Quantity))))
		pos.Qty += req.Quantity
		if pos.Qty != 0 {
			pos.AvgPrice = totalCost.Div(decimal.NewFromInt(int64(pos.Qty)))
		}
	case types.TransactionBuy:
		pos.Qty -= req.Quantity
		if pos.Qty <= 0 {
			pos.Qty = 0
			pos.AvgPrice = decimal.Zero
		}
	}
}
