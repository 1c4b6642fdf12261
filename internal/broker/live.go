package broker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"niftyshort/internal/config"
	"niftyshort/pkg/types"
)

// Live is a broker.Client backed by REST (resty) and a WebSocket tick
// stream (gorilla/websocket). Retries are the caller's responsibility
// (OrderManager owns the place/modify/cancel retry policy); Live classifies
// each failure into an ErrKind and returns immediately.
type Live struct {
	cfg   config.BrokerConfig
	http  *resty.Client
	auth  *Auth
	rl    *RateLimiter
	feed  *tickStream
	logger *slog.Logger
}

// NewLive constructs a live broker client. Call Run to start its WebSocket
// tick stream before reading Ticks().
func NewLive(cfg config.BrokerConfig, logger *slog.Logger) *Live {
	httpClient := resty.New().SetBaseURL(cfg.BaseURL).SetTimeout(10_000_000_000)
	return &Live{
		cfg:    cfg,
		http:   httpClient,
		auth:   NewAuth(cfg, httpClient),
		rl:     NewRateLimiter(),
		feed:   newTickStream(cfg.WSOrderURL, logger),
		logger: logger.With("component", "broker_live"),
	}
}

func (l *Live) authorize(ctx context.Context, req *resty.Request) error {
	tok, err := l.auth.SessionToken(ctx)
	if err != nil {
		return err
	}
	req.SetHeader("Authorization", "Bearer "+tok)
	return nil
}

func (l *Live) classify(resp *resty.Response, err error) error {
	if err != nil {
		return NewError(KindTransient, "http", err)
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		l.auth.Invalidate()
		return NewError(KindAuth, "http", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	case resp.StatusCode() >= 500:
		return NewError(KindTransient, "http", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	case resp.IsError():
		return NewError(KindPermanent, "http", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	return nil
}

func (l *Live) Place(ctx context.Context, req types.PlaceRequest) (string, error) {
	if err := l.rl.Place.Wait(ctx); err != nil {
		return "", NewError(KindTransient, "place", err)
	}

	var result struct {
		OrderID string `json:"order_id"`
	}
	r := l.http.R().SetContext(ctx)
	if err := l.authorize(ctx, r); err != nil {
		return "", err
	}
	body := map[string]any{
		"tradingsymbol": req.Symbol,
		"transaction_type": req.Transaction,
		"order_type":       req.Kind,
		"price":            req.Price.String(),
		"quantity":         req.Quantity,
		"product":          req.Product,
	}
	if req.Trigger != nil {
		body["trigger_price"] = req.Trigger.String()
	}
	resp, err := r.SetBody(body).SetResult(&result).Post("/orders")
	if err := l.classify(resp, err); err != nil {
		return "", err
	}
	return result.OrderID, nil
}

func (l *Live) Modify(ctx context.Context, orderID string, price, trigger *decimal.Decimal) error {
	if err := l.rl.Modify.Wait(ctx); err != nil {
		return NewError(KindTransient, "modify", err)
	}
	body := map[string]any{}
	if price != nil {
		body["price"] = price.String()
	}
	if trigger != nil {
		body["trigger_price"] = trigger.String()
	}
	r := l.http.R().SetContext(ctx)
	if err := l.authorize(ctx, r); err != nil {
		return err
	}
	resp, err := r.SetBody(body).Put("/orders/" + orderID)
	return l.classify(resp, err)
}

func (l *Live) Cancel(ctx context.Context, orderID string) error {
	if err := l.rl.Cancel.Wait(ctx); err != nil {
		return NewError(KindTransient, "cancel", err)
	}
	r := l.http.R().SetContext(ctx)
	if err := l.authorize(ctx, r); err != nil {
		return err
	}
	resp, err := r.Delete("/orders/" + orderID)
	return l.classify(resp, err)
}

func (l *Live) Orderbook(ctx context.Context) ([]types.BrokerOrder, error) {
	if err := l.rl.Orderbook.Wait(ctx); err != nil {
		return nil, NewError(KindTransient, "orderbook", err)
	}
	var result []types.BrokerOrder
	r := l.http.R().SetContext(ctx).SetQueryParam("strategy", l.cfg.Strategy)
	if err := l.authorize(ctx, r); err != nil {
		return nil, err
	}
	resp, err := r.SetResult(&result).Get("/orders")
	if err := l.classify(resp, err); err != nil {
		return nil, err
	}
	return result, nil
}

func (l *Live) Positionbook(ctx context.Context) ([]types.BrokerPosition, error) {
	if err := l.rl.Positionbook.Wait(ctx); err != nil {
		return nil, NewError(KindTransient, "positionbook", err)
	}
	var result []types.BrokerPosition
	r := l.http.R().SetContext(ctx).SetQueryParam("strategy", l.cfg.Strategy)
	if err := l.authorize(ctx, r); err != nil {
		return nil, err
	}
	resp, err := r.SetResult(&result).Get("/positions")
	if err := l.classify(resp, err); err != nil {
		return nil, err
	}
	return result, nil
}

func (l *Live) Ticks() <-chan types.Tick { return l.feed.ticks }

func (l *Live) Run(ctx context.Context) error { return l.feed.Run(ctx) }

func (l *Live) Close() error { return l.feed.Close() }
