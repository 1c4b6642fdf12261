// Package autodetect resolves the at-the-money strike and current weekly
// expiry at startup, when the operator passes --auto instead of an
// explicit anchor, and builds the ±N strike subscription window.
package autodetect

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"niftyshort/internal/config"
	"niftyshort/pkg/types"
)

// Result is the auto-detector's startup response.
type Result struct {
	ATMStrike   int    `json:"at_the_money_strike"`
	ExpiryToken string `json:"expiry_token"`
}

// Client queries the auto-detector service.
type Client struct {
	http *resty.Client
}

// New constructs a Client against cfg.BaseURL.
func New(cfg config.AutodetectConfig) *Client {
	return &Client{http: resty.New().SetBaseURL(cfg.BaseURL).SetTimeout(10_000_000_000)}
}

// Detect fetches the current ATM strike and expiry token.
func (c *Client) Detect(ctx context.Context) (Result, error) {
	var result Result
	resp, err := c.http.R().SetContext(ctx).SetResult(&result).Get("/atm")
	if err != nil {
		return Result{}, fmt.Errorf("autodetect: %w", err)
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("autodetect: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

// SymbolWindow builds the subscription list for this result: ±n strikes
// around the detected ATM, both sides, at the given strike interval.
func (r Result) SymbolWindow(n, interval int) []string {
	return types.SymbolWindowFromToken(r.ExpiryToken, r.ATMStrike, n, interval)
}
