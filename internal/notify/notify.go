// Package notify implements the pluggable alert channel and its
// per-error-kind throttling, grounded on the teacher's flow_tracker-style
// rate bookkeeping (a last-sent timestamp keyed by event kind) rather
// than any one-shot alert call.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Channel delivers one already-throttled notification.
type Channel interface {
	Send(ctx context.Context, kind, message string) error
}

// LogChannel is the default channel: it only logs. Used when no webhook is
// configured, and in tests.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel constructs a Channel that just logs at warn level.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger.With("component", "notify_log")}
}

func (c *LogChannel) Send(ctx context.Context, kind, message string) error {
	c.logger.Warn("alert", "kind", kind, "message", message)
	return nil
}

// WebhookChannel posts each notification as JSON to a configured URL.
type WebhookChannel struct {
	http *resty.Client
	url  string
}

// NewWebhookChannel constructs a Channel backed by an HTTP webhook.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{http: resty.New().SetTimeout(5 * time.Second), url: url}
}

func (c *WebhookChannel) Send(ctx context.Context, kind, message string) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(map[string]any{
		"kind":      kind,
		"message":   message,
		"ts_ms":     time.Now().UnixMilli(),
	}).Post(c.url)
	if err != nil {
		return fmt.Errorf("notify webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notify webhook: status %d", resp.StatusCode())
	}
	return nil
}

// startupInterval and defaultInterval bound how often a given alert kind
// may fire, per spec: startup 1/hour, websocket/broker 30-60 min (we pick
// the 30-minute end of that range as the single configured value).
const (
	startupInterval = time.Hour
	defaultInterval = 30 * time.Minute
)

// Throttler wraps a Channel and suppresses repeat notifications of the
// same kind within its interval. It satisfies feed.Notifier and any other
// component's Notifier interface.
type Throttler struct {
	channel Channel
	mu      sync.Mutex
	last    map[string]time.Time
	logger  *slog.Logger
}

// NewThrottler constructs a Throttler delivering through channel.
func NewThrottler(channel Channel, logger *slog.Logger) *Throttler {
	return &Throttler{
		channel: channel,
		last:    make(map[string]time.Time),
		logger:  logger.With("component", "notify"),
	}
}

// Notify delivers kind/message through the channel unless it was already
// sent within its throttle interval.
func (t *Throttler) Notify(kind, message string) {
	t.mu.Lock()
	interval := intervalFor(kind)
	now := time.Now()
	last, seen := t.last[kind]
	if seen && now.Sub(last) < interval {
		t.mu.Unlock()
		return
	}
	t.last[kind] = now
	t.mu.Unlock()

	if err := t.channel.Send(context.Background(), kind, message); err != nil {
		t.logger.Error("notification delivery failed", "kind", kind, "error", err)
	}
}

func intervalFor(kind string) time.Duration {
	if kind == "startup" {
		return startupInterval
	}
	return defaultInterval
}
