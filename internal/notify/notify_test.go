package notify

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

type countingChannel struct {
	mu    sync.Mutex
	sends int
}

func (c *countingChannel) Send(ctx context.Context, kind, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends++
	return nil
}

func (c *countingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sends
}

func TestThrottlerSuppressesRepeatsWithinInterval(t *testing.T) {
	t.Parallel()
	ch := &countingChannel{}
	th := NewThrottler(ch, slog.Default())

	th.Notify("feed_failover", "primary stale")
	th.Notify("feed_failover", "primary stale again")
	th.Notify("feed_failover", "and again")

	if got := ch.count(); got != 1 {
		t.Fatalf("expected exactly 1 delivered notification, got %d", got)
	}
}

func TestThrottlerTracksKindsIndependently(t *testing.T) {
	t.Parallel()
	ch := &countingChannel{}
	th := NewThrottler(ch, slog.Default())

	th.Notify("feed_failover", "a")
	th.Notify("sl_failure_streak", "b")

	if got := ch.count(); got != 2 {
		t.Fatalf("expected 2 delivered notifications for distinct kinds, got %d", got)
	}
}
