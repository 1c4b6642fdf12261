// Package feed implements FeedSupervisor: a dual-source tick feed with
// automatic failover, exposing a single merged tick stream upward so the
// rest of the decision pipeline never knows which source is live.
package feed

import (
	"context"
	"log/slog"
	"time"

	"niftyshort/pkg/types"
)

// Source is the narrow surface FeedSupervisor needs from a tick stream.
// broker.Client satisfies it.
type Source interface {
	Ticks() <-chan types.Tick
	Run(ctx context.Context) error
	Close() error
}

// Notifier receives state-change notifications, e.g. failover events.
type Notifier interface {
	Notify(kind, message string)
}

type activeSource string

const (
	sourcePrimary activeSource = "primary"
	sourceBackup  activeSource = "backup"
)

// Supervisor is the FeedSupervisor component.
type Supervisor struct {
	primary Source
	backup  Source

	staleThreshold   time.Duration
	switchbackStable time.Duration

	active            activeSource
	lastPrimaryTickTs time.Time
	primaryLiveSince  time.Time

	out      chan types.Tick
	notifier Notifier
	logger   *slog.Logger
}

// New constructs a Supervisor starting on the primary source.
func New(primary, backup Source, staleThreshold, switchbackStable time.Duration, notifier Notifier, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		primary:          primary,
		backup:           backup,
		staleThreshold:   staleThreshold,
		switchbackStable: switchbackStable,
		active:           sourcePrimary,
		out:              make(chan types.Tick, 1024),
		notifier:         notifier,
		logger:           logger.With("component", "feed"),
	}
}

// Ticks returns the merged, failover-aware tick stream.
func (s *Supervisor) Ticks() <-chan types.Tick { return s.out }

// Run drives both sources' I/O loops and the merge/failover state machine.
// Blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- s.primary.Run(ctx) }()
	go func() { errCh <- s.backup.Run(ctx) }()

	checkTicker := time.NewTicker(time.Second)
	defer checkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-s.primary.Ticks():
			s.onPrimaryTick(tick)
		case tick := <-s.backup.Ticks():
			s.onBackupTick(tick)
		case <-checkTicker.C:
			s.evaluateTransitions()
		case err := <-errCh:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("feed source exited", "error", err)
		}
	}
}

func (s *Supervisor) Close() error {
	if err := s.primary.Close(); err != nil {
		return err
	}
	return s.backup.Close()
}

func (s *Supervisor) onPrimaryTick(tick types.Tick) {
	now := time.Now()
	if s.lastPrimaryTickTs.IsZero() || now.Sub(s.lastPrimaryTickTs) > s.staleThreshold {
		s.primaryLiveSince = now
	}
	s.lastPrimaryTickTs = now

	if s.active == sourcePrimary {
		s.forward(tick, sourcePrimary)
	}
}

func (s *Supervisor) onBackupTick(tick types.Tick) {
	if s.active == sourceBackup {
		s.forward(tick, sourceBackup)
	}
}

func (s *Supervisor) forward(tick types.Tick, src activeSource) {
	tick.Source = string(src)
	select {
	case s.out <- tick:
	default:
		s.logger.Warn("feed output channel full, dropping tick", "symbol", tick.Symbol)
	}
}

func (s *Supervisor) evaluateTransitions() {
	now := time.Now()

	switch s.active {
	case sourcePrimary:
		if !s.lastPrimaryTickTs.IsZero() && now.Sub(s.lastPrimaryTickTs) > s.staleThreshold {
			s.active = sourceBackup
			s.logger.Warn("failing over to backup feed", "stale_for", now.Sub(s.lastPrimaryTickTs))
			s.notify("feed_failover", "primary tick feed stale, switched to backup")
		}
	case sourceBackup:
		if !s.primaryLiveSince.IsZero() && now.Sub(s.primaryLiveSince) >= s.switchbackStable &&
			!s.lastPrimaryTickTs.IsZero() && now.Sub(s.lastPrimaryTickTs) <= s.staleThreshold {
			s.active = sourcePrimary
			s.logger.Info("switching back to primary feed", "stable_for", now.Sub(s.primaryLiveSince))
			s.notify("feed_switchback", "primary tick feed stable, switched back from backup")
			// Restart the stability clock at switchback.
			s.primaryLiveSince = now
		}
	}
}

func (s *Supervisor) notify(kind, message string) {
	if s.notifier != nil {
		s.notifier.Notify(kind, message)
	}
}

// ActiveSource reports which source is currently forwarded, for dashboard/diagnostics.
func (s *Supervisor) ActiveSource() string { return string(s.active) }
