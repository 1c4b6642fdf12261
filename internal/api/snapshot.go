package api

import (
	"time"

	"niftyshort/internal/config"
)

// MarketSnapshotProvider provides read-only access to engine state for the
// dashboard. Implemented by the Coordinator.
type MarketSnapshotProvider interface {
	GetPositionsSnapshot() []PositionStatus
	GetRiskSnapshot() RiskSnapshot
	GetFeedStatus() FeedStatus
	GetSessionR() float64
	DashboardEvents() <-chan DashboardEvent
}

// BuildSnapshot aggregates state from all components into a dashboard snapshot.
func BuildSnapshot(provider MarketSnapshotProvider, cfg config.Config) DashboardSnapshot {
	return DashboardSnapshot{
		Timestamp: time.Now(),
		Positions: provider.GetPositionsSnapshot(),
		SessionR:  provider.GetSessionR(),
		Risk:      provider.GetRiskSnapshot(),
		Feed:      provider.GetFeedStatus(),
		Config:    NewConfigSummary(cfg),
	}
}
