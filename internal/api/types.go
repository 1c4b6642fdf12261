package api

import (
	"time"

	"niftyshort/internal/config"
)

// DashboardSnapshot represents the complete dashboard state.
type DashboardSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Positions []PositionStatus `json:"positions"`
	SessionR  float64          `json:"session_r"`

	Risk   RiskSnapshot  `json:"risk"`
	Feed   FeedStatus    `json:"feed"`
	Config ConfigSummary `json:"config"`
}

// PositionStatus represents one open or just-closed short position.
type PositionStatus struct {
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"` // "CE" or "PE"
	Status       string    `json:"status"`
	EntryPrice   float64   `json:"entry_price"`
	Quantity     int       `json:"quantity"`
	StopTrigger  float64   `json:"stop_trigger"`
	ExitPrice    float64   `json:"exit_price,omitempty"`
	RMultiple    float64   `json:"r_multiple,omitempty"`
	DegradedStop bool      `json:"degraded_stop"`
	OpenedAt     time.Time `json:"opened_at"`
}

// RiskSnapshot represents the session-level risk governor state.
type RiskSnapshot struct {
	Halted            bool    `json:"halted"`
	HaltReason        string  `json:"halt_reason,omitempty"`
	SessionR          float64 `json:"session_r"`
	DailyTargetR      float64 `json:"daily_target_r"`
	DailyStopR        float64 `json:"daily_stop_r"`
	OpenPositions     int     `json:"open_positions"`
	MaxPositions      int     `json:"max_positions"`
	OpenCEPositions   int     `json:"open_ce_positions"`
	MaxCEPositions    int     `json:"max_ce_positions"`
	OpenPEPositions   int     `json:"open_pe_positions"`
	MaxPEPositions    int     `json:"max_pe_positions"`
	SLFailureStreak   int     `json:"sl_failure_streak"`
	MaxSLFailureCount int     `json:"max_sl_failure_count"`
}

// FeedStatus represents the tick feed supervisor's current state.
type FeedStatus struct {
	ActiveSource    string    `json:"active_source"`
	LastPrimaryTick time.Time `json:"last_primary_tick,omitempty"`
}

// ConfigSummary is a redacted view of the running configuration.
type ConfigSummary struct {
	Mode string `json:"mode"`

	RValue            float64 `json:"r_value"`
	LotSize           int     `json:"lot_size"`
	MaxLotsPerPosition int    `json:"max_lots_per_position"`

	MinEntryPrice  float64 `json:"min_entry_price"`
	MaxEntryPrice  float64 `json:"max_entry_price"`
	MinVWAPPremium float64 `json:"min_vwap_premium"`
	TargetSLPoints float64 `json:"target_sl_points"`

	TickSize     float64 `json:"tick_size"`
	ModThreshold float64 `json:"mod_threshold"`

	CutoffTime string `json:"cutoff_time"`
	Timezone   string `json:"timezone"`
}

// NewConfigSummary builds a ConfigSummary from the running configuration.
func NewConfigSummary(cfg config.Config) ConfigSummary {
	return ConfigSummary{
		Mode: cfg.Mode,

		RValue:             cfg.Risk.RValue,
		LotSize:            cfg.Risk.LotSize,
		MaxLotsPerPosition: cfg.Risk.MaxLotsPerPosition,

		MinEntryPrice:  cfg.Filter.MinEntryPrice,
		MaxEntryPrice:  cfg.Filter.MaxEntryPrice,
		MinVWAPPremium: cfg.Filter.MinVWAPPremium,
		TargetSLPoints: cfg.Filter.TargetSLPoints,

		TickSize:     cfg.Order.TickSize,
		ModThreshold: cfg.Order.ModThreshold,

		CutoffTime: cfg.Session.CutoffTime,
		Timezone:   cfg.Session.Timezone,
	}
}
