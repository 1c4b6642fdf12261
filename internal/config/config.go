// Package config defines all configuration for the shorting engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via SHORT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Mode       string           `mapstructure:"mode"` // "paper" or "live"
	Session    SessionConfig    `mapstructure:"session"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Filter     FilterConfig     `mapstructure:"filter"`
	Order      OrderConfig      `mapstructure:"order"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Autodetect AutodetectConfig `mapstructure:"autodetect"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
	Timers     TimersConfig     `mapstructure:"timers"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

// NotifyConfig points the alert throttler at an optional webhook. When
// WebhookURL is empty, alerts are only logged.
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// SessionConfig fixes the trading session's timezone and hard cutoff.
type SessionConfig struct {
	Timezone   string `mapstructure:"timezone"`    // IANA zone, e.g. "Asia/Kolkata"
	CutoffTime string `mapstructure:"cutoff_time"` // "HH:MM" session-local, e.g. "15:15"
}

// RiskConfig sizes positions in R and bounds session exposure.
type RiskConfig struct {
	RValue            float64 `mapstructure:"r_value"`
	LotSize           int     `mapstructure:"lot_size"`
	MaxLotsPerPosition int    `mapstructure:"max_lots_per_position"`
	MaxPositions      int     `mapstructure:"max_positions"`
	MaxCEPositions    int     `mapstructure:"max_ce_positions"`
	MaxPEPositions    int     `mapstructure:"max_pe_positions"`
	DailyTargetR      float64 `mapstructure:"daily_target_r"`
	DailyStopR        float64 `mapstructure:"daily_stop_r"`
	MaxSLFailureCount int     `mapstructure:"max_sl_failure_count"`
}

// FilterConfig tunes the three-stage continuous filter.
type FilterConfig struct {
	MinEntryPrice    float64 `mapstructure:"min_entry_price"`
	MaxEntryPrice    float64 `mapstructure:"max_entry_price"`
	MinVWAPPremium   float64 `mapstructure:"min_vwap_premium"`
	MinSLPercent     float64 `mapstructure:"min_sl_percent"`
	MaxSLPercent     float64 `mapstructure:"max_sl_percent"`
	TargetSLPoints   float64 `mapstructure:"target_sl_points"`
	MinBarTickCount  int     `mapstructure:"min_bar_tick_count"`
}

// OrderConfig governs entry/exit order placement and churn suppression.
type OrderConfig struct {
	TickSize           float64       `mapstructure:"tick_size"`
	ModThreshold       float64       `mapstructure:"mod_threshold"`
	ExitTriggerBuffer  float64       `mapstructure:"exit_trigger_buffer"`
	ExitLimitBuffer    float64       `mapstructure:"exit_limit_buffer"`
	PlaceMaxRetries    int           `mapstructure:"place_max_retries"`
	PlaceRetrySpacing  time.Duration `mapstructure:"place_retry_spacing"`
}

// FeedConfig points at the two independent tick sources.
type FeedConfig struct {
	PrimaryURL       string        `mapstructure:"primary_url"`
	BackupURL        string        `mapstructure:"backup_url"`
	StaleThreshold   time.Duration `mapstructure:"stale_threshold"`
	SwitchbackStable time.Duration `mapstructure:"switchback_stable"`
	StaleDataTimeout time.Duration `mapstructure:"stale_data_timeout"`
}

// BrokerConfig addresses the broker gateway. Credentials are only ever
// sourced from environment variables (see Load), never from YAML.
type BrokerConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	WSOrderURL   string `mapstructure:"ws_order_url"`
	ClientID     string `mapstructure:"-"`
	APIKey       string `mapstructure:"-"`
	APISecret    string `mapstructure:"-"`
	TOTPSecret   string `mapstructure:"-"`
	Strategy     string `mapstructure:"strategy"` // broker strategy/tag used to scope orderbook()/positionbook()
}

// String redacts credentials so BrokerConfig is safe to log with %+v.
func (b BrokerConfig) String() string {
	return fmt.Sprintf("BrokerConfig{BaseURL:%s WSOrderURL:%s Strategy:%s ClientID:%s APIKey:%s APISecret:%s TOTPSecret:%s}",
		b.BaseURL, b.WSOrderURL, b.Strategy, redact(b.ClientID), redact(b.APIKey), redact(b.APISecret), redact(b.TOTPSecret))
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// AutodetectConfig describes the ATM/expiry auto-detector, consumed once at
// startup when the operator passes --auto instead of an explicit anchor.
type AutodetectConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	StrikeWindow   int    `mapstructure:"strike_window"`   // N strikes either side of ATM
	StrikeInterval int    `mapstructure:"strike_interval"` // NIFTY weekly step, usually 50
}

// StoreConfig sets where the journal and snapshots are persisted.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the publish-only event hub.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// TimersConfig collects the Coordinator's periodic cadences.
type TimersConfig struct {
	OrderbookPollInterval     time.Duration `mapstructure:"orderbook_poll_interval"`
	PositionReconcileInterval time.Duration `mapstructure:"position_reconcile_interval"`
	RiskCheckInterval         time.Duration `mapstructure:"risk_check_interval"`
	HeartbeatInterval         time.Duration `mapstructure:"heartbeat_interval"`
	DataWatchdogInterval      time.Duration `mapstructure:"data_watchdog_interval"`
	ShutdownTimeout           time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads config from a YAML file with env var overrides.
// Credentials always come from env: SHORT_BROKER_CLIENT_ID, SHORT_BROKER_API_KEY,
// SHORT_BROKER_API_SECRET, SHORT_BROKER_TOTP_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SHORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Broker.ClientID = os.Getenv("SHORT_BROKER_CLIENT_ID")
	cfg.Broker.APIKey = os.Getenv("SHORT_BROKER_API_KEY")
	cfg.Broker.APISecret = os.Getenv("SHORT_BROKER_API_SECRET")
	cfg.Broker.TOTPSecret = os.Getenv("SHORT_BROKER_TOTP_SECRET")

	if cfg.Mode == "" {
		cfg.Mode = "paper"
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Mode != "paper" && c.Mode != "live" {
		return fmt.Errorf("mode must be \"paper\" or \"live\", got %q", c.Mode)
	}
	if c.Session.Timezone == "" {
		return fmt.Errorf("session.timezone is required")
	}
	if c.Session.CutoffTime == "" {
		return fmt.Errorf("session.cutoff_time is required")
	}
	if c.Risk.RValue <= 0 {
		return fmt.Errorf("risk.r_value must be > 0")
	}
	if c.Risk.LotSize <= 0 {
		return fmt.Errorf("risk.lot_size must be > 0")
	}
	if c.Risk.MaxLotsPerPosition <= 0 {
		return fmt.Errorf("risk.max_lots_per_position must be > 0")
	}
	if c.Risk.MaxPositions <= 0 {
		return fmt.Errorf("risk.max_positions must be > 0")
	}
	if c.Filter.MinEntryPrice <= 0 || c.Filter.MaxEntryPrice <= c.Filter.MinEntryPrice {
		return fmt.Errorf("filter.min_entry_price/max_entry_price are invalid")
	}
	if c.Filter.MinSLPercent <= 0 || c.Filter.MaxSLPercent <= c.Filter.MinSLPercent {
		return fmt.Errorf("filter.min_sl_percent/max_sl_percent are invalid")
	}
	if c.Order.TickSize <= 0 {
		return fmt.Errorf("order.tick_size must be > 0")
	}
	if c.Feed.PrimaryURL == "" {
		return fmt.Errorf("feed.primary_url is required")
	}
	if c.Mode == "live" {
		if c.Broker.BaseURL == "" {
			return fmt.Errorf("broker.base_url is required in live mode")
		}
		if c.Broker.APIKey == "" || c.Broker.APISecret == "" {
			return fmt.Errorf("broker credentials are required in live mode (set SHORT_BROKER_API_KEY / SHORT_BROKER_API_SECRET)")
		}
	}
	return nil
}
