package config

import "testing"

func validConfig() Config {
	return Config{
		Mode:    "paper",
		Session: SessionConfig{Timezone: "Asia/Kolkata", CutoffTime: "15:15"},
		Risk: RiskConfig{
			RValue:             6500,
			LotSize:            75,
			MaxLotsPerPosition: 2,
			MaxPositions:       5,
		},
		Filter: FilterConfig{
			MinEntryPrice: 50,
			MaxEntryPrice: 250,
			MinSLPercent:  0.05,
			MaxSLPercent:  0.25,
		},
		Order: OrderConfig{TickSize: 0.05},
		Feed:  FeedConfig{PrimaryURL: "wss://example.invalid/ticks"},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Mode = "simulate"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestValidateRequiresBrokerCredentialsInLiveMode(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Mode = "live"
	cfg.Broker.BaseURL = "https://broker.example.invalid"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing live credentials")
	}
}

func TestValidateRejectsInvertedEntryPriceBand(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Filter.MinEntryPrice = 200
	cfg.Filter.MaxEntryPrice = 100
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for inverted entry price band")
	}
}

func TestValidateRequiresPrimaryFeedURL(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Feed.PrimaryURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing feed.primary_url")
	}
}

func TestBrokerConfigStringRedactsCredentials(t *testing.T) {
	t.Parallel()
	b := BrokerConfig{BaseURL: "https://broker.example.invalid", APIKey: "secret-key", APISecret: "secret-value"}
	s := b.String()
	if contains(s, "secret-key") || contains(s, "secret-value") {
		t.Fatalf("String() leaked a credential: %s", s)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
