package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"niftyshort/internal/config"
)

type fakeProvider struct {
	positions []PositionStatus
	risk      RiskSnapshot
	feed      FeedStatus
	sessionR  float64
}

func (p fakeProvider) GetPositionsSnapshot() []PositionStatus { return p.positions }
func (p fakeProvider) GetRiskSnapshot() RiskSnapshot           { return p.risk }
func (p fakeProvider) GetFeedStatus() FeedStatus               { return p.feed }
func (p fakeProvider) GetSessionR() float64                    { return p.sessionR }
func (p fakeProvider) DashboardEvents() <-chan DashboardEvent  { return nil }

func TestHandlePositionsReturnsOpenPositions(t *testing.T) {
	t.Parallel()
	provider := fakeProvider{positions: []PositionStatus{{Symbol: "NIFTY07AUG2524500CE", Side: "CE"}}}
	h := NewHandlers(provider, config.Config{}, NewHub(slog.Default()), slog.Default())

	rec := httptest.NewRecorder()
	h.HandlePositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	var got []PositionStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "NIFTY07AUG2524500CE" {
		t.Fatalf("HandlePositions returned %+v", got)
	}
}

func TestHandleRiskReturnsGateState(t *testing.T) {
	t.Parallel()
	provider := fakeProvider{risk: RiskSnapshot{Halted: true, SessionR: -5}}
	h := NewHandlers(provider, config.Config{}, NewHub(slog.Default()), slog.Default())

	rec := httptest.NewRecorder()
	h.HandleRisk(rec, httptest.NewRequest(http.MethodGet, "/api/risk", nil))

	var got RiskSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !got.Halted || got.SessionR != -5 {
		t.Fatalf("HandleRisk returned %+v", got)
	}
}

func TestIsOriginAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origin  string
		cfg     config.DashboardConfig
		reqHost string
		want    bool
	}{
		{
			name:    "empty origin is allowed",
			origin:  "",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "localhost origin allowed by default",
			origin:  "http://localhost:8080",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "non-local origin denied by default",
			origin:  "https://evil.example",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:8080",
			want:    false,
		},
		{
			name:    "allowlist permits exact origin",
			origin:  "https://dash.example.com",
			cfg:     config.DashboardConfig{AllowedOrigins: []string{"https://dash.example.com"}},
			reqHost: "0.0.0.0:8080",
			want:    true,
		},
		{
			name:    "allowlist denies everything else",
			origin:  "https://evil.example",
			cfg:     config.DashboardConfig{AllowedOrigins: []string{"https://dash.example.com"}},
			reqHost: "0.0.0.0:8080",
			want:    false,
		},
		{
			name:    "same host allowed when no allowlist",
			origin:  "https://mm.internal:8080",
			cfg:     config.DashboardConfig{},
			reqHost: "mm.internal:8080",
			want:    true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isOriginAllowed(tt.origin, tt.cfg, tt.reqHost); got != tt.want {
				t.Fatalf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
