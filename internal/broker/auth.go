// auth.go implements the broker's TOTP-based session login.
//
// The session model is two-phase, the same shape as an L1/L2 API key split:
// a cheap, short-lived credential (the session token) is derived once at
// startup from the client ID, API key/secret and a TOTP code, then reused to
// authorize every subsequent request until it expires or the broker
// invalidates it, at which point the caller re-logs in.
package broker

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"niftyshort/internal/config"
)

const totpStep = 30 * time.Second

// Auth holds the broker session. GenerateTOTP never leaves this package; the
// secret itself never appears in logs (see config.BrokerConfig.String).
type Auth struct {
	cfg    config.BrokerConfig
	http   *resty.Client
	mu     sync.RWMutex
	token  string
	expiry time.Time
}

// NewAuth constructs a session manager for the given broker config.
func NewAuth(cfg config.BrokerConfig, http *resty.Client) *Auth {
	return &Auth{cfg: cfg, http: http}
}

// SessionToken returns a valid session token, logging in or refreshing as
// needed. Safe for concurrent use, though the Coordinator only ever calls it
// from the single event loop.
func (a *Auth) SessionToken(ctx context.Context) (string, error) {
	a.mu.RLock()
	tok, exp := a.token, a.expiry
	a.mu.RUnlock()

	if tok != "" && time.Now().Before(exp) {
		return tok, nil
	}
	return a.login(ctx)
}

// Invalidate forces the next SessionToken call to re-login, used when the
// broker reports an auth/session error on a request.
func (a *Auth) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
}

func (a *Auth) login(ctx context.Context) (string, error) {
	code, err := GenerateTOTP(a.cfg.TOTPSecret, time.Now())
	if err != nil {
		return "", NewError(KindAuth, "login", fmt.Errorf("generate totp: %w", err))
	}

	var result struct {
		SessionToken string `json:"session_token"`
		ExpiresInSec int    `json:"expires_in_sec"`
	}
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"client_id": a.cfg.ClientID,
			"api_key":   a.cfg.APIKey,
			"api_secret": a.cfg.APISecret,
			"totp":      code,
		}).
		SetResult(&result).
		Post(a.cfg.BaseURL + "/session/login")
	if err != nil {
		return "", NewError(KindTransient, "login", err)
	}
	if resp.IsError() {
		return "", NewError(KindAuth, "login", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	a.mu.Lock()
	a.token = result.SessionToken
	ttl := time.Duration(result.ExpiresInSec) * time.Second
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	a.expiry = time.Now().Add(ttl - time.Minute) // refresh a minute early
	a.mu.Unlock()

	return result.SessionToken, nil
}

// GenerateTOTP computes an RFC 6238 time-based one-time password from a
// base32-encoded secret for the 30-second step containing t.
func GenerateTOTP(secret string, t time.Time) (string, error) {
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return "", fmt.Errorf("decode totp secret: %w", err)
	}

	counter := uint64(t.Unix() / int64(totpStep.Seconds()))
	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(counterBytes[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	code := truncated % 1000000

	return fmt.Sprintf("%06d", code), nil
}
