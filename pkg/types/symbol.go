package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// monthAbbrev gives the uppercase English month token used in broker
// symbols, e.g. "FEB".
var monthAbbrev = [...]string{
	"JAN", "FEB", "MAR", "APR", "MAY", "JUN",
	"JUL", "AUG", "SEP", "OCT", "NOV", "DEC",
}

// FormatSymbol renders the bit-exact broker symbol NIFTY<DDMMMYY><STRIKE><CE|PE>,
// e.g. NIFTY06FEB2624200CE.
func FormatSymbol(expiry time.Time, strike int, side Side) string {
	return fmt.Sprintf("NIFTY%02d%s%02d%d%s",
		expiry.Day(), monthAbbrev[expiry.Month()-1], expiry.Year()%100, strike, side)
}

// ParseSymbol reverses FormatSymbol, returning the expiry token (DDMMMYY,
// broker-native and not parsed to a date since the year is two digits and
// ambiguous across centuries), the strike, and the side.
func ParseSymbol(symbol string) (expiryToken string, strike int, side Side, err error) {
	const prefix = "NIFTY"
	if !strings.HasPrefix(symbol, prefix) {
		return "", 0, "", fmt.Errorf("parse symbol %q: missing NIFTY prefix", symbol)
	}
	rest := symbol[len(prefix):]
	if len(rest) < 2 {
		return "", 0, "", fmt.Errorf("parse symbol %q: too short", symbol)
	}
	side = Side(rest[len(rest)-2:])
	if side != CE && side != PE {
		return "", 0, "", fmt.Errorf("parse symbol %q: unknown side suffix", symbol)
	}
	rest = rest[:len(rest)-2]
	if len(rest) < 8 {
		return "", 0, "", fmt.Errorf("parse symbol %q: missing expiry/strike", symbol)
	}
	expiryToken = rest[:7]
	strikeStr := rest[7:]
	strike, convErr := strconv.Atoi(strikeStr)
	if convErr != nil {
		return "", 0, "", fmt.Errorf("parse symbol %q: strike: %w", symbol, convErr)
	}
	return expiryToken, strike, side, nil
}

// FormatSymbolToken renders a broker symbol directly from an expiry token
// (as returned by the auto-detector, broker-native DDMMMYY) without
// round-tripping through time.Time.
func FormatSymbolToken(expiryToken string, strike int, side Side) string {
	return fmt.Sprintf("NIFTY%s%d%s", expiryToken, strike, side)
}

// StrikeWindow returns the strikes spanning n steps below and above atm, in
// units of interval (NIFTY weekly strikes step by 50), inclusive of atm
// itself, lowest first.
func StrikeWindow(atm, n, interval int) []int {
	if interval <= 0 {
		interval = 50
	}
	strikes := make([]int, 0, 2*n+1)
	for i := -n; i <= n; i++ {
		strikes = append(strikes, atm+i*interval)
	}
	return strikes
}

// SymbolWindow builds the full ±N strike, both-side subscription list for an
// expiry, as required of the auto-detector consumer at startup.
func SymbolWindow(expiry time.Time, atm, n, interval int) []string {
	strikes := StrikeWindow(atm, n, interval)
	symbols := make([]string, 0, len(strikes)*2)
	for _, strike := range strikes {
		symbols = append(symbols, FormatSymbol(expiry, strike, CE))
		symbols = append(symbols, FormatSymbol(expiry, strike, PE))
	}
	return symbols
}

// SymbolWindowFromToken builds the full ±N strike, both-side subscription
// list from a raw expiry token, for the auto-detector's startup result.
func SymbolWindowFromToken(expiryToken string, atm, n, interval int) []string {
	strikes := StrikeWindow(atm, n, interval)
	symbols := make([]string, 0, len(strikes)*2)
	for _, strike := range strikes {
		symbols = append(symbols, FormatSymbolToken(expiryToken, strike, CE))
		symbols = append(symbols, FormatSymbolToken(expiryToken, strike, PE))
	}
	return symbols
}

// IsRoundStrike reports whether a strike is a multiple of 100, the Stage-3
// tie-break's second criterion.
func IsRoundStrike(strike int) bool {
	return strike%100 == 0
}
