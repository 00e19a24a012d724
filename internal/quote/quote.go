// Package quote computes display-level derived fields: percent change
// from reference close, the change-value plausibility gate, and per-class
// price formatting. Everything here is a pure function; values are
// computed at render time, never stored back into the registry.
package quote

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"marketwatchv1/internal/model"
)

const (
	// A percent move beyond this is treated as feed noise, not a price.
	maxPlausiblePercent = 50.0

	// Category-specific absolute bounds on a plausible change value.
	maxChangeUSD = 50.0
	maxChangeINR = 500.0

	// A change larger than this fraction of close is implausible.
	maxChangeFraction = 0.1
)

// PercentChange returns the percent move of ltp from close, fixed to two
// decimals. Both inputs must share a currency domain. A non-positive
// close, a non-positive ltp, or a move beyond ±50% all yield "0.00";
// there is deliberately no fallback derivation from a change field.
func PercentChange(ltp, close float64) string {
	if close <= 0 || ltp <= 0 {
		return "0.00"
	}
	pct := (ltp - close) / close * 100
	if math.Abs(pct) > maxPlausiblePercent {
		return "0.00"
	}
	return strconv.FormatFloat(pct, 'f', 2, 64)
}

// ChangeOK reports whether a change value is plausible enough to display.
// It must be non-zero, backed by a valid positive close (and ltp), inside
// the category's absolute bound, and under 10% of close. Transient feed
// glitches fail at least one of the three gates.
func ChangeOK(change, ltp, close float64, cat model.Category) bool {
	if change == 0 {
		return false
	}
	if close <= 0 || ltp <= 0 {
		return false
	}
	abs := math.Abs(change)
	bound := maxChangeINR
	if cat.UsesBookFeed() {
		bound = maxChangeUSD
	}
	if abs >= bound {
		return false
	}
	return abs/close < maxChangeFraction
}

// FormatChange renders a change value with an explicit sign, or "-" when
// the plausibility gate rejects it.
func FormatChange(change, ltp, close float64, cat model.Category, symbol string) string {
	if !ChangeOK(change, ltp, close, cat) {
		return "-"
	}
	s := FormatPrice(math.Abs(change), cat, symbol)
	if change > 0 {
		return "+" + s
	}
	return "-" + s
}

// FormatPrice renders a price with the category's precision rules.
// Futures/options prices are integer rupees; order-book categories use
// MT5-style fixed or magnitude-tiered decimals. Zero renders as "-".
func FormatPrice(price float64, cat model.Category, symbol string) string {
	if price == 0 || math.IsNaN(price) {
		return "-"
	}
	if !cat.UsesBookFeed() {
		return strconv.FormatFloat(math.Round(price), 'f', 0, 64)
	}

	abs := math.Abs(price)
	switch cat {
	case model.CategoryForex:
		// JPY crosses quote at 3 decimals, everything else at 5.
		if strings.Contains(strings.ToUpper(symbol), "JPY") {
			return strconv.FormatFloat(price, 'f', 3, 64)
		}
		return strconv.FormatFloat(price, 'f', 5, 64)

	case model.CategoryCrypto:
		switch {
		case abs >= 1000:
			return strconv.FormatFloat(price, 'f', 2, 64)
		case abs >= 0.01:
			return strconv.FormatFloat(price, 'f', 5, 64)
		case abs >= 0.0001:
			return strconv.FormatFloat(price, 'f', 6, 64)
		default:
			return strconv.FormatFloat(price, 'f', 8, 64)
		}

	case model.CategoryCommodity:
		switch {
		case abs >= 1000:
			return strconv.FormatFloat(price, 'f', 2, 64)
		case abs >= 0.01:
			return strconv.FormatFloat(price, 'f', 5, 64)
		default:
			return strconv.FormatFloat(price, 'f', 6, 64)
		}
	}
	return strconv.FormatFloat(price, 'f', 5, 64)
}

// BaseSymbol strips a trailing delimiter suffix ("GOLD_05FEB" → "GOLD").
func BaseSymbol(name string) string {
	if i := strings.IndexByte(name, '_'); i >= 0 {
		return name[:i]
	}
	return name
}

var contractDateRe = regexp.MustCompile(`^(\d{1,2})([A-Za-z]{3})$`)

// FormatContractDate renders a contract-date suffix ("31DEC" → "31 DEC").
// Returns "" when the suffix is not a date.
func FormatContractDate(suffix string) string {
	m := contractDateRe.FindStringSubmatch(suffix)
	if m == nil {
		return ""
	}
	return m[1] + " " + strings.ToUpper(m[2])
}

var pairRes = []*regexp.Regexp{
	regexp.MustCompile(`^([A-Z]{3,4})(USDT|USDC|BTC|ETH|BNB|EUR|GBP|JPY|AUD|CAD|CHF|NZD|XAU|XAG)$`),
	regexp.MustCompile(`^(USDT|USDC|BTC|ETH|BNB)([A-Z]{3,4})$`),
}

// PairSymbol inserts a slash into a currency-pair name for order-book
// categories ("BTCUSDT" → "BTC/USDT"). Non-pair categories and symbols
// that match no known pattern come back with just the suffix stripped.
func PairSymbol(name string, cat model.Category) string {
	base := BaseSymbol(name)
	if !cat.UsesBookFeed() {
		return base
	}
	clean := strings.ToUpper(strings.ReplaceAll(base, "/", ""))
	for _, re := range pairRes {
		if m := re.FindStringSubmatch(clean); m != nil {
			return m[1] + "/" + m[2]
		}
	}
	// Unknown pair: split a 6-8 char symbol after the first three letters.
	if n := len(clean); n >= 6 && n <= 8 {
		return clean[:3] + "/" + clean[3:]
	}
	return base
}
