// Package symbols normalizes venue-native market identifiers into the
// canonical BASE/QUOTE form the rest of the pipeline operates on.
package symbols

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Explicit venue-native mappings that the pattern fallbacks cannot derive.
var venueMappings = map[string]map[string]string{
	"kraken": {
		"XBTUSD":   "BTC/USD",
		"XBTUSDT":  "BTC/USDT",
		"XETHZUSD": "ETH/USD",
		"XXBTZUSD": "BTC/USD",
		"XETHXXBT": "ETH/BTC",
	},
	"bitfinex": {
		"BTCUSD":  "BTC/USD",
		"BTCUSDT": "BTC/USDT",
		"ETHUSD":  "ETH/USD",
		"ETHBTC":  "ETH/BTC",
	},
}

var reverseMappings = func() map[string]map[string]string {
	out := make(map[string]map[string]string, len(venueMappings))
	for venue, m := range venueMappings {
		rev := make(map[string]string, len(m))
		for raw, std := range m {
			rev[std] = raw
		}
		out[venue] = rev
	}
	return out
}()

var knownQuotes = []string{"USDT", "USDC", "USD", "EUR", "TRY", "BTC", "ETH", "BNB"}

var (
	concatPattern = regexp.MustCompile(`^([A-Z0-9]{2,6})(USDT|USDC|USD|EUR|TRY|BTC|ETH|BNB)$`)
	krakenPattern = regexp.MustCompile(`^X([A-Z]{2,4})Z?(USD|EUR)$`)
	xbtPattern    = regexp.MustCompile(`^([A-Z]{2,4})XBT$`)
)

// Normalize converts a venue-native symbol to canonical BASE/QUOTE form.
// Unrecognized symbols come back unchanged.
func Normalize(raw, venue string) string {
	if m, ok := venueMappings[strings.ToLower(venue)]; ok {
		if std, ok := m[raw]; ok {
			return std
		}
	}
	if strings.Contains(raw, "/") {
		return raw
	}
	return autoNormalize(raw)
}

func autoNormalize(raw string) string {
	s := strings.ToUpper(raw)
	// Dash and underscore separators (OKX, Coinbase, Gate styles).
	for _, sep := range []string{"-", "_"} {
		if parts := strings.Split(s, sep); len(parts) == 2 {
			return parts[0] + "/" + parts[1]
		}
	}
	if m := krakenPattern.FindStringSubmatch(s); m != nil {
		base := m[1]
		if base == "XBT" {
			base = "BTC"
		}
		return base + "/" + m[2]
	}
	if m := xbtPattern.FindStringSubmatch(s); m != nil {
		return m[1] + "/BTC"
	}
	if m := concatPattern.FindStringSubmatch(s); m != nil {
		base := m[1]
		if base == "XBT" {
			base = "BTC"
		}
		return base + "/" + m[2]
	}
	return raw
}

// VenueSymbol converts a canonical symbol back to the venue's native form.
// Most venues accept BASE/QUOTE; the explicit maps cover the rest.
func VenueSymbol(std, venue string) string {
	if m, ok := reverseMappings[strings.ToLower(venue)]; ok {
		if raw, ok := m[std]; ok {
			return raw
		}
	}
	return std
}

// Parse splits a symbol into (base, quote). It accepts canonical form and
// falls back to known-quote suffix matching for concatenated symbols.
func Parse(symbol string) (base, quote string, err error) {
	if i := strings.IndexByte(symbol, '/'); i > 0 && i < len(symbol)-1 {
		return strings.ToUpper(symbol[:i]), strings.ToUpper(symbol[i+1:]), nil
	}
	norm := autoNormalize(symbol)
	if i := strings.IndexByte(norm, '/'); i > 0 && i < len(norm)-1 {
		return norm[:i], norm[i+1:], nil
	}
	up := strings.ToUpper(symbol)
	for _, q := range knownQuotes {
		if strings.HasSuffix(up, q) && len(up) > len(q) {
			return up[:len(up)-len(q)], q, nil
		}
	}
	return "", "", fmt.Errorf("cannot parse symbol %q", symbol)
}

// Join renders canonical BASE/QUOTE form.
func Join(base, quote string) string {
	return strings.ToUpper(base) + "/" + strings.ToUpper(quote)
}

// AvailabilityMap inverts per-venue listings into symbol -> venues, with
// venues sorted. Cross-exchange detection needs a symbol on at least two.
func AvailabilityMap(listings map[string][]string) map[string][]string {
	out := make(map[string][]string)
	for venue, syms := range listings {
		for _, sym := range syms {
			std := Normalize(sym, venue)
			out[std] = append(out[std], venue)
		}
	}
	for _, venues := range out {
		sort.Strings(venues)
	}
	return out
}
