package classification

import (
	"slices"
	"strings"
	"unicode"
)

// Market-cap categories accepted by the update endpoint.
const (
	LargeCap = "LARGECAP"
	MidCap   = "MIDCAP"
	SmallCap = "SMALLCAP"
)

// MarketCaps lists the categories in display order.
var MarketCaps = []string{LargeCap, MidCap, SmallCap}

// NormalizeMarketCap upper-cases v and strips all whitespace, returning the
// matching category or "" when v is not one of MarketCaps.
func NormalizeMarketCap(v string) string {
	norm := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, v)
	if IsMarketCap(norm) {
		return norm
	}
	return ""
}

// IsMarketCap reports whether v is exactly one of MarketCaps.
func IsMarketCap(v string) bool {
	return slices.Contains(MarketCaps, v)
}
