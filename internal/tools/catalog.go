package tools

import (
	"fmt"
	"strings"
)

// Side distinguishes the two card acceptance channels a merchant product
// belongs to.
type Side string

const (
	// CardPresent covers terminal products (the merchant sights the card).
	CardPresent Side = "CP"
	// CardNotPresent covers eCommerce and remote products.
	CardNotPresent Side = "CNP"
)

// Product catalog per side. The scoring service must rank exactly these
// codes; ordering here is catalog order, not recommendation order.
var (
	cardPresentProducts    = []string{"CSL", "CSP", "MSM", "MVI", "SHT"}
	cardNotPresentProducts = []string{"BPT", "BPC", "BPE", "CWB", "IMA", "QKR", "SPY"}
)

// ParseSide normalizes a channel string from tool arguments.
func ParseSide(s string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(CardPresent):
		return CardPresent, true
	case string(CardNotPresent):
		return CardNotPresent, true
	default:
		return "", false
	}
}

// ProductsFor returns a copy of the catalog for the given side.
func ProductsFor(side Side) []string {
	var src []string
	switch side {
	case CardPresent:
		src = cardPresentProducts
	case CardNotPresent:
		src = cardNotPresentProducts
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// VerifyRanking checks that ranked is a total ordering of the side's
// catalog: every known code exactly once, nothing extra.
func VerifyRanking(side Side, ranked []string) error {
	catalog := ProductsFor(side)
	if len(ranked) != len(catalog) {
		return fmt.Errorf("ranking has %d codes, catalog for %s has %d", len(ranked), side, len(catalog))
	}
	seen := make(map[string]bool, len(catalog))
	for _, code := range catalog {
		seen[code] = false
	}
	for _, code := range ranked {
		used, known := seen[code]
		if !known {
			return fmt.Errorf("ranking contains unknown product code %q for side %s", code, side)
		}
		if used {
			return fmt.Errorf("ranking contains duplicate product code %q", code)
		}
		seen[code] = true
	}
	return nil
}

// Quarantine is the set of product codes currently withdrawn from sale.
type Quarantine map[string]struct{}

// NewQuarantine builds a quarantine set from config. Codes are normalized
// to upper case.
func NewQuarantine(codes []string) Quarantine {
	q := make(Quarantine, len(codes))
	for _, code := range codes {
		q[strings.ToUpper(strings.TrimSpace(code))] = struct{}{}
	}
	return q
}

// Contains reports whether code is quarantined.
func (q Quarantine) Contains(code string) bool {
	_, ok := q[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// FirstSellable walks a ranking from most to least recommended and returns
// the first code not quarantined for sale.
func FirstSellable(ranked []string, q Quarantine) (string, bool) {
	for _, code := range ranked {
		if !q.Contains(code) {
			return code, true
		}
	}
	return "", false
}
