package ingest

import (
	"strings"

	"github.com/shopspring/decimal"
)

// parseAmount converts upstream money values to an exact decimal. The feeds
// are inconsistent: some return JSON numbers, some strings with comma
// decimal separators and grouping spaces ("1 811,00"). Empty or unparseable
// values become zero.
func parseAmount(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
