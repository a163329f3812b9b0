package ingest

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice parses a currency-agnostic amount cell. Dollar signs, thousands
// separators, and surrounding whitespace are stripped; numeric cells arrive
// from the workbook reader as plain digit strings and pass through.
func ParsePrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %q", raw)
	}
	return price, nil
}
