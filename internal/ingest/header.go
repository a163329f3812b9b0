package ingest

import "strings"

// Header token synonyms. Workbooks arrive in both Spanish and English,
// sometimes mixed on the same sheet.
var (
	stateTokens = []string{"estado", "state"}
	cityTokens  = []string{"ciudad", "city"}
	priceTokens = []string{"monto", "precio", "price", "amount", "tarifa"}
)

// headerScanDepth bounds how many leading rows are inspected for a header.
const headerScanDepth = 15

// columnGroup is one state/city/amount column triple. Sheets may carry
// several groups side by side on the same header row.
type columnGroup struct {
	state int
	city  int
	price int
}

// header locates the header row and its column groups within a sheet.
type header struct {
	row    int
	groups []columnGroup
}

// findHeader scans the first headerScanDepth rows for a row containing a
// state token, a city token, and an amount token, then extracts its column
// groups. The boolean result is the only signal of absence; no sentinel
// indices escape.
func findHeader(rows [][]string) (header, bool) {
	depth := len(rows)
	if depth > headerScanDepth {
		depth = headerScanDepth
	}
	for r := 0; r < depth; r++ {
		joined := strings.ToLower(strings.Join(rows[r], " "))
		if !containsAny(joined, stateTokens) ||
			!containsAny(joined, cityTokens) ||
			!containsAny(joined, priceTokens) {
			continue
		}
		groups := scanGroups(rows[r])
		if len(groups) == 0 {
			continue
		}
		return header{row: r, groups: groups}, true
	}
	return header{}, false
}

// scanGroups walks a header row left to right. Every state column that has
// both a city column and an amount column within the next 3 columns forms a
// group.
func scanGroups(row []string) []columnGroup {
	var groups []columnGroup
	for col, cell := range row {
		if !cellHasToken(cell, stateTokens) {
			continue
		}
		group := columnGroup{state: col, city: -1, price: -1}
		limit := col + 3
		if limit >= len(row) {
			limit = len(row) - 1
		}
		for next := col + 1; next <= limit; next++ {
			switch {
			case group.city < 0 && cellHasToken(row[next], cityTokens):
				group.city = next
			case group.price < 0 && cellHasToken(row[next], priceTokens):
				group.price = next
			}
		}
		if group.city >= 0 && group.price >= 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

func cellHasToken(cell string, tokens []string) bool {
	return containsAny(strings.ToLower(cell), tokens)
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// isHeaderEcho reports whether a data cell is a repeated header label,
// which some workbooks restate partway down the sheet.
func isHeaderEcho(cell string, tokens []string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(cell))
	for _, tok := range tokens {
		if trimmed == tok {
			return true
		}
	}
	return false
}
