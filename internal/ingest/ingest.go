// Package ingest parses rate workbooks into a canonical rate tree. Sheets
// are loosely structured: the tabular block can start anywhere in the first
// rows and may hold several state/city/amount column groups side by side.
package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"transfer-rates/internal/rates"
	"transfer-rates/internal/slug"
	"transfer-rates/pkg/raterr"
)

// Summary holds informational counts for caller logging. Not part of the
// data contract.
type Summary struct {
	Destinations int `json:"destinations"`
	States       int `json:"states"`
	Cities       int `json:"cities"`
}

// Ingest parses an xlsx workbook into a rate tree. One destination per
// sheet, keyed by the normalized sheet label. Sheets with no recognizable
// header and rows with bad labels or non-positive amounts are skipped; the
// whole workbook fails only when zero destinations result.
func Ingest(workbook []byte) (*rates.Tree, Summary, error) {
	f, err := excelize.OpenReader(bytes.NewReader(workbook))
	if err != nil {
		return nil, Summary{}, raterr.Parse(raterr.CodeEmptyWorkbook, "cannot read workbook: %v", err)
	}
	defer f.Close()

	tree := rates.NewTree()
	for _, sheet := range f.GetSheetList() {
		destKey := slug.Normalize(sheet)
		if destKey == "" {
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			log.Warn().Str("sheet", sheet).Err(err).Msg("skipping unreadable sheet")
			continue
		}
		if !parseSheet(tree, destKey, rows) {
			log.Warn().Str("sheet", sheet).Msg("no state/city/amount header found, sheet skipped")
		}
	}

	if len(tree.Destinations) == 0 {
		return nil, Summary{}, raterr.Parse(raterr.CodeNoTabularLayout,
			"no sheet contains the expected state/city/amount column pattern "+
				"(headers like %q, %q, %q)", "Estado", "Ciudad", "Monto")
	}

	d, s, c := tree.Counts()
	summary := Summary{Destinations: d, States: s, Cities: c}
	log.Info().
		Int("destinations", d).
		Int("states", s).
		Int("cities", c).
		Msg("workbook ingested")
	return tree, summary, nil
}

// parseSheet extracts one destination's rows into the tree. Returns false
// when the sheet has no usable header. The destination is created lazily on
// the first valid row, so header-only sheets leave no trace.
func parseSheet(tree *rates.Tree, destKey string, rows [][]string) bool {
	hdr, ok := findHeader(rows)
	if !ok {
		return false
	}

	for r := hdr.row + 1; r < len(rows); r++ {
		for _, g := range hdr.groups {
			readRowGroup(tree, destKey, rows[r], g)
		}
	}
	return true
}

func readRowGroup(tree *rates.Tree, destKey string, row []string, g columnGroup) {
	stateLabel := strings.TrimSpace(cellAt(row, g.state))
	cityLabel := strings.TrimSpace(cellAt(row, g.city))
	if stateLabel == "" || cityLabel == "" {
		return
	}
	// Some workbooks restate the header mid-sheet.
	if isHeaderEcho(stateLabel, stateTokens) || isHeaderEcho(cityLabel, cityTokens) {
		return
	}

	price, err := ParsePrice(cellAt(row, g.price))
	if err != nil || !price.IsPositive() {
		return
	}

	stateName := slug.CorrectKnownTypo(stateLabel)
	stateKey := slug.Normalize(stateName)
	if stateKey == "" {
		return
	}

	dest := tree.Destinations[destKey]
	if dest == nil {
		dest = &rates.Destination{Key: destKey, States: make(map[string]*rates.State)}
		tree.Destinations[destKey] = dest
	}
	st := dest.States[stateKey]
	if st == nil {
		st = &rates.State{Key: stateKey, Name: stateName}
		dest.States[stateKey] = st
	}
	// First occurrence wins; later duplicate rows are dropped, not merged.
	if st.FindCity(cityLabel) >= 0 {
		return
	}
	st.Cities = append(st.Cities, rates.City{Name: cityLabel, Price: price})
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

func (s Summary) String() string {
	return fmt.Sprintf("%d destinations, %d states, %d cities", s.Destinations, s.States, s.Cities)
}
