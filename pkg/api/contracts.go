// Package api defines the JSON contracts of the rate engine's HTTP surface.
package api

import (
	"time"

	"transfer-rates/internal/diff"
	"transfer-rates/internal/ingest"
	"transfer-rates/internal/rates"
)

// ErrorResponse is the uniform failure payload. Error carries the failure
// kind ("conflict", "not_found", ...), Code the stable machine code.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// RatesResponse is the current tree plus its version metadata.
type RatesResponse struct {
	Version      int64                         `json:"version"`
	UpdatedAt    time.Time                     `json:"updated_at"`
	Destinations map[string]*rates.Destination `json:"destinations"`
}

// MutationResponse confirms a committed single-record operation.
type MutationResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UploadResponse reports an ingested workbook: summary counts, the delta
// against the current tree, and whether the result was committed.
type UploadResponse struct {
	Summary   ingest.Summary `json:"summary"`
	Delta     diff.Delta     `json:"delta"`
	Committed bool           `json:"committed"`
	Version   int64          `json:"version,omitempty"`
}

// HistoryItem lists an archived snapshot without shipping its full tree.
type HistoryItem struct {
	ID           string    `json:"id"`
	ArchivedAt   time.Time `json:"archived_at"`
	ArchivedBy   string    `json:"archived_by"`
	Version      int64     `json:"version"`
	Destinations int       `json:"destinations"`
	States       int       `json:"states"`
	Cities       int       `json:"cities"`
}

// CreateDestinationRequest creates an empty destination.
type CreateDestinationRequest struct {
	Name string `json:"name"`
}

// CreateStateRequest creates an empty state under a destination.
type CreateStateRequest struct {
	Name string `json:"name"`
}

// CreateCityRequest creates a priced city. Price is a decimal string so
// amounts stay exact ("250", "1250.50").
type CreateCityRequest struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

// RenameRequest renames a destination or state.
type RenameRequest struct {
	NewName string `json:"new_name"`
}

// UpdateCityRequest renames a city, updates its price, or both.
type UpdateCityRequest struct {
	NewName *string `json:"new_name,omitempty"`
	Price   *string `json:"price,omitempty"`
}
