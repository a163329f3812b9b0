package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"transfer-rates/internal/diff"
	"transfer-rates/internal/ingest"
	"transfer-rates/internal/rates"
	contracts "transfer-rates/pkg/api"
	"transfer-rates/pkg/raterr"
)

func contractsError(err error, kind raterr.Kind) contracts.ErrorResponse {
	resp := contracts.ErrorResponse{Error: kind.String(), Message: err.Error()}
	var re *raterr.Error
	if errors.As(err, &re) {
		resp.Code = re.Code
		resp.Message = re.Message
	}
	return resp
}

func mutationResponse(t *rates.Tree, format string, args ...any) contracts.MutationResponse {
	return contracts.MutationResponse{
		Success:   true,
		Message:   fmt.Sprintf(format, args...),
		Version:   t.Version,
		UpdatedAt: t.UpdatedAt,
	}
}

// =============================================================================
// READ ENDPOINTS
// =============================================================================

func (s *Server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	tree, err := s.store.Current(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contracts.RatesResponse{
		Version:      tree.Version,
		UpdatedAt:    tree.UpdatedAt,
		Destinations: tree.Destinations,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.store.History(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]contracts.HistoryItem, len(entries))
	for i, e := range entries {
		d, st, c := e.Snapshot.Counts()
		items[i] = contracts.HistoryItem{
			ID:           e.ID.String(),
			ArchivedAt:   e.ArchivedAt,
			ArchivedBy:   e.ArchivedBy,
			Version:      e.Snapshot.Version,
			Destinations: d,
			States:       st,
			Cities:       c,
		}
	}
	writeJSON(w, http.StatusOK, items)
}

// =============================================================================
// BULK UPLOAD
// =============================================================================

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, false)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, true)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, commit bool) {
	data, err := readWorkbook(r)
	if err != nil {
		writeError(w, err)
		return
	}
	newTree, summary, err := ingest.Ingest(data)
	if err != nil {
		writeError(w, err)
		return
	}
	current, err := s.store.Current(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	delta := diff.Diff(current, newTree, diff.Options{})

	resp := contracts.UploadResponse{Summary: summary, Delta: delta}
	if commit {
		committed, err := s.service.ReplaceTree(r.Context(), newTree)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Committed = true
		resp.Version = committed.Version
		log.Info().
			Int64("version", committed.Version).
			Str("summary", summary.String()).
			Msg("bulk upload committed")
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// DESTINATIONS
// =============================================================================

func (s *Server) handleCreateDestination(w http.ResponseWriter, r *http.Request) {
	var req contracts.CreateDestinationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tree, err := s.service.CreateDestination(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mutationResponse(tree, "destination %q created", req.Name))
}

func (s *Server) handleRenameDestination(w http.ResponseWriter, r *http.Request) {
	var req contracts.RenameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tree, err := s.service.RenameDestination(r.Context(), chi.URLParam(r, "dest"), req.NewName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse(tree, "destination renamed to %q", req.NewName))
}

func (s *Server) handleDeleteDestination(w http.ResponseWriter, r *http.Request) {
	tree, err := s.service.DeleteDestination(r.Context(), chi.URLParam(r, "dest"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse(tree, "destination deleted"))
}

// =============================================================================
// STATES
// =============================================================================

func (s *Server) handleCreateState(w http.ResponseWriter, r *http.Request) {
	var req contracts.CreateStateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tree, err := s.service.CreateState(r.Context(), chi.URLParam(r, "dest"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mutationResponse(tree, "state %q created", req.Name))
}

func (s *Server) handleRenameState(w http.ResponseWriter, r *http.Request) {
	var req contracts.RenameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tree, err := s.service.RenameState(r.Context(),
		chi.URLParam(r, "dest"), chi.URLParam(r, "state"), req.NewName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse(tree, "state renamed to %q", req.NewName))
}

func (s *Server) handleDeleteState(w http.ResponseWriter, r *http.Request) {
	tree, err := s.service.DeleteState(r.Context(),
		chi.URLParam(r, "dest"), chi.URLParam(r, "state"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse(tree, "state deleted"))
}

// =============================================================================
// CITIES
// =============================================================================

func (s *Server) handleCreateCity(w http.ResponseWriter, r *http.Request) {
	var req contracts.CreateCityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	price, err := parsePriceField(req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	tree, err := s.service.CreateCity(r.Context(),
		chi.URLParam(r, "dest"), chi.URLParam(r, "state"), req.Name, price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mutationResponse(tree, "city %q created", req.Name))
}

// handleUpdateCity applies a rename, a price update, or both. Combined
// requests run as two sequential operations, each with its own audit entry;
// the price is applied first so the rename cannot orphan it.
func (s *Server) handleUpdateCity(w http.ResponseWriter, r *http.Request) {
	var req contracts.UpdateCityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.NewName == nil && req.Price == nil {
		writeError(w, raterr.Validation(raterr.CodeMissingLabel, "nothing to update: provide new_name and/or price"))
		return
	}

	dest := chi.URLParam(r, "dest")
	state := chi.URLParam(r, "state")
	city := chi.URLParam(r, "city")

	var tree *rates.Tree
	if req.Price != nil {
		price, err := parsePriceField(*req.Price)
		if err != nil {
			writeError(w, err)
			return
		}
		tree, err = s.service.UpdateCityPrice(r.Context(), dest, state, city, price)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	if req.NewName != nil {
		var err error
		tree, err = s.service.RenameCity(r.Context(), dest, state, city, *req.NewName)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, mutationResponse(tree, "city %q updated", city))
}

func (s *Server) handleDeleteCity(w http.ResponseWriter, r *http.Request) {
	tree, err := s.service.DeleteCity(r.Context(),
		chi.URLParam(r, "dest"), chi.URLParam(r, "state"), chi.URLParam(r, "city"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse(tree, "city deleted"))
}

func parsePriceField(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, raterr.Validation(raterr.CodeInvalidPrice, "unparseable price %q", raw)
	}
	return price, nil
}
