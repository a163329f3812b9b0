// Package api provides the HTTP command surface of the rate engine: the
// current tree, the bulk-upload preview/import flow, the single-record
// mutations, and the snapshot history.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"transfer-rates/internal/mutate"
	"transfer-rates/internal/store"
	"transfer-rates/pkg/raterr"
)

// maxUploadBytes bounds workbook uploads.
const maxUploadBytes = 20 * 1024 * 1024

// Server wires the store and mutation service into a chi router.
type Server struct {
	store   store.Store
	service *mutate.Service
}

// NewServer returns a server over the given store.
func NewServer(st store.Store) *Server {
	return &Server{store: st, service: mutate.NewService(st)}
}

// Routes builds the router with logging and recovery middleware.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/rates", s.handleGetRates)
		r.Get("/rates/history", s.handleHistory)
		r.Post("/rates/preview", s.handlePreview)
		r.Post("/rates/import", s.handleImport)

		r.Post("/destinations", s.handleCreateDestination)
		r.Route("/destinations/{dest}", func(r chi.Router) {
			r.Put("/", s.handleRenameDestination)
			r.Delete("/", s.handleDeleteDestination)

			r.Post("/states", s.handleCreateState)
			r.Route("/states/{state}", func(r chi.Router) {
				r.Put("/", s.handleRenameState)
				r.Delete("/", s.handleDeleteState)

				r.Post("/cities", s.handleCreateCity)
				r.Put("/cities/{city}", s.handleUpdateCity)
				r.Delete("/cities/{city}", s.handleDeleteCity)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "rates",
	})
}

// readWorkbook pulls the uploaded xlsx out of a multipart form.
func readWorkbook(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, raterr.Validation(raterr.CodeEmptyWorkbook, "invalid upload: %v", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, raterr.Validation(raterr.CodeEmptyWorkbook, "missing workbook file field %q", "file")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, raterr.Validation(raterr.CodeEmptyWorkbook, "failed to read upload: %v", err)
	}
	return data, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return raterr.Validation(raterr.CodeMissingLabel, "invalid request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	var status int
	kind := raterr.KindOf(err)
	switch kind {
	case raterr.KindNotFound:
		status = http.StatusNotFound
	case raterr.KindConflict, raterr.KindConcurrency:
		status = http.StatusConflict
	case raterr.KindParse, raterr.KindValidation:
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
		log.Error().Err(err).Msg("internal error")
	}

	resp := contractsError(err, kind)
	writeJSON(w, status, resp)
}
