package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Veraticus/catalog-janitor/internal/common"
	"github.com/Veraticus/catalog-janitor/internal/engine"
	"github.com/Veraticus/catalog-janitor/internal/report"
)

// batchRequest selects the products of a batch.
type batchRequest struct {
	Category     string  `json:"category"`
	Subcategory  string  `json:"subcategory"`
	ProductIDs   []int64 `json:"product_ids"`
	AfterID      int64   `json:"after_id"`
	Limit        int     `json:"limit"`
	Unclassified bool    `json:"unclassified"`
	DryRun       bool    `json:"dry_run"`
	Replace      bool    `json:"replace"`
}

func (b batchRequest) selection() engine.Selection {
	return engine.Selection{
		Category:     b.Category,
		Subcategory:  b.Subcategory,
		IDs:          b.ProductIDs,
		AfterID:      b.AfterID,
		Limit:        b.Limit,
		Unclassified: b.Unclassified,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListRuns(r.Context(), 1); err != nil {
		writeError(w, fmt.Errorf("%w: %w", common.ErrStoreBusy, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Replace {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "replace only applies to image matching"})
		return
	}
	rep, err := s.engine.ClassifyBatch(r.Context(), req.selection(), engine.Options{DryRun: req.DryRun})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleMatchImages(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	rep, err := s.engine.MatchImagesBatch(r.Context(), req.selection(), engine.Options{DryRun: req.DryRun, Replace: req.Replace})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", 20)
	if !ok {
		return
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DryRun bool `json:"dry_run"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	rep, err := s.engine.Undo(r.Context(), chi.URLParam(r, "id"), engine.Options{DryRun: req.DryRun})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", report.DefaultLimit)
	if !ok {
		return
	}
	after, ok := intParam(w, r, "after", 0)
	if !ok {
		return
	}
	kind := report.Kind(chi.URLParam(r, "kind"))
	if kind != report.Unclassified && kind != report.Unimaged {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("unknown report %q", kind)})
		return
	}

	listing, err := report.Build(r.Context(), s.store, kind, report.Page{
		Category: r.URL.Query().Get("category"),
		Limit:    limit,
		AfterID:  int64(after),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid %s %q", name, raw)})
		return 0, false
	}
	return n, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var userErr *common.UserError
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrBatchLocked), errors.Is(err, common.ErrAlreadyReverted):
		return http.StatusConflict
	case errors.Is(err, common.ErrLimitRequired), errors.Is(err, common.ErrLimitExceeded),
		errors.Is(err, common.ErrInvalidConfig), errors.As(err, &userErr):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrStoreBusy), errors.Is(err, common.ErrMaxRetries):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}
