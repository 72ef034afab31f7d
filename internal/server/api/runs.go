// Package api provides HTTP API handlers for recorded detection runs.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/palmtrace/internal/store"
)

// RunHandler serves recorded runs and their detections.
type RunHandler struct {
	store *store.Store
}

// NewRunHandler creates a new RunHandler with the given store.
func NewRunHandler(s *store.Store) *RunHandler {
	return &RunHandler{store: s}
}

// Routes mounts the run endpoints:
//
//	GET    /                  list runs
//	GET    /{id}              one run with its statistics
//	DELETE /{id}              delete a run and its detections
//	GET    /{id}/detections   per-frame results, ?limit=N
func (h *RunHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
	r.Get("/{id}/detections", h.detections)
	return r
}

// Request and response types

type runResponse struct {
	ID         string  `json:"id"`
	Method     string  `json:"method"`
	Source     string  `json:"source"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
	Frames     int     `json:"frames"`
	Found      int     `json:"found"`
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

type detectionResponse struct {
	Seq       uint64 `json:"seq"`
	Found     bool   `json:"found"`
	XMin      int    `json:"xmin"`
	XMax      int    `json:"xmax"`
	YMin      int    `json:"ymin"`
	YMax      int    `json:"ymax"`
	ElapsedUS int64  `json:"elapsed_us"`
	CreatedAt string `json:"created_at"`
}

type listDetectionsResponse struct {
	RunID      string              `json:"run_id"`
	Detections []detectionResponse `json:"detections"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// toResponse converts a store.Run to a runResponse.
func toResponse(run *store.Run, stats store.RunStats) runResponse {
	resp := runResponse{
		ID:        run.ID,
		Method:    run.Method,
		Source:    run.Source,
		Width:     run.Width,
		Height:    run.Height,
		StartedAt: run.StartedAt.Format(time.RFC3339),
		Frames:    stats.Frames,
		Found:     stats.Found,
	}
	if run.FinishedAt != nil {
		finished := run.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &finished
	}
	return resp
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/runs and returns all runs.
func (h *RunHandler) list(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.Runs().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	response := listRunsResponse{
		Runs: make([]runResponse, 0, len(runs)),
	}

	for _, run := range runs {
		stats, err := h.store.Detections().Stats(run.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to count detections")
			return
		}
		response.Runs = append(response.Runs, toResponse(run, stats))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/runs/{id} and returns a single run.
func (h *RunHandler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	stats, err := h.store.Detections().Stats(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count detections")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(run, stats))
}

// delete handles DELETE /api/runs/{id}.
func (h *RunHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.Runs().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete run")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// detections handles GET /api/runs/{id}/detections.
func (h *RunHandler) detections(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	if _, err := h.store.Runs().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	detections, err := h.store.Detections().ListByRun(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list detections")
		return
	}

	response := listDetectionsResponse{
		RunID:      id,
		Detections: make([]detectionResponse, 0, len(detections)),
	}
	for _, d := range detections {
		response.Detections = append(response.Detections, detectionResponse{
			Seq:       d.Seq,
			Found:     d.Found,
			XMin:      d.XMin,
			XMax:      d.XMax,
			YMin:      d.YMin,
			YMax:      d.YMax,
			ElapsedUS: d.Elapsed.Microseconds(),
			CreatedAt: d.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, response)
}
