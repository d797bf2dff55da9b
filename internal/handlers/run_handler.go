package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
)

// RunHandler handles HTTP requests for job run inspection
type RunHandler struct {
	runStorage    interfaces.JobRunStorage
	resultStorage interfaces.ResultStorage
	logger        arbor.ILogger
}

// NewRunHandler creates a new job run handler
func NewRunHandler(runStorage interfaces.JobRunStorage, resultStorage interfaces.ResultStorage, logger arbor.ILogger) *RunHandler {
	return &RunHandler{
		runStorage:    runStorage,
		resultStorage: resultStorage,
		logger:        logger,
	}
}

// ListRunsHandler handles GET /api/runs
func (h *RunHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		runs, err := h.runStorage.ListRunsByStatus(r.Context(), models.RunStatus(status))
		if err != nil {
			h.logger.Error().Err(err).Str("status", status).Msg("Failed to list runs by status")
			WriteError(w, http.StatusInternalServerError, "Failed to list runs")
			return
		}
		writeRuns(w, runs)
		return
	}

	limit := QueryLimit(r, 50, 500)
	runs, err := h.runStorage.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	writeRuns(w, runs)
}

// GetRunHandler handles GET /api/runs/{id}
func (h *RunHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := extractRunID(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	run, err := h.runStorage.GetRun(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Run not found")
		return
	}

	WriteJSON(w, http.StatusOK, run)
}

// GetRunResultsHandler handles GET /api/runs/{id}/results
func (h *RunHandler) GetRunResultsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := extractRunID(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	results, err := h.resultStorage.ListResultsForRun(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", id).Msg("Failed to list run results")
		WriteError(w, http.StatusInternalServerError, "Failed to list results")
		return
	}

	if results == nil {
		results = []*models.ExecutionResult{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

func writeRuns(w http.ResponseWriter, runs []*models.JobRun) {
	if runs == nil {
		runs = []*models.JobRun{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// extractRunID extracts the run ID from paths like /api/runs/{id}[/results]
func extractRunID(path string) string {
	path = strings.TrimSuffix(path, "/")
	path = strings.TrimSuffix(path, "/results")

	parts := strings.Split(path, "/")
	if len(parts) >= 4 && parts[1] == "api" && parts[2] == "runs" {
		return parts[3]
	}

	return ""
}
