package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/interfaces"
)

// StatusHandler reports aggregate application status
type StatusHandler struct {
	storage   interfaces.StorageManager
	scheduler interfaces.SchedulerService
	startedAt time.Time
	logger    arbor.ILogger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(storage interfaces.StorageManager, scheduler interfaces.SchedulerService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		storage:   storage,
		scheduler: scheduler,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	ctx := r.Context()

	jobCount, err := h.storage.ScheduledJobStorage().CountJobs(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Job count failed")
	}
	jobsByType, err := h.storage.ScheduledJobStorage().CountJobsByType(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Job type count failed")
	}
	runsByStatus, err := h.storage.JobRunStorage().CountRunsByStatus(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Run status count failed")
	}
	resultsByStatus, err := h.storage.ResultStorage().CountResultsByStatus(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Result status count failed")
	}
	queryCount, err := h.storage.QueryStorage().CountQueries(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Query count failed")
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":           common.GetVersion(),
		"uptime":            time.Since(h.startedAt).Round(time.Second).String(),
		"scheduler_running": h.scheduler.IsRunning(),
		"jobs":              jobCount,
		"jobs_by_type":      jobsByType,
		"runs_by_status":    runsByStatus,
		"results_by_status": resultsByStatus,
		"queries":           queryCount,
	})
}
