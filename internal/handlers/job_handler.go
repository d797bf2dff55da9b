package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
)

var validate = validator.New()

// jobPayload is the create/update request body for scheduled jobs
type jobPayload struct {
	BrandID    string                 `json:"brand_id" validate:"required"`
	CustomerID string                 `json:"customer_id" validate:"required"`
	Name       string                 `json:"name" validate:"required"`
	Type       string                 `json:"type" validate:"required,oneof=collection scoring collection_and_scoring collection_retry"`
	Schedule   string                 `json:"schedule" validate:"required"`
	Timezone   string                 `json:"timezone"`
	Engines    []string               `json:"engines"`
	Enabled    *bool                  `json:"enabled"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedBy  string                 `json:"created_by"`
}

// JobHandler handles HTTP requests for scheduled job management
type JobHandler struct {
	jobStorage interfaces.ScheduledJobStorage
	runStorage interfaces.JobRunStorage
	scheduler  interfaces.SchedulerService
	logger     arbor.ILogger
}

// NewJobHandler creates a new scheduled job handler
func NewJobHandler(jobStorage interfaces.ScheduledJobStorage, runStorage interfaces.JobRunStorage, scheduler interfaces.SchedulerService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobStorage: jobStorage,
		runStorage: runStorage,
		scheduler:  scheduler,
		logger:     logger,
	}
}

// CreateJobHandler handles POST /api/jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var payload jobPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode job payload")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid job: %v", err))
		return
	}

	job := payloadToJob(&payload)
	job.ID = common.NewJobID()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt

	if err := job.Validate(); err != nil {
		h.logger.Error().Err(err).Str("name", job.Name).Msg("Job validation failed")
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid job: %v", err))
		return
	}

	if err := h.jobStorage.SaveJob(r.Context(), job); err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to save job")
		WriteError(w, http.StatusInternalServerError, "Failed to save job")
		return
	}

	h.logger.Info().Str("job_id", job.ID).Str("name", job.Name).Str("schedule", job.Schedule).Msg("Scheduled job created")
	WriteJSON(w, http.StatusCreated, job)
}

// ListJobsHandler handles GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	var (
		jobs []*models.ScheduledJob
		err  error
	)
	if brandID := r.URL.Query().Get("brand_id"); brandID != "" {
		jobs, err = h.jobStorage.ListJobsByBrand(r.Context(), brandID)
	} else {
		jobs, err = h.jobStorage.ListJobs(r.Context())
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	if jobs == nil {
		jobs = []*models.ScheduledJob{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	id := extractJobID(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.jobStorage.GetJob(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// UpdateJobHandler handles PUT /api/jobs/{id}
func (h *JobHandler) UpdateJobHandler(w http.ResponseWriter, r *http.Request) {
	id := extractJobID(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	existing, err := h.jobStorage.GetJob(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	var payload jobPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid job: %v", err))
		return
	}

	job := payloadToJob(&payload)
	job.ID = existing.ID
	job.CreatedAt = existing.CreatedAt
	job.CreatedBy = existing.CreatedBy
	job.UpdatedAt = time.Now()

	if err := job.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid job: %v", err))
		return
	}

	if err := h.jobStorage.SaveJob(r.Context(), job); err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to update job")
		WriteError(w, http.StatusInternalServerError, "Failed to update job")
		return
	}

	h.logger.Info().Str("job_id", job.ID).Str("name", job.Name).Msg("Scheduled job updated")
	WriteJSON(w, http.StatusOK, job)
}

// DeleteJobHandler handles DELETE /api/jobs/{id}.
// Jobs with run history are disabled rather than deleted so the audit trail
// stays intact; jobs with no runs are removed outright.
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request) {
	id := extractJobID(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.jobStorage.GetJob(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	runCount, err := h.runStorage.CountRunsForJob(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", id).Msg("Failed to count runs for job")
		WriteError(w, http.StatusInternalServerError, "Failed to delete job")
		return
	}

	if runCount > 0 {
		job.Enabled = false
		job.UpdatedAt = time.Now()
		if err := h.jobStorage.SaveJob(r.Context(), job); err != nil {
			h.logger.Error().Err(err).Str("job_id", id).Msg("Failed to disable job")
			WriteError(w, http.StatusInternalServerError, "Failed to delete job")
			return
		}
		h.logger.Info().Str("job_id", id).Int("runs", runCount).Msg("Job has run history, disabled instead of deleted")
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "disabled",
			"message": "Job has run history and was disabled instead of deleted",
			"runs":    runCount,
		})
		return
	}

	if err := h.jobStorage.DeleteJob(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("job_id", id).Msg("Failed to delete job")
		WriteError(w, http.StatusInternalServerError, "Failed to delete job")
		return
	}

	h.logger.Info().Str("job_id", id).Msg("Scheduled job deleted")
	w.WriteHeader(http.StatusNoContent)
}

// TriggerJobHandler handles POST /api/jobs/{id}/trigger
func (h *JobHandler) TriggerJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	id := extractJobID(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	run, err := h.scheduler.TriggerJob(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", id).Msg("Manual trigger failed")
		WriteError(w, http.StatusNotFound, fmt.Sprintf("Trigger failed: %v", err))
		return
	}

	h.logger.Info().Str("job_id", id).Str("run_id", run.ID).Msg("Job triggered manually")
	WriteJSON(w, http.StatusAccepted, run)
}

// ListJobRunsHandler handles GET /api/jobs/{id}/runs
func (h *JobHandler) ListJobRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := extractJobID(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	limit := QueryLimit(r, 50, 500)
	runs, err := h.runStorage.ListRunsForJob(r.Context(), id, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", id).Msg("Failed to list runs for job")
		WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	if runs == nil {
		runs = []*models.JobRun{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func payloadToJob(payload *jobPayload) *models.ScheduledJob {
	enabled := true
	if payload.Enabled != nil {
		enabled = *payload.Enabled
	}

	return &models.ScheduledJob{
		BrandID:    payload.BrandID,
		CustomerID: payload.CustomerID,
		Name:       payload.Name,
		Type:       models.JobType(payload.Type),
		Schedule:   payload.Schedule,
		Timezone:   payload.Timezone,
		Engines:    payload.Engines,
		Enabled:    enabled,
		Metadata:   payload.Metadata,
		CreatedBy:  payload.CreatedBy,
	}
}

// extractJobID extracts the job ID from paths like /api/jobs/{id}[/suffix]
func extractJobID(path string) string {
	path = strings.TrimSuffix(path, "/")
	path = strings.TrimSuffix(path, "/trigger")
	path = strings.TrimSuffix(path, "/runs")

	parts := strings.Split(path, "/")
	if len(parts) >= 4 && parts[1] == "api" && parts[2] == "jobs" {
		return parts[3]
	}

	return ""
}
