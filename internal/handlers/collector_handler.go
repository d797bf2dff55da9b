package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
)

// CollectorHandler handles HTTP requests for per-engine collector configs.
// Mutations apply to the next dispatch; in-flight work keeps its snapshot.
type CollectorHandler struct {
	collectorStorage interfaces.CollectorStorage
	logger           arbor.ILogger
}

// NewCollectorHandler creates a new collector config handler
func NewCollectorHandler(collectorStorage interfaces.CollectorStorage, logger arbor.ILogger) *CollectorHandler {
	return &CollectorHandler{
		collectorStorage: collectorStorage,
		logger:           logger,
	}
}

// ListCollectorsHandler handles GET /api/collectors
func (h *CollectorHandler) ListCollectorsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	configs, err := h.collectorStorage.ListConfigs(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list collector configs")
		WriteError(w, http.StatusInternalServerError, "Failed to list collector configs")
		return
	}

	if configs == nil {
		configs = []*models.CollectorConfig{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"collectors": configs,
		"count":      len(configs),
	})
}

// GetCollectorHandler handles GET /api/collectors/{engine}
func (h *CollectorHandler) GetCollectorHandler(w http.ResponseWriter, r *http.Request) {
	engine := extractEngine(r.URL.Path)
	if engine == "" {
		WriteError(w, http.StatusBadRequest, "Engine is required")
		return
	}

	config, err := h.collectorStorage.GetConfig(r.Context(), engine)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Collector config not found")
		return
	}

	WriteJSON(w, http.StatusOK, config)
}

// UpdateCollectorHandler handles PUT /api/collectors/{engine}
func (h *CollectorHandler) UpdateCollectorHandler(w http.ResponseWriter, r *http.Request) {
	engine := extractEngine(r.URL.Path)
	if engine == "" {
		WriteError(w, http.StatusBadRequest, "Engine is required")
		return
	}

	var config models.CollectorConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// The path names the engine; the body cannot move the config elsewhere
	config.Engine = engine

	if err := config.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid collector config: %v", err))
		return
	}

	if err := h.collectorStorage.SaveConfig(r.Context(), &config); err != nil {
		h.logger.Error().Err(err).Str("engine", engine).Msg("Failed to save collector config")
		WriteError(w, http.StatusInternalServerError, "Failed to save collector config")
		return
	}

	h.logger.Info().Str("engine", engine).Int("providers", len(config.Providers)).Msg("Collector config updated")
	WriteJSON(w, http.StatusOK, config)
}

// extractEngine extracts the engine name from paths like /api/collectors/{engine}
func extractEngine(path string) string {
	path = strings.TrimSuffix(path, "/")

	parts := strings.Split(path, "/")
	if len(parts) >= 4 && parts[1] == "api" && parts[2] == "collectors" {
		return parts[3]
	}

	return ""
}
