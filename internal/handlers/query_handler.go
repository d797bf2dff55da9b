package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
)

// queryPayload is the create/update request body for brand queries
type queryPayload struct {
	BrandID    string `json:"brand_id" validate:"required"`
	CustomerID string `json:"customer_id" validate:"required"`
	Text       string `json:"text" validate:"required"`
	Topic      string `json:"topic"`
	Country    string `json:"country"`
	Active     *bool  `json:"active"`
}

// QueryHandler handles HTTP requests for brand query management
type QueryHandler struct {
	queryStorage interfaces.QueryStorage
	logger       arbor.ILogger
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(queryStorage interfaces.QueryStorage, logger arbor.ILogger) *QueryHandler {
	return &QueryHandler{
		queryStorage: queryStorage,
		logger:       logger,
	}
}

// CreateQueryHandler handles POST /api/queries
func (h *QueryHandler) CreateQueryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var payload queryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid query: %v", err))
		return
	}

	query := &models.Query{
		ID:         common.NewQueryID(),
		BrandID:    payload.BrandID,
		CustomerID: payload.CustomerID,
		Text:       payload.Text,
		Topic:      payload.Topic,
		Country:    payload.Country,
		Active:     payload.Active == nil || *payload.Active,
		CreatedAt:  time.Now(),
	}

	if err := query.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid query: %v", err))
		return
	}

	if err := h.queryStorage.SaveQuery(r.Context(), query); err != nil {
		h.logger.Error().Err(err).Str("query_id", query.ID).Msg("Failed to save query")
		WriteError(w, http.StatusInternalServerError, "Failed to save query")
		return
	}

	h.logger.Info().Str("query_id", query.ID).Str("brand_id", query.BrandID).Msg("Query created")
	WriteJSON(w, http.StatusCreated, query)
}

// ListQueriesHandler handles GET /api/queries?brand_id=...
func (h *QueryHandler) ListQueriesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	brandID := r.URL.Query().Get("brand_id")
	if brandID == "" {
		WriteError(w, http.StatusBadRequest, "brand_id query parameter is required")
		return
	}

	queries, err := h.queryStorage.ListQueriesByBrand(r.Context(), brandID)
	if err != nil {
		h.logger.Error().Err(err).Str("brand_id", brandID).Msg("Failed to list queries")
		WriteError(w, http.StatusInternalServerError, "Failed to list queries")
		return
	}

	if queries == nil {
		queries = []*models.Query{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"queries": queries,
		"count":   len(queries),
	})
}

// GetQueryHandler handles GET /api/queries/{id}
func (h *QueryHandler) GetQueryHandler(w http.ResponseWriter, r *http.Request) {
	id := extractQueryID(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Query ID is required")
		return
	}

	query, err := h.queryStorage.GetQuery(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Query not found")
		return
	}

	WriteJSON(w, http.StatusOK, query)
}

// DeleteQueryHandler handles DELETE /api/queries/{id}
func (h *QueryHandler) DeleteQueryHandler(w http.ResponseWriter, r *http.Request) {
	id := extractQueryID(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Query ID is required")
		return
	}

	if err := h.queryStorage.DeleteQuery(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("query_id", id).Msg("Failed to delete query")
		WriteError(w, http.StatusInternalServerError, "Failed to delete query")
		return
	}

	h.logger.Info().Str("query_id", id).Msg("Query deleted")
	w.WriteHeader(http.StatusNoContent)
}

// extractQueryID extracts the query ID from paths like /api/queries/{id}
func extractQueryID(path string) string {
	path = strings.TrimSuffix(path, "/")

	parts := strings.Split(path, "/")
	if len(parts) >= 4 && parts[1] == "api" && parts[2] == "queries" {
		return parts[3]
	}

	return ""
}
