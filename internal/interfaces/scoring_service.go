package interfaces

import (
	"context"
	"time"
)

// ScoreRequest asks the scoring collaborator to process a brand's collected
// answers since a cutoff.
type ScoreRequest struct {
	BrandID    string     `json:"brand_id"`
	CustomerID string     `json:"customer_id"`
	Since      *time.Time `json:"since,omitempty"`
}

// ScoreResponse reports what the collaborator processed
type ScoreResponse struct {
	PositionsProcessed  int `json:"positions_processed"`
	SentimentsProcessed int `json:"sentiments_processed"`
}

// ScoringService is the external scoring collaborator. Sentiment and position
// algorithms live behind this interface, outside this service.
type ScoringService interface {
	ScoreBrand(ctx context.Context, req ScoreRequest) (*ScoreResponse, error)
}
