package models

import (
	"errors"
	"time"
)

// Query is a single textual prompt belonging to a brand. Only active queries
// are eligible for inclusion in a collection run.
type Query struct {
	ID         string    `json:"id"`          // Unique identifier (qry_<uuid>)
	BrandID    string    `json:"brand_id"`
	CustomerID string    `json:"customer_id"`
	Text       string    `json:"text"`        // The prompt sent to answer engines
	Topic      string    `json:"topic,omitempty"`
	Country    string    `json:"country,omitempty"` // Locale/country hint for the answer engine
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate validates the query
func (q *Query) Validate() error {
	if q.ID == "" {
		return errors.New("query ID is required")
	}
	if q.BrandID == "" {
		return errors.New("query brand ID is required")
	}
	if q.CustomerID == "" {
		return errors.New("query customer ID is required")
	}
	if q.Text == "" {
		return errors.New("query text is required")
	}
	return nil
}
