package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique scheduled job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewRunID generates a unique job run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewQueryID generates a unique query ID with the "qry_" prefix
func NewQueryID() string {
	return "qry_" + uuid.New().String()
}

// NewResultID generates a unique execution result ID with the "res_" prefix
func NewResultID() string {
	return "res_" + uuid.New().String()
}

// NewCollectorID generates a unique collector config ID with the "col_" prefix
func NewCollectorID() string {
	return "col_" + uuid.New().String()
}
