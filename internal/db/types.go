package db

import (
	"time"

	"github.com/google/uuid"
)

// Run represents a ULP run record
type Run struct {
	ID             uuid.UUID  `json:"id"`
	UnitTitle      string     `json:"unit_title"`
	Language       string     `json:"language"`
	Status         string     `json:"status"`
	TotalTasks     int        `json:"total_tasks"`
	CompletedTasks int        `json:"completed_tasks"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// RunFilters holds optional filters for listing runs
type RunFilters struct {
	Status    string
	UnitTitle string
	Limit     int
}
