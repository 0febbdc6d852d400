package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SearchParams is the validated search request stored with the job.
type SearchParams struct {
	Query        string  `json:"query"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	RadiusMeters int     `json:"radius_meters"`
	Limit        int     `json:"limit"`
	Name         string  `json:"name,omitempty"`
}

type Job struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Status    JobStatus    `json:"status"`
	Progress  int          `json:"progress"`
	Error     *string      `json:"error,omitempty"`
	Params    SearchParams `json:"params"`
	Snapshot  *string      `json:"-"`
	OwnerID   string       `json:"-"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// JobSummary is the list view of a job; it never carries the snapshot.
type JobSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
