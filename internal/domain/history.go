package domain

import (
	"context"
	"fmt"
	"time"
)

// HistoryStatus defines the status of a single execution attempt.
type HistoryStatus string

const (
	HistoryStatusRunning HistoryStatus = "running"
	HistoryStatusSuccess HistoryStatus = "success"
	HistoryStatusFailed  HistoryStatus = "failed"
)

// HistoryRecord represents one execution attempt of a backup job. It is
// created in the running state at admission and transitions to exactly one
// terminal state per attempt. Records are never deleted by the engine.
type HistoryRecord struct {
	ID               string        `json:"id"`
	JobID            string        `json:"job_id"`
	Status           HistoryStatus `json:"status"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          *time.Time    `json:"end_time,omitempty"`
	SizeBytes        int64         `json:"size_bytes,omitempty"`
	FilesTransferred int           `json:"files_transferred,omitempty"`
	FilesDeleted     int           `json:"files_deleted,omitempty"`
	Message          string        `json:"message,omitempty"`
}

// Validate checks if the history record is valid.
func (r *HistoryRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("history record ID cannot be empty")
	}
	if r.JobID == "" {
		return fmt.Errorf("history record job ID cannot be empty")
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("history record start time cannot be zero")
	}
	if r.Status == "" {
		return fmt.Errorf("history record status cannot be empty")
	}
	return nil
}

// HistoryUpdate carries the fields written when an attempt reaches a
// terminal state.
type HistoryUpdate struct {
	Status           HistoryStatus
	EndTime          *time.Time
	SizeBytes        int64
	FilesTransferred int
	FilesDeleted     int
	Message          string
}

// HistoryRepository defines the interface for persisting and retrieving
// execution history records.
type HistoryRepository interface {
	// Append persists a new record, typically in the running state.
	Append(ctx context.Context, record *HistoryRecord) error
	// Update applies terminal fields to an existing record.
	Update(ctx context.Context, jobID, recordID string, update HistoryUpdate) error
	// ListByJob retrieves records for a job, newest first, with pagination.
	ListByJob(ctx context.Context, jobID string, page, pageSize int) ([]*HistoryRecord, error)
}
