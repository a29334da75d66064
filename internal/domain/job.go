package domain

import (
	"fmt"
	"time"
)

// JobStatus defines the lifecycle state of a backup job.
type JobStatus string

const (
	JobStatusActive     JobStatus = "active"
	JobStatusPaused     JobStatus = "paused"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusFailed     JobStatus = "failed"
)

// BackupOptions are per-job settings translated into transfer-tool flags.
type BackupOptions struct {
	Compress            bool `json:"compress,omitempty"`
	TransferConcurrency int  `json:"transfer_concurrency,omitempty"`
	DeleteExtraneous    bool `json:"delete_extraneous,omitempty"`
}

// Job represents a scheduled backup definition: a source path synced to a
// remote storage provider on a cron schedule.
type Job struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	SourcePath    string        `json:"source_path"`
	RemotePath    string        `json:"remote_path"`
	ProviderID    string        `json:"provider_id"`
	Schedule      string        `json:"schedule"` // 5-field cron expression
	Status        JobStatus     `json:"status"`
	NextRun       *time.Time    `json:"next_run,omitempty"`
	LastRun       *time.Time    `json:"last_run,omitempty"`
	RetentionDays int           `json:"retention_days,omitempty"`
	Options       BackupOptions `json:"options"`
	CreatedAt     time.Time     `json:"created_at"`
	// UpdatedAt is bumped on every status write and doubles as the
	// staleness timestamp for stuck-job detection.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the job definition is valid.
func (j *Job) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if j.SourcePath == "" {
		return fmt.Errorf("job source path cannot be empty")
	}
	if j.ProviderID == "" {
		return fmt.Errorf("job provider id cannot be empty")
	}
	if j.Schedule == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	if j.Options.TransferConcurrency < 0 {
		return fmt.Errorf("transfer concurrency cannot be negative")
	}
	switch j.Status {
	case "", JobStatusActive, JobStatusPaused, JobStatusInProgress, JobStatusFailed:
	default:
		return fmt.Errorf("invalid job status: %s", j.Status)
	}
	return nil
}

// Schedulable reports whether the reconciler should maintain next_run
// for this job.
func (j *Job) Schedulable() bool {
	return j.Status == JobStatusActive && j.Schedule != ""
}
