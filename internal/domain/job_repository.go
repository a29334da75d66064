package domain

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is a sentinel error returned when a job is not found.
// A job id may legitimately vanish between a read and a write (user
// deletion); callers treat this as an aborted attempt, not a crash.
var ErrJobNotFound = errors.New("job not found")

// JobFilter narrows List results. Zero value matches every job.
type JobFilter struct {
	// Statuses restricts to jobs in any of the given states.
	Statuses []JobStatus
	// DueBefore restricts to jobs whose next_run is set and not after
	// the given instant.
	DueBefore *time.Time
}

// Matches reports whether the job passes the filter.
func (f JobFilter) Matches(j *Job) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if j.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.DueBefore != nil {
		if j.NextRun == nil || j.NextRun.After(*f.DueBefore) {
			return false
		}
	}
	return true
}

// StatusFields carries the optional scheduling timestamps written together
// with a status transition. A nil pointer leaves the stored value unchanged;
// ClearNextRun forces next_run to absent.
type StatusFields struct {
	NextRun      *time.Time
	ClearNextRun bool
	LastRun      *time.Time
}

// JobRepository defines the interface for persisting and retrieving
// backup job definitions. Implementations must be safe for concurrent
// callers; single-writer discipline per job id is sufficient.
type JobRepository interface {
	Save(ctx context.Context, job *Job) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, filter JobFilter) ([]*Job, error)
	// UpdateStatus transitions the job's status and applies the given
	// scheduling fields in one write, bumping UpdatedAt.
	UpdateStatus(ctx context.Context, id string, status JobStatus, fields StatusFields) error
}
