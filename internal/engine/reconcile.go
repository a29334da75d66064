package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/pablopunk/bucky-sub000/internal/domain"
	"github.com/pablopunk/bucky-sub000/internal/metrics"
	"github.com/pablopunk/bucky-sub000/internal/schedule"

	"github.com/google/uuid"
)

const stuckMessage = "Job was stuck in progress for too long and was automatically reset"

// Reconciler repairs scheduling metadata and recovers from crashes. It is
// the only path that can rescue a job left in_progress by a dead process,
// since the execution gate is in-memory and lost on restart.
type Reconciler struct {
	jobs      domain.JobRepository
	history   domain.HistoryRepository
	gate      *Gate
	staleness time.Duration
	grace     time.Duration
	logger    *slog.Logger
}

// NewReconciler creates a reconciler. staleness is how long a job may stay
// in_progress before it is treated as abandoned; grace is how long a past
// next_run is left in place for the sweep before reconciliation pushes it
// forward (typically the sweep interval).
func NewReconciler(jobs domain.JobRepository, history domain.HistoryRepository, gate *Gate, staleness, grace time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		jobs:      jobs,
		history:   history,
		gate:      gate,
		staleness: staleness,
		grace:     grace,
		logger:    logger.With("component", "reconciler"),
	}
}

// RunOnce performs a single reconciliation pass. Per-job failures are
// logged and never abort the rest of the pass.
func (r *Reconciler) RunOnce(ctx context.Context) {
	jobs, err := r.jobs.List(ctx, domain.JobFilter{})
	if err != nil {
		r.logger.Error("failed to list jobs for reconciliation", "error", err)
		return
	}

	now := time.Now()
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.reconcileJob(ctx, job, now)
	}
}

func (r *Reconciler) reconcileJob(ctx context.Context, job *domain.Job, now time.Time) {
	logger := r.logger.With("job_id", job.ID, "job_name", job.Name)

	switch job.Status {
	case domain.JobStatusPaused:
		if job.NextRun != nil {
			if err := r.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusPaused, domain.StatusFields{ClearNextRun: true}); err != nil {
				logger.Error("failed to clear next run on paused job", "error", err)
			}
		}

	case domain.JobStatusInProgress:
		if r.gate.Running(job.ID) {
			return
		}
		if now.Sub(job.UpdatedAt) <= r.staleness {
			return
		}
		r.resetStuckJob(ctx, job, now, logger)

	case domain.JobStatusActive:
		if !job.Schedulable() || r.gate.Running(job.ID) {
			return
		}
		next, err := schedule.Next(job.Schedule, now)
		if err != nil {
			logger.Warn("invalid cron expression, marking job failed", "schedule", job.Schedule, "error", err)
			if uerr := r.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, domain.StatusFields{ClearNextRun: true}); uerr != nil {
				logger.Error("failed to mark job failed", "error", uerr)
			}
			return
		}
		if job.NextRun != nil {
			if !job.NextRun.Before(now) {
				return
			}
			// Recently due: the trigger belongs to the sweep, not to a
			// push-forward.
			if now.Sub(*job.NextRun) <= r.grace {
				return
			}
		}
		if err := r.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusActive, domain.StatusFields{NextRun: &next}); err != nil {
			logger.Error("failed to persist recomputed next run", "error", err)
		}
	}
}

// resetStuckJob transitions an abandoned in_progress job to failed with
// exactly one explanatory history record, then recomputes next_run so the
// schedule stays live.
func (r *Reconciler) resetStuckJob(ctx context.Context, job *domain.Job, now time.Time, logger *slog.Logger) {
	logger.Warn("resetting stuck job", "stuck_since", job.UpdatedAt)

	record := &domain.HistoryRecord{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		Status:    domain.HistoryStatusFailed,
		StartTime: job.UpdatedAt,
		EndTime:   &now,
		Message:   stuckMessage,
	}
	if err := r.history.Append(ctx, record); err != nil {
		logger.Error("failed to append stuck-job history record", "error", err)
	}

	fields := domain.StatusFields{}
	if next, err := schedule.Next(job.Schedule, now); err == nil {
		fields.NextRun = &next
	} else {
		fields.ClearNextRun = true
	}
	if err := r.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, fields); err != nil {
		logger.Error("failed to reset stuck job", "error", err)
		return
	}
	metrics.StuckJobsResetTotal.Inc()
}
