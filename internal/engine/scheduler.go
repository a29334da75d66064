package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pablopunk/bucky-sub000/internal/domain"
	"github.com/pablopunk/bucky-sub000/internal/schedule"

	"github.com/google/uuid"
)

// ErrJobNotRunning is returned by StopJob when there is nothing to stop.
var ErrJobNotRunning = errors.New("job is not running")

// ErrJobInProgress is returned by Pause for a job that is mid-execution.
var ErrJobInProgress = errors.New("job is currently running")

// Scheduler is the top-level coordinator: one reconciliation pass at
// startup, then a periodic sweep that admits due jobs into the execution
// gate, with the reconciler running concurrently on its own interval.
// Construct one per process and pass it by reference; there is no ambient
// global instance.
type Scheduler struct {
	jobs       domain.JobRepository
	history    domain.HistoryRepository
	gate       *Gate
	reconciler *Reconciler

	sweepInterval     time.Duration
	reconcileInterval time.Duration

	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SchedulerOptions configure a Scheduler.
type SchedulerOptions struct {
	Jobs              domain.JobRepository
	History           domain.HistoryRepository
	Gate              *Gate
	Reconciler        *Reconciler
	SweepInterval     time.Duration
	ReconcileInterval time.Duration
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(opts SchedulerOptions, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		jobs:              opts.Jobs,
		history:           opts.History,
		gate:              opts.Gate,
		reconciler:        opts.Reconciler,
		sweepInterval:     opts.SweepInterval,
		reconcileInterval: opts.ReconcileInterval,
		logger:            logger.With("component", "scheduler"),
	}
}

// Start runs one reconciliation pass, then launches the gate drain, the
// sweep ticker and the reconcile ticker. It returns once everything is
// armed.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.reconciler.RunOnce(runCtx)
	s.gate.Start(runCtx)

	s.wg.Add(2)
	go s.sweepLoop(runCtx)
	go s.reconcileLoop(runCtx)

	s.logger.Info("scheduler started",
		"sweep_interval", s.sweepInterval,
		"reconcile_interval", s.reconcileInterval)
	return nil
}

// Shutdown stops accepting triggers and waits, bounded by ctx, for the
// in-flight job to finish. It never blocks indefinitely.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.gate.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler shutdown timed out with work in flight")
		return ctx.Err()
	}
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep admits every due job. Failed jobs keep their schedule, so they are
// swept too and keep retrying until a user intervenes.
func (s *Scheduler) sweep(ctx context.Context) {
	now := time.Now()
	due, err := s.jobs.List(ctx, domain.JobFilter{
		Statuses:  []domain.JobStatus{domain.JobStatusActive, domain.JobStatusFailed},
		DueBefore: &now,
	})
	if err != nil {
		s.logger.Error("failed to list due jobs", "error", err)
		return
	}
	for _, job := range due {
		if s.gate.Enqueue(job.ID) {
			s.logger.Info("job due, admitted for execution", "job_id", job.ID, "job_name", job.Name)
		}
	}
}

func (s *Scheduler) reconcileLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconciler.RunOnce(ctx)
		}
	}
}

// RunNow admits the job for immediate execution. A duplicate trigger while
// the job is queued or running is dropped silently (logged, not an error).
func (s *Scheduler) RunNow(ctx context.Context, jobID string) error {
	if _, err := s.jobs.Get(ctx, jobID); err != nil {
		return err
	}
	s.gate.Enqueue(jobID)
	return nil
}

// Pause moves the job out of scheduling and clears next_run. A job that is
// mid-execution cannot be paused; stop it instead.
func (s *Scheduler) Pause(ctx context.Context, jobID string) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == domain.JobStatusInProgress || s.gate.Running(jobID) {
		return ErrJobInProgress
	}
	return s.jobs.UpdateStatus(ctx, jobID, domain.JobStatusPaused, domain.StatusFields{ClearNextRun: true})
}

// Resume reactivates a paused job and recomputes next_run immediately.
func (s *Scheduler) Resume(ctx context.Context, jobID string) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusPaused {
		return nil
	}
	next, err := schedule.Next(job.Schedule, time.Now())
	if err != nil {
		if uerr := s.jobs.UpdateStatus(ctx, jobID, domain.JobStatusFailed, domain.StatusFields{ClearNextRun: true}); uerr != nil {
			s.logger.Error("failed to mark job failed on resume", "job_id", jobID, "error", uerr)
		}
		return err
	}
	return s.jobs.UpdateStatus(ctx, jobID, domain.JobStatusActive, domain.StatusFields{NextRun: &next})
}

// StopJob abandons an in-flight run. If the job is executing right now its
// subprocess context is canceled and the runner records the stop; if the
// persisted status is in_progress without a gate entry (crash leftover),
// the stop is recorded directly.
func (s *Scheduler) StopJob(ctx context.Context, jobID string) error {
	if s.gate.Cancel(jobID) {
		s.logger.Info("canceled in-flight execution", "job_id", jobID)
		return nil
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusInProgress {
		return ErrJobNotRunning
	}

	now := time.Now()
	record := &domain.HistoryRecord{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Status:    domain.HistoryStatusFailed,
		StartTime: job.UpdatedAt,
		EndTime:   &now,
		Message:   stoppedMessage,
	}
	if err := s.history.Append(ctx, record); err != nil {
		s.logger.Error("failed to append stop history record", "job_id", jobID, "error", err)
	}

	fields := domain.StatusFields{}
	if next, serr := schedule.Next(job.Schedule, now); serr == nil {
		fields.NextRun = &next
	} else {
		fields.ClearNextRun = true
	}
	return s.jobs.UpdateStatus(ctx, jobID, domain.JobStatusFailed, fields)
}
