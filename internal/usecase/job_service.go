package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/pablopunk/bucky-sub000/internal/domain"
	"github.com/pablopunk/bucky-sub000/internal/engine"
	"github.com/pablopunk/bucky-sub000/internal/schedule"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// JobService implements the business operations on backup jobs exposed by
// the admin API: CRUD, history listing and control-plane actions.
type JobService struct {
	repo      domain.JobRepository
	histRepo  domain.HistoryRepository
	scheduler *engine.Scheduler
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewJobService creates a new JobService instance.
func NewJobService(repo domain.JobRepository, histRepo domain.HistoryRepository, scheduler *engine.Scheduler, logger *slog.Logger) *JobService {
	return &JobService{
		repo:      repo,
		histRepo:  histRepo,
		scheduler: scheduler,
		logger:    logger,
		tracer:    otel.Tracer("backupd-usecase"),
	}
}

// Save validates and persists a job, assigning an id on creation and
// precomputing next_run so a freshly saved active job is schedulable
// before the next reconciliation pass.
func (s *JobService) Save(ctx context.Context, job *domain.Job) error {
	ctx, span := s.tracer.Start(ctx, "service.Save")
	defer span.End()

	if job.Status == "" {
		job.Status = domain.JobStatusActive
	}
	if err := job.Validate(); err != nil {
		return err
	}

	now := time.Now()
	if job.ID == "" {
		job.ID = uuid.New().String()
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	span.SetAttributes(attribute.String("job.id", job.ID), attribute.String("job.name", job.Name))

	if job.Schedulable() {
		next, err := schedule.Next(job.Schedule, now)
		if err != nil {
			span.RecordError(err)
			return err
		}
		job.NextRun = &next
	} else if job.Status == domain.JobStatusPaused {
		job.NextRun = nil
	}

	if err := s.repo.Save(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save job to repository")
		return err
	}
	return nil
}

// Delete removes a job definition. Its history is retained.
func (s *JobService) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "service.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	if err := s.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete job from repository")
		return err
	}
	return nil
}

// Get fetches one job.
func (s *JobService) Get(ctx context.Context, id string) (*domain.Job, error) {
	ctx, span := s.tracer.Start(ctx, "service.Get")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get job from repository")
	}
	return job, err
}

// List returns all jobs.
func (s *JobService) List(ctx context.Context) ([]*domain.Job, error) {
	ctx, span := s.tracer.Start(ctx, "service.List")
	defer span.End()

	jobs, err := s.repo.List(ctx, domain.JobFilter{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list jobs from repository")
	}
	return jobs, err
}

// ListHistory lists the execution history for a job, newest first.
func (s *JobService) ListHistory(ctx context.Context, jobID string, page, pageSize int) ([]*domain.HistoryRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListHistory")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", jobID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	records, err := s.histRepo.ListByJob(ctx, jobID, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list job history from repository")
	}
	return records, err
}

// RunNow triggers an immediate execution.
func (s *JobService) RunNow(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "service.RunNow")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))
	return s.scheduler.RunNow(ctx, id)
}

// Pause takes a job off the schedule.
func (s *JobService) Pause(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "service.Pause")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))
	return s.scheduler.Pause(ctx, id)
}

// Resume puts a paused job back on the schedule.
func (s *JobService) Resume(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "service.Resume")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))
	return s.scheduler.Resume(ctx, id)
}

// Stop abandons an in-flight run.
func (s *JobService) Stop(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "service.Stop")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))
	return s.scheduler.StopJob(ctx, id)
}
