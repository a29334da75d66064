package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pablopunk/bucky-sub000/internal/domain"
	"github.com/pablopunk/bucky-sub000/internal/infra/rclone"
	"github.com/pablopunk/bucky-sub000/internal/metrics"
	"github.com/pablopunk/bucky-sub000/internal/schedule"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const stoppedMessage = "Job stopped manually"

// InvocationBuilder turns a job plus its resolved provider into a
// transfer-tool invocation. The cleanup func releases any temporary
// artifacts (e.g. the rendered tool config) and must run on every exit
// path.
type InvocationBuilder interface {
	Build(provider *domain.Provider, job *domain.Job) (domain.Invocation, func(), error)
}

// NotifyPolicy controls which terminal states are announced and to whom.
type NotifyPolicy struct {
	OnSuccess  bool
	OnFailure  bool
	Recipients []string
}

// Runner executes a single backup job end to end: resolve job and
// credentials, invoke the transfer tool with retries, classify the result
// and persist job status plus history.
type Runner struct {
	jobs      domain.JobRepository
	history   domain.HistoryRepository
	providers domain.ProviderStore
	transfer  domain.Transferer
	notifier  domain.Notifier
	builder   InvocationBuilder

	notify      NotifyPolicy
	maxAttempts int
	backoff     time.Duration

	logger *slog.Logger
	tracer trace.Tracer
}

// RunnerDeps bundles the collaborators a Runner needs.
type RunnerDeps struct {
	Jobs      domain.JobRepository
	History   domain.HistoryRepository
	Providers domain.ProviderStore
	Transfer  domain.Transferer
	Notifier  domain.Notifier
	Builder   InvocationBuilder

	Notify      NotifyPolicy
	MaxAttempts int
	Backoff     time.Duration
}

// NewRunner creates a job runner. MaxAttempts below 1 is treated as 1.
func NewRunner(deps RunnerDeps, logger *slog.Logger) *Runner {
	if deps.MaxAttempts < 1 {
		deps.MaxAttempts = 1
	}
	builder := deps.Builder
	if builder == nil {
		builder = rcloneBuilder{}
	}
	return &Runner{
		jobs:        deps.Jobs,
		history:     deps.History,
		providers:   deps.Providers,
		transfer:    deps.Transfer,
		notifier:    deps.Notifier,
		builder:     builder,
		notify:      deps.Notify,
		maxAttempts: deps.MaxAttempts,
		backoff:     deps.Backoff,
		logger:      logger.With("component", "job-runner"),
		tracer:      otel.Tracer("backupd-runner"),
	}
}

// rcloneBuilder is the default InvocationBuilder: it renders the provider
// credentials into a temp config file and derives flags from job options.
type rcloneBuilder struct{}

func (rcloneBuilder) Build(provider *domain.Provider, job *domain.Job) (domain.Invocation, func(), error) {
	confPath, cleanup, err := rclone.WriteConfigFile(provider)
	if err != nil {
		return domain.Invocation{}, nil, err
	}
	return domain.Invocation{
		Source:      job.SourcePath,
		Destination: rclone.DestinationURI(provider, job.RemotePath),
		ConfigPath:  confPath,
		Flags:       rclone.Flags(job.Options),
	}, cleanup, nil
}

// Execute runs one attempt cycle for the job id. All errors are converted
// into persisted state; nothing propagates to the caller, so one bad job
// never stops the drain loop.
func (r *Runner) Execute(ctx context.Context, jobID string) {
	ctx, span := r.tracer.Start(ctx, "runner.Execute",
		trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	logger := r.logger.With("job_id", jobID)

	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		// Nothing to attach a history record to.
		if errors.Is(err, domain.ErrJobNotFound) {
			logger.Warn("job vanished before execution")
		} else {
			logger.Error("failed to load job", "error", err)
			span.RecordError(err)
		}
		return
	}
	logger = logger.With("job_name", job.Name)
	span.SetAttributes(attribute.String("job.name", job.Name))

	provider, err := r.resolveProvider(ctx, job)
	if err != nil {
		logger.Error("provider configuration error", "provider_id", job.ProviderID, "error", err)
		span.RecordError(err)
		r.failWithoutRun(ctx, job, fmt.Sprintf("Backup failed: %v", err), logger)
		return
	}

	start := time.Now()
	record := &domain.HistoryRecord{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		Status:    domain.HistoryStatusRunning,
		StartTime: start,
	}
	if err := r.history.Append(ctx, record); err != nil {
		logger.Error("failed to append running history record", "error", err)
		span.RecordError(err)
		// Proceed; the execution itself matters more than its bookkeeping.
	}
	if err := r.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusInProgress, domain.StatusFields{}); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			logger.Warn("job deleted at admission")
			r.updateHistory(ctx, record, domain.HistoryUpdate{
				Status:  domain.HistoryStatusFailed,
				EndTime: timePtr(time.Now()),
				Message: "Job was deleted before execution started",
			}, logger)
			return
		}
		logger.Error("failed to mark job in progress", "error", err)
	}

	inv, cleanup, err := r.builder.Build(provider, job)
	if err != nil {
		logger.Error("failed to build transfer invocation", "error", err)
		span.RecordError(err)
		r.finish(ctx, job, record, outcome{
			failed:  true,
			message: fmt.Sprintf("Backup failed: %v", err),
		}, logger)
		return
	}
	defer cleanup()

	res, runErr := r.invokeWithRetries(ctx, inv, logger)

	// A transfer that already completed wins over any cancellation that
	// raced with it; only a failed attempt is classified by cause.
	if runErr != nil && errors.Is(context.Cause(ctx), errStopRequested) {
		logger.Info("execution stopped")
		r.finish(ctx, job, record, outcome{failed: true, message: stoppedMessage}, logger)
		return
	}

	if runErr != nil {
		msg := fmt.Sprintf("Backup failed: %v", runErr)
		if tail := rclone.Tail(res.Stderr, 5); tail != "" {
			msg += "\n" + tail
		}
		r.finish(ctx, job, record, outcome{failed: true, message: msg}, logger)
		return
	}

	summary := rclone.ParseSummary(res.Stdout)
	r.finish(ctx, job, record, outcome{
		summary: summary,
		message: fmt.Sprintf("Backup completed successfully. Files transferred: %d, Files deleted: %d",
			summary.FilesTransferred, summary.FilesDeleted),
	}, logger)
}

func (r *Runner) resolveProvider(ctx context.Context, job *domain.Job) (*domain.Provider, error) {
	provider, err := r.providers.Get(ctx, job.ProviderID)
	if err != nil {
		return nil, &domain.ConfigError{ProviderID: job.ProviderID, Err: err}
	}
	if err := provider.Validate(); err != nil {
		return nil, &domain.ConfigError{ProviderID: job.ProviderID, Err: err}
	}
	return provider, nil
}

// invokeWithRetries spawns the transfer tool up to maxAttempts times.
// Both spawn failures and non-zero exits count as failed attempts.
func (r *Runner) invokeWithRetries(ctx context.Context, inv domain.Invocation, logger *slog.Logger) (domain.Result, error) {
	var res domain.Result
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		var err error
		res, err = r.transfer.Transfer(ctx, inv)
		if err == nil && res.ExitCode == 0 {
			return res, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("transfer tool exited with code %d", res.ExitCode)
		}
		if ctx.Err() != nil {
			return res, lastErr
		}

		logger.Warn("transfer attempt failed", "attempt", attempt, "max_attempts", r.maxAttempts, "error", lastErr)
		if attempt < r.maxAttempts && r.backoff > 0 {
			select {
			case <-time.After(r.backoff):
			case <-ctx.Done():
				return res, lastErr
			}
		}
	}
	return res, lastErr
}

type outcome struct {
	failed  bool
	message string
	summary rclone.Summary
}

// finish converts the attempt outcome into persisted state: terminal
// history record, job status with recomputed next_run, metrics and
// notifications. It runs on a detached context so a manual stop or
// shutdown cannot lose the terminal writes.
func (r *Runner) finish(ctx context.Context, job *domain.Job, record *domain.HistoryRecord, out outcome, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	end := time.Now()

	update := domain.HistoryUpdate{
		EndTime: &end,
		Message: out.message,
	}
	finalStatus := "failed"
	if out.failed {
		update.Status = domain.HistoryStatusFailed
	} else {
		update.Status = domain.HistoryStatusSuccess
		update.SizeBytes = out.summary.Bytes
		update.FilesTransferred = out.summary.FilesTransferred
		update.FilesDeleted = out.summary.FilesDeleted
		finalStatus = "success"
	}
	r.updateHistory(ctx, record, update, logger)

	metrics.BackupRunsTotal.WithLabelValues(job.Name, finalStatus).Inc()
	if !out.failed && out.summary.Bytes > 0 {
		metrics.BackupBytesTotal.WithLabelValues(job.Name).Add(float64(out.summary.Bytes))
	}

	r.writeTerminalJobStatus(ctx, job, out.failed, end, logger)
	r.dispatchNotifications(ctx, job, out, end, logger)

	if out.failed {
		logger.Error("backup execution failed", "message", out.message)
	} else {
		logger.Info("backup execution succeeded",
			"size_bytes", out.summary.Bytes,
			"files_transferred", out.summary.FilesTransferred,
			"files_deleted", out.summary.FilesDeleted)
	}
}

// failWithoutRun handles configuration errors: one terminal history record
// and a failed job status, with next_run still recomputed so the schedule
// keeps showing future attempts. No subprocess is spawned.
func (r *Runner) failWithoutRun(ctx context.Context, job *domain.Job, message string, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	now := time.Now()

	record := &domain.HistoryRecord{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		Status:    domain.HistoryStatusFailed,
		StartTime: now,
		EndTime:   &now,
		Message:   message,
	}
	if err := r.history.Append(ctx, record); err != nil {
		logger.Error("failed to append history record", "error", err)
	}

	metrics.BackupRunsTotal.WithLabelValues(job.Name, "failed").Inc()
	r.writeTerminalJobStatus(ctx, job, true, now, logger)
	r.dispatchNotifications(ctx, job, outcome{failed: true, message: message}, now, logger)
}

// writeTerminalJobStatus re-reads the job before writing so a concurrent
// pause or delete is respected, then persists the terminal status with a
// freshly computed next_run.
func (r *Runner) writeTerminalJobStatus(ctx context.Context, job *domain.Job, failed bool, end time.Time, logger *slog.Logger) {
	current, err := r.jobs.Get(ctx, job.ID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			logger.Info("job deleted during execution, skipping status write")
		} else {
			logger.Error("failed to re-read job for terminal status", "error", err)
		}
		return
	}

	if current.Status == domain.JobStatusPaused {
		// A concurrent pause wins; record last_run but leave next_run absent.
		if err := r.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusPaused, domain.StatusFields{
			ClearNextRun: true,
			LastRun:      &end,
		}); err != nil {
			logger.Error("failed to record last run on paused job", "error", err)
		}
		return
	}

	status := domain.JobStatusActive
	if failed {
		status = domain.JobStatusFailed
	}

	// Recompute from the re-read job so a schedule edited mid-run takes
	// effect immediately.
	fields := domain.StatusFields{LastRun: &end}
	next, err := schedule.Next(current.Schedule, end)
	if err != nil {
		logger.Error("invalid cron expression, clearing next run", "schedule", current.Schedule, "error", err)
		status = domain.JobStatusFailed
		fields.ClearNextRun = true
	} else {
		fields.NextRun = &next
	}

	if err := r.jobs.UpdateStatus(ctx, job.ID, status, fields); err != nil && !errors.Is(err, domain.ErrJobNotFound) {
		logger.Error("failed to write terminal job status", "error", err)
	}
}

// dispatchNotifications sends the outcome to every configured recipient,
// continuing past individual failures.
func (r *Runner) dispatchNotifications(ctx context.Context, job *domain.Job, out outcome, at time.Time, logger *slog.Logger) {
	if r.notifier == nil {
		return
	}
	if out.failed && !r.notify.OnFailure {
		return
	}
	if !out.failed && !r.notify.OnSuccess {
		return
	}

	verdict := "Succeeded"
	status := "success"
	if out.failed {
		verdict = "Failed"
		status = "failed"
	}
	subject := fmt.Sprintf("Backup Job %s: %s", verdict, job.Name)
	msg := domain.Notification{
		JobName:   job.Name,
		Status:    status,
		Message:   out.message,
		Timestamp: at,
	}

	for _, recipient := range r.notify.Recipients {
		if err := r.notifier.Notify(ctx, recipient, subject, msg); err != nil {
			metrics.NotificationFailuresTotal.Inc()
			logger.Warn("failed to deliver notification", "recipient", recipient, "error", err)
		}
	}
}

func (r *Runner) updateHistory(ctx context.Context, record *domain.HistoryRecord, update domain.HistoryUpdate, logger *slog.Logger) {
	if err := r.history.Update(ctx, record.JobID, record.ID, update); err != nil {
		logger.Error("failed to update history record", "history_id", record.ID, "error", err)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
