package engine

import (
	"context"
	"testing"
	"time"

	"github.com/pablopunk/bucky-sub000/internal/domain"
	"github.com/pablopunk/bucky-sub000/internal/infra/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idleGate() *Gate {
	return NewGate(4, func(context.Context, string) {}, testLogger())
}

func seedJob(t *testing.T, jobs *memory.JobRepository, id string, status domain.JobStatus, nextRun *time.Time) *domain.Job {
	t.Helper()
	job := &domain.Job{
		ID:         id,
		Name:       "job-" + id,
		SourcePath: "/data",
		RemotePath: "data",
		ProviderID: "prov-1",
		Schedule:   "*/5 * * * *",
		Status:     status,
		NextRun:    nextRun,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, jobs.Save(context.Background(), job))
	return job
}

func TestReconcilerResetsStuckJob(t *testing.T) {
	jobs := memory.NewJobRepository()
	history := memory.NewHistoryRepository()
	seedJob(t, jobs, "stuck", domain.JobStatusInProgress, nil)
	stuckSince := time.Now().Add(-2 * time.Hour)
	jobs.Touch("stuck", stuckSince)

	r := NewReconciler(jobs, history, idleGate(), time.Hour, time.Minute, testLogger())
	r.RunOnce(context.Background())

	job, err := jobs.Get(context.Background(), "stuck")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	require.NotNil(t, job.NextRun)
	assert.True(t, job.NextRun.After(time.Now()))

	records, err := history.ListByJob(context.Background(), "stuck", 1, 10)
	require.NoError(t, err)
	require.Len(t, records, 1, "exactly one record per stuck reset")
	assert.Equal(t, domain.HistoryStatusFailed, records[0].Status)
	assert.Equal(t, "Job was stuck in progress for too long and was automatically reset", records[0].Message)
	assert.WithinDuration(t, stuckSince, records[0].StartTime, time.Second)
	require.NotNil(t, records[0].EndTime)
}

func TestReconcilerLeavesFreshInProgressJob(t *testing.T) {
	jobs := memory.NewJobRepository()
	history := memory.NewHistoryRepository()
	seedJob(t, jobs, "fresh", domain.JobStatusInProgress, nil)

	r := NewReconciler(jobs, history, idleGate(), time.Hour, time.Minute, testLogger())
	r.RunOnce(context.Background())

	job, err := jobs.Get(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusInProgress, job.Status)

	records, err := history.ListByJob(context.Background(), "fresh", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReconcilerLeavesActivelyRunningJob(t *testing.T) {
	jobs := memory.NewJobRepository()
	history := memory.NewHistoryRepository()
	seedJob(t, jobs, "live", domain.JobStatusInProgress, nil)
	jobs.Touch("live", time.Now().Add(-2*time.Hour))

	block := make(chan struct{})
	gate := NewGate(4, func(ctx context.Context, id string) { <-block }, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		close(block)
		gate.Wait()
	}()
	gate.Start(ctx)
	require.True(t, gate.Enqueue("live"))
	require.Eventually(t, func() bool { return gate.Running("live") }, 2*time.Second, 10*time.Millisecond)

	r := NewReconciler(jobs, history, gate, time.Hour, time.Minute, testLogger())
	r.RunOnce(context.Background())

	job, err := jobs.Get(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusInProgress, job.Status, "a job with a live execution is never reset")
}

func TestReconcilerClearsNextRunOnPausedJob(t *testing.T) {
	jobs := memory.NewJobRepository()
	leftover := time.Now().Add(time.Hour)
	seedJob(t, jobs, "paused", domain.JobStatusPaused, &leftover)

	r := NewReconciler(jobs, memory.NewHistoryRepository(), idleGate(), time.Hour, time.Minute, testLogger())
	r.RunOnce(context.Background())

	job, err := jobs.Get(context.Background(), "paused")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPaused, job.Status)
	assert.Nil(t, job.NextRun)
}

func TestReconcilerFillsMissingNextRun(t *testing.T) {
	jobs := memory.NewJobRepository()
	seedJob(t, jobs, "blank", domain.JobStatusActive, nil)

	r := NewReconciler(jobs, memory.NewHistoryRepository(), idleGate(), time.Hour, time.Minute, testLogger())
	r.RunOnce(context.Background())

	job, err := jobs.Get(context.Background(), "blank")
	require.NoError(t, err)
	require.NotNil(t, job.NextRun)
	assert.True(t, job.NextRun.After(time.Now()))
}

func TestReconcilerKeepsFutureNextRun(t *testing.T) {
	jobs := memory.NewJobRepository()
	future := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	seedJob(t, jobs, "ok", domain.JobStatusActive, &future)

	r := NewReconciler(jobs, memory.NewHistoryRepository(), idleGate(), time.Hour, time.Minute, testLogger())
	r.RunOnce(context.Background())

	job, err := jobs.Get(context.Background(), "ok")
	require.NoError(t, err)
	require.NotNil(t, job.NextRun)
	assert.True(t, future.Equal(*job.NextRun), "a valid future next_run is left alone")
}

func TestReconcilerMarksBadScheduleFailedAndContinues(t *testing.T) {
	jobs := memory.NewJobRepository()
	bad := seedJob(t, jobs, "bad", domain.JobStatusActive, nil)
	bad.Schedule = "not a cron expression"
	require.NoError(t, jobs.Save(context.Background(), bad))
	seedJob(t, jobs, "good", domain.JobStatusActive, nil)

	r := NewReconciler(jobs, memory.NewHistoryRepository(), idleGate(), time.Hour, time.Minute, testLogger())
	r.RunOnce(context.Background())

	badJob, err := jobs.Get(context.Background(), "bad")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, badJob.Status)
	assert.Nil(t, badJob.NextRun)

	goodJob, err := jobs.Get(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActive, goodJob.Status, "one bad expression never aborts the pass")
	require.NotNil(t, goodJob.NextRun)
}

func TestReconcilerPushesStalePastNextRunForward(t *testing.T) {
	jobs := memory.NewJobRepository()
	stale := time.Now().Add(-10 * time.Minute)
	seedJob(t, jobs, "missed", domain.JobStatusActive, &stale)

	r := NewReconciler(jobs, memory.NewHistoryRepository(), idleGate(), time.Hour, time.Minute, testLogger())
	r.RunOnce(context.Background())

	job, err := jobs.Get(context.Background(), "missed")
	require.NoError(t, err)
	require.NotNil(t, job.NextRun)
	assert.True(t, job.NextRun.After(time.Now()), "a long-missed trigger is skipped forward")
}

func TestReconcilerLeavesRecentlyDueNextRun(t *testing.T) {
	jobs := memory.NewJobRepository()
	due := time.Now().Add(-5 * time.Second)
	seedJob(t, jobs, "due", domain.JobStatusActive, &due)

	// Due inside the grace window: the trigger belongs to the sweep, so
	// reconciliation leaves it in place.
	r := NewReconciler(jobs, memory.NewHistoryRepository(), idleGate(), time.Hour, time.Minute, testLogger())
	r.RunOnce(context.Background())

	job, err := jobs.Get(context.Background(), "due")
	require.NoError(t, err)
	require.NotNil(t, job.NextRun)
	assert.True(t, due.Equal(*job.NextRun))
}
