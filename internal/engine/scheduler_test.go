package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pablopunk/bucky-sub000/internal/domain"
	"github.com/pablopunk/bucky-sub000/internal/infra/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (e *execRecorder) run(ctx context.Context, id string) {
	e.mu.Lock()
	e.ids = append(e.ids, id)
	e.mu.Unlock()
}

func (e *execRecorder) executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ids...)
}

type schedulerFixture struct {
	jobs      *memory.JobRepository
	history   *memory.HistoryRepository
	recorder  *execRecorder
	scheduler *Scheduler
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		jobs:     memory.NewJobRepository(),
		history:  memory.NewHistoryRepository(),
		recorder: &execRecorder{},
	}
	gate := NewGate(16, f.recorder.run, testLogger())
	reconciler := NewReconciler(f.jobs, f.history, gate, time.Hour, time.Minute, testLogger())
	f.scheduler = NewScheduler(SchedulerOptions{
		Jobs:              f.jobs,
		History:           f.history,
		Gate:              gate,
		Reconciler:        reconciler,
		SweepInterval:     20 * time.Millisecond,
		ReconcileInterval: time.Minute,
	}, testLogger())
	return f
}

func (f *schedulerFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.scheduler.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.scheduler.Shutdown(ctx)
	})
}

func TestSchedulerSweepsDueJobs(t *testing.T) {
	f := newSchedulerFixture(t)
	// Due shortly after start; the startup reconcile pass keeps a future
	// next_run untouched, then the sweep picks the jobs up once it passes.
	soon := time.Now().Add(50 * time.Millisecond)
	seedJob(t, f.jobs, "due-active", domain.JobStatusActive, &soon)
	seedJob(t, f.jobs, "due-failed", domain.JobStatusFailed, &soon)
	future := time.Now().Add(time.Hour)
	seedJob(t, f.jobs, "not-due", domain.JobStatusActive, &future)
	leftover := time.Now().Add(-time.Minute)
	seedJob(t, f.jobs, "paused", domain.JobStatusPaused, &leftover)

	f.start(t)

	require.Eventually(t, func() bool {
		got := f.recorder.executed()
		return contains(got, "due-active") && contains(got, "due-failed")
	}, 2*time.Second, 10*time.Millisecond, "due active and failed jobs are both admitted")

	assert.NotContains(t, f.recorder.executed(), "not-due")
	assert.NotContains(t, f.recorder.executed(), "paused")
}

func TestSchedulerRunNow(t *testing.T) {
	f := newSchedulerFixture(t)
	future := time.Now().Add(time.Hour)
	seedJob(t, f.jobs, "manual", domain.JobStatusActive, &future)
	f.start(t)

	require.NoError(t, f.scheduler.RunNow(context.Background(), "manual"))
	require.Eventually(t, func() bool {
		return contains(f.recorder.executed(), "manual")
	}, 2*time.Second, 10*time.Millisecond)

	err := f.scheduler.RunNow(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestSchedulerPauseAndResume(t *testing.T) {
	f := newSchedulerFixture(t)
	future := time.Now().Add(time.Hour)
	seedJob(t, f.jobs, "job-1", domain.JobStatusActive, &future)

	require.NoError(t, f.scheduler.Pause(context.Background(), "job-1"))
	job, err := f.jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPaused, job.Status)
	assert.Nil(t, job.NextRun)

	// Pausing twice is harmless.
	require.NoError(t, f.scheduler.Pause(context.Background(), "job-1"))

	require.NoError(t, f.scheduler.Resume(context.Background(), "job-1"))
	job, err = f.jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActive, job.Status)
	require.NotNil(t, job.NextRun)
	assert.True(t, job.NextRun.After(time.Now()))

	// Resuming a job that is not paused is a no-op.
	require.NoError(t, f.scheduler.Resume(context.Background(), "job-1"))
}

func TestSchedulerPauseRejectsRunningJob(t *testing.T) {
	f := newSchedulerFixture(t)
	seedJob(t, f.jobs, "busy", domain.JobStatusInProgress, nil)

	err := f.scheduler.Pause(context.Background(), "busy")
	assert.ErrorIs(t, err, ErrJobInProgress)
}

func TestSchedulerResumeWithBadSchedule(t *testing.T) {
	f := newSchedulerFixture(t)
	job := seedJob(t, f.jobs, "broken", domain.JobStatusPaused, nil)
	job.Schedule = "bad"
	require.NoError(t, f.jobs.Save(context.Background(), job))

	err := f.scheduler.Resume(context.Background(), "broken")
	require.Error(t, err)

	got, gerr := f.jobs.Get(context.Background(), "broken")
	require.NoError(t, gerr)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Nil(t, got.NextRun)
}

func TestSchedulerStopCrashLeftover(t *testing.T) {
	f := newSchedulerFixture(t)
	seedJob(t, f.jobs, "orphan", domain.JobStatusInProgress, nil)

	require.NoError(t, f.scheduler.StopJob(context.Background(), "orphan"))

	job, err := f.jobs.Get(context.Background(), "orphan")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	require.NotNil(t, job.NextRun)

	records, err := f.history.ListByJob(context.Background(), "orphan", 1, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Job stopped manually", records[0].Message)
}

func TestSchedulerStopErrors(t *testing.T) {
	f := newSchedulerFixture(t)
	future := time.Now().Add(time.Hour)
	seedJob(t, f.jobs, "idle", domain.JobStatusActive, &future)

	assert.ErrorIs(t, f.scheduler.StopJob(context.Background(), "idle"), ErrJobNotRunning)
	assert.ErrorIs(t, f.scheduler.StopJob(context.Background(), "ghost"), domain.ErrJobNotFound)
}

func TestSchedulerStopCancelsLiveExecution(t *testing.T) {
	jobs := memory.NewJobRepository()
	history := memory.NewHistoryRepository()
	future := time.Now().Add(time.Hour)
	seedJob(t, jobs, "live", domain.JobStatusActive, &future)

	stopped := make(chan struct{})
	gate := NewGate(4, func(ctx context.Context, id string) {
		<-ctx.Done()
		close(stopped)
	}, testLogger())
	reconciler := NewReconciler(jobs, history, gate, time.Hour, time.Minute, testLogger())
	s := NewScheduler(SchedulerOptions{
		Jobs:              jobs,
		History:           history,
		Gate:              gate,
		Reconciler:        reconciler,
		SweepInterval:     time.Minute,
		ReconcileInterval: time.Minute,
	}, testLogger())
	require.NoError(t, s.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()

	require.NoError(t, s.RunNow(context.Background(), "live"))
	require.Eventually(t, func() bool { return gate.Running("live") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.StopJob(context.Background(), "live"))

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("execution context was not canceled")
	}
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}

func TestSchedulerShutdownLetsInFlightRunFinish(t *testing.T) {
	started := make(chan struct{})
	transfer := &fakeTransferer{
		results: []domain.Result{{ExitCode: 0, Stdout: rcloneStats}},
		errs:    []error{nil},
		onCall: func(context.Context) {
			close(started)
			time.Sleep(150 * time.Millisecond)
		},
	}
	rf := newRunnerFixture(t, transfer, NotifyPolicy{})
	rf.addJob(t, "live")

	gate := NewGate(16, rf.runner.Execute, testLogger())
	reconciler := NewReconciler(rf.jobs, rf.history, gate, time.Hour, time.Minute, testLogger())
	scheduler := NewScheduler(SchedulerOptions{
		Jobs:              rf.jobs,
		History:           rf.history,
		Gate:              gate,
		Reconciler:        reconciler,
		SweepInterval:     time.Hour,
		ReconcileInterval: time.Hour,
	}, testLogger())
	require.NoError(t, scheduler.Start(context.Background()))

	require.NoError(t, scheduler.RunNow(context.Background(), "live"))
	<-started

	// Shutdown lands mid-transfer: the run finishes inside the bounded
	// wait and is recorded as a success, not a stop.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, scheduler.Shutdown(ctx))

	job, err := rf.jobs.Get(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActive, job.Status)

	rec := rf.latestRecord(t, "live")
	assert.Equal(t, domain.HistoryStatusSuccess, rec.Status)
}
