package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pablopunk/bucky-sub000/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(id string, status domain.JobStatus) *domain.Job {
	return &domain.Job{
		ID:         id,
		Name:       "job-" + id,
		SourcePath: "/data",
		RemotePath: "data",
		ProviderID: "prov",
		Schedule:   "0 0 * * *",
		Status:     status,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func TestJobRepositoryRoundTrip(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, newJob("a", domain.JobStatusActive)))

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "job-a", got.Name)

	// Mutating the returned copy must not reach the store.
	got.Name = "mutated"
	again, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "job-a", again.Name)
}

func TestJobRepositoryNotFound(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "missing"), domain.ErrJobNotFound)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", domain.JobStatusActive, domain.StatusFields{}), domain.ErrJobNotFound)
}

func TestJobRepositoryListFilters(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	due := newJob("due", domain.JobStatusActive)
	due.NextRun = &past
	notDue := newJob("later", domain.JobStatusActive)
	notDue.NextRun = &future
	paused := newJob("paused", domain.JobStatusPaused)
	paused.NextRun = &past
	noNext := newJob("blank", domain.JobStatusActive)

	for _, j := range []*domain.Job{due, notDue, paused, noNext} {
		require.NoError(t, repo.Save(ctx, j))
	}

	all, err := repo.List(ctx, domain.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	now := time.Now()
	dueJobs, err := repo.List(ctx, domain.JobFilter{
		Statuses:  []domain.JobStatus{domain.JobStatusActive, domain.JobStatusFailed},
		DueBefore: &now,
	})
	require.NoError(t, err)
	require.Len(t, dueJobs, 1)
	assert.Equal(t, "due", dueJobs[0].ID)
}

func TestJobRepositoryUpdateStatus(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()

	next := time.Now().Add(time.Hour)
	job := newJob("a", domain.JobStatusActive)
	job.NextRun = &next
	require.NoError(t, repo.Save(ctx, job))

	last := time.Now()
	require.NoError(t, repo.UpdateStatus(ctx, "a", domain.JobStatusFailed, domain.StatusFields{LastRun: &last}))

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.NextRun, "next run untouched when neither set nor cleared")
	require.NotNil(t, got.LastRun)

	require.NoError(t, repo.UpdateStatus(ctx, "a", domain.JobStatusPaused, domain.StatusFields{ClearNextRun: true}))
	got, err = repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got.NextRun)
	assert.NotNil(t, got.LastRun, "clearing next run leaves last run alone")
}

func TestHistoryRepositoryNewestFirstPagination(t *testing.T) {
	repo := NewHistoryRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Append(ctx, &domain.HistoryRecord{
			ID:        fmt.Sprintf("rec-%d", i),
			JobID:     "job-1",
			Status:    domain.HistoryStatusSuccess,
			StartTime: time.Now(),
		}))
	}

	page1, err := repo.ListByJob(ctx, "job-1", 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "rec-4", page1[0].ID)
	assert.Equal(t, "rec-3", page1[1].ID)

	page3, err := repo.ListByJob(ctx, "job-1", 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "rec-0", page3[0].ID)

	empty, err := repo.ListByJob(ctx, "job-1", 4, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHistoryRepositoryUpdate(t *testing.T) {
	repo := NewHistoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, &domain.HistoryRecord{
		ID:        "rec-1",
		JobID:     "job-1",
		Status:    domain.HistoryStatusRunning,
		StartTime: time.Now(),
	}))

	end := time.Now()
	require.NoError(t, repo.Update(ctx, "job-1", "rec-1", domain.HistoryUpdate{
		Status:           domain.HistoryStatusSuccess,
		EndTime:          &end,
		SizeBytes:        1024,
		FilesTransferred: 7,
		FilesDeleted:     1,
		Message:          "done",
	}))

	records, err := repo.ListByJob(ctx, "job-1", 1, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, domain.HistoryStatusSuccess, rec.Status)
	assert.EqualValues(t, 1024, rec.SizeBytes)
	assert.Equal(t, 7, rec.FilesTransferred)
	assert.Equal(t, "done", rec.Message)
	require.NotNil(t, rec.EndTime)

	err = repo.Update(ctx, "job-1", "nope", domain.HistoryUpdate{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrJobNotFound, "a missing record is not a missing job")
	assert.Contains(t, err.Error(), "not found")
}

func TestHistoryRepositoryRejectsInvalidRecord(t *testing.T) {
	repo := NewHistoryRepository()
	err := repo.Append(context.Background(), &domain.HistoryRecord{JobID: "job-1"})
	assert.Error(t, err)
}

func TestProviderStore(t *testing.T) {
	store := NewProviderStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	store.Put(&domain.Provider{ID: "p1", Kind: domain.ProviderKindS3, Bucket: "b"})
	got, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
}
