// Package memory provides in-memory implementations of the repository
// interfaces, used as the single-node store and as test doubles.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pablopunk/bucky-sub000/internal/domain"
)

// JobRepository is an in-memory, mutex-guarded domain.JobRepository.
type JobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// NewJobRepository creates an empty in-memory job repository.
func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[string]*domain.Job)}
}

func (r *JobRepository) Save(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *JobRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	delete(r.jobs, id)
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *JobRepository) List(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if filter.Matches(job) {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *JobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, fields domain.StatusFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Status = status
	if fields.ClearNextRun {
		job.NextRun = nil
	} else if fields.NextRun != nil {
		t := *fields.NextRun
		job.NextRun = &t
	}
	if fields.LastRun != nil {
		t := *fields.LastRun
		job.LastRun = &t
	}
	job.UpdatedAt = time.Now()
	return nil
}

// Touch backdates a job's UpdatedAt. Test hook for staleness scenarios.
func (r *JobRepository) Touch(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		job.UpdatedAt = at
	}
}

// HistoryRepository is an in-memory domain.HistoryRepository.
type HistoryRepository struct {
	mu      sync.RWMutex
	records map[string][]*domain.HistoryRecord // jobID -> append order
}

// NewHistoryRepository creates an empty in-memory history repository.
func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{records: make(map[string][]*domain.HistoryRecord)}
}

func (r *HistoryRepository) Append(ctx context.Context, record *domain.HistoryRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *record
	r.records[record.JobID] = append(r.records[record.JobID], &cp)
	return nil
}

func (r *HistoryRepository) Update(ctx context.Context, jobID, recordID string, update domain.HistoryUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records[jobID] {
		if rec.ID == recordID {
			rec.Status = update.Status
			if update.EndTime != nil {
				t := *update.EndTime
				rec.EndTime = &t
			}
			rec.SizeBytes = update.SizeBytes
			rec.FilesTransferred = update.FilesTransferred
			rec.FilesDeleted = update.FilesDeleted
			rec.Message = update.Message
			return nil
		}
	}
	return fmt.Errorf("history record %s/%s not found", jobID, recordID)
}

func (r *HistoryRepository) ListByJob(ctx context.Context, jobID string, page, pageSize int) ([]*domain.HistoryRecord, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.records[jobID]
	// Newest first.
	out := make([]*domain.HistoryRecord, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	start := (page - 1) * pageSize
	if start >= len(out) {
		return []*domain.HistoryRecord{}, nil
	}
	end := start + pageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

// ProviderStore is an in-memory domain.ProviderStore.
type ProviderStore struct {
	mu        sync.RWMutex
	providers map[string]*domain.Provider
}

// NewProviderStore creates an empty in-memory provider store.
func NewProviderStore() *ProviderStore {
	return &ProviderStore{providers: make(map[string]*domain.Provider)}
}

// Put stores or replaces a provider.
func (s *ProviderStore) Put(p *domain.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.providers[p.ID] = &cp
}

func (s *ProviderStore) Get(ctx context.Context, id string) (*domain.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}
