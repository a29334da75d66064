package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/pablopunk/bucky-sub000/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// JobDir is the etcd prefix under which job definitions are stored.
	JobDir = "/backup/jobs/"
)

type jobRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewJobRepository creates a repository for backup jobs backed by etcd.
// Jobs are stored as JSON values at /backup/jobs/{id}.
func NewJobRepository(client *clientv3.Client, logger *slog.Logger) domain.JobRepository {
	return &jobRepository{
		client: client,
		logger: logger,
		tracer: otel.Tracer("backupd-etcd-job-repo"),
	}
}

func (r *jobRepository) Save(ctx context.Context, job *domain.Job) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveJob")
	defer span.End()

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job to JSON: %w", err)
	}

	key := path.Join(JobDir, job.ID)
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("etcd.key", key),
	)

	if _, err := r.client.Put(ctx, key, string(jobJSON)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put job to etcd")
		return fmt.Errorf("failed to save job %s to etcd: %w", job.ID, err)
	}
	return nil
}

func (r *jobRepository) Delete(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.DeleteJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	key := path.Join(JobDir, id)
	resp, err := r.client.Delete(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete job from etcd")
		return fmt.Errorf("failed to delete job %s from etcd: %w", id, err)
	}
	if resp.Deleted == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *jobRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.GetJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	key := path.Join(JobDir, id)
	resp, err := r.client.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get job from etcd")
		return nil, fmt.Errorf("failed to get job %s from etcd: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrJobNotFound
	}

	var job domain.Job
	if err := json.Unmarshal(resp.Kvs[0].Value, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s from JSON: %w", id, err)
	}
	return &job, nil
}

func (r *jobRepository) List(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListJobs")
	defer span.End()

	resp, err := r.client.Get(ctx, JobDir, clientv3.WithPrefix())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list jobs from etcd")
		return nil, fmt.Errorf("failed to list jobs from etcd: %w", err)
	}
	span.SetAttributes(attribute.Int("etcd.kv_count", len(resp.Kvs)))

	jobs := make([]*domain.Job, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var job domain.Job
		if err := json.Unmarshal(kv.Value, &job); err != nil {
			r.logger.Warn("failed to unmarshal job from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		if filter.Matches(&job) {
			jobs = append(jobs, &job)
		}
	}
	return jobs, nil
}

// UpdateStatus re-reads the job, applies the transition and writes it back.
// The engine keeps single-writer discipline per job id, so a plain
// read-modify-write is sufficient here.
func (r *jobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, fields domain.StatusFields) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.UpdateJobStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", id),
		attribute.String("job.status", string(status)),
	)

	job, err := r.Get(ctx, id)
	if err != nil {
		return err
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

	return r.Save(ctx, job)
}
