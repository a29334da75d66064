package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"github.com/pablopunk/bucky-sub000/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// HistoryDir is the etcd prefix under which execution records live,
	// keyed as /backup/history/{jobID}/{recordID}.
	HistoryDir = "/backup/history/"
)

type historyRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewHistoryRepository creates a repository for execution history records
// backed by etcd.
func NewHistoryRepository(client *clientv3.Client, logger *slog.Logger) domain.HistoryRepository {
	return &historyRepository{
		client: client,
		logger: logger,
		tracer: otel.Tracer("backupd-etcd-history-repo"),
	}
}

func (r *historyRepository) Append(ctx context.Context, record *domain.HistoryRecord) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.AppendHistory")
	defer span.End()

	if err := record.Validate(); err != nil {
		span.RecordError(err)
		return err
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal history record")
		return fmt.Errorf("failed to marshal history record %s to JSON: %w", record.ID, err)
	}

	key := path.Join(HistoryDir, record.JobID, record.ID)
	span.SetAttributes(
		attribute.String("history.id", record.ID),
		attribute.String("job.id", record.JobID),
		attribute.String("etcd.key", key),
	)

	if _, err := r.client.Put(ctx, key, string(recordJSON)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put history record to etcd")
		return fmt.Errorf("failed to save history record %s to etcd: %w", record.ID, err)
	}
	return nil
}

func (r *historyRepository) Update(ctx context.Context, jobID, recordID string, update domain.HistoryUpdate) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.UpdateHistory")
	defer span.End()
	span.SetAttributes(
		attribute.String("history.id", recordID),
		attribute.String("job.id", jobID),
	)

	key := path.Join(HistoryDir, jobID, recordID)
	resp, err := r.client.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get history record from etcd")
		return fmt.Errorf("failed to get history record %s/%s from etcd: %w", jobID, recordID, err)
	}
	if len(resp.Kvs) == 0 {
		return fmt.Errorf("history record %s/%s not found", jobID, recordID)
	}

	var record domain.HistoryRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &record); err != nil {
		return fmt.Errorf("failed to unmarshal history record %s/%s from JSON: %w", jobID, recordID, err)
	}

	record.Status = update.Status
	if update.EndTime != nil {
		t := *update.EndTime
		record.EndTime = &t
	}
	record.SizeBytes = update.SizeBytes
	record.FilesTransferred = update.FilesTransferred
	record.FilesDeleted = update.FilesDeleted
	record.Message = update.Message

	recordJSON, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to marshal history record %s to JSON: %w", recordID, err)
	}
	if _, err := r.client.Put(ctx, key, string(recordJSON)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put history record to etcd")
		return fmt.Errorf("failed to update history record %s in etcd: %w", recordID, err)
	}
	return nil
}

// ListByJob retrieves history records for a job, newest first, with manual
// pagination over the prefix scan.
func (r *historyRepository) ListByJob(ctx context.Context, jobID string, page, pageSize int) ([]*domain.HistoryRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListHistory")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", jobID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	prefix := path.Join(HistoryDir, jobID) + "/"
	resp, err := r.client.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortDescend),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list history records from etcd")
		return nil, fmt.Errorf("failed to list history records for job %s from etcd: %w", jobID, err)
	}

	records := make([]*domain.HistoryRecord, 0, pageSize)
	startIdx := (page - 1) * pageSize
	endIdx := startIdx + pageSize

	for i, kv := range resp.Kvs {
		if i < startIdx {
			continue
		}
		if i >= endIdx {
			break
		}
		var record domain.HistoryRecord
		if err := json.Unmarshal(kv.Value, &record); err != nil {
			r.logger.Warn("failed to unmarshal history record from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		records = append(records, &record)
	}
	span.SetAttributes(attribute.Int("records_returned", len(records)))
	return records, nil
}
