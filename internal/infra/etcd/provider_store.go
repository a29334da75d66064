package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/pablopunk/bucky-sub000/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// ProviderDir is the etcd prefix for storage-provider records.
	ProviderDir = "/backup/providers/"
)

type providerStore struct {
	client *clientv3.Client
	tracer trace.Tracer
}

// NewProviderStore creates a storage-provider lookup backed by etcd.
// Provider CRUD lives outside the engine; this only reads.
func NewProviderStore(client *clientv3.Client) domain.ProviderStore {
	return &providerStore{
		client: client,
		tracer: otel.Tracer("backupd-etcd-provider-store"),
	}
}

func (s *providerStore) Get(ctx context.Context, id string) (*domain.Provider, error) {
	ctx, span := s.tracer.Start(ctx, "repo.etcd.GetProvider")
	defer span.End()
	span.SetAttributes(attribute.String("provider.id", id))

	key := path.Join(ProviderDir, id)
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get provider from etcd")
		return nil, fmt.Errorf("failed to get provider %s from etcd: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrProviderNotFound
	}

	var provider domain.Provider
	if err := json.Unmarshal(resp.Kvs[0].Value, &provider); err != nil {
		return nil, fmt.Errorf("failed to unmarshal provider %s from JSON: %w", id, err)
	}
	return &provider, nil
}
