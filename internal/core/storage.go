package core

import (
	"context"
	"fmt"

	"modelkit/internal/blob"
	"modelkit/internal/config"
	"modelkit/internal/infra/persistence/memory"
	"modelkit/internal/infra/persistence/objectstore"
	"modelkit/internal/infra/persistence/postgres"
	"modelkit/internal/infra/persistence/sqlite"
	"modelkit/pkg/domain"
)

// OpenContainer opens the persistence context selected by cfg.Storage.Driver:
//
//	memory:      engine only, nothing survives the process
//	sqlite:      cfg.Storage.SQLitePath (default ./modelkit.db)
//	postgres:    cfg.Storage.PostgresDSN
//	objectstore: JSON objects under cfg.Storage.ObjectPrefix in the blob
//	             store described by cfg.Blob
func OpenContainer(ctx context.Context, cfg config.Config, logger domain.Logger) (domain.Context, error) {
	if logger == nil {
		logger = domain.NopLogger()
	}
	opts := []memory.Option{memory.WithLogger(logger)}
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		return memory.NewStore(opts...), nil
	case config.StorageSQLite:
		store, err := sqlite.NewStore(cfg.Storage.SQLitePath, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.Storage.PostgresDSN, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageObjectStore:
		blobs, err := blob.Open(ctx, cfg.BlobSettings())
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		store, err := objectstore.NewStore(ctx, blobs, cfg.Storage.ObjectPrefix, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Storage.Driver)
	}
}

// Open builds the container and service described by cfg.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	container, err := OpenContainer(ctx, cfg, o.logger)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithQueueSize(cfg.Service.QueueSize),
		WithSlowOperationThreshold(cfg.Service.SlowOperation.Duration()),
	}
	return NewService(container, append(base, opts...)...), nil
}
