// Package objectstore persists the in-memory engine's committed state as one
// JSON object per entity bucket in a blob store (filesystem, S3 or memory).
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"modelkit/internal/blob"
	"modelkit/internal/infra/persistence/memory"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "modelkit/state"

const (
	objectSuffix = ".json"
	contentType  = "application/json"
)

// Store is a memory.Store whose saves are written through to a blob store.
// Object stores offer no multi-key transaction: a failed save may leave the
// buckets written before the failure updated.
type Store struct {
	*memory.Store
	blobs  blob.Store
	prefix string
	mu     sync.Mutex
}

// NewStore hydrates committed state from the objects under prefix.
func NewStore(ctx context.Context, blobs blob.Store, prefix string, opts ...memory.Option) (*Store, error) {
	if blobs == nil {
		return nil, fmt.Errorf("objectstore: blob store required")
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &Store{blobs: blobs, prefix: prefix}
	snapshot, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	opts = append(opts, memory.WithSnapshot(snapshot), memory.WithPersister(s))
	s.Store = memory.NewStore(opts...)
	return s, nil
}

// Key returns the object key holding entity's bucket.
func (s *Store) Key(entity string) string {
	return path.Join(s.prefix, entity+objectSuffix)
}

func (s *Store) load(ctx context.Context) (memory.Snapshot, error) {
	infos, err := s.blobs.List(ctx, s.prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.prefix, err)
	}
	snapshot := memory.Snapshot{}
	for _, info := range infos {
		rel := strings.TrimPrefix(info.Key, s.prefix+"/")
		if strings.Contains(rel, "/") || !strings.HasSuffix(rel, objectSuffix) {
			continue
		}
		entity := strings.TrimSuffix(rel, objectSuffix)
		b, err := s.read(ctx, info.Key)
		if err != nil {
			return nil, err
		}
		snapshot[entity] = b
	}
	return snapshot, nil
}

func (s *Store) read(ctx context.Context, key string) (memory.Bucket, error) {
	_, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var b memory.Bucket
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return b, nil
}

// Persist implements memory.Persister.
func (s *Store) Persist(ctx context.Context, snapshot memory.Snapshot, buckets []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entity := range buckets {
		key := s.Key(entity)
		contents, ok := snapshot[entity]
		if !ok {
			if _, err := s.blobs.Delete(ctx, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			continue
		}
		data, err := json.Marshal(contents)
		if err != nil {
			return fmt.Errorf("encode %s: %w", entity, err)
		}
		opts := blob.PutOptions{ContentType: contentType, Metadata: map[string]string{"entity": entity}}
		if _, err := s.blobs.Put(ctx, key, bytes.NewReader(data), opts); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}
	return nil
}

// Blobs exposes the backing blob store.
func (s *Store) Blobs() blob.Store { return s.blobs }
