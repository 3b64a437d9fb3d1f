// Package memory provides the in-memory persistence engine behind every
// modelkit backend. It keeps committed records as JSON payloads grouped by
// entity, maintains an identity map of the records registered since the last
// save or rollback, and hands the committed snapshot to an optional Persister
// on every save.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"modelkit/pkg/domain"
)

// Compile-time contract assertion ensuring Store satisfies the persistence capability.
var _ domain.Context = (*Store)(nil)

// Bucket holds the committed payloads of one entity keyed by record key.
type Bucket map[string]json.RawMessage

// Snapshot captures committed state keyed by entity name.
type Snapshot map[string]Bucket

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for entity, bucket := range s {
		out[entity] = bucket.clone()
	}
	return out
}

func (b Bucket) clone() Bucket {
	out := make(Bucket, len(b))
	for k, v := range b {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Persister makes a committed snapshot durable. buckets names the entities
// whose contents changed in the save being persisted. A non-nil error aborts
// the save and leaves committed state untouched.
type Persister interface {
	Persist(ctx context.Context, snapshot Snapshot, buckets []string) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, snapshot Snapshot, buckets []string) error

// Persist implements Persister.
func (f PersisterFunc) Persist(ctx context.Context, snapshot Snapshot, buckets []string) error {
	return f(ctx, snapshot, buckets)
}

// Option configures a Store.
type Option func(*Store)

// WithPersister installs the durable sink invoked on each save.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithSnapshot seeds committed state, typically hydrated from a durable backend.
func WithSnapshot(snapshot Snapshot) Option {
	return func(s *Store) {
		if snapshot != nil {
			s.committed = snapshot.Clone()
		}
	}
}

// WithLogger sets the logger used for save and rollback diagnostics.
func WithLogger(logger domain.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is the in-memory persistence context. It is not safe for concurrent
// use; the model service owns it from a single goroutine.
//
// Registered records are only tracked until the next successful Save or
// Rollback. After that the store forgets them and later fetches decode fresh
// instances, so records handed out of one unit of work are never touched by
// the next one. Edits to a released record are picked up again only when it
// is re-inserted.
type Store struct {
	committed  Snapshot
	registered map[domain.RecordID]domain.Record
	inserted   map[domain.RecordID]domain.Record
	deleted    map[domain.RecordID]domain.Record
	persister  Persister
	logger     domain.Logger
}

// NewStore constructs an empty in-memory context.
func NewStore(opts ...Option) *Store {
	s := &Store{
		committed:  make(Snapshot),
		registered: make(map[domain.RecordID]domain.Record),
		inserted:   make(map[domain.RecordID]domain.Record),
		deleted:    make(map[domain.RecordID]domain.Record),
		logger:     domain.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState returns a copy of the committed state.
func (s *Store) ExportState() Snapshot {
	return s.committed.Clone()
}

// ImportState replaces committed state and forgets every registered record and
// pending change.
func (s *Store) ImportState(snapshot Snapshot) {
	if snapshot == nil {
		snapshot = Snapshot{}
	}
	s.committed = snapshot.Clone()
	s.release()
}

// Insert registers rec for insertion, assigning an identity when it has none.
// Inserting a record whose identity is already committed replaces it on save.
func (s *Store) Insert(rec domain.Record) error {
	if err := domain.ValidateRecord(rec); err != nil {
		return err
	}
	id := rec.RecordID()
	if id.IsZero() {
		id = domain.NewRecordID(rec.EntityName())
		rec.SetRecordID(id)
	}
	delete(s.deleted, id)
	s.registered[id] = rec
	if !s.isCommitted(id) {
		s.inserted[id] = rec
	}
	return nil
}

// Delete marks rec for deletion. Deleting a pending insert simply forgets it.
func (s *Store) Delete(rec domain.Record) error {
	if err := domain.ValidateRecord(rec); err != nil {
		return err
	}
	id := rec.RecordID()
	if id.IsZero() {
		return fmt.Errorf("%w: delete of unsaved %s record", domain.ErrInvalidRecord, rec.EntityName())
	}
	if _, pending := s.inserted[id]; pending {
		delete(s.inserted, id)
		delete(s.registered, id)
		return nil
	}
	if _, gone := s.deleted[id]; gone {
		return nil
	}
	if !s.isCommitted(id) {
		return domain.ErrNotFound{ID: id}
	}
	delete(s.registered, id)
	s.deleted[id] = rec
	return nil
}

// DeleteWhere deletes every record matched by q.
func (s *Store) DeleteWhere(q domain.Query) error {
	if !q.NeedsRecords() && q.Offset == 0 && q.Limit == 0 {
		ids, err := s.FetchIdentifiers(q)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := s.deleteID(id); err != nil {
				return err
			}
		}
		return nil
	}
	recs, err := s.Fetch(q)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := s.Delete(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteID(id domain.RecordID) error {
	if rec, ok := s.registered[id]; ok {
		return s.Delete(rec)
	}
	// Never materialized, so there is nothing to restore on rollback.
	s.deleted[id] = nil
	return nil
}

// Fetch returns the records matched by q, including pending changes.
func (s *Store) Fetch(q domain.Query) ([]domain.Record, error) {
	if q.New == nil {
		return nil, fmt.Errorf("%w: fetch of %q requires a record factory", domain.ErrInvalidQuery, q.Entity)
	}
	recs, err := s.match(q)
	if err != nil {
		return nil, err
	}
	start, end := q.Window(len(recs))
	return recs[start:end], nil
}

// FetchCount counts the records matched by q.
func (s *Store) FetchCount(q domain.Query) (int, error) {
	ids, err := s.FetchIdentifiers(q)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// FetchIdentifiers returns the identities matched by q.
func (s *Store) FetchIdentifiers(q domain.Query) ([]domain.RecordID, error) {
	if q.Entity == "" {
		return nil, fmt.Errorf("%w: empty entity", domain.ErrInvalidQuery)
	}
	if q.NeedsRecords() {
		if q.New == nil {
			return nil, fmt.Errorf("%w: filtering %q requires a record factory", domain.ErrInvalidQuery, q.Entity)
		}
		recs, err := s.match(q)
		if err != nil {
			return nil, err
		}
		start, end := q.Window(len(recs))
		ids := make([]domain.RecordID, 0, end-start)
		for _, rec := range recs[start:end] {
			ids = append(ids, rec.RecordID())
		}
		return ids, nil
	}
	ids := s.candidates(q.Entity)
	start, end := q.Window(len(ids))
	return ids[start:end], nil
}

// Registered returns the record registered for id since the last save or
// rollback, if any.
func (s *Store) Registered(id domain.RecordID) (domain.Record, bool) {
	rec, ok := s.registered[id]
	return rec, ok
}

// HasChanges reports pending inserts, deletes, or in-place edits of registered
// records.
func (s *Store) HasChanges() bool {
	if len(s.inserted) > 0 || len(s.deleted) > 0 {
		return true
	}
	for id, rec := range s.registered {
		if dirty, _ := s.isDirty(id, rec); dirty {
			return true
		}
	}
	return false
}

// Save commits pending changes and hands the result to the persister.
func (s *Store) Save(ctx context.Context) (domain.ChangeSet, error) {
	var changes domain.ChangeSet
	next := make(map[string]Bucket)
	bucketFor := func(entity string) Bucket {
		if b, ok := next[entity]; ok {
			return b
		}
		b := s.committed[entity].clone()
		next[entity] = b
		return b
	}

	for id := range s.deleted {
		delete(bucketFor(id.Entity), id.Key)
		changes.Deleted = append(changes.Deleted, id)
	}
	for id, rec := range s.inserted {
		payload, err := json.Marshal(rec)
		if err != nil {
			return domain.ChangeSet{}, fmt.Errorf("encode %s: %w", id, err)
		}
		bucketFor(id.Entity)[id.Key] = payload
		changes.Inserted = append(changes.Inserted, id)
	}
	for id, rec := range s.registered {
		if _, pending := s.inserted[id]; pending {
			continue
		}
		dirty, payload := s.isDirty(id, rec)
		if !dirty {
			continue
		}
		if payload == nil {
			return domain.ChangeSet{}, fmt.Errorf("encode %s: record not encodable", id)
		}
		bucketFor(id.Entity)[id.Key] = payload
		changes.Updated = append(changes.Updated, id)
	}
	if changes.IsEmpty() {
		s.release()
		return changes, nil
	}

	snapshot := make(Snapshot, len(s.committed)+len(next))
	for entity, bucket := range s.committed {
		snapshot[entity] = bucket
	}
	buckets := make([]string, 0, len(next))
	for entity, bucket := range next {
		if len(bucket) == 0 {
			delete(snapshot, entity)
		} else {
			snapshot[entity] = bucket
		}
		buckets = append(buckets, entity)
	}
	sort.Strings(buckets)

	if s.persister != nil {
		if err := s.persister.Persist(ctx, snapshot, buckets); err != nil {
			return domain.ChangeSet{}, err
		}
	}

	s.committed = snapshot
	s.release()
	domain.SortIDs(changes.Inserted)
	domain.SortIDs(changes.Updated)
	domain.SortIDs(changes.Deleted)
	s.logger.Debug("memory store saved",
		"inserted", len(changes.Inserted),
		"updated", len(changes.Updated),
		"deleted", len(changes.Deleted),
	)
	return changes, nil
}

// Rollback discards pending changes and releases every registered record.
// Records edited in place are restored from their committed payloads first.
func (s *Store) Rollback() {
	for id := range s.inserted {
		delete(s.registered, id)
	}
	for id, rec := range s.deleted {
		if rec != nil {
			s.registered[id] = rec
		}
	}
	for id, rec := range s.registered {
		payload, ok := s.committed[id.Entity][id.Key]
		if !ok {
			delete(s.registered, id)
			continue
		}
		if dirty, _ := s.isDirty(id, rec); !dirty {
			continue
		}
		if err := decodeInto(rec, payload); err != nil {
			s.logger.Warn("memory store rollback could not restore record; unregistering",
				"id", id.String(), "error", err.Error())
			delete(s.registered, id)
			continue
		}
		rec.SetRecordID(id)
	}
	s.release()
}

// release forgets registered records and pending changes.
func (s *Store) release() {
	s.registered = make(map[domain.RecordID]domain.Record)
	s.inserted = make(map[domain.RecordID]domain.Record)
	s.deleted = make(map[domain.RecordID]domain.Record)
}

// Close releases nothing for the in-memory engine.
func (s *Store) Close() error { return nil }

func (s *Store) isCommitted(id domain.RecordID) bool {
	_, ok := s.committed[id.Entity][id.Key]
	return ok
}

// isDirty compares rec against its committed payload and returns the fresh
// encoding when it differs.
func (s *Store) isDirty(id domain.RecordID, rec domain.Record) (bool, json.RawMessage) {
	committed, ok := s.committed[id.Entity][id.Key]
	if !ok {
		return false, nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return true, nil
	}
	return !jsonEqual(committed, payload), payload
}

// candidates lists the live identities of entity in key order: committed ones
// not pending deletion plus pending inserts.
func (s *Store) candidates(entity string) []domain.RecordID {
	ids := make([]domain.RecordID, 0, len(s.committed[entity]))
	for key := range s.committed[entity] {
		id := domain.RecordID{Entity: entity, Key: key}
		if _, gone := s.deleted[id]; gone {
			continue
		}
		ids = append(ids, id)
	}
	for id := range s.inserted {
		if id.Entity == entity {
			ids = append(ids, id)
		}
	}
	domain.SortIDs(ids)
	return ids
}

func (s *Store) match(q domain.Query) ([]domain.Record, error) {
	ids := s.candidates(q.Entity)
	recs := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.materialize(id, q.New)
		if err != nil {
			return nil, err
		}
		if q.Match != nil && !q.Match(rec) {
			continue
		}
		recs = append(recs, rec)
	}
	if q.Less != nil {
		sort.SliceStable(recs, func(i, j int) bool { return q.Less(recs[i], recs[j]) })
	}
	return recs, nil
}

// materialize returns the registered record for id, decoding and registering
// it from committed state on first access.
func (s *Store) materialize(id domain.RecordID, newFn func() domain.Record) (domain.Record, error) {
	if rec, ok := s.registered[id]; ok {
		return rec, nil
	}
	payload, ok := s.committed[id.Entity][id.Key]
	if !ok {
		return nil, domain.ErrNotFound{ID: id}
	}
	rec := newFn()
	if err := json.Unmarshal(payload, rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	rec.SetRecordID(id)
	s.registered[id] = rec
	return rec, nil
}

// decodeInto resets rec to its zero value and decodes payload over it so that
// references held by callers observe the restored state.
func decodeInto(rec domain.Record, payload json.RawMessage) error {
	v := reflect.ValueOf(rec)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("%w: %T is not a non-nil pointer", domain.ErrInvalidRecord, rec)
	}
	elem := v.Elem()
	elem.Set(reflect.Zero(elem.Type()))
	return json.Unmarshal(payload, rec)
}

func jsonEqual(a, b json.RawMessage) bool {
	if string(a) == string(b) {
		return true
	}
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}
