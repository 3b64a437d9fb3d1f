package domain

import (
	"context"
	"fmt"
	"sort"
)

// Context is the narrow capability consumed from the persistence engine. It
// tracks an identity map of registered records plus pending inserts and
// deletes; Save makes them durable and Rollback discards them. Both end the
// unit of work: the context releases its registered records, and later
// fetches return new instances. Implementations are not safe for concurrent
// use: a single owner drives them.
type Context interface {
	Insert(rec Record) error
	Delete(rec Record) error
	DeleteWhere(q Query) error
	Fetch(q Query) ([]Record, error)
	FetchCount(q Query) (int, error)
	FetchIdentifiers(q Query) ([]RecordID, error)
	// Registered returns the record already known to the context for id in
	// the current unit of work, without reading from storage.
	Registered(id RecordID) (Record, bool)
	HasChanges() bool
	Save(ctx context.Context) (ChangeSet, error)
	Rollback()
	Close() error
}

// ChangeSet lists the identities a successful save inserted, updated and
// deleted, each sorted by entity then key.
type ChangeSet struct {
	Inserted []RecordID `json:"inserted,omitempty"`
	Updated  []RecordID `json:"updated,omitempty"`
	Deleted  []RecordID `json:"deleted,omitempty"`
}

// IsEmpty reports whether the change set carries no identities.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Inserted) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// ForEntity keeps only the identities belonging to entity.
func (c ChangeSet) ForEntity(entity string) ChangeSet {
	filter := func(ids []RecordID) []RecordID {
		var out []RecordID
		for _, id := range ids {
			if id.Entity == entity {
				out = append(out, id)
			}
		}
		return out
	}
	return ChangeSet{
		Inserted: filter(c.Inserted),
		Updated:  filter(c.Updated),
		Deleted:  filter(c.Deleted),
	}
}

// SortIDs orders identities by entity then key.
func SortIDs(ids []RecordID) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Entity != ids[j].Entity {
			return ids[i].Entity < ids[j].Entity
		}
		return ids[i].Key < ids[j].Key
	})
}

// ReadAccessor is the capability handed to query bodies.
type ReadAccessor interface {
	Fetch(q Query) ([]Record, error)
	FetchCount(q Query) (int, error)
	FetchBatched(q Query, batchSize int) (*Paged[Record], error)
	FetchIdentifiers(q Query) ([]RecordID, error)
	FetchIdentifiersBatched(q Query, batchSize int) (*Paged[RecordID], error)
	// Find returns a record fetched or inserted earlier in the same body.
	Find(id RecordID) (Record, bool)
	// Context returns the context of the running call. Work a body hands to
	// other goroutines should derive from it.
	Context() context.Context
}

// Accessor is the capability handed to transaction bodies.
type Accessor interface {
	ReadAccessor
	Insert(rec Record) error
	Delete(rec Record) error
	DeleteWhere(q Query) error
	// SetRollbackOnly makes the enclosing transaction roll back even when its
	// body returns successfully.
	SetRollbackOnly()
}

// ModelService runs transaction and query bodies against a persistence
// context, one at a time.
type ModelService interface {
	Transaction(ctx context.Context, work func(Accessor) error) error
	Query(ctx context.Context, work func(ReadAccessor) error) error
}

// InTransaction runs work in a transaction and returns its value. The value is
// returned even when the body requested rollback.
func InTransaction[T any](ctx context.Context, svc ModelService, work func(Accessor) (T, error)) (T, error) {
	var out T
	err := svc.Transaction(ctx, func(acc Accessor) error {
		v, err := work(acc)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// InQuery runs work as a read-only query and returns its value.
func InQuery[T any](ctx context.Context, svc ModelService, work func(ReadAccessor) (T, error)) (T, error) {
	var out T
	err := svc.Query(ctx, func(acc ReadAccessor) error {
		v, err := work(acc)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Fetch returns the records of type P matching d.
func Fetch[E any, P RecordPtr[E]](acc ReadAccessor, d Descriptor[P]) ([]P, error) {
	recs, err := acc.Fetch(QueryFor[E, P](d))
	if err != nil {
		return nil, err
	}
	out := make([]P, 0, len(recs))
	for _, r := range recs {
		p, err := castRecord[P](r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// FetchCount counts the records of type P matching d.
func FetchCount[E any, P RecordPtr[E]](acc ReadAccessor, d Descriptor[P]) (int, error) {
	return acc.FetchCount(QueryFor[E, P](d))
}

// FetchBatched returns a lazily paged result over the records matching d.
func FetchBatched[E any, P RecordPtr[E]](acc ReadAccessor, d Descriptor[P], batchSize int) (*Paged[P], error) {
	paged, err := acc.FetchBatched(QueryFor[E, P](d), batchSize)
	if err != nil {
		return nil, err
	}
	return MapPaged(paged, castRecord[P]), nil
}

// FetchIdentifiers returns the identities of the records matching d.
func FetchIdentifiers[E any, P RecordPtr[E]](acc ReadAccessor, d Descriptor[P]) ([]RecordID, error) {
	return acc.FetchIdentifiers(QueryFor[E, P](d))
}

// FetchIdentifiersBatched returns a lazily paged result over the identities
// matching d.
func FetchIdentifiersBatched[E any, P RecordPtr[E]](acc ReadAccessor, d Descriptor[P], batchSize int) (*Paged[RecordID], error) {
	return acc.FetchIdentifiersBatched(QueryFor[E, P](d), batchSize)
}

// Find returns the registered record for id typed as P.
func Find[P Record](acc ReadAccessor, id RecordID) (P, bool) {
	var zero P
	rec, ok := acc.Find(id)
	if !ok {
		return zero, false
	}
	p, ok := rec.(P)
	if !ok {
		return zero, false
	}
	return p, true
}

// DeleteWhere removes every record of type P matching d.
func DeleteWhere[E any, P RecordPtr[E]](acc Accessor, d Descriptor[P]) error {
	return acc.DeleteWhere(QueryFor[E, P](d))
}

func castRecord[P Record](r Record) (P, error) {
	p, ok := r.(P)
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: unexpected record type %T", ErrInvalidQuery, r)
	}
	return p, nil
}
