package core

import (
	"context"
	"fmt"
	"sync/atomic"

	"modelkit/internal/goid"
	"modelkit/pkg/domain"
)

// accessor proxies a body's operations to the persistence context. It is
// valid only on the writer goroutine and only until its body returns; paged
// results fetched through it must be consumed inside the body as well.
type accessor struct {
	ctx          context.Context
	container    domain.Context
	owner        uint64
	depth        int32
	rollbackOnly bool
	closed       atomic.Bool
}

var _ domain.Accessor = (*accessor)(nil)

func newAccessor(ctx context.Context, container domain.Context) *accessor {
	return &accessor{ctx: ctx, container: container}
}

func (a *accessor) close() { a.closed.Store(true) }

func (a *accessor) guard(op string) {
	if a.closed.Load() {
		domain.Fatalf("accessor %s used after its body returned", op)
	}
	if current := goid.Current(); current != a.owner {
		domain.Fatalf("accessor %s used on goroutine %d, bodies run on goroutine %d", op, current, a.owner)
	}
}

func (a *accessor) Insert(rec domain.Record) error {
	a.guard("Insert")
	return a.container.Insert(rec)
}

func (a *accessor) Delete(rec domain.Record) error {
	a.guard("Delete")
	return a.container.Delete(rec)
}

func (a *accessor) DeleteWhere(q domain.Query) error {
	a.guard("DeleteWhere")
	return a.container.DeleteWhere(q)
}

func (a *accessor) SetRollbackOnly() {
	a.guard("SetRollbackOnly")
	a.rollbackOnly = true
}

func (a *accessor) Fetch(q domain.Query) ([]domain.Record, error) {
	a.guard("Fetch")
	return a.container.Fetch(q)
}

func (a *accessor) FetchCount(q domain.Query) (int, error) {
	a.guard("FetchCount")
	return a.container.FetchCount(q)
}

// FetchBatched counts the matches up front and fetches one window of
// batchSize records per page on first access.
func (a *accessor) FetchBatched(q domain.Query, batchSize int) (*domain.Paged[domain.Record], error) {
	a.guard("FetchBatched")
	if q.New == nil {
		return nil, fmt.Errorf("%w: batched fetch of %q requires a record factory", domain.ErrInvalidQuery, q.Entity)
	}
	total, err := a.container.FetchCount(q)
	if err != nil {
		return nil, err
	}
	base := max(q.Offset, 0)
	return domain.NewPaged(total, batchSize, func(offset, limit int) ([]domain.Record, error) {
		a.guard("FetchBatched page")
		page := q
		page.Offset, page.Limit = base+offset, limit
		return a.container.Fetch(page)
	}), nil
}

func (a *accessor) FetchIdentifiers(q domain.Query) ([]domain.RecordID, error) {
	a.guard("FetchIdentifiers")
	return a.container.FetchIdentifiers(q)
}

func (a *accessor) FetchIdentifiersBatched(q domain.Query, batchSize int) (*domain.Paged[domain.RecordID], error) {
	a.guard("FetchIdentifiersBatched")
	total, err := a.container.FetchCount(q)
	if err != nil {
		return nil, err
	}
	base := max(q.Offset, 0)
	return domain.NewPaged(total, batchSize, func(offset, limit int) ([]domain.RecordID, error) {
		a.guard("FetchIdentifiersBatched page")
		page := q
		page.Offset, page.Limit = base+offset, limit
		return a.container.FetchIdentifiers(page)
	}), nil
}

// Context may be used from any goroutine, also after the body returned.
func (a *accessor) Context() context.Context { return a.ctx }

func (a *accessor) Find(id domain.RecordID) (domain.Record, bool) {
	a.guard("Find")
	return a.container.Registered(id)
}

// readView narrows an accessor to the read-only capability handed to query
// bodies.
type readView struct {
	acc *accessor
}

var _ domain.ReadAccessor = readView{}

func (r readView) Fetch(q domain.Query) ([]domain.Record, error) { return r.acc.Fetch(q) }

func (r readView) FetchCount(q domain.Query) (int, error) { return r.acc.FetchCount(q) }

func (r readView) FetchBatched(q domain.Query, batchSize int) (*domain.Paged[domain.Record], error) {
	return r.acc.FetchBatched(q, batchSize)
}

func (r readView) FetchIdentifiers(q domain.Query) ([]domain.RecordID, error) {
	return r.acc.FetchIdentifiers(q)
}

func (r readView) FetchIdentifiersBatched(q domain.Query, batchSize int) (*domain.Paged[domain.RecordID], error) {
	return r.acc.FetchIdentifiersBatched(q, batchSize)
}

func (r readView) Find(id domain.RecordID) (domain.Record, bool) { return r.acc.Find(id) }

func (r readView) Context() context.Context { return r.acc.Context() }
