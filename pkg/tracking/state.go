// Package tracking maintains the version cells observed by UI bindings. A
// tracker owns one RecordState per observed record identity plus a single
// CollectionState; application code bumps them after a transaction commits
// and subscribers are told the new version synchronously.
package tracking

import (
	"sort"
	"sync"
	"sync/atomic"

	"modelkit/pkg/domain"
)

// cell is the version/deleted pair shared by record and collection states.
// Version and deleted flag are atomics so observers may read them from any
// goroutine; mutation happens on the tracker's owner goroutine only.
type cell struct {
	version atomic.Int64
	deleted atomic.Bool

	mu        sync.Mutex
	nextSub   int
	listeners map[int]func(version int64)
}

// Version returns the number of observable changes applied so far.
func (c *cell) Version() int64 { return c.version.Load() }

// IsDeleted reports whether the tracked value is currently deleted.
func (c *cell) IsDeleted() bool { return c.deleted.Load() }

// Subscribe registers fn to be called with the new version after every bump.
// The returned func removes the subscription and may be called repeatedly.
func (c *cell) Subscribe(fn func(version int64)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	if c.listeners == nil {
		c.listeners = make(map[int]func(int64))
	}
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *cell) subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

func (c *cell) bump() {
	v := c.version.Add(1)
	c.mu.Lock()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(int64), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.mu.Unlock()
	// Listeners run outside the lock so they may subscribe or cancel.
	for _, fn := range fns {
		fn(v)
	}
}

// RecordState is the version cell of a single record identity.
type RecordState struct {
	cell
	id domain.RecordID
}

// ID returns the tracked record identity.
func (s *RecordState) ID() domain.RecordID { return s.id }

// CollectionState is the version cell of the record collection as a whole.
type CollectionState struct {
	cell
}
