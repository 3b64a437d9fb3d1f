package binding

import (
	"sort"

	"modelkit/pkg/domain"
	"modelkit/pkg/tracking"
)

// CollectionBinding wraps an ordered list of records observed through the
// tracker's collection state.
type CollectionBinding[P domain.Record] struct {
	values  []P
	tracker tracking.StateTracker
	state   *tracking.CollectionState
	unsub   func()

	nextSub   int
	listeners map[int]func(version int64)
}

// NewCollectionBinding wraps values.
func NewCollectionBinding[P domain.Record](values []P) *CollectionBinding[P] {
	return &CollectionBinding[P]{values: values}
}

// Values returns the wrapped records.
func (b *CollectionBinding[P]) Values() []P { return b.values }

// Set replaces the wrapped records. The collection state is shared by every
// list, so the association is kept.
func (b *CollectionBinding[P]) Set(values []P) { b.values = values }

// Setup binds the list to tracker's collection state. Repeated calls with the
// same tracker do nothing.
func (b *CollectionBinding[P]) Setup(tracker tracking.StateTracker) {
	if tracker == nil || b.tracker == tracker {
		return
	}
	if b.unsub != nil {
		b.unsub()
	}
	b.tracker = tracker
	b.state = tracker.TrackCollection()
	b.unsub = b.state.Subscribe(b.emit)
	b.emit(b.state.Version())
}

// Version returns the collection version, or Unresolved.
func (b *CollectionBinding[P]) Version() int64 {
	if b.state == nil {
		return Unresolved
	}
	return b.state.Version()
}

// Subscribe registers fn for collection version changes.
func (b *CollectionBinding[P]) Subscribe(fn func(version int64)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	if b.listeners == nil {
		b.listeners = make(map[int]func(int64))
	}
	id := b.nextSub
	b.nextSub++
	b.listeners[id] = fn
	return func() { delete(b.listeners, id) }
}

// Close stops forwarding collection changes and unbinds the tracker.
func (b *CollectionBinding[P]) Close() {
	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}
	b.state = nil
	b.tracker = nil
}

func (b *CollectionBinding[P]) emit(version int64) {
	for _, fn := range sortedListeners(b.listeners) {
		fn(version)
	}
}

func sortedListeners(listeners map[int]func(int64)) []func(int64) {
	ids := make([]int, 0, len(listeners))
	for id := range listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(int64), 0, len(ids))
	for _, id := range ids {
		out = append(out, listeners[id])
	}
	return out
}
