// Package binding exposes records and record lists to a reactive UI layer as
// version counters. A binding resolves its tracking state through a
// tracking.StateTracker once Setup is called and forwards every version bump
// of that state to its own subscribers.
package binding

import (
	"reflect"

	"modelkit/pkg/domain"
	"modelkit/pkg/tracking"
)

// Unresolved is the version reported before a binding has a tracking state.
const Unresolved int64 = -1

// RecordBinding wraps a single record. It is used from the tracker's owner
// goroutine only.
type RecordBinding[P domain.Record] struct {
	value   P
	tracker tracking.StateTracker
	state   *tracking.RecordState
	unsub   func()

	nextSub   int
	listeners map[int]func(version int64)
}

// NewRecordBinding wraps value. The binding stays unresolved until Setup.
func NewRecordBinding[P domain.Record](value P) *RecordBinding[P] {
	return &RecordBinding[P]{value: value}
}

// Value returns the wrapped record.
func (b *RecordBinding[P]) Value() P { return b.value }

// Set replaces the wrapped record. A record with the same identity keeps the
// current tracking state; any other identity is resolved again through the
// bound tracker.
func (b *RecordBinding[P]) Set(value P) {
	b.value = value
	if b.tracker == nil {
		return
	}
	if b.state != nil && !isNil(value) && value.RecordID() == b.state.ID() {
		return
	}
	b.resolve()
}

// Setup binds the record to tracker. Calling it again with the same tracker
// does nothing; a different tracker re-resolves the state.
func (b *RecordBinding[P]) Setup(tracker tracking.StateTracker) {
	if tracker == nil || b.tracker == tracker {
		return
	}
	b.release()
	b.tracker = tracker
	b.resolve()
}

// Version returns the tracked version, or Unresolved.
func (b *RecordBinding[P]) Version() int64 {
	if b.state == nil {
		return Unresolved
	}
	return b.state.Version()
}

// IsDeleted reports the tracked deleted flag, or false when unresolved.
func (b *RecordBinding[P]) IsDeleted() bool {
	return b.state != nil && b.state.IsDeleted()
}

// State returns the resolved tracking state, if any.
func (b *RecordBinding[P]) State() *tracking.RecordState { return b.state }

// Subscribe registers fn for version changes. Subscriptions survive
// re-resolution: fn is also called with the new version whenever the binding
// switches to a different state.
func (b *RecordBinding[P]) Subscribe(fn func(version int64)) (cancel func()) {
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

// Close releases the tracking state and unbinds the tracker. The binding
// reports Unresolved afterwards.
func (b *RecordBinding[P]) Close() {
	b.release()
	b.tracker = nil
}

func (b *RecordBinding[P]) resolve() {
	prev := b.state
	b.release()
	if !isNil(b.value) {
		if id := b.value.RecordID(); !id.IsZero() {
			b.state = b.tracker.TrackRecord(id)
			b.unsub = b.state.Subscribe(b.emit)
		}
	}
	if b.state != prev {
		b.emit(b.Version())
	}
}

func (b *RecordBinding[P]) release() {
	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}
	if b.state != nil {
		b.tracker.Release(b.state)
		b.state = nil
	}
}

func (b *RecordBinding[P]) emit(version int64) {
	for _, fn := range sortedListeners(b.listeners) {
		fn(version)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
