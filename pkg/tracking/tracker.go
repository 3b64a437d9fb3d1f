package tracking

import (
	"sync/atomic"

	"modelkit/internal/goid"
	"modelkit/pkg/domain"
)

// StateTracker resolves version cells for bindings.
type StateTracker interface {
	// TrackRecord returns the live state for id, creating it at version 0
	// when none exists, and adds a reference to it.
	TrackRecord(id domain.RecordID) *RecordState
	// Release drops a reference taken by TrackRecord. The state is evicted
	// once no references remain.
	Release(state *RecordState)
	// TrackCollection returns the tracker's collection state.
	TrackCollection() *CollectionState
}

// MutableStateTracker adds the notifications application code issues after a
// transaction has committed.
type MutableStateTracker interface {
	StateTracker
	RecordInserted(id domain.RecordID)
	RecordUpdated(id domain.RecordID)
	RecordDeleted(id domain.RecordID)
	CollectionDidChange()
	CollectionDidReset()
}

var _ MutableStateTracker = (*MainTracker)(nil)

type entry struct {
	state *RecordState
	refs  int
}

// MainTracker is the MutableStateTracker used by applications. It is owned by
// a single goroutine, normally the one running a MainLoop: the first call
// claims ownership unless WithOwnerGoroutine names the owner up front, and a
// call from any other goroutine panics with a *domain.ProgrammingError.
type MainTracker struct {
	logger        domain.Logger
	checkAffinity bool
	owner         atomic.Uint64

	records    map[domain.RecordID]*entry
	collection *CollectionState
}

// Option configures a MainTracker.
type Option func(*MainTracker)

// WithLogger sets the logger used for consistency warnings.
func WithLogger(logger domain.Logger) Option {
	return func(t *MainTracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithOwnerGoroutine pins the tracker to the goroutine with the given id.
func WithOwnerGoroutine(id uint64) Option {
	return func(t *MainTracker) { t.owner.Store(id) }
}

// WithoutAffinityCheck disables the owner-goroutine assertion for callers
// that serialize access by other means.
func WithoutAffinityCheck() Option {
	return func(t *MainTracker) { t.checkAffinity = false }
}

// NewMainTracker constructs an empty tracker.
func NewMainTracker(opts ...Option) *MainTracker {
	t := &MainTracker{
		logger:        domain.NopLogger(),
		checkAffinity: true,
		records:       make(map[domain.RecordID]*entry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TrackRecord implements StateTracker.
func (t *MainTracker) TrackRecord(id domain.RecordID) *RecordState {
	t.assertOwner("TrackRecord")
	if e, ok := t.records[id]; ok {
		e.refs++
		return e.state
	}
	state := &RecordState{id: id}
	t.records[id] = &entry{state: state, refs: 1}
	return state
}

// Release implements StateTracker. Releasing a state that is no longer
// registered is a no-op.
func (t *MainTracker) Release(state *RecordState) {
	t.assertOwner("Release")
	if state == nil {
		return
	}
	e, ok := t.records[state.id]
	if !ok || e.state != state {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(t.records, state.id)
	}
}

// TrackCollection implements StateTracker.
func (t *MainTracker) TrackCollection() *CollectionState {
	t.assertOwner("TrackCollection")
	if t.collection == nil {
		t.collection = &CollectionState{}
	}
	return t.collection
}

// Tracked reports the number of record states currently registered.
func (t *MainTracker) Tracked() int {
	t.assertOwner("Tracked")
	return len(t.records)
}

// RecordInserted resurrects a deleted state for id. A state that was never
// deleted keeps its version: a freshly tracked id already starts at 0.
func (t *MainTracker) RecordInserted(id domain.RecordID) {
	t.assertOwner("RecordInserted")
	if state := t.live(id); state != nil && state.IsDeleted() {
		state.deleted.Store(false)
		state.bump()
	}
	t.bumpCollection()
}

// RecordUpdated bumps the state for id when one is live.
func (t *MainTracker) RecordUpdated(id domain.RecordID) {
	t.assertOwner("RecordUpdated")
	if state := t.live(id); state != nil {
		if state.IsDeleted() {
			t.logger.Warn("record updated after delete", "id", id.String(), "version", state.Version())
		}
		state.bump()
	}
	t.bumpCollection()
}

// RecordDeleted marks the state for id deleted. Repeated calls leave the
// record state untouched.
func (t *MainTracker) RecordDeleted(id domain.RecordID) {
	t.assertOwner("RecordDeleted")
	if state := t.live(id); state != nil && !state.IsDeleted() {
		state.deleted.Store(true)
		state.bump()
	}
	t.bumpCollection()
}

// CollectionDidChange bumps the collection without touching records.
func (t *MainTracker) CollectionDidChange() {
	t.assertOwner("CollectionDidChange")
	t.bumpCollection()
}

// CollectionDidReset bumps the collection and every live record that is not
// deleted.
func (t *MainTracker) CollectionDidReset() {
	t.assertOwner("CollectionDidReset")
	t.bumpCollection()
	states := make([]*RecordState, 0, len(t.records))
	for _, e := range t.records {
		if !e.state.IsDeleted() {
			states = append(states, e.state)
		}
	}
	for _, state := range states {
		state.bump()
	}
}

func (t *MainTracker) live(id domain.RecordID) *RecordState {
	if e, ok := t.records[id]; ok {
		return e.state
	}
	return nil
}

func (t *MainTracker) bumpCollection() {
	if t.collection != nil {
		t.collection.bump()
	}
}

func (t *MainTracker) assertOwner(op string) {
	if !t.checkAffinity {
		return
	}
	current := goid.Current()
	if t.owner.CompareAndSwap(0, current) {
		return
	}
	if owner := t.owner.Load(); owner != current {
		domain.Fatalf("tracker %s called on goroutine %d, owned by goroutine %d", op, current, owner)
	}
}
