package tracking

import "modelkit/pkg/domain"

// Notify replays a committed change set on t: inserts first, then updates,
// then deletes. Every identity also bumps the collection once.
func Notify(t MutableStateTracker, changes domain.ChangeSet) {
	for _, id := range changes.Inserted {
		t.RecordInserted(id)
	}
	for _, id := range changes.Updated {
		t.RecordUpdated(id)
	}
	for _, id := range changes.Deleted {
		t.RecordDeleted(id)
	}
}
