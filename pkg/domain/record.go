// Package domain defines the contracts shared by the tracking layer, the
// transactional service and the persistence backends: record identity,
// queries, the persistence context capability and the accessor surface
// handed to transaction bodies.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// RecordID is the stable identity of a persisted record. It is comparable and
// is used as the key for per-record tracking state.
type RecordID struct {
	Entity string `json:"entity"`
	Key    string `json:"key"`
}

// NewRecordID allocates a fresh identity for the supplied entity.
func NewRecordID(entity string) RecordID {
	return RecordID{Entity: entity, Key: uuid.NewString()}
}

// IsZero reports whether the identity has not been assigned yet.
func (id RecordID) IsZero() bool { return id.Key == "" }

func (id RecordID) String() string {
	if id.IsZero() {
		return id.Entity + "/<unassigned>"
	}
	return id.Entity + "/" + id.Key
}

// Record is implemented by every persisted type. Implementations are pointer
// types that embed Base and provide EntityName.
type Record interface {
	EntityName() string
	RecordID() RecordID
	SetRecordID(RecordID)
}

// RecordPtr constrains generic helpers to pointer record types so that new
// instances can be allocated while decoding.
type RecordPtr[E any] interface {
	*E
	Record
}

// Base carries a record's identity. Embed it by value in record structs.
type Base struct {
	ID RecordID `json:"id"`
}

// RecordID returns the assigned identity.
func (b *Base) RecordID() RecordID { return b.ID }

// SetRecordID assigns the identity. Persistence backends call this on insert.
func (b *Base) SetRecordID(id RecordID) { b.ID = id }

// EntityOf returns the entity name declared by the record type P.
func EntityOf[E any, P RecordPtr[E]]() string {
	return P(new(E)).EntityName()
}

// ValidateRecord checks that rec is usable as a persisted record.
func ValidateRecord(rec Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	entity := rec.EntityName()
	if entity == "" {
		return fmt.Errorf("%w: empty entity name", ErrInvalidRecord)
	}
	if id := rec.RecordID(); !id.IsZero() && id.Entity != entity {
		return fmt.Errorf("%w: id %s does not belong to entity %s", ErrInvalidRecord, id, entity)
	}
	return nil
}
