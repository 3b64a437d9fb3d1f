// Package records holds the record schemas shipped with modelkit. User is the
// reference entity exercised by the tests and the inspection CLI.
package records

import (
	"fmt"
	"strings"

	"modelkit/pkg/domain"
)

// EntityUser is the entity name under which users are persisted.
const EntityUser = "user"

// Gender enumerates the recorded gender values.
type Gender int

const (
	GenderUnknown Gender = iota
	GenderMale
	GenderFemale
	GenderUnspecified
)

var genderNames = map[Gender]string{
	GenderUnknown:     "unknown",
	GenderMale:        "male",
	GenderFemale:      "female",
	GenderUnspecified: "unspecified",
}

func (g Gender) String() string {
	if name, ok := genderNames[g]; ok {
		return name
	}
	return fmt.Sprintf("gender(%d)", int(g))
}

// ParseGender maps a name produced by String back to its value.
func ParseGender(s string) (Gender, error) {
	for g, name := range genderNames {
		if strings.EqualFold(name, s) {
			return g, nil
		}
	}
	return GenderUnknown, fmt.Errorf("unknown gender %q", s)
}

// User is a persisted person record.
type User struct {
	domain.Base
	Name   string `json:"name"`
	Age    *int   `json:"age,omitempty"`
	Gender Gender `json:"gender"`
}

// NewUser constructs an unsaved user.
func NewUser(name string, age *int, gender Gender) *User {
	return &User{Name: name, Age: age, Gender: gender}
}

// EntityName implements domain.Record.
func (*User) EntityName() string { return EntityUser }

// Users matches every user ordered by name.
func Users() domain.Descriptor[*User] {
	return domain.Descriptor[*User]{SortBy: func(a, b *User) bool { return a.Name < b.Name }}
}

// UsersNamed matches users whose name equals name.
func UsersNamed(name string) domain.Descriptor[*User] {
	return domain.Descriptor[*User]{Predicate: func(u *User) bool { return u.Name == name }}
}

// IntPtr returns a pointer to v, for optional fields such as Age.
func IntPtr(v int) *int { return &v }
