package records

import (
	"context"
	"sort"
	"testing"

	"modelkit/internal/infra/persistence/memory"
	"modelkit/pkg/domain"
)

func TestParseGenderRoundTrip(t *testing.T) {
	for g := range genderNames {
		got, err := ParseGender(g.String())
		if err != nil || got != g {
			t.Fatalf("ParseGender(%q) = %v, %v", g.String(), got, err)
		}
	}
	if got, err := ParseGender("FEMALE"); err != nil || got != GenderFemale {
		t.Fatalf("expected case-insensitive match, got %v %v", got, err)
	}
	if _, err := ParseGender("robot"); err == nil {
		t.Fatalf("expected unknown gender to fail")
	}
	if s := Gender(42).String(); s != "gender(42)" {
		t.Fatalf("unexpected fallback name %q", s)
	}
}

func TestDescriptorsAgainstEngine(t *testing.T) {
	store := memory.NewStore()
	for _, u := range []*User{
		NewUser("carol", IntPtr(41), GenderFemale),
		NewUser("alice", nil, GenderUnspecified),
		NewUser("bob", IntPtr(29), GenderMale),
		NewUser("alice", IntPtr(7), GenderFemale),
	} {
		if err := store.Insert(u); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := store.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}

	all, err := store.Fetch(domain.QueryFor[User](Users()))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	names := make([]string, len(all))
	for i, r := range all {
		names[i] = r.(*User).Name
	}
	if !sort.StringsAreSorted(names) || len(names) != 4 {
		t.Fatalf("expected users ordered by name, got %v", names)
	}

	n, err := store.FetchCount(domain.QueryFor[User](UsersNamed("alice")))
	if err != nil || n != 2 {
		t.Fatalf("expected 2 users named alice, got %d (%v)", n, err)
	}
}
