package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"modelkit/internal/records"
	"modelkit/pkg/binding"
	"modelkit/pkg/domain"
	"modelkit/pkg/tracking"
)

// view is what a screen showing one user and the user list keeps on the loop.
type view struct {
	user     *binding.RecordBinding[*records.User]
	list     *binding.CollectionBinding[*records.User]
	userSeen []int64
	listSeen []int64
	tracker  *tracking.MainTracker
	loop     *tracking.MainLoop
}

func startView(t *testing.T) *view {
	t.Helper()
	loop := tracking.NewMainLoop(0)
	go func() { _ = loop.Run(context.Background()) }()
	select {
	case <-loop.Started():
	case <-time.After(time.Second):
		t.Fatalf("loop did not start")
	}
	t.Cleanup(loop.Stop)
	return &view{
		loop:    loop,
		tracker: tracking.NewMainTracker(tracking.WithOwnerGoroutine(loop.Goroutine())),
	}
}

func (v *view) on(t *testing.T, fn func()) {
	t.Helper()
	if err := v.loop.Call(context.Background(), fn); err != nil {
		t.Fatalf("loop call: %v", err)
	}
}

// commit hands a change set to the loop the way application code does after
// a transaction returns.
func (v *view) commit(t *testing.T, changes domain.ChangeSet) {
	t.Helper()
	v.on(t, func() { tracking.Notify(v.tracker, changes) })
}

type snapshot struct {
	user, list int64
	deleted    bool
	userSeen   int
	listSeen   int
}

func (v *view) snapshot(t *testing.T) snapshot {
	t.Helper()
	var s snapshot
	v.on(t, func() {
		s = snapshot{
			user:     v.user.Version(),
			list:     v.list.Version(),
			deleted:  v.user.IsDeleted(),
			userSeen: len(v.userSeen),
			listSeen: len(v.listSeen),
		}
	})
	return s
}

func TestCommittedChangesReachBindings(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	v := startView(t)

	var ada *records.User
	changes, err := svc.TransactionChanges(ctx, func(acc domain.Accessor) error {
		ada = records.NewUser("ada", records.IntPtr(36), records.GenderFemale)
		return acc.Insert(ada)
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	v.on(t, func() {
		v.user = binding.NewRecordBinding(ada)
		v.user.Setup(v.tracker)
		v.list = binding.NewCollectionBinding([]*records.User{ada})
		v.list.Setup(v.tracker)
		v.user.Subscribe(func(n int64) { v.userSeen = append(v.userSeen, n) })
		v.list.Subscribe(func(n int64) { v.listSeen = append(v.listSeen, n) })
	})
	v.commit(t, changes)
	if s := v.snapshot(t); s.user != 0 || s.list != 1 || s.listSeen != 1 || s.userSeen != 0 {
		t.Fatalf("after insert: %+v", s)
	}

	changes, err = svc.TransactionChanges(ctx, func(acc domain.Accessor) error {
		users, err := domain.Fetch[records.User](acc, records.UsersNamed("ada"))
		if err != nil {
			return err
		}
		users[0].Age = records.IntPtr(37)
		return nil
	})
	if err != nil || len(changes.Updated) != 1 || changes.Updated[0] != ada.RecordID() {
		t.Fatalf("update: %+v (%v)", changes, err)
	}
	v.commit(t, changes)
	after := v.snapshot(t)
	if after.user != 1 || after.list != 2 || after.userSeen != 1 || after.listSeen != 2 {
		t.Fatalf("after update: %+v", after)
	}

	fresh, err := domain.InQuery(ctx, svc, func(acc domain.ReadAccessor) (*records.User, error) {
		users, err := domain.Fetch[records.User](acc, records.UsersNamed("ada"))
		if err != nil || len(users) != 1 {
			return nil, errors.New("ada not found")
		}
		return users[0], nil
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	v.on(t, func() { v.user.Set(fresh) })
	if s := v.snapshot(t); s.user != 1 || s.userSeen != 1 {
		t.Fatalf("same identity must keep the state: %+v", s)
	}

	// Neither a rolled back nor a failed transaction produces changes, so
	// no tracking state moves.
	changes, err = svc.TransactionChanges(ctx, func(acc domain.Accessor) error {
		users, err := domain.Fetch[records.User](acc, records.Users())
		if err != nil {
			return err
		}
		users[0].Name = "draft"
		acc.SetRollbackOnly()
		return nil
	})
	if err != nil || !changes.IsEmpty() {
		t.Fatalf("rollback-only: %+v (%v)", changes, err)
	}
	v.commit(t, changes)
	boom := errors.New("boom")
	changes, err = svc.TransactionChanges(ctx, func(acc domain.Accessor) error {
		if err := domain.DeleteWhere[records.User](acc, records.Users()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) || !changes.IsEmpty() {
		t.Fatalf("failed body: %+v (%v)", changes, err)
	}
	v.commit(t, changes)
	if s := v.snapshot(t); s != after {
		t.Fatalf("expected tracking untouched by rolled back work, got %+v want %+v", s, after)
	}

	changes, err = svc.TransactionChanges(ctx, func(acc domain.Accessor) error {
		return domain.DeleteWhere[records.User](acc, records.UsersNamed("ada"))
	})
	if err != nil || len(changes.Deleted) != 1 {
		t.Fatalf("delete: %+v (%v)", changes, err)
	}
	v.commit(t, changes)
	v.commit(t, changes)
	if s := v.snapshot(t); s.user != 2 || !s.deleted || s.list != 4 || s.userSeen != 2 {
		t.Fatalf("after delete: %+v", s)
	}
}
