package memory

import (
	"context"
	"testing"
	"time"

	"splitledger/internal/core"
)

func TestStoreAppendSnapshot(t *testing.T) {
	s := New()
	group := core.Group{ID: 1, Name: "holiday"}
	balances := []core.MemberBalance{
		{User: core.User{ID: 1, Username: "alice"}, Balance: core.Balance{Paid: 40, Owed: 20, Net: 20}},
	}

	ref, err := s.AppendSnapshot(context.Background(), group, balances, time.Now())
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	snaps := s.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	if snaps[0].Group.Name != "holiday" || len(snaps[0].Balances) != 1 {
		t.Errorf("unexpected snapshot: %+v", snaps[0])
	}
}

func TestStoreAppendSnapshotEmpty(t *testing.T) {
	s := New()

	_, err := s.AppendSnapshot(context.Background(), core.Group{ID: 1}, nil, time.Now())
	if err == nil {
		t.Fatal("expected error for empty snapshot")
	}
	if len(s.Snapshots()) != 0 {
		t.Error("nothing should be recorded on failure")
	}
}
