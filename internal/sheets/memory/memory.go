// Package memory is an in-process snapshot writer used by tests and the
// memory backend.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"splitledger/internal/core"
	ports "splitledger/internal/sheets"
)

type Snapshot struct {
	Group    core.Group
	Balances []core.MemberBalance
	TakenAt  time.Time
}

type Store struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

var _ ports.SnapshotWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendSnapshot records the snapshot and returns a synthetic row reference.
func (s *Store) AppendSnapshot(_ context.Context, group core.Group, balances []core.MemberBalance, takenAt time.Time) (string, error) {
	if len(balances) == 0 {
		return "", fmt.Errorf("no balances to export for group %d", group.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, Snapshot{
		Group:    group,
		Balances: append([]core.MemberBalance(nil), balances...),
		TakenAt:  takenAt,
	})
	return fmt.Sprintf("mem:%d", len(s.snapshots)), nil
}

// Snapshots returns a copy of everything written so far.
func (s *Store) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.snapshots...)
}
