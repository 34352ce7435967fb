package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"splitledger/internal/cache"
	"splitledger/internal/core"
	"splitledger/internal/storage"
)

// BalanceService computes per-member balances and the two debt views.
// Group summaries are cached until the ledger changes.
type BalanceService struct {
	store   storage.Store
	cache   *cache.LRUCache[[]core.MemberBalance]
	manager *cache.Manager
}

const (
	balanceCacheSize    = 256
	balanceCacheTTL     = 5 * time.Minute
	balanceCacheCleanup = time.Minute
)

func NewBalanceService(store storage.Store) *BalanceService {
	lru := cache.NewLRUCache[[]core.MemberBalance](balanceCacheSize, balanceCacheTTL)
	manager := cache.NewManager()
	manager.Register(lru)
	manager.StartCleanup(balanceCacheCleanup)

	return &BalanceService{
		store:   store,
		cache:   lru,
		manager: manager,
	}
}

// Close stops the background cache cleanup.
func (s *BalanceService) Close() {
	s.manager.Stop()
}

// UserBalance reports how much the user paid and owes inside the group. The
// two sums run concurrently, they read disjoint rows. A group or membership
// that no longer exists yields a zero balance, never an error.
func (s *BalanceService) UserBalance(ctx context.Context, groupID, userID int64) (core.Balance, error) {
	var paid, owed float64
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		paid, err = s.store.SumPaidByUser(ctx, groupID, userID)
		return err
	})
	g.Go(func() error {
		var err error
		owed, err = s.store.SumOwedByUser(ctx, groupID, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Balance{}, err
	}

	return core.Balance{Paid: paid, Owed: owed, Net: paid - owed}, nil
}

// GroupBalances returns the balance of every member, ordered by user id.
func (s *BalanceService) GroupBalances(ctx context.Context, groupID int64) ([]core.MemberBalance, error) {
	key := balanceCacheKey(groupID)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	members, err := s.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	balances := make([]core.MemberBalance, len(members))
	g, ctx := errgroup.WithContext(ctx)
	for i, member := range members {
		g.Go(func() error {
			paid, err := s.store.SumPaidByUser(ctx, groupID, member.ID)
			if err != nil {
				return err
			}
			owed, err := s.store.SumOwedByUser(ctx, groupID, member.ID)
			if err != nil {
				return err
			}
			balances[i] = core.MemberBalance{
				User:    member,
				Balance: core.Balance{Paid: paid, Owed: owed, Net: paid - owed},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.cache.Set(key, balances)
	return balances, nil
}

// DebtsOwedBy lists who the user still has to pay inside the group, one
// entry per creditor. Empty when the group is gone or nothing is owed.
func (s *BalanceService) DebtsOwedBy(ctx context.Context, groupID, userID int64) ([]core.DebtEntry, error) {
	return s.store.DebtsOwedBy(ctx, groupID, userID)
}

// DebtsOwedTo lists who still has to pay the user inside the group, one
// entry per debtor. Empty when the group is gone or nothing is owed.
func (s *BalanceService) DebtsOwedTo(ctx context.Context, groupID, userID int64) ([]core.DebtEntry, error) {
	return s.store.DebtsOwedTo(ctx, groupID, userID)
}

// GroupSnapshot bundles a group's current balances for export.
type GroupSnapshot struct {
	Group    core.Group
	Balances []core.MemberBalance
	TakenAt  time.Time
}

// Snapshot captures the group's balances at this moment.
func (s *BalanceService) Snapshot(ctx context.Context, groupID int64) (GroupSnapshot, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return GroupSnapshot{}, err
	}
	balances, err := s.GroupBalances(ctx, groupID)
	if err != nil {
		return GroupSnapshot{}, err
	}
	return GroupSnapshot{
		Group:    group,
		Balances: balances,
		TakenAt:  time.Now().UTC(),
	}, nil
}

// Invalidate drops the cached summary for the group. Called after every
// write that can move a balance.
func (s *BalanceService) Invalidate(groupID int64) {
	s.cache.Delete(balanceCacheKey(groupID))
}

func balanceCacheKey(groupID int64) string {
	return fmt.Sprintf("group-balances:%d", groupID)
}
