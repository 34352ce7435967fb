// Package memory provides an in-process Store used by the memory backend
// and by service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"splitledger/internal/core"
)

// Store keeps the whole ledger in maps guarded by a single mutex. Semantics
// mirror the SQLite repository, including cascade deletes and the conflict
// rules enforced there by constraints.
type Store struct {
	mu sync.Mutex

	users   map[int64]core.User
	groups  map[int64]core.Group
	members map[int64]map[int64]time.Time // group id -> user id -> joined at
	exps    map[int64]core.Expense
	shares  map[int64]core.ExpenseShare

	nextUserID    int64
	nextGroupID   int64
	nextExpenseID int64
	nextShareID   int64
}

func NewStore() *Store {
	return &Store{
		users:   make(map[int64]core.User),
		groups:  make(map[int64]core.Group),
		members: make(map[int64]map[int64]time.Time),
		exps:    make(map[int64]core.Expense),
		shares:  make(map[int64]core.ExpenseShare),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateUser(_ context.Context, u core.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return 0, fmt.Errorf("%w: username %q already taken", core.ErrConflict, u.Username)
		}
	}

	s.nextUserID++
	u.ID = s.nextUserID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
	return u.ID, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("%w: user %d", core.ErrNotFound, id)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("%w: user %q", core.ErrNotFound, username)
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return fmt.Errorf("%w: user %d", core.ErrNotFound, u.ID)
	}
	for id, other := range s.users {
		if id != u.ID && other.Username == u.Username {
			return fmt.Errorf("%w: username %q already taken", core.ErrConflict, u.Username)
		}
	}
	u.CreatedAt = existing.CreatedAt
	s.users[u.ID] = u
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("%w: user %d", core.ErrNotFound, id)
	}
	// Referential integrity: a user still referenced by groups, memberships,
	// expenses or shares cannot be removed.
	for _, g := range s.groups {
		if g.CreatedBy == id {
			return fmt.Errorf("%w: user %d still referenced", core.ErrConflict, id)
		}
	}
	for _, users := range s.members {
		if _, ok := users[id]; ok {
			return fmt.Errorf("%w: user %d still referenced", core.ErrConflict, id)
		}
	}
	for _, e := range s.exps {
		if e.PaidBy == id {
			return fmt.Errorf("%w: user %d still referenced", core.ErrConflict, id)
		}
	}
	for _, sh := range s.shares {
		if sh.UserID == id {
			return fmt.Errorf("%w: user %d still referenced", core.ErrConflict, id)
		}
	}
	delete(s.users, id)
	return nil
}

func (s *Store) CreateGroup(_ context.Context, g core.Group) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[g.CreatedBy]; !ok {
		return 0, fmt.Errorf("%w: creator %d", core.ErrConflict, g.CreatedBy)
	}

	s.nextGroupID++
	g.ID = s.nextGroupID
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	s.groups[g.ID] = g
	s.members[g.ID] = make(map[int64]time.Time)
	return g.ID, nil
}

func (s *Store) GetGroup(_ context.Context, id int64) (core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return core.Group{}, fmt.Errorf("%w: group %d", core.ErrNotFound, id)
	}
	return g, nil
}

func (s *Store) ListGroups(_ context.Context) ([]core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListGroupsByUser(_ context.Context, userID int64) ([]core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Group
	for groupID, users := range s.members {
		if _, ok := users[userID]; ok {
			out = append(out, s.groups[groupID])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateGroup(_ context.Context, g core.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.groups[g.ID]
	if !ok {
		return fmt.Errorf("%w: group %d", core.ErrNotFound, g.ID)
	}
	g.CreatedBy = existing.CreatedBy
	g.CreatedAt = existing.CreatedAt
	s.groups[g.ID] = g
	return nil
}

func (s *Store) DeleteGroup(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[id]; !ok {
		return fmt.Errorf("%w: group %d", core.ErrNotFound, id)
	}
	delete(s.groups, id)
	delete(s.members, id)
	for expID, e := range s.exps {
		if e.GroupID != id {
			continue
		}
		delete(s.exps, expID)
		for shareID, sh := range s.shares {
			if sh.ExpenseID == expID {
				delete(s.shares, shareID)
			}
		}
	}
	return nil
}

func (s *Store) AddGroupMember(_ context.Context, groupID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.members[groupID]
	if !ok {
		return fmt.Errorf("%w: group %d", core.ErrNotFound, groupID)
	}
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("%w: user %d", core.ErrNotFound, userID)
	}
	if _, ok := users[userID]; ok {
		return fmt.Errorf("%w: user %d already in group %d", core.ErrConflict, userID, groupID)
	}
	users[userID] = time.Now().UTC()
	return nil
}

func (s *Store) RemoveGroupMember(_ context.Context, groupID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.members[groupID]
	if !ok {
		return fmt.Errorf("%w: group %d", core.ErrNotFound, groupID)
	}
	if _, ok := users[userID]; !ok {
		return fmt.Errorf("%w: user %d not in group %d", core.ErrNotFound, userID, groupID)
	}
	delete(users, userID)
	return nil
}

func (s *Store) ListGroupMembers(_ context.Context, groupID int64) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.members[groupID]
	if !ok {
		return nil, fmt.Errorf("%w: group %d", core.ErrNotFound, groupID)
	}
	out := make([]core.User, 0, len(users))
	for userID := range users {
		out = append(out, s.users[userID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) IsGroupMember(_ context.Context, groupID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.members[groupID]
	if !ok {
		return false, nil
	}
	_, ok = users[userID]
	return ok, nil
}

func (s *Store) CreateExpenseWithShares(_ context.Context, e core.Expense, shares []core.ExpenseShare) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[e.GroupID]; !ok {
		return 0, fmt.Errorf("%w: group %d", core.ErrConflict, e.GroupID)
	}
	if _, ok := s.users[e.PaidBy]; !ok {
		return 0, fmt.Errorf("%w: payer %d", core.ErrConflict, e.PaidBy)
	}
	seen := make(map[int64]bool, len(shares))
	for _, sh := range shares {
		if _, ok := s.users[sh.UserID]; !ok {
			return 0, fmt.Errorf("%w: share user %d", core.ErrConflict, sh.UserID)
		}
		if seen[sh.UserID] {
			return 0, fmt.Errorf("%w: duplicate share for user %d", core.ErrConflict, sh.UserID)
		}
		seen[sh.UserID] = true
	}

	now := time.Now().UTC()
	s.nextExpenseID++
	e.ID = s.nextExpenseID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	s.exps[e.ID] = e

	for _, sh := range shares {
		s.nextShareID++
		sh.ID = s.nextShareID
		sh.ExpenseID = e.ID
		if sh.CreatedAt.IsZero() {
			sh.CreatedAt = now
		}
		s.shares[sh.ID] = sh
	}
	return e.ID, nil
}

func (s *Store) GetExpense(_ context.Context, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.exps[id]
	if !ok {
		return core.Expense{}, fmt.Errorf("%w: expense %d", core.ErrNotFound, id)
	}
	return e, nil
}

func (s *Store) ListGroupExpenses(_ context.Context, groupID int64) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Expense
	for _, e := range s.exps {
		if e.GroupID == groupID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.exps[id]; !ok {
		return fmt.Errorf("%w: expense %d", core.ErrNotFound, id)
	}
	delete(s.exps, id)
	for shareID, sh := range s.shares {
		if sh.ExpenseID == id {
			delete(s.shares, shareID)
		}
	}
	return nil
}

func (s *Store) ListExpenseShares(_ context.Context, expenseID int64) ([]core.ExpenseShare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.ExpenseShare
	for _, sh := range s.shares {
		if sh.ExpenseID == expenseID {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) GetExpenseShare(_ context.Context, id int64) (core.ExpenseShare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shares[id]
	if !ok {
		return core.ExpenseShare{}, fmt.Errorf("%w: share %d", core.ErrNotFound, id)
	}
	return sh, nil
}

func (s *Store) SetSharePaid(_ context.Context, id int64, paid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shares[id]
	if !ok {
		return fmt.Errorf("%w: share %d", core.ErrNotFound, id)
	}
	sh.IsPaid = paid
	s.shares[id] = sh
	return nil
}

func (s *Store) SumPaidByUser(_ context.Context, groupID, userID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total float64
	for _, e := range s.exps {
		if e.GroupID == groupID && e.PaidBy == userID {
			total += e.Amount
		}
	}
	return total, nil
}

func (s *Store) SumOwedByUser(_ context.Context, groupID, userID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total float64
	for _, sh := range s.shares {
		if sh.UserID != userID || sh.IsPaid {
			continue
		}
		if e, ok := s.exps[sh.ExpenseID]; ok && e.GroupID == groupID {
			total += sh.Amount
		}
	}
	return total, nil
}

func (s *Store) DebtsOwedBy(_ context.Context, groupID, userID int64) ([]core.DebtEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make(map[int64]float64)
	for _, sh := range s.shares {
		if sh.UserID != userID || sh.IsPaid {
			continue
		}
		e, ok := s.exps[sh.ExpenseID]
		if !ok || e.GroupID != groupID || e.PaidBy == userID {
			continue
		}
		totals[e.PaidBy] += sh.Amount
	}
	return s.debtEntries(totals), nil
}

func (s *Store) DebtsOwedTo(_ context.Context, groupID, userID int64) ([]core.DebtEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make(map[int64]float64)
	for _, sh := range s.shares {
		if sh.IsPaid || sh.UserID == userID {
			continue
		}
		e, ok := s.exps[sh.ExpenseID]
		if !ok || e.GroupID != groupID || e.PaidBy != userID {
			continue
		}
		totals[sh.UserID] += sh.Amount
	}
	return s.debtEntries(totals), nil
}

func (s *Store) debtEntries(totals map[int64]float64) []core.DebtEntry {
	out := make([]core.DebtEntry, 0, len(totals))
	for userID, amount := range totals {
		u := s.users[userID]
		out = append(out, core.DebtEntry{
			UserID:   userID,
			Username: u.Username,
			Name:     u.DisplayName(),
			Amount:   amount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
