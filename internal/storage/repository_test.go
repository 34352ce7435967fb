package storage

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"splitledger/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedUser(t *testing.T, repo *SQLiteRepository, username string) int64 {
	t.Helper()

	id, err := repo.CreateUser(context.Background(), core.User{Username: username})
	if err != nil {
		t.Fatalf("CreateUser(%q) failed: %v", username, err)
	}
	return id
}

func seedGroup(t *testing.T, repo *SQLiteRepository, name string, creator int64, members ...int64) int64 {
	t.Helper()

	ctx := context.Background()
	id, err := repo.CreateGroup(ctx, core.Group{Name: name, CreatedBy: creator})
	if err != nil {
		t.Fatalf("CreateGroup(%q) failed: %v", name, err)
	}
	for _, m := range members {
		if err := repo.AddGroupMember(ctx, id, m); err != nil {
			t.Fatalf("AddGroupMember(%d, %d) failed: %v", id, m, err)
		}
	}
	return id
}

func TestSQLiteRepository_UserRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CreateUser(ctx, core.User{
		Username:  "alice",
		FirstName: "Alice",
		LastName:  "Rossi",
		Email:     "alice@example.com",
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	got, err := repo.GetUser(ctx, id)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Username != "alice" || got.FirstName != "Alice" || got.Email != "alice@example.com" {
		t.Errorf("unexpected user: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set on insert")
	}

	byName, err := repo.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if byName.ID != id {
		t.Errorf("GetUserByUsername returned id %d, want %d", byName.ID, id)
	}
}

func TestSQLiteRepository_DuplicateUsername(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedUser(t, repo, "alice")
	_, err := repo.CreateUser(ctx, core.User{Username: "alice"})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}
}

func TestSQLiteRepository_GetUserNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetUser(context.Background(), 999)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteRepository_Membership(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alice := seedUser(t, repo, "alice")
	bob := seedUser(t, repo, "bob")
	group := seedGroup(t, repo, "trip", alice, alice, bob)

	if err := repo.AddGroupMember(ctx, group, bob); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict adding member twice, got %v", err)
	}

	members, err := repo.ListGroupMembers(ctx, group)
	if err != nil {
		t.Fatalf("ListGroupMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	ok, err := repo.IsGroupMember(ctx, group, bob)
	if err != nil || !ok {
		t.Fatalf("IsGroupMember(bob) = %v, %v; want true, nil", ok, err)
	}

	if err := repo.RemoveGroupMember(ctx, group, bob); err != nil {
		t.Fatalf("RemoveGroupMember failed: %v", err)
	}
	ok, err = repo.IsGroupMember(ctx, group, bob)
	if err != nil || ok {
		t.Fatalf("IsGroupMember after removal = %v, %v; want false, nil", ok, err)
	}
}

func TestSQLiteRepository_ExpenseWithShares(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alice := seedUser(t, repo, "alice")
	bob := seedUser(t, repo, "bob")
	group := seedGroup(t, repo, "dinner", alice, alice, bob)

	expenseID, err := repo.CreateExpenseWithShares(ctx, core.Expense{
		GroupID:     group,
		PaidBy:      alice,
		Description: "pizza",
		Amount:      40,
		Date:        core.NewDate(2026, 8, 30),
	}, []core.ExpenseShare{
		{UserID: alice, Amount: 20, IsPaid: true},
		{UserID: bob, Amount: 20},
	})
	if err != nil {
		t.Fatalf("CreateExpenseWithShares failed: %v", err)
	}

	expense, err := repo.GetExpense(ctx, expenseID)
	if err != nil {
		t.Fatalf("GetExpense failed: %v", err)
	}
	if expense.Amount != 40 || expense.Description != "pizza" {
		t.Errorf("unexpected expense: %+v", expense)
	}
	if got := expense.Date.Format("2006-01-02"); got != "2026-08-30" {
		t.Errorf("expense date = %s, want 2026-08-30", got)
	}

	shares, err := repo.ListExpenseShares(ctx, expenseID)
	if err != nil {
		t.Fatalf("ListExpenseShares failed: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(shares))
	}
	if !shares[0].IsPaid || shares[1].IsPaid {
		t.Errorf("share paid flags wrong: %+v", shares)
	}
}

func TestSQLiteRepository_ExpenseRollbackOnBadShare(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alice := seedUser(t, repo, "alice")
	group := seedGroup(t, repo, "dinner", alice, alice)

	// The second share references a user that does not exist, so the foreign
	// key check fails and the whole transaction must roll back.
	_, err := repo.CreateExpenseWithShares(ctx, core.Expense{
		GroupID:     group,
		PaidBy:      alice,
		Description: "pizza",
		Amount:      40,
		Date:        core.NewDate(2026, 8, 30),
	}, []core.ExpenseShare{
		{UserID: alice, Amount: 20},
		{UserID: 999, Amount: 20},
	})
	if err == nil {
		t.Fatal("expected error for share referencing missing user")
	}

	expenses, err := repo.ListGroupExpenses(ctx, group)
	if err != nil {
		t.Fatalf("ListGroupExpenses failed: %v", err)
	}
	if len(expenses) != 0 {
		t.Fatalf("expected no expenses after rollback, got %d", len(expenses))
	}

	paid, err := repo.SumPaidByUser(ctx, group, alice)
	if err != nil {
		t.Fatalf("SumPaidByUser failed: %v", err)
	}
	if paid != 0 {
		t.Errorf("SumPaidByUser after rollback = %v, want 0", paid)
	}
}

func TestSQLiteRepository_BalanceAggregates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alice := seedUser(t, repo, "alice")
	bob := seedUser(t, repo, "bob")
	carol := seedUser(t, repo, "carol")
	group := seedGroup(t, repo, "holiday", alice, alice, bob, carol)

	// Alice pays 60, split 20 each. Bob pays 30, split 10 each.
	mustCreateExpense(t, repo, group, alice, 60, map[int64]float64{alice: 20, bob: 20, carol: 20})
	mustCreateExpense(t, repo, group, bob, 30, map[int64]float64{alice: 10, bob: 10, carol: 10})

	paid, err := repo.SumPaidByUser(ctx, group, alice)
	if err != nil {
		t.Fatalf("SumPaidByUser failed: %v", err)
	}
	if paid != 60 {
		t.Errorf("alice paid = %v, want 60", paid)
	}

	// Alice's own share of the first expense is settled at creation, so only
	// her share of bob's expense counts.
	owed, err := repo.SumOwedByUser(ctx, group, alice)
	if err != nil {
		t.Fatalf("SumOwedByUser failed: %v", err)
	}
	if owed != 10 {
		t.Errorf("alice owed = %v, want 10", owed)
	}

	owesWhom, err := repo.DebtsOwedBy(ctx, group, carol)
	if err != nil {
		t.Fatalf("DebtsOwedBy failed: %v", err)
	}
	if len(owesWhom) != 2 {
		t.Fatalf("carol should owe 2 people, got %d: %+v", len(owesWhom), owesWhom)
	}
	if owesWhom[0].UserID != alice || math.Abs(owesWhom[0].Amount-20) > 1e-9 {
		t.Errorf("carol's debt to alice = %+v, want 20", owesWhom[0])
	}
	if owesWhom[1].UserID != bob || math.Abs(owesWhom[1].Amount-10) > 1e-9 {
		t.Errorf("carol's debt to bob = %+v, want 10", owesWhom[1])
	}

	owedToAlice, err := repo.DebtsOwedTo(ctx, group, alice)
	if err != nil {
		t.Fatalf("DebtsOwedTo failed: %v", err)
	}
	if len(owedToAlice) != 2 {
		t.Fatalf("2 people should owe alice, got %d: %+v", len(owedToAlice), owedToAlice)
	}
	if owedToAlice[0].UserID != bob || owedToAlice[1].UserID != carol {
		t.Errorf("unexpected debtors: %+v", owedToAlice)
	}
}

func TestSQLiteRepository_SettledSharesExcluded(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alice := seedUser(t, repo, "alice")
	bob := seedUser(t, repo, "bob")
	group := seedGroup(t, repo, "dinner", alice, alice, bob)

	expenseID := mustCreateExpense(t, repo, group, alice, 40, map[int64]float64{alice: 20, bob: 20})

	shares, err := repo.ListExpenseShares(ctx, expenseID)
	if err != nil {
		t.Fatalf("ListExpenseShares failed: %v", err)
	}
	for _, sh := range shares {
		if sh.UserID == bob {
			if err := repo.SetSharePaid(ctx, sh.ID, true); err != nil {
				t.Fatalf("SetSharePaid failed: %v", err)
			}
		}
	}

	owed, err := repo.SumOwedByUser(ctx, group, bob)
	if err != nil {
		t.Fatalf("SumOwedByUser failed: %v", err)
	}
	if owed != 0 {
		t.Errorf("bob owed after settling = %v, want 0", owed)
	}

	debts, err := repo.DebtsOwedBy(ctx, group, bob)
	if err != nil {
		t.Fatalf("DebtsOwedBy failed: %v", err)
	}
	if len(debts) != 0 {
		t.Errorf("expected no debts after settling, got %+v", debts)
	}
}

func TestSQLiteRepository_DeleteGroupCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alice := seedUser(t, repo, "alice")
	bob := seedUser(t, repo, "bob")
	group := seedGroup(t, repo, "dinner", alice, alice, bob)
	mustCreateExpense(t, repo, group, alice, 40, map[int64]float64{alice: 20, bob: 20})

	if err := repo.DeleteGroup(ctx, group); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}

	if _, err := repo.GetGroup(ctx, group); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted group, got %v", err)
	}
	owed, err := repo.SumOwedByUser(ctx, group, bob)
	if err != nil {
		t.Fatalf("SumOwedByUser failed: %v", err)
	}
	if owed != 0 {
		t.Errorf("owed after cascade delete = %v, want 0", owed)
	}
}

func TestSQLiteRepository_DeleteReferencedUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alice := seedUser(t, repo, "alice")
	seedGroup(t, repo, "dinner", alice, alice)

	err := repo.DeleteUser(ctx, alice)
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict deleting referenced user, got %v", err)
	}
}

func mustCreateExpense(t *testing.T, repo *SQLiteRepository, groupID, paidBy int64, amount float64, shares map[int64]float64) int64 {
	t.Helper()

	var shareRows []core.ExpenseShare
	for userID, share := range shares {
		shareRows = append(shareRows, core.ExpenseShare{
			UserID: userID,
			Amount: share,
			IsPaid: userID == paidBy,
		})
	}
	id, err := repo.CreateExpenseWithShares(context.Background(), core.Expense{
		GroupID:     groupID,
		PaidBy:      paidBy,
		Description: "shared expense",
		Amount:      amount,
		Date:        core.NewDate(2026, 8, 30),
	}, shareRows)
	if err != nil {
		t.Fatalf("CreateExpenseWithShares failed: %v", err)
	}
	return id
}
