package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"splitledger/internal/core"
	"splitledger/internal/storage/memory"
)

type recordedEvent struct {
	event     string
	expenseID int64
	groupID   int64
}

// eventRecorder captures published events without a broker.
type eventRecorder struct {
	events []recordedEvent
	fail   bool
}

func (r *eventRecorder) PublishExpenseCreated(_ context.Context, expenseID, groupID int64) error {
	if r.fail {
		return errors.New("broker unavailable")
	}
	r.events = append(r.events, recordedEvent{"expense.created", expenseID, groupID})
	return nil
}

func (r *eventRecorder) PublishExpenseDeleted(_ context.Context, expenseID, groupID int64) error {
	if r.fail {
		return errors.New("broker unavailable")
	}
	r.events = append(r.events, recordedEvent{"expense.deleted", expenseID, groupID})
	return nil
}

func (r *eventRecorder) Close() error { return nil }

type fixture struct {
	ledger   *LedgerService
	balances *BalanceService
	events   *eventRecorder
	alice    core.User
	bob      core.User
	carol    core.User
	group    core.Group
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	events := &eventRecorder{}
	balances := NewBalanceService(store)
	ledger := NewLedgerService(store, events, balances)

	f := &fixture{ledger: ledger, balances: balances, events: events}

	var err error
	if f.alice, err = ledger.CreateUser(ctx, core.User{Username: "alice", FirstName: "Alice"}); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if f.bob, err = ledger.CreateUser(ctx, core.User{Username: "bob", FirstName: "Bob"}); err != nil {
		t.Fatalf("create bob: %v", err)
	}
	if f.carol, err = ledger.CreateUser(ctx, core.User{Username: "carol", FirstName: "Carol"}); err != nil {
		t.Fatalf("create carol: %v", err)
	}
	if f.group, err = ledger.CreateGroup(ctx, core.Group{Name: "holiday", CreatedBy: f.alice.ID}); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := ledger.AddGroupMember(ctx, f.group.ID, f.bob.ID); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	if err := ledger.AddGroupMember(ctx, f.group.ID, f.carol.ID); err != nil {
		t.Fatalf("add carol: %v", err)
	}
	return f
}

func TestLedgerService_CreateGroupEnrollsCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	members, err := f.ledger.ListGroupMembers(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("ListGroupMembers failed: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members))
	}
	if members[0].ID != f.alice.ID {
		t.Errorf("creator should be first member, got %+v", members[0])
	}
}

func TestLedgerService_AddExpenseEvenSplit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Dinner for 40, split evenly across all three members.
	result, err := f.ledger.AddExpense(ctx, AddExpenseInput{
		GroupID:       f.group.ID,
		PaidBy:        f.alice.ID,
		Description:   "dinner",
		Amount:        40,
		Date:          core.NewDate(2026, 8, 30),
		SplitAmongAll: true,
	})
	if err != nil {
		t.Fatalf("AddExpense failed: %v", err)
	}
	if len(result.Shares) != 3 {
		t.Fatalf("expected 3 shares, got %d", len(result.Shares))
	}
	var sum float64
	for _, sh := range result.Shares {
		sum += sh.Amount
		if want := 40.0 / 3.0; math.Abs(sh.Amount-want) > core.ShareTolerance {
			t.Errorf("share for user %d = %v, want %v", sh.UserID, sh.Amount, want)
		}
		if wantPaid := sh.UserID == f.alice.ID; sh.IsPaid != wantPaid {
			t.Errorf("share for user %d paid = %v, want %v", sh.UserID, sh.IsPaid, wantPaid)
		}
	}
	if math.Abs(sum-40) > core.ShareTolerance {
		t.Errorf("shares sum to %v, want 40", sum)
	}

	if len(f.events.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(f.events.events))
	}
	ev := f.events.events[0]
	if ev.event != "expense.created" || ev.expenseID != result.Expense.ID || ev.groupID != f.group.ID {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestLedgerService_AddExpensePercentageSplit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.ledger.AddExpense(ctx, AddExpenseInput{
		GroupID:     f.group.ID,
		PaidBy:      f.alice.ID,
		Description: "groceries",
		Amount:      50,
		Date:        core.NewDate(2026, 8, 30),
		Weights:     map[int64]float64{f.alice.ID: 60, f.bob.ID: 40},
	})
	if err != nil {
		t.Fatalf("AddExpense failed: %v", err)
	}
	got := sharesByUser(result.Shares)
	if math.Abs(got[f.alice.ID]-30) > core.ShareTolerance {
		t.Errorf("alice share = %v, want 30", got[f.alice.ID])
	}
	if math.Abs(got[f.bob.ID]-20) > core.ShareTolerance {
		t.Errorf("bob share = %v, want 20", got[f.bob.ID])
	}
}

func TestLedgerService_AddExpenseAbsoluteImbalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.AddExpense(ctx, AddExpenseInput{
		GroupID:     f.group.ID,
		PaidBy:      f.alice.ID,
		Description: "taxi",
		Amount:      30,
		Date:        core.NewDate(2026, 8, 30),
		Weights:     map[int64]float64{f.alice.ID: 15, f.bob.ID: 10},
	})
	if !errors.Is(err, core.ErrImbalancedShares) {
		t.Fatalf("expected ErrImbalancedShares, got %v", err)
	}
	if len(f.events.events) != 0 {
		t.Errorf("no event should be published for a rejected expense")
	}
}

func TestLedgerService_AddExpenseEmptyShareMapping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Neither explicit weights nor the split-among-all flag.
	_, err := f.ledger.AddExpense(ctx, AddExpenseInput{
		GroupID:     f.group.ID,
		PaidBy:      f.alice.ID,
		Description: "dinner",
		Amount:      40,
		Date:        core.NewDate(2026, 8, 30),
	})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty share mapping, got %v", err)
	}

	expenses, err := f.ledger.ListGroupExpenses(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("ListGroupExpenses failed: %v", err)
	}
	if len(expenses) != 0 {
		t.Errorf("rejected expense must not be persisted, got %+v", expenses)
	}
	if len(f.events.events) != 0 {
		t.Errorf("no event should be published for a rejected expense")
	}
}

func TestLedgerService_AddExpenseWeightsConflictWithSplitAmongAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.AddExpense(ctx, AddExpenseInput{
		GroupID:       f.group.ID,
		PaidBy:        f.alice.ID,
		Description:   "dinner",
		Amount:        40,
		Date:          core.NewDate(2026, 8, 30),
		Weights:       map[int64]float64{f.alice.ID: 20, f.bob.ID: 20},
		SplitAmongAll: true,
	})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected ErrValidation for conflicting split inputs, got %v", err)
	}
}

func TestLedgerService_AddExpenseNonMemberPayer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outsider, err := f.ledger.CreateUser(ctx, core.User{Username: "dave"})
	if err != nil {
		t.Fatalf("create outsider: %v", err)
	}

	_, err = f.ledger.AddExpense(ctx, AddExpenseInput{
		GroupID:       f.group.ID,
		PaidBy:        outsider.ID,
		Description:   "dinner",
		Amount:        40,
		Date:          core.NewDate(2026, 8, 30),
		SplitAmongAll: true,
	})
	if !errors.Is(err, core.ErrNotAGroupMember) {
		t.Fatalf("expected ErrNotAGroupMember for payer, got %v", err)
	}
}

func TestLedgerService_AddExpenseNonMemberParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outsider, err := f.ledger.CreateUser(ctx, core.User{Username: "dave"})
	if err != nil {
		t.Fatalf("create outsider: %v", err)
	}

	_, err = f.ledger.AddExpense(ctx, AddExpenseInput{
		GroupID:     f.group.ID,
		PaidBy:      f.alice.ID,
		Description: "dinner",
		Amount:      40,
		Date:        core.NewDate(2026, 8, 30),
		Weights:     map[int64]float64{f.alice.ID: 20, outsider.ID: 20},
	})
	if !errors.Is(err, core.ErrNotAGroupMember) {
		t.Fatalf("expected ErrNotAGroupMember for participant, got %v", err)
	}
}

func TestLedgerService_AddExpenseBrokerDownStillSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.events.fail = true

	result, err := f.ledger.AddExpense(ctx, AddExpenseInput{
		GroupID:       f.group.ID,
		PaidBy:        f.alice.ID,
		Description:   "dinner",
		Amount:        40,
		Date:          core.NewDate(2026, 8, 30),
		SplitAmongAll: true,
	})
	if err != nil {
		t.Fatalf("AddExpense should succeed when publish fails: %v", err)
	}
	if result.Expense.ID == 0 {
		t.Error("expense should be persisted")
	}
}

func TestLedgerService_DeleteExpensePublishesEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.ledger.AddExpense(ctx, AddExpenseInput{
		GroupID:       f.group.ID,
		PaidBy:        f.alice.ID,
		Description:   "dinner",
		Amount:        40,
		Date:          core.NewDate(2026, 8, 30),
		SplitAmongAll: true,
	})
	if err != nil {
		t.Fatalf("AddExpense failed: %v", err)
	}

	if err := f.ledger.DeleteExpense(ctx, result.Expense.ID); err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}
	if _, err := f.ledger.GetExpense(ctx, result.Expense.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	last := f.events.events[len(f.events.events)-1]
	if last.event != "expense.deleted" || last.expenseID != result.Expense.ID {
		t.Errorf("unexpected last event: %+v", last)
	}
}

func TestLedgerService_SettleShare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.ledger.AddExpense(ctx, AddExpenseInput{
		GroupID:       f.group.ID,
		PaidBy:        f.alice.ID,
		Description:   "dinner",
		Amount:        30,
		Date:          core.NewDate(2026, 8, 30),
		SplitAmongAll: true,
	})
	if err != nil {
		t.Fatalf("AddExpense failed: %v", err)
	}

	var bobShare core.ExpenseShare
	for _, sh := range result.Shares {
		if sh.UserID == f.bob.ID {
			bobShare = sh
		}
	}

	settled, err := f.ledger.SettleShare(ctx, bobShare.ID, true)
	if err != nil {
		t.Fatalf("SettleShare failed: %v", err)
	}
	if !settled.IsPaid {
		t.Error("share should be marked paid")
	}

	owed, err := f.balances.UserBalance(ctx, f.group.ID, f.bob.ID)
	if err != nil {
		t.Fatalf("UserBalance failed: %v", err)
	}
	if owed.Owed != 0 {
		t.Errorf("bob owed after settling = %v, want 0", owed.Owed)
	}
}

func TestLedgerService_DuplicateMember(t *testing.T) {
	f := newFixture(t)

	err := f.ledger.AddGroupMember(context.Background(), f.group.ID, f.bob.ID)
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func sharesByUser(shares []core.ExpenseShare) map[int64]float64 {
	out := make(map[int64]float64, len(shares))
	for _, sh := range shares {
		out[sh.UserID] = sh.Amount
	}
	return out
}
