// Package storage provides the record store behind the ledger: a SQLite
// repository for production and an in-memory implementation for tests.
package storage

import (
	"context"

	"splitledger/internal/core"
)

// Store is the record store contract the service layer depends on. The
// SQLite repository is the production implementation; memory.Store backs
// tests and the memory data backend.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u core.User) (int64, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	GetUserByUsername(ctx context.Context, username string) (core.User, error)
	ListUsers(ctx context.Context) ([]core.User, error)
	UpdateUser(ctx context.Context, u core.User) error
	DeleteUser(ctx context.Context, id int64) error

	// Groups
	CreateGroup(ctx context.Context, g core.Group) (int64, error)
	GetGroup(ctx context.Context, id int64) (core.Group, error)
	ListGroups(ctx context.Context) ([]core.Group, error)
	ListGroupsByUser(ctx context.Context, userID int64) ([]core.Group, error)
	UpdateGroup(ctx context.Context, g core.Group) error
	// DeleteGroup removes the group and, by cascade, its memberships,
	// expenses and expense shares.
	DeleteGroup(ctx context.Context, id int64) error

	// Memberships
	AddGroupMember(ctx context.Context, groupID, userID int64) error
	RemoveGroupMember(ctx context.Context, groupID, userID int64) error
	ListGroupMembers(ctx context.Context, groupID int64) ([]core.User, error)
	IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error)

	// Expenses and shares. CreateExpenseWithShares persists the expense and
	// every share in one transaction; on any failure nothing is written.
	CreateExpenseWithShares(ctx context.Context, e core.Expense, shares []core.ExpenseShare) (int64, error)
	GetExpense(ctx context.Context, id int64) (core.Expense, error)
	ListGroupExpenses(ctx context.Context, groupID int64) ([]core.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error
	ListExpenseShares(ctx context.Context, expenseID int64) ([]core.ExpenseShare, error)
	GetExpenseShare(ctx context.Context, id int64) (core.ExpenseShare, error)
	SetSharePaid(ctx context.Context, shareID int64, paid bool) error

	// Balance aggregates. Missing rows aggregate to zero, never an error.
	SumPaidByUser(ctx context.Context, groupID, userID int64) (float64, error)
	SumOwedByUser(ctx context.Context, groupID, userID int64) (float64, error)
	DebtsOwedBy(ctx context.Context, groupID, userID int64) ([]core.DebtEntry, error)
	DebtsOwedTo(ctx context.Context, groupID, userID int64) ([]core.DebtEntry, error)

	Close() error
}
