package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"splitledger/internal/core"
)

// SQLiteRepository implements Store on a local SQLite database.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// NewSQLiteRepository opens (creating if needed) the database at path and
// applies pending migrations.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(path); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db)}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (int64, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	id, err := r.queries.CreateUser(ctx, u)
	if err != nil {
		return 0, mapErr(err, "create user")
	}
	return id, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := r.queries.GetUser(ctx, id)
	if err != nil {
		return core.User{}, mapErr(err, "get user")
	}
	return u, nil
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	u, err := r.queries.GetUserByUsername(ctx, username)
	if err != nil {
		return core.User{}, mapErr(err, "get user by username")
	}
	return u, nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	users, err := r.queries.ListUsers(ctx)
	if err != nil {
		return nil, mapErr(err, "list users")
	}
	return users, nil
}

func (r *SQLiteRepository) UpdateUser(ctx context.Context, u core.User) error {
	if err := r.queries.UpdateUser(ctx, u); err != nil {
		return mapErr(err, "update user")
	}
	return nil
}

func (r *SQLiteRepository) DeleteUser(ctx context.Context, id int64) error {
	if err := r.queries.DeleteUser(ctx, id); err != nil {
		return mapErr(err, "delete user")
	}
	return nil
}

func (r *SQLiteRepository) CreateGroup(ctx context.Context, g core.Group) (int64, error) {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	id, err := r.queries.CreateGroup(ctx, g)
	if err != nil {
		return 0, mapErr(err, "create group")
	}
	return id, nil
}

func (r *SQLiteRepository) GetGroup(ctx context.Context, id int64) (core.Group, error) {
	g, err := r.queries.GetGroup(ctx, id)
	if err != nil {
		return core.Group{}, mapErr(err, "get group")
	}
	return g, nil
}

func (r *SQLiteRepository) ListGroups(ctx context.Context) ([]core.Group, error) {
	groups, err := r.queries.ListGroups(ctx)
	if err != nil {
		return nil, mapErr(err, "list groups")
	}
	return groups, nil
}

func (r *SQLiteRepository) ListGroupsByUser(ctx context.Context, userID int64) ([]core.Group, error) {
	groups, err := r.queries.ListGroupsByUser(ctx, userID)
	if err != nil {
		return nil, mapErr(err, "list groups by user")
	}
	return groups, nil
}

func (r *SQLiteRepository) UpdateGroup(ctx context.Context, g core.Group) error {
	if err := r.queries.UpdateGroup(ctx, g); err != nil {
		return mapErr(err, "update group")
	}
	return nil
}

func (r *SQLiteRepository) DeleteGroup(ctx context.Context, id int64) error {
	if err := r.queries.DeleteGroup(ctx, id); err != nil {
		return mapErr(err, "delete group")
	}
	return nil
}

func (r *SQLiteRepository) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	if err := r.queries.AddGroupMember(ctx, groupID, userID, time.Now().UTC()); err != nil {
		return mapErr(err, "add group member")
	}
	return nil
}

func (r *SQLiteRepository) RemoveGroupMember(ctx context.Context, groupID, userID int64) error {
	if err := r.queries.RemoveGroupMember(ctx, groupID, userID); err != nil {
		return mapErr(err, "remove group member")
	}
	return nil
}

func (r *SQLiteRepository) ListGroupMembers(ctx context.Context, groupID int64) ([]core.User, error) {
	users, err := r.queries.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, mapErr(err, "list group members")
	}
	return users, nil
}

func (r *SQLiteRepository) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	ok, err := r.queries.IsGroupMember(ctx, groupID, userID)
	if err != nil {
		return false, mapErr(err, "check group member")
	}
	return ok, nil
}

// CreateExpenseWithShares writes the expense row and all of its shares in a
// single transaction. Either everything lands or nothing does.
func (r *SQLiteRepository) CreateExpenseWithShares(ctx context.Context, e core.Expense, shares []core.ExpenseShare) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, mapErr(err, "begin transaction")
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	expenseID, err := qtx.CreateExpense(ctx, e)
	if err != nil {
		return 0, mapErr(err, "create expense")
	}

	for _, s := range shares {
		s.ExpenseID = expenseID
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if _, err := qtx.CreateExpenseShare(ctx, s); err != nil {
			return 0, mapErr(err, "create expense share")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, mapErr(err, "commit expense")
	}
	return expenseID, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	e, err := r.queries.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, mapErr(err, "get expense")
	}
	return e, nil
}

func (r *SQLiteRepository) ListGroupExpenses(ctx context.Context, groupID int64) ([]core.Expense, error) {
	expenses, err := r.queries.ListGroupExpenses(ctx, groupID)
	if err != nil {
		return nil, mapErr(err, "list group expenses")
	}
	return expenses, nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	if err := r.queries.DeleteExpense(ctx, id); err != nil {
		return mapErr(err, "delete expense")
	}
	return nil
}

func (r *SQLiteRepository) ListExpenseShares(ctx context.Context, expenseID int64) ([]core.ExpenseShare, error) {
	shares, err := r.queries.ListExpenseShares(ctx, expenseID)
	if err != nil {
		return nil, mapErr(err, "list expense shares")
	}
	return shares, nil
}

func (r *SQLiteRepository) GetExpenseShare(ctx context.Context, id int64) (core.ExpenseShare, error) {
	s, err := r.queries.GetExpenseShare(ctx, id)
	if err != nil {
		return core.ExpenseShare{}, mapErr(err, "get expense share")
	}
	return s, nil
}

func (r *SQLiteRepository) SetSharePaid(ctx context.Context, id int64, paid bool) error {
	if err := r.queries.SetSharePaid(ctx, id, paid); err != nil {
		return mapErr(err, "set share paid")
	}
	return nil
}

func (r *SQLiteRepository) SumPaidByUser(ctx context.Context, groupID, userID int64) (float64, error) {
	total, err := r.queries.SumPaidByUser(ctx, groupID, userID)
	if err != nil {
		return 0, mapErr(err, "sum paid by user")
	}
	return total, nil
}

func (r *SQLiteRepository) SumOwedByUser(ctx context.Context, groupID, userID int64) (float64, error) {
	total, err := r.queries.SumOwedByUser(ctx, groupID, userID)
	if err != nil {
		return 0, mapErr(err, "sum owed by user")
	}
	return total, nil
}

func (r *SQLiteRepository) DebtsOwedBy(ctx context.Context, groupID, userID int64) ([]core.DebtEntry, error) {
	debts, err := r.queries.DebtsOwedBy(ctx, groupID, userID)
	if err != nil {
		return nil, mapErr(err, "debts owed by user")
	}
	return debts, nil
}

func (r *SQLiteRepository) DebtsOwedTo(ctx context.Context, groupID, userID int64) ([]core.DebtEntry, error) {
	debts, err := r.queries.DebtsOwedTo(ctx, groupID, userID)
	if err != nil {
		return nil, mapErr(err, "debts owed to user")
	}
	return debts, nil
}

// mapErr translates driver-level failures into the core error taxonomy.
func mapErr(err error, op string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %s", core.ErrNotFound, op)
	case strings.Contains(err.Error(), "UNIQUE constraint"):
		return fmt.Errorf("%w: %s", core.ErrConflict, op)
	case strings.Contains(err.Error(), "FOREIGN KEY constraint"):
		return fmt.Errorf("%w: %s", core.ErrConflict, op)
	default:
		return fmt.Errorf("%w: %s: %v", core.ErrPersistence, op, err)
	}
}
