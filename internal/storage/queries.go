package storage

import (
	"context"
	"database/sql"
	"time"

	"splitledger/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so that the same query set
// runs inside and outside transactions.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries bundles the hand-written SQL for the ledger schema.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const dateLayout = "2006-01-02"

const createUser = `
INSERT INTO users (username, first_name, last_name, email, created_at)
VALUES (?, ?, ?, ?, ?)
`

func (q *Queries) CreateUser(ctx context.Context, u core.User) (int64, error) {
	res, err := q.db.ExecContext(ctx, createUser,
		u.Username, u.FirstName, u.LastName, u.Email, u.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getUser = `
SELECT id, username, first_name, last_name, email, created_at
FROM users WHERE id = ?
`

func (q *Queries) GetUser(ctx context.Context, id int64) (core.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUser, id))
}

const getUserByUsername = `
SELECT id, username, first_name, last_name, email, created_at
FROM users WHERE username = ?
`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByUsername, username))
}

const listUsers = `
SELECT id, username, first_name, last_name, email, created_at
FROM users ORDER BY id
`

func (q *Queries) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := q.db.QueryContext(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

const updateUser = `
UPDATE users SET username = ?, first_name = ?, last_name = ?, email = ?
WHERE id = ?
`

func (q *Queries) UpdateUser(ctx context.Context, u core.User) error {
	return mustAffect(q.db.ExecContext(ctx, updateUser,
		u.Username, u.FirstName, u.LastName, u.Email, u.ID))
}

const deleteUser = `DELETE FROM users WHERE id = ?`

func (q *Queries) DeleteUser(ctx context.Context, id int64) error {
	return mustAffect(q.db.ExecContext(ctx, deleteUser, id))
}

const createGroup = `
INSERT INTO expense_groups (name, description, created_by, created_at)
VALUES (?, ?, ?, ?)
`

func (q *Queries) CreateGroup(ctx context.Context, g core.Group) (int64, error) {
	res, err := q.db.ExecContext(ctx, createGroup,
		g.Name, g.Description, g.CreatedBy, g.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getGroup = `
SELECT id, name, description, created_by, created_at
FROM expense_groups WHERE id = ?
`

func (q *Queries) GetGroup(ctx context.Context, id int64) (core.Group, error) {
	return scanGroup(q.db.QueryRowContext(ctx, getGroup, id))
}

const listGroups = `
SELECT id, name, description, created_by, created_at
FROM expense_groups ORDER BY id
`

func (q *Queries) ListGroups(ctx context.Context) ([]core.Group, error) {
	rows, err := q.db.QueryContext(ctx, listGroups)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGroups(rows)
}

const listGroupsByUser = `
SELECT eg.id, eg.name, eg.description, eg.created_by, eg.created_at
FROM expense_groups eg
JOIN group_members gm ON eg.id = gm.group_id
WHERE gm.user_id = ?
ORDER BY eg.id
`

func (q *Queries) ListGroupsByUser(ctx context.Context, userID int64) ([]core.Group, error) {
	rows, err := q.db.QueryContext(ctx, listGroupsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGroups(rows)
}

const updateGroup = `
UPDATE expense_groups SET name = ?, description = ? WHERE id = ?
`

func (q *Queries) UpdateGroup(ctx context.Context, g core.Group) error {
	return mustAffect(q.db.ExecContext(ctx, updateGroup, g.Name, g.Description, g.ID))
}

const deleteGroup = `DELETE FROM expense_groups WHERE id = ?`

func (q *Queries) DeleteGroup(ctx context.Context, id int64) error {
	return mustAffect(q.db.ExecContext(ctx, deleteGroup, id))
}

const addGroupMember = `
INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)
`

func (q *Queries) AddGroupMember(ctx context.Context, groupID, userID int64, joinedAt time.Time) error {
	_, err := q.db.ExecContext(ctx, addGroupMember, groupID, userID, joinedAt.Unix())
	return err
}

const removeGroupMember = `
DELETE FROM group_members WHERE group_id = ? AND user_id = ?
`

func (q *Queries) RemoveGroupMember(ctx context.Context, groupID, userID int64) error {
	return mustAffect(q.db.ExecContext(ctx, removeGroupMember, groupID, userID))
}

const listGroupMembers = `
SELECT u.id, u.username, u.first_name, u.last_name, u.email, u.created_at
FROM users u
JOIN group_members gm ON u.id = gm.user_id
WHERE gm.group_id = ?
ORDER BY u.id
`

func (q *Queries) ListGroupMembers(ctx context.Context, groupID int64) ([]core.User, error) {
	rows, err := q.db.QueryContext(ctx, listGroupMembers, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

const isGroupMember = `
SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_id = ?
`

func (q *Queries) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, isGroupMember, groupID, userID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

const createExpense = `
INSERT INTO expenses (group_id, paid_by, description, amount, expense_date, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateExpense(ctx context.Context, e core.Expense) (int64, error) {
	res, err := q.db.ExecContext(ctx, createExpense,
		e.GroupID, e.PaidBy, e.Description, e.Amount,
		e.Date.Format(dateLayout), e.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getExpense = `
SELECT id, group_id, paid_by, description, amount, expense_date, created_at
FROM expenses WHERE id = ?
`

func (q *Queries) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	return scanExpense(q.db.QueryRowContext(ctx, getExpense, id))
}

const listGroupExpenses = `
SELECT id, group_id, paid_by, description, amount, expense_date, created_at
FROM expenses WHERE group_id = ?
ORDER BY id
`

func (q *Queries) ListGroupExpenses(ctx context.Context, groupID int64) ([]core.Expense, error) {
	rows, err := q.db.QueryContext(ctx, listGroupExpenses, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const deleteExpense = `DELETE FROM expenses WHERE id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, id int64) error {
	return mustAffect(q.db.ExecContext(ctx, deleteExpense, id))
}

const createExpenseShare = `
INSERT INTO expense_shares (expense_id, user_id, amount, is_paid, created_at)
VALUES (?, ?, ?, ?, ?)
`

func (q *Queries) CreateExpenseShare(ctx context.Context, s core.ExpenseShare) (int64, error) {
	res, err := q.db.ExecContext(ctx, createExpenseShare,
		s.ExpenseID, s.UserID, s.Amount, s.IsPaid, s.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const listExpenseShares = `
SELECT id, expense_id, user_id, amount, is_paid, created_at
FROM expense_shares WHERE expense_id = ?
ORDER BY user_id
`

func (q *Queries) ListExpenseShares(ctx context.Context, expenseID int64) ([]core.ExpenseShare, error) {
	rows, err := q.db.QueryContext(ctx, listExpenseShares, expenseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ExpenseShare
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const getExpenseShare = `
SELECT id, expense_id, user_id, amount, is_paid, created_at
FROM expense_shares WHERE id = ?
`

func (q *Queries) GetExpenseShare(ctx context.Context, id int64) (core.ExpenseShare, error) {
	return scanShare(q.db.QueryRowContext(ctx, getExpenseShare, id))
}

const setSharePaid = `
UPDATE expense_shares SET is_paid = ? WHERE id = ?
`

func (q *Queries) SetSharePaid(ctx context.Context, id int64, paid bool) error {
	return mustAffect(q.db.ExecContext(ctx, setSharePaid, paid, id))
}

const sumPaidByUser = `
SELECT COALESCE(SUM(amount), 0)
FROM expenses
WHERE group_id = ? AND paid_by = ?
`

func (q *Queries) SumPaidByUser(ctx context.Context, groupID, userID int64) (float64, error) {
	var total float64
	err := q.db.QueryRowContext(ctx, sumPaidByUser, groupID, userID).Scan(&total)
	return total, err
}

const sumOwedByUser = `
SELECT COALESCE(SUM(es.amount), 0)
FROM expense_shares es
JOIN expenses e ON es.expense_id = e.id
WHERE e.group_id = ? AND es.user_id = ? AND es.is_paid = 0
`

func (q *Queries) SumOwedByUser(ctx context.Context, groupID, userID int64) (float64, error) {
	var total float64
	err := q.db.QueryRowContext(ctx, sumOwedByUser, groupID, userID).Scan(&total)
	return total, err
}

const debtsOwedBy = `
SELECT u.id, u.username, u.first_name, u.last_name, SUM(es.amount)
FROM expense_shares es
JOIN expenses e ON es.expense_id = e.id
JOIN users u ON e.paid_by = u.id
WHERE e.group_id = ? AND es.user_id = ? AND es.is_paid = 0 AND e.paid_by != ?
GROUP BY e.paid_by
ORDER BY u.id
`

// DebtsOwedBy sums the user's unpaid shares grouped by who paid the expense.
func (q *Queries) DebtsOwedBy(ctx context.Context, groupID, userID int64) ([]core.DebtEntry, error) {
	rows, err := q.db.QueryContext(ctx, debtsOwedBy, groupID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDebts(rows)
}

const debtsOwedTo = `
SELECT u.id, u.username, u.first_name, u.last_name, SUM(es.amount)
FROM expense_shares es
JOIN expenses e ON es.expense_id = e.id
JOIN users u ON es.user_id = u.id
WHERE e.group_id = ? AND e.paid_by = ? AND es.is_paid = 0 AND es.user_id != ?
GROUP BY es.user_id
ORDER BY u.id
`

// DebtsOwedTo sums unpaid shares on the user's expenses grouped by who holds them.
func (q *Queries) DebtsOwedTo(ctx context.Context, groupID, userID int64) ([]core.DebtEntry, error) {
	rows, err := q.db.QueryContext(ctx, debtsOwedTo, groupID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDebts(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (core.User, error) {
	var u core.User
	var createdAt int64
	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &createdAt)
	if err != nil {
		return core.User{}, err
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return u, nil
}

func collectUsers(rows *sql.Rows) ([]core.User, error) {
	var out []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanGroup(row rowScanner) (core.Group, error) {
	var g core.Group
	var createdAt int64
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedBy, &createdAt)
	if err != nil {
		return core.Group{}, err
	}
	g.CreatedAt = time.Unix(createdAt, 0).UTC()
	return g, nil
}

func collectGroups(rows *sql.Rows) ([]core.Group, error) {
	var out []core.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var e core.Expense
	var date string
	var createdAt int64
	err := row.Scan(&e.ID, &e.GroupID, &e.PaidBy, &e.Description, &e.Amount, &date, &createdAt)
	if err != nil {
		return core.Expense{}, err
	}
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return core.Expense{}, err
	}
	e.Date = core.Date{Time: t}
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	return e, nil
}

func scanShare(row rowScanner) (core.ExpenseShare, error) {
	var s core.ExpenseShare
	var createdAt int64
	err := row.Scan(&s.ID, &s.ExpenseID, &s.UserID, &s.Amount, &s.IsPaid, &createdAt)
	if err != nil {
		return core.ExpenseShare{}, err
	}
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	return s, nil
}

func collectDebts(rows *sql.Rows) ([]core.DebtEntry, error) {
	var out []core.DebtEntry
	for rows.Next() {
		var d core.DebtEntry
		var first, last string
		if err := rows.Scan(&d.UserID, &d.Username, &first, &last, &d.Amount); err != nil {
			return nil, err
		}
		d.Name = core.User{Username: d.Username, FirstName: first, LastName: last}.DisplayName()
		out = append(out, d)
	}
	return out, rows.Err()
}

// mustAffect converts a zero-row update or delete into sql.ErrNoRows so the
// repository can map it to a not-found failure.
func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
