package core

import (
	"fmt"
	"strings"
	"time"
)

type (
	Date struct {
		time.Time
	}

	// User is an identity referenced by memberships, expenses and shares.
	User struct {
		ID        int64
		Username  string
		FirstName string
		LastName  string
		Email     string
		CreatedAt time.Time
	}

	// Group is a named collection of users sharing expenses. It owns its
	// memberships and expenses; deleting a group cascades to both.
	Group struct {
		ID          int64
		Name        string
		Description string
		CreatedBy   int64
		CreatedAt   time.Time
	}

	// Membership joins a user to a group. One row per (group, user) pair.
	Membership struct {
		GroupID  int64
		UserID   int64
		JoinedAt time.Time
	}

	// Expense is one spending event paid by a single group member. The sum
	// of its shares equals Amount within ShareTolerance.
	Expense struct {
		ID          int64
		GroupID     int64
		PaidBy      int64
		Description string
		Amount      float64
		Date        Date
		CreatedAt   time.Time
	}

	// ExpenseShare is one member's obligation toward one expense. The
	// payer's own share is persisted with IsPaid set so that the shares of
	// every expense sum to its total; paid shares never count as owed.
	ExpenseShare struct {
		ID        int64
		ExpenseID int64
		UserID    int64
		Amount    float64
		IsPaid    bool
		CreatedAt time.Time
	}
)

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrValidation)
	}
	return nil
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("%w: empty username", ErrValidation)
	}
	if len(u.Username) > 50 {
		return fmt.Errorf("%w: username too long (max 50 characters)", ErrValidation)
	}
	return nil
}

// DisplayName returns "First Last", falling back to the username when the
// name fields are empty.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

func (g Group) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("%w: empty group name", ErrValidation)
	}
	if len(g.Name) > 100 {
		return fmt.Errorf("%w: group name too long (max 100 characters)", ErrValidation)
	}
	return nil
}

func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Description)) == 0 {
		return fmt.Errorf("%w: empty description", ErrValidation)
	}
	if len(e.Description) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrValidation)
	}
	if e.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if e.GroupID <= 0 {
		return fmt.Errorf("%w: missing group", ErrValidation)
	}
	if e.PaidBy <= 0 {
		return fmt.Errorf("%w: missing payer", ErrValidation)
	}
	return e.Date.Validate()
}
