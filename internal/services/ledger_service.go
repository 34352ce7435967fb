package services

import (
	"context"
	"fmt"
	"log/slog"

	"splitledger/internal/core"
	applog "splitledger/internal/log"
	"splitledger/internal/storage"
)

// EventPublisher emits expense lifecycle events. Satisfied by amqp.Client.
type EventPublisher interface {
	PublishExpenseCreated(ctx context.Context, expenseID, groupID int64) error
	PublishExpenseDeleted(ctx context.Context, expenseID, groupID int64) error
	Close() error
}

// LedgerService orchestrates users, groups and expense recording on top of
// the store. Expense writes go through the share allocator and land in a
// single transaction, event publishing is best effort and never fails the
// request.
type LedgerService struct {
	store    storage.Store
	events   EventPublisher
	balances *BalanceService
	logger   *applog.StructuredLogger
}

func NewLedgerService(store storage.Store, events EventPublisher, balances *BalanceService) *LedgerService {
	return &LedgerService{
		store:    store,
		events:   events,
		balances: balances,
		logger: applog.NewStructuredLogger(applog.New(applog.Config{
			Component: applog.ComponentLedger,
			Handler:   slog.Default().Handler(),
		})),
	}
}

func (s *LedgerService) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	id, err := s.store.CreateUser(ctx, u)
	if err != nil {
		return core.User{}, err
	}
	return s.store.GetUser(ctx, id)
}

func (s *LedgerService) GetUser(ctx context.Context, id int64) (core.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *LedgerService) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	return s.store.GetUserByUsername(ctx, username)
}

func (s *LedgerService) ListUsers(ctx context.Context) ([]core.User, error) {
	return s.store.ListUsers(ctx)
}

func (s *LedgerService) UpdateUser(ctx context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return core.User{}, err
	}
	return s.store.GetUser(ctx, u.ID)
}

func (s *LedgerService) DeleteUser(ctx context.Context, id int64) error {
	return s.store.DeleteUser(ctx, id)
}

// CreateGroup creates the group and enrolls the creator as its first member.
func (s *LedgerService) CreateGroup(ctx context.Context, g core.Group) (core.Group, error) {
	if err := g.Validate(); err != nil {
		return core.Group{}, err
	}
	if _, err := s.store.GetUser(ctx, g.CreatedBy); err != nil {
		return core.Group{}, err
	}
	id, err := s.store.CreateGroup(ctx, g)
	if err != nil {
		return core.Group{}, err
	}
	if err := s.store.AddGroupMember(ctx, id, g.CreatedBy); err != nil {
		return core.Group{}, fmt.Errorf("enroll creator: %w", err)
	}
	return s.store.GetGroup(ctx, id)
}

func (s *LedgerService) GetGroup(ctx context.Context, id int64) (core.Group, error) {
	return s.store.GetGroup(ctx, id)
}

func (s *LedgerService) ListGroups(ctx context.Context) ([]core.Group, error) {
	return s.store.ListGroups(ctx)
}

func (s *LedgerService) ListGroupsByUser(ctx context.Context, userID int64) ([]core.Group, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListGroupsByUser(ctx, userID)
}

func (s *LedgerService) UpdateGroup(ctx context.Context, g core.Group) (core.Group, error) {
	if err := g.Validate(); err != nil {
		return core.Group{}, err
	}
	if err := s.store.UpdateGroup(ctx, g); err != nil {
		return core.Group{}, err
	}
	return s.store.GetGroup(ctx, g.ID)
}

func (s *LedgerService) DeleteGroup(ctx context.Context, id int64) error {
	if err := s.store.DeleteGroup(ctx, id); err != nil {
		return err
	}
	s.invalidateBalances(id)
	return nil
}

func (s *LedgerService) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return err
	}
	return s.store.AddGroupMember(ctx, groupID, userID)
}

func (s *LedgerService) RemoveGroupMember(ctx context.Context, groupID, userID int64) error {
	return s.store.RemoveGroupMember(ctx, groupID, userID)
}

func (s *LedgerService) ListGroupMembers(ctx context.Context, groupID int64) ([]core.User, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.ListGroupMembers(ctx, groupID)
}

type (
	// AddExpenseInput carries everything needed to record one expense.
	// Weights selects the split mode: all zero means an even split, summing
	// to 100 means percentages, anything else must sum to the total amount.
	// SplitAmongAll splits evenly across all current group members instead;
	// exactly one of Weights and SplitAmongAll must be provided.
	AddExpenseInput struct {
		GroupID       int64
		PaidBy        int64
		Description   string
		Amount        float64
		Date          core.Date
		Weights       map[int64]float64
		SplitAmongAll bool
	}

	// ExpenseResult is the recorded expense together with its shares.
	ExpenseResult struct {
		Expense core.Expense
		Shares  []core.ExpenseShare
	}
)

// AddExpense validates the request, allocates shares and persists the
// expense atomically. The payer and every participant must belong to the
// group.
func (s *LedgerService) AddExpense(ctx context.Context, in AddExpenseInput) (ExpenseResult, error) {
	expense := core.Expense{
		GroupID:     in.GroupID,
		PaidBy:      in.PaidBy,
		Description: in.Description,
		Amount:      in.Amount,
		Date:        in.Date,
	}
	if err := expense.Validate(); err != nil {
		return ExpenseResult{}, err
	}
	if _, err := s.store.GetGroup(ctx, in.GroupID); err != nil {
		return ExpenseResult{}, err
	}
	if err := s.requireMember(ctx, in.GroupID, in.PaidBy); err != nil {
		return ExpenseResult{}, fmt.Errorf("payer: %w", err)
	}

	weights := in.Weights
	switch {
	case in.SplitAmongAll:
		if len(weights) > 0 {
			return ExpenseResult{}, fmt.Errorf("%w: weights and split-among-all are mutually exclusive", core.ErrValidation)
		}
		members, err := s.store.ListGroupMembers(ctx, in.GroupID)
		if err != nil {
			return ExpenseResult{}, err
		}
		weights = make(map[int64]float64, len(members))
		for _, m := range members {
			weights[m.ID] = 0
		}
	case len(weights) == 0:
		return ExpenseResult{}, fmt.Errorf("%w: empty share mapping", core.ErrValidation)
	default:
		for userID := range weights {
			if err := s.requireMember(ctx, in.GroupID, userID); err != nil {
				return ExpenseResult{}, fmt.Errorf("participant %d: %w", userID, err)
			}
		}
	}

	allocated, err := core.AllocateShares(in.Amount, weights)
	if err != nil {
		return ExpenseResult{}, err
	}

	// The payer's own share starts out paid so the share rows always sum to
	// the expense amount without the payer owing themselves.
	shares := make([]core.ExpenseShare, 0, len(allocated))
	for userID, amount := range allocated {
		shares = append(shares, core.ExpenseShare{
			UserID: userID,
			Amount: amount,
			IsPaid: userID == in.PaidBy,
		})
	}

	expenseID, err := s.store.CreateExpenseWithShares(ctx, expense, shares)
	if err != nil {
		return ExpenseResult{}, err
	}

	s.invalidateBalances(in.GroupID)
	s.logger.LogExpenseCreated(ctx, expenseID, in.GroupID, expense.Description, expense.Amount)

	if s.events != nil {
		if err := s.events.PublishExpenseCreated(ctx, expenseID, in.GroupID); err != nil {
			slog.WarnContext(ctx, "Failed to publish expense created event",
				"expense_id", expenseID, "error", err)
		}
	}

	return s.expenseResult(ctx, expenseID)
}

func (s *LedgerService) GetExpense(ctx context.Context, id int64) (ExpenseResult, error) {
	return s.expenseResult(ctx, id)
}

func (s *LedgerService) ListGroupExpenses(ctx context.Context, groupID int64) ([]core.Expense, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.ListGroupExpenses(ctx, groupID)
}

func (s *LedgerService) DeleteExpense(ctx context.Context, id int64) error {
	expense, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return err
	}

	s.invalidateBalances(expense.GroupID)

	if s.events != nil {
		if err := s.events.PublishExpenseDeleted(ctx, id, expense.GroupID); err != nil {
			slog.WarnContext(ctx, "Failed to publish expense deleted event",
				"expense_id", id, "error", err)
		}
	}
	return nil
}

// SettleShare flips a share's paid flag, removing or restoring it in every
// balance and debt view.
func (s *LedgerService) SettleShare(ctx context.Context, shareID int64, paid bool) (core.ExpenseShare, error) {
	share, err := s.store.GetExpenseShare(ctx, shareID)
	if err != nil {
		return core.ExpenseShare{}, err
	}
	if err := s.store.SetSharePaid(ctx, shareID, paid); err != nil {
		return core.ExpenseShare{}, err
	}

	expense, err := s.store.GetExpense(ctx, share.ExpenseID)
	if err == nil {
		s.invalidateBalances(expense.GroupID)
	}

	share.IsPaid = paid
	return share, nil
}

func (s *LedgerService) requireMember(ctx context.Context, groupID, userID int64) error {
	ok, err := s.store.IsGroupMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %d in group %d", core.ErrNotAGroupMember, userID, groupID)
	}
	return nil
}

func (s *LedgerService) expenseResult(ctx context.Context, expenseID int64) (ExpenseResult, error) {
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return ExpenseResult{}, err
	}
	shares, err := s.store.ListExpenseShares(ctx, expenseID)
	if err != nil {
		return ExpenseResult{}, err
	}
	return ExpenseResult{Expense: expense, Shares: shares}, nil
}

func (s *LedgerService) invalidateBalances(groupID int64) {
	if s.balances != nil {
		s.balances.Invalidate(groupID)
	}
}

// Close releases the store and the event publisher.
func (s *LedgerService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if s.balances != nil {
		s.balances.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}
