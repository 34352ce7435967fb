package core

import "errors"

// Sentinel errors for cross-layer signaling. Callers match with errors.Is;
// wrapping sites attach the violated invariant with fmt.Errorf("%w: ...").
var (
	// ErrValidation marks malformed or missing input, rejected before any
	// persistence attempt.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a lookup for a row that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a uniqueness violation (duplicate username,
	// duplicate group membership).
	ErrConflict = errors.New("already exists")

	// ErrNotAGroupMember marks a payer or share holder that is not a
	// current member of the target group.
	ErrNotAGroupMember = errors.New("not a group member")

	// ErrImbalancedShares marks absolute share amounts that do not sum to
	// the expense total within tolerance.
	ErrImbalancedShares = errors.New("imbalanced shares")

	// ErrInvalidShare marks a negative computed or supplied share amount.
	ErrInvalidShare = errors.New("invalid share")

	// ErrPersistence marks a record store failure during a write. The
	// enclosing transaction has been rolled back; nothing was persisted.
	ErrPersistence = errors.New("persistence failure")
)
