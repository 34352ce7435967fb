package core

type (
	// Balance is one user's net position within one group. A positive Net
	// means the user is a net creditor; negative means net debtor.
	Balance struct {
		Paid float64
		Owed float64
		Net  float64
	}

	// DebtEntry is one directed edge of the who-owes-whom breakdown: the
	// counterparty's identity plus the summed unpaid share amounts between
	// the two users.
	DebtEntry struct {
		UserID   int64
		Username string
		Name     string
		Amount   float64
	}

	// MemberBalance pairs a group member with their balance, used for
	// group-wide snapshots and exports.
	MemberBalance struct {
		User User
		Balance
	}
)

// IsSettled reports whether the balance nets out to zero within tolerance.
func (b Balance) IsSettled() bool {
	return AmountsEqual(b.Net, 0)
}
