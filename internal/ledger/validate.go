package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PostableAccount carries the facts the validator needs about an account.
type PostableAccount struct {
	ID       int64
	IsActive bool
	IsHeader bool
}

// ValidateLines checks structure and balance of a candidate line set.
// Rules run in order: line count, per-line amount, then exact balance.
func ValidateLines(lines []Line) error {
	if len(lines) < 2 {
		return ErrTooFewLines
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for _, line := range lines {
		if line.Amount.Sign() <= 0 {
			return fmt.Errorf("%w: line %d computed %s", ErrNonPositiveAmount, line.Order, line.Amount)
		}
		switch line.Side {
		case SideDebit:
			debit = debit.Add(line.Amount)
		case SideCredit:
			credit = credit.Add(line.Amount)
		default:
			return fmt.Errorf("%w: line %d side %q", ErrInvalidSide, line.Order, line.Side)
		}
	}
	// Exact decimal equality: the ledger currency has no sub-unit rounding.
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s, credit %s", ErrUnbalanced, debit, credit)
	}
	return nil
}

// ValidateAccounts checks every referenced account is known, active, and a leaf.
func ValidateAccounts(lines []Line, accounts map[string]PostableAccount) error {
	for _, line := range lines {
		account, ok := accounts[line.AccountCode]
		if !ok {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, line.AccountCode)
		}
		if account.IsHeader {
			return fmt.Errorf("%w: %s", ErrHeaderAccount, line.AccountCode)
		}
		if !account.IsActive {
			return fmt.Errorf("%w: %s", ErrInactiveAccount, line.AccountCode)
		}
	}
	return nil
}
