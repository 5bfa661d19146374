// Package ledger owns the chart of accounts, the double-entry validator,
// and the append-only journal store balances are derived from.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Side enumerates the two sides of a journal line.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// NormalSide returns the side on which accounts of this type grow.
func (t AccountType) NormalSide() Side {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// Account models a chart of accounts node. Codes are dot-delimited and
// hierarchical; an account with children is a header and cannot receive lines.
type Account struct {
	ID        int64       `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	ParentID  *int64      `json:"parentId,omitempty"`
	IsActive  bool        `json:"isActive"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Line is a candidate journal line before posting. AccountID is filled
// during account validation, once the code resolves against the CoA.
type Line struct {
	AccountID   int64           `json:"accountId"`
	AccountCode string          `json:"accountCode"`
	Side        Side            `json:"side"`
	Amount      decimal.Decimal `json:"amount"`
	Order       int             `json:"order"`
}

// Entry is an immutable posted journal row.
type Entry struct {
	ID            int64
	TransactionID uuid.UUID
	AccountID     int64
	AccountCode   string
	Side          Side
	Amount        decimal.Decimal
	LineOrder     int
	CreatedAt     time.Time
}

// AccountBalance pairs an account with its derived balance.
type AccountBalance struct {
	Account Account         `json:"account"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Balance decimal.Decimal `json:"balance"`
}

var (
	// ErrTooFewLines indicates less than two candidate lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrNonPositiveAmount indicates a zero or negative computed line amount.
	ErrNonPositiveAmount = errors.New("ledger: line amount must be positive")
	// ErrUnbalanced indicates debit total != credit total.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrInvalidSide indicates a side outside DEBIT/CREDIT.
	ErrInvalidSide = errors.New("ledger: invalid line side")
	// ErrAccountNotFound indicates a referenced code missing from the CoA.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrHeaderAccount indicates a header account referenced by a line.
	ErrHeaderAccount = errors.New("ledger: header account cannot receive journal lines")
	// ErrInactiveAccount indicates a deactivated account referenced by a line.
	ErrInactiveAccount = errors.New("ledger: account is inactive")
	// ErrTypeLocked indicates a type change on an account that has children.
	ErrTypeLocked = errors.New("ledger: account type immutable once children exist")
	// ErrDuplicateCode indicates the account code is taken.
	ErrDuplicateCode = errors.New("ledger: account code already exists")
)
