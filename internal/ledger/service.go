package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListAccounts(ctx context.Context) ([]Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	PostableAccounts(ctx context.Context, codes []string) (map[string]PostableAccount, error)
	BalanceAsOf(ctx context.Context, code string, asOf time.Time) (AccountBalance, error)
	TrialBalance(ctx context.Context, asOf time.Time) ([]AccountBalance, error)
}

// Service maintains the chart of accounts and serves derived balances.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateAccountInput groups fields for a new CoA node.
type CreateAccountInput struct {
	Code       string
	Name       string
	Type       AccountType
	ParentCode string
}

// CreateAccount inserts a CoA node. When a parent is given the type is
// inherited from it, which transitively pins every node to its root ancestor.
func (s *Service) CreateAccount(ctx context.Context, input CreateAccountInput) (Account, error) {
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return Account{}, errors.New("ledger: account code required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return Account{}, errors.New("ledger: account name required")
	}
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account := Account{
			Code:     code,
			Name:     strings.TrimSpace(input.Name),
			Type:     input.Type,
			IsActive: true,
		}
		if input.ParentCode != "" {
			parent, err := tx.GetAccountByCode(ctx, input.ParentCode)
			if err != nil {
				return err
			}
			account.ParentID = &parent.ID
			account.Type = parent.Type
		}
		if !validAccountType(account.Type) {
			return fmt.Errorf("ledger: unknown account type %q", input.Type)
		}
		inserted, err := tx.InsertAccount(ctx, account)
		if err != nil {
			return err
		}
		created = inserted
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return created, nil
}

// ChangeAccountType retypes a leaf account. Refused once children exist,
// since descendants inherit the type from their root ancestor.
func (s *Service) ChangeAccountType(ctx context.Context, code string, newType AccountType) error {
	if !validAccountType(newType) {
		return fmt.Errorf("ledger: unknown account type %q", newType)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountByCode(ctx, code)
		if err != nil {
			return err
		}
		hasChildren, err := tx.HasChildren(ctx, account.ID)
		if err != nil {
			return err
		}
		if hasChildren {
			return ErrTypeLocked
		}
		return tx.UpdateAccountType(ctx, account.ID, newType)
	})
}

// SetAccountActive toggles the active flag.
func (s *Service) SetAccountActive(ctx context.Context, code string, active bool) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountByCode(ctx, code)
		if err != nil {
			return err
		}
		return tx.SetAccountActive(ctx, account.ID, active)
	})
}

// ListAccounts retrieves all chart of accounts entries.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// GetAccount returns a single account by code.
func (s *Service) GetAccount(ctx context.Context, code string) (Account, error) {
	return s.repo.GetAccountByCode(ctx, code)
}

// PostableAccounts resolves the validator facts for the given codes.
func (s *Service) PostableAccounts(ctx context.Context, codes []string) (map[string]PostableAccount, error) {
	return s.repo.PostableAccounts(ctx, codes)
}

// BalanceAsOf derives an account balance from non-draft journal rows up to
// and including the date, signed per the account's normal balance side.
func (s *Service) BalanceAsOf(ctx context.Context, code string, asOf time.Time) (AccountBalance, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	return s.repo.BalanceAsOf(ctx, code, asOf)
}

// TrialBalance lists per-account debit/credit totals as of the date.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) ([]AccountBalance, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	return s.repo.TrialBalance(ctx, asOf)
}

func validAccountType(t AccountType) bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}
