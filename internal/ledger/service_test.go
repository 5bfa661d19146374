package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	accounts map[string]Account
	balances map[string]AccountBalance
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts: map[string]Account{},
		balances: map[string]AccountBalance{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) InsertAccount(ctx context.Context, account Account) (Account, error) {
	if _, ok := r.accounts[account.Code]; ok {
		return Account{}, ErrDuplicateCode
	}
	r.nextID++
	account.ID = r.nextID
	r.accounts[account.Code] = account
	return account, nil
}

func (r *memoryRepo) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	account, ok := r.accounts[code]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (r *memoryRepo) HasChildren(ctx context.Context, accountID int64) (bool, error) {
	for _, account := range r.accounts {
		if account.ParentID != nil && *account.ParentID == accountID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) UpdateAccountType(ctx context.Context, accountID int64, t AccountType) error {
	for code, account := range r.accounts {
		if account.ID == accountID {
			account.Type = t
			r.accounts[code] = account
			return nil
		}
	}
	return ErrAccountNotFound
}

func (r *memoryRepo) SetAccountActive(ctx context.Context, accountID int64, active bool) error {
	for code, account := range r.accounts {
		if account.ID == accountID {
			account.IsActive = active
			r.accounts[code] = account
			return nil
		}
	}
	return ErrAccountNotFound
}

func (r *memoryRepo) ListAccounts(ctx context.Context) ([]Account, error) {
	var out []Account
	for _, account := range r.accounts {
		out = append(out, account)
	}
	return out, nil
}

func (r *memoryRepo) PostableAccounts(ctx context.Context, codes []string) (map[string]PostableAccount, error) {
	out := map[string]PostableAccount{}
	for _, code := range codes {
		account, ok := r.accounts[code]
		if !ok {
			continue
		}
		hasChildren, _ := r.HasChildren(ctx, account.ID)
		out[code] = PostableAccount{ID: account.ID, IsActive: account.IsActive, IsHeader: hasChildren}
	}
	return out, nil
}

func (r *memoryRepo) BalanceAsOf(ctx context.Context, code string, asOf time.Time) (AccountBalance, error) {
	balance, ok := r.balances[code]
	if !ok {
		if _, err := r.GetAccountByCode(ctx, code); err != nil {
			return AccountBalance{}, err
		}
		return AccountBalance{Account: r.accounts[code]}, nil
	}
	return balance, nil
}

func (r *memoryRepo) TrialBalance(ctx context.Context, asOf time.Time) ([]AccountBalance, error) {
	var out []AccountBalance
	for _, balance := range r.balances {
		out = append(out, balance)
	}
	return out, nil
}

func TestCreateAccountInheritsParentType(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo)
	ctx := context.Background()

	parent, err := service.CreateAccount(ctx, CreateAccountInput{Code: "1-1000", Name: "Current Assets", Type: AccountTypeAsset})
	require.NoError(t, err)

	// The child declares no type; it must pin to the parent's.
	child, err := service.CreateAccount(ctx, CreateAccountInput{Code: "1-1100", Name: "Cash", ParentCode: "1-1000"})
	require.NoError(t, err)
	require.Equal(t, AccountTypeAsset, child.Type)
	require.Equal(t, parent.ID, *child.ParentID)
}

func TestCreateAccountValidation(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo)
	ctx := context.Background()

	_, err := service.CreateAccount(ctx, CreateAccountInput{Code: "", Name: "x", Type: AccountTypeAsset})
	require.Error(t, err)

	_, err = service.CreateAccount(ctx, CreateAccountInput{Code: "9-9999", Name: "x", Type: AccountType("WEIRD")})
	require.Error(t, err)

	_, err = service.CreateAccount(ctx, CreateAccountInput{Code: "1-1100", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)
	_, err = service.CreateAccount(ctx, CreateAccountInput{Code: "1-1100", Name: "Cash again", Type: AccountTypeAsset})
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestChangeAccountTypeLockedByChildren(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo)
	ctx := context.Background()

	_, err := service.CreateAccount(ctx, CreateAccountInput{Code: "1-1000", Name: "Current Assets", Type: AccountTypeAsset})
	require.NoError(t, err)
	_, err = service.CreateAccount(ctx, CreateAccountInput{Code: "1-1100", Name: "Cash", ParentCode: "1-1000"})
	require.NoError(t, err)

	err = service.ChangeAccountType(ctx, "1-1000", AccountTypeExpense)
	require.ErrorIs(t, err, ErrTypeLocked)

	// Leaves retype freely.
	err = service.ChangeAccountType(ctx, "1-1100", AccountTypeExpense)
	require.NoError(t, err)
}

func TestSetAccountActiveUnknownCode(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo)

	err := service.SetAccountActive(context.Background(), "0-0000", false)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestBalanceAsOfDefaultsClock(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo)
	ctx := context.Background()

	_, err := service.CreateAccount(ctx, CreateAccountInput{Code: "1-1100", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)
	repo.balances["1-1100"] = AccountBalance{
		Account: repo.accounts["1-1100"],
		Debit:   decimal.NewFromInt(500),
		Credit:  decimal.NewFromInt(200),
		Balance: decimal.NewFromInt(300),
	}

	balance, err := service.BalanceAsOf(ctx, "1-1100", time.Time{})
	require.NoError(t, err)
	require.True(t, balance.Balance.Equal(decimal.NewFromInt(300)))
}
