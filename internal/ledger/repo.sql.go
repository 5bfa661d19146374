package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/platform/db"
)

// Repository persists the chart of accounts and reads journal aggregates.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertAccount(ctx context.Context, account Account) (Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	HasChildren(ctx context.Context, accountID int64) (bool, error)
	UpdateAccountType(ctx context.Context, accountID int64, t AccountType) error
	SetAccountActive(ctx context.Context, accountID int64, active bool) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const accountColumns = `id, code, name, type, parent_id, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

func (r *txRepository) InsertAccount(ctx context.Context, account Account) (Account, error) {
	row := r.tx.QueryRow(ctx,
		`INSERT INTO accounts (code, name, type, parent_id, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+accountColumns,
		account.Code, account.Name, account.Type, account.ParentID, account.IsActive)
	inserted, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateCode
		}
		return Account{}, err
	}
	return inserted, nil
}

func (r *txRepository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = $1`, code))
}

func (r *txRepository) HasChildren(ctx context.Context, accountID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE parent_id = $1)`, accountID).Scan(&exists)
	return exists, err
}

func (r *txRepository) UpdateAccountType(ctx context.Context, accountID int64, t AccountType) error {
	_, err := r.tx.Exec(ctx, `UPDATE accounts SET type = $2, updated_at = NOW() WHERE id = $1`, accountID, t)
	return err
}

func (r *txRepository) SetAccountActive(ctx context.Context, accountID int64, active bool) error {
	_, err := r.tx.Exec(ctx, `UPDATE accounts SET is_active = $2, updated_at = NOW() WHERE id = $1`, accountID, active)
	return err
}

// ListAccounts returns the CoA ordered by code.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetAccountByCode fetches a single account outside a transaction.
func (r *Repository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = $1`, code))
}

// PostableAccounts resolves validator facts for the codes in one query.
func (r *Repository) PostableAccounts(ctx context.Context, codes []string) (map[string]PostableAccount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.code, a.id, a.is_active,
		        EXISTS (SELECT 1 FROM accounts c WHERE c.parent_id = a.id) AS is_header
		 FROM accounts a WHERE a.code = ANY($1)`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]PostableAccount, len(codes))
	for rows.Next() {
		var code string
		var pa PostableAccount
		if err := rows.Scan(&code, &pa.ID, &pa.IsActive, &pa.IsHeader); err != nil {
			return nil, err
		}
		out[code] = pa
	}
	return out, rows.Err()
}

// BalanceAsOf sums non-draft journal rows for one account up to the date.
// Voided transactions carry mirrored reversal rows, so including them nets
// to zero.
func (r *Repository) BalanceAsOf(ctx context.Context, code string, asOf time.Time) (AccountBalance, error) {
	account, err := r.GetAccountByCode(ctx, code)
	if err != nil {
		return AccountBalance{}, err
	}
	var debit, credit decimal.Decimal
	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE WHEN jl.side = 'DEBIT' THEN jl.amount ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN jl.side = 'CREDIT' THEN jl.amount ELSE 0 END), 0)
		 FROM journal_lines jl
		 JOIN transactions t ON t.id = jl.transaction_id
		 WHERE jl.account_id = $1 AND t.status <> 'DRAFT' AND t.date <= $2`,
		account.ID, asOf).Scan(&debit, &credit)
	if err != nil {
		return AccountBalance{}, err
	}
	return balanceOf(account, debit, credit), nil
}

// TrialBalance aggregates debit/credit totals per leaf account.
func (r *Repository) TrialBalance(ctx context.Context, asOf time.Time) ([]AccountBalance, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+prefixedAccountColumns("a")+`,
		        COALESCE(SUM(CASE WHEN jl.side = 'DEBIT' THEN jl.amount ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN jl.side = 'CREDIT' THEN jl.amount ELSE 0 END), 0)
		 FROM accounts a
		 LEFT JOIN (journal_lines jl
		            JOIN transactions t ON t.id = jl.transaction_id AND t.status <> 'DRAFT' AND t.date <= $1)
		        ON jl.account_id = a.id
		 GROUP BY a.id
		 ORDER BY a.code`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var a Account
		var debit, credit decimal.Decimal
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt, &debit, &credit); err != nil {
			return nil, err
		}
		out = append(out, balanceOf(a, debit, credit))
	}
	return out, rows.Err()
}

func balanceOf(account Account, debit, credit decimal.Decimal) AccountBalance {
	balance := debit.Sub(credit)
	if account.Type.NormalSide() == SideCredit {
		balance = credit.Sub(debit)
	}
	return AccountBalance{Account: account, Debit: debit, Credit: credit, Balance: balance}
}

func prefixedAccountColumns(alias string) string {
	return alias + ".id, " + alias + ".code, " + alias + ".name, " + alias + ".type, " +
		alias + ".parent_id, " + alias + ".is_active, " + alias + ".created_at, " + alias + ".updated_at"
}
