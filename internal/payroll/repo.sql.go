package payroll

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artha-erp/artha/internal/platform/db"
	"github.com/artha-erp/artha/internal/transactions"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetRunForUpdate(ctx context.Context, runID int64) (Run, error)
	MarkPosted(ctx context.Context, run Run) error
	InsertPostedTransaction(ctx context.Context, txn transactions.Transaction) error
}

// Repository persists payroll runs in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
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

const runQuery = `
SELECT id, period, gross, deductions, net, headcount, transaction_id,
       created_by, created_at, posted_at
FROM payroll_runs
`

func scanRun(row pgx.Row) (Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.Period, &run.Gross, &run.Deductions, &run.Net,
		&run.Headcount, &run.TransactionID, &run.CreatedBy, &run.CreatedAt, &run.PostedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

func (r *Repository) InsertRun(ctx context.Context, run Run) (Run, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payroll_runs (period, gross, deductions, net, headcount, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		run.Period, run.Gross, run.Deductions, run.Net, run.Headcount,
		run.CreatedBy, run.CreatedAt).Scan(&run.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		// payroll_runs.period carries a unique constraint.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Run{}, ErrDuplicatePeriod
		}
		return Run{}, err
	}
	return run, nil
}

func (r *Repository) GetRun(ctx context.Context, runID int64) (Run, error) {
	return scanRun(r.pool.QueryRow(ctx, runQuery+`WHERE id = $1`, runID))
}

func (r *Repository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.pool.Query(ctx, runQuery+`ORDER BY period DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *txRepository) GetRunForUpdate(ctx context.Context, runID int64) (Run, error) {
	return scanRun(r.tx.QueryRow(ctx, runQuery+`WHERE id = $1 FOR UPDATE`, runID))
}

func (r *txRepository) MarkPosted(ctx context.Context, run Run) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE payroll_runs SET transaction_id = $2, posted_at = $3 WHERE id = $1`,
		run.ID, run.TransactionID, run.PostedAt)
	return err
}

func (r *txRepository) InsertPostedTransaction(ctx context.Context, txn transactions.Transaction) error {
	return transactions.InsertPosted(ctx, r.tx, txn)
}
