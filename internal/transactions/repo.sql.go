package transactions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/ledger"
	"github.com/artha-erp/artha/internal/platform/db"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	Insert(ctx context.Context, txn Transaction) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (Transaction, error)
	GetLines(ctx context.Context, id uuid.UUID) ([]ledger.Line, error)
	InsertLines(ctx context.Context, id uuid.UUID, lines []ledger.Line) error
	UpdateBindings(ctx context.Context, id uuid.UUID, bindings map[string]decimal.Decimal, slots map[string]string) error
	MarkPosted(ctx context.Context, id uuid.UUID, actorID int64, at time.Time) error
	MarkVoid(ctx context.Context, id uuid.UUID, reason VoidReason, notes string, actorID int64, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Repository persists transactions and journal rows in PostgreSQL.
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

const transactionColumns = `id, template_id, template_version, date, description, reference, status,
	bindings, account_slots, created_by, created_at, posted_by, posted_at,
	void_reason, void_notes, voided_by, voided_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var bindingsJSON, slotsJSON []byte
	err := row.Scan(&t.ID, &t.TemplateID, &t.TemplateVersion, &t.Date, &t.Description, &t.Reference, &t.Status,
		&bindingsJSON, &slotsJSON, &t.CreatedBy, &t.CreatedAt, &t.PostedBy, &t.PostedAt,
		&t.VoidReason, &t.VoidNotes, &t.VoidedBy, &t.VoidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, err
	}
	if err := json.Unmarshal(bindingsJSON, &t.Bindings); err != nil {
		return Transaction{}, err
	}
	if err := json.Unmarshal(slotsJSON, &t.AccountSlots); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func encodeMaps(bindings map[string]decimal.Decimal, slots map[string]string) ([]byte, []byte, error) {
	if bindings == nil {
		bindings = map[string]decimal.Decimal{}
	}
	if slots == nil {
		slots = map[string]string{}
	}
	bindingsJSON, err := json.Marshal(bindings)
	if err != nil {
		return nil, nil, err
	}
	slotsJSON, err := json.Marshal(slots)
	if err != nil {
		return nil, nil, err
	}
	return bindingsJSON, slotsJSON, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, txn Transaction) error {
	bindingsJSON, slotsJSON, err := encodeMaps(txn.Bindings, txn.AccountSlots)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		txn.ID, txn.TemplateID, txn.TemplateVersion, txn.Date, txn.Description, txn.Reference, txn.Status,
		bindingsJSON, slotsJSON, txn.CreatedBy, txn.CreatedAt, txn.PostedBy, txn.PostedAt,
		txn.VoidReason, txn.VoidNotes, txn.VoidedBy, txn.VoidedAt)
	return err
}

func insertLines(ctx context.Context, tx pgx.Tx, id uuid.UUID, lines []ledger.Line) error {
	for _, line := range lines {
		_, err := tx.Exec(ctx,
			`INSERT INTO journal_lines (transaction_id, account_id, account_code, side, amount, line_order)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			id, line.AccountID, line.AccountCode, line.Side, line.Amount, line.Order)
		if err != nil {
			return err
		}
	}
	return nil
}

func getLines(ctx context.Context, q querier, id uuid.UUID) ([]ledger.Line, error) {
	rows, err := q.Query(ctx,
		`SELECT account_id, account_code, side, amount, line_order
		 FROM journal_lines WHERE transaction_id = $1 ORDER BY line_order`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []ledger.Line
	for rows.Next() {
		var line ledger.Line
		if err := rows.Scan(&line.AccountID, &line.AccountCode, &line.Side, &line.Amount, &line.Order); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// InsertPosted writes an already-POSTED transaction and its journal batch
// inside the caller's transaction. Generator repositories use it to commit
// a journal atomically with their own domain rows.
func InsertPosted(ctx context.Context, tx pgx.Tx, txn Transaction) error {
	if txn.Status != StatusPosted {
		return errors.New("transactions: InsertPosted requires POSTED status")
	}
	if err := insertTransaction(ctx, tx, txn); err != nil {
		return err
	}
	return insertLines(ctx, tx, txn.ID, txn.Lines)
}

func (r *txRepository) Insert(ctx context.Context, txn Transaction) error {
	return insertTransaction(ctx, r.tx, txn)
}

func (r *txRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (Transaction, error) {
	return scanTransaction(r.tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepository) GetLines(ctx context.Context, id uuid.UUID) ([]ledger.Line, error) {
	return getLines(ctx, r.tx, id)
}

func (r *txRepository) InsertLines(ctx context.Context, id uuid.UUID, lines []ledger.Line) error {
	return insertLines(ctx, r.tx, id, lines)
}

func (r *txRepository) UpdateBindings(ctx context.Context, id uuid.UUID, bindings map[string]decimal.Decimal, slots map[string]string) error {
	bindingsJSON, slotsJSON, err := encodeMaps(bindings, slots)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx,
		`UPDATE transactions SET bindings = $2, account_slots = $3 WHERE id = $1`,
		id, bindingsJSON, slotsJSON)
	return err
}

func (r *txRepository) MarkPosted(ctx context.Context, id uuid.UUID, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE transactions SET status = $2, posted_by = $3, posted_at = $4 WHERE id = $1`,
		id, StatusPosted, actorID, at)
	return err
}

func (r *txRepository) MarkVoid(ctx context.Context, id uuid.UUID, reason VoidReason, notes string, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE transactions SET status = $2, void_reason = $3, void_notes = $4, voided_by = $5, voided_at = $6 WHERE id = $1`,
		id, StatusVoid, reason, notes, actorID, at)
	return err
}

func (r *txRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	return err
}

// Get fetches a transaction header outside a transaction.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

// GetLines fetches journal rows for one transaction.
func (r *Repository) GetLines(ctx context.Context, id uuid.UUID) ([]ledger.Line, error) {
	return getLines(ctx, r.pool, id)
}

// List returns recent transactions, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}
