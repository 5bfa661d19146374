package templates

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artha-erp/artha/internal/platform/db"
)

// Head is the mutable pointer row of a template.
type Head struct {
	ID             int64
	CurrentVersion int
	IsActive       bool
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertTemplate(ctx context.Context, def Definition, variables []string) (Snapshot, error)
	GetTemplateForUpdate(ctx context.Context, templateID int64) (Head, error)
	InsertVersion(ctx context.Context, templateID int64, version int, def Definition, variables []string) (Snapshot, error)
	SetCurrentVersion(ctx context.Context, templateID int64, version int) error
	CountTransactions(ctx context.Context, templateID int64) (int64, error)
	SetActive(ctx context.Context, templateID int64, active bool) error
	DeleteTemplate(ctx context.Context, templateID int64) error
}

// Repository persists templates in PostgreSQL.
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

const snapshotQuery = `
SELECT t.id, v.version, t.name, t.category, t.template_type, t.is_active, v.lines, v.variables, v.created_at
FROM templates t
JOIN template_versions v ON v.template_id = t.id
`

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var s Snapshot
	var linesJSON []byte
	err := row.Scan(&s.TemplateID, &s.Version, &s.Name, &s.Category, &s.Type, &s.IsActive, &linesJSON, &s.Variables, &s.CreatedAt)
	if err != nil {
		return Snapshot{}, err
	}
	if err := json.Unmarshal(linesJSON, &s.Lines); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func (r *txRepository) InsertTemplate(ctx context.Context, def Definition, variables []string) (Snapshot, error) {
	var templateID int64
	err := r.tx.QueryRow(ctx,
		`INSERT INTO templates (name, category, template_type, current_version, is_active)
		 VALUES ($1, $2, $3, 1, TRUE) RETURNING id`,
		def.Name, def.Category, def.Type).Scan(&templateID)
	if err != nil {
		return Snapshot{}, err
	}
	return r.InsertVersion(ctx, templateID, 1, def, variables)
}

func (r *txRepository) GetTemplateForUpdate(ctx context.Context, templateID int64) (Head, error) {
	var head Head
	err := r.tx.QueryRow(ctx,
		`SELECT id, current_version, is_active FROM templates WHERE id = $1 FOR UPDATE`,
		templateID).Scan(&head.ID, &head.CurrentVersion, &head.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Head{}, ErrNotFound
	}
	return head, err
}

func (r *txRepository) InsertVersion(ctx context.Context, templateID int64, version int, def Definition, variables []string) (Snapshot, error) {
	linesJSON, err := json.Marshal(def.Lines)
	if err != nil {
		return Snapshot{}, err
	}
	_, err = r.tx.Exec(ctx,
		`INSERT INTO template_versions (template_id, version, lines, variables) VALUES ($1, $2, $3, $4)`,
		templateID, version, linesJSON, variables)
	if err != nil {
		return Snapshot{}, err
	}
	return scanSnapshot(r.tx.QueryRow(ctx, snapshotQuery+`WHERE t.id = $1 AND v.version = $2`, templateID, version))
}

func (r *txRepository) SetCurrentVersion(ctx context.Context, templateID int64, version int) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE templates SET current_version = $2, updated_at = NOW() WHERE id = $1`,
		templateID, version)
	return err
}

func (r *txRepository) CountTransactions(ctx context.Context, templateID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE template_id = $1`, templateID).Scan(&count)
	return count, err
}

func (r *txRepository) SetActive(ctx context.Context, templateID int64, active bool) error {
	_, err := r.tx.Exec(ctx, `UPDATE templates SET is_active = $2, updated_at = NOW() WHERE id = $1`, templateID, active)
	return err
}

func (r *txRepository) DeleteTemplate(ctx context.Context, templateID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM template_versions WHERE template_id = $1`, templateID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM templates WHERE id = $1`, templateID)
	return err
}

// GetSnapshot resolves an exact (template, version) pair.
func (r *Repository) GetSnapshot(ctx context.Context, templateID int64, version int) (Snapshot, error) {
	snapshot, err := scanSnapshot(r.pool.QueryRow(ctx,
		snapshotQuery+`WHERE t.id = $1 AND v.version = $2`, templateID, version))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, headErr := r.headExists(ctx, templateID); headErr != nil {
			return Snapshot{}, headErr
		}
		return Snapshot{}, ErrVersionNotFound
	}
	return snapshot, err
}

// GetCurrent resolves the version the current pointer designates.
func (r *Repository) GetCurrent(ctx context.Context, templateID int64) (Snapshot, error) {
	snapshot, err := scanSnapshot(r.pool.QueryRow(ctx,
		snapshotQuery+`WHERE t.id = $1 AND v.version = t.current_version`, templateID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	return snapshot, err
}

// ListCurrent returns the current version of every template.
func (r *Repository) ListCurrent(ctx context.Context) ([]Snapshot, error) {
	rows, err := r.pool.Query(ctx, snapshotQuery+`WHERE v.version = t.current_version ORDER BY t.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snapshot)
	}
	return out, rows.Err()
}

func (r *Repository) headExists(ctx context.Context, templateID int64) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM templates WHERE id = $1)`, templateID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return true, nil
}
