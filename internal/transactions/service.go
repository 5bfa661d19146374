package transactions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/ledger"
	"github.com/artha-erp/artha/internal/shared"
	"github.com/artha-erp/artha/internal/templates"
)

// SnapshotResolver resolves template versions from the catalog.
type SnapshotResolver interface {
	Resolve(ctx context.Context, templateID int64, version int) (templates.Snapshot, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Transaction, error)
	GetLines(ctx context.Context, id uuid.UUID) ([]ledger.Line, error)
	List(ctx context.Context, limit int) ([]Transaction, error)
}

// AuditPort records lifecycle events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the draft/posted/void state machine.
type Service struct {
	repo    RepositoryPort
	catalog SnapshotResolver
	builder *Builder
	locker  *shared.Locker
	audit   AuditPort
	now     func() time.Time
}

// NewService constructs the lifecycle service.
func NewService(repo RepositoryPort, catalog SnapshotResolver, builder *Builder, locker *shared.Locker, audit AuditPort) *Service {
	return &Service{repo: repo, catalog: catalog, builder: builder, locker: locker, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInput groups fields for a new draft.
type CreateInput struct {
	TemplateID      int64
	TemplateVersion int
	Date            time.Time
	Description     string
	Reference       string
	Bindings        map[string]decimal.Decimal
	AccountSlots    map[string]string
	ActorID         int64
}

// Create validates eagerly and stores a DRAFT. No journal rows are
// written; the transaction pins the snapshot version it was built from.
func (s *Service) Create(ctx context.Context, input CreateInput) (Transaction, error) {
	snapshot, err := s.catalog.Resolve(ctx, input.TemplateID, input.TemplateVersion)
	if err != nil {
		return Transaction{}, err
	}
	if !snapshot.IsActive {
		return Transaction{}, templates.ErrInactive
	}
	if input.Date.IsZero() {
		return Transaction{}, fmt.Errorf("transactions: date required")
	}
	if _, err := s.builder.Build(ctx, snapshot, input.Bindings, input.AccountSlots); err != nil {
		return Transaction{}, err
	}
	txn := Transaction{
		ID:              uuid.New(),
		TemplateID:      snapshot.TemplateID,
		TemplateVersion: snapshot.Version,
		Date:            input.Date,
		Description:     strings.TrimSpace(input.Description),
		Reference:       strings.TrimSpace(input.Reference),
		Status:          StatusDraft,
		Bindings:        input.Bindings,
		AccountSlots:    input.AccountSlots,
		CreatedBy:       input.ActorID,
		CreatedAt:       s.now(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, txn)
	})
	if err != nil {
		return Transaction{}, err
	}
	s.record(ctx, input.ActorID, shared.ActionTransactionCreate, txn.ID, map[string]any{"template_id": txn.TemplateID, "version": txn.TemplateVersion})
	return txn, nil
}

// Post flips DRAFT to POSTED and writes the journal batch atomically with
// the status change. Everything is re-validated: bindings, template, and
// account state may all have drifted since Create.
func (s *Service) Post(ctx context.Context, id uuid.UUID, actorID int64) (Transaction, error) {
	release, err := s.locker.Acquire(ctx, shared.TransactionLockKey(id))
	if err != nil {
		return Transaction{}, err
	}
	defer release()

	var posted Transaction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch current.Status {
		case StatusPosted:
			return ErrAlreadyPosted
		case StatusVoid:
			return ErrAlreadyVoid
		}
		snapshot, err := s.catalog.Resolve(ctx, current.TemplateID, current.TemplateVersion)
		if err != nil {
			return err
		}
		lines, err := s.builder.Build(ctx, snapshot, current.Bindings, current.AccountSlots)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, current.ID, lines); err != nil {
			return err
		}
		now := s.now()
		if err := tx.MarkPosted(ctx, current.ID, actorID, now); err != nil {
			return err
		}
		current.Status = StatusPosted
		current.PostedBy = &actorID
		current.PostedAt = &now
		current.Lines = lines
		posted = current
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.record(ctx, actorID, shared.ActionTransactionPost, id, map[string]any{"lines": len(posted.Lines)})
	return posted, nil
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	Reason  string
	Notes   string
	ActorID int64
}

// Void writes a mirrored reversal batch and flips POSTED to VOID. The
// original rows are never touched; the net ledger effect becomes zero.
func (s *Service) Void(ctx context.Context, id uuid.UUID, input VoidInput) (Transaction, error) {
	reason, err := ParseVoidReason(input.Reason)
	if err != nil {
		return Transaction{}, err
	}
	release, err := s.locker.Acquire(ctx, shared.TransactionLockKey(id))
	if err != nil {
		return Transaction{}, err
	}
	defer release()

	var voided Transaction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPosted {
			return fmt.Errorf("%w: status %s", ErrNotPosted, current.Status)
		}
		lines, err := tx.GetLines(ctx, current.ID)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, current.ID, reverseLines(lines)); err != nil {
			return err
		}
		now := s.now()
		if err := tx.MarkVoid(ctx, current.ID, reason, input.Notes, input.ActorID, now); err != nil {
			return err
		}
		current.Status = StatusVoid
		current.VoidReason = &reason
		current.VoidNotes = input.Notes
		current.VoidedBy = &input.ActorID
		current.VoidedAt = &now
		voided = current
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.record(ctx, input.ActorID, shared.ActionTransactionVoid, id, map[string]any{"reason": string(reason)})
	return voided, nil
}

// Edit replaces a draft's bindings after re-validating them.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, bindings map[string]decimal.Decimal, slots map[string]string, actorID int64) (Transaction, error) {
	var edited Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return fmt.Errorf("%w: status %s", ErrCannotEditPosted, current.Status)
		}
		snapshot, err := s.catalog.Resolve(ctx, current.TemplateID, current.TemplateVersion)
		if err != nil {
			return err
		}
		if slots == nil {
			slots = current.AccountSlots
		}
		if _, err := s.builder.Build(ctx, snapshot, bindings, slots); err != nil {
			return err
		}
		if err := tx.UpdateBindings(ctx, current.ID, bindings, slots); err != nil {
			return err
		}
		current.Bindings = bindings
		current.AccountSlots = slots
		edited = current
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.record(ctx, actorID, shared.ActionTransactionEdit, id, nil)
	return edited, nil
}

// Delete hard-deletes a draft. POSTED and VOID rows are permanent.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return fmt.Errorf("%w: status %s", ErrCannotDeletePosted, current.Status)
		}
		return tx.Delete(ctx, current.ID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, shared.ActionTransactionDelete, id, nil)
	return nil
}

// Get returns a transaction with its journal rows when any exist.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Transaction, error) {
	txn, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if txn.Status != StatusDraft {
		lines, err := s.repo.GetLines(ctx, id)
		if err != nil {
			return Transaction{}, err
		}
		txn.Lines = lines
	}
	return txn, nil
}

// List returns recent transactions, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.List(ctx, limit)
}

// BuildPosted assembles a transaction already in POSTED state for a
// generator repository to insert atomically alongside its own rows.
func (s *Service) BuildPosted(ctx context.Context, input CreateInput) (Transaction, error) {
	snapshot, err := s.catalog.Resolve(ctx, input.TemplateID, input.TemplateVersion)
	if err != nil {
		return Transaction{}, err
	}
	if !snapshot.IsActive {
		return Transaction{}, templates.ErrInactive
	}
	lines, err := s.builder.Build(ctx, snapshot, input.Bindings, input.AccountSlots)
	if err != nil {
		return Transaction{}, err
	}
	now := s.now()
	return Transaction{
		ID:              uuid.New(),
		TemplateID:      snapshot.TemplateID,
		TemplateVersion: snapshot.Version,
		Date:            input.Date,
		Description:     strings.TrimSpace(input.Description),
		Reference:       strings.TrimSpace(input.Reference),
		Status:          StatusPosted,
		Bindings:        input.Bindings,
		AccountSlots:    input.AccountSlots,
		CreatedBy:       input.ActorID,
		CreatedAt:       now,
		PostedBy:        &input.ActorID,
		PostedAt:        &now,
		Lines:           lines,
	}, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.EntityTransaction,
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now(),
	})
}
