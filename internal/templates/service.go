package templates

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/artha-erp/artha/internal/formula"
	"github.com/artha-erp/artha/internal/ledger"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSnapshot(ctx context.Context, templateID int64, version int) (Snapshot, error)
	GetCurrent(ctx context.Context, templateID int64) (Snapshot, error)
	ListCurrent(ctx context.Context) ([]Snapshot, error)
}

// Service manages the append-only template catalog.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService constructs the catalog service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates the definition and stores it as version 1.
func (s *Service) Create(ctx context.Context, def Definition) (Snapshot, error) {
	variables, err := validateDefinition(&def)
	if err != nil {
		return Snapshot{}, err
	}
	var snapshot Snapshot
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertTemplate(ctx, def, variables)
		if err != nil {
			return err
		}
		snapshot = inserted
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

// Edit appends a new version and repoints the current pointer. The
// existing versions are never touched, so transactions built from them
// reconstruct identically.
func (s *Service) Edit(ctx context.Context, templateID int64, def Definition) (Snapshot, error) {
	variables, err := validateDefinition(&def)
	if err != nil {
		return Snapshot{}, err
	}
	var snapshot Snapshot
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		head, err := tx.GetTemplateForUpdate(ctx, templateID)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertVersion(ctx, templateID, head.CurrentVersion+1, def, variables)
		if err != nil {
			return err
		}
		if err := tx.SetCurrentVersion(ctx, templateID, inserted.Version); err != nil {
			return err
		}
		snapshot = inserted
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

// Resolve returns the exact version, or the current one when version is zero.
func (s *Service) Resolve(ctx context.Context, templateID int64, version int) (Snapshot, error) {
	if version == 0 {
		return s.repo.GetCurrent(ctx, templateID)
	}
	return s.repo.GetSnapshot(ctx, templateID, version)
}

// Current returns the version the current pointer designates.
func (s *Service) Current(ctx context.Context, templateID int64) (Snapshot, error) {
	return s.repo.GetCurrent(ctx, templateID)
}

// List returns the current version of every template.
func (s *Service) List(ctx context.Context) ([]Snapshot, error) {
	return s.repo.ListCurrent(ctx)
}

// Deactivate hides the template from new transactions. Existing
// transactions keep resolving their pinned versions.
func (s *Service) Deactivate(ctx context.Context, templateID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetTemplateForUpdate(ctx, templateID); err != nil {
			return err
		}
		return tx.SetActive(ctx, templateID, false)
	})
}

// Delete removes a template and all versions. Refused while any
// transaction references any version; deactivate instead.
func (s *Service) Delete(ctx context.Context, templateID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetTemplateForUpdate(ctx, templateID); err != nil {
			return err
		}
		count, err := tx.CountTransactions(ctx, templateID)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %d transactions", ErrInUse, count)
		}
		return tx.DeleteTemplate(ctx, templateID)
	})
}

// validateDefinition normalises the definition and returns the declared
// variable set, sorted for stable storage.
func validateDefinition(def *Definition) ([]string, error) {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return nil, ErrNameRequired
	}
	switch def.Category {
	case CategoryGeneral, CategorySales, CategoryPurchase, CategoryPayroll, CategoryDepreciation, CategoryProduction:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, def.Category)
	}
	switch def.Type {
	case TypeSimple, TypeDetailed:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, def.Type)
	}
	if len(def.Lines) < 2 {
		return nil, ErrTooFewLines
	}
	var hasDebit, hasCredit bool
	variables := map[string]bool{}
	for i := range def.Lines {
		line := &def.Lines[i]
		if line.Order == 0 {
			line.Order = i + 1
		}
		switch line.Side {
		case ledger.SideDebit:
			hasDebit = true
		case ledger.SideCredit:
			hasCredit = true
		default:
			return nil, fmt.Errorf("%w: line %d side %q", ledger.ErrInvalidSide, line.Order, line.Side)
		}
		fixed := strings.TrimSpace(line.AccountCode) != ""
		deferred := strings.TrimSpace(line.AccountSlot) != ""
		if fixed == deferred {
			return nil, fmt.Errorf("%w: line %d", ErrLineAccount, line.Order)
		}
		names, err := formula.Variables(line.Formula)
		if err != nil {
			return nil, fmt.Errorf("templates: line %d: %w", line.Order, err)
		}
		for _, name := range names {
			if def.Type == TypeSimple && name != "amount" {
				return nil, fmt.Errorf("%w: line %d references %q", ErrVariableNotAllowed, line.Order, name)
			}
			variables[name] = true
		}
	}
	if !hasDebit || !hasCredit {
		return nil, ErrOneSided
	}
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
