package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/shared"
	"github.com/artha-erp/artha/internal/transactions"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertRun(ctx context.Context, run Run) (Run, error)
	GetRun(ctx context.Context, runID int64) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// JournalPort builds posted transactions for atomic insertion.
type JournalPort interface {
	BuildPosted(ctx context.Context, input transactions.CreateInput) (transactions.Transaction, error)
}

// Config carries the template id the payroll journal binds.
type Config struct {
	PayrollTemplateID int64
}

// Service records payroll runs and generates their journals.
type Service struct {
	repo     RepositoryPort
	journals JournalPort
	audit    AuditPort
	cfg      Config
	now      func() time.Time
}

// AuditPort records posting events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NewService builds Service.
func NewService(repo RepositoryPort, journals JournalPort, audit AuditPort, cfg Config) *Service {
	return &Service{repo: repo, journals: journals, audit: audit, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RunInput groups the figures handed over by the payroll system.
type RunInput struct {
	Period     string
	Gross      decimal.Decimal
	Deductions decimal.Decimal
	Net        decimal.Decimal
	Headcount  int
	ActorID    int64
}

// CreateRun validates and stores a payroll run. One run per period.
func (s *Service) CreateRun(ctx context.Context, input RunInput) (Run, error) {
	if _, err := shared.ParsePeriod(input.Period); err != nil {
		return Run{}, err
	}
	if input.Gross.Sign() < 0 || input.Deductions.Sign() < 0 {
		return Run{}, ErrInvalidAmount
	}
	if !input.Net.Equal(input.Gross.Sub(input.Deductions)) {
		return Run{}, ErrAmountMismatch
	}
	run, err := s.repo.InsertRun(ctx, Run{
		Period:     input.Period,
		Gross:      input.Gross,
		Deductions: input.Deductions,
		Net:        input.Net,
		Headcount:  input.Headcount,
		CreatedBy:  input.ActorID,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return Run{}, err
	}
	s.record(ctx, input.ActorID, shared.ActionPayrollRunCreate, run.ID, nil)
	return run, nil
}

// GetRun returns one payroll run.
func (s *Service) GetRun(ctx context.Context, runID int64) (Run, error) {
	return s.repo.GetRun(ctx, runID)
}

// ListRuns returns payroll runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListRuns(ctx, limit)
}

// GenerateJournal posts the salary journal for one run. A run posts at
// most once; a second call is rejected rather than double-posting.
func (s *Service) GenerateJournal(ctx context.Context, runID, actorID int64) (Run, error) {
	var out Run
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		run, err := tx.GetRunForUpdate(ctx, runID)
		if err != nil {
			return err
		}
		if run.TransactionID != nil {
			return ErrAlreadyPosted
		}
		date, err := shared.PeriodEnd(run.Period)
		if err != nil {
			return err
		}
		journal, err := s.journals.BuildPosted(ctx, transactions.CreateInput{
			TemplateID:  s.cfg.PayrollTemplateID,
			Date:        date,
			Description: fmt.Sprintf("Payroll %s", run.Period),
			Reference:   fmt.Sprintf("PAY-%d-%s", run.ID, run.Period),
			Bindings: map[string]decimal.Decimal{
				"grossAmount":     run.Gross,
				"deductionAmount": run.Deductions,
				"netAmount":       run.Net,
			},
			ActorID: actorID,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertPostedTransaction(ctx, journal); err != nil {
			return err
		}
		now := s.now()
		run.TransactionID = &journal.ID
		run.PostedAt = &now
		if err := tx.MarkPosted(ctx, run); err != nil {
			return err
		}
		out = run
		return nil
	})
	if err != nil {
		return Run{}, err
	}
	s.record(ctx, actorID, shared.ActionPayrollRunPost, runID, map[string]any{"period": out.Period})
	return out, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, runID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.EntityPayrollRun,
		EntityID: fmt.Sprint(runID),
		Meta:     meta,
		At:       s.now(),
	})
}
