package transactions

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/formula"
	"github.com/artha-erp/artha/internal/ledger"
	"github.com/artha-erp/artha/internal/templates"
)

// AccountResolver looks up validator facts for account codes.
type AccountResolver interface {
	PostableAccounts(ctx context.Context, codes []string) (map[string]ledger.PostableAccount, error)
}

// Builder turns a template snapshot plus bindings into validated journal
// lines. Both Create and Post run it, so a binding or account that went
// bad between the two surfaces at posting time.
type Builder struct {
	accounts AccountResolver
}

// NewBuilder constructs a Builder.
func NewBuilder(accounts AccountResolver) *Builder {
	return &Builder{accounts: accounts}
}

// Build evaluates every template line and validates the result. The binding
// set must exactly match the variables the snapshot declares; the slot set
// must exactly match the snapshot's deferred account slots.
func (b *Builder) Build(ctx context.Context, snapshot templates.Snapshot, bindings map[string]decimal.Decimal, slots map[string]string) ([]ledger.Line, error) {
	if err := checkBindingSet(snapshot, bindings); err != nil {
		return nil, err
	}
	if err := checkSlotSet(snapshot, slots); err != nil {
		return nil, err
	}

	lines := make([]ledger.Line, 0, len(snapshot.Lines))
	codes := make([]string, 0, len(snapshot.Lines))
	for _, spec := range snapshot.Lines {
		amount, err := formula.Evaluate(spec.Formula, bindings)
		if err != nil {
			return nil, fmt.Errorf("transactions: line %d: %w", spec.Order, err)
		}
		code := spec.AccountCode
		if spec.AccountSlot != "" {
			code = slots[spec.AccountSlot]
		}
		lines = append(lines, ledger.Line{
			AccountCode: code,
			Side:        spec.Side,
			Amount:      amount,
			Order:       spec.Order,
		})
		codes = append(codes, code)
	}

	if err := ledger.ValidateLines(lines); err != nil {
		return nil, err
	}
	accounts, err := b.accounts.PostableAccounts(ctx, codes)
	if err != nil {
		return nil, err
	}
	if err := ledger.ValidateAccounts(lines, accounts); err != nil {
		return nil, err
	}
	for i := range lines {
		lines[i].AccountID = accounts[lines[i].AccountCode].ID
	}
	return lines, nil
}

func checkBindingSet(snapshot templates.Snapshot, bindings map[string]decimal.Decimal) error {
	declared := make(map[string]bool, len(snapshot.Variables))
	for _, name := range snapshot.Variables {
		declared[name] = true
		if _, ok := bindings[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingBinding, name)
		}
	}
	for name := range bindings {
		if !declared[name] {
			return fmt.Errorf("%w: %s", ErrUnexpectedBinding, name)
		}
	}
	return nil
}

func checkSlotSet(snapshot templates.Snapshot, slots map[string]string) error {
	declared := map[string]bool{}
	for _, name := range snapshot.Slots() {
		declared[name] = true
		if slots[name] == "" {
			return fmt.Errorf("%w: %s", ErrMissingSlot, name)
		}
	}
	for name := range slots {
		if !declared[name] {
			return fmt.Errorf("%w: %s", ErrUnexpectedSlot, name)
		}
	}
	return nil
}
