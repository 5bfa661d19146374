// Package transactions owns the draft/posted/void lifecycle of journal
// transactions and is the only writer of journal rows.
package transactions

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/ledger"
)

// Status enumerates lifecycle states.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
	StatusVoid   Status = "VOID"
)

// VoidReason is the closed enumeration a void must cite.
type VoidReason string

const (
	VoidReasonInputError    VoidReason = "INPUT_ERROR"
	VoidReasonDuplicate     VoidReason = "DUPLICATE_ENTRY"
	VoidReasonWrongTemplate VoidReason = "WRONG_TEMPLATE"
	VoidReasonOther         VoidReason = "OTHER"
)

// ParseVoidReason validates a reason string against the enumeration.
func ParseVoidReason(raw string) (VoidReason, error) {
	switch VoidReason(raw) {
	case VoidReasonInputError, VoidReasonDuplicate, VoidReasonWrongTemplate, VoidReasonOther:
		return VoidReason(raw), nil
	case "":
		return "", ErrReasonRequired
	}
	return "", fmt.Errorf("%w: %q", ErrReasonRequired, raw)
}

// Transaction is the lifecycle-owned journal header. Journal rows exist
// only once it is POSTED; DRAFT keeps just the bindings needed to rebuild.
type Transaction struct {
	ID              uuid.UUID                  `json:"id"`
	TemplateID      int64                      `json:"templateId"`
	TemplateVersion int                        `json:"templateVersion"`
	Date            time.Time                  `json:"date"`
	Description     string                     `json:"description"`
	Reference       string                     `json:"reference"`
	Status          Status                     `json:"status"`
	Bindings        map[string]decimal.Decimal `json:"bindings"`
	AccountSlots    map[string]string          `json:"accountSlots,omitempty"`
	CreatedBy       int64                      `json:"createdBy"`
	CreatedAt       time.Time                  `json:"createdAt"`
	PostedBy        *int64                     `json:"postedBy,omitempty"`
	PostedAt        *time.Time                 `json:"postedAt,omitempty"`
	VoidReason      *VoidReason                `json:"voidReason,omitempty"`
	VoidNotes       string                     `json:"voidNotes,omitempty"`
	VoidedBy        *int64                     `json:"voidedBy,omitempty"`
	VoidedAt        *time.Time                 `json:"voidedAt,omitempty"`
	Lines           []ledger.Line              `json:"lines,omitempty"`
}

var (
	// ErrNotFound indicates an unknown transaction id.
	ErrNotFound = errors.New("transactions: transaction not found")
	// ErrAlreadyPosted indicates a post call on a POSTED transaction.
	ErrAlreadyPosted = errors.New("transactions: transaction already posted")
	// ErrAlreadyVoid indicates a transition attempt on a VOID transaction.
	ErrAlreadyVoid = errors.New("transactions: transaction already void")
	// ErrNotPosted indicates a void call on a non-POSTED transaction.
	ErrNotPosted = errors.New("transactions: only posted transactions can be voided")
	// ErrReasonRequired indicates a void without a reason from the enumeration.
	ErrReasonRequired = errors.New("transactions: void reason required")
	// ErrCannotDeletePosted indicates a delete outside DRAFT.
	ErrCannotDeletePosted = errors.New("transactions: only draft transactions can be deleted")
	// ErrCannotEditPosted indicates an edit outside DRAFT.
	ErrCannotEditPosted = errors.New("transactions: only draft transactions can be edited")
	// ErrMissingBinding indicates a declared variable absent from bindings.
	ErrMissingBinding = errors.New("transactions: missing variable binding")
	// ErrUnexpectedBinding indicates a binding no template line declares.
	ErrUnexpectedBinding = errors.New("transactions: unexpected variable binding")
	// ErrMissingSlot indicates an unbound deferred account slot.
	ErrMissingSlot = errors.New("transactions: missing account slot binding")
	// ErrUnexpectedSlot indicates a slot binding the template does not declare.
	ErrUnexpectedSlot = errors.New("transactions: unexpected account slot binding")
)

// reverseLines mirrors a posted batch with sides swapped, order continuing
// after the original rows.
func reverseLines(lines []ledger.Line) []ledger.Line {
	out := make([]ledger.Line, 0, len(lines))
	for i, line := range lines {
		side := ledger.SideDebit
		if line.Side == ledger.SideDebit {
			side = ledger.SideCredit
		}
		out = append(out, ledger.Line{
			AccountID:   line.AccountID,
			AccountCode: line.AccountCode,
			Side:        side,
			Amount:      line.Amount,
			Order:       len(lines) + i + 1,
		})
	}
	return out
}
