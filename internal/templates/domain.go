// Package templates is the catalog of versioned journal blueprints.
// A transaction always references the exact version it was built from,
// so historical journal reconstructions survive later edits.
package templates

import (
	"errors"
	"time"

	"github.com/artha-erp/artha/internal/ledger"
)

// Type enumerates how a template binds variables.
type Type string

const (
	// TypeSimple templates accept exactly one variable named "amount".
	TypeSimple Type = "SIMPLE"
	// TypeDetailed templates accept exactly the variable set their lines declare.
	TypeDetailed Type = "DETAILED"
)

// Category enumerates template groupings.
type Category string

const (
	CategoryGeneral      Category = "GENERAL"
	CategorySales        Category = "SALES"
	CategoryPurchase     Category = "PURCHASE"
	CategoryPayroll      Category = "PAYROLL"
	CategoryDepreciation Category = "DEPRECIATION"
	CategoryProduction   Category = "PRODUCTION"
)

// LineSpec describes one journal line of a template. Exactly one of
// AccountCode (fixed) or AccountSlot (bound by the caller at build time)
// is set.
type LineSpec struct {
	AccountCode string      `json:"accountCode,omitempty"`
	AccountSlot string      `json:"accountSlot,omitempty"`
	Side        ledger.Side `json:"side"`
	Formula     string      `json:"formula"`
	Order       int         `json:"order"`
}

// Definition is the caller-supplied shape for create and edit.
type Definition struct {
	Name     string
	Category Category
	Type     Type
	Lines    []LineSpec
}

// Snapshot is an immutable, fully resolved template version.
type Snapshot struct {
	TemplateID int64      `json:"templateId"`
	Version    int        `json:"version"`
	Name       string     `json:"name"`
	Category   Category   `json:"category"`
	Type       Type       `json:"type"`
	IsActive   bool       `json:"isActive"`
	Lines      []LineSpec `json:"lines"`
	Variables  []string   `json:"variables"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Slots returns the deferred account slot names declared by the lines.
func (s Snapshot) Slots() []string {
	var slots []string
	seen := map[string]bool{}
	for _, line := range s.Lines {
		if line.AccountSlot != "" && !seen[line.AccountSlot] {
			seen[line.AccountSlot] = true
			slots = append(slots, line.AccountSlot)
		}
	}
	return slots
}

var (
	// ErrNameRequired indicates an empty template name.
	ErrNameRequired = errors.New("templates: name required")
	// ErrUnknownCategory indicates a category outside the enumeration.
	ErrUnknownCategory = errors.New("templates: unknown category")
	// ErrUnknownType indicates a type outside SIMPLE/DETAILED.
	ErrUnknownType = errors.New("templates: unknown template type")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("templates: template requires at least two lines")
	// ErrOneSided indicates all lines share one side. The most common
	// authoring mistake, rejected as a structural error before any balance math.
	ErrOneSided = errors.New("templates: template requires at least one debit and one credit line")
	// ErrLineAccount indicates a line with zero or both account references.
	ErrLineAccount = errors.New("templates: line requires exactly one of account code or slot")
	// ErrVariableNotAllowed indicates a SIMPLE line referencing a variable other than amount.
	ErrVariableNotAllowed = errors.New("templates: simple templates may only reference amount")
	// ErrNotFound indicates an unknown template id.
	ErrNotFound = errors.New("templates: template not found")
	// ErrVersionNotFound indicates an unknown version of a known template.
	ErrVersionNotFound = errors.New("templates: version not found")
	// ErrInUse indicates a delete attempt while transactions reference the template.
	ErrInUse = errors.New("templates: template referenced by transactions")
	// ErrInactive indicates a build attempt against a deactivated template.
	ErrInactive = errors.New("templates: template is inactive")
)
