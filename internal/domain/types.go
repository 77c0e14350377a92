// Package domain holds the canonical statement, transaction, and
// reconciliation entities shared by every stage of the import pipeline.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a statement carries no CURDEF field.
const DefaultCurrency = "BRL"

// EntryType represents the direction of an open financial entry.
// Use ValidateEntryType to ensure validity before use.
type EntryType string

const (
	EntryTypeIncome  EntryType = "income"
	EntryTypeExpense EntryType = "expense"
)

var validEntryTypes = map[EntryType]struct{}{
	EntryTypeIncome:  {},
	EntryTypeExpense: {},
}

// ValidateEntryType checks if an entry type is valid
func ValidateEntryType(t EntryType) bool {
	_, ok := validEntryTypes[t]
	return ok
}

// Account identifies the bank account a statement belongs to.
type Account struct {
	BankID   string `json:"bankId"`
	BranchID string `json:"branchId"`
	ID       string `json:"id"`
	Type     string `json:"type"`     // raw ACCTTYPE code, e.g. "CHECKING"
	Currency string `json:"currency"` // CURDEF, defaults to DefaultCurrency
}

// Balance is a statement-reported balance snapshot as of a date.
type Balance struct {
	Amount decimal.Decimal `json:"amount"`
	AsOf   time.Time       `json:"asOf"`
}

// Transaction is one bank-statement line after normalization.
//
// Field absence conventions:
//   - DatePosted: zero time means the source date was missing or unparseable
//   - FitID: empty string means the export carried no FITID; such a
//     transaction can never be classified as a duplicate and must be
//     flagged for manual review
//   - Amount: defaults to zero when the source field was non-numeric;
//     callers treat a zero amount as low-confidence data, not a guarantee
type Transaction struct {
	Type       string          `json:"type"` // raw TRNTYPE code, preserved as given
	DatePosted time.Time       `json:"datePosted"`
	Amount     decimal.Decimal `json:"amount"` // signed; sign encodes direction
	FitID      string          `json:"fitId"`
	Name       string          `json:"name"`
	Memo       string          `json:"memo"`
	CheckNum   string          `json:"checkNum"`
	RefNum     string          `json:"refNum"`
}

// IsCredit reports the transaction direction. Direction is derived solely
// from the amount sign; the magnitude is never reinterpreted.
func (t *Transaction) IsCredit() bool {
	return t.Amount.Sign() > 0
}

// Description returns the memo, falling back to the name, falling back to "".
func (t *Transaction) Description() string {
	if m := strings.TrimSpace(t.Memo); m != "" {
		return m
	}
	return strings.TrimSpace(t.Name)
}

// EntryDirection maps the transaction direction onto the entry type used by
// the reconciliation matcher (credit -> income, debit -> expense).
func (t *Transaction) EntryDirection() EntryType {
	if t.IsCredit() {
		return EntryTypeIncome
	}
	return EntryTypeExpense
}

// Statement is the root parse result. It is a pure function of the input
// bytes and immutable once produced.
type Statement struct {
	Header           map[string]string `json:"header"`
	Account          Account           `json:"account"`
	Transactions     []Transaction     `json:"transactions"` // descending by DatePosted
	Balance          *Balance          `json:"balance,omitempty"`
	AvailableBalance *Balance          `json:"availableBalance,omitempty"`
}

// Category is a caller-supplied category eligible for suggestion.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ExistingEntry is an open financial entry ("lançamento") supplied by the
// caller for reconciliation matching. The core treats it as read-only input.
type ExistingEntry struct {
	ID          int64           `json:"id"`
	Type        EntryType       `json:"type"`
	Amount      decimal.Decimal `json:"amount"` // always positive magnitude
	DueDate     time.Time       `json:"dueDate"`
	Description string          `json:"description"`
}

// NewExistingEntry creates a validated existing entry. A zero due date
// is allowed and means the date is unknown; the reconciliation matcher
// skips such entries.
func NewExistingEntry(id int64, entryType EntryType, amount decimal.Decimal, dueDate time.Time, description string) (*ExistingEntry, error) {
	if id <= 0 {
		return nil, fmt.Errorf("entry ID must be positive, got %d", id)
	}
	if !ValidateEntryType(entryType) {
		return nil, fmt.Errorf("invalid entry type: %s", entryType)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("entry amount must be a positive magnitude, got %s", amount)
	}
	return &ExistingEntry{
		ID:          id,
		Type:        entryType,
		Amount:      amount,
		DueDate:     dueDate,
		Description: description,
	}, nil
}

// ImportCandidate is the transient, user-editable staging record for one
// not-yet-duplicate transaction awaiting commit decisions.
//
// Lifecycle: created per new transaction after deduplication, mutated by
// user interaction (selection, category override, entry link), consumed
// once at commit time and discarded.
type ImportCandidate struct {
	Transaction         Transaction     `json:"transaction"`
	Selected            bool            `json:"selected"` // defaults to true
	SuggestedCategoryID *int64          `json:"suggestedCategoryId,omitempty"`
	LinkedEntryID       *int64          `json:"linkedEntryId,omitempty"`
	Matches             []ExistingEntry `json:"matches,omitempty"` // reconciliation candidates, never auto-selected
}

// NewImportCandidate creates a candidate in its initial state.
func NewImportCandidate(txn Transaction) ImportCandidate {
	return ImportCandidate{
		Transaction: txn,
		Selected:    true,
	}
}
