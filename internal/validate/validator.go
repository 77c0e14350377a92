package validate

import (
	"fmt"

	"github.com/conciliar/ofximport/internal/domain"
)

// ValidationResult contains all validation errors and warnings for a
// parsed statement. Errors make the statement unsafe to commit as-is;
// warnings flag quality problems the operator should review but that
// never block an import.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// ValidationError represents a validation error
type ValidationError struct {
	Entity  string // "statement", "account", "transaction"
	ID      string
	Field   string
	Value   string
	Message string
}

// ValidationWarning represents a non-critical validation issue
type ValidationWarning struct {
	Entity  string
	ID      string
	Field   string
	Value   string
	Message string
}

// HasErrors reports whether any hard error was found.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// ValidateStatement checks a parsed statement before it is previewed or
// committed. The parse layer already degraded field-level problems to
// defaults, so this pass looks for what defaults cannot hide: duplicate
// fitids within one file, missing account identity, and transactions
// whose required fields came back empty.
func ValidateStatement(stmt *domain.Statement) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	if stmt.Account.ID == "" {
		result.Errors = append(result.Errors, ValidationError{
			Entity:  "account",
			Field:   "ID",
			Value:   "",
			Message: "statement has no account ID; pass one explicitly or fix the file",
		})
	}
	if stmt.Account.Currency == "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Entity:  "account",
			ID:      stmt.Account.ID,
			Field:   "Currency",
			Value:   "",
			Message: "statement has no currency; the default will be used",
		})
	}

	// A fitid repeated within one file means the bank's export is broken
	// and the dedup guarantees no longer hold.
	seen := make(map[string]bool)
	for _, txn := range stmt.Transactions {
		if txn.FitID == "" {
			continue
		}
		if seen[txn.FitID] {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txn.FitID,
				Field:   "FitID",
				Value:   txn.FitID,
				Message: "duplicate fitid within the same file",
			})
		}
		seen[txn.FitID] = true
	}

	for i, txn := range stmt.Transactions {
		id := txn.FitID
		if id == "" {
			id = fmt.Sprintf("row %d", i)
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "transaction",
				ID:      id,
				Field:   "FitID",
				Value:   "",
				Message: "transaction has no fitid and cannot be checked against prior imports",
			})
		}
		if txn.DatePosted.IsZero() {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "transaction",
				ID:      id,
				Field:   "DatePosted",
				Value:   "",
				Message: "transaction has no usable posted date",
			})
		}
		if txn.Amount.IsZero() {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "transaction",
				ID:      id,
				Field:   "Amount",
				Value:   "0",
				Message: "transaction amount is zero (possibly an unparseable value defaulted)",
			})
		}
		if txn.Description() == "" {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "transaction",
				ID:      id,
				Field:   "Memo",
				Value:   "",
				Message: "transaction has neither memo nor name",
			})
		}
	}

	return result
}
