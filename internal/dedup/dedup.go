// Package dedup partitions parsed transactions against previously
// recorded bank transaction IDs so re-importing a statement never
// duplicates entries.
package dedup

import (
	"github.com/conciliar/ofximport/internal/domain"
)

// Result is a strict partition of the input: every transaction lands in
// exactly one of New or Duplicates, in input order.
type Result struct {
	New        []domain.Transaction
	Duplicates []domain.Transaction
}

// Partition splits transactions by fitid against the recorded set.
//
// A transaction is a duplicate only when its fitid is non-empty and
// present in recorded. Transactions without a fitid can never be proven
// duplicates, so they are always classified as new; Unverifiable exposes
// them so callers can surface the risk instead of silently re-importing.
func Partition(txns []domain.Transaction, recorded map[string]struct{}) Result {
	result := Result{
		New:        make([]domain.Transaction, 0, len(txns)),
		Duplicates: make([]domain.Transaction, 0),
	}

	for _, txn := range txns {
		if txn.FitID != "" {
			if _, seen := recorded[txn.FitID]; seen {
				result.Duplicates = append(result.Duplicates, txn)
				continue
			}
		}
		result.New = append(result.New, txn)
	}

	return result
}

// Unverifiable returns the subset of New that carries no fitid. These
// were admitted under the conservative default and may repeat entries
// already on file.
func (r Result) Unverifiable() []domain.Transaction {
	var out []domain.Transaction
	for _, txn := range r.New {
		if txn.FitID == "" {
			out = append(out, txn)
		}
	}
	return out
}
