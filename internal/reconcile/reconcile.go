// Package reconcile proposes matches between imported bank transactions
// and open ledger entries. It only proposes: linking a match to an entry
// is always an explicit caller decision.
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/conciliar/ofximport/internal/domain"
)

// MaxDateDistanceDays is the widest gap between a transaction's posted
// date and an entry's due date that still counts as a match.
const MaxDateDistanceDays = 7

// amountTolerance is the relative amount slack, covering bank fees and
// rounding between what was agreed and what cleared.
var amountTolerance = decimal.NewFromFloat(0.01)

// Match returns the open entries that plausibly correspond to txn, in
// the order they were given. An entry qualifies when all three hold:
//
//   - direction agrees: credits match income entries, debits match
//     expense entries
//   - amounts agree within 1% of the transaction's absolute amount;
//     a zero-amount transaction matches only zero-amount entries
//   - the entry's due date is within MaxDateDistanceDays calendar days
//     of the posted date
//
// A transaction with no posted date matches nothing: a date-less match
// proposal would be noise the operator cannot act on.
func Match(txn domain.Transaction, entries []domain.ExistingEntry) []domain.ExistingEntry {
	if txn.DatePosted.IsZero() {
		return nil
	}

	direction := txn.EntryDirection()
	txnAmount := txn.Amount.Abs()

	var matches []domain.ExistingEntry
	for _, entry := range entries {
		if entry.Type != direction {
			continue
		}
		if !amountsAgree(txnAmount, entry.Amount) {
			continue
		}
		if !datesAgree(txn.DatePosted, entry.DueDate) {
			continue
		}
		matches = append(matches, entry)
	}
	return matches
}

func amountsAgree(txnAmount, entryAmount decimal.Decimal) bool {
	if txnAmount.IsZero() {
		return entryAmount.IsZero()
	}
	diff := entryAmount.Sub(txnAmount).Abs()
	return diff.Div(txnAmount).Cmp(amountTolerance) <= 0
}

func datesAgree(posted, due time.Time) bool {
	if due.IsZero() {
		return false
	}
	days := posted.Sub(due).Hours() / 24
	if days < 0 {
		days = -days
	}
	return days <= MaxDateDistanceDays
}
