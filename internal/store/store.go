// Package store persists import results and serves the lookups the
// import pipeline needs: recorded bank transaction IDs, open ledger
// entries, and the category table.
package store

import (
	"context"
	"time"

	"github.com/conciliar/ofximport/internal/domain"
)

// FitIDSource reports which bank transaction IDs have already been
// recorded for an account.
type FitIDSource interface {
	RecordedFitIDs(ctx context.Context, accountID string) (map[string]struct{}, error)
}

// EntrySource lists ledger entries still open for reconciliation.
type EntrySource interface {
	OpenEntries(ctx context.Context) ([]domain.ExistingEntry, error)
}

// CategorySource lists the known categories.
type CategorySource interface {
	Categories(ctx context.Context) ([]domain.Category, error)
}

// Recorder commits an import batch atomically: either every selected
// transaction, entry link, and the audit row land, or none do.
type Recorder interface {
	CommitImport(ctx context.Context, batch *ImportBatch) (*ImportReceipt, error)
}

// Store is the full persistence surface behind the import pipeline.
type Store interface {
	FitIDSource
	EntrySource
	CategorySource
	Recorder
}

// ImportRow is one transaction the operator chose to import, with the
// decisions made during preview attached.
type ImportRow struct {
	Transaction domain.Transaction
	CategoryID  *int64
	// LinkedEntryID marks an explicit operator decision to settle an
	// open entry with this transaction.
	LinkedEntryID *int64
}

// ImportBatch is everything CommitImport writes in one transaction.
type ImportBatch struct {
	AccountID string
	Currency  string
	// SourceFile is the name of the statement file the batch came from,
	// persisted on every transaction row and the audit row.
	SourceFile string
	// Source records how the statement was parsed ("structural" or
	// "fallback"); audit row only.
	Source string
	// Duplicates is how many transactions the preview filtered out as
	// already recorded; audit row only.
	Duplicates int
	Rows       []ImportRow
	// Balance is the statement's closing balance when the file carried
	// one; recorded on the audit row only.
	Balance *domain.Balance
}

// ImportReceipt summarizes a committed batch for display and audit.
// Total is a transaction count (imported + duplicates), never a sum of
// amounts.
type ImportReceipt struct {
	ImportID      string
	AccountID     string
	SourceFile    string
	Imported      int
	Duplicates    int
	Total         int
	EntriesLinked int
	OldestPosted  time.Time
	NewestPosted  time.Time
	CommittedAt   time.Time
}
