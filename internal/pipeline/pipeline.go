// Package pipeline orchestrates a statement import end to end: parse,
// validate, deduplicate, suggest categories, propose reconciliation
// matches, and finally commit what the operator selected.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/conciliar/ofximport/internal/dedup"
	"github.com/conciliar/ofximport/internal/domain"
	"github.com/conciliar/ofximport/internal/ofx"
	"github.com/conciliar/ofximport/internal/reconcile"
	"github.com/conciliar/ofximport/internal/rules"
	"github.com/conciliar/ofximport/internal/store"
	"github.com/conciliar/ofximport/internal/validate"
)

// ErrNothingSelected is returned by Commit when no candidate in the
// preview is selected. Distinct from a failure: there was simply
// nothing to do.
var ErrNothingSelected = errors.New("nothing selected to import")

// Preview is everything the operator needs to decide what to import.
// Nothing in it has been written anywhere.
type Preview struct {
	AccountID  string
	Currency   string
	Source     ofx.Source
	SourceFile string
	Candidates []domain.ImportCandidate
	Duplicates []domain.Transaction
	Validation *validate.ValidationResult
	Balance    *domain.Balance
}

// Importer runs imports against a Store using a keyword engine for
// category suggestions.
type Importer struct {
	store  store.Store
	engine *rules.Engine
	opts   ofx.Options
}

// NewImporter creates an import pipeline.
func NewImporter(st store.Store, engine *rules.Engine, opts ofx.Options) *Importer {
	return &Importer{
		store:  st,
		engine: engine,
		opts:   opts,
	}
}

// Parse runs the two-stage statement parse over raw file bytes.
func (imp *Importer) Parse(data []byte) (*ofx.Result, error) {
	result, err := ofx.Parse(data, imp.opts)
	if err != nil {
		return nil, fmt.Errorf("parsing statement: %w", err)
	}
	return result, nil
}

// ParseFile reads and parses a statement file from disk. The file's base
// name is carried on the result for the commit audit trail.
func (imp *Importer) ParseFile(path string) (*ofx.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement file: %w", err)
	}
	result, err := imp.Parse(data)
	if err != nil {
		return nil, err
	}
	result.SourceFile = filepath.Base(path)
	return result, nil
}

// Preview classifies a parsed statement against the store: duplicates
// are split off by fitid, every remaining transaction becomes a
// selected candidate with a category suggestion and any plausible open
// entry matches attached.
//
// accountID overrides the account identity from the file when non-empty;
// files recovered by the fallback extractor often carry none.
func (imp *Importer) Preview(ctx context.Context, result *ofx.Result, accountID string) (*Preview, error) {
	stmt := result.Statement

	if accountID == "" {
		accountID = stmt.Account.ID
	}
	if accountID == "" {
		return nil, fmt.Errorf("statement carries no account ID and none was provided")
	}
	currency := stmt.Account.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	// Validate with the override applied so a repaired account identity
	// does not surface as an error the operator cannot act on.
	checked := *stmt
	checked.Account.ID = accountID
	validation := validate.ValidateStatement(&checked)

	recorded, err := imp.store.RecordedFitIDs(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("loading recorded transactions for account %q: %w", accountID, err)
	}
	partition := dedup.Partition(stmt.Transactions, recorded)

	categories, err := imp.store.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}
	entries, err := imp.store.OpenEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading open entries: %w", err)
	}

	candidates := make([]domain.ImportCandidate, 0, len(partition.New))
	for _, txn := range partition.New {
		candidate := domain.NewImportCandidate(txn)
		candidate.SuggestedCategoryID = imp.engine.Suggest(txn.Description(), categories)
		candidate.Matches = reconcile.Match(txn, entries)
		candidates = append(candidates, candidate)
	}

	return &Preview{
		AccountID:  accountID,
		Currency:   currency,
		Source:     result.Source,
		SourceFile: result.SourceFile,
		Candidates: candidates,
		Duplicates: partition.Duplicates,
		Validation: validation,
		Balance:    stmt.Balance,
	}, nil
}

// Commit writes the selected candidates from a preview. Candidates with
// Selected false are skipped; a linked entry on a selected candidate is
// settled atomically with the insert. Returns the store's receipt.
func (imp *Importer) Commit(ctx context.Context, preview *Preview) (*store.ImportReceipt, error) {
	batch := &store.ImportBatch{
		AccountID:  preview.AccountID,
		Currency:   preview.Currency,
		SourceFile: preview.SourceFile,
		Source:     string(preview.Source),
		Duplicates: len(preview.Duplicates),
		Balance:    preview.Balance,
	}

	for _, candidate := range preview.Candidates {
		if !candidate.Selected {
			continue
		}
		batch.Rows = append(batch.Rows, store.ImportRow{
			Transaction:   candidate.Transaction,
			CategoryID:    candidate.SuggestedCategoryID,
			LinkedEntryID: candidate.LinkedEntryID,
		})
	}

	if len(batch.Rows) == 0 {
		return nil, ErrNothingSelected
	}

	receipt, err := imp.store.CommitImport(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("committing import: %w", err)
	}
	return receipt, nil
}
