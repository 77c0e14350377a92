package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/conciliar/ofximport/internal/domain"
)

// maxDescriptionLen caps stored descriptions; OFX memo fields from some
// banks run to kilobytes of promotional text.
const maxDescriptionLen = 255

const dateLayout = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS categories (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS entries (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	type        TEXT NOT NULL CHECK (type IN ('income', 'expense')),
	description TEXT NOT NULL,
	amount      TEXT NOT NULL,
	due_date    TEXT,
	reconciled  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS bank_transactions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id  TEXT NOT NULL,
	fitid       TEXT NOT NULL DEFAULT '',
	direction   TEXT NOT NULL CHECK (direction IN ('credit', 'debit')),
	posted_at   TEXT,
	amount      TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	memo        TEXT NOT NULL DEFAULT '',
	source_file TEXT NOT NULL DEFAULT '',
	reconciled  INTEGER NOT NULL DEFAULT 0,
	category_id INTEGER REFERENCES categories(id),
	entry_id    INTEGER REFERENCES entries(id),
	import_id   TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bank_transactions_fitid
	ON bank_transactions(account_id, fitid) WHERE fitid != '';

CREATE TABLE IF NOT EXISTS imports (
	id             TEXT PRIMARY KEY,
	account_id     TEXT NOT NULL,
	currency       TEXT NOT NULL,
	source_file    TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL DEFAULT '',
	total          INTEGER NOT NULL,
	imported       INTEGER NOT NULL,
	duplicates     INTEGER NOT NULL DEFAULT 0,
	entries_linked INTEGER NOT NULL,
	oldest_posted  TEXT,
	newest_posted  TEXT,
	balance_amount TEXT,
	balance_asof   TEXT,
	committed_at   TEXT NOT NULL
);
`

// SQLite is the Store implementation backing the CLI and the server.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and creates, if needed) the database at path and
// applies the schema. Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %q: %w", path, err)
	}

	// modernc sqlite serializes writes itself, but a single connection
	// keeps in-memory databases from silently becoming N databases.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema (is %q a database file?): %w", path, err)
	}

	return &SQLite{db: db}, nil
}

// Close releases the underlying connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for schema-aware callers (seeding, tests).
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// RecordedFitIDs returns the set of non-empty fitids already imported
// for the account.
func (s *SQLite) RecordedFitIDs(ctx context.Context, accountID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT fitid FROM bank_transactions WHERE account_id = ? AND fitid != ''", accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recorded fitids for account %q: %w", accountID, err)
	}
	defer rows.Close()

	recorded := make(map[string]struct{})
	for rows.Next() {
		var fitid string
		if err := rows.Scan(&fitid); err != nil {
			return nil, fmt.Errorf("failed to scan fitid row: %w", err)
		}
		recorded[fitid] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fitid rows: %w", err)
	}
	return recorded, nil
}

// OpenEntries returns ledger entries not yet reconciled, oldest due
// date first.
func (s *SQLite) OpenEntries(ctx context.Context) ([]domain.ExistingEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, type, description, amount, due_date FROM entries WHERE reconciled = 0 ORDER BY due_date, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query open entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.ExistingEntry
	for rows.Next() {
		var (
			id          int64
			typ         string
			description string
			rawAmount   string
			due         sql.NullString
		)
		if err := rows.Scan(&id, &typ, &description, &rawAmount, &due); err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		amount, err := decimal.NewFromString(rawAmount)
		if err != nil {
			return nil, fmt.Errorf("entry %d has unparseable amount %q: %w", id, rawAmount, err)
		}
		var dueDate time.Time
		if due.Valid && due.String != "" {
			dueDate, err = time.Parse(dateLayout, due.String)
			if err != nil {
				return nil, fmt.Errorf("entry %d has unparseable due date %q: %w", id, due.String, err)
			}
		}
		entry, err := domain.NewExistingEntry(id, domain.EntryType(typ), amount, dueDate, description)
		if err != nil {
			return nil, fmt.Errorf("entry %d is not usable for matching: %w", id, err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entry rows: %w", err)
	}
	return entries, nil
}

// Categories returns all categories ordered by name.
func (s *SQLite) Categories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var cat domain.Category
		if err := rows.Scan(&cat.ID, &cat.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		categories = append(categories, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read category rows: %w", err)
	}
	return categories, nil
}

// CommitImport records every row in the batch, settles linked entries,
// and writes the audit row, all in one transaction.
func (s *SQLite) CommitImport(ctx context.Context, batch *ImportBatch) (*ImportReceipt, error) {
	if batch.AccountID == "" {
		return nil, fmt.Errorf("cannot commit import without an account id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer tx.Rollback()

	receipt := &ImportReceipt{
		ImportID:    uuid.NewString(),
		AccountID:   batch.AccountID,
		SourceFile:  batch.SourceFile,
		Duplicates:  batch.Duplicates,
		CommittedAt: time.Now().UTC(),
	}

	for _, row := range batch.Rows {
		txn := row.Transaction

		var postedAt any
		if !txn.DatePosted.IsZero() {
			postedAt = txn.DatePosted.Format(dateLayout)
			if receipt.OldestPosted.IsZero() || txn.DatePosted.Before(receipt.OldestPosted) {
				receipt.OldestPosted = txn.DatePosted
			}
			if txn.DatePosted.After(receipt.NewestPosted) {
				receipt.NewestPosted = txn.DatePosted
			}
		}

		// Direction and magnitude are stored separately; the signed
		// amount is never persisted or summed.
		direction := "debit"
		if txn.IsCredit() {
			direction = "credit"
		}
		reconciled := 0
		if row.LinkedEntryID != nil {
			reconciled = 1
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO bank_transactions
				(account_id, fitid, direction, posted_at, amount, description, memo,
				 source_file, reconciled, category_id, entry_id, import_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			batch.AccountID, txn.FitID, direction, postedAt,
			txn.Amount.Abs().String(), truncate(txn.Description(), maxDescriptionLen),
			truncate(txn.Memo, maxDescriptionLen), batch.SourceFile, reconciled,
			row.CategoryID, row.LinkedEntryID, receipt.ImportID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert transaction %q: %w", txn.FitID, err)
		}

		if row.LinkedEntryID != nil {
			res, err := tx.ExecContext(ctx,
				"UPDATE entries SET reconciled = 1 WHERE id = ? AND reconciled = 0", *row.LinkedEntryID)
			if err != nil {
				return nil, fmt.Errorf("failed to settle entry %d: %w", *row.LinkedEntryID, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return nil, fmt.Errorf("failed to confirm entry %d settlement: %w", *row.LinkedEntryID, err)
			}
			if affected == 0 {
				return nil, fmt.Errorf("entry %d is missing or already settled; re-run the preview", *row.LinkedEntryID)
			}
			receipt.EntriesLinked++
		}

		receipt.Imported++
	}
	receipt.Total = receipt.Imported + receipt.Duplicates

	var balanceAmount, balanceAsOf any
	if batch.Balance != nil {
		balanceAmount = batch.Balance.Amount.String()
		if !batch.Balance.AsOf.IsZero() {
			balanceAsOf = batch.Balance.AsOf.Format(dateLayout)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO imports
			(id, account_id, currency, source_file, source, total, imported, duplicates,
			 entries_linked, oldest_posted, newest_posted, balance_amount, balance_asof, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		receipt.ImportID, batch.AccountID, batch.Currency, batch.SourceFile, batch.Source,
		receipt.Total, receipt.Imported, receipt.Duplicates, receipt.EntriesLinked,
		nullableDate(receipt.OldestPosted), nullableDate(receipt.NewestPosted),
		balanceAmount, balanceAsOf,
		receipt.CommittedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to write import audit row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}
	return receipt, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Cut on a rune boundary so multi-byte text is not split mid-character.
	cut := strings.ToValidUTF8(s[:max], "")
	return cut
}

func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}
