package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conciliar/ofximport/internal/domain"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *SQLite, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		_, err := s.DB().Exec(stmt)
		require.NoError(t, err)
	}
}

func TestOpenSQLite_SchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import.db")

	s1, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestSQLite_Categories(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		`INSERT INTO categories (name) VALUES ('Salários')`,
		`INSERT INTO categories (name) VALUES ('Aluguel')`,
	)

	cats, err := s.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Aluguel", cats[0].Name)
	assert.Equal(t, "Salários", cats[1].Name)
	assert.NotZero(t, cats[0].ID)
}

func TestSQLite_OpenEntries(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		`INSERT INTO entries (type, description, amount, due_date, reconciled)
		 VALUES ('income', 'Fatura 42', '201.50', '2024-01-18', 0)`,
		`INSERT INTO entries (type, description, amount, due_date, reconciled)
		 VALUES ('expense', 'Aluguel Janeiro', '1500.00', '2024-01-05', 1)`,
		`INSERT INTO entries (type, description, amount, due_date, reconciled)
		 VALUES ('expense', 'Sem vencimento', '10.00', NULL, 0)`,
	)

	entries, err := s.OpenEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2, "reconciled entries must be excluded")

	assert.Equal(t, domain.EntryTypeIncome, entries[0].Type)
	assert.Equal(t, "Fatura 42", entries[0].Description)
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("201.50")))
	assert.Equal(t, time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC), entries[0].DueDate)
	assert.True(t, entries[1].DueDate.IsZero(), "NULL due date scans as zero time")
}

func TestSQLite_CommitImport(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		`INSERT INTO categories (name) VALUES ('Combustível')`,
		`INSERT INTO entries (type, description, amount, due_date, reconciled)
		 VALUES ('income', 'Fatura 42', '201.50', '2024-01-18', 0)`,
	)

	catID := int64(1)
	entryID := int64(1)
	batch := &ImportBatch{
		AccountID:  "11111-1",
		Currency:   "BRL",
		SourceFile: "extrato-jan.ofx",
		Source:     "structural",
		Duplicates: 3,
		Rows: []ImportRow{
			{
				Transaction: domain.Transaction{
					Type:       "DEBIT",
					FitID:      "ABC123",
					Amount:     decimal.RequireFromString("-150.00"),
					DatePosted: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
					Memo:       "POSTO IPIRANGA 123",
				},
				CategoryID: &catID,
			},
			{
				Transaction: domain.Transaction{
					Type:       "CREDIT",
					FitID:      "DEF456",
					Amount:     decimal.RequireFromString("200.00"),
					DatePosted: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
					Name:       "TED RECEBIDA",
				},
				LinkedEntryID: &entryID,
			},
		},
		Balance: &domain.Balance{
			Amount: decimal.RequireFromString("1250.75"),
			AsOf:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		},
	}

	receipt, err := s.CommitImport(context.Background(), batch)
	require.NoError(t, err)

	assert.NotEmpty(t, receipt.ImportID)
	assert.Equal(t, "extrato-jan.ofx", receipt.SourceFile)
	assert.Equal(t, 2, receipt.Imported)
	assert.Equal(t, 3, receipt.Duplicates)
	assert.Equal(t, 5, receipt.Total, "total is a transaction count, not a sum")
	assert.Equal(t, 1, receipt.EntriesLinked)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), receipt.OldestPosted)
	assert.Equal(t, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), receipt.NewestPosted)

	recorded, err := s.RecordedFitIDs(context.Background(), "11111-1")
	require.NoError(t, err)
	assert.Contains(t, recorded, "ABC123")
	assert.Contains(t, recorded, "DEF456")

	// The linked entry is settled and no longer open.
	entries, err := s.OpenEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	var total, imported, duplicates int
	var sourceFile string
	require.NoError(t, s.DB().QueryRow(
		`SELECT source_file, total, imported, duplicates FROM imports WHERE id = ?`,
		receipt.ImportID).Scan(&sourceFile, &total, &imported, &duplicates))
	assert.Equal(t, "extrato-jan.ofx", sourceFile)
	assert.Equal(t, 5, total)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 3, duplicates)
}

func TestSQLite_CommitImport_RowShape(t *testing.T) {
	s := newTestStore(t)

	batch := &ImportBatch{
		AccountID:  "11111-1",
		Currency:   "BRL",
		SourceFile: "extrato-jan.ofx",
		Rows: []ImportRow{
			{
				Transaction: domain.Transaction{
					Type:       "DEBIT",
					FitID:      "ABC123",
					Amount:     decimal.RequireFromString("-150.00"),
					DatePosted: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
					Name:       "PIX PAGAMENTO",
					Memo:       "POSTO IPIRANGA 123",
				},
			},
		},
	}
	_, err := s.CommitImport(context.Background(), batch)
	require.NoError(t, err)

	var (
		direction, amount, description, memo, sourceFile string
		reconciled                                       int
	)
	require.NoError(t, s.DB().QueryRow(`
		SELECT direction, amount, description, memo, source_file, reconciled
		FROM bank_transactions WHERE fitid = 'ABC123'`).
		Scan(&direction, &amount, &description, &memo, &sourceFile, &reconciled))

	assert.Equal(t, "debit", direction, "the sign becomes a direction")
	assert.True(t, decimal.RequireFromString(amount).Equal(decimal.RequireFromString("150.00")),
		"the stored magnitude is absolute, got %s", amount)
	assert.Equal(t, "POSTO IPIRANGA 123", description)
	assert.Equal(t, "POSTO IPIRANGA 123", memo)
	assert.Equal(t, "extrato-jan.ofx", sourceFile)
	assert.Equal(t, 0, reconciled, "no entry link, no reconciled flag")
}

func TestSQLite_CommitImport_DuplicateFitIDRollsBack(t *testing.T) {
	s := newTestStore(t)

	batch := &ImportBatch{
		AccountID: "11111-1",
		Currency:  "BRL",
		Rows: []ImportRow{
			{Transaction: domain.Transaction{FitID: "ABC123", Amount: decimal.RequireFromString("-10.00")}},
		},
	}
	_, err := s.CommitImport(context.Background(), batch)
	require.NoError(t, err)

	// Same fitid again, bundled with a fresh transaction: nothing from
	// the second batch may survive the failure.
	batch2 := &ImportBatch{
		AccountID: "11111-1",
		Currency:  "BRL",
		Rows: []ImportRow{
			{Transaction: domain.Transaction{FitID: "NEW999", Amount: decimal.RequireFromString("-1.00")}},
			{Transaction: domain.Transaction{FitID: "ABC123", Amount: decimal.RequireFromString("-10.00")}},
		},
	}
	_, err = s.CommitImport(context.Background(), batch2)
	require.Error(t, err)

	recorded, err := s.RecordedFitIDs(context.Background(), "11111-1")
	require.NoError(t, err)
	assert.NotContains(t, recorded, "NEW999", "failed batch must roll back entirely")
}

func TestSQLite_CommitImport_EmptyFitIDsMayRepeat(t *testing.T) {
	s := newTestStore(t)

	batch := &ImportBatch{
		AccountID: "11111-1",
		Currency:  "BRL",
		Rows: []ImportRow{
			{Transaction: domain.Transaction{Amount: decimal.RequireFromString("-1.00")}},
			{Transaction: domain.Transaction{Amount: decimal.RequireFromString("-2.00")}},
		},
	}
	receipt, err := s.CommitImport(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.Imported, "the fitid uniqueness index must not apply to empty fitids")

	recorded, err := s.RecordedFitIDs(context.Background(), "11111-1")
	require.NoError(t, err)
	assert.Empty(t, recorded, "empty fitids are never reported as recorded")
}

func TestSQLite_CommitImport_SettledEntryRejected(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		`INSERT INTO entries (type, description, amount, due_date, reconciled)
		 VALUES ('income', 'Fatura 42', '201.50', '2024-01-18', 1)`,
	)

	entryID := int64(1)
	batch := &ImportBatch{
		AccountID: "11111-1",
		Currency:  "BRL",
		Rows: []ImportRow{
			{
				Transaction:   domain.Transaction{FitID: "ABC123", Amount: decimal.RequireFromString("200.00")},
				LinkedEntryID: &entryID,
			},
		},
	}

	_, err := s.CommitImport(context.Background(), batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already settled")
}

func TestSQLite_CommitImport_RequiresAccountID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CommitImport(context.Background(), &ImportBatch{})
	require.Error(t, err)
}
