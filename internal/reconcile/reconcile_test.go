package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/conciliar/ofximport/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func entry(id int64, typ domain.EntryType, amount string, due time.Time) domain.ExistingEntry {
	return domain.ExistingEntry{
		ID:      id,
		Type:    typ,
		Amount:  decimal.RequireFromString(amount),
		DueDate: due,
	}
}

func TestMatch(t *testing.T) {
	credit := domain.Transaction{
		Amount:     decimal.RequireFromString("200.00"),
		DatePosted: date(2024, 1, 20),
	}

	tests := []struct {
		name    string
		txn     domain.Transaction
		entries []domain.ExistingEntry
		wantIDs []int64
	}{
		{
			name: "within tolerance and window",
			txn:  credit,
			entries: []domain.ExistingEntry{
				entry(1, domain.EntryTypeIncome, "201.50", date(2024, 1, 18)),
			},
			wantIDs: []int64{1},
		},
		{
			name: "amount outside tolerance",
			txn:  credit,
			entries: []domain.ExistingEntry{
				entry(1, domain.EntryTypeIncome, "210.00", date(2024, 1, 18)),
			},
			wantIDs: nil,
		},
		{
			name: "direction must agree",
			txn:  credit,
			entries: []domain.ExistingEntry{
				entry(1, domain.EntryTypeExpense, "200.00", date(2024, 1, 20)),
			},
			wantIDs: nil,
		},
		{
			name: "debit matches expense",
			txn: domain.Transaction{
				Amount:     decimal.RequireFromString("-150.00"),
				DatePosted: date(2024, 1, 15),
			},
			entries: []domain.ExistingEntry{
				entry(1, domain.EntryTypeExpense, "150.00", date(2024, 1, 15)),
				entry(2, domain.EntryTypeIncome, "150.00", date(2024, 1, 15)),
			},
			wantIDs: []int64{1},
		},
		{
			name: "seven days is inside the window",
			txn:  credit,
			entries: []domain.ExistingEntry{
				entry(1, domain.EntryTypeIncome, "200.00", date(2024, 1, 13)),
				entry(2, domain.EntryTypeIncome, "200.00", date(2024, 1, 27)),
			},
			wantIDs: []int64{1, 2},
		},
		{
			name: "eight days is outside the window",
			txn:  credit,
			entries: []domain.ExistingEntry{
				entry(1, domain.EntryTypeIncome, "200.00", date(2024, 1, 12)),
				entry(2, domain.EntryTypeIncome, "200.00", date(2024, 1, 28)),
			},
			wantIDs: nil,
		},
		{
			name: "multiple candidates keep input order",
			txn:  credit,
			entries: []domain.ExistingEntry{
				entry(3, domain.EntryTypeIncome, "199.00", date(2024, 1, 22)),
				entry(1, domain.EntryTypeIncome, "200.00", date(2024, 1, 20)),
				entry(2, domain.EntryTypeIncome, "202.00", date(2024, 1, 19)),
			},
			wantIDs: []int64{3, 1, 2},
		},
		{
			name: "entry without due date never matches",
			txn:  credit,
			entries: []domain.ExistingEntry{
				entry(1, domain.EntryTypeIncome, "200.00", time.Time{}),
			},
			wantIDs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.txn, tt.entries)
			gotIDs := ids(got)
			if !equalIDs(gotIDs, tt.wantIDs) {
				t.Errorf("Match() = %v, want %v", gotIDs, tt.wantIDs)
			}
		})
	}
}

func TestMatch_ZeroAmountRequiresExactMatch(t *testing.T) {
	txn := domain.Transaction{
		Amount:     decimal.Zero,
		DatePosted: date(2024, 1, 20),
	}
	entries := []domain.ExistingEntry{
		entry(1, domain.EntryTypeExpense, "0.00", date(2024, 1, 20)),
		entry(2, domain.EntryTypeExpense, "0.01", date(2024, 1, 20)),
	}

	got := Match(txn, entries)
	if gotIDs := ids(got); !equalIDs(gotIDs, []int64{1}) {
		t.Errorf("Match(zero amount) = %v, want only the exactly-zero entry", gotIDs)
	}
}

func TestMatch_ZeroDateMatchesNothing(t *testing.T) {
	txn := domain.Transaction{
		Amount: decimal.RequireFromString("-150.00"),
	}
	entries := []domain.ExistingEntry{
		entry(1, domain.EntryTypeExpense, "150.00", date(2024, 1, 15)),
	}

	if got := Match(txn, entries); got != nil {
		t.Errorf("Match(no posted date) = %v, want nil", got)
	}
}

func ids(entries []domain.ExistingEntry) []int64 {
	if entries == nil {
		return nil
	}
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
