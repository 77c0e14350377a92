package dedup

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/conciliar/ofximport/internal/domain"
)

func txn(fitid string, amount string) domain.Transaction {
	return domain.Transaction{
		FitID:  fitid,
		Amount: decimal.RequireFromString(amount),
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name           string
		txns           []domain.Transaction
		recorded       map[string]struct{}
		wantNew        []string // fitids, in order
		wantDuplicates []string
	}{
		{
			name:           "all new against empty history",
			txns:           []domain.Transaction{txn("A", "-10.00"), txn("B", "20.00")},
			recorded:       map[string]struct{}{},
			wantNew:        []string{"A", "B"},
			wantDuplicates: []string{},
		},
		{
			name:           "re-import is all duplicates",
			txns:           []domain.Transaction{txn("ABC123", "-150.00")},
			recorded:       map[string]struct{}{"ABC123": {}},
			wantNew:        []string{},
			wantDuplicates: []string{"ABC123"},
		},
		{
			name:           "mixed preserves input order",
			txns:           []domain.Transaction{txn("A", "-1.00"), txn("B", "-2.00"), txn("C", "-3.00")},
			recorded:       map[string]struct{}{"B": {}},
			wantNew:        []string{"A", "C"},
			wantDuplicates: []string{"B"},
		},
		{
			name:           "missing fitid is never a duplicate",
			txns:           []domain.Transaction{txn("", "-5.00"), txn("", "-5.00")},
			recorded:       map[string]struct{}{"": {}},
			wantNew:        []string{"", ""},
			wantDuplicates: []string{},
		},
		{
			name:           "nil recorded set",
			txns:           []domain.Transaction{txn("A", "-1.00")},
			recorded:       nil,
			wantNew:        []string{"A"},
			wantDuplicates: []string{},
		},
		{
			name:           "empty input",
			txns:           nil,
			recorded:       map[string]struct{}{"A": {}},
			wantNew:        []string{},
			wantDuplicates: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Partition(tt.txns, tt.recorded)

			if len(result.New)+len(result.Duplicates) != len(tt.txns) {
				t.Errorf("partition is not strict: %d new + %d duplicates != %d inputs",
					len(result.New), len(result.Duplicates), len(tt.txns))
			}

			gotNew := fitids(result.New)
			if !equal(gotNew, tt.wantNew) {
				t.Errorf("New = %v, want %v", gotNew, tt.wantNew)
			}
			gotDup := fitids(result.Duplicates)
			if !equal(gotDup, tt.wantDuplicates) {
				t.Errorf("Duplicates = %v, want %v", gotDup, tt.wantDuplicates)
			}
		})
	}
}

func TestResult_Unverifiable(t *testing.T) {
	result := Partition([]domain.Transaction{
		txn("A", "-1.00"),
		txn("", "-2.00"),
		txn("B", "-3.00"),
		txn("", "-4.00"),
	}, map[string]struct{}{"A": {}})

	got := result.Unverifiable()
	if len(got) != 2 {
		t.Fatalf("got %d unverifiable transactions, want 2", len(got))
	}
	if !got[0].Amount.Equal(decimal.RequireFromString("-2.00")) ||
		!got[1].Amount.Equal(decimal.RequireFromString("-4.00")) {
		t.Errorf("Unverifiable() = %v, want the two fitid-less transactions in order", got)
	}
}

func fitids(txns []domain.Transaction) []string {
	out := make([]string, len(txns))
	for i, t := range txns {
		out[i] = t.FitID
	}
	return out
}

func equal(a, b []string) bool {
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
