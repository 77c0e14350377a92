package ofx

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/conciliar/ofximport/internal/domain"
)

// RawTransaction carries the nine per-transaction fields exactly as read
// from the file, before any coercion.
type RawTransaction struct {
	Type       string
	DatePosted string
	Amount     string
	FitID      string
	Name       string
	Memo       string
	CheckNum   string
	RefNum     string
}

// Normalize coerces raw string fields into a canonical Transaction.
// Every coercion failure degrades to a default (zero time, zero amount,
// empty string) instead of raising: one bad row must never block import.
func (r RawTransaction) Normalize() domain.Transaction {
	return domain.Transaction{
		Type:       strings.TrimSpace(r.Type),
		DatePosted: ParseDate(r.DatePosted),
		Amount:     ParseAmount(r.Amount),
		FitID:      strings.TrimSpace(r.FitID),
		Name:       strings.TrimSpace(r.Name),
		Memo:       strings.TrimSpace(r.Memo),
		CheckNum:   strings.TrimSpace(r.CheckNum),
		RefNum:     strings.TrimSpace(r.RefNum),
	}
}

// ParseDate interprets an OFX date string as a calendar date.
//
// The bracketed timezone suffix (e.g. "20240115120000[-3:BRT]") is stripped
// and the remaining digits read positionally as YYYYMMDD, optionally
// followed by HHMMSS. The time-of-day portion is parsed but discarded:
// bank feeds are inconsistent about what it means, so posting is modeled
// as a date only. Fewer than 8 digits yields the zero time.
func ParseDate(s string) time.Time {
	if i := strings.IndexByte(s, '['); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)

	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		} else {
			break
		}
	}
	if len(digits) < 8 {
		return time.Time{}
	}

	year := atoi(digits[0:4])
	month := atoi(digits[4:6])
	day := atoi(digits[6:8])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != time.Month(month) {
		// time.Date normalized an impossible date such as Feb 30.
		return time.Time{}
	}
	return t
}

func atoi(digits []byte) int {
	n := 0
	for _, d := range digits {
		n = n*10 + int(d-'0')
	}
	return n
}

// ParseAmount interprets an OFX amount string as a signed decimal.
// Both "." and "," decimal separators are accepted (Brazilian exports use
// either). Non-numeric or absent input defaults to zero; this is the
// deliberate "do not block import over one bad row" policy, not a
// validation guarantee.
func ParseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}

	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			// "1.234,56": dots are thousands separators.
			s = strings.ReplaceAll(s, ".", "")
		}
		s = strings.ReplaceAll(s, ",", ".")
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// sortTransactions orders transactions descending by posted date. The sort
// is stable: ties keep their original relative order, and transactions
// with an unknown (zero) date sink to the end.
func sortTransactions(txns []domain.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].DatePosted.After(txns[j].DatePosted)
	})
}
