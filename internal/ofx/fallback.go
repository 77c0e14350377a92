package ofx

import (
	"regexp"
	"strings"

	"github.com/conciliar/ofximport/internal/domain"
)

var (
	stmtTrnOpenRE  = regexp.MustCompile(`(?i)<STMTTRN>`)
	tranListEndRE  = regexp.MustCompile(`(?i)</BANKTRANLIST>`)
	fallbackTagREs = map[string]*regexp.Regexp{
		"TRNTYPE":  fallbackTagRE("TRNTYPE"),
		"DTPOSTED": fallbackTagRE("DTPOSTED"),
		"TRNAMT":   fallbackTagRE("TRNAMT"),
		"FITID":    fallbackTagRE("FITID"),
		"NAME":     fallbackTagRE("NAME"),
		"MEMO":     fallbackTagRE("MEMO"),
		"CHECKNUM": fallbackTagRE("CHECKNUM"),
		"REFNUM":   fallbackTagRE("REFNUM"),
		"ACCTID":   fallbackTagRE("ACCTID"),
		"ACCTTYPE": fallbackTagRE("ACCTTYPE"),
		"BANKID":   fallbackTagRE("BANKID"),
		"BRANCHID": fallbackTagRE("BRANCHID"),
		"CURDEF":   fallbackTagRE("CURDEF"),
		"BALAMT":   fallbackTagRE("BALAMT"),
		"DTASOF":   fallbackTagRE("DTASOF"),
	}
)

// fallbackTagRE captures the text after an opening tag, up to the next tag
// or end of line. It needs no closing tags at all.
func fallbackTagRE(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)<` + tag + `>[ \t]*([^<\r\n]+)`)
}

// Fallback extracts a Statement by scanning raw text with per-tag patterns.
// It is the last line of defense, invoked when the structural parse fails,
// and must never let a failure escape its own boundary: any internal panic
// yields a Statement with empty collections instead.
//
// Transactions lacking a FITID are discarded on this path; without the
// identifier their identity cannot be trusted. Account fields and a single
// balance figure are extracted from the whole document rather than
// per-block. The header mapping is always empty.
func Fallback(raw string) (stmt *domain.Statement) {
	stmt = &domain.Statement{
		Header:  map[string]string{},
		Account: domain.Account{Currency: domain.DefaultCurrency},
	}

	defer func() {
		if r := recover(); r != nil {
			stmt = &domain.Statement{
				Header:  map[string]string{},
				Account: domain.Account{Currency: domain.DefaultCurrency},
			}
		}
	}()

	if curdef := fallbackField(raw, "CURDEF"); curdef != "" {
		stmt.Account.Currency = strings.ToUpper(curdef)
	}
	stmt.Account.BankID = fallbackField(raw, "BANKID")
	stmt.Account.BranchID = fallbackField(raw, "BRANCHID")
	stmt.Account.ID = fallbackField(raw, "ACCTID")
	stmt.Account.Type = fallbackField(raw, "ACCTTYPE")

	if balAmt := fallbackField(raw, "BALAMT"); balAmt != "" {
		stmt.Balance = &domain.Balance{
			Amount: ParseAmount(balAmt),
			AsOf:   ParseDate(fallbackField(raw, "DTASOF")),
		}
	}

	for _, block := range transactionBlocks(raw) {
		fields := RawTransaction{
			Type:       fallbackField(block, "TRNTYPE"),
			DatePosted: fallbackField(block, "DTPOSTED"),
			Amount:     fallbackField(block, "TRNAMT"),
			FitID:      fallbackField(block, "FITID"),
			Name:       fallbackField(block, "NAME"),
			Memo:       fallbackField(block, "MEMO"),
			CheckNum:   fallbackField(block, "CHECKNUM"),
			RefNum:     fallbackField(block, "REFNUM"),
		}
		txn := fields.Normalize()
		if txn.FitID == "" {
			continue
		}
		stmt.Transactions = append(stmt.Transactions, txn)
	}
	sortTransactions(stmt.Transactions)

	return stmt
}

// transactionBlocks slices the raw text into per-transaction chunks: from
// one <STMTTRN> to the next, or to </BANKTRANLIST>, tolerating an
// unterminated final block.
func transactionBlocks(raw string) []string {
	opens := stmtTrnOpenRE.FindAllStringIndex(raw, -1)
	if opens == nil {
		return nil
	}

	blocks := make([]string, 0, len(opens))
	for i, open := range opens {
		start := open[1]
		end := len(raw)
		if i+1 < len(opens) {
			end = opens[i+1][0]
		}
		block := raw[start:end]
		if loc := tranListEndRE.FindStringIndex(block); loc != nil {
			block = block[:loc[0]]
		}
		blocks = append(blocks, block)
	}
	return blocks
}

func fallbackField(text, tag string) string {
	m := fallbackTagREs[tag].FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
