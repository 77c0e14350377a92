package ofx

import (
	"strings"

	"github.com/conciliar/ofximport/internal/domain"
)

// ParseStatement walks the normalized markup tree and extracts a complete
// Statement. A tree-construction error is returned to the caller, which is
// expected to fall back to the text-scan extractor rather than fail the
// import. Extraction failures on a single transaction degrade that
// transaction's fields to defaults; they never abort the statement.
func ParseStatement(normalized *Normalized) (*domain.Statement, error) {
	root, err := parseTree(normalized.Body)
	if err != nil {
		return nil, err
	}

	stmt := &domain.Statement{
		Header:  ParseHeader(normalized.Header),
		Account: extractAccount(root),
	}

	for _, trn := range root.findAll("STMTTRN") {
		raw := RawTransaction{
			Type:       trn.childText("TRNTYPE"),
			DatePosted: trn.childText("DTPOSTED"),
			Amount:     trn.childText("TRNAMT"),
			FitID:      trn.childText("FITID"),
			Name:       trn.childText("NAME"),
			Memo:       trn.childText("MEMO"),
			CheckNum:   trn.childText("CHECKNUM"),
			RefNum:     trn.childText("REFNUM"),
		}
		stmt.Transactions = append(stmt.Transactions, raw.Normalize())
	}
	sortTransactions(stmt.Transactions)

	stmt.Balance = extractBalance(root, "LEDGERBAL")
	stmt.AvailableBalance = extractBalance(root, "AVAILBAL")

	return stmt, nil
}

// extractAccount reads the checking/savings account block first, then the
// credit-card block. The currency default applies when CURDEF is missing.
func extractAccount(root *node) domain.Account {
	account := domain.Account{Currency: domain.DefaultCurrency}

	if curdef := root.childText("CURDEF"); curdef != "" {
		account.Currency = strings.ToUpper(curdef)
	}

	if bank := root.find("BANKACCTFROM"); bank != nil {
		account.BankID = bank.childText("BANKID")
		account.BranchID = bank.childText("BRANCHID")
		account.ID = bank.childText("ACCTID")
		account.Type = bank.childText("ACCTTYPE")
		return account
	}

	if cc := root.find("CCACCTFROM"); cc != nil {
		account.ID = cc.childText("ACCTID")
		account.Type = "CREDITCARD"
	}
	return account
}

// extractBalance reads one balance block (LEDGERBAL or AVAILBAL). Each is
// independently optional; a block without a parseable amount still yields
// a balance of zero so the as-of date is not lost.
func extractBalance(root *node, tag string) *domain.Balance {
	block := root.find(tag)
	if block == nil {
		return nil
	}
	return &domain.Balance{
		Amount: ParseAmount(block.childText("BALAMT")),
		AsOf:   ParseDate(block.childText("DTASOF")),
	}
}
