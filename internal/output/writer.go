// Package output renders previews and receipts as JSON, to stdout or a
// file, for piping into other tools or archiving next to the statement.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/conciliar/ofximport/internal/domain"
	"github.com/conciliar/ofximport/internal/pipeline"
	"github.com/conciliar/ofximport/internal/store"
)

// WriteOptions configures where the JSON goes
type WriteOptions struct {
	FilePath string // Output path (empty = stdout)
}

const dateLayout = "2006-01-02"

// PreviewDoc is the serialized form of a pipeline preview.
type PreviewDoc struct {
	AccountID  string           `json:"accountId"`
	Currency   string           `json:"currency"`
	Source     string           `json:"source"`
	SourceFile string           `json:"sourceFile,omitempty"`
	Candidates []CandidateDoc   `json:"candidates"`
	Duplicates []TxnDoc         `json:"duplicates"`
	Errors     []string         `json:"errors,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	Balance    *decimal.Decimal `json:"balance,omitempty"`
}

// CandidateDoc is one importable transaction with its preview decisions.
type CandidateDoc struct {
	TxnDoc
	Selected            bool       `json:"selected"`
	SuggestedCategoryID *int64     `json:"suggestedCategoryId,omitempty"`
	LinkedEntryID       *int64     `json:"linkedEntryId,omitempty"`
	Matches             []MatchDoc `json:"matches,omitempty"`
}

// TxnDoc is a serialized transaction.
type TxnDoc struct {
	FitID       string          `json:"fitid,omitempty"`
	Type        string          `json:"type,omitempty"`
	PostedAt    string          `json:"postedAt,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// MatchDoc is a proposed reconciliation target.
type MatchDoc struct {
	EntryID     int64           `json:"entryId"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     string          `json:"dueDate,omitempty"`
}

// NewPreviewDoc flattens a preview into its serializable form.
func NewPreviewDoc(p *pipeline.Preview) *PreviewDoc {
	doc := &PreviewDoc{
		AccountID:  p.AccountID,
		Currency:   p.Currency,
		Source:     string(p.Source),
		SourceFile: p.SourceFile,
		Candidates: make([]CandidateDoc, 0, len(p.Candidates)),
		Duplicates: make([]TxnDoc, 0, len(p.Duplicates)),
	}

	for _, c := range p.Candidates {
		cd := CandidateDoc{
			TxnDoc:              newTxnDoc(c.Transaction),
			Selected:            c.Selected,
			SuggestedCategoryID: c.SuggestedCategoryID,
			LinkedEntryID:       c.LinkedEntryID,
		}
		for _, m := range c.Matches {
			cd.Matches = append(cd.Matches, MatchDoc{
				EntryID:     m.ID,
				Type:        string(m.Type),
				Description: m.Description,
				Amount:      m.Amount,
				DueDate:     formatDate(m.DueDate),
			})
		}
		doc.Candidates = append(doc.Candidates, cd)
	}

	for _, txn := range p.Duplicates {
		doc.Duplicates = append(doc.Duplicates, newTxnDoc(txn))
	}

	if p.Validation != nil {
		for _, e := range p.Validation.Errors {
			doc.Errors = append(doc.Errors, fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Message))
		}
		for _, w := range p.Validation.Warnings {
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("%s %s: %s", w.Entity, w.ID, w.Message))
		}
	}

	if p.Balance != nil {
		amount := p.Balance.Amount
		doc.Balance = &amount
	}

	return doc
}

// ReceiptDoc is the serialized form of a commit receipt. Total counts
// transactions (imported + duplicates); amounts are never summed.
type ReceiptDoc struct {
	ImportID      string `json:"importId"`
	AccountID     string `json:"accountId"`
	SourceFile    string `json:"sourceFile,omitempty"`
	Total         int    `json:"total"`
	Imported      int    `json:"imported"`
	Duplicates    int    `json:"duplicates"`
	EntriesLinked int    `json:"entriesLinked"`
	OldestPosted  string `json:"oldestPosted,omitempty"`
	NewestPosted  string `json:"newestPosted,omitempty"`
	CommittedAt   string `json:"committedAt"`
}

// NewReceiptDoc flattens a receipt into its serializable form.
func NewReceiptDoc(r *store.ImportReceipt) *ReceiptDoc {
	return &ReceiptDoc{
		ImportID:      r.ImportID,
		AccountID:     r.AccountID,
		SourceFile:    r.SourceFile,
		Total:         r.Total,
		Imported:      r.Imported,
		Duplicates:    r.Duplicates,
		EntriesLinked: r.EntriesLinked,
		OldestPosted:  formatDate(r.OldestPosted),
		NewestPosted:  formatDate(r.NewestPosted),
		CommittedAt:   r.CommittedAt.Format(time.RFC3339),
	}
}

// WriteJSON serializes any document with 2-space indentation.
func WriteJSON(doc any, w io.Writer) error {
	if doc == nil {
		return fmt.Errorf("document cannot be nil")
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode document as JSON: %w", err)
	}

	return nil
}

// WriteJSONToFile writes the document to a file or stdout based on options
func WriteJSONToFile(doc any, opts WriteOptions) (err error) {
	if opts.FilePath == "" {
		return WriteJSON(doc, os.Stdout)
	}

	f, err := os.Create(opts.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", opts.FilePath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", opts.FilePath, closeErr)
		}
	}()

	if err = WriteJSON(doc, f); err != nil {
		return fmt.Errorf("failed to write document to %s: %w", opts.FilePath, err)
	}

	return nil
}

func newTxnDoc(txn domain.Transaction) TxnDoc {
	return TxnDoc{
		FitID:       txn.FitID,
		Type:        txn.Type,
		PostedAt:    formatDate(txn.DatePosted),
		Amount:      txn.Amount,
		Description: txn.Description(),
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
