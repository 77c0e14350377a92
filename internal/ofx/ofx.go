package ofx

import (
	"github.com/conciliar/ofximport/internal/domain"
)

// Source tags which stage of the two-stage pipeline produced a statement.
type Source string

const (
	// SourceStructural means the normalized markup parsed as a tree.
	SourceStructural Source = "structural"
	// SourceFallback means the tree parse failed and the text-scan
	// extractor produced the statement.
	SourceFallback Source = "fallback"
)

// Options controls parse behavior left to caller policy.
type Options struct {
	// RetryEmptyWithFallback re-invokes the fallback extractor when the
	// structural parse succeeds but yields zero transactions. A successful
	// parse with zero results on a non-trivial file is suspicious, but
	// whether to retry is a caller policy choice, so it defaults to off.
	RetryEmptyWithFallback bool
}

// Result is the tagged outcome of a full parse.
type Result struct {
	Statement *domain.Statement
	Source    Source
	// SourceFile is the name of the file the bytes came from. The parser
	// never learns it; callers that know the origin set it so the commit
	// audit trail can record provenance.
	SourceFile string
	// StructuralErr records why the structural stage was abandoned when
	// Source is SourceFallback. Diagnostic only; the fallback already
	// recovered the failure.
	StructuralErr error
}

// Parse runs the full two-stage pipeline over raw statement bytes:
// charset decode, normalization, structural parse, and the text-scan
// fallback when tree construction fails. The only error it returns wraps
// ErrMalformedInput; every other failure degrades to a smaller or
// lower-confidence statement.
func Parse(data []byte, opts Options) (*Result, error) {
	raw := decodeCharset(data)

	normalized, err := Normalize(raw)
	if err != nil {
		return nil, err
	}

	stmt, structuralErr := ParseStatement(normalized)
	if structuralErr != nil {
		return &Result{
			Statement:     Fallback(raw),
			Source:        SourceFallback,
			StructuralErr: structuralErr,
		}, nil
	}

	if len(stmt.Transactions) == 0 && opts.RetryEmptyWithFallback {
		if retry := Fallback(raw); len(retry.Transactions) > 0 {
			return &Result{Statement: retry, Source: SourceFallback}, nil
		}
	}

	return &Result{Statement: stmt, Source: SourceStructural}, nil
}
