// Package ofx parses OFX/QFX bank statements, tolerating the malformed
// SGML-style output real banks produce. Parsing is a two-stage pipeline:
// a structural parse over a normalized tag tree, with a regex text-scan
// fallback when the tree cannot be built.
package ofx

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrMalformedInput is returned when the input contains no <OFX> root tag.
// This is the one unrecoverable parse condition: without a root tag there
// is no body to scan, structurally or otherwise.
var ErrMalformedInput = errors.New("no <OFX> root tag found in input")

// leafTags is the fixed set of tag names known to appear without closing
// tags in OFX v1 (SGML) files. For each occurrence the normalizer inserts
// a synthetic closing tag before the next opening tag.
var leafTags = []string{
	"TRNTYPE", "DTPOSTED", "DTUSER", "DTAVAIL", "TRNAMT", "FITID",
	"NAME", "MEMO", "CHECKNUM", "REFNUM", "TRNUID",
	"CODE", "SEVERITY", "MESSAGE",
	"DTSERVER", "LANGUAGE", "ORG", "FID",
	"DTSTART", "DTEND",
	"BANKID", "BRANCHID", "ACCTID", "ACCTTYPE", "CURDEF",
	"BALAMT", "DTASOF",
}

var (
	rootTagRE    = regexp.MustCompile(`(?i)<OFX>`)
	interTagWSRE = regexp.MustCompile(`>\s+<`)

	// One pattern per leaf tag. The optional closing-tag group makes the
	// rewrite idempotent: an already-closed tag is re-emitted with exactly
	// one closing tag instead of gaining a second.
	leafTagREs = buildLeafTagREs()
)

type leafTagRE struct {
	re          *regexp.Regexp
	replacement string
}

func buildLeafTagREs() []leafTagRE {
	res := make([]leafTagRE, 0, len(leafTags))
	for _, tag := range leafTags {
		res = append(res, leafTagRE{
			re:          regexp.MustCompile(`(?i)<` + tag + `>([^<]*)(</` + tag + `>)?`),
			replacement: "<" + tag + ">${1}</" + tag + ">",
		})
	}
	return res
}

// Normalized is the output of the format normalizer: the SGML prologue and
// a tag-closed body ready for tree parsing. Best effort only; downstream
// parsing must still tolerate residual malformation.
type Normalized struct {
	Header string
	Body   string
}

// Normalize splits raw OFX text into header and body and rewrites the body
// into well-formed-enough markup. Returns ErrMalformedInput when the <OFX>
// root tag is absent.
func Normalize(raw string) (*Normalized, error) {
	loc := rootTagRE.FindStringIndex(raw)
	if loc == nil {
		return nil, fmt.Errorf("normalizing %d bytes of input: %w", len(raw), ErrMalformedInput)
	}

	header := raw[:loc[0]]
	body := raw[loc[0]:]

	// Collapse whitespace strictly between adjacent tags so inconsistent
	// line endings cannot confuse the tree parser. Text content keeps its
	// internal whitespace.
	body = interTagWSRE.ReplaceAllString(body, "><")

	for _, lt := range leafTagREs {
		body = lt.re.ReplaceAllString(body, lt.replacement)
	}

	return &Normalized{Header: header, Body: body}, nil
}

// ParseHeader splits the SGML prologue into key/value pairs. Each line is
// split on the first colon; blank or malformed lines are ignored.
func ParseHeader(header string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(header, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(key) == "" {
			continue
		}
		result[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return result
}

// decodeCharset transcodes raw statement bytes to UTF-8 using the charset
// declared in the SGML prologue. Brazilian bank exports commonly declare
// CHARSET:1252 or ENCODING:ISO-8859-1; undeclared non-UTF-8 input falls
// back to Latin-1 so accented descriptions survive rather than being
// replaced with U+FFFD by the XML decoder.
func decodeCharset(data []byte) string {
	prologue := data
	if loc := rootTagRE.FindIndex(data); loc != nil {
		prologue = data[:loc[0]]
	}
	decl := strings.ToUpper(string(prologue))

	switch {
	case strings.Contains(decl, "1252"):
		if out, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil {
			return string(out)
		}
	case strings.Contains(decl, "8859-1"), strings.Contains(decl, "LATIN1"):
		if out, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
			return string(out)
		}
	}

	if !utf8.Valid(data) {
		if out, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
			return string(out)
		}
	}
	return string(data)
}
