package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/conciliar/ofximport/internal/ofx"
	"github.com/conciliar/ofximport/internal/output"
	"github.com/conciliar/ofximport/internal/pipeline"
	"github.com/conciliar/ofximport/internal/rules"
	"github.com/conciliar/ofximport/internal/scanner"
	"github.com/conciliar/ofximport/internal/server"
	"github.com/conciliar/ofximport/internal/store"
	"github.com/conciliar/ofximport/internal/ui"
)

const (
	version = "0.1.0"
)

var (
	// Global flags
	versionFlag = flag.Bool("version", false, "Show version")

	// Core CLI flags
	input   = flag.String("input", "", "Statement file or directory of statements (required unless -serve)")
	account = flag.String("account", "", "Account ID override (required when the file carries none)")
	dbPath  = flag.String("db", "import.db", "SQLite database path")
	dryRun  = flag.Bool("dry-run", false, "Preview only, write nothing")
	commit  = flag.Bool("commit", false, "Commit every non-duplicate transaction")
	verbose = flag.Bool("verbose", false, "Show detailed logs")

	// Output and rules flags
	outputFile = flag.String("output", "", "Preview/receipt JSON file (default: stdout)")
	rulesFile  = flag.String("rules", "", "Category keyword rules file (default: embedded)")

	// Parse policy flags
	fallbackOnEmpty = flag.Bool("fallback-on-empty", false, "Re-scan with the fallback extractor when a parse yields zero transactions")

	// Server flags
	serve     = flag.Bool("serve", false, "Run the import API server instead of a one-shot import")
	addr      = flag.String("addr", ":8080", "Server listen address")
	authToken = flag.String("token", "", "Server bearer token (empty disables auth)")
	origin    = flag.String("origin", "", "CORS origin (empty allows any)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `ofximport - OFX/QFX bank statement importer

Usage:
  ofximport [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Preview a statement without writing anything
  ofximport -input extrato.ofx -dry-run

  # Import every new transaction into the database
  ofximport -input extrato.ofx -db contas.db -commit

  # Import a directory tree with an account override
  ofximport -input ~/extratos -account 11111-1 -commit

  # Run the HTTP API
  ofximport -serve -db contas.db -token secret

`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("ofximport version %s\n", version)
		os.Exit(0)
	}

	if *serve {
		if err := runServer(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *input == "" {
		fmt.Fprintf(os.Stderr, "Error: -input flag is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if *dryRun && *commit {
		fmt.Fprintf(os.Stderr, "Error: -dry-run and -commit are mutually exclusive\n")
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() error {
	s, err := server.New(server.Config{
		DBPath:    *dbPath,
		RulesPath: *rulesFile,
		AuthToken: *authToken,
		Origin:    *origin,
		ParseOpts: ofx.Options{RetryEmptyWithFallback: *fallbackOnEmpty},
	})
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(os.Stderr, "Listening on %s\n", *addr)
	return http.ListenAndServe(*addr, s.Handler())
}

func run() error {
	ctx := context.Background()

	if !*verbose {
		ui.Header("OFX Statement Import")
		ui.Step(1, 4, "Locating statement files")
	}

	if *dryRun {
		ui.YellowText("Dry run: the database will not be modified.")
	}

	files, err := statementFiles(*input)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no statement files found at %s\n\nPlease check:\n  - The path is correct\n  - Files have supported extensions (.ofx, .qfx)\n  - You have read permissions", *input)
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "Found %d statement files\n", len(files))
		for _, f := range files {
			if f.Metadata.Bank != "" {
				fmt.Fprintf(os.Stderr, "  - %s (%s, account %s)\n", f.Path, f.Metadata.Bank, f.Metadata.AccountID)
			} else {
				fmt.Fprintf(os.Stderr, "  - %s\n", f.Path)
			}
		}
	} else {
		ui.Success(fmt.Sprintf("Found %d statement file(s)", len(files)))
	}

	if !*verbose {
		ui.Step(2, 4, "Opening database and rules")
	}
	st, err := store.OpenSQLite(*dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	var engine *rules.Engine
	if *rulesFile != "" {
		engine, err = rules.LoadFromFile(*rulesFile)
	} else {
		engine, err = rules.LoadEmbedded()
	}
	if err != nil {
		return err
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "Loaded %d keyword rules\n", len(engine.GetRules()))
	}

	importer := pipeline.NewImporter(st, engine, ofx.Options{RetryEmptyWithFallback: *fallbackOnEmpty})

	if !*verbose {
		ui.Step(3, 4, "Parsing and classifying transactions")
	}

	var failures int
	for _, f := range files {
		// The -account flag wins; otherwise the directory layout's
		// account hint covers files whose own account block is missing.
		acct := *account
		if acct == "" {
			acct = f.Metadata.AccountID
		}
		if err := importFile(ctx, importer, f.Path, acct); err != nil {
			failures++
			ui.Error(fmt.Sprintf("%s: %v", f.Path, err))
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failures, len(files))
	}
	return nil
}

func importFile(ctx context.Context, importer *pipeline.Importer, path, account string) error {
	result, err := importer.ParseFile(path)
	if err != nil {
		return err
	}
	if result.Source == ofx.SourceFallback {
		ui.Warning(fmt.Sprintf("%s: structural parse failed, used fallback extraction", path))
		if *verbose && result.StructuralErr != nil {
			fmt.Fprintf(os.Stderr, "  structural error: %v\n", result.StructuralErr)
		}
	}

	preview, err := importer.Preview(ctx, result, account)
	if err != nil {
		return err
	}

	for _, w := range preview.Validation.Warnings {
		ui.Warning(fmt.Sprintf("%s %s: %s", w.Entity, w.ID, w.Message))
	}
	if preview.Validation.HasErrors() {
		for _, e := range preview.Validation.Errors {
			ui.Error(fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Message))
		}
		return fmt.Errorf("statement failed validation with %d error(s)", len(preview.Validation.Errors))
	}

	ui.Info(fmt.Sprintf("%d new transaction(s), %d duplicate(s) skipped",
		len(preview.Candidates), len(preview.Duplicates)))

	if !*commit {
		if !*verbose {
			ui.Step(4, 4, "Writing preview")
		}
		ui.BlueText("Preview only; nothing was written. Re-run with -commit to import.")
		return output.WriteJSONToFile(output.NewPreviewDoc(preview), output.WriteOptions{FilePath: *outputFile})
	}

	if !*verbose {
		ui.Step(4, 4, "Committing import")
	}
	receipt, err := importer.Commit(ctx, preview)
	if err != nil {
		if errors.Is(err, pipeline.ErrNothingSelected) {
			ui.Info("Nothing new to import.")
			return nil
		}
		return err
	}

	ui.Success(fmt.Sprintf("Imported %d transaction(s), linked %d entry(ies) (import %s)",
		receipt.Imported, receipt.EntriesLinked, receipt.ImportID))
	return output.WriteJSONToFile(output.NewReceiptDoc(receipt), output.WriteOptions{FilePath: *outputFile})
}

// statementFiles resolves -input to a list of statement files: the file
// itself, or a scan when it is a directory. Scanned files carry the
// bank/account hints their directory layout encodes.
func statementFiles(path string) ([]scanner.ScanResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if !info.IsDir() {
		return []scanner.ScanResult{{Path: path}}, nil
	}
	return scanner.New(path).Scan()
}
