// Package scanner walks a directory tree and finds OFX/QFX statement
// files, inferring bank and account hints from the directory layout.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Scanner walks a directory tree and finds statement files
type Scanner struct {
	rootDir string
}

// New creates a new scanner for the given root directory
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir}
}

// Metadata is what the directory layout says about a statement file
// before the file itself is parsed. Hints only; the file's own account
// block wins when present.
type Metadata struct {
	FilePath   string
	Bank       string
	AccountID  string
	Period     string
	DetectedAt time.Time
}

// ScanResult represents a found file with metadata
type ScanResult struct {
	Path     string
	Metadata Metadata
}

// Scan walks the directory tree and finds all statement files
func (s *Scanner) Scan() ([]ScanResult, error) {
	var results []ScanResult

	rootDir := s.expandHome(s.rootDir)

	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !s.isStatementFile(path) {
			return nil
		}

		results = append(results, ScanResult{
			Path:     path,
			Metadata: s.extractMetadata(path, rootDir),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return results, nil
}

// isStatementFile checks if file is a known statement format
func (s *Scanner) isStatementFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".qfx" || ext == ".ofx"
}

// extractMetadata parses directory structure for bank/account hints.
// Path structure: {root}/{bank}/{account}/{period?}/file.ext
func (s *Scanner) extractMetadata(filePath, rootDir string) Metadata {
	relPath, err := filepath.Rel(rootDir, filePath)
	if err != nil {
		relPath = filePath
	}

	parts := strings.Split(filepath.ToSlash(relPath), "/")

	meta := Metadata{
		FilePath:   filePath,
		DetectedAt: time.Now(),
	}

	if len(parts) >= 2 {
		meta.Bank = s.normalizeBankName(parts[0])
	}
	if len(parts) >= 3 {
		meta.AccountID = parts[1]
	}
	if len(parts) >= 4 && s.looksLikePeriod(parts[2]) {
		meta.Period = parts[2]
	}

	return meta
}

// normalizeBankName converts a directory name to a readable name
// "banco_do_brasil" -> "Banco Do Brasil"
func (s *Scanner) normalizeBankName(dirName string) string {
	name := strings.ReplaceAll(dirName, "_", " ")

	words := strings.Split(name, " ")
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}

	return strings.Join(words, " ")
}

// looksLikePeriod checks if string looks like a date period (YYYY-MM)
func (s *Scanner) looksLikePeriod(str string) bool {
	return len(str) >= 7 && str[4] == '-'
}

// expandHome expands ~ to home directory
func (s *Scanner) expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
