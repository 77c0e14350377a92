// Package rules provides a YAML-based keyword engine for suggesting a
// category for bank transaction descriptions.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/conciliar/ofximport/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var embeddedKeywords []byte

// Rule maps a set of description keywords to a category name. Rules are
// evaluated in file order and the first keyword hit wins, so broad
// patterns belong near the bottom of the file.
//
// Rules should be created via YAML loading (NewEngine, LoadEmbedded,
// LoadFromFile), which validates:
//   - Category must not be empty after trimming
//   - At least one keyword per rule
//   - No keyword empty after trimming
type Rule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Category string   `yaml:"category"`
}

// RuleSet represents the top-level YAML structure
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Engine suggests categories for transaction descriptions.
type Engine struct {
	rules []Rule // File order; first match wins
}

// NewEngine creates a keyword engine from YAML data
func NewEngine(rulesData []byte) (*Engine, error) {
	var ruleSet RuleSet
	if err := yaml.Unmarshal(rulesData, &ruleSet); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules (check syntax, indentation, and field names): %w", err)
	}

	for i, rule := range ruleSet.Rules {
		if strings.TrimSpace(rule.Category) == "" {
			return nil, fmt.Errorf("rule %d (%s): category cannot be empty", i, rule.Name)
		}
		if len(rule.Keywords) == 0 {
			return nil, fmt.Errorf("rule %d (%s): at least one keyword is required", i, rule.Name)
		}
		for _, kw := range rule.Keywords {
			if strings.TrimSpace(kw) == "" {
				return nil, fmt.Errorf("rule %d (%s): keyword cannot be empty", i, rule.Name)
			}
		}
	}

	rules := make([]Rule, len(ruleSet.Rules))
	copy(rules, ruleSet.Rules)

	return &Engine{rules: rules}, nil
}

// LoadEmbedded loads the embedded keywords.yaml file
func LoadEmbedded() (*Engine, error) {
	engine, err := NewEngine(embeddedKeywords)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules (possible binary corruption): %w", err)
	}
	return engine, nil
}

// LoadFromFile loads rules from a filesystem path
func LoadFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	engine, err := NewEngine(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %q: %w", path, err)
	}
	return engine, nil
}

// Match returns the category name for the first rule whose keyword occurs
// in the description. Matching is case-insensitive on both sides. Rules
// are evaluated in YAML file order, so ordering in the file is the only
// precedence mechanism. Returns ("", false) if no keyword matches.
func (e *Engine) Match(description string) (string, bool) {
	normalizedDesc := strings.ToLower(strings.TrimSpace(description))
	if normalizedDesc == "" {
		return "", false
	}

	for _, rule := range e.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(normalizedDesc, strings.ToLower(strings.TrimSpace(kw))) {
				return rule.Category, true
			}
		}
	}

	return "", false
}

// Suggest resolves Match against the caller's category list and returns
// the matching category ID, or nil when no keyword matches or the matched
// name is not among the known categories. Name comparison is
// case-insensitive: the YAML file and the category table are maintained
// by different people and drift in casing is routine.
func (e *Engine) Suggest(description string, categories []domain.Category) *int64 {
	name, ok := e.Match(description)
	if !ok {
		return nil
	}
	for _, cat := range categories {
		if strings.EqualFold(cat.Name, name) {
			id := cat.ID
			return &id
		}
	}
	return nil
}

// GetRules returns a copy of the rules for inspection/debugging, in
// evaluation order. Keyword slices are deep-copied so callers cannot
// mutate engine state.
func (e *Engine) GetRules() []Rule {
	result := make([]Rule, len(e.rules))
	for i, rule := range e.rules {
		result[i] = rule
		result[i].Keywords = append([]string(nil), rule.Keywords...)
	}
	return result
}
