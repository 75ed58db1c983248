package classify

import (
	"bytes"
	_ "embed"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caremarket/parentry/errors"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// Kind selects how a rule's patterns are matched.
type Kind string

const (
	KindRegex  Kind = "regex"
	KindPrefix Kind = "prefix"
	KindPhrase Kind = "phrase"
	KindSuffix Kind = "suffix"
	KindExpr   Kind = "expr"
)

// Category groups rules by the kind of capital provider they detect.
type Category string

const (
	CategoryFundNumbering     Category = "fund_numbering"
	CategoryLPSuffix          Category = "lp_suffix"
	CategoryInvestmentKeyword Category = "investment_keyword"
	CategoryKnownFirm         Category = "known_firm"
	CategoryPassiveInvestor   Category = "passive_investor"
)

// Rule is one entry of the rule table.
type Rule struct {
	ID          string   `yaml:"id"`
	Category    Category `yaml:"category"`
	Kind        Kind     `yaml:"kind"`
	Patterns    []string `yaml:"patterns,omitempty"`
	Expr        string   `yaml:"expr,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

// RuleTable is an ordered, versioned set of rules.
type RuleTable struct {
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// DefaultRules returns the rule table embedded in the binary.
func DefaultRules() (*RuleTable, error) {
	table, err := ParseRules(defaultRulesYAML)
	if err != nil {
		return nil, errors.Wrap(err, "embedded rule table")
	}
	return table, nil
}

// LoadRules reads a rule table from path. An empty path selects the
// embedded default table.
func LoadRules(path string) (*RuleTable, error) {
	if path == "" {
		return DefaultRules()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read rule table %s", path)
	}

	table, err := ParseRules(data)
	if err != nil {
		return nil, errors.Wrapf(err, "rule table %s", path)
	}
	return table, nil
}

// ParseRules decodes and validates a YAML rule table. Unknown fields are
// rejected so a misspelled key cannot silently disable a rule.
func ParseRules(data []byte) (*RuleTable, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var table RuleTable
	if err := dec.Decode(&table); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "decode rule table: "+err.Error())
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &table, nil
}

// Validate checks the structure of the table. Pattern syntax is checked
// when the table is compiled by New.
func (t *RuleTable) Validate() error {
	if strings.TrimSpace(t.Version) == "" {
		return errors.NewInvalidRequestError("rule table version is required")
	}
	if len(t.Rules) == 0 {
		return errors.NewInvalidRequestError("rule table has no rules")
	}

	seen := make(map[string]bool, len(t.Rules))
	for i, r := range t.Rules {
		if r.ID == "" {
			return errors.NewInvalidRequestError("rule %d: id is required", i)
		}
		if seen[r.ID] {
			return errors.NewInvalidRequestError("rule %s: duplicate id", r.ID)
		}
		seen[r.ID] = true

		if r.Category == "" {
			return errors.NewInvalidRequestError("rule %s: category is required", r.ID)
		}

		switch r.Kind {
		case KindExpr:
			if strings.TrimSpace(r.Expr) == "" {
				return errors.NewInvalidRequestError("rule %s: expr is required for kind expr", r.ID)
			}
			if len(r.Patterns) > 0 {
				return errors.NewInvalidRequestError("rule %s: kind expr takes no patterns", r.ID)
			}
		case KindRegex, KindPrefix, KindPhrase, KindSuffix:
			if len(r.Patterns) == 0 {
				return errors.NewInvalidRequestError("rule %s: at least one pattern is required", r.ID)
			}
			if r.Expr != "" {
				return errors.NewInvalidRequestError("rule %s: expr is only valid for kind expr", r.ID)
			}
			for _, p := range r.Patterns {
				if strings.TrimSpace(p) == "" {
					return errors.NewInvalidRequestError("rule %s: empty pattern", r.ID)
				}
				if r.Kind == KindPhrase && len(strings.Fields(p)) < 2 {
					return errors.NewInvalidRequestError("rule %s: phrase %q must have at least two tokens", r.ID, p)
				}
			}
		default:
			return errors.NewInvalidRequestError("rule %s: unknown kind %q", r.ID, r.Kind)
		}
	}

	return nil
}
