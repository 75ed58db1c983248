// Package classify decides whether an owner is an investment entity: a
// private-equity fund, REIT or institutional investor that holds a stake
// without operating the business.
//
// Classification is a best-effort heuristic over source flags and name
// patterns. It has a known false-negative risk and is not an entity ontology;
// the rule table is tuned to keep false positives rare.
package classify

import (
	"github.com/caremarket/parentry/errors"
	"github.com/caremarket/parentry/ownership"
	"github.com/caremarket/parentry/ownership/normalize"
)

// Flag reasons reported when a source flag decides the verdict
const (
	ReasonPEFlag             = "pe_flag"
	ReasonREITFlag           = "reit_flag"
	ReasonInvestmentFirmFlag = "investment_firm_flag"
)

// Verdict is the outcome of classifying one owner.
type Verdict struct {
	Investment bool
	// Reason is a flag name or the matching rule's category
	Reason string
	// RuleID is set when a rule, not a flag, decided the verdict
	RuleID string
}

type compiledRule struct {
	rule    Rule
	matcher matcher
}

// Classifier evaluates a compiled rule table. It is safe for concurrent use.
type Classifier struct {
	version string
	rules   []compiledRule
}

// New compiles table into a Classifier.
func New(table *RuleTable) (*Classifier, error) {
	if table == nil {
		return nil, errors.NewInvalidRequestError("rule table is nil")
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}

	env, err := newEnv()
	if err != nil {
		return nil, errors.Wrap(err, "create expression environment")
	}

	c := &Classifier{version: table.Version, rules: make([]compiledRule, 0, len(table.Rules))}
	for _, r := range table.Rules {
		m, err := compileRule(env, r)
		if err != nil {
			return nil, err
		}
		c.rules = append(c.rules, compiledRule{rule: r, matcher: m})
	}
	return c, nil
}

// Load reads and compiles the rule table at path ("" = embedded default).
func Load(path string) (*Classifier, error) {
	table, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	return New(table)
}

// NewDefault compiles the embedded rule table.
func NewDefault() (*Classifier, error) {
	return Load("")
}

// Version returns the rule table version.
func (c *Classifier) Version() string {
	return c.version
}

// Rules returns the rules in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	for i, cr := range c.rules {
		out[i] = cr.rule
	}
	return out
}

// IsInvestmentEntity reports whether owner is a capital provider.
func (c *Classifier) IsInvestmentEntity(owner ownership.OwnershipRecord) bool {
	return c.Classify(owner).Investment
}

// Classify returns the verdict for owner. Source flags win over rules; among
// rules the first match in table order is reported.
func (c *Classifier) Classify(owner ownership.OwnershipRecord) Verdict {
	switch {
	case owner.PEFlag:
		return Verdict{Investment: true, Reason: ReasonPEFlag}
	case owner.REITFlag:
		return Verdict{Investment: true, Reason: ReasonREITFlag}
	case owner.InvestmentFirmFlag:
		return Verdict{Investment: true, Reason: ReasonInvestmentFirmFlag}
	}

	if r, ok := c.MatchName(owner.OwnerName); ok {
		return Verdict{Investment: true, Reason: string(r.Category), RuleID: r.ID}
	}
	return Verdict{}
}

// MatchName returns the first rule matching name. The name is tried as
// written (uppercased) and then in canonical form, so a name classifies
// whenever the canonical parent derived from it would.
func (c *Classifier) MatchName(name string) (Rule, bool) {
	upper := normalize.Upper(name)
	if upper == "" {
		return Rule{}, false
	}
	if r, ok := c.match(upper); ok {
		return r, true
	}
	if key := normalize.Key(name); key != "" && key != upper {
		return c.match(key)
	}
	return Rule{}, false
}

func (c *Classifier) match(name string) (Rule, bool) {
	for _, cr := range c.rules {
		if cr.matcher.match(name) {
			return cr.rule, true
		}
	}
	return Rule{}, false
}
