package parent

import (
	"github.com/caremarket/parentry/ownership"
	"github.com/caremarket/parentry/ownership/normalize"
)

// Classifier decides whether an owner is an investment entity.
type Classifier interface {
	IsInvestmentEntity(owner ownership.OwnershipRecord) bool
}

// Selection is the outcome of parent selection for one subsidiary.
type Selection struct {
	// BestParent is nil when the subsidiary is orphaned
	BestParent *ownership.OwnershipRecord
	Tier       Tier
	// InvestmentEntities holds one raw spelling per distinct investor, in input order
	InvestmentEntities []string
}

// Orphaned reports whether no operating parent was found.
func (s Selection) Orphaned() bool {
	return s.BestParent == nil
}

// Selector chooses a parent among ownership records.
type Selector struct {
	classifier Classifier
}

// NewSelector creates a Selector backed by classifier.
func NewSelector(classifier Classifier) *Selector {
	return &Selector{classifier: classifier}
}

type candidate struct {
	index int
	tier  Tier
	pct   float64
	key   string
}

// better reports whether a outranks b: lower tier, then higher percentage,
// then smaller normalized name, then earlier input position.
func (a candidate) better(b candidate) bool {
	if a.tier != b.tier {
		return a.tier < b.tier
	}
	if a.pct != b.pct {
		return a.pct > b.pct
	}
	if a.key != b.key {
		return a.key < b.key
	}
	return a.index < b.index
}

// Select partitions records into investment entities and parent candidates
// and picks the best candidate. It never fails; input records are not modified.
func (s *Selector) Select(records []ownership.OwnershipRecord) Selection {
	var (
		sel       Selection
		best      *candidate
		investors = make(map[string]bool)
	)

	for i := range records {
		r := records[i]
		investment := s.classifier.IsInvestmentEntity(r)

		if investment {
			key := normalize.Key(r.OwnerName)
			if key != "" && !investors[key] {
				investors[key] = true
				sel.InvestmentEntities = append(sel.InvestmentEntities, r.OwnerName)
			}
			continue
		}

		key := normalize.Key(r.OwnerName)
		if key == "" {
			continue
		}

		c := candidate{index: i, tier: Priority(r, false), key: key}
		if r.Percentage != nil {
			c.pct = *r.Percentage
		}
		if best == nil || c.better(*best) {
			best = &c
		}
	}

	if best != nil {
		chosen := records[best.index]
		sel.BestParent = &chosen
		sel.Tier = best.tier
	}
	return sel
}
