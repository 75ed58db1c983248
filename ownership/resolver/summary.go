package resolver

import (
	"sort"
	"sync"
	"time"

	"github.com/caremarket/parentry/ownership"
)

// Summary is the terminal report of a run.
type Summary struct {
	RunID      string
	DatasetID  string
	CareTypes  []string
	Status     ownership.RunStatus
	DryRun     bool
	Limited    bool
	StartedAt  time.Time
	FinishedAt time.Time

	ownership.RunCounts

	// Errors holds the first row errors of the run, capped by MaxLoggedErrors
	Errors []*RowError
	// RunErrors are failures outside any single subsidiary, such as a failed sweep
	RunErrors []string
	// Parents lists the distinct canonical parents assigned, sorted
	Parents []string
	// States lists the distinct states covered by assigned subsidiaries, sorted
	States []string
}

// Messages flattens row and run errors for the run log.
func (s *Summary) Messages() []string {
	out := make([]string, 0, len(s.Errors)+len(s.RunErrors))
	for _, e := range s.Errors {
		out = append(out, e.Error())
	}
	return append(out, s.RunErrors...)
}

type outcome int

const (
	outcomeAssigned outcome = iota
	outcomeOrphaned
	outcomeProtected
	outcomeSkipped
)

// aggregator collects per-subsidiary results from concurrent workers.
type aggregator struct {
	mu        sync.Mutex
	summary   *Summary
	maxErrors int
	parents   map[string]struct{}
	states    map[string]struct{}
	skipped   []ownership.SubsidiaryKey
}

func newAggregator(s *Summary, maxErrors int) *aggregator {
	return &aggregator{
		summary:   s,
		maxErrors: maxErrors,
		parents:   make(map[string]struct{}),
		states:    make(map[string]struct{}),
	}
}

type rowResult struct {
	outcome  outcome
	parent   string
	states   []string
	variants int
	drift    int
	err      *RowError
}

func (a *aggregator) add(key ownership.SubsidiaryKey, r rowResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := &a.summary.RunCounts
	c.Processed++
	c.VariantsRecorded += r.variants
	c.VariantDrift += r.drift

	switch r.outcome {
	case outcomeAssigned:
		c.Assigned++
		a.parents[r.parent] = struct{}{}
		for _, st := range r.states {
			a.states[st] = struct{}{}
		}
	case outcomeOrphaned:
		c.Orphaned++
	case outcomeProtected:
		c.Protected++
	case outcomeSkipped:
		c.Skipped++
		a.skipped = append(a.skipped, key)
		if a.maxErrors <= 0 || len(a.summary.Errors) < a.maxErrors {
			a.summary.Errors = append(a.summary.Errors, r.err)
		}
	}
}

// skippedKeys drains the keys skipped since the last call.
func (a *aggregator) skippedKeys() []ownership.SubsidiaryKey {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := a.skipped
	a.skipped = nil
	return keys
}

func (a *aggregator) finish() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.summary.Parents = sortedKeys(a.parents)
	a.summary.States = sortedKeys(a.states)
	a.summary.UniqueParents = len(a.summary.Parents)
	a.summary.DistinctStates = len(a.summary.States)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (a *aggregator) runError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.RunErrors = append(a.summary.RunErrors, err.Error())
}

func (a *aggregator) swept(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.Swept += n
}
