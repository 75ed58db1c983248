package resolver

import (
	"context"
	"fmt"

	"github.com/caremarket/parentry/errors"
	"github.com/caremarket/parentry/ownership"
	"github.com/caremarket/parentry/ownership/normalize"
	"github.com/caremarket/parentry/ownership/parent"
)

// Registry readers used by Validate.
type (
	SubsidiaryLister interface {
		List(ctx context.Context, careType string, limit int) ([]ownership.Subsidiary, error)
	}
	VariantLister interface {
		List(ctx context.Context, limit int) ([]ownership.NameVariant, error)
	}
	RunReader interface {
		Latest(ctx context.Context) (*ownership.Run, error)
	}
)

// Finding is one registry validation failure.
type Finding struct {
	Check   string
	Subject string
	Detail  string
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Check, f.Subject, f.Detail)
}

// Validation checks
const (
	CheckInvestmentParent = "investment_parent"
	CheckVariantCanonical = "variant_canonical"
	CheckLatestRun        = "latest_run"
)

// Report is the outcome of Validate.
type Report struct {
	Subsidiaries int
	Variants     int
	LatestRun    *ownership.Run
	Findings     []Finding
}

// OK reports whether the registry passed every check.
func (r *Report) OK() bool {
	return len(r.Findings) == 0
}

// Validator checks registry invariants after a run.
type Validator struct {
	Subsidiaries SubsidiaryLister
	Variants     VariantLister
	Runs         RunReader
	Classifier   parent.Classifier
}

// Validate reads the whole registry. Failing checks become findings; an
// error is returned only when the registry cannot be read.
func (v *Validator) Validate(ctx context.Context) (*Report, error) {
	report := &Report{}

	subs, err := v.Subsidiaries.List(ctx, "", 0)
	if err != nil {
		return nil, errors.Wrap(err, "read subsidiaries")
	}
	report.Subsidiaries = len(subs)
	for _, sub := range subs {
		if sub.CanonicalParent == nil {
			continue
		}
		owner := ownership.OwnershipRecord{OwnerName: *sub.CanonicalParent}
		if v.Classifier.IsInvestmentEntity(owner) {
			report.Findings = append(report.Findings, Finding{
				Check:   CheckInvestmentParent,
				Subject: sub.Key.String(),
				Detail:  fmt.Sprintf("%s parent %q classifies as an investment entity", sub.Source, *sub.CanonicalParent),
			})
		}
	}

	variants, err := v.Variants.List(ctx, 0)
	if err != nil {
		return nil, errors.Wrap(err, "read name variants")
	}
	report.Variants = len(variants)
	for _, nv := range variants {
		if want := normalize.Key(nv.CanonicalName); want != nv.CanonicalName {
			report.Findings = append(report.Findings, Finding{
				Check:   CheckVariantCanonical,
				Subject: nv.SourceContext + "/" + nv.VariantName,
				Detail:  fmt.Sprintf("canonical %q is not normalized (want %q)", nv.CanonicalName, want),
			})
		}
	}

	run, err := v.Runs.Latest(ctx)
	switch {
	case errors.IsNotFoundError(err):
		report.Findings = append(report.Findings, Finding{
			Check:   CheckLatestRun,
			Subject: "resolution_runs",
			Detail:  "no resolution run recorded",
		})
	case err != nil:
		return nil, errors.Wrap(err, "read latest run")
	default:
		report.LatestRun = run
		if run.Status != ownership.RunCompleted && run.Status != ownership.RunCompletedWithErrors {
			report.Findings = append(report.Findings, Finding{
				Check:   CheckLatestRun,
				Subject: run.ID,
				Detail:  fmt.Sprintf("latest run is %s", run.Status),
			})
		}
	}

	return report, nil
}
