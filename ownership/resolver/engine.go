// Package resolver drives a resolution run: it reads every subsidiary of a
// dataset version, selects an operating parent for each, and refreshes the
// subsidiary and name-variant registries.
package resolver

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/caremarket/parentry/config"
	"github.com/caremarket/parentry/errors"
	"github.com/caremarket/parentry/logger"
	"github.com/caremarket/parentry/metrics"
	"github.com/caremarket/parentry/ownership"
	"github.com/caremarket/parentry/ownership/classify"
	"github.com/caremarket/parentry/ownership/normalize"
	"github.com/caremarket/parentry/ownership/parent"
	"github.com/caremarket/parentry/ownership/storage"
)

// DatasetSource reads the ownership extract.
type DatasetSource interface {
	Latest(ctx context.Context) (*ownership.DatasetVersion, error)
	Get(ctx context.Context, datasetID string) (*ownership.DatasetVersion, error)
	CareTypes(ctx context.Context, datasetID string) ([]string, error)
	Subsidiaries(ctx context.Context, datasetID, careType string, limit int) ([]ownership.SubsidiaryInput, error)
	Owners(ctx context.Context, datasetID, careType string, rawNames []string) ([]ownership.OwnershipRecord, error)
}

// SubsidiaryWriter persists subsidiary registry rows.
type SubsidiaryWriter interface {
	Upsert(ctx context.Context, row ownership.Subsidiary) (storage.UpsertResult, error)
	Sweep(ctx context.Context, careType, runID string, keep []ownership.SubsidiaryKey) (int, error)
}

// VariantWriter persists name variants.
type VariantWriter interface {
	RecordVariant(ctx context.Context, canonical, variant, sourceContext string) (storage.VariantResult, error)
}

// RunLog records run lifecycle.
type RunLog interface {
	Start(ctx context.Context, run ownership.Run) error
	Finish(ctx context.Context, run ownership.Run) error
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Datasets     DatasetSource
	Subsidiaries SubsidiaryWriter
	// Variants must tag writes with Config.RunID
	Variants   VariantWriter
	Runs       RunLog
	Classifier parent.Classifier
	// Metrics is optional
	Metrics *metrics.Recorder
}

// Config controls one run.
type Config struct {
	RunID string
	// DatasetID overrides the latest usable dataset version
	DatasetID string
	// CareTypes restricts the run; empty processes every care type in the dataset
	CareTypes     []string
	Workers       int
	RecordOrphans bool
	DryRun        bool
	// Limit caps subsidiaries per care type; limited runs never sweep
	Limit           int
	RateLimit       float64
	RowTimeout      time.Duration
	MaxLoggedErrors int
	// TraceOwners logs the classification of every owner at debug level
	TraceOwners bool
}

// Engine resolves operating parents for a dataset version.
type Engine struct {
	deps     Deps
	cfg      Config
	selector *parent.Selector
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewEngine creates an Engine. A missing run id is generated.
func NewEngine(deps Deps, cfg Config, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = logger.Logger
	}
	cfg.Workers = config.ClampWorkers(cfg.Workers)
	if cfg.RunID == "" {
		cfg.RunID = NewRunID(time.Now())
	}
	return &Engine{
		deps:     deps,
		cfg:      cfg,
		selector: parent.NewSelector(deps.Classifier),
		logger:   log,
		now:      time.Now,
	}
}

// RunID returns the identifier writes are tagged with.
func (e *Engine) RunID() string {
	return e.cfg.RunID
}

// Run executes FETCH_SUBSIDIARIES, the per-subsidiary stages and SUMMARY.
// It returns an error only for setup failures (no usable dataset, run log
// unavailable, subsidiary list unreadable); row failures are reported in
// the Summary.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	ctx = logger.WithComponent(logger.WithRunID(ctx, e.cfg.RunID), "resolver")
	log := logger.LoggerFromContext(ctx, e.logger)

	dataset, err := e.dataset(ctx)
	if err != nil {
		return nil, err
	}

	careTypes := e.cfg.CareTypes
	if len(careTypes) == 0 {
		careTypes, err = e.deps.Datasets.CareTypes(ctx, dataset.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "list care types of dataset %s", dataset.ID)
		}
	}

	summary := &Summary{
		RunID:     e.cfg.RunID,
		DatasetID: dataset.ID,
		CareTypes: careTypes,
		Status:    ownership.RunRunning,
		DryRun:    e.cfg.DryRun,
		Limited:   e.cfg.Limit > 0,
		StartedAt: e.now().UTC(),
	}

	if !e.cfg.DryRun {
		err := e.deps.Runs.Start(ctx, ownership.Run{
			ID:        summary.RunID,
			DatasetID: summary.DatasetID,
			CareType:  strings.Join(careTypes, ","),
			StartedAt: summary.StartedAt,
		})
		if err != nil {
			return nil, errors.Wrap(err, "record run start")
		}
	}

	log.Infow("Resolution run started",
		logger.FieldDatasetID, dataset.ID,
		logger.FieldCareType, careTypes,
		"workers", e.cfg.Workers,
		"dry_run", e.cfg.DryRun,
		"limit", e.cfg.Limit,
	)

	agg := newAggregator(summary, e.cfg.MaxLoggedErrors)
	var fatal error
	for _, careType := range careTypes {
		if ctx.Err() != nil {
			break
		}
		if err := e.runCareType(ctx, dataset.ID, careType, agg); err != nil {
			fatal = err
			break
		}
	}
	agg.finish()

	summary.FinishedAt = e.now().UTC()
	switch {
	case fatal != nil:
		summary.Status = ownership.RunFailed
		summary.RunErrors = append(summary.RunErrors, fatal.Error())
	case ctx.Err() != nil:
		summary.Status = ownership.RunCancelled
	case summary.Skipped > 0 || len(summary.RunErrors) > 0:
		summary.Status = ownership.RunCompletedWithErrors
	default:
		summary.Status = ownership.RunCompleted
	}

	e.finish(ctx, summary)

	if fatal != nil {
		return summary, fatal
	}
	return summary, nil
}

func (e *Engine) dataset(ctx context.Context) (*ownership.DatasetVersion, error) {
	if e.cfg.DatasetID != "" {
		return e.deps.Datasets.Get(ctx, e.cfg.DatasetID)
	}
	return e.deps.Datasets.Latest(ctx)
}

// runCareType resolves every subsidiary of one care type on a bounded pool,
// then sweeps stale rows. Only a failure to list subsidiaries is returned.
func (e *Engine) runCareType(ctx context.Context, datasetID, careType string, agg *aggregator) error {
	log := logger.LoggerFromContext(ctx, e.logger).With(logger.FieldCareType, careType)

	subs, err := e.deps.Datasets.Subsidiaries(ctx, datasetID, careType, e.cfg.Limit)
	if err != nil {
		return errors.Wrapf(err, "%s %s", StageFetchSubsidiaries, careType)
	}
	log.Infow("Subsidiaries fetched", logger.FieldCount, len(subs), logger.FieldStage, StageFetchSubsidiaries)

	var limiter *rate.Limiter
	if e.cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(e.cfg.RateLimit), 1)
	}

	// In-flight subsidiaries finish even when the run is cancelled
	work := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)

	dispatched := 0
	for _, sub := range subs {
		if ctx.Err() != nil {
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}

		sub := sub
		dispatched++
		g.Go(func() error {
			started := time.Now()
			res := e.resolve(work, datasetID, sub)
			agg.add(sub.Key, res)
			e.deps.Metrics.Subsidiary(careType, metricOutcome(res.outcome), time.Since(started))
			if res.err != nil {
				log.Warnw("Subsidiary skipped",
					logger.FieldSubsidiary, sub.Key.Name,
					logger.FieldStage, res.err.Stage,
					logger.FieldError, res.err.Err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	skipped := agg.skippedKeys()

	switch {
	case e.cfg.DryRun:
		log.Infow("Dry run, sweep skipped")
	case ctx.Err() != nil || dispatched < len(subs):
		log.Warnw("Run cancelled, sweep skipped", "dispatched", dispatched, logger.FieldTotalCount, len(subs))
	case e.cfg.Limit > 0:
		log.Infow("Limited run, sweep skipped", "limit", e.cfg.Limit)
	default:
		swept, err := e.deps.Subsidiaries.Sweep(ctx, careType, e.cfg.RunID, skipped)
		if err != nil {
			log.Errorw("Sweep failed", logger.FieldError, err)
			agg.runError(errors.Wrapf(err, "sweep %s", careType))
			break
		}
		agg.swept(swept)
		e.deps.Metrics.Swept(careType, swept)
		log.Infow("Stale rows swept", logger.FieldCount, swept, "kept_skipped", len(skipped))
	}

	return nil
}

// resolve runs FETCH_OWNERS through WRITE_VARIANTS for one subsidiary.
func (e *Engine) resolve(ctx context.Context, datasetID string, sub ownership.SubsidiaryInput) (res rowResult) {
	stage := StageFetchOwners
	fail := func(err error) rowResult {
		return rowResult{outcome: outcomeSkipped, err: &RowError{Key: sub.Key, Stage: stage, Err: err}}
	}

	defer func() {
		if r := recover(); r != nil {
			res = fail(errors.Newf("panic: %v", r))
		}
	}()

	if e.cfg.RowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RowTimeout)
		defer cancel()
	}

	owners, err := e.deps.Datasets.Owners(ctx, datasetID, sub.Key.CareType, sub.RawNames)
	if err != nil {
		return fail(err)
	}

	stage = StageClassifyAndRank
	if e.cfg.TraceOwners {
		e.traceOwners(sub.Key, owners)
	}
	sel := e.selector.Select(owners)

	stage = StageSelectParent

	row := ownership.Subsidiary{
		Key:         sub.Key,
		AgencyCount: sub.AgencyCount,
		States:      sub.States,
		DBANames:    sub.DBANames,
		PEInvestors: sel.InvestmentEntities,
		LastRunID:   e.cfg.RunID,
		DatasetID:   datasetID,
	}

	res = rowResult{outcome: outcomeOrphaned}
	if sel.BestParent != nil {
		canonical := normalize.Key(sel.BestParent.OwnerName)
		row.CanonicalParent = &canonical
		row.ParentRole = sel.BestParent.Role
		row.ParentPercentage = sel.BestParent.Percentage
		res = rowResult{outcome: outcomeAssigned, parent: canonical, states: sub.States}
	}

	e.logger.Debugw("Parent selected",
		logger.FieldSubsidiary, sub.Key.Name,
		logger.FieldCareType, sub.Key.CareType,
		logger.FieldParent, row.CanonicalParent,
		logger.FieldTier, sel.Tier,
		"investors", len(sel.InvestmentEntities),
	)

	if e.cfg.DryRun {
		return res
	}

	stage = StageWriteSubsidiary
	if row.CanonicalParent != nil || e.cfg.RecordOrphans {
		up, err := e.deps.Subsidiaries.Upsert(ctx, row)
		if err != nil {
			return fail(err)
		}
		if up.Protected {
			res.outcome = outcomeProtected
		}
	}

	stage = StageWriteVariants
	for _, v := range variantsFor(sub, sel) {
		vr, err := e.deps.Variants.RecordVariant(ctx, v.canonical, v.variant, v.context)
		if err != nil {
			return fail(err)
		}
		if vr.Written {
			res.variants++
		}
		if vr.Drifted {
			res.drift++
			e.logger.Infow("Name variant drift",
				logger.FieldVariant, v.variant,
				logger.FieldContext, v.context,
				"previous", vr.Previous,
				"canonical", normalize.Key(v.canonical),
				"overwritten", vr.Written,
			)
		}
		e.deps.Metrics.Variant(v.context, vr.Written, vr.Drifted)
	}

	return res
}

// verdictClassifier is implemented by classifiers that can explain a decision.
type verdictClassifier interface {
	Classify(owner ownership.OwnershipRecord) classify.Verdict
}

func (e *Engine) traceOwners(key ownership.SubsidiaryKey, owners []ownership.OwnershipRecord) {
	vc, explains := e.deps.Classifier.(verdictClassifier)
	for _, o := range owners {
		var v classify.Verdict
		if explains {
			v = vc.Classify(o)
		} else {
			v.Investment = e.deps.Classifier.IsInvestmentEntity(o)
		}
		e.logger.Debugw("Owner classified",
			logger.FieldSubsidiary, key.Name,
			logger.FieldOwner, o.OwnerName,
			"role", o.Role,
			logger.FieldTier, parent.Priority(o, v.Investment),
			"investment", v.Investment,
			"reason", v.Reason,
			logger.FieldRuleID, v.RuleID,
		)
	}
}

type variantWrite struct {
	canonical string
	variant   string
	context   string
}

// variantsFor lists the name variants a resolved subsidiary contributes.
func variantsFor(sub ownership.SubsidiaryInput, sel parent.Selection) []variantWrite {
	var out []variantWrite
	for _, raw := range sub.RawNames {
		out = append(out, variantWrite{canonical: sub.Key.Name, variant: raw, context: ownership.ContextSubsidiary})
	}
	if sel.BestParent != nil {
		out = append(out, variantWrite{
			canonical: sel.BestParent.OwnerName,
			variant:   sel.BestParent.OwnerName,
			context:   ownership.ContextParent,
		})
	}
	for _, inv := range sel.InvestmentEntities {
		out = append(out, variantWrite{canonical: inv, variant: inv, context: ownership.ContextInvestor})
	}
	return out
}

func (e *Engine) finish(ctx context.Context, s *Summary) {
	log := logger.LoggerFromContext(ctx, e.logger)

	if !e.cfg.DryRun {
		// Record the outcome even when the run itself was cancelled
		err := e.deps.Runs.Finish(context.WithoutCancel(ctx), ownership.Run{
			ID:          s.RunID,
			Status:      s.Status,
			CompletedAt: &s.FinishedAt,
			Counts:      s.RunCounts,
			Errors:      s.Messages(),
		})
		if err != nil {
			log.Errorw("Failed to record run outcome", logger.FieldError, err)
		}
	}

	e.deps.Metrics.RunFinished(string(s.Status), s.StartedAt, s.FinishedAt)

	log.Infow("Resolution run finished",
		logger.FieldStage, StageSummary,
		logger.FieldStatus, s.Status,
		"processed", s.Processed,
		"assigned", s.Assigned,
		"orphaned", s.Orphaned,
		"skipped", s.Skipped,
		"manual_protected", s.Protected,
		"unique_parents", s.UniqueParents,
		"distinct_states", s.DistinctStates,
		"variants_recorded", s.VariantsRecorded,
		"variant_drift", s.VariantDrift,
		"swept", s.Swept,
		logger.FieldDurationMS, s.FinishedAt.Sub(s.StartedAt).Milliseconds(),
	)
}

func metricOutcome(o outcome) string {
	switch o {
	case outcomeAssigned:
		return metrics.OutcomeAssigned
	case outcomeOrphaned:
		return metrics.OutcomeOrphaned
	case outcomeProtected:
		return metrics.OutcomeProtected
	default:
		return metrics.OutcomeSkipped
	}
}
