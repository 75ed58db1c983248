package commands

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/caremarket/parentry/config"
	"github.com/caremarket/parentry/errors"
	"github.com/caremarket/parentry/logger"
	"github.com/caremarket/parentry/metrics"
	"github.com/caremarket/parentry/ownership/resolver"
)

// ResolveCmd runs entity resolution.
var ResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve operating parents for the latest dataset",
	Long: `Resolve the operating parent of every subsidiary in the latest completed
dataset version and refresh the subsidiary and name-variant registries.

Subsidiaries that fail are logged and skipped; the run still exits 0. The
command fails only when no usable dataset exists or the database, config or
rule table cannot be loaded.

Examples:
  parentry resolve
  parentry resolve --care-type HOSPICE --workers 8
  parentry resolve --dataset 202503 --dry-run
  parentry resolve --limit 25                 # testing aid, never sweeps`,
	RunE: runResolve,
}

func init() {
	addResolveFlags(ResolveCmd)
}

func addResolveFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("dataset", "", "Dataset version to resolve (default: latest completed)")
	f.StringSlice("care-type", nil, "Care types to resolve (default: resolve.care_types, then all)")
	f.Int("workers", 0, "Concurrent subsidiaries, clamped to 1..16 (default: resolve.workers)")
	f.Int("limit", 0, "Resolve at most N subsidiaries per care type")
	f.Bool("dry-run", false, "Resolve and report without writing")
	f.Bool("record-orphans", false, "Write parentless registry rows for orphaned subsidiaries")
	f.Float64("rate-limit", 0, "Subsidiaries dispatched per second, 0 = unlimited")
}

// engineConfig merges resolve.* settings with command flags; flags win.
func engineConfig(cmd *cobra.Command, cfg *config.Config) resolver.Config {
	rc := resolver.Config{
		CareTypes:       cfg.Resolve.CareTypes,
		Workers:         cfg.Resolve.Workers,
		RecordOrphans:   cfg.Resolve.RecordOrphans,
		DryRun:          cfg.Resolve.DryRun,
		RateLimit:       cfg.Resolve.RateLimit,
		RowTimeout:      time.Duration(cfg.Resolve.RowTimeoutSeconds) * time.Second,
		MaxLoggedErrors: cfg.Resolve.MaxLoggedErrors,
	}

	f := cmd.Flags()
	verbosity, _ := f.GetCount("verbose")
	rc.TraceOwners = logger.ShouldLogTrace(verbosity)
	rc.DatasetID, _ = f.GetString("dataset")
	rc.Limit, _ = f.GetInt("limit")
	if f.Changed("care-type") {
		rc.CareTypes, _ = f.GetStringSlice("care-type")
	}
	if f.Changed("workers") {
		rc.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("dry-run") {
		rc.DryRun, _ = f.GetBool("dry-run")
	}
	if f.Changed("record-orphans") {
		rc.RecordOrphans, _ = f.GetBool("record-orphans")
	}
	if f.Changed("rate-limit") {
		rc.RateLimit, _ = f.GetFloat64("rate-limit")
	}
	careTypes := make([]string, 0, len(rc.CareTypes))
	for _, ct := range rc.CareTypes {
		careTypes = append(careTypes, strings.ToUpper(strings.TrimSpace(ct)))
	}
	rc.CareTypes = careTypes
	return rc
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	classifier, err := loadClassifier(e.cfg)
	if err != nil {
		return err
	}

	rc := engineConfig(cmd, e.cfg)
	rc.RunID = resolver.NewRunID(time.Now())

	recorder := metrics.New()
	engine := resolver.NewEngine(resolver.Deps{
		Datasets:     e.datasets,
		Subsidiaries: e.subsidiaries,
		Variants:     e.variants.ForRun(rc.RunID),
		Runs:         e.runs,
		Classifier:   classifier,
		Metrics:      recorder,
	}, rc, logger.ComponentLogger("resolver"))

	logger.Infow("Rule table loaded", "rules_version", classifier.Version(), logger.FieldCount, len(classifier.Rules()))
	if rc.DryRun {
		pterm.Warning.Println("DRY RUN: registries will not be written")
	}

	summary, err := engine.Run(ctx)
	if summary != nil {
		printSummary(summary)
		writeMetrics(e.cfg.Metrics.TextfilePath, recorder)
	}
	if err != nil {
		return errors.Wrap(err, "resolution run failed")
	}
	return nil
}

func writeMetrics(path string, recorder *metrics.Recorder) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), config.DefaultDirPermissions); err != nil {
		logger.Warnw("Failed to create metrics directory", logger.FieldPath, path, logger.FieldError, err)
		return
	}
	if err := recorder.WriteTextfile(path); err != nil {
		logger.Warnw("Failed to write metrics textfile", logger.FieldPath, path, logger.FieldError, err)
	}
}

func printSummary(s *resolver.Summary) {
	pterm.DefaultSection.Printf("Run %s", s.RunID)

	_ = renderTable(pterm.TableData{
		{"Metric", "Value"},
		{"Dataset", s.DatasetID},
		{"Care types", strings.Join(s.CareTypes, ", ")},
		{"Status", string(s.Status)},
		{"Processed", fmt.Sprint(s.Processed)},
		{"Assigned to parent", fmt.Sprint(s.Assigned)},
		{"Orphaned", fmt.Sprint(s.Orphaned)},
		{"Skipped", fmt.Sprint(s.Skipped)},
		{"Manual protected", fmt.Sprint(s.Protected)},
		{"Unique parents", fmt.Sprint(s.UniqueParents)},
		{"Distinct states", fmt.Sprint(s.DistinctStates)},
		{"Variants recorded", fmt.Sprint(s.VariantsRecorded)},
		{"Variant drift", fmt.Sprint(s.VariantDrift)},
		{"Stale rows swept", fmt.Sprint(s.Swept)},
		{"Duration", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String()},
	})

	for _, msg := range s.Messages() {
		pterm.Warning.Println(msg)
	}
	if s.Skipped > len(s.Errors) {
		pterm.Warning.Printfln("%d more skipped subsidiaries not listed", s.Skipped-len(s.Errors))
	}

	switch {
	case s.DryRun:
		pterm.Info.Println("Dry run complete, nothing written")
	case s.Skipped > 0:
		pterm.Warning.Printfln("Completed with %d skipped subsidiaries", s.Skipped)
	default:
		pterm.Success.Println("Resolution complete")
	}
}
