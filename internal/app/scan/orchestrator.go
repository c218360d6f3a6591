package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/auditflow/api/internal/app/pipeline"
	"github.com/auditflow/api/internal/metrics"
	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/domain/shared"
	"github.com/auditflow/api/pkg/logger"
	"github.com/auditflow/api/pkg/tracing"
)

// Stage summaries written on each transition.
const (
	SummaryCloning  = "Cloning repository..."
	SummaryScanning = "Analyzing files for compliance issues..."
	SummarySaving   = "Saving scan results..."
)

// Orchestrator drives one scan job through its lifecycle.
type Orchestrator struct {
	jobs         scanjob.Repository
	violations   finding.ViolationRepository
	scores       finding.ScoreRepository
	materializer Materializer
	detector     *pipeline.ChangeDetector
	dispatcher   *pipeline.Dispatcher
	enricher     *pipeline.Enricher
	publisher    StatusPublisher

	archive     Archive
	invalidator SummaryInvalidator
	budget      int
	now         func() time.Time

	tracer trace.Tracer
	logger *logger.Logger
}

// OrchestratorDeps are the required collaborators of an Orchestrator.
type OrchestratorDeps struct {
	Jobs         scanjob.Repository
	Violations   finding.ViolationRepository
	Scores       finding.ScoreRepository
	Materializer Materializer
	Detector     *pipeline.ChangeDetector
	Dispatcher   *pipeline.Dispatcher
	Enricher     *pipeline.Enricher
	Publisher    StatusPublisher
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithArchive stores every completed result in a.
func WithArchive(a Archive) OrchestratorOption {
	return func(o *Orchestrator) {
		o.archive = a
	}
}

// WithSummaryInvalidator drops cached summaries when a scan ends.
func WithSummaryInvalidator(inv SummaryInvalidator) OrchestratorOption {
	return func(o *Orchestrator) {
		o.invalidator = inv
	}
}

// WithBatchBudget sets the per-batch byte budget.
func WithBatchBudget(budget int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.budget = budget
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps OrchestratorDeps, log *logger.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		jobs:         deps.Jobs,
		violations:   deps.Violations,
		scores:       deps.Scores,
		materializer: deps.Materializer,
		detector:     deps.Detector,
		dispatcher:   deps.Dispatcher,
		enricher:     deps.Enricher,
		publisher:    deps.Publisher,
		budget:       pipeline.DefaultBatchBudget,
		now:          func() time.Time { return time.Now().UTC() },
		tracer:       tracing.Tracer(),
		logger:       log.With("component", "orchestrator"),
	}
	if o.publisher == nil {
		o.publisher = NopPublisher{}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the scan identified by trigger. Stages run strictly in order
// and every transition is persisted before it is published. Any stage error
// moves the job to failed with the error text as summary; that error is also
// returned. The job must be queued.
func (o *Orchestrator) Run(ctx context.Context, trigger scanjob.Trigger) error {
	if err := trigger.Validate(); err != nil {
		return err
	}

	ctx = context.WithValue(ctx, logger.ContextKeyScanID, trigger.ScanID)
	ctx = context.WithValue(ctx, logger.ContextKeyUserID, trigger.UserID)
	log := o.logger.WithContext(ctx).With("repo_id", trigger.RepoID)

	job, err := o.jobs.GetByID(ctx, trigger.ScanID)
	if err != nil {
		return fmt.Errorf("load scan job: %w", err)
	}
	if job.RepoID != trigger.RepoID || !job.IsOwnedBy(trigger.UserID) {
		return shared.Invalid("trigger does not match scan job " + job.ID)
	}
	if job.Status != scanjob.StatusQueued {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("scan %s is %s, expected queued", job.ID, job.Status), shared.ErrConflict)
	}

	ctx, span := o.tracer.Start(ctx, "scan.run", trace.WithAttributes(
		attribute.String("scan.id", job.ID),
		attribute.Int64("scan.repo_id", job.RepoID),
	))
	defer span.End()

	metrics.ScansInProgress.Inc()
	defer metrics.ScansInProgress.Dec()
	start := time.Now()
	log.Info("scan started", "repo_name", job.RepoName)

	runErr := o.execute(ctx, job, log)
	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	if o.invalidator != nil {
		defer o.invalidator.InvalidateSummary(context.WithoutCancel(ctx), job.RepoID, job.UserID)
	}

	if runErr == nil {
		metrics.ScansTotal.WithLabelValues(string(scanjob.StatusCompleted)).Inc()
		log.Info("scan completed",
			"findings", len(job.Results.Findings),
			"overall_score", job.Results.Scores.OverallScore,
			"duration", time.Since(start),
		)
		return nil
	}

	span.RecordError(runErr)
	span.SetStatus(codes.Error, "scan failed")
	if scanjob.IsFinished(runErr) {
		// Finalized elsewhere, typically by stuck-scan recovery.
		log.Warn("scan finalized while running, results discarded", "status", job.Status, "error", runErr)
		return runErr
	}
	metrics.ScansTotal.WithLabelValues(string(scanjob.StatusFailed)).Inc()
	log.Error("scan failed", "status", job.Status, "error", runErr)

	if err := o.transition(ctx, job, scanjob.StatusFailed, job.Progress, runErr.Error(), nil); err != nil {
		return errors.Join(runErr, fmt.Errorf("mark scan failed: %w", err))
	}
	return runErr
}

func (o *Orchestrator) execute(ctx context.Context, job *scanjob.Job, log *logger.Logger) error {
	trigger := scanjob.Trigger{RepoID: job.RepoID, UserID: job.UserID, ScanID: job.ID}

	if err := o.transition(ctx, job, scanjob.StatusCloning, scanjob.ProgressCloning, SummaryCloning, nil); err != nil {
		return err
	}
	ws, err := o.materialize(ctx, trigger)
	if err != nil {
		return err
	}
	defer func() {
		if err := ws.Close(); err != nil {
			log.Warn("workspace cleanup failed", "root", ws.Root(), "error", err)
		}
	}()

	if err := o.transition(ctx, job, scanjob.StatusScanning, scanjob.ProgressScanning, SummaryScanning, nil); err != nil {
		return err
	}
	result, err := o.analyze(ctx, job.RepoID, ws.Root(), log)
	if err != nil {
		return err
	}

	if err := o.transition(ctx, job, scanjob.StatusSaving, scanjob.ProgressSaving, SummarySaving, nil); err != nil {
		return err
	}
	if err := o.save(ctx, job, result, log); err != nil {
		return err
	}

	return o.transition(ctx, job, scanjob.StatusCompleted, scanjob.ProgressCompleted, result.ScanSummary, result)
}

func (o *Orchestrator) materialize(ctx context.Context, trigger scanjob.Trigger) (Workspace, error) {
	ctx, span := o.tracer.Start(ctx, "scan.materialize")
	defer span.End()

	ws, err := o.materializer.Materialize(ctx, trigger)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("materialize repository: %w", err)
	}
	return ws, nil
}

// analyze runs detection, batching, dispatch, enrichment and scoring.
func (o *Orchestrator) analyze(ctx context.Context, repoID int64, root string, log *logger.Logger) (*finding.ScanResult, error) {
	ctx, span := o.tracer.Start(ctx, "scan.analyze")
	defer span.End()

	detected, err := o.detector.Detect(ctx, root, repoID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("detect changed files: %w", err)
	}

	batches := pipeline.BuildBatches(detected.Files, o.budget, log)
	findings := o.enricher.Enrich(o.dispatcher.Analyze(ctx, batches))
	scores := pipeline.Score(findings)

	for _, f := range findings {
		metrics.FindingsTotal.WithLabelValues(string(f.Severity)).Inc()
	}

	stats := finding.ScanStats{
		FilesSelected:   len(detected.Files),
		FilesUnchanged:  detected.Unchanged,
		FilesIgnored:    detected.Ignored,
		FilesOversized:  len(detected.Files) - pipeline.FileCount(batches),
		ProcessingError: detected.Errors,
		Batches:         len(batches),
	}
	span.SetAttributes(
		attribute.Int("scan.files_selected", stats.FilesSelected),
		attribute.Int("scan.batches", stats.Batches),
		attribute.Int("scan.findings", len(findings)),
	)

	return &finding.ScanResult{
		ScanSummary: completionSummary(stats, scores, o.dispatcher.Enabled()),
		Scores:      scores,
		Findings:    findings,
		Stats:       stats,
	}, nil
}

func (o *Orchestrator) save(ctx context.Context, job *scanjob.Job, result *finding.ScanResult, log *logger.Logger) error {
	ctx, span := o.tracer.Start(ctx, "scan.save")
	defer span.End()

	now := o.now()
	violations := make([]*finding.Violation, 0, len(result.Findings))
	for _, f := range result.Findings {
		violations = append(violations, finding.NewViolation(f, job.RepoID, job.UserID, job.ID, now))
	}
	if err := o.violations.SaveAll(ctx, violations); err != nil {
		span.RecordError(err)
		return fmt.Errorf("save violations: %w", err)
	}

	score := &finding.ComplianceScore{
		RepoID:   job.RepoID,
		UserID:   job.UserID,
		ScanID:   job.ID,
		Scores:   result.Scores,
		ScanDate: now,
	}
	if err := o.scores.Save(ctx, score); err != nil {
		span.RecordError(err)
		return fmt.Errorf("save compliance score: %w", err)
	}

	if o.archive != nil {
		if err := o.archive.Store(ctx, job.RepoID, job.ID, result); err != nil {
			log.Warn("scan archive failed", "error", err)
		}
	}
	return nil
}

// transition applies, persists and then publishes one state change. The
// in-memory job is restored when persistence fails so that it can still be
// moved to failed.
func (o *Orchestrator) transition(ctx context.Context, job *scanjob.Job, next scanjob.Status, progress int, summary string, results *finding.ScanResult) error {
	if next.IsTerminal() {
		ctx = context.WithoutCancel(ctx)
	}

	prev := *job
	if err := job.Transition(next, progress, summary, results); err != nil {
		return err
	}
	if err := o.jobs.UpdateStatus(ctx, job); err != nil {
		*job = prev
		return fmt.Errorf("persist scan status %s: %w", next, err)
	}

	ev := scanjob.NewStatusEvent(job)
	metrics.ScanStatusEventsTotal.WithLabelValues(ev.Type).Inc()
	if err := o.publisher.PublishStatus(ctx, job.UserID, ev); err != nil {
		o.logger.Warn("status publish failed", "scan_id", job.ID, "status", next, "error", err)
	}
	return nil
}

func completionSummary(stats finding.ScanStats, scores finding.ScoreSet, analyzed bool) string {
	if !analyzed {
		return fmt.Sprintf("Scan completed without analysis: %d file(s) selected, analysis service is not configured.",
			stats.FilesSelected)
	}
	return fmt.Sprintf("Scan completed: %d file(s) analyzed in %d batch(es), %d issue(s) found. Overall score %.1f (%s).",
		stats.FilesSelected-stats.FilesOversized, stats.Batches, scores.TotalViolations, scores.OverallScore, scores.Grade)
}
