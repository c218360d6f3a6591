package scan

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/domain/shared"
	"github.com/auditflow/api/pkg/logger"
)

// ScheduleFailedSummary is written when a requested scan cannot be enqueued.
const ScheduleFailedSummary = "Failed to schedule the scan in the processing queue."

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	historyWindow       = 30 * 24 * time.Hour
	topCategoryLimit    = 10
)

// Service handles scan requests and the read models derived from scans.
type Service struct {
	jobs       scanjob.Repository
	violations finding.ViolationRepository
	scores     finding.ScoreRepository
	enqueuer   ScanEnqueuer
	publisher  StatusPublisher
	cache      SummaryCache
	now        func() time.Time
	logger     *logger.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSummaryCache caches repo summaries in c.
func WithSummaryCache(c SummaryCache) ServiceOption {
	return func(s *Service) {
		s.cache = c
	}
}

// WithServiceClock overrides the service clock.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new Service.
func NewService(
	jobs scanjob.Repository,
	violations finding.ViolationRepository,
	scores finding.ScoreRepository,
	enqueuer ScanEnqueuer,
	publisher StatusPublisher,
	log *logger.Logger,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		jobs:       jobs,
		violations: violations,
		scores:     scores,
		enqueuer:   enqueuer,
		publisher:  publisher,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     log.With("service", "scan"),
	}
	if s.publisher == nil {
		s.publisher = NopPublisher{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestScanInput represents the input for requesting a scan.
type RequestScanInput struct {
	RepoID   int64  `validate:"required,gt=0"`
	UserID   string `validate:"required"`
	RepoName string `validate:"max=255"`
}

// RequestScan creates a queued scan job and hands it to the worker queue.
// A repo with a scan already in flight for the same user is rejected.
func (s *Service) RequestScan(ctx context.Context, input RequestScanInput) (*scanjob.Job, error) {
	job, err := scanjob.NewJob(input.RepoID, input.UserID, input.RepoName)
	if err != nil {
		return nil, err
	}

	active, err := s.jobs.FindActive(ctx, input.RepoID, input.UserID)
	switch {
	case err == nil:
		return nil, scanjob.InProgress(job.RepoID, fmt.Sprintf("scan %s is already %s", active.ID, active.Status))
	case !shared.IsNotFound(err):
		return nil, fmt.Errorf("failed to check active scans: %w", err)
	}

	// A concurrent request can pass the check above; the store rejects it.
	if err := s.jobs.Create(ctx, job); err != nil {
		if scanjob.IsInProgress(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create scan job: %w", err)
	}

	trigger := scanjob.Trigger{RepoID: job.RepoID, UserID: job.UserID, ScanID: job.ID}
	if err := s.enqueuer.EnqueueScan(ctx, trigger); err != nil {
		s.logger.Error("failed to enqueue scan", "scan_id", job.ID, "repo_id", job.RepoID, "error", err)
		s.markScheduleFailed(ctx, job)
		return nil, fmt.Errorf("%w: failed to schedule scan: %w", shared.ErrUnavailable, err)
	}

	s.publish(ctx, job)
	s.logger.Info("scan requested", "scan_id", job.ID, "repo_id", job.RepoID, "user_id", job.UserID)
	return job, nil
}

func (s *Service) markScheduleFailed(ctx context.Context, job *scanjob.Job) {
	ctx = context.WithoutCancel(ctx)
	if err := job.Transition(scanjob.StatusFailed, job.Progress, ScheduleFailedSummary, nil); err != nil {
		return
	}
	if err := s.jobs.UpdateStatus(ctx, job); err != nil {
		s.logger.Error("failed to mark unscheduled scan failed", "scan_id", job.ID, "error", err)
		return
	}
	s.publish(ctx, job)
}

func (s *Service) publish(ctx context.Context, job *scanjob.Job) {
	if err := s.publisher.PublishStatus(ctx, job.UserID, scanjob.NewStatusEvent(job)); err != nil {
		s.logger.Warn("status publish failed", "scan_id", job.ID, "error", err)
	}
}

// GetScan returns a scan job owned by userID. Jobs of other users are
// reported as not found.
func (s *Service) GetScan(ctx context.Context, scanID, userID string) (*scanjob.Job, error) {
	job, err := s.jobs.GetByID(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if !job.IsOwnedBy(userID) {
		return nil, shared.NotFound("scan", scanID)
	}
	return job, nil
}

// LatestScan returns the newest completed scan of a repo.
func (s *Service) LatestScan(ctx context.Context, repoID int64, userID string) (*scanjob.Job, error) {
	jobs, err := s.completed(ctx, &repoID, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, shared.NotFound("completed scan for repo", fmt.Sprint(repoID))
	}
	return jobs[0], nil
}

// ScanHistory lists completed scans of a repo, newest first.
func (s *Service) ScanHistory(ctx context.Context, repoID int64, userID string, limit int) ([]ScanSummary, error) {
	jobs, err := s.completed(ctx, &repoID, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return summarizeJobs(jobs), nil
}

// AllScanHistory lists completed scans across all repos of a user.
func (s *Service) AllScanHistory(ctx context.Context, userID string, limit int) ([]ScanSummary, error) {
	jobs, err := s.completed(ctx, nil, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return summarizeJobs(jobs), nil
}

func (s *Service) completed(ctx context.Context, repoID *int64, userID string, limit int) ([]*scanjob.Job, error) {
	status := scanjob.StatusCompleted
	jobs, err := s.jobs.List(ctx, scanjob.Filter{RepoID: repoID, UserID: userID, Status: &status, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list completed scans: %w", err)
	}
	return jobs, nil
}

// RepoSummary builds the compliance overview of a repo. Results are served
// from the summary cache when one is configured.
func (s *Service) RepoSummary(ctx context.Context, repoID int64, userID string) (*RepoSummary, error) {
	key := summaryKey(repoID, userID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key); err == nil {
			return cached, nil
		}
	}

	summary, err := s.buildRepoSummary(ctx, repoID, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, *summary); err != nil {
			s.logger.Warn("failed to cache repo summary", "repo_id", repoID, "error", err)
		}
	}
	return summary, nil
}

// countOpen counts the violations of a scan that are open or in progress.
func (s *Service) countOpen(ctx context.Context, job *scanjob.Job) (int, error) {
	violations, err := s.violations.List(ctx, finding.ViolationFilter{
		RepoID: job.RepoID,
		UserID: job.UserID,
		ScanID: job.ID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list violations: %w", err)
	}
	open := 0
	for _, v := range violations {
		if v.Status.IsOpen() {
			open++
		}
	}
	return open, nil
}

func (s *Service) buildRepoSummary(ctx context.Context, repoID int64, userID string) (*RepoSummary, error) {
	latest, err := s.completed(ctx, &repoID, userID, 1)
	if err != nil {
		return nil, err
	}
	active, err := s.jobs.FindActive(ctx, repoID, userID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("failed to find active scan: %w", err)
	}
	if len(latest) == 0 && active == nil {
		return nil, shared.NotFound("scans for repo", fmt.Sprint(repoID))
	}

	summary := &RepoSummary{
		RepoID:            repoID,
		Grade:             finding.GradeFor(0),
		Status:            finding.HealthFor(finding.ScoreSet{}),
		ComplianceHistory: []HistoryPoint{},
		ViolationHistory:  []ViolationDay{},
	}
	if active != nil {
		summary.RepoName = active.RepoName
		summary.ActiveScanID = active.ID
		summary.ActiveScanStatus = active.Status
	}
	if len(latest) > 0 {
		job := latest[0]
		summary.RepoName = job.RepoName
		summary.LastScanID = job.ID
		date := job.UpdatedAt
		summary.LastScanDate = &date
		if job.Results != nil {
			sc := job.Results.Scores
			summary.OverallScore = sc.OverallScore
			summary.Grade = finding.GradeFor(sc.OverallScore)
			summary.Status = finding.HealthFor(sc)
			open, err := s.countOpen(ctx, job)
			if err != nil {
				return nil, err
			}
			summary.OpenViolations = open
			summary.CriticalViolations = sc.CriticalViolations
			summary.HighViolations = sc.HighViolations
			summary.MediumViolations = sc.MediumViolations
			summary.LowViolations = sc.LowViolations
		}
	}

	recent, err := s.scores.Latest(ctx, repoID, userID, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent scores: %w", err)
	}
	overall := make([]float64, 0, len(recent))
	for _, r := range recent {
		overall = append(overall, r.Scores.OverallScore)
	}
	summary.Trend = finding.TrendFor(overall)

	since := s.now().Add(-historyWindow)
	history, err := s.scores.ListSince(ctx, repoID, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load score history: %w", err)
	}
	for _, h := range history {
		summary.ComplianceHistory = append(summary.ComplianceHistory, HistoryPoint{
			Date:            h.ScanDate,
			ScanID:          h.ScanID,
			OverallScore:    h.Scores.OverallScore,
			SecurityScore:   h.Scores.SecurityScore,
			ComplianceScore: h.Scores.ComplianceScore,
			QualityScore:    h.Scores.QualityScore,
			Grade:           finding.GradeFor(h.Scores.OverallScore),
		})
	}

	violations, err := s.violations.List(ctx, finding.ViolationFilter{RepoID: repoID, UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	summary.ViolationHistory = violationDays(violations, since)

	return summary, nil
}

// InvalidateSummary drops the cached summary of a repo.
func (s *Service) InvalidateSummary(ctx context.Context, repoID int64, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, summaryKey(repoID, userID)); err != nil {
		s.logger.Warn("failed to invalidate repo summary", "repo_id", repoID, "error", err)
	}
}

// Violations lists the violations of the latest completed scan of a repo,
// optionally narrowed to one status. A repo without completed scans yields
// an empty list with perfect scores.
func (s *Service) Violations(ctx context.Context, repoID int64, userID string, status *finding.Status) (*ViolationList, error) {
	if status != nil && !status.IsValid() {
		return nil, shared.Invalid(fmt.Sprintf("invalid violation status: %s", *status))
	}

	list := &ViolationList{
		RepoID:     repoID,
		Violations: []*finding.Violation{},
		Scores:     finding.PerfectScores(),
	}
	latest, err := s.completed(ctx, &repoID, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		list.Summary = countViolations(nil)
		return list, nil
	}

	job := latest[0]
	list.ScanID = job.ID
	date := job.UpdatedAt
	list.ScanDate = &date
	if job.Results != nil {
		list.Scores = job.Results.Scores
	}

	vs, err := s.violations.List(ctx, finding.ViolationFilter{
		RepoID: repoID,
		UserID: userID,
		ScanID: job.ID,
		Status: status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	list.Violations = vs
	list.Summary = countViolations(vs)
	return list, nil
}

// UpdateViolationInput represents the input for changing a violation status.
type UpdateViolationInput struct {
	Status string `validate:"required,oneof=open in_progress resolved wont_fix false_positive"`
	Notes  string `validate:"max=2000"`
}

// UpdateViolationStatus moves a violation owned by userID to a new status.
func (s *Service) UpdateViolationStatus(ctx context.Context, violationID, userID string, input UpdateViolationInput) (*finding.Violation, error) {
	v, err := s.violations.GetByID(ctx, violationID)
	if err != nil {
		return nil, err
	}
	if v.UserID != userID {
		return nil, shared.NotFound("violation", violationID)
	}

	if err := v.UpdateStatus(finding.Status(input.Status), userID, input.Notes, s.now()); err != nil {
		return nil, err
	}
	if err := s.violations.Update(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to update violation: %w", err)
	}

	s.InvalidateSummary(ctx, v.RepoID, userID)
	s.logger.Info("violation status updated", "violation_id", violationID, "status", v.Status)
	return v, nil
}

// AnalyticsSummary aggregates the latest completed scan of every repo of a
// user.
func (s *Service) AnalyticsSummary(ctx context.Context, userID string) (*AnalyticsSummary, error) {
	jobs, err := s.completed(ctx, nil, userID, 0)
	if err != nil {
		return nil, err
	}

	out := &AnalyticsSummary{
		ComplianceTrend:        []TrendPoint{},
		TopViolationCategories: []CategoryCount{},
	}
	if len(jobs) == 0 {
		return out, nil
	}

	// jobs are newest first, so the first job seen per repo is its latest.
	latest := make(map[int64]*scanjob.Job)
	var order []int64
	for _, j := range jobs {
		if _, ok := latest[j.RepoID]; !ok {
			latest[j.RepoID] = j
			order = append(order, j.RepoID)
		}
	}

	var total float64
	latestScans := make(map[string]bool, len(latest))
	categories := make(map[string]int)
	title := cases.Title(language.English)
	for _, repoID := range order {
		j := latest[repoID]
		latestScans[j.ID] = true
		if j.Results == nil {
			continue
		}
		total += j.Results.Scores.OverallScore
		for _, f := range j.Results.Findings {
			name := title.String(strings.ReplaceAll(string(f.Category), "_", " "))
			if name == "" {
				name = "Unknown"
			}
			categories[name]++
		}
	}
	out.RepositoriesScanned = len(latest)
	out.AverageComplianceScore = round1(total / float64(len(latest)))
	out.TopViolationCategories = topCategories(categories, topCategoryLimit)

	violations, err := s.violations.List(ctx, finding.ViolationFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	for _, v := range violations {
		if latestScans[v.ScanID] && isActiveViolation(v.Status) {
			out.ActiveViolations++
		}
	}

	out.ComplianceTrend = dailyTrend(jobs, s.now().Add(-historyWindow))
	return out, nil
}

func isActiveViolation(st finding.Status) bool {
	return st == finding.StatusOpen || st == finding.StatusInProgress
}

func dailyTrend(jobs []*scanjob.Job, since time.Time) []TrendPoint {
	type acc struct {
		sum float64
		n   int
	}
	days := make(map[string]*acc)
	for _, j := range jobs {
		if j.Results == nil || j.UpdatedAt.Before(since) {
			continue
		}
		day := j.UpdatedAt.UTC().Format(time.DateOnly)
		a, ok := days[day]
		if !ok {
			a = &acc{}
			days[day] = a
		}
		a.sum += j.Results.Scores.OverallScore
		a.n++
	}

	out := make([]TrendPoint, 0, len(days))
	for day, a := range days {
		out = append(out, TrendPoint{Date: day, Score: round1(a.sum / float64(a.n))})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Date < out[k].Date })
	return out
}

func violationDays(vs []*finding.Violation, since time.Time) []ViolationDay {
	days := make(map[string]*ViolationDay)
	for _, v := range vs {
		if v.DiscoveredDate.Before(since) {
			continue
		}
		key := v.DiscoveredDate.UTC().Format(time.DateOnly)
		d, ok := days[key]
		if !ok {
			d = &ViolationDay{Date: key}
			days[key] = d
		}
		d.Total++
		switch v.Severity {
		case finding.SeverityCritical:
			d.Critical++
		case finding.SeverityHigh:
			d.High++
		case finding.SeverityMedium:
			d.Medium++
		case finding.SeverityLow:
			d.Low++
		}
	}

	out := make([]ViolationDay, 0, len(days))
	for _, d := range days {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Date < out[k].Date })
	return out
}

func topCategories(counts map[string]int, n int) []CategoryCount {
	out := make([]CategoryCount, 0, len(counts))
	for name, c := range counts {
		out = append(out, CategoryCount{Category: name, Count: c})
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Count != out[k].Count {
			return out[i].Count > out[k].Count
		}
		return out[i].Category < out[k].Category
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func summarizeJobs(jobs []*scanjob.Job) []ScanSummary {
	out := make([]ScanSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, newScanSummary(j))
	}
	return out
}

func summaryKey(repoID int64, userID string) string {
	return fmt.Sprintf("%d:%s", repoID, userID)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	return min(limit, maxHistoryLimit)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
