package main

import (
	"context"
	"fmt"

	"github.com/auditflow/api/internal/app/pipeline"
	"github.com/auditflow/api/internal/app/scan"
	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/internal/infra/jobs"
	"github.com/auditflow/api/internal/infra/redis"
	"github.com/auditflow/api/internal/infra/repo"
	"github.com/auditflow/api/internal/infra/storage"
	"github.com/auditflow/api/internal/infra/websocket"
	"github.com/auditflow/api/pkg/logger"
)

// summaryCachePrefix namespaces cached repo summaries in Redis.
const summaryCachePrefix = "repo_summary"

// Services holds the application services.
type Services struct {
	Scan         *scan.Service
	Orchestrator *scan.Orchestrator
	Notifier     *redis.StatusNotifier
	WebSocketHub *websocket.Hub
}

// ServiceDeps contains dependencies needed to create services.
type ServiceDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Repos       *Repositories
	RedisClient *redis.Client
	JobClient   *jobs.Client
}

// NewServices wires the scan service and the pipeline orchestrator.
func NewServices(ctx context.Context, deps *ServiceDeps) (*Services, error) {
	cfg := deps.Config
	log := deps.Log
	repos := deps.Repos

	summaryCache, err := redis.NewCache[scan.RepoSummary](deps.RedisClient, summaryCachePrefix, cfg.Scan.SummaryTTL)
	if err != nil {
		return nil, fmt.Errorf("summary cache: %w", err)
	}
	notifier := redis.NewStatusNotifier(deps.RedisClient, log)

	scanService := scan.NewService(
		repos.ScanJob, repos.Violation, repos.Score,
		deps.JobClient, notifier, log,
		scan.WithSummaryCache(summaryCache),
	)

	dispatcher, err := pipeline.NewDispatcherFromConfig(&cfg.Analysis, log)
	if err != nil {
		return nil, err
	}

	detector := pipeline.NewChangeDetector(repos.Fingerprint, pipeline.DetectorConfig{
		Extensions:    cfg.Scan.Extensions,
		IgnoreGlobs:   cfg.Scan.IgnoreGlobs,
		MinContentLen: cfg.Scan.MinContentLen,
	}, log)

	materializer := repo.NewGitMaterializer(repo.NewGitLabResolver(&cfg.GitLab), repo.Options{
		WorkDir: cfg.Scan.WorkDir,
		Token:   cfg.GitLab.Token,
		Depth:   cfg.GitLab.CloneDepth,
		Timeout: cfg.GitLab.CloneTimeout,
	}, log)

	archive, err := newArchive(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	orchestrator := scan.NewOrchestrator(scan.OrchestratorDeps{
		Jobs:         repos.ScanJob,
		Violations:   repos.Violation,
		Scores:       repos.Score,
		Materializer: materializer,
		Detector:     detector,
		Dispatcher:   dispatcher,
		Enricher:     pipeline.NewEnricher(),
		Publisher:    notifier,
	}, log,
		scan.WithArchive(archive),
		scan.WithSummaryInvalidator(scanService),
		scan.WithBatchBudget(cfg.Scan.BatchBudget),
	)

	return &Services{
		Scan:         scanService,
		Orchestrator: orchestrator,
		Notifier:     notifier,
		WebSocketHub: websocket.NewHub(log),
	}, nil
}

func newArchive(ctx context.Context, cfg *config.Config, log *logger.Logger) (scan.Archive, error) {
	if !cfg.Scan.ArchiveEnabled || !cfg.Storage.IsConfigured() {
		return storage.NopArchive{}, nil
	}
	archive, err := storage.NewS3Archive(ctx, &cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("scan archive: %w", err)
	}
	log.Info("scan archive enabled", "bucket", cfg.Storage.Bucket)
	return archive, nil
}

// NewJobClient creates the scan queue client.
func NewJobClient(cfg *config.Config, log *logger.Logger) *jobs.Client {
	return jobs.NewClient(&cfg.Redis, cfg.Worker.TaskTimeout, log)
}
