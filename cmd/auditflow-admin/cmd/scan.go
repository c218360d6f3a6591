package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/auditflow/api/internal/app/pipeline"
	"github.com/auditflow/api/internal/app/scan"
	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/internal/infra/jobs"
	"github.com/auditflow/api/internal/infra/memory"
	"github.com/auditflow/api/internal/infra/postgres"
	"github.com/auditflow/api/internal/infra/repo"
	"github.com/auditflow/api/internal/infra/sqlite"
	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/logger"
)

const localUserID = "local"

var (
	flagFingerprintDB string
	flagRepoID        int64
	flagRepoName      string
	flagUserID        string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run or enqueue compliance scans",
}

var scanLocalCmd = &cobra.Command{
	Use:   "local <path>",
	Short: "Scan a local directory and print the result",
	Long: `Runs the full scan pipeline on a directory without Postgres or Redis.
File fingerprints persist in an SQLite file, so repeated runs only analyze
files that changed since the previous run for the same --repo-id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutput(flagOutput); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		job, err := runLocalScan(ctx, cfg, args[0], newLogger())
		if err != nil {
			return err
		}
		return printScanResult(cmd.OutOrStdout(), job, flagOutput)
	},
}

var scanEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Create a scan job and put it on the worker queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutput(flagOutput); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger()

		db, err := postgres.New(&cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		client := jobs.NewClient(&cfg.Redis, cfg.Worker.TaskTimeout, log)
		defer client.Close()

		svc := scan.NewService(
			postgres.NewScanJobRepository(db),
			postgres.NewViolationRepository(db),
			postgres.NewScoreRepository(db),
			client, nil, log,
		)
		job, err := svc.RequestScan(cmd.Context(), scan.RequestScanInput{
			RepoID:   flagRepoID,
			UserID:   flagUserID,
			RepoName: flagRepoName,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		view := map[string]any{"scan_id": job.ID, "repo_id": job.RepoID, "status": job.Status}
		switch flagOutput {
		case outputJSON:
			return printJSON(out, view)
		case outputYAML:
			return printYAML(out, view)
		}
		t := newTable(out, "SCAN ID", "REPO", "STATUS")
		t.AddRow(job.ID, strconv.FormatInt(job.RepoID, 10), string(job.Status))
		return t.Flush()
	},
}

func init() {
	scanLocalCmd.Flags().StringVar(&flagFingerprintDB, "db", ".auditflow/fingerprints.db", "SQLite fingerprint database")
	scanLocalCmd.Flags().Int64Var(&flagRepoID, "repo-id", 1, "Repository id the fingerprints are stored under")
	scanLocalCmd.Flags().StringVar(&flagRepoName, "name", "", "Display name of the repository")

	scanEnqueueCmd.Flags().Int64Var(&flagRepoID, "repo", 0, "Repository id to scan")
	scanEnqueueCmd.Flags().StringVar(&flagUserID, "user", "", "Owner of the scan")
	scanEnqueueCmd.Flags().StringVar(&flagRepoName, "name", "", "Display name of the repository")
	_ = scanEnqueueCmd.MarkFlagRequired("repo")
	_ = scanEnqueueCmd.MarkFlagRequired("user")

	scanCmd.AddCommand(scanLocalCmd)
	scanCmd.AddCommand(scanEnqueueCmd)
}

// runLocalScan drives one job through the orchestrator with process-local
// repositories and returns the finished job.
func runLocalScan(ctx context.Context, cfg *config.Config, path string, log *logger.Logger) (*scanjob.Job, error) {
	materializer, err := repo.NewLocalMaterializer(path)
	if err != nil {
		return nil, err
	}

	fingerprints, err := sqlite.Open(flagFingerprintDB)
	if err != nil {
		return nil, err
	}
	defer fingerprints.Close()

	dispatcher, err := pipeline.NewDispatcherFromConfig(&cfg.Analysis, log)
	if err != nil {
		return nil, err
	}

	jobRepo := memory.NewJobRepository()
	orchestrator := scan.NewOrchestrator(scan.OrchestratorDeps{
		Jobs:         jobRepo,
		Violations:   memory.NewViolationRepository(),
		Scores:       memory.NewScoreRepository(),
		Materializer: materializer,
		Detector: pipeline.NewChangeDetector(fingerprints, pipeline.DetectorConfig{
			Extensions:    cfg.Scan.Extensions,
			IgnoreGlobs:   cfg.Scan.IgnoreGlobs,
			MinContentLen: cfg.Scan.MinContentLen,
		}, log),
		Dispatcher: dispatcher,
		Enricher:   pipeline.NewEnricher(),
	}, log, scan.WithBatchBudget(cfg.Scan.BatchBudget))

	job, err := scanjob.NewJob(flagRepoID, localUserID, flagRepoName)
	if err != nil {
		return nil, err
	}
	if err := jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := orchestrator.Run(ctx, scanjob.Trigger{RepoID: job.RepoID, UserID: job.UserID, ScanID: job.ID}); err != nil {
		return nil, err
	}
	return jobRepo.GetByID(ctx, job.ID)
}

func printScanResult(w io.Writer, job *scanjob.Job, format string) error {
	result := job.Results
	if result == nil {
		return errors.New("scan finished without results")
	}
	switch format {
	case outputJSON:
		return printJSON(w, result)
	case outputYAML:
		return printYAML(w, result)
	}

	s := result.Scores
	fmt.Fprintf(w, "%s\n\n", result.ScanSummary)
	fmt.Fprintf(w, "Overall:    %.1f (%s)\n", s.OverallScore, s.Grade)
	fmt.Fprintf(w, "Security:   %.1f\n", s.SecurityScore)
	fmt.Fprintf(w, "Compliance: %.1f\n", s.ComplianceScore)
	fmt.Fprintf(w, "Quality:    %.1f\n", s.QualityScore)
	fmt.Fprintf(w, "Files:      %d selected, %d unchanged, %d ignored, %d oversized, %d errors\n\n",
		result.Stats.FilesSelected, result.Stats.FilesUnchanged, result.Stats.FilesIgnored,
		result.Stats.FilesOversized, result.Stats.ProcessingError)

	if len(result.Findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		return nil
	}
	t := newTable(w, "ID", "SEVERITY", "PRIORITY", "CATEGORY", "LOCATION", "DESCRIPTION")
	for _, f := range result.Findings {
		t.AddRow(f.ViolationID, string(f.Severity), string(f.AssignedPriority), string(f.Category),
			location(f), truncate(f.Description, 60))
	}
	return t.Flush()
}

func location(f finding.Finding) string {
	if f.Line > 0 {
		return fmt.Sprintf("%s:%d", f.Location, f.Line)
	}
	return f.Location
}
