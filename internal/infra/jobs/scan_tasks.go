package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/domain/shared"
	"github.com/auditflow/api/pkg/logger"
)

const (
	// TypeScanRepository is the task type carrying a scan trigger.
	TypeScanRepository = "scan:repository"

	// QueueScans is the queue scan tasks are processed from.
	QueueScans = "scans"
)

// NewScanTask creates a scan task. Scans are never retried by the queue;
// a failed scan is final and the user requests a new one.
func NewScanTask(trigger scanjob.Trigger, timeout time.Duration) (*asynq.Task, error) {
	if err := trigger.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(trigger)
	if err != nil {
		return nil, fmt.Errorf("marshal scan trigger: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Queue(QueueScans),
		asynq.TaskID(trigger.ScanID),
	}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(TypeScanRepository, data, opts...), nil
}

// ScanRunner executes one scan end to end.
type ScanRunner interface {
	Run(ctx context.Context, trigger scanjob.Trigger) error
}

// ScanTaskHandler handles scan tasks.
type ScanTaskHandler struct {
	runner ScanRunner
	logger *logger.Logger
}

// NewScanTaskHandler creates a new scan task handler.
func NewScanTaskHandler(runner ScanRunner, log *logger.Logger) *ScanTaskHandler {
	return &ScanTaskHandler{
		runner: runner,
		logger: log.With("component", "scan_task_handler"),
	}
}

// HandleScan runs the scan named by the task payload. Malformed payloads and
// triggers that can never succeed are returned wrapped in asynq.SkipRetry.
func (h *ScanTaskHandler) HandleScan(ctx context.Context, t *asynq.Task) error {
	var trigger scanjob.Trigger
	if err := json.Unmarshal(t.Payload(), &trigger); err != nil {
		h.logger.Error("failed to unmarshal scan trigger", "error", err)
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := trigger.Validate(); err != nil {
		h.logger.Error("invalid scan trigger", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With("scan_id", trigger.ScanID, "repo_id", trigger.RepoID)
	log.Info("processing scan task")

	if err := h.runner.Run(ctx, trigger); err != nil {
		log.Error("scan task failed", "error", err)
		if isPermanent(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	log.Info("scan task completed")
	return nil
}

// RegisterHandlers registers the scan handler with the asynq server mux.
func (h *ScanTaskHandler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeScanRepository, h.HandleScan)
}

func isPermanent(err error) bool {
	return shared.IsValidation(err) || shared.IsNotFound(err) || shared.IsConflict(err)
}
