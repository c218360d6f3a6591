package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/logger"
)

// Client enqueues background jobs using Asynq.
type Client struct {
	client      *asynq.Client
	taskTimeout time.Duration
	logger      *logger.Logger
}

// NewClient creates a job client for enqueueing tasks.
func NewClient(redis *config.RedisConfig, taskTimeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		client:      asynq.NewClient(redisOpt(redis)),
		taskTimeout: taskTimeout,
		logger:      log.With("component", "job_client"),
	}
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueScan hands a scan trigger to the worker queue.
func (c *Client) EnqueueScan(ctx context.Context, trigger scanjob.Trigger) error {
	task, err := NewScanTask(trigger, c.taskTimeout)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			c.logger.Warn("scan already enqueued", "scan_id", trigger.ScanID)
			return nil
		}
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("scan queued",
		"task_id", info.ID,
		"scan_id", trigger.ScanID,
		"repo_id", trigger.RepoID,
		"queue", info.Queue,
	)
	return nil
}
