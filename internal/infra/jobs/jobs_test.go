package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/api/internal/app/scan"
	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/domain/shared"
	"github.com/auditflow/api/pkg/logger"
)

type fakeRunner struct {
	err      error
	received []scanjob.Trigger
}

func (f *fakeRunner) Run(_ context.Context, trigger scanjob.Trigger) error {
	f.received = append(f.received, trigger)
	return f.err
}

func TestNewScanTask(t *testing.T) {
	trigger := scanjob.Trigger{RepoID: 7, UserID: "alice", ScanID: "scan-1"}

	task, err := NewScanTask(trigger, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TypeScanRepository, task.Type())

	var decoded scanjob.Trigger
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, trigger, decoded)

	_, err = NewScanTask(scanjob.Trigger{RepoID: 7, UserID: "alice"}, 0)
	assert.True(t, shared.IsValidation(err))
}

func TestScanTaskHandler_HandleScan(t *testing.T) {
	valid, err := json.Marshal(scanjob.Trigger{RepoID: 1, UserID: "alice", ScanID: "scan-1"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		payload   []byte
		runErr    error
		wantErr   bool
		wantSkip  bool
		wantCalls int
	}{
		{name: "success", payload: valid, wantCalls: 1},
		{name: "malformed payload", payload: []byte("{"), wantErr: true, wantSkip: true},
		{name: "missing scan id", payload: []byte(`{"repo_id":1,"user_id":"alice"}`), wantErr: true, wantSkip: true},
		{name: "job not found", payload: valid, runErr: shared.NotFound("scan", "scan-1"), wantErr: true, wantSkip: true, wantCalls: 1},
		{name: "job not queued", payload: valid, runErr: shared.Invalid("scan is not queued"), wantErr: true, wantSkip: true, wantCalls: 1},
		{name: "infrastructure failure", payload: valid, runErr: errors.New("connection reset"), wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.runErr}
			h := NewScanTaskHandler(runner, logger.NewNop())

			err := h.HandleScan(context.Background(), asynq.NewTask(TypeScanRepository, tt.payload))
			assert.Len(t, runner.received, tt.wantCalls)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantSkip, errors.Is(err, asynq.SkipRetry))
			if tt.runErr != nil {
				assert.ErrorIs(t, err, tt.runErr)
			}
		})
	}
}

type fakeRecoverer struct {
	mu     sync.Mutex
	calls  []scan.RecoverStuckInput
	output scan.RecoverStuckOutput
	err    error
}

func (f *fakeRecoverer) RecoverStuckScans(_ context.Context, input scan.RecoverStuckInput) (scan.RecoverStuckOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, input)
	return f.output, f.err
}

func TestScanRecoveryJob(t *testing.T) {
	cfg := &config.WorkerConfig{
		RecoveryEnabled:  true,
		RecoverySchedule: "@every 1h",
		StuckAfter:       30 * time.Minute,
		RecoveryBatch:    20,
	}

	t.Run("run once passes thresholds", func(t *testing.T) {
		rec := &fakeRecoverer{output: scan.RecoverStuckOutput{Total: 2, Recovered: 2}}
		NewScanRecoveryJob(rec, cfg, logger.NewNop()).RunOnce()

		require.Len(t, rec.calls, 1)
		assert.Equal(t, 30*time.Minute, rec.calls[0].StuckAfter)
		assert.Equal(t, 20, rec.calls[0].Limit)
	})

	t.Run("recoverer error is logged", func(t *testing.T) {
		rec := &fakeRecoverer{err: errors.New("db down")}
		assert.NotPanics(t, NewScanRecoveryJob(rec, cfg, logger.NewNop()).RunOnce)
	})

	t.Run("disabled does not schedule", func(t *testing.T) {
		disabled := *cfg
		disabled.RecoveryEnabled = false
		rec := &fakeRecoverer{}
		job := NewScanRecoveryJob(rec, &disabled, logger.NewNop())

		require.NoError(t, job.Start())
		job.Stop()
		assert.Empty(t, rec.calls)
	})

	t.Run("invalid schedule", func(t *testing.T) {
		bad := *cfg
		bad.RecoverySchedule = "not a schedule"
		err := NewScanRecoveryJob(&fakeRecoverer{}, &bad, logger.NewNop()).Start()
		assert.Error(t, err)
	})

	t.Run("start runs immediately", func(t *testing.T) {
		rec := &fakeRecoverer{}
		job := NewScanRecoveryJob(rec, cfg, logger.NewNop())
		require.NoError(t, job.Start())
		defer job.Stop()

		assert.Eventually(t, func() bool {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			return len(rec.calls) == 1
		}, time.Second, 10*time.Millisecond)
	})
}
