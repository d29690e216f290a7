package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/coordinator"
	"github.com/aristath/aegis/internal/feed"
)

// DefaultWorkflowTimeout bounds one scheduled workflow run.
const DefaultWorkflowTimeout = 2 * time.Minute

// WorkflowRunner executes named workflows.
type WorkflowRunner interface {
	ExecuteWorkflow(ctx context.Context, name string, in agents.Input) coordinator.WorkflowResult
}

// RunRecorder persists finished workflow runs.
type RunRecorder interface {
	RecordWorkflow(ctx context.Context, res coordinator.WorkflowResult) error
}

// WorkflowJob pulls a fresh snapshot and runs one workflow over it.
type WorkflowJob struct {
	workflow string
	feed     feed.SnapshotProvider
	runner   WorkflowRunner
	recorder RunRecorder
	timeout  time.Duration
	log      zerolog.Logger

	mu   sync.Mutex
	last *coordinator.WorkflowResult
}

// NewWorkflowJob creates a job for workflow. recorder may be nil.
func NewWorkflowJob(workflow string, provider feed.SnapshotProvider, runner WorkflowRunner, recorder RunRecorder, log zerolog.Logger) *WorkflowJob {
	return &WorkflowJob{
		workflow: workflow,
		feed:     provider,
		runner:   runner,
		recorder: recorder,
		timeout:  DefaultWorkflowTimeout,
		log:      log.With().Str("job", workflow).Logger(),
	}
}

// SetTimeout overrides DefaultWorkflowTimeout.
func (j *WorkflowJob) SetTimeout(d time.Duration) {
	j.timeout = d
}

// Name returns the job name
func (j *WorkflowJob) Name() string {
	return j.workflow
}

// LastResult is the outcome of the most recent run, or nil.
func (j *WorkflowJob) LastResult() *coordinator.WorkflowResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// Run executes the workflow. A workflow that completes unsuccessfully is
// still recorded, then reported as an error.
func (j *WorkflowJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	in, err := j.feed.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	res := j.runner.ExecuteWorkflow(ctx, j.workflow, in)
	j.mu.Lock()
	j.last = &res
	j.mu.Unlock()

	if j.recorder != nil {
		if err := j.recorder.RecordWorkflow(ctx, res); err != nil {
			j.log.Warn().Err(err).Str("run_id", res.ID).Msg("Failed to record workflow run")
		}
	}

	if !res.Success {
		return fmt.Errorf("workflow %s failed: %s", j.workflow, res.Error)
	}

	evt := j.log.Info().Str("run_id", res.ID).Dur("duration", res.CompletedAt.Sub(res.StartedAt))
	if res.Regime != nil {
		evt = evt.Str("regime", string(res.Regime.Regime))
	}
	if res.Validation != nil {
		evt = evt.Bool("approved", res.Validation.Approved)
	}
	evt.Msg("Workflow completed")
	return nil
}
