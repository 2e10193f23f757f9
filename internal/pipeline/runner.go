package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"prospector/internal/config"
	"prospector/internal/gateway"
	"prospector/internal/logging"
	"prospector/internal/memory"
	"prospector/internal/types"
)

// JobStore is the persistence surface the runner needs. Satisfied by
// store.LocalStore.
type JobStore interface {
	GetJob(id string) (*types.Job, error)
	UpdateJobStatus(id string, next types.JobStatus, message string) error
	SetJobVertical(id string, v types.Vertical) error
	SetJobWarnings(id string, warnings []string) error
	AttachReport(id string, r *types.Report) error
	AttachCaseStudies(id string, cs []types.CompetitorCaseStudy) error
	AttachGapAnalysis(id string, g *types.GapAnalysis) error
	AttachInternalOps(id string, intel *types.InternalOpsIntel) error
}

// Runner drives jobs through the stage table. Start is idempotent and
// asynchronous: a pending job is claimed, flipped to running and
// executed on a worker slot; any later Start returns the current
// snapshot without re-executing.
type Runner struct {
	store JobStore
	gw    gateway.Gateway
	mem   *memory.Store
	cfg   *config.Config
	sched *Scheduler

	group   singleflight.Group
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	onDone func(*types.Job)
}

// NewRunner creates a runner. mem may be nil to disable memory lookups
// and capture.
func NewRunner(st JobStore, gw gateway.Gateway, mem *memory.Store, cfg *config.Config) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:   st,
		gw:      gw,
		mem:     mem,
		cfg:     cfg,
		sched:   NewScheduler(cfg.Pipeline.MaxConcurrentJobs),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// SetCompletionHook registers a callback invoked with the job snapshot
// after it reaches a terminal state.
func (r *Runner) SetCompletionHook(fn func(*types.Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDone = fn
}

// Start begins executing a pending job. Safe to call concurrently and
// repeatedly: only the first call on a pending job triggers execution,
// every call returns the job's current snapshot. inherited may be nil;
// it is passed through to the research stage for iteration jobs.
func (r *Runner) Start(jobID string, inherited *types.InheritedContext) (*types.Job, error) {
	v, err, _ := r.group.Do(jobID, func() (interface{}, error) {
		job, err := r.store.GetJob(jobID)
		if err != nil {
			return nil, err
		}
		if job.Status != types.StatusPending {
			logging.PipelineDebug("Start(%s): status=%s, not re-executing", jobID, job.Status)
			return job, nil
		}

		if err := r.store.UpdateJobStatus(jobID, types.StatusRunning, ""); err != nil {
			// lost the claim; report whatever the job is now
			cur, gerr := r.store.GetJob(jobID)
			if gerr != nil {
				return nil, gerr
			}
			return cur, nil
		}
		job.Status = types.StatusRunning

		r.wg.Add(1)
		go r.execute(jobID, inherited)
		logging.Pipeline("Start(%s): claimed, executing asynchronously", jobID)
		return job, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Job), nil
}

// Wait blocks until all in-flight jobs finish. Test and shutdown hook.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels in-flight jobs at the next stage boundary and waits
// for them to settle.
func (r *Runner) Shutdown() {
	r.cancel()
	r.wg.Wait()
	r.sched.Stop()
}

// Metrics exposes the scheduler counters.
func (r *Runner) Metrics() SchedulerMetrics {
	return r.sched.Metrics()
}

// execute runs the full stage table for one job. The fault boundary is
// the job: a stage panic fails the job, never the process.
func (r *Runner) execute(jobID string, inherited *types.InheritedContext) {
	defer r.wg.Done()

	timeout := r.cfg.GetJobTimeout()
	ctx, cancel := context.WithTimeout(r.baseCtx, timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			logging.PipelineError("job %s: stage panic: %v", jobID, rec)
			r.finishFailed(jobID, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	if err := r.sched.Acquire(ctx, jobID); err != nil {
		r.finishFailed(jobID, r.describeAbort(ctx, "queue", err, timeout))
		return
	}
	defer r.sched.Release(jobID)

	job, err := r.store.GetJob(jobID)
	if err != nil {
		logging.PipelineError("job %s: vanished before execution: %v", jobID, err)
		return
	}

	sc := &StageContext{
		Job:       job,
		Inherited: inherited,
		Gateway:   r.gw,
		Memory:    r.mem,
		Config:    r.cfg,
	}

	var warnings []string
	for _, desc := range Stages() {
		if !desc.Enabled(&r.cfg.Pipeline) {
			continue
		}
		// cancellation boundary: never enter a stage on a dead context
		if err := ctx.Err(); err != nil {
			r.finishFailed(jobID, r.describeAbort(ctx, desc.Name, err, timeout))
			return
		}

		err := r.runStageWithRetry(ctx, desc, sc)
		if err != nil {
			cause := rootMessage(err)
			if desc.Required {
				if ctx.Err() != nil {
					r.finishFailed(jobID, r.describeAbort(ctx, desc.Name, err, timeout))
				} else {
					r.finishFailed(jobID, fmt.Sprintf("%s: %s", desc.Name, cause))
				}
				return
			}
			warnings = append(warnings, fmt.Sprintf("%s: %s", desc.Name, cause))
			if werr := r.store.SetJobWarnings(jobID, warnings); werr != nil {
				logging.PipelineWarn("job %s: failed to persist warnings: %v", jobID, werr)
			}
			logging.PipelineWarn("job %s: best-effort stage %s failed: %s", jobID, desc.Name, cause)
			continue
		}
		// a result produced while cancellation was in flight is discarded,
		// not persisted
		if err := ctx.Err(); err != nil {
			r.finishFailed(jobID, r.describeAbort(ctx, desc.Name, err, timeout))
			return
		}
		r.persistStage(jobID, desc.Name, sc)
	}

	if err := r.store.UpdateJobStatus(jobID, types.StatusCompleted, ""); err != nil {
		logging.PipelineError("job %s: failed to mark completed: %v", jobID, err)
		return
	}
	logging.Pipeline("job %s: completed (%d warnings)", jobID, len(warnings))
	r.notifyDone(jobID)
}

// runStageWithRetry retries transient errors with exponential backoff
// (base doubled per attempt). Validation and permanent errors return
// immediately.
func (r *Runner) runStageWithRetry(ctx context.Context, desc StageDescriptor, sc *StageContext) error {
	base := r.cfg.GetRetryBackoff()
	maxRetries := r.cfg.Pipeline.RetryMax

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := base << (attempt - 1)
			logging.StageWarn("%s: retrying in %v (attempt %d/%d): %v",
				desc.Name, backoff, attempt, maxRetries, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		timer := logging.StartTimer(logging.CategoryStage, desc.Name)
		err := desc.Run(ctx, sc)
		timer.Stop()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransient(err) || ctx.Err() != nil {
			return err
		}
	}
	return lastErr
}

// persistStage writes the stage's result so partials are visible to
// polling callers before the job reaches a terminal state.
func (r *Runner) persistStage(jobID, stage string, sc *StageContext) {
	var err error
	switch stage {
	case StageDeepResearch:
		err = r.store.AttachReport(jobID, sc.Report)
	case StageClassify, StageFinalize:
		err = r.store.SetJobVertical(jobID, sc.Vertical)
	case StageCompetitorScout:
		err = r.store.AttachCaseStudies(jobID, sc.CaseStudies)
	case StageGapAnalysis:
		err = r.store.AttachGapAnalysis(jobID, sc.Gaps)
	case StageInternalOps:
		err = r.store.AttachInternalOps(jobID, sc.InternalOps)
	}
	if err != nil {
		logging.PipelineWarn("job %s: failed to persist %s result: %v", jobID, stage, err)
	}
}

func (r *Runner) finishFailed(jobID, msg string) {
	if err := r.store.UpdateJobStatus(jobID, types.StatusFailed, msg); err != nil {
		// already terminal, nothing to do
		logging.PipelineDebug("job %s: fail transition skipped: %v", jobID, err)
		return
	}
	logging.Pipeline("job %s: failed: %s", jobID, msg)
	r.notifyDone(jobID)
}

func (r *Runner) notifyDone(jobID string) {
	r.mu.Lock()
	hook := r.onDone
	r.mu.Unlock()
	if hook == nil {
		return
	}
	if job, err := r.store.GetJob(jobID); err == nil {
		hook(job)
	}
}

// describeAbort names why a stage boundary aborted the run.
func (r *Runner) describeAbort(ctx context.Context, stage string, err error, timeout time.Duration) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("%s: job timed out after %v", stage, timeout)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Sprintf("%s: job cancelled", stage)
	}
	return fmt.Sprintf("%s: %v", stage, err)
}

// isTransient reports whether the error is worth retrying: provider
// rate limits and availability blips, plus anything explicitly tagged.
func isTransient(err error) bool {
	var se *types.StageError
	if errors.As(err, &se) {
		return se.Kind == types.KindTransient
	}
	return gateway.IsTransient(err)
}

// rootMessage unwraps a StageError to its cause text for job error and
// warning strings.
func rootMessage(err error) string {
	var se *types.StageError
	if errors.As(err, &se) {
		return se.Err.Error()
	}
	return err.Error()
}
