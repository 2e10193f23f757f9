package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"prospector/internal/logging"
)

// Scheduler bounds concurrent job execution with a semaphore of worker
// slots sized to the LLM provider's concurrency limit. Acquisition
// blocks until a slot frees; jobs queue, they are never dropped.
type Scheduler struct {
	maxSlots int
	slots    chan struct{}

	totalRuns        int64
	totalWaitTime    int64 // nanoseconds
	currentlyWaiting int32
	currentlyRunning int32

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler with the given slot count.
func NewScheduler(maxSlots int) *Scheduler {
	if maxSlots <= 0 {
		maxSlots = 1
	}
	return &Scheduler{
		maxSlots: maxSlots,
		slots:    make(chan struct{}, maxSlots),
		stopCh:   make(chan struct{}),
	}
}

// Acquire blocks until a worker slot is available, the context is
// cancelled, or the scheduler is stopped.
func (s *Scheduler) Acquire(ctx context.Context, jobID string) error {
	waitStart := time.Now()
	atomic.AddInt32(&s.currentlyWaiting, 1)
	defer atomic.AddInt32(&s.currentlyWaiting, -1)

	if len(s.slots) >= s.maxSlots {
		logging.Pipeline("Scheduler: job %s waiting for slot (active=%d/%d, waiting=%d)",
			jobID, len(s.slots), s.maxSlots, atomic.LoadInt32(&s.currentlyWaiting))
	}

	select {
	case s.slots <- struct{}{}:
		waited := time.Since(waitStart)
		atomic.AddInt64(&s.totalWaitTime, int64(waited))
		atomic.AddInt32(&s.currentlyRunning, 1)
		if waited > 100*time.Millisecond {
			logging.Pipeline("Scheduler: job %s acquired slot after %v", jobID, waited)
		}
		return nil
	case <-ctx.Done():
		logging.PipelineWarn("Scheduler: job %s cancelled while waiting for slot (waited %v)",
			jobID, time.Since(waitStart))
		return ctx.Err()
	case <-s.stopCh:
		return fmt.Errorf("scheduler stopped")
	}
}

// Release frees the worker slot after a job finishes.
func (s *Scheduler) Release(jobID string) {
	select {
	case <-s.slots:
	default:
		logging.PipelineError("Scheduler: job %s released slot it didn't hold", jobID)
		return
	}
	atomic.AddInt32(&s.currentlyRunning, -1)
	atomic.AddInt64(&s.totalRuns, 1)
	logging.PipelineDebug("Scheduler: job %s released slot (total_runs=%d)",
		jobID, atomic.LoadInt64(&s.totalRuns))
}

// Stop shuts down the scheduler; waiters receive an error. Safe to
// call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// SchedulerMetrics provides observability into scheduler state.
type SchedulerMetrics struct {
	MaxSlots        int
	ActiveSlots     int
	WaitingJobs     int
	TotalRuns       int64
	TotalWaitTimeNs int64
}

// Metrics returns a snapshot of current counters.
func (s *Scheduler) Metrics() SchedulerMetrics {
	return SchedulerMetrics{
		MaxSlots:        s.maxSlots,
		ActiveSlots:     int(atomic.LoadInt32(&s.currentlyRunning)),
		WaitingJobs:     int(atomic.LoadInt32(&s.currentlyWaiting)),
		TotalRuns:       atomic.LoadInt64(&s.totalRuns),
		TotalWaitTimeNs: atomic.LoadInt64(&s.totalWaitTime),
	}
}

// String returns a human-readable summary.
func (m SchedulerMetrics) String() string {
	avgWait := time.Duration(0)
	if m.TotalRuns > 0 {
		avgWait = time.Duration(m.TotalWaitTimeNs / m.TotalRuns)
	}
	return fmt.Sprintf("slots=%d/%d, waiting=%d, runs=%d, avg_wait=%v",
		m.ActiveSlots, m.MaxSlots, m.WaitingJobs, m.TotalRuns, avgWait)
}
