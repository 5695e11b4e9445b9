package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docfill-backend/internal/shared/metrics"
	"docfill-backend/internal/shared/telemetry"
)

// ErrRunnerClosed is returned by Send after Close.
var ErrRunnerClosed = errors.New("job runner closed")

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Delays  Delays
	Timeout time.Duration
}

// Runner executes jobs in-process after a per-kind delay.
// Each document has at most one cancellable job; a newer Send replaces the handle.
type Runner struct {
	processor Processor
	opts      RunnerOptions

	mu      sync.Mutex
	seq     uint64
	jobs    map[string]runnerJob
	closed  bool
	pending sync.WaitGroup
}

type runnerJob struct {
	seq    uint64
	cancel context.CancelFunc
}

// NewRunner constructs a Runner that hands due jobs to p.
func NewRunner(p Processor, opts RunnerOptions) *Runner {
	return &Runner{
		processor: p,
		opts:      opts,
		jobs:      make(map[string]runnerJob),
	}
}

// Send schedules msg and returns without waiting for it to run.
func (r *Runner) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if r.processor == nil {
		return errors.New("job runner has no processor")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	r.seq++
	seq := r.seq
	jobCtx, cancel := context.WithCancel(context.Background())
	if prev, ok := r.jobs[msg.DocumentID]; ok {
		prev.cancel()
	}
	r.jobs[msg.DocumentID] = runnerJob{seq: seq, cancel: cancel}
	r.pending.Add(1)
	r.mu.Unlock()

	go r.run(jobCtx, seq, msg)
	return nil
}

// Cancel stops the pending job for documentID, if any.
func (r *Runner) Cancel(documentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[documentID]
	if !ok {
		return false
	}
	job.cancel()
	delete(r.jobs, documentID)
	return true
}

// Pending returns the number of jobs not yet finished.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Close rejects new jobs and waits for scheduled ones until ctx is done.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run(ctx context.Context, seq uint64, msg Message) {
	defer r.pending.Done()
	defer r.release(msg.DocumentID, seq)

	fields := map[string]any{
		"document_id": msg.DocumentID,
		"request_id":  msg.RequestID,
		"kind":        string(msg.Kind),
	}

	if delay := r.opts.Delays.For(msg.Kind); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			metrics.IncJob(string(msg.Kind), metrics.OutcomeSkipped)
			telemetry.Info("job.canceled", fields)
			return
		}
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	if err := r.process(ctx, msg); err != nil {
		fields["error"] = err.Error()
		telemetry.Warn("job.failed", fields)
	}
}

func (r *Runner) process(ctx context.Context, msg Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.processor.ProcessJob(ctx, msg)
}

func (r *Runner) release(documentID string, seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[documentID]; ok && job.seq == seq {
		job.cancel()
		delete(r.jobs, documentID)
	}
}

var _ Client = (*Runner)(nil)
