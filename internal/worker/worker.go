// Package worker runs the generic stage consumer loop: receive, decode,
// handle, and apply the retry policy on failure.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ammobase/harvester/internal/metrics"
	"github.com/ammobase/harvester/internal/queue"
	"github.com/ammobase/harvester/internal/store"
	"github.com/ammobase/harvester/pkg/types"
)

// Handler processes one delivered message. The returned execution id ties
// the failure bookkeeping to the right audit trail; it may be empty when
// the payload carries none (or could not be decoded).
type Handler interface {
	Handle(ctx context.Context, msg queue.Message) (executionID string, err error)
}

// JobFunc adapts a typed stage handler into a Handler. execID extracts the
// execution id from a decoded job; a malformed payload is a permanent
// failure since redelivery cannot fix it.
func JobFunc[J any](execID func(J) string, fn func(context.Context, J) error) Handler {
	return jobFunc[J]{execID: execID, fn: fn}
}

type jobFunc[J any] struct {
	execID func(J) string
	fn     func(context.Context, J) error
}

func (h jobFunc[J]) Handle(ctx context.Context, msg queue.Message) (string, error) {
	var job J
	if _, err := queue.Decode(msg, &job); err != nil {
		return "", queue.Permanent(err)
	}
	return h.execID(job), h.fn(ctx, job)
}

// Pool consumes one stage's queue with a fixed concurrency ceiling.
type Pool struct {
	queue       queue.Queue
	store       store.Store
	stage       types.Stage
	handler     Handler
	retry       types.RetryPolicy
	concurrency int
	idleWait    time.Duration
	logger      *slog.Logger
}

// NewPool creates a Pool.
func NewPool(q queue.Queue, st store.Store, stage types.Stage, handler Handler, retry types.RetryPolicy, concurrency int, logger *slog.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:       q,
		store:       st,
		stage:       stage,
		handler:     handler,
		retry:       retry,
		concurrency: concurrency,
		idleWait:    time.Second,
		logger:      logger.With("stage", stage),
	}
}

// Run consumes until the context is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool started", "concurrency", p.concurrency)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		g.Go(func() error { return p.loop(ctx) })
	}
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, err := p.queue.Receive(ctx, p.stage, 10)
		if err != nil {
			p.logger.Error("receive failed", "error", err)
			p.wait(ctx)
			continue
		}
		if len(msgs) == 0 {
			p.wait(ctx)
			continue
		}
		for _, msg := range msgs {
			p.Process(ctx, msg)
		}
	}
}

func (p *Pool) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.idleWait):
	}
}

// Process runs one message through the handler and settles it: delete on
// success, re-enqueue with backoff on a retryable failure, mark the
// execution FAILED once attempts are exhausted or the failure is permanent.
func (p *Pool) Process(ctx context.Context, msg queue.Message) {
	executionID, err := p.handler.Handle(ctx, msg)
	if err == nil {
		if derr := p.queue.Delete(ctx, p.stage, msg); derr != nil {
			p.logger.Error("delete failed", "error", derr)
		}
		return
	}

	category := queue.Classify(err)
	if queue.IsRetryable(p.retry, category) && msg.Attempt < p.retry.MaxAttempts {
		p.scheduleRetry(ctx, msg, executionID, category, err)
		return
	}

	p.fail(ctx, executionID, msg.Attempt, category, err)
	if derr := p.queue.Delete(ctx, p.stage, msg); derr != nil {
		p.logger.Error("delete failed", "error", derr)
	}
}

func (p *Pool) scheduleRetry(ctx context.Context, msg queue.Message, executionID string, category types.FailureCategory, cause error) {
	next := msg.Attempt + 1
	backoff := queue.CalculateBackoff(p.retry, msg.Attempt)
	opts := queue.Options{
		Attempt: next,
		Delay:   backoff,
	}
	if executionID != "" {
		opts.DedupID = fmt.Sprintf("%s:attempt:%d", queue.JobID(executionID, p.stage), next)
	}
	if err := queue.Reattempt(ctx, p.queue, p.stage, msg, opts); err != nil {
		// Leave the message in flight; the visibility timeout redelivers it.
		p.logger.Error("retry enqueue failed", "error", err)
		return
	}
	metrics.RetriesScheduled.Add(1)
	p.logger.Warn("job failed, retry scheduled",
		"execution", executionID, "category", category, "attempt", msg.Attempt, "next", next, "backoff", backoff, "error", cause)
	if derr := p.queue.Delete(ctx, p.stage, msg); derr != nil {
		p.logger.Error("delete failed", "error", derr)
	}
}

// fail records the terminal failure on the execution and its audit trail.
func (p *Pool) fail(ctx context.Context, executionID string, attempt int, category types.FailureCategory, cause error) {
	p.logger.Error("job failed terminally",
		"execution", executionID, "category", category, "attempt", attempt, "error", cause)
	if executionID == "" {
		return
	}
	metrics.ExecutionsFailed.Add(1)

	msg := fmt.Sprintf("%s stage failed (%s): %v", p.stage, category, cause)
	if err := p.store.CompleteExecution(ctx, executionID, types.ExecutionFailed, 0, 0, msg); err != nil {
		p.logger.Error("failed to mark execution FAILED", "execution", executionID, "error", err)
	}
	err := p.store.AppendLog(ctx, types.ExecutionLog{
		ExecutionID: executionID,
		Level:       types.LogError,
		Event:       types.EventExecutionFailed,
		Message:     msg,
		Metadata:    map[string]any{"stage": p.stage, "category": category, "attempt": attempt},
	})
	if err != nil {
		p.logger.Error("failed to append execution log", "execution", executionID, "error", err)
	}
}
