// Package writer persists normalized items in bounded transactional
// batches and fans out the resulting price changes to alerting and
// resolution.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ammobase/harvester/internal/metrics"
	"github.com/ammobase/harvester/internal/queue"
	"github.com/ammobase/harvester/internal/store"
	"github.com/ammobase/harvester/pkg/types"
)

// Writer executes write jobs.
type Writer struct {
	store    store.Store
	queue    queue.Queue
	cfg      types.WriteConfig
	variance *metrics.Variance
	logger   *slog.Logger
}

// New creates a Writer. variance may be nil when metrics are disabled.
func New(st store.Store, q queue.Queue, cfg types.WriteConfig, variance *metrics.Variance, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: st, queue: q, cfg: cfg, variance: variance, logger: logger}
}

// Handle persists one execution's items. Each batch is applied in a single
// transaction; a failed batch falls back to per-item writes so one poisoned
// item cannot block the rest. The run fails only when every item fails.
//
// Writes are idempotent: re-delivery of the same job inserts no duplicate
// price rows, so a retry after a partial run is safe.
func (w *Writer) Handle(ctx context.Context, job types.WriteJob) error {
	src, err := w.store.GetSource(ctx, job.SourceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return queue.Permanent(fmt.Errorf("source %s: %w", job.SourceID, err))
		}
		return err
	}

	batchSize := w.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	var (
		upserted int
		failed   int
		sample   []string
		results  = make([]store.ItemResult, 0, len(job.Items))
	)

	for start := 0; start < len(job.Items); start += batchSize {
		end := start + batchSize
		if end > len(job.Items) {
			end = len(job.Items)
		}
		chunk := job.Items[start:end]

		res, err := w.store.UpsertItems(ctx, *src, job.ExecutionID, chunk)
		if err == nil {
			upserted += len(chunk)
			results = append(results, res...)
			w.appendLog(ctx, job.ExecutionID, types.LogInfo, types.EventBatchWritten,
				"batch written", map[string]any{"offset": start, "items": len(chunk)})
			continue
		}

		metrics.BatchFallbacks.Add(1)
		w.appendLog(ctx, job.ExecutionID, types.LogWarn, types.EventBatchFellBack,
			"batch transaction failed, retrying items individually",
			map[string]any{"offset": start, "items": len(chunk), "error": err.Error()})

		for _, item := range chunk {
			r, err := w.store.UpsertItem(ctx, *src, job.ExecutionID, item)
			if err != nil {
				failed++
				if len(sample) < w.cfg.ErrorSampleSize {
					sample = append(sample, fmt.Sprintf("%s: %v", item.URL, err))
					w.appendLog(ctx, job.ExecutionID, types.LogWarn, types.EventItemWriteFailed,
						"item write failed", map[string]any{"url": item.URL, "error": err.Error()})
				}
				continue
			}
			upserted++
			results = append(results, r)
		}
	}
	metrics.ProductsUpserted.Add(int64(upserted))

	if len(job.Items) > 0 && upserted == 0 {
		return fmt.Errorf("all %d items failed to write: %s", failed, strings.Join(sample, "; "))
	}

	changes := w.recordChanges(ctx, job.ExecutionID, *src, results)

	status := fmt.Sprintf("%d/%d items upserted", upserted, len(job.Items))
	if failed > 0 {
		status += fmt.Sprintf(" (%d failed)", failed)
	}
	if err := w.store.CompleteExecution(ctx, job.ExecutionID, types.ExecutionSuccess, len(job.Items), upserted, ""); err != nil {
		return fmt.Errorf("complete execution: %w", err)
	}
	metrics.ExecutionsSucceeded.Add(1)
	w.appendLog(ctx, job.ExecutionID, types.LogInfo, types.EventExecutionDone, status,
		map[string]any{"found": len(job.Items), "upserted": upserted, "failed": failed, "priceChanges": len(changes)})

	// The fingerprint is persisted only once the write landed, so a failed
	// run never masks the next attempt behind an unchanged-feed check.
	if job.ContentHash != "" {
		if err := w.store.UpdateFeedHash(ctx, src.ID, job.ContentHash); err != nil {
			w.logger.Error("failed to persist feed hash", "source", src.ID, "error", err)
		}
	}

	w.fanOut(ctx, job.ExecutionID, job.SourceID, changes, results)
	return nil
}

// recordChanges emits variance observations and audit entries for every
// inserted price row, returning the changes for alert fan-out.
func (w *Writer) recordChanges(ctx context.Context, executionID string, src types.Source, results []store.ItemResult) []types.PriceChange {
	var changes []types.PriceChange
	for _, r := range results {
		if r.Change == nil {
			continue
		}
		metrics.PricesInserted.Add(1)
		ch := *r.Change
		changes = append(changes, ch)

		meta := map[string]any{
			"product": ch.ProductID, "retailer": ch.RetailerID,
			"newPrice": ch.NewPrice, "inStock": ch.InStock,
		}
		if ch.OldPrice == nil || *ch.OldPrice <= 0 {
			w.appendLog(ctx, executionID, types.LogInfo, types.EventPriceChanged, "first price observed", meta)
			continue
		}

		deltaPct := (ch.NewPrice - *ch.OldPrice) / *ch.OldPrice * 100
		meta["oldPrice"] = *ch.OldPrice
		meta["deltaPct"] = deltaPct
		w.variance.Observe(ctx, deltaPct, w.cfg.VarianceThresholdPct, src.Kind, types.VarianceAccepted)
		w.appendLog(ctx, executionID, types.LogInfo, types.EventPriceChanged, "price changed", meta)

		abs := deltaPct
		if abs < 0 {
			abs = -abs
		}
		if abs > w.cfg.VarianceThresholdPct {
			meta["bucket"] = metrics.VarianceBucket(deltaPct)
			w.appendLog(ctx, executionID, types.LogWarn, types.EventVarianceExceeded,
				"price variance exceeded threshold", meta)
		}
	}
	return changes
}

// fanOut enqueues one alert job per price change and one resolve job per
// upserted source product. Enqueue failures are logged and skipped; the
// write has already landed and re-running it would not regenerate the
// changes, so downstream fan-out is best effort.
func (w *Writer) fanOut(ctx context.Context, executionID, sourceID string, changes []types.PriceChange, results []store.ItemResult) {
	for _, ch := range changes {
		err := queue.Publish(ctx, w.queue, types.StageAlert, types.AlertJob{Change: ch}, queue.Options{
			DedupID: queue.JobID(executionID, types.StageAlert, ch.ProductID, ch.RetailerID),
		})
		if err != nil {
			w.logger.Error("failed to enqueue alert job", "execution", executionID, "product", ch.ProductID, "error", err)
			continue
		}
		w.appendLog(ctx, executionID, types.LogInfo, types.EventJobEnqueued, "alert job enqueued",
			map[string]any{"stage": types.StageAlert, "product": ch.ProductID})
	}

	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if r.SourceProductID == "" {
			continue
		}
		if _, ok := seen[r.SourceProductID]; ok {
			continue
		}
		seen[r.SourceProductID] = struct{}{}
		err := queue.Publish(ctx, w.queue, types.StageResolve, types.ResolveJob{
			SourceProductID: r.SourceProductID,
			SourceID:        sourceID,
		}, queue.Options{
			DedupID: queue.JobID(executionID, types.StageResolve, r.SourceProductID),
		})
		if err != nil {
			w.logger.Error("failed to enqueue resolve job", "execution", executionID, "sourceProduct", r.SourceProductID, "error", err)
		}
	}
}

func (w *Writer) appendLog(ctx context.Context, executionID string, level types.LogLevel, event types.EventCode, msg string, meta map[string]any) {
	err := w.store.AppendLog(ctx, types.ExecutionLog{
		ExecutionID: executionID,
		Level:       level,
		Event:       event,
		Message:     msg,
		Metadata:    meta,
	})
	if err != nil {
		w.logger.Error("failed to append execution log", "execution", executionID, "error", err)
	}
}
