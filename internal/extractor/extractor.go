// Package extractor turns raw fetched bytes into untyped raw item records.
// Concrete per-site adapters implement Extractor; the generic JSON extractor
// is the default. Known affiliate feeds bypass this stage via ParseFeed.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ammobase/harvester/internal/metrics"
	"github.com/ammobase/harvester/internal/queue"
	"github.com/ammobase/harvester/internal/store"
	"github.com/ammobase/harvester/pkg/types"
)

// Extractor is the adapter contract: raw bytes in, raw item records out.
type Extractor interface {
	Extract(content []byte) ([]types.RawItem, error)
	Name() string
}

// JSONExtractor handles the common JSON response shapes: a bare array, or
// an object wrapping the list under a well-known key.
type JSONExtractor struct{}

func (JSONExtractor) Name() string { return "json" }

var wrapperKeys = []string{"items", "products", "listings", "data"}

// Extract parses content into raw items.
func (JSONExtractor) Extract(content []byte) ([]types.RawItem, error) {
	var items []types.RawItem
	if err := json.Unmarshal(content, &items); err == nil {
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(content, &wrapper); err != nil {
		return nil, fmt.Errorf("content is neither a JSON array nor object: %w", err)
	}
	for _, key := range wrapperKeys {
		raw, ok := wrapper[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decoding %q list: %w", key, err)
		}
		return items, nil
	}
	return nil, fmt.Errorf("no item list found under %v", wrapperKeys)
}

// Runner executes extract jobs and forwards raw items to the Normalizer.
type Runner struct {
	store     store.Store
	queue     queue.Queue
	extractor Extractor
	maxItems  int
	logger    *slog.Logger
}

// NewRunner creates an extract-stage runner. A nil extractor uses the
// generic JSON extractor.
func NewRunner(st store.Store, q queue.Queue, ex Extractor, maxItems int, logger *slog.Logger) *Runner {
	if ex == nil {
		ex = JSONExtractor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: st, queue: q, extractor: ex, maxItems: maxItems, logger: logger}
}

// Handle runs one extract job.
func (r *Runner) Handle(ctx context.Context, job types.ExtractJob) error {
	items, err := r.extractor.Extract(job.Content)
	if err != nil {
		// Malformed content will not improve on retry.
		return queue.Permanent(fmt.Errorf("extractor %s: %w", r.extractor.Name(), err))
	}

	if r.maxItems > 0 && len(items) > r.maxItems {
		metrics.CapsReached.Add(1)
		r.appendLog(ctx, job.ExecutionID, types.LogWarn, types.EventCapReached,
			"item cap reached, truncating", map[string]any{
				"items": len(items), "maxItems": r.maxItems,
			})
		items = items[:r.maxItems]
	}

	r.appendLog(ctx, job.ExecutionID, types.LogInfo, types.EventItemsExtracted,
		"items extracted", map[string]any{"items": len(items), "extractor": r.extractor.Name()})

	normJob := types.NormalizeJob{
		ExecutionID: job.ExecutionID,
		SourceID:    job.SourceID,
		RawItems:    items,
		ContentHash: job.ContentHash,
	}
	return queue.Publish(ctx, r.queue, types.StageNormalize, normJob, queue.Options{
		DedupID: queue.JobID(job.ExecutionID, types.StageNormalize),
	})
}

func (r *Runner) appendLog(ctx context.Context, executionID string, level types.LogLevel, event types.EventCode, msg string, meta map[string]any) {
	err := r.store.AppendLog(ctx, types.ExecutionLog{
		ExecutionID: executionID,
		Level:       level,
		Event:       event,
		Message:     msg,
		Metadata:    meta,
	})
	if err != nil {
		r.logger.Error("failed to append execution log", "execution", executionID, "error", err)
	}
}
