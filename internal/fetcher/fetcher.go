// Package fetcher retrieves raw content for a source within strict resource
// bounds, detects unchanged feeds, and routes output to the feed-parser or
// generic-extractor path.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/sony/gobreaker"

	"github.com/ammobase/harvester/internal/extractor"
	"github.com/ammobase/harvester/internal/metrics"
	"github.com/ammobase/harvester/internal/queue"
	"github.com/ammobase/harvester/internal/store"
	"github.com/ammobase/harvester/pkg/types"
)

var errPageTooLarge = errors.New("page exceeds size cap")

// Fetcher executes fetch jobs.
type Fetcher struct {
	store  store.Store
	queue  queue.Queue
	client *http.Client
	cfg    types.FetchConfig
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New creates a Fetcher.
func New(st store.Store, q queue.Queue, cfg types.FetchConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		store:    st,
		queue:    q,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// breaker returns the circuit breaker for a host, creating it on first use.
// A repeatedly failing retailer fails fast instead of burning queue retries.
func (f *Fetcher) breaker(host string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb, ok := f.breakers[host]
	if !ok {
		failures := f.cfg.BreakerFailures
		if failures == 0 {
			failures = 5
		}
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    host,
			Timeout: f.cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
		})
		f.breakers[host] = cb
	}
	return cb
}

// Handle runs one fetch job: assemble content, short-circuit unchanged
// feeds, and route downstream. Errors are returned for the worker's retry
// policy; the worker marks the execution FAILED at exhaustion.
func (f *Fetcher) Handle(ctx context.Context, job types.FetchJob) error {
	src, err := f.store.GetSource(ctx, job.SourceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return queue.Permanent(fmt.Errorf("source %s: %w", job.SourceID, err))
		}
		return err
	}

	f.log(ctx, job.ExecutionID, types.LogInfo, types.EventFetchStarted,
		"fetch started", map[string]any{"sourceId": src.ID, "url": src.URL})

	content, pages, err := f.assemble(ctx, *src, job.ExecutionID)
	if err != nil {
		return err
	}

	// Size caps on the first page, or an immediately empty feed, leave
	// nothing collected. That ends the run with zero items; empty content
	// must never flow downstream, where parsers would fail it permanently.
	if pages == 0 {
		f.log(ctx, job.ExecutionID, types.LogWarn, types.EventExecutionDone,
			"no content collected, completing with zero items", map[string]any{"sourceId": src.ID})
		return f.store.CompleteExecution(ctx, job.ExecutionID, types.ExecutionSuccess, 0, 0, "")
	}

	hash := Fingerprint(content)
	if hash == src.FeedHash && src.FeedHash != "" {
		metrics.FeedsUnchanged.Add(1)
		f.log(ctx, job.ExecutionID, types.LogInfo, types.EventFeedUnchanged,
			"content fingerprint unchanged, skipping", map[string]any{"hash": hash})
		return f.store.CompleteExecution(ctx, job.ExecutionID, types.ExecutionSuccess, 0, 0, "")
	}

	f.log(ctx, job.ExecutionID, types.LogInfo, types.EventFetchRouted,
		"content assembled", map[string]any{
			"pages": pages, "bytes": len(content), "hash": hash,
			"network": string(src.Network),
		})

	// Known affiliate networks skip generic extraction: parse the feed here
	// and hand raw items straight to the Normalizer.
	if src.Network != types.NetworkNone {
		items, err := extractor.ParseFeed(src.Network, content)
		if err != nil {
			return queue.Permanent(fmt.Errorf("parsing %s feed: %w", src.Network, err))
		}
		if f.cfg.MaxItems > 0 && len(items) > f.cfg.MaxItems {
			metrics.CapsReached.Add(1)
			f.log(ctx, job.ExecutionID, types.LogWarn, types.EventCapReached,
				"item cap reached, truncating feed", map[string]any{
					"items": len(items), "maxItems": f.cfg.MaxItems,
				})
			items = items[:f.cfg.MaxItems]
		}
		normJob := types.NormalizeJob{
			ExecutionID: job.ExecutionID,
			SourceID:    src.ID,
			RawItems:    items,
			ContentHash: hash,
		}
		f.log(ctx, job.ExecutionID, types.LogInfo, types.EventJobEnqueued,
			"normalize job enqueued", map[string]any{"items": len(items)})
		return queue.Publish(ctx, f.queue, types.StageNormalize, normJob, queue.Options{
			DedupID: queue.JobID(job.ExecutionID, types.StageNormalize),
		})
	}

	extJob := types.ExtractJob{
		ExecutionID: job.ExecutionID,
		SourceID:    src.ID,
		Content:     content,
		SourceKind:  src.Kind,
		ContentHash: hash,
	}
	f.log(ctx, job.ExecutionID, types.LogInfo, types.EventJobEnqueued,
		"extract job enqueued", map[string]any{"bytes": len(content)})
	return queue.Publish(ctx, f.queue, types.StageExtract, extJob, queue.Options{
		DedupID: queue.JobID(job.ExecutionID, types.StageExtract),
	})
}

// assemble fetches all pages for a source, honoring the page, per-page and
// total-size caps. Cap breaches stop pagination with a WARN instead of
// failing the job.
func (f *Fetcher) assemble(ctx context.Context, src types.Source, executionID string) ([]byte, int, error) {
	maxPages, clamped := pageCount(src, f.cfg.MaxPages)
	start := startPage(src)

	var content []byte
	pages := 0
	for i := 0; i < maxPages; i++ {
		u, err := pageURL(src, start+i)
		if err != nil {
			return nil, pages, queue.Permanent(err)
		}

		body, err := f.fetchPage(ctx, u)
		if err != nil {
			if errors.Is(err, errPageTooLarge) {
				metrics.CapsReached.Add(1)
				f.log(ctx, executionID, types.LogWarn, types.EventCapReached,
					"page size cap reached, stopping pagination", map[string]any{
						"page": start + i, "maxPageBytes": f.cfg.MaxPageBytes,
					})
				break
			}
			if pages == 0 {
				return nil, 0, fmt.Errorf("fetching %s: %w", u, err)
			}
			// Later pages failing only cost us partial data.
			f.log(ctx, executionID, types.LogWarn, types.EventCapReached,
				"page fetch failed, stopping pagination", map[string]any{
					"page": start + i, "error": err.Error(),
				})
			break
		}
		if len(body) == 0 {
			break
		}

		body, err = maybeDecompress(u, body, f.cfg.MaxPageBytes)
		if err != nil {
			if errors.Is(err, errPageTooLarge) {
				metrics.CapsReached.Add(1)
				f.log(ctx, executionID, types.LogWarn, types.EventCapReached,
					"inflated page exceeds size cap, stopping pagination", map[string]any{
						"page": start + i,
					})
				break
			}
			return nil, pages, queue.Permanent(fmt.Errorf("decompressing page %d: %w", start+i, err))
		}

		if int64(len(content)+len(body)) > f.cfg.MaxTotalBytes {
			metrics.CapsReached.Add(1)
			f.log(ctx, executionID, types.LogWarn, types.EventCapReached,
				"total size cap reached, stopping pagination", map[string]any{
					"page": start + i, "maxTotalBytes": f.cfg.MaxTotalBytes,
				})
			break
		}

		if pages > 0 {
			content = append(content, '\n')
		}
		content = append(content, body...)
		pages++
		metrics.PagesFetched.Add(1)
	}
	if clamped && pages == maxPages {
		metrics.CapsReached.Add(1)
		f.log(ctx, executionID, types.LogWarn, types.EventCapReached,
			"page ceiling reached, stopping pagination", map[string]any{
				"pages": pages, "maxPages": maxPages,
			})
	}
	return content, pages, nil
}

// fetchPage performs one bounded HTTP GET through the host's circuit breaker.
func (f *Fetcher) fetchPage(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, queue.Permanent(fmt.Errorf("parse url %s: %w", rawURL, err))
	}

	result, err := f.breaker(u.Host).Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, queue.Permanent(err)
		}
		if f.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", f.cfg.UserAgent)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusNoContent:
			return []byte(nil), nil // end of pagination
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return nil, queue.Permanent(fmt.Errorf("upstream status %d", resp.StatusCode))
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxPageBytes+1))
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > f.cfg.MaxPageBytes {
			return nil, errPageTooLarge
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (f *Fetcher) log(ctx context.Context, executionID string, level types.LogLevel, event types.EventCode, msg string, meta map[string]any) {
	entry := types.ExecutionLog{
		ExecutionID: executionID,
		Level:       level,
		Event:       event,
		Message:     msg,
		Metadata:    meta,
	}
	if err := f.store.AppendLog(ctx, entry); err != nil {
		f.logger.Error("failed to append execution log", "execution", executionID, "error", err)
	}
}
