// Package normalizer validates raw items and standardizes them into the
// canonical NormalizedProduct shape, including the ammunition-specific
// attribute extraction.
package normalizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ammobase/harvester/internal/metrics"
	"github.com/ammobase/harvester/internal/queue"
	"github.com/ammobase/harvester/internal/store"
	"github.com/ammobase/harvester/pkg/types"
)

// ValidationError describes why one raw item was rejected. Invalid items
// are dropped with a WARN; they never fail the batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Field aliases across the formats we ingest. Checked in order.
var (
	nameKeys  = []string{"name", "Name", "title", "Title", "Product Name", "product_name"}
	priceKeys = []string{"price", "Price", "sale_price", "Sale Price", "Retail Price", "retail_price", "CurrentPrice", "current_price"}
	urlKeys   = []string{"url", "URL", "link", "Link", "Buy Link", "buy_link", "product_url", "ProductURL"}
	brandKeys = []string{"brand", "Brand", "manufacturer", "Manufacturer", "Manufacturer Name"}
	upcKeys   = []string{"upc", "UPC", "gtin", "GTIN", "barcode", "UPC Code"}
	stockKeys = []string{"in_stock", "inStock", "InStock", "availability", "Availability", "stock_status"}
	imageKeys = []string{"image", "image_url", "Image URL", "ImageURL", "thumbnail"}
)

func firstString(item types.RawItem, keys []string) string {
	for _, k := range keys {
		if v, ok := item[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func firstValue(item types.RawItem, keys []string) any {
	for _, k := range keys {
		if v, ok := item[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// parseInStock interprets the many availability spellings; unknown values
// default to in stock, since most feeds omit the field entirely for
// available items.
func parseInStock(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		switch s {
		case "false", "no", "0", "out of stock", "out_of_stock", "outofstock", "unavailable", "sold out":
			return false
		}
		return true
	case nil:
		return true
	default:
		return true
	}
}

// NormalizeItem validates and standardizes one raw item against its source.
func NormalizeItem(item types.RawItem, src types.Source) (types.NormalizedProduct, error) {
	var out types.NormalizedProduct

	name := firstString(item, nameKeys)
	if name == "" {
		return out, &ValidationError{Field: "name", Reason: "missing or empty"}
	}

	price, err := parsePrice(firstValue(item, priceKeys))
	if err != nil {
		return out, &ValidationError{Field: "price", Reason: err.Error()}
	}

	rawURL := firstString(item, urlKeys)
	resolved, err := resolveURL(src.URL, rawURL)
	if err != nil {
		return out, &ValidationError{Field: "url", Reason: err.Error()}
	}

	out = types.NormalizedProduct{
		Name:     name,
		Brand:    firstString(item, brandKeys),
		UPC:      firstString(item, upcKeys),
		Price:    price,
		Currency: "USD",
		URL:      resolved,
		ImageURL: firstString(item, imageKeys),
		InStock:  parseInStock(firstValue(item, stockKeys)),
	}
	enrichAmmo(&out)
	return out, nil
}

// resolveURL resolves a possibly-relative listing URL against the source
// origin. An absent URL falls back to the source URL itself.
func resolveURL(sourceURL, raw string) (string, error) {
	if raw == "" {
		return sourceURL, nil
	}
	base, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("source url unparseable: %v", err)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("unparseable: %v", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// Normalizer executes normalize jobs.
type Normalizer struct {
	store  store.Store
	queue  queue.Queue
	logger *slog.Logger
}

// New creates a Normalizer.
func New(st store.Store, q queue.Queue, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{store: st, queue: q, logger: logger}
}

// Handle validates every raw item, drops the invalid ones with per-item
// WARN logs, and enqueues one write job with the survivors. All valid
// items are preserved; ordering is not.
func (n *Normalizer) Handle(ctx context.Context, job types.NormalizeJob) error {
	src, err := n.store.GetSource(ctx, job.SourceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return queue.Permanent(fmt.Errorf("source %s: %w", job.SourceID, err))
		}
		return err
	}

	items := make([]types.NormalizedProduct, 0, len(job.RawItems))
	for i, raw := range job.RawItems {
		item, err := NormalizeItem(raw, *src)
		if err != nil {
			metrics.ItemsDropped.Add(1)
			n.appendLog(ctx, job.ExecutionID, types.LogWarn, types.EventItemDropped,
				"item dropped", map[string]any{"index": i, "reason": err.Error()})
			continue
		}
		items = append(items, item)
	}
	metrics.ItemsNormalized.Add(int64(len(items)))

	n.appendLog(ctx, job.ExecutionID, types.LogInfo, types.EventItemsNormalized,
		"items normalized", map[string]any{
			"found": len(job.RawItems), "valid": len(items), "dropped": len(job.RawItems) - len(items),
		})

	writeJob := types.WriteJob{
		ExecutionID: job.ExecutionID,
		SourceID:    job.SourceID,
		Items:       items,
		ContentHash: job.ContentHash,
	}
	return queue.Publish(ctx, n.queue, types.StageWrite, writeJob, queue.Options{
		DedupID: queue.JobID(job.ExecutionID, types.StageWrite),
	})
}

func (n *Normalizer) appendLog(ctx context.Context, executionID string, level types.LogLevel, event types.EventCode, msg string, meta map[string]any) {
	err := n.store.AppendLog(ctx, types.ExecutionLog{
		ExecutionID: executionID,
		Level:       level,
		Event:       event,
		Message:     msg,
		Metadata:    meta,
	})
	if err != nil {
		n.logger.Error("failed to append execution log", "execution", executionID, "error", err)
	}
}
