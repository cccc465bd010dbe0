// Package store defines the persistence interface consumed by every
// pipeline stage. Implementations: postgres (production), testutil's
// in-memory mock (tests).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ammobase/harvester/pkg/types"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ItemResult reports what one normalized item's write actually did.
type ItemResult struct {
	SourceProductID string
	ProductID       string
	// Change is non-nil only when a Price row was inserted, i.e. price or
	// stock differed from the latest known row.
	Change *types.PriceChange
}

// Store is the canonical persistence surface.
type Store interface {
	// Sources
	GetSource(ctx context.Context, id string) (*types.Source, error)
	DueSources(ctx context.Context, now time.Time) ([]types.Source, error)
	UpdateFeedHash(ctx context.Context, sourceID, hash string) error
	UpdateNextDue(ctx context.Context, sourceID string, next time.Time) error

	// Executions and audit trail
	CreateExecution(ctx context.Context, exec types.Execution) error
	GetExecution(ctx context.Context, id string) (*types.Execution, error)
	// CompleteExecution transitions PENDING -> status. Invalid transitions
	// (already terminal) are rejected.
	CompleteExecution(ctx context.Context, id string, status types.ExecutionStatus, itemsFound, itemsUpserted int, failureMessage string) error
	RecentExecutions(ctx context.Context, limit int) ([]types.Execution, error)
	AppendLog(ctx context.Context, entry types.ExecutionLog) error

	// Catalog writes. UpsertItems applies the whole batch in one
	// transaction; UpsertItem is the per-item fallback path.
	UpsertItems(ctx context.Context, src types.Source, executionID string, items []types.NormalizedProduct) ([]ItemResult, error)
	UpsertItem(ctx context.Context, src types.Source, executionID string, item types.NormalizedProduct) (ItemResult, error)

	// Alerting reads and cooldown writes
	VisiblePriceExists(ctx context.Context, productID string) (bool, error)
	AlertsForProduct(ctx context.Context, productID string) ([]types.Alert, error)
	GetAlert(ctx context.Context, id string) (*types.Alert, error)
	GetUser(ctx context.Context, id string) (*types.User, error)
	GetWatchlistItem(ctx context.Context, userID, productID string) (*types.WatchlistItem, error)
	TouchWatchlistItem(ctx context.Context, itemID string, at time.Time) error
	AppendNotification(ctx context.Context, n types.Notification) error
}
