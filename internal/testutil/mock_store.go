// Package testutil provides shared in-memory test doubles.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ammobase/harvester/internal/lifecycle"
	"github.com/ammobase/harvester/internal/store"
	"github.com/ammobase/harvester/pkg/types"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*MockStore)(nil)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu             sync.Mutex
	Sources        map[string]types.Source
	Executions     map[string]types.Execution
	Logs           []types.ExecutionLog
	Products       map[string]types.Product
	SourceProducts map[string]types.SourceProduct // key: sourceID + "|" + url
	Prices         []types.Price
	Dealers        map[string]types.Dealer
	Users          map[string]types.User
	Alerts         map[string]types.Alert
	Watchlist      map[string]types.WatchlistItem // key: userID + "|" + productID
	Notifications  []types.Notification

	// BatchErr forces UpsertItems to fail, exercising the per-item fallback.
	BatchErr error
	// ItemErrs forces UpsertItem to fail for specific item URLs.
	ItemErrs map[string]error

	nextID int
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		Sources:        make(map[string]types.Source),
		Executions:     make(map[string]types.Execution),
		Products:       make(map[string]types.Product),
		SourceProducts: make(map[string]types.SourceProduct),
		Dealers:        make(map[string]types.Dealer),
		Users:          make(map[string]types.User),
		Alerts:         make(map[string]types.Alert),
		Watchlist:      make(map[string]types.WatchlistItem),
		ItemErrs:       make(map[string]error),
	}
}

func (m *MockStore) GetSource(_ context.Context, id string) (*types.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.Sources[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &src, nil
}

func (m *MockStore) DueSources(_ context.Context, now time.Time) ([]types.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []types.Source
	for _, src := range m.Sources {
		if src.Enabled && !src.NextDueAt.After(now) {
			due = append(due, src)
		}
	}
	return due, nil
}

func (m *MockStore) UpdateFeedHash(_ context.Context, sourceID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.Sources[sourceID]
	if !ok {
		return store.ErrNotFound
	}
	src.FeedHash = hash
	m.Sources[sourceID] = src
	return nil
}

func (m *MockStore) UpdateNextDue(_ context.Context, sourceID string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.Sources[sourceID]
	if !ok {
		return store.ErrNotFound
	}
	src.NextDueAt = next
	m.Sources[sourceID] = src
	return nil
}

func (m *MockStore) CreateExecution(_ context.Context, exec types.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.Executions[exec.ID]; exists {
		return nil
	}
	m.Executions[exec.ID] = exec
	return nil
}

func (m *MockStore) GetExecution(_ context.Context, id string) (*types.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Executions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (m *MockStore) CompleteExecution(_ context.Context, id string, status types.ExecutionStatus, itemsFound, itemsUpserted int, failureMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Executions[id]
	if !ok {
		return store.ErrNotFound
	}
	if e.Status != types.ExecutionPending {
		if e.Status == status {
			return nil
		}
		return fmt.Errorf("execution %s: %w", id, lifecycle.Transition(e.Status, status))
	}
	now := time.Now()
	e.Status = status
	e.ItemsFound = itemsFound
	e.ItemsUpserted = itemsUpserted
	e.FailureMessage = failureMessage
	e.CompletedAt = &now
	m.Executions[id] = e
	return nil
}

func (m *MockStore) RecentExecutions(_ context.Context, limit int) ([]types.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Execution
	for _, e := range m.Executions {
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) AppendLog(_ context.Context, entry types.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.Logs = append(m.Logs, entry)
	return nil
}

// LogsFor returns audit entries for one execution, filtered by event code
// if event is non-empty.
func (m *MockStore) LogsFor(executionID string, event types.EventCode) []types.ExecutionLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.ExecutionLog
	for _, l := range m.Logs {
		if l.ExecutionID == executionID && (event == "" || l.Event == event) {
			out = append(out, l)
		}
	}
	return out
}

func (m *MockStore) UpsertItems(ctx context.Context, src types.Source, executionID string, items []types.NormalizedProduct) ([]store.ItemResult, error) {
	m.mu.Lock()
	batchErr := m.BatchErr
	m.mu.Unlock()
	if batchErr != nil {
		return nil, batchErr
	}
	results := make([]store.ItemResult, 0, len(items))
	for _, item := range items {
		res, err := m.UpsertItem(ctx, src, executionID, item)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (m *MockStore) UpsertItem(_ context.Context, src types.Source, executionID string, item types.NormalizedProduct) (store.ItemResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res store.ItemResult
	if err, ok := m.ItemErrs[item.URL]; ok {
		return res, err
	}

	key := src.ID + "|" + item.URL
	sp, exists := m.SourceProducts[key]
	if !exists {
		m.nextID++
		sp = types.SourceProduct{
			ID:        fmt.Sprintf("sp-%d", m.nextID),
			SourceID:  src.ID,
			URL:       item.URL,
			CreatedAt: time.Now(),
		}
	}
	sp.Title = item.Name
	sp.Brand = item.Brand
	sp.ProductID = item.ProductID
	sp.UpdatedAt = time.Now()
	m.SourceProducts[key] = sp
	res.SourceProductID = sp.ID

	p := m.Products[item.ProductID]
	p.ID = item.ProductID
	p.Name = item.Name
	p.Brand = item.Brand
	p.UPC = item.UPC
	p.Ammo = item.Ammo
	m.Products[item.ProductID] = p
	res.ProductID = item.ProductID

	var latest *types.Price
	for i := len(m.Prices) - 1; i >= 0; i-- {
		if m.Prices[i].ProductID == item.ProductID && m.Prices[i].RetailerID == src.RetailerID {
			latest = &m.Prices[i]
			break
		}
	}
	if latest != nil && latest.Price == item.Price && latest.InStock == item.InStock {
		return res, nil
	}

	m.Prices = append(m.Prices, types.Price{
		ID:          int64(len(m.Prices) + 1),
		ProductID:   item.ProductID,
		RetailerID:  src.RetailerID,
		SourceID:    src.ID,
		Price:       item.Price,
		Currency:    item.Currency,
		InStock:     item.InStock,
		ObservedAt:  time.Now(),
		ExecutionID: executionID,
	})
	change := types.PriceChange{
		ExecutionID: executionID,
		ProductID:   item.ProductID,
		RetailerID:  src.RetailerID,
		NewPrice:    item.Price,
		InStock:     item.InStock,
	}
	if latest != nil {
		old := latest.Price
		oldStock := latest.InStock
		change.OldPrice = &old
		change.OldInStock = &oldStock
	}
	res.Change = &change
	return res, nil
}

func (m *MockStore) VisiblePriceExists(_ context.Context, productID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Prices {
		src, ok := m.Sources[p.SourceID]
		if !ok || p.ProductID != productID {
			continue
		}
		dealer, ok := m.Dealers[src.DealerID]
		if ok && dealer.Status.Visible() {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) AlertsForProduct(_ context.Context, productID string) ([]types.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Alert
	for _, a := range m.Alerts {
		if a.ProductID == productID && a.Enabled {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockStore) GetAlert(_ context.Context, id string) (*types.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Alerts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (m *MockStore) GetUser(_ context.Context, id string) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (m *MockStore) GetWatchlistItem(_ context.Context, userID, productID string) (*types.WatchlistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.Watchlist[userID+"|"+productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &w, nil
}

func (m *MockStore) TouchWatchlistItem(_ context.Context, itemID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, w := range m.Watchlist {
		if w.ID == itemID {
			w.LastNotifiedAt = &at
			m.Watchlist[key] = w
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *MockStore) AppendNotification(_ context.Context, n types.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, n)
	return nil
}
