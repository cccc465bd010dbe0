package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ammobase/harvester/internal/store"
	"github.com/ammobase/harvester/pkg/types"
)

// VisiblePriceExists reports whether any price for the product comes from a
// dealer whose subscription allows visibility. Suspended and cancelled
// dealers are excluded; active and expired (grace period) count.
func (s *Store) VisiblePriceExists(ctx context.Context, productID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM prices p
			JOIN sources src ON src.id = p.source_id
			JOIN dealers d ON d.id = src.dealer_id
			WHERE p.product_id = $1
			  AND d.status IN ('ACTIVE', 'EXPIRED')
		)
	`, productID).Scan(&exists)
	return exists, err
}

// AlertsForProduct returns the enabled alert rules watching a product.
func (s *Store) AlertsForProduct(ctx context.Context, productID string) ([]types.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, product_id, kind, threshold_pct, threshold_amt, enabled
		FROM alerts
		WHERE product_id = $1 AND enabled
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		var a types.Alert
		if err := rows.Scan(&a.ID, &a.UserID, &a.ProductID, &a.Kind,
			&a.ThresholdPct, &a.ThresholdAmt, &a.Enabled); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// GetAlert fetches one alert rule by id.
func (s *Store) GetAlert(ctx context.Context, id string) (*types.Alert, error) {
	var a types.Alert
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, product_id, kind, threshold_pct, threshold_amt, enabled
		FROM alerts WHERE id = $1
	`, id).Scan(&a.ID, &a.UserID, &a.ProductID, &a.Kind, &a.ThresholdPct, &a.ThresholdAmt, &a.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetUser fetches one user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*types.User, error) {
	var u types.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, tier, notifications_enabled FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.Tier, &u.NotificationsEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetWatchlistItem fetches the user's watchlist entry for a product.
func (s *Store) GetWatchlistItem(ctx context.Context, userID, productID string) (*types.WatchlistItem, error) {
	var w types.WatchlistItem
	var cooldownSec int64
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, product_id, cooldown_sec, last_notified_at
		FROM watchlist_items
		WHERE user_id = $1 AND product_id = $2
	`, userID, productID).Scan(&w.ID, &w.UserID, &w.ProductID, &cooldownSec, &w.LastNotifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	w.Cooldown = time.Duration(cooldownSec) * time.Second
	return &w, nil
}

// TouchWatchlistItem records a notification time on the watchlist entry.
func (s *Store) TouchWatchlistItem(ctx context.Context, itemID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE watchlist_items SET last_notified_at = $2 WHERE id = $1
	`, itemID, at)
	return err
}

// AppendNotification records a dispatched notification for audit.
func (s *Store) AppendNotification(ctx context.Context, n types.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, alert_id, user_id, recipient, subject, body, reason, execution_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, n.ID, n.AlertID, n.UserID, n.Recipient, n.Subject, n.Body, n.Reason, n.ExecutionID, n.CreatedAt)
	return err
}
