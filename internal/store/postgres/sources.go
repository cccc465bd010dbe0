package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ammobase/harvester/internal/store"
	"github.com/ammobase/harvester/pkg/types"
)

const sourceColumns = `id, retailer_id, dealer_id, url, kind, network, pagination, feed_hash, interval_sec, next_due_at, enabled`

func scanSource(row pgx.Row) (*types.Source, error) {
	var src types.Source
	var pagination []byte
	var intervalSec int64
	err := row.Scan(&src.ID, &src.RetailerID, &src.DealerID, &src.URL, &src.Kind,
		&src.Network, &pagination, &src.FeedHash, &intervalSec, &src.NextDueAt, &src.Enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if len(pagination) > 0 {
		if err := json.Unmarshal(pagination, &src.Pagination); err != nil {
			return nil, fmt.Errorf("decode pagination for source %s: %w", src.ID, err)
		}
	}
	src.Interval = time.Duration(intervalSec) * time.Second
	return &src, nil
}

// GetSource fetches one source by id.
func (s *Store) GetSource(ctx context.Context, id string) (*types.Source, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
	return scanSource(row)
}

// DueSources returns enabled sources whose next-due time has passed.
func (s *Store) DueSources(ctx context.Context, now time.Time) ([]types.Source, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sourceColumns+` FROM sources
		WHERE enabled AND next_due_at <= $1
		ORDER BY next_due_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []types.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// UpdateFeedHash persists the content fingerprint after a successful write.
func (s *Store) UpdateFeedHash(ctx context.Context, sourceID, hash string) error {
	_, err := s.pool.Exec(ctx, `UPDATE sources SET feed_hash = $2 WHERE id = $1`, sourceID, hash)
	return err
}

// UpdateNextDue schedules the next crawl for a source.
func (s *Store) UpdateNextDue(ctx context.Context, sourceID string, next time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE sources SET next_due_at = $2 WHERE id = $1`, sourceID, next)
	return err
}
