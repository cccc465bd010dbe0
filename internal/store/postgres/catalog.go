package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"

	"github.com/ammobase/harvester/internal/store"
	"github.com/ammobase/harvester/pkg/types"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the upsert logic
// runs identically on the batch path and the per-item fallback path.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpsertItems applies a whole batch inside one transaction. Any failure
// rolls the batch back; the caller falls back to UpsertItem.
func (s *Store) UpsertItems(ctx context.Context, src types.Source, executionID string, items []types.NormalizedProduct) ([]store.ItemResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	results := make([]store.ItemResult, 0, len(items))
	for _, item := range items {
		res, err := upsertOne(ctx, tx, src, executionID, item)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return results, nil
}

// UpsertItem applies a single item in its own transaction. A transaction is
// required even for one item so the latest-price row lock spans the
// read-then-insert.
func (s *Store) UpsertItem(ctx context.Context, src types.Source, executionID string, item types.NormalizedProduct) (store.ItemResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.ItemResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := upsertOne(ctx, tx, src, executionID, item)
	if err != nil {
		return res, err
	}
	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("commit item: %w", err)
	}
	return res, nil
}

func upsertOne(ctx context.Context, q querier, src types.Source, executionID string, item types.NormalizedProduct) (store.ItemResult, error) {
	var res store.ItemResult

	// Source product, keyed on (source, url). A fresh row gets a new stable
	// identity; conflicts keep the existing one.
	row := q.QueryRow(ctx, `
		INSERT INTO source_products (id, source_id, url, title, brand, product_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_id, url) DO UPDATE SET
			title      = EXCLUDED.title,
			brand      = EXCLUDED.brand,
			product_id = EXCLUDED.product_id,
			updated_at = NOW()
		RETURNING id
	`, ulid.Make().String(), src.ID, item.URL, item.Name, item.Brand, item.ProductID)
	if err := row.Scan(&res.SourceProductID); err != nil {
		return res, fmt.Errorf("upsert source product %s: %w", item.URL, err)
	}

	// Canonical product. Hash collisions resolve last-write-wins.
	_, err := q.Exec(ctx, `
		INSERT INTO products (id, name, brand, upc, image_url, caliber, grain, rounds, case_mat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name       = EXCLUDED.name,
			brand      = EXCLUDED.brand,
			upc        = EXCLUDED.upc,
			image_url  = EXCLUDED.image_url,
			caliber    = EXCLUDED.caliber,
			grain      = EXCLUDED.grain,
			rounds     = EXCLUDED.rounds,
			case_mat   = EXCLUDED.case_mat,
			updated_at = NOW()
	`, item.ProductID, item.Name, item.Brand, item.UPC, item.ImageURL,
		item.Ammo.Caliber, item.Ammo.GrainWeight, item.Ammo.RoundCount, item.Ammo.CaseMaterial)
	if err != nil {
		return res, fmt.Errorf("upsert product %s: %w", item.ProductID, err)
	}
	res.ProductID = item.ProductID

	// Price: insert only when it differs from the latest known row. The row
	// lock serializes concurrent executions writing the same (product,
	// retailer) pair from different sources, which would otherwise both read
	// the same latest row and insert duplicate history.
	var oldPrice float64
	var oldStock bool
	haveOld := true
	err = q.QueryRow(ctx, `
		SELECT price, in_stock FROM prices
		WHERE product_id = $1 AND retailer_id = $2
		ORDER BY id DESC LIMIT 1
		FOR UPDATE
	`, item.ProductID, src.RetailerID).Scan(&oldPrice, &oldStock)
	if errors.Is(err, pgx.ErrNoRows) {
		haveOld = false
	} else if err != nil {
		return res, fmt.Errorf("latest price for %s: %w", item.ProductID, err)
	}

	if haveOld && oldPrice == item.Price && oldStock == item.InStock {
		return res, nil
	}

	_, err = q.Exec(ctx, `
		INSERT INTO prices (product_id, retailer_id, source_id, price, currency, in_stock, observed_at, execution_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ProductID, src.RetailerID, src.ID, item.Price, item.Currency, item.InStock,
		time.Now().UTC(), executionID)
	if err != nil {
		return res, fmt.Errorf("insert price for %s: %w", item.ProductID, err)
	}

	change := types.PriceChange{
		ExecutionID: executionID,
		ProductID:   item.ProductID,
		RetailerID:  src.RetailerID,
		NewPrice:    item.Price,
		InStock:     item.InStock,
	}
	if haveOld {
		change.OldPrice = &oldPrice
		change.OldInStock = &oldStock
	}
	res.Change = &change
	return res, nil
}
