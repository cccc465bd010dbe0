package postgres

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammobase/harvester/pkg/types"
)

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// fakeQuerier scripts the querier surface so upsertOne's SQL flow can be
// exercised without a live database.
type fakeQuerier struct {
	queries     []string
	execs       []string
	latestErr   error
	latestPrice float64
	latestStock bool
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.queries = append(f.queries, sql)
	switch {
	case strings.Contains(sql, "INSERT INTO source_products"):
		return scanFunc(func(dest ...any) error {
			*(dest[0].(*string)) = "sp-1"
			return nil
		})
	case strings.Contains(sql, "SELECT price"):
		return scanFunc(func(dest ...any) error {
			if f.latestErr != nil {
				return f.latestErr
			}
			*(dest[0].(*float64)) = f.latestPrice
			*(dest[1].(*bool)) = f.latestStock
			return nil
		})
	}
	return scanFunc(func(...any) error { return nil })
}

func (f *fakeQuerier) priceInserts() int {
	n := 0
	for _, sql := range f.execs {
		if strings.Contains(sql, "INSERT INTO prices") {
			n++
		}
	}
	return n
}

func catalogItem() types.NormalizedProduct {
	return types.NormalizedProduct{
		ProductID: "prod-1",
		Name:      "Federal American Eagle 9mm Luger 115gr FMJ",
		Price:     14.99,
		Currency:  "USD",
		URL:       "https://shop.example.com/ae9",
		InStock:   true,
	}
}

func TestUpsertOne_FirstPriceInsertsRow(t *testing.T) {
	q := &fakeQuerier{latestErr: pgx.ErrNoRows}
	src := types.Source{ID: "src-1", RetailerID: "ret-1"}

	res, err := upsertOne(context.Background(), q, src, "exec-1", catalogItem())
	require.NoError(t, err)

	assert.Equal(t, "sp-1", res.SourceProductID)
	assert.Equal(t, "prod-1", res.ProductID)
	assert.Equal(t, 1, q.priceInserts())
	require.NotNil(t, res.Change)
	assert.Nil(t, res.Change.OldPrice)
	assert.InDelta(t, 14.99, res.Change.NewPrice, 0.001)
}

func TestUpsertOne_UnchangedPriceSkipsInsert(t *testing.T) {
	q := &fakeQuerier{latestPrice: 14.99, latestStock: true}
	src := types.Source{ID: "src-1", RetailerID: "ret-1"}

	res, err := upsertOne(context.Background(), q, src, "exec-1", catalogItem())
	require.NoError(t, err)

	assert.Equal(t, 0, q.priceInserts())
	assert.Nil(t, res.Change)
}

func TestUpsertOne_ChangedPriceCarriesOldValues(t *testing.T) {
	q := &fakeQuerier{latestPrice: 19.99, latestStock: false}
	src := types.Source{ID: "src-1", RetailerID: "ret-1"}

	res, err := upsertOne(context.Background(), q, src, "exec-1", catalogItem())
	require.NoError(t, err)

	assert.Equal(t, 1, q.priceInserts())
	require.NotNil(t, res.Change)
	require.NotNil(t, res.Change.OldPrice)
	assert.InDelta(t, 19.99, *res.Change.OldPrice, 0.001)
	require.NotNil(t, res.Change.OldInStock)
	assert.False(t, *res.Change.OldInStock)
}

// Concurrent executions can write the same (product, retailer) pair from
// different sources. The latest-price read must lock the row so both writers
// cannot read the same latest value and insert duplicate history.
func TestUpsertOne_LatestPriceReadTakesRowLock(t *testing.T) {
	q := &fakeQuerier{latestErr: pgx.ErrNoRows}
	src := types.Source{ID: "src-1", RetailerID: "ret-1"}

	_, err := upsertOne(context.Background(), q, src, "exec-1", catalogItem())
	require.NoError(t, err)

	var latest string
	for _, sql := range q.queries {
		if strings.Contains(sql, "SELECT price") {
			latest = sql
		}
	}
	require.NotEmpty(t, latest)
	assert.Contains(t, latest, "FOR UPDATE")
}
