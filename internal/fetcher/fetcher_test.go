package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammobase/harvester/internal/queue"
	"github.com/ammobase/harvester/internal/testutil"
	"github.com/ammobase/harvester/pkg/types"
)

func testFetchConfig() types.FetchConfig {
	return types.FetchConfig{
		MaxPageBytes:   1 << 20,
		MaxTotalBytes:  10 << 20,
		MaxPages:       5,
		MaxItems:       1000,
		RequestTimeout: 5 * time.Second,
		UserAgent:      "harvester-test/1.0",
	}
}

func seedFetch(st *testutil.MockStore, src types.Source) {
	st.Sources[src.ID] = src
	st.Executions["exec-1"] = types.Execution{ID: "exec-1", SourceID: src.ID, Status: types.ExecutionPending}
}

func TestPageURL(t *testing.T) {
	tests := []struct {
		name     string
		src      types.Source
		page     int
		expected string
	}{
		{
			"no pagination returns source url",
			types.Source{URL: "https://shop.example.com/feed.json"},
			3,
			"https://shop.example.com/feed.json",
		},
		{
			"query pagination default param",
			types.Source{URL: "https://shop.example.com/items", Pagination: types.PaginationConfig{Kind: types.PaginationQuery}},
			2,
			"https://shop.example.com/items?page=2",
		},
		{
			"query pagination custom param keeps existing query",
			types.Source{URL: "https://shop.example.com/items?cat=ammo", Pagination: types.PaginationConfig{Kind: types.PaginationQuery, Param: "p"}},
			4,
			"https://shop.example.com/items?cat=ammo&p=4",
		},
		{
			"path pagination",
			types.Source{URL: "https://shop.example.com/items/", Pagination: types.PaginationConfig{Kind: types.PaginationPath, Param: "page"}},
			7,
			"https://shop.example.com/items/page/7",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pageURL(tc.src, tc.page)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestPageCount_ClampedToCeiling(t *testing.T) {
	src := types.Source{Pagination: types.PaginationConfig{Kind: types.PaginationQuery, MaxPages: 10000}}
	n, clamped := pageCount(src, 5)
	assert.Equal(t, 5, n)
	assert.True(t, clamped)

	src.Pagination.MaxPages = 3
	n, clamped = pageCount(src, 5)
	assert.Equal(t, 3, n)
	assert.False(t, clamped)

	src.Pagination.Kind = types.PaginationNone
	n, clamped = pageCount(src, 5)
	assert.Equal(t, 1, n)
	assert.False(t, clamped)
}

func TestMaybeDecompress(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("hello feed"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	// Magic-byte detection, no .gz suffix needed.
	out, err := maybeDecompress("https://x/feed.json", buf.Bytes(), 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "hello feed", string(out))

	// Plain content passes through untouched.
	out, err = maybeDecompress("https://x/feed.json", []byte("plain"), 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "plain", string(out))

	// Inflated size is bounded.
	var bomb bytes.Buffer
	zw = gzip.NewWriter(&bomb)
	_, err = zw.Write(bytes.Repeat([]byte("a"), 4096))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	_, err = maybeDecompress("https://x/feed.gz", bomb.Bytes(), 100)
	assert.ErrorIs(t, err, errPageTooLarge)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("content"))
	assert.Equal(t, a, Fingerprint([]byte("content")))
	assert.NotEqual(t, a, Fingerprint([]byte("content.")))
	assert.Len(t, a, 64)
}

func TestHandle_UnchangedFeedShortCircuits(t *testing.T) {
	body := `[{"name":"Ammo","price":"9.99"}]`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer ts.Close()

	st := testutil.NewMockStore()
	seedFetch(st, types.Source{ID: "src-1", URL: ts.URL, FeedHash: Fingerprint([]byte(body))})
	q := queue.NewMemory()
	f := New(st, q, testFetchConfig(), nil)

	require.NoError(t, f.Handle(context.Background(), types.FetchJob{SourceID: "src-1", ExecutionID: "exec-1"}))

	exec := st.Executions["exec-1"]
	assert.Equal(t, types.ExecutionSuccess, exec.Status)
	assert.Equal(t, 0, exec.ItemsUpserted)
	assert.Len(t, st.LogsFor("exec-1", types.EventFeedUnchanged), 1)
	assert.Equal(t, 0, q.Len(types.StageExtract))
	assert.Equal(t, 0, q.Len(types.StageNormalize))
}

func TestHandle_RoutesGenericContentToExtractor(t *testing.T) {
	body := `[{"name":"Ammo","price":"9.99"}]`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "harvester-test/1.0", r.Header.Get("User-Agent"))
		fmt.Fprint(w, body)
	}))
	defer ts.Close()

	st := testutil.NewMockStore()
	seedFetch(st, types.Source{ID: "src-1", URL: ts.URL, Kind: types.SourceScrape})
	q := queue.NewMemory()
	f := New(st, q, testFetchConfig(), nil)

	require.NoError(t, f.Handle(context.Background(), types.FetchJob{SourceID: "src-1", ExecutionID: "exec-1"}))

	msgs, err := q.Receive(context.Background(), types.StageExtract, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var ej types.ExtractJob
	_, err = queue.Decode(msgs[0], &ej)
	require.NoError(t, err)
	assert.Equal(t, body, string(ej.Content))
	assert.Equal(t, Fingerprint([]byte(body)), ej.ContentHash)
}

func TestHandle_ParsesAffiliateFeedDirectly(t *testing.T) {
	csv := "Product Name,Retail Price,Buy Link\nFederal 9mm 115gr,14.99,https://x/a\nCCI 22LR 100ct,8.99,https://x/b\n"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, csv)
	}))
	defer ts.Close()

	st := testutil.NewMockStore()
	seedFetch(st, types.Source{ID: "src-1", URL: ts.URL, Network: types.NetworkAvantLink})
	q := queue.NewMemory()
	f := New(st, q, testFetchConfig(), nil)

	require.NoError(t, f.Handle(context.Background(), types.FetchJob{SourceID: "src-1", ExecutionID: "exec-1"}))

	// Feed path bypasses the extract stage entirely.
	assert.Equal(t, 0, q.Len(types.StageExtract))
	msgs, err := q.Receive(context.Background(), types.StageNormalize, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var nj types.NormalizeJob
	_, err = queue.Decode(msgs[0], &nj)
	require.NoError(t, err)
	require.Len(t, nj.RawItems, 2)
	assert.Equal(t, "Federal 9mm 115gr", nj.RawItems[0]["Product Name"])
}

func TestHandle_PaginatesUntilEmptyPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, "page-one")
		case "2":
			fmt.Fprint(w, "page-two")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	st := testutil.NewMockStore()
	seedFetch(st, types.Source{
		ID: "src-1", URL: ts.URL, Kind: types.SourceScrape,
		Pagination: types.PaginationConfig{Kind: types.PaginationQuery, MaxPages: 100},
	})
	q := queue.NewMemory()
	f := New(st, q, testFetchConfig(), nil)

	require.NoError(t, f.Handle(context.Background(), types.FetchJob{SourceID: "src-1", ExecutionID: "exec-1"}))

	msgs, err := q.Receive(context.Background(), types.StageExtract, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var ej types.ExtractJob
	_, err = queue.Decode(msgs[0], &ej)
	require.NoError(t, err)
	assert.Equal(t, "page-one\npage-two", string(ej.Content))
}

func TestHandle_PageCeilingStopsWithWarn(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprintf(w, "page-%s", r.URL.Query().Get("page"))
	}))
	defer ts.Close()

	st := testutil.NewMockStore()
	seedFetch(st, types.Source{
		ID: "src-1", URL: ts.URL, Kind: types.SourceScrape,
		Pagination: types.PaginationConfig{Kind: types.PaginationQuery, MaxPages: 10000},
	})
	q := queue.NewMemory()
	f := New(st, q, testFetchConfig(), nil)

	require.NoError(t, f.Handle(context.Background(), types.FetchJob{SourceID: "src-1", ExecutionID: "exec-1"}))

	// Clamped to the configured ceiling of 5, with a WARN on the audit trail.
	assert.Equal(t, 5, hits)
	assert.NotEmpty(t, st.LogsFor("exec-1", types.EventCapReached))
}

func TestHandle_ConfiguredPageCountEndsWithoutWarn(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "page-%s", r.URL.Query().Get("page"))
	}))
	defer ts.Close()

	st := testutil.NewMockStore()
	seedFetch(st, types.Source{
		ID: "src-1", URL: ts.URL, Kind: types.SourceScrape,
		Pagination: types.PaginationConfig{Kind: types.PaginationQuery, MaxPages: 3},
	})
	q := queue.NewMemory()
	f := New(st, q, testFetchConfig(), nil)

	require.NoError(t, f.Handle(context.Background(), types.FetchJob{SourceID: "src-1", ExecutionID: "exec-1"}))

	// The source asked for exactly three pages and got them. That is the
	// configured end of pagination, not a cap breach.
	msgs, err := q.Receive(context.Background(), types.StageExtract, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Empty(t, st.LogsFor("exec-1", types.EventCapReached))
}

func TestHandle_OversizeFirstPageCompletesEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 2048))
	}))
	defer ts.Close()

	cfg := testFetchConfig()
	cfg.MaxPageBytes = 1024

	st := testutil.NewMockStore()
	seedFetch(st, types.Source{ID: "src-1", URL: ts.URL, Kind: types.SourceScrape})
	q := queue.NewMemory()
	f := New(st, q, cfg, nil)

	require.NoError(t, f.Handle(context.Background(), types.FetchJob{SourceID: "src-1", ExecutionID: "exec-1"}))

	// Nothing collected: the run ends as an empty success instead of
	// pushing zero-byte content to the extractor, which would fail it.
	exec := st.Executions["exec-1"]
	assert.Equal(t, types.ExecutionSuccess, exec.Status)
	assert.Equal(t, 0, exec.ItemsUpserted)
	assert.Equal(t, 0, q.Len(types.StageExtract))
	assert.Equal(t, 0, q.Len(types.StageNormalize))
	assert.NotEmpty(t, st.LogsFor("exec-1", types.EventCapReached))
}

func TestHandle_TotalSizeCapStopsPagination(t *testing.T) {
	big := strings.Repeat("x", 600)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, big)
	}))
	defer ts.Close()

	cfg := testFetchConfig()
	cfg.MaxTotalBytes = 1000 // second page would exceed

	st := testutil.NewMockStore()
	seedFetch(st, types.Source{
		ID: "src-1", URL: ts.URL, Kind: types.SourceScrape,
		Pagination: types.PaginationConfig{Kind: types.PaginationQuery, MaxPages: 10},
	})
	q := queue.NewMemory()
	f := New(st, q, cfg, nil)

	require.NoError(t, f.Handle(context.Background(), types.FetchJob{SourceID: "src-1", ExecutionID: "exec-1"}))

	// Partial data still flows downstream; the run is not failed.
	msgs, err := q.Receive(context.Background(), types.StageExtract, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var ej types.ExtractJob
	_, err = queue.Decode(msgs[0], &ej)
	require.NoError(t, err)
	assert.Equal(t, big, string(ej.Content))
	assert.NotEmpty(t, st.LogsFor("exec-1", types.EventCapReached))
}

func TestHandle_FirstPageFailureIsRetryable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	st := testutil.NewMockStore()
	seedFetch(st, types.Source{ID: "src-1", URL: ts.URL, Kind: types.SourceScrape})
	q := queue.NewMemory()
	f := New(st, q, testFetchConfig(), nil)

	err := f.Handle(context.Background(), types.FetchJob{SourceID: "src-1", ExecutionID: "exec-1"})
	require.Error(t, err)
	assert.Equal(t, types.FailureTransient, queue.Classify(err))
	// Execution left PENDING: the worker owns the FAILED transition.
	assert.Equal(t, types.ExecutionPending, st.Executions["exec-1"].Status)
}

func TestHandle_ClientErrorIsPermanent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	st := testutil.NewMockStore()
	seedFetch(st, types.Source{ID: "src-1", URL: ts.URL, Kind: types.SourceScrape})
	q := queue.NewMemory()
	f := New(st, q, testFetchConfig(), nil)

	err := f.Handle(context.Background(), types.FetchJob{SourceID: "src-1", ExecutionID: "exec-1"})
	require.Error(t, err)
	assert.Equal(t, types.FailurePermanent, queue.Classify(err))
}

func TestHandle_UnknownSourceIsPermanent(t *testing.T) {
	f := New(testutil.NewMockStore(), queue.NewMemory(), testFetchConfig(), nil)
	err := f.Handle(context.Background(), types.FetchJob{SourceID: "nope", ExecutionID: "exec-1"})
	require.Error(t, err)
	assert.Equal(t, types.FailurePermanent, queue.Classify(err))
}
