package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammobase/harvester/internal/queue"
	"github.com/ammobase/harvester/internal/testutil"
	"github.com/ammobase/harvester/pkg/types"
)

func TestJSONExtractor_Array(t *testing.T) {
	items, err := JSONExtractor{}.Extract([]byte(`[{"name":"a"},{"name":"b"}]`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0]["name"])
}

func TestJSONExtractor_WrappedObject(t *testing.T) {
	for _, key := range []string{"items", "products", "listings", "data"} {
		items, err := JSONExtractor{}.Extract([]byte(`{"` + key + `":[{"name":"x"}]}`))
		require.NoError(t, err, key)
		require.Len(t, items, 1, key)
	}
}

func TestJSONExtractor_Malformed(t *testing.T) {
	_, err := JSONExtractor{}.Extract([]byte(`<html>not json</html>`))
	assert.Error(t, err)
}

func TestJSONExtractor_NoList(t *testing.T) {
	_, err := JSONExtractor{}.Extract([]byte(`{"status":"ok"}`))
	assert.Error(t, err)
}

func TestParseFeed_AvantLinkCSV(t *testing.T) {
	feed := "SKU,Product Name,Retail Price,Buy Link\n" +
		"123,Federal 9mm 115gr,24.99,https://example.com/p/123\n" +
		"456,CCI 22LR 40gr,7.99,https://example.com/p/456\n"

	items, err := ParseFeed(types.NetworkAvantLink, []byte(feed))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Federal 9mm 115gr", items[0]["Product Name"])
	assert.Equal(t, "24.99", items[0]["Retail Price"])
}

func TestParseFeed_AvantLinkPipeDelimited(t *testing.T) {
	feed := "SKU|Product Name|Retail Price\n123|Federal 9mm|24.99\n"
	items, err := ParseFeed(types.NetworkAvantLink, []byte(feed))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Federal 9mm", items[0]["Product Name"])
}

func TestParseFeed_Impact(t *testing.T) {
	items, err := ParseFeed(types.NetworkImpact, []byte(`{"Items":[{"Name":"x","CurrentPrice":"9.99"}]}`))
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestParseFeed_UnsupportedNetwork(t *testing.T) {
	_, err := ParseFeed(types.AffiliateNetwork("shareasale"), []byte(`[]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported affiliate network")
}

func TestRunner_Handle_EnqueuesNormalizeJob(t *testing.T) {
	st := testutil.NewMockStore()
	q := queue.NewMemory()
	r := NewRunner(st, q, nil, 0, nil)

	err := r.Handle(context.Background(), types.ExtractJob{
		ExecutionID: "e1",
		SourceID:    "s1",
		Content:     []byte(`[{"name":"a","price":"1.99","url":"/p/a"}]`),
		ContentHash: "h1",
	})
	require.NoError(t, err)

	msgs, err := q.Receive(context.Background(), types.StageNormalize, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var job types.NormalizeJob
	_, err = queue.Decode(msgs[0], &job)
	require.NoError(t, err)
	assert.Equal(t, "e1", job.ExecutionID)
	assert.Equal(t, "h1", job.ContentHash)
	require.Len(t, job.RawItems, 1)
}

func TestRunner_Handle_ItemCapTruncatesWithWarn(t *testing.T) {
	st := testutil.NewMockStore()
	q := queue.NewMemory()
	r := NewRunner(st, q, nil, 2, nil)

	err := r.Handle(context.Background(), types.ExtractJob{
		ExecutionID: "e1",
		SourceID:    "s1",
		Content:     []byte(`[{"n":1},{"n":2},{"n":3},{"n":4}]`),
	})
	require.NoError(t, err)

	warns := st.LogsFor("e1", types.EventCapReached)
	require.Len(t, warns, 1)
	assert.Equal(t, types.LogWarn, warns[0].Level)

	msgs, _ := q.Receive(context.Background(), types.StageNormalize, 10)
	require.Len(t, msgs, 1)
	var job types.NormalizeJob
	_, err = queue.Decode(msgs[0], &job)
	require.NoError(t, err)
	assert.Len(t, job.RawItems, 2)
}

func TestRunner_Handle_MalformedContentIsPermanent(t *testing.T) {
	st := testutil.NewMockStore()
	q := queue.NewMemory()
	r := NewRunner(st, q, nil, 0, nil)

	err := r.Handle(context.Background(), types.ExtractJob{
		ExecutionID: "e1",
		Content:     []byte(`not json at all`),
	})
	require.Error(t, err)
	assert.Equal(t, types.FailurePermanent, queue.Classify(err))
}
