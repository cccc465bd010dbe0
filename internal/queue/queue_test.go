package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammobase/harvester/pkg/types"
)

func TestJobID(t *testing.T) {
	assert.Equal(t, "exec1:write", JobID("exec1", types.StageWrite))
	assert.Equal(t, "exec1:alert:prod9", JobID("exec1", types.StageAlert, "prod9"))

	// Deterministic: same inputs, same identity.
	assert.Equal(t, JobID("e", types.StageFetch), JobID("e", types.StageFetch))
}

func TestPublishDecode_Roundtrip(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	job := types.WriteJob{ExecutionID: "e1", SourceID: "s1", ContentHash: "abc"}
	require.NoError(t, Publish(ctx, q, types.StageWrite, job, Options{}))

	msgs, err := q.Receive(ctx, types.StageWrite, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var got types.WriteJob
	attempt, err := Decode(msgs[0], &got)
	require.NoError(t, err)
	assert.Equal(t, 1, attempt)
	assert.Equal(t, job, got)
}

func TestMemoryQueue_DedupDropsRedelivery(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	opts := Options{DedupID: JobID("e1", types.StageWrite)}

	require.NoError(t, q.Enqueue(ctx, types.StageWrite, []byte("a"), opts))
	require.NoError(t, q.Enqueue(ctx, types.StageWrite, []byte("a"), opts))

	assert.Equal(t, 1, q.Len(types.StageWrite))
}

func TestMemoryQueue_DelayedVisibility(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	now := time.Now()
	q.SetClock(func() time.Time { return now })
	require.NoError(t, q.Enqueue(ctx, types.StageDeliver, []byte("x"), Options{Delay: time.Minute}))

	msgs, err := q.Receive(ctx, types.StageDeliver, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	q.SetClock(func() time.Time { return now.Add(2 * time.Minute) })
	msgs, err = q.Receive(ctx, types.StageDeliver, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestMemoryQueue_RequeueAfterInflight(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, types.StageFetch, []byte("x"), Options{}))

	msgs, err := q.Receive(ctx, types.StageFetch, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	// In flight: not redelivered.
	again, err := q.Receive(ctx, types.StageFetch, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	q.Requeue(types.StageFetch, msgs[0])
	again, err = q.Receive(ctx, types.StageFetch, 10)
	require.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestCalculateBackoff(t *testing.T) {
	policy := types.RetryPolicy{BackoffSeconds: 30, BackoffMultiplier: 2.0}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, CalculateBackoff(policy, tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestCalculateBackoff_CapsAtOneHour(t *testing.T) {
	policy := types.RetryPolicy{BackoffSeconds: 1800, BackoffMultiplier: 4.0}
	assert.Equal(t, 3600*time.Second, CalculateBackoff(policy, 3))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, types.FailureTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, types.FailurePermanent, Classify(Permanent(assert.AnError)))
	assert.Equal(t, types.FailureTransient, Classify(assert.AnError))
}

func TestIsRetryable(t *testing.T) {
	policy := types.RetryPolicy{
		RetryableFailures: []types.FailureCategory{types.FailureTransient, types.FailureTimeout},
	}

	assert.True(t, IsRetryable(policy, types.FailureTransient))
	assert.True(t, IsRetryable(policy, types.FailureTimeout))
	assert.False(t, IsRetryable(policy, types.FailurePermanent))
}
