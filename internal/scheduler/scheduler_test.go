package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammobase/harvester/internal/queue"
	"github.com/ammobase/harvester/internal/testutil"
	"github.com/ammobase/harvester/pkg/types"
)

func testSchedulerConfig() types.SchedulerConfig {
	return types.SchedulerConfig{PollInterval: time.Second, LockTTL: 30 * time.Minute}
}

func dueSource(id string) types.Source {
	return types.Source{
		ID:        id,
		URL:       "https://shop.example.com/feed.json",
		Interval:  6 * time.Hour,
		NextDueAt: time.Now().Add(-time.Minute),
		Enabled:   true,
	}
}

func TestTick_SchedulesDueSources(t *testing.T) {
	st := testutil.NewMockStore()
	st.Sources["src-1"] = dueSource("src-1")
	notDue := dueSource("src-2")
	notDue.NextDueAt = time.Now().Add(time.Hour)
	st.Sources["src-2"] = notDue
	disabled := dueSource("src-3")
	disabled.Enabled = false
	st.Sources["src-3"] = disabled

	q := queue.NewMemory()
	s := New(st, q, NewMemoryLocker(), testSchedulerConfig(), nil)
	require.NoError(t, s.Tick(context.Background()))

	// Only the enabled, due source is scheduled.
	require.Equal(t, 1, q.Len(types.StageFetch))
	require.Len(t, st.Executions, 1)

	msgs, err := q.Receive(context.Background(), types.StageFetch, 10)
	require.NoError(t, err)
	var fj types.FetchJob
	_, err = queue.Decode(msgs[0], &fj)
	require.NoError(t, err)
	assert.Equal(t, "src-1", fj.SourceID)
	assert.NotEmpty(t, fj.ExecutionID)

	exec := st.Executions[fj.ExecutionID]
	assert.Equal(t, types.ExecutionPending, exec.Status)
}

func TestTick_AdvancesNextDue(t *testing.T) {
	st := testutil.NewMockStore()
	st.Sources["src-1"] = dueSource("src-1")
	q := queue.NewMemory()
	s := New(st, q, NewMemoryLocker(), testSchedulerConfig(), nil)

	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })
	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, base.Add(6*time.Hour), st.Sources["src-1"].NextDueAt)

	// Second tick at the same instant: the source is no longer due.
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 1, q.Len(types.StageFetch))
}

func TestTick_LockPreventsDoubleSchedule(t *testing.T) {
	st := testutil.NewMockStore()
	st.Sources["src-1"] = dueSource("src-1")
	q := queue.NewMemory()
	locker := NewMemoryLocker()

	// A competing replica holds the source.
	held, err := locker.TryLock(context.Background(), "src-1", time.Hour)
	require.NoError(t, err)
	require.True(t, held)

	s := New(st, q, locker, testSchedulerConfig(), nil)
	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, 0, q.Len(types.StageFetch))
	assert.Empty(t, st.Executions)
}

func TestMemoryLocker_ExpiryReleases(t *testing.T) {
	l := NewMemoryLocker()
	base := time.Now()
	now := base
	l.now = func() time.Time { return now }

	ok, err := l.TryLock(context.Background(), "src-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.TryLock(context.Background(), "src-1", time.Minute)
	assert.False(t, ok)

	now = base.Add(2 * time.Minute)
	ok, _ = l.TryLock(context.Background(), "src-1", time.Minute)
	assert.True(t, ok)

	require.NoError(t, l.Unlock(context.Background(), "src-1"))
	// now still within the re-acquired TTL, but explicitly unlocked
	ok, _ = l.TryLock(context.Background(), "src-1", time.Minute)
	assert.True(t, ok)
}
