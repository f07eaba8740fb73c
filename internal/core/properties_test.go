package core

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/lordnynex/qless-core/pkg/errors"
)

// indexMembership reports which of a queue's four ordered indices jid belongs to.
func indexMembership(t *testing.T, e *Engine, queue, jid string) []string {
	t.Helper()
	ctx := context.Background()
	var in []string
	for name, key := range map[string]string{
		"work": e.keys.Work(queue), "locks": e.keys.Locks(queue),
		"scheduled": e.keys.Scheduled(queue), "depends": e.keys.Depends(queue),
	} {
		if _, ok, err := e.store.ZScore(ctx, key, jid); err == nil && ok {
			in = append(in, name)
		}
	}
	return in
}

// A job is a member of at most one of work/locks/scheduled/depends at any time,
// across put, pop, complete, and cancel.
func TestProperty_QueueIndexMembershipExclusive(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	_, err := e.Put(ctx, 0, "a", "K", json.RawMessage(`{}`), "q", 0, PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, indexMembership(t, e, "q", "a"))

	_, err = e.Put(ctx, 0, "b", "K", json.RawMessage(`{}`), "q", 50, PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"scheduled"}, indexMembership(t, e, "q", "b"))

	jobs, err := e.Pop(ctx, 1, "q", "w", 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, []string{"locks"}, indexMembership(t, e, "q", "a"))

	require.NoError(t, e.Complete(ctx, 2, "a", "w", "q", json.RawMessage(`{}`), CompleteOptions{}))
	assert.Empty(t, indexMembership(t, e, "q", "a"))

	require.NoError(t, e.Cancel(ctx, 3, "b"))
	assert.Empty(t, indexMembership(t, e, "q", "b"))
}

// workScore orders strictly by priority first; within equal priority, earlier put
// time sorts first (FIFO). Both properties fall directly out of
// priority - t/1e10, so pop must return candidates in that order regardless of the
// order they were inserted in.
func TestProperty_PriorityThenFIFOOrdering(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	type spec struct {
		jid      string
		priority int
		put      float64
	}
	specs := []spec{
		{"low-late", 0, 10},
		{"low-early", 0, 1},
		{"high-late", 5, 9},
		{"mid", 2, 2},
		{"high-early", 5, 0},
	}
	for _, s := range specs {
		p := s.priority
		_, err := e.Put(ctx, s.put, s.jid, "K", json.RawMessage(`{}`), "q", 0, PutOptions{HasPriority: true, Priority: &p})
		require.NoError(t, err)
	}

	jobs, err := e.Pop(ctx, 20, "q", "w", int64(len(specs)))
	require.NoError(t, err)
	require.Len(t, jobs, len(specs))

	want := []string{"high-early", "high-late", "mid", "low-early", "low-late"}
	got := make([]string, len(jobs))
	for i, j := range jobs {
		got[i] = j.Jid
	}
	assert.Equal(t, want, got)
}

// Putting the same jid twice re-homes the existing record rather than creating a
// second entry; the work index never accumulates a duplicate member.
func TestProperty_PutIsIdempotentPerJid(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.Put(ctx, float64(i), "dup", "K", json.RawMessage(`{}`), "q", 0, PutOptions{})
		require.NoError(t, err)
	}

	n, err := e.store.ZCard(ctx, e.keys.Work("q"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	job, err := e.Get(ctx, "dup")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Len(t, job.History, 3)
}

// The histogram bucket counts always sum to the distribution's total sample count.
func TestProperty_HistogramSumEqualsCount(t *testing.T) {
	dist := newDistribution()
	samples := []float64{0, 5, 59, 60, 500, 3599, 3600, 90000, 86400, 700000, -1}
	for _, s := range samples {
		dist.record(s)
	}
	var sum int64
	for _, n := range dist.Histogram {
		sum += n
	}
	assert.EqualValues(t, len(samples), dist.Count)
	assert.EqualValues(t, dist.Count, sum)
}

// A dependent is released into work exactly once its full dependency set has
// cleared via completion. Cancel refuses to remove a prerequisite out from under an
// incomplete dependent; it only succeeds once every dependent has already completed,
// and cancelling the dependent itself cleans up the reverse edge on its prerequisite.
func TestProperty_DependencyReleaseOnCompleteAndCancel(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	_, err := e.Put(ctx, 0, "p1", "K", json.RawMessage(`{}`), "q", 0, PutOptions{})
	require.NoError(t, err)
	_, err = e.Put(ctx, 1, "p2", "K", json.RawMessage(`{}`), "q", 0, PutOptions{})
	require.NoError(t, err)
	_, err = e.Put(ctx, 1, "c", "K", json.RawMessage(`{}`), "q", 0, PutOptions{HasDepends: true, Depends: []string{"p1", "p2"}})
	require.NoError(t, err)

	c, err := e.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, StateDepends, c.State)

	jobs, err := e.Pop(ctx, 2, "q", "w", 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "p1", jobs[0].Jid)
	require.NoError(t, e.Complete(ctx, 3, "p1", "w", "q", json.RawMessage(`{}`), CompleteOptions{}))

	c, err = e.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, StateDepends, c.State, "one dependency still outstanding")

	err = e.Cancel(ctx, 4, "p2")
	require.Error(t, err, "p2 still has an incomplete dependent (c)")
	appErr, ok := err.(*coreerrors.AppError)
	require.True(t, ok)
	assert.Equal(t, coreerrors.InvalidTransition, appErr.Code)

	require.NoError(t, e.Cancel(ctx, 5, "c"))
	_, err = e.Get(ctx, "c")
	require.NoError(t, err)
	p2, err := e.Get(ctx, "p2")
	require.NoError(t, err)
	assert.NotContains(t, p2.Dependents, "c", "cancelling the dependent clears the reverse edge on its prerequisite")

	require.NoError(t, e.Cancel(ctx, 6, "p2"), "p2 now has no dependents left, so it can be cancelled")
}

// With offset 0, the first instance is due immediately; after that, exactly
// floor(t/interval)+1 instances exist at any time t, regardless of how many
// separate peek calls that span is split across.
func TestProperty_RecurringSpawnsFloorPlusOneInstances(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, e.Recur(ctx, 0, "rec", "K", json.RawMessage(`{}`), "q", "interval", 5, 0, RecurOptions{}))

	jobs, err := e.Peek(ctx, 3, "q", 100)
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "floor(3/5)+1 == 1 instance due (the immediate one at offset 0)")

	jobs, err = e.Peek(ctx, 12, "q", 100)
	require.NoError(t, err)
	assert.Len(t, jobs, 3, "floor(12/5)+1 == 3 instances due")

	jobs, err = e.Peek(ctx, 26, "q", 100)
	require.NoError(t, err)
	assert.Len(t, jobs, 6, "floor(26/5)+1 == 6 instances due")
}

// A failed job is visible through both FailureGroups and FailedJids until unfail
// (or a re-put) removes it from the registry.
func TestProperty_FailureRegistryMembership(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	_, err := e.Put(ctx, 0, "j", "K", json.RawMessage(`{}`), "q", 0, PutOptions{})
	require.NoError(t, err)
	_, err = e.Pop(ctx, 1, "q", "w", 1)
	require.NoError(t, err)
	require.NoError(t, e.Fail(ctx, 2, "j", "w", "failed-custom", "boom", nil))

	groups, err := e.FailureGroups(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, groups["failed-custom"])

	jids, err := e.FailedJids(ctx, "failed-custom")
	require.NoError(t, err)
	assert.Equal(t, []string{"j"}, jids)

	n, err := e.Unfail(ctx, 3, "failed-custom", "q", 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	groups, err = e.FailureGroups(ctx)
	require.NoError(t, err)
	assert.NotContains(t, groups, "failed-custom")

	job, err := e.Get(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, job.State)
}

// Samples recorded on either side of a day boundary land in distinct day-binned
// statistics keys and never blend into one another.
func TestProperty_StatsAreDayBinned(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	const day = 86400
	require.NoError(t, e.recordStats(ctx, e.keys.StatsWait(dayBin(10), "q"), 7))
	require.NoError(t, e.recordStats(ctx, e.keys.StatsWait(dayBin(day+10), "q"), 7))

	today, err := e.loadStats(ctx, e.keys.StatsWait(dayBin(10), "q"))
	require.NoError(t, err)
	tomorrow, err := e.loadStats(ctx, e.keys.StatsWait(dayBin(day+10), "q"))
	require.NoError(t, err)

	assert.EqualValues(t, 1, today.Count)
	assert.EqualValues(t, 1, tomorrow.Count)
	assert.NotEqual(t, e.keys.StatsWait(dayBin(10), "q"), e.keys.StatsWait(dayBin(day+10), "q"))
}
