package core

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_S1_Basic(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	_, err := e.Put(ctx, 100, "j1", "K", json.RawMessage(`{}`), "q", 0, PutOptions{})
	require.NoError(t, err)

	jobs, err := e.Pop(ctx, 101, "q", "w", 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, StateRunning, jobs[0].State)
	assert.Equal(t, 161.0, jobs[0].Expires)

	require.NoError(t, e.Complete(ctx, 110, "j1", "w", "q", json.RawMessage(`{}`), CompleteOptions{}))

	job, err := e.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StateComplete, job.State)

	wait, err := e.loadStats(ctx, e.keys.StatsWait(dayBin(101), "q"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, wait.Count)
	assert.InDelta(t, 1, wait.Mean, 1e-9)

	run, err := e.loadStats(ctx, e.keys.StatsRun(dayBin(110), "q"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, run.Count)
	assert.InDelta(t, 9, run.Mean, 1e-9)
}

func TestScenario_S2_Delay(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	_, err := e.Put(ctx, 100, "j2", "K", json.RawMessage(`{}`), "q", 30, PutOptions{})
	require.NoError(t, err)

	jobs, err := e.Peek(ctx, 120, "q", 1)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	jobs, err = e.Peek(ctx, 131, "q", 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "j2", jobs[0].Jid)
	assert.Equal(t, StateWaiting, jobs[0].State)
}

func TestScenario_S3_LockLossAndRetries(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	one := 1
	_, err := e.Put(ctx, 0, "j3", "K", json.RawMessage(`{}`), "q", 0, PutOptions{HasRetries: true, Retries: &one})
	require.NoError(t, err)

	jobs, err := e.Pop(ctx, 0, "q", "wA", 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 60.0, jobs[0].Expires)

	jobs, err = e.Pop(ctx, 61, "q", "wB", 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "j3", jobs[0].Jid)
	assert.Equal(t, 0, jobs[0].Remaining)

	jobs, err = e.Pop(ctx, 122, "q", "wC", 1)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	job, err := e.Get(ctx, "j3")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, job.State)
	require.NotNil(t, job.Failure)
	assert.Equal(t, "failed-retries-q", job.Failure.Group)
}

func TestScenario_S4_Dependencies(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	_, err := e.Put(ctx, 0, "p", "K", json.RawMessage(`{}`), "q", 0, PutOptions{})
	require.NoError(t, err)
	_, err = e.Put(ctx, 1, "c", "K", json.RawMessage(`{}`), "q", 0, PutOptions{HasDepends: true, Depends: []string{"p"}})
	require.NoError(t, err)

	jobs, err := e.Pop(ctx, 2, "q", "w", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "p", jobs[0].Jid)

	require.NoError(t, e.Complete(ctx, 3, "p", "w", "q", json.RawMessage(`{}`), CompleteOptions{}))

	jobs, err = e.Pop(ctx, 4, "q", "w", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "c", jobs[0].Jid)
}

func TestScenario_S5_Priority(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	zero := 0
	five := 5
	_, err := e.Put(ctx, 0, "lo", "K", json.RawMessage(`{}`), "q", 0, PutOptions{HasPriority: true, Priority: &zero})
	require.NoError(t, err)
	_, err = e.Put(ctx, 1, "hi", "K", json.RawMessage(`{}`), "q", 0, PutOptions{HasPriority: true, Priority: &five})
	require.NoError(t, err)

	jobs, err := e.Pop(ctx, 2, "q", "w", 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "hi", jobs[0].Jid)
	assert.Equal(t, "lo", jobs[1].Jid)
}

func TestScenario_S6_Recurring(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, e.Recur(ctx, 0, "r", "K", json.RawMessage(`{}`), "q", "interval", 10, 0, RecurOptions{}))

	jobs, err := e.Pop(ctx, 25, "q", "w", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "r-1", jobs[0].Jid)
	assert.Equal(t, "r-2", jobs[1].Jid)
	assert.Equal(t, "r-3", jobs[2].Jid)

	score, ok, err := e.store.ZScore(ctx, e.keys.Recur("q"), "r")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30.0, score)
}
