// Failure Registry (FR): per-group failed job lists and unfail.
package core

import (
	"context"

	coreerrors "github.com/lordnynex/qless-core/pkg/errors"
)

func (e *Engine) indexFailure(ctx context.Context, group, jid string) error {
	if err := e.store.SAdd(ctx, e.keys.Failures(), group); err != nil {
		return err
	}
	return e.store.LPush(ctx, e.keys.FailedGroup(group), jid)
}

// unindexFailure removes jid from its failure group's list, and removes the group
// from the global failures set entirely once it is empty.
func (e *Engine) unindexFailure(ctx context.Context, group, jid string) error {
	if err := e.store.LRem(ctx, e.keys.FailedGroup(group), jid); err != nil {
		return err
	}
	n, err := e.store.LLen(ctx, e.keys.FailedGroup(group))
	if err != nil {
		return err
	}
	if n == 0 {
		return e.store.SRem(ctx, e.keys.Failures(), group)
	}
	return nil
}

func (e *Engine) incrementFailedCounter(ctx context.Context, now float64, queue string) error {
	_, err := e.store.HIncrBy(ctx, e.keys.StatsCounters(dayBin(now), queue), "failed", 1)
	return err
}

func (e *Engine) decrementFailedCounter(ctx context.Context, failedWhen float64, queue string) error {
	_, err := e.store.HIncrBy(ctx, e.keys.StatsCounters(dayBin(failedWhen), queue), "failed", -1)
	return err
}

// FailureGroups returns every known failure group and the count of jids in it.
func (e *Engine) FailureGroups(ctx context.Context) (map[string]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	groups, err := e.store.SMembers(ctx, e.keys.Failures())
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(groups))
	for _, g := range groups {
		n, err := e.store.LLen(ctx, e.keys.FailedGroup(g))
		if err != nil {
			return nil, err
		}
		out[g] = n
	}
	return out, nil
}

// FailedJids returns the jids currently in a failure group, head (most recent) to
// tail (oldest).
func (e *Engine) FailedJids(ctx context.Context, group string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.LRange(ctx, e.keys.FailedGroup(group))
}

// Unfail resets up to count of the oldest jids in a failure group back to waiting.
func (e *Engine) Unfail(ctx context.Context, now float64, group, queue string, count int64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if count <= 0 {
		count = 25
	}
	jids, err := e.store.PopTail(ctx, e.keys.FailedGroup(group), count)
	if err != nil {
		return 0, err
	}
	if len(jids) == 0 {
		if n, _ := e.store.LLen(ctx, e.keys.FailedGroup(group)); n == 0 {
			if err := e.store.SRem(ctx, e.keys.Failures(), group); err != nil {
				return 0, err
			}
		}
		return 0, nil
	}

	var moved int64
	for _, jid := range jids {
		job, err := e.loadJob(ctx, jid)
		if err != nil {
			return moved, err
		}
		if job == nil {
			continue
		}
		if job.State != StateFailed {
			return moved, coreerrors.Newf(coreerrors.InvalidTransition, "job %s is not failed", jid)
		}
		job.State = StateWaiting
		job.Remaining = job.Retries
		job.Queue = queue
		job.Failure = nil
		job.History = append(job.History, HistoryEntry{Queue: queue, Put: now})
		if err := e.saveJob(ctx, job); err != nil {
			return moved, err
		}
		if err := e.store.ZAdd(ctx, e.keys.Work(queue), workScore(job.Priority, now), jid); err != nil {
			return moved, err
		}
		if err := e.ensureQueueKnown(ctx, queue, now); err != nil {
			return moved, err
		}
		moved++
	}

	n, err := e.store.LLen(ctx, e.keys.FailedGroup(group))
	if err != nil {
		return moved, err
	}
	if n == 0 {
		if err := e.store.SRem(ctx, e.keys.Failures(), group); err != nil {
			return moved, err
		}
	}
	return moved, nil
}
