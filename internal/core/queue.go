// Queue Engine (QE): peek and pop. Both run the same reclamation/promotion pipeline;
// pop additionally installs leases. This is the dispatch algorithm the rest of the
// core exists to serve.
package core

import "context"

// Peek returns up to count candidate jobs for a queue without installing a lease.
// It still performs lock-expiry reclamation and scheduled/recurring promotion — a
// deliberate side effect so a subsequent pop sees a consistent view.
func (e *Engine) Peek(ctx context.Context, now float64, queue string, count int64) ([]*Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log.Operation("peek", "", queue)

	jids, err := e.dispatch(ctx, now, queue, count, "")
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(jids))
	for _, jid := range jids {
		job, err := e.loadJob(ctx, jid)
		if err != nil {
			return nil, err
		}
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// Pop returns up to count jobs leased to worker, installing the lease on each.
func (e *Engine) Pop(ctx context.Context, now float64, queue, worker string, count int64) ([]*Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log.Operation("pop", "", queue)

	if paused, err := e.isPaused(ctx, queue); err != nil {
		return nil, err
	} else if paused {
		return nil, nil
	}
	if err := e.recordWorkerSeen(ctx, worker, now); err != nil {
		return nil, err
	}

	jids, err := e.dispatch(ctx, now, queue, count, worker)
	if err != nil {
		return nil, err
	}

	expires := now + e.heartbeatInterval(queue)
	jobs := make([]*Job, 0, len(jids))
	for _, jid := range jids {
		job, err := e.loadJob(ctx, jid)
		if err != nil {
			return nil, err
		}
		if job == nil {
			continue
		}

		if last := job.lastHistory(); last != nil {
			if err := e.recordStats(ctx, e.keys.StatsWait(dayBin(now), queue), now-last.Put); err != nil {
				return nil, err
			}
			last.Worker = worker
			last.Popped = now
		}
		job.State = StateRunning
		job.Worker = worker
		job.Expires = expires

		if err := e.store.ZRem(ctx, e.keys.Work(queue), jid); err != nil {
			return nil, err
		}
		if err := e.store.ZAdd(ctx, e.keys.Locks(queue), expires, jid); err != nil {
			return nil, err
		}
		if err := e.store.ZAdd(ctx, e.keys.WorkerJobs(worker), expires, jid); err != nil {
			return nil, err
		}
		if err := e.saveJob(ctx, job); err != nil {
			return nil, err
		}

		if tracked, _ := e.isTracked(ctx, jid); tracked {
			e.bus.Popped(ctx, jid)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// dispatch is the shared reclaim -> spawn -> promote -> select pipeline. worker==""
// marks a peek (no lease installation downstream, no pause gate, no liveness record —
// those are handled by the caller, since only pop applies them).
func (e *Engine) dispatch(ctx context.Context, now float64, queue string, count int64, worker string) ([]string, error) {
	candidates, err := e.reclaimExpiredLocks(ctx, now, queue, count)
	if err != nil {
		return nil, err
	}
	need := count - int64(len(candidates))

	if need > 0 {
		if err := e.updateRecurringJobs(ctx, now, queue, need); err != nil {
			return nil, err
		}
	}
	if need > 0 {
		if err := e.promoteScheduled(ctx, now, queue, need); err != nil {
			return nil, err
		}
	}
	if need > 0 {
		already := make(map[string]bool, len(candidates))
		for _, jid := range candidates {
			already[jid] = true
		}
		selected, err := e.store.ZRevRange(ctx, e.keys.Work(queue), need+int64(len(already)))
		if err != nil {
			return nil, err
		}
		for _, jid := range selected {
			if already[jid] {
				continue
			}
			candidates = append(candidates, jid)
			if int64(len(candidates)) >= count {
				break
			}
		}
	}
	return candidates, nil
}

// reclaimExpiredLocks scans a queue's locks index for leases whose expiry has
// passed, up to count. Reclaimed jobs either return to work (remaining retries left)
// or transition to failed (retries exhausted).
func (e *Engine) reclaimExpiredLocks(ctx context.Context, now float64, queue string, count int64) ([]string, error) {
	expired, err := e.store.ZRangeByScore(ctx, e.keys.Locks(queue), 0, now, count)
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}

	var candidates []string
	var reclaimed int64
	for _, jid := range expired {
		job, err := e.loadJob(ctx, jid)
		if err != nil {
			return nil, err
		}
		if job == nil {
			if err := e.store.ZRem(ctx, e.keys.Locks(queue), jid); err != nil {
				return nil, err
			}
			continue
		}

		lessee := job.Worker
		if err := e.removeFromWorkerSet(ctx, lessee, jid); err != nil {
			return nil, err
		}
		e.bus.ToWorker(ctx, lessee, "lock lost", jid)
		e.bus.Log(ctx, "lock lost", jid, queue, lessee)

		job.Remaining--
		reclaimed++

		if job.Remaining < 0 {
			if err := e.store.ZRem(ctx, e.keys.Locks(queue), jid); err != nil {
				return nil, err
			}
			job.Worker = ""
			job.Expires = 0
			job.State = StateFailed
			job.Failure = &Failure{Group: "failed-retries-" + queue, Message: "job exhausted retries while the lease was not renewed", When: now, Worker: lessee}
			if last := job.lastHistory(); last != nil {
				last.Failed = now
			}
			if err := e.saveJob(ctx, job); err != nil {
				return nil, err
			}
			if err := e.indexFailure(ctx, job.Failure.Group, jid); err != nil {
				return nil, err
			}
			if err := e.incrementFailedCounter(ctx, now, queue); err != nil {
				return nil, err
			}
			if tracked, _ := e.isTracked(ctx, jid); tracked {
				e.bus.Failed(ctx, jid)
			}
			e.log.Reclaimed(jid, queue, lessee, true)
			continue
		}

		if err := e.store.ZRem(ctx, e.keys.Locks(queue), jid); err != nil {
			return nil, err
		}
		job.Worker = ""
		job.Expires = 0
		job.State = StateWaiting
		if err := e.saveJob(ctx, job); err != nil {
			return nil, err
		}
		if err := e.store.ZAdd(ctx, e.keys.Work(queue), workScore(job.Priority, now), jid); err != nil {
			return nil, err
		}
		candidates = append(candidates, jid)
		if tracked, _ := e.isTracked(ctx, jid); tracked {
			e.bus.Stalled(ctx, jid)
		}
		e.log.Reclaimed(jid, queue, lessee, false)
	}

	if reclaimed > 0 {
		if _, err := e.store.HIncrBy(ctx, e.keys.StatsCounters(dayBin(now), queue), "retries", reclaimed); err != nil {
			return nil, err
		}
	}
	return candidates, nil
}

// promoteScheduled moves up to need jobs from scheduled into work, for those whose
// ready-at time has passed.
func (e *Engine) promoteScheduled(ctx context.Context, now float64, queue string, need int64) error {
	ready, err := e.store.ZRangeByScore(ctx, e.keys.Scheduled(queue), 0, now, need)
	if err != nil {
		return err
	}
	for _, jid := range ready {
		job, err := e.loadJob(ctx, jid)
		if err != nil {
			return err
		}
		if job == nil {
			if err := e.store.ZRem(ctx, e.keys.Scheduled(queue), jid); err != nil {
				return err
			}
			continue
		}
		score, ok, err := e.store.ZScore(ctx, e.keys.Scheduled(queue), jid)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := e.store.ZRem(ctx, e.keys.Scheduled(queue), jid); err != nil {
			return err
		}
		if err := e.store.ZAdd(ctx, e.keys.Work(queue), workScore(job.Priority, score), jid); err != nil {
			return err
		}
		job.State = StateWaiting
		if err := e.saveJob(ctx, job); err != nil {
			return err
		}
	}
	return nil
}
