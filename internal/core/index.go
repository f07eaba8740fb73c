// Tag / Tracking / Worker Indices (IX): reverse indices maintained alongside the
// primary job record and queue indices.
package core

import (
	"context"
	"sort"
)

// indexTag adds jid to a tag's ordered index (scored by the time it was tagged) and
// bumps the tag's global frequency.
func (e *Engine) indexTag(ctx context.Context, now float64, tag, jid string) error {
	if err := e.store.ZAdd(ctx, e.keys.Tag(tag), now, jid); err != nil {
		return err
	}
	_, err := e.store.ZIncrBy(ctx, e.keys.Tags(), 1, tag)
	return err
}

// unindexTag removes jid from a tag's index and decrements its frequency.
func (e *Engine) unindexTag(ctx context.Context, tag, jid string) error {
	if err := e.store.ZRem(ctx, e.keys.Tag(tag), jid); err != nil {
		return err
	}
	_, err := e.store.ZIncrBy(ctx, e.keys.Tags(), -1, tag)
	return err
}

// TagAdd adds tags to an existing job.
func (e *Engine) TagAdd(ctx context.Context, now float64, jid string, tags ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, err := e.mustLoadJob(ctx, jid)
	if err != nil {
		return err
	}
	existing := map[string]bool{}
	for _, t := range job.Tags {
		existing[t] = true
	}
	for _, t := range tags {
		if existing[t] {
			continue
		}
		job.Tags = append(job.Tags, t)
		if err := e.indexTag(ctx, now, t, jid); err != nil {
			return err
		}
		existing[t] = true
	}
	return e.saveJob(ctx, job)
}

// TagRemove removes tags from an existing job.
func (e *Engine) TagRemove(ctx context.Context, jid string, tags ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, err := e.mustLoadJob(ctx, jid)
	if err != nil {
		return err
	}
	remove := map[string]bool{}
	for _, t := range tags {
		remove[t] = true
	}
	kept := job.Tags[:0]
	for _, t := range job.Tags {
		if remove[t] {
			if err := e.unindexTag(ctx, t, jid); err != nil {
				return err
			}
			continue
		}
		kept = append(kept, t)
	}
	job.Tags = kept
	return e.saveJob(ctx, job)
}

// TagGet returns the jids indexed under a tag, most recently tagged first.
func (e *Engine) TagGet(ctx context.Context, tag string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	asc, err := e.store.ZAll(ctx, e.keys.Tag(tag))
	if err != nil {
		return nil, err
	}
	reverse(asc)
	return asc, nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// tagFrequency is one entry of a TagTop result.
type tagFrequency struct {
	Tag   string
	Count int64
}

// TagTop returns the most frequently used tags, descending by frequency, capped at
// count (count<=0 returns every known tag).
func (e *Engine) TagTop(ctx context.Context, count int64) ([]tagFrequency, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	all, err := e.store.ZAll(ctx, e.keys.Tags())
	if err != nil {
		return nil, err
	}
	freqs := make([]tagFrequency, 0, len(all))
	for _, tag := range all {
		score, ok, err := e.store.ZScore(ctx, e.keys.Tags(), tag)
		if err != nil {
			return nil, err
		}
		if !ok || score <= 0 {
			continue
		}
		freqs = append(freqs, tagFrequency{Tag: tag, Count: int64(score)})
	}
	sort.Slice(freqs, func(i, j int) bool {
		if freqs[i].Count != freqs[j].Count {
			return freqs[i].Count > freqs[j].Count
		}
		return freqs[i].Tag < freqs[j].Tag
	})
	if count > 0 && int64(len(freqs)) > count {
		freqs = freqs[:count]
	}
	return freqs, nil
}

// ---- tracking ----

func (e *Engine) isTracked(ctx context.Context, jid string) (bool, error) {
	_, ok, err := e.store.ZScore(ctx, e.keys.Tracked(), jid)
	return ok, err
}

// Track adds a job to the tracked set, publishing a "track" event.
func (e *Engine) Track(ctx context.Context, now float64, jid string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.ZAdd(ctx, e.keys.Tracked(), now, jid); err != nil {
		return err
	}
	e.bus.Tracked(ctx, jid, true)
	return nil
}

// Untrack removes a job from the tracked set, publishing an "untrack" event.
func (e *Engine) Untrack(ctx context.Context, jid string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.ZRem(ctx, e.keys.Tracked(), jid); err != nil {
		return err
	}
	e.bus.Tracked(ctx, jid, false)
	return nil
}

// TrackedJids returns every currently tracked jid.
func (e *Engine) TrackedJids(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ZAll(ctx, e.keys.Tracked())
}

// ---- worker liveness ----

// recordWorkerSeen registers a worker's last-seen time in the global worker index.
// Called by pop before dispatch, per the queue engine algorithm.
func (e *Engine) recordWorkerSeen(ctx context.Context, worker string, now float64) error {
	return e.store.ZAdd(ctx, e.keys.Workers(), now, worker)
}
