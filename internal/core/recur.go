// Recurring Scheduler (RS): fixed-interval templates that spawn concrete job
// instances as time advances past their due score.
package core

import (
	"context"
	"encoding/json"
	"strconv"

	coreerrors "github.com/lordnynex/qless-core/pkg/errors"
)

const minScore = -1e15

// RecurringJob is a recurring template: the same shape as a Job minus lifecycle
// state, plus the interval and monotonic spawn counter.
type RecurringJob struct {
	Jid      string          `json:"jid"`
	Klass    string          `json:"klass"`
	Data     json.RawMessage `json:"data"`
	Priority int             `json:"priority"`
	Tags     []string        `json:"tags"`
	Queue    string          `json:"queue"`
	Interval float64         `json:"interval"`
	Count    int64           `json:"count"`
	Retries  int             `json:"retries"`
}

func (r *RecurringJob) toFields() map[string]interface{} {
	tags, _ := json.Marshal(r.Tags)
	data := r.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return map[string]interface{}{
		"jid":      r.Jid,
		"klass":    r.Klass,
		"data":     string(data),
		"priority": strconv.Itoa(r.Priority),
		"tags":     string(tags),
		"queue":    r.Queue,
		"interval": strconv.FormatFloat(r.Interval, 'f', -1, 64),
		"count":    strconv.FormatInt(r.Count, 10),
		"retries":  strconv.Itoa(r.Retries),
	}
}

func recurringFromFields(jid string, fields map[string]string) (*RecurringJob, bool) {
	if len(fields) == 0 {
		return nil, false
	}
	r := &RecurringJob{Jid: jid}
	r.Klass = fields["klass"]
	r.Queue = fields["queue"]
	r.Data = json.RawMessage(fields["data"])
	if v := fields["priority"]; v != "" {
		r.Priority, _ = strconv.Atoi(v)
	}
	if v := fields["retries"]; v != "" {
		r.Retries, _ = strconv.Atoi(v)
	}
	if v := fields["interval"]; v != "" {
		r.Interval, _ = strconv.ParseFloat(v, 64)
	}
	if v := fields["count"]; v != "" {
		r.Count, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := fields["tags"]; v != "" {
		_ = json.Unmarshal([]byte(v), &r.Tags)
	}
	return r, true
}

// RecurOptions carries recur's optional arguments.
type RecurOptions struct {
	Priority   int
	Tags       []string
	Retries    *int
	HasRetries bool
}

// Recur registers a recurring template. Only the "interval" schedule kind is
// defined; anything else is rejected with UnknownSchedule.
func (e *Engine) Recur(ctx context.Context, now float64, jid, klass string, data json.RawMessage, queue, spec string, interval, offset float64, opts RecurOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if spec != "interval" {
		return coreerrors.Newf(coreerrors.UnknownSchedule, "unknown recurrence spec %q", spec)
	}
	if interval <= 0 {
		return coreerrors.New(coreerrors.RecurInvalidInterval, "interval must be positive")
	}
	retries := DefaultRetries
	if opts.HasRetries {
		retries = *opts.Retries
	}

	rec := &RecurringJob{
		Jid: jid, Klass: klass, Data: data, Priority: opts.Priority, Tags: opts.Tags,
		Queue: queue, Interval: interval, Count: 0, Retries: retries,
	}
	if err := e.store.HSet(ctx, e.keys.Recurring(jid), rec.toFields()); err != nil {
		return err
	}
	if err := e.store.ZAdd(ctx, e.keys.Recur(queue), now+offset, jid); err != nil {
		return err
	}
	return e.ensureQueueKnown(ctx, queue, now)
}

// Unrecur stops future instantiation of a recurring template. Already-spawned
// instances are ordinary jobs and are unaffected.
func (e *Engine) Unrecur(ctx context.Context, jid string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.loadRecurring(ctx, jid)
	if err != nil {
		return err
	}
	if rec == nil {
		return coreerrors.Newf(coreerrors.JobNotFound, "recurring job %s does not exist", jid)
	}
	if err := e.store.ZRem(ctx, e.keys.Recur(rec.Queue), jid); err != nil {
		return err
	}
	return e.store.Del(ctx, e.keys.Recurring(jid))
}

// RecurGet returns a recurring template's current definition.
func (e *Engine) RecurGet(ctx context.Context, jid string) (*RecurringJob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadRecurring(ctx, jid)
}

// RecurUpdate patches mutable fields of a recurring template (a field whose Has* flag
// is false is left unchanged).
type RecurUpdate struct {
	Priority    *int
	Retries     *int
	Interval    *float64
	Data        json.RawMessage
	HasData     bool
	HasPriority bool
	HasRetries  bool
	HasInterval bool
}

func (e *Engine) RecurUpdate(ctx context.Context, jid string, upd RecurUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.loadRecurring(ctx, jid)
	if err != nil {
		return err
	}
	if rec == nil {
		return coreerrors.Newf(coreerrors.JobNotFound, "recurring job %s does not exist", jid)
	}
	if upd.HasPriority {
		rec.Priority = *upd.Priority
	}
	if upd.HasRetries {
		rec.Retries = *upd.Retries
	}
	if upd.HasInterval {
		if *upd.Interval <= 0 {
			return coreerrors.New(coreerrors.RecurInvalidInterval, "interval must be positive")
		}
		rec.Interval = *upd.Interval
	}
	if upd.HasData {
		rec.Data = upd.Data
	}
	return e.store.HSet(ctx, e.keys.Recurring(jid), rec.toFields())
}

// RecurTag adds tags to a recurring template; they apply to future spawns.
func (e *Engine) RecurTag(ctx context.Context, jid string, tags ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.loadRecurring(ctx, jid)
	if err != nil {
		return err
	}
	if rec == nil {
		return coreerrors.Newf(coreerrors.JobNotFound, "recurring job %s does not exist", jid)
	}
	existing := map[string]bool{}
	for _, t := range rec.Tags {
		existing[t] = true
	}
	for _, t := range tags {
		if !existing[t] {
			rec.Tags = append(rec.Tags, t)
			existing[t] = true
		}
	}
	return e.store.HSet(ctx, e.keys.Recurring(jid), rec.toFields())
}

// RecurUntag removes tags from a recurring template.
func (e *Engine) RecurUntag(ctx context.Context, jid string, tags ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.loadRecurring(ctx, jid)
	if err != nil {
		return err
	}
	if rec == nil {
		return coreerrors.Newf(coreerrors.JobNotFound, "recurring job %s does not exist", jid)
	}
	remove := map[string]bool{}
	for _, t := range tags {
		remove[t] = true
	}
	kept := rec.Tags[:0]
	for _, t := range rec.Tags {
		if !remove[t] {
			kept = append(kept, t)
		}
	}
	rec.Tags = kept
	return e.store.HSet(ctx, e.keys.Recurring(jid), rec.toFields())
}

func (e *Engine) loadRecurring(ctx context.Context, jid string) (*RecurringJob, error) {
	fields, err := e.store.HGetAll(ctx, e.keys.Recurring(jid))
	if err != nil {
		return nil, err
	}
	rec, ok := recurringFromFields(jid, fields)
	if !ok {
		return nil, nil
	}
	return rec, nil
}

// updateRecurringJobs spawns concrete job instances from every due template in
// queue, up to need spawns total across all templates in this call.
func (e *Engine) updateRecurringJobs(ctx context.Context, now float64, queue string, need int64) error {
	due, err := e.store.ZRangeByScore(ctx, e.keys.Recur(queue), minScore, now, 0)
	if err != nil {
		return err
	}

	var moved int64
	for _, jid := range due {
		if moved >= need {
			break
		}
		score, ok, err := e.store.ZScore(ctx, e.keys.Recur(queue), jid)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		rec, err := e.loadRecurring(ctx, jid)
		if err != nil {
			return err
		}
		if rec == nil {
			if err := e.store.ZRem(ctx, e.keys.Recur(queue), jid); err != nil {
				return err
			}
			continue
		}

		for score <= now && moved < need {
			count, err := e.store.HIncrBy(ctx, e.keys.Recurring(jid), "count", 1)
			if err != nil {
				return err
			}
			spawnJid := jid + "-" + strconv.FormatInt(count, 10)

			for _, tag := range rec.Tags {
				if err := e.indexTag(ctx, score, tag, spawnJid); err != nil {
					return err
				}
			}

			spawn := &Job{
				Jid: spawnJid, Klass: rec.Klass, Data: rec.Data, Priority: rec.Priority, Tags: rec.Tags,
				State: StateWaiting, Queue: queue, Retries: rec.Retries, Remaining: rec.Retries,
				History:      []HistoryEntry{{Queue: queue, Put: score}},
				Dependencies: map[string]bool{}, Dependents: map[string]bool{},
			}
			if err := e.saveJob(ctx, spawn); err != nil {
				return err
			}
			if err := e.store.ZAdd(ctx, e.keys.Work(queue), workScore(rec.Priority, score), spawnJid); err != nil {
				return err
			}
			e.log.Spawned(jid, spawnJid, count)

			score += rec.Interval
			if _, err := e.store.ZIncrBy(ctx, e.keys.Recur(queue), rec.Interval, jid); err != nil {
				return err
			}
			moved++
		}
	}
	return nil
}
