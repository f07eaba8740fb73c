package core

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/lordnynex/qless-core/internal/config"
	"github.com/lordnynex/qless-core/internal/events"
	"github.com/lordnynex/qless-core/internal/logging"
	"github.com/lordnynex/qless-core/internal/store"
	coreerrors "github.com/lordnynex/qless-core/pkg/errors"
)

// Engine is the execution core. Every exported method is one server-atomic operation
// per the concurrency model: a single mutex stands in for the single-writer-actor (or
// per-request Lua script) serialization the storage substrate would otherwise provide,
// satisfying the same "no operation observes another's partial state" guarantee with
// one process-wide lock instead of a lock hierarchy.
type Engine struct {
	mu    sync.Mutex
	store *store.Store
	bus   *events.Bus
	cfg   *config.Config
	log   *logging.Logger
	keys  *keys
}

// New constructs an Engine over the given storage abstraction, event bus, and
// configuration. keyPrefix defaults to "ql" when empty.
func New(s *store.Store, bus *events.Bus, cfg *config.Config, log *logging.Logger, keyPrefix string) *Engine {
	if log == nil {
		log = logging.Default()
	}
	if cfg == nil {
		cfg = config.New()
	}
	return &Engine{store: s, bus: bus, cfg: cfg, log: log, keys: newKeys(keyPrefix)}
}

func (e *Engine) heartbeatInterval(queue string) float64 {
	return e.cfg.Heartbeat(queue)
}

// loadJob fetches and deserializes a job record. Returns (nil, nil) if it does not
// exist — callers that require existence translate that into JobNotFound themselves,
// since some callers (put) treat absence as a legitimate case.
func (e *Engine) loadJob(ctx context.Context, jid string) (*Job, error) {
	fields, err := e.store.HGetAll(ctx, e.keys.Job(jid))
	if err != nil {
		return nil, err
	}
	job, ok, err := jobFromFields(jid, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return job, nil
}

func (e *Engine) mustLoadJob(ctx context.Context, jid string) (*Job, error) {
	job, err := e.loadJob(ctx, jid)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, coreerrors.Newf(coreerrors.JobNotFound, "job %s does not exist", jid)
	}
	return job, nil
}

func (e *Engine) saveJob(ctx context.Context, job *Job) error {
	fields, err := job.toFields()
	if err != nil {
		return err
	}
	return e.store.HSet(ctx, e.keys.Job(job.Jid), fields)
}

func (e *Engine) deleteJob(ctx context.Context, jid string) error {
	return e.store.Del(ctx, e.keys.Job(jid), e.keys.Dependents(jid), e.keys.Dependencies(jid))
}

// ensureQueueKnown registers a queue name in the global queue index the first time it
// is seen, scored by first-seen time.
func (e *Engine) ensureQueueKnown(ctx context.Context, queue string, now float64) error {
	_, ok, err := e.store.ZScore(ctx, e.keys.Queues(), queue)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return e.store.ZAdd(ctx, e.keys.Queues(), now, queue)
}

// removeFromQueueIndices removes jid from each of a queue's four job-holding ordered
// indices (work, locks, scheduled, depends; the recur index holds templates, not
// jobs). A job is a member of at most one at a time, but callers that don't know
// which one (e.g. put re-homing a job, cancel) can call this unconditionally.
func (e *Engine) removeFromQueueIndices(ctx context.Context, queue, jid string) error {
	for _, key := range []string{
		e.keys.Work(queue), e.keys.Locks(queue), e.keys.Scheduled(queue), e.keys.Depends(queue),
	} {
		if err := e.store.ZRem(ctx, key, jid); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) removeFromWorkerSet(ctx context.Context, worker, jid string) error {
	if worker == "" {
		return nil
	}
	return e.store.ZRem(ctx, e.keys.WorkerJobs(worker), jid)
}

// recordStats folds a wait or run duration sample into the (stage, day-bin, queue)
// distribution.
func (e *Engine) recordStats(ctx context.Context, key string, sample float64) error {
	raw, _, err := e.store.HGet(ctx, key, "d")
	if err != nil {
		return err
	}
	dist, err := unmarshalDistribution(raw)
	if err != nil {
		return err
	}
	dist.record(sample)
	wire, err := dist.marshal()
	if err != nil {
		return err
	}
	return e.store.HSet(ctx, key, map[string]interface{}{"d": wire})
}

func (e *Engine) loadStats(ctx context.Context, key string) (*Distribution, error) {
	raw, _, err := e.store.HGet(ctx, key, "d")
	if err != nil {
		return nil, err
	}
	return unmarshalDistribution(raw)
}

// ---- put ----

// PutOptions carries put's optional arguments. A field counts as supplied only when
// its Has* flag is set; an unsupplied priority, tags or retries falls through to the
// existing job's value, then the hardcoded default. Depends has no such fallback: it
// replaces the dependency set outright, and an omitted Depends means no dependencies.
type PutOptions struct {
	Priority    *int
	Tags        []string
	Retries     *int
	Depends     []string
	HasPriority bool
	HasRetries  bool
	HasTags     bool
	HasDepends  bool
}

// Put creates or re-homes a job. delay>0 with a non-empty depends list is rejected:
// a job cannot be simultaneously time-delayed and prerequisite-blocked.
func (e *Engine) Put(ctx context.Context, now float64, jid, klass string, data json.RawMessage, queue string, delay float64, opts PutOptions) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log.Operation("put", jid, queue)
	return e.putLocked(ctx, now, jid, klass, data, queue, delay, opts)
}

// putLocked is put's body, callable by other operations (complete's next-queue
// handoff) that already hold the engine mutex — it must never acquire it itself.
func (e *Engine) putLocked(ctx context.Context, now float64, jid, klass string, data json.RawMessage, queue string, delay float64, opts PutOptions) (string, error) {
	if jid == "" {
		return "", coreerrors.New(coreerrors.InvalidArguments, "jid is required")
	}
	if queue == "" {
		return "", coreerrors.New(coreerrors.InvalidArguments, "queue is required")
	}
	if delay > 0 && opts.HasDepends && len(opts.Depends) > 0 {
		return "", coreerrors.New(coreerrors.Conflict, "delay and depends are mutually exclusive")
	}

	existing, err := e.loadJob(ctx, jid)
	if err != nil {
		return "", err
	}

	priority := 0
	tags := []string{}
	retries := DefaultRetries
	oldQueue, oldWorker := "", ""
	var oldState State
	var oldFailure *Failure
	history := []HistoryEntry{}

	if existing != nil {
		priority = existing.Priority
		tags = existing.Tags
		retries = existing.Retries
		oldQueue = existing.Queue
		oldWorker = existing.Worker
		oldState = existing.State
		oldFailure = existing.Failure
		history = existing.History
	}
	if opts.HasPriority {
		priority = *opts.Priority
	}
	if opts.HasTags {
		tags = opts.Tags
	}
	if opts.HasRetries {
		retries = *opts.Retries
	}
	depends := opts.Depends

	e.bus.Log(ctx, "put", jid, queue, "")

	history = append(history, HistoryEntry{Queue: queue, Put: now})

	if oldQueue != "" {
		if err := e.removeFromQueueIndices(ctx, oldQueue, jid); err != nil {
			return "", err
		}
	}
	if oldWorker != "" {
		if err := e.removeFromWorkerSet(ctx, oldWorker, jid); err != nil {
			return "", err
		}
		e.bus.ToWorker(ctx, oldWorker, "put", jid)
	}
	if oldState == StateComplete {
		if err := e.store.ZRem(ctx, e.keys.Completed(), jid); err != nil {
			return "", err
		}
	}
	for _, tag := range tags {
		if err := e.indexTag(ctx, now, tag, jid); err != nil {
			return "", err
		}
	}
	if oldState == StateFailed && oldFailure != nil {
		if err := e.unindexFailure(ctx, oldFailure.Group, jid); err != nil {
			return "", err
		}
		if err := e.decrementFailedCounter(ctx, oldFailure.When, oldQueue); err != nil {
			return "", err
		}
	}

	job := &Job{
		Jid:          jid,
		Klass:        klass,
		Data:         data,
		Priority:     priority,
		Tags:         tags,
		Queue:        queue,
		Worker:       "",
		Expires:      0,
		Retries:      retries,
		Remaining:    retries,
		History:      history,
		Dependencies: map[string]bool{},
		Dependents:   map[string]bool{},
	}
	if existing != nil {
		job.Dependents = existing.Dependents
		if job.Dependents == nil {
			job.Dependents = map[string]bool{}
		}
	}

	for _, d := range depends {
		dep, err := e.loadJob(ctx, d)
		if err != nil {
			return "", err
		}
		if dep == nil || dep.State == StateComplete {
			continue
		}
		job.Dependencies[d] = true
		if dep.Dependents == nil {
			dep.Dependents = map[string]bool{}
		}
		dep.Dependents[jid] = true
		if err := e.saveJob(ctx, dep); err != nil {
			return "", err
		}
	}

	switch {
	case delay > 0:
		job.State = StateScheduled
		if err := e.store.ZAdd(ctx, e.keys.Scheduled(queue), now+delay, jid); err != nil {
			return "", err
		}
	case len(job.Dependencies) > 0:
		job.State = StateDepends
		if err := e.store.ZAdd(ctx, e.keys.Depends(queue), now, jid); err != nil {
			return "", err
		}
	default:
		job.State = StateWaiting
		if err := e.store.ZAdd(ctx, e.keys.Work(queue), workScore(priority, now), jid); err != nil {
			return "", err
		}
	}

	if err := e.saveJob(ctx, job); err != nil {
		return "", err
	}
	if err := e.ensureQueueKnown(ctx, queue, now); err != nil {
		return "", err
	}

	if tracked, _ := e.isTracked(ctx, jid); tracked {
		e.bus.Put(ctx, jid)
	}

	return jid, nil
}

// ---- complete ----

// CompleteOptions carries complete's optional next-queue handoff.
type CompleteOptions struct {
	Next    string
	Delay   float64
	Depends []string
}

// Complete finishes a running job. If Next is set, the job is immediately re-put onto
// that queue instead of becoming terminal.
func (e *Engine) Complete(ctx context.Context, now float64, jid, worker, queue string, data json.RawMessage, opts CompleteOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log.Operation("complete", jid, queue)

	job, err := e.mustLoadJob(ctx, jid)
	if err != nil {
		return err
	}
	if job.State != StateRunning {
		err := coreerrors.Newf(coreerrors.JobNotRunning, "job %s is not running", jid)
		e.log.Rejected("complete", jid, err)
		return err
	}
	if job.Worker != worker {
		err := coreerrors.Newf(coreerrors.WorkerMismatch, "job %s is leased to %s, not %s", jid, job.Worker, worker)
		e.log.Rejected("complete", jid, err)
		return err
	}
	if job.Queue != queue {
		err := coreerrors.Newf(coreerrors.QueueMismatch, "job %s belongs to queue %s, not %s", jid, job.Queue, queue)
		e.log.Rejected("complete", jid, err)
		return err
	}

	if err := e.store.ZRem(ctx, e.keys.Locks(queue), jid); err != nil {
		return err
	}
	if err := e.removeFromWorkerSet(ctx, worker, jid); err != nil {
		return err
	}

	last := job.lastHistory()
	if last != nil {
		last.Completed = now
		if last.Popped > 0 {
			if err := e.recordStats(ctx, e.keys.StatsRun(dayBin(now), queue), now-last.Popped); err != nil {
				return err
			}
		}
	}
	if len(data) > 0 {
		job.Data = data
	}
	job.Worker = ""
	job.Expires = 0

	if opts.Next != "" {
		if err := e.saveJob(ctx, job); err != nil {
			return err
		}
		putOpts := PutOptions{}
		if len(opts.Depends) > 0 {
			putOpts.HasDepends = true
			putOpts.Depends = opts.Depends
		}
		if _, err := e.putLocked(ctx, now, jid, job.Klass, job.Data, opts.Next, opts.Delay, putOpts); err != nil {
			return err
		}
	} else {
		job.State = StateComplete
		if err := e.saveJob(ctx, job); err != nil {
			return err
		}
		if err := e.store.ZAdd(ctx, e.keys.Completed(), now, jid); err != nil {
			return err
		}
	}

	if err := e.releaseDependents(ctx, now, job); err != nil {
		return err
	}

	if tracked, _ := e.isTracked(ctx, jid); tracked {
		e.bus.Completed(ctx, jid)
	}
	return nil
}

// releaseDependents walks job's dependents and moves any whose dependency set has
// become empty from depends into work.
func (e *Engine) releaseDependents(ctx context.Context, now float64, job *Job) error {
	for d := range job.Dependents {
		dep, err := e.loadJob(ctx, d)
		if err != nil {
			return err
		}
		if dep == nil {
			continue
		}
		delete(dep.Dependencies, job.Jid)
		if len(dep.Dependencies) == 0 && dep.State == StateDepends {
			if err := e.store.ZRem(ctx, e.keys.Depends(dep.Queue), dep.Jid); err != nil {
				return err
			}
			if err := e.store.ZAdd(ctx, e.keys.Work(dep.Queue), workScore(dep.Priority, now), dep.Jid); err != nil {
				return err
			}
			dep.State = StateWaiting
		}
		if err := e.saveJob(ctx, dep); err != nil {
			return err
		}
	}
	return nil
}

// ---- fail ----

// Fail transitions a running job straight to failed, outside the lease-expiry path.
func (e *Engine) Fail(ctx context.Context, now float64, jid, worker, group, message string, data json.RawMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failLocked(ctx, now, jid, worker, group, message, data)
}

func (e *Engine) failLocked(ctx context.Context, now float64, jid, worker, group, message string, data json.RawMessage) error {
	e.log.Operation("fail", jid, "")
	job, err := e.mustLoadJob(ctx, jid)
	if err != nil {
		return err
	}
	if job.State != StateRunning {
		err := coreerrors.Newf(coreerrors.JobNotRunning, "job %s is not running", jid)
		e.log.Rejected("fail", jid, err)
		return err
	}
	if job.Worker != worker {
		err := coreerrors.Newf(coreerrors.WorkerMismatch, "job %s is leased to %s, not %s", jid, job.Worker, worker)
		e.log.Rejected("fail", jid, err)
		return err
	}

	if err := e.removeFromQueueIndices(ctx, job.Queue, jid); err != nil {
		return err
	}
	if err := e.removeFromWorkerSet(ctx, worker, jid); err != nil {
		return err
	}

	if len(data) > 0 {
		job.Data = data
	}
	job.State = StateFailed
	job.Worker = ""
	job.Expires = 0
	job.Failure = &Failure{Group: group, Message: message, When: now, Worker: worker}
	if last := job.lastHistory(); last != nil {
		last.Failed = now
	}
	if err := e.saveJob(ctx, job); err != nil {
		return err
	}
	if err := e.indexFailure(ctx, group, jid); err != nil {
		return err
	}
	if err := e.incrementFailedCounter(ctx, now, job.Queue); err != nil {
		return err
	}

	if tracked, _ := e.isTracked(ctx, jid); tracked {
		e.bus.Failed(ctx, jid)
	}
	return nil
}

// ---- retry ----

// Retry is the worker-initiated counterpart of lease-expiry reclamation: it always
// decrements remaining, same as an automatic reclaim would.
func (e *Engine) Retry(ctx context.Context, now float64, jid, queue, worker string, delay float64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log.Operation("retry", jid, queue)

	job, err := e.mustLoadJob(ctx, jid)
	if err != nil {
		return false, err
	}
	if job.State != StateRunning {
		err := coreerrors.Newf(coreerrors.JobNotRunning, "job %s is not running", jid)
		e.log.Rejected("retry", jid, err)
		return false, err
	}
	if job.Worker != worker {
		err := coreerrors.Newf(coreerrors.WorkerMismatch, "job %s is leased to %s, not %s", jid, job.Worker, worker)
		e.log.Rejected("retry", jid, err)
		return false, err
	}

	if err := e.store.ZRem(ctx, e.keys.Locks(queue), jid); err != nil {
		return false, err
	}
	if err := e.removeFromWorkerSet(ctx, worker, jid); err != nil {
		return false, err
	}
	e.bus.ToWorker(ctx, worker, "retry", jid)
	e.bus.Log(ctx, "retry", jid, queue, worker)

	job.Remaining--
	job.Worker = ""
	job.Expires = 0

	if job.Remaining < 0 {
		if err := e.saveJob(ctx, job); err != nil {
			return false, err
		}
		if err := e.failLocked(ctx, now, jid, "", "failed-retries-"+queue, "job exhausted retries through retry", nil); err != nil {
			return false, err
		}
		return false, nil
	}

	if delay > 0 {
		job.State = StateScheduled
		if err := e.store.ZAdd(ctx, e.keys.Scheduled(queue), now+delay, jid); err != nil {
			return false, err
		}
	} else {
		job.State = StateWaiting
		if err := e.store.ZAdd(ctx, e.keys.Work(queue), workScore(job.Priority, now), jid); err != nil {
			return false, err
		}
	}
	if err := e.saveJob(ctx, job); err != nil {
		return false, err
	}
	if tracked, _ := e.isTracked(ctx, jid); tracked {
		e.bus.Stalled(ctx, jid)
	}
	return true, nil
}

// ---- heartbeat ----

// Heartbeat extends a running job's lease.
func (e *Engine) Heartbeat(ctx context.Context, now float64, jid, worker string, data json.RawMessage) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log.Operation("heartbeat", jid, "")

	job, err := e.mustLoadJob(ctx, jid)
	if err != nil {
		return 0, err
	}
	if job.State != StateRunning {
		err := coreerrors.Newf(coreerrors.JobNotRunning, "job %s is not running", jid)
		e.log.Rejected("heartbeat", jid, err)
		return 0, err
	}
	if job.Worker != worker {
		err := coreerrors.Newf(coreerrors.WorkerMismatch, "job %s is leased to %s, not %s", jid, job.Worker, worker)
		e.log.Rejected("heartbeat", jid, err)
		return 0, err
	}

	expires := now + e.heartbeatInterval(job.Queue)
	job.Expires = expires
	if len(data) > 0 {
		job.Data = data
	}
	if err := e.saveJob(ctx, job); err != nil {
		return 0, err
	}
	if err := e.store.ZAdd(ctx, e.keys.Locks(job.Queue), expires, jid); err != nil {
		return 0, err
	}
	if err := e.store.ZAdd(ctx, e.keys.WorkerJobs(worker), expires, jid); err != nil {
		return 0, err
	}
	return expires, nil
}

// ---- cancel ----

// Cancel destructs one or more jobs outright. A job that is running, or that has a
// dependent which hasn't completed, cannot be cancelled.
func (e *Engine) Cancel(ctx context.Context, now float64, jids ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	jobs := make([]*Job, 0, len(jids))
	for _, jid := range jids {
		e.log.Operation("cancel", jid, "")
		job, err := e.mustLoadJob(ctx, jid)
		if err != nil {
			return err
		}
		if job.State == StateRunning {
			err := coreerrors.Newf(coreerrors.InvalidTransition, "job %s is running and cannot be cancelled", jid)
			e.log.Rejected("cancel", jid, err)
			return err
		}
		for d := range job.Dependents {
			dep, err := e.loadJob(ctx, d)
			if err != nil {
				return err
			}
			if dep != nil && dep.State != StateComplete {
				err := coreerrors.Newf(coreerrors.InvalidTransition, "job %s has incomplete dependents", jid)
				e.log.Rejected("cancel", jid, err)
				return err
			}
		}
		jobs = append(jobs, job)
	}

	for _, job := range jobs {
		if err := e.removeFromQueueIndices(ctx, job.Queue, job.Jid); err != nil {
			return err
		}
		if err := e.removeFromWorkerSet(ctx, job.Worker, job.Jid); err != nil {
			return err
		}
		for _, tag := range job.Tags {
			if err := e.unindexTag(ctx, tag, job.Jid); err != nil {
				return err
			}
		}
		if err := e.store.ZRem(ctx, e.keys.Tracked(), job.Jid); err != nil {
			return err
		}
		if err := e.store.ZRem(ctx, e.keys.Completed(), job.Jid); err != nil {
			return err
		}
		if job.Failure != nil {
			if err := e.unindexFailure(ctx, job.Failure.Group, job.Jid); err != nil {
				return err
			}
		}
		for dependency := range job.Dependencies {
			parent, err := e.loadJob(ctx, dependency)
			if err != nil {
				return err
			}
			if parent == nil {
				continue
			}
			delete(parent.Dependents, job.Jid)
			if err := e.saveJob(ctx, parent); err != nil {
				return err
			}
		}
		for d := range job.Dependents {
			dep, err := e.loadJob(ctx, d)
			if err != nil {
				return err
			}
			if dep == nil {
				continue
			}
			delete(dep.Dependencies, job.Jid)
			if len(dep.Dependencies) == 0 && dep.State == StateDepends {
				if err := e.store.ZRem(ctx, e.keys.Depends(dep.Queue), dep.Jid); err != nil {
					return err
				}
				if err := e.store.ZAdd(ctx, e.keys.Work(dep.Queue), workScore(dep.Priority, now), dep.Jid); err != nil {
					return err
				}
				dep.State = StateWaiting
			}
			if err := e.saveJob(ctx, dep); err != nil {
				return err
			}
		}
		if err := e.deleteJob(ctx, job.Jid); err != nil {
			return err
		}
		e.bus.Canceled(ctx, job.Jid)
	}
	return nil
}

// ---- pause / unpause ----

func (e *Engine) Pause(ctx context.Context, queues ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, q := range queues {
		if err := e.store.SAdd(ctx, e.keys.PausedQueues(), q); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) Unpause(ctx context.Context, queues ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, q := range queues {
		if err := e.store.SRem(ctx, e.keys.PausedQueues(), q); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) isPaused(ctx context.Context, queue string) (bool, error) {
	return e.store.SIsMember(ctx, e.keys.PausedQueues(), queue)
}

// ---- depends ----

// DependsOn adds prerequisite edges onto an existing job. The job must be in a state
// where its dependency set is still mutable.
func (e *Engine) DependsOn(ctx context.Context, now float64, jid string, on ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, err := e.mustLoadJob(ctx, jid)
	if err != nil {
		return err
	}
	if err := requireMutableDependencies(job); err != nil {
		return err
	}

	for _, d := range on {
		dep, err := e.loadJob(ctx, d)
		if err != nil {
			return err
		}
		if dep == nil || dep.State == StateComplete {
			continue
		}
		job.Dependencies[d] = true
		dep.Dependents[jid] = true
		if err := e.saveJob(ctx, dep); err != nil {
			return err
		}
	}

	if len(job.Dependencies) > 0 && job.State != StateDepends {
		if err := e.moveToDepends(ctx, now, job); err != nil {
			return err
		}
	}
	return e.saveJob(ctx, job)
}

// DependsOff removes prerequisite edges. If the dependency set becomes empty and the
// job was blocked on it, the job is released into work.
func (e *Engine) DependsOff(ctx context.Context, now float64, jid string, off ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, err := e.mustLoadJob(ctx, jid)
	if err != nil {
		return err
	}
	for _, d := range off {
		delete(job.Dependencies, d)
		dep, err := e.loadJob(ctx, d)
		if err != nil {
			return err
		}
		if dep != nil {
			delete(dep.Dependents, jid)
			if err := e.saveJob(ctx, dep); err != nil {
				return err
			}
		}
	}
	if len(job.Dependencies) == 0 && job.State == StateDepends {
		if err := e.store.ZRem(ctx, e.keys.Depends(job.Queue), jid); err != nil {
			return err
		}
		if err := e.store.ZAdd(ctx, e.keys.Work(job.Queue), workScore(job.Priority, now), jid); err != nil {
			return err
		}
		job.State = StateWaiting
	}
	return e.saveJob(ctx, job)
}

// DependsAll returns the full current dependency set of a job.
func (e *Engine) DependsAll(ctx context.Context, jid string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, err := e.mustLoadJob(ctx, jid)
	if err != nil {
		return nil, err
	}
	out := dependencySlice(job.Dependencies)
	sort.Strings(out)
	return out, nil
}

func requireMutableDependencies(job *Job) error {
	switch job.State {
	case StateDepends, StateWaiting, StateScheduled:
		return nil
	default:
		return coreerrors.Newf(coreerrors.InvalidTransition, "job %s in state %s cannot gain dependencies", job.Jid, job.State)
	}
}

func (e *Engine) moveToDepends(ctx context.Context, now float64, job *Job) error {
	switch job.State {
	case StateWaiting:
		if err := e.store.ZRem(ctx, e.keys.Work(job.Queue), job.Jid); err != nil {
			return err
		}
	case StateScheduled:
		if err := e.store.ZRem(ctx, e.keys.Scheduled(job.Queue), job.Jid); err != nil {
			return err
		}
	}
	job.State = StateDepends
	return e.store.ZAdd(ctx, e.keys.Depends(job.Queue), now, job.Jid)
}

// ---- reads ----

func (e *Engine) Get(ctx context.Context, jid string) (*Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadJob(ctx, jid)
}

func (e *Engine) Queues(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ZAll(ctx, e.keys.Queues())
}

func (e *Engine) Workers(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ZAll(ctx, e.keys.Workers())
}

// Jobs returns the jids held by a worker.
func (e *Engine) Jobs(ctx context.Context, worker string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ZAll(ctx, e.keys.WorkerJobs(worker))
}

// Length returns the number of waiting jobs in a queue's work index.
func (e *Engine) Length(ctx context.Context, queue string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ZCard(ctx, e.keys.Work(queue))
}

// ---- priority ----

// Priority updates a job's priority, repositioning it in the work index if it is
// currently waiting.
func (e *Engine) Priority(ctx context.Context, now float64, jid string, priority int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, err := e.mustLoadJob(ctx, jid)
	if err != nil {
		return err
	}
	job.Priority = priority
	if job.State == StateWaiting {
		if err := e.store.ZAdd(ctx, e.keys.Work(job.Queue), workScore(priority, now), jid); err != nil {
			return err
		}
	}
	return e.saveJob(ctx, job)
}

// ---- config ----

func (e *Engine) ConfigGet(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.cfg.Get(key)
	return v, ok
}

func (e *Engine) ConfigSet(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Set(key, value)
}

func (e *Engine) ConfigUnset(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Unset(key)
}

func (e *Engine) ConfigAll() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.All()
}

// ---- stats (read side) ----

// Stats returns the wait/run distribution snapshot for a queue on the day containing
// the given timestamp.
func (e *Engine) Stats(ctx context.Context, t float64, queue string) (*QueueStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bin := dayBin(t)
	wait, err := e.loadStats(ctx, e.keys.StatsWait(bin, queue))
	if err != nil {
		return nil, err
	}
	run, err := e.loadStats(ctx, e.keys.StatsRun(bin, queue))
	if err != nil {
		return nil, err
	}
	return &QueueStats{Wait: wait.snapshot(), Run: run.snapshot()}, nil
}
