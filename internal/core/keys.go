package core

import "fmt"

// keys builds the storage substrate keyspace normatively laid out in the external
// interfaces section: hashes for records, sorted sets for the five queue indices
// and the global indices, sets for memberships, lists for failure groups.
type keys struct {
	prefix string
}

func newKeys(prefix string) *keys {
	if prefix == "" {
		prefix = "ql"
	}
	return &keys{prefix: prefix}
}

// Job records.
func (k *keys) Job(jid string) string       { return fmt.Sprintf("%s:j:%s", k.prefix, jid) }
func (k *keys) Recurring(jid string) string { return fmt.Sprintf("%s:r:%s", k.prefix, jid) }

func (k *keys) Dependents(jid string) string   { return fmt.Sprintf("%s:j:%s-dependents", k.prefix, jid) }
func (k *keys) Dependencies(jid string) string { return fmt.Sprintf("%s:j:%s-dependencies", k.prefix, jid) }

// Per-queue sorted-set indices.
func (k *keys) Work(queue string) string      { return fmt.Sprintf("%s:q:%s-work", k.prefix, queue) }
func (k *keys) Locks(queue string) string     { return fmt.Sprintf("%s:q:%s-locks", k.prefix, queue) }
func (k *keys) Scheduled(queue string) string { return fmt.Sprintf("%s:q:%s-scheduled", k.prefix, queue) }
func (k *keys) Recur(queue string) string     { return fmt.Sprintf("%s:q:%s-recur", k.prefix, queue) }
func (k *keys) Depends(queue string) string   { return fmt.Sprintf("%s:q:%s-depends", k.prefix, queue) }

// Global indices.
func (k *keys) Queues() string    { return fmt.Sprintf("%s:queues", k.prefix) }
func (k *keys) Tracked() string   { return fmt.Sprintf("%s:tracked", k.prefix) }
func (k *keys) Completed() string { return fmt.Sprintf("%s:completed", k.prefix) }
func (k *keys) Workers() string   { return fmt.Sprintf("%s:workers", k.prefix) }
func (k *keys) Tags() string      { return fmt.Sprintf("%s:tags", k.prefix) }

func (k *keys) WorkerJobs(worker string) string { return fmt.Sprintf("%s:w:%s:jobs", k.prefix, worker) }
func (k *keys) Tag(tag string) string           { return fmt.Sprintf("%s:t:%s", k.prefix, tag) }

// Failure registry.
func (k *keys) Failures() string                { return fmt.Sprintf("%s:failures", k.prefix) }
func (k *keys) FailedGroup(group string) string { return fmt.Sprintf("%s:f:%s", k.prefix, group) }

// Paused queue set.
func (k *keys) PausedQueues() string { return fmt.Sprintf("%s:paused_queues", k.prefix) }

// Configuration hash.
func (k *keys) Config() string { return fmt.Sprintf("%s:config", k.prefix) }

// Statistics, keyed by day-bin: floor(t/86400)*86400.
func (k *keys) StatsWait(bin int64, queue string) string {
	return fmt.Sprintf("%s:s:wait:%d:%s", k.prefix, bin, queue)
}
func (k *keys) StatsRun(bin int64, queue string) string {
	return fmt.Sprintf("%s:s:run:%d:%s", k.prefix, bin, queue)
}
func (k *keys) StatsCounters(bin int64, queue string) string {
	return fmt.Sprintf("%s:s:stats:%d:%s", k.prefix, bin, queue)
}

// dayBin returns the midnight timestamp of the day containing t.
func dayBin(t float64) int64 {
	const day = 86400
	return int64(t/day) * day
}
