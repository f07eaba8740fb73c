// Package events is the Event Bus: it publishes structured lifecycle events to named
// Redis pub/sub channels, a cross-instance fan-out mechanism aimed at a fixed channel
// set instead of a single catch-all topic.
package events

import (
	"context"

	"github.com/lordnynex/qless-core/internal/store"
)

// Channel names, normative per the storage substrate keyspace.
const (
	ChannelLog       = "log"
	ChannelPut       = "put"
	ChannelPopped    = "popped"
	ChannelCompleted = "completed"
	ChannelFailed    = "failed"
	ChannelStalled   = "stalled"
	ChannelCanceled  = "canceled"
	ChannelTrack     = "track"
	ChannelUntrack   = "untrack"
)

// Bus publishes job lifecycle events. Every method is best-effort: a publish failure
// never aborts the core operation that triggered it, per the error handling design's
// recovery semantics.
type Bus struct {
	store *store.Store
}

// New creates an event bus over the given storage abstraction.
func New(s *store.Store) *Bus {
	return &Bus{store: s}
}

// LogEvent is the payload published to the "log" channel and echoed to a worker's own
// channel on lease-revoking events ("lock lost", "put" revocation).
type LogEvent struct {
	Event string `json:"event"`
	Jid   string `json:"jid,omitempty"`
	Queue string `json:"queue,omitempty"`
	Extra string `json:"extra,omitempty"`
}

// Log publishes an informational event to the "log" channel.
func (b *Bus) Log(ctx context.Context, event, jid, queue, extra string) {
	b.store.Publish(ctx, ChannelLog, LogEvent{Event: event, Jid: jid, Queue: queue, Extra: extra})
}

// jidEvent is the payload published for most lifecycle transitions: just the jid.
type jidEvent struct {
	Jid string `json:"jid"`
}

// Put publishes a "put" event to the global "put" channel. It does not notify a
// worker whose lease the put revokes; that goes through ToWorker.
func (b *Bus) Put(ctx context.Context, jid string) {
	b.store.Publish(ctx, ChannelPut, jidEvent{Jid: jid})
}

// ToWorker publishes to a worker's dedicated channel — used for lease revocation
// ("put" stealing a job back) and lock-loss notification.
func (b *Bus) ToWorker(ctx context.Context, worker, event, jid string) {
	if worker == "" {
		return
	}
	b.store.Publish(ctx, worker, LogEvent{Event: event, Jid: jid})
}

// Popped publishes a "popped" event for a tracked job.
func (b *Bus) Popped(ctx context.Context, jid string) {
	b.store.Publish(ctx, ChannelPopped, jidEvent{Jid: jid})
}

// Completed publishes a "completed" event for a tracked job.
func (b *Bus) Completed(ctx context.Context, jid string) {
	b.store.Publish(ctx, ChannelCompleted, jidEvent{Jid: jid})
}

// Failed publishes a "failed" event for a tracked job.
func (b *Bus) Failed(ctx context.Context, jid string) {
	b.store.Publish(ctx, ChannelFailed, jidEvent{Jid: jid})
}

// Stalled publishes a "stalled" event for a tracked job whose lease expired but which
// still has retries remaining.
func (b *Bus) Stalled(ctx context.Context, jid string) {
	b.store.Publish(ctx, ChannelStalled, jidEvent{Jid: jid})
}

// Canceled publishes a "canceled" event.
func (b *Bus) Canceled(ctx context.Context, jid string) {
	b.store.Publish(ctx, ChannelCanceled, jidEvent{Jid: jid})
}

// Tracked publishes a "track"/"untrack" event.
func (b *Bus) Tracked(ctx context.Context, jid string, tracking bool) {
	ch := ChannelUntrack
	if tracking {
		ch = ChannelTrack
	}
	b.store.Publish(ctx, ch, jidEvent{Jid: jid})
}
