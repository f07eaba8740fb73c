// Command Facade (CF): the thin dispatch layer mapping a (command name, now,
// positional args) tuple — the shape a request transport would receive off the wire —
// to a typed Engine call. The transport itself (the codec, the network listener) is an
// external collaborator and lives outside this package.
package core

import (
	"context"
	"encoding/json"
	"math"
	"strconv"

	coreerrors "github.com/lordnynex/qless-core/pkg/errors"
)

// commandNames is the exact command registry. Anything else is UnknownCommand.
var commandNames = map[string]bool{
	"get": true, "config.get": true, "config.set": true, "config.unset": true,
	"queues": true, "complete": true, "failed": true, "fail": true, "jobs": true,
	"retry": true, "depends": true, "heartbeat": true, "workers": true, "track": true,
	"tag": true, "stats": true, "priority": true, "peek": true, "pop": true,
	"pause": true, "unpause": true, "cancel": true, "put": true, "unfail": true,
	"recur": true, "unrecur": true, "recur.get": true, "recur.update": true,
	"recur.tag": true, "recur.untag": true, "length": true,
}

// Command dispatches one command-facade invocation. now must be supplied by the
// caller and is never read from the host clock; a non-numeric now should be rejected
// by the transport before it reaches here, but Command re-validates since it is the
// last line of defense documented by the error handling design.
func (e *Engine) Command(ctx context.Context, name string, now float64, args ...string) (string, error) {
	if !commandNames[name] {
		return "", coreerrors.Newf(coreerrors.UnknownCommand, "unknown command %q", name)
	}
	if math.IsNaN(now) || math.IsInf(now, 0) {
		return "", coreerrors.Newf(coreerrors.InvalidNow, "now must be a finite number, got %v", now)
	}

	switch name {
	case "get":
		return e.cmdGet(ctx, args)
	case "config.get":
		return e.cmdConfigGet(args)
	case "config.set":
		return e.cmdConfigSet(args)
	case "config.unset":
		return e.cmdConfigUnset(args)
	case "queues":
		return e.cmdQueues(ctx)
	case "complete":
		return e.cmdComplete(ctx, now, args)
	case "failed":
		return e.cmdFailed(ctx, args)
	case "fail":
		return e.cmdFail(ctx, now, args)
	case "jobs":
		return e.cmdJobs(ctx, args)
	case "retry":
		return e.cmdRetry(ctx, now, args)
	case "depends":
		return e.cmdDepends(ctx, now, args)
	case "heartbeat":
		return e.cmdHeartbeat(ctx, now, args)
	case "workers":
		return e.cmdWorkers(ctx)
	case "track":
		return e.cmdTrack(ctx, now, args)
	case "tag":
		return e.cmdTag(ctx, now, args)
	case "stats":
		return e.cmdStats(ctx, now, args)
	case "priority":
		return e.cmdPriority(ctx, now, args)
	case "peek":
		return e.cmdPeek(ctx, now, args)
	case "pop":
		return e.cmdPop(ctx, now, args)
	case "pause":
		return "", e.Pause(ctx, args...)
	case "unpause":
		return "", e.Unpause(ctx, args...)
	case "cancel":
		return "", e.Cancel(ctx, now, args...)
	case "put":
		return e.cmdPut(ctx, now, args)
	case "unfail":
		return e.cmdUnfail(ctx, now, args)
	case "recur":
		return e.cmdRecur(ctx, now, args)
	case "unrecur":
		return "", e.Unrecur(ctx, arg(args, 0))
	case "recur.get":
		return e.cmdRecurGet(ctx, args)
	case "recur.update":
		return e.cmdRecurUpdate(ctx, args)
	case "recur.tag":
		return "", e.RecurTag(ctx, arg(args, 0), restArgs(args, 1)...)
	case "recur.untag":
		return "", e.RecurUntag(ctx, arg(args, 0), restArgs(args, 1)...)
	case "length":
		return e.cmdLength(ctx, args)
	}
	return "", coreerrors.Newf(coreerrors.UnknownCommand, "unimplemented command %q", name)
}

func arg(args []string, i int) string {
	if i < 0 || i >= len(args) {
		return ""
	}
	return args[i]
}

func argFloat(args []string, i int) float64 {
	f, _ := strconv.ParseFloat(arg(args, i), 64)
	return f
}

func argInt(args []string, i int) int {
	n, _ := strconv.Atoi(arg(args, i))
	return n
}

func argInt64(args []string, i int) int64 {
	n, _ := strconv.ParseInt(arg(args, i), 10, 64)
	return n
}

// restArgs returns args[from:], or an empty slice if args is shorter than from.
func restArgs(args []string, from int) []string {
	if from >= len(args) {
		return nil
	}
	return args[from:]
}

func toJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// get <jid>
func (e *Engine) cmdGet(ctx context.Context, args []string) (string, error) {
	job, err := e.Get(ctx, arg(args, 0))
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", coreerrors.Newf(coreerrors.JobNotFound, "job %s does not exist", arg(args, 0))
	}
	return toJSON(job)
}

func (e *Engine) cmdConfigGet(args []string) (string, error) {
	if arg(args, 0) == "" {
		return toJSON(e.ConfigAll())
	}
	v, ok := e.ConfigGet(arg(args, 0))
	if !ok {
		return "", nil
	}
	return v, nil
}

func (e *Engine) cmdConfigSet(args []string) (string, error) {
	e.ConfigSet(arg(args, 0), arg(args, 1))
	return "", nil
}

func (e *Engine) cmdConfigUnset(args []string) (string, error) {
	e.ConfigUnset(arg(args, 0))
	return "", nil
}

func (e *Engine) cmdQueues(ctx context.Context) (string, error) {
	qs, err := e.Queues(ctx)
	if err != nil {
		return "", err
	}
	return toJSON(qs)
}

// complete <jid> <worker> <queue> <data> [next] [delay] [depends-json-array]
func (e *Engine) cmdComplete(ctx context.Context, now float64, args []string) (string, error) {
	opts := CompleteOptions{}
	if len(args) > 4 {
		opts.Next = arg(args, 4)
	}
	if len(args) > 5 {
		opts.Delay = argFloat(args, 5)
	}
	if len(args) > 6 && args[6] != "" {
		_ = json.Unmarshal([]byte(args[6]), &opts.Depends)
	}
	err := e.Complete(ctx, now, arg(args, 0), arg(args, 1), arg(args, 2), json.RawMessage(arg(args, 3)), opts)
	return "", err
}

// failed [group] — with a group, returns its whole jid list; there is no paging.
func (e *Engine) cmdFailed(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		groups, err := e.FailureGroups(ctx)
		if err != nil {
			return "", err
		}
		return toJSON(groups)
	}
	jids, err := e.FailedJids(ctx, args[0])
	if err != nil {
		return "", err
	}
	return toJSON(jids)
}

// fail <jid> <worker> <group> <message> [data]
func (e *Engine) cmdFail(ctx context.Context, now float64, args []string) (string, error) {
	var data json.RawMessage
	if len(args) > 4 {
		data = json.RawMessage(args[4])
	}
	err := e.Fail(ctx, now, arg(args, 0), arg(args, 1), arg(args, 2), arg(args, 3), data)
	return "", err
}

// jobs <worker>
func (e *Engine) cmdJobs(ctx context.Context, args []string) (string, error) {
	jids, err := e.Jobs(ctx, arg(args, 0))
	if err != nil {
		return "", err
	}
	return toJSON(jids)
}

// retry <jid> <queue> <worker> [delay]
func (e *Engine) cmdRetry(ctx context.Context, now float64, args []string) (string, error) {
	delay := 0.0
	if len(args) > 3 {
		delay = argFloat(args, 3)
	}
	ok, err := e.Retry(ctx, now, arg(args, 0), arg(args, 1), arg(args, 2), delay)
	if err != nil {
		return "", err
	}
	return toJSON(ok)
}

// depends <jid> <on|off|all> [jid...]
func (e *Engine) cmdDepends(ctx context.Context, now float64, args []string) (string, error) {
	jid := arg(args, 0)
	mode := arg(args, 1)
	rest := []string{}
	if len(args) > 2 {
		rest = args[2:]
	}
	switch mode {
	case "on":
		return "", e.DependsOn(ctx, now, jid, rest...)
	case "off":
		return "", e.DependsOff(ctx, now, jid, rest...)
	case "all":
		deps, err := e.DependsAll(ctx, jid)
		if err != nil {
			return "", err
		}
		return toJSON(deps)
	default:
		return "", coreerrors.Newf(coreerrors.InvalidArguments, "unknown depends mode %q", mode)
	}
}

// heartbeat <jid> <worker> [data]
func (e *Engine) cmdHeartbeat(ctx context.Context, now float64, args []string) (string, error) {
	var data json.RawMessage
	if len(args) > 2 {
		data = json.RawMessage(args[2])
	}
	expires, err := e.Heartbeat(ctx, now, arg(args, 0), arg(args, 1), data)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(expires, 'f', -1, 64), nil
}

func (e *Engine) cmdWorkers(ctx context.Context) (string, error) {
	workers, err := e.Workers(ctx)
	if err != nil {
		return "", err
	}
	return toJSON(workers)
}

// track <track|untrack> <jid>
func (e *Engine) cmdTrack(ctx context.Context, now float64, args []string) (string, error) {
	mode := arg(args, 0)
	jid := arg(args, 1)
	switch mode {
	case "track":
		return "", e.Track(ctx, now, jid)
	case "untrack":
		return "", e.Untrack(ctx, jid)
	default:
		jids, err := e.TrackedJids(ctx)
		if err != nil {
			return "", err
		}
		return toJSON(jids)
	}
}

// tag <add|remove|get|top> <jid-or-tag> [tag...]
func (e *Engine) cmdTag(ctx context.Context, now float64, args []string) (string, error) {
	mode := arg(args, 0)
	switch mode {
	case "add":
		return "", e.TagAdd(ctx, now, arg(args, 1), restArgs(args, 2)...)
	case "remove":
		return "", e.TagRemove(ctx, arg(args, 1), restArgs(args, 2)...)
	case "get":
		jids, err := e.TagGet(ctx, arg(args, 1))
		if err != nil {
			return "", err
		}
		return toJSON(jids)
	case "top":
		count := int64(10)
		if len(args) > 1 {
			count = argInt64(args, 1)
		}
		top, err := e.TagTop(ctx, count)
		if err != nil {
			return "", err
		}
		return toJSON(top)
	default:
		return "", coreerrors.Newf(coreerrors.InvalidArguments, "unknown tag mode %q", mode)
	}
}

// stats <queue> <date>
func (e *Engine) cmdStats(ctx context.Context, now float64, args []string) (string, error) {
	t := now
	if len(args) > 1 && args[1] != "" {
		t = argFloat(args, 1)
	}
	stats, err := e.Stats(ctx, t, arg(args, 0))
	if err != nil {
		return "", err
	}
	return toJSON(stats)
}

// priority <jid> <priority>
func (e *Engine) cmdPriority(ctx context.Context, now float64, args []string) (string, error) {
	return "", e.Priority(ctx, now, arg(args, 0), argInt(args, 1))
}

// peek <queue> <count>
func (e *Engine) cmdPeek(ctx context.Context, now float64, args []string) (string, error) {
	count := int64(1)
	if len(args) > 1 {
		count = argInt64(args, 1)
	}
	jobs, err := e.Peek(ctx, now, arg(args, 0), count)
	if err != nil {
		return "", err
	}
	return toJSON(jobs)
}

// pop <queue> <worker> <count>
func (e *Engine) cmdPop(ctx context.Context, now float64, args []string) (string, error) {
	count := int64(1)
	if len(args) > 2 {
		count = argInt64(args, 2)
	}
	jobs, err := e.Pop(ctx, now, arg(args, 0), arg(args, 1), count)
	if err != nil {
		return "", err
	}
	return toJSON(jobs)
}

// put <jid> <klass> <data> <queue> <delay> [priority] [tags-json] [retries] [depends-json]
func (e *Engine) cmdPut(ctx context.Context, now float64, args []string) (string, error) {
	opts := PutOptions{}
	if len(args) > 5 && args[5] != "" {
		p := argInt(args, 5)
		opts.HasPriority, opts.Priority = true, &p
	}
	if len(args) > 6 && args[6] != "" {
		var tags []string
		if err := json.Unmarshal([]byte(args[6]), &tags); err != nil {
			return "", coreerrors.Wrap(coreerrors.InvalidArguments, "tags must be a JSON array", err)
		}
		opts.HasTags, opts.Tags = true, tags
	}
	if len(args) > 7 && args[7] != "" {
		r := argInt(args, 7)
		opts.HasRetries, opts.Retries = true, &r
	}
	if len(args) > 8 && args[8] != "" {
		var deps []string
		if err := json.Unmarshal([]byte(args[8]), &deps); err != nil {
			return "", coreerrors.Wrap(coreerrors.InvalidArguments, "depends must be a JSON array", err)
		}
		opts.HasDepends, opts.Depends = true, deps
	}
	return e.Put(ctx, now, arg(args, 0), arg(args, 1), json.RawMessage(arg(args, 2)), arg(args, 3), argFloat(args, 4), opts)
}

// unfail <group> <queue> [count]
func (e *Engine) cmdUnfail(ctx context.Context, now float64, args []string) (string, error) {
	count := int64(25)
	if len(args) > 2 {
		count = argInt64(args, 2)
	}
	n, err := e.Unfail(ctx, now, arg(args, 0), arg(args, 1), count)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

// recur <jid> <klass> <data> <queue> <spec> <interval> <offset> [priority] [tags-json] [retries]
func (e *Engine) cmdRecur(ctx context.Context, now float64, args []string) (string, error) {
	opts := RecurOptions{}
	if len(args) > 7 {
		opts.Priority = argInt(args, 7)
	}
	if len(args) > 8 && args[8] != "" {
		_ = json.Unmarshal([]byte(args[8]), &opts.Tags)
	}
	if len(args) > 9 && args[9] != "" {
		r := argInt(args, 9)
		opts.HasRetries, opts.Retries = true, &r
	}
	err := e.Recur(ctx, now, arg(args, 0), arg(args, 1), json.RawMessage(arg(args, 2)), arg(args, 3), arg(args, 4), argFloat(args, 5), argFloat(args, 6), opts)
	return "", err
}

func (e *Engine) cmdRecurGet(ctx context.Context, args []string) (string, error) {
	rec, err := e.RecurGet(ctx, arg(args, 0))
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", coreerrors.Newf(coreerrors.JobNotFound, "recurring job %s does not exist", arg(args, 0))
	}
	return toJSON(rec)
}

// recur.update <jid> [priority] [retries] [interval] [data]
func (e *Engine) cmdRecurUpdate(ctx context.Context, args []string) (string, error) {
	upd := RecurUpdate{}
	if len(args) > 1 && args[1] != "" {
		p := argInt(args, 1)
		upd.HasPriority, upd.Priority = true, &p
	}
	if len(args) > 2 && args[2] != "" {
		r := argInt(args, 2)
		upd.HasRetries, upd.Retries = true, &r
	}
	if len(args) > 3 && args[3] != "" {
		i := argFloat(args, 3)
		upd.HasInterval, upd.Interval = true, &i
	}
	if len(args) > 4 && args[4] != "" {
		upd.HasData, upd.Data = true, json.RawMessage(args[4])
	}
	return "", e.RecurUpdate(ctx, arg(args, 0), upd)
}

// length <queue>
func (e *Engine) cmdLength(ctx context.Context, args []string) (string, error) {
	n, err := e.Length(ctx, arg(args, 0))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}
