// Package core is the server-resident execution core of the job queue: the job record
// and state machine (JR), queue dispatch (QE), recurring scheduling (RS), dependency
// resolution (DR), failure registry (FR), statistics (ST), and the indices and command
// facade (IX/CF) that sit on top of them. Every exported Engine method is one
// atomic operation, per the concurrency model in SPEC_FULL.md §5.
package core

import (
	"encoding/json"
	"strconv"

	coreerrors "github.com/lordnynex/qless-core/pkg/errors"
)

// State is a job's position in the lifecycle state machine.
type State string

const (
	StateWaiting   State = "waiting"
	StateScheduled State = "scheduled"
	StateDepends   State = "depends"
	StateRunning   State = "running"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
)

// DefaultRetries is the retry policy applied when put does not specify one.
const DefaultRetries = 5

// HistoryEntry is one lifecycle record in a job's history: the queue it was put on,
// when, and (once known) when it was popped, by whom, and how it ended.
type HistoryEntry struct {
	Queue     string  `json:"q"`
	Put       float64 `json:"put"`
	Popped    float64 `json:"popped,omitempty"`
	Worker    string  `json:"worker,omitempty"`
	Failed    float64 `json:"failed,omitempty"`
	Completed float64 `json:"completed,omitempty"`
}

// Failure is the last-failure record kept while a job is in the failed state.
type Failure struct {
	Group   string  `json:"group"`
	Message string  `json:"message"`
	When    float64 `json:"when"`
	Worker  string  `json:"worker"`
}

// Job is the per-job entity (JR). Data is kept as a json.RawMessage: the core treats
// it as an opaque payload and never inspects it, per the JSON boundary rules.
type Job struct {
	Jid          string          `json:"jid"`
	Klass        string          `json:"klass"`
	Data         json.RawMessage `json:"data"`
	Priority     int             `json:"priority"`
	Tags         []string        `json:"tags"`
	State        State           `json:"state"`
	Queue        string          `json:"queue"`
	Worker       string          `json:"worker"`
	Expires      float64         `json:"expires"`
	Retries      int             `json:"retries"`
	Remaining    int             `json:"remaining"`
	History      []HistoryEntry  `json:"history"`
	Failure      *Failure        `json:"failure,omitempty"`
	Dependencies map[string]bool `json:"dependencies"`
	Dependents   map[string]bool `json:"dependents"`
}

// workScore is the priority/FIFO tie-break score used by the work index: higher
// priority sorts to the tail (popped first), and within a priority, an earlier "t"
// sorts first. The divisor of 1e10 must match exactly across any reimplementation —
// it is what keeps priority differences from collapsing across a realistic ~317-year
// timestamp range.
func workScore(priority int, t float64) float64 {
	return float64(priority) - t/1e10
}

// toFields serializes a Job into the flat string-keyed hash representation stored at
// keys.Job(jid).
func (j *Job) toFields() (map[string]interface{}, error) {
	tags, err := json.Marshal(j.Tags)
	if err != nil {
		return nil, err
	}
	history, err := json.Marshal(j.History)
	if err != nil {
		return nil, err
	}
	deps, err := json.Marshal(j.Dependencies)
	if err != nil {
		return nil, err
	}
	dependents, err := json.Marshal(j.Dependents)
	if err != nil {
		return nil, err
	}
	failure := "null"
	if j.Failure != nil {
		b, err := json.Marshal(j.Failure)
		if err != nil {
			return nil, err
		}
		failure = string(b)
	}
	data := j.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	return map[string]interface{}{
		"jid":          j.Jid,
		"klass":        j.Klass,
		"data":         string(data),
		"priority":     strconv.Itoa(j.Priority),
		"tags":         string(tags),
		"state":        string(j.State),
		"queue":        j.Queue,
		"worker":       j.Worker,
		"expires":      strconv.FormatFloat(j.Expires, 'f', -1, 64),
		"retries":      strconv.Itoa(j.Retries),
		"remaining":    strconv.Itoa(j.Remaining),
		"history":      string(history),
		"failure":      failure,
		"dependencies": string(deps),
		"dependents":   string(dependents),
	}, nil
}

// jobFromFields deserializes a Job from the hash representation. Returns
// (nil, false, nil) if the hash is empty (the job does not exist).
func jobFromFields(jid string, fields map[string]string) (*Job, bool, error) {
	if len(fields) == 0 {
		return nil, false, nil
	}

	j := &Job{Jid: jid}
	j.Klass = fields["klass"]
	j.Queue = fields["queue"]
	j.Worker = fields["worker"]
	j.State = State(fields["state"])
	j.Data = json.RawMessage(fields["data"])

	if v := fields["priority"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, false, coreerrors.Wrap(coreerrors.InvalidArguments, "corrupt priority field", err)
		}
		j.Priority = n
	}
	if v := fields["retries"]; v != "" {
		n, _ := strconv.Atoi(v)
		j.Retries = n
	}
	if v := fields["remaining"]; v != "" {
		n, _ := strconv.Atoi(v)
		j.Remaining = n
	}
	if v := fields["expires"]; v != "" {
		f, _ := strconv.ParseFloat(v, 64)
		j.Expires = f
	}
	if v := fields["tags"]; v != "" {
		if err := json.Unmarshal([]byte(v), &j.Tags); err != nil {
			return nil, false, coreerrors.Wrap(coreerrors.InvalidArguments, "corrupt tags field", err)
		}
	}
	if v := fields["history"]; v != "" {
		if err := json.Unmarshal([]byte(v), &j.History); err != nil {
			return nil, false, coreerrors.Wrap(coreerrors.InvalidArguments, "corrupt history field", err)
		}
	}
	if v := fields["dependencies"]; v != "" {
		_ = json.Unmarshal([]byte(v), &j.Dependencies)
	}
	if v := fields["dependents"]; v != "" {
		_ = json.Unmarshal([]byte(v), &j.Dependents)
	}
	if v := fields["failure"]; v != "" && v != "null" {
		var f Failure
		if err := json.Unmarshal([]byte(v), &f); err != nil {
			return nil, false, coreerrors.Wrap(coreerrors.InvalidArguments, "corrupt failure field", err)
		}
		j.Failure = &f
	}
	if j.Dependencies == nil {
		j.Dependencies = map[string]bool{}
	}
	if j.Dependents == nil {
		j.Dependents = map[string]bool{}
	}
	return j, true, nil
}

func (j *Job) lastHistory() *HistoryEntry {
	if len(j.History) == 0 {
		return nil
	}
	return &j.History[len(j.History)-1]
}

func dependencySlice(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
