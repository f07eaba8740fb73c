// Statistics (ST). Tracks, per queue and per day, a running mean/variance of wait
// time (put -> popped) and run time (popped -> completed; failed runs are not sampled) via Welford's
// online algorithm, plus a multi-resolution histogram of the same durations.
package core

import (
	"encoding/json"
	"math"
)

// Histogram buckets saturate past the ranges below: anything past 6 days is folded
// into the "d6" bucket rather than growing the bucket set unboundedly.
const (
	statsSecondBuckets = 60
	statsMinuteBuckets = 59
	statsHourBuckets   = 23
	statsDayBuckets    = 6
)

// Distribution is a Welford accumulator plus a bucketed histogram of samples.
type Distribution struct {
	Count     int64            `json:"count"`
	Mean      float64          `json:"mean"`
	m2        float64          // sum of squared deviations from the mean; serialized as the wire field "m2"
	Histogram map[string]int64 `json:"histogram"`
}

type distributionWire struct {
	Count     int64            `json:"count"`
	Mean      float64          `json:"mean"`
	M2        float64          `json:"m2"`
	Histogram map[string]int64 `json:"histogram"`
}

func newDistribution() *Distribution {
	return &Distribution{Histogram: map[string]int64{}}
}

// Variance returns the sample variance (vk/(total-1)) of the samples seen so far,
// or 0 with fewer than two samples.
func (d *Distribution) Variance() float64 {
	if d.Count < 2 {
		return 0
	}
	return d.m2 / float64(d.Count-1)
}

// StdDev returns the sample standard deviation.
func (d *Distribution) StdDev() float64 {
	return math.Sqrt(d.Variance())
}

// record folds one new sample (a duration in seconds) into the running mean,
// variance, and histogram bucket.
func (d *Distribution) record(sample float64) {
	d.Count++
	delta := sample - d.Mean
	d.Mean += delta / float64(d.Count)
	delta2 := sample - d.Mean
	d.m2 += delta * delta2

	d.Histogram[bucketFor(sample)]++
}

// bucketFor maps a duration in seconds to one of the multi-resolution histogram
// buckets: s0-s59 for sub-minute durations, m1-m59 for sub-hour, h1-h23 for
// sub-day, and d1-d6 for longer durations, with d6 absorbing everything beyond
// six days.
func bucketFor(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	switch {
	case seconds < 60:
		return bucketName("s", int(seconds), statsSecondBuckets-1)
	case seconds < 3600:
		return bucketName("m", int(seconds/60), statsMinuteBuckets)
	case seconds < 86400:
		return bucketName("h", int(seconds/3600), statsHourBuckets)
	default:
		return bucketName("d", int(seconds/86400), statsDayBuckets)
	}
}

func bucketName(prefix string, n, max int) string {
	if n > max {
		n = max
	}
	return prefix + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (d *Distribution) marshal() (string, error) {
	w := distributionWire{Count: d.Count, Mean: d.Mean, M2: d.m2, Histogram: d.Histogram}
	b, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalDistribution(raw string) (*Distribution, error) {
	d := newDistribution()
	if raw == "" {
		return d, nil
	}
	var w distributionWire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, err
	}
	d.Count = w.Count
	d.Mean = w.Mean
	d.m2 = w.M2
	if w.Histogram != nil {
		d.Histogram = w.Histogram
	}
	return d, nil
}

// QueueStats is the public statistics snapshot returned for a (queue, date) pair.
type QueueStats struct {
	Wait QueueStatsBucket `json:"wait"`
	Run  QueueStatsBucket `json:"run"`
}

// QueueStatsBucket is one distribution's public shape: count, mean, stddev, and the
// raw histogram for callers that want finer resolution than mean/stddev gives.
type QueueStatsBucket struct {
	Count     int64            `json:"count"`
	Mean      float64          `json:"mean"`
	StdDev    float64          `json:"stddev"`
	Histogram map[string]int64 `json:"histogram"`
}

func (d *Distribution) snapshot() QueueStatsBucket {
	hist := make(map[string]int64, len(d.Histogram))
	for k, v := range d.Histogram {
		hist[k] = v
	}
	return QueueStatsBucket{Count: d.Count, Mean: d.Mean, StdDev: d.StdDev(), Histogram: hist}
}
