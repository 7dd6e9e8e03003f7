package metrics

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

// Latency aggregates request durations of a run, overall and per operation.
// It is safe for concurrent use by parallel workers.
type Latency struct {
	mu         sync.Mutex
	overall    *series
	operations map[string]*series
}

type series struct {
	histogram *hdrhistogram.Histogram
	errors    int64
}

func newSeries() *series {
	// 1us to 60s range, 3 significant digits
	return &series{histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, 3)}
}

func (s *series) record(d time.Duration, failed bool) {
	us := d.Microseconds()
	if us < minLatencyUs {
		us = minLatencyUs
	}
	if us > maxLatencyUs {
		us = maxLatencyUs
	}
	_ = s.histogram.RecordValue(us)
	if failed {
		s.errors++
	}
}

func (s *series) stats() Stats {
	h := s.histogram
	if h.TotalCount() == 0 {
		return Stats{Errors: s.errors}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return Stats{
		Count:  h.TotalCount(),
		Errors: s.errors,
		Min:    us(h.Min()),
		Max:    us(h.Max()),
		Mean:   time.Duration(h.Mean() * float64(time.Microsecond)),
		P50:    us(h.ValueAtQuantile(50)),
		P95:    us(h.ValueAtQuantile(95)),
		P99:    us(h.ValueAtQuantile(99)),
	}
}

func NewLatency() *Latency {
	return &Latency{
		overall:    newSeries(),
		operations: make(map[string]*series),
	}
}

// Record adds one request. operation is usually "METHOD /path"; failed marks
// requests that ended without a usable response.
func (l *Latency) Record(operation string, d time.Duration, failed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.overall.record(d, failed)
	if operation == "" {
		return
	}
	op, ok := l.operations[operation]
	if !ok {
		op = newSeries()
		l.operations[operation] = op
	}
	op.record(d, failed)
}

// Stats summarises one latency series.
type Stats struct {
	Count  int64
	Errors int64
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
}

func (s Stats) MarshalJSON() ([]byte, error) {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return json.Marshal(struct {
		Count  int64   `json:"count"`
		Errors int64   `json:"errors"`
		MinMs  float64 `json:"min_ms"`
		MaxMs  float64 `json:"max_ms"`
		MeanMs float64 `json:"mean_ms"`
		P50Ms  float64 `json:"p50_ms"`
		P95Ms  float64 `json:"p95_ms"`
		P99Ms  float64 `json:"p99_ms"`
	}{s.Count, s.Errors, ms(s.Min), ms(s.Max), ms(s.Mean), ms(s.P50), ms(s.P95), ms(s.P99)})
}

// OperationStats is the summary of a single operation.
type OperationStats struct {
	Operation string `json:"operation"`
	Stats     Stats  `json:"stats"`
}

// Summary is the latency report attached to a scenario result.
type Summary struct {
	Overall    Stats            `json:"overall"`
	Operations []OperationStats `json:"operations,omitempty"`
}

// Summary returns overall stats and per-operation stats sorted by name.
func (l *Latency) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	sum := Summary{Overall: l.overall.stats()}
	names := make([]string, 0, len(l.operations))
	for name := range l.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sum.Operations = append(sum.Operations, OperationStats{Operation: name, Stats: l.operations[name].stats()})
	}
	return sum
}
