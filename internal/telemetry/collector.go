// Package telemetry collects query-level search telemetry: per-mode counts,
// zero-result tracking and latency percentiles over a bounded window. The
// collector is process-local and resets on restart.
package telemetry

import (
	"sort"
	"sync"
	"time"
)

// QueryKind labels the routing mode a search took.
type QueryKind string

const (
	QueryThreeWay   QueryKind = "three_way"
	QueryTwoWay     QueryKind = "two_way"
	QueryStructured QueryKind = "structured"
	QueryCompare    QueryKind = "compare"
	QueryEvaluate   QueryKind = "evaluate"
)

// latencyWindow bounds the percentile sample window.
const latencyWindow = 1000

// Stats is a snapshot of the collector.
type Stats struct {
	TotalQueries      int64               `json:"total_queries"`
	ZeroResultQueries int64               `json:"zero_result_queries"`
	ZeroResultRate    float64             `json:"zero_result_rate"`
	CountsByKind      map[QueryKind]int64 `json:"counts_by_kind"`

	LatencyP50 float64 `json:"latency_p50_ms"`
	LatencyP95 float64 `json:"latency_p95_ms"`
	LatencyP99 float64 `json:"latency_p99_ms"`
	LatencyAvg float64 `json:"latency_avg_ms"`
}

// Collector accumulates search telemetry. Safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	total       int64
	zeroResults int64
	counts      map[QueryKind]int64

	latencies []time.Duration
	next      int

	totalLatency time.Duration
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		counts:    make(map[QueryKind]int64),
		latencies: make([]time.Duration, 0, latencyWindow),
	}
}

// Record notes one completed query.
func (c *Collector) Record(kind QueryKind, latency time.Duration, resultCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	c.counts[kind]++
	c.totalLatency += latency
	if resultCount == 0 {
		c.zeroResults++
	}

	if len(c.latencies) < latencyWindow {
		c.latencies = append(c.latencies, latency)
		return
	}
	c.latencies[c.next] = latency
	c.next = (c.next + 1) % latencyWindow
}

// Snapshot returns the current stats.
func (c *Collector) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[QueryKind]int64, len(c.counts))
	for k, v := range c.counts {
		counts[k] = v
	}

	s := Stats{
		TotalQueries:      c.total,
		ZeroResultQueries: c.zeroResults,
		CountsByKind:      counts,
	}
	if c.total > 0 {
		s.ZeroResultRate = float64(c.zeroResults) / float64(c.total)
		s.LatencyAvg = durToMS(c.totalLatency) / float64(c.total)
	}

	s.LatencyP50 = percentile(c.latencies, 50)
	s.LatencyP95 = percentile(c.latencies, 95)
	s.LatencyP99 = percentile(c.latencies, 99)
	return s
}

// Reset clears all counters and the latency window.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total = 0
	c.zeroResults = 0
	c.counts = make(map[QueryKind]int64)
	c.latencies = c.latencies[:0]
	c.next = 0
	c.totalLatency = 0
}

// percentile computes an exact nearest-rank percentile in milliseconds.
func percentile(samples []time.Duration, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := int(float64(len(sorted))*p/100.0+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return durToMS(sorted[rank])
}

func durToMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
