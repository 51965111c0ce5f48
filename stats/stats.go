// Package stats turns the timing samples of one scenario into summary statistics.
//
// A ScenarioResult is always computed from the complete sample set of a scenario and
// never updated in place. Every statistic is independent of sample order, and calling
// Aggregate twice on the same input yields identical results.
package stats

import (
	"math"
	"slices"
	"time"

	"graphbench/benchmark"
	"graphbench/util"
)

type ScenarioResult struct {
	Scenario     string
	SampleCount  int
	SuccessCount int
	FailureCount int
	// Wall-clock span from the first call start to the last call end, failures included
	Total time.Duration
	Mean  time.Duration
	Min   time.Duration
	Max   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration

	sorted []time.Duration
}

// Aggregate summarizes samples. Failed samples count towards SampleCount, FailureCount
// and Total but never towards the latency statistics.
func Aggregate(name string, samples []benchmark.TimingSample) ScenarioResult {
	r := ScenarioResult{Scenario: name, SampleCount: len(samples)}
	if len(samples) == 0 {
		return r
	}

	var first, last time.Time
	durations := make([]time.Duration, 0, len(samples))
	for i, s := range samples {
		if i == 0 || s.Start.Before(first) {
			first = s.Start
		}
		if i == 0 || s.End.After(last) {
			last = s.End
		}
		if s.Failed {
			r.FailureCount++
			continue
		}
		durations = append(durations, s.Duration)
	}
	r.SuccessCount = len(durations)
	r.Total = last.Sub(first)

	if len(durations) == 0 {
		return r
	}

	slices.Sort(durations)
	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	r.sorted = durations
	r.Mean = sum / time.Duration(len(durations))
	r.Min = durations[0]
	r.Max = durations[len(durations)-1]
	r.P50 = Percentile(durations, 50)
	r.P95 = Percentile(durations, 95)
	r.P99 = Percentile(durations, 99)
	return r
}

// Percentile returns the nearest-rank percentile p (0-100) of the successful samples.
func (r ScenarioResult) Percentile(p float64) time.Duration {
	return Percentile(r.sorted, p)
}

// Throughput is successful operations per second over Total.
func (r ScenarioResult) Throughput() float64 {
	return util.PerSecond(r.SuccessCount, r.Total)
}

// Percentile computes the nearest-rank percentile p (0-100) of an ascending slice: the
// smallest value with at least p% of the values at or below it.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p * float64(n) / 100))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}
