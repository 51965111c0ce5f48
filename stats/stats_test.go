package stats

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphbench/benchmark"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Builds back-to-back samples with the given latencies in milliseconds
func sequentialSamples(ms ...int) []benchmark.TimingSample {
	out := make([]benchmark.TimingSample, 0, len(ms))
	at := epoch
	for i, m := range ms {
		d := time.Duration(m) * time.Millisecond
		out = append(out, benchmark.TimingSample{
			Scenario: "s", Iteration: i, Start: at, End: at.Add(d), Duration: d,
		})
		at = at.Add(d)
	}
	return out
}

func TestAggregateBasicStatistics(t *testing.T) {
	samples := sequentialSamples(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	r := Aggregate("s", samples)

	assert.Equal(t, "s", r.Scenario)
	assert.Equal(t, 10, r.SampleCount)
	assert.Equal(t, 10, r.SuccessCount)
	assert.Equal(t, 0, r.FailureCount)
	assert.Equal(t, 55*time.Millisecond, r.Total)
	assert.Equal(t, 5500*time.Microsecond, r.Mean)
	assert.Equal(t, time.Millisecond, r.Min)
	assert.Equal(t, 10*time.Millisecond, r.Max)
	assert.Equal(t, 5*time.Millisecond, r.P50)
	assert.Equal(t, 10*time.Millisecond, r.P95)
	assert.Equal(t, 10*time.Millisecond, r.P99)
	assert.Equal(t, 9*time.Millisecond, r.Percentile(90))
	assert.Equal(t, time.Millisecond, r.Percentile(0))
	assert.Equal(t, 10*time.Millisecond, r.Percentile(100))
	assert.InDelta(t, 10/0.055, r.Throughput(), 1e-6)
}

func TestNearestRank(t *testing.T) {
	sorted := []time.Duration{15, 20, 35, 40, 50}
	cases := map[float64]time.Duration{
		5:   15,
		30:  20,
		40:  20,
		50:  35,
		100: 50,
	}
	for p, want := range cases {
		assert.Equal(t, want, Percentile(sorted, p), "p%v", p)
	}
	assert.Zero(t, Percentile(nil, 50))
}

func TestFailedSamplesExcludedFromLatency(t *testing.T) {
	samples := sequentialSamples(2, 4, 1000)
	samples[2].Failed = true
	samples[2].Err = errors.New("timeout")

	r := Aggregate("s", samples)
	assert.Equal(t, 3, r.SampleCount)
	assert.Equal(t, 2, r.SuccessCount)
	assert.Equal(t, 1, r.FailureCount)
	assert.Equal(t, r.SampleCount, r.SuccessCount+r.FailureCount)
	assert.Equal(t, 4*time.Millisecond, r.Max)
	assert.Equal(t, 3*time.Millisecond, r.Mean)
	assert.Equal(t, 1006*time.Millisecond, r.Total, "failures still occupy wall-clock time")
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ms := make([]int, 200)
	for i := range ms {
		ms[i] = rng.Intn(50) + 1
	}
	samples := sequentialSamples(ms...)
	samples[17].Failed = true
	want := Aggregate("s", samples)

	for round := 0; round < 5; round++ {
		shuffled := append([]benchmark.TimingSample(nil), samples...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, Aggregate("s", shuffled))
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	samples := sequentialSamples(3, 1, 4, 1, 5, 9, 2, 6)
	before := append([]benchmark.TimingSample(nil), samples...)

	a := Aggregate("s", samples)
	b := Aggregate("s", samples)
	assert.Equal(t, a, b)
	assert.Equal(t, before, samples, "input must not be reordered")
}

func TestTotalIsSpanNotSum(t *testing.T) {
	// ten 5ms calls on ten parallel workers
	samples := make([]benchmark.TimingSample, 10)
	for i := range samples {
		start := epoch.Add(time.Duration(i) * 100 * time.Microsecond)
		samples[i] = benchmark.TimingSample{
			Iteration: i, Start: start, End: start.Add(5 * time.Millisecond), Duration: 5 * time.Millisecond,
		}
	}
	r := Aggregate("s", samples)
	assert.Equal(t, 5*time.Millisecond+900*time.Microsecond, r.Total)
	assert.Equal(t, 5*time.Millisecond, r.Mean)
}

func TestAggregateEmptyAndAllFailed(t *testing.T) {
	r := Aggregate("none", nil)
	assert.Equal(t, ScenarioResult{Scenario: "none"}, r)
	assert.Zero(t, r.Throughput())
	assert.Zero(t, r.Percentile(50))

	samples := sequentialSamples(1, 1)
	samples[0].Failed = true
	samples[1].Failed = true
	r = Aggregate("s", samples)
	assert.Equal(t, 2, r.FailureCount)
	assert.Zero(t, r.SuccessCount)
	assert.Zero(t, r.Mean)
	assert.Equal(t, 2*time.Millisecond, r.Total)
}

func TestHistogram(t *testing.T) {
	samples := sequentialSamples(3, 3, 5, 6, 100)
	samples = append(samples, benchmark.TimingSample{Duration: 300 * time.Microsecond})
	failed := benchmark.TimingSample{Duration: 50 * time.Millisecond, Failed: true}
	samples = append(samples, failed)

	buckets := Histogram(samples)
	require.Len(t, buckets, 4)
	assert.Equal(t, Bucket{Low: 0, High: time.Millisecond, Count: 1}, buckets[0])
	assert.Equal(t, Bucket{Low: 2 * time.Millisecond, High: 4 * time.Millisecond, Count: 2}, buckets[1])
	assert.Equal(t, Bucket{Low: 4 * time.Millisecond, High: 8 * time.Millisecond, Count: 2}, buckets[2])
	assert.Equal(t, Bucket{Low: 64 * time.Millisecond, High: 128 * time.Millisecond, Count: 1}, buckets[3])

	var total int64
	for _, b := range buckets {
		total += b.Count
	}
	assert.EqualValues(t, 6, total)
	assert.Nil(t, Histogram(nil))
}

func TestHistogramClampsOutliers(t *testing.T) {
	samples := []benchmark.TimingSample{
		{Duration: 2 * time.Hour},
		{Duration: 10 * time.Millisecond},
	}

	buckets := Histogram(samples)
	require.Len(t, buckets, 2)
	assert.Equal(t, Bucket{Low: 8 * time.Millisecond, High: 16 * time.Millisecond, Count: 1}, buckets[0])
	last := buckets[1]
	assert.Equal(t, 1<<15*time.Millisecond, last.Low, "outliers land in the last bucket")
	assert.EqualValues(t, 1, last.Count)
}
