package stats

import (
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"graphbench/benchmark"
)

// Bucket counts successful samples with latency in [Low, High).
type Bucket struct {
	Low   time.Duration
	High  time.Duration
	Count int64
}

const (
	histogramMax = int64(time.Hour / time.Microsecond)
	// <1ms plus log2 buckets up to 2^15 ms
	histogramBuckets = 17
)

// Histogram groups successful latencies in log2 millisecond buckets (the first bucket
// holds everything under 1ms). Empty buckets are omitted.
func Histogram(samples []benchmark.TimingSample) []Bucket {
	h := hdrhistogram.New(1, histogramMax, 3)
	for _, s := range samples {
		if s.Failed {
			continue
		}
		micros := s.Duration.Microseconds()
		if micros < 1 {
			micros = 1
		}
		if micros > histogramMax {
			micros = histogramMax
		}
		h.RecordValue(micros)
	}
	if h.TotalCount() == 0 {
		return nil
	}

	counts := make([]int64, histogramBuckets)
	for _, bar := range h.Distribution() {
		if bar.Count == 0 {
			continue
		}
		counts[bucketIndex(bar.From)] += bar.Count
	}

	var out []Bucket
	for i, c := range counts {
		if c == 0 {
			continue
		}
		low, high := bucketBounds(i)
		out = append(out, Bucket{Low: low, High: high, Count: c})
	}
	return out
}

func bucketIndex(micros int64) int {
	ms := float64(micros) / 1000
	if ms < 1 {
		return 0
	}
	b := int(math.Floor(math.Log2(ms))) + 1
	if b >= histogramBuckets {
		b = histogramBuckets - 1
	}
	return b
}

func bucketBounds(i int) (time.Duration, time.Duration) {
	if i == 0 {
		return 0, time.Millisecond
	}
	low := time.Duration(1<<(i-1)) * time.Millisecond
	return low, 2 * low
}
