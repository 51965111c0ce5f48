package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphbench/benchmark"
	dbutils "graphbench/dbUtils"
	"graphbench/stats"
)

var at = time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC)

func samples() []benchmark.TimingSample {
	out := make([]benchmark.TimingSample, 4)
	start := at
	for i := range out {
		d := time.Duration(i+1) * time.Millisecond
		out[i] = benchmark.TimingSample{Scenario: "simple_multi", Iteration: i, Start: start, End: start.Add(d), Duration: d}
		start = start.Add(d)
	}
	out[3].Failed = true
	return out
}

func row(status Status) Row {
	sc := benchmark.Scenario{Name: "simple_multi", Operation: benchmark.ReadSimple, Iterations: 4, Concurrency: 10}
	return NewRow("run-1", at, sc, status, stats.Aggregate(sc.Name, samples()))
}

func TestCSVSinkWritesHeaderOnce(t *testing.T) {
	var results, raw bytes.Buffer
	sink := NewCSVSink(&results, &raw)

	require.NoError(t, sink.WriteResult(row(StatusCompleted)))
	require.NoError(t, sink.WriteResult(row(StatusAborted)))
	require.NoError(t, sink.WriteSamples("simple_multi", 10, samples()))
	require.NoError(t, sink.Close())

	lines, err := csv.NewReader(&results).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, resultHeader, lines[0])

	first := lines[1]
	assert.Equal(t, "run-1", first[0])
	assert.Equal(t, "2024-05-02T10:30:00Z", first[1])
	assert.Equal(t, "simple_multi", first[2])
	assert.Equal(t, "read_simple", first[3])
	assert.Equal(t, []string{"4", "10", "4", "3", "1", "completed"}, first[4:10])
	assert.Equal(t, "10.000000", first[10], "total spans failures too")
	assert.Equal(t, "300.000", first[11])
	assert.Equal(t, "2.000000", first[12])
	assert.Equal(t, "aborted", lines[2][9])

	sampleLines, err := csv.NewReader(&raw).ReadAll()
	require.NoError(t, err)
	require.Len(t, sampleLines, 5)
	assert.Equal(t, sampleHeader, sampleLines[0])
	assert.Equal(t, []string{"simple_multi", "10", "0"}, sampleLines[1][:3])
	assert.Equal(t, "1.000000", sampleLines[1][4])
	assert.Equal(t, "true", sampleLines[4][5])
}

func TestCSVSinkWithoutSamplesWriter(t *testing.T) {
	var results bytes.Buffer
	sink := NewCSVSink(&results, nil)
	assert.NoError(t, sink.WriteSamples("x", 1, samples()))
	assert.NoError(t, sink.Close())
	assert.Empty(t, results.String())
}

func TestOpenCSVAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "results.csv")
	samplesPath := filepath.Join(dir, "out", "samples.csv")

	for i := 0; i < 2; i++ {
		sink, err := OpenCSV(path, samplesPath)
		require.NoError(t, err)
		require.NoError(t, sink.WriteResult(row(StatusCompleted)))
		require.NoError(t, sink.WriteSamples("simple_multi", 10, samples()))
		require.NoError(t, sink.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "run_id,"))
	assert.Equal(t, 1, strings.Count(string(data), "run_id"))

	data, err = os.ReadFile(samplesPath)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 9)
}

func TestStoreSink(t *testing.T) {
	ctx := context.Background()
	db, err := dbutils.Open(ctx, dbutils.DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	sink, err := NewStoreSink(ctx, db)
	require.NoError(t, err)
	require.NoError(t, sink.WriteResult(row(StatusCompleted)))
	require.NoError(t, sink.WriteSamples("simple_multi", 10, samples()))
	require.NoError(t, sink.Close())

	got, err := dbutils.RunResults(ctx, db, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "simple_multi", got[0].Scenario)
	assert.Equal(t, 3, got[0].Success)
	assert.Equal(t, 1, got[0].Failures)
	assert.Equal(t, "completed", got[0].Status)
	assert.InDelta(t, 10.0, got[0].TotalMs, 1e-9)
	assert.InDelta(t, 300.0, got[0].OpsPerSec, 1e-9)
	assert.NoError(t, db.PingContext(ctx), "a borrowed database stays open")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)
	sink := NewLogSink(&logger)

	require.NoError(t, sink.WriteResult(row(StatusAborted)))
	require.NoError(t, sink.WriteSamples("simple_multi", 10, samples()))
	require.NoError(t, sink.Close())

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"scenario":"simple_multi"`)
	assert.Contains(t, out, `"status":"aborted"`)
	assert.NotContains(t, out, "Latency bucket", "histogram is debug only")
}

func TestLogSinkHistogramAtDebug(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(prev)

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	sink := NewLogSink(&logger)

	require.NoError(t, sink.WriteSamples("simple_multi", 10, samples()))
	out := buf.String()
	// 1ms falls in [1ms,2ms), 2ms and 3ms in [2ms,4ms); the failed 4ms sample is left out
	assert.Equal(t, 2, strings.Count(out, "Latency bucket"))
	assert.Contains(t, out, `"count":2`)
	assert.Contains(t, out, `"concurrency":10`)
}

type failingSink struct {
	err    error
	closed bool
}

func (f *failingSink) WriteResult(Row) error { return f.err }
func (f *failingSink) WriteSamples(string, int, []benchmark.TimingSample) error { return f.err }
func (f *failingSink) Close() error { f.closed = true; return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("disk full")
	var buf bytes.Buffer
	good := NewCSVSink(&buf, nil)
	bad := &failingSink{err: boom}

	m := Multi(bad, good)
	err := m.WriteResult(row(StatusCompleted))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "simple_multi", "later sinks still receive the row")

	assert.ErrorIs(t, m.Close(), boom)
	assert.True(t, bad.closed)

	assert.NoError(t, Multi(NewCSVSink(&bytes.Buffer{}, nil)).WriteResult(row(StatusCompleted)))
}
