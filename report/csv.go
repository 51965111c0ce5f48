package report

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"graphbench/benchmark"
	"graphbench/util"
)

var resultHeader = []string{
	"run_id", "timestamp", "scenario", "operation", "iterations", "concurrency",
	"samples", "success", "failures", "status", "total_ms", "ops_per_sec",
	"mean_ms", "min_ms", "p50_ms", "p95_ms", "p99_ms", "max_ms",
}

// name, dimension and time columns, one line per sample
var sampleHeader = []string{"scenario", "concurrency", "iteration", "start", "duration_ms", "failed"}

// CSVSink writes one line per scenario, and optionally one line per sample to a second
// writer. Headers are written once, before the first line, unless the destination
// already had content.
type CSVSink struct {
	mu            sync.Mutex
	results       *csv.Writer
	samples       *csv.Writer
	resultsHeader bool
	samplesHeader bool
	closers       []io.Closer
}

// NewCSVSink writes results to w and samples to sw; sw may be nil.
func NewCSVSink(w io.Writer, sw io.Writer) *CSVSink {
	s := &CSVSink{results: csv.NewWriter(w), resultsHeader: true}
	if sw != nil {
		s.samples = csv.NewWriter(sw)
		s.samplesHeader = true
	}
	return s
}

// OpenCSV appends to the files at path and samplesPath (empty disables samples),
// creating them and their directories as needed.
func OpenCSV(path, samplesPath string) (*CSVSink, error) {
	f, fresh, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	s := &CSVSink{results: csv.NewWriter(f), resultsHeader: fresh, closers: []io.Closer{f}}
	if samplesPath != "" {
		sf, fresh, err := openAppend(samplesPath)
		if err != nil {
			f.Close()
			return nil, err
		}
		s.samples = csv.NewWriter(sf)
		s.samplesHeader = fresh
		s.closers = append(s.closers, sf)
	}
	return s, nil
}

// Reports whether the file was empty
func openAppend(path string) (*os.File, bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, err
	}
	fresh := true
	if st, err := os.Stat(path); err == nil && st.Size() > 0 {
		fresh = false
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false, err
	}
	return f, fresh, nil
}

func (s *CSVSink) WriteResult(row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resultsHeader {
		if err := s.results.Write(resultHeader); err != nil {
			return err
		}
		s.resultsHeader = false
	}
	r := row.Result
	err := s.results.Write([]string{
		row.RunID,
		row.Timestamp.UTC().Format(time.RFC3339),
		row.Scenario,
		string(row.Operation),
		strconv.Itoa(row.Iterations),
		strconv.Itoa(row.Concurrency),
		strconv.Itoa(r.SampleCount),
		strconv.Itoa(r.SuccessCount),
		strconv.Itoa(r.FailureCount),
		string(row.Status),
		ms(r.Total),
		strconv.FormatFloat(r.Throughput(), 'f', 3, 64),
		ms(r.Mean),
		ms(r.Min),
		ms(r.P50),
		ms(r.P95),
		ms(r.P99),
		ms(r.Max),
	})
	if err != nil {
		return err
	}
	s.results.Flush()
	return s.results.Error()
}

func (s *CSVSink) WriteSamples(scenario string, concurrency int, samples []benchmark.TimingSample) error {
	if s.samples == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.samplesHeader {
		if err := s.samples.Write(sampleHeader); err != nil {
			return err
		}
		s.samplesHeader = false
	}
	for _, x := range samples {
		err := s.samples.Write([]string{
			scenario,
			strconv.Itoa(concurrency),
			strconv.Itoa(x.Iteration),
			x.Start.UTC().Format(time.RFC3339Nano),
			ms(x.Duration),
			strconv.FormatBool(x.Failed),
		})
		if err != nil {
			return err
		}
	}
	s.samples.Flush()
	return s.samples.Error()
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results.Flush()
	errs := []error{s.results.Error()}
	if s.samples != nil {
		s.samples.Flush()
		errs = append(errs, s.samples.Error())
	}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func ms(d time.Duration) string {
	return strconv.FormatFloat(util.Millis(d), 'f', 6, 64)
}
