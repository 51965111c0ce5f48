// Package report writes scenario results to their destinations: CSV files, the log and
// a SQL results store.
package report

import (
	"errors"
	"time"

	"graphbench/benchmark"
	"graphbench/stats"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Row is one scenario's result together with the run it belongs to.
type Row struct {
	RunID       string
	Timestamp   time.Time
	Scenario    string
	Operation   benchmark.OperationKind
	Iterations  int
	Concurrency int
	Status      Status
	Result      stats.ScenarioResult
}

func NewRow(runID string, at time.Time, s benchmark.Scenario, status Status, result stats.ScenarioResult) Row {
	return Row{
		RunID:       runID,
		Timestamp:   at,
		Scenario:    s.Name,
		Operation:   s.Operation,
		Iterations:  s.Iterations,
		Concurrency: s.Concurrency,
		Status:      status,
		Result:      result,
	}
}

type Sink interface {
	// Records the summary of one scenario
	WriteResult(row Row) error
	// Records the raw samples of one scenario; sinks without a sample destination ignore them
	WriteSamples(scenario string, concurrency int, samples []benchmark.TimingSample) error
	Close() error
}

type multi []Sink

// Multi fans every write out to all sinks. A failing sink does not stop the others;
// their errors are joined.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) WriteResult(row Row) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WriteResult(row))
	}
	return errors.Join(errs...)
}

func (m multi) WriteSamples(scenario string, concurrency int, samples []benchmark.TimingSample) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WriteSamples(scenario, concurrency, samples))
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
