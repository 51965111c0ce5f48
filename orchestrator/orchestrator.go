// Package orchestrator sequences scenarios through the runner, one at a time, and
// forwards their aggregated results to a report sink.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"graphbench/benchmark"
	"graphbench/benchmark/catalog"
	"graphbench/connection"
	"graphbench/report"
	"graphbench/stats"
	"graphbench/util"
	"graphbench/worker"
)

var (
	// ErrBusy is returned when a run is started while another one is in progress.
	ErrBusy = errors.New("orchestrator: run in progress")
	// ErrShortRun means a scenario finished without producing one sample per iteration.
	ErrShortRun = errors.New("scenario produced fewer samples than iterations")
)

type State int

const (
	Idle State = iota
	Running
	Completed
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Options struct {
	// Seeds and cleans up after the scenarios; nil skips both
	Workload benchmark.Workload
	Populate bool
	Cleanup  bool
	// Fixed run identifier; a random one is generated when empty
	RunID  string
	Logger *zerolog.Logger
	// Called on every state change, after the state is visible through State
	OnState func(State, string)
}

// Report is what a run produced. Aborted holds the partial result of the scenario that
// stopped the run, Skipped the scenarios that never started.
type Report struct {
	RunID     string
	Completed []report.Row
	Aborted   *report.Row
	Skipped   []string
}

type Orchestrator struct {
	provider connection.Provider
	runner   *worker.Runner
	sink     report.Sink
	opts     Options
	log      zerolog.Logger

	mu       sync.Mutex
	state    State
	scenario string
}

func New(provider connection.Provider, runner *worker.Runner, sink report.Sink, opts Options) *Orchestrator {
	logger := zlog.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Orchestrator{
		provider: provider,
		runner:   runner,
		sink:     sink,
		opts:     opts,
		log:      logger.With().Str("component", "orchestrator").Logger(),
	}
}

// State returns the current state with the scenario it applies to. Each scenario moves
// Running to Completed in turn; once the run ends the state is Completed or Aborted for
// the run, with the last scenario that finished or the one that stopped it.
func (o *Orchestrator) State() (State, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.scenario
}

func (o *Orchestrator) setState(s State, scenario string) {
	o.mu.Lock()
	o.state, o.scenario = s, scenario
	o.mu.Unlock()
	if o.opts.OnState != nil {
		o.opts.OnState(s, scenario)
	}
}

func (o *Orchestrator) current() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scenario
}

// RunAll runs every scenario of cat in catalog order.
func (o *Orchestrator) RunAll(ctx context.Context, cat *catalog.Catalog) (*Report, error) {
	return o.Run(ctx, cat.All())
}

// RunSelected resolves names against cat before any work starts, then runs them in the
// given order.
func (o *Orchestrator) RunSelected(ctx context.Context, cat *catalog.Catalog, names ...string) (*Report, error) {
	scenarios, err := cat.Select(names...)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, scenarios)
}

// Run executes scenarios sequentially. The first aborted scenario halts the run: its
// partial result is reported with status aborted and the error is returned together
// with the report.
func (o *Orchestrator) Run(ctx context.Context, scenarios []benchmark.Scenario) (*Report, error) {
	o.mu.Lock()
	if o.state == Running {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	o.state, o.scenario = Running, ""
	o.mu.Unlock()
	if o.opts.OnState != nil {
		o.opts.OnState(Running, "")
	}

	rep := &Report{RunID: util.FirstNonZero(o.opts.RunID, uuid.NewString())}
	o.log.Info().Str("run", rep.RunID).Int("scenarios", len(scenarios)).Msg("Run started")

	err := o.run(ctx, rep, scenarios)
	if err != nil {
		o.setState(Aborted, o.current())
		o.log.Error().Str("run", rep.RunID).Int("completed", len(rep.Completed)).
			Strs("skipped", rep.Skipped).Err(err).Msg("Run aborted")
		return rep, err
	}
	o.setState(Completed, o.current())
	o.log.Info().Str("run", rep.RunID).Int("completed", len(rep.Completed)).Msg("Run ended")
	return rep, nil
}

func (o *Orchestrator) run(ctx context.Context, rep *Report, scenarios []benchmark.Scenario) (err error) {
	w := o.opts.Workload
	if w != nil && o.opts.Populate {
		o.log.Info().Str("workload", w.Name()).Msg("Populating")
		if err := w.Populate(ctx, o.provider); err != nil {
			rep.Skipped = names(scenarios)
			return fmt.Errorf("populate %s: %w", w.Name(), err)
		}
	}
	if w != nil && o.opts.Cleanup {
		defer func() {
			// cleanup runs even when ctx was cancelled mid-run
			cerr := w.Finalize(context.WithoutCancel(ctx), o.provider, rep.RunID)
			if cerr != nil {
				o.log.Warn().Str("workload", w.Name()).Err(cerr).Msg("Cleanup failed")
				if err == nil {
					err = fmt.Errorf("cleanup %s: %w", w.Name(), cerr)
				}
			}
		}()
	}

	for i, s := range scenarios {
		o.setState(Running, s.Name)
		row, err := o.runScenario(ctx, rep.RunID, s)
		if err != nil {
			if row != nil {
				rep.Aborted = row
			}
			rep.Skipped = names(scenarios[i+1:])
			return err
		}
		rep.Completed = append(rep.Completed, *row)
		o.setState(Completed, s.Name)
	}
	return nil
}

func (o *Orchestrator) runScenario(ctx context.Context, runID string, s benchmark.Scenario) (*report.Row, error) {
	op, err := benchmark.NewOperation(s, runID)
	if err != nil {
		return nil, err
	}

	batch, runErr := o.runner.Run(ctx, s, op)
	if batch == nil {
		return nil, runErr
	}
	if runErr == nil && !batch.Complete() {
		runErr = fmt.Errorf("%s: %w (%d of %d)", s.Name, ErrShortRun, len(batch.Samples), batch.Iterations)
	}

	status := report.StatusCompleted
	if runErr != nil {
		status = report.StatusAborted
	}
	row := report.NewRow(runID, time.Now(), s, status, stats.Aggregate(s.Name, batch.Samples))

	// raw samples always reach the sink; sinks without a sample destination drop them
	sinkErr := errors.Join(
		o.sink.WriteSamples(s.Name, s.Concurrency, batch.Samples),
		o.sink.WriteResult(row),
	)
	if sinkErr == nil {
		return &row, runErr
	}
	return &row, errors.Join(runErr, fmt.Errorf("report %s: %w", s.Name, sinkErr))
}

func names(scenarios []benchmark.Scenario) []string {
	out := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		out = append(out, s.Name)
	}
	return out
}
