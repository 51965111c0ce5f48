package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"graphbench/benchmark"
	"graphbench/connection"
)

// ErrThresholdExceeded is the cause of an abort triggered by too many failed invocations.
var ErrThresholdExceeded = errors.New("failure threshold exceeded")

type Options struct {
	// Bound on a single call; zero leaves calls unbounded
	CallTimeout time.Duration
	// Fraction of a scenario's iterations allowed to fail before it aborts. 0 aborts on
	// the first failure, 1 never aborts.
	FailureThreshold float64
	// Log every invocation at debug level, off the timed path
	TraceOperations bool
	Logger          *zerolog.Logger
}

// Batch is everything one Run produced. Dispatched and Drained bound the whole batch,
// queueing included.
type Batch struct {
	Scenario    string
	Iterations  int
	Concurrency int
	Samples     []benchmark.TimingSample
	Dispatched  time.Time
	Drained     time.Time
}

func (b *Batch) Failures() int {
	n := 0
	for _, s := range b.Samples {
		if s.Failed {
			n++
		}
	}
	return n
}

// Complete reports whether every configured iteration produced a sample.
func (b *Batch) Complete() bool {
	return len(b.Samples) == b.Iterations
}

type Runner struct {
	provider connection.Provider
	opts     Options
	log      zerolog.Logger
}

func NewRunner(provider connection.Provider, opts Options) *Runner {
	logger := zlog.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Runner{
		provider: provider,
		opts:     opts,
		log:      logger.With().Str("component", "worker").Logger(),
	}
}

// Run executes s.Iterations invocations of op and blocks until all of them have drained.
// With Concurrency 1 they run one after another on the calling goroutine; otherwise on a
// pool of Concurrency workers. On abort the partial batch is returned together with a
// *ScenarioAbortedError.
func (r *Runner) Run(ctx context.Context, s benchmark.Scenario, op benchmark.Operation) (*Batch, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	st := r.newRun(ctx, s, op)

	r.log.Info().Str("scenario", s.Name).Int("iterations", s.Iterations).
		Int("concurrency", s.Concurrency).Msg("Running")

	if r.opts.TraceOperations {
		st.startTrace()
	}

	batch := &Batch{Scenario: s.Name, Iterations: s.Iterations, Concurrency: s.Concurrency}
	batch.Dispatched = time.Now()
	var err error
	if s.Concurrency == 1 {
		st.sequential()
	} else {
		err = st.pooled()
	}
	batch.Drained = time.Now()

	st.stopTrace()
	batch.Samples = st.collect()

	if err != nil {
		return batch, err
	}
	if err := st.abortErr(); err != nil {
		r.log.Error().Str("scenario", s.Name).Int("samples", len(batch.Samples)).
			Err(err).Msg("Aborted")
		return batch, err
	}

	r.log.Info().Str("scenario", s.Name).Int("failures", batch.Failures()).
		Dur("elapsed", batch.Drained.Sub(batch.Dispatched)).Msg("Done")
	return batch, nil
}

// State of one Run; nothing here outlives it
type run struct {
	r        *Runner
	ctx      context.Context
	scenario benchmark.Scenario
	op       benchmark.Operation

	// written by index, one goroutine per slot
	samples []benchmark.TimingSample
	done    []bool

	allowed  int64
	failures atomic.Int64
	stop     atomic.Bool

	mu    sync.Mutex
	cause error

	trace   chan benchmark.TimingSample
	traceWg sync.WaitGroup
}

func (r *Runner) newRun(ctx context.Context, s benchmark.Scenario, op benchmark.Operation) *run {
	threshold := math.Min(math.Max(r.opts.FailureThreshold, 0), 1)
	return &run{
		r:        r,
		ctx:      ctx,
		scenario: s,
		op:       op,
		samples:  make([]benchmark.TimingSample, s.Iterations),
		done:     make([]bool, s.Iterations),
		allowed:  int64(math.Floor(threshold * float64(s.Iterations))),
	}
}

func (st *run) sequential() {
	for i := 0; i < st.scenario.Iterations; i++ {
		if st.stopped() {
			return
		}
		st.invoke(i)
	}
}

func (st *run) pooled() error {
	pool, err := ants.NewPool(st.scenario.Concurrency,
		ants.WithPreAlloc(true),
		ants.WithPanicHandler(st.panicHandler))
	if err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := 0; i < st.scenario.Iterations; i++ {
		if st.stopped() {
			break
		}
		iteration := i
		wg.Add(1)
		// Submit blocks while all workers are busy, so the backlog never grows
		err := pool.Submit(func() {
			defer wg.Done()
			if st.stopped() {
				return
			}
			st.invoke(iteration)
		})
		if err != nil {
			wg.Done()
			st.abort(fmt.Errorf("worker pool: %w", err))
			break
		}
	}
	wg.Wait()
	return nil
}

func (st *run) panicHandler(p interface{}) {
	st.r.log.Error().Str("scenario", st.scenario.Name).Interface("panic", p).Msg("Worker panic")
}

func (st *run) invoke(i int) {
	inv := benchmark.Invocation{Scenario: st.scenario.Name, Iteration: i}

	session, err := st.r.provider.Acquire(st.ctx)
	if err != nil {
		st.abort(err)
		return
	}
	defer func() {
		if err := session.Close(st.ctx); err != nil {
			st.r.log.Warn().Str("scenario", inv.Scenario).Int("iteration", i).Err(err).Msg("Session close failed")
		}
	}()

	callCtx := st.ctx
	if st.r.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(st.ctx, st.r.opts.CallTimeout)
		defer cancel()
	}

	start, end, err := st.execute(callCtx, session, inv)
	sample := benchmark.TimingSample{
		Scenario:  inv.Scenario,
		Iteration: i,
		Start:     start,
		End:       end,
		Duration:  end.Sub(start),
	}

	if err != nil {
		timeout := st.r.opts.CallTimeout > 0 &&
			errors.Is(callCtx.Err(), context.DeadlineExceeded) && st.ctx.Err() == nil
		sample.Failed = true
		sample.Err = &InvocationError{Scenario: inv.Scenario, Iteration: i, Timeout: timeout, Err: err}

		failures := st.failures.Add(1)
		if connection.IsConnectionError(err) {
			st.abort(err)
		} else if failures > st.allowed {
			st.abort(ErrThresholdExceeded)
		}
	}

	st.samples[i] = sample
	st.done[i] = true

	if st.trace != nil {
		st.trace <- sample
	}
}

// Times a single call; a panic becomes the call's error
func (st *run) execute(ctx context.Context, session connection.Session, inv benchmark.Invocation) (start, end time.Time, err error) {
	defer func() {
		if p := recover(); p != nil {
			end = time.Now()
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	start = time.Now()
	err = st.op(ctx, session, inv)
	end = time.Now()
	return start, end, err
}

func (st *run) stopped() bool {
	if st.stop.Load() {
		return true
	}
	if err := st.ctx.Err(); err != nil {
		st.abort(err)
		return true
	}
	return false
}

// Stops further dispatch; the first cause wins
func (st *run) abort(cause error) {
	st.mu.Lock()
	if st.cause == nil {
		st.cause = cause
	}
	st.mu.Unlock()
	st.stop.Store(true)
}

func (st *run) abortErr() error {
	if !st.stop.Load() {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return &ScenarioAbortedError{
		Scenario: st.scenario.Name,
		Failures: int(st.failures.Load()),
		Allowed:  int(st.allowed),
		Cause:    st.cause,
	}
}

func (st *run) collect() []benchmark.TimingSample {
	out := make([]benchmark.TimingSample, 0, len(st.samples))
	for i, ok := range st.done {
		if ok {
			out = append(out, st.samples[i])
		}
	}
	return out
}

// Per-invocation logging runs on its own goroutine so it stays out of the timings
func (st *run) startTrace() {
	st.trace = make(chan benchmark.TimingSample, 1024)
	st.traceWg.Add(1)
	go func() {
		defer st.traceWg.Done()
		for s := range st.trace {
			msg := "completed"
			if s.Failed {
				msg = "failed"
			}
			ev := st.r.log.Debug().Str("scenario", s.Scenario).Int("iteration", s.Iteration).
				Dur("rt", s.Duration).Time("real_time", s.End)
			if s.Err != nil {
				ev = ev.Err(s.Err)
			}
			ev.Msg(msg)
		}
	}()
}

func (st *run) stopTrace() {
	if st.trace == nil {
		return
	}
	close(st.trace)
	st.traceWg.Wait()
}
