// Package connectiontest provides an in-memory connection.Provider for tests.
package connectiontest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"graphbench/connection"
)

// Call is one query received by a fake session.
type Call struct {
	Query  string
	Params map[string]any
	Write  bool
}

// Provider simulates a database with a fixed per-call latency. Fail, when set, decides
// the outcome of each call; AcquireErr makes every Acquire fail.
type Provider struct {
	Latency    time.Duration
	Records    []connection.Record
	Fail       func(call Call) error
	AcquireErr error

	acquired atomic.Int64
	released atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
	closes   atomic.Int64

	mu    sync.Mutex
	calls []Call
}

func (p *Provider) Acquire(ctx context.Context) (connection.Session, error) {
	if p.AcquireErr != nil {
		return nil, &connection.ConnectionError{Endpoint: "fake://", Err: p.AcquireErr}
	}
	p.acquired.Add(1)
	return &session{provider: p}, nil
}

func (p *Provider) Close(ctx context.Context) error {
	p.closes.Add(1)
	return nil
}

// Acquired is the number of sessions handed out.
func (p *Provider) Acquired() int64 { return p.acquired.Load() }

// Released is the number of sessions closed.
func (p *Provider) Released() int64 { return p.released.Load() }

// Peak is the highest number of calls observed executing at once.
func (p *Provider) Peak() int64 { return p.peak.Load() }

// Closes counts Close invocations.
func (p *Provider) Closes() int64 { return p.closes.Load() }

// Calls returns a copy of every call received so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

func (p *Provider) do(ctx context.Context, c Call) error {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}

	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()

	if p.Latency > 0 {
		timer := time.NewTimer(p.Latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	if p.Fail != nil {
		return p.Fail(c)
	}
	return nil
}

type session struct {
	provider *Provider
	closed   bool
}

var errSessionClosed = errors.New("session closed")

func (s *session) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]connection.Record, error) {
	if s.closed {
		return nil, errSessionClosed
	}
	if err := s.provider.do(ctx, Call{Query: query, Params: params}); err != nil {
		return nil, err
	}
	return s.provider.Records, nil
}

func (s *session) ExecuteWrite(ctx context.Context, query string, params map[string]any) (connection.Summary, error) {
	if s.closed {
		return connection.Summary{}, errSessionClosed
	}
	if err := s.provider.do(ctx, Call{Query: query, Params: params, Write: true}); err != nil {
		return connection.Summary{}, err
	}
	return connection.Summary{NodesCreated: 1, PropertiesSet: len(params)}, nil
}

func (s *session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.provider.released.Add(1)
	return nil
}

// FailEvery returns a Fail func that fails every nth call (1-based) with err.
func FailEvery(n int64, err error) func(Call) error {
	var count atomic.Int64
	return func(Call) error {
		if count.Add(1)%n == 0 {
			return err
		}
		return nil
	}
}

// FailFirst returns a Fail func that fails the first n calls with err.
func FailFirst(n int64, err error) func(Call) error {
	var count atomic.Int64
	return func(Call) error {
		if count.Add(1) <= n {
			return err
		}
		return nil
	}
}
