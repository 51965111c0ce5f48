package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

type Options struct {
	URI      string
	User     string
	Password string
	Database string
	// Upper bound on pooled Bolt connections; 0 keeps the driver default
	MaxPoolSize int
	// How long Acquire may wait for a pooled connection
	AcquireTimeout time.Duration
	ConnectTimeout time.Duration
	// Managed transaction retry budget. Zero means a single attempt, so driver retries
	// never hide inside a timed call.
	RetryTime time.Duration
	Logger    *zerolog.Logger
}

// Neo4jProvider is a Provider backed by one neo4j driver. The driver multiplexes its
// connection pool across sessions; a session is created per Acquire.
type Neo4jProvider struct {
	driver   neo4j.DriverWithContext
	opts     Options
	log      zerolog.Logger
	active   atomic.Int64
	closed   atomic.Bool
	once     sync.Once
	closeErr error
}

// Open creates the driver and checks that the endpoint answers. An unreachable endpoint
// yields a *ConnectionError.
func Open(ctx context.Context, opts Options) (*Neo4jProvider, error) {
	p, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := p.driver.VerifyConnectivity(ctx); err != nil {
		_ = p.driver.Close(ctx)
		return nil, &ConnectionError{Endpoint: opts.URI, Err: err}
	}
	p.log.Info().Str("uri", opts.URI).Str("database", opts.Database).Msg("Connected")
	return p, nil
}

// New creates the driver without contacting the endpoint.
func New(opts Options) (*Neo4jProvider, error) {
	auth := neo4j.NoAuth()
	if opts.User != "" {
		auth = neo4j.BasicAuth(opts.User, opts.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI, auth, func(c *config.Config) {
		if opts.MaxPoolSize > 0 {
			c.MaxConnectionPoolSize = opts.MaxPoolSize
		}
		if opts.AcquireTimeout > 0 {
			c.ConnectionAcquisitionTimeout = opts.AcquireTimeout
		}
		if opts.ConnectTimeout > 0 {
			c.SocketConnectTimeout = opts.ConnectTimeout
		}
		c.MaxTransactionRetryTime = opts.RetryTime
	})
	if err != nil {
		return nil, &ConnectionError{Endpoint: opts.URI, Err: err}
	}

	logger := zlog.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Neo4jProvider{
		driver: driver,
		opts:   opts,
		log:    logger.With().Str("component", "connection").Logger(),
	}, nil
}

func (p *Neo4jProvider) Acquire(ctx context.Context) (Session, error) {
	if p.closed.Load() {
		return nil, &ConnectionError{Endpoint: p.opts.URI, Err: ErrClosed}
	}
	s := p.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: p.opts.Database})
	p.active.Add(1)
	return &neo4jSession{session: s, provider: p}, nil
}

// Active returns the number of sessions acquired but not yet closed.
func (p *Neo4jProvider) Active() int64 {
	return p.active.Load()
}

func (p *Neo4jProvider) Close(ctx context.Context) error {
	p.once.Do(func() {
		p.closed.Store(true)
		if n := p.active.Load(); n > 0 {
			p.log.Warn().Int64("sessions", n).Msg("Closing with sessions still open")
		}
		p.closeErr = p.driver.Close(ctx)
		p.log.Info().Str("uri", p.opts.URI).Msg("Disconnected")
	})
	return p.closeErr
}

// Maps driver errors that mean the endpoint is gone to ConnectionError
func (p *Neo4jProvider) classify(err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) {
		return &ConnectionError{Endpoint: p.opts.URI, Err: err}
	}
	return err
}

type neo4jSession struct {
	session  neo4j.SessionWithContext
	provider *Neo4jProvider
	closed   bool
}

func (s *neo4jSession) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	out, err := s.session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]Record, 0, len(records))
		for _, r := range records {
			rows = append(rows, r.AsMap())
		}
		return rows, nil
	})
	if err != nil {
		return nil, s.provider.classify(err)
	}
	return out.([]Record), nil
}

func (s *neo4jSession) ExecuteWrite(ctx context.Context, query string, params map[string]any) (Summary, error) {
	out, err := s.session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return Summary{}, s.provider.classify(err)
	}
	summary, ok := out.(neo4j.ResultSummary)
	if !ok {
		return Summary{}, errors.New("unexpected write result")
	}
	counters := summary.Counters()
	return Summary{
		NodesCreated:         counters.NodesCreated(),
		RelationshipsCreated: counters.RelationshipsCreated(),
		PropertiesSet:        counters.PropertiesSet(),
		ResultAvailableAfter: summary.ResultAvailableAfter(),
	}, nil
}

func (s *neo4jSession) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.provider.active.Add(-1)
	return s.session.Close(ctx)
}
