// Package connection hands out database sessions to benchmark workers.
//
// A Provider owns the shared, multiplexed connection to the database endpoint. Every
// invocation borrows its own Session and closes it when done; sessions are never
// shared between goroutines.
package connection

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by Acquire once the provider has been closed.
var ErrClosed = errors.New("connection provider closed")

// Record is one row returned by a read query, keyed by column name.
type Record map[string]any

// Summary describes the effect of a write query.
type Summary struct {
	NodesCreated         int
	RelationshipsCreated int
	PropertiesSet        int
	ResultAvailableAfter time.Duration
}

type Session interface {
	// Runs a read query and returns all of its records
	ExecuteRead(ctx context.Context, query string, params map[string]any) ([]Record, error)
	// Runs a write query and returns its summary
	ExecuteWrite(ctx context.Context, query string, params map[string]any) (Summary, error)
	// Releases the session
	Close(ctx context.Context) error
}

type Provider interface {
	// Borrows a session for the duration of one unit of work
	Acquire(ctx context.Context) (Session, error)
	// Releases all underlying resources; calling it again is a no-op
	Close(ctx context.Context) error
}

// ConnectionError reports that the database endpoint cannot be used. It is fatal for
// the whole benchmark run.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err carries a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
