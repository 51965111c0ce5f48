package benchmark

import (
	"context"
	"errors"
	"fmt"

	"graphbench/connection"
)

type Workload interface {
	// Name used in logs and reports
	Name() string
	// The workload's own scenarios, in run order
	Scenarios() []Scenario
	// Seeds the data read by the scenarios (called once before the first scenario)
	Populate(ctx context.Context, provider connection.Provider) error
	// Removes whatever the run wrote (called once after the last scenario)
	Finalize(ctx context.Context, provider connection.Provider, runID string) error
	// Returns the workload-specific configurations
	GetConfigs() map[string]string
}

// Operation executes one invocation of a scenario on a borrowed session.
type Operation func(ctx context.Context, session connection.Session, inv Invocation) error

// Invocation identifies a single timed call.
type Invocation struct {
	Scenario  string
	Iteration int
}

const (
	// Parameter naming the query parameter that receives the generated key
	ParamKeyParam = "keyParam"
	// Parameter holding the generated key prefix
	ParamKeyPrefix = "keyPrefix"

	defaultKeyParam  = "name"
	defaultKeyPrefix = "Person_"
)

var errNoQuery = errors.New("scenario has no query")

// NewOperation builds the Operation for s. Reads submit s.Query with s.Parameters
// unchanged. Inserts bind a distinct key per iteration so MERGE always creates.
func NewOperation(s Scenario, runID string) (Operation, error) {
	if s.Query == "" {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, errNoQuery)
	}
	query := s.Query
	params := controlParamsRemoved(s.Parameters)

	switch s.Operation {
	case ReadSimple, ReadComplex, ReadPath:
		return func(ctx context.Context, session connection.Session, _ Invocation) error {
			_, err := session.ExecuteRead(ctx, query, params)
			return err
		}, nil

	case Insert:
		keyParam := KeyParam(s)
		prefix := KeyPrefix(s, runID)
		return func(ctx context.Context, session connection.Session, inv Invocation) error {
			p := make(map[string]any, len(params)+1)
			for k, v := range params {
				p[k] = v
			}
			p[keyParam] = fmt.Sprintf("%s%d", prefix, inv.Iteration)
			_, err := session.ExecuteWrite(ctx, query, p)
			return err
		}, nil
	}

	return nil, fmt.Errorf("scenario %q: %w: %q", s.Name, ErrUnknownOperation, s.Operation)
}

// KeyParam is the query parameter an insert scenario writes its generated key to.
func KeyParam(s Scenario) string {
	if v, ok := s.Parameters[ParamKeyParam].(string); ok && v != "" {
		return v
	}
	return defaultKeyParam
}

// KeyPrefix is the run-scoped prefix of every key an insert scenario generates.
func KeyPrefix(s Scenario, runID string) string {
	prefix := defaultKeyPrefix
	if v, ok := s.Parameters[ParamKeyPrefix].(string); ok && v != "" {
		prefix = v
	}
	if runID == "" {
		return prefix
	}
	return prefix + runID + "_"
}

// Drops the harness control keys so they are not sent to the database
func controlParamsRemoved(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if k == ParamKeyParam || k == ParamKeyPrefix {
			continue
		}
		out[k] = v
	}
	return out
}
