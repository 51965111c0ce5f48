package benchmark

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphbench/connection/connectiontest"
)

func insertScenario() Scenario {
	return Scenario{
		Name:        "insert",
		Operation:   Insert,
		Iterations:  3,
		Concurrency: 1,
		Query:       "MERGE (p:Person {name: $name})",
	}
}

func TestParseOperationKind(t *testing.T) {
	k, err := ParseOperationKind(" READ_path ")
	require.NoError(t, err)
	assert.Equal(t, ReadPath, k)

	_, err = ParseOperationKind("scan")
	assert.ErrorIs(t, err, ErrUnknownOperation)

	assert.True(t, Insert.IsWrite())
	assert.False(t, ReadComplex.IsWrite())
}

func TestScenarioValidate(t *testing.T) {
	good := insertScenario()
	require.NoError(t, good.Validate())

	cases := map[string]func(*Scenario){
		"no name":        func(s *Scenario) { s.Name = "" },
		"zero iter":      func(s *Scenario) { s.Iterations = 0 },
		"no concurrency": func(s *Scenario) { s.Concurrency = 0 },
		"no query":       func(s *Scenario) { s.Query = "" },
		"bad op":         func(s *Scenario) { s.Operation = "scan" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := insertScenario()
			mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidScenario)
		})
	}
}

func TestInsertGeneratesDistinctKeys(t *testing.T) {
	ctx := context.Background()
	p := &connectiontest.Provider{}
	s := insertScenario()
	s.Parameters = map[string]any{"born": 1964}

	op, err := NewOperation(s, "r1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		sess, err := p.Acquire(ctx)
		require.NoError(t, err)
		require.NoError(t, op(ctx, sess, Invocation{Scenario: s.Name, Iteration: i}))
		require.NoError(t, sess.Close(ctx))
	}

	calls := p.Calls()
	require.Len(t, calls, 3)
	seen := map[any]bool{}
	for i, c := range calls {
		assert.True(t, c.Write)
		assert.Equal(t, 1964, c.Params["born"])
		assert.Equal(t, "Person_r1_"+string(rune('0'+i)), c.Params["name"])
		seen[c.Params["name"]] = true
	}
	assert.Len(t, seen, 3)
	assert.NotContains(t, s.Parameters, "name", "scenario parameters must not be mutated")
}

func TestInsertKeyParameters(t *testing.T) {
	s := insertScenario()
	s.Parameters = map[string]any{ParamKeyParam: "title", ParamKeyPrefix: "Movie_"}

	assert.Equal(t, "title", KeyParam(s))
	assert.Equal(t, "Movie_abc_", KeyPrefix(s, "abc"))
	assert.Equal(t, "Movie_", KeyPrefix(s, ""))

	ctx := context.Background()
	p := &connectiontest.Provider{}
	op, err := NewOperation(s, "abc")
	require.NoError(t, err)
	sess, _ := p.Acquire(ctx)
	require.NoError(t, op(ctx, sess, Invocation{Iteration: 7}))

	params := p.Calls()[0].Params
	assert.Equal(t, "Movie_abc_7", params["title"])
	assert.NotContains(t, params, ParamKeyParam)
	assert.NotContains(t, params, ParamKeyPrefix)
}

func TestReadOperationPassesQueryThrough(t *testing.T) {
	ctx := context.Background()
	p := &connectiontest.Provider{}
	s := Scenario{
		Name: "simple", Operation: ReadSimple, Iterations: 1, Concurrency: 1,
		Query: "MATCH (n) RETURN n", Parameters: map[string]any{"title": "The Matrix"},
	}
	op, err := NewOperation(s, "run")
	require.NoError(t, err)
	sess, _ := p.Acquire(ctx)
	require.NoError(t, op(ctx, sess, Invocation{}))

	calls := p.Calls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Write)
	assert.Equal(t, "MATCH (n) RETURN n", calls[0].Query)
	assert.Equal(t, map[string]any{"title": "The Matrix"}, calls[0].Params)
}

func TestNewOperationRejectsBadScenario(t *testing.T) {
	s := insertScenario()
	s.Query = ""
	_, err := NewOperation(s, "")
	assert.Error(t, err)

	s = insertScenario()
	s.Operation = "scan"
	_, err = NewOperation(s, "")
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestCloneDetachesParameters(t *testing.T) {
	s := insertScenario()
	s.Parameters = map[string]any{"a": 1}
	c := s.Clone()
	c.Parameters["a"] = 2
	assert.Equal(t, 1, s.Parameters["a"])
}
