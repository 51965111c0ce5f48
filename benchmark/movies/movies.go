package movies

import (
	"context"
	"fmt"
	"strconv"

	zlog "github.com/rs/zerolog/log"

	"graphbench/benchmark"
	"graphbench/connection"
)

const (
	// Actors who appeared in 'The Matrix'
	QuerySimple = `MATCH (p:Person)-[:ACTED_IN]->(m:Movie {title: $title})
RETURN p.name`

	// Pairs of actors who appeared in the same movie
	QueryComplex = `MATCH (p1:Person)-[:ACTED_IN]->(m:Movie)<-[:ACTED_IN]-(p2:Person)
WHERE p1.name <> p2.name
RETURN DISTINCT p1.name, p2.name`

	// Collaboration chains starting from one actor
	QueryPath = `MATCH p=shortestPath((p1:Person {name: $name})-[:ACTED_IN*]-(p2:Person))
WHERE p1 <> p2
RETURN p2.name, length(p)`

	QueryInsert = `MERGE (p:Person {name: $name})`

	queryCleanup = `MATCH (p:Person) WHERE p.name STARTS WITH $prefix DETACH DELETE p`
)

// Movies is the movie-graph workload: three read shapes and a MERGE insert.
type Movies struct {
	Title        string `yaml:"title" toml:"title"`
	Actor        string `yaml:"actor" toml:"actor"`
	SimpleIters  int    `yaml:"simpleIterations" toml:"simpleIterations"`
	ComplexIters int    `yaml:"complexIterations" toml:"complexIterations"`
	InsertIters  int    `yaml:"insertIterations" toml:"insertIterations"`
	Workers      int    `yaml:"workers" toml:"workers"`
}

func New() *Movies {
	return &Movies{
		Title:        "The Matrix",
		Actor:        "Keanu Reeves",
		SimpleIters:  1000,
		ComplexIters: 500,
		InsertIters:  1000,
		Workers:      10,
	}
}

func (m *Movies) log(msg string) {
	zlog.Info().Str("benchmark", "movies").Msg(msg)
}

func (m *Movies) Name() string {
	return "movies"
}

// Scenarios returns the default run: every read shape single-threaded, the simple and
// complex reads again on a worker pool, then the inserts.
func (m *Movies) Scenarios() []benchmark.Scenario {
	titleParams := func() map[string]any { return map[string]any{"title": m.Title} }

	return []benchmark.Scenario{
		{Name: "simple_single", Operation: benchmark.ReadSimple, Iterations: m.SimpleIters, Concurrency: 1,
			Query: QuerySimple, Parameters: titleParams()},
		{Name: "complex_single", Operation: benchmark.ReadComplex, Iterations: m.ComplexIters, Concurrency: 1,
			Query: QueryComplex, Parameters: map[string]any{}},
		{Name: "path_single", Operation: benchmark.ReadPath, Iterations: m.ComplexIters, Concurrency: 1,
			Query: QueryPath, Parameters: map[string]any{"name": m.Actor}},
		{Name: "simple_multi", Operation: benchmark.ReadSimple, Iterations: m.SimpleIters, Concurrency: m.Workers,
			Query: QuerySimple, Parameters: titleParams()},
		{Name: "complex_multi", Operation: benchmark.ReadComplex, Iterations: m.ComplexIters, Concurrency: m.Workers,
			Query: QueryComplex, Parameters: map[string]any{}},
		{Name: "insert", Operation: benchmark.Insert, Iterations: m.InsertIters, Concurrency: 1,
			Query: QueryInsert, Parameters: map[string]any{
				benchmark.ParamKeyParam:  "name",
				benchmark.ParamKeyPrefix: "Person_",
			}},
	}
}

// Seed statements: the movie read by the simple query and the cast around it. MERGE
// keeps them harmless on a database that already holds the movies dataset.
func (m *Movies) seed() []string {
	return []string{
		`MERGE (m:Movie {title: $title}) SET m.released = 1999`,
		`MERGE (m:Movie {title: 'The Devil''s Advocate'}) SET m.released = 1997`,
		`UNWIND $cast AS name
MERGE (p:Person {name: name})
WITH p
MATCH (m:Movie {title: $title})
MERGE (p)-[:ACTED_IN]->(m)`,
		`MATCH (p:Person {name: $actor}), (m:Movie {title: 'The Devil''s Advocate'})
MERGE (p)-[:ACTED_IN]->(m)
MERGE (c:Person {name: 'Charlize Theron'})
MERGE (c)-[:ACTED_IN]->(m)`,
	}
}

func (m *Movies) Populate(ctx context.Context, provider connection.Provider) error {
	m.log("Populating")

	session, err := provider.Acquire(ctx)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	params := map[string]any{
		"title": m.Title,
		"actor": m.Actor,
		"cast":  []any{m.Actor, "Carrie-Anne Moss", "Laurence Fishburne", "Hugo Weaving"},
	}
	for i, stmt := range m.seed() {
		if _, err := session.ExecuteWrite(ctx, stmt, params); err != nil {
			return fmt.Errorf("seed statement %d: %w", i, err)
		}
	}

	m.log("Populate done")
	return nil
}

// Finalize deletes the nodes created by insert scenarios of this run.
func (m *Movies) Finalize(ctx context.Context, provider connection.Provider, runID string) error {
	session, err := provider.Acquire(ctx)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	for _, s := range m.Scenarios() {
		if !s.Operation.IsWrite() {
			continue
		}
		prefix := benchmark.KeyPrefix(s, runID)
		summary, err := session.ExecuteWrite(ctx, queryCleanup, map[string]any{"prefix": prefix})
		if err != nil {
			return fmt.Errorf("cleanup %s: %w", s.Name, err)
		}
		zlog.Info().Str("benchmark", "movies").Str("prefix", prefix).
			Int("properties", summary.PropertiesSet).Msg("Cleanup done")
	}
	return nil
}

func (m *Movies) GetConfigs() map[string]string {
	return map[string]string{
		"title":             m.Title,
		"actor":             m.Actor,
		"simpleIterations":  strconv.Itoa(m.SimpleIters),
		"complexIterations": strconv.Itoa(m.ComplexIters),
		"insertIterations":  strconv.Itoa(m.InsertIters),
		"workers":           strconv.Itoa(m.Workers),
	}
}
