package report

import (
	"context"
	"database/sql"

	"graphbench/benchmark"
	dbutils "graphbench/dbUtils"
	"graphbench/util"
)

// StoreSink inserts one row per scenario into the benchmark_results table.
type StoreSink struct {
	db  *sql.DB
	own bool
}

// OpenStore connects to driver ("sqlite3" or "postgres") and creates the table.
func OpenStore(ctx context.Context, driver, dsn string) (*StoreSink, error) {
	db, err := dbutils.Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := dbutils.InitDb(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &StoreSink{db: db, own: true}, nil
}

// NewStoreSink writes to an already open database; Close leaves it open.
func NewStoreSink(ctx context.Context, db *sql.DB) (*StoreSink, error) {
	if err := dbutils.InitDb(ctx, db); err != nil {
		return nil, err
	}
	return &StoreSink{db: db}, nil
}

func (s *StoreSink) WriteResult(row Row) error {
	r := row.Result
	return dbutils.InsertResult(context.Background(), s.db, dbutils.ResultRow{
		RunID:       row.RunID,
		Timestamp:   row.Timestamp,
		Scenario:    row.Scenario,
		Operation:   string(row.Operation),
		Iterations:  row.Iterations,
		Concurrency: row.Concurrency,
		Samples:     r.SampleCount,
		Success:     r.SuccessCount,
		Failures:    r.FailureCount,
		Status:      string(row.Status),
		TotalMs:     util.Millis(r.Total),
		OpsPerSec:   r.Throughput(),
		MeanMs:      util.Millis(r.Mean),
		MinMs:       util.Millis(r.Min),
		P50Ms:       util.Millis(r.P50),
		P95Ms:       util.Millis(r.P95),
		P99Ms:       util.Millis(r.P99),
		MaxMs:       util.Millis(r.Max),
	})
}

func (s *StoreSink) WriteSamples(string, int, []benchmark.TimingSample) error { return nil }

func (s *StoreSink) Close() error {
	if !s.own {
		return nil
	}
	return s.db.Close()
}
