// Package dbutils holds the SQL plumbing of the results store: opening the database,
// creating the results table and writing or reading result rows.
package dbutils

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// One row of the results table
type ResultRow struct {
	RunID       string
	Timestamp   time.Time
	Scenario    string
	Operation   string
	Iterations  int
	Concurrency int
	Samples     int
	Success     int
	Failures    int
	Status      string
	TotalMs     float64
	OpsPerSec   float64
	MeanMs      float64
	MinMs       float64
	P50Ms       float64
	P95Ms       float64
	P99Ms       float64
	MaxMs       float64
}

const createResults = `
create table if not exists benchmark_results (
	run_id      varchar(64) not null,
	ts          varchar(40) not null,
	scenario    varchar(128) not null,
	operation   varchar(32) not null,
	iterations  integer not null,
	concurrency integer not null,
	samples     integer not null,
	success     integer not null,
	failures    integer not null,
	status      varchar(16) not null,
	total_ms    double precision not null,
	ops_per_sec double precision not null,
	mean_ms     double precision not null,
	min_ms      double precision not null,
	p50_ms      double precision not null,
	p95_ms      double precision not null,
	p99_ms      double precision not null,
	max_ms      double precision not null,
	primary key (run_id, scenario)
)`

// both sqlite3 and postgres accept positional $n placeholders
const insertResult = `
insert into benchmark_results (run_id, ts, scenario, operation, iterations, concurrency,
	samples, success, failures, status, total_ms, ops_per_sec, mean_ms, min_ms, p50_ms,
	p95_ms, p99_ms, max_ms)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

const selectRun = `
select run_id, ts, scenario, operation, iterations, concurrency, samples, success,
	failures, status, total_ms, ops_per_sec, mean_ms, min_ms, p50_ms, p95_ms, p99_ms, max_ms
from benchmark_results where run_id = $1 order by ts, scenario`

// Opens the store and checks it is reachable
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	// results are written one at a time from a single goroutine
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store %s: %w", driver, err)
	}
	return db, nil
}

// Creates the results table if missing
func InitDb(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, createResults)
	return err
}

func InsertResult(ctx context.Context, db *sql.DB, r ResultRow) error {
	_, err := db.ExecContext(ctx, insertResult,
		r.RunID, r.Timestamp.UTC().Format(time.RFC3339Nano), r.Scenario, r.Operation,
		r.Iterations, r.Concurrency, r.Samples, r.Success, r.Failures, r.Status,
		r.TotalMs, r.OpsPerSec, r.MeanMs, r.MinMs, r.P50Ms, r.P95Ms, r.P99Ms, r.MaxMs)
	return err
}

// Returns the rows of one run, oldest first
func RunResults(ctx context.Context, db *sql.DB, runID string) ([]ResultRow, error) {
	rows, err := db.QueryContext(ctx, selectRun, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var r ResultRow
		var ts string
		if err := rows.Scan(&r.RunID, &ts, &r.Scenario, &r.Operation, &r.Iterations,
			&r.Concurrency, &r.Samples, &r.Success, &r.Failures, &r.Status, &r.TotalMs,
			&r.OpsPerSec, &r.MeanMs, &r.MinMs, &r.P50Ms, &r.P95Ms, &r.P99Ms, &r.MaxMs); err != nil {
			return nil, err
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("row %s/%s: %w", r.RunID, r.Scenario, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
