package report

import (
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"graphbench/benchmark"
	"graphbench/stats"
	"graphbench/util"
)

// LogSink logs a summary event per scenario and, at debug level, the latency histogram
// of its samples.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink logs to logger, or to the global logger when nil.
func NewLogSink(logger *zerolog.Logger) *LogSink {
	l := zlog.Logger
	if logger != nil {
		l = *logger
	}
	return &LogSink{log: l.With().Str("component", "report").Logger()}
}

func (s *LogSink) WriteResult(row Row) error {
	r := row.Result
	ev := s.log.Info()
	if row.Status == StatusAborted {
		ev = s.log.Warn()
	}
	ev.Str("run", row.RunID).
		Str("scenario", row.Scenario).
		Str("operation", string(row.Operation)).
		Int("concurrency", row.Concurrency).
		Int("samples", r.SampleCount).
		Int("failures", r.FailureCount).
		Str("status", string(row.Status)).
		Float64("total_ms", util.Millis(r.Total)).
		Float64("avg_ms", util.Millis(r.Mean)).
		Float64("p95_ms", util.Millis(r.P95)).
		Float64("p99_ms", util.Millis(r.P99)).
		Float64("tps", r.Throughput()).
		Msg("Scenario summary")
	return nil
}

func (s *LogSink) WriteSamples(scenario string, concurrency int, samples []benchmark.TimingSample) error {
	if s.log.GetLevel() > zerolog.DebugLevel || zerolog.GlobalLevel() > zerolog.DebugLevel {
		return nil
	}
	for _, b := range stats.Histogram(samples) {
		s.log.Debug().Str("scenario", scenario).Int("concurrency", concurrency).
			Dur("low", b.Low).Dur("high", b.High).Int64("count", b.Count).Msg("Latency bucket")
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
