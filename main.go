package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"graphbench/benchmark"
	"graphbench/benchmark/catalog"
	"graphbench/benchmark/movies"
	"graphbench/config"
	"graphbench/connection"
	"graphbench/orchestrator"
	"graphbench/report"
	"graphbench/worker"
)

// Prepare zerolog
func setupLogging(disableLog bool, level string, console bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var zlevel zerolog.Level
	if disableLog {
		zlevel = zerolog.Disabled
	} else if level == "debug" {
		zlevel = zerolog.DebugLevel
	} else {
		zlevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(zlevel)
	if console {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// Reads the config file and lets the command line flags override it
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("conf")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("level")
	}
	if cmd.Flags().Changed("no-log") {
		cfg.Log.Disabled, _ = cmd.Flags().GetBool("no-log")
	}
	if cmd.Flags().Changed("scenario") {
		cfg.Run.Scenarios, _ = cmd.Flags().GetStringSlice("scenario")
	}
	if cmd.Flags().Changed("samples") {
		cfg.Output.Samples, _ = cmd.Flags().GetString("samples")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Scenarios from the config file replace the movie scenarios
func buildCatalog(cfg *config.Config, w benchmark.Workload) (*catalog.Catalog, error) {
	if len(cfg.Scenarios) > 0 {
		return catalog.New(cfg.Scenarios...)
	}
	return catalog.FromWorkload(w)
}

func createProvider(ctx context.Context, cfg *config.Config) (*connection.Neo4jProvider, error) {
	c := cfg.Connection
	return connection.Open(ctx, connection.Options{
		URI:            c.URI,
		User:           c.User,
		Password:       c.Password,
		Database:       c.Database,
		MaxPoolSize:    c.MaxPoolSize,
		AcquireTimeout: c.AcquireTimeout,
		ConnectTimeout: c.ConnectTimeout,
		RetryTime:      c.RetryTime,
	})
}

// The log sink is always present; CSV and the SQL store only when configured
func createSinks(ctx context.Context, cfg *config.Config) (report.Sink, error) {
	sinks := []report.Sink{report.NewLogSink(nil)}
	if cfg.Output.CSV != "" {
		csvSink, err := report.OpenCSV(cfg.Output.CSV, cfg.Output.Samples)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, csvSink)
	}
	if cfg.Output.Store.Driver != "" {
		store, err := report.OpenStore(ctx, cfg.Output.Store.Driver, cfg.Output.Store.DSN)
		if err != nil {
			return nil, errors.Join(err, report.Multi(sinks...).Close())
		}
		sinks = append(sinks, store)
	}
	return report.Multi(sinks...), nil
}

// Prints what completed and what did not
func printSummary(rep *orchestrator.Report, w benchmark.Workload, runErr error) {
	if rep == nil {
		return
	}
	configs := w.GetConfigs()
	keys := make([]string, 0, len(configs))
	for k := range configs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := fmt.Sprintf("run: %s\nworkload: %s", rep.RunID, w.Name())
	for _, k := range keys {
		kv += fmt.Sprintf("\n%s: %s", k, configs[k])
	}
	for _, row := range rep.Completed {
		r := row.Result
		kv += fmt.Sprintf("\n%s: total %s, avg %s, p95 %s, failures %d/%d",
			row.Scenario, r.Total, r.Mean, r.P95, r.FailureCount, r.SampleCount)
	}
	if rep.Aborted != nil {
		kv += fmt.Sprintf("\n%s: aborted after %d samples", rep.Aborted.Scenario, rep.Aborted.Result.SampleCount)
	}
	if len(rep.Skipped) > 0 {
		kv += "\nskipped: " + strings.Join(rep.Skipped, ",")
	}
	if runErr != nil {
		kv += "\nerror: " + runErr.Error()
	}
	fmt.Println(kv)
}

func runBenchmark(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Disabled, cfg.Log.Level, cfg.Log.Console)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := movies.New()
	cat, err := buildCatalog(cfg, w)
	if err != nil {
		return err
	}
	scenarios := cat.All()
	if len(cfg.Run.Scenarios) > 0 {
		if scenarios, err = cat.Select(cfg.Run.Scenarios...); err != nil {
			return err
		}
	}

	provider, err := createProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, provider.Close(context.WithoutCancel(ctx)))
	}()

	sink, err := createSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sink.Close())
	}()

	runner := worker.NewRunner(provider, worker.Options{
		CallTimeout:      cfg.Run.CallTimeout,
		FailureThreshold: cfg.Run.FailureThreshold,
		TraceOperations:  cfg.Run.Trace,
	})
	o := orchestrator.New(provider, runner, sink, orchestrator.Options{
		Workload: w,
		Populate: cfg.Run.Populate,
		Cleanup:  cfg.Run.Cleanup,
	})

	rep, runErr := o.Run(ctx, scenarios)
	printSummary(rep, w, runErr)
	return runErr
}

func listScenarios(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("conf")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	cat, err := buildCatalog(cfg, movies.New())
	if err != nil {
		return err
	}
	for _, s := range cat.All() {
		fmt.Fprintln(cmd.OutOrStdout(), s.String())
	}
	return nil
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "graphbench",
		Short:         "Latency and throughput benchmarks for Neo4j",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("conf", "", "Benchmark config file (yaml or toml)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark scenarios",
		Args:  cobra.NoArgs,
		RunE:  runBenchmark,
	}
	runCmd.Flags().Bool("no-log", false, "Disables the log")
	runCmd.Flags().String("level", config.DefaultLogLevel, "Log level (info|debug)")
	runCmd.Flags().StringSlice("scenario", nil, "Run only these scenarios, in this order (repeatable)")
	runCmd.Flags().String("samples", "", "Write raw samples to this CSV file")
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "scenarios",
		Short: "List the scenarios of the catalog",
		Args:  cobra.NoArgs,
		RunE:  listScenarios,
	})

	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		zlog.Error().Err(err).Msg("graphbench failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
