// Package config loads the benchmark configuration from a yaml or toml file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"graphbench/benchmark"
	dbutils "graphbench/dbUtils"
)

// EnvPassword overrides connection.password when set
const EnvPassword = "GRAPHBENCH_PASSWORD"

const (
	DefaultURI              = "bolt://localhost:7687"
	DefaultUser             = "neo4j"
	DefaultMaxPoolSize      = 100
	DefaultAcquireTimeout   = 60 * time.Second
	DefaultConnectTimeout   = 5 * time.Second
	DefaultFailureThreshold = 0.05
	DefaultLogLevel         = "info"
)

var ErrInvalidConfig = errors.New("invalid config")

type Connection struct {
	URI            string        `yaml:"uri" toml:"uri"`
	User           string        `yaml:"user" toml:"user"`
	Password       string        `yaml:"password" toml:"password"`
	Database       string        `yaml:"database" toml:"database"`
	MaxPoolSize    int           `yaml:"maxPoolSize" toml:"maxPoolSize"`
	AcquireTimeout time.Duration `yaml:"acquireTimeout" toml:"acquireTimeout"`
	ConnectTimeout time.Duration `yaml:"connectTimeout" toml:"connectTimeout"`
	RetryTime      time.Duration `yaml:"retryTime" toml:"retryTime"`
}

type Run struct {
	CallTimeout      time.Duration `yaml:"callTimeout" toml:"callTimeout"`
	FailureThreshold float64       `yaml:"failureThreshold" toml:"failureThreshold"`
	// Subset of scenario names to run, in this order; empty runs the whole catalog
	Scenarios []string `yaml:"scenarios" toml:"scenarios"`
	Populate  bool     `yaml:"populate" toml:"populate"`
	Cleanup   bool     `yaml:"cleanup" toml:"cleanup"`
	Trace     bool     `yaml:"trace" toml:"trace"`
}

type Store struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

type Output struct {
	CSV string `yaml:"csv" toml:"csv"`
	// Raw samples go here when set; leaving it empty writes summaries only
	Samples string `yaml:"samples" toml:"samples"`
	Store   Store  `yaml:"store" toml:"store"`
}

type Log struct {
	Level    string `yaml:"level" toml:"level"`
	Disabled bool   `yaml:"disabled" toml:"disabled"`
	Console  bool   `yaml:"console" toml:"console"`
}

type Config struct {
	Connection Connection `yaml:"connection" toml:"connection"`
	Run        Run        `yaml:"run" toml:"run"`
	// Replaces the built-in movie scenarios when not empty
	Scenarios []benchmark.Scenario `yaml:"scenarios" toml:"scenarios"`
	Output    Output               `yaml:"output" toml:"output"`
	Log       Log                  `yaml:"log" toml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Connection: Connection{
			URI:            DefaultURI,
			User:           DefaultUser,
			MaxPoolSize:    DefaultMaxPoolSize,
			AcquireTimeout: DefaultAcquireTimeout,
			ConnectTimeout: DefaultConnectTimeout,
		},
		Run: Run{
			FailureThreshold: DefaultFailureThreshold,
			Populate:         true,
			Cleanup:          true,
		},
		Log: Log{Level: DefaultLogLevel},
	}
}

// Load reads path on top of the defaults, choosing the decoder by file extension, then
// applies the environment overrides and validates the result. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := Decode(cfg, filepath.Ext(path), data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode unmarshals data in the format named by ext (".yaml", ".yml" or ".toml") into cfg.
func Decode(cfg *Config, ext string, data []byte) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return fmt.Errorf("unsupported config format %q", ext)
}

func (c *Config) applyEnv() {
	if pw, ok := os.LookupEnv(EnvPassword); ok {
		c.Connection.Password = pw
	}
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.Connection.URI != "", "connection.uri is required")
	check(c.Connection.MaxPoolSize > 0, "connection.maxPoolSize must be positive, got %d", c.Connection.MaxPoolSize)
	check(c.Connection.AcquireTimeout >= 0, "connection.acquireTimeout must not be negative")
	check(c.Connection.ConnectTimeout >= 0, "connection.connectTimeout must not be negative")
	check(c.Connection.RetryTime >= 0, "connection.retryTime must not be negative")
	check(c.Run.CallTimeout >= 0, "run.callTimeout must not be negative")
	check(c.Run.FailureThreshold >= 0 && c.Run.FailureThreshold <= 1,
		"run.failureThreshold must be within [0, 1], got %v", c.Run.FailureThreshold)

	switch c.Output.Store.Driver {
	case "":
	case dbutils.DriverSQLite, dbutils.DriverPostgres:
		check(c.Output.Store.DSN != "", "output.store.dsn is required for driver %s", c.Output.Store.Driver)
	default:
		check(false, "output.store.driver %q is not supported", c.Output.Store.Driver)
	}
	check(c.Output.Samples == "" || c.Output.CSV != "", "output.samples requires output.csv")

	switch c.Log.Level {
	case "", "info", "debug":
	default:
		check(false, "log.level %q is not one of info, debug", c.Log.Level)
	}

	for _, s := range c.Scenarios {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
