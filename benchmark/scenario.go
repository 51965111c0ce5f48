package benchmark

import (
	"errors"
	"fmt"
	"strings"

	"graphbench/util"
)

type OperationKind string

const (
	ReadSimple  OperationKind = "read_simple"
	ReadComplex OperationKind = "read_complex"
	ReadPath    OperationKind = "read_path"
	Insert      OperationKind = "insert"
)

var ErrUnknownOperation = errors.New("unknown operation")

// ParseOperationKind accepts the canonical names, case-insensitively.
func ParseOperationKind(s string) (OperationKind, error) {
	k := OperationKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case ReadSimple, ReadComplex, ReadPath, Insert:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}

func (k OperationKind) IsWrite() bool {
	return k == Insert
}

func (k *OperationKind) UnmarshalText(text []byte) error {
	parsed, err := ParseOperationKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k OperationKind) MarshalText() ([]byte, error) {
	return []byte(k), nil
}

// Scenario is a named, parameterized workload definition. Treat it as a value: the
// catalog hands out copies.
type Scenario struct {
	Name        string         `yaml:"name" toml:"name"`
	Operation   OperationKind  `yaml:"operation" toml:"operation"`
	Iterations  int            `yaml:"iterations" toml:"iterations"`
	Concurrency int            `yaml:"concurrency" toml:"concurrency"`
	Query       string         `yaml:"query" toml:"query"`
	Parameters  map[string]any `yaml:"parameters" toml:"parameters"`
}

var ErrInvalidScenario = errors.New("invalid scenario")

func (s Scenario) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidScenario)
	case s.Iterations <= 0:
		return fmt.Errorf("%w %q: iterations must be > 0, got %d", ErrInvalidScenario, s.Name, s.Iterations)
	case s.Concurrency < 1:
		return fmt.Errorf("%w %q: concurrency must be >= 1, got %d", ErrInvalidScenario, s.Name, s.Concurrency)
	case s.Query == "":
		return fmt.Errorf("%w %q: missing query", ErrInvalidScenario, s.Name)
	}
	if _, err := ParseOperationKind(string(s.Operation)); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidScenario, s.Name, err)
	}
	return nil
}

// Clone returns a copy whose parameter map is not shared with s.
func (s Scenario) Clone() Scenario {
	s.Parameters = util.CloneMap(s.Parameters)
	return s
}

func (s Scenario) String() string {
	return fmt.Sprintf("%s(%s x%d c%d)", s.Name, s.Operation, s.Iterations, s.Concurrency)
}
