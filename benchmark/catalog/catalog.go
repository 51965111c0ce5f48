// Package catalog is the read-only table of named scenarios a run iterates over.
package catalog

import (
	"errors"
	"fmt"

	"graphbench/benchmark"
)

var (
	ErrNotFound  = errors.New("scenario not found")
	ErrDuplicate = errors.New("duplicate scenario name")
)

// NotFoundError names the scenario that was asked for. It matches ErrNotFound.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("scenario %q not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type Catalog struct {
	order  []string
	byName map[string]benchmark.Scenario
}

// New validates every scenario and fixes the catalog order. Scenarios are copied, so
// later changes to the arguments do not leak in.
func New(scenarios ...benchmark.Scenario) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]benchmark.Scenario, len(scenarios))}
	for _, s := range scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, ok := c.byName[s.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, s.Name)
		}
		c.byName[s.Name] = s.Clone()
		c.order = append(c.order, s.Name)
	}
	return c, nil
}

// FromWorkload builds a catalog from a workload's default scenarios.
func FromWorkload(w benchmark.Workload) (*Catalog, error) {
	return New(w.Scenarios()...)
}

func (c *Catalog) Get(name string) (benchmark.Scenario, error) {
	s, ok := c.byName[name]
	if !ok {
		return benchmark.Scenario{}, &NotFoundError{Name: name}
	}
	return s.Clone(), nil
}

// All returns every scenario in catalog order.
func (c *Catalog) All() []benchmark.Scenario {
	out := make([]benchmark.Scenario, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name].Clone())
	}
	return out
}

// Select resolves names in the given order. It fails on the first unknown or repeated
// name, before the caller has started any work.
func (c *Catalog) Select(names ...string) ([]benchmark.Scenario, error) {
	out := make([]benchmark.Scenario, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, name)
		}
		seen[name] = true
		s, err := c.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

func (c *Catalog) Len() int {
	return len(c.order)
}
