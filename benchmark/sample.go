package benchmark

import "time"

// TimingSample is the outcome of one invocation. Duration covers only the call itself;
// Start and End bound it on the wall clock. Duration is not meaningful when Failed.
type TimingSample struct {
	Scenario  string
	Iteration int
	Start     time.Time
	End       time.Time
	Duration  time.Duration
	Failed    bool
	Err       error
}
