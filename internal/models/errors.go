package models

import (
	"errors"
	"fmt"
)

// Error kinds for the run-level failure taxonomy. Temporal activities wrap
// these so workflows and API handlers can distinguish expected suspensions
// from genuine failures.
var (
	// ErrRunAborted covers caller-level input problems (e.g. max_iterations < 1).
	ErrRunAborted = errors.New("research run aborted")

	// ErrAllQueriesFailed is raised when every search query in a cycle failed
	// and no sources were obtained. Partial failure is tolerated; total
	// failure is a cycle-level error.
	ErrAllQueriesFailed = errors.New("all search queries failed")

	// ErrPlanningMalformed marks planner/evaluator output that did not match
	// the expected schema even after the corrective retry.
	ErrPlanningMalformed = errors.New("planning output malformed")
)

// ReasoningError wraps a failure of the reasoning service (provider, network,
// timeout, or empty completion).
type ReasoningError struct {
	Tier string
	Op   string
	Err  error
}

func (e *ReasoningError) Error() string {
	return fmt.Sprintf("reasoning %s (tier=%s): %v", e.Op, e.Tier, e.Err)
}

func (e *ReasoningError) Unwrap() error { return e.Err }

// SearchError wraps a search provider failure for a single query.
type SearchError struct {
	Query string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %q: %v", e.Query, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }
