package workflows

import (
	"time"

	"github.com/probelabs/deepscout/internal/models"
)

const (
	// SignalClarification delivers the caller's clarification while the
	// workflow is suspended waiting for it.
	SignalClarification = "clarification"
	// QueryStatus exposes a run snapshot to the API layer.
	QueryStatus = "status"

	TaskQueue = "deepscout-research"
)

// RunConfig carries the deterministic knobs a run needs. It travels in the
// workflow input so replays see the same values.
type RunConfig struct {
	SummaryConcurrency   int           `json:"summary_concurrency"`
	ClarificationTimeout time.Duration `json:"clarification_timeout"`
	MinQuestions         int           `json:"min_questions"`
	MaxQuestions         int           `json:"max_questions"`
	SourceCharLimit      int           `json:"source_char_limit"`
}

func (c *RunConfig) applyDefaults() {
	if c.SummaryConcurrency < 1 {
		c.SummaryConcurrency = 5
	}
	if c.ClarificationTimeout <= 0 {
		c.ClarificationTimeout = 10 * time.Minute
	}
	if c.MinQuestions < 1 {
		c.MinQuestions = 3
	}
	if c.MaxQuestions < c.MinQuestions {
		c.MaxQuestions = c.MinQuestions + 2
	}
	if c.SourceCharLimit <= 0 {
		c.SourceCharLimit = 2000
	}
}

type ResearchInput struct {
	RunID string `json:"run_id"`
	Query string `json:"query"`
	// Clarification pre-fills the answer on re-invocation; a non-empty value
	// skips the clarification ask entirely.
	Clarification string    `json:"clarification,omitempty"`
	MaxIterations int       `json:"max_iterations"`
	Config        RunConfig `json:"config"`
}

type ResearchResult struct {
	Status              models.RunStatus `json:"status"`
	Report              string           `json:"report,omitempty"`
	ClarificationPrompt string           `json:"clarification_prompt,omitempty"`
	Iterations          int              `json:"iterations"`
	SourceCount         int              `json:"source_count"`
	TokensUsed          int              `json:"tokens_used"`
}

// StatusSnapshot is the QueryStatus reply.
type StatusSnapshot struct {
	Status              models.RunStatus `json:"status"`
	ClarificationPrompt string           `json:"clarification_prompt,omitempty"`
	Iteration           int              `json:"iteration"`
	MaxIterations       int              `json:"max_iterations"`
	SourceCount         int              `json:"source_count"`
	Satisfied           bool             `json:"satisfied"`
	Report              string           `json:"report,omitempty"`
}
