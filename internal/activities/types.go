package activities

import (
	"github.com/probelabs/deepscout/internal/db"
	"github.com/probelabs/deepscout/internal/models"
	"github.com/probelabs/deepscout/internal/streaming"
)

type ClarifyQueryInput struct {
	Query string `json:"query"`
}

type ClarifyQueryResult struct {
	NeedsClarification bool   `json:"needs_clarification"`
	Prompt             string `json:"prompt,omitempty"`
	Verification       string `json:"verification,omitempty"`
	TokensUsed         int    `json:"tokens_used"`
}

type PlanResearchInput struct {
	Query          string   `json:"query"`
	Clarification  string   `json:"clarification,omitempty"`
	CycleSummaries []string `json:"cycle_summaries,omitempty"`
	NextDirections []string `json:"next_directions,omitempty"`
	MinQuestions   int      `json:"min_questions"`
	MaxQuestions   int      `json:"max_questions"`
}

type PlanResearchResult struct {
	Focus     string   `json:"focus"`
	Questions []string `json:"questions"`
	// Degraded marks a best-effort plan kept after the corrective retry
	// still produced out-of-bounds output.
	Degraded   bool `json:"degraded,omitempty"`
	TokensUsed int  `json:"tokens_used"`
}

type GenerateQueriesInput struct {
	Focus     string   `json:"focus"`
	Questions []string `json:"questions"`
	Iteration int      `json:"iteration"`
}

type GenerateQueriesResult struct {
	Queries    []string `json:"queries"`
	TokensUsed int      `json:"tokens_used"`
}

type RetrieveSourcesInput struct {
	Queries   []string `json:"queries"`
	KnownURLs []string `json:"known_urls,omitempty"`
}

type RetrieveSourcesResult struct {
	Sources       []models.Source `json:"sources"`
	FailedQueries []string        `json:"failed_queries,omitempty"`
}

type SummarizeSourceInput struct {
	Source    models.Source `json:"source"`
	Focus     string        `json:"focus"`
	Questions []string      `json:"questions"`
	CharLimit int           `json:"char_limit"`
}

type SummarizeSourceResult struct {
	Summary    models.PerSourceSummary `json:"summary"`
	TokensUsed int                     `json:"tokens_used"`
}

type CombineSummariesInput struct {
	Focus     string                    `json:"focus"`
	Questions []string                  `json:"questions"`
	PerSource []models.PerSourceSummary `json:"per_source"`
}

type CombineSummariesResult struct {
	Summary    string `json:"summary"`
	TokensUsed int    `json:"tokens_used"`
}

type EvaluateProgressInput struct {
	Focus          string   `json:"focus"`
	Questions      []string `json:"questions"`
	CycleSummaries []string `json:"cycle_summaries"`
}

type EvaluateProgressResult struct {
	Satisfied      bool     `json:"satisfied"`
	Unanswered     []string `json:"unanswered,omitempty"`
	NextDirections []string `json:"next_directions,omitempty"`
	TokensUsed     int      `json:"tokens_used"`
}

type GenerateReportInput struct {
	Query          string          `json:"query"`
	Clarification  string          `json:"clarification,omitempty"`
	Focus          string          `json:"focus"`
	Questions      []string        `json:"questions"`
	CycleSummaries []string        `json:"cycle_summaries"`
	Sources        []models.Source `json:"sources"`
}

type GenerateReportResult struct {
	Report     string `json:"report"`
	TokensUsed int    `json:"tokens_used"`
}

type PersistRunInput struct {
	Record db.RunRecord `json:"record"`
}

type PersistCycleInput struct {
	Cycle   db.CycleRecord  `json:"cycle"`
	Sources []models.Source `json:"sources,omitempty"`
}

type EmitEventInput struct {
	Event streaming.Event `json:"event"`
}
