// Package activities implements the research pipeline nodes executed by the
// workflow: clarification, planning, query generation, retrieval,
// summarization (map and reduce), evaluation and report synthesis, plus
// persistence and event emission.
package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/probelabs/deepscout/internal/config"
	"github.com/probelabs/deepscout/internal/db"
	"github.com/probelabs/deepscout/internal/llm"
	"github.com/probelabs/deepscout/internal/models"
	"github.com/probelabs/deepscout/internal/streaming"
)

// Activity names registered with the worker and referenced by the workflow.
const (
	ActivityClarifyQuery     = "ClarifyQuery"
	ActivityPlanResearch     = "PlanResearch"
	ActivityGenerateQueries  = "GenerateSearchQueries"
	ActivityRetrieveSources  = "RetrieveSources"
	ActivitySummarizeSource  = "SummarizeSource"
	ActivityCombineSummaries = "CombineSummaries"
	ActivityEvaluateProgress = "EvaluateProgress"
	ActivityGenerateReport   = "GenerateReport"
	ActivityPersistRun       = "PersistRun"
	ActivityPersistCycle     = "PersistCycle"
	ActivityEmitEvent        = "EmitResearchEvent"
)

// Reasoner is the subset of the llm.Service used by activities.
type Reasoner interface {
	Complete(ctx context.Context, tier llm.Tier, op, system, user string) (string, int, error)
}

// Searcher executes one search query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.Source, error)
}

// Activities bundles node implementations with their dependencies. A nil db
// client or stream manager disables the corresponding support activities.
type Activities struct {
	reasoner Reasoner
	searcher Searcher
	store    *db.Client
	stream   *streaming.Manager
	cfg      config.ResearchConfig
	logger   *zap.Logger
}

func NewActivities(
	reasoner Reasoner,
	searcher Searcher,
	store *db.Client,
	stream *streaming.Manager,
	cfg config.ResearchConfig,
	logger *zap.Logger,
) *Activities {
	return &Activities{
		reasoner: reasoner,
		searcher: searcher,
		store:    store,
		stream:   stream,
		cfg:      cfg,
		logger:   logger,
	}
}
