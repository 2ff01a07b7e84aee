// Package workflows contains the research run controller. ResearchWorkflow
// drives the full pipeline as one durable state machine: clarify, then loop
// plan -> generate queries -> retrieve -> summarize (map/reduce) -> evaluate
// until the evaluator is satisfied or the iteration cap forces termination,
// then synthesize the report.
package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/probelabs/deepscout/internal/activities"
	"github.com/probelabs/deepscout/internal/db"
	"github.com/probelabs/deepscout/internal/models"
	"github.com/probelabs/deepscout/internal/streaming"
)

func ResearchWorkflow(ctx workflow.Context, input ResearchInput) (ResearchResult, error) {
	logger := workflow.GetLogger(ctx)
	input.Config.applyDefaults()
	if input.RunID == "" {
		input.RunID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}

	if input.MaxIterations < 1 {
		return ResearchResult{Status: models.RunStatusFailed},
			temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("max_iterations must be >= 1, got %d", input.MaxIterations),
				"RunAborted", models.ErrRunAborted)
	}

	state := models.NewResearchState(input.Query, input.Clarification, input.MaxIterations)
	status := models.RunStatusRunning
	clarificationPrompt := ""
	tokensUsed := 0

	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (StatusSnapshot, error) {
		return StatusSnapshot{
			Status:              status,
			ClarificationPrompt: clarificationPrompt,
			Iteration:           state.Iteration,
			MaxIterations:       state.MaxIterations,
			SourceCount:         len(state.Sources),
			Satisfied:           state.Satisfied,
			Report:              state.Report,
		}, nil
	}); err != nil {
		return ResearchResult{Status: models.RunStatusFailed}, err
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	emit(ctx, streaming.Event{RunID: input.RunID, Type: streaming.EventRunStarted, Message: input.Query})
	persistRun(ctx, input, state, status, clarificationPrompt, "")

	// Clarification pass. A pre-supplied clarification skips the ask; the
	// clarifier itself fails open.
	if state.Clarification == "" {
		var clarify activities.ClarifyQueryResult
		if err := workflow.ExecuteActivity(ctx, activities.ActivityClarifyQuery,
			activities.ClarifyQueryInput{Query: state.Query}).Get(ctx, &clarify); err != nil {
			logger.Warn("clarifier unavailable, starting research without it", "error", err)
		}
		tokensUsed += clarify.TokensUsed

		if clarify.NeedsClarification {
			clarificationPrompt = clarify.Prompt
			status = models.RunStatusNeedsClarification
			emit(ctx, streaming.Event{
				RunID:   input.RunID,
				Type:    streaming.EventClarificationRequested,
				Message: clarify.Prompt,
			})
			persistRun(ctx, input, state, status, clarificationPrompt, "")

			answer, ok := awaitClarification(ctx, input.Config.ClarificationTimeout)
			if !ok {
				logger.Info("clarification timed out, suspending run",
					"run_id", input.RunID)
				return ResearchResult{
					Status:              models.RunStatusNeedsClarification,
					ClarificationPrompt: clarificationPrompt,
					TokensUsed:          tokensUsed,
				}, nil
			}
			state.Clarification = answer
			status = models.RunStatusRunning
			emit(ctx, streaming.Event{RunID: input.RunID, Type: streaming.EventClarificationReceived})
			persistRun(ctx, input, state, status, clarificationPrompt, "")
		}
	}

	var nextDirections []string
	for {
		// PLANNING
		var plan activities.PlanResearchResult
		if err := workflow.ExecuteActivity(ctx, activities.ActivityPlanResearch, activities.PlanResearchInput{
			Query:          state.Query,
			Clarification:  state.Clarification,
			CycleSummaries: state.CycleSummaries,
			NextDirections: nextDirections,
			MinQuestions:   input.Config.MinQuestions,
			MaxQuestions:   input.Config.MaxQuestions,
		}).Get(ctx, &plan); err != nil {
			return failRun(ctx, input, state, clarificationPrompt, tokensUsed, fmt.Errorf("research planning failed: %w", err))
		}
		tokensUsed += plan.TokensUsed
		state.Focus = plan.Focus
		state.ResearchQuestions = plan.Questions
		emit(ctx, streaming.Event{
			RunID:     input.RunID,
			Type:      streaming.EventPlanReady,
			Iteration: state.Iteration + 1,
			Message:   plan.Focus,
			Payload:   map[string]any{"questions": plan.Questions, "degraded": plan.Degraded},
		})

		// QUERY GENERATION
		var gen activities.GenerateQueriesResult
		if err := workflow.ExecuteActivity(ctx, activities.ActivityGenerateQueries, activities.GenerateQueriesInput{
			Focus:     state.Focus,
			Questions: state.ResearchQuestions,
			Iteration: state.Iteration,
		}).Get(ctx, &gen); err != nil {
			return failRun(ctx, input, state, clarificationPrompt, tokensUsed, fmt.Errorf("query generation failed: %w", err))
		}
		tokensUsed += gen.TokensUsed
		state.SearchQueries = gen.Queries
		emit(ctx, streaming.Event{
			RunID:     input.RunID,
			Type:      streaming.EventQueriesGenerated,
			Iteration: state.Iteration + 1,
			Payload:   map[string]any{"queries": gen.Queries},
		})

		// RETRIEVAL
		var retrieved activities.RetrieveSourcesResult
		if err := workflow.ExecuteActivity(ctx, activities.ActivityRetrieveSources, activities.RetrieveSourcesInput{
			Queries:   state.SearchQueries,
			KnownURLs: knownURLList(state),
		}).Get(ctx, &retrieved); err != nil {
			return failRun(ctx, input, state, clarificationPrompt, tokensUsed, fmt.Errorf("retrieval failed: %w", err))
		}
		// Single-writer merge: only this loop appends to state.Sources.
		added := state.MergeSources(retrieved.Sources)
		emit(ctx, streaming.Event{
			RunID:     input.RunID,
			Type:      streaming.EventSourcesRetrieved,
			Iteration: state.Iteration + 1,
			Payload: map[string]any{
				"new_sources":    added,
				"total_sources":  len(state.Sources),
				"failed_queries": retrieved.FailedQueries,
			},
		})

		// SUMMARIZATION: bounded fan-out over this cycle's new sources, then
		// a barrier before the reduce. Every submitted task settles exactly
		// once; failures become placeholders instead of stalling the barrier.
		cycleSources := retrieved.Sources
		summaries := make([]models.PerSourceSummary, len(cycleSources))
		sem := workflow.NewSemaphore(ctx, int64(input.Config.SummaryConcurrency))
		wg := workflow.NewWaitGroup(ctx)
		for i := range cycleSources {
			i := i
			src := cycleSources[i]
			wg.Add(1)
			workflow.Go(ctx, func(gctx workflow.Context) {
				defer wg.Done()
				if err := sem.Acquire(gctx, 1); err != nil {
					summaries[i] = placeholderSummary(src)
					return
				}
				defer sem.Release(1)
				var sres activities.SummarizeSourceResult
				err := workflow.ExecuteActivity(gctx, activities.ActivitySummarizeSource, activities.SummarizeSourceInput{
					Source:    src,
					Focus:     state.Focus,
					Questions: state.ResearchQuestions,
					CharLimit: input.Config.SourceCharLimit,
				}).Get(gctx, &sres)
				if err != nil {
					logger.Warn("source summarization failed, using placeholder",
						"url", src.URL, "error", err)
					summaries[i] = placeholderSummary(src)
					return
				}
				summaries[i] = sres.Summary
				tokensUsed += sres.TokensUsed
			})
		}
		wg.Wait(ctx)

		if len(summaries) > 0 {
			var combined activities.CombineSummariesResult
			if err := workflow.ExecuteActivity(ctx, activities.ActivityCombineSummaries, activities.CombineSummariesInput{
				Focus:     state.Focus,
				Questions: state.ResearchQuestions,
				PerSource: summaries,
			}).Get(ctx, &combined); err != nil {
				return failRun(ctx, input, state, clarificationPrompt, tokensUsed, fmt.Errorf("summary synthesis failed: %w", err))
			}
			tokensUsed += combined.TokensUsed
			state.CycleSummaries = append(state.CycleSummaries, combined.Summary)
		} else {
			logger.Info("cycle produced no new sources", "iteration", state.Iteration+1)
		}

		// Cycle accounting: the counter moves exactly once per cycle, after
		// the reduce barrier and before the evaluator.
		state.Iteration++
		persistCycle(ctx, input, state, cycleSources)
		emit(ctx, streaming.Event{
			RunID:     input.RunID,
			Type:      streaming.EventCycleCompleted,
			Iteration: state.Iteration,
		})

		// EVALUATION. The cap overrides whatever the evaluator would say, so
		// the final cycle skips the call. An evaluator failure below the cap
		// means one more cycle, never a stuck run.
		if state.AtIterationCap() {
			state.Satisfied = true
		} else {
			var verdict activities.EvaluateProgressResult
			if err := workflow.ExecuteActivity(ctx, activities.ActivityEvaluateProgress, activities.EvaluateProgressInput{
				Focus:          state.Focus,
				Questions:      state.ResearchQuestions,
				CycleSummaries: state.CycleSummaries,
			}).Get(ctx, &verdict); err != nil {
				logger.Warn("evaluation failed, continuing research", "error", err)
				state.Satisfied = false
				nextDirections = nil
			} else {
				tokensUsed += verdict.TokensUsed
				state.Satisfied = verdict.Satisfied
				nextDirections = verdict.NextDirections
			}
		}
		emit(ctx, streaming.Event{
			RunID:     input.RunID,
			Type:      streaming.EventEvaluated,
			Iteration: state.Iteration,
			Payload:   map[string]any{"satisfied": state.Satisfied},
		})

		if state.Satisfied {
			break
		}
	}

	// REPORTING. Failure here fails the run; there is no partial report.
	var report activities.GenerateReportResult
	if err := workflow.ExecuteActivity(ctx, activities.ActivityGenerateReport, activities.GenerateReportInput{
		Query:          state.Query,
		Clarification:  state.Clarification,
		Focus:          state.Focus,
		Questions:      state.ResearchQuestions,
		CycleSummaries: state.CycleSummaries,
		Sources:        state.Sources,
	}).Get(ctx, &report); err != nil {
		return failRun(ctx, input, state, clarificationPrompt, tokensUsed, fmt.Errorf("report generation failed: %w", err))
	}
	tokensUsed += report.TokensUsed
	state.Report = report.Report
	status = models.RunStatusCompleted

	persistRun(ctx, input, state, status, clarificationPrompt, "")
	emit(ctx, streaming.Event{
		RunID:     input.RunID,
		Type:      streaming.EventReportReady,
		Iteration: state.Iteration,
	})

	return ResearchResult{
		Status:      models.RunStatusCompleted,
		Report:      state.Report,
		Iterations:  state.Iteration,
		SourceCount: len(state.Sources),
		TokensUsed:  tokensUsed,
	}, nil
}

// awaitClarification blocks on the clarification signal until the timeout.
func awaitClarification(ctx workflow.Context, timeout time.Duration) (string, bool) {
	var answer string
	received := false

	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	timer := workflow.NewTimer(timerCtx, timeout)
	sigCh := workflow.GetSignalChannel(ctx, SignalClarification)

	sel := workflow.NewSelector(ctx)
	sel.AddReceive(sigCh, func(c workflow.ReceiveChannel, _ bool) {
		c.Receive(ctx, &answer)
		received = true
	})
	sel.AddFuture(timer, func(workflow.Future) {})
	sel.Select(ctx)
	cancelTimer()

	return answer, received
}

func placeholderSummary(src models.Source) models.PerSourceSummary {
	return models.PerSourceSummary{
		SourceURL: src.URL,
		Title:     src.Title,
		Summary:   "Summary unavailable: source could not be processed.",
		Failed:    true,
	}
}

func knownURLList(state *models.ResearchState) []string {
	urls := make([]string, 0, len(state.Sources))
	for _, s := range state.Sources {
		urls = append(urls, s.URL)
	}
	return urls
}

// emit publishes a run event without blocking run progress.
func emit(ctx workflow.Context, evt streaming.Event) {
	dctx, _ := workflow.NewDisconnectedContext(ctx)
	workflow.ExecuteActivity(dctx, activities.ActivityEmitEvent, activities.EmitEventInput{Event: evt})
}

func persistRun(ctx workflow.Context, input ResearchInput, state *models.ResearchState, status models.RunStatus, prompt, errMsg string) {
	dctx, _ := workflow.NewDisconnectedContext(ctx)
	rec := db.RunRecord{
		RunID:               input.RunID,
		Query:               state.Query,
		Clarification:       state.Clarification,
		Status:              string(status),
		ClarificationPrompt: prompt,
		Report:              state.Report,
		Iterations:          state.Iteration,
		SourceCount:         len(state.Sources),
		ErrorMessage:        errMsg,
	}
	if status == models.RunStatusCompleted || status == models.RunStatusFailed {
		now := workflow.Now(ctx).UTC()
		rec.CompletedAt = &now
	}
	workflow.ExecuteActivity(dctx, activities.ActivityPersistRun, activities.PersistRunInput{Record: rec})
}

func persistCycle(ctx workflow.Context, input ResearchInput, state *models.ResearchState, cycleSources []models.Source) {
	dctx, _ := workflow.NewDisconnectedContext(ctx)
	summary := ""
	if len(state.CycleSummaries) > 0 {
		summary = state.CycleSummaries[len(state.CycleSummaries)-1]
	}
	workflow.ExecuteActivity(dctx, activities.ActivityPersistCycle, activities.PersistCycleInput{
		Cycle: db.CycleRecord{
			RunID:     input.RunID,
			Iteration: state.Iteration,
			Focus:     state.Focus,
			Questions: state.ResearchQuestions,
			Queries:   state.SearchQueries,
			Summary:   summary,
			Satisfied: state.Satisfied,
		},
		Sources: cycleSources,
	})
}

func failRun(ctx workflow.Context, input ResearchInput, state *models.ResearchState, prompt string, tokens int, err error) (ResearchResult, error) {
	workflow.GetLogger(ctx).Error("research run failed",
		"run_id", input.RunID, "iteration", state.Iteration, "error", err)
	persistRun(ctx, input, state, models.RunStatusFailed, prompt, err.Error())
	emit(ctx, streaming.Event{
		RunID:     input.RunID,
		Type:      streaming.EventRunFailed,
		Iteration: state.Iteration,
		Message:   err.Error(),
	})
	return ResearchResult{
		Status:      models.RunStatusFailed,
		Iterations:  state.Iteration,
		SourceCount: len(state.Sources),
		TokensUsed:  tokens,
	}, err
}
