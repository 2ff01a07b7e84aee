package activities

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap/zaptest"

	"github.com/probelabs/deepscout/internal/config"
	"github.com/probelabs/deepscout/internal/llm"
	"github.com/probelabs/deepscout/internal/models"
)

// fakeReasoner scripts per-op replies; a nil entry fails the call.
type fakeReasoner struct {
	replies map[string][]string
	calls   map[string]*int32
	err     error
}

func newFakeReasoner() *fakeReasoner {
	return &fakeReasoner{replies: map[string][]string{}, calls: map[string]*int32{}}
}

func (f *fakeReasoner) script(op string, replies ...string) {
	f.replies[op] = replies
	var n int32
	f.calls[op] = &n
}

func (f *fakeReasoner) Complete(_ context.Context, tier llm.Tier, op, _, _ string) (string, int, error) {
	if f.err != nil {
		return "", 0, &models.ReasoningError{Tier: string(tier), Op: op, Err: f.err}
	}
	counter, ok := f.calls[op]
	if !ok {
		return "", 0, &models.ReasoningError{Tier: string(tier), Op: op, Err: errors.New("unscripted op")}
	}
	n := atomic.AddInt32(counter, 1) - 1
	replies := f.replies[op]
	if int(n) >= len(replies) {
		n = int32(len(replies) - 1)
	}
	return replies[n], 10, nil
}

func (f *fakeReasoner) callCount(op string) int {
	if c, ok := f.calls[op]; ok {
		return int(atomic.LoadInt32(c))
	}
	return 0
}

type fakeSearcher struct {
	results map[string][]models.Source
	failing map[string]bool
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]models.Source, error) {
	if f.failing[query] {
		return nil, &models.SearchError{Query: query, Err: errors.New("provider down")}
	}
	return f.results[query], nil
}

func newTestEnv(t *testing.T, reasoner Reasoner, searcher Searcher) *testsuite.TestActivityEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	acts := NewActivities(reasoner, searcher, nil, nil, config.ResearchConfig{
		DefaultMaxIterations: 3,
		SummaryConcurrency:   5,
		MinQuestions:         3,
		MaxQuestions:         5,
		SourceCharLimit:      2000,
	}, zaptest.NewLogger(t))
	env.RegisterActivity(acts.ClarifyQuery)
	env.RegisterActivity(acts.PlanResearch)
	env.RegisterActivity(acts.GenerateSearchQueries)
	env.RegisterActivity(acts.RetrieveSources)
	env.RegisterActivity(acts.SummarizeSource)
	env.RegisterActivity(acts.CombineSummaries)
	env.RegisterActivity(acts.EvaluateProgress)
	env.RegisterActivity(acts.GenerateReport)
	return env
}

func TestClarifyQueryRequestsClarification(t *testing.T) {
	reasoner := newFakeReasoner()
	reasoner.script("clarify", `{"need_clarification": true, "question": "Which region and era?", "verification": ""}`)
	env := newTestEnv(t, reasoner, nil)

	val, err := env.ExecuteActivity("ClarifyQuery", ClarifyQueryInput{Query: "Tell me about past wars."})
	require.NoError(t, err)
	var res ClarifyQueryResult
	require.NoError(t, val.Get(&res))
	assert.True(t, res.NeedsClarification)
	assert.Equal(t, "Which region and era?", res.Prompt)
}

func TestClarifyQueryPassesClearQuery(t *testing.T) {
	reasoner := newFakeReasoner()
	reasoner.script("clarify", `{"need_clarification": false, "question": "", "verification": "Starting research now."}`)
	env := newTestEnv(t, reasoner, nil)

	val, err := env.ExecuteActivity("ClarifyQuery", ClarifyQueryInput{Query: "Key events before the Ukraine conflict since 2014"})
	require.NoError(t, err)
	var res ClarifyQueryResult
	require.NoError(t, val.Get(&res))
	assert.False(t, res.NeedsClarification)
	assert.Equal(t, "Starting research now.", res.Verification)
}

func TestClarifyQueryFailsOpen(t *testing.T) {
	for name, reasoner := range map[string]*fakeReasoner{
		"reasoner error": func() *fakeReasoner { r := newFakeReasoner(); r.err = errors.New("boom"); return r }(),
		"garbled output": func() *fakeReasoner { r := newFakeReasoner(); r.script("clarify", "not json at all"); return r }(),
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, reasoner, nil)
			val, err := env.ExecuteActivity("ClarifyQuery", ClarifyQueryInput{Query: "anything"})
			require.NoError(t, err)
			var res ClarifyQueryResult
			require.NoError(t, val.Get(&res))
			assert.False(t, res.NeedsClarification)
		})
	}
}

func TestPlanResearchParsesPlan(t *testing.T) {
	reasoner := newFakeReasoner()
	reasoner.script("plan", `{"focus": "economic impact", "questions": ["q1", "q2", "q3"]}`)
	env := newTestEnv(t, reasoner, nil)

	val, err := env.ExecuteActivity("PlanResearch", PlanResearchInput{
		Query: "ukraine conflict", MinQuestions: 3, MaxQuestions: 5,
	})
	require.NoError(t, err)
	var res PlanResearchResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, "economic impact", res.Focus)
	assert.Len(t, res.Questions, 3)
	assert.False(t, res.Degraded)
	assert.Equal(t, 1, reasoner.callCount("plan"))
}

func TestPlanResearchCorrectiveRetry(t *testing.T) {
	reasoner := newFakeReasoner()
	reasoner.script("plan",
		"sorry, here's an essay instead",
		`{"focus": "f", "questions": ["q1", "q2", "q3", "q4"]}`,
	)
	env := newTestEnv(t, reasoner, nil)

	val, err := env.ExecuteActivity("PlanResearch", PlanResearchInput{
		Query: "topic", MinQuestions: 3, MaxQuestions: 5,
	})
	require.NoError(t, err)
	var res PlanResearchResult
	require.NoError(t, val.Get(&res))
	assert.Len(t, res.Questions, 4)
	assert.False(t, res.Degraded)
	assert.Equal(t, 2, reasoner.callCount("plan"))
}

func TestPlanResearchDegradedKeepsPartialPlan(t *testing.T) {
	reasoner := newFakeReasoner()
	reasoner.script("plan", `{"focus": "f", "questions": ["only one"]}`)
	env := newTestEnv(t, reasoner, nil)

	val, err := env.ExecuteActivity("PlanResearch", PlanResearchInput{
		Query: "topic", MinQuestions: 3, MaxQuestions: 5,
	})
	require.NoError(t, err)
	var res PlanResearchResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, []string{"only one"}, res.Questions)
	assert.True(t, res.Degraded)
}

func TestPlanResearchFailsWhenNothingUsable(t *testing.T) {
	reasoner := newFakeReasoner()
	reasoner.script("plan", "garbage", "more garbage")
	env := newTestEnv(t, reasoner, nil)

	_, err := env.ExecuteActivity("PlanResearch", PlanResearchInput{
		Query: "topic", MinQuestions: 3, MaxQuestions: 5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planning output malformed")
}

func TestGenerateSearchQueriesCoversEveryQuestion(t *testing.T) {
	reasoner := newFakeReasoner()
	reasoner.script("querygen", `["nord stream pipeline economics", "nord stream pipeline economics"]`)
	env := newTestEnv(t, reasoner, nil)

	val, err := env.ExecuteActivity("GenerateSearchQueries", GenerateQueriesInput{
		Focus: "pipeline politics",
		Questions: []string{
			"What is the economics of the Nord Stream pipeline?",
			"Which sanctions affected Russian gas exports?",
		},
	})
	require.NoError(t, err)
	var res GenerateQueriesResult
	require.NoError(t, val.Get(&res))
	// Duplicate model output collapsed, uncovered question got a fallback.
	require.Len(t, res.Queries, 2)
	assert.Equal(t, "nord stream pipeline economics", res.Queries[0])
	assert.Contains(t, res.Queries[1], "sanctions")
}

func TestGenerateSearchQueriesFallbackOnReasonerFailure(t *testing.T) {
	reasoner := newFakeReasoner()
	reasoner.err = errors.New("llm down")
	env := newTestEnv(t, reasoner, nil)

	val, err := env.ExecuteActivity("GenerateSearchQueries", GenerateQueriesInput{
		Focus:     "f",
		Questions: []string{"What caused the 2014 annexation of Crimea?", "How did NATO expansion influence tensions?"},
	})
	require.NoError(t, err)
	var res GenerateQueriesResult
	require.NoError(t, val.Get(&res))
	require.Len(t, res.Queries, 2)
	assert.Contains(t, res.Queries[0], "crimea")
	assert.Contains(t, res.Queries[1], "nato")
}

func TestRetrieveSourcesIsolatesQueryFailures(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]models.Source{
			"good": {{URL: "https://a.test/1", Title: "One"}, {URL: "https://a.test/2", Title: "Two"}},
		},
		failing: map[string]bool{"bad": true},
	}
	env := newTestEnv(t, newFakeReasoner(), searcher)

	val, err := env.ExecuteActivity("RetrieveSources", RetrieveSourcesInput{
		Queries:   []string{"good", "bad"},
		KnownURLs: []string{"https://a.test/2"},
	})
	require.NoError(t, err)
	var res RetrieveSourcesResult
	require.NoError(t, val.Get(&res))
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "https://a.test/1", res.Sources[0].URL)
	assert.Equal(t, []string{"bad"}, res.FailedQueries)
}

func TestRetrieveSourcesTotalFailureIsError(t *testing.T) {
	searcher := &fakeSearcher{failing: map[string]bool{"q1": true, "q2": true}}
	env := newTestEnv(t, newFakeReasoner(), searcher)

	_, err := env.ExecuteActivity("RetrieveSources", RetrieveSourcesInput{Queries: []string{"q1", "q2"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all search queries failed")
}

func TestRetrieveSourcesEmptyResultsAreValid(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]models.Source{}}
	env := newTestEnv(t, newFakeReasoner(), searcher)

	val, err := env.ExecuteActivity("RetrieveSources", RetrieveSourcesInput{Queries: []string{"nothing matches"}})
	require.NoError(t, err)
	var res RetrieveSourcesResult
	require.NoError(t, val.Get(&res))
	assert.Empty(t, res.Sources)
	assert.Empty(t, res.FailedQueries)
}

func TestSummarizeSource(t *testing.T) {
	reasoner := newFakeReasoner()
	reasoner.script("summarize", "The source says X about Y.")
	env := newTestEnv(t, reasoner, nil)

	val, err := env.ExecuteActivity("SummarizeSource", SummarizeSourceInput{
		Source:    models.Source{URL: "https://a.test/1", Title: "One", FullText: "long text"},
		Focus:     "f",
		Questions: []string{"q1"},
		CharLimit: 2000,
	})
	require.NoError(t, err)
	var res SummarizeSourceResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, "https://a.test/1", res.Summary.SourceURL)
	assert.Equal(t, "The source says X about Y.", res.Summary.Summary)
	assert.False(t, res.Summary.Failed)
}

func TestCombineSummariesMarksFailedPlaceholders(t *testing.T) {
	reasoner := newFakeReasoner()
	reasoner.script("combine", "synthesized")
	env := newTestEnv(t, reasoner, nil)

	val, err := env.ExecuteActivity("CombineSummaries", CombineSummariesInput{
		Focus:     "f",
		Questions: []string{"q1"},
		PerSource: []models.PerSourceSummary{
			{SourceURL: "https://a.test/1", Summary: "fine"},
			{SourceURL: "https://a.test/2", Failed: true},
		},
	})
	require.NoError(t, err)
	var res CombineSummariesResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, "synthesized", res.Summary)
}

func TestEvaluateProgressVerdict(t *testing.T) {
	reasoner := newFakeReasoner()
	reasoner.script("evaluate", `{"satisfied": false, "unanswered": ["q2"], "next_directions": ["search for treaties"]}`)
	env := newTestEnv(t, reasoner, nil)

	val, err := env.ExecuteActivity("EvaluateProgress", EvaluateProgressInput{
		Focus: "f", Questions: []string{"q1", "q2"}, CycleSummaries: []string{"s1"},
	})
	require.NoError(t, err)
	var res EvaluateProgressResult
	require.NoError(t, val.Get(&res))
	assert.False(t, res.Satisfied)
	assert.Equal(t, []string{"q2"}, res.Unanswered)
	assert.Equal(t, []string{"search for treaties"}, res.NextDirections)
}

func TestEvaluateProgressGarbledVerdictContinuesResearch(t *testing.T) {
	reasoner := newFakeReasoner()
	reasoner.script("evaluate", "I think it's probably fine?")
	env := newTestEnv(t, reasoner, nil)

	val, err := env.ExecuteActivity("EvaluateProgress", EvaluateProgressInput{
		Focus: "f", Questions: []string{"q1"}, CycleSummaries: []string{"s1"},
	})
	require.NoError(t, err)
	var res EvaluateProgressResult
	require.NoError(t, val.Get(&res))
	assert.False(t, res.Satisfied)
}

func TestGenerateReport(t *testing.T) {
	reasoner := newFakeReasoner()
	reasoner.script("report", "# Focus\n\n## Overview\n...")
	env := newTestEnv(t, reasoner, nil)

	val, err := env.ExecuteActivity("GenerateReport", GenerateReportInput{
		Query: "q", Focus: "Focus",
		Questions:      []string{"q1"},
		CycleSummaries: []string{"s1", "s2"},
		Sources:        []models.Source{{URL: "https://a.test/1", Title: "One"}},
	})
	require.NoError(t, err)
	var res GenerateReportResult
	require.NoError(t, val.Get(&res))
	assert.Contains(t, res.Report, "# Focus")
}

func TestGenerateReportEmptyDocumentIsError(t *testing.T) {
	reasoner := newFakeReasoner()
	reasoner.script("report", "   ")
	env := newTestEnv(t, reasoner, nil)

	_, err := env.ExecuteActivity("GenerateReport", GenerateReportInput{Query: "q", Focus: "f"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty document")
}
