package activities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/probelabs/deepscout/internal/llm"
	"github.com/probelabs/deepscout/internal/metrics"
	"github.com/probelabs/deepscout/internal/models"
)

// SummarizeSource is one map-stage task: summarize a single source against
// the cycle's focus and questions on the fast tier. The workflow turns a
// failed task into a placeholder summary; the barrier never waits on more
// than the per-task timeout.
func (a *Activities) SummarizeSource(ctx context.Context, in SummarizeSourceInput) (SummarizeSourceResult, error) {
	start := time.Now()

	content := in.Source.FullText
	if content == "" {
		content = in.Source.Snippet
	}
	content = llm.Truncate(content, in.CharLimit)

	var b strings.Builder
	fmt.Fprintf(&b, "Research Focus: %s\n\nResearch Questions:\n", in.Focus)
	for i, q := range in.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	fmt.Fprintf(&b, "\nSource:\n%s (%s)\n%s\n", in.Source.Title, in.Source.URL, content)

	summary, tokens, err := a.reasoner.Complete(ctx, llm.TierFast, "summarize", summarizeSystemPrompt, b.String())
	metrics.SummaryTaskDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SummaryTasks.WithLabelValues("error").Inc()
		return SummarizeSourceResult{}, err
	}

	metrics.SummaryTasks.WithLabelValues("ok").Inc()
	return SummarizeSourceResult{
		Summary: models.PerSourceSummary{
			SourceURL: in.Source.URL,
			Title:     in.Source.Title,
			Summary:   summary,
		},
		TokensUsed: tokens,
	}, nil
}

// CombineSummaries is the reduce stage: synthesize every settled per-source
// summary of the cycle into one cycle summary on the strong tier. Failed
// placeholders are listed as unavailable so the synthesis does not invent
// content for them.
func (a *Activities) CombineSummaries(ctx context.Context, in CombineSummariesInput) (CombineSummariesResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Research Focus: %s\n\nResearch Questions:\n", in.Focus)
	for i, q := range in.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	b.WriteString("\nIndividual Source Summaries:\n")
	for _, s := range in.PerSource {
		if s.Failed {
			fmt.Fprintf(&b, "\n[%s] (%s): summary unavailable, source could not be processed\n", s.Title, s.SourceURL)
			continue
		}
		fmt.Fprintf(&b, "\n[%s] (%s):\n%s\n", s.Title, s.SourceURL, s.Summary)
	}

	summary, tokens, err := a.reasoner.Complete(ctx, llm.TierStrong, "combine", combineSystemPrompt, b.String())
	if err != nil {
		return CombineSummariesResult{}, err
	}
	return CombineSummariesResult{Summary: summary, TokensUsed: tokens}, nil
}
