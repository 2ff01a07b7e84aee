package activities

import (
	"context"
	"fmt"
	"strings"

	"github.com/probelabs/deepscout/internal/llm"
)

// GenerateReport synthesizes the final markdown report from every cycle's
// findings. Failure here is a run-level failure; there is no partial report.
func (a *Activities) GenerateReport(ctx context.Context, in GenerateReportInput) (GenerateReportResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Original query: %s\n", in.Query)
	if in.Clarification != "" {
		fmt.Fprintf(&b, "User clarification: %s\n", in.Clarification)
	}
	fmt.Fprintf(&b, "Research focus: %s\n\nResearch Questions:\n", in.Focus)
	for i, q := range in.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	b.WriteString("\nResearch summaries by cycle:\n")
	for i, s := range in.CycleSummaries {
		fmt.Fprintf(&b, "\n### Cycle %d\n%s\n", i+1, s)
	}
	b.WriteString("\nSources consulted:\n")
	for _, src := range in.Sources {
		fmt.Fprintf(&b, "- %s (%s)\n", src.Title, src.URL)
	}

	report, tokens, err := a.reasoner.Complete(ctx, llm.TierStrong, "report", reportSystemPrompt, b.String())
	if err != nil {
		return GenerateReportResult{}, err
	}
	if strings.TrimSpace(report) == "" {
		return GenerateReportResult{}, fmt.Errorf("report generation produced empty document")
	}
	return GenerateReportResult{Report: report, TokensUsed: tokens}, nil
}
