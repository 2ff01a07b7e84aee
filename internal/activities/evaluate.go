package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.temporal.io/sdk/activity"

	"github.com/probelabs/deepscout/internal/llm"
)

type evaluateReply struct {
	Satisfied      bool     `json:"satisfied"`
	Unanswered     []string `json:"unanswered"`
	NextDirections []string `json:"next_directions"`
}

// EvaluateProgress judges whether the accumulated cycle summaries answer the
// research questions. An unparseable verdict is treated as not satisfied:
// the loop stays bounded by the iteration cap, so continuing is always safe
// while stopping early on a garbled verdict would truncate research.
func (a *Activities) EvaluateProgress(ctx context.Context, in EvaluateProgressInput) (EvaluateProgressResult, error) {
	logger := activity.GetLogger(ctx)

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\nResearch Questions:\n", in.Focus)
	for i, q := range in.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	b.WriteString("\nAccumulated research summaries:\n")
	for i, s := range in.CycleSummaries {
		fmt.Fprintf(&b, "\nCycle %d:\n%s\n", i+1, s)
	}

	raw, tokens, err := a.reasoner.Complete(ctx, llm.TierStrong, "evaluate", evaluateSystemPrompt, b.String())
	if err != nil {
		return EvaluateProgressResult{}, err
	}

	var reply evaluateReply
	if jsonErr := json.Unmarshal([]byte(llm.CleanJSONResponse(raw)), &reply); jsonErr != nil {
		logger.Warn("evaluator verdict unparseable, continuing research", "error", jsonErr)
		return EvaluateProgressResult{Satisfied: false, TokensUsed: tokens}, nil
	}

	return EvaluateProgressResult{
		Satisfied:      reply.Satisfied,
		Unanswered:     reply.Unanswered,
		NextDirections: reply.NextDirections,
		TokensUsed:     tokens,
	}, nil
}
