package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.temporal.io/sdk/activity"

	"github.com/probelabs/deepscout/internal/llm"
	"github.com/probelabs/deepscout/internal/models"
)

type planReply struct {
	Focus     string   `json:"focus"`
	Questions []string `json:"questions"`
}

// PlanResearch narrows the query into a focus and research questions. On
// re-entry (later cycles) it receives the accumulated summaries and the
// evaluator's directions so new questions target remaining gaps. Malformed
// output gets one corrective retry; after that a salvageable partial plan is
// kept with Degraded set, and only a fully unusable plan is an error.
func (a *Activities) PlanResearch(ctx context.Context, in PlanResearchInput) (PlanResearchResult, error) {
	logger := activity.GetLogger(ctx)

	minQ, maxQ := in.MinQuestions, in.MaxQuestions
	if minQ < 1 {
		minQ = 3
	}
	if maxQ < minQ {
		maxQ = minQ + 2
	}

	system := fmt.Sprintf(planSystemPrompt, minQ, maxQ)
	user := a.planUserPrompt(in)

	totalTokens := 0
	raw, tokens, err := a.reasoner.Complete(ctx, llm.TierStrong, "plan", system, user)
	totalTokens += tokens
	if err != nil {
		return PlanResearchResult{}, err
	}

	reply, parseErr := parsePlan(raw)
	if parseErr == nil && len(reply.Questions) >= minQ && len(reply.Questions) <= maxQ {
		return PlanResearchResult{Focus: reply.Focus, Questions: reply.Questions, TokensUsed: totalTokens}, nil
	}

	logger.Warn("plan output out of contract, retrying with corrective prompt",
		"parse_error", parseErr, "questions", len(reply.Questions))

	corrective := user + "\n\n" + fmt.Sprintf(planCorrectivePrompt, minQ, maxQ)
	raw, tokens, err = a.reasoner.Complete(ctx, llm.TierStrong, "plan", system, corrective)
	totalTokens += tokens
	if err == nil {
		if retried, retryErr := parsePlan(raw); retryErr == nil && len(retried.Questions) >= minQ && len(retried.Questions) <= maxQ {
			return PlanResearchResult{Focus: retried.Focus, Questions: retried.Questions, TokensUsed: totalTokens}, nil
		} else if retryErr == nil && len(retried.Questions) > 0 {
			reply = retried
		}
	}

	// Best effort: keep whatever the model gave us, bounded above.
	if len(reply.Questions) > 0 {
		if len(reply.Questions) > maxQ {
			reply.Questions = reply.Questions[:maxQ]
		}
		focus := reply.Focus
		if focus == "" {
			focus = in.Query
		}
		return PlanResearchResult{Focus: focus, Questions: reply.Questions, Degraded: true, TokensUsed: totalTokens}, nil
	}

	return PlanResearchResult{}, fmt.Errorf("%w: no usable questions after corrective retry", models.ErrPlanningMalformed)
}

func (a *Activities) planUserPrompt(in PlanResearchInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research Topic: %s\n", in.Query)
	if in.Clarification != "" {
		fmt.Fprintf(&b, "User clarification: %s\n", in.Clarification)
	}
	if len(in.CycleSummaries) > 0 {
		b.WriteString("\nFindings from earlier research cycles:\n")
		for i, s := range in.CycleSummaries {
			fmt.Fprintf(&b, "Cycle %d: %s\n", i+1, s)
		}
		b.WriteString("\nTarget the gaps these findings leave open; do not repeat answered questions.\n")
	}
	if len(in.NextDirections) > 0 {
		b.WriteString("Suggested directions from the last evaluation:\n")
		for _, d := range in.NextDirections {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	return b.String()
}

func parsePlan(raw string) (planReply, error) {
	var reply planReply
	if err := json.Unmarshal([]byte(llm.CleanJSONResponse(raw)), &reply); err != nil {
		return planReply{}, err
	}
	cleaned := reply.Questions[:0]
	for _, q := range reply.Questions {
		if q = strings.TrimSpace(q); q != "" {
			cleaned = append(cleaned, q)
		}
	}
	reply.Questions = cleaned
	return reply, nil
}
