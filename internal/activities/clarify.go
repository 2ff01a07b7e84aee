package activities

import (
	"context"
	"encoding/json"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/probelabs/deepscout/internal/llm"
)

type clarifyReply struct {
	NeedClarification bool   `json:"need_clarification"`
	Question          string `json:"question"`
	Verification      string `json:"verification"`
}

// ClarifyQuery decides whether the query is specific enough to research.
// It fails open: any model or parse failure means research proceeds without
// clarification, because blocking a run on a broken clarifier is worse than
// researching a vague query.
func (a *Activities) ClarifyQuery(ctx context.Context, in ClarifyQueryInput) (ClarifyQueryResult, error) {
	logger := activity.GetLogger(ctx)

	raw, tokens, err := a.reasoner.Complete(ctx, llm.TierFast, "clarify", clarifySystemPrompt, in.Query)
	if err != nil {
		logger.Warn("clarifier call failed, proceeding without clarification", "error", err)
		return ClarifyQueryResult{TokensUsed: 0}, nil
	}

	var reply clarifyReply
	if err := json.Unmarshal([]byte(llm.CleanJSONResponse(raw)), &reply); err != nil {
		a.logger.Warn("clarifier output unparseable, proceeding",
			zap.String("query", in.Query),
			zap.Error(err),
		)
		return ClarifyQueryResult{TokensUsed: tokens}, nil
	}

	if reply.NeedClarification && reply.Question == "" {
		// A request for clarification with no question to ask is useless.
		return ClarifyQueryResult{TokensUsed: tokens}, nil
	}

	return ClarifyQueryResult{
		NeedsClarification: reply.NeedClarification,
		Prompt:             reply.Question,
		Verification:       reply.Verification,
		TokensUsed:         tokens,
	}, nil
}
