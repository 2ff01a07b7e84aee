package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.temporal.io/sdk/activity"

	"github.com/probelabs/deepscout/internal/llm"
)

// GenerateSearchQueries turns the focus and research questions into
// keyword-style search queries. Every question is guaranteed at least one
// query: any question the model's output does not cover gets a deterministic
// keyword fallback derived from the question text.
func (a *Activities) GenerateSearchQueries(ctx context.Context, in GenerateQueriesInput) (GenerateQueriesResult, error) {
	logger := activity.GetLogger(ctx)

	var b strings.Builder
	fmt.Fprintf(&b, "Research Topic: %s\n\nKey Research Questions:\n", in.Focus)
	for i, q := range in.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	if in.Iteration > 0 {
		fmt.Fprintf(&b, "\nThis is research cycle %d; diverge from queries a first pass would produce.\n", in.Iteration+1)
	}

	var queries []string
	tokens := 0
	raw, used, err := a.reasoner.Complete(ctx, llm.TierStrong, "querygen", queryGenSystemPrompt, b.String())
	tokens = used
	if err != nil {
		logger.Warn("query generation failed, using keyword fallbacks", "error", err)
	} else if jsonErr := json.Unmarshal([]byte(llm.CleanJSONResponse(raw)), &queries); jsonErr != nil {
		logger.Warn("query generation output unparseable, using keyword fallbacks", "error", jsonErr)
		queries = nil
	}

	queries = dedupeQueries(queries)
	queries = ensureQuestionCoverage(queries, in.Questions)

	return GenerateQueriesResult{Queries: queries, TokensUsed: tokens}, nil
}

func dedupeQueries(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	out := queries[:0]
	for _, q := range queries {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

// ensureQuestionCoverage appends a keyword fallback for every question that
// shares no significant term with any generated query.
func ensureQuestionCoverage(queries []string, questions []string) []string {
	joined := strings.ToLower(strings.Join(queries, " "))
	for _, question := range questions {
		covered := false
		for _, term := range keywordTerms(question) {
			if strings.Contains(joined, term) {
				covered = true
				break
			}
		}
		if !covered {
			if fb := keywordFallback(question); fb != "" {
				queries = append(queries, fb)
				joined += " " + strings.ToLower(fb)
			}
		}
	}
	return queries
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "been": true, "by": true,
	"for": true, "from": true, "has": true, "have": true, "how": true,
	"in": true, "is": true, "it": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "this": true, "to": true, "was": true,
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"why": true, "with": true, "do": true, "does": true, "can": true,
}

func keywordTerms(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 && !stopwords[f] {
			terms = append(terms, f)
		}
	}
	return terms
}

// keywordFallback builds a deterministic search query from a question's
// significant terms, capped at six.
func keywordFallback(question string) string {
	terms := keywordTerms(question)
	if len(terms) > 6 {
		terms = terms[:6]
	}
	return strings.Join(terms, " ")
}
