package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/probelabs/deepscout/internal/metrics"
	"github.com/probelabs/deepscout/internal/models"
)

// RetrieveSources runs every search query, isolating per-query failures: a
// failed query is logged and skipped, and the cycle continues on whatever the
// other queries returned. Only all queries failing with nothing retrieved is
// an error. URLs the run already holds are dropped here so the workflow's
// merge stays cheap.
func (a *Activities) RetrieveSources(ctx context.Context, in RetrieveSourcesInput) (RetrieveSourcesResult, error) {
	logger := activity.GetLogger(ctx)

	known := make(map[string]bool, len(in.KnownURLs))
	for _, u := range in.KnownURLs {
		known[models.NormalizeURL(u)] = true
	}

	var result RetrieveSourcesResult
	for _, query := range in.Queries {
		activity.RecordHeartbeat(ctx, query)

		sources, err := a.searcher.Search(ctx, query)
		if err != nil {
			logger.Warn("search query failed", "query", query, "error", err)
			result.FailedQueries = append(result.FailedQueries, query)
			continue
		}
		for _, src := range sources {
			key := models.NormalizeURL(src.URL)
			if key == "" || known[key] {
				metrics.SourcesDeduplicated.Inc()
				continue
			}
			known[key] = true
			result.Sources = append(result.Sources, src)
		}
	}

	if len(result.Sources) == 0 && len(result.FailedQueries) == len(in.Queries) && len(in.Queries) > 0 {
		return result, fmt.Errorf("%w: %d queries", models.ErrAllQueriesFailed, len(in.Queries))
	}
	return result, nil
}
