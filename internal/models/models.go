package models

import (
	"strings"
	"time"
)

// RunStatus describes where a research run is in its lifecycle.
type RunStatus string

const (
	RunStatusRunning            RunStatus = "running"
	RunStatusNeedsClarification RunStatus = "needs_clarification"
	RunStatusCompleted          RunStatus = "completed"
	RunStatusFailed             RunStatus = "failed"
)

// Source is one retrieved web document. Immutable once fetched; a URL that is
// already present in a run's state is never re-fetched or re-added.
type Source struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet,omitempty"`
	FullText    string    `json:"full_text,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at,omitempty"`
}

// PerSourceSummary is the output of one map-stage summarization task.
// It is cycle-scoped: consumed by the reduce stage and then discarded.
type PerSourceSummary struct {
	SourceURL string `json:"source_url"`
	Title     string `json:"title,omitempty"`
	Summary   string `json:"summary"`
	// Failed marks a placeholder produced when the task errored or timed out.
	Failed bool `json:"failed,omitempty"`
}

// ResearchState is the single mutable record threaded through a research run.
// It is owned by the workflow; activities receive copies of the fields they
// need and never mutate shared state directly.
//
// Field write ownership:
//
//	Query, MaxIterations     set at run start, immutable
//	Clarification            clarifier / caller, set at most once
//	Focus, ResearchQuestions planner, replaced each cycle
//	SearchQueries            query generator, replaced each cycle
//	Sources                  retriever merge, append-only, deduped by URL
//	CycleSummaries           summarization reduce, append-only
//	Iteration                controller, +1 per completed cycle
//	Satisfied                evaluator (controller forces true at the cap)
//	Report                   report generator, set exactly once
type ResearchState struct {
	Query         string `json:"query"`
	Clarification string `json:"clarification,omitempty"`

	Focus             string   `json:"focus,omitempty"`
	ResearchQuestions []string `json:"research_questions,omitempty"`
	SearchQueries     []string `json:"search_queries,omitempty"`

	Sources        []Source `json:"sources,omitempty"`
	CycleSummaries []string `json:"cycle_summaries,omitempty"`

	Iteration     int  `json:"iteration"`
	MaxIterations int  `json:"max_iterations"`
	Satisfied     bool `json:"satisfied"`

	Report string `json:"report,omitempty"`
}

// NewResearchState initializes run state from caller input.
func NewResearchState(query, clarification string, maxIterations int) *ResearchState {
	return &ResearchState{
		Query:         query,
		Clarification: clarification,
		MaxIterations: maxIterations,
	}
}

// KnownURLs returns the set of source URLs already held by the state,
// normalized for dedup comparisons.
func (s *ResearchState) KnownURLs() map[string]bool {
	known := make(map[string]bool, len(s.Sources))
	for _, src := range s.Sources {
		known[NormalizeURL(src.URL)] = true
	}
	return known
}

// MergeSources appends sources whose URL is not yet known and returns the
// number of newly added entries. This is the single-writer merge that follows
// the retrieval stage; it must never run concurrently with itself.
func (s *ResearchState) MergeSources(batch []Source) int {
	known := s.KnownURLs()
	added := 0
	for _, src := range batch {
		key := NormalizeURL(src.URL)
		if key == "" || known[key] {
			continue
		}
		known[key] = true
		s.Sources = append(s.Sources, src)
		added++
	}
	return added
}

// AtIterationCap reports whether the controller must force termination.
func (s *ResearchState) AtIterationCap() bool {
	return s.Iteration >= s.MaxIterations
}

// NormalizeURL canonicalizes a URL for dedup purposes: lowercased scheme and
// host, trailing slash trimmed. An empty input stays empty.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	lower := strings.ToLower(u)
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(lower, scheme) {
			rest := u[len(scheme):]
			if i := strings.IndexAny(rest, "/?#"); i >= 0 {
				return scheme + strings.ToLower(rest[:i]) + strings.TrimSuffix(rest[i:], "/")
			}
			return scheme + strings.ToLower(rest)
		}
	}
	return strings.TrimSuffix(u, "/")
}
