package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepscout_runs_started_total",
			Help: "Total number of research runs started",
		},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepscout_runs_completed_total",
			Help: "Total number of research runs finished, by terminal status",
		},
		[]string{"status"},
	)

	CyclesPerRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepscout_cycles_per_run",
			Help:    "Number of research cycles per run",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
		},
	)

	ClarificationsRequested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepscout_clarifications_requested_total",
			Help: "Total number of runs that asked the caller for clarification",
		},
	)

	// Retrieval metrics
	SourcesRetrieved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepscout_sources_retrieved_total",
			Help: "Total number of sources returned by search, pre-dedup",
		},
	)

	SourcesDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepscout_sources_deduplicated_total",
			Help: "Total number of sources dropped because the URL was already known",
		},
	)

	SearchQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepscout_search_queries_total",
			Help: "Total number of search queries executed, by outcome",
		},
		[]string{"outcome"},
	)

	// Summarization metrics
	SummaryTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepscout_summary_tasks_total",
			Help: "Total per-source summarization tasks, by outcome",
		},
		[]string{"outcome"},
	)

	SummaryTaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepscout_summary_task_duration_seconds",
			Help:    "Per-source summarization task duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Reasoning service metrics
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepscout_llm_calls_total",
			Help: "Total chat-completion calls, by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepscout_llm_call_duration_seconds",
			Help:    "Chat-completion call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"tier"},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepscout_llm_tokens_total",
			Help: "Total tokens consumed, by tier",
		},
		[]string{"tier"},
	)

	// Streaming metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepscout_events_published_total",
			Help: "Total run events published, by event type",
		},
		[]string{"type"},
	)

	ActiveEventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deepscout_event_subscribers",
			Help: "Current number of event stream subscribers",
		},
	)
)
