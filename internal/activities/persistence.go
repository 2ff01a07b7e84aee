package activities

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/probelabs/deepscout/internal/metrics"
	"github.com/probelabs/deepscout/internal/streaming"
)

// PersistRun writes the current run lifecycle row. A disabled database makes
// this a no-op; the workflow fires these with a disconnected context and
// never blocks on the outcome.
func (a *Activities) PersistRun(ctx context.Context, in PersistRunInput) error {
	if a.store == nil {
		return nil
	}
	if err := a.store.UpsertRun(ctx, in.Record); err != nil {
		activity.GetLogger(ctx).Warn("run persistence failed", "run_id", in.Record.RunID, "error", err)
		return err
	}
	return nil
}

// PersistCycle writes one completed cycle and its newly retrieved sources.
func (a *Activities) PersistCycle(ctx context.Context, in PersistCycleInput) error {
	if a.store == nil {
		return nil
	}
	logger := activity.GetLogger(ctx)
	if err := a.store.InsertCycle(ctx, in.Cycle); err != nil {
		logger.Warn("cycle persistence failed", "run_id", in.Cycle.RunID, "iteration", in.Cycle.Iteration, "error", err)
		return err
	}
	if err := a.store.InsertSources(ctx, in.Cycle.RunID, in.Cycle.Iteration, in.Sources); err != nil {
		logger.Warn("source persistence failed", "run_id", in.Cycle.RunID, "error", err)
		return err
	}
	return nil
}

// EmitResearchEvent publishes one progress event to stream subscribers.
// Lifecycle events double as the run-level metric feed.
func (a *Activities) EmitResearchEvent(ctx context.Context, in EmitEventInput) error {
	switch in.Event.Type {
	case streaming.EventClarificationRequested:
		metrics.ClarificationsRequested.Inc()
	case streaming.EventReportReady:
		metrics.RunsCompleted.WithLabelValues("completed").Inc()
		metrics.CyclesPerRun.Observe(float64(in.Event.Iteration))
	case streaming.EventRunFailed:
		metrics.RunsCompleted.WithLabelValues("failed").Inc()
	}
	if a.stream == nil {
		return nil
	}
	a.stream.Publish(ctx, in.Event)
	return nil
}
