// Package httpapi exposes the research run API: start a run, read its
// status, deliver a clarification, and follow its event stream over a
// websocket.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"

	"github.com/probelabs/deepscout/internal/config"
	"github.com/probelabs/deepscout/internal/db"
	"github.com/probelabs/deepscout/internal/metrics"
	"github.com/probelabs/deepscout/internal/models"
	"github.com/probelabs/deepscout/internal/streaming"
	"github.com/probelabs/deepscout/internal/workflows"
)

// TemporalClient is the slice of client.Client the API needs.
type TemporalClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error
	QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

type Handler struct {
	temporal TemporalClient
	store    *db.Client
	stream   *streaming.Manager
	cfg      *config.Config
	logger   *zap.Logger
}

func NewHandler(temporal TemporalClient, store *db.Client, stream *streaming.Manager, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{temporal: temporal, store: store, stream: stream, cfg: cfg, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/research", h.handleStart)
	mux.HandleFunc("GET /api/v1/research/{id}", h.handleStatus)
	mux.HandleFunc("POST /api/v1/research/{id}/clarification", h.handleClarification)
	mux.HandleFunc("GET /ws/research/{id}", h.handleEvents)
}

type startRequest struct {
	Query         string `json:"query"`
	Clarification string `json:"clarification,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

type startResponse struct {
	RunID  string           `json:"run_id"`
	Status models.RunStatus `json:"status"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.MaxIterations == 0 {
		req.MaxIterations = h.cfg.Research.DefaultMaxIterations
	}
	if req.MaxIterations < 1 {
		writeError(w, http.StatusBadRequest, "max_iterations must be >= 1")
		return
	}

	runID := "research-" + uuid.NewString()
	input := workflows.ResearchInput{
		RunID:         runID,
		Query:         req.Query,
		Clarification: req.Clarification,
		MaxIterations: req.MaxIterations,
		Config: workflows.RunConfig{
			SummaryConcurrency:   h.cfg.Research.SummaryConcurrency,
			ClarificationTimeout: h.cfg.Research.ClarificationTimeout,
			MinQuestions:         h.cfg.Research.MinQuestions,
			MaxQuestions:         h.cfg.Research.MaxQuestions,
			SourceCharLimit:      h.cfg.Research.SourceCharLimit,
		},
	}

	_, err := h.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        runID,
		TaskQueue: h.cfg.Temporal.TaskQueue,
	}, workflows.ResearchWorkflow, input)
	if err != nil {
		h.logger.Error("failed to start research run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start research run")
		return
	}

	metrics.RunsStarted.Inc()
	h.logger.Info("research run started",
		zap.String("run_id", runID),
		zap.Int("max_iterations", req.MaxIterations),
	)
	writeJSON(w, http.StatusAccepted, startResponse{RunID: runID, Status: models.RunStatusRunning})
}

type statusResponse struct {
	RunID               string           `json:"run_id"`
	Status              models.RunStatus `json:"status"`
	ClarificationPrompt string           `json:"clarification_prompt,omitempty"`
	Iteration           int              `json:"iteration"`
	MaxIterations       int              `json:"max_iterations,omitempty"`
	SourceCount         int              `json:"source_count"`
	Report              string           `json:"report,omitempty"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	val, err := h.temporal.QueryWorkflow(r.Context(), runID, "", workflows.QueryStatus)
	if err == nil {
		var snap workflows.StatusSnapshot
		if decodeErr := val.Get(&snap); decodeErr == nil {
			writeJSON(w, http.StatusOK, statusResponse{
				RunID:               runID,
				Status:              snap.Status,
				ClarificationPrompt: snap.ClarificationPrompt,
				Iteration:           snap.Iteration,
				MaxIterations:       snap.MaxIterations,
				SourceCount:         snap.SourceCount,
				Report:              snap.Report,
			})
			return
		}
	}

	// Workflow history may be gone; the database keeps the terminal record.
	if h.store != nil {
		if rec, dbErr := h.store.GetRun(r.Context(), runID); dbErr == nil {
			writeJSON(w, http.StatusOK, statusResponse{
				RunID:               rec.RunID,
				Status:              models.RunStatus(rec.Status),
				ClarificationPrompt: rec.ClarificationPrompt,
				Iteration:           rec.Iterations,
				SourceCount:         rec.SourceCount,
				Report:              rec.Report,
			})
			return
		}
	}

	h.logger.Debug("run status lookup failed", zap.String("run_id", runID), zap.Error(err))
	writeError(w, http.StatusNotFound, "research run not found")
}

type clarificationRequest struct {
	Clarification string `json:"clarification"`
}

func (h *Handler) handleClarification(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	var req clarificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Clarification) == "" {
		writeError(w, http.StatusBadRequest, "clarification is required")
		return
	}

	if err := h.temporal.SignalWorkflow(r.Context(), runID, "", workflows.SignalClarification, req.Clarification); err != nil {
		h.logger.Warn("clarification signal failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusNotFound, "research run not found or not accepting clarification")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "clarification_delivered"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
