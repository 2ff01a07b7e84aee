package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap/zaptest"

	"github.com/probelabs/deepscout/internal/config"
	"github.com/probelabs/deepscout/internal/models"
	"github.com/probelabs/deepscout/internal/streaming"
	"github.com/probelabs/deepscout/internal/workflows"
)

type fakeRun struct{ id string }

func (f fakeRun) GetID() string    { return f.id }
func (f fakeRun) GetRunID() string { return "temporal-run-id" }
func (f fakeRun) Get(context.Context, interface{}) error {
	return nil
}
func (f fakeRun) GetWithOptions(context.Context, interface{}, client.WorkflowRunGetOptions) error {
	return nil
}

type encodedSnapshot struct{ snap workflows.StatusSnapshot }

func (e encodedSnapshot) HasValue() bool { return true }
func (e encodedSnapshot) Get(valuePtr interface{}) error {
	*(valuePtr.(*workflows.StatusSnapshot)) = e.snap
	return nil
}

type fakeTemporal struct {
	started   []workflows.ResearchInput
	signals   map[string]string
	snapshot  *workflows.StatusSnapshot
	execErr   error
	signalErr error
	queryErr  error
}

func (f *fakeTemporal) ExecuteWorkflow(_ context.Context, opts client.StartWorkflowOptions, _ interface{}, args ...interface{}) (client.WorkflowRun, error) {
	if f.execErr != nil {
		return nil, f.execErr
	}
	f.started = append(f.started, args[0].(workflows.ResearchInput))
	return fakeRun{id: opts.ID}, nil
}

func (f *fakeTemporal) SignalWorkflow(_ context.Context, workflowID, _, _ string, arg interface{}) error {
	if f.signalErr != nil {
		return f.signalErr
	}
	if f.signals == nil {
		f.signals = map[string]string{}
	}
	f.signals[workflowID] = arg.(string)
	return nil
}

func (f *fakeTemporal) QueryWorkflow(context.Context, string, string, string, ...interface{}) (converter.EncodedValue, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return encodedSnapshot{snap: *f.snapshot}, nil
}

func newTestHandler(t *testing.T, temporal *fakeTemporal, stream *streaming.Manager) *Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.Temporal.TaskQueue = "deepscout-research"
	cfg.Research = config.ResearchConfig{
		DefaultMaxIterations: 3,
		SummaryConcurrency:   5,
		ClarificationTimeout: 10 * time.Minute,
		MinQuestions:         3,
		MaxQuestions:         5,
		SourceCharLimit:      2000,
	}
	return NewHandler(temporal, nil, stream, cfg, zaptest.NewLogger(t))
}

func newTestServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStartRunAppliesDefaults(t *testing.T) {
	temporal := &fakeTemporal{}
	srv := newTestServer(t, newTestHandler(t, temporal, nil))

	resp, err := http.Post(srv.URL+"/api/v1/research", "application/json",
		bytes.NewBufferString(`{"query": "impact of the ukraine conflict"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body startResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, strings.HasPrefix(body.RunID, "research-"))
	assert.Equal(t, models.RunStatusRunning, body.Status)

	require.Len(t, temporal.started, 1)
	in := temporal.started[0]
	assert.Equal(t, "impact of the ukraine conflict", in.Query)
	assert.Equal(t, 3, in.MaxIterations)
	assert.Equal(t, 5, in.Config.SummaryConcurrency)
}

func TestStartRunRejectsEmptyQuery(t *testing.T) {
	srv := newTestServer(t, newTestHandler(t, &fakeTemporal{}, nil))

	resp, err := http.Post(srv.URL+"/api/v1/research", "application/json",
		bytes.NewBufferString(`{"query": "   "}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartRunRejectsNegativeIterations(t *testing.T) {
	srv := newTestServer(t, newTestHandler(t, &fakeTemporal{}, nil))

	resp, err := http.Post(srv.URL+"/api/v1/research", "application/json",
		bytes.NewBufferString(`{"query": "q", "max_iterations": -1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusFromWorkflowQuery(t *testing.T) {
	temporal := &fakeTemporal{snapshot: &workflows.StatusSnapshot{
		Status:              models.RunStatusNeedsClarification,
		ClarificationPrompt: "Which region?",
		Iteration:           0,
		MaxIterations:       3,
	}}
	srv := newTestServer(t, newTestHandler(t, temporal, nil))

	resp, err := http.Get(srv.URL + "/api/v1/research/research-abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, models.RunStatusNeedsClarification, body.Status)
	assert.Equal(t, "Which region?", body.ClarificationPrompt)
}

func TestStatusNotFound(t *testing.T) {
	temporal := &fakeTemporal{queryErr: errors.New("workflow not found")}
	srv := newTestServer(t, newTestHandler(t, temporal, nil))

	resp, err := http.Get(srv.URL + "/api/v1/research/research-missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClarificationDeliveredAsSignal(t *testing.T) {
	temporal := &fakeTemporal{}
	srv := newTestServer(t, newTestHandler(t, temporal, nil))

	resp, err := http.Post(srv.URL+"/api/v1/research/research-abc/clarification", "application/json",
		bytes.NewBufferString(`{"clarification": "Europe, since 1900"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "Europe, since 1900", temporal.signals["research-abc"])
}

func TestClarificationRequiresBody(t *testing.T) {
	srv := newTestServer(t, newTestHandler(t, &fakeTemporal{}, nil))

	resp, err := http.Post(srv.URL+"/api/v1/research/research-abc/clarification", "application/json",
		bytes.NewBufferString(`{"clarification": ""}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebsocketReplaysAndStreams(t *testing.T) {
	stream := streaming.NewManager(16, nil, zaptest.NewLogger(t))
	srv := newTestServer(t, newTestHandler(t, &fakeTemporal{}, stream))

	// One event published before the client connects.
	stream.Publish(context.Background(), streaming.Event{RunID: "research-abc", Type: streaming.EventRunStarted})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/research/research-abc"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var replayed streaming.Event
	require.NoError(t, conn.ReadJSON(&replayed))
	assert.Equal(t, streaming.EventRunStarted, replayed.Type)

	// Live event after subscription. Publishing may race the subscribe, so retry.
	deadline := time.Now().Add(2 * time.Second)
	go func() {
		for time.Now().Before(deadline) {
			stream.Publish(context.Background(), streaming.Event{RunID: "research-abc", Type: streaming.EventCycleCompleted, Iteration: 1})
			time.Sleep(50 * time.Millisecond)
		}
	}()

	conn.SetReadDeadline(deadline)
	var live streaming.Event
	require.NoError(t, conn.ReadJSON(&live))
	assert.Equal(t, streaming.EventCycleCompleted, live.Type)
}
