package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/orbitreg/compliance-workflow/internal/application/dispatcher"
	"github.com/orbitreg/compliance-workflow/internal/application/workflow"
	"github.com/orbitreg/compliance-workflow/internal/compliance"
	"github.com/orbitreg/compliance-workflow/internal/definition"
	"github.com/orbitreg/compliance-workflow/internal/infrastructure/persistence/repository"
	"github.com/orbitreg/compliance-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/orbitreg/compliance-workflow/internal/metrics"
	"github.com/orbitreg/compliance-workflow/internal/report"
	"github.com/orbitreg/compliance-workflow/pkg/database"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
}

type instanceBody struct {
	ID       int64                  `json:"id"`
	State    string                 `json:"state"`
	Label    string                 `json:"label"`
	Progress int                    `json:"progress"`
	Terminal bool                   `json:"terminal"`
	Data     map[string]interface{} `json:"data"`
}

func setupServer(t *testing.T) *Server {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "workflow.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(database.Schema))

	registry := definition.NewRegistry()
	require.NoError(t, registry.RegisterAll(compliance.Definitions()...))

	d := dispatcher.NewDispatcher()
	t.Cleanup(func() { _ = d.Close() })

	promRegistry := prometheus.NewRegistry()
	metrics.NewRecorder(metrics.Config{Registry: promRegistry}).Subscribe(d)

	svc := workflow.NewService(registry,
		repository.NewInstanceRepository(db.DB, logger),
		repository.NewHistoryRepository(db.DB, logger),
		sqlite.NewDB(db.DB, logger),
		workflow.WithDispatcher(d))

	cfg := DefaultServerConfig()
	cfg.Mode = gin.TestMode
	return NewServer(cfg, svc, WithGatherer(promRegistry))
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func createIncident(t *testing.T, s *Server) int64 {
	t.Helper()
	w := doRequest(t, s, http.MethodPost, "/api/v1/instances", `{"definition_id":"incident","actor":"soc"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Instance instanceBody `json:"instance"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &created))
	assert.Equal(t, "detected", created.Instance.State)
	return created.Instance.ID
}

func TestHealthCheck(t *testing.T) {
	s := setupServer(t)

	w := doRequest(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)
}

func TestHealthCheck_Unhealthy(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Mode = gin.TestMode
	s := NewServer(cfg, nil, WithHealth(func() (bool, interface{}) {
		return false, map[string]string{"database": "ping failed"}
	}))

	w := doRequest(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "ping failed")
}

func TestDefinitions(t *testing.T) {
	s := setupServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/definitions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var defs []definition.Summary
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &defs))
	require.Len(t, defs, 2)
	assert.Equal(t, "authorization", defs[0].ID)

	w = doRequest(t, s, http.MethodGet, "/api/v1/definitions/incident", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary definition.Summary
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &summary))
	assert.Equal(t, "detected", summary.InitialState)

	w = doRequest(t, s, http.MethodGet, "/api/v1/definitions/payroll", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIncidentLifecycle(t *testing.T) {
	s := setupServer(t)
	id := createIncident(t, s)
	base := fmt.Sprintf("/api/v1/instances/%d", id)

	// Guard rejects triage without mandatory fields
	w := doRequest(t, s, http.MethodPost, base+"/transitions/triage", "")
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "guard_rejected", resp.Kind)

	// Triage of a high severity incident escalates automatically
	w = doRequest(t, s, http.MethodPost, base+"/transitions/triage",
		`{"data":{"severity":"high","reported_by":"soc"},"actor":"analyst"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var fired struct {
		Instance   instanceBody `json:"instance"`
		Evaluation struct {
			Transitioned bool   `json:"transitioned"`
			FinalState   string `json:"final_state"`
		} `json:"evaluation"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &fired))
	assert.Equal(t, "early_warning_due", fired.Instance.State)
	assert.True(t, fired.Evaluation.Transitioned)
	assert.Contains(t, fired.Instance.Data, compliance.FieldEarlyWarningDeadline)

	w = doRequest(t, s, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got instanceBody
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, "Early warning due", got.Label)
	assert.Equal(t, 35, got.Progress)
	assert.False(t, got.Terminal)

	w = doRequest(t, s, http.MethodGet, base+"/transitions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var actions []workflow.AvailableAction
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &actions))
	require.Len(t, actions, 2)
	assert.Equal(t, "send_early_warning", actions[0].Event.String())
	assert.False(t, actions[0].Allowed)

	w = doRequest(t, s, http.MethodGet, base+"/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var history []struct {
		Event   string `json:"event"`
		Actor   string `json:"actor"`
		Auto    bool   `json:"auto"`
		Success bool   `json:"success"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &history))
	require.Len(t, history, 3)
	assert.False(t, history[0].Success)
	assert.Equal(t, "triage", history[1].Event)
	assert.Equal(t, "analyst", history[1].Actor)
	assert.Equal(t, "escalate", history[2].Event)
	assert.True(t, history[2].Auto)

	w = doRequest(t, s, http.MethodGet, base+"/history/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, report.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "incident-")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(report.HistorySheet)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestEvaluateInstance(t *testing.T) {
	s := setupServer(t)
	id := createIncident(t, s)

	w := doRequest(t, s, http.MethodPost, fmt.Sprintf("/api/v1/instances/%d/evaluate", id), `{"actor":"operator"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		Instance   instanceBody `json:"instance"`
		Evaluation struct {
			Transitioned bool `json:"transitioned"`
		} `json:"evaluation"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	assert.False(t, res.Evaluation.Transitioned)
	assert.Equal(t, "detected", res.Instance.State)
}

func TestListInstances(t *testing.T) {
	s := setupServer(t)
	first := createIncident(t, s)
	second := createIncident(t, s)

	w := doRequest(t, s, http.MethodGet, "/api/v1/instances?definition_id=incident&limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []instanceBody
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, second, list[0].ID)

	w = doRequest(t, s, http.MethodGet, "/api/v1/instances?offset=1", "")
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, first, list[0].ID)

	w = doRequest(t, s, http.MethodGet, "/api/v1/instances?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorMapping(t *testing.T) {
	s := setupServer(t)
	id := createIncident(t, s)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown instance", http.MethodGet, "/api/v1/instances/999", "", http.StatusNotFound},
		{"invalid instance id", http.MethodGet, "/api/v1/instances/abc", "", http.StatusBadRequest},
		{"history of unknown instance", http.MethodGet, "/api/v1/instances/999/history", "", http.StatusNotFound},
		{"unknown event", http.MethodPost, fmt.Sprintf("/api/v1/instances/%d/transitions/publish", id), "", http.StatusNotFound},
		{"invalid event name", http.MethodPost, fmt.Sprintf("/api/v1/instances/%d/transitions/9lives", id), "", http.StatusBadRequest},
		{"malformed fire body", http.MethodPost, fmt.Sprintf("/api/v1/instances/%d/transitions/triage", id), "{", http.StatusBadRequest},
		{"missing definition id", http.MethodPost, "/api/v1/instances", `{"data":{}}`, http.StatusBadRequest},
		{"unknown definition", http.MethodPost, "/api/v1/instances", `{"definition_id":"payroll"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.False(t, decode(t, w).Success)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupServer(t)
	createIncident(t, s)

	assert.Eventually(t, func() bool {
		w := doRequest(t, s, http.MethodGet, "/metrics", "")
		return w.Code == http.StatusOK &&
			strings.Contains(w.Body.String(), `workflow_instances_created_total{definition="incident"} 1`)
	}, 2*time.Second, 20*time.Millisecond)
}
