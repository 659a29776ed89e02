package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/notify"
	"github.com/taskhive/flowengine/pkg/persistence/file"
	"github.com/taskhive/flowengine/pkg/registry"
	"github.com/taskhive/flowengine/pkg/services"
	"github.com/taskhive/flowengine/pkg/taskstore/memory"
	"github.com/taskhive/flowengine/pkg/web"
	"github.com/taskhive/flowengine/pkg/workflow"
)

type testEnv struct {
	app         *fiber.App
	persistence *file.Persistence
	store       *memory.Store
	dispatcher  *notify.RecordingDispatcher
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.Default()
	persistence := file.NewPersistence(t.TempDir())
	store := memory.NewStore()
	dispatcher := notify.NewRecordingDispatcher()

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultProcessors(store, dispatcher, http.DefaultClient, logger)

	controller := workflow.NewController(persistence, reg, nil, dispatcher, logger, nil, workflow.Config{})

	templateService := services.NewTemplate(persistence, reg)
	executionService := services.NewExecution(persistence, controller)
	handlers := web.NewAPIHandlers(templateService, executionService, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return &testEnv{app: app, persistence: persistence, store: store, dispatcher: dispatcher}
}

func doJSON(t *testing.T, app *fiber.App, method, target string, payload any) *http.Response {
	t.Helper()

	var body io.Reader

	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func validTemplateRequest() web.CreateTemplateRequest {
	return web.CreateTemplateRequest{
		Name:  "Onboarding",
		Owner: "ops",
		Nodes: []*models.Node{
			{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
			{ID: "create", Type: models.NodeTypeTask, Name: "Create task", Config: map[string]any{"title": "Welcome {{name}}"}},
			{ID: "end", Type: models.NodeTypeEnd, Name: "End"},
		},
		Connections: []*models.Connection{
			{Source: "start", Target: "create"},
			{Source: "create", Target: "end"},
		},
		Variables: map[string]any{"name": "newcomer"},
	}
}

func createTemplate(t *testing.T, env *testEnv) models.Template {
	t.Helper()

	resp := doJSON(t, env.app, http.MethodPost, "/templates", validTemplateRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var template models.Template
	decodeBody(t, resp, &template)

	return template
}

func TestCreateTemplate(t *testing.T) {
	env := setupTestApp(t)

	template := createTemplate(t, env)
	assert.NotEmpty(t, template.ID)
	assert.Equal(t, "Onboarding", template.Name)
	assert.Len(t, template.Nodes, 3)
}

func TestCreateTemplate_ValidationErrors(t *testing.T) {
	env := setupTestApp(t)

	tests := []struct {
		name   string
		mutate func(*web.CreateTemplateRequest)
	}{
		{"missing name", func(r *web.CreateTemplateRequest) { r.Name = "" }},
		{"missing owner", func(r *web.CreateTemplateRequest) { r.Owner = "" }},
		{"no nodes", func(r *web.CreateTemplateRequest) { r.Nodes = nil }},
		{"no start node", func(r *web.CreateTemplateRequest) { r.Nodes = r.Nodes[1:] }},
		{"task missing title", func(r *web.CreateTemplateRequest) { r.Nodes[1].Config = map[string]any{} }},
		{"dangling connection", func(r *web.CreateTemplateRequest) {
			r.Connections = append(r.Connections, &models.Connection{Source: "create", Target: "ghost"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validTemplateRequest()
			tt.mutate(&req)

			resp := doJSON(t, env.app, http.MethodPost, "/templates", req)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetTemplate(t *testing.T) {
	env := setupTestApp(t)
	template := createTemplate(t, env)

	resp := doJSON(t, env.app, http.MethodGet, "/templates/"+template.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loaded models.Template
	decodeBody(t, resp, &loaded)
	assert.Equal(t, template.ID, loaded.ID)

	resp = doJSON(t, env.app, http.MethodGet, "/templates/absent", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListTemplates(t *testing.T) {
	env := setupTestApp(t)
	createTemplate(t, env)
	createTemplate(t, env)

	resp := doJSON(t, env.app, http.MethodGet, "/templates", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Templates []models.Template `json:"templates"`
	}
	decodeBody(t, resp, &body)
	assert.Len(t, body.Templates, 2)
}

func TestDeleteTemplate(t *testing.T) {
	env := setupTestApp(t)
	template := createTemplate(t, env)

	resp := doJSON(t, env.app, http.MethodDelete, "/templates/"+template.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, env.app, http.MethodDelete, "/templates/"+template.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateExecution(t *testing.T) {
	env := setupTestApp(t)
	template := createTemplate(t, env)

	resp := doJSON(t, env.app, http.MethodPost, "/templates/"+template.ID+"/executions", web.CreateExecutionRequest{
		TriggeredBy: "ann",
		Variables:   map[string]any{"name": "Bea"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Execution models.Execution `json:"execution"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, models.ExecutionStatusPending, body.Execution.Status)
	assert.Equal(t, "Bea", body.Execution.Variables["name"])
	assert.Equal(t, "ann", body.Execution.TriggeredBy)
}

func TestCreateExecution_UnknownTemplate(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/templates/absent/executions", web.CreateExecutionRequest{
		TriggeredBy: "ann",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExecutionLifecycleOverHTTP(t *testing.T) {
	env := setupTestApp(t)
	template := createTemplate(t, env)

	resp := doJSON(t, env.app, http.MethodPost, "/templates/"+template.ID+"/executions", web.CreateExecutionRequest{
		TriggeredBy: "ann",
		Start:       true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Execution models.Execution       `json:"execution"`
		Outcome   workflow.StartOutcome  `json:"outcome"`
	}
	decodeBody(t, resp, &created)
	assert.Equal(t, workflow.StartOutcomeStarted, created.Outcome)

	require.Eventually(t, func() bool {
		resp := doJSON(t, env.app, http.MethodGet, "/executions/"+created.Execution.ID, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}

		var status workflow.Status
		decodeBody(t, resp, &status)

		return status.Status == models.ExecutionStatusCompleted
	}, 3*time.Second, 10*time.Millisecond)

	// Task node ran with template default variables.
	tasks := env.store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "Welcome newcomer", tasks[0].Title)

	// Restarting a completed execution conflicts.
	resp = doJSON(t, env.app, http.MethodPost, "/executions/"+created.Execution.ID+"/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCancelExecutionOverHTTP(t *testing.T) {
	env := setupTestApp(t)
	template := createTemplate(t, env)

	resp := doJSON(t, env.app, http.MethodPost, "/templates/"+template.ID+"/executions", web.CreateExecutionRequest{
		TriggeredBy: "ann",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Execution models.Execution `json:"execution"`
	}
	decodeBody(t, resp, &created)

	resp = doJSON(t, env.app, http.MethodPost, "/executions/"+created.Execution.ID+"/cancel", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, env.app, http.MethodPost, "/executions/"+created.Execution.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestApprovalEndpoint(t *testing.T) {
	env := setupTestApp(t)

	// Template with an approval gate before the task.
	req := web.CreateTemplateRequest{
		Name:  "Signoff flow",
		Owner: "ops",
		Nodes: []*models.Node{
			{ID: "start", Type: models.NodeTypeStart},
			{ID: "gate", Type: models.NodeTypeApproval, Config: map[string]any{"approver": "manager"}},
			{ID: "work", Type: models.NodeTypeTask, Config: map[string]any{"title": "Approved work"}},
			{ID: "end", Type: models.NodeTypeEnd},
		},
		Connections: []*models.Connection{
			{Source: "start", Target: "gate"},
			{Source: "gate", Target: "work"},
			{Source: "work", Target: "end"},
		},
	}

	resp := doJSON(t, env.app, http.MethodPost, "/templates", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var template models.Template
	decodeBody(t, resp, &template)

	resp = doJSON(t, env.app, http.MethodPost, "/templates/"+template.ID+"/executions", web.CreateExecutionRequest{
		TriggeredBy: "ann",
		Start:       true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Execution models.Execution `json:"execution"`
	}
	decodeBody(t, resp, &created)

	executionID := created.Execution.ID
	approvalPath := "/executions/" + executionID + "/steps/gate/approval"

	require.Eventually(t, func() bool {
		resp := doJSON(t, env.app, http.MethodGet, "/executions/"+executionID, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}

		var status workflow.Status
		decodeBody(t, resp, &status)

		for _, step := range status.Steps {
			if step.NodeID == "gate" && step.Status == models.StepStatusWaitingApproval {
				return true
			}
		}

		return false
	}, 3*time.Second, 10*time.Millisecond)

	// Wrong approver conflicts.
	resp = doJSON(t, env.app, http.MethodPost, approvalPath, web.ApprovalRequest{
		ApproverID: "intern",
		Decision:   "approved",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Bad decision fails request validation.
	resp = doJSON(t, env.app, http.MethodPost, approvalPath, web.ApprovalRequest{
		ApproverID: "manager",
		Decision:   "maybe",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Correct approver approves and the flow completes.
	resp = doJSON(t, env.app, http.MethodPost, approvalPath, web.ApprovalRequest{
		ApproverID: "manager",
		Decision:   "approved",
		Comment:    "go ahead",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp := doJSON(t, env.app, http.MethodGet, "/executions/"+executionID, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}

		var status workflow.Status
		decodeBody(t, resp, &status)

		return status.Status == models.ExecutionStatusCompleted
	}, 3*time.Second, 10*time.Millisecond)

	tasks := env.store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "Approved work", tasks[0].Title)
}

func TestListExecutionsByTemplate(t *testing.T) {
	env := setupTestApp(t)
	template := createTemplate(t, env)

	for range 2 {
		resp := doJSON(t, env.app, http.MethodPost, "/templates/"+template.ID+"/executions", web.CreateExecutionRequest{
			TriggeredBy: "ann",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := doJSON(t, env.app, http.MethodGet, "/templates/"+template.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Executions []models.Execution `json:"executions"`
	}
	decodeBody(t, resp, &body)
	assert.Len(t, body.Executions, 2)
}

func TestHealthEndpoints(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, env.app, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
