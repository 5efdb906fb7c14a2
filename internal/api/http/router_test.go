package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/helpdesk-hub/ticket-service/internal/api/http/handlers"
	"github.com/helpdesk-hub/ticket-service/internal/auth"
	"github.com/helpdesk-hub/ticket-service/internal/observability"
	"github.com/helpdesk-hub/ticket-service/internal/repository"
	"github.com/helpdesk-hub/ticket-service/internal/service"
)

type testServer struct {
	app     *fiber.App
	tokens  *auth.TokenManager
	metrics *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := repository.NewMemoryStore()
	metrics := observability.NewMetrics()
	deps := service.Dependencies{Store: store, Logger: logger, Metrics: metrics, MaxRetries: 3}
	tokens := auth.NewTokenManager("test-secret", 5)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("ticket-service", "test", map[string]handlers.Pinger{"store": store}, metrics),
		Tickets:        handlers.NewTicketsHandler(service.NewTicketService(deps)),
		SubTickets:     handlers.NewSubTicketsHandler(service.NewSubTicketService(deps)),
		Approvals:      handlers.NewApprovalsHandler(service.NewApprovalService(deps)),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, false),
	})
	return &testServer{app: app, tokens: tokens, metrics: metrics}
}

func (s *testServer) token(t *testing.T, subject string, role auth.Role) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(subject, role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data object: %v", body)
	return d
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func (s *testServer) createTicket(t *testing.T, token string) string {
	t.Helper()
	status, body := s.do(t, fiber.MethodPost, "/api/v1/tickets", token, map[string]any{
		"title":       "Printer offline",
		"description": "third floor",
		"priority":    "high",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	return data(t, body)["id"].(string)
}

func TestCreateTicketUsesCallerAsRequestor(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, "user-1", auth.RoleRequestor)

	status, body := srv.do(t, fiber.MethodPost, "/api/v1/tickets", token, map[string]any{
		"title": "Printer offline",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	ticket := data(t, body)
	assert.Equal(t, "user-1", ticket["requestor_id"])
	assert.Equal(t, "draft", ticket["status"])
	assert.Equal(t, "medium", ticket["priority"])
	assert.Nil(t, ticket["code"])
}

func TestCreateTicketValidation(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, "user-1", auth.RoleRequestor)

	status, body := srv.do(t, fiber.MethodPost, "/api/v1/tickets", token, map[string]any{
		"priority": "whenever",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "title")
	assert.Contains(t, details, "priority")
}

func TestTicketActionsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, "user-1", auth.RoleRequestor)
	id := srv.createTicket(t, token)

	status, body := srv.do(t, fiber.MethodPost, "/api/v1/tickets/"+id+"/actions", token, map[string]any{"action": "submit"})
	require.Equal(t, fiber.StatusOK, status, body)
	ticket := data(t, body)
	assert.Equal(t, "submitted", ticket["status"])
	assert.NotEmpty(t, ticket["code"])

	status, body = srv.do(t, fiber.MethodPost, "/api/v1/tickets/"+id+"/actions", token, map[string]any{"action": "teleport"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ACTION", errorCode(body))

	status, body = srv.do(t, fiber.MethodPost, "/api/v1/tickets/"+id+"/actions", token, map[string]any{"action": "resolve"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "INVALID_SOURCE_STATE", errorCode(body))

	status, body = srv.do(t, fiber.MethodPost, "/api/v1/tickets/"+id+"/actions", token, map[string]any{"action": "review"})
	require.Equal(t, fiber.StatusOK, status, body)

	status, body = srv.do(t, fiber.MethodPost, "/api/v1/tickets/"+id+"/assign", token, map[string]any{"assignee_id": "agent-7"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "assigned", data(t, body)["status"])

	status, body = srv.do(t, fiber.MethodGet, "/api/v1/tickets/"+id+"/history", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	logs := body["data"].([]any)
	require.Len(t, logs, 4)
	latest := logs[0].(map[string]any)
	assert.Equal(t, "user-1", latest["performed_by_id"])
	assert.Equal(t, "ticket assigned to agent-7", latest["reason"])
}

func TestModeratorRoutesRequireRole(t *testing.T) {
	srv := newTestServer(t)
	requestor := srv.token(t, "user-1", auth.RoleRequestor)
	moderator := srv.token(t, "mod-1", auth.RoleModerator)
	id := srv.createTicket(t, requestor)

	status, body := srv.do(t, fiber.MethodDelete, "/api/v1/tickets/"+id+"?reason=duplicate", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = srv.do(t, fiber.MethodDelete, "/api/v1/tickets/"+id+"?reason=duplicate", requestor, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, _ = srv.do(t, fiber.MethodDelete, "/api/v1/tickets/"+id+"?reason=duplicate", moderator, nil)
	assert.Equal(t, fiber.StatusNoContent, status)

	status, body = srv.do(t, fiber.MethodGet, "/api/v1/tickets/"+id, requestor, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = srv.do(t, fiber.MethodPost, "/api/v1/tickets/"+id+"/restore", moderator, map[string]any{"reason": "needed"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, false, data(t, body)["is_deleted"])
}

func TestInvalidTokenRejected(t *testing.T) {
	srv := newTestServer(t)
	status, body := srv.do(t, fiber.MethodGet, "/api/v1/tickets", "not-a-jwt", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestSubTicketsAndApprovalsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, "user-1", auth.RoleRequestor)
	id := srv.createTicket(t, token)

	status, body := srv.do(t, fiber.MethodPost, "/api/v1/tickets/"+id+"/sub-tickets", token, map[string]any{
		"title":         "Replace toner",
		"department_id": "facilities",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	subID := data(t, body)["id"].(string)

	status, body = srv.do(t, fiber.MethodPost, "/api/v1/sub-tickets/"+subID+"/actions", token, map[string]any{"action": "start_progress"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "in_progress", data(t, body)["status"])

	status, body = srv.do(t, fiber.MethodGet, "/api/v1/tickets/"+id+"/sub-tickets", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"].([]any), 1)

	status, body = srv.do(t, fiber.MethodPost, "/api/v1/approvals", token, map[string]any{
		"ticket_id":   id,
		"approver_id": "boss-1",
		"reason":      "budget",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	approvalID := data(t, body)["id"].(string)
	assert.Equal(t, "pending", data(t, body)["status"])

	status, body = srv.do(t, fiber.MethodPost, "/api/v1/approvals/"+approvalID+"/approve", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "approved", data(t, body)["status"])

	status, body = srv.do(t, fiber.MethodPost, "/api/v1/approvals/"+approvalID+"/reject", token, nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "INVALID_SOURCE_STATE", errorCode(body))
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, fiber.MethodGet, "/health/ready", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	status, body = srv.do(t, fiber.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = srv.do(t, fiber.MethodGet, "/metrics", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	snapshot := data(t, body)
	assert.NotEmpty(t, snapshot["requests"])
	assert.NotEmpty(t, snapshot["errors"])
}
