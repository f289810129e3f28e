package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpdesk-sla/sla-service/internal/api/http/handlers"
	"github.com/helpdesk-sla/sla-service/internal/auth"
	"github.com/helpdesk-sla/sla-service/internal/domain"
	"github.com/helpdesk-sla/sla-service/internal/events"
	"github.com/helpdesk-sla/sla-service/internal/observability"
	"github.com/helpdesk-sla/sla-service/internal/repository/memory"
	"github.com/helpdesk-sla/sla-service/internal/service"
	"github.com/helpdesk-sla/sla-service/internal/sla"
	"github.com/helpdesk-sla/sla-service/internal/testhelpers"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	rule := testhelpers.NewRuleBuilder().WithTimes(120, 480).WithLevels(testhelpers.NotifyLevel(1, 60)).Build()
	tickets := memory.NewTicketStore(
		testhelpers.NewTicketBuilder().Build(),
		testhelpers.NewTicketBuilder().WithID("ticket-2").WithDepartment("dept-billing").Build(),
	)
	rules := memory.NewRuleStore(rule)
	escalations := memory.NewEscalationStore()
	calendars := sla.Calendars{sla.DefaultCalendarName: testhelpers.OfficeCalendar()}
	metrics := observability.NewMetrics()

	slaService := service.NewSLAService(service.SLADependencies{
		TicketRepo:     tickets,
		RuleRepo:       rules,
		EscalationRepo: escalations,
		PauseStore:     memory.NewPauseStore(),
		Calendars:      calendars,
		Dispatcher:     events.NewInMemoryDispatcher(),
		Metrics:        metrics,
		RetryInterval:  time.Millisecond,
		Clock:          func() time.Time { return testhelpers.At(100) },
	})
	ruleService := service.NewSLARuleService(service.RuleDependencies{
		RuleRepo:       rules,
		EscalationRepo: escalations,
		DepartmentRepo: memory.NewDepartmentStore(domain.Department{ID: "dept-support", Name: "Support"}),
		Calendars:      calendars,
	})

	tokens := auth.NewTokenManager("test-secret", 5)
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("sla-service", "test", nil, nil),
		SLA:            handlers.NewSLAHandler(slaService),
		Rules:          handlers.NewSLARulesHandler(ruleService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})
	return &testServer{app: app, tokens: tokens}
}

func (s *testServer) token(t *testing.T, subject domain.SubjectType, role domain.StaffRole) string {
	t.Helper()
	var rolePtr *domain.StaffRole
	if role != "" {
		rolePtr = &role
	}
	token, _, err := s.tokens.GenerateToken("subject-1", subject, rolePtr)
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
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded := map[string]any{}
	if len(raw) > 0 && json.Valid(raw) {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func errorCode(body map[string]any) string {
	envelope, _ := body["error"].(map[string]any)
	code, _ := envelope["code"].(string)
	return code
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = srv.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	deps, _ := body["dependencies"].(map[string]any)
	assert.Equal(t, "disabled", deps["postgres"])
	assert.Equal(t, "disabled", deps["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodGet, "/health/live", "", nil)

	resp, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "http_requests_total")
}

func TestAuthentication(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, http.MethodGet, "/api/v1/sla/status/ticket-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = srv.do(t, http.MethodGet, "/api/v1/sla/status/ticket-1", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = srv.do(t, http.MethodGet, "/api/v1/sla/status/ticket-1", srv.token(t, domain.SubjectTypeUser, ""), nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	other := auth.NewTokenManager("other-secret", 5)
	forged, _, err := other.GenerateToken("subject-1", domain.SubjectTypeStaff, nil)
	require.NoError(t, err)
	status, _ = srv.do(t, http.MethodGet, "/api/v1/sla/status/ticket-1", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestStatusEndpoints(t *testing.T) {
	srv := newTestServer(t)
	agent := srv.token(t, domain.SubjectTypeStaff, domain.StaffRoleAgent)

	status, body := srv.do(t, http.MethodGet, "/api/v1/sla/status/ticket-1", agent, nil)
	require.Equal(t, http.StatusOK, status)
	data, _ := body["data"].(map[string]any)
	assert.Equal(t, "ticket-1", data["ticket_id"])
	assert.Equal(t, "warning", data["response_status"])
	assert.Equal(t, "warning", data["overall_status"])
	assert.EqualValues(t, 20, data["response_time_remaining"])

	status, body = srv.do(t, http.MethodGet, "/api/v1/sla/status/nope", agent, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = srv.do(t, http.MethodGet, "/api/v1/sla/status?department_id=dept-billing", agent, nil)
	require.Equal(t, http.StatusOK, status)
	items, _ := body["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "ticket-2", items[0].(map[string]any)["ticket_id"])

	status, body = srv.do(t, http.MethodGet, "/api/v1/sla/report", agent, nil)
	require.Equal(t, http.StatusOK, status)
	report, _ := body["data"].(map[string]any)
	assert.EqualValues(t, 2, report["total"])
	assert.EqualValues(t, 2, report["at_risk"])
}

func TestPauseEndpoints(t *testing.T) {
	srv := newTestServer(t)
	agent := srv.token(t, domain.SubjectTypeStaff, domain.StaffRoleAgent)

	status, body := srv.do(t, http.MethodPost, "/api/v1/sla/pause", agent, map[string]string{"ticket_id": "ticket-1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = srv.do(t, http.MethodPost, "/api/v1/sla/pause", agent, map[string]string{
		"ticket_id": "ticket-1",
		"reason":    "waiting_customer",
	})
	require.Equal(t, http.StatusOK, status)
	data, _ := body["data"].(map[string]any)
	assert.Equal(t, "waiting_customer", data["reason"])
	assert.Nil(t, data["ended_at"])

	status, body = srv.do(t, http.MethodPost, "/api/v1/sla/pause", agent, map[string]string{
		"ticket_id": "ticket-1",
		"reason":    "waiting_customer",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "SLA_ALREADY_PAUSED", errorCode(body))

	status, body = srv.do(t, http.MethodGet, "/api/v1/sla/status/ticket-1", agent, nil)
	require.Equal(t, http.StatusOK, status)
	data, _ = body["data"].(map[string]any)
	assert.Equal(t, true, data["is_paused"])
	assert.Equal(t, "waiting_customer", data["pause_reason"])

	status, _ = srv.do(t, http.MethodPost, "/api/v1/sla/resume", agent, map[string]string{"ticket_id": "ticket-1"})
	assert.Equal(t, http.StatusOK, status)

	status, body = srv.do(t, http.MethodPost, "/api/v1/sla/resume", agent, map[string]string{"ticket_id": "ticket-1"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "SLA_NOT_PAUSED", errorCode(body))

	status, body = srv.do(t, http.MethodGet, "/api/v1/sla/pauses/ticket-1", agent, nil)
	require.Equal(t, http.StatusOK, status)
	items, _ := body["data"].([]any)
	assert.Len(t, items, 1)
}

func TestEscalationEndpoints(t *testing.T) {
	srv := newTestServer(t)
	agent := srv.token(t, domain.SubjectTypeStaff, domain.StaffRoleAgent)
	admin := srv.token(t, domain.SubjectTypeStaff, domain.StaffRoleAdmin)

	status, body := srv.do(t, http.MethodPost, "/api/v1/sla/escalations/ticket-1/check", agent, nil)
	require.Equal(t, http.StatusOK, status)
	items, _ := body["data"].([]any)
	require.Len(t, items, 1)
	assert.EqualValues(t, 1, items[0].(map[string]any)["level"])

	status, body = srv.do(t, http.MethodPost, "/api/v1/sla/escalations/sweep", agent, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, body = srv.do(t, http.MethodPost, "/api/v1/sla/escalations/sweep", admin, nil)
	require.Equal(t, http.StatusOK, status)
	data, _ := body["data"].(map[string]any)
	assert.EqualValues(t, 2, data["tickets"])
	assert.EqualValues(t, 1, data["fired"])
	assert.EqualValues(t, 0, data["failed"])
}

func TestEscalationHistoryEndpoint(t *testing.T) {
	srv := newTestServer(t)
	agent := srv.token(t, domain.SubjectTypeStaff, domain.StaffRoleAgent)

	status, body := srv.do(t, http.MethodGet, "/api/v1/sla/escalations/ticket-1", agent, nil)
	require.Equal(t, http.StatusOK, status)
	items, _ := body["data"].([]any)
	assert.Empty(t, items)

	status, _ = srv.do(t, http.MethodPost, "/api/v1/sla/escalations/ticket-1/check", agent, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = srv.do(t, http.MethodGet, "/api/v1/sla/escalations/ticket-1", agent, nil)
	require.Equal(t, http.StatusOK, status)
	items, _ = body["data"].([]any)
	require.Len(t, items, 1)
	firing := items[0].(map[string]any)
	assert.Equal(t, "ticket-1", firing["ticket_id"])
	assert.EqualValues(t, 1, firing["level"])

	status, body = srv.do(t, http.MethodGet, "/api/v1/sla/escalations/missing", agent, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestRuleEndpoints(t *testing.T) {
	srv := newTestServer(t)
	agent := srv.token(t, domain.SubjectTypeStaff, domain.StaffRoleAgent)
	lead := srv.token(t, domain.SubjectTypeStaff, domain.StaffRoleTeamLead)

	payload := map[string]any{
		"name":                "support critical",
		"department_id":       "dept-support",
		"priorities":          []string{"critical"},
		"first_response_time": 15,
		"resolution_time":     120,
		"escalation_levels": []map[string]any{
			{"level": 1, "trigger_time": 10, "action": "notify_user", "target_user_id": "lead-1", "clock": "response"},
		},
	}

	status, _ := srv.do(t, http.MethodPost, "/api/v1/sla/rules", agent, payload)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := srv.do(t, http.MethodPost, "/api/v1/sla/rules", lead, payload)
	require.Equal(t, http.StatusCreated, status)
	created, _ := body["data"].(map[string]any)
	assert.Equal(t, true, created["business_hours_only"])
	assert.Equal(t, true, created["is_active"])
	assert.EqualValues(t, 1, created["version"])
	id := created["id"]

	payload["resolution_time"] = 0
	status, body = srv.do(t, http.MethodPut, "/api/v1/sla/rules/2", lead, payload)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	payload["resolution_time"] = 240
	status, body = srv.do(t, http.MethodPut, "/api/v1/sla/rules/2", lead, payload)
	require.Equal(t, http.StatusOK, status)
	updated, _ := body["data"].(map[string]any)
	assert.Equal(t, id, updated["id"])
	assert.EqualValues(t, 2, updated["version"])

	status, body = srv.do(t, http.MethodGet, "/api/v1/sla/rules", agent, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 2)

	status, _ = srv.do(t, http.MethodDelete, "/api/v1/sla/rules/2", lead, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = srv.do(t, http.MethodGet, "/api/v1/sla/rules/2", agent, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = srv.do(t, http.MethodGet, "/api/v1/sla/rules/abc", agent, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)
	status, body := srv.do(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}
