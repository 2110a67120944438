package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secops-portal/backend/internal/config"
	"github.com/secops-portal/backend/internal/memstore"
	"github.com/secops-portal/backend/internal/metrics"
	"github.com/secops-portal/backend/internal/models"
	"github.com/secops-portal/backend/internal/service"
)

const adminKey = "admin-secret"

type api struct {
	t      *testing.T
	engine *gin.Engine
	store  *memstore.Store
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memstore.New()
	rec := metrics.NewRecorder(prometheus.NewRegistry())
	rules := &service.RoutingService{Backend: store, Logger: zerolog.Nop()}
	tasks := &service.TaskService{Backend: store, Rules: rules, Metrics: rec, Logger: zerolog.Nop()}
	cfg := config.Config{CORSAllowed: "*", AdminKey: adminKey}
	return &api{t: t, engine: Router(cfg, store, tasks, rules, rec, zerolog.Nop()), store: store}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *api) call(method, path string, body any, headers ...string) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func (a *api) saveRule(rule models.RoutingRule) {
	a.t.Helper()
	code, _ := a.call(http.MethodPost, "/api/security-services/routing-rules", rule, "X-Admin-Key", adminKey)
	require.Equal(a.t, http.StatusOK, code)
}

func (a *api) create(serviceType string) models.Request {
	a.t.Helper()
	code, env := a.call(http.MethodPost, "/api/security-services/requests", map[string]any{
		"service_type": serviceType,
		"title":        "Escort for contractor",
		"requested_by": "U1",
	})
	require.Equal(a.t, http.StatusCreated, code)
	var r models.Request
	require.NoError(a.t, json.Unmarshal(env.Data, &r))
	return r
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestClaimAndSubmitFlow(t *testing.T) {
	a := newAPI(t)
	a.saveRule(models.RoutingRule{ServiceType: "escort", IsActive: true, AssignedUsers: []string{"A1", "A2"}})
	r := a.create("escort")

	code, env := a.call(http.MethodGet, "/api/security-services/tasks/available/A1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]models.Request](t, env), 1)

	code, env = a.call(http.MethodPost, "/api/security-services/requests/"+r.ID+"/claim", map[string]string{"user_id": "A1"})
	require.Equal(t, http.StatusOK, code)
	claimed := decode[models.Request](t, env)
	assert.Equal(t, models.StatusAssigned, claimed.Status)
	require.NotNil(t, claimed.AssignedTo)
	assert.Equal(t, "A1", *claimed.AssignedTo)

	code, env = a.call(http.MethodPost, "/api/security-services/requests/"+r.ID+"/claim", map[string]string{"user_id": "A2"})
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CLAIM_CONFLICT", env.Error.Code)

	code, env = a.call(http.MethodPost, "/api/security-services/requests/"+r.ID+"/submit", map[string]string{"user_id": "A1", "response": "Escort booked"})
	require.Equal(t, http.StatusOK, code)
	done := decode[models.Request](t, env)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Nil(t, done.AssignedTo)

	code, env = a.call(http.MethodGet, "/api/security-services/tasks/queues/A1", nil)
	require.Equal(t, http.StatusOK, code)
	queues := decode[models.TaskQueues](t, env)
	assert.Len(t, queues.Submitted, 1)
	assert.Empty(t, queues.Available)
	assert.Empty(t, queues.Assigned)

	code, env = a.call(http.MethodGet, "/api/security-services/requests/"+r.ID+"/history", nil)
	require.Equal(t, http.StatusOK, code)
	history := decode[[]models.HistoryEntry](t, env)
	require.Len(t, history, 2)
	assert.Equal(t, models.StatusAssigned, history[0].ToStatus)
	assert.Equal(t, models.StatusCompleted, history[1].ToStatus)
}

func TestSendBackFlow(t *testing.T) {
	a := newAPI(t)
	a.saveRule(models.RoutingRule{ServiceType: "escort", IsActive: true, AssignedUsers: []string{"A1"}})
	r := a.create("escort")

	code, _ := a.call(http.MethodPost, "/api/security-services/requests/"+r.ID+"/claim", map[string]string{"user_id": "A1"})
	require.Equal(t, http.StatusOK, code)

	code, env := a.call(http.MethodPost, "/api/security-services/requests/"+r.ID+"/send-back", map[string]string{"user_id": "A1", "reason": "Missing visitor name"})
	require.Equal(t, http.StatusOK, code)
	sent := decode[models.Request](t, env)
	assert.Equal(t, models.StatusSentBack, sent.Status)
	require.Len(t, sent.Comments, 1)
	assert.True(t, sent.Comments[0].IsSendBackReason)

	code, env = a.call(http.MethodGet, "/api/security-services/tasks/sent-back/A1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]models.Request](t, env), 1)
}

func TestStatusEndpointErrors(t *testing.T) {
	a := newAPI(t)
	a.saveRule(models.RoutingRule{ServiceType: "escort", IsActive: true, AssignedUsers: []string{"A1"}})
	r := a.create("escort")

	code, env := a.call(http.MethodPut, "/api/security-services/requests/"+r.ID+"/status", map[string]string{"user_id": "A1", "status": "archived"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	code, env = a.call(http.MethodPut, "/api/security-services/requests/"+r.ID+"/status", map[string]string{"user_id": "A1", "status": "completed"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)

	code, env = a.call(http.MethodGet, "/api/security-services/requests/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/security-services/requests/"+r.ID+"/claim", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotEligibleClaim(t *testing.T) {
	a := newAPI(t)
	a.saveRule(models.RoutingRule{ServiceType: "escort", IsActive: true, AssignedUsers: []string{"A1"}})
	r := a.create("escort")

	code, env := a.call(http.MethodPost, "/api/security-services/requests/"+r.ID+"/claim", map[string]string{"user_id": "B9"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "NOT_ELIGIBLE", env.Error.Code)

	code, env = a.call(http.MethodPut, "/api/security-services/requests/"+r.ID+"/status", map[string]string{"user_id": "A1", "status": "assigned", "assigned_to": "B9"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "NOT_ELIGIBLE", env.Error.Code)

	code, env = a.call(http.MethodGet, "/api/security-services/requests/"+r.ID, nil)
	require.Equal(t, http.StatusOK, code)
	current := decode[models.Request](t, env)
	assert.Equal(t, models.StatusNew, current.Status)
	assert.Nil(t, current.AssignedTo)
}

func TestBlankCommentRejected(t *testing.T) {
	a := newAPI(t)
	r := a.create("escort")

	code, env := a.call(http.MethodPost, "/api/security-services/requests/"+r.ID+"/comments", map[string]string{"user_id": "A1", "text": "   "})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	code, _ = a.call(http.MethodPost, "/api/security-services/requests/"+r.ID+"/comments", map[string]string{"user_id": "A1", "text": "Spoke to reception"})
	assert.Equal(t, http.StatusCreated, code)
}

func TestIntakeAutoAssigns(t *testing.T) {
	a := newAPI(t)
	a.saveRule(models.RoutingRule{ServiceType: "badge", IsActive: true, AutoAssign: true, AssignedUsers: []string{"A2", "A1"}})

	first := a.create("badge")
	second := a.create("badge")
	require.NotNil(t, first.AssignedTo)
	require.NotNil(t, second.AssignedTo)
	assert.Equal(t, "A1", *first.AssignedTo)
	assert.Equal(t, "A2", *second.AssignedTo)
}

func TestRoutingRuleAdmin(t *testing.T) {
	a := newAPI(t)
	rule := models.RoutingRule{ServiceType: "escort", IsActive: true, AssignedUsers: []string{"A1", "A1", "A2"}}

	code, env := a.call(http.MethodPost, "/api/security-services/routing-rules", rule)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	a.saveRule(rule)
	code, env = a.call(http.MethodGet, "/api/security-services/routing-rules/escort", nil)
	require.Equal(t, http.StatusOK, code)
	got := decode[models.RoutingRule](t, env)
	assert.Equal(t, []string{"A1", "A2"}, got.AssignedUsers)
	assert.Equal(t, models.StrategyRoundRobin, got.Strategy)

	code, env = a.call(http.MethodGet, "/api/security-services/routing-rules/escort/next-agent", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"agent_id":"A1"}`, string(env.Data))

	code, _ = a.call(http.MethodDelete, "/api/security-services/routing-rules/escort", nil, "X-Admin-Key", adminKey)
	require.Equal(t, http.StatusOK, code)

	code, env = a.call(http.MethodGet, "/api/security-services/routing-rules/escort", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "null", string(env.Data))

	code, env = a.call(http.MethodGet, "/api/security-services/routing-rules/escort/next-agent", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "null", string(env.Data))
}

func TestEditRequest(t *testing.T) {
	a := newAPI(t)
	r := a.create("escort")

	code, env := a.call(http.MethodPatch, "/api/security-services/requests/"+r.ID, map[string]any{
		"user_id": "A1",
		"title":   "Escort for two contractors",
		"data":    map[string]any{"visitors": 2},
	})
	require.Equal(t, http.StatusOK, code)
	edited := decode[models.Request](t, env)
	assert.Equal(t, "Escort for two contractors", edited.Title)
	assert.Equal(t, models.StatusNew, edited.Status)
	require.NotNil(t, edited.UpdatedBy)
	assert.Equal(t, "A1", *edited.UpdatedBy)

	code, env = a.call(http.MethodPatch, "/api/security-services/requests/"+r.ID, map[string]any{"user_id": "A1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No fields to update", env.Error.Message)
}

func TestAutoReturnEndpoint(t *testing.T) {
	a := newAPI(t)
	a.saveRule(models.RoutingRule{ServiceType: "escort", IsActive: true, AssignedUsers: []string{"A1"}})
	r := a.create("escort")
	_, _, err := a.store.ClaimRequest(context.Background(), r.ID, "A1")
	require.NoError(t, err)

	code, env := a.call(http.MethodPost, "/api/security-services/requests/"+r.ID+"/auto-return", map[string]string{"user_id": "system"})
	require.Equal(t, http.StatusOK, code)
	back := decode[models.Request](t, env)
	assert.Equal(t, models.StatusNew, back.Status)
	assert.Nil(t, back.AssignedTo)
	assert.Equal(t, service.AutoReturnDetails, back.Details)
}

func TestRequestIDHeader(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req_fixed")
	w = httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	assert.Equal(t, "req_fixed", w.Header().Get("X-Request-Id"))
}
