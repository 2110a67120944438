package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secops-portal/backend/internal/config"
	httpapi "github.com/secops-portal/backend/internal/http"
	"github.com/secops-portal/backend/internal/memstore"
	"github.com/secops-portal/backend/internal/models"
	"github.com/secops-portal/backend/internal/service"
)

type harness struct {
	t     *testing.T
	url   string
	store *memstore.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memstore.New()
	rules := &service.RoutingService{Backend: store, Logger: zerolog.Nop()}
	tasks := &service.TaskService{Backend: store, Rules: rules, Logger: zerolog.Nop()}
	srv := httptest.NewServer(httpapi.Router(config.Config{CORSAllowed: "*", AdminKey: "k"}, store, tasks, rules, nil, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return &harness{t: t, url: srv.URL + "/api", store: store}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	cmd := newCommand(config.ClientConfig{APIURL: h.url, AdminKey: "k", User: "A1"}, zerolog.Nop(), &out)
	err := cmd.Run(context.Background(), append([]string{"taskctl"}, args...))
	return out.String(), err
}

func TestClaimAndSubmitThroughAPI(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("rules", "save", "escort", "--users", "A1", "--users", "A2")
	require.NoError(t, err)

	req, err := h.store.CreateRequest(context.Background(), models.NewRequest{ServiceType: "escort", Title: "Night escort", RequestedBy: "U1"})
	require.NoError(t, err)

	out, err := h.run("queues")
	require.NoError(t, err)
	var queues models.TaskQueues
	require.NoError(t, json.Unmarshal([]byte(out), &queues))
	require.Len(t, queues.Available, 1)

	out, err = h.run("claim", req.ID)
	require.NoError(t, err)
	var claimed models.Request
	require.NoError(t, json.Unmarshal([]byte(out), &claimed))
	assert.Equal(t, models.StatusAssigned, claimed.Status)

	_, err = h.run("--user", "A2", "claim", req.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrClaimConflict)

	out, err = h.run("submit", req.ID, "Escort", "arranged")
	require.NoError(t, err)
	var done models.Request
	require.NoError(t, json.Unmarshal([]byte(out), &done))
	assert.Equal(t, models.StatusCompleted, done.Status)
	require.Len(t, done.Comments, 1)
	assert.Equal(t, "Escort arranged", done.Comments[0].Text)
}

func TestMissingArguments(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("claim")
	assert.Error(t, err)

	out, err := h.run("--user", "", "queues")
	require.NoError(t, err)
	var queues models.TaskQueues
	require.NoError(t, json.Unmarshal([]byte(out), &queues))
	assert.Empty(t, queues.Available)
	assert.NotNil(t, queues.Available)
}

func TestRulesNextAgent(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("rules", "next-agent", "escort")
	assert.ErrorIs(t, err, models.ErrNoAvailableAgent)

	_, err = h.run("rules", "save", "escort", "--users", "A2", "--users", "A1")
	require.NoError(t, err)

	out, err := h.run("rules", "next-agent", "escort")
	require.NoError(t, err)
	assert.JSONEq(t, `{"agent_id":"A1"}`, out)

	out, err = h.run("rules", "next-agent", "escort")
	require.NoError(t, err)
	assert.JSONEq(t, `{"agent_id":"A2"}`, out)
}

func TestParseData(t *testing.T) {
	data, err := parseData([]string{"visitors=2", "name=Jo", "escort=true"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), data["visitors"])
	assert.Equal(t, "Jo", data["name"])
	assert.Equal(t, true, data["escort"])

	_, err = parseData([]string{"novalue"})
	assert.Error(t, err)
}
