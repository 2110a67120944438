package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/secops-portal/backend/internal/models"
)

type queueFunc func(ctx context.Context, agentID string) ([]models.Request, error)

func (h *Handler) queue(c *gin.Context, fetch queueFunc) {
	agentID := c.Param("userId")
	reqs, err := fetch(c.Request.Context(), agentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if reqs == nil {
		reqs = []models.Request{}
	}
	writeData(c, http.StatusOK, reqs)
}

// @Summary Available requests
// @Description New, unclaimed requests of service types the user is routed to
// @Tags tasks
// @Produce json
// @Param userId path string true "Agent id"
// @Success 200 {object} map[string]any
// @Router /api/security-services/tasks/available/{userId} [get]
func (h *Handler) AvailableTasks(c *gin.Context) {
	h.queue(c, h.Tasks.Backend.AvailableRequests)
}

// @Summary Assigned requests
// @Tags tasks
// @Produce json
// @Param userId path string true "Agent id"
// @Success 200 {object} map[string]any
// @Router /api/security-services/tasks/assigned/{userId} [get]
func (h *Handler) AssignedTasks(c *gin.Context) {
	h.queue(c, h.Tasks.Backend.AssignedRequests)
}

// @Summary Submitted requests
// @Tags tasks
// @Produce json
// @Param userId path string true "Agent id"
// @Success 200 {object} map[string]any
// @Router /api/security-services/tasks/submitted/{userId} [get]
func (h *Handler) SubmittedTasks(c *gin.Context) {
	h.queue(c, h.Tasks.Backend.SubmittedRequests)
}

// @Summary Sent back requests
// @Tags tasks
// @Produce json
// @Param userId path string true "Agent id"
// @Success 200 {object} map[string]any
// @Router /api/security-services/tasks/sent-back/{userId} [get]
func (h *Handler) SentBackTasks(c *gin.Context) {
	h.queue(c, h.Tasks.Backend.SentBackRequests)
}

// @Summary All task queues of an agent
// @Tags tasks
// @Produce json
// @Param userId path string true "Agent id"
// @Success 200 {object} map[string]any
// @Failure 502 {object} ErrorResponse
// @Router /api/security-services/tasks/queues/{userId} [get]
func (h *Handler) TaskQueues(c *gin.Context) {
	queues, err := h.Tasks.FetchRequests(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.Logger.Error().Err(err).Str("agent_id", c.Param("userId")).Msg("queue fetch failed")
		writeError(c, http.StatusBadGateway, "UPSTREAM_ERROR", "Failed to load task queues", err.Error())
		return
	}
	writeData(c, http.StatusOK, queues)
}
