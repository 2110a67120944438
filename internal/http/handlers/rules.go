package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/secops-portal/backend/internal/models"
)

// @Summary List routing rules
// @Tags routing-rules
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/security-services/routing-rules [get]
func (h *Handler) RoutingRulesList(c *gin.Context) {
	rules, err := h.Rules.GetRoutingRules(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	writeData(c, http.StatusOK, rules)
}

// @Summary Get routing rule
// @Description Returns null data when the service type has no rule
// @Tags routing-rules
// @Produce json
// @Param serviceType path string true "Service type"
// @Success 200 {object} map[string]any
// @Router /api/security-services/routing-rules/{serviceType} [get]
func (h *Handler) RoutingRuleGet(c *gin.Context) {
	rule, err := h.Rules.GetRoutingRuleByServiceType(c.Request.Context(), c.Param("serviceType"))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeData(c, http.StatusOK, rule)
}

// @Summary Save routing rule
// @Tags routing-rules
// @Accept json
// @Produce json
// @Param payload body models.RoutingRule true "Rule"
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Router /api/security-services/routing-rules [post]
func (h *Handler) RoutingRuleSave(c *gin.Context) {
	var payload models.RoutingRule
	if !h.bind(c, &payload) {
		return
	}
	saved, err := h.Rules.SaveRoutingRule(c.Request.Context(), payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeData(c, http.StatusOK, saved)
}

// @Summary Delete routing rule
// @Tags routing-rules
// @Produce json
// @Param serviceType path string true "Service type"
// @Success 200 {object} map[string]any
// @Router /api/security-services/routing-rules/{serviceType} [delete]
func (h *Handler) RoutingRuleDelete(c *gin.Context) {
	serviceType := c.Param("serviceType")
	if err := h.Rules.DeleteRoutingRule(c.Request.Context(), serviceType); err != nil {
		h.fail(c, err)
		return
	}
	writeData(c, http.StatusOK, gin.H{"service_type": serviceType, "deleted": true})
}

// @Summary Next available agent
// @Description Advances the round-robin cursor of the rule
// @Tags routing-rules
// @Produce json
// @Param serviceType path string true "Service type"
// @Success 200 {object} map[string]any
// @Router /api/security-services/routing-rules/{serviceType}/next-agent [get]
func (h *Handler) NextAgent(c *gin.Context) {
	agentID, ok, err := h.Rules.GetNextAvailableAgent(c.Request.Context(), c.Param("serviceType"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		writeData(c, http.StatusOK, nil)
		return
	}
	writeData(c, http.StatusOK, gin.H{"agent_id": agentID})
}
