package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/secops-portal/backend/internal/models"
)

type userPayload struct {
	UserID string `json:"user_id" validate:"required"`
}

type statusPayload struct {
	Status     string  `json:"status" validate:"required"`
	UserID     string  `json:"user_id" validate:"required"`
	AssignedTo *string `json:"assigned_to"`
	Details    string  `json:"details" validate:"max=2000"`
}

type commentPayload struct {
	UserID           string `json:"user_id" validate:"required"`
	Text             string `json:"text" validate:"required,max=5000"`
	IsSendBackReason bool   `json:"is_send_back_reason"`
}

type submitPayload struct {
	UserID   string `json:"user_id" validate:"required"`
	Response string `json:"response" validate:"required,max=5000"`
}

type sendBackPayload struct {
	UserID string `json:"user_id" validate:"required"`
	Reason string `json:"reason" validate:"required,max=5000"`
}

type editPayload struct {
	UserID string `json:"user_id" validate:"required"`
	models.RequestFields
}

// @Summary Create request
// @Description Intake of a new request. When the service type has auto-assignment enabled the request is routed immediately.
// @Tags requests
// @Accept json
// @Produce json
// @Param payload body models.NewRequest true "Request"
// @Success 201 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Router /api/security-services/requests [post]
func (h *Handler) CreateRequest(c *gin.Context) {
	var payload models.NewRequest
	if !h.bind(c, &payload) {
		return
	}
	ctx := c.Request.Context()
	req, err := h.Store.CreateRequest(ctx, payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Logger.Info().Str("request_id", req.ID).Str("service_type", req.ServiceType).Msg("request created")

	if h.Rules != nil && h.Rules.IsAutoAssignEnabled(ctx, req.ServiceType) {
		assigned, err := h.Tasks.AutoAssignRequest(ctx, req.ID, req.RequestedBy)
		if err != nil {
			h.Logger.Warn().Err(err).Str("request_id", req.ID).Msg("auto-assignment on intake failed")
		} else {
			req = assigned
		}
	}
	writeData(c, http.StatusCreated, req)
}

// @Summary Get request
// @Tags requests
// @Produce json
// @Param id path string true "Request id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} ErrorResponse
// @Router /api/security-services/requests/{id} [get]
func (h *Handler) GetRequest(c *gin.Context) {
	req, err := h.Tasks.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeData(c, http.StatusOK, req)
}

// @Summary Request status history
// @Tags requests
// @Produce json
// @Param id path string true "Request id"
// @Success 200 {object} map[string]any
// @Router /api/security-services/requests/{id}/history [get]
func (h *Handler) RequestHistory(c *gin.Context) {
	entries, err := h.Tasks.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeData(c, http.StatusOK, entries)
}

// @Summary Edit request fields
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request id"
// @Param payload body editPayload true "Fields"
// @Success 200 {object} map[string]any
// @Router /api/security-services/requests/{id} [patch]
func (h *Handler) EditRequest(c *gin.Context) {
	var payload editPayload
	if !h.bind(c, &payload) {
		return
	}
	req, err := h.Tasks.SaveEditedRequest(c.Request.Context(), c.Param("id"), payload.RequestFields, payload.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeData(c, http.StatusOK, req)
}

// @Summary Claim request
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request id"
// @Param payload body userPayload true "Agent"
// @Success 200 {object} map[string]any
// @Failure 409 {object} ErrorResponse
// @Router /api/security-services/requests/{id}/claim [post]
func (h *Handler) ClaimRequest(c *gin.Context) {
	var payload userPayload
	if !h.bind(c, &payload) {
		return
	}
	req, err := h.Tasks.ClaimRequest(c.Request.Context(), c.Param("id"), payload.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeData(c, http.StatusOK, req)
}

// @Summary Auto-assign request
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request id"
// @Param payload body userPayload true "Actor"
// @Success 200 {object} map[string]any
// @Failure 422 {object} ErrorResponse
// @Router /api/security-services/requests/{id}/auto-assign [post]
func (h *Handler) AutoAssignRequest(c *gin.Context) {
	var payload userPayload
	if !h.bind(c, &payload) {
		return
	}
	req, err := h.Tasks.AutoAssignRequest(c.Request.Context(), c.Param("id"), payload.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeData(c, http.StatusOK, req)
}

// @Summary Update request status
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request id"
// @Param payload body statusPayload true "Status"
// @Success 200 {object} map[string]any
// @Failure 409 {object} ErrorResponse
// @Router /api/security-services/requests/{id}/status [put]
func (h *Handler) UpdateStatus(c *gin.Context) {
	var payload statusPayload
	if !h.bind(c, &payload) {
		return
	}
	status, err := models.ParseStatus(payload.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	extra := models.StatusExtra{AssignedTo: payload.AssignedTo, Details: payload.Details}
	req, err := h.Tasks.UpdateStatus(c.Request.Context(), c.Param("id"), status, payload.UserID, extra)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeData(c, http.StatusOK, req)
}

// @Summary Add comment
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request id"
// @Param payload body commentPayload true "Comment"
// @Success 201 {object} map[string]any
// @Router /api/security-services/requests/{id}/comments [post]
func (h *Handler) AddComment(c *gin.Context) {
	var payload commentPayload
	if !h.bind(c, &payload) {
		return
	}
	comment, err := h.Tasks.AddComment(c.Request.Context(), c.Param("id"), payload.Text, payload.UserID, payload.IsSendBackReason)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeData(c, http.StatusCreated, comment)
}

// @Summary Submit response
// @Description Records the response as a comment and completes the request
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request id"
// @Param payload body submitPayload true "Response"
// @Success 200 {object} map[string]any
// @Router /api/security-services/requests/{id}/submit [post]
func (h *Handler) SubmitResponse(c *gin.Context) {
	var payload submitPayload
	if !h.bind(c, &payload) {
		return
	}
	req, err := h.Tasks.SubmitResponse(c.Request.Context(), c.Param("id"), payload.Response, payload.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeData(c, http.StatusOK, req)
}

// @Summary Send back to requestor
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request id"
// @Param payload body sendBackPayload true "Reason"
// @Success 200 {object} map[string]any
// @Router /api/security-services/requests/{id}/send-back [post]
func (h *Handler) SendBack(c *gin.Context) {
	var payload sendBackPayload
	if !h.bind(c, &payload) {
		return
	}
	req, err := h.Tasks.SendBackToRequestor(c.Request.Context(), c.Param("id"), payload.Reason, payload.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeData(c, http.StatusOK, req)
}

// @Summary Return request to queue
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request id"
// @Param payload body userPayload true "Actor"
// @Success 200 {object} map[string]any
// @Router /api/security-services/requests/{id}/auto-return [post]
func (h *Handler) AutoReturn(c *gin.Context) {
	var payload userPayload
	if !h.bind(c, &payload) {
		return
	}
	req, err := h.Tasks.AutoReturnTask(c.Request.Context(), c.Param("id"), payload.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeData(c, http.StatusOK, req)
}
