package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/secops-portal/backend/internal/models"
	"github.com/secops-portal/backend/internal/service"
)

// Store is the part of the persistence layer the handlers use directly. The
// workflow itself goes through Tasks and Rules.
type Store interface {
	Ping(ctx context.Context) error
	CreateRequest(ctx context.Context, in models.NewRequest) (models.Request, error)
}

type Handler struct {
	Store     Store
	Tasks     *service.TaskService
	Rules     *service.RoutingService
	Validator *validator.Validate
	Logger    zerolog.Logger
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} ErrorResponse
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// bind decodes the JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if h.Validator != nil {
		if err := h.Validator.Struct(dst); err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
			return false
		}
	}
	return true
}

// fail maps a workflow error onto a status code and error envelope.
func (h *Handler) fail(c *gin.Context, err error) {
	status, code := classify(err)

	var details any
	var stage *service.StageError
	if errors.As(err, &stage) {
		details = gin.H{"completed": stage.Completed, "failed": stage.Failed}
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	writeError(c, status, code, service.ErrorMessage(err), details)
}

func classify(err error) (int, string) {
	switch {
	case models.IsValidation(err):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, models.ErrClaimConflict):
		return http.StatusConflict, "CLAIM_CONFLICT"
	case errors.Is(err, models.ErrClaimChanged):
		return http.StatusConflict, "CLAIM_CHANGED"
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, models.ErrNotEligible):
		return http.StatusForbidden, "NOT_ELIGIBLE"
	case errors.Is(err, models.ErrAutoAssignDisabled):
		return http.StatusUnprocessableEntity, "AUTO_ASSIGN_DISABLED"
	case errors.Is(err, models.ErrNoAvailableAgent):
		return http.StatusUnprocessableEntity, "NO_AVAILABLE_AGENT"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func writeData(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
