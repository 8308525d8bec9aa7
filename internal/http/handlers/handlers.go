package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/tophand/backend/internal/apperr"
	"github.com/tophand/backend/internal/http/middleware"
	"github.com/tophand/backend/internal/service"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Store      Pinger
	Scheduling *service.SchedulingCoordinator
	Kits       *service.KitVerificationCoordinator
	Overrides  *service.OverrideWorkflow
	Analytics  *service.OverrideAnalytics
	Validator  *validator.Validate
	Logger     zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if h.Validator == nil {
		return true
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

// fail maps engine errors onto the response envelope.
func (h *Handler) fail(c *gin.Context, err error) {
	var (
		limitErr   *apperr.LimitExceededError
		missingErr *apperr.MissingRequiredItemError
		validErr   *apperr.ValidationError
	)
	switch {
	case errors.As(err, &limitErr):
		writeError(c, http.StatusConflict, "LIMIT_EXCEEDED", err.Error(), gin.H{
			"limit":         limitErr.Limit,
			"technician_id": limitErr.TechnicianID,
		})
	case errors.As(err, &missingErr):
		writeError(c, http.StatusUnprocessableEntity, "MISSING_REQUIRED_ITEM", err.Error(), gin.H{
			"item_ids": missingErr.ItemIDs,
		})
	case errors.As(err, &validErr):
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", gin.H{
			"field":  validErr.Field,
			"reason": validErr.Reason,
		})
	case errors.Is(err, apperr.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, apperr.ErrNotificationChannel):
		writeError(c, http.StatusBadGateway, "NOTIFICATION_FAILED", "Notification delivery failed", err.Error())
	default:
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", nil)
	}
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

func tenantID(c *gin.Context) string { return c.GetString(middleware.TenantKey) }

func actorID(c *gin.Context) string { return c.GetString(middleware.ActorKey) }

func parseDate(value string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, value, time.UTC)
}
