package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tophand/backend/internal/models"
	"github.com/tophand/backend/internal/service"
)

type VerifyKitRequest struct {
	JobID           string                  `json:"job_id" validate:"required"`
	VerifiedBy      string                  `json:"verified_by" validate:"required"`
	Method          string                  `json:"verification_method"`
	Checklist       []models.ChecklistEntry `json:"checklist" validate:"required,min=1"`
	OverrideMissing bool                    `json:"override_missing"`
	SupervisorID    string                  `json:"supervisor_id"`
	Priority        string                  `json:"priority"`
}

// @Summary Verify kit
// @Description Checks a checklist against the kit. Missing or damaged required items fail with 422 unless override_missing is set, in which case one override is recorded per item and the supervisor is notified.
// @Tags kits
// @Accept json
// @Produce json
// @Param X-Tenant-Id header string true "Tenant"
// @Param id path string true "Kit ID"
// @Param body body VerifyKitRequest true "Verification"
// @Success 201 {object} models.KitVerification
// @Failure 422 {object} map[string]any
// @Router /api/kits/{id}/verifications [post]
func (h *Handler) VerifyKit(c *gin.Context) {
	var req VerifyKitRequest
	if !h.bind(c, &req) {
		return
	}
	v, err := h.Kits.VerifyKit(c.Request.Context(), service.VerifyKitRequest{
		TenantID:        tenantID(c),
		JobID:           req.JobID,
		KitID:           c.Param("id"),
		VerifiedBy:      req.VerifiedBy,
		Method:          req.Method,
		Checklist:       req.Checklist,
		OverrideMissing: req.OverrideMissing,
		SupervisorID:    req.SupervisorID,
		Priority:        req.Priority,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// @Summary Override analytics
// @Description Aggregates a kit's overrides between start and end (inclusive dates, default last 30 days).
// @Tags kits
// @Produce json
// @Param X-Tenant-Id header string true "Tenant"
// @Param id path string true "Kit ID"
// @Param start query string false "Start date (YYYY-MM-DD)"
// @Param end query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} service.Analytics
// @Router /api/kits/{id}/override-analytics [get]
func (h *Handler) OverrideAnalytics(c *gin.Context) {
	var start, end time.Time
	if v := c.Query("start"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid start date", err.Error())
			return
		}
		start = d
	}
	if v := c.Query("end"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid end date", err.Error())
			return
		}
		end = d.AddDate(0, 0, 1)
	}
	result, err := h.Analytics.GetOverrideAnalytics(c.Request.Context(), tenantID(c), c.Param("id"), start, end)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
