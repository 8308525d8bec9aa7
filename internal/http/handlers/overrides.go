package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tophand/backend/internal/service"
)

// @Summary Create kit override
// @Description Records an override for one item and escalates it to the supervisor. Notification failure does not fail the request.
// @Tags overrides
// @Accept json
// @Produce json
// @Param X-Tenant-Id header string true "Tenant"
// @Param body body service.OverrideParams true "Override"
// @Success 201 {object} models.OverrideLog
// @Router /api/kit-overrides [post]
func (h *Handler) CreateOverride(c *gin.Context) {
	var req service.OverrideParams
	if !h.bind(c, &req) {
		return
	}
	req.TenantID = tenantID(c)
	log, err := h.Overrides.CreateOverride(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, log)
}

// @Summary Create kit override from a voice command
// @Tags overrides
// @Accept json
// @Produce json
// @Param X-Tenant-Id header string true "Tenant"
// @Param body body service.VoiceOverrideParams true "Voice override"
// @Success 201 {object} models.OverrideLog
// @Router /api/kit-overrides/voice [post]
func (h *Handler) CreateVoiceOverride(c *gin.Context) {
	var req service.VoiceOverrideParams
	if !h.bind(c, &req) {
		return
	}
	req.TenantID = tenantID(c)
	log, err := h.Overrides.CreateOverrideFromVoice(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, log)
}

// @Summary Get kit override
// @Tags overrides
// @Produce json
// @Param X-Tenant-Id header string true "Tenant"
// @Param id path string true "Override ID"
// @Success 200 {object} models.OverrideLog
// @Router /api/kit-overrides/{id} [get]
func (h *Handler) GetOverride(c *gin.Context) {
	log, err := h.Overrides.GetOverride(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if log.TenantID != tenantID(c) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Override not found", nil)
		return
	}
	c.JSON(http.StatusOK, log)
}
