package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tophand/backend/internal/models"
	"github.com/tophand/backend/internal/service"
)

type CreateDayPlanRequest struct {
	TechnicianID string                 `json:"technician_id" validate:"required"`
	PlanDate     string                 `json:"plan_date" validate:"required,datetime=2006-01-02"`
	Events       []models.ScheduleEvent `json:"schedule_events"`
	Route        *models.RouteSummary   `json:"route_summary"`
}

type AssignCrewRequest struct {
	TechnicianID   string          `json:"technician_id" validate:"required"`
	Role           models.CrewRole `json:"role" validate:"required,oneof=lead helper"`
	TeamMembers    []string        `json:"team_members"`
	VoiceConfirmed bool            `json:"voice_confirmed"`
}

// @Summary Create day plan
// @Description Creates a technician's plan for one date, optionally with initial events. Job events beyond the tenant limit reject the whole plan.
// @Tags scheduling
// @Accept json
// @Produce json
// @Param X-Tenant-Id header string true "Tenant"
// @Param body body CreateDayPlanRequest true "Day plan"
// @Success 201 {object} models.DayPlan
// @Failure 409 {object} map[string]any
// @Router /api/day-plans [post]
func (h *Handler) CreateDayPlan(c *gin.Context) {
	var req CreateDayPlanRequest
	if !h.bind(c, &req) {
		return
	}
	day, err := parseDate(req.PlanDate)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	plan, err := h.Scheduling.CreateDayPlan(c.Request.Context(), service.CreateDayPlanRequest{
		TenantID:     tenantID(c),
		TechnicianID: req.TechnicianID,
		PlanDate:     day,
		Events:       req.Events,
		Route:        req.Route,
		ActorID:      actorID(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

// @Summary Get day plan
// @Tags scheduling
// @Produce json
// @Param X-Tenant-Id header string true "Tenant"
// @Param id path string true "Day plan ID"
// @Success 200 {object} models.DayPlan
// @Router /api/day-plans/{id} [get]
func (h *Handler) GetDayPlan(c *gin.Context) {
	plan, err := h.Scheduling.GetDayPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if plan.TenantID != tenantID(c) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Day plan not found", nil)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// @Summary Schedule event
// @Description Adds a job, break or travel event. Job events are refused once the plan holds the daily limit.
// @Tags scheduling
// @Accept json
// @Produce json
// @Param X-Tenant-Id header string true "Tenant"
// @Param id path string true "Day plan ID"
// @Param body body models.ScheduleEvent true "Event"
// @Success 201 {object} models.ScheduleEvent
// @Failure 409 {object} map[string]any
// @Router /api/day-plans/{id}/events [post]
func (h *Handler) ScheduleEvent(c *gin.Context) {
	var ev models.ScheduleEvent
	if !h.bind(c, &ev) {
		return
	}
	if !h.ownsPlan(c, c.Param("id")) {
		return
	}
	created, err := h.Scheduling.ScheduleEvent(c.Request.Context(), c.Param("id"), ev, actorID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// @Summary Remove event
// @Tags scheduling
// @Param X-Tenant-Id header string true "Tenant"
// @Param id path string true "Day plan ID"
// @Param eventId path string true "Event ID"
// @Success 204
// @Router /api/day-plans/{id}/events/{eventId} [delete]
func (h *Handler) RemoveEvent(c *gin.Context) {
	if !h.ownsPlan(c, c.Param("id")) {
		return
	}
	if err := h.Scheduling.RemoveEvent(c.Request.Context(), c.Param("id"), c.Param("eventId"), actorID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Assign crew
// @Description Adds the technician in the given role and team members as helpers to a job event. Crew does not count toward job limits.
// @Tags scheduling
// @Accept json
// @Produce json
// @Param X-Tenant-Id header string true "Tenant"
// @Param id path string true "Schedule event ID"
// @Param body body AssignCrewRequest true "Crew"
// @Success 201 {object} map[string]any
// @Router /api/schedule-events/{id}/crew [post]
func (h *Handler) AssignCrew(c *gin.Context) {
	var req AssignCrewRequest
	if !h.bind(c, &req) {
		return
	}
	ev, err := h.Scheduling.Store.GetScheduleEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !h.ownsPlan(c, ev.DayPlanID) {
		return
	}
	rows, err := h.Scheduling.AssignCrew(c.Request.Context(), service.AssignCrewRequest{
		ScheduleEventID: c.Param("id"),
		TechnicianID:    req.TechnicianID,
		Role:            req.Role,
		TeamMembers:     req.TeamMembers,
		VoiceConfirmed:  req.VoiceConfirmed,
		ActorID:         actorID(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"items": rows})
}

// ownsPlan writes a 404 unless the plan belongs to the caller's tenant.
func (h *Handler) ownsPlan(c *gin.Context, dayPlanID string) bool {
	plan, err := h.Scheduling.GetDayPlan(c.Request.Context(), dayPlanID)
	if err != nil {
		h.fail(c, err)
		return false
	}
	if plan.TenantID != tenantID(c) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Day plan not found", nil)
		return false
	}
	return true
}
