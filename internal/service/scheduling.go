package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tophand/backend/internal/apperr"
	"github.com/tophand/backend/internal/metrics"
	"github.com/tophand/backend/internal/models"
	"github.com/tophand/backend/internal/notify"
	"github.com/tophand/backend/internal/ports"
	"github.com/tophand/backend/internal/utils"
)

const (
	NotificationLimitWarning = "job_limit_warning"
	NotificationLimitReached = "job_limit_reached"
)

// Notifier delivers a notification through escalation. *notify.Escalator
// satisfies it.
type Notifier interface {
	Escalate(ctx context.Context, recipientID string, n models.Notification) notify.Result
}

type CreateDayPlanRequest struct {
	TenantID     string                 `json:"-"`
	TechnicianID string                 `json:"technician_id" validate:"required"`
	PlanDate     time.Time              `json:"plan_date" validate:"required"`
	Events       []models.ScheduleEvent `json:"schedule_events" validate:"dive"`
	Route        *models.RouteSummary   `json:"route_summary"`
	ActorID      string                 `json:"-"`
}

type AssignCrewRequest struct {
	ScheduleEventID string          `json:"schedule_event_id" validate:"required"`
	TechnicianID    string          `json:"technician_id" validate:"required"`
	Role            models.CrewRole `json:"role" validate:"required,oneof=lead helper"`
	TeamMembers     []string        `json:"team_members" validate:"dive,required"`
	VoiceConfirmed  bool            `json:"voice_confirmed"`
	ActorID         string          `json:"-"`
}

// SchedulingCoordinator owns day plan mutations. Every mutation of one plan
// runs under that plan's lock and inside a store transaction, so the job cap
// check and the insert it guards are a single step.
type SchedulingCoordinator struct {
	Store    ports.DayPlanStore
	Limits   *LimitPolicy
	Notifier Notifier
	Audit    ports.AuditSink
	Logger   zerolog.Logger
	Metrics  metrics.Recorder

	locks utils.KeyedMutex
	now   func() time.Time
}

func NewSchedulingCoordinator(store ports.DayPlanStore, limits *LimitPolicy, notifier Notifier, audit ports.AuditSink, logger zerolog.Logger, rec metrics.Recorder) *SchedulingCoordinator {
	if limits == nil {
		limits = NewLimitPolicy(nil, DefaultJobLimit)
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &SchedulingCoordinator{
		Store:    store,
		Limits:   limits,
		Notifier: notifier,
		Audit:    audit,
		Logger:   logger,
		Metrics:  rec,
		now:      time.Now,
	}
}

// CreateDayPlan persists a plan with its initial events. The whole plan is
// rejected when its job events exceed the tenant limit.
func (c *SchedulingCoordinator) CreateDayPlan(ctx context.Context, req CreateDayPlanRequest) (models.DayPlan, error) {
	if err := checkStruct(req); err != nil {
		return models.DayPlan{}, err
	}
	now := c.now().UTC()
	plan := models.DayPlan{
		ID:           uuid.NewString(),
		TenantID:     req.TenantID,
		TechnicianID: req.TechnicianID,
		PlanDate:     planDay(req.PlanDate),
		Route:        req.Route,
		CreatedAt:    now,
	}

	limit, err := c.Limits.LimitFor(ctx, req.TenantID)
	if err != nil {
		return models.DayPlan{}, err
	}
	jobs := 0
	for _, ev := range req.Events {
		if CountsTowardLimit(ev.EventType) {
			jobs++
		}
	}
	if jobs > limit {
		c.Metrics.LimitRejected()
		return models.DayPlan{}, &apperr.LimitExceededError{Limit: limit, Requested: jobs, TechnicianID: req.TechnicianID}
	}

	events, err := sequenceEvents(req.Events)
	if err != nil {
		return models.DayPlan{}, err
	}
	for i := range events {
		if err := checkJobEvent(events[i]); err != nil {
			return models.DayPlan{}, err
		}
		events[i].ID = uuid.NewString()
		events[i].DayPlanID = plan.ID
		events[i].CreatedAt = now
	}
	plan.Events = events

	created, err := c.Store.CreateDayPlan(ctx, plan)
	if err != nil {
		return models.DayPlan{}, err
	}
	for _, ev := range created.Events {
		c.Metrics.ScheduleEvent(string(ev.EventType))
	}
	c.audit(ctx, models.AuditEntry{
		TenantID:   created.TenantID,
		Action:     "day_plan.created",
		ActorID:    req.ActorID,
		EntityType: "day_plan",
		EntityID:   created.ID,
		Metadata: map[string]any{
			"technician_id": created.TechnicianID,
			"plan_date":     created.PlanDate.Format(time.DateOnly),
			"event_count":   len(created.Events),
			"job_count":     jobs,
		},
	})
	c.Logger.Info().
		Str("day_plan_id", created.ID).
		Str("technician_id", created.TechnicianID).
		Int("jobs", jobs).
		Int("limit", limit).
		Msg("day plan created")
	return created, nil
}

func (c *SchedulingCoordinator) GetDayPlan(ctx context.Context, id string) (models.DayPlan, error) {
	if id == "" {
		return models.DayPlan{}, apperr.Invalid("day_plan_id", "is required")
	}
	return c.Store.GetDayPlan(ctx, id)
}

// ScheduleEvent adds one event to a plan. Job events are refused once the plan
// holds the tenant limit; crossing limit-1 and limit notifies the technician
// after the plan lock is released.
func (c *SchedulingCoordinator) ScheduleEvent(ctx context.Context, dayPlanID string, ev models.ScheduleEvent, actorID string) (models.ScheduleEvent, error) {
	if dayPlanID == "" {
		return models.ScheduleEvent{}, apperr.Invalid("day_plan_id", "is required")
	}
	if err := checkStruct(ev); err != nil {
		return models.ScheduleEvent{}, err
	}
	if err := checkJobEvent(ev); err != nil {
		return models.ScheduleEvent{}, err
	}

	var (
		plan    models.DayPlan
		created models.ScheduleEvent
		limit   int
		jobs    int
	)
	counts := CountsTowardLimit(ev.EventType)
	err := func() error {
		unlock := c.locks.Lock(dayPlanID)
		defer unlock()
		return c.Store.MutatePlan(ctx, dayPlanID, func(ctx context.Context, tx ports.PlanTx) error {
			plan = tx.Plan()
			if counts {
				var err error
				limit, err = c.Limits.LimitFor(ctx, plan.TenantID)
				if err != nil {
					return err
				}
				jobs, err = tx.CountEvents(ctx, models.EventJob)
				if err != nil {
					return err
				}
				if jobs >= limit {
					return &apperr.LimitExceededError{Limit: limit, Requested: jobs + 1, TechnicianID: plan.TechnicianID}
				}
			}

			existing, err := tx.Events(ctx)
			if err != nil {
				return err
			}
			ev.SequenceOrder, err = nextSequence(existing, ev.SequenceOrder)
			if err != nil {
				return err
			}
			ev.ID = uuid.NewString()
			ev.DayPlanID = dayPlanID
			ev.CreatedAt = c.now().UTC()
			created, err = tx.InsertEvent(ctx, ev)
			if err != nil {
				return err
			}
			if counts {
				jobs++
			}
			return nil
		})
	}()
	if err != nil {
		var limitErr *apperr.LimitExceededError
		if errors.As(err, &limitErr) {
			c.Metrics.LimitRejected()
			c.Logger.Warn().
				Str("day_plan_id", dayPlanID).
				Str("technician_id", limitErr.TechnicianID).
				Int("limit", limitErr.Limit).
				Msg("job rejected at daily limit")
		}
		return models.ScheduleEvent{}, err
	}

	c.Metrics.ScheduleEvent(string(created.EventType))
	c.audit(ctx, models.AuditEntry{
		TenantID:   plan.TenantID,
		Action:     "schedule_event.created",
		ActorID:    actorID,
		EntityType: "schedule_event",
		EntityID:   created.ID,
		Metadata: map[string]any{
			"day_plan_id":    dayPlanID,
			"event_type":     string(created.EventType),
			"sequence_order": created.SequenceOrder,
		},
	})
	if counts {
		c.notifyThreshold(ctx, plan, jobs, limit)
	}
	return created, nil
}

func (c *SchedulingCoordinator) RemoveEvent(ctx context.Context, dayPlanID, eventID, actorID string) error {
	if dayPlanID == "" || eventID == "" {
		return apperr.Invalid("event_id", "is required")
	}
	var plan models.DayPlan
	unlock := c.locks.Lock(dayPlanID)
	err := c.Store.MutatePlan(ctx, dayPlanID, func(ctx context.Context, tx ports.PlanTx) error {
		plan = tx.Plan()
		return tx.DeleteEvent(ctx, eventID)
	})
	unlock()
	if err != nil {
		return err
	}
	c.audit(ctx, models.AuditEntry{
		TenantID:   plan.TenantID,
		Action:     "schedule_event.removed",
		ActorID:    actorID,
		EntityType: "schedule_event",
		EntityID:   eventID,
		Metadata:   map[string]any{"day_plan_id": dayPlanID},
	})
	return nil
}

// AssignCrew attaches technicians to a job event. The named technician takes
// req.Role and every team member joins as a helper. Crew rows do not count
// toward any technician's job cap.
func (c *SchedulingCoordinator) AssignCrew(ctx context.Context, req AssignCrewRequest) ([]models.CrewAssignment, error) {
	if err := checkStruct(req); err != nil {
		return nil, err
	}
	ev, err := c.Store.GetScheduleEvent(ctx, req.ScheduleEventID)
	if err != nil {
		return nil, err
	}
	if ev.EventType != models.EventJob {
		return nil, apperr.Invalid("schedule_event_id", "crew can only be assigned to job events")
	}

	now := c.now().UTC()
	seen := map[string]struct{}{req.TechnicianID: {}}
	rows := []models.CrewAssignment{{
		ID:              uuid.NewString(),
		ScheduleEventID: ev.ID,
		TechnicianID:    req.TechnicianID,
		Role:            req.Role,
		VoiceConfirmed:  req.VoiceConfirmed,
		AssignedAt:      now,
	}}
	for _, member := range req.TeamMembers {
		if _, dup := seen[member]; dup {
			continue
		}
		seen[member] = struct{}{}
		rows = append(rows, models.CrewAssignment{
			ID:              uuid.NewString(),
			ScheduleEventID: ev.ID,
			TechnicianID:    member,
			Role:            models.CrewHelper,
			VoiceConfirmed:  req.VoiceConfirmed,
			AssignedAt:      now,
		})
	}
	if err := c.Store.InsertCrewAssignments(ctx, rows); err != nil {
		return nil, err
	}

	plan, err := c.Store.GetDayPlan(ctx, ev.DayPlanID)
	if err != nil {
		c.Logger.Warn().Err(err).Str("day_plan_id", ev.DayPlanID).Msg("crew audit without tenant")
	}
	members := make([]string, 0, len(rows))
	for _, r := range rows {
		members = append(members, r.TechnicianID)
	}
	c.audit(ctx, models.AuditEntry{
		TenantID:   plan.TenantID,
		Action:     "crew.assigned",
		ActorID:    req.ActorID,
		EntityType: "schedule_event",
		EntityID:   ev.ID,
		Metadata: map[string]any{
			"technicians":     members,
			"lead_role":       string(req.Role),
			"voice_confirmed": req.VoiceConfirmed,
		},
	})
	return rows, nil
}

func (c *SchedulingCoordinator) notifyThreshold(ctx context.Context, plan models.DayPlan, jobs, limit int) {
	if c.Notifier == nil {
		return
	}
	date := plan.PlanDate.Format(time.DateOnly)
	var n models.Notification
	switch jobs {
	case limit:
		n = models.Notification{
			Type:     NotificationLimitReached,
			Priority: models.PriorityHigh,
			Title:    "Daily job limit reached",
			Message:  fmt.Sprintf("Technician %s has reached maximum of %d jobs for %s", plan.TechnicianID, limit, date),
		}
	case limit - 1:
		n = models.Notification{
			Type:     NotificationLimitWarning,
			Priority: models.PriorityMedium,
			Title:    "Approaching daily job limit",
			Message:  fmt.Sprintf("Technician %s has %d of %d jobs scheduled for %s", plan.TechnicianID, jobs, limit, date),
		}
	default:
		return
	}
	n.Data = map[string]any{
		"day_plan_id":   plan.ID,
		"technician_id": plan.TechnicianID,
		"job_count":     jobs,
		"limit":         limit,
	}
	c.Metrics.LimitNotification(n.Type)
	res := c.Notifier.Escalate(ctx, plan.TechnicianID, n)
	if !res.Delivered() {
		c.Logger.Warn().
			Str("day_plan_id", plan.ID).
			Str("type", n.Type).
			Msg("limit notification not delivered")
	}
}

func (c *SchedulingCoordinator) audit(ctx context.Context, entry models.AuditEntry) {
	if c.Audit == nil {
		return
	}
	entry.ID = uuid.NewString()
	entry.CreatedAt = c.now().UTC()
	if err := c.Audit.Record(ctx, entry); err != nil {
		c.Logger.Error().Err(err).Str("action", entry.Action).Str("entity_id", entry.EntityID).Msg("audit write failed")
	}
}

func planDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func checkJobEvent(ev models.ScheduleEvent) error {
	if ev.EventType == models.EventJob && (ev.JobID == nil || *ev.JobID == "") {
		return apperr.Invalid("job_id", "is required for job events")
	}
	return nil
}

// sequenceEvents fills zero sequence orders after the highest explicit one and
// rejects duplicates.
func sequenceEvents(in []models.ScheduleEvent) ([]models.ScheduleEvent, error) {
	out := make([]models.ScheduleEvent, len(in))
	copy(out, in)
	used := map[int]struct{}{}
	highest := 0
	for _, ev := range out {
		if ev.SequenceOrder == 0 {
			continue
		}
		if _, dup := used[ev.SequenceOrder]; dup {
			return nil, apperr.Invalid("sequence_order", fmt.Sprintf("%d is used twice", ev.SequenceOrder))
		}
		used[ev.SequenceOrder] = struct{}{}
		if ev.SequenceOrder > highest {
			highest = ev.SequenceOrder
		}
	}
	for i := range out {
		if out[i].SequenceOrder == 0 {
			highest++
			out[i].SequenceOrder = highest
		}
	}
	return out, nil
}

func nextSequence(existing []models.ScheduleEvent, requested int) (int, error) {
	highest := 0
	for _, ev := range existing {
		if requested != 0 && ev.SequenceOrder == requested {
			return 0, apperr.Invalid("sequence_order", fmt.Sprintf("%d is already taken", requested))
		}
		if ev.SequenceOrder > highest {
			highest = ev.SequenceOrder
		}
	}
	if requested != 0 {
		return requested, nil
	}
	return highest + 1, nil
}
