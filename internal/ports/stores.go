package ports

import (
	"context"
	"time"

	"github.com/tophand/backend/internal/models"
)

// DayPlanStore is the persistence boundary for day plans and their events.
type DayPlanStore interface {
	// CreateDayPlan persists the plan and plan.Events together or not at all.
	CreateDayPlan(ctx context.Context, plan models.DayPlan) (models.DayPlan, error)
	GetDayPlan(ctx context.Context, id string) (models.DayPlan, error)
	FindDayPlan(ctx context.Context, technicianID string, planDate time.Time) (models.DayPlan, error)
	GetScheduleEvent(ctx context.Context, id string) (models.ScheduleEvent, error)
	// MutatePlan gives fn exclusive, transactional access to one plan's events.
	// Changes made through tx are discarded when fn returns an error.
	MutatePlan(ctx context.Context, dayPlanID string, fn func(ctx context.Context, tx PlanTx) error) error
	InsertCrewAssignments(ctx context.Context, assignments []models.CrewAssignment) error
}

type PlanTx interface {
	Plan() models.DayPlan
	Events(ctx context.Context) ([]models.ScheduleEvent, error)
	CountEvents(ctx context.Context, eventType models.EventType) (int, error)
	InsertEvent(ctx context.Context, ev models.ScheduleEvent) (models.ScheduleEvent, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

type KitStore interface {
	GetKit(ctx context.Context, kitID string) (models.Kit, error)
	InsertKitVerification(ctx context.Context, v models.KitVerification) error
}

type OverrideQuery struct {
	TenantID string
	KitID    string
	Start    time.Time
	End      time.Time
}

type OverrideStore interface {
	InsertOverrideLog(ctx context.Context, log models.OverrideLog) error
	UpdateOverrideNotification(ctx context.Context, log models.OverrideLog) error
	GetOverrideLog(ctx context.Context, id string) (models.OverrideLog, error)
	ListOverrideLogs(ctx context.Context, q OverrideQuery) ([]models.OverrideLog, error)
}

type AuditSink interface {
	Record(ctx context.Context, entry models.AuditEntry) error
}

type TenantSettings interface {
	// JobLimitOverride reports the tenant's configured job cap, if any.
	JobLimitOverride(ctx context.Context, tenantID string) (limit int, ok bool, err error)
}

type PreferenceLookup interface {
	GetPreferences(ctx context.Context, userID string) (models.RecipientPreferences, error)
}
