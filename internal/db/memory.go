package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tophand/backend/internal/apperr"
	"github.com/tophand/backend/internal/models"
	"github.com/tophand/backend/internal/ports"
	"github.com/tophand/backend/internal/utils"
)

// MemoryStore keeps everything in process. It backs local runs without a
// database and the service tests.
type MemoryStore struct {
	mu          sync.RWMutex
	planLocks   utils.KeyedMutex
	plans       map[string]models.DayPlan
	planByKey   map[string]string
	eventPlan   map[string]string
	crew        map[string][]models.CrewAssignment
	kits        map[string]models.Kit
	verifs      []models.KitVerification
	overrides   map[string]models.OverrideLog
	audit       []models.AuditEntry
	jobLimits   map[string]int
	preferences map[string]models.RecipientPreferences
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:       map[string]models.DayPlan{},
		planByKey:   map[string]string{},
		eventPlan:   map[string]string{},
		crew:        map[string][]models.CrewAssignment{},
		kits:        map[string]models.Kit{},
		overrides:   map[string]models.OverrideLog{},
		jobLimits:   map[string]int{},
		preferences: map[string]models.RecipientPreferences{},
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() {}

func planKey(technicianID string, day time.Time) string {
	return technicianID + "|" + day.Format(time.DateOnly)
}

func (s *MemoryStore) CreateDayPlan(ctx context.Context, plan models.DayPlan) (models.DayPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := planKey(plan.TechnicianID, plan.PlanDate)
	if _, ok := s.planByKey[key]; ok {
		return models.DayPlan{}, apperr.Invalid("plan_date", "technician already has a day plan for this date")
	}
	plan.Events = sortedEvents(plan.Events)
	s.plans[plan.ID] = plan
	s.planByKey[key] = plan.ID
	for _, ev := range plan.Events {
		s.eventPlan[ev.ID] = plan.ID
	}
	return clonePlan(plan), nil
}

func (s *MemoryStore) GetDayPlan(ctx context.Context, id string) (models.DayPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[id]
	if !ok {
		return models.DayPlan{}, apperr.NotFound("day plan", id)
	}
	return clonePlan(plan), nil
}

func (s *MemoryStore) FindDayPlan(ctx context.Context, technicianID string, planDate time.Time) (models.DayPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.planByKey[planKey(technicianID, planDate)]
	if !ok {
		return models.DayPlan{}, apperr.NotFound("day plan", technicianID+" "+planDate.Format(time.DateOnly))
	}
	return clonePlan(s.plans[id]), nil
}

func (s *MemoryStore) GetScheduleEvent(ctx context.Context, id string) (models.ScheduleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	planID, ok := s.eventPlan[id]
	if ok {
		for _, ev := range s.plans[planID].Events {
			if ev.ID == id {
				return ev, nil
			}
		}
	}
	return models.ScheduleEvent{}, apperr.NotFound("schedule event", id)
}

// MutatePlan serializes callers per plan. fn works on a private copy that is
// committed only when fn succeeds.
func (s *MemoryStore) MutatePlan(ctx context.Context, dayPlanID string, fn func(ctx context.Context, tx ports.PlanTx) error) error {
	unlock := s.planLocks.Lock(dayPlanID)
	defer unlock()

	plan, err := s.GetDayPlan(ctx, dayPlanID)
	if err != nil {
		return err
	}
	tx := &memPlanTx{plan: plan, events: plan.Events}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.plans[dayPlanID]
	for _, ev := range stored.Events {
		delete(s.eventPlan, ev.ID)
	}
	stored.Events = sortedEvents(tx.events)
	for _, ev := range stored.Events {
		s.eventPlan[ev.ID] = dayPlanID
	}
	for _, id := range tx.removed {
		delete(s.crew, id)
	}
	s.plans[dayPlanID] = stored
	return nil
}

func (s *MemoryStore) InsertCrewAssignments(ctx context.Context, assignments []models.CrewAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range assignments {
		if _, ok := s.eventPlan[a.ScheduleEventID]; !ok {
			return apperr.NotFound("schedule event", a.ScheduleEventID)
		}
		for _, existing := range s.crew[a.ScheduleEventID] {
			if existing.TechnicianID == a.TechnicianID {
				return apperr.Invalid("technician_id", fmt.Sprintf("%s is already on this crew", a.TechnicianID))
			}
		}
	}
	for _, a := range assignments {
		s.crew[a.ScheduleEventID] = append(s.crew[a.ScheduleEventID], a)
	}
	return nil
}

func (s *MemoryStore) CrewFor(eventID string) []models.CrewAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CrewAssignment(nil), s.crew[eventID]...)
}

func (s *MemoryStore) PutKit(kit models.Kit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kits[kit.ID] = kit
}

func (s *MemoryStore) GetKit(ctx context.Context, kitID string) (models.Kit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kit, ok := s.kits[kitID]
	if !ok {
		return models.Kit{}, apperr.NotFound("kit", kitID)
	}
	kit.Items = append([]models.KitItem(nil), kit.Items...)
	return kit, nil
}

func (s *MemoryStore) InsertKitVerification(ctx context.Context, v models.KitVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifs = append(s.verifs, v)
	return nil
}

func (s *MemoryStore) KitVerifications() []models.KitVerification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.KitVerification(nil), s.verifs...)
}

func (s *MemoryStore) InsertOverrideLog(ctx context.Context, log models.OverrideLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overrides[log.ID]; ok {
		return apperr.Invalid("id", "override log already exists")
	}
	s.overrides[log.ID] = log
	return nil
}

// UpdateOverrideNotification only touches the notification outcome fields.
func (s *MemoryStore) UpdateOverrideNotification(ctx context.Context, log models.OverrideLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.overrides[log.ID]
	if !ok {
		return apperr.NotFound("override log", log.ID)
	}
	stored.NotificationMethod = log.NotificationMethod
	stored.NotificationStatus = log.NotificationStatus
	stored.Attempts = append([]models.NotificationAttempt(nil), log.Attempts...)
	stored.LatencyMs = log.LatencyMs
	stored.SLAMet = log.SLAMet
	stored.ResolvedAt = log.ResolvedAt
	s.overrides[log.ID] = stored
	return nil
}

func (s *MemoryStore) GetOverrideLog(ctx context.Context, id string) (models.OverrideLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.overrides[id]
	if !ok {
		return models.OverrideLog{}, apperr.NotFound("override log", id)
	}
	return log, nil
}

// ListOverrideLogs matches CreatedAt in [Start, End); zero bounds are open.
func (s *MemoryStore) ListOverrideLogs(ctx context.Context, q ports.OverrideQuery) ([]models.OverrideLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.OverrideLog
	for _, log := range s.overrides {
		if q.TenantID != "" && log.TenantID != q.TenantID {
			continue
		}
		if q.KitID != "" && log.KitID != q.KitID {
			continue
		}
		if !q.Start.IsZero() && log.CreatedAt.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && !log.CreatedAt.Before(q.End) {
			continue
		}
		out = append(out, log)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Record(ctx context.Context, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

func (s *MemoryStore) AuditEntries() []models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AuditEntry(nil), s.audit...)
}

func (s *MemoryStore) SetJobLimit(tenantID string, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobLimits[tenantID] = limit
}

func (s *MemoryStore) JobLimitOverride(ctx context.Context, tenantID string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit, ok := s.jobLimits[tenantID]
	return limit, ok, nil
}

func (s *MemoryStore) SetPreferences(p models.RecipientPreferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[p.UserID] = p
}

func (s *MemoryStore) GetPreferences(ctx context.Context, userID string) (models.RecipientPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.preferences[userID]
	if !ok {
		return models.RecipientPreferences{}, apperr.NotFound("notification preferences", userID)
	}
	return p, nil
}

type memPlanTx struct {
	plan    models.DayPlan
	events  []models.ScheduleEvent
	removed []string
}

func (t *memPlanTx) Plan() models.DayPlan { return t.plan }

func (t *memPlanTx) Events(ctx context.Context) ([]models.ScheduleEvent, error) {
	return append([]models.ScheduleEvent(nil), t.events...), nil
}

func (t *memPlanTx) CountEvents(ctx context.Context, eventType models.EventType) (int, error) {
	n := 0
	for _, ev := range t.events {
		if ev.EventType == eventType {
			n++
		}
	}
	return n, nil
}

func (t *memPlanTx) InsertEvent(ctx context.Context, ev models.ScheduleEvent) (models.ScheduleEvent, error) {
	for _, existing := range t.events {
		if existing.SequenceOrder == ev.SequenceOrder {
			return models.ScheduleEvent{}, apperr.Invalid("sequence_order", fmt.Sprintf("%d is already taken", ev.SequenceOrder))
		}
	}
	events := make([]models.ScheduleEvent, 0, len(t.events)+1)
	events = append(events, t.events...)
	t.events = append(events, ev)
	return ev, nil
}

func (t *memPlanTx) DeleteEvent(ctx context.Context, eventID string) error {
	for i, ev := range t.events {
		if ev.ID == eventID {
			events := make([]models.ScheduleEvent, 0, len(t.events)-1)
			events = append(events, t.events[:i]...)
			t.events = append(events, t.events[i+1:]...)
			t.removed = append(t.removed, eventID)
			return nil
		}
	}
	return apperr.NotFound("schedule event", eventID)
}

func sortedEvents(in []models.ScheduleEvent) []models.ScheduleEvent {
	out := append([]models.ScheduleEvent(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceOrder < out[j].SequenceOrder })
	return out
}

func clonePlan(p models.DayPlan) models.DayPlan {
	p.Events = append(make([]models.ScheduleEvent, 0, len(p.Events)), p.Events...)
	return p
}
