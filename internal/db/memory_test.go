package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tophand/backend/internal/apperr"
	"github.com/tophand/backend/internal/models"
	"github.com/tophand/backend/internal/ports"
)

func seedPlan(t *testing.T, s *MemoryStore) models.DayPlan {
	t.Helper()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	plan, err := s.CreateDayPlan(context.Background(), models.DayPlan{
		ID:           "plan-1",
		TenantID:     "tenant-a",
		TechnicianID: "tech-1",
		PlanDate:     day,
		Events: []models.ScheduleEvent{
			{ID: "ev-2", DayPlanID: "plan-1", EventType: models.EventBreak, SequenceOrder: 2},
			{ID: "ev-1", DayPlanID: "plan-1", EventType: models.EventJob, SequenceOrder: 1},
		},
	})
	require.NoError(t, err)
	return plan
}

func TestMemoryStoreCreateAndFind(t *testing.T) {
	s := NewMemoryStore()
	plan := seedPlan(t, s)
	assert.Equal(t, []string{"ev-1", "ev-2"}, []string{plan.Events[0].ID, plan.Events[1].ID})

	found, err := s.FindDayPlan(context.Background(), "tech-1", plan.PlanDate)
	require.NoError(t, err)
	assert.Equal(t, "plan-1", found.ID)

	_, err = s.CreateDayPlan(context.Background(), models.DayPlan{ID: "plan-2", TechnicianID: "tech-1", PlanDate: plan.PlanDate})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	ev, err := s.GetScheduleEvent(context.Background(), "ev-2")
	require.NoError(t, err)
	assert.Equal(t, models.EventBreak, ev.EventType)

	_, err = s.GetDayPlan(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryStoreMutatePlanCommitsOnSuccess(t *testing.T) {
	s := NewMemoryStore()
	seedPlan(t, s)

	err := s.MutatePlan(context.Background(), "plan-1", func(ctx context.Context, tx ports.PlanTx) error {
		n, err := tx.CountEvents(ctx, models.EventJob)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = tx.InsertEvent(ctx, models.ScheduleEvent{ID: "ev-3", DayPlanID: "plan-1", EventType: models.EventJob, SequenceOrder: 3})
		if err != nil {
			return err
		}
		return tx.DeleteEvent(ctx, "ev-2")
	})
	require.NoError(t, err)

	plan, err := s.GetDayPlan(context.Background(), "plan-1")
	require.NoError(t, err)
	require.Len(t, plan.Events, 2)
	assert.Equal(t, "ev-3", plan.Events[1].ID)
	_, err = s.GetScheduleEvent(context.Background(), "ev-2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryStoreMutatePlanDiscardsOnError(t *testing.T) {
	s := NewMemoryStore()
	seedPlan(t, s)
	boom := errors.New("boom")

	err := s.MutatePlan(context.Background(), "plan-1", func(ctx context.Context, tx ports.PlanTx) error {
		_, err := tx.InsertEvent(ctx, models.ScheduleEvent{ID: "ev-3", EventType: models.EventJob, SequenceOrder: 3})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	plan, _ := s.GetDayPlan(context.Background(), "plan-1")
	assert.Len(t, plan.Events, 2)
}

func TestMemoryStoreTxRejectsDuplicateSequence(t *testing.T) {
	s := NewMemoryStore()
	seedPlan(t, s)
	err := s.MutatePlan(context.Background(), "plan-1", func(ctx context.Context, tx ports.PlanTx) error {
		_, err := tx.InsertEvent(ctx, models.ScheduleEvent{ID: "ev-x", EventType: models.EventTravel, SequenceOrder: 1})
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	err = s.MutatePlan(context.Background(), "missing", func(ctx context.Context, tx ports.PlanTx) error { return nil })
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryStoreOverrideLogs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, s.InsertOverrideLog(ctx, models.OverrideLog{
			ID: id, TenantID: "tenant-a", KitID: "kit-1", ItemID: "drill", CreatedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		}))
	}
	require.NoError(t, s.InsertOverrideLog(ctx, models.OverrideLog{ID: "other", TenantID: "tenant-a", KitID: "kit-2", CreatedAt: base}))
	assert.ErrorIs(t, s.InsertOverrideLog(ctx, models.OverrideLog{ID: "o1"}), apperr.ErrValidation)

	logs, err := s.ListOverrideLogs(ctx, ports.OverrideQuery{KitID: "kit-1", Start: base, End: base.Add(48 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "o1", logs[0].ID)
	assert.Equal(t, "o2", logs[1].ID)

	resolved := base.Add(time.Minute)
	require.NoError(t, s.UpdateOverrideNotification(ctx, models.OverrideLog{
		ID: "o1", NotificationMethod: "sms", NotificationStatus: models.AttemptDelivered, LatencyMs: 1200, SLAMet: true, ResolvedAt: &resolved,
		ItemID: "ignored",
	}))
	got, err := s.GetOverrideLog(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "sms", got.NotificationMethod)
	assert.True(t, got.SLAMet)
	assert.Equal(t, "drill", got.ItemID)

	assert.ErrorIs(t, s.UpdateOverrideNotification(ctx, models.OverrideLog{ID: "nope"}), apperr.ErrNotFound)
}

func TestMemoryStoreSettingsAndPreferences(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := s.JobLimitOverride(ctx, "tenant-a")
	require.NoError(t, err)
	assert.False(t, ok)
	s.SetJobLimit("tenant-a", 4)
	limit, ok, _ := s.JobLimitOverride(ctx, "tenant-a")
	assert.True(t, ok)
	assert.Equal(t, 4, limit)

	_, err = s.GetPreferences(ctx, "sup-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	s.SetPreferences(models.RecipientPreferences{UserID: "sup-1", Channels: []string{"push"}})
	p, err := s.GetPreferences(ctx, "sup-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"push"}, p.Channels)
}

func TestMapWriteErr(t *testing.T) {
	err := mapWriteErr(&pgconn.PgError{Code: "23505"}, "plan_date", "taken")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	other := errors.New("conn reset")
	assert.Same(t, other, mapWriteErr(other, "x", "y"))
	assert.NoError(t, mapWriteErr(nil, "x", "y"))
}

func TestMemoryStoreDeleteEventDropsCrew(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedPlan(t, s)
	require.NoError(t, s.InsertCrewAssignments(ctx, []models.CrewAssignment{
		{ID: "c1", ScheduleEventID: "ev-1", TechnicianID: "helper-1", Role: models.CrewHelper},
	}))
	require.Len(t, s.CrewFor("ev-1"), 1)

	err := s.MutatePlan(ctx, "plan-1", func(ctx context.Context, tx ports.PlanTx) error {
		return tx.DeleteEvent(ctx, "ev-1")
	})
	require.NoError(t, err)
	assert.Empty(t, s.CrewFor("ev-1"))
}

func TestMemoryStoreDeleteDiscardedKeepsCrew(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedPlan(t, s)
	require.NoError(t, s.InsertCrewAssignments(ctx, []models.CrewAssignment{
		{ID: "c1", ScheduleEventID: "ev-1", TechnicianID: "helper-1", Role: models.CrewHelper},
	}))

	err := s.MutatePlan(ctx, "plan-1", func(ctx context.Context, tx ports.PlanTx) error {
		require.NoError(t, tx.DeleteEvent(ctx, "ev-1"))
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Len(t, s.CrewFor("ev-1"), 1)
}

func TestMemoryStoreOverrideLogsWithoutKit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertOverrideLog(ctx, models.OverrideLog{ID: "a", TenantID: "tenant-a", KitID: "kit-1", CreatedAt: base}))
	require.NoError(t, s.InsertOverrideLog(ctx, models.OverrideLog{ID: "b", TenantID: "tenant-a", KitID: "kit-2", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.InsertOverrideLog(ctx, models.OverrideLog{ID: "c", TenantID: "tenant-b", KitID: "kit-1", CreatedAt: base}))

	logs, err := s.ListOverrideLogs(ctx, ports.OverrideQuery{TenantID: "tenant-a"})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "a", logs[0].ID)
	assert.Equal(t, "b", logs[1].ID)
}
