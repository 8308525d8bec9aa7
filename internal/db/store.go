package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tophand/backend/internal/apperr"
	"github.com/tophand/backend/internal/models"
	"github.com/tophand/backend/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schemaSQL)
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const planColumns = `id, tenant_id, technician_id, plan_date, route_summary, created_at`

const eventColumns = `id, day_plan_id, event_type, sequence_order, scheduled_start, duration_minutes, job_id, address, notes, created_at`

func (s *Store) CreateDayPlan(ctx context.Context, plan models.DayPlan) (models.DayPlan, error) {
	route, err := marshalNullable(plan.Route)
	if err != nil {
		return models.DayPlan{}, err
	}
	err = s.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO day_plans (`+planColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, plan.ID, plan.TenantID, plan.TechnicianID, plan.PlanDate, route, plan.CreatedAt)
		if err != nil {
			return mapWriteErr(err, "plan_date", "technician already has a day plan for this date")
		}
		for _, ev := range plan.Events {
			if err := insertEvent(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.DayPlan{}, err
	}
	return s.GetDayPlan(ctx, plan.ID)
}

func (s *Store) GetDayPlan(ctx context.Context, id string) (models.DayPlan, error) {
	plan, err := scanPlan(s.Pool.QueryRow(ctx, `SELECT `+planColumns+` FROM day_plans WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DayPlan{}, apperr.NotFound("day plan", id)
	}
	if err != nil {
		return models.DayPlan{}, err
	}
	plan.Events, err = listEvents(ctx, s.Pool, id)
	return plan, err
}

func (s *Store) FindDayPlan(ctx context.Context, technicianID string, planDate time.Time) (models.DayPlan, error) {
	var id string
	err := s.Pool.QueryRow(ctx, `SELECT id FROM day_plans WHERE technician_id = $1 AND plan_date = $2`, technicianID, planDate).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DayPlan{}, apperr.NotFound("day plan", technicianID+" "+planDate.Format(time.DateOnly))
	}
	if err != nil {
		return models.DayPlan{}, err
	}
	return s.GetDayPlan(ctx, id)
}

func (s *Store) GetScheduleEvent(ctx context.Context, id string) (models.ScheduleEvent, error) {
	ev, err := scanEvent(s.Pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM schedule_events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ScheduleEvent{}, apperr.NotFound("schedule event", id)
	}
	return ev, err
}

// MutatePlan locks the day_plans row for the life of the transaction, so
// concurrent mutations of one plan queue in the database as well.
func (s *Store) MutatePlan(ctx context.Context, dayPlanID string, fn func(ctx context.Context, tx ports.PlanTx) error) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		plan, err := scanPlan(tx.QueryRow(ctx, `SELECT `+planColumns+` FROM day_plans WHERE id = $1 FOR UPDATE`, dayPlanID))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("day plan", dayPlanID)
		}
		if err != nil {
			return err
		}
		return fn(ctx, &pgPlanTx{tx: tx, plan: plan})
	})
}

func (s *Store) InsertCrewAssignments(ctx context.Context, assignments []models.CrewAssignment) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		for _, a := range assignments {
			_, err := tx.Exec(ctx, `
				INSERT INTO crew_assignments (id, schedule_event_id, technician_id, role, voice_confirmed, assigned_at)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, a.ID, a.ScheduleEventID, a.TechnicianID, string(a.Role), a.VoiceConfirmed, a.AssignedAt)
			if err != nil {
				return mapWriteErr(err, "technician_id", fmt.Sprintf("%s is already on this crew", a.TechnicianID))
			}
		}
		return nil
	})
}

type pgPlanTx struct {
	tx   pgx.Tx
	plan models.DayPlan
}

func (t *pgPlanTx) Plan() models.DayPlan { return t.plan }

func (t *pgPlanTx) Events(ctx context.Context) ([]models.ScheduleEvent, error) {
	return listEvents(ctx, t.tx, t.plan.ID)
}

func (t *pgPlanTx) CountEvents(ctx context.Context, eventType models.EventType) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM schedule_events WHERE day_plan_id = $1 AND event_type = $2`, t.plan.ID, string(eventType)).Scan(&n)
	return n, err
}

func (t *pgPlanTx) InsertEvent(ctx context.Context, ev models.ScheduleEvent) (models.ScheduleEvent, error) {
	if err := insertEvent(ctx, t.tx, ev); err != nil {
		return models.ScheduleEvent{}, err
	}
	return ev, nil
}

func (t *pgPlanTx) DeleteEvent(ctx context.Context, eventID string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM schedule_events WHERE id = $1 AND day_plan_id = $2`, eventID, t.plan.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("schedule event", eventID)
	}
	return nil
}

func insertEvent(ctx context.Context, q querier, ev models.ScheduleEvent) error {
	_, err := q.Exec(ctx, `
		INSERT INTO schedule_events (`+eventColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, ev.ID, ev.DayPlanID, string(ev.EventType), ev.SequenceOrder, ev.ScheduledStart, ev.DurationMinutes, ev.JobID, ev.Address, ev.Notes, ev.CreatedAt)
	return mapWriteErr(err, "sequence_order", fmt.Sprintf("%d is already taken", ev.SequenceOrder))
}

func listEvents(ctx context.Context, q querier, dayPlanID string) ([]models.ScheduleEvent, error) {
	rows, err := q.Query(ctx, `SELECT `+eventColumns+` FROM schedule_events WHERE day_plan_id = $1 ORDER BY sequence_order ASC`, dayPlanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ScheduleEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanPlan(row pgx.Row) (models.DayPlan, error) {
	var (
		p     models.DayPlan
		route []byte
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.TechnicianID, &p.PlanDate, &route, &p.CreatedAt); err != nil {
		return models.DayPlan{}, err
	}
	if len(route) > 0 {
		p.Route = &models.RouteSummary{}
		if err := json.Unmarshal(route, p.Route); err != nil {
			return models.DayPlan{}, err
		}
	}
	return p, nil
}

func scanEvent(row pgx.Row) (models.ScheduleEvent, error) {
	var (
		ev        models.ScheduleEvent
		eventType string
	)
	err := row.Scan(&ev.ID, &ev.DayPlanID, &eventType, &ev.SequenceOrder, &ev.ScheduledStart, &ev.DurationMinutes, &ev.JobID, &ev.Address, &ev.Notes, &ev.CreatedAt)
	ev.EventType = models.EventType(eventType)
	return ev, err
}

func (s *Store) GetKit(ctx context.Context, kitID string) (models.Kit, error) {
	var k models.Kit
	err := s.Pool.QueryRow(ctx, `SELECT id, tenant_id, name FROM kits WHERE id = $1`, kitID).Scan(&k.ID, &k.TenantID, &k.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Kit{}, apperr.NotFound("kit", kitID)
	}
	if err != nil {
		return models.Kit{}, err
	}

	rows, err := s.Pool.Query(ctx, `SELECT item_id, quantity, is_required FROM kit_items WHERE kit_id = $1 ORDER BY item_id`, kitID)
	if err != nil {
		return models.Kit{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it models.KitItem
		if err := rows.Scan(&it.ItemID, &it.Quantity, &it.IsRequired); err != nil {
			return models.Kit{}, err
		}
		k.Items = append(k.Items, it)
	}
	return k, rows.Err()
}

func (s *Store) InsertKitVerification(ctx context.Context, v models.KitVerification) error {
	checklist, err := json.Marshal(v.Checklist)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO kit_verifications (id, tenant_id, job_id, kit_id, verified_by, verification_method, checklist, verification_status, missing_items, override_ids, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, v.ID, v.TenantID, v.JobID, v.KitID, v.VerifiedBy, v.Method, checklist, string(v.Status), nonNil(v.MissingItems), nonNil(v.OverrideIDs), v.CreatedAt)
	return err
}

const overrideColumns = `id, tenant_id, job_id, kit_id, item_id, technician_id, supervisor_id, override_reason, priority, created_at,
	notification_method, notification_status, notification_attempts, notification_latency_ms, sla_seconds, sla_met, voice_initiated, metadata, resolved_at`

func (s *Store) InsertOverrideLog(ctx context.Context, log models.OverrideLog) error {
	attempts, err := json.Marshal(nonNilAttempts(log.Attempts))
	if err != nil {
		return err
	}
	meta, err := marshalNullable(log.Voice)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO kit_override_logs (`+overrideColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, log.ID, log.TenantID, log.JobID, log.KitID, log.ItemID, log.TechnicianID, log.SupervisorID, log.OverrideReason, log.Priority, log.CreatedAt,
		nullString(log.NotificationMethod), nullString(log.NotificationStatus), attempts, log.LatencyMs, log.SLASeconds, log.SLAMet, log.VoiceInitiated, meta, log.ResolvedAt)
	return mapWriteErr(err, "id", "override log already exists")
}

func (s *Store) UpdateOverrideNotification(ctx context.Context, log models.OverrideLog) error {
	attempts, err := json.Marshal(nonNilAttempts(log.Attempts))
	if err != nil {
		return err
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE kit_override_logs SET
			notification_method = $1,
			notification_status = $2,
			notification_attempts = $3,
			notification_latency_ms = $4,
			sla_met = $5,
			resolved_at = $6
		WHERE id = $7
	`, nullString(log.NotificationMethod), nullString(log.NotificationStatus), attempts, log.LatencyMs, log.SLAMet, log.ResolvedAt, log.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("override log", log.ID)
	}
	return nil
}

func (s *Store) GetOverrideLog(ctx context.Context, id string) (models.OverrideLog, error) {
	log, err := scanOverride(s.Pool.QueryRow(ctx, `SELECT `+overrideColumns+` FROM kit_override_logs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.OverrideLog{}, apperr.NotFound("override log", id)
	}
	return log, err
}

func (s *Store) ListOverrideLogs(ctx context.Context, q ports.OverrideQuery) ([]models.OverrideLog, error) {
	query := `SELECT ` + overrideColumns + ` FROM kit_override_logs WHERE TRUE`
	var args []any
	if q.KitID != "" {
		args = append(args, q.KitID)
		query += fmt.Sprintf(" AND kit_id = $%d", len(args))
	}
	if q.TenantID != "" {
		args = append(args, q.TenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	if !q.Start.IsZero() {
		args = append(args, q.Start)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !q.End.IsZero() {
		args = append(args, q.End)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OverrideLog
	for rows.Next() {
		log, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

func scanOverride(row pgx.Row) (models.OverrideLog, error) {
	var (
		l        models.OverrideLog
		method   *string
		status   *string
		attempts []byte
		meta     []byte
	)
	err := row.Scan(&l.ID, &l.TenantID, &l.JobID, &l.KitID, &l.ItemID, &l.TechnicianID, &l.SupervisorID, &l.OverrideReason, &l.Priority, &l.CreatedAt,
		&method, &status, &attempts, &l.LatencyMs, &l.SLASeconds, &l.SLAMet, &l.VoiceInitiated, &meta, &l.ResolvedAt)
	if err != nil {
		return models.OverrideLog{}, err
	}
	l.NotificationMethod = derefString(method)
	l.NotificationStatus = derefString(status)
	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &l.Attempts); err != nil {
			return models.OverrideLog{}, err
		}
	}
	if len(meta) > 0 {
		l.Voice = &models.VoiceMetadata{}
		if err := json.Unmarshal(meta, l.Voice); err != nil {
			return models.OverrideLog{}, err
		}
	}
	return l, nil
}

func (s *Store) Record(ctx context.Context, entry models.AuditEntry) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO audit_logs (id, tenant_id, action, actor_id, entity_type, entity_id, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.TenantID, entry.Action, entry.ActorID, entry.EntityType, entry.EntityID, meta, entry.CreatedAt)
	return err
}

func (s *Store) JobLimitOverride(ctx context.Context, tenantID string) (int, bool, error) {
	var limit *int
	err := s.Pool.QueryRow(ctx, `SELECT job_limit FROM tenant_settings WHERE tenant_id = $1`, tenantID).Scan(&limit)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return derefInt(limit), limit != nil, nil
}

func (s *Store) GetPreferences(ctx context.Context, userID string) (models.RecipientPreferences, error) {
	var (
		p        = models.RecipientPreferences{UserID: userID}
		contacts []byte
		quiet    []byte
	)
	err := s.Pool.QueryRow(ctx, `SELECT channels, contacts, quiet_hours FROM notification_preferences WHERE user_id = $1`, userID).Scan(&p.Channels, &contacts, &quiet)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RecipientPreferences{}, apperr.NotFound("notification preferences", userID)
	}
	if err != nil {
		return models.RecipientPreferences{}, err
	}
	if len(contacts) > 0 {
		if err := json.Unmarshal(contacts, &p.Contacts); err != nil {
			return models.RecipientPreferences{}, err
		}
	}
	if len(quiet) > 0 {
		p.QuietHours = &models.QuietHours{}
		if err := json.Unmarshal(quiet, p.QuietHours); err != nil {
			return models.RecipientPreferences{}, err
		}
	}
	return p, nil
}

// mapWriteErr turns a unique violation into a validation error on field.
func mapWriteErr(err error, field, reason string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Invalid(field, reason)
	}
	return err
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilAttempts(v []models.NotificationAttempt) []models.NotificationAttempt {
	if v == nil {
		return []models.NotificationAttempt{}
	}
	return v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

var (
	_ ports.DayPlanStore     = (*Store)(nil)
	_ ports.KitStore         = (*Store)(nil)
	_ ports.OverrideStore    = (*Store)(nil)
	_ ports.AuditSink        = (*Store)(nil)
	_ ports.TenantSettings   = (*Store)(nil)
	_ ports.PreferenceLookup = (*Store)(nil)

	_ ports.DayPlanStore     = (*MemoryStore)(nil)
	_ ports.KitStore         = (*MemoryStore)(nil)
	_ ports.OverrideStore    = (*MemoryStore)(nil)
	_ ports.AuditSink        = (*MemoryStore)(nil)
	_ ports.TenantSettings   = (*MemoryStore)(nil)
	_ ports.PreferenceLookup = (*MemoryStore)(nil)
)
